// Package audit writes the append-only per-case audit stream.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/shrike/internal/domain"
)

// Recorder appends audit entries and mirrors them onto the event bus.
// Audit failures are logged and swallowed: a broken audit sink must never
// fail the operation being audited.
type Recorder struct {
	repo   domain.Repository
	bus    domain.EventBus
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder. The bus is optional.
func NewRecorder(repo domain.Repository, bus domain.EventBus, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, bus: bus, logger: logger, now: time.Now}
}

// Record appends one audit entry for a case action. It never returns an
// error; the entry id is returned for correlation.
func (r *Recorder) Record(ctx context.Context, caseID, actor, action, details string) string {
	entry := &domain.AuditEntry{
		ID:        uuid.New().String(),
		CaseID:    caseID,
		Actor:     actor,
		Action:    action,
		Details:   details,
		Timestamp: r.now().UTC(),
	}

	if err := r.repo.AppendAudit(ctx, entry); err != nil {
		r.logger.Error("audit append failed",
			"caseId", caseID, "action", action, "error", err)
		return entry.ID
	}

	if r.bus != nil {
		payload, err := json.Marshal(entry)
		if err == nil {
			err = r.bus.Publish(ctx, domain.TopicAuditEntry, payload)
		}
		if err != nil {
			r.logger.Warn("audit publish failed",
				"caseId", caseID, "action", action, "error", err)
		}
	}

	return entry.ID
}

// List returns the audit trail of a case in commit order.
func (r *Recorder) List(ctx context.Context, caseID string) ([]*domain.AuditEntry, error) {
	return r.repo.ListAudit(ctx, caseID)
}
