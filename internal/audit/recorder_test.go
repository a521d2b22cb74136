package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/opensource-finance/shrike/internal/domain"
)

type stubRepo struct {
	domain.Repository

	entries   []*domain.AuditEntry
	appendErr error
}

func (s *stubRepo) AppendAudit(_ context.Context, e *domain.AuditEntry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *stubRepo) ListAudit(_ context.Context, caseID string) ([]*domain.AuditEntry, error) {
	var out []*domain.AuditEntry
	for _, e := range s.entries {
		if e.CaseID == caseID {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubBus struct {
	domain.EventBus

	published  int
	publishErr error
}

func (s *stubBus) Publish(_ context.Context, _ string, _ []byte) error {
	if s.publishErr != nil {
		return s.publishErr
	}
	s.published++
	return nil
}

func TestRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("AppendsAndPublishes", func(t *testing.T) {
		repo := &stubRepo{}
		bus := &stubBus{}
		rec := NewRecorder(repo, bus, nil)

		id := rec.Record(ctx, "case-001", "officer1", domain.AuditCaseAssigned, "assigned to deptuser1")
		if id == "" {
			t.Fatal("expected an entry id")
		}
		if len(repo.entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(repo.entries))
		}
		e := repo.entries[0]
		if e.CaseID != "case-001" || e.Actor != "officer1" || e.Action != domain.AuditCaseAssigned {
			t.Errorf("unexpected entry: %+v", e)
		}
		if bus.published != 1 {
			t.Errorf("expected 1 publish, got %d", bus.published)
		}
	})

	t.Run("RepoFailureSwallowed", func(t *testing.T) {
		repo := &stubRepo{appendErr: errors.New("db down")}
		rec := NewRecorder(repo, nil, nil)

		if id := rec.Record(ctx, "case-001", "officer1", domain.AuditCaseClosed, ""); id == "" {
			t.Error("expected an id even when the append fails")
		}
	})

	t.Run("BusFailureSwallowed", func(t *testing.T) {
		repo := &stubRepo{}
		bus := &stubBus{publishErr: errors.New("bus down")}
		rec := NewRecorder(repo, bus, nil)

		rec.Record(ctx, "case-001", "officer1", domain.AuditCaseCreated, "")
		if len(repo.entries) != 1 {
			t.Errorf("append must survive a broken bus, got %d entries", len(repo.entries))
		}
	})

	t.Run("NilBus", func(t *testing.T) {
		repo := &stubRepo{}
		rec := NewRecorder(repo, nil, nil)
		rec.Record(ctx, "case-002", "system", domain.AuditCaseCreated, "")

		entries, err := rec.List(ctx, "case-002")
		if err != nil || len(entries) != 1 {
			t.Errorf("expected 1 entry, got %d err=%v", len(entries), err)
		}
	})
}
