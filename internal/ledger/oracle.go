// Package ledger answers historical-transfer questions against the bank's
// transaction ledger.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Retrieval reference numbers are 12 digits in the card rails and 13 in the
// national cybercrime feed; both widths are accepted.
const (
	rrnMinLength = 12
	rrnMaxLength = 13
)

// Oracle provides the two transfer predicates the case generators branch
// on, and RRN lookups for the bank ingest path.
type Oracle struct {
	dir    domain.IdentityDirectory
	window time.Duration
	now    func() time.Time
}

// NewOracle creates an oracle over the directory. A zero window falls back
// to the 90-day default.
func NewOracle(dir domain.IdentityDirectory, window time.Duration) *Oracle {
	if window <= 0 {
		window = 90 * 24 * time.Hour
	}
	return &Oracle{dir: dir, window: window, now: time.Now}
}

// WithClock overrides the oracle's clock. Tests only.
func (o *Oracle) WithClock(now func() time.Time) *Oracle {
	o.now = now
	return o
}

// HasTransferred reports whether at least one transfer from fromAccount to
// toAccount exists within the lookback window. This single boolean decides
// whether an existing-beneficiary case is treated as transacted.
func (o *Oracle) HasTransferred(ctx context.Context, fromAccount, toAccount string) (bool, error) {
	until := o.now()
	count, err := o.dir.CountTransfers(ctx, fromAccount, toAccount, until.Add(-o.window), until)
	if err != nil {
		return false, fmt.Errorf("transfer lookup: %w", err)
	}
	return count > 0, nil
}

// HasCustomerTransferred is HasTransferred widened to every account the
// customer holds.
func (o *Oracle) HasCustomerTransferred(ctx context.Context, customerID, toAccount string) (bool, error) {
	until := o.now()
	count, err := o.dir.CountCustomerTransfers(ctx, customerID, toAccount, until.Add(-o.window), until)
	if err != nil {
		return false, fmt.Errorf("customer transfer lookup: %w", err)
	}
	return count > 0, nil
}

// RRNLookup is the outcome of resolving one incident RRN against the ledger.
type RRNLookup struct {
	Status domain.IncidentStatus
	Entry  *domain.LedgerEntry
}

// LookupRRN validates and resolves a retrieval reference number. Validation
// failures and lookup multiplicity are statuses, not errors; only a broken
// ledger source returns an error.
func (o *Oracle) LookupRRN(ctx context.Context, rrn string) (RRNLookup, error) {
	if !allDigits(rrn) {
		return RRNLookup{Status: domain.IncidentInvalidFormat}, nil
	}
	if len(rrn) < rrnMinLength || len(rrn) > rrnMaxLength {
		return RRNLookup{Status: domain.IncidentInvalidRange}, nil
	}

	entries, err := o.dir.FindLedgerByRRN(ctx, rrn)
	if err != nil {
		return RRNLookup{}, fmt.Errorf("rrn lookup: %w", err)
	}
	switch len(entries) {
	case 0:
		return RRNLookup{Status: domain.IncidentNotFound}, nil
	case 1:
		return RRNLookup{Status: domain.IncidentMatched, Entry: entries[0]}, nil
	default:
		return RRNLookup{Status: domain.IncidentMultipleMatch}, nil
	}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
