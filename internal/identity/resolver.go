// Package identity resolves complaint identifiers against the bank's
// customer, suspect and prior-complaint records.
package identity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Resolver probes the identity directory for a single identifier value.
// Directory failures degrade to "no match": a broken lookup source must
// not block complaint intake, it only loses enrichment.
type Resolver struct {
	dir    domain.IdentityDirectory
	logger *slog.Logger
}

// NewResolver creates a resolver over the given directory.
func NewResolver(dir domain.IdentityDirectory, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{dir: dir, logger: logger}
}

// Directory exposes the underlying directory for callers needing raw
// lookups beyond single-identity resolution.
func (r *Resolver) Directory() domain.IdentityDirectory {
	return r.dir
}

// Resolve probes every relevant source for one identity value. The returned
// Partial slice names sources that failed and were skipped.
func (r *Resolver) Resolve(ctx context.Context, kind domain.IdentityKind, value string) (domain.IdentityMatch, []string) {
	match := domain.IdentityMatch{Probe: kind, Value: value}
	if value == "" {
		return match, nil
	}

	var partial []string

	customer, err := r.lookupCustomer(ctx, kind, value)
	if err != nil {
		partial = append(partial, "customers")
		r.logger.Warn("customer lookup degraded to no-match",
			"kind", kind, "error", err)
	} else if customer != nil {
		match.KnownCustomer = true
		match.Customer = customer
		match.MatchSources = append(match.MatchSources, "customers")
		if kind == domain.IdentityAccount {
			match.AccountNumber = value
		} else if acct, aerr := r.primaryAccount(ctx, customer.ID); aerr != nil {
			partial = append(partial, "accounts")
			r.logger.Warn("account lookup degraded",
				"customerId", customer.ID, "error", aerr)
		} else {
			match.AccountNumber = acct
		}
	}

	sources, err := r.dir.SuspectSources(ctx, kind, value)
	if err != nil {
		partial = append(partial, "suspects")
		r.logger.Warn("suspect lookup degraded to no-match",
			"kind", kind, "error", err)
	} else if len(sources) > 0 {
		match.KnownSuspect = true
		match.MatchSources = append(match.MatchSources, sources...)
	}

	complaints, err := r.dir.PriorComplaints(ctx, kind, value)
	if err != nil {
		partial = append(partial, "cyber_complaints")
		r.logger.Warn("prior complaint lookup degraded to no-match",
			"kind", kind, "error", err)
	} else if len(complaints) > 0 {
		match.PriorComplainant = true
		match.MatchSources = append(match.MatchSources, "cyber_complaints")
	}

	if kind == domain.IdentityAccount {
		ids, err := r.dir.CasesReferencing(ctx, value)
		if err != nil {
			partial = append(partial, "case_main")
			r.logger.Warn("case cross-reference lookup degraded",
				"error", err)
		} else {
			match.MatchedCaseIDs = ids
		}
	}

	return match, partial
}

// ResolveAccount is the common probe for complaint account numbers.
func (r *Resolver) ResolveAccount(ctx context.Context, accountNumber string) (domain.IdentityMatch, []string) {
	return r.Resolve(ctx, domain.IdentityAccount, accountNumber)
}

func (r *Resolver) lookupCustomer(ctx context.Context, kind domain.IdentityKind, value string) (*domain.Customer, error) {
	var (
		c   *domain.Customer
		err error
	)
	if kind == domain.IdentityAccount {
		c, err = r.dir.CustomerByAccount(ctx, value)
	} else {
		c, err = r.dir.CustomerByIdentity(ctx, kind, value)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

// primaryAccount returns the oldest linked account of a customer, empty
// when the customer has none.
func (r *Resolver) primaryAccount(ctx context.Context, customerID string) (string, error) {
	links, err := r.dir.AccountsOfCustomer(ctx, customerID)
	if err != nil {
		return "", err
	}
	if len(links) == 0 {
		return "", nil
	}
	return links[0].AccountNumber, nil
}
