package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

// fakeDirectory is a canned-answer IdentityDirectory for resolver tests.
type fakeDirectory struct {
	customers   map[string]*domain.Customer // keyed by identity value
	accounts    map[string][]*domain.AccountLink
	suspects    map[string][]string
	complaints  map[string][]*domain.CyberComplaint
	caseRefs    map[string][]string
	suspectsErr error
}

func (f *fakeDirectory) CustomerByAccount(_ context.Context, account string) (*domain.Customer, error) {
	if c, ok := f.customers[account]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDirectory) CustomerByIdentity(_ context.Context, _ domain.IdentityKind, value string) (*domain.Customer, error) {
	if c, ok := f.customers[value]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDirectory) AccountsOfCustomer(_ context.Context, customerID string) ([]*domain.AccountLink, error) {
	return f.accounts[customerID], nil
}

func (f *fakeDirectory) BeneficiariesOfAccount(_ context.Context, _ string) ([]*domain.BeneficiaryLink, error) {
	return nil, nil
}

func (f *fakeDirectory) SuspectSources(_ context.Context, _ domain.IdentityKind, value string) ([]string, error) {
	if f.suspectsErr != nil {
		return nil, f.suspectsErr
	}
	return f.suspects[value], nil
}

func (f *fakeDirectory) PriorComplaints(_ context.Context, _ domain.IdentityKind, value string) ([]*domain.CyberComplaint, error) {
	return f.complaints[value], nil
}

func (f *fakeDirectory) CasesReferencing(_ context.Context, account string) ([]string, error) {
	return f.caseRefs[account], nil
}

func (f *fakeDirectory) CountTransfers(_ context.Context, _, _ string, _, _ time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeDirectory) CountCustomerTransfers(_ context.Context, _, _ string, _, _ time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeDirectory) FindLedgerByRRN(_ context.Context, _ string) ([]*domain.LedgerEntry, error) {
	return nil, nil
}

func TestResolve(t *testing.T) {
	dir := &fakeDirectory{
		customers: map[string]*domain.Customer{
			"1234567890": {ID: "cust-001", Name: "A Sharma"},
			"9876543210": {ID: "cust-002", Name: "B Verma"},
		},
		accounts: map[string][]*domain.AccountLink{
			"cust-002": {{AccountNumber: "2222222222", CustomerID: "cust-002"}},
		},
		suspects: map[string][]string{
			"5555555555": {"leo_referral"},
		},
		complaints: map[string][]*domain.CyberComplaint{
			"9876543210": {{AckNo: "ACK900"}},
		},
		caseRefs: map[string][]string{
			"1234567890": {"case-007"},
		},
	}
	resolver := NewResolver(dir, nil)
	ctx := context.Background()

	t.Run("KnownCustomerByAccount", func(t *testing.T) {
		match, partial := resolver.ResolveAccount(ctx, "1234567890")
		if len(partial) != 0 {
			t.Errorf("unexpected partial sources: %v", partial)
		}
		if !match.KnownCustomer || match.Customer.ID != "cust-001" {
			t.Errorf("expected cust-001 match, got %+v", match)
		}
		if match.AccountNumber != "1234567890" {
			t.Errorf("account probe should carry its own account number, got %q", match.AccountNumber)
		}
		if len(match.MatchedCaseIDs) != 1 || match.MatchedCaseIDs[0] != "case-007" {
			t.Errorf("expected case cross-reference, got %v", match.MatchedCaseIDs)
		}
		if match.Flagged() {
			t.Error("clean customer should not be flagged")
		}
	})

	t.Run("MobileProbeResolvesPrimaryAccount", func(t *testing.T) {
		match, _ := resolver.Resolve(ctx, domain.IdentityMobile, "9876543210")
		if !match.KnownCustomer || match.Customer.ID != "cust-002" {
			t.Fatalf("expected cust-002 match, got %+v", match)
		}
		if match.AccountNumber != "2222222222" {
			t.Errorf("expected primary account resolution, got %q", match.AccountNumber)
		}
		if !match.PriorComplainant || !match.Flagged() {
			t.Error("prior complainant should be flagged")
		}
	})

	t.Run("SuspectOnly", func(t *testing.T) {
		match, _ := resolver.ResolveAccount(ctx, "5555555555")
		if match.KnownCustomer {
			t.Error("suspect account is not a customer")
		}
		if !match.KnownSuspect || !match.Flagged() {
			t.Error("expected suspect flag")
		}
		if len(match.MatchSources) != 1 || match.MatchSources[0] != "leo_referral" {
			t.Errorf("expected suspect source label, got %v", match.MatchSources)
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		match, partial := resolver.ResolveAccount(ctx, "0000000000")
		if len(partial) != 0 {
			t.Errorf("unexpected partial sources: %v", partial)
		}
		if match.KnownCustomer || match.Flagged() || len(match.MatchSources) != 0 {
			t.Errorf("expected empty match, got %+v", match)
		}
	})

	t.Run("EmptyValue", func(t *testing.T) {
		match, partial := resolver.Resolve(ctx, domain.IdentityMobile, "")
		if match.KnownCustomer || len(partial) != 0 {
			t.Errorf("empty value must not probe, got %+v partial=%v", match, partial)
		}
	})

	t.Run("DegradedSource", func(t *testing.T) {
		dir.suspectsErr = errors.New("suspect feed unavailable")
		defer func() { dir.suspectsErr = nil }()

		match, partial := resolver.ResolveAccount(ctx, "1234567890")
		if !match.KnownCustomer {
			t.Error("customer match must survive a broken suspect source")
		}
		if match.KnownSuspect {
			t.Error("broken source must degrade to no-match")
		}
		found := false
		for _, p := range partial {
			if p == "suspects" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected suspects in partial sources, got %v", partial)
		}
	})
}
