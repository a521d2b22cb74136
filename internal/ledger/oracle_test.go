package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/shopspring/decimal"
)

type fakeLedger struct {
	domain.IdentityDirectory

	transfers map[string]int64 // "from->to"
	entries   map[string][]*domain.LedgerEntry
	err       error

	lastSince time.Time
	lastUntil time.Time
}

func (f *fakeLedger) CountTransfers(_ context.Context, from, to string, since, until time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.lastSince, f.lastUntil = since, until
	return f.transfers[from+"->"+to], nil
}

func (f *fakeLedger) CountCustomerTransfers(_ context.Context, customerID, to string, since, until time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.transfers[customerID+"->"+to], nil
}

func (f *fakeLedger) FindLedgerByRRN(_ context.Context, rrn string) ([]*domain.LedgerEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[rrn], nil
}

func TestHasTransferred(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeLedger{transfers: map[string]int64{
		"1111->2222":     3,
		"cust-001->2222": 1,
	}}
	oracle := NewOracle(fake, 0).WithClock(func() time.Time { return fixed })
	ctx := context.Background()

	t.Run("Transacted", func(t *testing.T) {
		ok, err := oracle.HasTransferred(ctx, "1111", "2222")
		if err != nil || !ok {
			t.Errorf("expected transfer found, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("NotTransacted", func(t *testing.T) {
		ok, err := oracle.HasTransferred(ctx, "1111", "9999")
		if err != nil || ok {
			t.Errorf("expected no transfer, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("DefaultWindowIs90Days", func(t *testing.T) {
		if _, err := oracle.HasTransferred(ctx, "1111", "2222"); err != nil {
			t.Fatal(err)
		}
		want := fixed.Add(-90 * 24 * time.Hour)
		if !fake.lastSince.Equal(want) || !fake.lastUntil.Equal(fixed) {
			t.Errorf("window [%v, %v), want [%v, %v)", fake.lastSince, fake.lastUntil, want, fixed)
		}
	})

	t.Run("CustomerWide", func(t *testing.T) {
		ok, err := oracle.HasCustomerTransferred(ctx, "cust-001", "2222")
		if err != nil || !ok {
			t.Errorf("expected customer transfer found, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("SourceError", func(t *testing.T) {
		fake.err = errors.New("ledger down")
		defer func() { fake.err = nil }()
		if _, err := oracle.HasTransferred(ctx, "1111", "2222"); err == nil {
			t.Error("expected error from broken ledger")
		}
	})
}

func TestLookupRRN(t *testing.T) {
	entry := &domain.LedgerEntry{
		ID: "led-1", RRN: "123456789012",
		FromAccount: "1111", ToAccount: "2222",
		Amount: decimal.RequireFromString("500"),
	}
	wideEntry := &domain.LedgerEntry{
		ID: "led-2", RRN: "1234567890123",
		FromAccount: "1111", ToAccount: "3333",
		Amount: decimal.RequireFromString("750"),
	}
	fake := &fakeLedger{entries: map[string][]*domain.LedgerEntry{
		"123456789012":  {entry},
		"123456789013":  {entry, entry},
		"1234567890123": {wideEntry},
	}}
	oracle := NewOracle(fake, 0)
	ctx := context.Background()

	cases := []struct {
		name string
		rrn  string
		want domain.IncidentStatus
	}{
		{"Matched", "123456789012", domain.IncidentMatched},
		{"Matched13Digits", "1234567890123", domain.IncidentMatched},
		{"MultipleMatch", "123456789013", domain.IncidentMultipleMatch},
		{"NotFound", "999999999999", domain.IncidentNotFound},
		{"NotFound13Digits", "9999999999999", domain.IncidentNotFound},
		{"InvalidFormat", "12345678901a", domain.IncidentInvalidFormat},
		{"InvalidFormatEmpty", "", domain.IncidentInvalidFormat},
		{"InvalidRangeShort", "12345", domain.IncidentInvalidRange},
		{"InvalidRangeLong", "12345678901234", domain.IncidentInvalidRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := oracle.LookupRRN(ctx, tc.rrn)
			if err != nil {
				t.Fatalf("LookupRRN failed: %v", err)
			}
			if got.Status != tc.want {
				t.Errorf("status = %s, want %s", got.Status, tc.want)
			}
			if tc.want == domain.IncidentMatched && got.Entry == nil {
				t.Error("matched lookup should carry the ledger entry")
			}
		})
	}

	t.Run("SourceError", func(t *testing.T) {
		fake.err = errors.New("ledger down")
		defer func() { fake.err = nil }()
		if _, err := oracle.LookupRRN(ctx, "123456789012"); err == nil {
			t.Error("expected error from broken ledger")
		}
	})
}
