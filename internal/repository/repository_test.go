package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/shopspring/decimal"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "shrike-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func strPtr(s string) *string { return &s }

func TestCaseStore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	base := &domain.Case{
		ID:            "case-001",
		Type:          domain.CaseVM,
		SourceAckNo:   "ACK001_VM",
		CustomerID:    strPtr("cust-001"),
		AccountNumber: "1234567890",
		Operational:   true,
		Status:        domain.StatusNew,
		CreatedAt:     now,
		CreatedBy:     "system",
		DisputedAmount: decimal.NullDecimal{
			Decimal: decimal.RequireFromString("15000.50"),
			Valid:   true,
		},
	}

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("CreateAndGet", func(t *testing.T) {
		if err := repo.CreateCase(ctx, base); err != nil {
			t.Fatalf("CreateCase failed: %v", err)
		}

		got, err := repo.GetCase(ctx, "case-001")
		if err != nil {
			t.Fatalf("GetCase failed: %v", err)
		}
		if got.Type != domain.CaseVM {
			t.Errorf("expected type VM, got %s", got.Type)
		}
		if !got.Operational {
			t.Error("expected operational case")
		}
		if !got.DisputedAmount.Valid || !got.DisputedAmount.Decimal.Equal(decimal.RequireFromString("15000.50")) {
			t.Errorf("disputed amount round-trip failed: %+v", got.DisputedAmount)
		}
	})

	t.Run("GetByAckNo", func(t *testing.T) {
		got, err := repo.GetCaseByAckNo(ctx, "ACK001_VM")
		if err != nil {
			t.Fatalf("GetCaseByAckNo failed: %v", err)
		}
		if got.ID != "case-001" {
			t.Errorf("expected case-001, got %s", got.ID)
		}
	})

	t.Run("DuplicateAckNo", func(t *testing.T) {
		dup := *base
		dup.ID = "case-002"
		err := repo.CreateCase(ctx, &dup)

		var dupErr *domain.DuplicateError
		if !errors.As(err, &dupErr) {
			t.Fatalf("expected DuplicateError, got %v", err)
		}
		if dupErr.ExistingID != "case-001" {
			t.Errorf("expected existing id case-001, got %s", dupErr.ExistingID)
		}
		if !domain.IsDuplicate(err) {
			t.Error("IsDuplicate should report true")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetCase(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		closed := now.Add(time.Hour)
		if err := repo.UpdateCaseStatus(ctx, "case-001", domain.StatusClosed, &closed); err != nil {
			t.Fatalf("UpdateCaseStatus failed: %v", err)
		}
		got, _ := repo.GetCase(ctx, "case-001")
		if got.Status != domain.StatusClosed || got.ClosedAt == nil {
			t.Errorf("expected closed case, got %s closedAt=%v", got.Status, got.ClosedAt)
		}

		if err := repo.UpdateCaseStatus(ctx, "missing", domain.StatusOpen, nil); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing case, got %v", err)
		}
	})

	t.Run("ListFilters", func(t *testing.T) {
		other := &domain.Case{
			ID:            "case-003",
			Type:          domain.CaseBM,
			SourceAckNo:   "ACK001_BM",
			AccountNumber: "9999999999",
			Status:        domain.StatusNew,
			CreatedAt:     now.Add(time.Minute),
			CreatedBy:     "system",
		}
		if err := repo.CreateCase(ctx, other); err != nil {
			t.Fatalf("CreateCase failed: %v", err)
		}

		page, err := repo.ListCases(ctx, domain.CaseFilters{Types: []domain.CaseType{domain.CaseBM}})
		if err != nil {
			t.Fatalf("ListCases failed: %v", err)
		}
		if page.Total != 1 || len(page.Cases) != 1 || page.Cases[0].ID != "case-003" {
			t.Errorf("unexpected page: total=%d cases=%d", page.Total, len(page.Cases))
		}
	})
}

func TestCaseHistory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, remarks := range []string{"case created", "assigned for review", "closed as mule"} {
		e := &domain.CaseHistoryEntry{
			ID:        string(rune('a' + i)),
			CaseID:    "case-001",
			Remarks:   remarks,
			UpdatedBy: "officer1",
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}
		if err := repo.AppendHistory(ctx, e); err != nil {
			t.Fatalf("AppendHistory failed: %v", err)
		}
	}

	entries, err := repo.ListHistory(ctx, "case-001")
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Remarks != "case created" {
		t.Errorf("expected chronological order, got %q first", entries[0].Remarks)
	}

	latest, err := repo.LatestHistory(ctx, "case-001")
	if err != nil {
		t.Fatalf("LatestHistory failed: %v", err)
	}
	if latest.Remarks != "closed as mule" {
		t.Errorf("expected most recent entry to win, got %q", latest.Remarks)
	}
}

func TestAssignmentLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c := &domain.Case{
		ID: "case-001", Type: domain.CaseVM, SourceAckNo: "ACK001_VM",
		AccountNumber: "1234567890", Status: domain.StatusNew,
		CreatedAt: now, CreatedBy: "system",
	}
	if err := repo.CreateCase(ctx, c); err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}

	first := &domain.Assignment{
		ID: "asg-1", CaseID: "case-001", AssignedTo: "officer1",
		AssignedBy: "system", AssignedAt: now, Type: domain.AssignAuto,
	}
	if err := repo.ReassignActive(ctx, first); err != nil {
		t.Fatalf("ReassignActive failed: %v", err)
	}

	second := &domain.Assignment{
		ID: "asg-2", CaseID: "case-001", AssignedTo: "deptuser1",
		AssignedBy: "officer1", AssignedAt: now.Add(time.Minute),
		Comment: "please verify KYC", Type: domain.AssignManual,
	}
	if err := repo.ReassignActive(ctx, second); err != nil {
		t.Fatalf("ReassignActive failed: %v", err)
	}

	active, err := repo.ActiveAssignment(ctx, "case-001")
	if err != nil {
		t.Fatalf("ActiveAssignment failed: %v", err)
	}
	if active.AssignedTo != "deptuser1" {
		t.Errorf("expected deptuser1 active, got %s", active.AssignedTo)
	}

	history, err := repo.ListAssignments(ctx, "case-001")
	if err != nil {
		t.Fatalf("ListAssignments failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected full history of 2 rows, got %d", len(history))
	}
	activeCount := 0
	for _, a := range history {
		if a.Active {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Errorf("expected exactly one active row, got %d", activeCount)
	}

	t.Run("MissingCase", func(t *testing.T) {
		bad := &domain.Assignment{ID: "asg-3", CaseID: "missing", AssignedTo: "x", AssignedBy: "y", AssignedAt: now, Type: domain.AssignManual}
		if err := repo.ReassignActive(ctx, bad); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDepartmentReviewScoping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	save := func(id, dept string, state domain.ReviewState) {
		t.Helper()
		var d *string
		if dept != "" {
			d = &dept
		}
		err := repo.SaveActionDetail(ctx, &domain.ActionDetail{
			ID: id, CaseID: "case-001", Department: d, State: state,
			Action: "reviewed", CreatedBy: "someone", CreatedAt: now,
		})
		if err != nil {
			t.Fatalf("SaveActionDetail failed: %v", err)
		}
	}

	save("ad-base", "", domain.ReviewApproved)
	save("ad-fraud-1", "fraud", domain.ReviewPending)
	save("ad-fraud-2", "fraud", domain.ReviewPending)
	save("ad-legal-1", "legal", domain.ReviewPending)

	t.Run("ApprovalScopedToDepartment", func(t *testing.T) {
		if err := repo.SetDepartmentReviewState(ctx, "case-001", "fraud", domain.ReviewPending, domain.ReviewApproved); err != nil {
			t.Fatalf("SetDepartmentReviewState failed: %v", err)
		}

		merged, err := repo.ListActionDetails(ctx, "case-001", nil)
		if err != nil {
			t.Fatalf("ListActionDetails failed: %v", err)
		}
		// Base row + the two approved fraud rows; legal's pending row stays hidden.
		if len(merged) != 3 {
			t.Errorf("expected 3 visible rows, got %d", len(merged))
		}

		legal := "legal"
		legalView, err := repo.ListActionDetails(ctx, "case-001", &legal)
		if err != nil {
			t.Fatalf("ListActionDetails failed: %v", err)
		}
		// Legal additionally sees its own pending row.
		if len(legalView) != 4 {
			t.Errorf("expected 4 rows for legal viewer, got %d", len(legalView))
		}
	})

	t.Run("RejectedHiddenFromMergedView", func(t *testing.T) {
		if err := repo.SetDepartmentReviewState(ctx, "case-001", "legal", domain.ReviewPending, domain.ReviewRejected); err != nil {
			t.Fatalf("SetDepartmentReviewState failed: %v", err)
		}
		merged, err := repo.ListActionDetails(ctx, "case-001", nil)
		if err != nil {
			t.Fatalf("ListActionDetails failed: %v", err)
		}
		for _, d := range merged {
			if d.State == domain.ReviewRejected {
				t.Errorf("rejected row %s leaked into merged view", d.ID)
			}
		}
	})
}

func TestUserDirectory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	users := []*domain.UserAccount{
		{Username: "zofficer", Role: domain.RoleRiskOfficer},
		{Username: "aofficer", Role: domain.RoleRiskOfficer},
		{Username: "cro1", Role: domain.RoleCRO},
		{Username: "sup-fraud", Role: domain.RoleSupervisor, Department: strPtr("fraud")},
	}
	for _, u := range users {
		if err := repo.UpsertUser(ctx, u); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}
	}

	t.Run("FirstRiskOfficerAlphabetical", func(t *testing.T) {
		u, err := repo.FirstRiskOfficer(ctx)
		if err != nil {
			t.Fatalf("FirstRiskOfficer failed: %v", err)
		}
		if u.Username != "aofficer" {
			t.Errorf("expected aofficer, got %s", u.Username)
		}
	})

	t.Run("DepartmentSupervisor", func(t *testing.T) {
		u, err := repo.DepartmentSupervisor(ctx, "fraud")
		if err != nil {
			t.Fatalf("DepartmentSupervisor failed: %v", err)
		}
		if u.Username != "sup-fraud" {
			t.Errorf("expected sup-fraud, got %s", u.Username)
		}
	})

	t.Run("UnknownUser", func(t *testing.T) {
		if _, err := repo.GetUser(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestIdentityProbes(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	cust := &domain.Customer{ID: "cust-001", Name: "A Sharma", Mobile: "9876543210"}
	if err := repo.InsertCustomer(ctx, cust); err != nil {
		t.Fatalf("InsertCustomer failed: %v", err)
	}
	if err := repo.InsertAccountLink(ctx, &domain.AccountLink{
		AccountNumber: "1234567890", CustomerID: "cust-001", OpenedAt: now,
	}); err != nil {
		t.Fatalf("InsertAccountLink failed: %v", err)
	}
	if err := repo.InsertBeneficiaryLink(ctx, &domain.BeneficiaryLink{
		CustomerID: "cust-001", BeneficiaryAccount: "5555555555", AddedAt: now,
	}); err != nil {
		t.Fatalf("InsertBeneficiaryLink failed: %v", err)
	}
	if err := repo.InsertSuspect(ctx, &domain.SuspectEntry{
		ID: "sus-1", Account: "5555555555", Source: "leo_referral",
	}); err != nil {
		t.Fatalf("InsertSuspect failed: %v", err)
	}

	t.Run("CustomerByAccount", func(t *testing.T) {
		c, err := repo.CustomerByAccount(ctx, "1234567890")
		if err != nil {
			t.Fatalf("CustomerByAccount failed: %v", err)
		}
		if c.ID != "cust-001" {
			t.Errorf("expected cust-001, got %s", c.ID)
		}
	})

	t.Run("CustomerByMobile", func(t *testing.T) {
		c, err := repo.CustomerByIdentity(ctx, domain.IdentityMobile, "9876543210")
		if err != nil {
			t.Fatalf("CustomerByIdentity failed: %v", err)
		}
		if c.ID != "cust-001" {
			t.Errorf("expected cust-001, got %s", c.ID)
		}
	})

	t.Run("BeneficiariesOfAccount", func(t *testing.T) {
		links, err := repo.BeneficiariesOfAccount(ctx, "5555555555")
		if err != nil {
			t.Fatalf("BeneficiariesOfAccount failed: %v", err)
		}
		if len(links) != 1 || links[0].CustomerID != "cust-001" {
			t.Errorf("unexpected links: %+v", links)
		}
	})

	t.Run("SuspectSources", func(t *testing.T) {
		sources, err := repo.SuspectSources(ctx, domain.IdentityAccount, "5555555555")
		if err != nil {
			t.Fatalf("SuspectSources failed: %v", err)
		}
		if len(sources) != 1 || sources[0] != "leo_referral" {
			t.Errorf("unexpected sources: %v", sources)
		}
	})
}

func TestLedgerProbes(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	entries := []*domain.LedgerEntry{
		{ID: "led-1", RRN: "123456789012", FromAccount: "1234567890", ToAccount: "5555555555", Amount: decimal.RequireFromString("1000"), TxnDate: now.AddDate(0, 0, -10)},
		{ID: "led-2", RRN: "123456789013", FromAccount: "1234567890", ToAccount: "5555555555", Amount: decimal.RequireFromString("2000"), TxnDate: now.AddDate(0, 0, -200)},
		{ID: "led-3", RRN: "123456789014", FromAccount: "1234567890", ToAccount: "5555555555", Amount: decimal.RequireFromString("50"), TxnDate: now.AddDate(0, 0, -5)},
		{ID: "led-4", RRN: "123456789014", FromAccount: "6666666666", ToAccount: "7777777777", Amount: decimal.RequireFromString("75"), TxnDate: now.AddDate(0, 0, -4)},
	}
	for _, e := range entries {
		if err := repo.InsertLedgerEntry(ctx, e); err != nil {
			t.Fatalf("InsertLedgerEntry failed: %v", err)
		}
	}

	t.Run("CountWithinWindow", func(t *testing.T) {
		count, err := repo.CountTransfers(ctx, "1234567890", "5555555555", now.AddDate(0, 0, -90), now)
		if err != nil {
			t.Fatalf("CountTransfers failed: %v", err)
		}
		// led-2 is outside the 90-day window.
		if count != 2 {
			t.Errorf("expected 2 transfers in window, got %d", count)
		}
	})

	t.Run("FindByRRN", func(t *testing.T) {
		single, err := repo.FindLedgerByRRN(ctx, "123456789012")
		if err != nil {
			t.Fatalf("FindLedgerByRRN failed: %v", err)
		}
		if len(single) != 1 {
			t.Errorf("expected 1 entry, got %d", len(single))
		}

		multi, err := repo.FindLedgerByRRN(ctx, "123456789014")
		if err != nil {
			t.Fatalf("FindLedgerByRRN failed: %v", err)
		}
		if len(multi) != 2 {
			t.Errorf("expected ambiguous RRN to return 2 entries, got %d", len(multi))
		}

		none, err := repo.FindLedgerByRRN(ctx, "999999999999")
		if err != nil {
			t.Fatalf("FindLedgerByRRN failed: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("expected no entries, got %d", len(none))
		}
	})
}

func TestRawComplaintIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	raw := &domain.RawComplaint{
		AckNo: "ACK777", AccountNumber: "1111111111", ToAccount: "2222222222",
		Matched: false, ReceivedAt: time.Now().UTC(), CreatedBy: "entryuser",
	}
	if err := repo.SaveRawComplaint(ctx, raw); err != nil {
		t.Fatalf("SaveRawComplaint failed: %v", err)
	}
	if err := repo.SaveRawComplaint(ctx, raw); err != nil {
		t.Errorf("expected re-save to be a no-op, got %v", err)
	}
}
