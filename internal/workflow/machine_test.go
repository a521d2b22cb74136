package workflow

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/shrike/internal/audit"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/repository"
)

type testEnv struct {
	repo    *repository.SQLRepository
	machine *Machine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "shrike-workflow-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	env := &testEnv{repo: repo}
	roles := NewRoleCache(repo, nil, nil)
	rec := audit.NewRecorder(repo, nil, nil)
	env.machine = NewMachine(repo, roles, rec, nil, nil)

	// Standard cast of actors.
	ctx := context.Background()
	fraud := "fraud"
	for _, u := range []*domain.UserAccount{
		{Username: "cro1", Role: domain.RoleCRO},
		{Username: "officerA", Role: domain.RoleRiskOfficer},
		{Username: "officerZ", Role: domain.RoleRiskOfficer},
		{Username: "deptB", Role: domain.RoleOthers, Department: &fraud},
		{Username: "supF", Role: domain.RoleSupervisor, Department: &fraud},
	} {
		if err := repo.UpsertUser(ctx, u); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}
	}
	return env
}

func (e *testEnv) seedCase(t *testing.T, caseID string) {
	t.Helper()
	err := e.repo.CreateCase(context.Background(), &domain.Case{
		ID:            caseID,
		Type:          domain.CaseVM,
		SourceAckNo:   caseID + "_VM",
		AccountNumber: "1234567890",
		Status:        domain.StatusNew,
		CreatedAt:     time.Now().UTC(),
		CreatedBy:     "system",
	})
	if err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}
}

func (e *testEnv) activeAssignee(t *testing.T, caseID string) string {
	t.Helper()
	a, err := e.repo.ActiveAssignment(context.Background(), caseID)
	if err != nil {
		t.Fatalf("ActiveAssignment failed: %v", err)
	}
	return a.AssignedTo
}

func TestDefaultAssign(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCase(t, "case-001")

	if err := env.machine.DefaultAssign(ctx, "case-001"); err != nil {
		t.Fatalf("DefaultAssign failed: %v", err)
	}
	if got := env.activeAssignee(t, "case-001"); got != "officerA" {
		t.Errorf("expected alphabetically-first risk officer officerA, got %s", got)
	}
}

func TestAssignRoleRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCase(t, "case-001")

	assertRejected := func(t *testing.T, err error) {
		t.Helper()
		var terr *domain.TransitionError
		if !errors.As(err, &terr) {
			t.Fatalf("expected TransitionError, got %v", err)
		}
		// Disallowed transitions leave zero assignment and audit rows.
		if _, aerr := env.repo.ActiveAssignment(ctx, "case-001"); !errors.Is(aerr, domain.ErrNotFound) {
			t.Error("rejected transition must not create an assignment row")
		}
		entries, _ := env.repo.ListAudit(ctx, "case-001")
		if len(entries) != 0 {
			t.Errorf("rejected transition must not create audit rows, got %d", len(entries))
		}
	}

	t.Run("RiskOfficerCannotReassignToCRO", func(t *testing.T) {
		err := env.machine.Assign(ctx, "case-001", "cro1", "officerA", "", domain.AssignManual)
		assertRejected(t, err)
		if err != nil && err.Error() == "" {
			t.Error("rejection must name the violated rule")
		}
	})

	t.Run("CROAssignsOnlyToRiskOfficer", func(t *testing.T) {
		err := env.machine.Assign(ctx, "case-001", "deptB", "cro1", "", domain.AssignManual)
		assertRejected(t, err)
	})

	t.Run("OthersCannotAssign", func(t *testing.T) {
		err := env.machine.Assign(ctx, "case-001", "officerA", "deptB", "", domain.AssignManual)
		assertRejected(t, err)
	})

	t.Run("SupervisorCannotAssign", func(t *testing.T) {
		err := env.machine.Assign(ctx, "case-001", "officerA", "supF", "", domain.AssignManual)
		assertRejected(t, err)
	})

	t.Run("LegalHandOff", func(t *testing.T) {
		if err := env.machine.Assign(ctx, "case-001", "deptB", "officerA", "please verify", domain.AssignManual); err != nil {
			t.Fatalf("legal hand-off rejected: %v", err)
		}
		if got := env.activeAssignee(t, "case-001"); got != "deptB" {
			t.Errorf("expected deptB active, got %s", got)
		}
		c, _ := env.repo.GetCase(ctx, "case-001")
		if c.Status != domain.StatusAssigned {
			t.Errorf("first assignment should move status to Assigned, got %s", c.Status)
		}
	})

	t.Run("RiskOfficerReassignsToPeer", func(t *testing.T) {
		if err := env.machine.Assign(ctx, "case-001", "officerZ", "officerA", "", domain.AssignManual); err != nil {
			t.Fatalf("peer reassignment rejected: %v", err)
		}
	})
}

func TestSendBackApproveRejectFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCase(t, "case-001")
	fraud := "fraud"

	// officerA hands off to deptB, who records an edit and sends back.
	if err := env.machine.Assign(ctx, "case-001", "deptB", "officerA", "verify KYC", domain.AssignManual); err != nil {
		t.Fatal(err)
	}
	if err := env.repo.SaveActionDetail(ctx, &domain.ActionDetail{
		ID: "ad-1", CaseID: "case-001", Department: &fraud,
		State: domain.ReviewPending, Action: "kyc_checked",
		CreatedBy: "deptB", CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := env.machine.SendBack(ctx, "case-001", "deptB", "needs KYC docs"); err != nil {
		t.Fatalf("SendBack failed: %v", err)
	}
	if got := env.activeAssignee(t, "case-001"); got != "supF" {
		t.Fatalf("send-back must point at the department supervisor, got %s", got)
	}

	t.Run("RejectReturnsToDepartmentUser", func(t *testing.T) {
		if err := env.machine.RejectDepartment(ctx, "case-001", "supF", "incomplete"); err != nil {
			t.Fatalf("RejectDepartment failed: %v", err)
		}
		if got := env.activeAssignee(t, "case-001"); got != "deptB" {
			t.Errorf("rejection must return the case to deptB, got %s", got)
		}

		// Rejected edits are hidden from the merged view the officer sees.
		merged, err := env.repo.ListActionDetails(ctx, "case-001", nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(merged) != 0 {
			t.Errorf("rejected edits leaked into merged view: %d rows", len(merged))
		}
		own, err := env.repo.ListActionDetails(ctx, "case-001", &fraud)
		if err != nil {
			t.Fatal(err)
		}
		if len(own) != 0 {
			// Rejected rows are hidden even from the owning department's
			// pending view; revision re-submits them.
			t.Errorf("rejected edits should be hidden, got %d rows", len(own))
		}
	})

	t.Run("ResubmitAndApprove", func(t *testing.T) {
		if err := env.machine.SendBack(ctx, "case-001", "deptB", "docs attached"); err != nil {
			t.Fatalf("second SendBack failed: %v", err)
		}
		// Send-back re-submits the previously rejected row.
		pending, err := env.repo.ListActionDetails(ctx, "case-001", &fraud)
		if err != nil {
			t.Fatal(err)
		}
		if len(pending) != 1 || pending[0].State != domain.ReviewPending {
			t.Fatalf("expected one resubmitted pending row, got %+v", pending)
		}

		if err := env.machine.ApproveDepartment(ctx, "case-001", "supF", "looks complete"); err != nil {
			t.Fatalf("ApproveDepartment failed: %v", err)
		}
		if got := env.activeAssignee(t, "case-001"); got != "officerA" {
			t.Errorf("approval must return the case to the originating risk officer, got %s", got)
		}
		merged, err := env.repo.ListActionDetails(ctx, "case-001", nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(merged) != 1 || merged[0].State != domain.ReviewApproved {
			t.Errorf("approved edit must appear in the merged view, got %+v", merged)
		}
	})
}

func TestApprovalScopedToDepartment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCase(t, "case-001")
	fraud, legal := "fraud", "legal"

	if err := env.repo.UpsertUser(ctx, &domain.UserAccount{
		Username: "deptL", Role: domain.RoleOthers, Department: &legal,
	}); err != nil {
		t.Fatal(err)
	}

	for _, d := range []*domain.ActionDetail{
		{ID: "ad-f", CaseID: "case-001", Department: &fraud, State: domain.ReviewPending, Action: "a", CreatedBy: "deptB", CreatedAt: time.Now().UTC()},
		{ID: "ad-l", CaseID: "case-001", Department: &legal, State: domain.ReviewPending, Action: "b", CreatedBy: "deptL", CreatedAt: time.Now().UTC()},
	} {
		if err := env.repo.SaveActionDetail(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	if err := env.machine.Assign(ctx, "case-001", "deptB", "officerA", "", domain.AssignManual); err != nil {
		t.Fatal(err)
	}
	if err := env.machine.SendBack(ctx, "case-001", "deptB", ""); err != nil {
		t.Fatal(err)
	}
	if err := env.machine.ApproveDepartment(ctx, "case-001", "supF", ""); err != nil {
		t.Fatal(err)
	}

	legalView, err := env.repo.ListActionDetails(ctx, "case-001", &legal)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range legalView {
		if d.ID == "ad-l" && d.State != domain.ReviewPending {
			t.Errorf("fraud approval touched legal's pending edit: %+v", d)
		}
	}
}

func TestBulkCloseAndReopen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCase(t, "case-001")
	env.seedCase(t, "case-002")

	outcome := env.machine.BulkClose(ctx, []string{"case-001", "case-002", "missing"}, domain.BulkClosePayload{
		Remarks:       "verified, no fraud",
		ConfirmedMule: "No",
		ClosedBy:      "officerA",
	})
	if len(outcome.Succeeded) != 2 {
		t.Errorf("expected 2 closures, got %v", outcome.Succeeded)
	}
	if _, ok := outcome.Failed["missing"]; !ok {
		t.Error("missing case must appear in the failure tally")
	}

	c, err := env.repo.GetCase(ctx, "case-001")
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != domain.StatusClosed || c.ClosedAt == nil {
		t.Errorf("expected closed case with closing date, got %+v", c)
	}

	t.Run("ReopenByRiskOfficerRejected", func(t *testing.T) {
		err := env.machine.Reopen(ctx, "case-001", "officerA", "second look")
		var terr *domain.TransitionError
		if !errors.As(err, &terr) {
			t.Fatalf("expected TransitionError, got %v", err)
		}
	})

	t.Run("ReopenByCRO", func(t *testing.T) {
		if err := env.machine.Reopen(ctx, "case-001", "cro1", "new evidence"); err != nil {
			t.Fatalf("Reopen failed: %v", err)
		}
		c, _ := env.repo.GetCase(ctx, "case-001")
		if c.Status != domain.StatusOpen {
			t.Errorf("expected Open after reopen, got %s", c.Status)
		}
	})

	t.Run("ReopenOpenCaseRejected", func(t *testing.T) {
		err := env.machine.Reopen(ctx, "case-001", "cro1", "")
		var terr *domain.TransitionError
		if !errors.As(err, &terr) {
			t.Fatalf("expected TransitionError, got %v", err)
		}
	})
}

func TestBulkAssignBestEffort(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCase(t, "case-001")
	env.seedCase(t, "case-002")

	outcome := env.machine.BulkAssign(ctx, []domain.BulkAssignItem{
		{CaseID: "case-001", AssignedTo: "deptB"},
		{CaseID: "case-002", AssignedTo: "cro1"}, // illegal target for a risk officer
		{CaseID: "missing", AssignedTo: "deptB"},
	}, "officerA")

	if len(outcome.Succeeded) != 1 || outcome.Succeeded[0] != "case-001" {
		t.Errorf("expected only case-001 to succeed, got %v", outcome.Succeeded)
	}
	if len(outcome.Failed) != 2 {
		t.Errorf("expected 2 failures, got %v", outcome.Failed)
	}
}

func TestSaveDecision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCase(t, "case-001")

	if err := env.machine.SaveDecision(ctx, "case-001", "escalate to LEA", "officerA"); err != nil {
		t.Fatalf("SaveDecision failed: %v", err)
	}
	if err := env.machine.SaveDecision(ctx, "case-001", "closed as false positive", "officerA"); err != nil {
		t.Fatalf("SaveDecision failed: %v", err)
	}

	latest, err := env.machine.LatestDecision(ctx, "case-001")
	if err != nil {
		t.Fatalf("LatestDecision failed: %v", err)
	}
	if latest.Remarks != "closed as false positive" {
		t.Errorf("most recent decision must win, got %q", latest.Remarks)
	}
}
