package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/shrike/internal/audit"
	"github.com/opensource-finance/shrike/internal/domain"
)

// Machine enforces the legal transitions of the assignment/approval
// workflow. Every permitted transition writes one assignment row, one audit
// entry and nothing else; a rejected transition writes neither.
type Machine struct {
	repo   domain.Repository
	roles  *RoleCache
	audit  *audit.Recorder
	bus    domain.EventBus
	logger *slog.Logger
	now    func() time.Time
}

// NewMachine wires the state machine. The bus is optional.
func NewMachine(repo domain.Repository, roles *RoleCache, rec *audit.Recorder, bus domain.EventBus, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		repo:   repo,
		roles:  roles,
		audit:  rec,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// DefaultAssign hands a freshly created case to the alphabetically-first
// risk officer. General-queue policy, no load balancing.
func (m *Machine) DefaultAssign(ctx context.Context, caseID string) error {
	officer, err := m.repo.FirstRiskOfficer(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		m.logger.Warn("no risk officer registered, case left unassigned", "caseId", caseID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("default assignment: %w", err)
	}
	return m.activate(ctx, caseID, officer.Username, "system", "", domain.AssignAuto)
}

// Assign moves a case to a new owner under the role rules:
// CRO assigns only to risk officers; risk officers hand off to departmental
// users or reassign to other risk officers, never to a CRO; departmental
// users and supervisors do not assign, they send back, approve or reject.
func (m *Machine) Assign(ctx context.Context, caseID, toUser, byUser, comment string, assignType domain.AssignmentType) error {
	actor, err := m.roles.Lookup(ctx, byUser)
	if err != nil {
		return fmt.Errorf("actor lookup: %w", err)
	}
	target, err := m.roles.Lookup(ctx, toUser)
	if err != nil {
		return fmt.Errorf("target lookup: %w", err)
	}

	switch actor.Role {
	case domain.RoleCRO:
		if target.Role != domain.RoleRiskOfficer {
			return &domain.TransitionError{Actor: byUser, Rule: "CRO may assign only to a risk_officer"}
		}
	case domain.RoleRiskOfficer:
		if target.Role == domain.RoleCRO {
			return &domain.TransitionError{Actor: byUser, Rule: "risk_officer cannot reassign to CRO"}
		}
		if target.Role == domain.RoleSupervisor {
			return &domain.TransitionError{Actor: byUser, Rule: "risk_officer cannot assign to a supervisor; supervisors receive cases via send-back"}
		}
	case domain.RoleOthers:
		return &domain.TransitionError{Actor: byUser, Rule: "departmental users may only send back to the assigning risk officer"}
	case domain.RoleSupervisor:
		return &domain.TransitionError{Actor: byUser, Rule: "supervisors approve or reject; they do not assign"}
	default:
		return &domain.TransitionError{Actor: byUser, Rule: fmt.Sprintf("unknown role %q", actor.Role)}
	}

	c, err := m.repo.GetCase(ctx, caseID)
	if err != nil {
		return err
	}
	if c.Status == domain.StatusClosed {
		return &domain.TransitionError{Actor: byUser, Rule: "a closed case cannot be assigned"}
	}

	if err := m.activate(ctx, caseID, toUser, byUser, comment, assignType); err != nil {
		return err
	}
	if c.Status == domain.StatusNew {
		if serr := m.repo.UpdateCaseStatus(ctx, caseID, domain.StatusAssigned, nil); serr != nil {
			m.logger.Error("status update failed after assignment", "caseId", caseID, "error", serr)
		}
	}
	return nil
}

// SendBack hands a case from a departmental user to their department's
// supervisor for approval. The user's pending edits are (re-)submitted:
// previously rejected rows in the department flip back to pending_approval.
func (m *Machine) SendBack(ctx context.Context, caseID, byUser, comment string) error {
	actor, err := m.roles.Lookup(ctx, byUser)
	if err != nil {
		return fmt.Errorf("actor lookup: %w", err)
	}
	if actor.Role != domain.RoleOthers {
		return &domain.TransitionError{Actor: byUser, Rule: "only departmental users send cases back for approval"}
	}
	if actor.Department == nil {
		return &domain.TransitionError{Actor: byUser, Rule: "departmental user has no department"}
	}
	dept := *actor.Department

	supervisor, err := m.repo.DepartmentSupervisor(ctx, dept)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.TransitionError{Actor: byUser, Rule: fmt.Sprintf("department %q has no supervisor", dept)}
	}
	if err != nil {
		return fmt.Errorf("supervisor lookup: %w", err)
	}

	if err := m.repo.SetDepartmentReviewState(ctx, caseID, dept, domain.ReviewRejected, domain.ReviewPending); err != nil {
		return fmt.Errorf("resubmit department edits: %w", err)
	}

	if err := m.transition(ctx, caseID, supervisor.Username, byUser, comment,
		domain.AssignManual, domain.AuditCaseSentBack, comment); err != nil {
		return err
	}
	return nil
}

// ApproveDepartment flips the department's pending edits to approved and
// returns ownership to the risk officer who originated the chain.
func (m *Machine) ApproveDepartment(ctx context.Context, caseID, bySupervisor, comment string) error {
	dept, err := m.supervisorDepartment(ctx, bySupervisor)
	if err != nil {
		return err
	}

	if err := m.repo.SetDepartmentReviewState(ctx, caseID, dept, domain.ReviewPending, domain.ReviewApproved); err != nil {
		return fmt.Errorf("approve department edits: %w", err)
	}

	officer, err := m.originatingRiskOfficer(ctx, caseID)
	if err != nil {
		return err
	}
	return m.transition(ctx, caseID, officer, bySupervisor, comment,
		domain.AssignManual, domain.AuditDeptApproved, comment)
}

// RejectDepartment flips the department's pending edits to rejected, hiding
// them from merged views, and returns ownership to the departmental user
// for revision.
func (m *Machine) RejectDepartment(ctx context.Context, caseID, bySupervisor, reason string) error {
	dept, err := m.supervisorDepartment(ctx, bySupervisor)
	if err != nil {
		return err
	}

	if err := m.repo.SetDepartmentReviewState(ctx, caseID, dept, domain.ReviewPending, domain.ReviewRejected); err != nil {
		return fmt.Errorf("reject department edits: %w", err)
	}

	deptUser, err := m.lastDepartmentUser(ctx, caseID, dept)
	if err != nil {
		return err
	}
	return m.transition(ctx, caseID, deptUser, bySupervisor, reason,
		domain.AssignManual, domain.AuditDeptRejected, reason)
}

// BulkClose closes a batch of cases best-effort, one tally entry per case.
func (m *Machine) BulkClose(ctx context.Context, caseIDs []string, payload domain.BulkClosePayload) *domain.BulkOutcome {
	outcome := &domain.BulkOutcome{Failed: map[string]string{}}
	closedAt := m.now().UTC()
	for _, caseID := range caseIDs {
		if err := m.closeOne(ctx, caseID, payload, closedAt); err != nil {
			outcome.Failed[caseID] = err.Error()
			continue
		}
		outcome.Succeeded = append(outcome.Succeeded, caseID)
	}
	return outcome
}

func (m *Machine) closeOne(ctx context.Context, caseID string, payload domain.BulkClosePayload, closedAt time.Time) error {
	if err := m.repo.UpdateCaseStatus(ctx, caseID, domain.StatusClosed, &closedAt); err != nil {
		return err
	}
	remarks := payload.Remarks
	if payload.ConfirmedMule != "" {
		remarks = fmt.Sprintf("%s (confirmed mule: %s)", remarks, payload.ConfirmedMule)
	}
	history := &domain.CaseHistoryEntry{
		ID:        uuid.New().String(),
		CaseID:    caseID,
		Remarks:   remarks,
		UpdatedBy: payload.ClosedBy,
		CreatedAt: m.now().UTC(),
	}
	if err := m.repo.AppendHistory(ctx, history); err != nil {
		m.logger.Error("closure history write failed, case stays closed",
			"caseId", caseID, "error", err)
	}
	m.audit.Record(ctx, caseID, payload.ClosedBy, domain.AuditCaseClosed, remarks)
	return nil
}

// BulkAssign assigns a batch best-effort; a failure on one item never
// aborts the rest.
func (m *Machine) BulkAssign(ctx context.Context, items []domain.BulkAssignItem, byUser string) *domain.BulkOutcome {
	outcome := &domain.BulkOutcome{Failed: map[string]string{}}
	for _, item := range items {
		if err := m.Assign(ctx, item.CaseID, item.AssignedTo, byUser, item.Comment, domain.AssignManual); err != nil {
			outcome.Failed[item.CaseID] = err.Error()
			continue
		}
		outcome.Succeeded = append(outcome.Succeeded, item.CaseID)
	}
	return outcome
}

// Reopen reverts a closed case to Open. Restricted to CRO and supervisors.
func (m *Machine) Reopen(ctx context.Context, caseID, byUser, remarks string) error {
	actor, err := m.roles.Lookup(ctx, byUser)
	if err != nil {
		return fmt.Errorf("actor lookup: %w", err)
	}
	if actor.Role != domain.RoleCRO && actor.Role != domain.RoleSupervisor {
		return &domain.TransitionError{Actor: byUser, Rule: "only CRO or a supervisor may reopen a closed case"}
	}

	c, err := m.repo.GetCase(ctx, caseID)
	if err != nil {
		return err
	}
	if c.Status != domain.StatusClosed {
		return &domain.TransitionError{Actor: byUser, Rule: "only a closed case can be reopened"}
	}

	if err := m.repo.UpdateCaseStatus(ctx, caseID, domain.StatusOpen, nil); err != nil {
		return err
	}
	m.audit.Record(ctx, caseID, byUser, domain.AuditCaseReopened, remarks)
	return nil
}

// SaveDecision appends a decision entry to the case history. The most
// recently committed entry is the current decision.
func (m *Machine) SaveDecision(ctx context.Context, caseID, remarks, actor string) error {
	if _, err := m.repo.GetCase(ctx, caseID); err != nil {
		return err
	}
	history := &domain.CaseHistoryEntry{
		ID:        uuid.New().String(),
		CaseID:    caseID,
		Remarks:   remarks,
		UpdatedBy: actor,
		CreatedAt: m.now().UTC(),
	}
	if err := m.repo.AppendHistory(ctx, history); err != nil {
		return err
	}
	m.audit.Record(ctx, caseID, actor, domain.AuditDecisionSaved, remarks)
	return nil
}

// LatestDecision returns the most recently committed history entry.
func (m *Machine) LatestDecision(ctx context.Context, caseID string) (*domain.CaseHistoryEntry, error) {
	return m.repo.LatestHistory(ctx, caseID)
}

// activate rotates the active assignment row and audits the hand-off.
func (m *Machine) activate(ctx context.Context, caseID, toUser, byUser, comment string, assignType domain.AssignmentType) error {
	return m.transition(ctx, caseID, toUser, byUser, comment, assignType,
		domain.AuditCaseAssigned, fmt.Sprintf("assigned to %s", toUser))
}

func (m *Machine) transition(ctx context.Context, caseID, toUser, byUser, comment string,
	assignType domain.AssignmentType, auditAction, auditDetails string) error {
	a := &domain.Assignment{
		ID:         uuid.New().String(),
		CaseID:     caseID,
		AssignedTo: toUser,
		AssignedBy: byUser,
		AssignedAt: m.now().UTC(),
		Comment:    comment,
		Type:       assignType,
	}
	if err := m.repo.ReassignActive(ctx, a); err != nil {
		return fmt.Errorf("reassign: %w", err)
	}
	m.audit.Record(ctx, caseID, byUser, auditAction, auditDetails)
	m.publishAssigned(ctx, a)
	return nil
}

func (m *Machine) publishAssigned(ctx context.Context, a *domain.Assignment) {
	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(a)
	if err == nil {
		err = m.bus.Publish(ctx, domain.TopicCaseAssigned, payload)
	}
	if err != nil {
		m.logger.Warn("assignment publish failed", "caseId", a.CaseID, "error", err)
	}
}

func (m *Machine) supervisorDepartment(ctx context.Context, username string) (string, error) {
	actor, err := m.roles.Lookup(ctx, username)
	if err != nil {
		return "", fmt.Errorf("actor lookup: %w", err)
	}
	if actor.Role != domain.RoleSupervisor {
		return "", &domain.TransitionError{Actor: username, Rule: "only a supervisor may approve or reject department edits"}
	}
	if actor.Department == nil {
		return "", &domain.TransitionError{Actor: username, Rule: "supervisor has no department"}
	}
	return *actor.Department, nil
}

// originatingRiskOfficer walks the assignment history newest-first for the
// last risk officer who held the case.
func (m *Machine) originatingRiskOfficer(ctx context.Context, caseID string) (string, error) {
	assignments, err := m.repo.ListAssignments(ctx, caseID)
	if err != nil {
		return "", fmt.Errorf("assignment history: %w", err)
	}
	for i := len(assignments) - 1; i >= 0; i-- {
		u, lerr := m.roles.Lookup(ctx, assignments[i].AssignedTo)
		if lerr != nil {
			continue
		}
		if u.Role == domain.RoleRiskOfficer {
			return u.Username, nil
		}
	}
	officer, err := m.repo.FirstRiskOfficer(ctx)
	if err != nil {
		return "", fmt.Errorf("no risk officer in the chain or the directory: %w", err)
	}
	return officer.Username, nil
}

// lastDepartmentUser finds the department's most recent assignee.
func (m *Machine) lastDepartmentUser(ctx context.Context, caseID, dept string) (string, error) {
	assignments, err := m.repo.ListAssignments(ctx, caseID)
	if err != nil {
		return "", fmt.Errorf("assignment history: %w", err)
	}
	for i := len(assignments) - 1; i >= 0; i-- {
		u, lerr := m.roles.Lookup(ctx, assignments[i].AssignedTo)
		if lerr != nil {
			continue
		}
		if u.Role == domain.RoleOthers && u.Department != nil && *u.Department == dept {
			return u.Username, nil
		}
	}
	return "", &domain.TransitionError{Rule: fmt.Sprintf("no departmental user of %q in the assignment history", dept)}
}
