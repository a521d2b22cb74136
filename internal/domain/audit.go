package domain

import "time"

// AuditEntry is one tuple of the append-only audit stream. Every
// state-changing operation writes exactly one entry; audit write failures
// are logged and never surfaced to the caller.
type AuditEntry struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"caseId"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Audit action names shared across components.
const (
	AuditCaseCreated   = "case_created"
	AuditCaseAssigned  = "case_assigned"
	AuditCaseSentBack  = "case_sent_back"
	AuditDeptApproved  = "department_approved"
	AuditDeptRejected  = "department_rejected"
	AuditCaseClosed    = "case_closed"
	AuditCaseReopened  = "case_reopened"
	AuditDecisionSaved = "decision_saved"
)
