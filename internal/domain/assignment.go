package domain

import "time"

// Role is an actor role in the assignment/approval workflow.
type Role string

const (
	RoleCRO         Role = "CRO"
	RoleRiskOfficer Role = "risk_officer"
	RoleOthers      Role = "others"
	RoleSupervisor  Role = "supervisor"
)

// UserAccount is one entry of the role/department directory. Department is
// nil for base (risk-officer side) users.
type UserAccount struct {
	Username   string  `json:"username"`
	Role       Role    `json:"role"`
	Department *string `json:"department,omitempty"`
}

// AssignmentType records how an assignment came to be.
type AssignmentType string

const (
	AssignManual   AssignmentType = "manual"
	AssignAuto     AssignmentType = "auto"
	AssignTemplate AssignmentType = "template"
)

// Assignment is one row of a case's assignment history. Exactly one row per
// case is active at any time; rows are never deleted, only deactivated.
type Assignment struct {
	ID         string         `json:"id"`
	CaseID     string         `json:"caseId"`
	AssignedTo string         `json:"assignedTo"`
	AssignedBy string         `json:"assignedBy"`
	AssignedAt time.Time      `json:"assignedAt"`
	Comment    string         `json:"comment,omitempty"`
	Active     bool           `json:"active"`
	Type       AssignmentType `json:"assignmentType"`
}

// ReviewState is the approval state of a departmental pending edit.
type ReviewState string

const (
	ReviewPending  ReviewState = "pending_approval"
	ReviewApproved ReviewState = "approved"
	ReviewRejected ReviewState = "rejected"
)

// ActionDetail is a departmental user's recorded action on a case. Rows
// with a nil Department are risk-officer-authored and always visible.
type ActionDetail struct {
	ID         string      `json:"id"`
	CaseID     string      `json:"caseId"`
	Department *string     `json:"department,omitempty"`
	State      ReviewState `json:"state"`
	Action     string      `json:"action"`
	Details    string      `json:"details,omitempty"`
	CreatedBy  string      `json:"createdBy"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// CaseDocument is an evidence document reference attached to a case. The
// engine tracks only the reference and its review state; storage is owned
// elsewhere.
type CaseDocument struct {
	ID         string      `json:"id"`
	CaseID     string      `json:"caseId"`
	Department *string     `json:"department,omitempty"`
	State      ReviewState `json:"state"`
	FileName   string      `json:"fileName"`
	FileRef    string      `json:"fileRef"`
	UploadedBy string      `json:"uploadedBy"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// TemplateResponse is a filled departmental response template on a case.
type TemplateResponse struct {
	ID         string      `json:"id"`
	CaseID     string      `json:"caseId"`
	Department *string     `json:"department,omitempty"`
	State      ReviewState `json:"state"`
	TemplateID string      `json:"templateId"`
	Response   string      `json:"response"`
	CreatedBy  string      `json:"createdBy"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// CaseFilters narrows a case listing.
type CaseFilters struct {
	Types         []CaseType   `json:"types,omitempty"`
	Statuses      []CaseStatus `json:"statuses,omitempty"`
	AccountNumber string       `json:"accountNumber,omitempty"`
	Operational   *bool        `json:"operational,omitempty"`
	From          *time.Time   `json:"from,omitempty"`
	To            *time.Time   `json:"to,omitempty"`
	Limit         int          `json:"limit,omitempty"`
	Offset        int          `json:"offset,omitempty"`
}

// CasePage is one page of a case listing.
type CasePage struct {
	Cases  []*Case `json:"cases"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}
