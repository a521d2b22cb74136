// Package domain defines the core types and interfaces of Shrike.
package domain

import (
	"context"
	"time"
)

// Repository is the persistence surface the engine owns: cases, history,
// assignments, pending edits, audit and the user directory.
type Repository interface {
	// Case store. CreateCase returns a *DuplicateError when the
	// source_ack_no has already been processed.
	CreateCase(ctx context.Context, c *Case) error
	GetCase(ctx context.Context, caseID string) (*Case, error)
	GetCaseByAckNo(ctx context.Context, sourceAckNo string) (*Case, error)
	ListCases(ctx context.Context, f CaseFilters) (*CasePage, error)
	ListCasesAssignedTo(ctx context.Context, username string, f CaseFilters) (*CasePage, error)
	UpdateCaseStatus(ctx context.Context, caseID string, status CaseStatus, closedAt *time.Time) error

	// History is append-only; the latest entry is the current decision.
	AppendHistory(ctx context.Context, e *CaseHistoryEntry) error
	ListHistory(ctx context.Context, caseID string) ([]*CaseHistoryEntry, error)
	LatestHistory(ctx context.Context, caseID string) (*CaseHistoryEntry, error)

	SaveCaseDetail(ctx context.Context, d *CaseDetail) error
	GetCaseDetail(ctx context.Context, caseID string) (*CaseDetail, error)

	SaveRawComplaint(ctx context.Context, r *RawComplaint) error

	// Assignments. ReassignActive atomically deactivates the current row
	// and inserts the new one under a row lock on the case.
	ActiveAssignment(ctx context.Context, caseID string) (*Assignment, error)
	ListAssignments(ctx context.Context, caseID string) ([]*Assignment, error)
	ReassignActive(ctx context.Context, a *Assignment) error

	// Departmental pending edits.
	SaveActionDetail(ctx context.Context, d *ActionDetail) error
	SaveCaseDocument(ctx context.Context, d *CaseDocument) error
	SaveTemplateResponse(ctx context.Context, t *TemplateResponse) error
	SetDepartmentReviewState(ctx context.Context, caseID, department string, from, to ReviewState) error
	ListActionDetails(ctx context.Context, caseID string, viewerDept *string) ([]*ActionDetail, error)
	ListCaseDocuments(ctx context.Context, caseID string, viewerDept *string) ([]*CaseDocument, error)
	ListTemplateResponses(ctx context.Context, caseID string, viewerDept *string) ([]*TemplateResponse, error)

	// Role/department directory.
	GetUser(ctx context.Context, username string) (*UserAccount, error)
	FirstRiskOfficer(ctx context.Context) (*UserAccount, error)
	DepartmentSupervisor(ctx context.Context, department string) (*UserAccount, error)

	// Audit stream.
	AppendAudit(ctx context.Context, e *AuditEntry) error
	ListAudit(ctx context.Context, caseID string) ([]*AuditEntry, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// IdentityDirectory is the read-only surface over identity tables and the
// transaction ledger. The engine never mutates these.
type IdentityDirectory interface {
	CustomerByAccount(ctx context.Context, accountNumber string) (*Customer, error)
	CustomerByIdentity(ctx context.Context, kind IdentityKind, value string) (*Customer, error)
	AccountsOfCustomer(ctx context.Context, customerID string) ([]*AccountLink, error)

	// BeneficiariesOfAccount lists every customer who has saved the given
	// account as a payee.
	BeneficiariesOfAccount(ctx context.Context, accountNumber string) ([]*BeneficiaryLink, error)

	SuspectSources(ctx context.Context, kind IdentityKind, value string) ([]string, error)
	PriorComplaints(ctx context.Context, kind IdentityKind, value string) ([]*CyberComplaint, error)
	CasesReferencing(ctx context.Context, accountNumber string) ([]string, error)

	// Ledger probes backing the Transaction Oracle.
	CountTransfers(ctx context.Context, fromAccount, toAccount string, since, until time.Time) (int64, error)
	CountCustomerTransfers(ctx context.Context, customerID, toAccount string, since, until time.Time) (int64, error)
	FindLedgerByRRN(ctx context.Context, rrn string) ([]*LedgerEntry, error)
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// StatementTimeout bounds the row-locking hand-off transaction under
	// contention. Applied as SET LOCAL statement_timeout on postgres.
	StatementTimeout time.Duration
}
