package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opensource-finance/shrike/internal/domain"
)

// ActiveAssignment returns the single active assignment row for a case.
func (r *SQLRepository) ActiveAssignment(ctx context.Context, caseID string) (*domain.Assignment, error) {
	query := `
		SELECT id, case_id, assigned_to, assigned_by, assigned_at, comment, is_active, assignment_type
		FROM assignment WHERE case_id = ? AND is_active = 1
	`
	return r.scanAssignment(r.db.QueryRowContext(ctx, r.rebind(query), caseID))
}

// ListAssignments returns a case's full assignment history, oldest first.
// Rows are never deleted, so the history stays queryable.
func (r *SQLRepository) ListAssignments(ctx context.Context, caseID string) ([]*domain.Assignment, error) {
	query := `
		SELECT id, case_id, assigned_to, assigned_by, assigned_at, comment, is_active, assignment_type
		FROM assignment WHERE case_id = ? ORDER BY assigned_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []*domain.Assignment
	for rows.Next() {
		a, scanErr := r.scanAssignment(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func (r *SQLRepository) scanAssignment(row rowScanner) (*domain.Assignment, error) {
	var (
		a       domain.Assignment
		comment sql.NullString
		active  int
		atype   string
	)
	err := row.Scan(&a.ID, &a.CaseID, &a.AssignedTo, &a.AssignedBy,
		&a.AssignedAt, &comment, &active, &atype)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Comment = comment.String
	a.Active = active != 0
	a.Type = domain.AssignmentType(atype)
	return &a, nil
}

// ReassignActive deactivates the current assignment row and inserts the new
// one in a single transaction, under a row lock on the case so two
// simultaneous hand-offs cannot race. Prior rows are toggled, never deleted.
func (r *SQLRepository) ReassignActive(ctx context.Context, a *domain.Assignment) error {
	if a.CaseID == "" || a.AssignedTo == "" {
		return fmt.Errorf("%w: case id and assignee are required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if r.driver == "postgres" && r.stmtTimeout > 0 {
		timeout := fmt.Sprintf(`SET LOCAL statement_timeout = %d`, r.stmtTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, timeout); err != nil {
			return err
		}
	}

	// Row-lock equivalent: postgres takes FOR UPDATE; the sqlite write
	// transaction itself serializes writers.
	lock := `SELECT case_id FROM case_main WHERE case_id = ?`
	if r.driver == "postgres" {
		lock += ` FOR UPDATE`
	}
	var locked string
	if err := tx.QueryRowContext(ctx, r.rebind(lock), a.CaseID).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	deactivate := `UPDATE assignment SET is_active = 0 WHERE case_id = ? AND is_active = 1`
	if _, err := tx.ExecContext(ctx, r.rebind(deactivate), a.CaseID); err != nil {
		return err
	}

	insert := `
		INSERT INTO assignment (id, case_id, assigned_to, assigned_by, assigned_at, comment, is_active, assignment_type)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
	`
	if _, err := tx.ExecContext(ctx, r.rebind(insert),
		a.ID, a.CaseID, a.AssignedTo, a.AssignedBy, a.AssignedAt,
		a.Comment, string(a.Type)); err != nil {
		return err
	}

	return tx.Commit()
}

// SaveActionDetail stores one departmental action record.
func (r *SQLRepository) SaveActionDetail(ctx context.Context, d *domain.ActionDetail) error {
	query := `
		INSERT INTO case_action_details (id, case_id, department, state, action, details, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.ID, d.CaseID, d.Department, string(d.State), d.Action, d.Details,
		d.CreatedBy, d.CreatedAt)
	return err
}

// SaveCaseDocument stores one evidence document reference.
func (r *SQLRepository) SaveCaseDocument(ctx context.Context, d *domain.CaseDocument) error {
	query := `
		INSERT INTO case_documents (id, case_id, department, state, file_name, file_ref, uploaded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.ID, d.CaseID, d.Department, string(d.State), d.FileName, d.FileRef,
		d.UploadedBy, d.CreatedAt)
	return err
}

// SaveTemplateResponse stores one filled response template.
func (r *SQLRepository) SaveTemplateResponse(ctx context.Context, t *domain.TemplateResponse) error {
	query := `
		INSERT INTO template_responses (id, case_id, department, state, template_id, response, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		t.ID, t.CaseID, t.Department, string(t.State), t.TemplateID, t.Response,
		t.CreatedBy, t.CreatedAt)
	return err
}

// SetDepartmentReviewState flips every pending edit of one department on one
// case from one review state to another, across all three edit tables.
// Edits of other departments are untouched.
func (r *SQLRepository) SetDepartmentReviewState(ctx context.Context, caseID, department string, from, to domain.ReviewState) error {
	if department == "" {
		return fmt.Errorf("%w: department is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"case_action_details", "case_documents", "template_responses"} {
		query := `UPDATE ` + table + ` SET state = ? WHERE case_id = ? AND department = ? AND state = ?`
		if _, err := tx.ExecContext(ctx, r.rebind(query),
			string(to), caseID, department, string(from)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// mergedVisibility builds the WHERE tail of the merged pending-edit views:
// base rows (NULL department) are always visible, approved rows are visible
// to everyone, and a department sees its own pending rows. Rejected rows are
// hidden from merged views.
func mergedVisibility(viewerDept *string) (string, []any) {
	if viewerDept == nil {
		return ` AND (department IS NULL OR state = ?)`, []any{string(domain.ReviewApproved)}
	}
	return ` AND (department IS NULL OR state = ? OR (department = ? AND state = ?))`,
		[]any{string(domain.ReviewApproved), *viewerDept, string(domain.ReviewPending)}
}

// ListActionDetails returns the merged action-detail view for a viewer.
func (r *SQLRepository) ListActionDetails(ctx context.Context, caseID string, viewerDept *string) ([]*domain.ActionDetail, error) {
	tail, extra := mergedVisibility(viewerDept)
	query := `
		SELECT id, case_id, department, state, action, details, created_by, created_at
		FROM case_action_details WHERE case_id = ?` + tail + ` ORDER BY created_at ASC, id ASC`

	args := append([]any{caseID}, extra...)
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []*domain.ActionDetail
	for rows.Next() {
		var (
			d       domain.ActionDetail
			state   string
			detail  sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.CaseID, &d.Department, &state, &d.Action,
			&detail, &d.CreatedBy, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.State = domain.ReviewState(state)
		d.Details = detail.String
		details = append(details, &d)
	}
	return details, rows.Err()
}

// ListCaseDocuments returns the merged document view for a viewer.
func (r *SQLRepository) ListCaseDocuments(ctx context.Context, caseID string, viewerDept *string) ([]*domain.CaseDocument, error) {
	tail, extra := mergedVisibility(viewerDept)
	query := `
		SELECT id, case_id, department, state, file_name, file_ref, uploaded_by, created_at
		FROM case_documents WHERE case_id = ?` + tail + ` ORDER BY created_at ASC, id ASC`

	args := append([]any{caseID}, extra...)
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.CaseDocument
	for rows.Next() {
		var (
			d     domain.CaseDocument
			state string
		)
		if err := rows.Scan(&d.ID, &d.CaseID, &d.Department, &state, &d.FileName,
			&d.FileRef, &d.UploadedBy, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.State = domain.ReviewState(state)
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

// ListTemplateResponses returns the merged template-response view for a viewer.
func (r *SQLRepository) ListTemplateResponses(ctx context.Context, caseID string, viewerDept *string) ([]*domain.TemplateResponse, error) {
	tail, extra := mergedVisibility(viewerDept)
	query := `
		SELECT id, case_id, department, state, template_id, response, created_by, created_at
		FROM template_responses WHERE case_id = ?` + tail + ` ORDER BY created_at ASC, id ASC`

	args := append([]any{caseID}, extra...)
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []*domain.TemplateResponse
	for rows.Next() {
		var (
			t     domain.TemplateResponse
			state string
		)
		if err := rows.Scan(&t.ID, &t.CaseID, &t.Department, &state, &t.TemplateID,
			&t.Response, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.State = domain.ReviewState(state)
		responses = append(responses, &t)
	}
	return responses, rows.Err()
}

// GetUser looks up one entry of the role/department directory.
func (r *SQLRepository) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	query := `SELECT username, role, department FROM users WHERE username = ?`
	var (
		u    domain.UserAccount
		role string
	)
	err := r.db.QueryRowContext(ctx, r.rebind(query), username).Scan(&u.Username, &role, &u.Department)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

// FirstRiskOfficer returns the alphabetically-first risk officer, the
// default-assignment general-queue policy. No load balancing.
func (r *SQLRepository) FirstRiskOfficer(ctx context.Context) (*domain.UserAccount, error) {
	query := `SELECT username, role, department FROM users WHERE role = ? ORDER BY username ASC LIMIT 1`
	var (
		u    domain.UserAccount
		role string
	)
	err := r.db.QueryRowContext(ctx, r.rebind(query), string(domain.RoleRiskOfficer)).Scan(&u.Username, &role, &u.Department)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

// DepartmentSupervisor returns the supervisor for a department.
func (r *SQLRepository) DepartmentSupervisor(ctx context.Context, department string) (*domain.UserAccount, error) {
	query := `SELECT username, role, department FROM users WHERE role = ? AND department = ? ORDER BY username ASC LIMIT 1`
	var (
		u    domain.UserAccount
		role string
	)
	err := r.db.QueryRowContext(ctx, r.rebind(query),
		string(domain.RoleSupervisor), department).Scan(&u.Username, &role, &u.Department)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

// UpsertUser provisions one directory entry. Used by tests and the seed tool.
func (r *SQLRepository) UpsertUser(ctx context.Context, u *domain.UserAccount) error {
	del := `DELETE FROM users WHERE username = ?`
	if _, err := r.db.ExecContext(ctx, r.rebind(del), u.Username); err != nil {
		return err
	}
	query := `INSERT INTO users (username, role, department) VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.rebind(query), u.Username, string(u.Role), u.Department)
	return err
}

// AppendAudit appends one entry to the audit stream.
func (r *SQLRepository) AppendAudit(ctx context.Context, e *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_log (id, case_id, actor, action, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		e.ID, e.CaseID, e.Actor, e.Action, e.Details, e.Timestamp)
	return err
}

// ListAudit returns a case's audit trail, oldest first.
func (r *SQLRepository) ListAudit(ctx context.Context, caseID string) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, case_id, actor, action, details, timestamp
		FROM audit_log WHERE case_id = ? ORDER BY timestamp ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var (
			e       domain.AuditEntry
			details sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.CaseID, &e.Actor, &e.Action, &details, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Details = details.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
