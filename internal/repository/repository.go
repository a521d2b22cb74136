// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
)

// SQLRepository implements domain.Repository and domain.IdentityDirectory
// using database/sql. Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string

	stmtTimeout time.Duration
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:          db,
		driver:      cfg.Driver,
		stmtTimeout: cfg.StatementTimeout,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// CreateCase inserts one case row. A source_ack_no collision returns a
// *domain.DuplicateError carrying the existing case id so retries stay
// idempotent for pipeline callers.
func (r *SQLRepository) CreateCase(ctx context.Context, c *domain.Case) error {
	if c.ID == "" || c.SourceAckNo == "" {
		return fmt.Errorf("%w: case id and source ack no are required", ErrInvalidInput)
	}

	var disputed sql.NullString
	if c.DisputedAmount.Valid {
		disputed = sql.NullString{String: c.DisputedAmount.Decimal.String(), Valid: true}
	}

	query := `
		INSERT INTO case_main (
			case_id, case_type, source_ack_no, customer_id, account_number,
			beneficiary_account, is_operational, status, created_at,
			closed_at, created_by, disputed_amount, location
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, string(c.Type), c.SourceAckNo, c.CustomerID, c.AccountNumber,
		c.BeneficiaryAccount, boolToInt(c.Operational), string(c.Status),
		c.CreatedAt, c.ClosedAt, c.CreatedBy, disputed, c.Location,
	)
	if err != nil && isUniqueViolation(err) {
		existing, lookupErr := r.GetCaseByAckNo(ctx, c.SourceAckNo)
		dup := &domain.DuplicateError{SourceAckNo: c.SourceAckNo}
		if lookupErr == nil {
			dup.ExistingID = existing.ID
		}
		return dup
	}
	return err
}

const caseColumns = `case_id, case_type, source_ack_no, customer_id, account_number,
		beneficiary_account, is_operational, status, created_at,
		closed_at, created_by, disputed_amount, location`

// GetCase retrieves a case by its surrogate id.
func (r *SQLRepository) GetCase(ctx context.Context, caseID string) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM case_main WHERE case_id = ?`
	return r.scanCase(r.db.QueryRowContext(ctx, r.rebind(query), caseID))
}

// GetCaseByAckNo retrieves a case by its unique source acknowledgement number.
func (r *SQLRepository) GetCaseByAckNo(ctx context.Context, sourceAckNo string) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM case_main WHERE source_ack_no = ?`
	return r.scanCase(r.db.QueryRowContext(ctx, r.rebind(query), sourceAckNo))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanCase(row rowScanner) (*domain.Case, error) {
	var (
		c           domain.Case
		caseType    string
		status      string
		operational int
		disputed    sql.NullString
		closedAt    sql.NullTime
	)

	err := row.Scan(
		&c.ID, &caseType, &c.SourceAckNo, &c.CustomerID, &c.AccountNumber,
		&c.BeneficiaryAccount, &operational, &status, &c.CreatedAt,
		&closedAt, &c.CreatedBy, &disputed, &c.Location,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.Type = domain.CaseType(caseType)
	c.Status = domain.CaseStatus(status)
	c.Operational = operational != 0
	if closedAt.Valid {
		t := closedAt.Time
		c.ClosedAt = &t
	}
	if disputed.Valid {
		d, perr := decimal.NewFromString(disputed.String)
		if perr == nil {
			c.DisputedAmount = decimal.NullDecimal{Decimal: d, Valid: true}
		}
	}

	return &c, nil
}

// ListCases returns a filtered page of cases ordered newest first.
func (r *SQLRepository) ListCases(ctx context.Context, f domain.CaseFilters) (*domain.CasePage, error) {
	where, args := buildCaseFilter(f)
	return r.queryCasePage(ctx, where, "", args, f)
}

// ListCasesAssignedTo returns the page of cases whose active assignment
// belongs to the given user.
func (r *SQLRepository) ListCasesAssignedTo(ctx context.Context, username string, f domain.CaseFilters) (*domain.CasePage, error) {
	where, args := buildCaseFilter(f)
	join := ` JOIN assignment a ON a.case_id = case_main.case_id AND a.is_active = 1 AND a.assigned_to = ?`
	args = append(args, username)
	return r.queryCasePage(ctx, where, join, args, f)
}

func buildCaseFilter(f domain.CaseFilters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if len(f.Types) > 0 {
		placeholders := make([]string, len(f.Types))
		for i, t := range f.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		conds = append(conds, "case_main.case_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		conds = append(conds, "case_main.status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.AccountNumber != "" {
		conds = append(conds, "case_main.account_number = ?")
		args = append(args, f.AccountNumber)
	}
	if f.Operational != nil {
		conds = append(conds, "case_main.is_operational = ?")
		args = append(args, boolToInt(*f.Operational))
	}
	if f.From != nil {
		conds = append(conds, "case_main.created_at >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		conds = append(conds, "case_main.created_at < ?")
		args = append(args, *f.To)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *SQLRepository) queryCasePage(ctx context.Context, where, join string, args []any, f domain.CaseFilters) (*domain.CasePage, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	countQuery := `SELECT COUNT(*) FROM case_main` + join + where
	var total int
	if err := r.db.QueryRowContext(ctx, r.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, err
	}

	query := `SELECT ` + qualifyColumns(caseColumns) + ` FROM case_main` + join + where +
		` ORDER BY case_main.created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*domain.Case
	for rows.Next() {
		c, scanErr := r.scanCase(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &domain.CasePage{Cases: cases, Total: total, Limit: limit, Offset: offset}, nil
}

func qualifyColumns(cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = "case_main." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// UpdateCaseStatus mutates a case's lifecycle state. Only the workflow and
// explicit decision-save operations call this.
func (r *SQLRepository) UpdateCaseStatus(ctx context.Context, caseID string, status domain.CaseStatus, closedAt *time.Time) error {
	query := `UPDATE case_main SET status = ?, closed_at = ? WHERE case_id = ?`
	res, err := r.db.ExecContext(ctx, r.rebind(query), string(status), closedAt, caseID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendHistory appends one entry to a case's decision trail.
func (r *SQLRepository) AppendHistory(ctx context.Context, e *domain.CaseHistoryEntry) error {
	if e.CaseID == "" {
		return fmt.Errorf("%w: case id is required", ErrInvalidInput)
	}
	query := `
		INSERT INTO case_history (id, case_id, remarks, updated_by, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		e.ID, e.CaseID, e.Remarks, e.UpdatedBy, e.CreatedAt)
	return err
}

// ListHistory returns a case's history oldest first.
func (r *SQLRepository) ListHistory(ctx context.Context, caseID string) ([]*domain.CaseHistoryEntry, error) {
	query := `
		SELECT id, case_id, remarks, updated_by, created_at
		FROM case_history WHERE case_id = ? ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.CaseHistoryEntry
	for rows.Next() {
		var e domain.CaseHistoryEntry
		if err := rows.Scan(&e.ID, &e.CaseID, &e.Remarks, &e.UpdatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// LatestHistory returns the most recently committed history entry, which
// is the current decision.
func (r *SQLRepository) LatestHistory(ctx context.Context, caseID string) (*domain.CaseHistoryEntry, error) {
	query := `
		SELECT id, case_id, remarks, updated_by, created_at
		FROM case_history WHERE case_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1
	`
	var e domain.CaseHistoryEntry
	err := r.db.QueryRowContext(ctx, r.rebind(query), caseID).Scan(
		&e.ID, &e.CaseID, &e.Remarks, &e.UpdatedBy, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// SaveCaseDetail stores the auxiliary match detail for a case.
func (r *SQLRepository) SaveCaseDetail(ctx context.Context, d *domain.CaseDetail) error {
	sources, _ := json.Marshal(d.MatchSources)
	query := `
		INSERT INTO case_detail (case_id, matched_on, matched_value, match_sources,
			customer_id, account_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.CaseID, string(d.MatchedOn), d.MatchedValue, string(sources),
		d.CustomerID, d.AccountNumber, d.CreatedAt)
	return err
}

// GetCaseDetail retrieves the auxiliary match detail for a case.
func (r *SQLRepository) GetCaseDetail(ctx context.Context, caseID string) (*domain.CaseDetail, error) {
	query := `
		SELECT case_id, matched_on, matched_value, match_sources,
			customer_id, account_number, created_at
		FROM case_detail WHERE case_id = ?
	`
	var (
		d       domain.CaseDetail
		kind    string
		sources string
	)
	err := r.db.QueryRowContext(ctx, r.rebind(query), caseID).Scan(
		&d.CaseID, &kind, &d.MatchedValue, &sources,
		&d.CustomerID, &d.AccountNumber, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.MatchedOn = domain.IdentityKind(kind)
	if sources != "" {
		json.Unmarshal([]byte(sources), &d.MatchSources)
	}
	return &d, nil
}

// SaveRawComplaint records an incoming record for downstream batch
// reconciliation, matched or not. Re-saving the same ack is a no-op.
func (r *SQLRepository) SaveRawComplaint(ctx context.Context, raw *domain.RawComplaint) error {
	query := `
		INSERT INTO raw_complaints (ack_no, account_number, to_account, matched, received_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		raw.AckNo, raw.AccountNumber, raw.ToAccount, boolToInt(raw.Matched),
		raw.ReceivedAt, raw.CreatedBy)
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	return err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation detects unique-constraint errors from both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // modernc sqlite
		strings.Contains(msg, "duplicate key value") // lib/pq 23505
}
