package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/shopspring/decimal"
)

// Identity lookups. Read-only from the engine's side: the matching pipeline
// only ever probes these tables on effectively-unique keys.

// identityColumn maps a probe kind to a column name per table family.
func identityColumn(kind domain.IdentityKind) (string, error) {
	switch kind {
	case domain.IdentityAccount:
		return "account", nil
	case domain.IdentityMobile:
		return "mobile", nil
	case domain.IdentityEmail:
		return "email", nil
	case domain.IdentityPAN:
		return "pan", nil
	case domain.IdentityAadhaar:
		return "aadhaar", nil
	case domain.IdentityUPI:
		return "upi", nil
	default:
		return "", fmt.Errorf("%w: unknown identity kind %q", ErrInvalidInput, kind)
	}
}

// CustomerByAccount resolves the owning customer of an account number.
func (r *SQLRepository) CustomerByAccount(ctx context.Context, accountNumber string) (*domain.Customer, error) {
	query := `
		SELECT c.id, c.name, c.mobile, c.email, c.pan, c.aadhaar, c.upi
		FROM customers c JOIN accounts a ON a.customer_id = c.id
		WHERE a.account_number = ? LIMIT 1
	`
	return r.scanCustomer(r.db.QueryRowContext(ctx, r.rebind(query), accountNumber))
}

// CustomerByIdentity probes customers on a single identity field. If more
// than one row matches, the first row is accepted; callers tolerate that.
func (r *SQLRepository) CustomerByIdentity(ctx context.Context, kind domain.IdentityKind, value string) (*domain.Customer, error) {
	if kind == domain.IdentityAccount {
		return r.CustomerByAccount(ctx, value)
	}
	col, err := identityColumn(kind)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, name, mobile, email, pan, aadhaar, upi FROM customers WHERE ` + col + ` = ? LIMIT 1`
	return r.scanCustomer(r.db.QueryRowContext(ctx, r.rebind(query), value))
}

func (r *SQLRepository) scanCustomer(row rowScanner) (*domain.Customer, error) {
	var (
		c                                domain.Customer
		mobile, email, pan, aadhaar, upi sql.NullString
	)
	err := row.Scan(&c.ID, &c.Name, &mobile, &email, &pan, &aadhaar, &upi)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Mobile = mobile.String
	c.Email = email.String
	c.PAN = pan.String
	c.Aadhaar = aadhaar.String
	c.UPI = upi.String
	return &c, nil
}

// AccountsOfCustomer lists a customer's linked accounts.
func (r *SQLRepository) AccountsOfCustomer(ctx context.Context, customerID string) ([]*domain.AccountLink, error) {
	query := `SELECT account_number, customer_id, opened_at FROM accounts WHERE customer_id = ? ORDER BY opened_at ASC`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*domain.AccountLink
	for rows.Next() {
		var l domain.AccountLink
		if err := rows.Scan(&l.AccountNumber, &l.CustomerID, &l.OpenedAt); err != nil {
			return nil, err
		}
		links = append(links, &l)
	}
	return links, rows.Err()
}

// BeneficiariesOfAccount lists every customer who has saved the given
// account as a payee. There may be more than one.
func (r *SQLRepository) BeneficiariesOfAccount(ctx context.Context, accountNumber string) ([]*domain.BeneficiaryLink, error) {
	query := `
		SELECT customer_id, beneficiary_account, added_at
		FROM beneficiaries WHERE beneficiary_account = ? ORDER BY customer_id ASC
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*domain.BeneficiaryLink
	for rows.Next() {
		var l domain.BeneficiaryLink
		if err := rows.Scan(&l.CustomerID, &l.BeneficiaryAccount, &l.AddedAt); err != nil {
			return nil, err
		}
		links = append(links, &l)
	}
	return links, rows.Err()
}

// SuspectSources returns the source labels of suspect-list rows matching
// the identity value, empty when none match.
func (r *SQLRepository) SuspectSources(ctx context.Context, kind domain.IdentityKind, value string) ([]string, error) {
	col, err := identityColumn(kind)
	if err != nil {
		return nil, err
	}
	query := `SELECT COALESCE(source, '') FROM suspects WHERE ` + col + ` = ?`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		if s == "" {
			s = "suspects"
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// PriorComplaints returns prior cyber complaints referencing the identity
// value.
func (r *SQLRepository) PriorComplaints(ctx context.Context, kind domain.IdentityKind, value string) ([]*domain.CyberComplaint, error) {
	col := ""
	switch kind {
	case domain.IdentityAccount:
		col = "account"
	case domain.IdentityMobile:
		col = "mobile"
	case domain.IdentityEmail:
		col = "email"
	default:
		// The complaint feed carries only account/mobile/email.
		return nil, nil
	}

	query := `SELECT ack_no, account, mobile, email, reported_at FROM cyber_complaints WHERE ` + col + ` = ?`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var complaints []*domain.CyberComplaint
	for rows.Next() {
		var (
			c                     domain.CyberComplaint
			account, mobile, mail sql.NullString
		)
		if err := rows.Scan(&c.AckNo, &account, &mobile, &mail, &c.ReportedAt); err != nil {
			return nil, err
		}
		c.Account = account.String
		c.Mobile = mobile.String
		c.Email = mail.String
		complaints = append(complaints, &c)
	}
	return complaints, rows.Err()
}

// CasesReferencing lists ids of existing cases already touching an account.
func (r *SQLRepository) CasesReferencing(ctx context.Context, accountNumber string) ([]string, error) {
	query := `
		SELECT case_id FROM case_main
		WHERE account_number = ? OR beneficiary_account = ?
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountNumber, accountNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountTransfers counts ledger rows from one account to another within a
// date window. The single boolean derived from this count is what separates
// ECBT from ECBNT.
func (r *SQLRepository) CountTransfers(ctx context.Context, fromAccount, toAccount string, since, until time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM ledger
		WHERE from_account = ? AND to_account = ? AND txn_date >= ? AND txn_date < ?
	`
	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), fromAccount, toAccount, since, until).Scan(&count)
	return count, err
}

// CountCustomerTransfers counts ledger rows from any of a customer's
// accounts to the target account within a date window.
func (r *SQLRepository) CountCustomerTransfers(ctx context.Context, customerID, toAccount string, since, until time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM ledger l
		JOIN accounts a ON a.account_number = l.from_account
		WHERE a.customer_id = ? AND l.to_account = ? AND l.txn_date >= ? AND l.txn_date < ?
	`
	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), customerID, toAccount, since, until).Scan(&count)
	return count, err
}

// FindLedgerByRRN returns every ledger row carrying the RRN. Zero rows,
// one row and multiple rows are all meaningful outcomes for the ingest path.
func (r *SQLRepository) FindLedgerByRRN(ctx context.Context, rrn string) ([]*domain.LedgerEntry, error) {
	query := `SELECT id, rrn, from_account, to_account, amount, txn_date FROM ledger WHERE rrn = ?`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), rrn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		var (
			e      domain.LedgerEntry
			amount string
		)
		if err := rows.Scan(&e.ID, &e.RRN, &e.FromAccount, &e.ToAccount, &amount, &e.TxnDate); err != nil {
			return nil, err
		}
		if d, perr := decimal.NewFromString(amount); perr == nil {
			e.Amount = d
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Provisioning surface for identity tables, used by the seed tool and
// tests. Production feeds load these tables out of band.

func (r *SQLRepository) InsertCustomer(ctx context.Context, c *domain.Customer) error {
	query := `INSERT INTO customers (id, name, mobile, email, pan, aadhaar, upi) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, c.Name, c.Mobile, c.Email, c.PAN, c.Aadhaar, c.UPI)
	return err
}

func (r *SQLRepository) InsertAccountLink(ctx context.Context, l *domain.AccountLink) error {
	query := `INSERT INTO accounts (account_number, customer_id, opened_at) VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.rebind(query), l.AccountNumber, l.CustomerID, l.OpenedAt)
	return err
}

func (r *SQLRepository) InsertBeneficiaryLink(ctx context.Context, l *domain.BeneficiaryLink) error {
	query := `INSERT INTO beneficiaries (customer_id, beneficiary_account, added_at) VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.rebind(query), l.CustomerID, l.BeneficiaryAccount, l.AddedAt)
	return err
}

func (r *SQLRepository) InsertSuspect(ctx context.Context, s *domain.SuspectEntry) error {
	query := `INSERT INTO suspects (id, account, mobile, email, pan, aadhaar, upi, source) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		s.ID, s.Account, s.Mobile, s.Email, s.PAN, s.Aadhaar, s.UPI, s.Source)
	return err
}

func (r *SQLRepository) InsertCyberComplaint(ctx context.Context, c *domain.CyberComplaint) error {
	query := `INSERT INTO cyber_complaints (ack_no, account, mobile, email, reported_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.AckNo, c.Account, c.Mobile, c.Email, c.ReportedAt)
	return err
}

func (r *SQLRepository) InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger (id, rrn, from_account, to_account, amount, txn_date) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		e.ID, e.RRN, e.FromAccount, e.ToAccount, e.Amount.String(), e.TxnDate)
	return err
}
