package repository

// Schema definitions for the Shrike database.
// Compatible with both SQLite and PostgreSQL.

const schemaCaseMain = `
CREATE TABLE IF NOT EXISTS case_main (
    case_id TEXT PRIMARY KEY,
    case_type TEXT NOT NULL,
    source_ack_no TEXT NOT NULL UNIQUE,
    customer_id TEXT,
    account_number TEXT NOT NULL,
    beneficiary_account TEXT,
    is_operational INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    closed_at TIMESTAMP,
    created_by TEXT NOT NULL,
    disputed_amount TEXT,
    location TEXT
);

CREATE INDEX IF NOT EXISTS idx_case_main_type ON case_main(case_type);
CREATE INDEX IF NOT EXISTS idx_case_main_status ON case_main(status);
CREATE INDEX IF NOT EXISTS idx_case_main_account ON case_main(account_number);
`

const schemaCaseHistory = `
CREATE TABLE IF NOT EXISTS case_history (
    id TEXT PRIMARY KEY,
    case_id TEXT NOT NULL,
    remarks TEXT NOT NULL,
    updated_by TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_case_history_case ON case_history(case_id, created_at);
`

const schemaCaseDetail = `
CREATE TABLE IF NOT EXISTS case_detail (
    case_id TEXT PRIMARY KEY,
    matched_on TEXT NOT NULL,
    matched_value TEXT NOT NULL,
    match_sources TEXT NOT NULL,
    customer_id TEXT,
    account_number TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`

const schemaRawComplaints = `
CREATE TABLE IF NOT EXISTS raw_complaints (
    ack_no TEXT PRIMARY KEY,
    account_number TEXT NOT NULL,
    to_account TEXT,
    matched INTEGER NOT NULL DEFAULT 0,
    received_at TIMESTAMP NOT NULL,
    created_by TEXT NOT NULL
);
`

const schemaAssignment = `
CREATE TABLE IF NOT EXISTS assignment (
    id TEXT PRIMARY KEY,
    case_id TEXT NOT NULL,
    assigned_to TEXT NOT NULL,
    assigned_by TEXT NOT NULL,
    assigned_at TIMESTAMP NOT NULL,
    comment TEXT,
    is_active INTEGER NOT NULL DEFAULT 1,
    assignment_type TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assignment_case ON assignment(case_id);
CREATE INDEX IF NOT EXISTS idx_assignment_active ON assignment(case_id, is_active);
CREATE INDEX IF NOT EXISTS idx_assignment_assignee ON assignment(assigned_to, is_active);
`

const schemaPendingEdits = `
CREATE TABLE IF NOT EXISTS case_action_details (
    id TEXT PRIMARY KEY,
    case_id TEXT NOT NULL,
    department TEXT,
    state TEXT NOT NULL,
    action TEXT NOT NULL,
    details TEXT,
    created_by TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_action_details_case ON case_action_details(case_id);
CREATE INDEX IF NOT EXISTS idx_action_details_state ON case_action_details(case_id, department, state);

CREATE TABLE IF NOT EXISTS case_documents (
    id TEXT PRIMARY KEY,
    case_id TEXT NOT NULL,
    department TEXT,
    state TEXT NOT NULL,
    file_name TEXT NOT NULL,
    file_ref TEXT NOT NULL,
    uploaded_by TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_case ON case_documents(case_id);

CREATE TABLE IF NOT EXISTS template_responses (
    id TEXT PRIMARY KEY,
    case_id TEXT NOT NULL,
    department TEXT,
    state TEXT NOT NULL,
    template_id TEXT NOT NULL,
    response TEXT NOT NULL,
    created_by TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_template_responses_case ON template_responses(case_id);
`

const schemaAuditLog = `
CREATE TABLE IF NOT EXISTS audit_log (
    id TEXT PRIMARY KEY,
    case_id TEXT NOT NULL,
    actor TEXT NOT NULL,
    action TEXT NOT NULL,
    details TEXT,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_case ON audit_log(case_id, timestamp);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    username TEXT PRIMARY KEY,
    role TEXT NOT NULL,
    department TEXT
);

CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
`

// Identity tables are read-mostly from the engine's side; rows are loaded
// by upstream feeds or the seed tool.
const schemaIdentity = `
CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    mobile TEXT,
    email TEXT,
    pan TEXT,
    aadhaar TEXT,
    upi TEXT
);

CREATE INDEX IF NOT EXISTS idx_customers_mobile ON customers(mobile);

CREATE TABLE IF NOT EXISTS accounts (
    account_number TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    opened_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accounts_customer ON accounts(customer_id);

CREATE TABLE IF NOT EXISTS beneficiaries (
    customer_id TEXT NOT NULL,
    beneficiary_account TEXT NOT NULL,
    added_at TIMESTAMP NOT NULL,
    PRIMARY KEY (customer_id, beneficiary_account)
);

CREATE INDEX IF NOT EXISTS idx_beneficiaries_account ON beneficiaries(beneficiary_account);

CREATE TABLE IF NOT EXISTS suspects (
    id TEXT PRIMARY KEY,
    account TEXT,
    mobile TEXT,
    email TEXT,
    pan TEXT,
    aadhaar TEXT,
    upi TEXT,
    source TEXT
);

CREATE INDEX IF NOT EXISTS idx_suspects_account ON suspects(account);
CREATE INDEX IF NOT EXISTS idx_suspects_mobile ON suspects(mobile);

CREATE TABLE IF NOT EXISTS cyber_complaints (
    ack_no TEXT PRIMARY KEY,
    account TEXT,
    mobile TEXT,
    email TEXT,
    reported_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cyber_complaints_account ON cyber_complaints(account);
`

const schemaLedger = `
CREATE TABLE IF NOT EXISTS ledger (
    id TEXT PRIMARY KEY,
    rrn TEXT NOT NULL,
    from_account TEXT NOT NULL,
    to_account TEXT NOT NULL,
    amount TEXT NOT NULL,
    txn_date TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_rrn ON ledger(rrn);
CREATE INDEX IF NOT EXISTS idx_ledger_pair ON ledger(from_account, to_account, txn_date);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCaseMain,
		schemaCaseHistory,
		schemaCaseDetail,
		schemaRawComplaints,
		schemaAssignment,
		schemaPendingEdits,
		schemaAuditLog,
		schemaUsers,
		schemaIdentity,
		schemaLedger,
	}
}
