package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ManualComplaint is one normalized fraud-complaint record captured by data
// entry. Numeric fields are kept as strings until validation so that every
// offending field can be reported in a single aggregated error.
type ManualComplaint struct {
	AckNo           string `json:"ackNo"`
	AccountNumber   string `json:"accountNumber"`
	ToAccount       string `json:"toAccount"`
	CardNumber      string `json:"cardNumber,omitempty"`
	TransactionDate string `json:"transactionDate,omitempty"`
	DisputedAmount  string `json:"disputedAmount,omitempty"`
	Location        string `json:"location,omitempty"`
	SubCategory     string `json:"subCategory,omitempty"`
	CreatedBy       string `json:"createdBy"`
}

// RawComplaint is the record persisted for downstream batch reconciliation
// even when no identity matched and no case was created.
type RawComplaint struct {
	AckNo         string    `json:"ackNo"`
	AccountNumber string    `json:"accountNumber"`
	ToAccount     string    `json:"toAccount"`
	Matched       bool      `json:"matched"`
	ReceivedAt    time.Time `json:"receivedAt"`
	CreatedBy     string    `json:"createdBy"`
}

// CreatedCase summarizes one case produced by a pipeline run.
type CreatedCase struct {
	CaseID      string   `json:"caseId"`
	Type        CaseType `json:"caseType"`
	SourceAckNo string   `json:"sourceAckNo"`

	// Created is false when the ack number had already been processed and
	// the existing case was returned instead.
	Created bool `json:"created"`
}

// MatchResult is the outcome of the manual-entry pipeline. A no-match run
// is a successful result with IsMatch=false, distinct from an error.
type MatchResult struct {
	AckNo   string        `json:"ackNo"`
	IsMatch bool          `json:"isMatch"`
	Cases   []CreatedCase `json:"cases,omitempty"`

	// Partial lists steps that failed after earlier cases had committed.
	Partial []string `json:"partial,omitempty"`
}

// IngestEnvelope is a bank-reported batch of fraud incidents sharing one
// payer account.
type IngestEnvelope struct {
	AckNo        string     `json:"ackNo"`
	BankCode     string     `json:"bankCode,omitempty"`
	PayerAccount string     `json:"payerAccount"`
	Incidents    []Incident `json:"incidents"`
	ReceivedBy   string     `json:"receivedBy"`
}

// Incident is one reported transaction within an ingest envelope.
type Incident struct {
	RRN     string              `json:"rrn"`
	Amount  decimal.NullDecimal `json:"amount,omitempty"`
	TxnDate string              `json:"txnDate,omitempty"`
}

// IncidentStatus is the per-incident outcome code of the ingest path.
type IncidentStatus string

const (
	IncidentMatched       IncidentStatus = "matched"
	IncidentDuplicate     IncidentStatus = "duplicate"
	IncidentInvalidFormat IncidentStatus = "invalid_format"
	IncidentInvalidRange  IncidentStatus = "invalid_range"
	IncidentNotFound      IncidentStatus = "not_found"
	IncidentMultipleMatch IncidentStatus = "multiple_match"
)

// IncidentResult reports the outcome for a single incident.
type IncidentResult struct {
	RRN     string         `json:"rrn"`
	Status  IncidentStatus `json:"status"`
	Message string         `json:"message,omitempty"`
}

// IngestResult is the outcome of the bank-ingest pipeline.
type IngestResult struct {
	AckNo string `json:"ackNo"`

	// NoMatchingAccount is true when the payer account resolved to no
	// customer; the whole request was aborted without case creation.
	NoMatchingAccount bool `json:"noMatchingAccount,omitempty"`

	Incidents []IncidentResult `json:"incidents,omitempty"`
	Cases     []CreatedCase    `json:"cases,omitempty"`
	Partial   []string         `json:"partial,omitempty"`
}

// NewAccountEntry is one newly opened account reported for screening.
type NewAccountEntry struct {
	CustomerID    string `json:"customerId"`
	AccountNumber string `json:"accountNumber"`
}

// ScreeningResult is the outcome of a screening intake batch (new accounts
// or telecom reverification mobiles).
type ScreeningResult struct {
	Cases []CreatedCase `json:"cases,omitempty"`

	// Partial lists entries that failed after earlier cases had committed.
	Partial []string `json:"partial,omitempty"`
}

// BulkClosePayload carries the shared closure fields of a bulk-close call.
type BulkClosePayload struct {
	Remarks       string `json:"remarks"`
	ConfirmedMule string `json:"confirmedMule,omitempty"`
	ClosedBy      string `json:"closedBy"`
}

// BulkAssignItem is one entry of a bulk-assign call.
type BulkAssignItem struct {
	CaseID     string `json:"caseId"`
	AssignedTo string `json:"assignedTo"`
	Comment    string `json:"comment,omitempty"`
}

// BulkOutcome is the per-item tally returned by bulk operations.
type BulkOutcome struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}
