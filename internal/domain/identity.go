package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// IdentityKind names the identity field a probe or match was made on.
type IdentityKind string

const (
	IdentityAccount IdentityKind = "account"
	IdentityMobile  IdentityKind = "mobile"
	IdentityEmail   IdentityKind = "email"
	IdentityPAN     IdentityKind = "pan"
	IdentityAadhaar IdentityKind = "aadhaar"
	IdentityUPI     IdentityKind = "upi"
)

// Customer is a known bank customer. Read-only from the engine's side.
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Mobile  string `json:"mobile,omitempty"`
	Email   string `json:"email,omitempty"`
	PAN     string `json:"pan,omitempty"`
	Aadhaar string `json:"aadhaar,omitempty"`
	UPI     string `json:"upi,omitempty"`
}

// AccountLink ties an account number to its owning customer.
type AccountLink struct {
	AccountNumber string    `json:"accountNumber"`
	CustomerID    string    `json:"customerId"`
	OpenedAt      time.Time `json:"openedAt"`
}

// BeneficiaryLink records that a customer has saved an external account as
// a payee. Multiple customers may have saved the same account.
type BeneficiaryLink struct {
	CustomerID         string    `json:"customerId"`
	BeneficiaryAccount string    `json:"beneficiaryAccount"`
	AddedAt            time.Time `json:"addedAt"`
}

// SuspectEntry is one row of the suspect watch list. Any populated identity
// field is probe-able.
type SuspectEntry struct {
	ID      string `json:"id"`
	Account string `json:"account,omitempty"`
	Mobile  string `json:"mobile,omitempty"`
	Email   string `json:"email,omitempty"`
	PAN     string `json:"pan,omitempty"`
	Aadhaar string `json:"aadhaar,omitempty"`
	UPI     string `json:"upi,omitempty"`
	Source  string `json:"source,omitempty"`
}

// CyberComplaint is a previously reported complaint from the national
// cybercrime feed.
type CyberComplaint struct {
	AckNo      string    `json:"ackNo"`
	Account    string    `json:"account,omitempty"`
	Mobile     string    `json:"mobile,omitempty"`
	Email      string    `json:"email,omitempty"`
	ReportedAt time.Time `json:"reportedAt"`
}

// LedgerEntry is one row of the historical transaction ledger.
type LedgerEntry struct {
	ID          string          `json:"id"`
	RRN         string          `json:"rrn"`
	FromAccount string          `json:"fromAccount"`
	ToAccount   string          `json:"toAccount"`
	Amount      decimal.Decimal `json:"amount"`
	TxnDate     time.Time       `json:"txnDate"`
}

// IdentityMatch is the outcome of resolving a single identity value.
// A zero IdentityMatch means "no match", not an error.
type IdentityMatch struct {
	Probe IdentityKind `json:"probe"`
	Value string       `json:"value"`

	KnownCustomer    bool      `json:"knownCustomer"`
	Customer         *Customer `json:"customer,omitempty"`
	AccountNumber    string    `json:"accountNumber,omitempty"`
	KnownSuspect     bool      `json:"knownSuspect"`
	PriorComplainant bool      `json:"priorComplainant"`

	// MatchSources names the tables that produced the match, in probe order.
	MatchSources []string `json:"matchSources,omitempty"`

	// MatchedCaseIDs lists existing cases already referencing this identity.
	MatchedCaseIDs []string `json:"matchedCaseIds,omitempty"`
}

// Flagged reports whether the identity appears on the suspect list or in
// prior complaints.
func (m IdentityMatch) Flagged() bool {
	return m.KnownSuspect || m.PriorComplainant
}
