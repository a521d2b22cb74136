package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CaseType identifies which generator produced a case. The set is closed:
// case-type behaviour is fixed by domain knowledge, never configured at
// runtime.
type CaseType string

const (
	// CaseVM is a victim match: the complainant's account belongs to a
	// known customer.
	CaseVM CaseType = "VM"

	// CaseBM is a beneficiary match: the money-destination account belongs
	// to a known customer.
	CaseBM CaseType = "BM"

	// CasePSA is a potential suspect account screening case.
	CasePSA CaseType = "PSA"

	// CaseNAB is a new-account-beneficiary screening case.
	CaseNAB CaseType = "NAB"

	// CaseECBT is an existing customer beneficiary with at least one
	// historical transfer between the parties.
	CaseECBT CaseType = "ECBT"

	// CaseECBNT is an existing customer beneficiary with no historical
	// transfer between the parties.
	CaseECBNT CaseType = "ECBNT"

	// CaseNAA is a newly-added-account customer screening case.
	CaseNAA CaseType = "NAA"

	// CaseMM is a mobile-matching case from a telecom reverification list.
	CaseMM CaseType = "MM"
)

// AllCaseTypes returns the closed set of case types in a stable order.
func AllCaseTypes() []CaseType {
	return []CaseType{CaseVM, CaseBM, CasePSA, CaseNAB, CaseECBT, CaseECBNT, CaseNAA, CaseMM}
}

// ParseCaseType validates a case type received at an API boundary.
func ParseCaseType(s string) (CaseType, error) {
	ct := CaseType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllCaseTypes() {
		if ct == known {
			return ct, nil
		}
	}
	return "", fmt.Errorf("%w: unknown case type %q", ErrInvalidInput, s)
}

// CaseStatus is the lifecycle state of a case.
type CaseStatus string

const (
	StatusNew           CaseStatus = "New"
	StatusAssigned      CaseStatus = "Assigned"
	StatusOpen          CaseStatus = "Open"
	StatusClosed        CaseStatus = "Closed"
	StatusFalsePositive CaseStatus = "False Positive"
)

// Case is the canonical case record owned by the case store.
type Case struct {
	ID          string   `json:"id"`
	Type        CaseType `json:"caseType"`
	SourceAckNo string   `json:"sourceAckNo"`

	CustomerID         *string `json:"customerId,omitempty"`
	AccountNumber      string  `json:"accountNumber"`
	BeneficiaryAccount *string `json:"beneficiaryAccount,omitempty"`

	// Operational is true only for victim/beneficiary matches of an
	// originating complaint; derivative screening cases are non-operational.
	Operational bool `json:"operational"`

	Status    CaseStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
	CreatedBy string     `json:"createdBy"`

	DisputedAmount decimal.NullDecimal `json:"disputedAmount,omitempty"`
	Location       *string             `json:"location,omitempty"`
}

// CaseHistoryEntry is one append-only entry in a case's decision trail.
// Entries are never updated or deleted; the most recently committed entry
// is the current decision.
type CaseHistoryEntry struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"caseId"`
	Remarks   string    `json:"remarks"`
	UpdatedBy string    `json:"updatedBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// CaseDetail is the auxiliary record a generator writes alongside a case,
// capturing the identity fields that matched and the table that produced
// the match. Detail enrichment is best-effort: case existence is primary.
type CaseDetail struct {
	CaseID        string       `json:"caseId"`
	MatchedOn     IdentityKind `json:"matchedOn"`
	MatchedValue  string       `json:"matchedValue"`
	MatchSources  []string     `json:"matchSources"`
	CustomerID    *string      `json:"customerId,omitempty"`
	AccountNumber string       `json:"accountNumber"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// DeriveAckNo builds the source acknowledgement number for a case derived
// from a parent identifier: {original_ack}_{CASE_TYPE}. The format is
// load-bearing for reconstructing the originating complaint and must not
// change.
func DeriveAckNo(originalAck string, ct CaseType) string {
	return originalAck + "_" + string(ct)
}

// GeneratedAckNo builds the source acknowledgement number for a case with
// no natural parent identifier: {CASE_TYPE}_{random}.
func GeneratedAckNo(ct CaseType) string {
	return string(ct) + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// PairAckNo builds the source acknowledgement number for a case scoped to
// one (customer, beneficiary account) pair under a parent identifier:
// {original_ack}_{customer_id}_{beneficiary}_{CASE_TYPE}. One ingest
// envelope can yield several same-type cases, one per pair, and the same
// envelope re-submitted must hit the unique index instead of minting new
// identifiers.
func PairAckNo(originalAck, customerID, beneficiaryAccount string, ct CaseType) string {
	return originalAck + "_" + customerID + "_" + beneficiaryAccount + "_" + string(ct)
}

// OriginalAck recovers the parent identifier from a derivative ack number,
// or returns the ack unchanged when no known type suffix is present.
func OriginalAck(sourceAckNo string) string {
	for _, ct := range AllCaseTypes() {
		suffix := "_" + string(ct)
		if strings.HasSuffix(sourceAckNo, suffix) {
			return strings.TrimSuffix(sourceAckNo, suffix)
		}
	}
	return sourceAckNo
}
