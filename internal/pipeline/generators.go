// Package pipeline classifies incoming fraud complaints and spawns typed
// investigation cases.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/shrike/internal/audit"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/identity"
	"github.com/opensource-finance/shrike/internal/ledger"
	"github.com/shopspring/decimal"
)

// Assigner hands a freshly created case to its default owner.
type Assigner interface {
	DefaultAssign(ctx context.Context, caseID string) error
}

// Seed carries the originating-complaint context shared by every generator
// invocation of one pipeline run.
type Seed struct {
	OriginalAck    string
	CreatedBy      string
	DisputedAmount decimal.NullDecimal
	Location       *string
}

// Generators creates typed cases from match contexts. Each generator writes
// the case row, an initial history entry and an auxiliary detail record,
// then triggers default assignment. Only the case row is load-bearing; the
// rest is best-effort per the partial-failure policy.
type Generators struct {
	repo     domain.Repository
	resolver *identity.Resolver
	oracle   *ledger.Oracle
	assigner Assigner
	audit    *audit.Recorder
	bus      domain.EventBus
	logger   *slog.Logger
	now      func() time.Time
}

// NewGenerators wires the generator set. The assigner and bus are optional.
func NewGenerators(repo domain.Repository, resolver *identity.Resolver, oracle *ledger.Oracle,
	assigner Assigner, rec *audit.Recorder, bus domain.EventBus, logger *slog.Logger) *Generators {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generators{
		repo:     repo,
		resolver: resolver,
		oracle:   oracle,
		assigner: assigner,
		audit:    rec,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
	}
}

// create is the shared creation contract. A duplicate source_ack_no is a
// benign no-op returning the existing case id. Failures after the case row
// committed are logged, never rolled back.
func (g *Generators) create(ctx context.Context, c *domain.Case, detail *domain.CaseDetail, trigger string) (domain.CreatedCase, error) {
	err := g.repo.CreateCase(ctx, c)
	var dup *domain.DuplicateError
	if errors.As(err, &dup) {
		g.logger.Info("case already exists, returning existing",
			"sourceAckNo", c.SourceAckNo, "caseId", dup.ExistingID)
		return domain.CreatedCase{
			CaseID:      dup.ExistingID,
			Type:        c.Type,
			SourceAckNo: c.SourceAckNo,
			Created:     false,
		}, nil
	}
	if err != nil {
		return domain.CreatedCase{}, fmt.Errorf("create %s case: %w", c.Type, err)
	}

	history := &domain.CaseHistoryEntry{
		ID:        uuid.New().String(),
		CaseID:    c.ID,
		Remarks:   trigger,
		UpdatedBy: c.CreatedBy,
		CreatedAt: g.now().UTC(),
	}
	if herr := g.repo.AppendHistory(ctx, history); herr != nil {
		g.logger.Error("initial history write failed, case stands",
			"caseId", c.ID, "error", herr)
	}

	if detail != nil {
		detail.CaseID = c.ID
		detail.CreatedAt = g.now().UTC()
		if derr := g.repo.SaveCaseDetail(ctx, detail); derr != nil {
			g.logger.Error("detail write failed, case stands",
				"caseId", c.ID, "error", derr)
		}
	}

	if g.assigner != nil {
		if aerr := g.assigner.DefaultAssign(ctx, c.ID); aerr != nil {
			g.logger.Error("default assignment failed, case stands",
				"caseId", c.ID, "error", aerr)
		}
	}

	if g.audit != nil {
		g.audit.Record(ctx, c.ID, c.CreatedBy, domain.AuditCaseCreated, trigger)
	}
	g.publishCreated(ctx, c)

	return domain.CreatedCase{
		CaseID:      c.ID,
		Type:        c.Type,
		SourceAckNo: c.SourceAckNo,
		Created:     true,
	}, nil
}

func (g *Generators) publishCreated(ctx context.Context, c *domain.Case) {
	if g.bus == nil {
		return
	}
	payload, err := json.Marshal(c)
	if err == nil {
		err = g.bus.Publish(ctx, domain.TopicCaseCreated, payload)
	}
	if err != nil {
		g.logger.Warn("case created publish failed", "caseId", c.ID, "error", err)
	}
}

func detailFromMatch(m domain.IdentityMatch) *domain.CaseDetail {
	d := &domain.CaseDetail{
		MatchedOn:     m.Probe,
		MatchedValue:  m.Value,
		MatchSources:  m.MatchSources,
		AccountNumber: m.AccountNumber,
	}
	if m.Customer != nil {
		id := m.Customer.ID
		d.CustomerID = &id
	}
	return d
}

// CreateVM creates the victim-match case for a complaint whose account
// resolved to a known customer. Operational: it tracks the complainant.
func (g *Generators) CreateVM(ctx context.Context, seed Seed, victim domain.IdentityMatch) (domain.CreatedCase, error) {
	c := &domain.Case{
		ID:             uuid.New().String(),
		Type:           domain.CaseVM,
		SourceAckNo:    domain.DeriveAckNo(seed.OriginalAck, domain.CaseVM),
		AccountNumber:  victim.AccountNumber,
		Operational:    true,
		Status:         domain.StatusNew,
		CreatedAt:      g.now().UTC(),
		CreatedBy:      seed.CreatedBy,
		DisputedAmount: seed.DisputedAmount,
		Location:       seed.Location,
	}
	if victim.Customer != nil {
		id := victim.Customer.ID
		c.CustomerID = &id
	}
	return g.create(ctx, c, detailFromMatch(victim),
		fmt.Sprintf("victim match on %s for complaint %s", victim.Probe, seed.OriginalAck))
}

// CreateBM creates the beneficiary-match case when the money-destination
// account belongs to a known customer.
func (g *Generators) CreateBM(ctx context.Context, seed Seed, beneficiary domain.IdentityMatch) (domain.CreatedCase, error) {
	benAcct := beneficiary.Value
	c := &domain.Case{
		ID:                 uuid.New().String(),
		Type:               domain.CaseBM,
		SourceAckNo:        domain.DeriveAckNo(seed.OriginalAck, domain.CaseBM),
		AccountNumber:      beneficiary.AccountNumber,
		BeneficiaryAccount: &benAcct,
		Operational:        true,
		Status:             domain.StatusNew,
		CreatedAt:          g.now().UTC(),
		CreatedBy:          seed.CreatedBy,
		DisputedAmount:     seed.DisputedAmount,
		Location:           seed.Location,
	}
	if beneficiary.Customer != nil {
		id := beneficiary.Customer.ID
		c.CustomerID = &id
	}
	return g.create(ctx, c, detailFromMatch(beneficiary),
		fmt.Sprintf("beneficiary match on %s for complaint %s", beneficiary.Probe, seed.OriginalAck))
}

// CreatePSAIfFlagged creates a potential-suspect-account screening case when
// the candidate identity appears on the suspect list or in prior complaints.
// An unflagged identity creates nothing and returns a zero CreatedCase.
func (g *Generators) CreatePSAIfFlagged(ctx context.Context, seed Seed, candidate domain.IdentityMatch) (domain.CreatedCase, error) {
	if !candidate.Flagged() {
		return domain.CreatedCase{}, nil
	}
	acct := candidate.AccountNumber
	if acct == "" {
		acct = candidate.Value
	}
	c := &domain.Case{
		ID:            uuid.New().String(),
		Type:          domain.CasePSA,
		SourceAckNo:   domain.DeriveAckNo(seed.OriginalAck, domain.CasePSA),
		AccountNumber: acct,
		Operational:   false,
		Status:        domain.StatusNew,
		CreatedAt:     g.now().UTC(),
		CreatedBy:     seed.CreatedBy,
	}
	if candidate.Customer != nil {
		id := candidate.Customer.ID
		c.CustomerID = &id
	}
	return g.create(ctx, c, detailFromMatch(candidate),
		fmt.Sprintf("suspect screening hit on %s (%v)", candidate.Probe, candidate.MatchSources))
}

// CreateNABIfFlagged creates a new-account-beneficiary screening case under
// the same flagging rule as PSA.
func (g *Generators) CreateNABIfFlagged(ctx context.Context, seed Seed, candidate domain.IdentityMatch) (domain.CreatedCase, error) {
	if !candidate.Flagged() {
		return domain.CreatedCase{}, nil
	}
	acct := candidate.AccountNumber
	if acct == "" {
		acct = candidate.Value
	}
	benAcct := candidate.Value
	c := &domain.Case{
		ID:                 uuid.New().String(),
		Type:               domain.CaseNAB,
		SourceAckNo:        domain.DeriveAckNo(seed.OriginalAck, domain.CaseNAB),
		AccountNumber:      acct,
		BeneficiaryAccount: &benAcct,
		Operational:        false,
		Status:             domain.StatusNew,
		CreatedAt:          g.now().UTC(),
		CreatedBy:          seed.CreatedBy,
	}
	return g.create(ctx, c, detailFromMatch(candidate),
		fmt.Sprintf("new beneficiary screening hit on %s (%v)", candidate.Probe, candidate.MatchSources))
}

// CreateECB creates the existing-customer-beneficiary case for the manual
// path, where a complaint carries at most one beneficiary and the ack is
// derived from the complaint identifier. Re-submission of the same
// complaint lands on the unique index and returns the existing case.
func (g *Generators) CreateECB(ctx context.Context, seed Seed, customerID, customerAccount, beneficiaryAccount string, transacted bool) (domain.CreatedCase, error) {
	ct := ecbType(transacted)
	ack := domain.DeriveAckNo(seed.OriginalAck, ct)
	return g.createECB(ctx, seed, ack, ct, customerID, customerAccount, beneficiaryAccount, transacted)
}

// CreateECBForPair creates the existing-customer-beneficiary case for one
// deduplicated ingest pair. The ack embeds the pair so several pairs in one
// envelope get distinct identifiers while a re-submitted envelope stays
// idempotent.
func (g *Generators) CreateECBForPair(ctx context.Context, seed Seed, customerID, customerAccount, beneficiaryAccount string, transacted bool) (domain.CreatedCase, error) {
	ct := ecbType(transacted)
	ack := domain.PairAckNo(seed.OriginalAck, customerID, beneficiaryAccount, ct)
	return g.createECB(ctx, seed, ack, ct, customerID, customerAccount, beneficiaryAccount, transacted)
}

func ecbType(transacted bool) domain.CaseType {
	if transacted {
		return domain.CaseECBT
	}
	return domain.CaseECBNT
}

func (g *Generators) createECB(ctx context.Context, seed Seed, ackNo string, ct domain.CaseType, customerID, customerAccount, beneficiaryAccount string, transacted bool) (domain.CreatedCase, error) {
	c := &domain.Case{
		ID:                 uuid.New().String(),
		Type:               ct,
		SourceAckNo:        ackNo,
		CustomerID:         &customerID,
		AccountNumber:      customerAccount,
		BeneficiaryAccount: &beneficiaryAccount,
		Operational:        false,
		Status:             domain.StatusNew,
		CreatedAt:          g.now().UTC(),
		CreatedBy:          seed.CreatedBy,
	}
	detail := &domain.CaseDetail{
		MatchedOn:     domain.IdentityAccount,
		MatchedValue:  beneficiaryAccount,
		MatchSources:  []string{"beneficiaries"},
		CustomerID:    &customerID,
		AccountNumber: customerAccount,
	}
	return g.create(ctx, c, detail,
		fmt.Sprintf("existing beneficiary %s of customer %s, transacted=%t (complaint %s)",
			beneficiaryAccount, customerID, transacted, seed.OriginalAck))
}

// CreateNAAForCustomer creates a newly-added-account screening case.
func (g *Generators) CreateNAAForCustomer(ctx context.Context, customerID, accountNumber, createdBy string) (domain.CreatedCase, error) {
	c := &domain.Case{
		ID:            uuid.New().String(),
		Type:          domain.CaseNAA,
		SourceAckNo:   domain.GeneratedAckNo(domain.CaseNAA),
		CustomerID:    &customerID,
		AccountNumber: accountNumber,
		Operational:   false,
		Status:        domain.StatusNew,
		CreatedAt:     g.now().UTC(),
		CreatedBy:     createdBy,
	}
	detail := &domain.CaseDetail{
		MatchedOn:     domain.IdentityAccount,
		MatchedValue:  accountNumber,
		MatchSources:  []string{"accounts"},
		CustomerID:    &customerID,
		AccountNumber: accountNumber,
	}
	return g.create(ctx, c, detail,
		fmt.Sprintf("newly added account %s for customer %s", accountNumber, customerID))
}

// CreateMobileMatchingCases screens a telecom reverification flag list. One
// MM case is created per mobile that resolves to a known customer; mobiles
// that resolve to nothing are skipped silently. Per-mobile failures do not
// abort the rest of the list.
func (g *Generators) CreateMobileMatchingCases(ctx context.Context, mobiles []string, createdBy string) ([]domain.CreatedCase, error) {
	var created []domain.CreatedCase
	for _, mobile := range mobiles {
		match, _ := g.resolver.Resolve(ctx, domain.IdentityMobile, mobile)
		if !match.KnownCustomer {
			continue
		}
		c := &domain.Case{
			ID:            uuid.New().String(),
			Type:          domain.CaseMM,
			SourceAckNo:   domain.GeneratedAckNo(domain.CaseMM),
			AccountNumber: match.AccountNumber,
			Operational:   false,
			Status:        domain.StatusNew,
			CreatedAt:     g.now().UTC(),
			CreatedBy:     createdBy,
		}
		id := match.Customer.ID
		c.CustomerID = &id

		cc, err := g.create(ctx, c, detailFromMatch(match),
			fmt.Sprintf("mobile %s flagged by telecom reverification", mobile))
		if err != nil {
			g.logger.Error("mobile matching case failed, continuing",
				"mobile", mobile, "error", err)
			continue
		}
		created = append(created, cc)
	}
	return created, nil
}
