package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/identity"
	"github.com/opensource-finance/shrike/internal/ledger"
	"github.com/shopspring/decimal"
)

// Pipeline orchestrates identity resolution and case generation for one
// incoming record at a time.
type Pipeline struct {
	repo     domain.Repository
	resolver *identity.Resolver
	oracle   *ledger.Oracle
	gen      *Generators
	cfg      domain.PipelineConfig
	logger   *slog.Logger
	now      func() time.Time
}

// New wires the pipeline.
func New(repo domain.Repository, resolver *identity.Resolver, oracle *ledger.Oracle,
	gen *Generators, cfg domain.PipelineConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxIncidents <= 0 {
		cfg.MaxIncidents = 25
	}
	return &Pipeline{
		repo:     repo,
		resolver: resolver,
		oracle:   oracle,
		gen:      gen,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// ProcessManual runs the manual-entry path for one normalized complaint.
// Victim and beneficiary resolution are independent; every case creation
// step is independent of the others, and a failure after earlier cases
// committed is reported in Partial rather than rolled back.
func (p *Pipeline) ProcessManual(ctx context.Context, mc domain.ManualComplaint) (*domain.MatchResult, error) {
	if verr := validateManual(mc); verr != nil {
		return nil, verr
	}

	seed := Seed{
		OriginalAck: mc.AckNo,
		CreatedBy:   mc.CreatedBy,
	}
	if mc.DisputedAmount != "" {
		if d, err := decimal.NewFromString(mc.DisputedAmount); err == nil {
			seed.DisputedAmount = decimal.NullDecimal{Decimal: d, Valid: true}
		}
	}
	if mc.Location != "" {
		loc := mc.Location
		seed.Location = &loc
	}

	result := &domain.MatchResult{AckNo: mc.AckNo}

	victim, vpartial := p.resolver.ResolveAccount(ctx, mc.AccountNumber)
	result.Partial = append(result.Partial, vpartial...)

	var beneficiary domain.IdentityMatch
	if mc.ToAccount != "" {
		var bpartial []string
		beneficiary, bpartial = p.resolver.ResolveAccount(ctx, mc.ToAccount)
		result.Partial = append(result.Partial, bpartial...)
	}

	if !victim.KnownCustomer && !beneficiary.KnownCustomer {
		p.saveRaw(ctx, mc, false)
		p.logger.Info("no identity match, raw record kept", "ackNo", mc.AckNo)
		return result, nil
	}

	result.IsMatch = true
	p.saveRaw(ctx, mc, true)

	if victim.KnownCustomer {
		cc, err := p.gen.CreateVM(ctx, seed, victim)
		if err != nil {
			result.Partial = append(result.Partial, "vm")
			p.logger.Error("vm creation failed", "ackNo", mc.AckNo, "error", err)
		} else {
			result.Cases = append(result.Cases, cc)
		}
	}

	if beneficiary.KnownCustomer {
		cc, err := p.gen.CreateBM(ctx, seed, beneficiary)
		if err != nil {
			result.Partial = append(result.Partial, "bm")
			p.logger.Error("bm creation failed", "ackNo", mc.AckNo, "error", err)
		} else {
			result.Cases = append(result.Cases, cc)
		}

		// The beneficiary is an existing customer; classify the relation by
		// whether money ever moved from the victim account to it.
		transacted, terr := p.oracle.HasTransferred(ctx, mc.AccountNumber, mc.ToAccount)
		if terr != nil {
			p.logger.Warn("transfer lookup degraded to not-transacted",
				"ackNo", mc.AckNo, "error", terr)
			result.Partial = append(result.Partial, "transfer_lookup")
		}
		ecb, err := p.gen.CreateECB(ctx, seed, beneficiary.Customer.ID, beneficiary.AccountNumber, mc.ToAccount, transacted)
		if err != nil {
			result.Partial = append(result.Partial, "ecb")
			p.logger.Error("ecb creation failed", "ackNo", mc.AckNo, "error", err)
		} else {
			result.Cases = append(result.Cases, ecb)
		}
	}

	// The destination is not one of our accounts but screens hot on the
	// suspect list or prior complaints.
	if mc.ToAccount != "" && !beneficiary.KnownCustomer && beneficiary.Flagged() {
		nab, err := p.gen.CreateNABIfFlagged(ctx, seed, beneficiary)
		if err != nil {
			result.Partial = append(result.Partial, "nab")
			p.logger.Error("nab creation failed", "ackNo", mc.AckNo, "error", err)
		} else if nab.CaseID != "" {
			result.Cases = append(result.Cases, nab)
		}
	}

	return result, nil
}

// ScreenNewAccounts creates one NAA screening case per newly added account.
// Entries are independent; a failing entry is reported in Partial and does
// not abort the rest of the batch.
func (p *Pipeline) ScreenNewAccounts(ctx context.Context, entries []domain.NewAccountEntry, createdBy string) (*domain.ScreeningResult, error) {
	if verr := validateNewAccounts(entries, createdBy, p.cfg.MaxIncidents); verr != nil {
		return nil, verr
	}

	result := &domain.ScreeningResult{}
	for _, e := range entries {
		cc, err := p.gen.CreateNAAForCustomer(ctx, e.CustomerID, e.AccountNumber, createdBy)
		if err != nil {
			result.Partial = append(result.Partial, "naa")
			p.logger.Error("naa creation failed",
				"customerId", e.CustomerID, "accountNumber", e.AccountNumber, "error", err)
			continue
		}
		result.Cases = append(result.Cases, cc)
	}
	return result, nil
}

// ScreenMobiles runs the telecom reverification flag list through mobile
// matching. Mobiles that resolve to no customer are skipped silently.
func (p *Pipeline) ScreenMobiles(ctx context.Context, mobiles []string, createdBy string) (*domain.ScreeningResult, error) {
	if verr := validateMobiles(mobiles, createdBy, p.cfg.MaxIncidents); verr != nil {
		return nil, verr
	}

	created, err := p.gen.CreateMobileMatchingCases(ctx, mobiles, createdBy)
	if err != nil {
		return nil, err
	}
	return &domain.ScreeningResult{Cases: created}, nil
}

func validateNewAccounts(entries []domain.NewAccountEntry, createdBy string, maxEntries int) error {
	fields := map[string]string{}
	if createdBy == "" {
		fields["createdBy"] = "required"
	}
	if len(entries) == 0 {
		fields["accounts"] = "at least one entry required"
	} else if len(entries) > maxEntries {
		fields["accounts"] = fmt.Sprintf("at most %d entries per request", maxEntries)
	}
	for i, e := range entries {
		if e.CustomerID == "" {
			fields[fmt.Sprintf("accounts[%d].customerId", i)] = "required"
		}
		if e.AccountNumber == "" {
			fields[fmt.Sprintf("accounts[%d].accountNumber", i)] = "required"
		} else if !digitsOnly(e.AccountNumber) {
			fields[fmt.Sprintf("accounts[%d].accountNumber", i)] = "must contain only digits"
		}
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields)
	}
	return nil
}

func validateMobiles(mobiles []string, createdBy string, maxEntries int) error {
	fields := map[string]string{}
	if createdBy == "" {
		fields["createdBy"] = "required"
	}
	if len(mobiles) == 0 {
		fields["mobiles"] = "at least one mobile required"
	} else if len(mobiles) > maxEntries {
		fields["mobiles"] = fmt.Sprintf("at most %d mobiles per request", maxEntries)
	}
	for i, m := range mobiles {
		if !digitsOnly(m) {
			fields[fmt.Sprintf("mobiles[%d]", i)] = "must contain only digits"
		}
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields)
	}
	return nil
}

// saveRaw keeps the raw record for downstream batch reconciliation. Failure
// here never blocks the pipeline.
func (p *Pipeline) saveRaw(ctx context.Context, mc domain.ManualComplaint, matched bool) {
	raw := &domain.RawComplaint{
		AckNo:         mc.AckNo,
		AccountNumber: mc.AccountNumber,
		ToAccount:     mc.ToAccount,
		Matched:       matched,
		ReceivedAt:    p.now().UTC(),
		CreatedBy:     mc.CreatedBy,
	}
	if err := p.repo.SaveRawComplaint(ctx, raw); err != nil {
		p.logger.Error("raw complaint save failed", "ackNo", mc.AckNo, "error", err)
	}
}

// validateManual aggregates every offending field into one error.
func validateManual(mc domain.ManualComplaint) error {
	fields := map[string]string{}
	if mc.AckNo == "" {
		fields["ackNo"] = "required"
	}
	if mc.CreatedBy == "" {
		fields["createdBy"] = "required"
	}
	if mc.AccountNumber == "" {
		fields["accountNumber"] = "required"
	} else if !digitsOnly(mc.AccountNumber) {
		fields["accountNumber"] = "must contain only digits"
	}
	if mc.ToAccount != "" && !digitsOnly(mc.ToAccount) {
		fields["toAccount"] = "must contain only digits"
	}
	if mc.CardNumber != "" && !digitsOnly(mc.CardNumber) {
		fields["cardNumber"] = "must contain only digits"
	}
	if mc.DisputedAmount != "" {
		if _, err := decimal.NewFromString(mc.DisputedAmount); err != nil {
			fields["disputedAmount"] = "not a valid amount"
		}
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields)
	}
	return nil
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
