package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/shrike/internal/domain"
)

// pairKey identifies one deferred existing-customer-beneficiary action.
type pairKey struct {
	customerID  string
	beneficiary string
}

// ecbAction is one deferred ECB creation, accumulated across incidents and
// applied once after the loop. Transacted flags from every contributing
// incident are OR-ed together.
type ecbAction struct {
	customerID      string
	customerAccount string
	beneficiary     string
	transacted      bool
}

// ProcessIngest runs the bank-ingest path for one envelope. Unlike the
// manual path, a payer account that resolves to no customer aborts the
// whole request. The VM case is created before any per-incident work so it
// exists even when every incident fails validation.
func (p *Pipeline) ProcessIngest(ctx context.Context, env domain.IngestEnvelope) (*domain.IngestResult, error) {
	if verr := p.validateEnvelope(env); verr != nil {
		return nil, verr
	}

	if p.cfg.IngestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.IngestTimeout)
		defer cancel()
	}

	result := &domain.IngestResult{AckNo: env.AckNo}

	victim, vpartial := p.resolver.ResolveAccount(ctx, env.PayerAccount)
	result.Partial = append(result.Partial, vpartial...)
	if !victim.KnownCustomer {
		result.NoMatchingAccount = true
		p.saveRaw(ctx, domain.ManualComplaint{
			AckNo:         env.AckNo,
			AccountNumber: env.PayerAccount,
			CreatedBy:     env.ReceivedBy,
		}, false)
		p.logger.Info("ingest payer unmatched, request aborted",
			"ackNo", env.AckNo, "bankCode", env.BankCode)
		return result, nil
	}

	seed := Seed{OriginalAck: env.AckNo, CreatedBy: env.ReceivedBy}

	vm, err := p.gen.CreateVM(ctx, seed, victim)
	if err != nil {
		// Without the root case nothing downstream can be anchored.
		return nil, fmt.Errorf("ingest vm creation: %w", err)
	}
	result.Cases = append(result.Cases, vm)

	deferred := map[pairKey]*ecbAction{}
	var psaCandidate *domain.IdentityMatch
	var nabCandidate *domain.IdentityMatch
	seenRRNs := map[string]bool{}

	for _, incident := range env.Incidents {
		ir := domain.IncidentResult{RRN: incident.RRN}

		if seenRRNs[incident.RRN] {
			ir.Status = domain.IncidentDuplicate
			ir.Message = "RRN already processed in this request"
			result.Incidents = append(result.Incidents, ir)
			continue
		}
		seenRRNs[incident.RRN] = true

		lookup, lerr := p.oracle.LookupRRN(ctx, incident.RRN)
		if lerr != nil {
			ir.Status = domain.IncidentNotFound
			ir.Message = "ledger lookup unavailable"
			result.Partial = append(result.Partial, "ledger")
			result.Incidents = append(result.Incidents, ir)
			p.logger.Warn("rrn lookup degraded", "rrn", incident.RRN, "error", lerr)
			continue
		}
		ir.Status = lookup.Status
		if lookup.Status != domain.IncidentMatched {
			result.Incidents = append(result.Incidents, ir)
			continue
		}

		payee := lookup.Entry.ToAccount
		match, mpartial := p.resolver.ResolveAccount(ctx, payee)
		result.Partial = append(result.Partial, mpartial...)

		// At most one PSA and one NAB per request; the first flagged
		// candidate wins over an earlier clean one.
		if match.KnownCustomer && (psaCandidate == nil || (!psaCandidate.Flagged() && match.Flagged())) {
			m := match
			psaCandidate = &m
		}
		if !match.KnownCustomer && match.Flagged() && nabCandidate == nil {
			m := match
			nabCandidate = &m
		}

		links, berr := p.dirBeneficiaries(ctx, payee)
		if berr != nil {
			result.Partial = append(result.Partial, "beneficiaries")
			p.logger.Warn("beneficiary lookup degraded", "payee", payee, "error", berr)
		}
		for _, link := range links {
			key := pairKey{customerID: link.CustomerID, beneficiary: payee}
			action, ok := deferred[key]
			if !ok {
				action = &ecbAction{
					customerID:  link.CustomerID,
					beneficiary: payee,
				}
				deferred[key] = action
			}
			// Once any incident proved a transfer, the OR-merge cannot
			// change and the ledger probe is skipped.
			if !action.transacted {
				transacted, terr := p.oracle.HasCustomerTransferred(ctx, link.CustomerID, payee)
				if terr != nil {
					result.Partial = append(result.Partial, "transfer_lookup")
					p.logger.Warn("transfer lookup degraded to not-transacted",
						"customerId", link.CustomerID, "error", terr)
				}
				action.transacted = transacted
			}
			if action.customerAccount == "" {
				action.customerAccount = p.firstAccountOf(ctx, link.CustomerID)
			}
		}

		result.Incidents = append(result.Incidents, ir)
	}

	if psaCandidate != nil {
		psa, perr := p.gen.CreatePSAIfFlagged(ctx, seed, *psaCandidate)
		if perr != nil {
			result.Partial = append(result.Partial, "psa")
			p.logger.Error("psa creation failed", "ackNo", env.AckNo, "error", perr)
		} else if psa.CaseID != "" {
			result.Cases = append(result.Cases, psa)
		}
	}

	if nabCandidate != nil {
		nab, nerr := p.gen.CreateNABIfFlagged(ctx, seed, *nabCandidate)
		if nerr != nil {
			result.Partial = append(result.Partial, "nab")
			p.logger.Error("nab creation failed", "ackNo", env.AckNo, "error", nerr)
		} else if nab.CaseID != "" {
			result.Cases = append(result.Cases, nab)
		}
	}

	// Apply deduplicated ECB actions in a stable order.
	keys := make([]pairKey, 0, len(deferred))
	for k := range deferred {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].customerID != keys[j].customerID {
			return keys[i].customerID < keys[j].customerID
		}
		return keys[i].beneficiary < keys[j].beneficiary
	})
	for _, k := range keys {
		action := deferred[k]
		ecb, eerr := p.gen.CreateECBForPair(ctx, seed, action.customerID, action.customerAccount, action.beneficiary, action.transacted)
		if eerr != nil {
			result.Partial = append(result.Partial, "ecb")
			p.logger.Error("ecb creation failed",
				"customerId", action.customerID, "beneficiary", action.beneficiary, "error", eerr)
			continue
		}
		result.Cases = append(result.Cases, ecb)
	}

	return result, nil
}

func (p *Pipeline) validateEnvelope(env domain.IngestEnvelope) error {
	fields := map[string]string{}
	if env.AckNo == "" {
		fields["ackNo"] = "required"
	}
	if env.ReceivedBy == "" {
		fields["receivedBy"] = "required"
	}
	if env.PayerAccount == "" {
		fields["payerAccount"] = "required"
	} else if !digitsOnly(env.PayerAccount) {
		fields["payerAccount"] = "must contain only digits"
	}
	if len(env.Incidents) == 0 {
		fields["incidents"] = "at least one incident required"
	} else if len(env.Incidents) > p.cfg.MaxIncidents {
		fields["incidents"] = fmt.Sprintf("at most %d incidents per request", p.cfg.MaxIncidents)
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields)
	}
	return nil
}

// dirBeneficiaries lists customers who saved the payee account, through the
// resolver's directory.
func (p *Pipeline) dirBeneficiaries(ctx context.Context, payee string) ([]*domain.BeneficiaryLink, error) {
	return p.resolver.Directory().BeneficiariesOfAccount(ctx, payee)
}

// firstAccountOf returns the customer's oldest account, empty on failure.
func (p *Pipeline) firstAccountOf(ctx context.Context, customerID string) string {
	links, err := p.resolver.Directory().AccountsOfCustomer(ctx, customerID)
	if err != nil || len(links) == 0 {
		return ""
	}
	return links[0].AccountNumber
}
