package matcher

import (
	"payment-reconciliation-service/internal/models"
)

// Combiner turns per-strategy signals into a single confidence in [0, 100].
//
// Two dominant paths short-circuit the weighted sum:
//   - An invoice-number hit is near-conclusive on its own. It starts at a
//     high base and corroborating signals can only raise it; conflicting
//     signals never drag it below the base.
//   - Strong name agreement together with strong amount agreement is the
//     classic clean-payment shape and lands in the auto-approve band.
//
// Everything else takes the weighted path, where strategies that did not
// fire contribute zero.
type Combiner struct {
	config *Config
}

// NewCombiner creates a combiner with the given configuration
func NewCombiner(config *Config) *Combiner {
	if config == nil {
		config = DefaultConfig()
	}
	return &Combiner{config: config}
}

const (
	invoiceNumberBase  = 95.0
	corroborationBonus = 2.5

	// A counterparty scoring below this against the invoiced company is
	// treated as contradicting the reference hit. Unrelated names land
	// around 50 under the edit-distance ratio; related-but-noisy ones
	// clear 60.
	nameConflictScore   = 60.0
	nameConflictPenalty = 5.0
)

// Combine computes the candidate's confidence from its signals and stores
// it on the candidate
func (cb *Combiner) Combine(candidate *Candidate) float64 {
	var number, amount, name, date models.StrategySignal

	for _, sig := range candidate.Signals {
		switch sig.Strategy {
		case StrategyInvoiceNumber:
			number = sig
		case StrategyExactAmount:
			amount = sig
		case StrategyFuzzyName, StrategyAssociation:
			if sig.Score > name.Score || !name.Fired {
				name = sig
			}
		case StrategyDateProximity:
			date = sig
		case StrategyMultiInvoice:
			// A subset sum is amount evidence; take it over the exact
			// comparison when it scores higher
			if sig.Fired && sig.Score > amount.Score {
				amount = sig
				amount.Strategy = StrategyExactAmount
			}
		}
	}

	confidence := cb.combine(number, amount, name, date)

	if candidate.Partial && confidence >= cb.config.AutoApproveThreshold {
		// Installments always get human eyes
		confidence = cb.config.AutoApproveThreshold - 1.0
	}

	confidence = clamp(confidence)
	candidate.Confidence = confidence
	return confidence
}

func (cb *Combiner) combine(number, amount, name, date models.StrategySignal) float64 {
	if number.Fired && number.Score >= 100.0 {
		confidence := invoiceNumberBase
		if amount.Fired && amount.Score >= 85.0 {
			confidence += corroborationBonus
		}
		if name.Fired {
			confidence += corroborationBonus
		} else if name.Score > 0 && name.Score < nameConflictScore {
			// The counterparty names a different company than the
			// referenced invoice. The reference still dominates, but the
			// result moves out of the auto-approve band.
			confidence -= nameConflictPenalty
		}
		return confidence
	}

	if name.Fired && name.Score >= 95.0 && amount.Fired && amount.Score >= 90.0 {
		return 85.0 + name.Score*0.1 + amount.Score*0.05
	}

	w := cb.config.Weights
	confidence := firedScore(amount)*w.Amount +
		firedScore(name)*w.Name +
		firedScore(date)*w.Date +
		firedScore(number)*w.InvoiceNumber

	return confidence
}

// firedScore is a signal's weighted-path contribution; strategies that did
// not fire contribute nothing even when they carry a raw score
func firedScore(sig models.StrategySignal) float64 {
	if !sig.Fired {
		return 0.0
	}
	return sig.Score
}

func clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 100.0 {
		return 100.0
	}
	return score
}
