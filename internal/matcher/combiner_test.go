package matcher

import (
	"testing"

	"payment-reconciliation-service/internal/models"
)

func signalCandidate(signals ...models.StrategySignal) *Candidate {
	return &Candidate{
		Transaction: testTransaction("TX1", "PAYMENT", "", 1000, testDate),
		Invoices:    []*models.Invoice{testInvoice("I1", "INV-1", "Acme Corp", 1000, testDate)},
		Signals:     signals,
	}
}

func TestCombineInvoiceNumberCorroboration(t *testing.T) {
	combiner := NewCombiner(DefaultConfig())

	confidence := combiner.Combine(signalCandidate(
		models.StrategySignal{Strategy: StrategyInvoiceNumber, Score: 100.0, Fired: true},
		models.StrategySignal{Strategy: StrategyExactAmount, Score: 100.0, Fired: true},
		models.StrategySignal{Strategy: StrategyFuzzyName, Score: 92.0, Fired: true},
	))
	if confidence != 100.0 {
		t.Errorf("expected fully corroborated reference hit at 100, got %v", confidence)
	}
}

func TestCombineInvoiceNumberNoNameEvidence(t *testing.T) {
	combiner := NewCombiner(DefaultConfig())

	// An empty counterparty leaves no name evidence either way
	confidence := combiner.Combine(signalCandidate(
		models.StrategySignal{Strategy: StrategyInvoiceNumber, Score: 100.0, Fired: true},
		models.StrategySignal{Strategy: StrategyExactAmount, Score: 100.0, Fired: true},
		models.StrategySignal{Strategy: StrategyFuzzyName, Score: 0.0, Fired: false},
	))
	if confidence != 97.5 {
		t.Errorf("expected 97.5 without name evidence, got %v", confidence)
	}
}

func TestCombineInvoiceNumberConflictingName(t *testing.T) {
	config := DefaultConfig()
	combiner := NewCombiner(config)

	// The counterparty reads as a different company than the referenced
	// invoice; the hit survives but leaves the auto-approve band
	confidence := combiner.Combine(signalCandidate(
		models.StrategySignal{Strategy: StrategyInvoiceNumber, Score: 100.0, Fired: true},
		models.StrategySignal{Strategy: StrategyExactAmount, Score: 100.0, Fired: true},
		models.StrategySignal{Strategy: StrategyFuzzyName, Score: 20.0, Fired: false},
	))
	if confidence != 92.5 {
		t.Errorf("expected conflicting name to cost the hit 5 points, got %v", confidence)
	}
	if confidence >= config.AutoApproveThreshold {
		t.Errorf("conflicting name must not auto-approve, got %v", confidence)
	}
	if confidence < config.ReviewThreshold {
		t.Errorf("the reference hit must keep the candidate reviewable, got %v", confidence)
	}
}

func TestCombineWeightedIgnoresUnfired(t *testing.T) {
	combiner := NewCombiner(DefaultConfig())

	// A below-threshold name score carries no weight; only fired amount
	// and date contribute
	confidence := combiner.Combine(signalCandidate(
		models.StrategySignal{Strategy: StrategyExactAmount, Score: 100.0, Fired: true},
		models.StrategySignal{Strategy: StrategyFuzzyName, Score: 30.0, Fired: false},
		models.StrategySignal{Strategy: StrategyDateProximity, Score: 100.0, Fired: true},
	))
	if confidence != 50.0 {
		t.Errorf("expected weighted amount+date only, got %v", confidence)
	}
}
