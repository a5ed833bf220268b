package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Classification represents the disposition of a match after thresholding
type Classification string

const (
	// ClassificationAutoApproved marks a match safe to act on without review
	ClassificationAutoApproved Classification = "auto_approved"
	// ClassificationNeedsReview marks a match requiring human confirmation
	ClassificationNeedsReview Classification = "needs_review"
	// ClassificationRejected marks a candidate below the review threshold
	ClassificationRejected Classification = "rejected"
)

// String returns the string representation of Classification
func (c Classification) String() string {
	return string(c)
}

// StrategySignal records one scoring strategy's contribution to a match
type StrategySignal struct {
	Strategy string  `json:"strategy"`
	Score    float64 `json:"score"`
	Fired    bool    `json:"fired"`
}

// Match represents a reconciled pairing between one transaction and one or
// more invoices. A transaction appears in at most one Match per run, and an
// invoice appears in at most one Match per run.
type Match struct {
	TransactionID     string           `json:"transaction_id"`
	InvoiceIDs        []string         `json:"invoice_ids"`
	Confidence        float64          `json:"confidence"`
	DominantStrategy  string           `json:"dominant_strategy"`
	Classification    Classification   `json:"classification"`
	Partial           bool             `json:"partial,omitempty"`
	AIConfirmed       bool             `json:"ai_confirmed,omitempty"`
	Signals           []StrategySignal `json:"signals,omitempty"`
	SemanticRationale string           `json:"semantic_rationale,omitempty"`
	MatchedAmount     decimal.Decimal  `json:"matched_amount"`
}

// Validate performs basic validation on the Match
func (m *Match) Validate() error {
	if m.TransactionID == "" {
		return fmt.Errorf("match transaction ID cannot be empty")
	}

	if len(m.InvoiceIDs) == 0 {
		return fmt.Errorf("match must cover at least one invoice")
	}

	if m.Confidence < 0 || m.Confidence > 100 {
		return fmt.Errorf("match confidence %.2f outside [0,100]", m.Confidence)
	}

	if m.Partial && m.Classification == ClassificationAutoApproved {
		return fmt.Errorf("partial matches cannot be auto-approved")
	}

	return nil
}

// String returns a string representation of the Match
func (m *Match) String() string {
	return fmt.Sprintf("Match{Transaction: %s, Invoices: %v, Confidence: %.1f, Strategy: %s, Classification: %s}",
		m.TransactionID, m.InvoiceIDs, m.Confidence, m.DominantStrategy, m.Classification)
}

// MarshalJSON implements custom JSON marshaling for Match
func (m *Match) MarshalJSON() ([]byte, error) {
	type Alias Match
	return json.Marshal(&struct {
		MatchedAmount string `json:"matched_amount"`
		*Alias
	}{
		MatchedAmount: m.MatchedAmount.String(),
		Alias:         (*Alias)(m),
	})
}

// RunStats aggregates counters for one reconciliation run
type RunStats struct {
	TotalTransactions    int `json:"total_transactions"`
	TotalInvoices        int `json:"total_invoices"`
	SkippedTransactions  int `json:"skipped_transactions"`
	SkippedInvoices      int `json:"skipped_invoices"`
	EligibleTransactions int `json:"eligible_transactions"`
	EligibleInvoices     int `json:"eligible_invoices"`

	AutoApproved int `json:"auto_approved"`
	NeedsReview  int `json:"needs_review"`
	Rejected     int `json:"rejected"`

	RuleBasedMatches   int `json:"rule_based_matches"`
	AIConfirmedMatches int `json:"ai_confirmed_matches"`

	SemanticCalls     int `json:"semantic_calls"`
	SemanticConfirmed int `json:"semantic_confirmed"`
	SemanticFailures  int `json:"semantic_failures"`

	TotalMatchedAmount decimal.Decimal `json:"total_matched_amount"`
}

// RunResult is the complete output of one reconciliation run. The engine
// retains no state between runs; the caller persists this object.
type RunResult struct {
	RunID                   string        `json:"run_id"`
	Matches                 []*Match      `json:"matches"`
	UnmatchedTransactionIDs []string      `json:"unmatched_transaction_ids"`
	UnmatchedInvoiceIDs     []string      `json:"unmatched_invoice_ids"`
	Stats                   RunStats      `json:"stats"`
	StartedAt               time.Time     `json:"started_at"`
	Duration                time.Duration `json:"duration"`
}

// MatchedInvoiceIDs returns the set of invoice IDs consumed by emitted matches
func (r *RunResult) MatchedInvoiceIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, m := range r.Matches {
		for _, id := range m.InvoiceIDs {
			ids[id] = true
		}
	}
	return ids
}

// MatchedTransactionIDs returns the set of transaction IDs consumed by emitted matches
func (r *RunResult) MatchedTransactionIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, m := range r.Matches {
		ids[m.TransactionID] = true
	}
	return ids
}
