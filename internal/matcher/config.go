// Package matcher implements the core engine that reconciles bank
// transactions against open invoices.
//
// The engine combines several independent heuristics into one ranked
// decision:
//   - Invoice-number detection in transaction descriptions
//   - Exact and tolerance-band amount comparison
//   - Fuzzy company-name similarity against noisy counterparty strings
//   - Date proximity between posting date and invoice due date
//   - Multi-invoice subset sums (one wire paying several invoices)
//
// The pipeline runs in three stages:
//  1. Candidate generation using indexed amount and date lookups
//  2. Per-candidate scoring with a weighted, capped combiner
//  3. A serial greedy assignment pass that guarantees each transaction and
//     each invoice is consumed at most once per run
//
// Example usage:
//
//	config := matcher.DefaultConfig()
//	config.DateRangeDays = 14
//
//	engine := matcher.NewEngine(config)
//	engine.LoadInvoices(invoices)
//
//	candidates := engine.ScoreTransactions(transactions)
//	matches := engine.Resolve(candidates)
package matcher

import (
	"fmt"

	"payment-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// Strategy labels reported in match explanations
const (
	StrategyInvoiceNumber = "invoice_number"
	StrategyExactAmount   = "exact_amount"
	StrategyFuzzyName     = "fuzzy_name"
	StrategyDateProximity = "date_proximity"
	StrategyMultiInvoice  = "multi_invoice"
	StrategyAssociation   = "learned_association"
	StrategySemantic      = "semantic"
)

// DeniedPair identifies a transaction-invoice pairing a reviewer has
// rejected; the engine never proposes it again within the runs that carry it
type DeniedPair struct {
	TransactionDescription string
	InvoiceID              string
}

// Weights defines the relative importance of strategy scores when no single
// dominant signal is present
type Weights struct {
	Amount        float64 `json:"amount"`
	Name          float64 `json:"name"`
	Date          float64 `json:"date"`
	InvoiceNumber float64 `json:"invoice_number"`
}

// Validate checks if the weights are valid
func (w *Weights) Validate() error {
	for name, value := range map[string]float64{
		"amount":         w.Amount,
		"name":           w.Name,
		"date":           w.Date,
		"invoice_number": w.InvoiceNumber,
	} {
		if value < 0.0 || value > 1.0 {
			return fmt.Errorf("%s weight must be between 0.0 and 1.0: %f", name, value)
		}
	}

	total := w.Amount + w.Name + w.Date + w.InvoiceNumber
	if total < 0.9 || total > 1.1 {
		return fmt.Errorf("weights should sum to approximately 1.0, got %f", total)
	}

	return nil
}

// Config holds all tunables for a reconciliation run. Different
// configurations suit different books: tight tolerances for audited
// accounts, relaxed ones for exploratory matching.
type Config struct {
	// AutoApproveThreshold is the confidence at or above which a match
	// requires no human review (0-100)
	AutoApproveThreshold float64 `json:"auto_approve_threshold"`

	// ReviewThreshold is the confidence at or above which a match is
	// emitted for human review (0-100, strictly below AutoApproveThreshold)
	ReviewThreshold float64 `json:"review_threshold"`

	// DateRangeDays bounds the symmetric window between transaction date
	// and invoice due date
	DateRangeDays int `json:"date_range_days"`

	// FuzzyThreshold is the minimum name similarity (0-100) for the fuzzy
	// company-name strategy to fire
	FuzzyThreshold float64 `json:"fuzzy_threshold"`

	// AmountTolerance is the absolute currency-unit epsilon for amount
	// comparison, covering wire fees and rounding
	AmountTolerance decimal.Decimal `json:"amount_tolerance"`

	// MaxSubsetSize bounds multi-invoice subset enumeration
	MaxSubsetSize int `json:"max_subset_size"`

	// MaxCandidatesPerTransaction limits the candidate pool per transaction
	MaxCandidatesPerTransaction int `json:"max_candidates_per_transaction"`

	// EnablePartialMatching allows flagged partial-payment candidates
	// (installments); these are never auto-approved
	EnablePartialMatching bool `json:"enable_partial_matching"`

	// MinPartialRatio is the smallest transaction/invoice amount ratio
	// considered a plausible installment
	MinPartialRatio float64 `json:"min_partial_ratio"`

	// Weights for the non-dominant combiner path
	Weights Weights `json:"weights"`

	// Associations maps cleaned transaction tokens to cleaned company
	// names learned from prior reviewer approvals (caller-supplied)
	Associations map[string]string `json:"associations,omitempty"`

	// DeniedPairs excludes reviewer-rejected pairings from candidate
	// generation (caller-supplied)
	DeniedPairs map[DeniedPair]bool `json:"-"`

	// SemanticEnabled turns the external disambiguation step on
	SemanticEnabled bool `json:"semantic_enabled"`

	// SemanticConfirmedConfidence is the confidence assigned to a
	// candidate the semantic service confirms; it sits in a distinct band
	// below auto-approve so reviewers can audit provenance
	SemanticConfirmedConfidence float64 `json:"semantic_confirmed_confidence"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		AutoApproveThreshold:        95.0,
		ReviewThreshold:             70.0,
		DateRangeDays:               7,
		FuzzyThreshold:              80.0,
		AmountTolerance:             decimal.NewFromFloat(1.00),
		MaxSubsetSize:               4,
		MaxCandidatesPerTransaction: 10,
		EnablePartialMatching:       false,
		MinPartialRatio:             0.10,
		Weights: Weights{
			Amount:        0.35,
			Name:          0.40,
			Date:          0.15,
			InvoiceNumber: 0.10,
		},
		SemanticEnabled:             false,
		SemanticConfirmedConfidence: 90.0,
	}
}

// StrictConfig returns a configuration for tightly audited books
func StrictConfig() *Config {
	config := DefaultConfig()
	config.AutoApproveThreshold = 98.0
	config.ReviewThreshold = 85.0
	config.DateRangeDays = 3
	config.FuzzyThreshold = 90.0
	config.AmountTolerance = decimal.NewFromFloat(0.01)
	config.MaxSubsetSize = 2
	return config
}

// RelaxedConfig returns a configuration for exploratory matching
func RelaxedConfig() *Config {
	config := DefaultConfig()
	config.AutoApproveThreshold = 90.0
	config.ReviewThreshold = 60.0
	config.DateRangeDays = 30
	config.FuzzyThreshold = 70.0
	config.AmountTolerance = decimal.NewFromFloat(5.00)
	config.EnablePartialMatching = true
	return config
}

// Validate checks if the configuration is valid. A misconfigured run must
// fail before any processing rather than silently produce meaningless
// classifications.
func (c *Config) Validate() error {
	if c.AutoApproveThreshold < 0 || c.AutoApproveThreshold > 100 {
		return fmt.Errorf("auto-approve threshold must be between 0 and 100: %f", c.AutoApproveThreshold)
	}

	if c.ReviewThreshold < 0 || c.ReviewThreshold > 100 {
		return fmt.Errorf("review threshold must be between 0 and 100: %f", c.ReviewThreshold)
	}

	if c.ReviewThreshold >= c.AutoApproveThreshold {
		return fmt.Errorf("review threshold (%f) must be below auto-approve threshold (%f)",
			c.ReviewThreshold, c.AutoApproveThreshold)
	}

	if c.DateRangeDays < 0 {
		return fmt.Errorf("date range days cannot be negative: %d", c.DateRangeDays)
	}

	if c.FuzzyThreshold < 0 || c.FuzzyThreshold > 100 {
		return fmt.Errorf("fuzzy threshold must be between 0 and 100: %f", c.FuzzyThreshold)
	}

	if c.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative: %s", c.AmountTolerance.String())
	}

	if c.MaxSubsetSize < 1 {
		return fmt.Errorf("max subset size must be at least 1: %d", c.MaxSubsetSize)
	}

	if c.MaxCandidatesPerTransaction <= 0 {
		return fmt.Errorf("max candidates per transaction must be positive: %d", c.MaxCandidatesPerTransaction)
	}

	if c.MinPartialRatio < 0.0 || c.MinPartialRatio > 1.0 {
		return fmt.Errorf("min partial ratio must be between 0.0 and 1.0: %f", c.MinPartialRatio)
	}

	if c.SemanticConfirmedConfidence < c.ReviewThreshold || c.SemanticConfirmedConfidence > 100 {
		return fmt.Errorf("semantic confirmed confidence must be between review threshold and 100: %f",
			c.SemanticConfirmedConfidence)
	}

	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c

	if c.Associations != nil {
		clone.Associations = make(map[string]string, len(c.Associations))
		for k, v := range c.Associations {
			clone.Associations[k] = v
		}
	}

	if c.DeniedPairs != nil {
		clone.DeniedPairs = make(map[DeniedPair]bool, len(c.DeniedPairs))
		for k, v := range c.DeniedPairs {
			clone.DeniedPairs[k] = v
		}
	}

	return &clone
}

// Classify maps a confidence value to its classification band
func (c *Config) Classify(confidence float64) models.Classification {
	switch {
	case confidence >= c.AutoApproveThreshold:
		return models.ClassificationAutoApproved
	case confidence >= c.ReviewThreshold:
		return models.ClassificationNeedsReview
	default:
		return models.ClassificationRejected
	}
}

// IsDenied reports whether a transaction-invoice pairing was rejected by a
// reviewer
func (c *Config) IsDenied(transactionDescription, invoiceID string) bool {
	if c.DeniedPairs == nil {
		return false
	}
	return c.DeniedPairs[DeniedPair{
		TransactionDescription: transactionDescription,
		InvoiceID:              invoiceID,
	}]
}

// String returns a human-readable description of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{AutoApprove: %.0f, Review: %.0f, DateRange: %d days, Fuzzy: %.0f, Tolerance: %s, MaxSubset: %d}",
		c.AutoApproveThreshold, c.ReviewThreshold, c.DateRangeDays, c.FuzzyThreshold,
		c.AmountTolerance.String(), c.MaxSubsetSize)
}
