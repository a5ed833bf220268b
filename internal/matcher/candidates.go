package matcher

import (
	"sort"

	"payment-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// Candidate is a scored pairing of one transaction with one or more
// invoices. Candidates are produced per transaction, ranked by the
// combiner, and consumed by the resolver.
type Candidate struct {
	Transaction *models.Transaction
	Invoices    []*models.Invoice
	Signals     []models.StrategySignal
	Confidence  float64
	Partial     bool

	// Order preserves discovery sequence for deterministic tie-breaking
	Order int
}

// InvoiceIDs returns the candidate's invoice identifiers in stored order
func (c *Candidate) InvoiceIDs() []string {
	ids := make([]string, len(c.Invoices))
	for i, inv := range c.Invoices {
		ids[i] = inv.ID
	}
	return ids
}

// DominantStrategy returns the fired signal with the highest score
func (c *Candidate) DominantStrategy() string {
	best := ""
	bestScore := -1.0
	for _, sig := range c.Signals {
		if sig.Fired && sig.Score > bestScore {
			best = sig.Strategy
			bestScore = sig.Score
		}
	}
	return best
}

// MatchedAmount returns the sum of the candidate's invoice amounts
func (c *Candidate) MatchedAmount() decimal.Decimal {
	sum := decimal.Zero
	for _, inv := range c.Invoices {
		sum = sum.Add(inv.AmountDue)
	}
	return sum
}

// Generator produces candidate pairings for a transaction against an
// invoice index. Generation narrows the search space before the expensive
// scoring step; scoring then decides which candidates are credible.
type Generator struct {
	config *Config
	index  *InvoiceIndex
}

// NewGenerator creates a candidate generator
func NewGenerator(config *Config, index *InvoiceIndex) *Generator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Generator{config: config, index: index}
}

// Generate returns candidate pairings for one transaction. Three passes
// feed the pool:
//  1. Single invoices whose amount falls inside the tolerance-scaled window
//     and whose due date falls inside the date window
//  2. Invoices whose number appears in the description, regardless of
//     amount or date (fee-adjusted or late payments still carry the
//     reference; only this pass bypasses the windows)
//  3. Multi-invoice subsets per company whose amounts sum to the
//     transaction amount, every member inside the date window
//
// Currency mismatches are excluded outright.
func (g *Generator) Generate(tx *models.Transaction) []*Candidate {
	if tx == nil || g.index.Size() == 0 {
		return nil
	}

	amount := tx.AbsoluteAmount()
	seen := make(map[string]bool)
	var candidates []*Candidate

	add := func(invoices []*models.Invoice, partial bool) {
		key := candidateKey(invoices)
		if seen[key] {
			return
		}
		for _, inv := range invoices {
			if !sameCurrency(tx, inv) || g.config.IsDenied(tx.Description, inv.ID) {
				return
			}
		}
		seen[key] = true
		candidates = append(candidates, &Candidate{
			Transaction: tx,
			Invoices:    invoices,
			Partial:     partial,
			Order:       len(candidates),
		})
	}

	// Pass 1: amount window. The window widens with the relative tier
	// bands so percentage-fee payments still surface.
	window := amount.Mul(decimal.NewFromFloat(0.10))
	if window.LessThan(g.config.AmountTolerance) {
		window = g.config.AmountTolerance
	}
	for _, inv := range g.index.FindByAmountRange(amount.Sub(window), amount.Add(window)) {
		if !WithinDateWindow(tx.Date, inv.DueDate, g.config.DateRangeDays) {
			continue
		}
		add([]*models.Invoice{inv}, false)
	}

	// Pass 2: invoice-number hits anywhere in the description
	normalized := NormalizeInvoiceNumber(tx.Description)
	for _, inv := range g.index.FindByNumber(normalized) {
		add([]*models.Invoice{inv}, false)
	}

	// Pass 3: per-company subset sums
	for _, subset := range g.generateSubsets(tx, amount) {
		add(subset, false)
	}

	// Optional pass 4: partial payments against larger invoices
	if g.config.EnablePartialMatching {
		for _, inv := range g.partialCandidates(tx, amount) {
			add([]*models.Invoice{inv}, true)
		}
	}

	return candidates
}

func candidateKey(invoices []*models.Invoice) string {
	ids := make([]string, len(invoices))
	for i, inv := range invoices {
		ids[i] = inv.ID
	}
	sort.Strings(ids)
	key := ""
	for _, id := range ids {
		key += id + "|"
	}
	return key
}

func sameCurrency(tx *models.Transaction, inv *models.Invoice) bool {
	return tx.Currency == "" || inv.Currency == "" || tx.Currency == inv.Currency
}

// generateSubsets finds per-company invoice subsets of size 2 up to
// MaxSubsetSize whose amounts sum to the transaction amount within
// tolerance. Invoices outside the date window never join a subset.
// The search is depth-first over amount-sorted invoices with
// pruning: once a running sum exceeds the target plus tolerance, no deeper
// extension can recover because amounts are non-negative.
func (g *Generator) generateSubsets(tx *models.Transaction, amount decimal.Decimal) [][]*models.Invoice {
	if g.config.MaxSubsetSize < 2 {
		return nil
	}

	target := amount
	tolerance := g.config.AmountTolerance
	upper := target.Add(tolerance)

	var results [][]*models.Invoice

	for _, group := range g.index.CompanyGroups() {
		invoices := make([]*models.Invoice, 0, len(group.Invoices))
		for _, inv := range group.Invoices {
			if WithinDateWindow(tx.Date, inv.DueDate, g.config.DateRangeDays) {
				invoices = append(invoices, inv)
			}
		}
		if len(invoices) < 2 {
			continue
		}
		sort.Slice(invoices, func(i, j int) bool {
			if !invoices[i].AmountDue.Equal(invoices[j].AmountDue) {
				return invoices[i].AmountDue.LessThan(invoices[j].AmountDue)
			}
			return invoices[i].ID < invoices[j].ID
		})

		var current []*models.Invoice
		var search func(start int, sum decimal.Decimal)
		search = func(start int, sum decimal.Decimal) {
			if len(current) >= 2 && sum.Sub(target).Abs().LessThanOrEqual(tolerance) {
				subset := make([]*models.Invoice, len(current))
				copy(subset, current)
				results = append(results, subset)
			}
			if len(current) == g.config.MaxSubsetSize {
				return
			}
			for i := start; i < len(invoices); i++ {
				next := sum.Add(invoices[i].AmountDue)
				if next.GreaterThan(upper) {
					// Sorted ascending, every later invoice overshoots too
					return
				}
				current = append(current, invoices[i])
				search(i+1, next)
				current = current[:len(current)-1]
			}
		}
		search(0, decimal.Zero)
	}

	return results
}

// partialCandidates returns single invoices the transaction could be an
// installment against: the invoice is larger than the payment and the
// payment covers at least the configured minimum share
func (g *Generator) partialCandidates(tx *models.Transaction, amount decimal.Decimal) []*models.Invoice {
	if amount.IsZero() {
		return nil
	}

	var found []*models.Invoice
	for _, inv := range g.index.All() {
		if !inv.AmountDue.GreaterThan(amount.Add(g.config.AmountTolerance)) {
			continue
		}
		ratio, _ := amount.Div(inv.AmountDue).Float64()
		if ratio < g.config.MinPartialRatio {
			continue
		}
		if !WithinDateWindow(tx.Date, inv.DueDate, g.config.DateRangeDays) {
			continue
		}
		found = append(found, inv)
	}
	return found
}
