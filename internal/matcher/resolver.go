package matcher

import (
	"sort"
	"time"

	"payment-reconciliation-service/internal/models"
)

// Resolver assigns scored candidates to final matches. Resolution is
// greedy and serial: candidates are taken best-first, and a candidate is
// accepted only if its transaction and every one of its invoices are still
// unclaimed. The at-most-once invariant holds for both sides of every run.
type Resolver struct {
	config *Config
}

// NewResolver creates a resolver with the given configuration
func NewResolver(config *Config) *Resolver {
	if config == nil {
		config = DefaultConfig()
	}
	return &Resolver{config: config}
}

// Resolution is the outcome of an assignment pass
type Resolution struct {
	// Accepted candidates, in assignment order
	Accepted []*Candidate

	// Displaced candidates that lost their transaction or an invoice to a
	// higher-ranked candidate
	Displaced []*Candidate
}

// Resolve ranks candidates and assigns them greedily. Candidates below the
// review threshold never claim resources; a weak pairing must not steal an
// invoice from a later strong one.
//
// Ranking is fully deterministic. Ties on confidence break toward fewer
// invoices (the simpler explanation), then toward the more recent due date
// (older invoices stay available for older payments), then discovery order.
func (r *Resolver) Resolve(candidates []*Candidate) *Resolution {
	ranked := make([]*Candidate, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if len(a.Invoices) != len(b.Invoices) {
			return len(a.Invoices) < len(b.Invoices)
		}
		aDue, bDue := latestDueDate(a), latestDueDate(b)
		if !aDue.Equal(bDue) {
			return aDue.After(bDue)
		}
		if a.Transaction.ID != b.Transaction.ID {
			return a.Transaction.ID < b.Transaction.ID
		}
		return a.Order < b.Order
	})

	resolution := &Resolution{}
	usedTransactions := make(map[string]bool)
	usedInvoices := make(map[string]bool)

	for _, candidate := range ranked {
		if candidate.Confidence < r.config.ReviewThreshold {
			continue
		}

		if usedTransactions[candidate.Transaction.ID] || anyInvoiceUsed(candidate, usedInvoices) {
			resolution.Displaced = append(resolution.Displaced, candidate)
			continue
		}

		usedTransactions[candidate.Transaction.ID] = true
		for _, inv := range candidate.Invoices {
			usedInvoices[inv.ID] = true
		}
		resolution.Accepted = append(resolution.Accepted, candidate)
	}

	return resolution
}

func latestDueDate(c *Candidate) time.Time {
	var latest time.Time
	for _, inv := range c.Invoices {
		if inv.DueDate.After(latest) {
			latest = inv.DueDate
		}
	}
	return latest
}

func anyInvoiceUsed(c *Candidate, used map[string]bool) bool {
	for _, inv := range c.Invoices {
		if used[inv.ID] {
			return true
		}
	}
	return false
}

// ToMatch converts an accepted candidate into a match record
func (r *Resolver) ToMatch(candidate *Candidate) *models.Match {
	return &models.Match{
		TransactionID:    candidate.Transaction.ID,
		InvoiceIDs:       candidate.InvoiceIDs(),
		Confidence:       candidate.Confidence,
		DominantStrategy: candidate.DominantStrategy(),
		Classification:   r.config.Classify(candidate.Confidence),
		Partial:          candidate.Partial,
		Signals:          candidate.Signals,
		MatchedAmount:    candidate.MatchedAmount(),
	}
}
