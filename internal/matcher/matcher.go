package matcher

import (
	"sort"

	"payment-reconciliation-service/internal/models"
	"payment-reconciliation-service/pkg/logger"
)

// Engine ties candidate generation, scoring and resolution together over
// one invoice set. An engine is built per run; LoadInvoices must be called
// before scoring.
type Engine struct {
	config   *Config
	scorer   *Scorer
	combiner *Combiner
	resolver *Resolver
	index    *InvoiceIndex
	log      logger.Logger
}

// NewEngine creates a matching engine with the given configuration
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{
		config:   config,
		scorer:   NewScorer(config),
		combiner: NewCombiner(config),
		resolver: NewResolver(config),
		log:      logger.WithComponent("matcher"),
	}
}

// Config returns the engine's configuration
func (e *Engine) Config() *Config {
	return e.config
}

// LoadInvoices indexes the invoice set for this run
func (e *Engine) LoadInvoices(invoices []*models.Invoice) {
	e.index = NewInvoiceIndex(invoices)
	e.log.WithFields(logger.Fields{
		"total": len(invoices),
		"open":  e.index.Size(),
	}).Debug("Indexed invoices")
}

// Index returns the engine's invoice index
func (e *Engine) Index() *InvoiceIndex {
	return e.index
}

// ScoreTransaction generates and scores candidates for one transaction,
// returning them ranked best-first and truncated to the configured pool
// size. Debit transactions are skipped; only incoming payments settle
// receivables.
func (e *Engine) ScoreTransaction(tx *models.Transaction) []*Candidate {
	if tx == nil || e.index == nil {
		return nil
	}
	if tx.Direction == models.DirectionDebit {
		return nil
	}

	generator := NewGenerator(e.config, e.index)
	candidates := generator.Generate(tx)

	for _, candidate := range candidates {
		e.score(candidate)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		if len(candidates[i].Invoices) != len(candidates[j].Invoices) {
			return len(candidates[i].Invoices) < len(candidates[j].Invoices)
		}
		return candidates[i].Order < candidates[j].Order
	})

	if len(candidates) > e.config.MaxCandidatesPerTransaction {
		candidates = candidates[:e.config.MaxCandidatesPerTransaction]
	}

	e.log.WithFields(logger.Fields{
		"transaction": tx.ID,
		"candidates":  len(candidates),
	}).Debug("Scored transaction")

	return candidates
}

func (e *Engine) score(candidate *Candidate) {
	tx := candidate.Transaction

	if len(candidate.Invoices) == 1 {
		inv := candidate.Invoices[0]
		candidate.Signals = append(candidate.Signals,
			e.scorer.ScoreInvoiceNumber(tx, inv),
			e.scorer.ScoreAmount(tx.AbsoluteAmount(), inv.AmountDue),
			e.scorer.ScoreName(tx, inv),
			e.scorer.ScoreDate(tx, inv),
		)
	} else {
		// Multi-invoice candidates score name and date against the group;
		// all invoices in a subset share a company by construction
		inv := candidate.Invoices[0]
		candidate.Signals = append(candidate.Signals,
			e.scorer.ScoreSubset(tx, candidate.Invoices),
			e.scorer.ScoreName(tx, inv),
			e.bestDateSignal(tx, candidate.Invoices),
		)
	}

	e.combiner.Combine(candidate)
}

func (e *Engine) bestDateSignal(tx *models.Transaction, invoices []*models.Invoice) models.StrategySignal {
	best := models.StrategySignal{Strategy: StrategyDateProximity}
	for _, inv := range invoices {
		if sig := e.scorer.ScoreDate(tx, inv); sig.Fired && sig.Score > best.Score {
			best = sig
		}
	}
	return best
}

// ScoreTransactions scores every transaction and returns the combined
// candidate pool, preserving per-transaction ranking
func (e *Engine) ScoreTransactions(transactions []*models.Transaction) []*Candidate {
	var all []*Candidate
	for _, tx := range transactions {
		all = append(all, e.ScoreTransaction(tx)...)
	}
	return all
}

// Resolve runs the greedy assignment pass over a candidate pool
func (e *Engine) Resolve(candidates []*Candidate) *Resolution {
	resolution := e.resolver.Resolve(candidates)
	e.log.WithFields(logger.Fields{
		"accepted":  len(resolution.Accepted),
		"displaced": len(resolution.Displaced),
	}).Debug("Resolved candidates")
	return resolution
}

// ToMatch converts an accepted candidate into a match record
func (e *Engine) ToMatch(candidate *Candidate) *models.Match {
	return e.resolver.ToMatch(candidate)
}
