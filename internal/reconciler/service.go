// Package reconciler orchestrates a full reconciliation run: input
// validation, concurrent candidate scoring, serial resolution, optional
// semantic disambiguation and final classification.
package reconciler

import (
	"context"
	"runtime"
	"sort"
	"time"

	"payment-reconciliation-service/internal/matcher"
	"payment-reconciliation-service/internal/models"
	"payment-reconciliation-service/internal/semantic"
	apperrors "payment-reconciliation-service/pkg/errors"
	"payment-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Options configures a reconciliation service
type Options struct {
	// Config drives the matching engine; nil uses DefaultConfig
	Config *matcher.Config

	// Semantic is the disambiguation client; nil disables the semantic
	// pass regardless of Config.SemanticEnabled
	Semantic semantic.Client

	// Workers bounds scoring concurrency; zero uses GOMAXPROCS
	Workers int
}

// Service runs reconciliation passes. A service is safe to reuse across
// runs; each run builds its own engine and index.
type Service struct {
	config   *matcher.Config
	semantic semantic.Client
	workers  int
	log      logger.Logger
}

// NewService creates a reconciliation service
func NewService(opts Options) (*Service, error) {
	config := opts.Config
	if config == nil {
		config = matcher.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(
			apperrors.CodeInvalidConfig, "matching", config.String(), err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Service{
		config:   config,
		semantic: opts.Semantic,
		workers:  workers,
		log:      logger.WithComponent("reconciler"),
	}, nil
}

// scoringResult carries one transaction's ranked candidates out of the
// worker pool
type scoringResult struct {
	transaction *models.Transaction
	candidates  []*matcher.Candidate
}

// Run reconciles the given transactions against the given invoices and
// returns the complete run result. Invalid records are skipped and
// counted, never fatal; a run only fails on configuration problems or
// context cancellation.
func (s *Service) Run(ctx context.Context, transactions []*models.Transaction, invoices []*models.Invoice) (*models.RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	startedAt := time.Now()

	result := &models.RunResult{
		RunID:     uuid.New().String(),
		StartedAt: startedAt,
	}
	result.Stats.TotalTransactions = len(transactions)
	result.Stats.TotalInvoices = len(invoices)
	result.Stats.TotalMatchedAmount = decimal.Zero

	runLog := s.log.WithField("run_id", result.RunID)
	runLog.WithFields(logger.Fields{
		"transactions": len(transactions),
		"invoices":     len(invoices),
	}).Info("Starting reconciliation run")

	eligibleTx := s.filterTransactions(transactions, &result.Stats, runLog)
	eligibleInv := s.filterInvoices(invoices, &result.Stats, runLog)

	engine := matcher.NewEngine(s.config)
	engine.LoadInvoices(eligibleInv)

	perTransaction, err := s.scoreAll(ctx, engine, eligibleTx)
	if err != nil {
		return nil, err
	}

	var pool []*matcher.Candidate
	for _, res := range perTransaction {
		pool = append(pool, res.candidates...)
	}

	resolution := engine.Resolve(pool)

	matches := make([]*models.Match, 0, len(resolution.Accepted))
	for _, candidate := range resolution.Accepted {
		matches = append(matches, engine.ToMatch(candidate))
	}

	if err := assertExclusiveAssignment(matches); err != nil {
		return nil, err
	}

	s.countRejected(perTransaction, matches, &result.Stats)

	if s.semanticEnabled() {
		s.disambiguate(ctx, matches, perTransaction, &result.Stats, runLog)
	}

	s.finalize(result, matches, eligibleTx, engine)

	result.Duration = time.Since(startedAt)
	runLog.WithFields(logger.Fields{
		"matches":       len(result.Matches),
		"auto_approved": result.Stats.AutoApproved,
		"needs_review":  result.Stats.NeedsReview,
		"duration":      result.Duration.String(),
	}).Info("Reconciliation run complete")

	return result, nil
}

func (s *Service) filterTransactions(transactions []*models.Transaction, stats *models.RunStats, runLog logger.Logger) []*models.Transaction {
	eligible := make([]*models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if tx == nil {
			stats.SkippedTransactions++
			continue
		}
		if err := tx.Validate(); err != nil {
			stats.SkippedTransactions++
			runLog.WithError(err).WithField("transaction", tx.ID).Warn("Skipping invalid transaction")
			continue
		}
		eligible = append(eligible, tx)
	}
	stats.EligibleTransactions = len(eligible)
	return eligible
}

func (s *Service) filterInvoices(invoices []*models.Invoice, stats *models.RunStats, runLog logger.Logger) []*models.Invoice {
	eligible := make([]*models.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv == nil {
			stats.SkippedInvoices++
			continue
		}
		if err := inv.Validate(); err != nil {
			stats.SkippedInvoices++
			runLog.WithError(err).WithField("invoice", inv.ID).Warn("Skipping invalid invoice")
			continue
		}
		if inv.Status != models.InvoiceStatusOpen {
			stats.SkippedInvoices++
			continue
		}
		eligible = append(eligible, inv)
	}
	stats.EligibleInvoices = len(eligible)
	return eligible
}

// scoreAll scores transactions concurrently. The engine's index is
// immutable during scoring, so workers share it without locking; only the
// resolution pass that follows is serial.
func (s *Service) scoreAll(ctx context.Context, engine *matcher.Engine, transactions []*models.Transaction) (map[string]*scoringResult, error) {
	workChan := make(chan *models.Transaction, len(transactions))
	resultsChan := make(chan *scoringResult, len(transactions))

	workers := s.workers
	if workers > len(transactions) && len(transactions) > 0 {
		workers = len(transactions)
	}

	for i := 0; i < workers; i++ {
		go func() {
			for tx := range workChan {
				resultsChan <- &scoringResult{
					transaction: tx,
					candidates:  engine.ScoreTransaction(tx),
				}
			}
		}()
	}

	for _, tx := range transactions {
		workChan <- tx
	}
	close(workChan)

	results := make(map[string]*scoringResult, len(transactions))
	for range transactions {
		select {
		case res := <-resultsChan:
			results[res.transaction.ID] = res
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return results, nil
}

// countRejected tallies transactions whose candidates all scored below the
// review threshold. The resolver discards them before assignment, so they
// surface only here and in the unmatched list. Transactions displaced by a
// stronger claim on the same invoice are not rejected; their candidates
// cleared the threshold.
func (s *Service) countRejected(perTransaction map[string]*scoringResult, matches []*models.Match, stats *models.RunStats) {
	matched := make(map[string]bool, len(matches))
	for _, match := range matches {
		matched[match.TransactionID] = true
	}

	for _, res := range perTransaction {
		if matched[res.transaction.ID] || len(res.candidates) == 0 {
			continue
		}
		best := 0.0
		for _, candidate := range res.candidates {
			if candidate.Confidence > best {
				best = candidate.Confidence
			}
		}
		if best < s.config.ReviewThreshold {
			stats.Rejected++
		}
	}
}

func (s *Service) semanticEnabled() bool {
	return s.config.SemanticEnabled && s.semantic != nil
}

// disambiguate runs the semantic pass over matches in the review band.
// A confirmed verdict that names the match's invoices lifts the match to
// the configured semantic confidence; every failure degrades to the
// rule-based result.
func (s *Service) disambiguate(ctx context.Context, matches []*models.Match, perTransaction map[string]*scoringResult, stats *models.RunStats, runLog logger.Logger) {
	for _, match := range matches {
		if match.Confidence >= s.config.AutoApproveThreshold || match.Confidence < s.config.ReviewThreshold {
			continue
		}

		res, ok := perTransaction[match.TransactionID]
		if !ok {
			continue
		}

		stats.SemanticCalls++
		verdict, err := s.semantic.Disambiguate(ctx, buildRequest(res))
		if err != nil {
			stats.SemanticFailures++
			runLog.WithError(err).WithField("transaction", match.TransactionID).
				Warn("Semantic call failed, keeping rule-based result")
			if ctx.Err() != nil {
				// The run is being cancelled; stop burning calls
				return
			}
			continue
		}

		if !verdict.Confirmed || !sameInvoiceSet(verdict.InvoiceIDs, match.InvoiceIDs) {
			continue
		}

		stats.SemanticConfirmed++
		if s.config.SemanticConfirmedConfidence > match.Confidence {
			match.Confidence = s.config.SemanticConfirmedConfidence
		}
		match.AIConfirmed = true
		match.DominantStrategy = matcher.StrategySemantic
		match.SemanticRationale = verdict.Rationale
		match.Classification = s.config.Classify(match.Confidence)
	}
}

// maxSemanticCandidates bounds the shortlist sent per disambiguation call
const maxSemanticCandidates = 5

func buildRequest(res *scoringResult) *semantic.Request {
	tx := res.transaction
	req := &semantic.Request{
		TransactionID:          tx.ID,
		TransactionDescription: tx.Description,
		TransactionAmount:      tx.Amount.String(),
		TransactionDate:        tx.Date.Format("2006-01-02"),
	}

	candidates := res.candidates
	if len(candidates) > maxSemanticCandidates {
		candidates = candidates[:maxSemanticCandidates]
	}

	for _, candidate := range candidates {
		record := semantic.CandidateRecord{
			InvoiceIDs: candidate.InvoiceIDs(),
			Confidence: candidate.Confidence,
		}
		if len(candidate.Invoices) > 0 {
			first := candidate.Invoices[0]
			record.CompanyName = first.CompanyName
			record.DueDate = first.DueDate.Format("2006-01-02")
		}
		record.AmountDue = candidate.MatchedAmount().String()
		req.Candidates = append(req.Candidates, record)
	}

	return req
}

// assertExclusiveAssignment verifies no transaction or invoice appears in
// more than one match. The resolver prevents this by construction; a
// violation here is a bug, not a data problem.
func assertExclusiveAssignment(matches []*models.Match) error {
	usedTx := make(map[string]bool, len(matches))
	usedInv := make(map[string]bool)
	for _, match := range matches {
		if usedTx[match.TransactionID] {
			return apperrors.MatchingError(apperrors.CodeInvariantBroken, "assignment", nil).
				WithContext("transaction", match.TransactionID)
		}
		usedTx[match.TransactionID] = true
		for _, id := range match.InvoiceIDs {
			if usedInv[id] {
				return apperrors.MatchingError(apperrors.CodeInvariantBroken, "assignment", nil).
					WithContext("invoice", id)
			}
			usedInv[id] = true
		}
	}
	return nil
}

func sameInvoiceSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}

// finalize classifies matches, drops rejected ones and fills unmatched
// lists and aggregate stats
func (s *Service) finalize(result *models.RunResult, matches []*models.Match, transactions []*models.Transaction, engine *matcher.Engine) {
	kept := make([]*models.Match, 0, len(matches))
	for _, match := range matches {
		match.Classification = s.config.Classify(match.Confidence)
		if match.Partial && match.Classification == models.ClassificationAutoApproved {
			match.Classification = models.ClassificationNeedsReview
		}

		switch match.Classification {
		case models.ClassificationAutoApproved:
			result.Stats.AutoApproved++
		case models.ClassificationNeedsReview:
			result.Stats.NeedsReview++
		default:
			result.Stats.Rejected++
			continue
		}

		if match.AIConfirmed {
			result.Stats.AIConfirmedMatches++
		} else {
			result.Stats.RuleBasedMatches++
		}
		result.Stats.TotalMatchedAmount = result.Stats.TotalMatchedAmount.Add(match.MatchedAmount)
		kept = append(kept, match)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Confidence != kept[j].Confidence {
			return kept[i].Confidence > kept[j].Confidence
		}
		return kept[i].TransactionID < kept[j].TransactionID
	})
	result.Matches = kept

	matchedTx := result.MatchedTransactionIDs()
	for _, tx := range transactions {
		if !matchedTx[tx.ID] {
			result.UnmatchedTransactionIDs = append(result.UnmatchedTransactionIDs, tx.ID)
		}
	}

	matchedInv := result.MatchedInvoiceIDs()
	for _, inv := range engine.Index().All() {
		if !matchedInv[inv.ID] {
			result.UnmatchedInvoiceIDs = append(result.UnmatchedInvoiceIDs, inv.ID)
		}
	}

	sort.Strings(result.UnmatchedTransactionIDs)
	sort.Strings(result.UnmatchedInvoiceIDs)
}
