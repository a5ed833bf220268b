package matcher

import (
	"strings"

	"payment-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Scorer evaluates individual matching strategies for a transaction-invoice
// pair. Each strategy returns a score in [0, 100] and a fired flag; a
// strategy that does not fire contributes nothing to the combined
// confidence.
type Scorer struct {
	config *Config
}

// NewScorer creates a scorer with the given configuration
func NewScorer(config *Config) *Scorer {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scorer{config: config}
}

// ScoreInvoiceNumber checks whether the invoice's reference number appears
// in the transaction description. Hyphens, spaces and case are ignored so
// "INV-2024-0042", "INV 2024 0042" and "inv20240042" all hit.
func (s *Scorer) ScoreInvoiceNumber(tx *models.Transaction, inv *models.Invoice) models.StrategySignal {
	signal := models.StrategySignal{Strategy: StrategyInvoiceNumber}

	number := NormalizeInvoiceNumber(inv.Number)
	if number == "" {
		return signal
	}

	description := NormalizeInvoiceNumber(tx.Description)
	if !strings.Contains(description, number) {
		return signal
	}

	signal.Fired = true
	signal.Score = 100.0

	// Bare numeric references ("0042") are too short to be distinctive;
	// discount them so a stray account number does not look like a
	// reference hit.
	if len(number) < 5 {
		signal.Score = 80.0
	}

	return signal
}

// ScoreAmount compares the transaction amount against an expected amount
// using tiered tolerance bands. Differences are measured both absolutely
// (covers fixed wire fees) and relatively (covers percentage processor
// fees); the better of the two determines the tier.
func (s *Scorer) ScoreAmount(txAmount, expected decimal.Decimal) models.StrategySignal {
	signal := models.StrategySignal{Strategy: StrategyExactAmount}

	if expected.IsZero() {
		return signal
	}

	diff := txAmount.Sub(expected).Abs()
	relative, _ := diff.Div(expected).Float64()

	switch {
	case diff.LessThanOrEqual(s.config.AmountTolerance):
		signal.Score = 100.0
	case relative <= 0.01:
		signal.Score = 95.0
	case relative <= 0.02:
		signal.Score = 85.0
	case relative <= 0.05:
		signal.Score = 70.0
	case relative <= 0.10:
		signal.Score = 50.0
	default:
		return signal
	}

	signal.Fired = true
	return signal
}

// ScoreName measures how well the transaction's counterparty resembles the
// invoice's company name. Both sides are cleaned of corporate suffixes and
// payment-processor noise before comparison.
func (s *Scorer) ScoreName(tx *models.Transaction, inv *models.Invoice) models.StrategySignal {
	signal := models.StrategySignal{Strategy: StrategyFuzzyName}

	counterparty := tx.Counterparty
	if counterparty == "" {
		counterparty = ExtractCounterparty(tx.Description)
	}

	cleanTx := StripProcessorNames(CleanCompanyName(counterparty))
	cleanInv := CleanCompanyName(inv.CompanyName)
	if cleanTx == "" || cleanInv == "" {
		return signal
	}

	// Reviewer-approved associations override string similarity entirely
	if s.config.Associations != nil {
		if learned, ok := s.config.Associations[cleanTx]; ok && learned == cleanInv {
			signal.Strategy = StrategyAssociation
			signal.Fired = true
			signal.Score = 100.0
			return signal
		}
	}

	score := nameSimilarity(cleanTx, cleanInv)

	// A recognized processor in the description explains why the
	// counterparty string is noisy; give ambiguous names a nudge
	if DetectProcessor(tx.Description) != nil {
		score += 5.0
	}

	if score > 100.0 {
		score = 100.0
	}

	// Below-threshold similarity is still evidence: the combiner uses the
	// raw score to spot a counterparty that contradicts the invoice
	signal.Score = score
	signal.Fired = score >= s.config.FuzzyThreshold
	return signal
}

// nameSimilarity combines edit-distance similarity with word containment.
// Containment handles abbreviated bank descriptors ("ACME CORP" for
// "Acme Corporation Holdings") that pure edit distance punishes.
func nameSimilarity(a, b string) float64 {
	ratio := levenshtein.RatioForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
	score := ratio * 100.0

	wordsA := MeaningfulWords(a)
	wordsB := MeaningfulWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return score
	}

	shorter, longer := wordsA, wordsB
	if len(wordsB) < len(wordsA) {
		shorter, longer = wordsB, wordsA
	}

	contained := 0
	for word := range shorter {
		if longer[word] {
			contained++
		}
	}

	if contained == len(shorter) {
		containment := 90.0 + 10.0*float64(len(shorter))/float64(len(longer))
		if containment > score {
			score = containment
		}
	} else if contained > 0 {
		overlap := 100.0 * float64(contained) / float64(len(longer))
		if overlap > score {
			score = overlap
		}
	}

	return score
}

// ScoreDate rates the proximity of the transaction date to the invoice due
// date. Payments arriving slightly before the due date are as normal as
// payments slightly after, so the window is symmetric.
func (s *Scorer) ScoreDate(tx *models.Transaction, inv *models.Invoice) models.StrategySignal {
	signal := models.StrategySignal{Strategy: StrategyDateProximity}

	if tx.Date.IsZero() || inv.DueDate.IsZero() {
		return signal
	}

	days := models.DaysBetween(tx.Date, inv.DueDate)
	if days > s.config.DateRangeDays {
		return signal
	}

	switch {
	case days == 0:
		signal.Score = 100.0
	case days <= 1:
		signal.Score = 95.0
	case days <= 3:
		signal.Score = 85.0
	case days <= 7:
		signal.Score = 70.0
	default:
		signal.Score = 50.0
	}

	signal.Fired = true
	return signal
}

// ScoreSubset rates a multi-invoice candidate: the transaction amount
// against the sum of the subset's amounts. Only near-exact sums are
// credible; a loose subset sum is coincidence, not evidence.
func (s *Scorer) ScoreSubset(tx *models.Transaction, invoices []*models.Invoice) models.StrategySignal {
	signal := models.StrategySignal{Strategy: StrategyMultiInvoice}

	if len(invoices) < 2 {
		return signal
	}

	sum := decimal.Zero
	for _, inv := range invoices {
		sum = sum.Add(inv.AmountDue)
	}

	diff := tx.Amount.Abs().Sub(sum).Abs()
	if !diff.LessThanOrEqual(s.config.AmountTolerance) {
		return signal
	}

	signal.Fired = true
	signal.Score = 100.0

	// Larger subsets have more ways to sum to any given amount; discount
	// them to keep two-invoice pairings preferred over four-way splits
	signal.Score -= 2.0 * float64(len(invoices)-2)
	return signal
}
