package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-reconciliation-service/internal/matcher"
	"payment-reconciliation-service/internal/models"
	"payment-reconciliation-service/internal/semantic"
)

var testDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func testTransaction(id, description, counterparty string, amount float64) *models.Transaction {
	return &models.Transaction{
		ID:           id,
		Amount:       decimal.NewFromFloat(amount),
		Currency:     "USD",
		Date:         testDate,
		Description:  description,
		Counterparty: counterparty,
		Direction:    models.DirectionCredit,
	}
}

func testInvoice(id, number, company string, amountDue float64) *models.Invoice {
	return &models.Invoice{
		ID:          id,
		Number:      number,
		CompanyName: company,
		AmountDue:   decimal.NewFromFloat(amountDue),
		Currency:    "USD",
		DueDate:     testDate,
		Status:      models.InvoiceStatusOpen,
	}
}

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	service, err := NewService(opts)
	require.NoError(t, err)
	return service
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	config := matcher.DefaultConfig()
	config.ReviewThreshold = config.AutoApproveThreshold

	_, err := NewService(Options{Config: config})
	require.Error(t, err)
}

func TestRunEndToEnd(t *testing.T) {
	service := newTestService(t, Options{})

	transactions := []*models.Transaction{
		testTransaction("TX1", "PAYMENT INV-1001", "Acme Corporation", 990),
		testTransaction("TX2", "PAYMENT RECEIVED", "Acme Logistics", 1012),
		testTransaction("TX3", "MISC DEPOSIT", "Unrelated Holdings", 47.13),
	}
	invoices := []*models.Invoice{
		testInvoice("I1", "INV-1001", "Acme Corporation", 1000),
		testInvoice("I2", "INV-1002", "Acme Logistica", 1000),
		testInvoice("I3", "INV-1003", "Initech Systems", 88000),
	}

	result, err := service.Run(context.Background(), transactions, invoices)
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Matches, 2)

	// Matches come back confidence-descending
	assert.Equal(t, "TX1", result.Matches[0].TransactionID)
	assert.Equal(t, models.ClassificationAutoApproved, result.Matches[0].Classification)
	assert.Equal(t, []string{"I1"}, result.Matches[0].InvoiceIDs)

	assert.Equal(t, "TX2", result.Matches[1].TransactionID)
	assert.Equal(t, models.ClassificationNeedsReview, result.Matches[1].Classification)
	assert.Equal(t, []string{"I2"}, result.Matches[1].InvoiceIDs)

	assert.Equal(t, []string{"TX3"}, result.UnmatchedTransactionIDs)
	assert.Equal(t, []string{"I3"}, result.UnmatchedInvoiceIDs)

	assert.Equal(t, 3, result.Stats.TotalTransactions)
	assert.Equal(t, 3, result.Stats.EligibleTransactions)
	assert.Equal(t, 1, result.Stats.AutoApproved)
	assert.Equal(t, 1, result.Stats.NeedsReview)
	assert.Equal(t, 2, result.Stats.RuleBasedMatches)
	assert.Equal(t, 0, result.Stats.AIConfirmedMatches)
	assert.True(t, result.Stats.TotalMatchedAmount.Equal(decimal.NewFromInt(2000)))
}

func TestRunSkipsInvalidRecords(t *testing.T) {
	service := newTestService(t, Options{})

	paid := testInvoice("I2", "INV-2002", "Globex Media", 500)
	paid.Status = models.InvoiceStatusPaid

	transactions := []*models.Transaction{
		nil,
		{ID: "", Currency: "USD"},
		testTransaction("TX1", "PAYMENT", "Acme Corporation", 1000),
	}
	invoices := []*models.Invoice{
		nil,
		testInvoice("I1", "INV-2001", "Acme Corporation", 1000),
		paid,
	}

	result, err := service.Run(context.Background(), transactions, invoices)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Stats.SkippedTransactions)
	assert.Equal(t, 1, result.Stats.EligibleTransactions)
	assert.Equal(t, 2, result.Stats.SkippedInvoices)
	assert.Equal(t, 1, result.Stats.EligibleInvoices)
}

func TestRunRejectedCountedInStats(t *testing.T) {
	service := newTestService(t, Options{})

	// Exact amount and date, but the counterparty resembles nothing on the
	// invoice; the only candidate falls below the review threshold
	transactions := []*models.Transaction{
		testTransaction("TX1", "PAYMENT", "Waystar Royco", 1000),
	}
	invoices := []*models.Invoice{
		testInvoice("I1", "INV-6001", "Pied Piper Inc", 1000),
	}

	result, err := service.Run(context.Background(), transactions, invoices)
	require.NoError(t, err)

	assert.Empty(t, result.Matches)
	assert.Equal(t, 1, result.Stats.Rejected)
	assert.Equal(t, []string{"TX1"}, result.UnmatchedTransactionIDs)
	assert.Equal(t, []string{"I1"}, result.UnmatchedInvoiceIDs)
}

func TestRunThresholdMonotonicity(t *testing.T) {
	transactions := []*models.Transaction{
		// Reference, name and amount all agree; top of the scale
		testTransaction("TX1", "PAYMENT INV-7001", "Acme Corporation", 1000),
		// Reference and amount agree, no counterparty evidence; lands
		// between the default and a raised auto-approve threshold
		testTransaction("TX2", "PAYMENT INV-7002", "", 2000),
		// Review band: close name, amount off by about one percent
		testTransaction("TX3", "PAYMENT RECEIVED", "Acme Logistics", 1012),
		// Below review: exact amount and date only
		testTransaction("TX4", "PAYMENT", "Waystar Royco", 3000),
	}
	invoices := []*models.Invoice{
		testInvoice("I1", "INV-7001", "Acme Corporation", 1000),
		testInvoice("I2", "INV-7002", "Zeta Holdings", 2000),
		testInvoice("I3", "INV-7003", "Acme Logistica", 1000),
		testInvoice("I4", "INV-7004", "Pied Piper Inc", 3000),
	}

	run := func(t *testing.T, auto, review float64) models.RunStats {
		t.Helper()
		config := matcher.DefaultConfig()
		config.AutoApproveThreshold = auto
		config.ReviewThreshold = review
		service := newTestService(t, Options{Config: config})
		result, err := service.Run(context.Background(), transactions, invoices)
		require.NoError(t, err)
		return result.Stats
	}

	base := run(t, 95, 70)
	require.Positive(t, base.AutoApproved)
	require.Positive(t, base.NeedsReview)

	// Raising the auto-approve threshold never approves more
	for _, auto := range []float64{96, 98, 100} {
		shifted := run(t, auto, 70)
		assert.LessOrEqual(t, shifted.AutoApproved, base.AutoApproved,
			"auto threshold %v", auto)
		assert.Equal(t, base.AutoApproved+base.NeedsReview,
			shifted.AutoApproved+shifted.NeedsReview,
			"matches shift bands, never disappear, at auto %v", auto)
	}

	// Lowering the review threshold never loses matches
	for _, review := range []float64{60, 45} {
		shifted := run(t, 95, review)
		assert.GreaterOrEqual(t, shifted.AutoApproved+shifted.NeedsReview,
			base.AutoApproved+base.NeedsReview,
			"review threshold %v", review)
		assert.Equal(t, base.AutoApproved, shifted.AutoApproved,
			"review threshold %v", review)
	}
}

func reviewBandFixtures() ([]*models.Transaction, []*models.Invoice) {
	transactions := []*models.Transaction{
		testTransaction("TX1", "PAYMENT RECEIVED", "Acme Logistics", 1012),
	}
	invoices := []*models.Invoice{
		testInvoice("I1", "INV-3001", "Acme Logistica", 1000),
	}
	return transactions, invoices
}

func TestRunSemanticConfirmation(t *testing.T) {
	config := matcher.DefaultConfig()
	config.SemanticEnabled = true

	mock := semantic.NewMockClient().Script("TX1", &semantic.Verdict{
		Confirmed:  true,
		InvoiceIDs: []string{"I1"},
		Rationale:  "counterparty matches the invoiced company",
	})
	service := newTestService(t, Options{Config: config, Semantic: mock})

	transactions, invoices := reviewBandFixtures()
	result, err := service.Run(context.Background(), transactions, invoices)
	require.NoError(t, err)

	require.Len(t, result.Matches, 1)
	match := result.Matches[0]
	assert.True(t, match.AIConfirmed)
	assert.Equal(t, matcher.StrategySemantic, match.DominantStrategy)
	assert.Equal(t, config.SemanticConfirmedConfidence, match.Confidence)
	assert.Equal(t, models.ClassificationNeedsReview, match.Classification,
		"semantic confirmation raises confidence but never auto-approves")
	assert.NotEmpty(t, match.SemanticRationale)

	assert.Equal(t, 1, result.Stats.SemanticCalls)
	assert.Equal(t, 1, result.Stats.SemanticConfirmed)
	assert.Equal(t, 0, result.Stats.SemanticFailures)
	assert.Equal(t, 1, result.Stats.AIConfirmedMatches)
	assert.Equal(t, 0, result.Stats.RuleBasedMatches)
}

func TestRunSemanticFailureDegrades(t *testing.T) {
	config := matcher.DefaultConfig()
	config.SemanticEnabled = true

	mock := semantic.NewMockClient()
	mock.Err = errors.New("service unavailable")
	service := newTestService(t, Options{Config: config, Semantic: mock})

	transactions, invoices := reviewBandFixtures()
	result, err := service.Run(context.Background(), transactions, invoices)
	require.NoError(t, err)

	require.Len(t, result.Matches, 1)
	match := result.Matches[0]
	assert.False(t, match.AIConfirmed)
	assert.Equal(t, models.ClassificationNeedsReview, match.Classification)

	assert.Equal(t, 1, result.Stats.SemanticCalls)
	assert.Equal(t, 1, result.Stats.SemanticFailures)
	assert.Equal(t, 0, result.Stats.SemanticConfirmed)
}

func TestRunSemanticOnlyCalledForReviewBand(t *testing.T) {
	config := matcher.DefaultConfig()
	config.SemanticEnabled = true

	mock := semantic.NewMockClient()
	service := newTestService(t, Options{Config: config, Semantic: mock})

	transactions := []*models.Transaction{
		// Auto-approved on invoice number; no call needed
		testTransaction("TX1", "PAYMENT INV-4001", "Acme Corporation", 1000),
		// Review band; disambiguation applies
		testTransaction("TX2", "PAYMENT RECEIVED", "Acme Logistics", 1012),
	}
	invoices := []*models.Invoice{
		testInvoice("I1", "INV-4001", "Acme Corporation", 1000),
		testInvoice("I2", "INV-4002", "Acme Logistica", 1000),
	}

	_, err := service.Run(context.Background(), transactions, invoices)
	require.NoError(t, err)

	require.Equal(t, 1, mock.CallCount())
	assert.Equal(t, "TX2", mock.Requests[0].TransactionID)
}

func TestRunSemanticVerdictMustNameTheMatch(t *testing.T) {
	config := matcher.DefaultConfig()
	config.SemanticEnabled = true

	// The verdict confirms a different invoice than the rule-based match
	mock := semantic.NewMockClient().Script("TX1", &semantic.Verdict{
		Confirmed:  true,
		InvoiceIDs: []string{"I9"},
	})
	service := newTestService(t, Options{Config: config, Semantic: mock})

	transactions, invoices := reviewBandFixtures()
	result, err := service.Run(context.Background(), transactions, invoices)
	require.NoError(t, err)

	require.Len(t, result.Matches, 1)
	assert.False(t, result.Matches[0].AIConfirmed)
	assert.Equal(t, 1, result.Stats.SemanticCalls)
	assert.Equal(t, 0, result.Stats.SemanticConfirmed)
}

func TestRunCancelledContext(t *testing.T) {
	service := newTestService(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transactions := []*models.Transaction{
		testTransaction("TX1", "PAYMENT", "Acme Corporation", 1000),
	}
	invoices := []*models.Invoice{
		testInvoice("I1", "INV-5001", "Acme Corporation", 1000),
	}

	_, err := service.Run(ctx, transactions, invoices)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
