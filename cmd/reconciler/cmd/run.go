package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"payment-reconciliation-service/cmd/reconciler/config"
	"payment-reconciliation-service/internal/parsers"
	"payment-reconciliation-service/internal/reconciler"
	"payment-reconciliation-service/internal/reporter"
	"payment-reconciliation-service/internal/semantic"
	"payment-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the run command
var (
	transactionsFile string
	invoicesFile     string
	outputFormat     string
	outputFile       string
	includeSignals   bool

	matchProfile    string
	autoApprove     float64
	reviewThreshold float64
	dateRangeDays   int
	fuzzyThreshold  float64
	amountTolerance float64
	maxSubsetSize   int
	partialMatching bool

	semanticEndpoint string
	semanticModel    string
	semanticTimeout  time.Duration
	workers          int
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Match bank transactions against open invoices",
	Long: `Run loads a bank transaction file and an invoice file, matches them,
and reports the results with a confidence and classification per match.

This command requires:
- A bank transaction file (CSV or JSON)
- An invoice file (CSV or JSON)

Examples:
  # Basic run
  reconciler run --transactions bank.csv --invoices invoices.csv

  # JSON output to a file with per-strategy signal detail
  reconciler run -t bank.csv -i invoices.csv \
    --output-format json --output-file result.json --include-signals

  # Tighter matching
  reconciler run -t bank.csv -i invoices.csv --profile strict

  # With AI disambiguation for ambiguous matches
  reconciler run -t bank.csv -i invoices.csv \
    --semantic-endpoint https://llm.internal/v1/disambiguate`,

	PreRunE: validateRunFlags,
	RunE:    runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&transactionsFile, "transactions", "t", "", "path to bank transaction file (required)")
	runCmd.Flags().StringVarP(&invoicesFile, "invoices", "i", "", "path to invoice file (required)")

	runCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	runCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	runCmd.Flags().BoolVar(&includeSignals, "include-signals", false, "include per-strategy signal detail in output")

	runCmd.Flags().StringVar(&matchProfile, "profile", "default", "matching profile: default, strict, relaxed")
	runCmd.Flags().Float64Var(&autoApprove, "auto-approve", 0, "auto-approve confidence threshold (overrides profile)")
	runCmd.Flags().Float64Var(&reviewThreshold, "review", 0, "review confidence threshold (overrides profile)")
	runCmd.Flags().IntVarP(&dateRangeDays, "date-range", "d", 0, "date window in days (overrides profile)")
	runCmd.Flags().Float64Var(&fuzzyThreshold, "fuzzy-threshold", 0, "minimum name similarity 0-100 (overrides profile)")
	runCmd.Flags().Float64VarP(&amountTolerance, "amount-tolerance", "a", 0, "absolute amount tolerance (overrides profile)")
	runCmd.Flags().IntVar(&maxSubsetSize, "max-subset", 0, "maximum invoices per multi-invoice match (overrides profile)")
	runCmd.Flags().BoolVar(&partialMatching, "partial-matching", false, "flag installment candidates for review")

	runCmd.Flags().StringVar(&semanticEndpoint, "semantic-endpoint", "", "AI disambiguation service URL (empty disables)")
	runCmd.Flags().StringVar(&semanticModel, "semantic-model", "", "model name for the disambiguation service")
	runCmd.Flags().DurationVar(&semanticTimeout, "semantic-timeout", 10*time.Second, "per-call disambiguation timeout")
	runCmd.Flags().IntVar(&workers, "workers", 0, "scoring worker count (default: CPU count)")

	runCmd.MarkFlagRequired("transactions")
	runCmd.MarkFlagRequired("invoices")

	viper.BindPFlag("transactions", runCmd.Flags().Lookup("transactions"))
	viper.BindPFlag("invoices", runCmd.Flags().Lookup("invoices"))
	viper.BindPFlag("output-format", runCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", runCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("profile", runCmd.Flags().Lookup("profile"))
	viper.BindPFlag("semantic-endpoint", runCmd.Flags().Lookup("semantic-endpoint"))
	viper.BindPFlag("semantic-model", runCmd.Flags().Lookup("semantic-model"))
}

func validateRunFlags(cmd *cobra.Command, args []string) error {
	transactionsFile = viper.GetString("transactions")
	invoicesFile = viper.GetString("invoices")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	matchProfile = viper.GetString("profile")
	semanticEndpoint = viper.GetString("semantic-endpoint")

	if transactionsFile == "" {
		return fmt.Errorf("transactions file is required")
	}
	if invoicesFile == "" {
		return fmt.Errorf("invoices file is required")
	}

	if err := validateFileExists(transactionsFile, "transaction file"); err != nil {
		return err
	}
	if err := validateFileExists(invoicesFile, "invoice file"); err != nil {
		return err
	}

	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	errorHandler := NewCLIErrorHandler()

	if log, err := logger.NewLogger(config.CreateLoggerConfig(viper.GetBool("verbose"))); err == nil {
		logger.SetGlobalLogger(log)
	}

	matchingConfig, err := config.CreateMatchingConfig(config.MatchingOptions{
		Profile:         matchProfile,
		AutoApprove:     autoApprove,
		Review:          reviewThreshold,
		DateRangeDays:   dateRangeDays,
		FuzzyThreshold:  fuzzyThreshold,
		AmountTolerance: amountTolerance,
		MaxSubsetSize:   maxSubsetSize,
		PartialMatching: partialMatching,
		SemanticEnabled: semanticEndpoint != "",
	})
	if err != nil {
		return exitWith(errorHandler, fmt.Errorf("invalid matching configuration: %w", err))
	}

	var semanticClient semantic.Client
	if semanticEndpoint != "" {
		clientConfig := config.CreateSemanticConfig(
			semanticEndpoint,
			os.Getenv("RECONCILER_SEMANTIC_API_KEY"),
			semanticModel,
			semanticTimeout,
		)
		semanticClient, err = semantic.NewHTTPClient(clientConfig)
		if err != nil {
			return exitWith(errorHandler, fmt.Errorf("invalid semantic configuration: %w", err))
		}
	}

	transactions, err := parsers.LoadTransactions(transactionsFile)
	if err != nil {
		return exitWith(errorHandler, err)
	}
	invoices, err := parsers.LoadInvoices(invoicesFile)
	if err != nil {
		return exitWith(errorHandler, err)
	}

	service, err := reconciler.NewService(reconciler.Options{
		Config:   matchingConfig,
		Semantic: semanticClient,
		Workers:  workers,
	})
	if err != nil {
		return exitWith(errorHandler, err)
	}

	result, err := service.Run(ctx, transactions, invoices)
	if err != nil {
		return exitWith(errorHandler, err)
	}

	reportGenerator, err := reporter.NewReportGenerator(config.CreateReportConfig(outputFormat, includeSignals))
	if err != nil {
		return exitWith(errorHandler, fmt.Errorf("failed to create report generator: %w", err))
	}

	output := os.Stdout
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return exitWith(errorHandler, fmt.Errorf("failed to create output file: %w", err))
		}
		defer output.Close()
	}

	if err := reportGenerator.GenerateReport(result, output); err != nil {
		return exitWith(errorHandler, fmt.Errorf("failed to generate report: %w", err))
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "\nReconciliation completed successfully.\n")
		fmt.Fprintf(os.Stderr, "Processed %d transactions and %d invoices.\n",
			result.Stats.TotalTransactions, result.Stats.TotalInvoices)
		fmt.Fprintf(os.Stderr, "Auto-approved %d, needs review %d, unmatched transactions %d.\n",
			result.Stats.AutoApproved, result.Stats.NeedsReview, len(result.UnmatchedTransactionIDs))
		fmt.Fprintf(os.Stderr, "Processing time: %v\n", result.Duration)
	}

	return nil
}

// exitWith reports the error through the CLI handler and exits with its
// mapped code
func exitWith(handler *CLIErrorHandler, err error) error {
	code := handler.HandleError(err)
	os.Exit(code)
	return err
}
