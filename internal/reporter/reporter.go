// Package reporter renders reconciliation run results for people and
// machines. Console output is a readable review sheet, JSON feeds
// downstream tooling, CSV goes to spreadsheets.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"payment-reconciliation-service/internal/models"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	IncludeSignals   bool `json:"include_signals"`
	IncludeUnmatched bool `json:"include_unmatched"`
	IncludeStats     bool `json:"include_stats"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:           FormatConsole,
		IncludeSignals:   false,
		IncludeUnmatched: true,
		IncludeStats:     true,
		CSVDelimiter:     ',',
		CSVHeaders:       true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	return nil
}

// ReportGenerator renders run results in the configured format
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a report generator
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes the run result to the writer in the configured
// format
func (rg *ReportGenerator) GenerateReport(result *models.RunResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("run result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(result *models.RunResult, writer io.Writer) error {
	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Run ID: %s\n", result.RunID)
	fmt.Fprintf(writer, "Started: %s\n", result.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Duration: %v\n\n", result.Duration)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	stats := result.Stats
	fmt.Fprintf(writer, "%-28s %d\n", "Transactions:", stats.TotalTransactions)
	fmt.Fprintf(writer, "%-28s %d\n", "Invoices:", stats.TotalInvoices)
	fmt.Fprintf(writer, "%-28s %d\n", "Auto-approved:", stats.AutoApproved)
	fmt.Fprintf(writer, "%-28s %d\n", "Needs review:", stats.NeedsReview)
	fmt.Fprintf(writer, "%-28s %d\n", "Rejected:", stats.Rejected)
	fmt.Fprintf(writer, "%-28s %s\n\n", "Total matched amount:", stats.TotalMatchedAmount.StringFixed(2))

	fmt.Fprintf(writer, "=== MATCHES ===\n")
	if len(result.Matches) == 0 {
		fmt.Fprintf(writer, "No matches found.\n\n")
	} else {
		fmt.Fprintf(writer, "%-16s %-24s %-10s %-18s %-14s %s\n",
			"TRANSACTION", "INVOICES", "CONF", "STRATEGY", "CLASS", "FLAGS")
		fmt.Fprintf(writer, "%s\n", strings.Repeat("-", 96))
		for _, match := range result.Matches {
			fmt.Fprintf(writer, "%-16s %-24s %-10.1f %-18s %-14s %s\n",
				match.TransactionID,
				strings.Join(match.InvoiceIDs, ","),
				match.Confidence,
				match.DominantStrategy,
				match.Classification,
				matchFlags(match))
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeUnmatched {
		if len(result.UnmatchedTransactionIDs) > 0 {
			fmt.Fprintf(writer, "=== UNMATCHED TRANSACTIONS (%d) ===\n", len(result.UnmatchedTransactionIDs))
			fmt.Fprintf(writer, "%s\n\n", strings.Join(result.UnmatchedTransactionIDs, ", "))
		}
		if len(result.UnmatchedInvoiceIDs) > 0 {
			fmt.Fprintf(writer, "=== UNMATCHED INVOICES (%d) ===\n", len(result.UnmatchedInvoiceIDs))
			fmt.Fprintf(writer, "%s\n\n", strings.Join(result.UnmatchedInvoiceIDs, ", "))
		}
	}

	if rg.config.IncludeStats {
		fmt.Fprintf(writer, "=== PROVENANCE ===\n")
		fmt.Fprintf(writer, "%-28s %d\n", "Rule-based matches:", stats.RuleBasedMatches)
		fmt.Fprintf(writer, "%-28s %d\n", "AI-confirmed matches:", stats.AIConfirmedMatches)
		fmt.Fprintf(writer, "%-28s %d\n", "Semantic calls:", stats.SemanticCalls)
		fmt.Fprintf(writer, "%-28s %d\n", "Semantic confirmations:", stats.SemanticConfirmed)
		fmt.Fprintf(writer, "%-28s %d\n", "Semantic failures:", stats.SemanticFailures)
	}

	return nil
}

func matchFlags(match *models.Match) string {
	var flags []string
	if match.AIConfirmed {
		flags = append(flags, "ai")
	}
	if match.Partial {
		flags = append(flags, "partial")
	}
	if len(match.InvoiceIDs) > 1 {
		flags = append(flags, "multi")
	}
	return strings.Join(flags, ",")
}

func (rg *ReportGenerator) generateJSONReport(result *models.RunResult, writer io.Writer) error {
	out := result
	if !rg.config.IncludeSignals {
		out = stripSignals(result)
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// stripSignals shallow-copies the result without per-strategy signal
// detail
func stripSignals(result *models.RunResult) *models.RunResult {
	out := *result
	out.Matches = make([]*models.Match, len(result.Matches))
	for i, match := range result.Matches {
		m := *match
		m.Signals = nil
		out.Matches[i] = &m
	}
	return &out
}

func (rg *ReportGenerator) generateCSVReport(result *models.RunResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{
			"transaction_id",
			"invoice_ids",
			"confidence",
			"dominant_strategy",
			"classification",
			"matched_amount",
			"ai_confirmed",
			"partial",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, match := range result.Matches {
		record := []string{
			match.TransactionID,
			strings.Join(match.InvoiceIDs, ";"),
			strconv.FormatFloat(match.Confidence, 'f', 1, 64),
			match.DominantStrategy,
			string(match.Classification),
			match.MatchedAmount.StringFixed(2),
			strconv.FormatBool(match.AIConfirmed),
			strconv.FormatBool(match.Partial),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	if rg.config.IncludeUnmatched {
		for _, id := range result.UnmatchedTransactionIDs {
			if err := csvWriter.Write([]string{id, "", "", "", "unmatched_transaction", "", "", ""}); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
		for _, id := range result.UnmatchedInvoiceIDs {
			if err := csvWriter.Write([]string{"", id, "", "", "unmatched_invoice", "", "", ""}); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}

	return nil
}
