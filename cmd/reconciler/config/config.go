// Package config builds component configurations from CLI flags and
// environment settings.
package config

import (
	"fmt"
	"time"

	"payment-reconciliation-service/internal/matcher"
	"payment-reconciliation-service/internal/reporter"
	"payment-reconciliation-service/internal/semantic"
	"payment-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// MatchingOptions carries the CLI-level matching knobs
type MatchingOptions struct {
	Profile          string
	AutoApprove      float64
	Review           float64
	DateRangeDays    int
	FuzzyThreshold   float64
	AmountTolerance  float64
	MaxSubsetSize    int
	PartialMatching  bool
	SemanticEnabled  bool
}

// CreateMatchingConfig builds a matcher configuration from CLI options.
// The profile picks the base; explicit flag values override it.
func CreateMatchingConfig(opts MatchingOptions) (*matcher.Config, error) {
	var config *matcher.Config
	switch opts.Profile {
	case "", "default":
		config = matcher.DefaultConfig()
	case "strict":
		config = matcher.StrictConfig()
	case "relaxed":
		config = matcher.RelaxedConfig()
	default:
		return nil, fmt.Errorf("unknown matching profile '%s': use default, strict or relaxed", opts.Profile)
	}

	if opts.AutoApprove > 0 {
		config.AutoApproveThreshold = opts.AutoApprove
	}
	if opts.Review > 0 {
		config.ReviewThreshold = opts.Review
	}
	if opts.DateRangeDays > 0 {
		config.DateRangeDays = opts.DateRangeDays
	}
	if opts.FuzzyThreshold > 0 {
		config.FuzzyThreshold = opts.FuzzyThreshold
	}
	if opts.AmountTolerance > 0 {
		config.AmountTolerance = decimal.NewFromFloat(opts.AmountTolerance)
	}
	if opts.MaxSubsetSize > 0 {
		config.MaxSubsetSize = opts.MaxSubsetSize
	}
	config.EnablePartialMatching = opts.PartialMatching
	config.SemanticEnabled = opts.SemanticEnabled

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateSemanticConfig builds the semantic client configuration
func CreateSemanticConfig(endpoint, apiKey, model string, timeout time.Duration) *semantic.ClientConfig {
	config := semantic.DefaultClientConfig()
	config.Endpoint = endpoint
	config.APIKey = apiKey
	if model != "" {
		config.Model = model
	}
	if timeout > 0 {
		config.Timeout = timeout
	}
	return config
}

// CreateReportConfig builds the report configuration for an output format
func CreateReportConfig(format string, includeSignals bool) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(format)
	config.IncludeSignals = includeSignals
	return config
}

// CreateLoggerConfig builds the logger configuration for the CLI
func CreateLoggerConfig(verbose bool) *logger.Config {
	if verbose {
		return logger.DebugConfig()
	}
	return logger.DefaultConfig()
}
