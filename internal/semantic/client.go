// Package semantic calls an external language-model service to break ties
// the rule-based engine cannot. The call surface is deliberately narrow:
// one ambiguous transaction with a shortlist of candidate invoices goes
// out, one verdict comes back. Failures never fail a run; the caller
// degrades to rule-based results.
package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"payment-reconciliation-service/pkg/logger"

	"github.com/cenkalti/backoff/v4"
)

// Request describes one ambiguous transaction and its candidate invoices
type Request struct {
	TransactionID          string            `json:"transaction_id"`
	TransactionDescription string            `json:"transaction_description"`
	TransactionAmount      string            `json:"transaction_amount"`
	TransactionDate        string            `json:"transaction_date"`
	Candidates             []CandidateRecord `json:"candidates"`
}

// CandidateRecord is a candidate invoice summary sent for disambiguation
type CandidateRecord struct {
	InvoiceIDs  []string `json:"invoice_ids"`
	CompanyName string   `json:"company_name"`
	AmountDue   string   `json:"amount_due"`
	DueDate     string   `json:"due_date"`
	Confidence  float64  `json:"confidence"`
}

// Verdict is the service's judgement on one request
type Verdict struct {
	Confirmed  bool     `json:"confirmed"`
	InvoiceIDs []string `json:"invoice_ids,omitempty"`
	Rationale  string   `json:"rationale,omitempty"`
}

// Client disambiguates ambiguous transactions against candidate invoices
type Client interface {
	Disambiguate(ctx context.Context, req *Request) (*Verdict, error)
}

// ClientConfig holds settings for the HTTP semantic client
type ClientConfig struct {
	// Endpoint is the full URL of the disambiguation service
	Endpoint string `json:"endpoint"`

	// APIKey is sent as a bearer token; empty disables the header
	APIKey string `json:"-"`

	// Model names the model the service should use
	Model string `json:"model"`

	// Timeout bounds each individual call attempt
	Timeout time.Duration `json:"timeout"`

	// MaxRetries bounds retry attempts per call on transient failures
	MaxRetries int `json:"max_retries"`

	// MaxConcurrent bounds in-flight calls across the whole run
	MaxConcurrent int `json:"max_concurrent"`
}

// DefaultClientConfig returns sensible client defaults
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:       10 * time.Second,
		MaxRetries:    2,
		MaxConcurrent: 4,
		Model:         "gpt-4o-mini",
	}
}

// Validate checks the client configuration
func (c *ClientConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("semantic endpoint is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("semantic timeout must be positive: %s", c.Timeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative: %d", c.MaxRetries)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent must be at least 1: %d", c.MaxConcurrent)
	}
	return nil
}

// HTTPClient talks to the disambiguation service over HTTP with bounded
// retries and a concurrency cap
type HTTPClient struct {
	config     *ClientConfig
	httpClient *http.Client
	semaphore  chan struct{}
	log        logger.Logger
}

// NewHTTPClient creates an HTTP semantic client
func NewHTTPClient(config *ClientConfig) (*HTTPClient, error) {
	if config == nil {
		config = DefaultClientConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &HTTPClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		log:        logger.WithComponent("semantic"),
	}, nil
}

type apiRequest struct {
	Model   string   `json:"model"`
	Request *Request `json:"request"`
}

type apiResponse struct {
	Verdict *Verdict `json:"verdict"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Disambiguate sends one request and returns the service's verdict. The
// call retries transient failures with exponential backoff and honors
// context cancellation between attempts.
func (c *HTTPClient) Disambiguate(ctx context.Context, req *Request) (*Verdict, error) {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var verdict *Verdict
	operation := func() error {
		v, err := c.call(ctx, req)
		if err != nil {
			return err
		}
		verdict = v
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.config.MaxRetries)),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	return verdict, nil
}

func (c *HTTPClient) call(ctx context.Context, req *Request) (*Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(apiRequest{Model: c.config.Model, Request: req})
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("semantic call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("semantic service returned status %d: %s", resp.StatusCode, string(respBody))
		// Client errors will not improve on retry
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("malformed verdict: %w", err))
	}
	if apiResp.Error != nil {
		return nil, backoff.Permanent(fmt.Errorf("semantic service error: %s", apiResp.Error.Message))
	}
	if apiResp.Verdict == nil {
		return nil, backoff.Permanent(fmt.Errorf("malformed verdict: missing verdict field"))
	}

	c.log.WithFields(logger.Fields{
		"transaction": req.TransactionID,
		"confirmed":   apiResp.Verdict.Confirmed,
	}).Debug("Received semantic verdict")

	return apiResp.Verdict, nil
}
