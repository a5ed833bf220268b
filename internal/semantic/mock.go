package semantic

import (
	"context"
	"sync"
)

// MockClient is a scriptable Client for tests and offline runs. Verdicts
// are looked up by transaction ID; unscripted requests return an
// unconfirmed verdict.
type MockClient struct {
	mu sync.Mutex

	// Verdicts maps transaction IDs to scripted verdicts
	Verdicts map[string]*Verdict

	// Err, when set, is returned for every call
	Err error

	// Requests records every request received, in call order
	Requests []*Request
}

// NewMockClient creates a mock client with no scripted verdicts
func NewMockClient() *MockClient {
	return &MockClient{Verdicts: make(map[string]*Verdict)}
}

// Script registers a verdict for a transaction ID
func (m *MockClient) Script(transactionID string, verdict *Verdict) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Verdicts[transactionID] = verdict
	return m
}

// Disambiguate implements Client
func (m *MockClient) Disambiguate(ctx context.Context, req *Request) (*Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	if m.Err != nil {
		return nil, m.Err
	}

	if verdict, ok := m.Verdicts[req.TransactionID]; ok {
		return verdict, nil
	}
	return &Verdict{Confirmed: false}, nil
}

// CallCount returns the number of requests received
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
