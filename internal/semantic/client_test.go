package semantic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() *Request {
	return &Request{
		TransactionID:          "TX1",
		TransactionDescription: "ACH CREDIT ACME CORP",
		TransactionAmount:      "1000.00",
		TransactionDate:        "2024-03-15",
		Candidates: []CandidateRecord{
			{
				InvoiceIDs:  []string{"I1"},
				CompanyName: "Acme Corporation",
				AmountDue:   "1000.00",
				DueDate:     "2024-03-20",
				Confidence:  82.5,
			},
		},
	}
}

func newTestClient(t *testing.T, endpoint string, apiKey string) *HTTPClient {
	t.Helper()
	config := DefaultClientConfig()
	config.Endpoint = endpoint
	config.APIKey = apiKey
	config.Timeout = 2 * time.Second
	client, err := NewHTTPClient(config)
	require.NoError(t, err)
	return client
}

func TestClientConfigValidate(t *testing.T) {
	config := DefaultClientConfig()
	assert.Error(t, config.Validate(), "endpoint is required")

	config.Endpoint = "http://localhost:9999/disambiguate"
	assert.NoError(t, config.Validate())

	config.Timeout = 0
	assert.Error(t, config.Validate())

	config = DefaultClientConfig()
	config.Endpoint = "http://localhost:9999/disambiguate"
	config.MaxConcurrent = 0
	assert.Error(t, config.Validate())
}

func TestDisambiguateHappyPath(t *testing.T) {
	var gotAuth string
	var gotReq apiRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(apiResponse{
			Verdict: &Verdict{
				Confirmed:  true,
				InvoiceIDs: []string{"I1"},
				Rationale:  "description names the company on the invoice",
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "secret-key")
	verdict, err := client.Disambiguate(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, verdict.Confirmed)
	assert.Equal(t, []string{"I1"}, verdict.InvoiceIDs)
	assert.NotEmpty(t, verdict.Rationale)

	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	require.NotNil(t, gotReq.Request)
	assert.Equal(t, "TX1", gotReq.Request.TransactionID)
}

func TestDisambiguateRetriesTransientFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "upstream unavailable", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(apiResponse{Verdict: &Verdict{Confirmed: false}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "")
	verdict, err := client.Disambiguate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.False(t, verdict.Confirmed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDisambiguateDoesNotRetryClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "")
	_, err := client.Disambiguate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx must not be retried")
}

func TestDisambiguateMalformedVerdict(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "")
	_, err := client.Disambiguate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed verdict")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "malformed responses must not be retried")
}

func TestDisambiguateMissingVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "")
	_, err := client.Disambiguate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing verdict")
}

func TestDisambiguateServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "model overloaded", "type": "capacity"},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "")
	_, err := client.Disambiguate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestDisambiguateCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiResponse{Verdict: &Verdict{Confirmed: true}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Disambiguate(ctx, testRequest())
	require.Error(t, err)
}

func TestMockClientScripting(t *testing.T) {
	mock := NewMockClient().
		Script("TX1", &Verdict{Confirmed: true, InvoiceIDs: []string{"I1"}})

	verdict, err := mock.Disambiguate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, verdict.Confirmed)

	// Unscripted transactions get an unconfirmed verdict
	other := testRequest()
	other.TransactionID = "TX2"
	verdict, err = mock.Disambiguate(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, verdict.Confirmed)

	assert.Equal(t, 2, mock.CallCount())
	assert.Len(t, mock.Requests, 2)
}
