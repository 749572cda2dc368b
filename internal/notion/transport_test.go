package notion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestTransport points a transport at a test server with no real
// pacing and recorded (not slept) backoff delays.
func newTestTransport(serverURL string, maxAttempts int) (*Transport, *[]time.Duration) {
	t := NewTransport(TransportOptions{
		BaseURL:     serverURL,
		Token:       "test-token",
		MinInterval: time.Nanosecond,
		MaxAttempts: maxAttempts,
		BaseDelay:   10 * time.Millisecond,
	})
	var delays []time.Duration
	t.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return t, &delays
}

func TestTransportRetriesRateLimited(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":"rate_limited","message":"slow down"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"p1"}`))
	}))
	defer server.Close()

	transport, delays := newTestTransport(server.URL, 5)

	var out struct {
		ID string `json:"id"`
	}
	err := transport.Do(context.Background(), http.MethodGet, "/pages/p1", nil, &out)
	require.NoError(t, err)
	require.Equal(t, "p1", out.ID)
	require.Equal(t, 3, calls)

	// The explicit retry-after hint takes precedence over computed backoff.
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, *delays)
}

func TestTransportRetriesServerError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"p1"}`))
	}))
	defer server.Close()

	transport, delays := newTestTransport(server.URL, 5)
	err := transport.Do(context.Background(), http.MethodGet, "/pages/p1", nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	// Exponential backoff plus jitter: delay in [base, 2*base).
	require.Len(t, *delays, 1)
	require.GreaterOrEqual(t, (*delays)[0], 10*time.Millisecond)
	require.Less(t, (*delays)[0], 20*time.Millisecond)
}

func TestTransportDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"validation_error","message":"bad payload"}`))
	}))
	defer server.Close()

	transport, _ := newTestTransport(server.URL, 5)
	err := transport.Do(context.Background(), http.MethodPost, "/pages", map[string]any{}, nil)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	require.Equal(t, KindClientError, apiErr.Kind)
	require.Equal(t, "validation_error", apiErr.Code)
	require.Equal(t, 1, calls, "client errors propagate immediately")
}

func TestTransportExhaustsAttempts(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	transport, _ := newTestTransport(server.URL, 3)
	err := transport.Do(context.Background(), http.MethodGet, "/pages/p1", nil, nil)

	require.Error(t, err)
	require.Equal(t, 3, calls)

	// The final error still carries the upstream classification.
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	require.True(t, apiErr.Retryable())
}

func TestTransportStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   Kind
	}{
		{400, KindClientError},
		{401, KindAuthError},
		{403, KindAuthError},
		{404, KindNotFound},
		{409, KindConflict},
		{429, KindRateLimited},
		{500, KindServerError},
		{503, KindServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.kind, classifyStatus(tc.status), "status %d", tc.status)
	}
}

func TestTransportSendsAuthHeaders(t *testing.T) {
	var gotAuth, gotVersion string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("Notion-Version")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	transport, _ := newTestTransport(server.URL, 1)
	require.NoError(t, transport.Do(context.Background(), http.MethodGet, "/users/me", nil, nil))
	require.Equal(t, "Bearer test-token", gotAuth)
	require.Equal(t, defaultAPIVersion, gotVersion)
}
