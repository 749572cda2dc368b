package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL     = "https://api.notion.com/v1"
	defaultAPIVersion  = "2025-09-03"
	defaultMinInterval = 334 * time.Millisecond // ~3 req/s service limit
	defaultMaxAttempts = 5
	defaultBaseDelay   = 500 * time.Millisecond
	requestTimeout     = 60 * time.Second
)

// Transport serializes every upstream call through a single rate-limiter
// lane and retries classified-transient failures with exponential backoff.
type Transport struct {
	baseURL    string
	token      string
	apiVersion string

	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseDelay   time.Duration

	// sleep is swappable so retry tests don't wait out real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

// TransportOptions configures a Transport. Zero values fall back to defaults.
type TransportOptions struct {
	BaseURL     string
	Token       string
	APIVersion  string
	MinInterval time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	HTTPClient  *http.Client
}

// NewTransport builds the single network lane for the process.
func NewTransport(opts TransportOptions) *Transport {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiVersion := opts.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	minInterval := opts.MinInterval
	if minInterval <= 0 {
		minInterval = defaultMinInterval
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	return &Transport{
		baseURL:     baseURL,
		token:       opts.Token,
		apiVersion:  apiVersion,
		httpClient:  httpClient,
		limiter:     rate.NewLimiter(rate.Every(minInterval), 1),
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       sleepCtx,
	}
}

// Do issues one logical upstream call: waits for a limiter slot, sends the
// request, and retries transient failures up to the attempt ceiling. On
// success the response body is decoded into out (if non-nil).
func (t *Transport) Do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	var lastErr *APIError
	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := t.backoff(attempt, lastErr)
			if err := t.sleep(ctx, delay); err != nil {
				return err
			}
		}

		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}

		apiErr, err := t.once(ctx, method, path, payload, out)
		if err != nil {
			return err
		}
		if apiErr == nil {
			return nil
		}
		if !apiErr.Retryable() {
			return apiErr
		}
		lastErr = apiErr
	}

	return fmt.Errorf("upstream retries exhausted after %d attempts: %w", t.maxAttempts, lastErr)
}

// once performs a single HTTP exchange. A non-nil *APIError return is an
// upstream failure; a non-nil error is a local/transport failure that
// should not be retried here.
func (t *Transport) once(ctx context.Context, method, path string, payload []byte, out any) (*APIError, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Notion-Version", t.apiVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseAPIError(resp, data), nil
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return nil, nil
}

// backoff returns the delay before the given attempt (1-indexed retry). An
// explicit retry-after hint from the previous failure takes precedence over
// the computed exponential delay.
func (t *Transport) backoff(attempt int, lastErr *APIError) time.Duration {
	if lastErr != nil && lastErr.RetryAfter > 0 {
		return lastErr.RetryAfter
	}
	delay := t.baseDelay << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(t.baseDelay)))
	return delay + jitter
}

func parseAPIError(resp *http.Response, data []byte) *APIError {
	apiErr := &APIError{
		Status:  resp.StatusCode,
		Kind:    classifyStatus(resp.StatusCode),
		Message: http.StatusText(resp.StatusCode),
	}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Code != "" {
			apiErr.Code = body.Code
		}
		if body.Message != "" {
			apiErr.Message = body.Message
		}
	}

	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.ParseFloat(ra, 64); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs * float64(time.Second))
		}
	}
	return apiErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
