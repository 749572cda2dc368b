package notion

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an upstream failure so callers can branch on structured
// tags instead of raw status codes.
type Kind string

const (
	KindClientError Kind = "client_error"
	KindAuthError   Kind = "auth_error"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindRateLimited Kind = "rate_limited"
	KindServerError Kind = "server_error"
)

// APIError is an error response from the upstream service.
type APIError struct {
	Status     int
	Code       string
	Message    string
	Kind       Kind
	RetryAfter time.Duration // zero if the response carried no hint
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream error %d: %s", e.Status, e.Message)
}

// Retryable reports whether the failure is transient and worth retrying.
func (e *APIError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindServerError
}

// classifyStatus maps an HTTP status code to a Kind.
func classifyStatus(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuthError
	case status == 404:
		return KindNotFound
	case status == 409:
		return KindConflict
	case status == 429:
		return KindRateLimited
	case status >= 500:
		return KindServerError
	default:
		return KindClientError
	}
}

// AsAPIError unwraps err to an *APIError if one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsConflict reports whether err is an upstream version conflict.
func IsConflict(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == KindConflict
}

// IsNotFound reports whether err is an upstream not-found response.
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == KindNotFound
}
