// Package cli implements the command-line interface.
package cli

import (
	"errors"
	"fmt"

	"github.com/mbroton/notcli/internal/blocks"
	"github.com/mbroton/notcli/internal/idempotency"
	"github.com/mbroton/notcli/internal/notion"
	"github.com/mbroton/notcli/internal/pages"
	"github.com/mbroton/notcli/internal/schemacache"
)

// Error codes for structured error responses.
// These codes are stable and can be relied upon by agents.
const (
	// ErrInvalidInput: malformed or schema-mismatched payload. Not retryable.
	ErrInvalidInput = "invalid_input"

	// ErrNotFound: the addressed page, block, or selector target is absent.
	ErrNotFound = "not_found"

	// ErrConflict: version conflict, idempotency hash collision, or a
	// late-detected range mismatch. Not retried automatically; re-read first.
	ErrConflict = "conflict"

	// ErrRetryableUpstream: rate limiting or upstream unavailability after
	// exhausting local retries, or a same-key mutation still in flight.
	ErrRetryableUpstream = "retryable_upstream"

	// ErrAuthOrConfig: missing/invalid token or broken local configuration.
	ErrAuthOrConfig = "auth_or_config"

	// ErrInternal: violated invariants, e.g. a missing reservation row.
	ErrInternal = "internal_error"
)

// inputError marks a locally detected bad-input failure.
type inputError struct {
	msg string
}

func (e *inputError) Error() string { return e.msg }

func invalidInputf(format string, args ...any) error {
	return &inputError{msg: fmt.Sprintf(format, args...)}
}

// setupError marks a broken token or local configuration.
type setupError struct {
	msg string
}

func (e *setupError) Error() string { return e.msg }

func setupErrorf(format string, args ...any) error {
	return &setupError{msg: fmt.Sprintf(format, args...)}
}

// classifyError maps an error to its taxonomy code and optional
// structured details.
func classifyError(err error) (code string, details any) {
	var inErr *inputError
	if errors.As(err, &inErr) {
		return ErrInvalidInput, nil
	}
	var cfgErr *setupError
	if errors.As(err, &cfgErr) {
		return ErrAuthOrConfig, nil
	}

	var keyConflict *idempotency.KeyConflictError
	if errors.As(err, &keyConflict) {
		return ErrConflict, map[string]any{
			"idempotency_key": keyConflict.Key,
			"request_hash":    keyConflict.InputHash,
			"stored_hash":     keyConflict.StoredHash,
		}
	}
	var inProgress *idempotency.InProgressError
	if errors.As(err, &inProgress) {
		return ErrRetryableUpstream, map[string]any{"idempotency_key": inProgress.Key}
	}
	if errors.Is(err, idempotency.ErrMissingReservation) {
		return ErrInternal, nil
	}

	var rangeConflict *blocks.RangeConflictError
	if errors.As(err, &rangeConflict) {
		return ErrConflict, map[string]any{"inserted_ids": rangeConflict.InsertedIDs}
	}
	var ambiguous *blocks.AmbiguousError
	if errors.As(err, &ambiguous) {
		return ErrInvalidInput, map[string]any{"match_count": ambiguous.MatchCount}
	}
	var noMatch *blocks.NoMatchError
	if errors.As(err, &noMatch) {
		return ErrNotFound, map[string]any{"match_count": noMatch.MatchCount}
	}

	var pageConflict *pages.ConflictError
	if errors.As(err, &pageConflict) {
		return ErrConflict, map[string]any{"page_id": pageConflict.PageID}
	}

	var unknownProp *schemacache.UnknownPropertyError
	if errors.As(err, &unknownProp) {
		return ErrInvalidInput, map[string]any{
			"data_source_id": unknownProp.DataSourceID,
			"property":       unknownProp.Property,
		}
	}

	if apiErr, ok := notion.AsAPIError(err); ok {
		switch apiErr.Kind {
		case notion.KindAuthError:
			return ErrAuthOrConfig, nil
		case notion.KindNotFound:
			return ErrNotFound, nil
		case notion.KindConflict:
			return ErrConflict, nil
		case notion.KindRateLimited, notion.KindServerError:
			return ErrRetryableUpstream, nil
		default:
			return ErrInvalidInput, map[string]any{"upstream_code": apiErr.Code}
		}
	}

	return ErrInternal, nil
}
