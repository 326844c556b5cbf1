package source

import (
	"fmt"
	"time"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

// TransientFetchError is a failure worth retrying: network errors, timeouts and 5xx responses.
type TransientFetchError struct {
	ActionType models.ActionType
	URL        string
	StatusCode int
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient fetch error for %s (%s): HTTP %d: %v", e.ActionType, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient fetch error for %s (%s): %v", e.ActionType, e.URL, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// PermanentFetchError is never retried: 4xx responses other than 429, malformed envelopes, bad tokens.
type PermanentFetchError struct {
	ActionType models.ActionType
	URL        string
	StatusCode int
	Err        error
}

func (e *PermanentFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("permanent fetch error for %s (%s): HTTP %d: %v", e.ActionType, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("permanent fetch error for %s (%s): %v", e.ActionType, e.URL, e.Err)
}

func (e *PermanentFetchError) Unwrap() error { return e.Err }

// RateLimitedError is a transient error carrying the wait the source asked for.
// RetryAfter is zero when the source gave no hint.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        *TransientFetchError
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// RetriesExhaustedError wraps the last transient error once the retry budget is spent.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }
