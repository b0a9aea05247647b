package models

import (
	"fmt"
	"strings"
)

// Error kinds of the pipeline. These are values, not strings: callers branch
// with errors.As and never parse messages.

// RateLimitError is surfaced verbatim when the vendor reports too many
// requests, either as HTTP 429 or an in-band code. It is never converted to
// empty data.
type RateLimitError struct {
	Endpoint  string
	RequestID string
	Message   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("vendor rate limit on %s: %s", e.Endpoint, e.Message)
}

// TimeoutError marks a vendor call that exceeded its deadline. Counts as
// transient for retry purposes.
type TimeoutError struct {
	Endpoint   string
	Attempt    int
	DurationMs int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout on %s after %dms (attempt %d)", e.Endpoint, e.DurationMs, e.Attempt)
}

// TransientNetworkError wraps connection-level failures and 5xx responses.
type TransientNetworkError struct {
	Endpoint string
	Attempt  int
	Err      error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network error on %s (attempt %d): %v", e.Endpoint, e.Attempt, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// VendorAPIError is a non-transient vendor rejection with the provider's own
// code attached.
type VendorAPIError struct {
	Code       string
	Message    string
	Endpoint   string
	RequestID  string
	Attempt    int
	DurationMs int64
}

func (e *VendorAPIError) Error() string {
	return fmt.Sprintf("vendor api error %s on %s: %s", e.Code, e.Endpoint, e.Message)
}

// InsufficientDataError is raised when a replay or local-only fetch cannot
// assemble the minimum candle count even after widening the window once.
type InsufficientDataError struct {
	Interval string
	Got      int
	Need     int
	Context  string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: got %d, need %d (%s)", e.Interval, e.Got, e.Need, e.Context)
}

// LookaheadViolationError marks a candle that leaked past the aligned end of
// a replay window. It indicates a bug in the fetch path, not bad input.
type LookaheadViolationError struct {
	Interval  string
	Timestamp int64
	EndTime   int64
}

func (e *LookaheadViolationError) Error() string {
	return fmt.Sprintf("lookahead violation on %s: candle %d past end %d", e.Interval, e.Timestamp, e.EndTime)
}

// StaleDataWarning is attached (not raised) when the latest candle of a
// timeframe is older than the allowed lag. The cycle continues.
type StaleDataWarning struct {
	Venue      Venue
	Interval   string
	AgeMinutes float64
}

func (e *StaleDataWarning) Error() string {
	return fmt.Sprintf("stale data on %s %s: %.1f minutes old", e.Venue, e.Interval, e.AgeMinutes)
}

// ValidationError aggregates every violation found in a config save so the
// caller can show them all at once.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "config validation failed: " + strings.Join(e.Violations, "; ")
}

// VersionConflictError is the optimistic-lock failure of a config save.
type VersionConflictError struct {
	Expected string
	Actual   string
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("config version conflict: based on %s, current is %s", e.Expected, e.Actual)
}

// StorageError wraps a failed store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ConfigMissingError reports a config path that had to fall back to a
// default.
type ConfigMissingError struct {
	Path     string
	Fallback string
}

func (e *ConfigMissingError) Error() string {
	return fmt.Sprintf("config %s missing, using %s", e.Path, e.Fallback)
}
