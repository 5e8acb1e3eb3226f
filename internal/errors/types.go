package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
)

// TransientError represents an error that can be retried
type TransientError struct {
	Err        error
	StatusCode int    // HTTP status code if applicable
	RetryAfter int    // Seconds to wait before retry (from Retry-After header)
	Message    string // Human-readable message
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// PermanentError represents an error that should not be retried
type PermanentError struct {
	Err        error
	StatusCode int    // HTTP status code if applicable
	Message    string // Human-readable message
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err as non-retryable.
func NewPermanentError(err error, statusCode int) *PermanentError {
	return &PermanentError{Err: err, StatusCode: statusCode}
}

// ScoringError reports a candidate that is structurally unfit for scoring.
// This is a malformed-input error, distinct from a low quality score.
type ScoringError struct {
	CandidateID string
	Reason      string
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("candidate %s cannot be scored: %s", e.CandidateID, e.Reason)
}

// DraftExhaustionError indicates the draft stage produced zero usable
// candidates. Fatal: the pipeline has nothing to filter or refine.
type DraftExhaustionError struct {
	Requested int
	Malformed int
}

func (e *DraftExhaustionError) Error() string {
	return fmt.Sprintf("draft stage produced 0 usable candidates (requested %d, %d malformed)",
		e.Requested, e.Malformed)
}

// BudgetExceededError is returned by a strict budget tracker when recording
// spend that would push the total past the ceiling.
type BudgetExceededError struct {
	Attempted decimal.Decimal
	Spent     decimal.Decimal
	Ceiling   decimal.Decimal
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("recording %s would exceed budget ceiling %s (spent %s)",
		e.Attempted, e.Ceiling, e.Spent)
}

// ConfigError reports an invalid configuration value. Raised at pipeline
// construction, before any backend call is made.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// IsTransient checks if an error is retry-able
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}

	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	if isNetworkError(err) {
		return true
	}

	if statusCode := extractHTTPStatusCode(err); statusCode > 0 {
		return isTransientHTTPStatus(statusCode)
	}

	// Default: not transient
	return false
}

// IsPermanent checks if an error is non-retry-able
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return true
	}
	if statusCode := extractHTTPStatusCode(err); statusCode > 0 {
		return !isTransientHTTPStatus(statusCode)
	}
	return false
}

// isNetworkError detects timeouts and connection-level failures.
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

var statusCodePattern = regexp.MustCompile(`\bstatus(?: code)?[:= ](\d{3})\b`)

// extractHTTPStatusCode pulls a status code out of wrapped errors or, as a
// fallback, out of the error text emitted by backend clients.
func extractHTTPStatusCode(err error) int {
	var transientErr *TransientError
	if errors.As(err, &transientErr) && transientErr.StatusCode > 0 {
		return transientErr.StatusCode
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) && permanentErr.StatusCode > 0 {
		return permanentErr.StatusCode
	}
	if match := statusCodePattern.FindStringSubmatch(err.Error()); len(match) == 2 {
		code, convErr := strconv.Atoi(match[1])
		if convErr == nil {
			return code
		}
	}
	return 0
}

// isTransientHTTPStatus reports whether an HTTP status warrants a retry.
func isTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}
