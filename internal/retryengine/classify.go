package retryengine

import (
	"errors"
	"net/http"
	"strings"
)

// Class is the error taxonomy the retry loop dispatches on.
type Class string

const (
	ClassRateLimit     Class = "rate_limit"
	ClassServerError   Class = "server_error"
	ClassTimeout       Class = "timeout"
	ClassAuth          Class = "auth"
	ClassBudget        Class = "budget"
	ClassInvalid       Class = "invalid_request"
	ClassUserAbort     Class = "user_abort"
	classNonRetryable  Class = "non_retryable"
)

// ClassifiedError carries an explicit classification alongside the
// underlying cause so callers can branch on retryability without
// re-inspecting the error string.
type ClassifiedError struct {
	Err        error
	Class      Class
	HTTPStatus int
	RetryAfter string
}

func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "classified error: " + string(e.Class)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify determines the Class of err, preferring an explicit
// *ClassifiedError annotation (set by Wrap) over HTTP-status and
// keyword heuristics against the error string.
func Classify(err error) Class {
	if err == nil {
		return classNonRetryable
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	var abort *UserAbortError
	if errors.As(err, &abort) {
		return ClassUserAbort
	}

	var budget interface{ Error() string }
	if errors.As(err, &budget) && strings.Contains(strings.ToLower(err.Error()), "budget exceeded") {
		return ClassBudget
	}

	status := extractHTTPStatus(err)
	if status != 0 {
		switch {
		case status == http.StatusTooManyRequests:
			return ClassRateLimit
		case status >= 500:
			return ClassServerError
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return ClassAuth
		case status == http.StatusBadRequest || status == 422:
			return ClassInvalid
		}
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		return ClassRateLimit
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503") ||
		strings.Contains(lower, "504") || strings.Contains(lower, "internal server error") ||
		strings.Contains(lower, "bad gateway") || strings.Contains(lower, "service unavailable") ||
		strings.Contains(lower, "gateway timeout"):
		return ClassServerError
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "connection reset") || strings.Contains(lower, "connection refused"):
		return ClassTimeout
	case strings.Contains(lower, "401") || strings.Contains(lower, "403") ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "authentication failed"):
		return ClassAuth
	case strings.Contains(lower, "400") || strings.Contains(lower, "422") ||
		strings.Contains(lower, "bad request") || strings.Contains(lower, "invalid request") ||
		strings.Contains(lower, "malformed"):
		return ClassInvalid
	case strings.Contains(lower, "budget"):
		return ClassBudget
	}

	return classNonRetryable
}

// extractHTTPStatus pulls an HTTP status code off err when the provider
// client exposes one (e.g. via a StatusCode() method), without taking a
// hard dependency on any specific SDK's error type.
func extractHTTPStatus(err error) int {
	var withStatus interface{ StatusCode() int }
	if errors.As(err, &withStatus) {
		return withStatus.StatusCode()
	}
	return 0
}

// Wrap annotates err with an explicit classification, bypassing the
// heuristic string/status matching in Classify.
func Wrap(err error, class Class, httpStatus int, retryAfter string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Err: err, Class: class, HTTPStatus: httpStatus, RetryAfter: retryAfter}
}

// UserAbortError marks cancellation requested by the caller (or operator);
// it is never retried and never classified as anything else.
type UserAbortError struct{ Cause error }

func (e *UserAbortError) Error() string {
	if e.Cause != nil {
		return "aborted: " + e.Cause.Error()
	}
	return "aborted"
}

func (e *UserAbortError) Unwrap() error { return e.Cause }

// BudgetExceededRetryError marks a budget breach surfaced from inside a
// retried call; it is non-retryable regardless of Classify's normal
// heuristics reaching the same conclusion by a different path.
type BudgetExceededRetryError struct{ Cause error }

func (e *BudgetExceededRetryError) Error() string {
	return "budget exceeded (non-retryable): " + e.Cause.Error()
}

func (e *BudgetExceededRetryError) Unwrap() error { return e.Cause }

// IsNonRetryable reports whether class never qualifies for With Retry.
func IsNonRetryable(c Class) bool {
	switch c {
	case ClassBudget, ClassUserAbort, ClassInvalid, ClassAuth:
		return true
	default:
		return false
	}
}
