// Package remote is the client for the award API: account flows, the
// nominee profile and upload endpoints, and nominations.
package remote

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// RequestError wraps a failure to reach the API or to read its response.
type RequestError struct {
	Endpoint  string // e.g. "POST /auth/login"
	Operation string // e.g. "request", "decode"
	Err       error
	Retryable bool
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Endpoint, e.Operation, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *RequestError) IsRetryable() bool {
	return e.Retryable
}

// HTTPError is a non-2xx response. Message is the server's "message"
// field when the body carried one.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
}

// ServerMessage returns the server-provided message, falling back to the
// HTTP status text.
func (e *HTTPError) ServerMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsRetryable returns true for 5xx errors and 429 (rate limit)
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// ValidationError is an argument rejected before any request was made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// ServerMessage lets validation failures surface like server messages.
func (e *ValidationError) ServerMessage() string {
	return e.Error()
}

// CircuitOpenError indicates the circuit breaker is open
type CircuitOpenError struct {
	Name string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%s: circuit breaker open, service temporarily unavailable", e.Name)
}

// ServerMessage returns a message suitable for the user.
func (e *CircuitOpenError) ServerMessage() string {
	return "Service temporarily unavailable"
}

func newRequestError(endpoint, operation string, err error) *RequestError {
	return &RequestError{
		Endpoint:  endpoint,
		Operation: operation,
		Err:       err,
		Retryable: isRetryableError(err),
	}
}

// isRetryableError checks if an error is retryable
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"timeout",
		"temporary failure",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// shouldRetry determines if an error should be retried
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Retryable
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}

	var circuitErr *CircuitOpenError
	if errors.As(err, &circuitErr) {
		return false
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return false
	}

	return isRetryableError(err)
}

// UserMessage returns a message for err that can be shown on a page.
// Server-provided messages win over generic text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var circuitErr *CircuitOpenError
	if errors.As(err, &circuitErr) {
		return "Service temporarily unavailable. Please try again later."
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Message != "" {
			return httpErr.Message
		}
		switch {
		case httpErr.StatusCode == http.StatusUnauthorized:
			return "Authentication required."
		case httpErr.StatusCode == http.StatusForbidden:
			return "Access denied."
		case httpErr.StatusCode == http.StatusNotFound:
			return "Resource not found."
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return "Too many requests. Please slow down."
		case httpErr.StatusCode >= 500:
			return "Server error. Please try again later."
		default:
			return fmt.Sprintf("Request failed (HTTP %d).", httpErr.StatusCode)
		}
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return fmt.Sprintf("Invalid data: %s", validationErr.Reason)
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return "Could not reach the server. Please check your connection."
	}

	return "Something went wrong. Please try again."
}
