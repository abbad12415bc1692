// ABOUTME: Error taxonomy for the run monitor API client.
// ABOUTME: Maps HTTP statuses onto typed errors carrying retryability, status code, and response body.

package api

import (
	"errors"
	"net/http"
)

// APIError is the base error type for all API client failures. Subtypes
// embed it and refine retryability.
type APIError struct {
	Message    string
	StatusCode int
	Body       []byte
	Retryable  bool
	Cause      error
}

func (e *APIError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the failed request may be retried.
func (e *APIError) IsRetryable() bool {
	return e.Retryable
}

// AuthError is a 401 Unauthorized response. Never retryable: token
// recovery belongs to the auth collaborator, not the reconnect loop.
type AuthError struct {
	APIError
}

func (e *AuthError) Error() string     { return e.APIError.Error() }
func (e *AuthError) Unwrap() error     { return e.APIError.Unwrap() }
func (e *AuthError) IsRetryable() bool { return false }

func (e *AuthError) As(target any) bool {
	switch t := target.(type) {
	case **APIError:
		*t = &e.APIError
		return true
	default:
		return false
	}
}

// NotFoundError is a 404 Not Found response. Not retryable. NotFound marks
// it for callers that treat a missing resource as "nothing there yet".
type NotFoundError struct {
	APIError
}

func (e *NotFoundError) Error() string     { return e.APIError.Error() }
func (e *NotFoundError) Unwrap() error     { return e.APIError.Unwrap() }
func (e *NotFoundError) IsRetryable() bool { return false }
func (e *NotFoundError) NotFound() bool    { return true }

func (e *NotFoundError) As(target any) bool {
	switch t := target.(type) {
	case **APIError:
		*t = &e.APIError
		return true
	default:
		return false
	}
}

// RateLimitError is a 429 Too Many Requests response. Retryable;
// RetryAfter carries the server's hint in seconds when present.
type RateLimitError struct {
	APIError
	RetryAfter *float64
}

func (e *RateLimitError) Error() string     { return e.APIError.Error() }
func (e *RateLimitError) Unwrap() error     { return e.APIError.Unwrap() }
func (e *RateLimitError) IsRetryable() bool { return true }

func (e *RateLimitError) As(target any) bool {
	switch t := target.(type) {
	case **APIError:
		*t = &e.APIError
		return true
	default:
		return false
	}
}

// ServerError is a 5xx response. Retryable.
type ServerError struct {
	APIError
}

func (e *ServerError) Error() string     { return e.APIError.Error() }
func (e *ServerError) Unwrap() error     { return e.APIError.Unwrap() }
func (e *ServerError) IsRetryable() bool { return true }

func (e *ServerError) As(target any) bool {
	switch t := target.(type) {
	case **APIError:
		*t = &e.APIError
		return true
	default:
		return false
	}
}

// NetworkError is a transport-level failure: DNS, refused connection, or a
// body cut off mid-read. Retryable.
type NetworkError struct {
	APIError
}

func (e *NetworkError) Error() string     { return e.APIError.Error() }
func (e *NetworkError) Unwrap() error     { return e.APIError.Unwrap() }
func (e *NetworkError) IsRetryable() bool { return true }

func (e *NetworkError) As(target any) bool {
	switch t := target.(type) {
	case **APIError:
		*t = &e.APIError
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err (or anything it wraps) is a retryable
// API failure. Non-API errors are not retried.
func IsRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// ErrorFromStatusCode maps an HTTP status code to the appropriate error
// type. Known 4xx statuses are not retryable; unknown statuses are assumed
// transient.
func ErrorFromStatusCode(statusCode int, message string, body []byte, retryAfter *float64) error {
	base := APIError{
		Message:    message,
		StatusCode: statusCode,
		Body:       body,
	}

	switch {
	case statusCode == http.StatusUnauthorized:
		return &AuthError{APIError: base}
	case statusCode == http.StatusNotFound:
		return &NotFoundError{APIError: base}
	case statusCode == http.StatusTooManyRequests:
		base.Retryable = true
		return &RateLimitError{APIError: base, RetryAfter: retryAfter}
	case statusCode >= 500 && statusCode <= 599:
		base.Retryable = true
		return &ServerError{APIError: base}
	case statusCode >= 400 && statusCode <= 499:
		return &base
	default:
		base.Retryable = true
		return &base
	}
}
