package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeConnection  ErrorType = "connection"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeForbidden   ErrorType = "forbidden"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeClient      ErrorType = "client_error"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Sentinel errors
var (
	ErrRateLimitExceeded = errors.New("local rate limit exceeded")
	ErrNotAuthenticated  = errors.New("not authenticated")
)

// Error represents a protocol or transport error with type information.
// Code is the HTTP status, or 0 for connectivity failures.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Method  string
	URL     string
	Body    string
	Err     error
}

func (e *Error) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s error (code %d) %s %s: %s", e.Type, e.Code, e.Method, e.URL, e.Message)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by the error.
func (e *Error) StatusCode() int {
	return e.Code
}

// IsConnectivity reports whether the error is a timeout, connection or I/O failure.
func (e *Error) IsConnectivity() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeConnection:
		return true
	}
	return false
}

// ConfigurationError reports a missing or invalid configuration field.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// UnsupportedPlatformError is returned when an explicit platform type has no
// registered adapter.
type UnsupportedPlatformError struct {
	Platform  string
	Supported []string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform %q (supported: %v)", e.Platform, e.Supported)
}

// UnsupportedOperationError marks an operation the platform cannot perform
// with the supplied arguments.
type UnsupportedOperationError struct {
	Platform  string
	Operation string
	Reason    string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s: %s not supported: %s", e.Platform, e.Operation, e.Reason)
}

// FromStatus maps an HTTP status code to an error type
func FromStatus(statusCode int) ErrorType {
	switch {
	case statusCode == http.StatusUnauthorized:
		return ErrorTypeAuth
	case statusCode == http.StatusForbidden:
		return ErrorTypeForbidden
	case statusCode == http.StatusNotFound:
		return ErrorTypeNotFound
	case statusCode == http.StatusUnprocessableEntity:
		return ErrorTypeValidation
	case statusCode == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case statusCode >= 500:
		return ErrorTypeServerError
	case statusCode >= 400:
		return ErrorTypeClient
	default:
		return ErrorTypeUnknown
	}
}

// NewHTTPError builds an Error for a non-2xx response.
func NewHTTPError(method, url string, statusCode int, body string) *Error {
	return &Error{
		Type:    FromStatus(statusCode),
		Message: fmt.Sprintf("unexpected status %d", statusCode),
		Code:    statusCode,
		Method:  method,
		URL:     url,
		Body:    body,
	}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeConnection, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err is a 404 protocol error.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Type == ErrorTypeNotFound
}

// StatusOf returns the HTTP status code carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ErrorTypeUnknown
}
