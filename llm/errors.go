package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error represents a provider-neutral LLM error.
type Error struct {
	Type        ErrorType
	Message     string
	Retryable   bool
	RetryAfter  *time.Duration
	StatusCode  int
	ProviderErr error // Original provider-specific error
}

// ErrorType represents the category of error.
type ErrorType string

const (
	ErrorTypeRateLimit        ErrorType = "rate_limit"
	ErrorTypeRequestTooLarge  ErrorType = "request_too_large"
	ErrorTypeInvalidRequest   ErrorType = "invalid_request"
	ErrorTypeProvider         ErrorType = "provider"
	ErrorTypeNetwork          ErrorType = "network"
	ErrorTypeTimeout          ErrorType = "timeout"
	ErrorTypeUnknown          ErrorType = "unknown"
	ErrorTypeNotConfigured    ErrorType = "not_configured"
	ErrorTypeModelUnavailable ErrorType = "model_unavailable"
	ErrorTypeStream           ErrorType = "stream"
	ErrorTypeAborted          ErrorType = "aborted"
	ErrorTypeToolExecution    ErrorType = "tool_execution"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ProviderErr != nil {
		return e.Message + ": " + e.ProviderErr.Error()
	}
	return e.Message
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.ProviderErr
}

func isType(err error, t ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == t
	}
	return false
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) bool {
	return isType(err, ErrorTypeRateLimit)
}

// IsRequestTooLargeError checks if an error is a request too large error.
func IsRequestTooLargeError(err error) bool {
	return isType(err, ErrorTypeRequestTooLarge)
}

// IsNotConfiguredError checks if an error reports missing model or credentials.
func IsNotConfiguredError(err error) bool {
	return isType(err, ErrorTypeNotConfigured)
}

// IsModelUnavailableError checks if the model client could not be built or probed.
func IsModelUnavailableError(err error) bool {
	return isType(err, ErrorTypeModelUnavailable)
}

// IsStreamError checks if an error is a failed (not cancelled) stream.
func IsStreamError(err error) bool {
	return isType(err, ErrorTypeStream)
}

// IsAbortedError checks if an error reports a cancelled conversation turn.
func IsAbortedError(err error) bool {
	return isType(err, ErrorTypeAborted)
}

// IsRetryableError checks if an error is retryable.
func IsRetryableError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// ExtractRetryAfter extracts the retry-after duration from an error.
func ExtractRetryAfter(err error) *time.Duration {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return nil
}

// NewRateLimitError creates a new rate limit error.
func NewRateLimitError(message string, retryAfter *time.Duration, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRateLimit,
		Message:     message,
		Retryable:   true,
		RetryAfter:  retryAfter,
		StatusCode:  http.StatusTooManyRequests,
		ProviderErr: providerErr,
	}
}

// NewRequestTooLargeError creates a new request too large error.
func NewRequestTooLargeError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRequestTooLarge,
		Message:     message,
		Retryable:   true,
		StatusCode:  http.StatusRequestEntityTooLarge,
		ProviderErr: providerErr,
	}
}

// NewProviderError creates a new provider error.
func NewProviderError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeProvider,
		Message:     message,
		Retryable:   false,
		ProviderErr: providerErr,
	}
}

// NewNotConfiguredError reports that a required configuration field is missing.
func NewNotConfiguredError(field string) *Error {
	return &Error{
		Type:    ErrorTypeNotConfigured,
		Message: fmt.Sprintf("model provider not configured: %s is required", field),
	}
}

// NewModelUnavailableError reports that a model client could not be constructed or probed.
func NewModelUnavailableError(provider string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeModelUnavailable,
		Message:     fmt.Sprintf("model client for %s unavailable", provider),
		Retryable:   IsRetryableError(cause),
		ProviderErr: cause,
	}
}

// NewStreamError wraps a failure of an in-flight stream.
// Errors already typed by a provider keep their type.
func NewStreamError(cause error) error {
	var llmErr *Error
	if errors.As(cause, &llmErr) {
		return cause
	}
	errType := ErrorTypeStream
	if errors.Is(cause, context.DeadlineExceeded) {
		errType = ErrorTypeTimeout
	}
	return &Error{
		Type:        errType,
		Message:     "model stream failed",
		ProviderErr: cause,
	}
}

// NewAbortedError reports a turn cancelled by Stop. It matches context.Canceled with errors.Is.
func NewAbortedError() *Error {
	return &Error{
		Type:        ErrorTypeAborted,
		Message:     "conversation turn aborted",
		ProviderErr: context.Canceled,
	}
}

// NewToolExecutionError reports a tool that failed, panicked or returned an unusable result.
// It never leaves the tool loop; it is folded into the tool result sent to the model.
func NewToolExecutionError(tool string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeToolExecution,
		Message:     fmt.Sprintf("tool %s failed", tool),
		ProviderErr: cause,
	}
}

// ErrorFromStatus maps an HTTP status code reported by a vendor SDK to an llm.Error.
func ErrorFromStatus(vendor string, status int, message string, providerErr error) *Error {
	switch status {
	case http.StatusTooManyRequests:
		retryAfter := DefaultRetryAfter
		return NewRateLimitError(fmt.Sprintf("%s rate limit: %s", vendor, message), &retryAfter, providerErr)
	case http.StatusRequestEntityTooLarge:
		return NewRequestTooLargeError(fmt.Sprintf("%s request too large: %s", vendor, message), providerErr)
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return &Error{
			Type:        ErrorTypeInvalidRequest,
			Message:     fmt.Sprintf("%s invalid request: %s", vendor, message),
			StatusCode:  status,
			ProviderErr: providerErr,
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &Error{
			Type:        ErrorTypeProvider,
			Message:     fmt.Sprintf("%s server error: %s", vendor, message),
			Retryable:   true,
			StatusCode:  status,
			ProviderErr: providerErr,
		}
	default:
		return &Error{
			Type:        ErrorTypeProvider,
			Message:     fmt.Sprintf("%s API error: %s", vendor, message),
			StatusCode:  status,
			ProviderErr: providerErr,
		}
	}
}

// DefaultRetryAfter is used for rate limits when the provider does not say how long to wait.
const DefaultRetryAfter = 60 * time.Second
