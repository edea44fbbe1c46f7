package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsRateLimitError(t *testing.T) {
	err := NewRateLimitError("rate limit exceeded", nil, nil)
	if !IsRateLimitError(err) {
		t.Error("Expected IsRateLimitError to return true for rate limit error")
	}

	regularErr := NewProviderError("some error", nil)
	if IsRateLimitError(regularErr) {
		t.Error("Expected IsRateLimitError to return false for non-rate-limit error")
	}
}

func TestIsRequestTooLargeError(t *testing.T) {
	err := NewRequestTooLargeError("request too large", nil)
	if !IsRequestTooLargeError(err) {
		t.Error("Expected IsRequestTooLargeError to return true for request too large error")
	}

	regularErr := NewProviderError("some error", nil)
	if IsRequestTooLargeError(regularErr) {
		t.Error("Expected IsRequestTooLargeError to return false for non-request-too-large error")
	}
}

func TestIsRetryableError(t *testing.T) {
	retryableErr := NewRateLimitError("rate limit", nil, nil)
	if !IsRetryableError(retryableErr) {
		t.Error("Expected IsRetryableError to return true for retryable error")
	}

	nonRetryableErr := NewProviderError("some error", nil)
	if IsRetryableError(nonRetryableErr) {
		t.Error("Expected IsRetryableError to return false for non-retryable error")
	}
}

func TestExtractRetryAfter(t *testing.T) {
	retryAfter := 5 * time.Minute
	err := NewRateLimitError("rate limit", &retryAfter, nil)
	extracted := ExtractRetryAfter(err)
	if extracted == nil {
		t.Fatal("Expected non-nil retry after")
	}
	if *extracted != retryAfter {
		t.Errorf("Expected retry after %v, got %v", retryAfter, *extracted)
	}

	regularErr := NewProviderError("some error", nil)
	if ExtractRetryAfter(regularErr) != nil {
		t.Error("Expected nil retry after for non-rate-limit error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := NewProviderError("wrapped", originalErr)
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Expected error to unwrap to original error")
	}
}

func TestConversationErrorPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not configured", NewNotConfiguredError("model"), IsNotConfiguredError},
		{"model unavailable", NewModelUnavailableError("openai", errors.New("dial tcp")), IsModelUnavailableError},
		{"stream", NewStreamError(errors.New("connection reset")), IsStreamError},
		{"aborted", NewAbortedError(), IsAbortedError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("Expected predicate to match %v", tt.err)
			}
			wrapped := fmt.Errorf("send message: %w", tt.err)
			if !tt.check(wrapped) {
				t.Errorf("Expected predicate to match wrapped error %v", wrapped)
			}
			if IsRateLimitError(tt.err) {
				t.Errorf("Did not expect %v to be a rate limit error", tt.err)
			}
		})
	}
}

func TestAbortedErrorMatchesContextCanceled(t *testing.T) {
	if !errors.Is(NewAbortedError(), context.Canceled) {
		t.Error("Expected aborted error to match context.Canceled")
	}
}

func TestNewStreamErrorKeepsTypedErrors(t *testing.T) {
	rateLimit := NewRateLimitError("slow down", nil, nil)
	if got := NewStreamError(rateLimit); !IsRateLimitError(got) {
		t.Errorf("Expected typed provider error to pass through, got %v", got)
	}

	timeout := NewStreamError(context.DeadlineExceeded)
	var llmErr *Error
	if !errors.As(timeout, &llmErr) || llmErr.Type != ErrorTypeTimeout {
		t.Errorf("Expected timeout error type, got %v", timeout)
	}
}

func TestErrorFromStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantType  ErrorType
		retryable bool
	}{
		{429, ErrorTypeRateLimit, true},
		{413, ErrorTypeRequestTooLarge, true},
		{400, ErrorTypeInvalidRequest, false},
		{503, ErrorTypeProvider, true},
		{401, ErrorTypeProvider, false},
	}

	for _, tt := range tests {
		err := ErrorFromStatus("test", tt.status, "boom", nil)
		if err.Type != tt.wantType {
			t.Errorf("status %d: expected type %s, got %s", tt.status, tt.wantType, err.Type)
		}
		if err.Retryable != tt.retryable {
			t.Errorf("status %d: expected retryable=%v, got %v", tt.status, tt.retryable, err.Retryable)
		}
	}
}
