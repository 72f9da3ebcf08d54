package modelstream

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"authentication", &AuthenticationError{}, false},
		{"access denied", &AccessDeniedError{}, false},
		{"context length", &ContextLengthError{}, false},
		{"configuration", &ConfigurationError{}, false},
		{"abort", &AbortError{}, false},
		{"rate limit", &RateLimitError{}, true},
		{"server", &ServerError{}, true},
		{"network", &NetworkError{}, true},
		{"stream failed", &StreamFailedError{}, true},
		{"request timeout", &RequestTimeoutError{}, true},
		{"unknown", errors.New("mystery"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.retryable {
				t.Errorf("IsRetryable(%T) = %v, want %v", tc.err, got, tc.retryable)
			}
		})
	}
}

func TestProviderErrorRetryableFlag(t *testing.T) {
	pe := &ProviderError{
		TransportError: TransportError{Message: "weird"},
		Provider:       "openai",
		Retryable:      false,
	}
	if IsRetryable(pe) {
		t.Error("expected non-retryable provider error")
	}
	pe.Retryable = true
	if !IsRetryable(pe) {
		t.Error("expected retryable provider error")
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &NetworkError{TransportError: TransportError{Message: "stream failed", Cause: cause}}

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	wrapped := fmt.Errorf("turn aborted: %w", err)
	var ne *NetworkError
	if !errors.As(wrapped, &ne) {
		t.Error("expected errors.As to find NetworkError through wrapping")
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{
		TransportError: TransportError{Message: "too many requests"},
		Provider:       "anthropic",
		StatusCode:     429,
		Retryable:      true,
	}
	got := err.Error()
	want := "[anthropic] too many requests (status=429, retryable=true)"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
