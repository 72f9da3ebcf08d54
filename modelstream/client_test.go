package modelstream

import (
	"context"
	"strings"
	"testing"
)

// mockTransport is a test double for Transport.
type mockTransport struct {
	name   string
	err    error
	events []StreamEvent
	calls  int
}

func (m *mockTransport) Name() string { return m.name }

func (m *mockTransport) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan StreamEvent, len(m.events))
	for _, e := range m.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func newMockTransport(name string, deltas ...string) *mockTransport {
	events := []StreamEvent{{Type: StreamStart}}
	for _, d := range deltas {
		events = append(events, StreamEvent{Type: StreamDelta, Delta: d})
	}
	events = append(events, StreamEvent{Type: StreamFinish})
	return &mockTransport{name: name, events: events}
}

func collectText(t *testing.T, ch <-chan StreamEvent) string {
	t.Helper()
	var sb strings.Builder
	for ev := range ch {
		switch ev.Type {
		case StreamDelta:
			sb.WriteString(ev.Delta)
		case StreamError:
			t.Fatalf("unexpected stream error: %v", ev.Error)
		}
	}
	return sb.String()
}

func TestClientStream(t *testing.T) {
	mock := newMockTransport("test-provider", "Hello", ", ", "world")
	client := NewClient(WithTransport(mock))

	ch, err := client.Stream(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := collectText(t, ch); got != "Hello, world" {
		t.Errorf("expected %q, got %q", "Hello, world", got)
	}
}

func TestClientProviderRouting(t *testing.T) {
	openai := newMockTransport("openai", "OpenAI response")
	anthropic := newMockTransport("anthropic", "Anthropic response")

	client := NewClient(
		WithTransport(openai),
		WithTransport(anthropic),
		WithDefaultProvider("openai"),
	)

	// Explicit provider.
	ch, err := client.Stream(context.Background(), Request{
		Messages: []Message{UserMessage("Hi")},
		Provider: "anthropic",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := collectText(t, ch); got != "Anthropic response" {
		t.Errorf("expected Anthropic response, got %q", got)
	}

	// Default provider.
	ch, err = client.Stream(context.Background(), Request{
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := collectText(t, ch); got != "OpenAI response" {
		t.Errorf("expected OpenAI response, got %q", got)
	}
}

func TestClientNoTransport(t *testing.T) {
	client := NewClient()
	_, err := client.Stream(context.Background(), Request{
		Messages: []Message{UserMessage("Hi")},
	})
	if err == nil {
		t.Fatal("expected error for no transport")
	}
	if _, ok := err.(*ConfigurationError); !ok {
		t.Errorf("expected ConfigurationError, got %T", err)
	}
}

func TestClientUnknownProvider(t *testing.T) {
	client := NewClient(WithTransport(newMockTransport("openai", "ok")))
	_, err := client.Stream(context.Background(), Request{
		Messages: []Message{UserMessage("Hi")},
		Provider: "gemini",
	})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if _, ok := err.(*ConfigurationError); !ok {
		t.Errorf("expected ConfigurationError, got %T", err)
	}
}

func TestClientRetriesRetryableOpenFailure(t *testing.T) {
	mock := &mockTransport{
		name: "flaky",
		err: &ServerError{ProviderError: ProviderError{
			TransportError: TransportError{Message: "server error"}, Retryable: true,
		}},
	}
	client := NewClient(
		WithTransport(mock),
		WithRetryPolicy(RetryPolicy{MaxRetries: 2, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}),
	)

	_, err := client.Stream(context.Background(), Request{Messages: []Message{UserMessage("Hi")}})
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if mock.calls != 3 { // 1 initial + 2 retries
		t.Errorf("expected 3 attempts, got %d", mock.calls)
	}
}

func TestClientDoesNotRetryAuthFailure(t *testing.T) {
	mock := &mockTransport{
		name: "strict",
		err: &AuthenticationError{ProviderError: ProviderError{
			TransportError: TransportError{Message: "invalid key"},
		}},
	}
	client := NewClient(
		WithTransport(mock),
		WithRetryPolicy(RetryPolicy{MaxRetries: 3, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}),
	)

	_, err := client.Stream(context.Background(), Request{Messages: []Message{UserMessage("Hi")}})
	if err == nil {
		t.Fatal("expected error")
	}
	if mock.calls != 1 {
		t.Errorf("expected 1 attempt (no retries for auth failure), got %d", mock.calls)
	}
}
