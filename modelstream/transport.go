package modelstream

import "context"

// Transport is the interface every provider backend must implement.
type Transport interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// Stream submits the request and returns a channel of stream events.
	// The sequence is finite: it ends with a finish event or an error event
	// and the channel is then closed. A failed stream is not restartable.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Closer is implemented by transports that hold resources.
type Closer interface {
	Close() error
}
