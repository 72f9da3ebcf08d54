package modelstream

import (
	"context"
	"fmt"
	"sync"
)

// Client routes requests to registered transports by provider identifier and
// applies the retry policy when establishing a stream.
type Client struct {
	transports       map[string]Transport
	defaultTransport string
	retry            RetryPolicy
	mu               sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTransport registers a transport.
func WithTransport(t Transport) ClientOption {
	return func(c *Client) {
		c.transports[t.Name()] = t
	}
}

// WithDefaultProvider sets the default provider name.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultTransport = name
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = policy
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		transports: make(map[string]Transport),
		retry:      DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// If no default and exactly one transport, use it.
	if c.defaultTransport == "" && len(c.transports) == 1 {
		for name := range c.transports {
			c.defaultTransport = name
		}
	}
	return c
}

// RegisterTransport adds a transport to the client.
func (c *Client) RegisterTransport(t Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transports[t.Name()] = t
	if c.defaultTransport == "" {
		c.defaultTransport = t.Name()
	}
}

// resolveTransport determines which transport to use for a request.
func (c *Client) resolveTransport(req Request) (Transport, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" {
		name = c.defaultTransport
	}
	if name == "" {
		return nil, &ConfigurationError{TransportError: TransportError{
			Message: "no provider specified and no default transport configured",
		}}
	}

	t, ok := c.transports[name]
	if !ok {
		return nil, &ConfigurationError{TransportError: TransportError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return t, nil
}

// Stream submits the request to the resolved transport. Establishing the
// stream is retried per the client's retry policy; once fragments are
// flowing no retry happens, the error event terminates the sequence.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	t, err := c.resolveTransport(req)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = t.Name()
	}

	c.mu.RLock()
	policy := c.retry
	c.mu.RUnlock()

	return Retry(ctx, policy, func(ctx context.Context) (<-chan StreamEvent, error) {
		return t.Stream(ctx, req)
	})
}

// Close releases resources held by all registered transports.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, t := range c.transports {
		if closer, ok := t.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
