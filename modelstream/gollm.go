package modelstream

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/teilomillet/gollm"
)

// GollmTransport wraps a gollm.LLM instance and implements Transport.
// It translates between the conversation history and gollm's prompt API.
type GollmTransport struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmOption configures a GollmTransport.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key for the transport.
func WithAPIKey(key string) GollmOption {
	return func(c *gollmConfig) {
		c.apiKey = key
	}
}

// WithModel sets the default model for the transport.
func WithModel(model string) GollmOption {
	return func(c *gollmConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmOption {
	return func(c *gollmConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmOption {
	return func(c *gollmConfig) {
		c.temperature = t
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmOption {
	return func(c *gollmConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmTransport creates a transport for the given provider. If apiKey is
// empty, gollm will attempt to read it from environment variables.
func NewGollmTransport(provider string, apiKey string, opts ...GollmOption) (*GollmTransport, error) {
	cfg := &gollmConfig{
		apiKey:      apiKey,
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		switch provider {
		case "openai":
			model = "gpt-4o-mini"
		case "anthropic":
			model = "claude-sonnet-4-5-20250514"
		default:
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries are handled by the client
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}

	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}

	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{TransportError: TransportError{
			Message: fmt.Sprintf("failed to create LLM for provider %s", provider),
			Cause:   err,
		}}
	}

	return &GollmTransport{
		provider: provider,
		llm:      llm,
		model:    model,
	}, nil
}

// Name returns the provider identifier.
func (t *GollmTransport) Name() string {
	return t.provider
}

// Stream submits the request and returns a channel of stream events. When
// the underlying provider supports token streaming, deltas arrive as the
// provider produces them; otherwise the full response is generated blocking
// and surfaced as a single delta.
func (t *GollmTransport) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	prompt := t.translateRequest(req)
	t.applyRequestOptions(req)

	ch := make(chan StreamEvent, 64)

	if !t.llm.SupportsStreaming() {
		go func() {
			defer close(ch)
			ch <- StreamEvent{Type: StreamStart}

			text, err := t.llm.Generate(ctx, prompt)
			if err != nil {
				ch <- StreamEvent{Type: StreamError, Error: t.translateError(err)}
				return
			}

			ch <- StreamEvent{Type: StreamDelta, Delta: text}
			ch <- StreamEvent{Type: StreamFinish}
		}()
		return ch, nil
	}

	stream, err := t.llm.Stream(ctx, prompt)
	if err != nil {
		return nil, t.translateError(err)
	}

	go func() {
		defer close(ch)
		defer stream.Close()

		ch <- StreamEvent{Type: StreamStart}

		for {
			token, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				ch <- StreamEvent{Type: StreamError, Error: t.translateError(err)}
				return
			}
			if token == nil {
				continue
			}
			ch <- StreamEvent{Type: StreamDelta, Delta: token.Text}
		}

		ch <- StreamEvent{Type: StreamFinish}
	}()

	return ch, nil
}

// translateRequest converts a Request into a gollm Prompt. gollm takes a
// single prompt string, so prior turns are rendered with role markers.
func (t *GollmTransport) translateRequest(req Request) *gollm.Prompt {
	var userParts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			userParts = append(userParts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				userParts = append(userParts, "[Assistant]: "+msg.Content)
			}
		case RoleSystem:
			userParts = append(userParts, "[System]: "+msg.Content)
		}
	}

	promptText := strings.Join(userParts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	promptOpts := []gollm.PromptOption{}
	if req.SystemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(req.SystemPrompt), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyRequestOptions applies request-level parameters to the gollm LLM.
func (t *GollmTransport) applyRequestOptions(req Request) {
	if req.Model != "" {
		t.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		t.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		t.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// translateError converts a gollm error into the transport error hierarchy.
// gollm flattens provider errors to strings, so classification inspects the
// message.
func (t *GollmTransport) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	msgLower := strings.ToLower(msg)

	switch {
	case strings.Contains(msgLower, "401") || strings.Contains(msgLower, "unauthorized") || strings.Contains(msgLower, "invalid key") || strings.Contains(msgLower, "invalid api key"):
		return &AuthenticationError{ProviderError: ProviderError{
			TransportError: TransportError{Message: msg, Cause: err}, Provider: t.provider, StatusCode: 401,
		}}
	case strings.Contains(msgLower, "403") || strings.Contains(msgLower, "forbidden"):
		return &AccessDeniedError{ProviderError: ProviderError{
			TransportError: TransportError{Message: msg, Cause: err}, Provider: t.provider, StatusCode: 403,
		}}
	case strings.Contains(msgLower, "429") || strings.Contains(msgLower, "rate limit"):
		return &RateLimitError{ProviderError: ProviderError{
			TransportError: TransportError{Message: msg, Cause: err}, Provider: t.provider, StatusCode: 429, Retryable: true,
		}}
	case strings.Contains(msgLower, "context length") || strings.Contains(msgLower, "too many tokens"):
		return &ContextLengthError{ProviderError: ProviderError{
			TransportError: TransportError{Message: msg, Cause: err}, Provider: t.provider, StatusCode: 413,
		}}
	case strings.Contains(msgLower, "500") || strings.Contains(msgLower, "internal server"):
		return &ServerError{ProviderError: ProviderError{
			TransportError: TransportError{Message: msg, Cause: err}, Provider: t.provider, StatusCode: 500, Retryable: true,
		}}
	case strings.Contains(msgLower, "timeout"):
		return &RequestTimeoutError{TransportError: TransportError{Message: msg, Cause: err}}
	case strings.Contains(msgLower, "connection") || strings.Contains(msgLower, "no such host") || strings.Contains(msgLower, "network"):
		return &NetworkError{TransportError: TransportError{Message: msg, Cause: err}}
	default:
		return &ProviderError{
			TransportError: TransportError{Message: msg, Cause: err},
			Provider:       t.provider,
			Retryable:      true,
		}
	}
}
