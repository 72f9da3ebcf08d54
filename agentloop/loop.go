package agentloop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/martinemde/toolline/modelstream"
)

// LoopState represents the current lifecycle state of a loop.
type LoopState string

const (
	StateIdle       LoopState = "idle"
	StateProcessing LoopState = "processing"
	StateClosed     LoopState = "closed"
)

// Store persists conversation messages. Implementations must make Append
// durable before returning.
type Store interface {
	Append(sessionID string, msg Message) error
}

// LoopConfig holds per-loop tunables.
type LoopConfig struct {
	Model    string
	Provider string

	// MaxToolRounds bounds the number of tool execution rounds per user
	// input. Zero applies the default.
	MaxToolRounds int

	// RepeatWindow is the tool call window checked for repetition. Zero
	// disables repeat detection.
	RepeatWindow int

	Temperature *float64
	MaxTokens   int
}

// DefaultLoopConfig returns the built-in loop settings.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxToolRounds: 50,
		RepeatWindow:  8,
	}
}

// Loop is the central orchestrator: it streams model output, separates
// display text from tool invocations, executes the tools, feeds results
// back, and repeats until the model replies without tools.
type Loop struct {
	sessionID string
	client    *modelstream.Client
	registry  *ToolRegistry
	executor  *Executor
	env       *LocalEnvironment
	store     Store
	emitter   *EventEmitter
	config    LoopConfig
	log       zerolog.Logger

	history []Message
	state   LoopState
	mu      sync.Mutex
}

// NewLoop creates a Loop for a session. history holds previously persisted
// messages when resuming; nil starts fresh. store may be nil for an
// ephemeral session.
func NewLoop(sessionID string, client *modelstream.Client, registry *ToolRegistry, env *LocalEnvironment, store Store, config LoopConfig, log zerolog.Logger) *Loop {
	if config.MaxToolRounds <= 0 {
		config.MaxToolRounds = DefaultLoopConfig().MaxToolRounds
	}
	executor := NewExecutor(registry, env)
	return &Loop{
		sessionID: sessionID,
		client:    client,
		registry:  registry,
		executor:  executor,
		env:       env,
		store:     store,
		emitter:   NewEventEmitter(sessionID, 256),
		config:    config,
		log:       log.With().Str("session_id", sessionID).Logger(),
		state:     StateIdle,
	}
}

// SessionID returns the session identifier.
func (l *Loop) SessionID() string { return l.sessionID }

// Executor returns the loop's tool executor so callers can tune timeouts.
func (l *Loop) Executor() *Executor { return l.executor }

// State returns the current loop state.
func (l *Loop) State() LoopState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// History returns a copy of the conversation history.
func (l *Loop) History() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := make([]Message, len(l.history))
	copy(h, l.history)
	return h
}

// Events returns the event channel for the host application.
func (l *Loop) Events() <-chan SessionEvent {
	return l.emitter.Events()
}

// Restore seeds the history from previously persisted messages. Call before
// the first Submit when resuming a session.
func (l *Loop) Restore(history []Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history[:0], history...)
}

// Close terminates the loop and closes the event channel.
func (l *Loop) Close() {
	l.mu.Lock()
	l.state = StateClosed
	l.mu.Unlock()
	l.emitter.Close()
}

// Submit processes one user input through the agent loop. It returns once
// the model completes a reply without tool invocations, the round guard
// trips, or the context is cancelled. Cancellation is a normal outcome and
// returns nil; only transport and persistence failures are errors.
func (l *Loop) Submit(ctx context.Context, userInput string) error {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return fmt.Errorf("loop is closed")
	}
	l.state = StateProcessing
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		if l.state == StateProcessing {
			l.state = StateIdle
		}
		l.mu.Unlock()
		l.emitter.Emit(EventTurnEnd, nil)
	}()

	if err := l.append(NewUserMessage(userInput)); err != nil {
		return err
	}
	l.emitter.Emit(EventUserInput, map[string]interface{}{"content": userInput})

	rounds := 0
	for {
		raw, calls, streamErr := l.streamTurn(ctx)

		if streamErr != nil {
			if isCancellation(streamErr) {
				// Keep what was displayed; the partial reply is part of the
				// record so a resumed session sees what the user saw.
				if raw != "" {
					if err := l.append(NewAssistantMessage(raw, nil)); err != nil {
						return err
					}
				}
				l.log.Debug().Msg("turn cancelled during streaming")
				return nil
			}
			if raw != "" {
				if err := l.append(NewAssistantMessage(raw, nil)); err != nil {
					return err
				}
			}
			l.emitter.Emit(EventError, map[string]interface{}{"error": streamErr.Error()})
			return fmt.Errorf("model stream failed: %w", streamErr)
		}

		if err := l.append(NewAssistantMessage(raw, calls)); err != nil {
			return err
		}
		l.emitter.Emit(EventTextEnd, nil)

		if len(calls) == 0 {
			return nil
		}

		if rounds >= l.config.MaxToolRounds {
			// Every parsed call still gets a result so the record never
			// holds an unresolved invocation.
			l.emitter.Emit(EventRoundLimit, map[string]interface{}{"rounds": rounds})
			for _, call := range calls {
				result := ToolResult{
					CallID:   call.ID,
					ToolName: call.Name,
					Failure:  FailureBadInvocation,
					Payload:  fmt.Sprintf("tool round limit reached (%d rounds)", l.config.MaxToolRounds),
				}
				if err := l.append(NewToolResultMessage(result)); err != nil {
					return err
				}
			}
			return nil
		}
		rounds++

		cancelled, err := l.executeRound(ctx, calls)
		if err != nil {
			return err
		}
		if cancelled {
			return nil
		}

		if l.config.RepeatWindow > 0 && DetectRepeatedCalls(l.History(), l.config.RepeatWindow) {
			notice := fmt.Sprintf("The last %d tool calls follow a repeating pattern. Try a different approach.", l.config.RepeatWindow)
			if err := l.append(NewUserMessage(notice)); err != nil {
				return err
			}
			l.emitter.Emit(EventRepeatWarning, map[string]interface{}{"message": notice})
		}
	}
}

// streamTurn performs one model call, transcribing the stream as it
// arrives. It returns the raw output consumed so far (complete on success,
// partial on failure) and the parsed tool calls.
func (l *Loop) streamTurn(ctx context.Context) (string, []ToolCall, error) {
	systemPrompt := BuildSystemPrompt(l.registry, l.env, l.config.Model)
	request := modelstream.Request{
		Model:        l.config.Model,
		Provider:     l.config.Provider,
		SystemPrompt: systemPrompt,
		Messages:     ToModelMessages(l.History()),
		Temperature:  l.config.Temperature,
	}
	if l.config.MaxTokens > 0 {
		maxTokens := l.config.MaxTokens
		request.MaxTokens = &maxTokens
	}

	transcriber := NewTranscriber(l.registry, func(text string) {
		l.emitter.Emit(EventTextDelta, map[string]interface{}{"text": text})
	})

	events, err := l.client.Stream(ctx, request)
	if err != nil {
		return "", nil, err
	}

	for event := range events {
		switch event.Type {
		case modelstream.StreamDelta:
			transcriber.Write(event.Delta)
		case modelstream.StreamError:
			return transcriber.Raw(), nil, event.Error
		case modelstream.StreamFinish:
			invocations := transcriber.Finish()
			return transcriber.Raw(), ParseInvocations(invocations, l.registry), nil
		}
		if ctx.Err() != nil {
			return transcriber.Raw(), nil, ctx.Err()
		}
	}
	// Channel closed without a finish event; treat as a stream failure.
	if ctx.Err() != nil {
		return transcriber.Raw(), nil, ctx.Err()
	}
	return transcriber.Raw(), nil, &modelstream.StreamFailedError{
		TransportError: modelstream.TransportError{Message: "stream ended without a finish event"},
	}
}

// executeRound runs one batch of tool calls and persists a result message
// for each. Returns cancelled=true when the context was cancelled partway;
// the cancelled results are still recorded.
func (l *Loop) executeRound(ctx context.Context, calls []ToolCall) (cancelled bool, err error) {
	for _, call := range calls {
		l.emitter.Emit(EventToolStart, map[string]interface{}{
			"call_id":   call.ID,
			"tool_name": call.Name,
			"args":      call.Args,
		})
	}

	results := l.executor.Execute(ctx, calls)

	for _, result := range results {
		if err := l.append(NewToolResultMessage(result)); err != nil {
			return false, err
		}
		l.emitter.Emit(EventToolEnd, map[string]interface{}{
			"call_id":     result.CallID,
			"tool_name":   result.ToolName,
			"ok":          result.OK(),
			"payload":     result.Payload,
			"duration_ms": result.Duration.Milliseconds(),
		})
		if result.OK() {
			l.log.Debug().Str("tool", result.ToolName).Dur("duration", result.Duration).Msg("tool succeeded")
		} else {
			l.log.Debug().Str("tool", result.ToolName).Str("failure", string(result.Failure)).Msg("tool failed")
		}
		if result.Failure == FailureCancelled {
			cancelled = true
		}
	}
	return cancelled, nil
}

// append records a message in memory and in the store. A store failure is
// unrecoverable: the in-memory and persisted logs must not diverge.
func (l *Loop) append(msg Message) error {
	if l.store != nil {
		if err := l.store.Append(l.sessionID, msg); err != nil {
			return &PersistError{Cause: err}
		}
	}
	l.mu.Lock()
	l.history = append(l.history, msg)
	l.mu.Unlock()
	return nil
}

func isCancellation(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var abort *modelstream.AbortError
	return errors.As(err, &abort)
}
