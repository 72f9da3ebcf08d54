package agentloop

import (
	"fmt"
	"time"

	"github.com/martinemde/toolline/modelstream"
)

// MessageRole discriminates between conversation message types.
type MessageRole string

const (
	RoleUser       MessageRole = "user"
	RoleAssistant  MessageRole = "assistant"
	RoleToolResult MessageRole = "tool_result"
)

// Message is a single entry in the conversation log. Messages are immutable
// once appended; the ordered sequence of messages is the sole source of
// truth for resuming a session.
type Message struct {
	Role      MessageRole `json:"role"`
	Timestamp time.Time   `json:"timestamp"`

	// Content holds user input, the assistant's full raw output (including
	// invocation lines), or a tool result payload.
	Content string `json:"content"`

	// ToolCalls are attached to assistant messages, in source order.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Tool result binding, set on tool_result messages.
	ToolName   string      `json:"tool_name,omitempty"`
	CallID     string      `json:"call_id,omitempty"`
	Failure    FailureKind `json:"failure,omitempty"`
	DurationMs int64       `json:"duration_ms,omitempty"`
}

// ToolCall is one parsed tool invocation from an assistant turn. Created
// during parsing, never mutated, consumed exactly once by the Executor.
type ToolCall struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`

	// ParseError records why this invocation cannot be executed (unknown
	// tool, argument arity mismatch). The executor turns it into a failing
	// result without running anything, so the model can self-correct.
	ParseError string `json:"parse_error,omitempty"`
}

// ToolResult is the outcome of executing one ToolCall.
type ToolResult struct {
	CallID   string        `json:"call_id"`
	ToolName string        `json:"tool_name"`
	Payload  string        `json:"payload"`
	Failure  FailureKind   `json:"failure,omitempty"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the tool invocation succeeded. A command that ran and
// exited non-zero is still OK: the exit status is encoded in the payload.
func (r ToolResult) OK() bool { return r.Failure == "" }

// Render produces the text fed back to the model for this result.
func (r ToolResult) Render() string {
	if r.OK() {
		return fmt.Sprintf("TOOL RESULT for %s:\n%s", r.ToolName, r.Payload)
	}
	return fmt.Sprintf("TOOL %s failed: %s", r.ToolName, r.Payload)
}

// NewUserMessage creates a user Message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Timestamp: time.Now(), Content: content}
}

// NewAssistantMessage creates an assistant Message from the raw model output
// and the tool calls parsed out of it.
func NewAssistantMessage(content string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Timestamp: time.Now(), Content: content, ToolCalls: calls}
}

// NewToolResultMessage creates a tool_result Message from an executed result.
// The content is the rendered form the model will see.
func NewToolResultMessage(result ToolResult) Message {
	return Message{
		Role:       RoleToolResult,
		Timestamp:  time.Now(),
		Content:    result.Render(),
		ToolName:   result.ToolName,
		CallID:     result.CallID,
		Failure:    result.Failure,
		DurationMs: result.Duration.Milliseconds(),
	}
}

// ToModelMessages converts the conversation log into transport messages.
// Tool results travel as user-role messages so the model sees tool outcomes
// the same way it sees user input.
func ToModelMessages(history []Message) []modelstream.Message {
	var out []modelstream.Message
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			out = append(out, modelstream.UserMessage(m.Content))
		case RoleAssistant:
			out = append(out, modelstream.AssistantMessage(m.Content))
		case RoleToolResult:
			out = append(out, modelstream.UserMessage(m.Content))
		}
	}
	return out
}
