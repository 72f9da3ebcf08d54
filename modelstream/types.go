package modelstream

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation history sent to the model.
// Tool results are rendered into user-role text before submission, so the
// transport only ever deals in plain text.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// Request is the input for a streaming completion.
type Request struct {
	Model        string    `json:"model"`
	Provider     string    `json:"provider,omitempty"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
	Temperature  *float64  `json:"temperature,omitempty"`
	MaxTokens    *int      `json:"max_tokens,omitempty"`
}

// StreamEventType identifies the kind of stream event.
type StreamEventType string

const (
	StreamStart  StreamEventType = "stream_start"
	StreamDelta  StreamEventType = "delta"
	StreamFinish StreamEventType = "finish"
	StreamError  StreamEventType = "error"
)

// StreamEvent is a single event from a streaming response. The sequence is
// finite and not restartable: after a finish or error event the channel is
// closed and no further events arrive.
type StreamEvent struct {
	Type  StreamEventType `json:"type"`
	Delta string          `json:"delta,omitempty"`
	Error error           `json:"-"`
}
