package agentloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventUserInput     EventKind = "user_input"
	EventTextDelta     EventKind = "text_delta"
	EventTextEnd       EventKind = "text_end"
	EventTurnEnd       EventKind = "turn_end"
	EventToolStart     EventKind = "tool_start"
	EventToolEnd       EventKind = "tool_end"
	EventRoundLimit    EventKind = "round_limit"
	EventRepeatWarning EventKind = "repeat_warning"
	EventWarning       EventKind = "warning"
	EventError         EventKind = "error"
)

// SessionEvent is a typed event emitted by the agent loop.
type SessionEvent struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventEmitter delivers typed events to the host application via a channel.
// Emission never blocks the loop: a full channel drops the event. The one
// exception is EventTurnEnd, which hosts synchronize on; the channel keeps a
// slot in reserve that only turn-end events may occupy, so a backlog of
// droppable events can never starve the turn boundary.
type EventEmitter struct {
	sessionID string
	ch        chan SessionEvent
	drop      int // droppable events are rejected at this queue depth
	closed    bool
	mu        sync.Mutex
}

// NewEventEmitter creates a new EventEmitter with a buffered channel.
func NewEventEmitter(sessionID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		sessionID: sessionID,
		ch:        make(chan SessionEvent, bufferSize+1),
		drop:      bufferSize,
	}
}

// Emit sends an event to the channel. If the emitter is closed, the event
// is silently dropped.
func (e *EventEmitter) Emit(kind EventKind, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := SessionEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		Data:      data,
	}
	if kind != EventTurnEnd && len(e.ch) >= e.drop {
		// Channel full; drop event to avoid blocking the agent loop.
		return
	}
	select {
	case e.ch <- event:
	default:
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan SessionEvent {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
