package agentloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventSessionStart       EventKind = "session_start"
	EventSessionEnd         EventKind = "session_end"
	EventUserInput          EventKind = "user_input"
	EventStateChange        EventKind = "state_change"
	EventAssistantTextStart EventKind = "assistant_text_start"
	EventAssistantTextDelta EventKind = "assistant_text_delta"
	EventAssistantTextEnd   EventKind = "assistant_text_end"
	EventToolCallStart      EventKind = "tool_call_start"
	EventToolCallArgsDelta  EventKind = "tool_call_args_delta"
	EventToolCallEnd        EventKind = "tool_call_end"
	EventTurnFinished       EventKind = "turn_finished"
	EventTurnLimit          EventKind = "turn_limit"
	EventReset              EventKind = "reset"
	EventWarning            EventKind = "warning"
	EventError              EventKind = "error"
)

// SessionEvent is a typed event emitted by the agent loop.
//
// Data keys by kind:
//   - assistant_text_delta: "delta"
//   - tool_call_start: "tool_name", "call_id"
//   - tool_call_args_delta: "call_id", "delta"
//   - tool_call_end: "tool_name", "call_id", "status", "output"
//   - turn_finished: "text", "steps"
//   - state_change: "from", "to"
//   - error, reset: "error"
//   - warning: "message"
type SessionEvent struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// String returns the string value stored under key, or "".
func (e SessionEvent) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// EventHandler receives events synchronously, in emission order.
type EventHandler func(SessionEvent)

// EventEmitter delivers typed events to the host application, either to a
// synchronous handler or via a buffered channel.
type EventEmitter struct {
	sessionID string
	ch        chan SessionEvent
	handler   EventHandler
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
		ch:        make(chan SessionEvent, bufferSize),
	}
}

// SetHandler installs a synchronous handler. Events are then delivered to
// the handler only.
func (e *EventEmitter) SetHandler(h EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// Emit delivers an event. If the emitter is closed, the event is silently
// dropped.
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
	if e.handler != nil {
		e.handler(event)
		return
	}
	select {
	case e.ch <- event:
	default:
		// Channel full; drop event to avoid blocking the agent loop.
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
