package agentloop

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/frixaco/llm/unifiedllm"
)

var (
	// ErrEmptyInput is returned when user input is blank.
	ErrEmptyInput = errors.New("empty input")
	// ErrMalformedTurn is returned when an assistant turn does not consist of
	// tool messages followed by exactly one assistant message.
	ErrMalformedTurn = errors.New("malformed assistant turn")
)

// Message is a single entry in the conversation.
//
// Tool messages also carry the name and arguments of the call that produced
// them so the request can replay the assistant's tool call.
type Message struct {
	Role       unifiedllm.Role `json:"role"`
	Content    string          `json:"content"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
}

// ToolMessage records the result of one tool call.
func ToolMessage(call unifiedllm.ToolCall, result ToolResult) Message {
	return Message{
		Role:       unifiedllm.RoleTool,
		Content:    result.Payload,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Arguments:  call.Arguments,
		IsError:    result.Status == ToolStatusError,
	}
}

// AssistantText records the final text of a turn.
func AssistantText(text string) Message {
	return Message{Role: unifiedllm.RoleAssistant, Content: text}
}

// Conversation owns the ordered message history of a session. The first
// message is always the system prompt.
//
// A Conversation is not safe for concurrent use; the Session mutates it only
// between turns.
type Conversation struct {
	systemPrompt string
	messages     []Message
}

// NewConversation creates a conversation holding only the system message.
func NewConversation(systemPrompt string) *Conversation {
	return &Conversation{
		systemPrompt: systemPrompt,
		messages:     []Message{{Role: unifiedllm.RoleSystem, Content: systemPrompt}},
	}
}

// SystemPrompt returns the fixed system prompt.
func (c *Conversation) SystemPrompt() string { return c.systemPrompt }

// Len returns the number of messages, including the system message.
func (c *Conversation) Len() int { return len(c.messages) }

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// AppendUserMessage appends trimmed user text.
func (c *Conversation) AppendUserMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	c.messages = append(c.messages, Message{Role: unifiedllm.RoleUser, Content: text})
	return nil
}

// AppendAssistantTurn appends the messages a turn produced: zero or more tool
// messages followed by exactly one assistant message. Nothing is appended if
// msgs has any other shape.
func (c *Conversation) AppendAssistantTurn(msgs []Message) error {
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != unifiedllm.RoleAssistant {
		return ErrMalformedTurn
	}
	for _, m := range msgs[:len(msgs)-1] {
		if m.Role != unifiedllm.RoleTool || m.ToolCallID == "" {
			return ErrMalformedTurn
		}
	}
	c.messages = append(c.messages, msgs...)
	return nil
}

// Reset returns a fresh conversation holding only the system message. The
// receiver is left untouched.
func (c *Conversation) Reset() *Conversation {
	return NewConversation(c.systemPrompt)
}

// ToUnifiedMessages converts the history into provider messages. Each run of
// consecutive tool messages is preceded by a synthesized assistant message
// requesting those calls.
func ToUnifiedMessages(history []Message) []unifiedllm.Message {
	out := make([]unifiedllm.Message, 0, len(history)+1)
	for i := 0; i < len(history); i++ {
		m := history[i]
		switch m.Role {
		case unifiedllm.RoleSystem:
			out = append(out, unifiedllm.SystemMessage(m.Content))
		case unifiedllm.RoleUser:
			out = append(out, unifiedllm.UserMessage(m.Content))
		case unifiedllm.RoleAssistant:
			out = append(out, unifiedllm.AssistantMessage(m.Content))
		case unifiedllm.RoleTool:
			j := i
			for j < len(history) && history[j].Role == unifiedllm.RoleTool {
				j++
			}
			run := history[i:j]
			calls := make([]unifiedllm.ToolCall, len(run))
			for k, tm := range run {
				args := tm.Arguments
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				calls[k] = unifiedllm.ToolCall{ID: tm.ToolCallID, Name: tm.ToolName, Arguments: args}
			}
			out = append(out, unifiedllm.AssistantToolCallMessage("", calls))
			for _, tm := range run {
				out = append(out, unifiedllm.ToolResultMessage(tm.ToolCallID, tm.Content, tm.IsError))
			}
			i = j - 1
		}
	}
	return out
}
