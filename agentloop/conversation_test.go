package agentloop

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frixaco/llm/unifiedllm"
)

func TestNewConversationHoldsSystemPrompt(t *testing.T) {
	c := NewConversation("be helpful")

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, unifiedllm.RoleSystem, msgs[0].Role)
	assert.Equal(t, "be helpful", msgs[0].Content)
	assert.Equal(t, "be helpful", c.SystemPrompt())
}

func TestAppendUserMessage(t *testing.T) {
	c := NewConversation("sys")

	require.NoError(t, c.AppendUserMessage("  hello \n"))
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "hello", c.Messages()[1].Content)

	assert.ErrorIs(t, c.AppendUserMessage("   \t\n"), ErrEmptyInput)
	assert.ErrorIs(t, c.AppendUserMessage(""), ErrEmptyInput)
	assert.Equal(t, 2, c.Len())
}

func TestMessagesReturnsCopy(t *testing.T) {
	c := NewConversation("sys")
	msgs := c.Messages()
	msgs[0].Content = "changed"
	assert.Equal(t, "sys", c.Messages()[0].Content)
}

func TestAppendAssistantTurn(t *testing.T) {
	call := unifiedllm.ToolCall{ID: "c1", Name: ToolReadFile, Arguments: json.RawMessage(`{"path":"a.txt"}`)}

	t.Run("tool messages then assistant", func(t *testing.T) {
		c := NewConversation("sys")
		require.NoError(t, c.AppendUserMessage("read a.txt"))
		err := c.AppendAssistantTurn([]Message{
			ToolMessage(call, ToolResult{CallID: "c1", Status: ToolStatusSuccess, Payload: "contents"}),
			AssistantText("done"),
		})
		require.NoError(t, err)

		msgs := c.Messages()
		require.Len(t, msgs, 4)
		assert.Equal(t, unifiedllm.RoleTool, msgs[2].Role)
		assert.Equal(t, "c1", msgs[2].ToolCallID)
		assert.Equal(t, ToolReadFile, msgs[2].ToolName)
		assert.Equal(t, unifiedllm.RoleAssistant, msgs[3].Role)
	})

	t.Run("assistant only", func(t *testing.T) {
		c := NewConversation("sys")
		require.NoError(t, c.AppendAssistantTurn([]Message{AssistantText("hi")}))
		assert.Equal(t, 2, c.Len())
	})

	malformed := map[string][]Message{
		"empty":            nil,
		"no assistant":     {ToolMessage(call, ToolResult{Status: ToolStatusSuccess})},
		"tool after":       {AssistantText("a"), ToolMessage(call, ToolResult{Status: ToolStatusSuccess})},
		"two assistants":   {AssistantText("a"), AssistantText("b")},
		"tool without id":  {{Role: unifiedllm.RoleTool, Content: "x"}, AssistantText("a")},
		"user in the turn": {{Role: unifiedllm.RoleUser, Content: "x"}, AssistantText("a")},
	}
	for name, msgs := range malformed {
		t.Run(name, func(t *testing.T) {
			c := NewConversation("sys")
			assert.ErrorIs(t, c.AppendAssistantTurn(msgs), ErrMalformedTurn)
			assert.Equal(t, 1, c.Len())
		})
	}
}

func TestConversationReset(t *testing.T) {
	c := NewConversation("sys")
	require.NoError(t, c.AppendUserMessage("one"))
	require.NoError(t, c.AppendAssistantTurn([]Message{AssistantText("two")}))

	fresh := c.Reset()
	assert.Equal(t, 1, fresh.Len())
	assert.Equal(t, "sys", fresh.SystemPrompt())
	assert.Equal(t, 3, c.Len())

	require.NoError(t, fresh.AppendUserMessage("hi"))
	msgs := fresh.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, unifiedllm.RoleSystem, msgs[0].Role)
	assert.Equal(t, unifiedllm.RoleUser, msgs[1].Role)
}

func TestToUnifiedMessagesReplaysToolCalls(t *testing.T) {
	c1 := unifiedllm.ToolCall{ID: "c1", Name: ToolReadFile, Arguments: json.RawMessage(`{"path":"a"}`)}
	c2 := unifiedllm.ToolCall{ID: "c2", Name: ToolEditFile}

	history := []Message{
		{Role: unifiedllm.RoleSystem, Content: "sys"},
		{Role: unifiedllm.RoleUser, Content: "go"},
		ToolMessage(c1, ToolResult{Status: ToolStatusSuccess, Payload: "A"}),
		ToolMessage(c2, ToolResult{Status: ToolStatusError, Payload: "boom"}),
		AssistantText("finished"),
	}

	out := ToUnifiedMessages(history)
	require.Len(t, out, 6)

	assert.Equal(t, unifiedllm.RoleSystem, out[0].Role)
	assert.Equal(t, unifiedllm.RoleUser, out[1].Role)

	assert.Equal(t, unifiedllm.RoleAssistant, out[2].Role)
	calls := out[2].ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "c1", calls[0].ID)
	assert.JSONEq(t, `{"path":"a"}`, string(calls[0].Arguments))
	assert.Equal(t, "c2", calls[1].ID)
	assert.JSONEq(t, `{}`, string(calls[1].Arguments))

	r1 := out[3].ToolResult()
	require.NotNil(t, r1)
	assert.Equal(t, "c1", r1.ToolCallID)
	assert.Equal(t, "A", r1.Content)
	assert.False(t, r1.IsError)

	r2 := out[4].ToolResult()
	require.NotNil(t, r2)
	assert.True(t, r2.IsError)

	assert.Equal(t, "finished", out[5].TextContent())
}
