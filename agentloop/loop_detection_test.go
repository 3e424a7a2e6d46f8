package agentloop

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/frixaco/llm/unifiedllm"
)

func TestDetectLoop(t *testing.T) {
	a := call("1", ToolReadFile, `{"path":"a"}`)
	aSpaced := call("2", ToolReadFile, `{ "path" : "a" }`)
	b := call("3", ToolReadFile, `{"path":"b"}`)
	c := call("4", ToolEditFile, `{"path":"a"}`)

	tests := []struct {
		name   string
		calls  []unifiedllm.ToolCall
		window int
		want   bool
	}{
		{"disabled", nil, 0, false},
		{"too few calls", []unifiedllm.ToolCall{a, a}, 3, false},
		{"same call repeated", []unifiedllm.ToolCall{a, a, a}, 3, true},
		{"formatting ignored", []unifiedllm.ToolCall{a, aSpaced, a}, 3, true},
		{"pattern of two", []unifiedllm.ToolCall{a, b, a, b}, 4, true},
		{"pattern of three", []unifiedllm.ToolCall{a, b, c, a, b, c}, 6, true},
		{"only recent window counts", []unifiedllm.ToolCall{c, b, a, a, a}, 3, true},
		{"no pattern", []unifiedllm.ToolCall{a, b, c, b}, 4, false},
		{"distinct calls filling the window", []unifiedllm.ToolCall{a, b, c}, 3, false},
		{"window of one", []unifiedllm.ToolCall{a}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLoop(tt.calls, tt.window))
		})
	}
}

func TestLoopWarning(t *testing.T) {
	assert.Contains(t, loopWarning(6), "last 6 tool calls")
}
