package agentloop

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateOutput(t *testing.T) {
	assert.Equal(t, "short", TruncateOutput("short", 10, TruncateHeadTail))
	assert.Equal(t, "anything", TruncateOutput("anything", 0, TruncateTail))

	out := TruncateOutput("aaaaabbbbbccccc", 10, TruncateHeadTail)
	assert.True(t, strings.HasPrefix(out, "aaaaa"))
	assert.True(t, strings.HasSuffix(out, "ccccc"))
	assert.Contains(t, out, "5 characters were removed from the middle")

	out = TruncateOutput("aaaaabbbbbccccc", 5, TruncateTail)
	assert.True(t, strings.HasSuffix(out, "ccccc"))
	assert.Contains(t, out, "First 10 characters were removed")
}

func TestTruncateLines(t *testing.T) {
	in := "1\n2\n3\n4\n5\n6"
	assert.Equal(t, in, TruncateLines(in, 10))
	assert.Equal(t, in, TruncateLines(in, 0))
	assert.Equal(t, "1\n2\n[... 2 lines omitted ...]\n5\n6", TruncateLines(in, 4))
}

func TestTruncateToolOutputDefaults(t *testing.T) {
	lines := strings.Repeat("line\n", 3000)
	out := TruncateToolOutput(lines, ToolReadFile, nil, nil)
	assert.Contains(t, out, "lines omitted")

	small := strings.Repeat("x", 2000)
	out = TruncateToolOutput(small, ToolWriteFile, nil, nil)
	assert.Contains(t, out, "First 1000 characters were removed")

	out = TruncateToolOutput(small, "custom", nil, nil)
	assert.Equal(t, small, out)
}

func TestTruncateToolOutputOverrides(t *testing.T) {
	out := TruncateToolOutput("a\nb\nc\nd", ToolReadFile, nil, map[string]int{ToolReadFile: 2})
	assert.Equal(t, "a\n[... 2 lines omitted ...]\nd", out)

	out = TruncateToolOutput(strings.Repeat("y", 50), ToolReadFile, map[string]int{ToolReadFile: 10}, nil)
	assert.Contains(t, out, "40 characters were removed")
}

func TestLimitFor(t *testing.T) {
	assert.Equal(t, OutputLimit{Chars: 50000, Lines: 2000, Mode: TruncateHeadTail}, limitFor(ToolReadFile, nil, nil))
	assert.Equal(t, fallbackOutputLimit, limitFor("custom", nil, nil))
	assert.Equal(t, OutputLimit{Chars: 5, Lines: 3, Mode: TruncateTail},
		limitFor(ToolEditFile, map[string]int{ToolEditFile: 5}, map[string]int{ToolEditFile: 3}))
}

func TestTruncateOutputKeepsRunesWhole(t *testing.T) {
	in := strings.Repeat("é", 10) // 20 bytes, two per rune

	out := TruncateOutput(in, 7, TruncateHeadTail)
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasPrefix(out, "é\n\n[WARNING"))
	assert.True(t, strings.HasSuffix(out, "]\n\né"))
	assert.Contains(t, out, "16 characters were removed from the middle")

	out = TruncateOutput(in, 5, TruncateTail)
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasSuffix(out, "éé"))
	assert.Contains(t, out, "First 16 characters were removed")
}
