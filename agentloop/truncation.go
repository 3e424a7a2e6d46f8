package agentloop

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncationMode says which part of an oversized result survives.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail" // keep both ends, drop the middle
	TruncateTail     TruncationMode = "tail"      // keep the end
)

// OutputLimit bounds what one tool result may add to the conversation.
// Lines is applied after Chars; zero means no line limit.
type OutputLimit struct {
	Chars int
	Lines int
	Mode  TruncationMode
}

// DefaultOutputLimits per tool. Only readFile returns file-sized payloads;
// the others return short confirmations or errors.
var DefaultOutputLimits = map[string]OutputLimit{
	ToolReadFile:  {Chars: 50000, Lines: 2000, Mode: TruncateHeadTail},
	ToolEditFile:  {Chars: 10000, Mode: TruncateTail},
	ToolWriteFile: {Chars: 1000, Mode: TruncateTail},
}

var fallbackOutputLimit = OutputLimit{Chars: 30000, Mode: TruncateHeadTail}

// TruncateOutput shortens output to at most maxChars bytes plus a warning
// the model can read. Cuts fall on rune boundaries. maxChars <= 0 disables
// it.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	if mode == TruncateTail {
		start := runeCeil(output, len(output)-maxChars)
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed.]\n\n", start) +
			output[start:]
	}
	head := runeFloor(output, maxChars/2)
	tail := runeCeil(output, len(output)-maxChars/2)
	return output[:head] +
		fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
			"If you need a specific part, ask for a smaller file or edit with a narrower snippet.]\n\n", tail-head) +
		output[tail:]
}

// runeFloor moves i back to the first byte of the rune containing it.
func runeFloor(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeCeil moves i forward to the next rune start.
func runeCeil(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// TruncateLines keeps the first and last lines of output, maxLines in
// total, and notes how many were dropped.
func TruncateLines(output string, maxLines int) string {
	if maxLines <= 0 {
		return output
	}
	lines := strings.Split(output, "\n")
	omitted := len(lines) - maxLines
	if omitted <= 0 {
		return output
	}
	head := maxLines / 2
	return strings.Join(lines[:head], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[head+omitted:], "\n")
}

// limitFor merges per-call overrides into the tool's default limit.
func limitFor(toolName string, charLimits, lineLimits map[string]int) OutputLimit {
	limit, ok := DefaultOutputLimits[toolName]
	if !ok {
		limit = fallbackOutputLimit
	}
	if n := charLimits[toolName]; n > 0 {
		limit.Chars = n
	}
	if n := lineLimits[toolName]; n > 0 {
		limit.Lines = n
	}
	return limit
}

// TruncateToolOutput bounds a tool result by characters and then by lines.
// charLimits and lineLimits override DefaultOutputLimits per tool name.
func TruncateToolOutput(output string, toolName string, charLimits map[string]int, lineLimits map[string]int) string {
	limit := limitFor(toolName, charLimits, lineLimits)
	return TruncateLines(TruncateOutput(output, limit.Chars, limit.Mode), limit.Lines)
}
