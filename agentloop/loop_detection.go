package agentloop

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/frixaco/llm/unifiedllm"
)

// callSignature identifies a call by tool name and a digest of its
// whitespace-insensitive arguments.
func callSignature(tc unifiedllm.ToolCall) string {
	var buf bytes.Buffer
	if json.Compact(&buf, tc.Arguments) != nil {
		buf.Reset()
		buf.Write(tc.Arguments)
	}
	sum := sha256.Sum256(buf.Bytes())
	return fmt.Sprintf("%s:%x", tc.Name, sum[:8])
}

// DetectLoop reports whether the last windowSize calls repeat a cycle of
// one, two or three calls. Cycles that do not divide the window evenly are
// not considered.
func DetectLoop(calls []unifiedllm.ToolCall, windowSize int) bool {
	if windowSize <= 0 || len(calls) < windowSize {
		return false
	}
	sigs := make([]string, windowSize)
	for i, tc := range calls[len(calls)-windowSize:] {
		sigs[i] = callSignature(tc)
	}
	for cycle := 1; cycle <= 3 && cycle < windowSize; cycle++ {
		if windowSize%cycle == 0 && repeats(sigs, cycle) {
			return true
		}
	}
	return false
}

func repeats(sigs []string, cycle int) bool {
	for i := cycle; i < len(sigs); i++ {
		if sigs[i] != sigs[i%cycle] {
			return false
		}
	}
	return true
}

// loopWarning is sent to the model when DetectLoop fires.
func loopWarning(windowSize int) string {
	return fmt.Sprintf("Loop detected: the last %d tool calls follow a repeating pattern. Try a different approach.", windowSize)
}
