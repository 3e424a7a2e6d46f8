package agentloop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/frixaco/llm/unifiedllm"
)

// ToolStatus is the outcome of a tool call.
type ToolStatus string

const (
	ToolStatusSuccess ToolStatus = "success"
	ToolStatusError   ToolStatus = "error"
)

// ToolResult is the outcome of one tool call as fed back to the provider.
type ToolResult struct {
	CallID  string     `json:"call_id"`
	Status  ToolStatus `json:"status"`
	Payload string     `json:"payload"`
}

// OK reports whether the call succeeded.
func (r ToolResult) OK() bool { return r.Status == ToolStatusSuccess }

// ValidationError reports tool arguments that do not match the declared
// parameters.
type ValidationError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("invalid arguments for %s: field %q %s", e.Tool, e.Field, e.Reason)
}

// ValidateArguments checks raw arguments against a definition: they must
// form a JSON object, every required parameter must be present and every
// declared parameter that is present must have the declared JSON type.
// Unknown fields are ignored. Empty arguments are treated as {}.
func ValidateArguments(def ToolDefinition, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var args map[string]json.RawMessage
	if err := json.Unmarshal(raw, &args); err != nil || args == nil {
		return &ValidationError{Tool: def.Name, Reason: "arguments must be a JSON object"}
	}

	for _, p := range def.Parameters {
		v, present := args[p.Name]
		if !present || string(bytes.TrimSpace(v)) == "null" {
			if p.Optional {
				continue
			}
			return &ValidationError{Tool: def.Name, Field: p.Name, Reason: "is required"}
		}
		if !hasJSONType(v, p.Type) {
			return &ValidationError{Tool: def.Name, Field: p.Name, Reason: fmt.Sprintf("must be of type %s", p.Type)}
		}
	}
	return nil
}

func hasJSONType(v json.RawMessage, t ParamType) bool {
	var decoded any
	if err := json.Unmarshal(v, &decoded); err != nil {
		return false
	}
	switch t {
	case ParamString:
		_, ok := decoded.(string)
		return ok
	case ParamNumber:
		_, ok := decoded.(float64)
		return ok
	case ParamInteger:
		f, ok := decoded.(float64)
		return ok && f == math.Trunc(f)
	case ParamBoolean:
		_, ok := decoded.(bool)
		return ok
	case ParamObject:
		_, ok := decoded.(map[string]any)
		return ok
	case ParamArray:
		_, ok := decoded.([]any)
		return ok
	default:
		return true
	}
}

// ToolExecutor validates provider-issued tool calls and runs their
// handlers. Every failure comes back as a ToolResult with error status.
type ToolExecutor struct {
	registry   *ToolRegistry
	logger     *slog.Logger
	charLimits map[string]int
	lineLimits map[string]int
}

// ExecutorOption configures a ToolExecutor.
type ExecutorOption func(*ToolExecutor)

// WithExecutorLogger sets the logger used for tool execution records.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *ToolExecutor) {
		e.logger = logger
	}
}

// WithOutputLimits overrides per-tool character and line limits.
func WithOutputLimits(charLimits, lineLimits map[string]int) ExecutorOption {
	return func(e *ToolExecutor) {
		e.charLimits = charLimits
		e.lineLimits = lineLimits
	}
}

// NewToolExecutor creates an executor over registry.
func NewToolExecutor(registry *ToolRegistry, opts ...ExecutorOption) *ToolExecutor {
	e := &ToolExecutor{registry: registry}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Registry returns the registry the executor dispatches to.
func (e *ToolExecutor) Registry() *ToolRegistry { return e.registry }

// Execute runs one tool call: lookup, validate, invoke, truncate.
func (e *ToolExecutor) Execute(ctx context.Context, call unifiedllm.ToolCall) (result ToolResult) {
	start := time.Now()
	defer func() {
		attrs := []any{
			"tool", call.Name,
			"call_id", call.ID,
			"status", result.Status,
			"duration", time.Since(start),
		}
		if result.Status == ToolStatusError {
			attrs = append(attrs, "error", result.Payload)
		}
		e.logger.Debug("tool executed", attrs...)
	}()

	tool := e.registry.Get(call.Name)
	if tool == nil {
		return errorResult(call.ID, fmt.Sprintf("Unknown tool: %s", call.Name))
	}

	if err := ValidateArguments(tool.Definition, call.Arguments); err != nil {
		return errorResult(call.ID, err.Error())
	}

	args := call.Arguments
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	output, err := e.invoke(ctx, tool, args)
	if err != nil {
		return errorResult(call.ID, fmt.Sprintf("Tool error (%s): %v", call.Name, err))
	}

	return ToolResult{
		CallID:  call.ID,
		Status:  ToolStatusSuccess,
		Payload: TruncateToolOutput(output, call.Name, e.charLimits, e.lineLimits),
	}
}

func (e *ToolExecutor) invoke(ctx context.Context, tool *Tool, args json.RawMessage) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return tool.Handler(ctx, args)
}

func errorResult(callID, msg string) ToolResult {
	return ToolResult{CallID: callID, Status: ToolStatusError, Payload: msg}
}
