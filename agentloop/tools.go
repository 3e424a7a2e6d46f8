package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/frixaco/llm/unifiedllm"
)

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
	ParamObject  ParamType = "object"
	ParamArray   ParamType = "array"
)

// Parameter describes one named tool argument.
type Parameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Optional    bool      `json:"optional,omitempty"`
}

// ToolDefinition describes a tool for the LLM. Parameters keep their
// declaration order in the rendered schema.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// Schema renders the parameters as a JSON Schema object.
func (d ToolDefinition) Schema() *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: jsonschema.NewProperties(),
	}
	for _, p := range d.Parameters {
		s.Properties.Set(p.Name, &jsonschema.Schema{
			Type:        string(p.Type),
			Description: p.Description,
		})
		if !p.Optional {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

// Handler executes a tool with raw JSON arguments and returns its payload.
type Handler func(ctx context.Context, arguments json.RawMessage) (string, error)

// Tool pairs a definition with its handler.
type Tool struct {
	Definition ToolDefinition
	Handler    Handler
}

// NewTypedTool builds a Tool whose handler receives arguments decoded into T.
// Fields of T are matched by their json tags.
func NewTypedTool[T any](def ToolDefinition, fn func(ctx context.Context, args T) (string, error)) Tool {
	return Tool{
		Definition: def,
		Handler: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			var args T
			if err := json.Unmarshal(arguments, &args); err != nil {
				return "", fmt.Errorf("invalid tool arguments: %w", err)
			}
			return fn(ctx, args)
		},
	}
}

// ToolRegistry is an immutable, ordered set of tools keyed by name.
type ToolRegistry struct {
	tools   []Tool
	index   map[string]int
	schemas []json.RawMessage
}

// NewToolRegistry builds a registry. Names must be non-empty and unique and
// every tool needs a handler.
func NewToolRegistry(tools ...Tool) (*ToolRegistry, error) {
	r := &ToolRegistry{
		tools:   make([]Tool, 0, len(tools)),
		index:   make(map[string]int, len(tools)),
		schemas: make([]json.RawMessage, 0, len(tools)),
	}
	for _, t := range tools {
		name := t.Definition.Name
		if name == "" {
			return nil, fmt.Errorf("tool registry: tool with empty name")
		}
		if _, dup := r.index[name]; dup {
			return nil, fmt.Errorf("tool registry: duplicate tool %q", name)
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tool registry: tool %q has no handler", name)
		}
		schema, err := json.Marshal(t.Definition.Schema())
		if err != nil {
			return nil, fmt.Errorf("tool registry: schema for %q: %w", name, err)
		}
		def := t.Definition
		def.Parameters = append([]Parameter(nil), def.Parameters...)
		r.index[name] = len(r.tools)
		r.tools = append(r.tools, Tool{Definition: def, Handler: t.Handler})
		r.schemas = append(r.schemas, schema)
	}
	return r, nil
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *Tool {
	i, ok := r.index[name]
	if !ok {
		return nil
	}
	t := r.tools[i]
	return &t
}

// Definitions returns all tool definitions in registration order.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, len(r.tools))
	for i, t := range r.tools {
		defs[i] = t.Definition
	}
	return defs
}

// Names returns tool names in registration order.
func (r *ToolRegistry) Names() []string {
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Definition.Name
	}
	return names
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int { return len(r.tools) }

// ToolDefs returns the name, description and schema of every tool as sent
// to the provider.
func (r *ToolRegistry) ToolDefs() []unifiedllm.ToolDefinition {
	defs := make([]unifiedllm.ToolDefinition, len(r.tools))
	for i, d := range r.Definitions() {
		defs[i] = unifiedllm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  r.schemas[i],
		}
	}
	return defs
}
