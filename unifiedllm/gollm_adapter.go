package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter.
// It is the alternate backend selected with `backend: gollm`.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.temperature = t
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates a new GollmAdapter for the given provider.
// If apiKey is empty, gollm will attempt to read it from environment variables.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		apiKey:    apiKey,
		maxTokens: 4096,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		if info := GetLatestModel(provider, "tools"); info != nil {
			model = info.ID
		} else {
			model = DefaultModel
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // We handle retries ourselves.
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}

	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}

	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmAdapter{
		provider: provider,
		llm:      llm,
		model:    model,
	}, nil
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Stream sends a request and returns a channel of StreamEvent objects.
//
// gollm reports tool calls as JSON inside the generated text, so requests
// that advertise tools are generated in one piece and the parsed calls are
// replayed as tool-call events. Plain requests stream token by token when the
// underlying provider supports it.
func (a *GollmAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	prompt, err := a.translateRequest(req)
	if err != nil {
		return nil, err
	}

	a.applyRequestOptions(req)

	ch := make(chan StreamEvent, 64)
	send := func(e StreamEvent) bool {
		select {
		case ch <- e:
			return true
		case <-ctx.Done():
			abortStream(ctx, ch)
			return false
		}
	}

	if len(req.ToolDefs) > 0 || !a.llm.SupportsStreaming() {
		go func() {
			defer close(ch)
			if !send(StreamEvent{Type: StreamStart}) {
				return
			}

			text, err := a.llm.Generate(ctx, prompt)
			if err != nil {
				send(StreamEvent{Type: StreamError, Error: a.translateError(err)})
				return
			}

			resp := a.buildResponse(req, text)
			if body := resp.Text(); body != "" {
				textID := "text_0"
				if !send(StreamEvent{Type: TextStart, TextID: textID}) ||
					!send(StreamEvent{Type: TextDelta, Delta: body, TextID: textID}) ||
					!send(StreamEvent{Type: TextEnd, TextID: textID}) {
					return
				}
			}
			for _, tc := range resp.ToolCallsFromResponse() {
				call := tc
				if !send(StreamEvent{Type: ToolCallStart, ToolCall: &ToolCall{ID: call.ID, Name: call.Name}}) ||
					!send(StreamEvent{Type: ToolCallDelta, Delta: string(call.Arguments), ToolCall: &ToolCall{ID: call.ID, Name: call.Name}}) ||
					!send(StreamEvent{Type: ToolCallEnd, ToolCall: &call}) {
					return
				}
			}
			send(StreamEvent{
				Type:         StreamFinish,
				FinishReason: &resp.FinishReason,
				Usage:        &resp.Usage,
				Response:     resp,
			})
		}()
		return ch, nil
	}

	stream, err := a.llm.Stream(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}

	go func() {
		defer close(ch)
		defer stream.Close()

		if !send(StreamEvent{Type: StreamStart}) {
			return
		}

		textID := "text_0"
		started := false
		var fullText strings.Builder

		for {
			token, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				send(StreamEvent{Type: StreamError, Error: a.translateError(err)})
				return
			}
			if token == nil {
				continue
			}

			if !started {
				if !send(StreamEvent{Type: TextStart, TextID: textID}) {
					return
				}
				started = true
			}

			if !send(StreamEvent{Type: TextDelta, Delta: token.Text, TextID: textID}) {
				return
			}
			fullText.WriteString(token.Text)
		}

		if started {
			if !send(StreamEvent{Type: TextEnd, TextID: textID}) {
				return
			}
		}

		resp := a.buildResponse(req, fullText.String())
		send(StreamEvent{
			Type:         StreamFinish,
			FinishReason: &resp.FinishReason,
			Usage:        &resp.Usage,
			Response:     resp,
		})
	}()

	return ch, nil
}

// flattenConversation renders the history as one prompt, since gollm
// accepts a single input string. System text is returned separately.
func flattenConversation(msgs []Message) (system, input string) {
	var sys, lines []string
	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			sys = append(sys, msg.TextContent())
		case RoleUser:
			lines = append(lines, msg.TextContent())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				lines = append(lines, "[Assistant]: "+text)
			}
			for _, tc := range msg.ToolCalls() {
				lines = append(lines, fmt.Sprintf("[Tool Call %s]: %s(%s)", tc.ID, tc.Name, tc.Arguments))
			}
		case RoleTool:
			r := msg.ToolResult()
			if r == nil {
				continue
			}
			label := "[Tool Result]"
			if r.IsError {
				label = "[Tool Error]"
			}
			lines = append(lines, label+": "+r.Content)
		}
	}
	return strings.TrimSpace(strings.Join(sys, "\n")), strings.Join(lines, "\n")
}

func gollmTools(defs []ToolDefinition) ([]gollm.Tool, error) {
	tools := make([]gollm.Tool, 0, len(defs))
	for _, d := range defs {
		var params map[string]interface{}
		if len(d.Parameters) > 0 {
			if err := json.Unmarshal(d.Parameters, &params); err != nil {
				return nil, &ConfigurationError{SDKError{
					Message: fmt.Sprintf("tool %q has an invalid parameter schema", d.Name),
					Cause:   err,
				}}
			}
		}
		tools = append(tools, gollm.Tool{
			Type: "function",
			Function: gollm.Function{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return tools, nil
}

// translateRequest builds the gollm prompt for req.
func (a *GollmAdapter) translateRequest(req Request) (*gollm.Prompt, error) {
	system, input := flattenConversation(req.Messages)
	if input == "" {
		input = "Hello"
	}

	var opts []gollm.PromptOption
	if system != "" {
		opts = append(opts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		opts = append(opts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.ToolDefs) > 0 {
		tools, err := gollmTools(req.ToolDefs)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gollm.WithTools(tools))
	}
	if req.ToolChoice != nil {
		opts = append(opts, gollm.WithToolChoice(req.ToolChoice.Mode))
	}
	return gollm.NewPrompt(input, opts...), nil
}

// applyRequestOptions copies per-request sampling settings onto the LLM.
func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.TopP != nil {
		a.llm.SetOption("top_p", *req.TopP)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// buildResponse splits generated text into prose and tool calls.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	prose, calls := splitToolCalls(text)
	var parts []ContentPart
	if prose != "" {
		parts = append(parts, TextPart(prose))
	}
	for i := range calls {
		parts = append(parts, ContentPart{Kind: ContentToolCall, ToolCall: &calls[i]})
	}
	if len(parts) == 0 {
		parts = []ContentPart{TextPart(text)}
	}

	reason := "stop"
	if len(calls) > 0 {
		reason = "tool_calls"
	}
	in, out := estimateTokens(req), len(text)/4
	return &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        model,
		Provider:     a.provider,
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: FinishReason{Reason: reason, Raw: reason},
		Usage:        Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}
}

type gollmRawCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Function  *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// toolCallMarkers are the two JSON shapes gollm uses for tool calls inside
// generated text: {"tool_calls": [...]} and a bare array.
var toolCallMarkers = []string{`{"tool_calls"`, `[{"name"`}

// splitToolCalls returns the text before the first tool-call JSON block and
// the calls decoded from it. Text without a decodable block is returned
// whole.
func splitToolCalls(text string) (string, []ToolCallData) {
	for _, marker := range toolCallMarkers {
		idx := strings.Index(text, marker)
		if idx < 0 {
			continue
		}
		raw, ok := decodeRawCalls(text[idx:], marker[0] == '{')
		if !ok {
			continue
		}
		calls := normalizeCalls(raw)
		if len(calls) == 0 {
			return text, nil
		}
		return strings.TrimSpace(text[:idx]), calls
	}
	return text, nil
}

func decodeRawCalls(s string, wrapped bool) ([]gollmRawCall, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	if wrapped {
		var w struct {
			ToolCalls []gollmRawCall `json:"tool_calls"`
		}
		if err := dec.Decode(&w); err != nil {
			return nil, false
		}
		return w.ToolCalls, true
	}
	var calls []gollmRawCall
	if err := dec.Decode(&calls); err != nil {
		return nil, false
	}
	return calls, true
}

func normalizeCalls(raw []gollmRawCall) []ToolCallData {
	var calls []ToolCallData
	for _, rc := range raw {
		name, args := rc.Name, rc.Arguments
		if rc.Function != nil {
			name, args = rc.Function.Name, rc.Function.Arguments
		}
		if name == "" {
			continue
		}
		// Some models send arguments as a JSON-encoded string.
		var encoded string
		if json.Unmarshal(args, &encoded) == nil {
			args = json.RawMessage(encoded)
		}
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		id := rc.ID
		if id == "" {
			id = "call_" + uuid.New().String()[:8]
		}
		calls = append(calls, ToolCallData{ID: id, Name: name, Arguments: args, Type: "function"})
	}
	return calls
}

// gollm surfaces HTTP failures only as error text. The first rule whose
// needle appears in the lowercased message decides the class.
var gollmErrorRules = []struct {
	needles []string
	status  int
}{
	{[]string{"401", "unauthorized", "invalid key", "invalid api key"}, 401},
	{[]string{"403", "forbidden"}, 403},
	{[]string{"404", "not found"}, 404},
	{[]string{"429", "rate limit"}, 429},
	{[]string{"context length", "too many tokens"}, 413},
	{[]string{"500", "internal server"}, 500},
	{[]string{"timeout"}, 408},
}

func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, rule := range gollmErrorRules {
		for _, n := range rule.needles {
			if strings.Contains(lower, n) {
				return withCause(ErrorFromStatusCode(rule.status, msg, a.provider, "", nil, nil), err)
			}
		}
	}
	if strings.Contains(lower, "content filter") || strings.Contains(lower, "safety") {
		return &ContentFilterError{ProviderError{SDKError: SDKError{Message: msg, Cause: err}, Provider: a.provider}}
	}
	return &ProviderError{SDKError: SDKError{Message: msg, Cause: err}, Provider: a.provider, Retryable: true}
}

// estimateTokens guesses the prompt size at four bytes per token.
func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			if part.Kind == ContentText {
				total += len(part.Text) / 4
			}
		}
	}
	if total == 0 {
		return 10
	}
	return total
}
