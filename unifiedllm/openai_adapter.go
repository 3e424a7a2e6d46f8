package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// OpenRouterBaseURL is the OpenAI-compatible endpoint of OpenRouter.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenAIAdapter streams chat completions from any OpenAI-compatible endpoint
// using github.com/sashabaranov/go-openai. By default it targets OpenRouter.
type OpenAIAdapter struct {
	provider string
	client   *openai.Client
	model    string
}

// OpenAIAdapterOption configures an OpenAIAdapter.
type OpenAIAdapterOption func(*openAIAdapterConfig)

type openAIAdapterConfig struct {
	provider string
	baseURL  string
	model    string
}

// WithBaseURL points the adapter at a different OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.baseURL = url
	}
}

// WithDefaultModel sets the model used when a request does not name one.
func WithDefaultModel(model string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.model = model
	}
}

// NewOpenAIAdapter creates an adapter authenticated with apiKey.
func NewOpenAIAdapter(apiKey string, opts ...OpenAIAdapterOption) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "API key is required"}}
	}
	cfg := &openAIAdapterConfig{
		provider: "openrouter",
		baseURL:  OpenRouterBaseURL,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.model == "" {
		if info := GetLatestModel(cfg.provider, "tools"); info != nil {
			cfg.model = info.ID
		} else {
			cfg.model = DefaultModel
		}
	}

	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = cfg.baseURL

	return &OpenAIAdapter{
		provider: cfg.provider,
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.model,
	}, nil
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string {
	return a.provider
}

// Stream opens a streaming chat completion and translates its chunks into
// StreamEvents. Tool calls are reported as ToolCallStart, then one
// ToolCallDelta per argument fragment, then ToolCallEnd.
func (a *OpenAIAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	ccr := a.translateRequest(req)

	stream, err := a.client.CreateChatCompletionStream(ctx, ccr)
	if err != nil {
		return nil, a.translateError(err)
	}

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		defer stream.Close()

		send := func(e StreamEvent) bool {
			select {
			case ch <- e:
				return true
			case <-ctx.Done():
				abortStream(ctx, ch)
				return false
			}
		}

		if !send(StreamEvent{Type: StreamStart}) {
			return
		}

		var (
			tracker      toolCallTracker
			text         strings.Builder
			textID       = "text_0"
			textStarted  bool
			responseID   string
			finishReason string
			usage        Usage
		)

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				send(StreamEvent{Type: StreamError, Error: a.translateError(err)})
				return
			}
			if responseID == "" {
				responseID = chunk.ID
			}
			if chunk.Usage != nil {
				usage = Usage{
					InputTokens:  chunk.Usage.PromptTokens,
					OutputTokens: chunk.Usage.CompletionTokens,
					TotalTokens:  chunk.Usage.TotalTokens,
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			if choice.Delta.Content != "" {
				if !textStarted {
					textStarted = true
					if !send(StreamEvent{Type: TextStart, TextID: textID}) {
						return
					}
				}
				text.WriteString(choice.Delta.Content)
				if !send(StreamEvent{Type: TextDelta, Delta: choice.Delta.Content, TextID: textID}) {
					return
				}
			}

			for _, tc := range choice.Delta.ToolCalls {
				for _, e := range tracker.observe(tc) {
					if !send(e) {
						return
					}
				}
			}

			if choice.FinishReason != "" {
				finishReason = string(choice.FinishReason)
			}
		}

		if textStarted {
			if !send(StreamEvent{Type: TextEnd, TextID: textID}) {
				return
			}
		}
		for _, e := range tracker.closeAll() {
			if !send(e) {
				return
			}
		}

		if finishReason == "" {
			finishReason = "stop"
			if len(tracker.calls) > 0 {
				finishReason = "tool_calls"
			}
		}
		fr := FinishReason{Reason: normalizeFinishReason(finishReason), Raw: finishReason}

		msg := AssistantToolCallMessage(text.String(), tracker.completed())
		send(StreamEvent{
			Type:         StreamFinish,
			FinishReason: &fr,
			Usage:        &usage,
			Response: &Response{
				ID:           responseID,
				Model:        ccr.Model,
				Provider:     a.provider,
				Message:      msg,
				FinishReason: fr,
				Usage:        usage,
			},
		})
	}()

	return ch, nil
}

// translateRequest converts a unified Request into a go-openai request.
func (a *OpenAIAdapter) translateRequest(req Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = a.model
	}

	ccr := openai.ChatCompletionRequest{
		Model:         model,
		Messages:      translateMessages(req.Messages),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}

	if req.Temperature != nil {
		t := float32(*req.Temperature)
		if t == 0 {
			// A zero temperature is dropped by omitempty.
			t = math.SmallestNonzeroFloat32
		}
		ccr.Temperature = t
	}
	if req.TopP != nil {
		ccr.TopP = float32(*req.TopP)
	}
	if req.MaxTokens != nil {
		ccr.MaxTokens = *req.MaxTokens
	}

	for _, td := range req.ToolDefs {
		ccr.Tools = append(ccr.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.Parameters,
			},
		})
	}
	if req.ToolChoice != nil && len(ccr.Tools) > 0 {
		switch req.ToolChoice.Mode {
		case "named":
			ccr.ToolChoice = openai.ToolChoice{
				Type:     openai.ToolTypeFunction,
				Function: openai.ToolFunction{Name: req.ToolChoice.ToolName},
			}
		default:
			ccr.ToolChoice = req.ToolChoice.Mode
		}
	}
	return ccr
}

func translateMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.TextContent(),
			})
		case RoleUser:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.TextContent(),
			})
		case RoleAssistant:
			m := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.TextContent(),
			}
			for _, tc := range msg.ToolCalls() {
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, m)
		case RoleTool:
			content := ""
			if r := msg.ToolResult(); r != nil {
				content = r.Content
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				ToolCallID: msg.ToolCallID,
			})
		}
	}
	return out
}

// translateError maps go-openai errors onto the unified error hierarchy.
func (a *OpenAIAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: err}}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if s, ok := apiErr.Code.(string); ok {
			code = s
		}
		status := apiErr.HTTPStatusCode
		if status == 0 {
			// Errors reported inside an open stream carry no status.
			return &StreamErrorType{SDKError: SDKError{Message: apiErr.Message, Cause: err}}
		}
		return withCause(ErrorFromStatusCode(status, apiErr.Message, a.provider, code, nil, nil), err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return withCause(ErrorFromStatusCode(reqErr.HTTPStatusCode, reqErr.Error(), a.provider, "", nil, nil), err)
	}

	return &NetworkError{SDKError: SDKError{Message: "provider stream failed", Cause: err}}
}

func normalizeFinishReason(raw string) string {
	switch raw {
	case "stop", "length", "tool_calls", "content_filter":
		return raw
	case "function_call":
		return "tool_calls"
	case "error":
		return "error"
	default:
		return "other"
	}
}

// toolCallTracker assembles streamed OpenAI tool-call deltas. Deltas are
// keyed by their index; a delta without an index continues the current
// call unless it carries a new id. Calls are ended together once the
// stream is exhausted, in index order.
type toolCallTracker struct {
	calls   []*trackedCall
	byIndex map[int]*trackedCall
	current *trackedCall
}

type trackedCall struct {
	index  int
	id     string
	name   string
	args   strings.Builder
	closed bool
}

func (t *toolCallTracker) observe(tc openai.ToolCall) []StreamEvent {
	if t.byIndex == nil {
		t.byIndex = make(map[int]*trackedCall)
	}

	var call *trackedCall
	switch {
	case tc.Index != nil:
		call = t.byIndex[*tc.Index]
		if call == nil {
			call = &trackedCall{index: *tc.Index}
		}
	case t.current != nil && (tc.ID == "" || tc.ID == t.current.id):
		call = t.current
	default:
		call = &trackedCall{index: len(t.calls)}
	}

	var events []StreamEvent
	if _, known := t.byIndex[call.index]; !known {
		call.id = tc.ID
		if call.id == "" {
			call.id = "call_" + uuid.New().String()[:8]
		}
		call.name = tc.Function.Name
		t.byIndex[call.index] = call
		t.calls = append(t.calls, call)
		t.current = call
		events = append(events, StreamEvent{
			Type:     ToolCallStart,
			ToolCall: &ToolCall{ID: call.id, Name: call.name},
		})
	} else if call.name == "" && tc.Function.Name != "" {
		call.name = tc.Function.Name
	}

	if tc.Function.Arguments != "" {
		call.args.WriteString(tc.Function.Arguments)
		events = append(events, StreamEvent{
			Type:     ToolCallDelta,
			Delta:    tc.Function.Arguments,
			ToolCall: &ToolCall{ID: call.id, Name: call.name},
		})
	}
	return events
}

func (t *toolCallTracker) end(call *trackedCall) StreamEvent {
	call.closed = true
	return StreamEvent{
		Type:     ToolCallEnd,
		ToolCall: &ToolCall{ID: call.id, Name: call.name, Arguments: call.arguments()},
	}
}

func (t *toolCallTracker) closeAll() []StreamEvent {
	open := make([]*trackedCall, 0, len(t.calls))
	for _, c := range t.calls {
		if !c.closed {
			open = append(open, c)
		}
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].index < open[j].index })
	events := make([]StreamEvent, 0, len(open))
	for _, c := range open {
		events = append(events, t.end(c))
	}
	return events
}

func (t *toolCallTracker) completed() []ToolCall {
	out := make([]ToolCall, 0, len(t.calls))
	for _, c := range t.calls {
		out = append(out, ToolCall{ID: c.id, Name: c.name, Arguments: c.arguments()})
	}
	return out
}

func (c *trackedCall) arguments() json.RawMessage {
	if strings.TrimSpace(c.args.String()) == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(c.args.String())
}
