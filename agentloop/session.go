package agentloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/frixaco/llm/unifiedllm"
)

// SessionState represents the current lifecycle state of a session.
type SessionState string

const (
	StateIdle          SessionState = "idle"
	StateAwaitingModel SessionState = "awaiting_model"
	StateStreaming     SessionState = "streaming"
	StateExecutingTool SessionState = "executing_tool"
	StateFinished      SessionState = "finished"
	StateResetting     SessionState = "resetting"
	StateClosed        SessionState = "closed"
)

var (
	// ErrBusy is returned by Submit while another turn is in flight.
	ErrBusy = errors.New("session is busy")
	// ErrSessionClosed is returned by Submit after Close.
	ErrSessionClosed = errors.New("session is closed")
	// ErrTurnAborted wraps the provider failure that forced a reset.
	ErrTurnAborted = errors.New("turn aborted")
)

// StreamClient opens provider streams. *unifiedllm.Client implements it.
type StreamClient interface {
	Stream(ctx context.Context, req unifiedllm.Request) (<-chan unifiedllm.StreamEvent, error)
}

// SessionConfig holds configuration for a session.
type SessionConfig struct {
	Model          string                  `json:"model"`
	Provider       string                  `json:"provider,omitempty"`
	Temperature    *float64                `json:"temperature,omitempty"`
	MaxTokens      int                     `json:"max_tokens,omitempty"` // 0 = provider default
	MaxSteps       int                     `json:"max_steps"`            // provider round-trips per turn
	RequestTimeout time.Duration           `json:"request_timeout"`      // per turn; 0 = none
	LoopWindow     int                     `json:"loop_window"`          // 0 disables loop detection
	ContextWindow  int                     `json:"context_window,omitempty"`
	Retry          *unifiedllm.RetryPolicy `json:"-"` // nil = unifiedllm.DefaultRetryPolicy
	Logger         *slog.Logger            `json:"-"`
	EventHandler   EventHandler            `json:"-"`
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	temp := 0.0
	return SessionConfig{
		Model:          unifiedllm.DefaultModel,
		Temperature:    &temp,
		MaxSteps:       25,
		RequestTimeout: 5 * time.Minute,
		LoopWindow:     6,
	}
}

// Session runs turns: it sends the conversation to the provider, executes
// requested tools in call order, and folds the results back in. A provider
// failure resets the conversation to the system prompt.
type Session struct {
	id       string
	client   StreamClient
	executor *ToolExecutor
	conv     *Conversation
	emitter  *EventEmitter
	config   SessionConfig
	retry    unifiedllm.RetryPolicy
	logger   *slog.Logger
	state    SessionState
	mu       sync.Mutex
}

// NewSession creates a session whose conversation starts with systemPrompt.
func NewSession(client StreamClient, executor *ToolExecutor, systemPrompt string, config *SessionConfig) *Session {
	sessionID := uuid.New().String()

	cfg := DefaultSessionConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 25
	}
	if cfg.Model == "" {
		cfg.Model = unifiedllm.DefaultModel
	}
	if cfg.ContextWindow == 0 {
		if info := unifiedllm.GetModelInfo(cfg.Model); info != nil {
			cfg.ContextWindow = info.ContextWindow
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := unifiedllm.DefaultRetryPolicy()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	s := &Session{
		id:       sessionID,
		client:   client,
		executor: executor,
		conv:     NewConversation(systemPrompt),
		emitter:  NewEventEmitter(sessionID, 256),
		config:   cfg,
		retry:    retry.WithLogger(logger),
		logger:   logger.With("session_id", sessionID),
		state:    StateIdle,
	}
	if cfg.EventHandler != nil {
		s.emitter.SetHandler(cfg.EventHandler)
	}

	s.logger.Info("session started",
		"model", cfg.Model,
		"tools", strings.Join(executor.Registry().Names(), ","))
	s.emitter.Emit(EventSessionStart, map[string]interface{}{
		"model": cfg.Model,
	})
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the conversation history.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Messages()
}

// Events returns the event channel. It is unused when an EventHandler is
// configured.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// Close terminates the session.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.emitter.Emit(EventSessionEnd, map[string]interface{}{
		"state": string(StateClosed),
	})
	s.emitter.Close()
}

// Submit runs one turn for the given user input and returns once the turn
// has finished or been aborted. Blank input is rejected without contacting
// the provider. When the provider fails, the conversation is reset and the
// returned error wraps ErrTurnAborted and the cause; the session stays
// usable.
func (s *Session) Submit(ctx context.Context, input string) error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return ErrSessionClosed
	case StateIdle:
	default:
		s.mu.Unlock()
		return ErrBusy
	}
	if err := s.conv.AppendUserMessage(input); err != nil {
		s.mu.Unlock()
		return err
	}
	conv := s.conv
	// Leave Idle before unlocking so a concurrent Submit sees ErrBusy.
	s.state = StateAwaitingModel
	s.mu.Unlock()

	s.emitter.Emit(EventStateChange, map[string]interface{}{
		"from": string(StateIdle),
		"to":   string(StateAwaitingModel),
	})
	s.emitter.Emit(EventUserInput, map[string]interface{}{
		"content": strings.TrimSpace(input),
	})

	recorded, steps, err := s.runTurn(ctx, conv)
	if err != nil {
		s.reset(err)
		return fmt.Errorf("%w: %w", ErrTurnAborted, err)
	}

	s.setState(StateFinished)
	s.mu.Lock()
	appendErr := s.conv.AppendAssistantTurn(recorded)
	s.mu.Unlock()
	if appendErr != nil {
		s.reset(appendErr)
		return fmt.Errorf("%w: %w", ErrTurnAborted, appendErr)
	}

	final := recorded[len(recorded)-1].Content
	s.emitter.Emit(EventTurnFinished, map[string]interface{}{
		"text":  final,
		"steps": steps,
	})
	s.logger.Debug("turn finished", "steps", steps, "tool_calls", len(recorded)-1)
	s.setState(StateIdle)
	return nil
}

// runTurn drives provider steps until a step ends without tool calls or
// the step limit is hit. It returns the tool messages followed by the
// assistant message.
func (s *Session) runTurn(ctx context.Context, conv *Conversation) ([]Message, int, error) {
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	history := ToUnifiedMessages(conv.Messages())
	var (
		recorded  []Message
		texts     []string
		turnCalls []unifiedllm.ToolCall
		steps     int
	)

	for {
		if steps >= s.config.MaxSteps {
			s.logger.Warn("step limit reached", "max_steps", s.config.MaxSteps)
			s.emitter.Emit(EventTurnLimit, map[string]interface{}{
				"steps": steps,
			})
			break
		}
		steps++

		calls, results, text, err := s.runStep(ctx, history)
		if err != nil {
			return nil, steps, err
		}
		if text != "" {
			texts = append(texts, text)
		}
		for i, call := range calls {
			recorded = append(recorded, ToolMessage(call, results[i]))
		}
		if len(calls) == 0 {
			break
		}

		history = append(history, unifiedllm.AssistantToolCallMessage(text, calls))
		for i, call := range calls {
			history = append(history, unifiedllm.ToolResultMessage(call.ID, results[i].Payload, !results[i].OK()))
		}

		turnCalls = append(turnCalls, calls...)
		if DetectLoop(turnCalls, s.config.LoopWindow) {
			warning := loopWarning(s.config.LoopWindow)
			history = append(history, unifiedllm.UserMessage(warning))
			turnCalls = nil
			s.logger.Warn("tool call loop detected", "window", s.config.LoopWindow)
			s.emitter.Emit(EventWarning, map[string]interface{}{
				"message": warning,
			})
		}
		s.checkContextUsage(history)
	}

	recorded = append(recorded, AssistantText(strings.Join(texts, "\n\n")))
	return recorded, steps, nil
}

// runStep performs one provider round-trip, executing each tool call as
// soon as its arguments are complete.
func (s *Session) runStep(ctx context.Context, history []unifiedllm.Message) ([]unifiedllm.ToolCall, []ToolResult, string, error) {
	s.setState(StateAwaitingModel)
	req := s.buildRequest(history)

	events, err := unifiedllm.Retry(ctx, s.retry, func(ctx context.Context) (<-chan unifiedllm.StreamEvent, error) {
		return s.client.Stream(ctx, req)
	})
	if err != nil {
		return nil, nil, "", err
	}

	s.setState(StateStreaming)
	consumer := NewStreamConsumer(events)

	var (
		calls       []unifiedllm.ToolCall
		results     []ToolResult
		text        string
		textStarted bool
	)
	for {
		ev, ok := consumer.Next(ctx)
		if !ok {
			break
		}
		switch ev.Kind {
		case TurnTextDelta:
			if !textStarted {
				textStarted = true
				s.emitter.Emit(EventAssistantTextStart, nil)
			}
			s.emitter.Emit(EventAssistantTextDelta, map[string]interface{}{
				"delta": ev.Text,
			})

		case TurnToolCallStart:
			s.emitter.Emit(EventToolCallStart, map[string]interface{}{
				"tool_name": ev.ToolName,
				"call_id":   ev.CallID,
			})

		case TurnToolCallArgDelta:
			s.emitter.Emit(EventToolCallArgsDelta, map[string]interface{}{
				"call_id": ev.CallID,
				"delta":   ev.ArgsDelta,
			})

		case TurnToolCallComplete:
			s.setState(StateExecutingTool)
			result := s.executor.Execute(ctx, *ev.Call)
			calls = append(calls, *ev.Call)
			results = append(results, result)
			s.emitter.Emit(EventToolCallEnd, map[string]interface{}{
				"tool_name": ev.Call.Name,
				"call_id":   ev.Call.ID,
				"status":    string(result.Status),
				"output":    result.Payload,
			})
			s.setState(StateStreaming)

		case TurnFinished:
			text = ev.Text
			if textStarted {
				s.emitter.Emit(EventAssistantTextEnd, map[string]interface{}{
					"text": text,
				})
			}

		case TurnProviderError:
			return nil, nil, "", ev.Err
		}
	}
	return calls, results, text, nil
}

func (s *Session) buildRequest(history []unifiedllm.Message) unifiedllm.Request {
	req := unifiedllm.Request{
		Model:       s.config.Model,
		Provider:    s.config.Provider,
		Messages:    history,
		ToolDefs:    s.executor.Registry().ToolDefs(),
		ToolChoice:  &unifiedllm.ToolChoice{Mode: "auto"},
		Temperature: s.config.Temperature,
	}
	if s.config.MaxTokens > 0 {
		n := s.config.MaxTokens
		req.MaxTokens = &n
	}
	return req
}

// reset discards the conversation after a failed turn.
func (s *Session) reset(cause error) {
	s.setState(StateResetting)
	s.mu.Lock()
	s.conv = s.conv.Reset()
	s.mu.Unlock()

	s.logger.Warn("conversation reset", "error", cause)
	s.emitter.Emit(EventError, map[string]interface{}{
		"error": cause.Error(),
	})
	s.emitter.Emit(EventReset, map[string]interface{}{
		"error": cause.Error(),
	})
	s.setState(StateIdle)
}

// setState records a transition. A closed session stays closed.
func (s *Session) setState(to SessionState) {
	s.mu.Lock()
	from := s.state
	if from == StateClosed || from == to {
		s.mu.Unlock()
		return
	}
	s.state = to
	s.mu.Unlock()

	s.emitter.Emit(EventStateChange, map[string]interface{}{
		"from": string(from),
		"to":   string(to),
	})
}

// checkContextUsage emits a warning if context usage exceeds 80%.
func (s *Session) checkContextUsage(history []unifiedllm.Message) {
	contextWindow := s.config.ContextWindow
	if contextWindow <= 0 {
		return
	}

	totalChars := 0
	for _, msg := range history {
		totalChars += len(msg.TextContent())
		if r := msg.ToolResult(); r != nil {
			totalChars += len(r.Content)
		}
		for _, tc := range msg.ToolCalls() {
			totalChars += len(tc.Arguments)
		}
	}

	approxTokens := totalChars / 4
	threshold := int(float64(contextWindow) * 0.8)
	if approxTokens > threshold {
		pct := int(float64(approxTokens) / float64(contextWindow) * 100)
		msg := fmt.Sprintf("Context usage at ~%d%% of context window", pct)
		s.logger.Warn(msg)
		s.emitter.Emit(EventWarning, map[string]interface{}{
			"message": msg,
		})
	}
}
