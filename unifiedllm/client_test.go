package unifiedllm

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

// mockAdapter is a test double for ProviderAdapter.
type mockAdapter struct {
	name     string
	err      error
	events   []StreamEvent
	requests []Request
	closed   bool
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan StreamEvent, len(m.events))
	for _, e := range m.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func (m *mockAdapter) Close() error {
	m.closed = true
	return nil
}

func newMockAdapter(name, text string) *mockAdapter {
	return &mockAdapter{
		name: name,
		events: []StreamEvent{
			{Type: StreamStart},
			{Type: TextStart, TextID: "t0"},
			{Type: TextDelta, Delta: text, TextID: "t0"},
			{Type: TextEnd, TextID: "t0"},
			{Type: StreamFinish, FinishReason: &FinishReason{Reason: "stop"}, Usage: &Usage{OutputTokens: 20}},
		},
	}
}

func collectText(t *testing.T, ch <-chan StreamEvent) string {
	t.Helper()
	var sb strings.Builder
	for event := range ch {
		if event.Type == TextDelta {
			sb.WriteString(event.Delta)
		}
	}
	return sb.String()
}

func TestClientProviderRouting(t *testing.T) {
	primary := newMockAdapter("openrouter", "OpenRouter response")
	secondary := newMockAdapter("local", "Local response")

	client := NewClient(
		WithProvider("openrouter", primary),
		WithProvider("local", secondary),
		WithDefaultProvider("openrouter"),
	)

	// Explicit provider.
	ch, err := client.Stream(context.Background(), Request{
		Model:    "qwen3",
		Messages: []Message{UserMessage("Hi")},
		Provider: "local",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := collectText(t, ch); got != "Local response" {
		t.Errorf("expected Local response, got %q", got)
	}

	// Default provider.
	ch, err = client.Stream(context.Background(), Request{
		Model:    "qwen3",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := collectText(t, ch); got != "OpenRouter response" {
		t.Errorf("expected OpenRouter response, got %q", got)
	}
	if len(primary.requests) != 1 || primary.requests[0].Provider != "openrouter" {
		t.Errorf("expected the resolved provider name on the request, got %+v", primary.requests)
	}
}

func TestClientNoProvider(t *testing.T) {
	client := NewClient()
	_, err := client.Stream(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err == nil {
		t.Fatal("expected error for no provider")
	}
	if _, ok := err.(*ConfigurationError); !ok {
		t.Errorf("expected ConfigurationError, got %T", err)
	}
}

func TestClientUnregisteredProvider(t *testing.T) {
	client := NewClient(WithProvider("openrouter", newMockAdapter("openrouter", "x")))
	_, err := client.Stream(context.Background(), Request{
		Model:    "qwen3",
		Messages: []Message{UserMessage("Hi")},
		Provider: "missing",
	})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestClientInfersProviderFromCatalog(t *testing.T) {
	a := newMockAdapter("openrouter", "catalog")
	b := newMockAdapter("other", "other")
	client := NewClient(WithProvider("openrouter", a), WithProvider("other", b))

	ch, err := client.Stream(context.Background(), Request{
		Model:    "sonnet",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := collectText(t, ch); got != "catalog" {
		t.Errorf("expected catalog provider to answer, got %q", got)
	}
}

func TestClientStreamMiddlewareOrder(t *testing.T) {
	mock := newMockAdapter("test", "response")
	var order []int

	mw := func(n int) StreamMiddleware {
		return func(ctx context.Context, req Request, next func(context.Context, Request) (<-chan StreamEvent, error)) (<-chan StreamEvent, error) {
			order = append(order, n)
			ch, err := next(ctx, req)
			order = append(order, -n)
			return ch, err
		}
	}

	client := NewClient(
		WithProvider("test", mock),
		WithStreamMiddleware(mw(1), mw(2)),
	)

	ch, err := client.Stream(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	collectText(t, ch)

	// Onion pattern: first registered runs first for request, reverse for response.
	expected := []int{1, 2, -2, -1}
	if len(order) != len(expected) {
		t.Fatalf("expected %d middleware calls, got %d", len(expected), len(order))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("position %d: expected %d, got %d", i, v, order[i])
		}
	}
}

func TestClientStream(t *testing.T) {
	mock := &mockAdapter{
		name: "test",
		events: []StreamEvent{
			{Type: StreamStart},
			{Type: TextStart, TextID: "t0"},
			{Type: TextDelta, Delta: "Hello", TextID: "t0"},
			{Type: TextDelta, Delta: " world", TextID: "t0"},
			{Type: TextEnd, TextID: "t0"},
			{Type: StreamFinish, FinishReason: &FinishReason{Reason: "stop"}},
		},
	}

	client := NewClient(WithProvider("test", mock))
	ch, err := client.Stream(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var events []StreamEvent
	for event := range ch {
		events = append(events, event)
	}
	if len(events) != 6 {
		t.Fatalf("expected 6 events, got %d", len(events))
	}
	if events[0].Type != StreamStart {
		t.Errorf("expected StreamStart, got %q", events[0].Type)
	}
	if events[2].Delta != "Hello" {
		t.Errorf("expected delta %q, got %q", "Hello", events[2].Delta)
	}
}

func TestClientStreamError(t *testing.T) {
	want := &AuthenticationError{ProviderError: ProviderError{SDKError: SDKError{Message: "bad key"}, StatusCode: 401}}
	client := NewClient(WithProvider("test", &mockAdapter{name: "test", err: want}))

	_, err := client.Stream(context.Background(), Request{Model: "m", Messages: []Message{UserMessage("Hi")}})
	if !errors.Is(err, want) {
		t.Fatalf("expected the adapter error, got %v", err)
	}
}

func TestClientAutoSingleProviderDefault(t *testing.T) {
	mock := newMockAdapter("only", "only response")
	client := NewClient(WithProvider("only", mock))

	ch, err := client.Stream(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := collectText(t, ch); got != "only response" {
		t.Errorf("expected %q, got %q", "only response", got)
	}
}

func TestClientClose(t *testing.T) {
	mock := newMockAdapter("test", "x")
	client := NewClient(WithProvider("test", mock))
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mock.closed {
		t.Error("expected adapter to be closed")
	}
}

func TestLoggingStreamMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mock := &mockAdapter{
		name: "test",
		events: []StreamEvent{
			{Type: StreamStart},
			{Type: ToolCallStart, ToolCall: &ToolCall{ID: "c1", Name: "readFile"}},
			{Type: ToolCallEnd, ToolCall: &ToolCall{ID: "c1", Name: "readFile"}},
			{Type: StreamFinish, FinishReason: &FinishReason{Reason: "tool_calls"}, Usage: &Usage{OutputTokens: 7}},
		},
	}
	client := NewClient(
		WithProvider("test", mock),
		WithStreamMiddleware(LoggingStreamMiddleware(logger)),
	)

	ch, err := client.Stream(context.Background(), Request{Model: "m", Messages: []Message{UserMessage("Hi")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count := 0
	for range ch {
		count++
	}
	if count != len(mock.events) {
		t.Errorf("expected %d forwarded events, got %d", len(mock.events), count)
	}

	out := buf.String()
	for _, want := range []string{"provider request", "provider stream finished", "tool_calls=1", "finish_reason=tool_calls", "output_tokens=7"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestLoggingStreamMiddlewareLogsErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	mock := &mockAdapter{
		name:   "test",
		events: []StreamEvent{{Type: StreamStart}, {Type: StreamError, Error: errors.New("boom")}},
	}
	client := NewClient(
		WithProvider("test", mock),
		WithStreamMiddleware(LoggingStreamMiddleware(logger)),
	)
	ch, err := client.Stream(context.Background(), Request{Model: "m", Messages: []Message{UserMessage("Hi")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range ch {
	}
	if !strings.Contains(buf.String(), "provider stream failed") {
		t.Errorf("expected a warning for the stream error, got:\n%s", buf.String())
	}
}

func TestAbortStreamReportsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan StreamEvent, 1)
	abortStream(ctx, ch)
	ev := <-ch
	if ev.Type != StreamError {
		t.Fatalf("expected StreamError, got %v", ev.Type)
	}
	var abort *AbortError
	if !errors.As(ev.Error, &abort) || !errors.Is(ev.Error, context.Canceled) {
		t.Errorf("expected AbortError wrapping cancellation, got %v", ev.Error)
	}

	// A full channel is left alone rather than blocking the producer.
	ch <- StreamEvent{Type: TextDelta}
	abortStream(ctx, ch)
	if len(ch) != 1 {
		t.Errorf("expected the buffered event to be untouched, got %d events", len(ch))
	}
}
