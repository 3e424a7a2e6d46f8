package unifiedllm

import "context"

// ProviderAdapter is the interface every provider backend must implement.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "openrouter").
	Name() string

	// Stream sends a request and returns a channel of stream events. The
	// channel is closed after StreamFinish or StreamError, or when ctx ends.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

// abortStream reports cancellation on ch if there is room, so consumers see
// an error rather than a bare close. It never blocks.
func abortStream(ctx context.Context, ch chan<- StreamEvent) {
	err := &AbortError{SDKError{Message: "stream cancelled", Cause: ctx.Err()}}
	select {
	case ch <- StreamEvent{Type: StreamError, Error: err}:
	default:
	}
}
