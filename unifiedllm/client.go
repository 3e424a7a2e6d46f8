package unifiedllm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// StreamMiddleware wraps a streaming provider call.
type StreamMiddleware func(ctx context.Context, req Request, next func(context.Context, Request) (<-chan StreamEvent, error)) (<-chan StreamEvent, error)

// Client holds registered provider adapters, routes requests by provider
// identifier, and applies middleware.
type Client struct {
	providers       map[string]ProviderAdapter
	defaultProvider string
	streamMW        []StreamMiddleware
	mu              sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers a provider adapter.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) {
		c.providers[name] = adapter
	}
}

// WithDefaultProvider sets the default provider name.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithStreamMiddleware adds stream middleware to the client.
func WithStreamMiddleware(mw ...StreamMiddleware) ClientOption {
	return func(c *Client) {
		c.streamMW = append(c.streamMW, mw...)
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]ProviderAdapter),
	}
	for _, opt := range opts {
		opt(c)
	}
	// If no default and exactly one provider, use it.
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// resolveProvider determines which provider adapter to use for a request.
func (c *Client) resolveProvider(req Request) (ProviderAdapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		// Try to infer from model catalog.
		if info := GetModelInfo(req.Model); info != nil {
			name = info.Provider
		}
	}
	if name == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "no provider specified and no default provider configured",
		}}
	}

	adapter, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return adapter, nil
}

// Stream sends a streaming request through middleware to the resolved provider.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	adapter, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}

	if req.Provider == "" {
		req.Provider = adapter.Name()
	}

	handler := func(ctx context.Context, r Request) (<-chan StreamEvent, error) {
		return adapter.Stream(ctx, r)
	}

	// Apply middleware in reverse order so first registered runs first.
	for i := len(c.streamMW) - 1; i >= 0; i-- {
		mw := c.streamMW[i]
		next := handler
		handler = func(ctx context.Context, r Request) (<-chan StreamEvent, error) {
			return mw(ctx, r, next)
		}
	}

	return handler(ctx, req)
}

// Close releases resources held by all registered providers.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, adapter := range c.providers {
		if closer, ok := adapter.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// LoggingStreamMiddleware logs each request and how its stream ended.
// Events are forwarded unchanged.
func LoggingStreamMiddleware(logger *slog.Logger) StreamMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req Request, next func(context.Context, Request) (<-chan StreamEvent, error)) (<-chan StreamEvent, error) {
		start := time.Now()
		logger.Debug("provider request",
			"provider", req.Provider,
			"model", req.Model,
			"messages", len(req.Messages),
			"tools", len(req.ToolDefs))

		in, err := next(ctx, req)
		if err != nil {
			logger.Warn("provider request failed", "provider", req.Provider, "error", err)
			return nil, err
		}

		out := make(chan StreamEvent, cap(in))
		go func() {
			defer close(out)
			toolCalls := 0
			for event := range in {
				switch event.Type {
				case ToolCallStart:
					toolCalls++
				case StreamFinish:
					attrs := []any{
						"provider", req.Provider,
						"duration", time.Since(start),
						"tool_calls", toolCalls,
					}
					if event.FinishReason != nil {
						attrs = append(attrs, "finish_reason", event.FinishReason.Reason)
					}
					if event.Usage != nil {
						attrs = append(attrs, "output_tokens", event.Usage.OutputTokens)
					}
					logger.Debug("provider stream finished", attrs...)
				case StreamError:
					logger.Warn("provider stream failed", "provider", req.Provider, "error", event.Error)
				}
				select {
				case out <- event:
				case <-ctx.Done():
					abortStream(ctx, out)
					return
				}
			}
		}()
		return out, nil
	}
}
