// Package unifiedllm is a provider-agnostic streaming client for chat models
// that support tool calling.
//
// # Architecture
//
// The package is layered:
//
//   - Provider specification: the ProviderAdapter interface and shared types
//   - Provider utilities: retry policy and error classification
//   - Core client: Client with provider routing and stream middleware
//
// Two adapters are included. OpenAIAdapter speaks the OpenAI chat completions
// protocol (github.com/sashabaranov/go-openai) and defaults to OpenRouter.
// GollmAdapter wraps github.com/teilomillet/gollm.
//
// # Quick Start
//
//	adapter, _ := unifiedllm.NewOpenAIAdapter(os.Getenv("OPENROUTER_API_KEY"))
//	client := unifiedllm.NewClient(
//	    unifiedllm.WithProvider(adapter.Name(), adapter),
//	    unifiedllm.WithStreamMiddleware(unifiedllm.LoggingStreamMiddleware(nil)),
//	)
//
//	events, _ := client.Stream(ctx, unifiedllm.Request{
//	    Model:    "qwen3",
//	    Messages: []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	})
//	for ev := range events {
//	    if ev.Type == unifiedllm.TextDelta {
//	        fmt.Print(ev.Delta)
//	    }
//	}
//
// # Tool Calls
//
// A tool call arrives as ToolCallStart, zero or more ToolCallDelta events
// carrying argument fragments, and ToolCallEnd. Calls from one response may
// interleave; the call id on each event identifies the accumulator.
//
// # Model Catalog
//
//	info := unifiedllm.GetModelInfo("sonnet")
//	models := unifiedllm.ListModels("openrouter")
//	latest := unifiedllm.GetLatestModel("openrouter", "tools")
package unifiedllm
