// Package agentloop implements the conversational coding agent: a session
// that streams model output, runs the file tools the model asks for and
// feeds their results back until the model answers in plain text.
//
// The loop uses the unifiedllm package's streaming Client directly and
// implements its own step loop so tool execution can interleave with the
// stream.
//
// # Architecture
//
//   - Session: runs turns, owns the Conversation, resets it when the
//     provider fails, and enforces the step limit.
//   - StreamConsumer: turns raw provider stream events into ordered
//     TurnEvents, holding tool calls until their arguments are complete.
//   - ToolRegistry and ToolExecutor: tool definitions, argument validation,
//     dispatch and output truncation.
//   - EventEmitter: typed events for the host application.
//
// # Quick Start
//
//	engine := patch.NewEngine(patch.NewOSFileSystem(dir))
//	registry, _ := agentloop.NewCoreRegistry(engine)
//	executor := agentloop.NewToolExecutor(registry)
//	env, _ := agentloop.NewLocalEnvironment(dir)
//	prompt := agentloop.BuildSystemPrompt(env, unifiedllm.DefaultModel)
//
//	session := agentloop.NewSession(client, executor, prompt, nil)
//	defer session.Close()
//
//	if err := session.Submit(ctx, "Add a README"); err != nil {
//	    log.Print(err)
//	}
package agentloop
