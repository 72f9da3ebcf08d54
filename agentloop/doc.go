// Package agentloop implements the agent turn loop: a state machine that
// streams model output while detecting an embedded tool-invocation protocol
// inside the stream, executes the requested tool calls sequentially against
// the local environment, feeds their results back into the conversation, and
// repeats until the model produces a turn with no further tool calls.
//
// The tool protocol is textual. The model requests a tool by emitting a line
// beginning with "TOOL:" followed by the tool name and its arguments;
// content-bearing tools continue the final argument on the following lines
// up to the next invocation line. Results are rendered back to the model as
// "TOOL RESULT for <name>:" or "TOOL <name> failed:" messages.
//
// # Architecture
//
//   - Loop: the per-session orchestrator driving the
//     submit -> stream -> execute cycle and enforcing the round guard.
//   - Transcriber: incremental detection of invocation lines inside the
//     delta stream, with display text surfaced as it arrives.
//   - ToolRegistry / ToolSpec: the static tool catalog, argument shapes,
//     and handler bindings.
//   - Executor: strictly sequential tool execution with per-call results.
//   - LocalEnvironment: filesystem and process access for the tools.
//   - EventEmitter: typed event stream for the host application.
//
// # Quick Start
//
//	env := agentloop.NewLocalEnvironment("/path/to/project")
//	reg := agentloop.NewToolRegistry()
//	loop := agentloop.NewLoop(sessionID, client, reg, env, store, agentloop.DefaultLoopConfig(), logger)
//	defer loop.Close()
//	agentloop.RegisterCoreTools(reg, loop.Executor())
//
//	if err := loop.Submit(ctx, "list the files in ./src"); err != nil {
//	    log.Fatal(err)
//	}
package agentloop
