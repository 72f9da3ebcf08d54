package agentloop

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func newCallID() string {
	return "call_" + uuid.New().String()[:8]
}

// ParseInvocations converts recognized invocation blocks into structured
// tool calls, preserving source order. Source order is the execution order
// contract for the Executor.
//
// A malformed invocation (unknown tool, argument arity mismatch) is not a
// fatal error: the returned call carries a ParseError and the executor
// reports it back to the model as a failing result so it can self-correct.
// Each invocation is parsed independently; one bad line never aborts the
// rest of the turn.
func ParseInvocations(invs []Invocation, reg *ToolRegistry) []ToolCall {
	calls := make([]ToolCall, 0, len(invs))
	for _, inv := range invs {
		calls = append(calls, parseInvocation(inv, reg))
	}
	return calls
}

func parseInvocation(inv Invocation, reg *ToolRegistry) ToolCall {
	call := ToolCall{ID: newCallID()}

	name, rest := splitToken(inv.Header)
	call.Name = name
	if name == "" {
		call.ParseError = "empty invocation line: expected a tool name after " + ToolLinePrefix
		return call
	}

	tool := reg.Get(name)
	if tool == nil {
		call.ParseError = fmt.Sprintf("unknown tool %q; available tools: %s",
			name, strings.Join(reg.Names(), ", "))
		return call
	}
	spec := tool.Spec

	// Leading arguments are single whitespace-delimited tokens.
	args := make([]string, 0, spec.ArgCount)
	for i := 0; i < spec.ArgCount-1; i++ {
		var tok string
		tok, rest = splitToken(rest)
		if tok == "" {
			call.ParseError = arityError(spec, len(args))
			return call
		}
		args = append(args, tok)
	}

	// The final argument: greedy tools consume the remainder of the line,
	// content-bearing tools additionally absorb the body continuation.
	final := strings.TrimSpace(rest)
	if !spec.Greedy {
		var extra string
		final, extra = splitToken(final)
		if extra != "" {
			call.ParseError = fmt.Sprintf("too many arguments for %s: usage: %s", spec.Name, spec.Usage)
			return call
		}
	}
	if spec.TakesBody && inv.Body != "" {
		if final == "" {
			final = inv.Body
		} else {
			final = final + "\n" + inv.Body
		}
	}
	if final == "" && !spec.TakesBody {
		call.ParseError = arityError(spec, len(args))
		return call
	}
	args = append(args, final)

	call.Args = args
	return call
}

func arityError(spec ToolSpec, got int) string {
	return fmt.Sprintf("%s expects %d argument(s), got %d: usage: %s",
		spec.Name, spec.ArgCount, got, spec.Usage)
}

// splitToken splits off the first whitespace-delimited token, returning the
// token and the remainder.
func splitToken(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	if s == "" {
		return "", ""
	}
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}
