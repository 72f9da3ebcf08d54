package agentloop

import (
	"strings"
)

// ToolLinePrefix is the fixed literal that marks a tool-invocation line in
// model output.
const ToolLinePrefix = "TOOL:"

// Invocation is one recognized tool-invocation block: the header line
// (stripped of the prefix) plus any body continuation lines.
type Invocation struct {
	Header string // tool name and arguments, whitespace-trimmed
	Body   string // continuation lines, newline-joined; empty if none
}

// Transcriber consumes a lazy sequence of model output fragments and
// incrementally separates display text from tool-invocation blocks. A
// fragment may split a line anywhere, including mid-tool-name; partial
// lines are buffered across fragment boundaries.
//
// Display text is purely additive: a partial line is surfaced as soon as it
// can no longer be the start of an invocation line, and is never rewritten.
// Lines belonging to an invocation (the header line and, for content-bearing
// tools, the body continuation) are never surfaced as display text.
type Transcriber struct {
	registry *ToolRegistry
	onText   func(string)

	line    strings.Builder // current incomplete line
	emitted int             // bytes of the current line already surfaced

	display strings.Builder
	raw     strings.Builder

	inBody    bool
	pending   *Invocation
	bodyLines []string

	invocations []Invocation
}

// NewTranscriber creates a Transcriber. onText, if non-nil, is called with
// each chunk of display text as soon as it is known to be displayable;
// chunks arrive in output order.
func NewTranscriber(registry *ToolRegistry, onText func(string)) *Transcriber {
	return &Transcriber{registry: registry, onText: onText}
}

// Write feeds one stream fragment to the transcriber.
func (t *Transcriber) Write(fragment string) {
	t.raw.WriteString(fragment)
	for {
		idx := strings.IndexByte(fragment, '\n')
		if idx < 0 {
			t.line.WriteString(fragment)
			t.flushPartial()
			return
		}
		t.line.WriteString(fragment[:idx])
		t.completeLine(t.line.String())
		t.line.Reset()
		t.emitted = 0
		fragment = fragment[idx+1:]
	}
}

// Finish flushes the final buffered line (a line without a trailing
// terminator is complete once the stream is exhausted) and returns all
// recognized invocations in source order.
func (t *Transcriber) Finish() []Invocation {
	if t.line.Len() > 0 {
		line := t.line.String()
		t.line.Reset()
		switch {
		case t.inBody && !isInvocationLine(line):
			t.bodyLines = append(t.bodyLines, line)
		case isInvocationLine(line):
			if t.inBody {
				t.finalizePending()
			}
			t.startInvocation(line)
		default:
			t.emitDisplay(line[t.emitted:])
		}
		t.emitted = 0
	}
	if t.pending != nil {
		t.finalizePending()
	}
	return t.invocations
}

// DisplayText returns all display text surfaced so far.
func (t *Transcriber) DisplayText() string { return t.display.String() }

// Raw returns the full raw model output consumed so far, invocation lines
// included. This is what gets recorded as the assistant message content.
func (t *Transcriber) Raw() string { return t.raw.String() }

func (t *Transcriber) completeLine(line string) {
	if t.inBody {
		if isInvocationLine(line) {
			t.finalizePending()
			t.startInvocation(line)
		} else {
			t.bodyLines = append(t.bodyLines, line)
		}
		return
	}
	if isInvocationLine(line) {
		t.startInvocation(line)
		return
	}
	t.emitDisplay(line[t.emitted:] + "\n")
}

// startInvocation begins a new invocation block from a complete header line.
// Content-bearing tools switch the transcriber into body mode until the next
// invocation line or end of stream.
func (t *Transcriber) startInvocation(line string) {
	header := strings.TrimSpace(strings.TrimPrefix(strings.TrimLeft(line, " \t"), ToolLinePrefix))
	name := header
	if i := strings.IndexAny(header, " \t"); i >= 0 {
		name = header[:i]
	}
	if t.registry != nil && t.registry.TakesBody(name) {
		t.pending = &Invocation{Header: header}
		t.inBody = true
		t.bodyLines = nil
		return
	}
	t.inBody = false
	t.invocations = append(t.invocations, Invocation{Header: header})
}

func (t *Transcriber) finalizePending() {
	t.pending.Body = strings.Join(t.bodyLines, "\n")
	t.invocations = append(t.invocations, *t.pending)
	t.pending = nil
	t.bodyLines = nil
	t.inBody = false
}

// flushPartial surfaces the buffered partial line as display text once it
// can no longer be the start of an invocation line.
func (t *Transcriber) flushPartial() {
	if t.inBody {
		return
	}
	line := t.line.String()
	if couldBeInvocationLine(line) {
		return
	}
	if len(line) > t.emitted {
		t.emitDisplay(line[t.emitted:])
		t.emitted = len(line)
	}
}

func (t *Transcriber) emitDisplay(s string) {
	if s == "" {
		return
	}
	t.display.WriteString(s)
	if t.onText != nil {
		t.onText(s)
	}
}

// isInvocationLine reports whether a complete line is a tool invocation.
func isInvocationLine(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), ToolLinePrefix)
}

// couldBeInvocationLine reports whether a partial line could still grow into
// an invocation line.
func couldBeInvocationLine(partial string) bool {
	s := strings.TrimLeft(partial, " \t")
	if len(s) >= len(ToolLinePrefix) {
		return strings.HasPrefix(s, ToolLinePrefix)
	}
	return s == ToolLinePrefix[:len(s)]
}
