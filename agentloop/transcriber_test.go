package agentloop

import (
	"strings"
	"testing"
)

func testRegistry() *ToolRegistry {
	reg := NewToolRegistry()
	reg.Register(RegisteredTool{Spec: ToolSpec{
		Name: "read_file", ArgCount: 1, Greedy: true,
		Usage: "read_file <path>",
	}})
	reg.Register(RegisteredTool{Spec: ToolSpec{
		Name: "write_file", ArgCount: 2, Greedy: true, TakesBody: true,
		Usage: "write_file <path> <content...>",
	}})
	reg.Register(RegisteredTool{Spec: ToolSpec{
		Name: "run_command", ArgCount: 1, Greedy: true,
		Usage: "run_command <command line>",
	}})
	return reg
}

// feed writes the input to a fresh transcriber in fragments of the given
// size and returns the transcriber after Finish.
func feed(t *testing.T, reg *ToolRegistry, input string, fragSize int) (*Transcriber, []Invocation) {
	t.Helper()
	tr := NewTranscriber(reg, nil)
	for i := 0; i < len(input); i += fragSize {
		end := i + fragSize
		if end > len(input) {
			end = len(input)
		}
		tr.Write(input[i:end])
	}
	return tr, tr.Finish()
}

func TestTranscriberPlainText(t *testing.T) {
	tr, invs := feed(t, testRegistry(), "hello\nworld\n", 4)
	if len(invs) != 0 {
		t.Fatalf("expected no invocations, got %d", len(invs))
	}
	if got := tr.DisplayText(); got != "hello\nworld\n" {
		t.Errorf("expected display %q, got %q", "hello\nworld\n", got)
	}
	if got := tr.Raw(); got != "hello\nworld\n" {
		t.Errorf("expected raw %q, got %q", "hello\nworld\n", got)
	}
}

func TestTranscriberInvocationLine(t *testing.T) {
	input := "Let me check.\nTOOL: read_file main.go\nDone.\n"
	tr, invs := feed(t, testRegistry(), input, len(input))

	if len(invs) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(invs))
	}
	if invs[0].Header != "read_file main.go" {
		t.Errorf("expected header %q, got %q", "read_file main.go", invs[0].Header)
	}
	want := "Let me check.\nDone.\n"
	if got := tr.DisplayText(); got != want {
		t.Errorf("expected display %q, got %q", want, got)
	}
	if tr.Raw() != input {
		t.Errorf("raw output should include the invocation line")
	}
}

func TestTranscriberBodyCapture(t *testing.T) {
	input := "TOOL: write_file notes.txt\nline one\nline two\nTOOL: read_file notes.txt\nafter\n"
	_, invs := feed(t, testRegistry(), input, len(input))

	if len(invs) != 2 {
		t.Fatalf("expected 2 invocations, got %d", len(invs))
	}
	if invs[0].Header != "write_file notes.txt" {
		t.Errorf("unexpected first header %q", invs[0].Header)
	}
	if invs[0].Body != "line one\nline two" {
		t.Errorf("expected body %q, got %q", "line one\nline two", invs[0].Body)
	}
	if invs[1].Header != "read_file notes.txt" {
		t.Errorf("unexpected second header %q", invs[1].Header)
	}
	if invs[1].Body != "" {
		t.Errorf("read_file should not capture a body, got %q", invs[1].Body)
	}
}

func TestTranscriberBodyRunsToEndOfStream(t *testing.T) {
	input := "TOOL: write_file out.txt\nfirst\nlast"
	_, invs := feed(t, testRegistry(), input, len(input))

	if len(invs) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(invs))
	}
	if invs[0].Body != "first\nlast" {
		t.Errorf("expected body %q, got %q", "first\nlast", invs[0].Body)
	}
}

func TestTranscriberFragmentationInvariance(t *testing.T) {
	// The same input must produce identical display text and invocations
	// regardless of where fragment boundaries fall.
	input := "Reading now.\nTOOL: write_file a/b.txt\nalpha\nbeta\nTOOL: run_command ls -la\ndone here\n"
	reg := testRegistry()

	ref, refInvs := feed(t, reg, input, len(input))

	for fragSize := 1; fragSize <= 7; fragSize++ {
		tr, invs := feed(t, reg, input, fragSize)
		if tr.DisplayText() != ref.DisplayText() {
			t.Errorf("fragSize %d: display %q differs from reference %q",
				fragSize, tr.DisplayText(), ref.DisplayText())
		}
		if tr.Raw() != input {
			t.Errorf("fragSize %d: raw differs from input", fragSize)
		}
		if len(invs) != len(refInvs) {
			t.Fatalf("fragSize %d: got %d invocations, want %d", fragSize, len(invs), len(refInvs))
		}
		for i := range invs {
			if invs[i] != refInvs[i] {
				t.Errorf("fragSize %d: invocation %d = %+v, want %+v", fragSize, i, invs[i], refInvs[i])
			}
		}
	}
}

func TestTranscriberPartialLineHoldback(t *testing.T) {
	var chunks []string
	tr := NewTranscriber(testRegistry(), func(s string) { chunks = append(chunks, s) })

	// "TOO" could still become "TOOL:", so nothing may be surfaced yet.
	tr.Write("TOO")
	if len(chunks) != 0 {
		t.Fatalf("partial invocation prefix surfaced too early: %q", chunks)
	}

	// "TOOt" can no longer be an invocation line; it must surface now.
	tr.Write("t")
	if strings.Join(chunks, "") != "TOOt" {
		t.Errorf("expected %q surfaced after divergence, got %q", "TOOt", strings.Join(chunks, ""))
	}

	tr.Write("le\n")
	tr.Finish()
	if got := tr.DisplayText(); got != "TOOtle\n" {
		t.Errorf("expected display %q, got %q", "TOOtle\n", got)
	}
}

func TestTranscriberDisplayIsAdditive(t *testing.T) {
	var stream strings.Builder
	tr := NewTranscriber(testRegistry(), func(s string) { stream.WriteString(s) })

	for _, frag := range []string{"he", "llo wor", "ld\nTOOL: read_f", "ile x.txt\nbye\n"} {
		tr.Write(frag)
		// Everything surfaced so far must be a prefix of the final display.
		if !strings.HasPrefix("hello world\nbye\n", stream.String()) {
			t.Fatalf("surfaced text %q is not a prefix of the final display", stream.String())
		}
	}
	tr.Finish()
	if stream.String() != "hello world\nbye\n" {
		t.Errorf("expected streamed display %q, got %q", "hello world\nbye\n", stream.String())
	}
	if tr.DisplayText() != stream.String() {
		t.Errorf("DisplayText %q differs from streamed text %q", tr.DisplayText(), stream.String())
	}
}

func TestTranscriberUnterminatedFinalLine(t *testing.T) {
	t.Run("display text", func(t *testing.T) {
		tr, _ := feed(t, testRegistry(), "no newline at end", 3)
		if got := tr.DisplayText(); got != "no newline at end" {
			t.Errorf("expected %q, got %q", "no newline at end", got)
		}
	})

	t.Run("invocation", func(t *testing.T) {
		_, invs := feed(t, testRegistry(), "TOOL: read_file last.txt", 5)
		if len(invs) != 1 {
			t.Fatalf("expected 1 invocation, got %d", len(invs))
		}
		if invs[0].Header != "read_file last.txt" {
			t.Errorf("expected header %q, got %q", "read_file last.txt", invs[0].Header)
		}
	})
}

func TestTranscriberIndentedInvocationLine(t *testing.T) {
	_, invs := feed(t, testRegistry(), "  TOOL: read_file x.txt\n", 4)
	if len(invs) != 1 {
		t.Fatalf("expected 1 invocation from an indented line, got %d", len(invs))
	}
}

func TestTranscriberUnknownToolTakesNoBody(t *testing.T) {
	input := "TOOL: frobnicate now\nthis stays visible\n"
	tr, invs := feed(t, testRegistry(), input, len(input))
	if len(invs) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(invs))
	}
	if invs[0].Body != "" {
		t.Errorf("unknown tool must not capture a body, got %q", invs[0].Body)
	}
	if got := tr.DisplayText(); got != "this stays visible\n" {
		t.Errorf("expected following line as display text, got %q", got)
	}
}
