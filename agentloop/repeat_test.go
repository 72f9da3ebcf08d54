package agentloop

import "testing"

func assistantWithCalls(calls ...ToolCall) Message {
	return NewAssistantMessage("", calls)
}

func TestDetectRepeatedCalls(t *testing.T) {
	same := ToolCall{Name: "read_file", Args: []string{"a.txt"}}
	other := ToolCall{Name: "list_files", Args: []string{"."}}

	t.Run("identical calls repeat", func(t *testing.T) {
		history := []Message{
			assistantWithCalls(same, same),
			assistantWithCalls(same, same),
		}
		if !DetectRepeatedCalls(history, 4) {
			t.Error("expected repetition of a single call to be detected")
		}
	})

	t.Run("alternating pair repeats", func(t *testing.T) {
		history := []Message{
			assistantWithCalls(same, other, same, other),
		}
		if !DetectRepeatedCalls(history, 4) {
			t.Error("expected a repeating pair to be detected")
		}
	})

	t.Run("varied calls do not repeat", func(t *testing.T) {
		history := []Message{
			assistantWithCalls(
				ToolCall{Name: "read_file", Args: []string{"a.txt"}},
				ToolCall{Name: "read_file", Args: []string{"b.txt"}},
				ToolCall{Name: "read_file", Args: []string{"c.txt"}},
				ToolCall{Name: "read_file", Args: []string{"d.txt"}},
			),
		}
		if DetectRepeatedCalls(history, 4) {
			t.Error("distinct arguments must not count as repetition")
		}
	})

	t.Run("too few calls", func(t *testing.T) {
		history := []Message{assistantWithCalls(same, same)}
		if DetectRepeatedCalls(history, 4) {
			t.Error("a window larger than the history must not trigger")
		}
	})

	t.Run("signatures span assistant messages", func(t *testing.T) {
		history := []Message{
			assistantWithCalls(same),
			NewToolResultMessage(ToolResult{CallID: "c", ToolName: "read_file", Payload: "x"}),
			assistantWithCalls(same),
			assistantWithCalls(same),
		}
		if !DetectRepeatedCalls(history, 3) {
			t.Error("expected repetition across messages to be detected")
		}
	})
}
