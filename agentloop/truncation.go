package agentloop

import (
	"fmt"
	"strings"
)

// TruncateMode selects which part of an oversized payload survives.
type TruncateMode string

const (
	// TruncateHeadTail keeps the beginning and the end, eliding the middle.
	TruncateHeadTail TruncateMode = "head_tail"
	// TruncateTail keeps only the end. Useful for command output where the
	// failure is usually at the bottom.
	TruncateTail TruncateMode = "tail"
)

// TruncateLimit bounds a tool's result payload before it is fed back to the
// model.
type TruncateLimit struct {
	MaxChars int
	MaxLines int
	Mode     TruncateMode
}

// TruncationPolicy maps tool names to limits. Tools without an entry use
// the Default limit.
type TruncationPolicy struct {
	Default TruncateLimit
	PerTool map[string]TruncateLimit
}

// DefaultTruncationPolicy returns the built-in limits.
func DefaultTruncationPolicy() TruncationPolicy {
	return TruncationPolicy{
		Default: TruncateLimit{MaxChars: 40000, MaxLines: 1000, Mode: TruncateHeadTail},
		PerTool: map[string]TruncateLimit{
			"read_file":   {MaxChars: 50000, MaxLines: 1500, Mode: TruncateHeadTail},
			"run_command": {MaxChars: 30000, MaxLines: 800, Mode: TruncateTail},
			"list_files":  {MaxChars: 20000, MaxLines: 500, Mode: TruncateHeadTail},
		},
	}
}

// Apply bounds payload by the limit for toolName. Payloads within the limit
// pass through unchanged.
func (p TruncationPolicy) Apply(toolName, payload string) string {
	limit, ok := p.PerTool[toolName]
	if !ok {
		limit = p.Default
	}
	return truncate(payload, limit)
}

func truncate(s string, limit TruncateLimit) string {
	if limit.MaxChars <= 0 && limit.MaxLines <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	overLines := limit.MaxLines > 0 && len(lines) > limit.MaxLines
	overChars := limit.MaxChars > 0 && len(s) > limit.MaxChars
	if !overLines && !overChars {
		return s
	}

	if overLines {
		omitted := len(lines) - limit.MaxLines
		switch limit.Mode {
		case TruncateTail:
			lines = append([]string{truncationNotice(omitted)}, lines[len(lines)-limit.MaxLines:]...)
		default:
			head := limit.MaxLines / 2
			tail := limit.MaxLines - head
			kept := make([]string, 0, limit.MaxLines+1)
			kept = append(kept, lines[:head]...)
			kept = append(kept, truncationNotice(omitted))
			kept = append(kept, lines[len(lines)-tail:]...)
			lines = kept
		}
		s = strings.Join(lines, "\n")
	}

	if limit.MaxChars > 0 && len(s) > limit.MaxChars {
		omitted := len(s) - limit.MaxChars
		switch limit.Mode {
		case TruncateTail:
			s = fmt.Sprintf("[... %d characters omitted ...]\n", omitted) + s[len(s)-limit.MaxChars:]
		default:
			head := limit.MaxChars / 2
			tail := limit.MaxChars - head
			s = s[:head] + fmt.Sprintf("\n[... %d characters omitted ...]\n", omitted) + s[len(s)-tail:]
		}
	}
	return s
}

func truncationNotice(omittedLines int) string {
	return fmt.Sprintf("[... %d lines omitted ...]", omittedLines)
}
