package agentloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Executor runs parsed tool calls sequentially against a local environment.
// Execution order is source order; a failing call never stops the calls
// after it. Every call produces exactly one result.
type Executor struct {
	registry *ToolRegistry
	env      *LocalEnvironment

	// CommandTimeout bounds each run_command invocation. Zero means no
	// timeout beyond the caller's context.
	CommandTimeout time.Duration

	// MaxCommandOutput bounds captured command output in bytes.
	MaxCommandOutput int

	truncation TruncationPolicy
}

// NewExecutor creates an Executor over a registry and environment.
func NewExecutor(registry *ToolRegistry, env *LocalEnvironment) *Executor {
	return &Executor{
		registry:         registry,
		env:              env,
		CommandTimeout:   60 * time.Second,
		MaxCommandOutput: 64 * 1024,
		truncation:       DefaultTruncationPolicy(),
	}
}

// SetTruncationPolicy overrides the default per-tool output limits.
func (e *Executor) SetTruncationPolicy(p TruncationPolicy) { e.truncation = p }

// Execute runs all calls in order and returns one result per call, aligned
// by CallID. If ctx is cancelled partway, the in-flight and remaining calls
// get cancelled results rather than being silently dropped.
func (e *Executor) Execute(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for i, call := range calls {
		if ctx.Err() != nil {
			for _, remaining := range calls[i:] {
				results = append(results, cancelledResult(remaining))
			}
			break
		}
		results = append(results, e.executeOne(ctx, call))
	}
	return results
}

func (e *Executor) executeOne(ctx context.Context, call ToolCall) ToolResult {
	start := time.Now()
	result := ToolResult{CallID: call.ID, ToolName: call.Name}

	if call.ParseError != "" {
		result.Failure = FailureBadInvocation
		result.Payload = call.ParseError
		result.Duration = time.Since(start)
		return result
	}

	tool := e.registry.Get(call.Name)
	if tool == nil {
		result.Failure = FailureNotFound
		result.Payload = fmt.Sprintf("unknown tool: %s", call.Name)
		result.Duration = time.Since(start)
		return result
	}

	payload, err := tool.Handler(ctx, e.env, call)
	result.Duration = time.Since(start)
	if err != nil {
		var execErr *ExecError
		if errors.As(err, &execErr) {
			result.Failure = execErr.Kind
		} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			result.Failure = FailureCancelled
		} else {
			result.Failure = FailureBadInvocation
		}
		result.Payload = err.Error()
		return result
	}
	result.Payload = e.truncation.Apply(call.Name, payload)
	return result
}

func cancelledResult(call ToolCall) ToolResult {
	return ToolResult{
		CallID:   call.ID,
		ToolName: call.Name,
		Failure:  FailureCancelled,
		Payload:  "cancelled before execution",
	}
}

// RegisterCoreTools installs the built-in tool set into a registry. The
// executor's timeout and output cap apply to run_command.
func RegisterCoreTools(registry *ToolRegistry, executor *Executor) {
	registry.Register(RegisteredTool{
		Spec: ToolSpec{
			Name:        "list_files",
			ArgCount:    1,
			Greedy:      true,
			Usage:       "list_files <directory>",
			Description: "List the entries of a directory. Directories have a trailing slash.",
		},
		Handler: func(ctx context.Context, env *LocalEnvironment, call ToolCall) (string, error) {
			names, err := env.ListDir(call.Args[0])
			if err != nil {
				return "", err
			}
			if len(names) == 0 {
				return "(empty directory)", nil
			}
			return strings.Join(names, "\n"), nil
		},
	})

	registry.Register(RegisteredTool{
		Spec: ToolSpec{
			Name:        "read_file",
			ArgCount:    1,
			Greedy:      true,
			Usage:       "read_file <path>",
			Description: "Read the full content of a text file.",
		},
		Handler: func(ctx context.Context, env *LocalEnvironment, call ToolCall) (string, error) {
			return env.ReadFileText(call.Args[0])
		},
	})

	registry.Register(RegisteredTool{
		Spec: ToolSpec{
			Name:        "create_directory",
			ArgCount:    1,
			Greedy:      true,
			Usage:       "create_directory <path>",
			Description: "Create a directory, including missing parents. Succeeds if it already exists.",
		},
		Handler: func(ctx context.Context, env *LocalEnvironment, call ToolCall) (string, error) {
			if err := env.MakeDirAll(call.Args[0]); err != nil {
				return "", err
			}
			return fmt.Sprintf("created directory %s", call.Args[0]), nil
		},
	})

	registry.Register(RegisteredTool{
		Spec: ToolSpec{
			Name:      "write_file",
			ArgCount:  2,
			Greedy:    true,
			TakesBody: true,
			Usage:     "write_file <path> <content...>",
			Description: "Create or overwrite a file with the given content. " +
				"Content continues on the following lines until the next tool line.",
		},
		Handler: func(ctx context.Context, env *LocalEnvironment, call ToolCall) (string, error) {
			path, content := call.Args[0], call.Args[1]
			if err := env.WriteFileAll(path, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
		},
	})

	registry.Register(RegisteredTool{
		Spec: ToolSpec{
			Name:      "apply_search_replace",
			ArgCount:  2,
			Greedy:    true,
			TakesBody: true,
			Usage:     "apply_search_replace <path> <blocks...>",
			Description: "Apply search/replace edits to a file. The body holds one or more blocks:\n" +
				"<<<<<<< SEARCH\n(exact text to find)\n=======\n(replacement text)\n>>>>>>> REPLACE\n" +
				"Each search text must match exactly once.",
		},
		Handler: func(ctx context.Context, env *LocalEnvironment, call ToolCall) (string, error) {
			return applySearchReplace(env, call.Args[0], call.Args[1])
		},
	})

	registry.Register(RegisteredTool{
		Spec: ToolSpec{
			Name:        "run_command",
			ArgCount:    1,
			Greedy:      true,
			Usage:       "run_command <command line>",
			Description: "Run a shell command in the working directory and return its combined output.",
		},
		Handler: func(ctx context.Context, env *LocalEnvironment, call ToolCall) (string, error) {
			res, err := env.RunCommand(ctx, call.Args[0], executor.CommandTimeout, executor.MaxCommandOutput)
			if err != nil {
				return "", err
			}
			return renderExecResult(res), nil
		},
	})
}

// renderExecResult encodes a command outcome for the model. A non-zero exit
// is a successful tool invocation whose payload reports the status.
func renderExecResult(res *ExecResult) string {
	var b strings.Builder
	b.WriteString(res.Output)
	if res.Truncated {
		if b.Len() > 0 && !strings.HasSuffix(res.Output, "\n") {
			b.WriteByte('\n')
		}
		b.WriteString("[output truncated]\n")
	}
	switch {
	case res.TimedOut:
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
		b.WriteString("[command timed out]")
	case res.ExitCode != 0:
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[exit status %d]", res.ExitCode)
	case res.Output == "":
		b.WriteString("(no output)")
	}
	return b.String()
}

const (
	searchMarker  = "<<<<<<< SEARCH"
	divideMarker  = "======="
	replaceMarker = ">>>>>>> REPLACE"
)

type editBlock struct {
	search  string
	replace string
}

// applySearchReplace parses conflict-marker blocks from the body and applies
// them all in memory before writing. A search text that matches zero times
// or more than once fails the whole call and leaves the file untouched.
func applySearchReplace(env *LocalEnvironment, path, body string) (string, error) {
	blocks, err := parseEditBlocks(body)
	if err != nil {
		return "", err
	}
	if len(blocks) == 0 {
		return "", execErrorf(FailureBadInvocation, "no search/replace blocks found in edit body")
	}

	content, err := env.ReadFileText(path)
	if err != nil {
		return "", err
	}

	for i, block := range blocks {
		switch n := strings.Count(content, block.search); {
		case n == 0:
			return "", execErrorf(FailureNotFound, "edit block %d: search text not found in %s", i+1, path)
		case n > 1:
			return "", execErrorf(FailureAmbiguousMatch, "edit block %d: search text matches %d times in %s, must match exactly once", i+1, n, path)
		}
		content = strings.Replace(content, block.search, block.replace, 1)
	}

	if err := env.ReplaceFile(path, content); err != nil {
		return "", err
	}
	return fmt.Sprintf("applied %d edit(s) to %s", len(blocks), path), nil
}

func parseEditBlocks(body string) ([]editBlock, error) {
	lines := strings.Split(body, "\n")
	var blocks []editBlock
	i := 0
	for i < len(lines) {
		line := strings.TrimRight(lines[i], " \t")
		if line != searchMarker {
			if strings.TrimSpace(line) != "" {
				return nil, execErrorf(FailureBadInvocation, "unexpected text outside edit block: %q", line)
			}
			i++
			continue
		}
		i++
		var search []string
		for i < len(lines) && strings.TrimRight(lines[i], " \t") != divideMarker {
			search = append(search, lines[i])
			i++
		}
		if i >= len(lines) {
			return nil, execErrorf(FailureBadInvocation, "unterminated edit block: missing %s", divideMarker)
		}
		i++
		var replace []string
		for i < len(lines) && strings.TrimRight(lines[i], " \t") != replaceMarker {
			replace = append(replace, lines[i])
			i++
		}
		if i >= len(lines) {
			return nil, execErrorf(FailureBadInvocation, "unterminated edit block: missing %s", replaceMarker)
		}
		i++
		if len(search) == 0 {
			return nil, execErrorf(FailureBadInvocation, "edit block has an empty search text")
		}
		blocks = append(blocks, editBlock{
			search:  strings.Join(search, "\n"),
			replace: strings.Join(replace, "\n"),
		})
	}
	return blocks, nil
}
