package agentloop

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024 // 32KB

// basePrompt explains the invocation protocol to the model. Tool usage
// lines and the environment block are appended per session.
const basePrompt = `You are a coding assistant operating in the user's working directory.

To use a tool, write a line starting with TOOL: followed by the tool name and
its arguments. For tools that take content, the content continues on the
following lines until the next TOOL: line or the end of your reply. Example:

TOOL: write_file notes.txt
first line of the file
second line of the file

You may use several tools in one reply; they run in order and each result is
sent back to you before you continue. Text outside TOOL: lines is shown to
the user directly. Never invent tool results.`

// BuildSystemPrompt assembles the full system prompt: protocol explanation,
// tool list from the registry, environment context, and any project
// instruction docs found near the working directory.
func BuildSystemPrompt(registry *ToolRegistry, env *LocalEnvironment, model string) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)
	sb.WriteString("\n\n")
	sb.WriteString(renderToolList(registry))
	sb.WriteString("\n\n")
	sb.WriteString(buildEnvironmentContext(env, model))
	if docs := loadProjectDocs(env.WorkingDirectory()); docs != "" {
		sb.WriteString("\n\n<project_instructions>\n")
		sb.WriteString(docs)
		sb.WriteString("\n</project_instructions>")
	}
	return sb.String()
}

func renderToolList(registry *ToolRegistry) string {
	var sb strings.Builder
	sb.WriteString("Available tools:\n")
	for _, spec := range registry.Specs() {
		fmt.Fprintf(&sb, "\nTOOL: %s\n  %s\n", spec.Usage, spec.Description)
	}
	return sb.String()
}

func buildEnvironmentContext(env *LocalEnvironment, model string) string {
	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", env.WorkingDirectory())
	fmt.Fprintf(&sb, "Platform: %s\n", env.Platform())
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// loadProjectDocs reads AGENTS.md from the working directory, size-capped.
func loadProjectDocs(workingDir string) string {
	path := filepath.Join(workingDir, "AGENTS.md")
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	text := string(content)
	if len(text) > maxProjectDocBytes {
		text = text[:maxProjectDocBytes] + "\n[Project instructions truncated at 32KB]"
	}
	return text
}
