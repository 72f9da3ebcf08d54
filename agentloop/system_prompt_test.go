package agentloop

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildSystemPrompt(t *testing.T) {
	dir := t.TempDir()
	env := NewLocalEnvironment(dir)
	reg := testRegistry()

	prompt := BuildSystemPrompt(reg, env, "gpt-4o")

	if !strings.Contains(prompt, "TOOL:") {
		t.Error("prompt must explain the invocation protocol")
	}
	for _, spec := range reg.Specs() {
		if !strings.Contains(prompt, spec.Usage) {
			t.Errorf("prompt missing usage line %q", spec.Usage)
		}
	}
	if !strings.Contains(prompt, "Working directory: "+dir) {
		t.Error("prompt missing working directory")
	}
	if !strings.Contains(prompt, "Model: gpt-4o") {
		t.Error("prompt missing model")
	}
	if strings.Contains(prompt, "<project_instructions>") {
		t.Error("no project doc exists, so no instructions block should appear")
	}
}

func TestBuildSystemPromptIncludesProjectDoc(t *testing.T) {
	dir := t.TempDir()
	doc := "# Project rules\nAlways run the linter."
	if err := os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	prompt := BuildSystemPrompt(testRegistry(), NewLocalEnvironment(dir), "")
	if !strings.Contains(prompt, "Always run the linter.") {
		t.Error("prompt must include the project instruction file")
	}
	if !strings.Contains(prompt, "<project_instructions>") {
		t.Error("project docs must be wrapped in their block")
	}
}

func TestProjectDocSizeCap(t *testing.T) {
	dir := t.TempDir()
	big := strings.Repeat("x", maxProjectDocBytes+500)
	if err := os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte(big), 0644); err != nil {
		t.Fatal(err)
	}

	docs := loadProjectDocs(dir)
	if len(docs) > maxProjectDocBytes+100 {
		t.Errorf("project doc not capped: %d bytes", len(docs))
	}
	if !strings.Contains(docs, "truncated") {
		t.Error("expected a truncation notice")
	}
}
