package agentloop

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"
)

// ExecResult holds the result of a shell command execution.
type ExecResult struct {
	Output     string `json:"output"` // combined stdout and stderr, bounded
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	Truncated  bool   `json:"truncated"`
	DurationMs int64  `json:"duration_ms"`
}

// LocalEnvironment provides the filesystem and process access tools run
// against. Relative paths resolve against the working directory.
type LocalEnvironment struct {
	workingDir string
}

// NewLocalEnvironment creates a local environment rooted at workingDir.
// An empty workingDir defaults to the process working directory.
func NewLocalEnvironment(workingDir string) *LocalEnvironment {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	return &LocalEnvironment{workingDir: workingDir}
}

// WorkingDirectory returns the environment root.
func (e *LocalEnvironment) WorkingDirectory() string { return e.workingDir }

// Platform returns the OS/arch identifier.
func (e *LocalEnvironment) Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

func (e *LocalEnvironment) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.workingDir, path)
}

// ListDir returns the names of the immediate entries of a directory, sorted,
// with directories marked by a trailing separator.
func (e *LocalEnvironment) ListDir(path string) ([]string, error) {
	resolved := e.resolvePath(path)
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, &ExecError{Kind: classifyPathError(err), Message: fmt.Sprintf("cannot list %s", path), Cause: err}
	}
	if !info.IsDir() {
		return nil, execErrorf(FailureNotADirectory, "not a directory: %s", path)
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, &ExecError{Kind: classifyPathError(err), Message: fmt.Sprintf("cannot list %s", path), Cause: err}
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += string(os.PathSeparator)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ReadFileText returns the full content of a text file. Non-text content
// (invalid UTF-8 or NUL bytes) is a decode failure.
func (e *LocalEnvironment) ReadFileText(path string) (string, error) {
	resolved := e.resolvePath(path)
	info, err := os.Stat(resolved)
	if err != nil {
		return "", &ExecError{Kind: classifyPathError(err), Message: fmt.Sprintf("cannot read %s", path), Cause: err}
	}
	if info.IsDir() {
		return "", execErrorf(FailureNotAFile, "not a file: %s", path)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", &ExecError{Kind: classifyPathError(err), Message: fmt.Sprintf("cannot read %s", path), Cause: err}
	}
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return "", execErrorf(FailureDecodeError, "not a text file: %s", path)
	}
	return string(data), nil
}

// MakeDirAll creates a directory and all missing ancestors. It is
// idempotent: an existing directory succeeds; an existing non-directory at
// the path fails.
func (e *LocalEnvironment) MakeDirAll(path string) error {
	resolved := e.resolvePath(path)
	if info, err := os.Stat(resolved); err == nil {
		if info.IsDir() {
			return nil
		}
		return execErrorf(FailureNotADirectory, "path exists and is not a directory: %s", path)
	}
	if err := os.MkdirAll(resolved, 0755); err != nil {
		return &ExecError{Kind: classifyPathError(err), Message: fmt.Sprintf("cannot create directory %s", path), Cause: err}
	}
	return nil
}

// WriteFileAll creates missing ancestor directories, then creates or
// overwrites the file with content.
func (e *LocalEnvironment) WriteFileAll(path string, content string) error {
	resolved := e.resolvePath(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return &ExecError{Kind: classifyPathError(err), Message: fmt.Sprintf("cannot create parent directories for %s", path), Cause: err}
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return &ExecError{Kind: classifyPathError(err), Message: fmt.Sprintf("cannot write %s", path), Cause: err}
	}
	return nil
}

// ReplaceFile atomically replaces the content of an existing file by
// writing a temporary file in the same directory and renaming it over the
// target. Readers never observe a partially written file.
func (e *LocalEnvironment) ReplaceFile(path string, content string) error {
	resolved := e.resolvePath(path)
	dir := filepath.Dir(resolved)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(resolved)+".*")
	if err != nil {
		return &ExecError{Kind: classifyPathError(err), Message: fmt.Sprintf("cannot write %s", path), Cause: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &ExecError{Kind: FailurePermissionDenied, Message: fmt.Sprintf("cannot write %s", path), Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &ExecError{Kind: FailurePermissionDenied, Message: fmt.Sprintf("cannot write %s", path), Cause: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &ExecError{Kind: FailurePermissionDenied, Message: fmt.Sprintf("cannot write %s", path), Cause: err}
	}
	if info, err := os.Stat(resolved); err == nil {
		_ = os.Chmod(tmpName, info.Mode().Perm())
	}
	if err := os.Rename(tmpName, resolved); err != nil {
		os.Remove(tmpName)
		return &ExecError{Kind: classifyPathError(err), Message: fmt.Sprintf("cannot write %s", path), Cause: err}
	}
	return nil
}

// sensitiveEnvPatterns are case-insensitive suffixes for environment
// variables that are excluded from spawned commands.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always included regardless of filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

func filterEnvironment() []string {
	var filtered []string
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if safeEnvVars[parts[0]] || !isSensitiveEnvVar(parts[0]) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// boundedWriter captures output up to a byte cap, discarding the rest.
type boundedWriter struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	remaining := w.max - w.buf.Len()
	if remaining <= 0 {
		w.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		w.truncated = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

// RunCommand executes a command line through the shell, capturing combined
// stdout and stderr up to maxOutput bytes. A non-zero exit status is not an
// error: it is reported in the result so the model can see command
// failures. Only a genuine inability to spawn the process returns an error.
func (e *LocalEnvironment) RunCommand(ctx context.Context, commandLine string, timeout time.Duration, maxOutput int) (*ExecResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell := "/bin/bash"
	shellArg := "-c"
	if runtime.GOOS == "windows" {
		shell = "cmd.exe"
		shellArg = "/c"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, commandLine)
	cmd.Dir = e.workingDir
	cmd.Env = filterEnvironment()

	// Process group so a timeout can kill spawned children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if maxOutput <= 0 {
		maxOutput = 64 * 1024
	}
	out := &boundedWriter{max: maxOutput}
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &ExecError{Kind: FailureSpawn, Message: fmt.Sprintf("cannot spawn command: %s", commandLine), Cause: err}
	}
	err := cmd.Wait()
	duration := time.Since(start)

	result := &ExecResult{
		Output:     out.buf.String(),
		Truncated:  out.truncated,
		DurationMs: duration.Milliseconds(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		} else if ctx.Err() == context.Canceled {
			// A user interrupt, not a timeout. The outcome must record a
			// cancellation, never a synthetic exit status.
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
			return nil, &ExecError{Kind: FailureCancelled, Message: fmt.Sprintf("command cancelled: %s", commandLine), Cause: ctx.Err()}
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, &ExecError{Kind: FailureSpawn, Message: fmt.Sprintf("command did not run: %s", commandLine), Cause: err}
		}
	}

	return result, nil
}
