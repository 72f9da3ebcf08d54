// Package sessionstore persists conversations as append-only JSONL files,
// one file per session. Records are written and fsynced before Append
// returns, so a session interrupted at any point resumes from exactly what
// the user last saw committed.
package sessionstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/martinemde/toolline/agentloop"
)

// ErrNotFound is returned when a session id has no stored log.
var ErrNotFound = errors.New("session not found")

const fileExt = ".jsonl"

// Store keeps one append-only log file per session under a root directory.
type Store struct {
	dir string
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// Create allocates a new session id and its empty log file.
func (s *Store) Create() (string, error) {
	id := uuid.New().String()
	f, err := os.OpenFile(s.path(id), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("create session log: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("create session log: %w", err)
	}
	return id, nil
}

// Resume replays a session's messages in append order.
func (s *Store) Resume(id string) ([]agentloop.Message, error) {
	path, err := s.validPath(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("open session log: %w", err)
	}
	defer f.Close()

	var messages []agentloop.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg agentloop.Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return nil, fmt.Errorf("corrupt session log %s line %d: %w", id, lineNo, err)
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session log: %w", err)
	}
	return messages, nil
}

// Append writes one message as a JSON line and syncs the file before
// returning. The log for id must already exist.
func (s *Store) Append(id string, msg agentloop.Message) error {
	path, err := s.validPath(id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("stat session log: %w", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append to session log: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync session log: %w", err)
	}
	return nil
}

// List returns all stored session ids, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

// validPath rejects ids that would escape the store directory.
func (s *Store) validPath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid session id: %q", id)
	}
	return s.path(id), nil
}
