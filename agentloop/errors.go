package agentloop

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// FailureKind categorizes why a tool invocation failed. Failures are
// recoverable by design: they are reported back to the model as failing
// tool results, never surfaced to the user as errors.
type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailureBadInvocation    FailureKind = "bad_invocation"
	FailureNotFound         FailureKind = "not_found"
	FailureNotAFile         FailureKind = "not_a_file"
	FailureNotADirectory    FailureKind = "not_a_directory"
	FailurePermissionDenied FailureKind = "permission_denied"
	FailureDecodeError      FailureKind = "decode_error"
	FailureAmbiguousMatch   FailureKind = "ambiguous_match"
	FailureSpawn            FailureKind = "spawn_failure"
	FailureCancelled        FailureKind = "cancelled"
)

// ExecError describes a failed tool operation.
type ExecError struct {
	Kind    FailureKind
	Message string
	Cause   error
}

func (e *ExecError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExecError) Unwrap() error {
	return e.Cause
}

func execErrorf(kind FailureKind, format string, args ...interface{}) *ExecError {
	return &ExecError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// PersistError wraps a store write failure. It is unrecoverable: the
// in-memory conversation and the persisted log may no longer agree.
type PersistError struct {
	Cause error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist message: %v", e.Cause)
}

func (e *PersistError) Unwrap() error {
	return e.Cause
}

// classifyPathError maps a filesystem error onto a failure kind.
func classifyPathError(err error) FailureKind {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return FailureNotFound
	case errors.Is(err, fs.ErrPermission):
		return FailurePermissionDenied
	case errors.Is(err, syscall.ENOTDIR):
		return FailureNotADirectory
	default:
		return FailureNotFound
	}
}
