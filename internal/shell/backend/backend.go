// Package backend runs shell commands and places files on a deployment target.
// LocalBackend drives the machine running the pipeline; RemoteBackend drives a
// host over SSH. Both take POSIX shell strings built by internal/core/deployment.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Interface
// =============================================================================

// Backend executes commands on one deployment target.
// A Backend is owned by a single pipeline run and is not shared.
type Backend interface {
	// RunCommand runs cmd through a POSIX shell and waits for it to exit.
	RunCommand(ctx context.Context, cmd string, mode ExecMode) (CommandResult, error)

	// PutFile writes data to path on the target, creating parent directories.
	PutFile(ctx context.Context, data []byte, path string) error

	// Close releases the connection or working resources.
	Close() error
}

// ExecMode decides how a non-zero exit status is reported.
type ExecMode int

const (
	// Required turns a non-zero exit status into a *CommandError.
	Required ExecMode = iota
	// BestEffort returns the result with a nil error whatever the exit status.
	BestEffort
)

func (m ExecMode) String() string {
	if m == BestEffort {
		return "best_effort"
	}
	return "required"
}

// CommandResult is the outcome of a command that ran to completion.
type CommandResult struct {
	ExitStatus int
	Stdout     string
	Stderr     string
}

// Success reports whether the command exited with status 0.
func (r CommandResult) Success() bool {
	return r.ExitStatus == 0
}

// Output returns stdout and stderr joined, trimmed of surrounding blanks.
func (r CommandResult) Output() string {
	return strings.TrimSpace(strings.TrimSpace(r.Stdout) + "\n" + strings.TrimSpace(r.Stderr))
}

// =============================================================================
// Errors
// =============================================================================

var (
	ErrProcessStart      = errors.New("process could not be started")
	ErrCommandTimeout    = errors.New("command timed out")
	ErrConnectionRefused = errors.New("connection refused")
	ErrHandshake         = errors.New("ssh handshake failed")
	ErrAuthentication    = errors.New("ssh authentication failed")
	ErrNotReady          = errors.New("backend is not ready")
)

// CommandError is returned for a Required command that exited non-zero.
type CommandError struct {
	Command string
	Result  CommandResult
}

func (e *CommandError) Error() string {
	out := e.Result.Output()
	if out == "" {
		return fmt.Sprintf("command exited with status %d: %s", e.Result.ExitStatus, e.Command)
	}
	return fmt.Sprintf("command exited with status %d: %s: %s", e.Result.ExitStatus, e.Command, out)
}

// NewCommandError creates a new CommandError.
func NewCommandError(cmd string, result CommandResult) *CommandError {
	return &CommandError{Command: cmd, Result: result}
}

// finish applies the exec mode to a completed command.
func finish(cmd string, result CommandResult, mode ExecMode) (CommandResult, error) {
	if result.ExitStatus != 0 && mode == Required {
		return result, NewCommandError(cmd, result)
	}
	return result, nil
}
