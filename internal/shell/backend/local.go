package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// =============================================================================
// Local Backend
// =============================================================================

// LocalConfig configures a LocalBackend.
type LocalConfig struct {
	// WorkDir is the directory commands run in and relative paths resolve against.
	WorkDir string
	// Shell is the interpreter invoked with -c. Defaults to "sh".
	Shell string
	// CommandTimeout bounds every command. Zero means no bound.
	CommandTimeout time.Duration
}

// LocalBackend runs commands on the local machine through sh -c.
type LocalBackend struct {
	config LocalConfig
	logger *slog.Logger
}

// NewLocalBackend creates the working directory and returns a backend rooted in it.
func NewLocalBackend(config LocalConfig, logger *slog.Logger) (*LocalBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Shell == "" {
		config.Shell = "sh"
	}
	if config.WorkDir == "" {
		return nil, fmt.Errorf("local backend: work dir is required")
	}
	abs, err := filepath.Abs(config.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("local backend: resolve work dir: %w", err)
	}
	config.WorkDir = abs
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("local backend: create work dir: %w", err)
	}

	return &LocalBackend{
		config: config,
		logger: logger.With("component", "local_backend"),
	}, nil
}

// WorkDir returns the absolute working directory.
func (b *LocalBackend) WorkDir() string {
	return b.config.WorkDir
}

// RunCommand runs cmd with the configured shell inside the working directory.
func (b *LocalBackend) RunCommand(ctx context.Context, cmd string, mode ExecMode) (CommandResult, error) {
	if b.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.CommandTimeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, b.config.Shell, "-c", cmd)
	c.Dir = b.config.WorkDir
	c.WaitDelay = 2 * time.Second
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	b.logger.Debug("running command", "command", cmd, "mode", mode.String())

	if err := c.Start(); err != nil {
		return CommandResult{}, fmt.Errorf("%w: %s: %v", ErrProcessStart, b.config.Shell, err)
	}
	waitErr := c.Wait()

	result := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if waitErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return result, fmt.Errorf("%w after %v: %s", ErrCommandTimeout, b.config.CommandTimeout, cmd)
		}
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return result, fmt.Errorf("wait for command: %w", waitErr)
		}
		result.ExitStatus = exitErr.ExitCode()
	}

	if result.ExitStatus != 0 && mode == BestEffort {
		b.logger.Debug("best-effort command failed",
			"command", cmd,
			"exit_status", result.ExitStatus,
			"output", result.Output(),
		)
	}
	return finish(cmd, result, mode)
}

// PutFile writes data to path. Relative paths resolve against the working directory.
func (b *LocalBackend) PutFile(_ context.Context, data []byte, path string) error {
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.config.WorkDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Close is a no-op. The working directory is kept so the stack can be managed later.
func (b *LocalBackend) Close() error {
	return nil
}
