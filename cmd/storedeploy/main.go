package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/artpar/storedeploy/internal/shell/pipeline"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitValidationError = 2
	ExitDeployError     = 3
	ExitConnectionError = 4
	ExitHTTPServerError = 5
	ExitCanceled        = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCommand()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, renderFailure(err))
		return exitCode(err)
	}
	return ExitSuccess
}

// CommandError carries the exit code of a failed command.
type CommandError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	switch {
	case errors.Is(err, pipeline.ErrCanceled):
		return ExitCanceled
	case errors.Is(err, domain.ErrValidation):
		return ExitValidationError
	case errors.Is(err, domain.ErrConnection), errors.Is(err, domain.ErrAuthentication):
		return ExitConnectionError
	}
	var de *domain.DeploymentError
	if errors.As(err, &de) {
		return ExitDeployError
	}
	return ExitConfigError
}
