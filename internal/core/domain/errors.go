package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Kinds
// =============================================================================

// ErrorKind classifies why a deployment stopped.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindConnection     ErrorKind = "connection"
	KindAuthentication ErrorKind = "authentication"
	KindCommand        ErrorKind = "command"
	KindTemplate       ErrorKind = "template"
	KindFilesystem     ErrorKind = "filesystem"
	KindHealthCheck    ErrorKind = "health_check"
	KindStorage        ErrorKind = "storage"
)

// Kind sentinels. A *DeploymentError matches the sentinel of its kind with errors.Is.
var (
	ErrValidation     = errors.New("invalid deployment config")
	ErrConnection     = errors.New("connection failed")
	ErrAuthentication = errors.New("authentication failed")
	ErrCommand        = errors.New("command failed")
	ErrTemplate       = errors.New("artifact rendering failed")
	ErrFilesystem     = errors.New("filesystem error")
	ErrHealthCheck    = errors.New("service never became healthy")
	ErrStorage        = errors.New("object storage error")
)

var kindSentinels = map[ErrorKind]error{
	KindValidation:     ErrValidation,
	KindConnection:     ErrConnection,
	KindAuthentication: ErrAuthentication,
	KindCommand:        ErrCommand,
	KindTemplate:       ErrTemplate,
	KindFilesystem:     ErrFilesystem,
	KindHealthCheck:    ErrHealthCheck,
	KindStorage:        ErrStorage,
}

// =============================================================================
// Deployment Error
// =============================================================================

// DeploymentError is the terminal error of a failed pipeline run.
type DeploymentError struct {
	Stage   Stage
	Kind    ErrorKind
	Message string `json:"message"`
	Err     error
}

func (e *DeploymentError) Error() string {
	if e.Stage.IsValid() {
		return fmt.Sprintf("%s (%s): %s", e.Stage, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DeploymentError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *DeploymentError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// NewDeploymentError creates a new DeploymentError.
func NewDeploymentError(stage Stage, kind ErrorKind, message string, err error) *DeploymentError {
	return &DeploymentError{
		Stage:   stage,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// =============================================================================
// Field Errors
// =============================================================================

// FieldError describes one invalid config field.
type FieldError struct {
	Field   string `json:"field"` // e.g., "products[2].internalCode"
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in a config.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	switch len(v) {
	case 0:
		return "no validation errors"
	case 1:
		return v[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more)", v[0].Error(), len(v)-1)
	}
}

// Is matches ErrValidation.
func (v ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}
