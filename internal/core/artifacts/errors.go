// Package artifacts renders the infrastructure files of a store deployment:
// the compose manifest and the reverse proxy config.
// This is part of the Functional Core - all functions are pure with no I/O.
package artifacts

import (
	"fmt"

	"github.com/artpar/storedeploy/internal/core/domain"
)

// TemplateError reports a config that cannot be rendered.
// It matches domain.ErrTemplate with errors.Is.
type TemplateError struct {
	Field   string // e.g., "server.domain"
	Message string
}

func (e *TemplateError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("cannot render %s: %s", e.Field, e.Message)
	}
	return "cannot render: " + e.Message
}

// Is matches domain.ErrTemplate.
func (e *TemplateError) Is(target error) bool {
	return target == domain.ErrTemplate
}

func templateError(field, message string) *TemplateError {
	return &TemplateError{Field: field, Message: message}
}
