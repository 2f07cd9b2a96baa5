package pipeline

import (
	"errors"

	"github.com/artpar/storedeploy/internal/core/compose"
	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/artpar/storedeploy/internal/shell/backend"
)

// ErrCanceled is returned when the caller cancels a run between stages.
// It is not a *domain.DeploymentError.
var ErrCanceled = errors.New("deployment cancelled")

// Classify maps an error from a stage or a backend to its deployment error kind.
func Classify(err error) domain.ErrorKind {
	var parseErr *compose.ParseError
	switch {
	case errors.Is(err, domain.ErrValidation):
		return domain.KindValidation
	case errors.Is(err, domain.ErrTemplate), errors.As(err, &parseErr):
		return domain.KindTemplate
	case errors.Is(err, backend.ErrAuthentication):
		return domain.KindAuthentication
	case errors.Is(err, backend.ErrConnectionRefused),
		errors.Is(err, backend.ErrHandshake),
		errors.Is(err, backend.ErrNotReady):
		return domain.KindConnection
	case errors.Is(err, domain.ErrFilesystem):
		return domain.KindFilesystem
	case errors.Is(err, domain.ErrHealthCheck):
		return domain.KindHealthCheck
	case errors.Is(err, domain.ErrStorage):
		return domain.KindStorage
	default:
		return domain.KindCommand
	}
}

// newFailure wraps err as the terminal error of stage.
func newFailure(stage domain.Stage, err error) *domain.DeploymentError {
	var de *domain.DeploymentError
	if errors.As(err, &de) {
		return de
	}
	return domain.NewDeploymentError(stage, Classify(err), err.Error(), err)
}
