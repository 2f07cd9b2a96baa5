package api

import (
	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/artpar/storedeploy/internal/shell/backend"
)

// =============================================================================
// Request Types
// =============================================================================

// ScanImagesRequest is the request body for reconciling an image directory.
type ScanImagesRequest struct {
	Directory string           `json:"directory" validate:"required"`
	Products  []domain.Product `json:"products" validate:"dive"`
}

// CheckServerRequest is the request body for checking a deployment host.
type CheckServerRequest struct {
	Host string `json:"host" validate:"required,hostname_rfc1123|ip"`
	Port int    `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	User string `json:"user,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// ScanImagesResponse is the response of an image scan.
type ScanImagesResponse struct {
	domain.ReconciliationReport
	Summary string `json:"summary"`
}

// CheckServerResponse is the response of a server check.
type CheckServerResponse struct {
	backend.ServerReport
	Ready bool `json:"ready"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code"`
	Stage  string              `json:"stage,omitempty"`
	Fields []domain.FieldError `json:"fields,omitempty"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
