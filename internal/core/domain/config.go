// Package domain contains the core domain types and validation logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

// =============================================================================
// Deployment Mode
// =============================================================================

// Mode is the wire name of a deployment target kind.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// IsValid checks if the mode is a known deployment mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeLocal, ModeRemote:
		return true
	default:
		return false
	}
}

// =============================================================================
// Deployment Target
// =============================================================================

// Target is where a deployment runs. It is a closed set: LocalTarget or RemoteTarget.
type Target interface {
	Mode() Mode
	isTarget()
}

// LocalTarget deploys to the Docker engine of the machine running the pipeline.
type LocalTarget struct{}

// Mode returns ModeLocal.
func (LocalTarget) Mode() Mode { return ModeLocal }
func (LocalTarget) isTarget()  {}

// RemoteTarget deploys to a host reachable over SSH, served under Domain.
type RemoteTarget struct {
	Host   string `json:"host" yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Domain string `json:"domain" yaml:"domain" validate:"required,fqdn"`
}

// Mode returns ModeRemote.
func (RemoteTarget) Mode() Mode { return ModeRemote }
func (RemoteTarget) isTarget()  {}

// =============================================================================
// Deployment Config
// =============================================================================

// DeploymentConfig is the caller-owned description of one store deployment.
// The pipeline treats it as read-only.
type DeploymentConfig struct {
	Target          Target
	Identity        Identity
	Design          Design
	Payment         Payment
	Products        []Product      `validate:"dive"`
	ImagesDirectory string
	ImageMapping    map[string]any
}

// Identity is the store branding. Unrecognised keys are kept in Extra.
type Identity struct {
	Name   string
	Slogan string
	Extra  map[string]any
}

// Design is the theme selection. Unrecognised keys are kept in Extra.
type Design struct {
	School          string
	PrimaryColor    string `validate:"omitempty,hexcolor"`
	SecondaryColor  string `validate:"omitempty,hexcolor"`
	BackgroundColor string `validate:"omitempty,hexcolor"`
	FontPair        string
	Extra           map[string]any
}

// Payment holds the payment gateway wiring. The token is passed through verbatim.
type Payment struct {
	Gateway       string `validate:"omitempty,alphanum"`
	AccessToken   string
	WebhookSecret string
	TestMode      bool
	Extra         map[string]any
}

// DefaultGateway is used when Payment.Gateway is empty.
const DefaultGateway = "mercadopago"

// GatewayName returns the configured gateway or DefaultGateway.
func (p Payment) GatewayName() string {
	if p.Gateway == "" {
		return DefaultGateway
	}
	return p.Gateway
}

// Product is one already-parsed catalog record.
type Product struct {
	UUID         string  `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	InternalCode string  `json:"internalCode" yaml:"internalCode" validate:"required"`
	Name         string  `json:"name" yaml:"name" validate:"required"`
	Price        float64 `json:"price" yaml:"price" validate:"gte=0"`
	Description  string  `json:"description" yaml:"description"`
}

// Mode returns the mode of the configured target, defaulting to local.
// Nil pointer targets keep the mode of their type.
func (c DeploymentConfig) Mode() Mode {
	switch t := c.Target.(type) {
	case nil, LocalTarget, *LocalTarget:
		return ModeLocal
	case RemoteTarget, *RemoteTarget:
		return ModeRemote
	default:
		return t.Mode()
	}
}

// Remote returns the remote target and true when the deployment is remote.
func (c DeploymentConfig) Remote() (RemoteTarget, bool) {
	switch t := c.Target.(type) {
	case RemoteTarget:
		return t, true
	case *RemoteTarget:
		if t != nil {
			return *t, true
		}
	}
	return RemoteTarget{}, false
}
