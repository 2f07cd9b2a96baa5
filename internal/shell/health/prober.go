// Package health probes container health and waits for services to become healthy.
package health

import (
	"context"
	"fmt"
	"strings"

	"github.com/artpar/storedeploy/internal/core/deployment"
	"github.com/artpar/storedeploy/internal/shell/backend"
	"github.com/docker/docker/client"
)

// =============================================================================
// Status
// =============================================================================

// Status is a container health or state as reported by the Docker engine.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusExited    Status = "exited"
	StatusMissing   Status = "missing"
)

// Ready reports whether a container in this status can serve traffic.
// Containers with a health check must be healthy; others only running.
func (s Status) Ready(hasHealthCheck bool) bool {
	if hasHealthCheck {
		return s == StatusHealthy
	}
	return s == StatusHealthy || s == StatusRunning
}

// ParseStatus normalises the output of a health inspection.
func ParseStatus(out string) Status {
	s := strings.ToLower(strings.TrimSpace(out))
	if s == "" {
		return StatusMissing
	}
	return Status(s)
}

// =============================================================================
// Prober
// =============================================================================

// Prober reads the current status of a container.
type Prober interface {
	Probe(ctx context.Context, container string) (Status, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, container string) (Status, error)

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, container string) (Status, error) {
	return f(ctx, container)
}

// =============================================================================
// Command Prober
// =============================================================================

// CommandProber inspects containers with docker inspect through a backend.
// It works for local and remote targets alike.
type CommandProber struct {
	backend backend.Backend
}

// NewCommandProber creates a prober running on b.
func NewCommandProber(b backend.Backend) *CommandProber {
	return &CommandProber{backend: b}
}

// Probe runs docker inspect. A container that does not exist yields StatusMissing.
func (p *CommandProber) Probe(ctx context.Context, container string) (Status, error) {
	result, err := p.backend.RunCommand(ctx, deployment.InspectHealth(container), backend.BestEffort)
	if err != nil {
		return "", err
	}
	if !result.Success() {
		return StatusMissing, nil
	}
	return ParseStatus(result.Stdout), nil
}

// =============================================================================
// Docker API Prober
// =============================================================================

// DockerProber inspects containers through the Docker engine API.
// It only reaches the local engine.
type DockerProber struct {
	cli *client.Client
}

// NewDockerProber creates a prober for the engine at host.
// If host is empty, the engine is taken from the environment.
func NewDockerProber(host string) (*DockerProber, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerProber{cli: cli}, nil
}

// Ping checks that the engine is reachable and returns its API version.
func (p *DockerProber) Ping(ctx context.Context) (string, error) {
	ping, err := p.cli.Ping(ctx)
	if err != nil {
		return "", fmt.Errorf("ping docker: %w", err)
	}
	return ping.APIVersion, nil
}

// Probe inspects the container. A container that does not exist yields StatusMissing.
func (p *DockerProber) Probe(ctx context.Context, container string) (Status, error) {
	resp, err := p.cli.ContainerInspect(ctx, container)
	if err != nil {
		if client.IsErrNotFound(err) {
			return StatusMissing, nil
		}
		return "", fmt.Errorf("inspect %s: %w", container, err)
	}
	if resp.State == nil {
		return StatusMissing, nil
	}
	if resp.State.Health != nil {
		return ParseStatus(string(resp.State.Health.Status)), nil
	}
	return ParseStatus(string(resp.State.Status)), nil
}

// Close closes the Docker client connection.
func (p *DockerProber) Close() error {
	return p.cli.Close()
}
