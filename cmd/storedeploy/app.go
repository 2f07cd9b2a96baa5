package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/artpar/storedeploy/internal/core/artifacts"
	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/artpar/storedeploy/internal/shell/backend"
	"github.com/artpar/storedeploy/internal/shell/health"
	"github.com/artpar/storedeploy/internal/shell/metrics"
	"github.com/artpar/storedeploy/internal/shell/pipeline"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Wiring
// =============================================================================

// app holds what every command needs.
type app struct {
	config *Config
	logger *slog.Logger
}

// pipelineOptions builds the pipeline options from the config. The returned
// func releases the Docker client when one was created.
func (a *app) pipelineOptions(observer pipeline.StageObserver) (pipeline.Options, func(), error) {
	cfg := a.config
	opts := pipeline.Options{
		Manifest: artifacts.ManifestOptions{
			ProjectName:  cfg.Project.Name,
			Health:       cfg.Health,
			JWTSecret:    cfg.Project.JWTSecret,
			CookieSecret: cfg.Project.CookieSecret,
			ImagesBucket: cfg.ObjectStore.Bucket,
		},
		LocalRoot: cfg.Workdir.Root,
		Backends:  pipeline.DefaultBackends(cfg.Workdir.Local(), cfg.SSH.Remote(), a.logger),
		Observer:  observer,
		Logger:    a.logger,
	}
	if cfg.ObjectStore.Enabled {
		opts.Uploaders = pipeline.ObjectStoreUploaders(cfg.ObjectStore.Config, a.logger)
	}

	release := func() {}
	if cfg.Docker.APIProbe {
		docker, err := health.NewDockerProber(cfg.Docker.Host)
		if err != nil {
			return pipeline.Options{}, nil, err
		}
		release = func() { docker.Close() }
		opts.Probers = localDockerProbers(docker)
	}
	return opts, release, nil
}

// localDockerProbers probes local runs through the Docker API and remote
// runs through docker inspect on the host.
func localDockerProbers(docker health.Prober) pipeline.ProberFactory {
	return func(b backend.Backend) health.Prober {
		if _, ok := b.(*backend.LocalBackend); ok {
			return docker
		}
		return health.NewCommandProber(b)
	}
}

// trackedDeployer counts runs in flight.
type trackedDeployer struct {
	inner   *pipeline.Pipeline
	metrics *metrics.Metrics
}

func (d trackedDeployer) Run(ctx context.Context, cfg domain.DeploymentConfig, sink pipeline.Sink) (domain.DeploymentResult, error) {
	done := d.metrics.Track()
	defer done()
	return d.inner.Run(ctx, cfg, sink)
}

// =============================================================================
// Store Files
// =============================================================================

// loadStore reads a deployment config from a JSON or YAML file.
func loadStore(path string) (domain.DeploymentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.DeploymentConfig{}, fmt.Errorf("read store file: %w", err)
	}

	var cfg domain.DeploymentConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return domain.DeploymentConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
