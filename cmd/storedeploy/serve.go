package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/artpar/storedeploy/internal/shell/api"
	"github.com/artpar/storedeploy/internal/shell/health"
	"github.com/artpar/storedeploy/internal/shell/metrics"
	"github.com/artpar/storedeploy/internal/shell/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Serve
// =============================================================================

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the deploy API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return a.serve(ctx)
		},
	}
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (a *app) serve(ctx context.Context) error {
	cfg := a.config

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	opts, release, err := a.pipelineOptions(m)
	if err != nil {
		return &CommandError{Op: "docker client", Err: err, ExitCode: ExitConfigError}
	}
	defer release()

	apiOpts := api.Options{
		Deployer: trackedDeployer{inner: pipeline.New(opts), metrics: m},
		Checker:  api.RemoteChecker(cfg.SSH.Remote(), a.logger),
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Token:    cfg.Server.Token,
		Logger:   a.logger,
	}
	if cfg.Docker.ReadyCheck {
		docker, err := health.NewDockerProber(cfg.Docker.Host)
		if err != nil {
			return &CommandError{Op: "docker client", Err: err, ExitCode: ExitConfigError}
		}
		defer docker.Close()
		apiOpts.Docker = docker
	}
	if cfg.Server.Token == "" {
		a.logger.Warn("API token not set, /api/v1 is unauthenticated", "address", cfg.Server.Address())
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      api.NewHandler(apiOpts).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "address", srv.Addr, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return &CommandError{Op: "listen", Err: err, ExitCode: ExitHTTPServerError}
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return &CommandError{Op: "shutdown", Err: fmt.Errorf("graceful shutdown: %w", err), ExitCode: ExitHTTPServerError}
		}
		return nil
	})

	return g.Wait()
}
