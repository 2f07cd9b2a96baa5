// Package api provides the HTTP boundary of the deployer: deployments streamed
// as server-sent events, image scans and server checks.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/artpar/storedeploy/internal/shell/api/middleware"
	"github.com/artpar/storedeploy/internal/shell/backend"
	"github.com/artpar/storedeploy/internal/shell/images"
	"github.com/artpar/storedeploy/internal/shell/pipeline"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// =============================================================================
// Collaborators
// =============================================================================

// Deployer runs one deployment. *pipeline.Pipeline implements it.
type Deployer interface {
	Run(ctx context.Context, cfg domain.DeploymentConfig, sink pipeline.Sink) (domain.DeploymentResult, error)
}

// ServerChecker connects to a host and reports what it found.
type ServerChecker func(ctx context.Context, req CheckServerRequest) (backend.ServerReport, error)

// Pinger reports whether the local container runtime answers.
type Pinger interface {
	Ping(ctx context.Context) (string, error)
}

// RemoteChecker returns a ServerChecker that connects with template, taking
// host, port and user from the request.
func RemoteChecker(template backend.RemoteConfig, logger *slog.Logger) ServerChecker {
	return func(ctx context.Context, req CheckServerRequest) (backend.ServerReport, error) {
		cfg := template
		cfg.Host = req.Host
		if req.Port != 0 {
			cfg.Port = req.Port
		}
		if req.User != "" {
			cfg.User = req.User
		}
		return backend.CheckServer(ctx, cfg, logger)
	}
}

// =============================================================================
// Handler
// =============================================================================

// Options configures a Handler. Deployer is required.
type Options struct {
	Deployer Deployer
	Checker  ServerChecker
	// Docker is optional; when set /ready pings it.
	Docker Pinger
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Token protects /api/v1 when set.
	Token  string
	Logger *slog.Logger
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	deployer Deployer
	checker  ServerChecker
	docker   Pinger
	metrics  http.Handler
	auth     *middleware.AuthMiddleware
	logger   *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")
	checker := opts.Checker
	if checker == nil {
		checker = RemoteChecker(backend.DefaultRemoteConfig(""), logger)
	}
	return &Handler{
		deployer: opts.Deployer,
		checker:  checker,
		docker:   opts.Docker,
		metrics:  opts.Metrics,
		auth:     middleware.NewAuthMiddleware(middleware.AuthConfig{Token: opts.Token, Logger: logger}),
		logger:   logger,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Group(func(r chi.Router) {
		r.Use(h.jsonContentType)
		r.Get("/health", h.handleHealth)
		r.Get("/ready", h.handleReady)
	})
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.auth.Handler)

		// Streams text/event-stream once the config is accepted.
		r.Post("/deployments", h.handleDeploy)

		r.Group(func(r chi.Router) {
			r.Use(h.jsonContentType)
			r.Post("/images/scan", h.handleScanImages)
			r.Post("/servers/check", h.handleCheckServer)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := chimw.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if h.docker != nil {
		if _, err := h.docker.Ping(r.Context()); err != nil {
			h.logger.Warn("docker ping failed", "error", err)
			checks["docker"] = "failed"
			h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
				Status: "not_ready",
				Checks: checks,
			})
			return
		}
		checks["docker"] = "ok"
	}

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Deployment Handlers
// =============================================================================

// streamBuffer is how many progress events may wait for a slow client.
const streamBuffer = 256

// handleDeploy validates the config, then runs the pipeline while streaming
// progress events. The stream ends with one result or error event.
// Disconnecting cancels the run at the next stage boundary.
func (h *Handler) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var cfg domain.DeploymentConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		w.Header().Set("Content-Type", "application/json")
		h.writeError(w, http.StatusBadRequest, "invalid deployment config: "+err.Error(), "invalid_json")
		return
	}
	if err := domain.ValidateConfig(cfg); err != nil {
		w.Header().Set("Content-Type", "application/json")
		h.writeValidationError(w, err)
		return
	}

	stream, ok := newEventStream(w, h.logger)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported", "internal_error")
		return
	}

	logger := h.logger.With("request_id", chimw.GetReqID(r.Context()))
	logger.Info("deployment requested",
		"mode", string(cfg.Mode()),
		"products", len(cfg.Products),
	)

	// The pipeline only ever offers events to the channel; a slow client
	// stalls the writer goroutine, never a stage.
	events := pipeline.NewChannelSink(streamBuffer)
	written := make(chan struct{})
	go func() {
		defer close(written)
		for e := range events.Events() {
			stream.Emit(e)
		}
	}()

	result, err := h.deployer.Run(r.Context(), cfg, pipeline.MultiSink(events, pipeline.LogSink(logger)))
	events.Close()
	<-written
	if n := events.Dropped(); n > 0 {
		logger.Warn("progress events dropped", "count", n)
	}

	if err != nil {
		stream.send("", EventError, deploymentErrorResponse(err))
		return
	}
	stream.send("", EventResult, result)
}

func deploymentErrorResponse(err error) ErrorResponse {
	var de *domain.DeploymentError
	switch {
	case errors.Is(err, pipeline.ErrCanceled):
		return ErrorResponse{Error: err.Error(), Code: "canceled"}
	case errors.As(err, &de):
		resp := ErrorResponse{Error: de.Message, Code: string(de.Kind)}
		if de.Stage.IsValid() {
			resp.Stage = de.Stage.String()
		}
		return resp
	default:
		return ErrorResponse{Error: err.Error(), Code: "internal_error"}
	}
}

// =============================================================================
// Image Handlers
// =============================================================================

func (h *Handler) handleScanImages(w http.ResponseWriter, r *http.Request) {
	var req ScanImagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "invalid_json")
		return
	}
	if err := domain.ValidateStruct(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	report, err := images.ReconcileDir(req.Directory, req.Products)
	if err != nil {
		if errors.Is(err, domain.ErrFilesystem) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error(), string(domain.KindFilesystem))
			return
		}
		h.logger.Error("failed to scan images", "directory", req.Directory, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to scan images", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, ScanImagesResponse{
		ReconciliationReport: report,
		Summary:              pipeline.Summarize(report),
	})
}

// =============================================================================
// Server Handlers
// =============================================================================

func (h *Handler) handleCheckServer(w http.ResponseWriter, r *http.Request) {
	var req CheckServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "invalid_json")
		return
	}
	if err := domain.ValidateStruct(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	report, err := h.checker(r.Context(), req)
	if err != nil {
		h.logger.Warn("server check failed", "host", req.Host, "error", err)
		h.writeError(w, http.StatusBadGateway, err.Error(), string(pipeline.Classify(err)))
		return
	}

	h.writeJSON(w, http.StatusOK, CheckServerResponse{
		ServerReport: report,
		Ready:        report.Ready(),
	})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// writeValidationError reports config or request validation failures with
// one entry per invalid field.
func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error(), Code: string(domain.KindValidation)}
	var fields domain.ValidationErrors
	if errors.As(err, &fields) {
		resp.Fields = fields
	}
	h.writeJSON(w, http.StatusBadRequest, resp)
}
