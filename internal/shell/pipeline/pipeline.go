// Package pipeline runs a store deployment as a strictly sequential series of
// stages, reporting ordered progress to a Sink and stopping at the first error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/artpar/storedeploy/internal/core/artifacts"
	"github.com/artpar/storedeploy/internal/core/compose"
	"github.com/artpar/storedeploy/internal/core/deployment"
	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/artpar/storedeploy/internal/shell/backend"
	"github.com/artpar/storedeploy/internal/shell/health"
	"github.com/artpar/storedeploy/internal/shell/objectstore"
	"github.com/google/uuid"
)

// =============================================================================
// Collaborators
// =============================================================================

// BackendFactory creates the backend of one run. workDir is where the run's
// artifacts live on the target.
type BackendFactory func(cfg domain.DeploymentConfig, workDir string) (backend.Backend, error)

// ProberFactory creates the health prober of one run.
type ProberFactory func(b backend.Backend) health.Prober

// ImageUploader copies reconciled images into object storage.
type ImageUploader interface {
	Upload(ctx context.Context, fsys fs.FS, report domain.ReconciliationReport) (objectstore.Summary, error)
}

// UploaderFactory creates the image uploader of one run.
type UploaderFactory func(b backend.Backend) (ImageUploader, error)

// Connector is implemented by backends that must connect before use.
type Connector interface {
	Connect(ctx context.Context) error
}

// StageObserver is told how long each stage took and how it ended.
type StageObserver interface {
	ObserveStage(mode domain.Mode, stage domain.Stage, elapsed time.Duration, err error)
	ObserveRun(mode domain.Mode, outcome string, elapsed time.Duration)
}

// Run outcomes reported to the StageObserver.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
)

// =============================================================================
// Options
// =============================================================================

// Options configures a Pipeline. Zero fields take defaults.
type Options struct {
	// Manifest carries the project name, health policy and secrets.
	Manifest artifacts.ManifestOptions
	// LocalRoot is the parent of local working directories.
	LocalRoot string
	// Backends selects the backend by target. Defaults to DefaultBackends.
	Backends BackendFactory
	// Probers defaults to a docker inspect prober running on the backend.
	Probers ProberFactory
	// Uploaders is optional; without it images are only reconciled.
	Uploaders UploaderFactory
	// Observer is optional.
	Observer StageObserver
	Logger   *slog.Logger
}

// DefaultLocalRoot is where local working directories are created.
func DefaultLocalRoot() string {
	return filepath.Join(os.TempDir(), "storedeploy")
}

// DefaultBackends returns a factory creating a LocalBackend or RemoteBackend
// from the given templates. The remote host comes from the target.
func DefaultBackends(local backend.LocalConfig, remote backend.RemoteConfig, logger *slog.Logger) BackendFactory {
	return func(cfg domain.DeploymentConfig, workDir string) (backend.Backend, error) {
		if target, ok := cfg.Remote(); ok {
			rc := remote
			rc.Host = target.Host
			return backend.NewRemoteBackend(rc, logger), nil
		}
		lc := local
		lc.WorkDir = workDir
		return backend.NewLocalBackend(lc, logger)
	}
}

// Dialer is implemented by backends that can tunnel connections.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// ObjectStoreUploaders returns a factory creating MinIO uploaders. Remote
// backends that implement Dialer carry the object store traffic.
func ObjectStoreUploaders(config objectstore.Config, logger *slog.Logger) UploaderFactory {
	return func(b backend.Backend) (ImageUploader, error) {
		var dial objectstore.DialFunc
		if d, ok := b.(Dialer); ok {
			dial = d.DialContext
		}
		return objectstore.NewUploader(config, dial, logger)
	}
}

// =============================================================================
// Pipeline
// =============================================================================

// Pipeline deploys stores. It holds only immutable options, so one Pipeline
// can serve concurrent runs against different targets.
type Pipeline struct {
	opts   Options
	logger *slog.Logger
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	def := artifacts.DefaultManifestOptions()
	if opts.Manifest.ProjectName == "" {
		opts.Manifest.ProjectName = def.ProjectName
	}
	if opts.Manifest.ImagesBucket == "" {
		opts.Manifest.ImagesBucket = def.ImagesBucket
	}
	if opts.Manifest.Health == (domain.HealthPolicy{}) {
		opts.Manifest.Health = def.Health
	}
	opts.Manifest.Health = opts.Manifest.Health.WithDefaults()
	if opts.LocalRoot == "" {
		opts.LocalRoot = DefaultLocalRoot()
	}
	if opts.Backends == nil {
		opts.Backends = DefaultBackends(backend.LocalConfig{}, backend.DefaultRemoteConfig(""), logger)
	}
	if opts.Probers == nil {
		opts.Probers = func(b backend.Backend) health.Prober {
			return health.NewCommandProber(b)
		}
	}
	return &Pipeline{
		opts:   opts,
		logger: logger.With("component", "pipeline"),
	}
}

// WorkDir returns the artifact directory of cfg's target.
func (p *Pipeline) WorkDir(cfg domain.DeploymentConfig) string {
	if _, ok := cfg.Remote(); ok {
		return deployment.RemoteWorkDir(p.opts.Manifest.ProjectName)
	}
	return filepath.Join(p.opts.LocalRoot, p.opts.Manifest.ProjectName)
}

// Run deploys cfg, reporting progress to sink.
//
// It returns the result only when every stage succeeded. Otherwise it returns
// a *domain.DeploymentError, or ErrCanceled when ctx was cancelled between
// stages or while waiting on health checks. Either way exactly one terminal
// event is emitted.
//
// Backend calls run on a context detached from ctx, so a command in flight
// completes before cancellation is honoured.
func (p *Pipeline) Run(ctx context.Context, cfg domain.DeploymentConfig, sink Sink) (domain.DeploymentResult, error) {
	r := &run{
		p:       p,
		cfg:     cfg,
		mode:    cfg.Mode(),
		em:      newEmitter(sink),
		project: p.opts.Manifest.ProjectName,
		workDir: p.WorkDir(cfg),
		logger:  p.logger.With("run_id", uuid.NewString(), "mode", string(cfg.Mode())),
	}
	r.compose = deployment.NewCompose(r.project, r.workDir)

	start := time.Now()
	result, err := r.execute(ctx)

	if p.opts.Observer != nil {
		outcome := OutcomeSucceeded
		switch {
		case errors.Is(err, ErrCanceled):
			outcome = OutcomeCanceled
		case err != nil:
			outcome = OutcomeFailed
		}
		p.opts.Observer.ObserveRun(r.mode, outcome, time.Since(start))
	}
	return result, err
}

// =============================================================================
// Run
// =============================================================================

// run holds the state of one Run call.
type run struct {
	p       *Pipeline
	cfg     domain.DeploymentConfig
	mode    domain.Mode
	em      *emitter
	stage   domain.Stage // stage in progress
	logger  *slog.Logger
	project string
	workDir string
	compose deployment.Compose

	bctx     context.Context // ctx without cancellation, for backend calls
	backend  backend.Backend
	poller   *health.Poller
	manifest string
	proxy    string
	spec     *compose.ParsedSpec
	counts   map[string]int
	result   domain.DeploymentResult
}

// step runs one stage. ctx is the caller's context and only bounds waits;
// backend calls use r.bctx.
type step func(ctx context.Context) error

func (r *run) steps() map[domain.Stage]step {
	return map[domain.Stage]step{
		domain.StageConnect:           r.connect,
		domain.StageVerifyRuntime:     r.verifyRuntime,
		domain.StageGenerateArtifacts: r.generateArtifacts,
		domain.StageTransferArtifacts: r.transferArtifacts,
		domain.StageStartContainers:   r.startContainers,
		domain.StageConfigureProxy:    r.configureProxy,
		domain.StageReconcileImages:   r.reconcileImages,
		domain.StageSeedDatabase:      r.seedDatabase,
		domain.StageConfigurePayment:  r.configurePayment,
		domain.StageApplyTheme:        r.applyTheme,
		domain.StageHealthCheck:       r.healthCheck,
		domain.StageFinalize:          r.finalize,
	}
}

func (r *run) execute(ctx context.Context) (domain.DeploymentResult, error) {
	stages := domain.StagesFor(r.mode)
	r.logger.Info("deployment started", "project", r.project, "work_dir", r.workDir)

	// Everything that can fail without I/O fails here, before any side effect.
	if err := domain.ValidateConfig(r.cfg); err != nil {
		return r.fail(stages[0], domain.NewDeploymentError(0, domain.KindValidation, err.Error(), err))
	}
	if err := r.render(); err != nil {
		return r.fail(domain.StageGenerateArtifacts, newFailure(domain.StageGenerateArtifacts, err))
	}
	if ctx.Err() != nil {
		return r.cancel(stages[0])
	}

	b, err := r.p.opts.Backends(r.cfg, r.workDir)
	if err != nil {
		return r.fail(stages[0], newFailure(stages[0], err))
	}
	r.backend = b
	defer func() {
		if err := b.Close(); err != nil {
			r.logger.Warn("failed to close backend", "error", err)
		}
	}()
	r.poller = health.NewPoller(detachedProber{r.p.opts.Probers(b)}, r.p.opts.Manifest.Health, r.logger).
		OnAttempt(r.reportAttempt)

	// Backend calls never see the caller's cancellation.
	r.bctx = context.WithoutCancel(ctx)
	steps := r.steps()

	for _, stage := range stages {
		if ctx.Err() != nil {
			return r.cancel(stage)
		}

		r.stage = stage
		start := time.Now()
		r.logger.Debug("stage started", "stage", stage.String())
		err := steps[stage](ctx)
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			r.observe(stage, start, err)
			return r.cancel(stage)
		}
		if err != nil {
			failure := newFailure(stage, err)
			r.observe(stage, start, failure)
			return r.fail(stage, failure)
		}
		r.observe(stage, start, nil)
	}

	r.logger.Info("deployment finished", "store_url", r.result.StoreURL)
	return r.result, nil
}

func (r *run) observe(stage domain.Stage, start time.Time, err error) {
	if r.p.opts.Observer != nil {
		r.p.opts.Observer.ObserveStage(r.mode, stage, time.Since(start), err)
	}
}

func (r *run) fail(stage domain.Stage, err *domain.DeploymentError) (domain.DeploymentResult, error) {
	r.logger.Error("deployment failed",
		"stage", stage.String(),
		"kind", string(err.Kind),
		"error", err.Message,
	)
	r.em.terminal(stage, fmt.Sprintf("deployment failed at %s (%s): %s", stage, err.Kind, err.Message))
	return domain.DeploymentResult{}, err
}

func (r *run) cancel(stage domain.Stage) (domain.DeploymentResult, error) {
	r.logger.Warn("deployment cancelled", "stage", stage.String())
	r.em.terminal(stage, fmt.Sprintf("deployment cancelled before %s completed", stage))
	return domain.DeploymentResult{}, fmt.Errorf("%w at %s", ErrCanceled, stage)
}

// render produces both artifacts. It is pure.
func (r *run) render() error {
	manifest, err := artifacts.RenderManifest(r.cfg, r.p.opts.Manifest)
	if err != nil {
		return err
	}
	proxy, err := artifacts.RenderProxyConfig(r.cfg, r.p.opts.Manifest)
	if err != nil {
		return err
	}
	r.manifest, r.proxy = manifest, proxy
	return nil
}

// detachedProber probes on a context that ignores cancellation, while the
// poller keeps waiting on the caller's context.
type detachedProber struct {
	inner health.Prober
}

func (d detachedProber) Probe(ctx context.Context, container string) (health.Status, error) {
	return d.inner.Probe(context.WithoutCancel(ctx), container)
}
