package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/artpar/storedeploy/internal/core/compose"
	"github.com/artpar/storedeploy/internal/core/deployment"
	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/artpar/storedeploy/internal/shell/backend"
	"github.com/artpar/storedeploy/internal/shell/health"
	"github.com/artpar/storedeploy/internal/shell/images"
)

// =============================================================================
// Connection and Runtime
// =============================================================================

func (r *run) connect(_ context.Context) error {
	target, _ := r.cfg.Remote()
	r.em.emit(domain.StageConnect, fmt.Sprintf("connecting to %s", target.Host))

	if c, ok := r.backend.(Connector); ok {
		if err := c.Connect(r.bctx); err != nil {
			return err
		}
	}
	r.em.emit(domain.StageConnect, fmt.Sprintf("connected and authenticated on %s", target.Host))
	return nil
}

func (r *run) verifyRuntime(_ context.Context) error {
	r.em.emit(domain.StageVerifyRuntime, "checking docker and docker compose")
	for _, cmd := range deployment.RuntimeChecks() {
		result, err := r.backend.RunCommand(r.bctx, cmd, backend.Required)
		if err != nil {
			return err
		}
		r.em.emit(domain.StageVerifyRuntime, fmt.Sprintf("%s: %s", cmd, firstLine(result.Stdout)))
	}
	return nil
}

// =============================================================================
// Artifacts
// =============================================================================

func (r *run) generateArtifacts(_ context.Context) error {
	r.em.emit(domain.StageGenerateArtifacts, "validating docker-compose.yml")

	spec, err := compose.ParseManifest(r.manifest)
	if err != nil {
		return err
	}
	if err := compose.RequireServices(spec, deployment.StackServices(r.mode == domain.ModeRemote)...); err != nil {
		return err
	}
	if err := compose.RequireHealthChecks(spec,
		deployment.ServicePostgres,
		deployment.ServiceRedis,
		deployment.ServiceMinio,
		deployment.ServiceMedusa,
	); err != nil {
		return err
	}
	r.spec = spec
	r.em.emit(domain.StageGenerateArtifacts,
		fmt.Sprintf("manifest declares %s", strings.Join(spec.ServiceNames(), ", ")))

	if r.mode == domain.ModeRemote {
		return nil
	}
	if err := r.writeArtifacts(); err != nil {
		return err
	}
	r.em.emit(domain.StageGenerateArtifacts, fmt.Sprintf("artifacts written to %s", r.workDir))
	return nil
}

func (r *run) transferArtifacts(_ context.Context) error {
	r.em.emit(domain.StageTransferArtifacts, fmt.Sprintf("uploading artifacts to %s", r.workDir))

	frontend := deployment.ArtifactPath(r.workDir, deployment.FrontendDir)
	if _, err := r.backend.RunCommand(r.bctx, deployment.MakeDir(frontend), backend.Required); err != nil {
		return err
	}
	if err := r.writeArtifacts(); err != nil {
		return err
	}
	r.em.emit(domain.StageTransferArtifacts, "docker-compose.yml and Caddyfile uploaded")
	return nil
}

func (r *run) writeArtifacts() error {
	files := []struct {
		name string
		data string
	}{
		{deployment.ManifestFile, r.manifest},
		{deployment.ProxyConfig, r.proxy},
	}
	for _, f := range files {
		if err := r.backend.PutFile(r.bctx, []byte(f.data), deployment.ArtifactPath(r.workDir, f.name)); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Containers
// =============================================================================

// startContainers removes any previous deployment of the project, starts the
// stack and waits for every health-checked service in dependency order.
func (r *run) startContainers(ctx context.Context) error {
	r.em.emit(domain.StageStartContainers, "stopping previous deployment")
	if _, err := r.backend.RunCommand(r.bctx, r.compose.Down(), backend.BestEffort); err != nil {
		return err
	}
	names := deployment.ContainerNames(r.project, deployment.StackServices(r.mode == domain.ModeRemote))
	if _, err := r.backend.RunCommand(r.bctx, deployment.RemoveContainers(names), backend.BestEffort); err != nil {
		return err
	}

	r.em.emit(domain.StageStartContainers, "starting containers")
	if _, err := r.backend.RunCommand(r.bctx, r.compose.Up(), backend.Required); err != nil {
		return err
	}

	for _, svc := range deployment.HealthCheckedServices(r.spec) {
		r.em.emit(domain.StageStartContainers, fmt.Sprintf("waiting for %s to become healthy", svc.Name))
		if err := r.poller.WaitHealthy(ctx, svc.Name, deployment.ContainerName(r.project, svc.Name), true); err != nil {
			return err
		}
		r.em.emit(domain.StageStartContainers, fmt.Sprintf("%s is healthy", svc.Name))
	}
	return nil
}

// reportAttempt reports a probe that found the service not ready and will be retried.
func (r *run) reportAttempt(a health.Attempt) {
	if a.Ready || a.Number >= a.Of {
		return
	}
	state := string(a.Status)
	if a.Err != nil {
		state = a.Err.Error()
	}
	r.em.emit(r.stage, fmt.Sprintf("%s not ready (%s), attempt %d/%d", a.Service, state, a.Number, a.Of))
}

func (r *run) configureProxy(ctx context.Context) error {
	r.em.emit(domain.StageConfigureProxy, "waiting for caddy")
	container := deployment.ContainerName(r.project, deployment.ServiceCaddy)
	if err := r.poller.WaitHealthy(ctx, deployment.ServiceCaddy, container, false); err != nil {
		return err
	}

	r.em.emit(domain.StageConfigureProxy, "validating Caddyfile")
	if _, err := r.backend.RunCommand(r.bctx, r.compose.ProxyValidate(), backend.Required); err != nil {
		return err
	}
	if _, err := r.backend.RunCommand(r.bctx, r.compose.ProxyReload(), backend.Required); err != nil {
		return err
	}
	target, _ := r.cfg.Remote()
	r.em.emit(domain.StageConfigureProxy, fmt.Sprintf("proxy serving %s", target.Domain))
	return nil
}

// =============================================================================
// Images
// =============================================================================

func (r *run) reconcileImages(_ context.Context) error {
	if r.cfg.ImagesDirectory == "" {
		r.em.emit(domain.StageReconcileImages, "no image directory configured, skipping")
		return nil
	}

	r.em.emit(domain.StageReconcileImages, fmt.Sprintf("scanning %s", r.cfg.ImagesDirectory))
	report, err := images.ReconcileDir(r.cfg.ImagesDirectory, r.cfg.Products)
	if err != nil {
		return err
	}
	r.counts = images.ImageCounts(report)
	r.em.emit(domain.StageReconcileImages, Summarize(report))

	if r.p.opts.Uploaders == nil || report.TotalImageFiles == 0 {
		return nil
	}
	uploader, err := r.p.opts.Uploaders(r.backend)
	if err != nil {
		return err
	}
	summary, err := uploader.Upload(r.bctx, os.DirFS(r.cfg.ImagesDirectory), report)
	if err != nil {
		return err
	}
	r.em.emit(domain.StageReconcileImages,
		fmt.Sprintf("uploaded %d images of %d products to %s", summary.Files, summary.Products, r.p.opts.Manifest.ImagesBucket))
	return nil
}

// Summarize renders the counts of a reconciliation report as one line.
func Summarize(report domain.ReconciliationReport) string {
	return fmt.Sprintf("%d products with images, %d without images, %d missing folders, %d orphan folders, %d image files",
		report.MatchedWithImages,
		report.MatchedWithoutImages,
		len(report.MissingFolders),
		len(report.OrphanFolders),
		report.TotalImageFiles,
	)
}

// =============================================================================
// Database
// =============================================================================

func (r *run) seedDatabase(_ context.Context) error {
	r.em.emit(domain.StageSeedDatabase, fmt.Sprintf("seeding %d products", len(r.cfg.Products)))
	sql := deployment.SeedSQL(r.cfg.Products, r.counts)
	if err := r.applySQL(deployment.SeedFile, sql); err != nil {
		return err
	}
	r.em.emit(domain.StageSeedDatabase, "catalog seeded")
	return nil
}

func (r *run) configurePayment(_ context.Context) error {
	gateway := r.cfg.Payment.GatewayName()
	r.em.emit(domain.StageConfigurePayment, fmt.Sprintf("configuring %s", gateway))

	result := domain.ResultFor(r.cfg)
	sql := deployment.SettingsSQL(deployment.PaymentSettings(r.cfg, result.WebhookURL))
	if err := r.applySQL(deployment.PaymentFile, sql); err != nil {
		return err
	}

	mode := "production"
	if r.cfg.Payment.TestMode {
		mode = "test"
	}
	r.em.emit(domain.StageConfigurePayment, fmt.Sprintf("%s configured in %s mode", gateway, mode))
	return nil
}

func (r *run) applyTheme(_ context.Context) error {
	r.em.emit(domain.StageApplyTheme, "applying theme")
	sql := deployment.SettingsSQL(deployment.ThemeSettings(r.cfg))
	if err := r.applySQL(deployment.ThemeFile, sql); err != nil {
		return err
	}
	msg := "theme applied"
	if r.cfg.Design.School != "" {
		msg = fmt.Sprintf("theme applied for %s", r.cfg.Design.School)
	}
	r.em.emit(domain.StageApplyTheme, msg)
	return nil
}

// applySQL places a script in the working directory and pipes it into psql.
func (r *run) applySQL(name, sql string) error {
	p := deployment.ArtifactPath(r.workDir, name)
	if err := r.backend.PutFile(r.bctx, []byte(sql), p); err != nil {
		return err
	}
	_, err := r.backend.RunCommand(r.bctx, r.compose.Psql(p), backend.Required)
	return err
}

// =============================================================================
// Verification
// =============================================================================

func (r *run) healthCheck(ctx context.Context) error {
	services := deployment.TopologicalSort(r.spec.Services)
	for _, svc := range services {
		container := deployment.ContainerName(r.project, svc.Name)
		if err := r.poller.Verify(ctx, svc.Name, container, svc.HealthCheck != nil); err != nil {
			return err
		}
	}
	r.em.emit(domain.StageHealthCheck, fmt.Sprintf("all %d services healthy", len(services)))
	return nil
}

func (r *run) finalize(_ context.Context) error {
	r.result = domain.ResultFor(r.cfg)
	r.em.emit(domain.StageFinalize, fmt.Sprintf("admin panel: %s/app", r.result.StoreURL))
	r.em.emit(domain.StageFinalize, fmt.Sprintf("payment webhook: %s", r.result.WebhookURL))
	r.em.terminal(domain.StageFinalize, fmt.Sprintf("store deployed at %s", r.result.StoreURL))
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
