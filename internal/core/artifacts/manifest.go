package artifacts

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/storedeploy/internal/core/deployment"
	"github.com/artpar/storedeploy/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Manifest Options
// =============================================================================

// Fallback secrets used when none are configured. Deployments that expose the
// admin publicly are expected to configure their own.
const (
	DefaultJWTSecret    = "supersecret"
	DefaultCookieSecret = "supersecret"
)

// ManifestOptions are the rendering inputs that do not come from the store config.
type ManifestOptions struct {
	ProjectName  string
	Health       domain.HealthPolicy
	JWTSecret    string
	CookieSecret string
	// ImagesBucket is where product images live. Defaults to deployment.ImagesBucket.
	ImagesBucket string
}

// DefaultManifestOptions returns options for the default project.
func DefaultManifestOptions() ManifestOptions {
	return ManifestOptions{
		ProjectName:  deployment.DefaultProjectName,
		Health:       domain.DefaultHealthPolicy(),
		ImagesBucket: deployment.ImagesBucket,
	}
}

// bucket returns the images bucket, checking its name.
func (o ManifestOptions) bucket() (string, error) {
	name := orDefault(o.ImagesBucket, deployment.ImagesBucket)
	if !bucketNamePattern.MatchString(name) {
		return "", templateError("bucket", fmt.Sprintf("invalid images bucket name %q", name))
	}
	return name, nil
}

// projectNamePattern is the compose project name rule.
var projectNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// bucketNamePattern is the S3 bucket name rule.
var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// =============================================================================
// Manifest Model
// =============================================================================

type manifest struct {
	Name     string             `yaml:"name"`
	Services map[string]service `yaml:"services"`
	Networks map[string]network `yaml:"networks"`
	Volumes  map[string]volume  `yaml:"volumes"`
}

type service struct {
	Image         string                `yaml:"image"`
	ContainerName string                `yaml:"container_name"`
	Restart       string                `yaml:"restart"`
	Command       string                `yaml:"command,omitempty"`
	DependsOn     map[string]dependency `yaml:"depends_on,omitempty"`
	Environment   map[string]string     `yaml:"environment,omitempty"`
	Ports         []string              `yaml:"ports,omitempty"`
	Volumes       []string              `yaml:"volumes,omitempty"`
	Networks      []string              `yaml:"networks"`
	HealthCheck   *healthCheck          `yaml:"healthcheck,omitempty"`
}

type dependency struct {
	Condition string `yaml:"condition"`
}

type healthCheck struct {
	Test     []string `yaml:"test,flow"`
	Interval string   `yaml:"interval"`
	Timeout  string   `yaml:"timeout"`
	Retries  int      `yaml:"retries"`
}

type network struct {
	Driver string `yaml:"driver"`
}

type volume struct{}

// =============================================================================
// RenderManifest
// =============================================================================

// RenderManifest renders the compose manifest of a store deployment.
// Equal inputs produce byte-identical output.
//
// Services: postgres, redis, minio and medusa, plus caddy for remote targets.
// Every data service carries a health check built from opts.Health and medusa
// waits for all of them with condition service_healthy. Locally, published
// ports bind to 127.0.0.1 only.
func RenderManifest(cfg domain.DeploymentConfig, opts ManifestOptions) (string, error) {
	if err := checkProject(opts.ProjectName); err != nil {
		return "", err
	}

	remote, isRemote := cfg.Remote()
	if isRemote {
		if err := checkRemote(remote); err != nil {
			return "", err
		}
	}

	health := opts.Health.WithDefaults()
	project := opts.ProjectName
	storeURL := domain.StoreURL(cfg.Target)

	m := manifest{
		Name:     project,
		Services: make(map[string]service),
		Networks: map[string]network{deployment.NetworkName: {Driver: "bridge"}},
		Volumes: map[string]volume{
			"postgres_data": {},
			"redis_data":    {},
			"minio_data":    {},
			"medusa_data":   {},
		},
	}

	base := func(name, image string) service {
		return service{
			Image:         image,
			ContainerName: deployment.ContainerName(project, name),
			Restart:       "unless-stopped",
			Networks:      []string{deployment.NetworkName},
		}
	}

	postgres := base(deployment.ServicePostgres, deployment.ImagePostgres)
	postgres.Environment = map[string]string{
		"POSTGRES_DB":       deployment.DatabaseName,
		"POSTGRES_USER":     deployment.DatabaseUser,
		"POSTGRES_PASSWORD": deployment.DatabasePassword,
	}
	postgres.Volumes = []string{"postgres_data:/var/lib/postgresql/data"}
	postgres.HealthCheck = newHealthCheck(health, "CMD-SHELL",
		fmt.Sprintf("pg_isready -U %s -d %s", deployment.DatabaseUser, deployment.DatabaseName))
	m.Services[deployment.ServicePostgres] = postgres

	redis := base(deployment.ServiceRedis, deployment.ImageRedis)
	redis.Volumes = []string{"redis_data:/data"}
	redis.HealthCheck = newHealthCheck(health, "CMD", "redis-cli", "ping")
	m.Services[deployment.ServiceRedis] = redis

	minio := base(deployment.ServiceMinio, deployment.ImageMinio)
	minio.Command = fmt.Sprintf(`server /data --console-address ":%d"`, deployment.MinioConsole)
	minio.Environment = map[string]string{
		"MINIO_ROOT_USER":     deployment.MinioAccessKey,
		"MINIO_ROOT_PASSWORD": deployment.MinioSecretKey,
	}
	minio.Volumes = []string{"minio_data:/data"}
	minio.Ports = []string{loopbackPort(deployment.MinioHostPort, deployment.MinioPort)}
	minio.HealthCheck = newHealthCheck(health, "CMD", "mc", "ready", "local")
	m.Services[deployment.ServiceMinio] = minio

	env, err := medusaEnv(cfg, storeURL, opts)
	if err != nil {
		return "", err
	}
	medusa := base(deployment.ServiceMedusa, deployment.ImageMedusa)
	medusa.DependsOn = map[string]dependency{
		deployment.ServicePostgres: {Condition: "service_healthy"},
		deployment.ServiceRedis:    {Condition: "service_healthy"},
		deployment.ServiceMinio:    {Condition: "service_healthy"},
	}
	medusa.Environment = env
	medusa.Volumes = []string{"medusa_data:/app/medusa"}
	medusa.HealthCheck = newHealthCheck(health, "CMD-SHELL",
		fmt.Sprintf("wget -q -O /dev/null http://localhost:%d/health || exit 1", deployment.MedusaPort))
	if !isRemote {
		medusa.Ports = []string{loopbackPort(domain.LocalStorePort, deployment.MedusaPort)}
	}
	m.Services[deployment.ServiceMedusa] = medusa

	if isRemote {
		caddy := base(deployment.ServiceCaddy, deployment.ImageCaddy)
		caddy.DependsOn = map[string]dependency{
			deployment.ServiceMedusa: {Condition: "service_healthy"},
		}
		caddy.Ports = []string{
			fmt.Sprintf("%d:%d", deployment.HTTPPort, deployment.HTTPPort),
			fmt.Sprintf("%d:%d", deployment.HTTPSPort, deployment.HTTPSPort),
		}
		caddy.Volumes = []string{
			"./" + deployment.ProxyConfig + ":" + deployment.ProxyConfigPath + ":ro",
			"./" + deployment.FrontendDir + ":" + deployment.ProxyWebRoot + ":ro",
			"caddy_data:/data",
			"caddy_config:/config",
			"caddy_logs:/var/log/caddy",
		}
		m.Services[deployment.ServiceCaddy] = caddy
		m.Volumes["caddy_data"] = volume{}
		m.Volumes["caddy_config"] = volume{}
		m.Volumes["caddy_logs"] = volume{}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return "", templateError("", err.Error())
	}
	if err := enc.Close(); err != nil {
		return "", templateError("", err.Error())
	}
	return buf.String(), nil
}

// medusaEnv builds the application server environment. Values are escaped
// for compose so tokens reach the container verbatim.
func medusaEnv(cfg domain.DeploymentConfig, storeURL string, opts ManifestOptions) (map[string]string, error) {
	storeCORS, adminCORS := deployment.LocalStoreCORS, deployment.LocalAdminCORS
	if remote, ok := cfg.Remote(); ok {
		storeCORS = "https://" + remote.Domain
		adminCORS = "https://" + remote.Domain
	}

	bucket, err := opts.bucket()
	if err != nil {
		return nil, err
	}
	gateway := strings.ToUpper(cfg.Payment.GatewayName())
	databaseURL := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		deployment.DatabaseUser, deployment.DatabasePassword,
		deployment.ServicePostgres, deployment.PostgresPort, deployment.DatabaseName)

	env := map[string]string{
		"DATABASE_URL":     databaseURL,
		"REDIS_URL":        fmt.Sprintf("redis://%s:%d", deployment.ServiceRedis, deployment.RedisPort),
		"JWT_SECRET":       orDefault(opts.JWTSecret, DefaultJWTSecret),
		"COOKIE_SECRET":    orDefault(opts.CookieSecret, DefaultCookieSecret),
		"STORE_CORS":       storeCORS,
		"ADMIN_CORS":       adminCORS,
		"STORE_URL":        storeURL,
		"MINIO_ENDPOINT":   fmt.Sprintf("http://%s:%d", deployment.ServiceMinio, deployment.MinioPort),
		"MINIO_BUCKET":     bucket,
		"MINIO_ACCESS_KEY": deployment.MinioAccessKey,
		"MINIO_SECRET_KEY": deployment.MinioSecretKey,
	}
	env[gateway+"_ACCESS_TOKEN"] = cfg.Payment.AccessToken
	env[gateway+"_TEST_MODE"] = strconv.FormatBool(cfg.Payment.TestMode)
	if cfg.Payment.WebhookSecret != "" {
		env[gateway+"_WEBHOOK_SECRET"] = cfg.Payment.WebhookSecret
	}

	if err := extraEnv("identity", cfg.Identity.Extra, env); err != nil {
		return nil, err
	}
	if err := extraEnv("design", cfg.Design.Extra, env); err != nil {
		return nil, err
	}
	if err := extraEnv("payment", cfg.Payment.Extra, env); err != nil {
		return nil, err
	}

	for k, v := range env {
		env[k] = composeEscape(v)
	}
	return env, nil
}

func newHealthCheck(p domain.HealthPolicy, test ...string) *healthCheck {
	return &healthCheck{
		Test:     test,
		Interval: formatDuration(p.Interval),
		Timeout:  formatDuration(p.Timeout),
		Retries:  p.Retries,
	}
}

// formatDuration renders a Go duration the way compose expects, e.g. 10s or 1m30s.
func formatDuration(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}

func loopbackPort(host, container int) string {
	return fmt.Sprintf("127.0.0.1:%d:%d", host, container)
}

func checkProject(name string) error {
	if name == "" {
		return templateError("project", "project name is empty")
	}
	if !projectNamePattern.MatchString(name) {
		return templateError("project", fmt.Sprintf("%q is not a valid compose project name", name))
	}
	return nil
}

func checkRemote(remote domain.RemoteTarget) error {
	if strings.TrimSpace(remote.Host) == "" {
		return templateError("server.host", "remote deployments need a host")
	}
	if strings.TrimSpace(remote.Domain) == "" {
		return templateError("server.domain", "remote deployments need a domain")
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
