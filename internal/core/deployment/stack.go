package deployment

// =============================================================================
// Store Stack
// =============================================================================

// Service names of the store stack.
const (
	ServicePostgres = "postgres"
	ServiceRedis    = "redis"
	ServiceMinio    = "minio"
	ServiceMedusa   = "medusa"
	ServiceCaddy    = "caddy"
)

// Images of the store stack.
const (
	ImagePostgres = "postgres:15-alpine"
	ImageRedis    = "redis:7-alpine"
	ImageMinio    = "minio/minio:latest"
	ImageMedusa   = "medusajs/medusa:latest"
	ImageCaddy    = "caddy:2-alpine"
)

// Database credentials used inside the stack network.
const (
	DatabaseName     = "medusa_db"
	DatabaseUser     = "medusa"
	DatabasePassword = "medusa_password"
)

// Object storage settings.
const (
	MinioAccessKey = "minioadmin"
	MinioSecretKey = "minioadmin"
	ImagesBucket   = "medusa-images"
)

// Ports.
const (
	PostgresPort  = 5432
	RedisPort     = 6379
	MinioPort     = 9000
	MinioConsole  = 9001
	MedusaPort    = 9000
	MinioHostPort = 9002
	HTTPPort      = 80
	HTTPSPort     = 443
)

// Names and paths shared by the manifest, the proxy config and the pipeline.
const (
	NetworkName    = "medusa_network"
	ProxyConfig    = "Caddyfile"
	ManifestFile   = "docker-compose.yml"
	FrontendDir    = "frontend"
	ProxyWebRoot   = "/var/www/frontend"
	ProxyAccessLog = "/var/log/caddy/access.log"
)

// DefaultProjectName is the compose project name used when none is configured.
const DefaultProjectName = "medusa-project"

// Local CORS origins of the storefront and admin dev servers.
const (
	LocalStoreCORS = "http://localhost:3000,http://localhost:8000"
	LocalAdminCORS = "http://localhost:7000,http://localhost:7001"
)

// StackServices returns the services deployed for a target, in declaration order.
// The proxy only exists for remote targets.
func StackServices(remote bool) []string {
	services := []string{ServicePostgres, ServiceRedis, ServiceMinio, ServiceMedusa}
	if remote {
		services = append(services, ServiceCaddy)
	}
	return services
}
