package deployment

import (
	"fmt"
	"path"
	"strings"

	"github.com/alessio/shellescape"
)

// =============================================================================
// Shell Command Builders
// =============================================================================

// Commands are POSIX shell strings run by an execution backend, locally
// through sh -c or remotely through an SSH session. Every interpolated value
// is quoted.

// ProxyConfigPath is where the proxy container mounts its config.
const ProxyConfigPath = "/etc/caddy/Caddyfile"

// HealthFormat is the docker inspect template that yields a health status,
// falling back to the container state for services without a health check.
const HealthFormat = `{{if .State.Health}}{{.State.Health.Status}}{{else}}{{.State.Status}}{{end}}`

// Compose builds docker compose invocations for one project.
type Compose struct {
	Project  string
	Manifest string // absolute path of the manifest file
}

// NewCompose creates a Compose for the manifest in workDir.
func NewCompose(project, workDir string) Compose {
	return Compose{
		Project:  project,
		Manifest: ArtifactPath(workDir, ManifestFile),
	}
}

func (c Compose) base() string {
	return fmt.Sprintf("docker compose -p %s -f %s", quote(c.Project), quote(c.Manifest))
}

// Down stops and removes the project's containers, including orphans.
func (c Compose) Down() string {
	return c.base() + " down --remove-orphans"
}

// Up creates or recreates the project's containers in the background.
func (c Compose) Up() string {
	return c.base() + " up -d"
}

// Exec runs a command inside a service container without a TTY.
func (c Compose) Exec(service string, args ...string) string {
	return c.base() + " exec -T " + quote(service) + " " + quoteAll(args)
}

// ExecWithInput runs a command inside a service container, feeding a host file on stdin.
func (c Compose) ExecWithInput(service, inputPath string, args ...string) string {
	return c.Exec(service, args...) + " < " + quote(inputPath)
}

// RuntimeChecks returns the commands proving a usable container runtime.
func RuntimeChecks() []string {
	return []string{
		"docker version --format '{{.Server.Version}}'",
		"docker compose version",
	}
}

// RemoveContainers force-removes containers by name. Missing containers are not an error
// for docker rm -f, but the call is still made best-effort by the pipeline.
func RemoveContainers(names []string) string {
	return "docker rm -f " + quoteAll(names)
}

// InspectHealth prints the health status of a container.
func InspectHealth(container string) string {
	return fmt.Sprintf("docker inspect --format %s %s", quote(HealthFormat), quote(container))
}

// MakeDir creates a directory and its parents.
func MakeDir(dir string) string {
	return "mkdir -p " + quote(dir)
}

// WriteFromStdin creates the parent directory of p and writes stdin into p.
func WriteFromStdin(p string) string {
	return fmt.Sprintf("%s && cat > %s", MakeDir(path.Dir(p)), quote(p))
}

// ProxyValidate checks the mounted proxy config inside the proxy container.
func (c Compose) ProxyValidate() string {
	return c.Exec(ServiceCaddy, "caddy", "validate", "--config", ProxyConfigPath, "--adapter", "caddyfile")
}

// ProxyReload applies the mounted proxy config without restarting the container.
func (c Compose) ProxyReload() string {
	return c.Exec(ServiceCaddy, "caddy", "reload", "--config", ProxyConfigPath, "--adapter", "caddyfile")
}

// Psql pipes a SQL file into psql inside the database container.
// The script stops at the first failing statement.
func (c Compose) Psql(sqlPath string) string {
	return c.ExecWithInput(ServicePostgres, sqlPath,
		"psql", "-v", "ON_ERROR_STOP=1", "-U", DatabaseUser, "-d", DatabaseName)
}

func quote(s string) string {
	return shellescape.Quote(s)
}

func quoteAll(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		quoted = append(quoted, quote(a))
	}
	return strings.Join(quoted, " ")
}
