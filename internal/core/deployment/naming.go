package deployment

import (
	"fmt"
	"path"
)

// =============================================================================
// Resource Naming Functions
// =============================================================================

// ContainerName generates the container name of a service in a project.
// Pattern: {project}-{service}
//
// Example:
//
//	ContainerName("medusa-project", "postgres") // returns "medusa-project-postgres"
func ContainerName(project, service string) string {
	return fmt.Sprintf("%s-%s", project, service)
}

// ContainerNames returns the container names of every service, in order.
func ContainerNames(project string, services []string) []string {
	names := make([]string, 0, len(services))
	for _, svc := range services {
		names = append(names, ContainerName(project, svc))
	}
	return names
}

// RemoteWorkDir is the directory holding a project's artifacts on a remote host.
//
// Example:
//
//	RemoteWorkDir("medusa-project") // returns "/opt/medusa-project"
func RemoteWorkDir(project string) string {
	return path.Join("/opt", project)
}

// ArtifactPath joins an artifact file name onto a working directory.
func ArtifactPath(workDir, name string) string {
	return path.Join(workDir, name)
}
