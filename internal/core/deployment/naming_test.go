package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// ContainerName Tests
// =============================================================================

func TestContainerName(t *testing.T) {
	assert.Equal(t, "medusa-project-postgres", ContainerName("medusa-project", "postgres"))
	assert.Equal(t, "shop-caddy", ContainerName("shop", "caddy"))
}

func TestContainerNames(t *testing.T) {
	got := ContainerNames("p", StackServices(false))
	assert.Equal(t, []string{"p-postgres", "p-redis", "p-minio", "p-medusa"}, got)

	got = ContainerNames("p", StackServices(true))
	assert.Equal(t, "p-caddy", got[len(got)-1])
}

// =============================================================================
// Path Tests
// =============================================================================

func TestRemoteWorkDir(t *testing.T) {
	assert.Equal(t, "/opt/medusa-project", RemoteWorkDir("medusa-project"))
}

func TestArtifactPath(t *testing.T) {
	assert.Equal(t, "/opt/p/docker-compose.yml", ArtifactPath("/opt/p", ManifestFile))
	assert.Equal(t, "/opt/p/sql/seed.sql", ArtifactPath("/opt/p/", SeedFile))
}
