package deployment

import (
	"testing"

	"github.com/artpar/storedeploy/internal/core/compose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(services []compose.Service) []string {
	out := make([]string, 0, len(services))
	for _, s := range services {
		out = append(out, s.Name)
	}
	return out
}

// =============================================================================
// TopologicalSort Tests
// =============================================================================

func TestTopologicalSort_Empty(t *testing.T) {
	assert.Empty(t, TopologicalSort([]compose.Service{}))
}

func TestTopologicalSort_NoDependenciesSortedByName(t *testing.T) {
	services := []compose.Service{
		{Name: "redis"},
		{Name: "postgres"},
		{Name: "minio"},
	}
	assert.Equal(t, []string{"minio", "postgres", "redis"}, names(TopologicalSort(services)))
}

func TestTopologicalSort_StoreStack(t *testing.T) {
	services := []compose.Service{
		{Name: "caddy", DependsOn: []string{"medusa"}},
		{Name: "medusa", DependsOn: []string{"minio", "postgres", "redis"}},
		{Name: "minio"},
		{Name: "postgres"},
		{Name: "redis"},
	}
	assert.Equal(t,
		[]string{"minio", "postgres", "redis", "medusa", "caddy"},
		names(TopologicalSort(services)))
}

func TestTopologicalSort_DiamondDependencies(t *testing.T) {
	services := []compose.Service{
		{Name: "web", DependsOn: []string{"api", "cache"}},
		{Name: "api", DependsOn: []string{"db"}},
		{Name: "cache", DependsOn: []string{"db"}},
		{Name: "db"},
	}
	assert.Equal(t, []string{"db", "api", "cache", "web"}, names(TopologicalSort(services)))
}

func TestTopologicalSort_DeepChain(t *testing.T) {
	services := []compose.Service{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"c"}},
		{Name: "c", DependsOn: []string{"d"}},
		{Name: "d"},
	}
	assert.Equal(t, []string{"d", "c", "b", "a"}, names(TopologicalSort(services)))
}

func TestTopologicalSort_PartialCycle(t *testing.T) {
	// Cycles are rejected by the parser; the sort still returns every service.
	services := []compose.Service{
		{Name: "b", DependsOn: []string{"a"}},
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "c"},
	}
	assert.Equal(t, []string{"c", "a", "b"}, names(TopologicalSort(services)))
}

func TestTopologicalSort_UnknownDependencyIgnored(t *testing.T) {
	services := []compose.Service{
		{Name: "web", DependsOn: []string{"api"}},
	}
	result := TopologicalSort(services)
	require.Len(t, result, 1)
	assert.Equal(t, "web", result[0].Name)
}

// =============================================================================
// HealthCheckedServices Tests
// =============================================================================

func TestHealthCheckedServices(t *testing.T) {
	hc := &compose.HealthCheck{Test: []string{"CMD", "true"}}
	spec := &compose.ParsedSpec{Services: []compose.Service{
		{Name: "caddy", DependsOn: []string{"medusa"}},
		{Name: "medusa", DependsOn: []string{"postgres", "redis"}, HealthCheck: hc},
		{Name: "postgres", HealthCheck: hc},
		{Name: "redis", HealthCheck: hc},
	}}

	assert.Equal(t, []string{"postgres", "redis", "medusa"}, names(HealthCheckedServices(spec)))
	assert.Nil(t, HealthCheckedServices(nil))
}
