package deployment

import (
	"sort"

	"github.com/artpar/storedeploy/internal/core/compose"
)

// =============================================================================
// Service Ordering Functions
// =============================================================================

// TopologicalSort sorts services by their dependencies using Kahn's algorithm.
// Services with no dependencies come first; ties are broken by name so the
// order is stable across runs.
//
// If a cycle exists (which is rejected at parse time), remaining services are
// appended in name order as a fallback.
//
// Example:
//
//	// Services: medusa → postgres, redis
//	services := []compose.Service{
//	    {Name: "medusa", DependsOn: []string{"postgres", "redis"}},
//	    {Name: "redis"},
//	    {Name: "postgres"},
//	}
//	sorted := TopologicalSort(services)
//	// Result: [postgres, redis, medusa]
func TopologicalSort(services []compose.Service) []compose.Service {
	if len(services) == 0 {
		return services
	}

	serviceMap := make(map[string]compose.Service, len(services))
	inDegree := make(map[string]int, len(services))
	dependents := make(map[string][]string)

	for _, svc := range services {
		serviceMap[svc.Name] = svc
	}
	for _, svc := range services {
		for _, dep := range svc.DependsOn {
			if _, known := serviceMap[dep]; !known {
				continue
			}
			inDegree[svc.Name]++
			dependents[dep] = append(dependents[dep], svc.Name)
		}
	}

	var queue []string
	for _, svc := range services {
		if inDegree[svc.Name] == 0 {
			queue = append(queue, svc.Name)
		}
	}
	sort.Strings(queue)

	result := make([]compose.Service, 0, len(services))
	placed := make(map[string]bool, len(services))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		result = append(result, serviceMap[name])
		placed[name] = true

		var ready []string
		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	if len(result) < len(services) {
		var rest []string
		for _, svc := range services {
			if !placed[svc.Name] {
				rest = append(rest, svc.Name)
			}
		}
		sort.Strings(rest)
		for _, name := range rest {
			result = append(result, serviceMap[name])
		}
	}

	return result
}

// HealthCheckedServices returns the services that declare a health check,
// in dependency order. These are the services the pipeline waits on.
func HealthCheckedServices(spec *compose.ParsedSpec) []compose.Service {
	if spec == nil {
		return nil
	}
	var out []compose.Service
	for _, svc := range TopologicalSort(spec.Services) {
		if svc.HealthCheck != nil {
			out = append(out, svc)
		}
	}
	return out
}
