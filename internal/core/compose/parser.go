package compose

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// fallbackProjectName is used when the manifest carries no top-level name.
const fallbackProjectName = "storedeploy"

// =============================================================================
// Parser Functions
// =============================================================================

// ParseManifest parses Docker Compose YAML into a ParsedSpec without
// touching the filesystem. The manifest is loaded and validated by
// compose-go, so anything docker compose would reject is rejected here first.
func ParseManifest(yamlContent string) (*ParsedSpec, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	project, err := loadManifest(yamlContent)
	if err != nil {
		return nil, err
	}

	if err := checkUnsupportedFeatures(project); err != nil {
		return nil, err
	}

	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	spec := &ParsedSpec{
		Name:     project.Name,
		Services: make([]Service, 0, len(project.Services)),
	}

	for _, name := range sortedKeys(project.Services) {
		converted, err := convertService(project.Services[name])
		if err != nil {
			return nil, err
		}
		spec.Services = append(spec.Services, converted)
	}

	if err := checkDependencies(spec.Services); err != nil {
		return nil, err
	}
	if err := detectCircularDependencies(spec.Services); err != nil {
		return nil, err
	}
	if err := validatePorts(spec.Services); err != nil {
		return nil, err
	}

	spec.Networks = sortedKeys(project.Networks)
	spec.Volumes = sortedKeys(project.Volumes)

	return spec, nil
}

// RequireServices checks that every named service exists.
func RequireServices(spec *ParsedSpec, names ...string) error {
	for _, name := range names {
		if _, ok := spec.Service(name); !ok {
			return NewParseError("services."+name, "service is not defined", ErrMissingService)
		}
	}
	return nil
}

// RequireHealthChecks checks that every named service declares a health check.
func RequireHealthChecks(spec *ParsedSpec, names ...string) error {
	for _, name := range names {
		svc, ok := spec.Service(name)
		if !ok {
			return NewParseError("services."+name, "service is not defined", ErrMissingService)
		}
		if svc.HealthCheck == nil || len(svc.HealthCheck.Test) == 0 {
			return NewParseError("services."+name+".healthcheck", "health check is required", ErrMissingHealth)
		}
	}
	return nil
}

// loadManifest loads a manifest using compose-go
func loadManifest(yamlContent string) (*types.Project, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Filename: "docker-compose.yml",
				Content:  []byte(yamlContent),
				Config:   dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName(fallbackProjectName, false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		// Paths stay relative: the manifest is rendered before it reaches its directory.
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "dependency cycle detected") {
			return nil, NewParseError("", "circular dependency detected", ErrCircularDependency)
		}
		if strings.Contains(errStr, "image") && strings.Contains(errStr, "build") {
			return nil, NewParseError("", "service must have image or build", ErrServiceNoImage)
		}
		return nil, NewParseError("", errStr, ErrInvalidYAML)
	}

	return project, nil
}

// checkUnsupportedFeatures rejects top-level sections the deployer never renders.
func checkUnsupportedFeatures(project *types.Project) error {
	unsupported := func(field string) error {
		return NewParseError(field, field+" cannot be deployed to a store host", ErrUnsupportedFeature)
	}
	switch {
	case len(project.Secrets) > 0:
		return unsupported("secrets")
	case len(project.Configs) > 0:
		return unsupported("configs")
	}
	for _, name := range sortedKeys(project.Services) {
		if ext := project.Services[name].Extends; ext != nil && ext.File != "" {
			return unsupported("services." + name + ".extends")
		}
	}
	return nil
}

// convertService flattens a compose-go service into the fields the store stack uses.
func convertService(svc types.ServiceConfig) (Service, error) {
	if svc.Image == "" && svc.Build == nil {
		return Service{}, NewParseError("services."+svc.Name, "service must have image or build", ErrServiceNoImage)
	}

	out := Service{
		Name:          svc.Name,
		Image:         svc.Image,
		ContainerName: svc.ContainerName,
		Command:       svc.Command,
		Environment:   make(map[string]string, len(svc.Environment)),
		Restart:       svc.Restart,
		Networks:      sortedKeys(svc.Networks),
		HealthCheck:   convertHealthCheck(svc.HealthCheck),
	}

	for _, mapping := range svc.Ports {
		// An unparsable host port is left unpublished; compose-go already rejected malformed ranges.
		host, _ := strconv.ParseUint(mapping.Published, 10, 32)
		out.Ports = append(out.Ports, Port{
			Target:    mapping.Target,
			Published: uint32(host),
			Protocol:  mapping.Protocol,
			HostIP:    mapping.HostIP,
		})
	}

	for key, value := range svc.Environment {
		if value != nil {
			out.Environment[key] = *value
		}
	}

	for _, vol := range svc.Volumes {
		out.Volumes = append(out.Volumes, VolumeMount{
			Type:     mountType(vol.Type, vol.Source),
			Source:   vol.Source,
			Target:   vol.Target,
			ReadOnly: vol.ReadOnly,
		})
	}

	if len(svc.DependsOn) > 0 {
		out.DependsOn = sortedKeys(svc.DependsOn)
		out.Conditions = make(map[string]string, len(out.DependsOn))
		for _, dep := range out.DependsOn {
			out.Conditions[dep] = svc.DependsOn[dep].Condition
		}
	}

	return out, nil
}

// mountType maps a compose volume type, guessing from the source when the type is unset.
func mountType(kind, source string) VolumeMountType {
	switch kind {
	case types.VolumeTypeBind:
		return VolumeMountTypeBind
	case types.VolumeTypeVolume:
		return VolumeMountTypeVolume
	case types.VolumeTypeTmpfs:
		return VolumeMountTypeTmpfs
	}
	for _, prefix := range []string{"./", "/", "~"} {
		if strings.HasPrefix(source, prefix) {
			return VolumeMountTypeBind
		}
	}
	return VolumeMountTypeVolume
}

func convertHealthCheck(hc *types.HealthCheckConfig) *HealthCheck {
	if hc == nil || hc.Disable {
		return nil
	}
	out := &HealthCheck{Test: hc.Test}
	if hc.Retries != nil {
		out.Retries = int(*hc.Retries)
	}
	if hc.Interval != nil {
		out.Interval = hc.Interval.String()
	}
	if hc.Timeout != nil {
		out.Timeout = hc.Timeout.String()
	}
	return out
}

// checkDependencies rejects depends_on entries naming undefined services
func checkDependencies(services []Service) error {
	known := make(map[string]bool, len(services))
	for _, svc := range services {
		known[svc.Name] = true
	}
	for _, svc := range services {
		for _, dep := range svc.DependsOn {
			if !known[dep] {
				return NewParseError(
					"services."+svc.Name+".depends_on",
					fmt.Sprintf("depends on undefined service %q", dep),
					ErrUnknownDepender,
				)
			}
		}
	}
	return nil
}

// detectCircularDependencies walks depends_on depth-first and reports the
// first service found on a cycle.
func detectCircularDependencies(services []Service) error {
	const (
		unvisited = iota
		onPath
		done
	)
	edges := make(map[string][]string, len(services))
	for _, svc := range services {
		edges[svc.Name] = svc.DependsOn
	}

	state := make(map[string]int, len(services))
	var walk func(name string) string
	walk = func(name string) string {
		state[name] = onPath
		for _, next := range edges[name] {
			switch state[next] {
			case onPath:
				return next
			case unvisited:
				if hit := walk(next); hit != "" {
					return hit
				}
			}
		}
		state[name] = done
		return ""
	}

	for _, svc := range services {
		if state[svc.Name] != unvisited {
			continue
		}
		if hit := walk(svc.Name); hit != "" {
			return NewParseError("services."+hit+".depends_on", "circular dependency detected", ErrCircularDependency)
		}
	}
	return nil
}

// validatePorts checks every port mapping stays inside the TCP/UDP range.
func validatePorts(services []Service) error {
	for _, svc := range services {
		for i, port := range svc.Ports {
			field := fmt.Sprintf("services.%s.ports[%d]", svc.Name, i)
			if port.Target == 0 {
				return NewParseError(field, "target port cannot be 0", ErrServiceInvalidPort)
			}
			if port.Target > 65535 {
				return NewParseError(field, "target port must be <= 65535", ErrServiceInvalidPort)
			}
			if port.Published > 65535 {
				return NewParseError(field, "published port must be <= 65535", ErrServiceInvalidPort)
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
