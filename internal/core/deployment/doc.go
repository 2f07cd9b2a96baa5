// Package deployment provides pure functions for deployment planning.
//
// This package contains the functional core logic between a rendered store
// manifest and the commands an execution backend runs. All functions are
// pure (no I/O, no side effects).
//
// # Functions
//
//   - Stack: Service names, images and credentials of the store stack
//   - Naming: Consistent resource names (ContainerName, ContainerNames, RemoteWorkDir)
//   - Ordering: Sort services by dependencies (TopologicalSort, HealthCheckedServices)
//   - Commands: POSIX shell strings for docker, docker compose, caddy and psql
//   - SQL: Catalog seeding and settings scripts (SeedSQL, SettingsSQL)
//
// # Usage
//
// The imperative shell (internal/shell/pipeline) uses these pure functions
// to plan each stage, then executes the commands through a backend.
//
//	compose := deployment.NewCompose(project, workDir)
//	ordered := deployment.HealthCheckedServices(spec)
//	backend.RunCommand(ctx, compose.Up(), backend.Required)
package deployment
