package backend

import (
	"context"
	"log/slog"
	"strings"

	"github.com/artpar/storedeploy/internal/core/deployment"
)

// RuntimeCheck is the outcome of one runtime probe command on a server.
type RuntimeCheck struct {
	Command string `json:"command"`
	Output  string `json:"output"`
	OK      bool   `json:"ok"`
}

// ServerReport describes a host a store can be deployed to.
type ServerReport struct {
	Host       string         `json:"host"`
	User       string         `json:"user"`
	SSHVersion string         `json:"ssh_version"`
	Runtime    []RuntimeCheck `json:"runtime"`
}

// Ready reports whether every runtime check passed.
func (r ServerReport) Ready() bool {
	for _, c := range r.Runtime {
		if !c.OK {
			return false
		}
	}
	return len(r.Runtime) > 0
}

// CheckServer connects to a host, authenticates and runs the runtime checks
// without failing on them. Connection and authentication errors are returned
// as they are from Connect.
func CheckServer(ctx context.Context, config RemoteConfig, logger *slog.Logger) (ServerReport, error) {
	b := NewRemoteBackend(config, logger)
	if err := b.Connect(ctx); err != nil {
		return ServerReport{}, err
	}
	defer b.Close()

	report := ServerReport{
		Host:       b.config.Host,
		User:       b.config.User,
		SSHVersion: b.ServerVersion(),
	}
	for _, cmd := range deployment.RuntimeChecks() {
		result, err := b.RunCommand(ctx, cmd, BestEffort)
		if err != nil {
			return report, err
		}
		report.Runtime = append(report.Runtime, RuntimeCheck{
			Command: cmd,
			Output:  strings.TrimSpace(result.Output()),
			OK:      result.Success(),
		})
	}
	return report, nil
}
