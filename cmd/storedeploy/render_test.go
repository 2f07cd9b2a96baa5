package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/artpar/storedeploy/internal/shell/backend"
	"github.com/stretchr/testify/assert"
)

func TestProgressPrinter_GroupsByStage(t *testing.T) {
	var buf bytes.Buffer
	events := make(chan domain.ProgressEvent, 4)
	events <- domain.ProgressEvent{Stage: domain.StageVerifyRuntime, Message: "checking docker", Ordinal: 1}
	events <- domain.ProgressEvent{Stage: domain.StageVerifyRuntime, Message: "docker compose version: v2", Ordinal: 2}
	events <- domain.ProgressEvent{Stage: domain.StageStartContainers, Message: "starting containers", Ordinal: 3}
	events <- domain.ProgressEvent{Stage: domain.StageFinalize, Message: "store deployed at http://localhost:9000", Ordinal: 4, Terminal: true}
	close(events)

	newProgressPrinter(&buf).Drain(events)
	out := buf.String()

	assert.Equal(t, 1, strings.Count(out, "Verify runtime"))
	assert.Equal(t, 1, strings.Count(out, "Start containers"))
	assert.Less(t, strings.Index(out, "checking docker"), strings.Index(out, "starting containers"))
	assert.Contains(t, out, "store deployed at http://localhost:9000")
}

func TestStageTitle(t *testing.T) {
	assert.Equal(t, "Configure payment", stageTitle(domain.StageConfigurePayment))
	assert.Equal(t, "Connect", stageTitle(domain.StageConnect))
}

func TestRenderResult(t *testing.T) {
	out := renderResult(domain.DeploymentResult{
		StoreURL:   "https://shop.example.com",
		WebhookURL: "https://shop.example.com/api/webhooks/mercadopago",
	})
	assert.Contains(t, out, "https://shop.example.com/app")
	assert.Contains(t, out, "https://shop.example.com/api/webhooks/mercadopago")
}

func TestRenderFailure(t *testing.T) {
	assert.Contains(t, renderFailure(errors.New("connection refused")), "connection refused")
}

func TestRenderReport(t *testing.T) {
	report := domain.ReconciliationReport{
		MatchedWithImages: 1,
		OrphanFolders:     []string{"OLD"},
		Details: []domain.ProductImages{
			{InternalCode: "A1", ProductName: "Caneca", ImageCount: 2},
			{InternalCode: "B2", ProductName: "Camiseta"},
		},
	}
	out := renderReport(report, "summary line")

	assert.Contains(t, out, "summary line")
	assert.Contains(t, out, "Caneca")
	assert.Contains(t, out, "Camiseta")
	assert.Contains(t, out, "OLD")
}

func TestRenderServer(t *testing.T) {
	out := renderServer(backend.ServerReport{
		Host:       "203.0.113.7",
		User:       "root",
		SSHVersion: "SSH-2.0-OpenSSH_9.6",
		Runtime: []backend.RuntimeCheck{
			{Command: "docker compose version", Output: "Docker Compose version v2.27.0\nextra", OK: true},
		},
	})
	assert.Contains(t, out, "root@203.0.113.7")
	assert.Contains(t, out, "Docker Compose version v2.27.0")
	assert.NotContains(t, out, "extra")
}
