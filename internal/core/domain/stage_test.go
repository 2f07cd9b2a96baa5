package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Stage Tests
// =============================================================================

func TestStagesFor(t *testing.T) {
	tests := []struct {
		mode Mode
		want []Stage
	}{
		{
			mode: ModeRemote,
			want: AllStages(),
		},
		{
			mode: ModeLocal,
			want: []Stage{
				StageVerifyRuntime,
				StageGenerateArtifacts,
				StageStartContainers,
				StageReconcileImages,
				StageSeedDatabase,
				StageConfigurePayment,
				StageApplyTheme,
				StageHealthCheck,
				StageFinalize,
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.want, StagesFor(tt.mode))
		})
	}
}

func TestAllStages_Ordered(t *testing.T) {
	stages := AllStages()
	require.Len(t, stages, 12)
	for i := 1; i < len(stages); i++ {
		assert.Less(t, stages[i-1], stages[i])
	}
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "connect", StageConnect.String())
	assert.Equal(t, "health_check", StageHealthCheck.String())
	assert.Equal(t, "unknown", Stage(0).String())
	assert.False(t, Stage(99).IsValid())
	assert.False(t, Stage(0).RunsIn(ModeRemote))
}

func TestProgressEvent_JSON(t *testing.T) {
	data, err := json.Marshal(ProgressEvent{Stage: StageSeedDatabase, Message: "seeding", Ordinal: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"seed_database","message":"seeding","ordinal":3}`, string(data))
}

// =============================================================================
// URL Tests
// =============================================================================

func TestStoreURL(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{"remote", RemoteTarget{Host: "203.0.113.7", Domain: "shop.example.com"}, "https://shop.example.com"},
		{"remote pointer", &RemoteTarget{Host: "h", Domain: "loja.com.br"}, "https://loja.com.br"},
		{"local", LocalTarget{}, "http://localhost:9000"},
		{"nil", nil, "http://localhost:9000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StoreURL(tt.target))
		})
	}
}

func TestResultFor(t *testing.T) {
	remote := ResultFor(DeploymentConfig{Target: RemoteTarget{Host: "203.0.113.7", Domain: "shop.example.com"}})
	assert.Equal(t, "https://shop.example.com", remote.StoreURL)
	assert.Equal(t, "https://shop.example.com/api/webhooks/mercadopago", remote.WebhookURL)

	local := ResultFor(DeploymentConfig{Target: LocalTarget{}, Payment: Payment{Gateway: "stripe"}})
	assert.Equal(t, "http://localhost:9000", local.StoreURL)
	assert.Equal(t, "http://localhost:9000/api/webhooks/stripe", local.WebhookURL)
}

// =============================================================================
// Error Tests
// =============================================================================

func TestDeploymentError_Is(t *testing.T) {
	cause := errors.New("exit status 1")
	err := NewDeploymentError(StageStartContainers, KindCommand, "docker compose up failed", cause)

	assert.True(t, errors.Is(err, ErrCommand))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrHealthCheck))
	assert.Equal(t, "start_containers (command): docker compose up failed", err.Error())

	var de *DeploymentError
	require.True(t, errors.As(error(err), &de))
	assert.Equal(t, StageStartContainers, de.Stage)
}

func TestReconciliationReport_Matched(t *testing.T) {
	r := ReconciliationReport{Details: []ProductImages{
		{InternalCode: "A", ImageCount: 2},
		{InternalCode: "B", ImageCount: 0},
		{InternalCode: "C", ImageCount: 1},
	}}
	assert.Equal(t, []string{"A", "C"}, r.Matched())
}
