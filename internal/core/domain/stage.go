package domain

// =============================================================================
// Pipeline Stages
// =============================================================================

// Stage identifies one step of the deployment pipeline.
// Stages are totally ordered by their numeric value.
type Stage int

const (
	StageConnect Stage = iota + 1
	StageVerifyRuntime
	StageGenerateArtifacts
	StageTransferArtifacts
	StageStartContainers
	StageConfigureProxy
	StageReconcileImages
	StageSeedDatabase
	StageConfigurePayment
	StageApplyTheme
	StageHealthCheck
	StageFinalize
)

var stageNames = map[Stage]string{
	StageConnect:           "connect",
	StageVerifyRuntime:     "verify_runtime",
	StageGenerateArtifacts: "generate_artifacts",
	StageTransferArtifacts: "transfer_artifacts",
	StageStartContainers:   "start_containers",
	StageConfigureProxy:    "configure_proxy",
	StageReconcileImages:   "reconcile_images",
	StageSeedDatabase:      "seed_database",
	StageConfigurePayment:  "configure_payment",
	StageApplyTheme:        "apply_theme",
	StageHealthCheck:       "health_check",
	StageFinalize:          "finalize",
}

// String returns the snake_case stage name.
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsValid checks if the stage is a known pipeline stage.
func (s Stage) IsValid() bool {
	_, ok := stageNames[s]
	return ok
}

// AllStages returns every stage in execution order.
func AllStages() []Stage {
	return []Stage{
		StageConnect,
		StageVerifyRuntime,
		StageGenerateArtifacts,
		StageTransferArtifacts,
		StageStartContainers,
		StageConfigureProxy,
		StageReconcileImages,
		StageSeedDatabase,
		StageConfigurePayment,
		StageApplyTheme,
		StageHealthCheck,
		StageFinalize,
	}
}

// RunsIn reports whether the stage executes for the given mode.
// Connect, TransferArtifacts and ConfigureProxy only exist for remote targets.
func (s Stage) RunsIn(mode Mode) bool {
	if mode == ModeRemote {
		return s.IsValid()
	}
	switch s {
	case StageConnect, StageTransferArtifacts, StageConfigureProxy:
		return false
	default:
		return s.IsValid()
	}
}

// StagesFor returns the ordered stages executed for a mode.
func StagesFor(mode Mode) []Stage {
	var stages []Stage
	for _, s := range AllStages() {
		if s.RunsIn(mode) {
			stages = append(stages, s)
		}
	}
	return stages
}
