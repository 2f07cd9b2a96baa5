// Package metrics exports deployment stage and run metrics to Prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Deployments
// =============================================================================

const namespace = "storedeploy"

// Metrics observes pipeline stages and runs.
type Metrics struct {
	// StageDuration measures stage latency.
	// Labels: mode, stage, status (ok, error)
	StageDuration *prometheus.HistogramVec

	// StageFailures counts failed stages by error kind.
	// Labels: mode, stage, kind
	StageFailures *prometheus.CounterVec

	// Runs counts finished runs.
	// Labels: mode, outcome (succeeded, failed, canceled)
	Runs *prometheus.CounterVec

	// RunDuration measures whole-run latency.
	// Labels: mode
	RunDuration *prometheus.HistogramVec

	// InFlight is the number of runs currently executing.
	InFlight prometheus.Gauge
}

// New registers the deployment metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Deployment stage latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"mode", "stage", "status"}),

		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "failures_total",
			Help:      "Total failed deployment stages by error kind",
		}, []string{"mode", "stage", "kind"}),

		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "total",
			Help:      "Total finished deployment runs by outcome",
		}, []string{"mode", "outcome"}),

		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Deployment run latency in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"mode"}),

		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "in_flight",
			Help:      "Deployment runs currently executing",
		}),
	}
}

// ObserveStage records one finished stage.
func (m *Metrics) ObserveStage(mode domain.Mode, stage domain.Stage, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.StageFailures.WithLabelValues(string(mode), stage.String(), string(kindOf(err))).Inc()
	}
	m.StageDuration.WithLabelValues(string(mode), stage.String(), status).Observe(elapsed.Seconds())
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(mode domain.Mode, outcome string, elapsed time.Duration) {
	m.Runs.WithLabelValues(string(mode), outcome).Inc()
	m.RunDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
}

// Track marks a run as in flight until the returned func is called.
func (m *Metrics) Track() func() {
	m.InFlight.Inc()
	return m.InFlight.Dec
}

// kindOf reports the kind of a deployment error, or "unknown".
func kindOf(err error) domain.ErrorKind {
	var de *domain.DeploymentError
	if errors.As(err, &de) {
		return de.Kind
	}
	return "unknown"
}
