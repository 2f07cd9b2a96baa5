package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveStage(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveStage(domain.ModeLocal, domain.StageSeedDatabase, time.Second, nil)
	failure := domain.NewDeploymentError(domain.StageStartContainers, domain.KindHealthCheck, "postgres", nil)
	m.ObserveStage(domain.ModeLocal, domain.StageStartContainers, 2*time.Second, failure)
	m.ObserveStage(domain.ModeRemote, domain.StageConnect, time.Second, errors.New("plain"))

	assert.Equal(t, 1, testutil.CollectAndCount(m.StageFailures.WithLabelValues("local", "start_containers", "health_check")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StageFailures.WithLabelValues("local", "start_containers", "health_check")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StageFailures.WithLabelValues("remote", "connect", "unknown")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.StageDuration))
}

func TestObserveRun(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRun(domain.ModeRemote, "succeeded", time.Minute)
	m.ObserveRun(domain.ModeRemote, "succeeded", time.Minute)
	m.ObserveRun(domain.ModeLocal, "canceled", time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Runs.WithLabelValues("remote", "succeeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Runs.WithLabelValues("local", "canceled")))
}

func TestTrack(t *testing.T) {
	m := New(prometheus.NewRegistry())

	done := m.Track()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InFlight))
	done()
	assert.Equal(t, float64(0), testutil.ToFloat64(m.InFlight))
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
