package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/artpar/storedeploy/internal/shell/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scripted answers probes from a fixed list, repeating the last answer.
type scripted struct {
	mu       sync.Mutex
	statuses []Status
	errs     []error
	calls    int
}

func (s *scripted) Probe(_ context.Context, _ string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.statuses[i], err
}

func fastPolicy(retries int) domain.HealthPolicy {
	return domain.HealthPolicy{Interval: time.Millisecond, Timeout: time.Second, Retries: retries}
}

// =============================================================================
// WaitHealthy Tests
// =============================================================================

func TestPoller_BecomesHealthy(t *testing.T) {
	prober := &scripted{statuses: []Status{StatusStarting, StatusStarting, StatusHealthy}}
	var seen []Attempt
	p := NewPoller(prober, fastPolicy(5), setupTestLogger()).OnAttempt(func(a Attempt) {
		seen = append(seen, a)
	})

	require.NoError(t, p.WaitHealthy(context.Background(), "postgres", "shop-postgres", true))
	assert.Equal(t, 3, prober.calls)
	require.Len(t, seen, 3)
	assert.False(t, seen[0].Ready)
	assert.Equal(t, Attempt{Service: "postgres", Number: 3, Of: 6, Status: StatusHealthy, Ready: true}, seen[2])
}

func TestPoller_ExhaustsAttempts(t *testing.T) {
	prober := &scripted{statuses: []Status{StatusUnhealthy}}
	p := NewPoller(prober, fastPolicy(2), setupTestLogger())

	err := p.WaitHealthy(context.Background(), "redis", "shop-redis", true)
	require.Error(t, err)
	assert.Equal(t, 3, prober.calls, "one probe plus two retries")
	assert.True(t, errors.Is(err, domain.ErrHealthCheck))

	var hcErr *HealthCheckError
	require.True(t, errors.As(err, &hcErr))
	assert.Equal(t, "redis", hcErr.Service)
	assert.Equal(t, StatusUnhealthy, hcErr.Last)
	assert.Contains(t, err.Error(), "redis")
}

func TestPoller_ZeroRetries(t *testing.T) {
	prober := &scripted{statuses: []Status{StatusStarting}}
	p := NewPoller(prober, fastPolicy(0), setupTestLogger())

	err := p.WaitHealthy(context.Background(), "minio", "shop-minio", true)
	assert.True(t, errors.Is(err, domain.ErrHealthCheck))
	assert.Equal(t, 1, prober.calls)
}

func TestPoller_ProbeErrorsCountAsAttempts(t *testing.T) {
	boom := errors.New("inspect failed")
	prober := &scripted{
		statuses: []Status{"", StatusHealthy},
		errs:     []error{boom},
	}
	p := NewPoller(prober, fastPolicy(3), setupTestLogger())
	require.NoError(t, p.WaitHealthy(context.Background(), "medusa", "shop-medusa", true))

	failing := &scripted{statuses: []Status{""}, errs: []error{boom, boom}}
	p = NewPoller(failing, fastPolicy(1), setupTestLogger())
	err := p.WaitHealthy(context.Background(), "medusa", "shop-medusa", true)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, errors.Is(err, domain.ErrHealthCheck))
}

func TestPoller_RunningWithoutHealthCheck(t *testing.T) {
	prober := &scripted{statuses: []Status{StatusRunning}}
	p := NewPoller(prober, fastPolicy(0), setupTestLogger())

	assert.NoError(t, p.WaitHealthy(context.Background(), "caddy", "shop-caddy", false))
	assert.Error(t, p.WaitHealthy(context.Background(), "medusa", "shop-medusa", true))
}

func TestPoller_Cancelled(t *testing.T) {
	prober := &scripted{statuses: []Status{StatusStarting}}
	policy := domain.HealthPolicy{Interval: time.Hour, Timeout: time.Second, Retries: 3}
	p := NewPoller(prober, policy, setupTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.WaitHealthy(ctx, "postgres", "shop-postgres", true)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop on cancellation")
	}
}

func TestPoller_DefaultsPolicy(t *testing.T) {
	p := NewPoller(&scripted{statuses: []Status{StatusHealthy}}, domain.HealthPolicy{}, setupTestLogger())
	assert.Equal(t, domain.DefaultHealthInterval, p.Policy().Interval)
	assert.Equal(t, domain.DefaultHealthTimeout, p.Policy().Timeout)
	assert.Equal(t, domain.DefaultHealthRetries+1, p.Policy().Attempts())
}

func TestPoller_ZeroRetriesKeptWithOtherFields(t *testing.T) {
	p := NewPoller(&scripted{statuses: []Status{StatusHealthy}}, domain.HealthPolicy{Interval: time.Second}, setupTestLogger())
	assert.Equal(t, time.Second, p.Policy().Interval)
	assert.Equal(t, 1, p.Policy().Attempts())
}

// =============================================================================
// Verify Tests
// =============================================================================

func TestPoller_Verify(t *testing.T) {
	p := NewPoller(&scripted{statuses: []Status{StatusHealthy}}, fastPolicy(5), setupTestLogger())
	assert.NoError(t, p.Verify(context.Background(), "redis", "shop-redis", true))

	unhealthy := &scripted{statuses: []Status{StatusUnhealthy}}
	p = NewPoller(unhealthy, fastPolicy(5), setupTestLogger())
	err := p.Verify(context.Background(), "redis", "shop-redis", true)
	assert.True(t, errors.Is(err, domain.ErrHealthCheck))
	assert.Equal(t, 1, unhealthy.calls)
}

// =============================================================================
// Command Prober Tests
// =============================================================================

type fakeBackend struct {
	commands []string
	result   backend.CommandResult
	err      error
}

func (f *fakeBackend) RunCommand(_ context.Context, cmd string, _ backend.ExecMode) (backend.CommandResult, error) {
	f.commands = append(f.commands, cmd)
	return f.result, f.err
}

func (f *fakeBackend) PutFile(context.Context, []byte, string) error { return nil }
func (f *fakeBackend) Close() error                                  { return nil }

func TestCommandProber(t *testing.T) {
	b := &fakeBackend{result: backend.CommandResult{Stdout: "healthy\n"}}
	status, err := NewCommandProber(b).Probe(context.Background(), "shop-postgres")
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, status)
	require.Len(t, b.commands, 1)
	assert.Contains(t, b.commands[0], "docker inspect")
	assert.Contains(t, b.commands[0], "shop-postgres")
}

func TestCommandProber_MissingContainer(t *testing.T) {
	b := &fakeBackend{result: backend.CommandResult{ExitStatus: 1, Stderr: "No such object"}}
	status, err := NewCommandProber(b).Probe(context.Background(), "shop-postgres")
	require.NoError(t, err)
	assert.Equal(t, StatusMissing, status)
}

func TestCommandProber_BackendError(t *testing.T) {
	b := &fakeBackend{err: backend.ErrNotReady}
	_, err := NewCommandProber(b).Probe(context.Background(), "shop-postgres")
	assert.True(t, errors.Is(err, backend.ErrNotReady))
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusHealthy, ParseStatus(" Healthy\n"))
	assert.Equal(t, StatusRunning, ParseStatus("running"))
	assert.Equal(t, StatusMissing, ParseStatus("  "))
}

func TestStatus_Ready(t *testing.T) {
	assert.True(t, StatusHealthy.Ready(true))
	assert.False(t, StatusRunning.Ready(true))
	assert.True(t, StatusRunning.Ready(false))
	assert.False(t, StatusExited.Ready(false))
}
