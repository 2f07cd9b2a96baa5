package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/storedeploy/internal/core/domain"
)

// =============================================================================
// Errors
// =============================================================================

// HealthCheckError reports a service that never became ready.
// It matches domain.ErrHealthCheck with errors.Is.
type HealthCheckError struct {
	Service  string
	Attempts int
	Last     Status
	Err      error // last probe error, if any
}

func (e *HealthCheckError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("service %s not healthy after %d attempts: %v", e.Service, e.Attempts, e.Err)
	}
	return fmt.Sprintf("service %s not healthy after %d attempts (last status %q)", e.Service, e.Attempts, e.Last)
}

func (e *HealthCheckError) Unwrap() error {
	return e.Err
}

// Is matches domain.ErrHealthCheck.
func (e *HealthCheckError) Is(target error) bool {
	return target == domain.ErrHealthCheck
}

// =============================================================================
// Poller
// =============================================================================

// Attempt describes one probe made while waiting.
type Attempt struct {
	Service string
	Number  int
	Of      int
	Status  Status
	Err     error
	Ready   bool
}

// Poller waits for containers to become ready using a HealthPolicy:
// one probe plus Retries retries, Interval apart.
type Poller struct {
	prober    Prober
	policy    domain.HealthPolicy
	logger    *slog.Logger
	onAttempt func(Attempt)
}

// NewPoller creates a poller. Zero policy fields take their defaults.
func NewPoller(prober Prober, policy domain.HealthPolicy, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		prober: prober,
		policy: policy.WithDefaults(),
		logger: logger.With("component", "health_poller"),
	}
}

// OnAttempt registers a callback invoked after every probe.
func (p *Poller) OnAttempt(fn func(Attempt)) *Poller {
	p.onAttempt = fn
	return p
}

// Policy returns the effective policy.
func (p *Poller) Policy() domain.HealthPolicy {
	return p.policy
}

// WaitHealthy probes container until it is ready or the attempts run out.
// It returns ctx.Err() when ctx is cancelled while waiting, and a
// *HealthCheckError when every attempt failed.
func (p *Poller) WaitHealthy(ctx context.Context, service, container string, hasHealthCheck bool) error {
	attempts := p.policy.Attempts()
	var last Status
	var lastErr error

	for n := 1; n <= attempts; n++ {
		status, err := p.prober.Probe(ctx, container)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		last, lastErr = status, err
		ready := err == nil && status.Ready(hasHealthCheck)

		if p.onAttempt != nil {
			p.onAttempt(Attempt{Service: service, Number: n, Of: attempts, Status: status, Err: err, Ready: ready})
		}
		if ready {
			p.logger.Debug("service ready", "service", service, "attempt", n)
			return nil
		}
		p.logger.Debug("service not ready",
			"service", service,
			"attempt", n,
			"of", attempts,
			"status", status,
			"error", err,
		)

		if n == attempts {
			break
		}
		timer := time.NewTimer(p.policy.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return &HealthCheckError{Service: service, Attempts: attempts, Last: last, Err: lastErr}
}

// Verify makes a single probe and reports a *HealthCheckError if the
// container is not ready.
func (p *Poller) Verify(ctx context.Context, service, container string, hasHealthCheck bool) error {
	status, err := p.prober.Probe(ctx, container)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err == nil && status.Ready(hasHealthCheck) {
		return nil
	}
	return &HealthCheckError{Service: service, Attempts: 1, Last: status, Err: err}
}
