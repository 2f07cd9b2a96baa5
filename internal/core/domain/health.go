package domain

import "time"

// =============================================================================
// Health Policy
// =============================================================================

// Health check defaults, shared by the rendered manifest and the poller.
const (
	DefaultHealthInterval = 10 * time.Second
	DefaultHealthTimeout  = 5 * time.Second
	DefaultHealthRetries  = 5
)

// HealthPolicy bounds how long a service may take to report healthy.
// A poll makes one probe plus Retries retries, Interval apart.
type HealthPolicy struct {
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
	Retries  int           `json:"retries" mapstructure:"retries"`
}

// DefaultHealthPolicy returns 5 retries at 10s with a 5s probe timeout.
func DefaultHealthPolicy() HealthPolicy {
	return HealthPolicy{
		Interval: DefaultHealthInterval,
		Timeout:  DefaultHealthTimeout,
		Retries:  DefaultHealthRetries,
	}
}

// Attempts returns the total number of probes a poll may make.
func (p HealthPolicy) Attempts() int {
	if p.Retries < 0 {
		return 1
	}
	return p.Retries + 1
}

// WithDefaults fills zero fields from DefaultHealthPolicy. The zero policy
// becomes DefaultHealthPolicy; otherwise a zero Retries is kept and means a
// single probe.
func (p HealthPolicy) WithDefaults() HealthPolicy {
	def := DefaultHealthPolicy()
	if p == (HealthPolicy{}) {
		return def
	}
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.Retries < 0 {
		p.Retries = 0
	}
	return p
}
