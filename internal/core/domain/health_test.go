package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthPolicy_WithDefaults(t *testing.T) {
	tests := []struct {
		name     string
		policy   HealthPolicy
		want     HealthPolicy
		attempts int
	}{
		{
			name:     "zero policy",
			policy:   HealthPolicy{},
			want:     DefaultHealthPolicy(),
			attempts: 6,
		},
		{
			name:     "zero retries with interval",
			policy:   HealthPolicy{Interval: time.Second},
			want:     HealthPolicy{Interval: time.Second, Timeout: DefaultHealthTimeout},
			attempts: 1,
		},
		{
			name:     "negative retries",
			policy:   HealthPolicy{Retries: -2},
			want:     HealthPolicy{Interval: DefaultHealthInterval, Timeout: DefaultHealthTimeout},
			attempts: 1,
		},
		{
			name:     "explicit",
			policy:   HealthPolicy{Interval: 2 * time.Second, Timeout: time.Second, Retries: 3},
			want:     HealthPolicy{Interval: 2 * time.Second, Timeout: time.Second, Retries: 3},
			attempts: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.WithDefaults()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.attempts, got.Attempts())
		})
	}
}
