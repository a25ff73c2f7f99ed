package worker

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldRestart(t *testing.T) {
	tests := []struct {
		name     string
		policy   RestartPolicy
		code     int
		restarts int
		want     bool
	}{
		{name: "never ignores crash", policy: RestartPolicy{Mode: RestartNever}, code: 1, want: false},
		{name: "empty mode is never", policy: RestartPolicy{}, code: 1, want: false},
		{name: "on-failure restarts crash", policy: RestartPolicy{Mode: RestartOnFailure}, code: 2, want: true},
		{name: "on-failure restarts signal", policy: RestartPolicy{Mode: RestartOnFailure}, code: -1, want: true},
		{name: "on-failure skips clean exit", policy: RestartPolicy{Mode: RestartOnFailure}, code: 0, want: false},
		{name: "always restarts clean exit", policy: RestartPolicy{Mode: RestartAlways}, code: 0, want: true},
		{name: "limit reached", policy: RestartPolicy{Mode: RestartAlways, MaxRestarts: 3}, code: 1, restarts: 3, want: false},
		{name: "below limit", policy: RestartPolicy{Mode: RestartAlways, MaxRestarts: 3}, code: 1, restarts: 2, want: true},
		{name: "unlimited", policy: RestartPolicy{Mode: RestartOnFailure}, code: 1, restarts: 1000, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.ShouldRestart(tt.code, tt.restarts))
		})
	}
}

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
	assert.Equal(t, 250*time.Millisecond, NextBackoffDelay(cfg, 1, nil))
	assert.Equal(t, 500*time.Millisecond, NextBackoffDelay(cfg, 2, nil))
	assert.Equal(t, time.Second, NextBackoffDelay(cfg, 3, nil))
	assert.Equal(t, 5*time.Second, NextBackoffDelay(cfg, 6, nil))
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	got := NextBackoffDelay(cfg, 2, rng)
	assert.GreaterOrEqual(t, got, 250*time.Millisecond)
	assert.LessOrEqual(t, got, 750*time.Millisecond)
}
