package worker

import (
	"math"
	"math/rand"
	"time"
)

// Restart policy modes.
const (
	RestartNever     = "never"
	RestartOnFailure = "on-failure"
	RestartAlways    = "always"
)

// BackoffConfig shapes the delay between automatic restarts.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// RestartPolicy decides whether an exited worker is respawned automatically.
// Requests that failed with the dead instance are never replayed.
type RestartPolicy struct {
	Mode        string
	MaxRestarts int // <= 0 means unlimited
	Backoff     BackoffConfig
}

// ShouldRestart reports whether a worker that exited with code after
// `restarts` previous automatic restarts should be started again.
func (p RestartPolicy) ShouldRestart(code, restarts int) bool {
	if p.MaxRestarts > 0 && restarts >= p.MaxRestarts {
		return false
	}
	switch p.Mode {
	case RestartAlways:
		return true
	case RestartOnFailure:
		return code != 0
	default:
		return false
	}
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}
