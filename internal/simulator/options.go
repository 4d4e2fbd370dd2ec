package simulator

import (
	"math/rand"
	"time"

	"github.com/okian/bikewatch/internal/domain/model"
)

// Option configures a Simulator.
type Option func(*Simulator)

// WithSeed makes the generated noise deterministic.
func WithSeed(seed int64) Option {
	return func(s *Simulator) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // telemetry noise
	}
}

// WithHistoryCapacity bounds the per-device history.
func WithHistoryCapacity(n int) Option {
	return func(s *Simulator) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithClock sets the clock used by Run and the default session.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

// WithConfig sets the initial served configuration.
func WithConfig(cfg model.Config) Option {
	return func(s *Simulator) {
		s.cfg = cfg
	}
}

// WithPublicWeather serves weather to every caller.
func WithPublicWeather() Option {
	return func(s *Simulator) {
		s.public = true
	}
}
