// Package gate implements the countdown that blocks the live view until the
// scheduled session start.
package gate

import (
	"sync"
	"time"

	"github.com/okian/bikewatch/internal/domain/model"
)

// Gate is a two-state machine: WAITING until the start instant, then LIVE
// forever. The transition fires exactly once, either from the armed timer or
// from Observe, whichever sees the start instant first.
type Gate struct {
	start time.Time

	mu    sync.Mutex
	state model.GateState
	timer *time.Timer

	once sync.Once
	done chan struct{}
}

// New seeds a gate for start as seen at now.
func New(start, now time.Time) *Gate {
	g := &Gate{
		start: start,
		state: model.GateWaiting,
		done:  make(chan struct{}),
	}
	if !now.Before(start) {
		g.open()
	}
	return g
}

// Start returns the instant the gate opens at.
func (g *Gate) Start() time.Time {
	return g.start
}

// State returns the current state without advancing it.
func (g *Gate) State() model.GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Observe advances the gate if now has reached the start instant and returns
// the resulting state.
func (g *Gate) Observe(now time.Time) model.GateState {
	if !now.Before(g.start) {
		g.open()
	}
	return g.State()
}

// Remaining returns the time left before the gate opens, zero once live.
func (g *Gate) Remaining(now time.Time) time.Duration {
	if g.State() == model.GateLive {
		return 0
	}
	if d := g.start.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Arm schedules the transition at the start instant relative to now.
// Arming an open or already armed gate is a no-op.
func (g *Gate) Arm(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == model.GateLive || g.timer != nil {
		return
	}
	g.timer = time.AfterFunc(g.start.Sub(now), g.open)
}

// Disarm stops a pending timer. The state is left as is.
func (g *Gate) Disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// Done is closed when the gate turns LIVE.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

func (g *Gate) open() {
	g.once.Do(func() {
		g.mu.Lock()
		g.state = model.GateLive
		g.mu.Unlock()
		close(g.done)
	})
}
