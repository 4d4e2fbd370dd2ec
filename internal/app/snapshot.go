package app

import (
	"time"

	"github.com/okian/bikewatch/internal/domain/history"
	"github.com/okian/bikewatch/internal/domain/model"
	"github.com/sosodev/duration"
)

// Status is the lifecycle state of the published dashboard.
type Status string

// Dashboard statuses.
const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Snapshot is an immutable copy of the published dashboard state. Slices and
// pointers are freshly allocated for every snapshot. Remaining is the
// countdown as an ISO 8601 duration, e.g. "PT1M30S".
type Snapshot struct {
	Status      Status          `json:"status"`
	Generation  uint64          `json:"generation"`
	Config      model.Config    `json:"config"`
	StartsAt    time.Time       `json:"startsAt"`
	Gate        model.GateState `json:"gate"`
	Remaining   string          `json:"remaining"`
	RemainingMS int64           `json:"remainingMs"`
	Sample      *model.Sample   `json:"sample,omitempty"`
	Reserved    bool            `json:"reserved"`
	Position    *[2]float64     `json:"position,omitempty"`
	History     history.Window  `json:"history"`
	Weather     *model.Weather  `json:"weather,omitempty"`
	Stale       bool            `json:"stale"`
	LastError   string          `json:"lastError,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Live reports whether the gate has opened.
func (s Snapshot) Live() bool {
	return s.Gate == model.GateLive
}

func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "PT0S"
	}
	return duration.FromTimeDuration(d.Truncate(time.Second)).String()
}

// snapshotLocked copies the controller state. Callers hold c.mu.
func (c *Controller) snapshotLocked(now time.Time) Snapshot {
	s := Snapshot{
		Status:     c.status,
		Generation: c.generation,
		Config:     c.cfg,
		StartsAt:   c.start,
		Gate:       model.GateWaiting,
		History:    c.window.Clone(),
		Stale:      c.stale,
		LastError:  c.lastErr,
		UpdatedAt:  c.updated,
	}

	var remaining time.Duration
	if c.gate != nil {
		s.Gate = c.gate.State()
		remaining = c.gate.Remaining(now)
	}
	s.Remaining = formatRemaining(remaining)
	s.RemainingMS = remaining.Milliseconds()

	if c.sample != nil {
		sample := *c.sample
		pos := sample.Position()
		s.Sample = &sample
		s.Reserved = sample.Reserved()
		s.Position = &pos
	}
	if c.weather != nil {
		w := *c.weather
		s.Weather = &w
	}
	return s
}
