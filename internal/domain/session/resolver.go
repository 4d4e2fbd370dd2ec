// Package session resolves the active configuration and the instant its
// live session starts.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/bikewatch/internal/domain/model"
)

const dateLayout = "2006-01-02"

var timeLayouts = []string{"15:04:05", "15:04"}

// ConfigSource provides the remote configuration.
type ConfigSource interface {
	FetchConfig(ctx context.Context) (model.Config, error)
}

// Resolver turns remote configuration into a session start instant.
type Resolver struct {
	source ConfigSource
	loc    *time.Location
}

// NewResolver creates a resolver interpreting session dates in loc.
// A nil location means time.Local.
func NewResolver(source ConfigSource, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{source: source, loc: loc}
}

// Location returns the zone session dates are interpreted in.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Resolve fetches the current configuration. Errors are returned as is.
func (r *Resolver) Resolve(ctx context.Context) (model.Config, error) {
	return r.source.FetchConfig(ctx)
}

// StartInstant combines the configured date and start time into an instant.
func (r *Resolver) StartInstant(cfg model.Config) (time.Time, error) {
	return StartInstant(cfg, r.loc)
}

// StartInstant parses cfg.SessionDate (YYYY-MM-DD) and cfg.SessionStartTime
// (HH:MM or HH:MM:SS) as a wall-clock time in loc.
func StartInstant(cfg model.Config, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(cfg.SessionDate), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: session date %q: %w", ErrSchema, cfg.SessionDate, err)
	}

	clock := strings.TrimSpace(cfg.SessionStartTime)
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, clock)
		if err != nil {
			continue
		}
		return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: session start time %q", ErrSchema, cfg.SessionStartTime)
}
