package fetcher

import (
	"time"

	"github.com/okian/bikewatch/pkg/logger"
)

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClock sets the clock used to stamp samples that carry no timestamp.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.log = l
		}
	}
}
