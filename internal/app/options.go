package app

import (
	"time"

	"github.com/okian/bikewatch/pkg/logger"
)

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithPollInterval sets the delay between refresh cycles.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithHistoryCount sets how many history records each cycle fetches.
func WithHistoryCount(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.historyCount = n
		}
	}
}

// WithChartMargin sets how many points the mini charts drop from each end.
func WithChartMargin(m int) Option {
	return func(c *Controller) {
		if m >= 0 {
			c.margin = m
		}
	}
}

// WithWeatherStation selects the weather station. Zero disables weather.
func WithWeatherStation(id int) Option {
	return func(c *Controller) {
		if id >= 0 {
			c.station = id
		}
	}
}

// WithConfigRefresh sets how often a cycle re-resolves the configuration.
// Zero disables periodic refresh.
func WithConfigRefresh(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.configRefresh = d
		}
	}
}

// WithDevice pins the device and track regardless of the remote config.
func WithDevice(deviceID, trackID string) Option {
	return func(c *Controller) {
		c.deviceOverride = deviceID
		c.trackOverride = trackID
	}
}

// WithClock sets the clock used for gate decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a custom logger for the controller.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}
