// Package config defines process configuration structures and loading hooks.
//
// Conventions:
//   - New() returns a Config populated with defaults.
//   - Load(ctx) layers a YAML file and environment variables on top.
//   - Validation failures wrap ErrInvalidConfig.
package config

import "time"

// Transport names accepted by the transport key.
const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or console.
	LogFormat string `koanf:"log_format"`

	// Addr configures the snapshot API listen address, e.g. ":9090".
	Addr string `koanf:"addr"`

	// Transport selects how the remote service is reached: http or mqtt.
	Transport string `koanf:"transport"`

	// BaseURL is the remote service root for the http transport.
	BaseURL string `koanf:"base_url"`

	// HTTPTimeoutMS bounds a single remote request.
	HTTPTimeoutMS int `koanf:"http_timeout_ms"`

	// MQTTHost, MQTTPort and MQTTPrefix locate the pub/sub channel.
	MQTTHost   string `koanf:"mqtt_host"`
	MQTTPort   int    `koanf:"mqtt_port"`
	MQTTPrefix string `koanf:"mqtt_prefix"`

	// PollIntervalMS is the pause between the end of one cycle and the start of the next.
	PollIntervalMS int `koanf:"poll_interval_ms"`

	// HistoryCount is how many history records are requested per cycle.
	HistoryCount int `koanf:"history_count"`

	// ChartMargin is the number of points dropped at each end for the mini chart.
	ChartMargin int `koanf:"chart_margin"`

	// WeatherStation is the station queried for the optional weather reading.
	WeatherStation int `koanf:"weather_station"`

	// Timezone names the location used to interpret session date and start time.
	Timezone string `koanf:"timezone"`

	// ConfigRefreshMS re-resolves the remote configuration this often; 0 disables it.
	ConfigRefreshMS int `koanf:"config_refresh_ms"`

	// PushQueueSize bounds samples pushed by the pub/sub transport.
	PushQueueSize int `koanf:"push_queue_size"`

	// DeviceID and TrackID, when set, override the remotely configured device/track.
	DeviceID string `koanf:"device_id"`
	TrackID  string `koanf:"track_id"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9090",
		Transport:       TransportHTTP,
		BaseURL:         "http://localhost:9080/api",
		HTTPTimeoutMS:   5000,
		MQTTHost:        "localhost",
		MQTTPort:        1883,
		MQTTPrefix:      "bikewatch",
		PollIntervalMS:  1000,
		HistoryCount:    30,
		ChartMargin:     5,
		WeatherStation:  3,
		Timezone:        "Local",
		ConfigRefreshMS: 60_000,
		PushQueueSize:   64,
	}
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// HTTPTimeout returns the remote request timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

// ConfigRefresh returns the config refresh interval as a duration.
func (c *Config) ConfigRefresh() time.Duration {
	return time.Duration(c.ConfigRefreshMS) * time.Millisecond
}

// Location resolves Timezone; "Local" and "" map to time.Local.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
