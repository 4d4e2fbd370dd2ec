package model

// Config identifies the active device and track and when the live session starts.
// It is replaced wholesale on every resolution, never patched.
type Config struct {
	DeviceID         string `json:"deviceId"`
	TrackID          string `json:"trackId"`
	SessionDate      string `json:"sessionDate"`
	SessionStartTime string `json:"sessionStartTime"`
}

// WithDevice returns a copy of c pointing at another device and track.
// Empty arguments keep the current values.
func (c Config) WithDevice(deviceID, trackID string) Config {
	if deviceID != "" {
		c.DeviceID = deviceID
	}
	if trackID != "" {
		c.TrackID = trackID
	}
	return c
}

// SameDevice reports whether both configs address the same device and track.
func (c Config) SameDevice(o Config) bool {
	return c.DeviceID == o.DeviceID && c.TrackID == o.TrackID
}

// Weather is the optional enrichment reading of a weather station.
type Weather struct {
	Temperature float64 `json:"temperature"`
}
