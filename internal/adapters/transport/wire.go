package transport

// Request operations carried by pub/sub transports.
const (
	OpConfig  = "config"
	OpData    = "data"
	OpHistory = "history"
	OpWeather = "weather"
)

// Response status values, carried in the "status" user property.
const (
	StatusKey    = "status"
	StatusOK     = "ok"
	StatusAbsent = "absent"
	StatusError  = "error"
)

// Topic suffixes under the configured prefix.
const (
	RequestTopic  = "json request"
	ResponseTopic = "json response"
)

// Request is the pub/sub request envelope.
type Request struct {
	Op        string `json:"op"`
	DeviceID  string `json:"deviceId,omitempty"`
	Count     int    `json:"count,omitempty"`
	StationID int    `json:"stationId,omitempty"`
}

// Topic joins prefix and suffix with a slash. An empty prefix yields suffix.
func Topic(prefix, suffix string) string {
	if prefix == "" {
		return suffix
	}
	return prefix + "/" + suffix
}
