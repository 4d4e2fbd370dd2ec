// Package transport declares the remote service contract shared by every way
// of reaching the bike service. Implementations return raw JSON payloads;
// decoding and validation belong to the fetcher.
package transport

import (
	"context"
	"time"
)

// Transport performs one request per call. Implementations do not retry.
type Transport interface {
	// GetConfig returns the active device/track configuration.
	GetConfig(ctx context.Context) ([]byte, error)

	// GetData returns the current sample of a device.
	GetData(ctx context.Context, deviceID string) ([]byte, error)

	// GetHistory returns up to count recent sample records of a device.
	GetHistory(ctx context.Context, deviceID string, count int) ([]byte, error)

	// GetWeatherSingleStation returns a station reading. found is false when
	// the service has no data for this caller, which is not an error.
	GetWeatherSingleStation(ctx context.Context, stationID int) (payload []byte, found bool, err error)

	// Close releases the underlying connection.
	Close() error
}

// Message is a payload pushed by the remote side without a request.
type Message struct {
	Payload  []byte
	Received time.Time
}

// Pusher is implemented by transports that receive unsolicited samples.
// The returned channel has exactly one consumer.
type Pusher interface {
	Pushed(ctx context.Context) <-chan Message
}
