package model

import "fmt"

// GateState tells whether the live view is exposed.
type GateState int

const (
	// GateWaiting blocks the live view until the session starts.
	GateWaiting GateState = iota
	// GateLive exposes the live view. It is terminal.
	GateLive
)

func (s GateState) String() string {
	if s == GateLive {
		return "LIVE"
	}
	return "WAITING"
}

// MarshalText encodes the state by name.
func (s GateState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state encoded by MarshalText.
func (s *GateState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "LIVE":
		*s = GateLive
	case "WAITING":
		*s = GateWaiting
	default:
		return fmt.Errorf("%w: gate state %q", ErrSchema, b)
	}
	return nil
}
