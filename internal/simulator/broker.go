package simulator

import (
	"fmt"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// StartBroker runs an in-process MQTT broker accepting every client on addr.
// Close the returned server to stop it.
func StartBroker(addr string) (*mochi.Server, error) {
	broker := mochi.New(nil)
	if err := broker.AddHook(&auth.AllowHook{}, nil); err != nil {
		return nil, fmt.Errorf("failed to add auth hook: %w", err)
	}
	if err := broker.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "bikesim",
		Address: addr,
	})); err != nil {
		return nil, fmt.Errorf("failed to add listener: %w", err)
	}
	if err := broker.Serve(); err != nil {
		return nil, fmt.Errorf("failed to serve broker: %w", err)
	}
	return broker, nil
}
