package poller

import "errors"

// Sentinel kinds for poller errors.
var (
	ErrAlreadyStarted = errors.New("poller already started")
	ErrStopped        = errors.New("poller stopped")
)
