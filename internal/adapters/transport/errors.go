package transport

import "errors"

// Sentinel kinds for transport errors.
var (
	ErrClosed           = errors.New("transport closed")
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrRemote           = errors.New("remote error")
)
