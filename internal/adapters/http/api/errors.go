package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNotMounted = errors.New("dashboard not mounted")
	ErrUpgrade    = errors.New("websocket upgrade failed")
)
