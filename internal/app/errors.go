package app

import "errors"

// Sentinel kinds for controller errors.
var (
	ErrNotMounted     = errors.New("dashboard not mounted")
	ErrAlreadyMounted = errors.New("dashboard already mounted")
	ErrInvalidDevice  = errors.New("invalid device")
	// ErrFatal wraps an initialization failure that stops polling.
	ErrFatal = errors.New("fatal initialization error")
)
