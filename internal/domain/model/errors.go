package model

import "errors"

// Failure kinds shared across layers. Callers classify with errors.Is.
var (
	// ErrNetwork means the remote service could not be reached or answered
	// with a transport-level failure.
	ErrNetwork = errors.New("network error")
	// ErrSchema means a response arrived but required fields are missing or
	// malformed.
	ErrSchema = errors.New("schema error")
)
