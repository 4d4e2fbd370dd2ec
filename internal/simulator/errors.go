package simulator

import "errors"

// Sentinel kinds for simulated failures.
var (
	ErrOutage        = errors.New("simulated outage")
	ErrUnknownDevice = errors.New("unknown device")
	ErrUnknownOp     = errors.New("unknown operation")
	ErrNoData        = errors.New("no data yet")
)
