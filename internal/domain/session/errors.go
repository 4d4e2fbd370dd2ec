package session

import "github.com/okian/bikewatch/internal/domain/model"

// ErrSchema is returned for a malformed session date or start time.
var ErrSchema = model.ErrSchema
