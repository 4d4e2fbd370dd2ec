package fetcher

import "github.com/okian/bikewatch/internal/domain/model"

// Error kinds returned by the fetcher.
var (
	ErrNetwork = model.ErrNetwork
	ErrSchema  = model.ErrSchema
)
