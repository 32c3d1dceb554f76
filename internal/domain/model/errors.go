package model

import "errors"

// Sentinel kinds for model parsing errors.
var (
	ErrInvalidKind    = errors.New("invalid event kind")
	ErrInvalidQuarter = errors.New("invalid quarter")
)
