package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrNotStarted         = errors.New("service not started")
	ErrControllerNotFound = errors.New("controller not found")
	ErrResultMismatch     = errors.New("result contradicts the recorded score")
	ErrResultTie          = errors.New("recorded score is tied")
	ErrInvalidResult      = errors.New("result teams must be the two teams of the game")
	ErrInvalidPolicy      = errors.New("invalid result policy")
)
