package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrResultExists  = errors.New("game result already recorded")
	ErrInvalidRecord = errors.New("invalid record")
	ErrMixedGames    = errors.New("events span more than one game")
	ErrClosed        = errors.New("store closed")
)
