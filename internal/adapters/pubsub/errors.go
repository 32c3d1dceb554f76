package pubsub

import "errors"

// Sentinel kinds for broker errors.
var (
	ErrClosed      = errors.New("broker closed")
	ErrInvalidGame = errors.New("invalid game id")
)
