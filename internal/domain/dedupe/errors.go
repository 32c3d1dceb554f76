package dedupe

import "errors"

// Sentinel kinds for deduper errors.
var (
	ErrUnknownKey = errors.New("idempotency key not claimed")
	ErrBackend    = errors.New("idempotency backend failed")
)
