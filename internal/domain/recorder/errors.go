package recorder

import (
	"errors"
	"sort"
	"strings"
)

// Sentinel errors returned by the recorder and its controllers.
var (
	ErrStoreWrite     = errors.New("store write failed")
	ErrGameNotFound   = errors.New("game not found")
	ErrIdempotency    = errors.New("idempotency ledger unavailable")
	ErrPending        = errors.New("a submission with this idempotency key is still in flight")
	ErrSubmitInFlight = errors.New("a submission is already in flight")
	ErrClosed         = errors.New("controller closed")
)

// ValidationError lists the fields that made a draft unacceptable.
// Keys are request field names.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid draft: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// IsValidation reports whether err carries field errors and returns them.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
