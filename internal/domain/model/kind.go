package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind classifies a score event.
type Kind string

// Event kinds.
const (
	KindPoint2P       Kind = "point_2P"
	KindPoint3P       Kind = "point_3P"
	KindPointFT       Kind = "point_FT"
	KindRebound       Kind = "rebound"
	KindAssist        Kind = "assist"
	KindTurnover      Kind = "turnover"
	KindSteal         Kind = "steal"
	KindBlock         Kind = "block"
	KindFoul          Kind = "foul"
	KindTimeout       Kind = "timeout"
	KindStarter       Kind = "starter"
	KindParticipation Kind = "participation"
)

// legacyFreeThrow is the free-throw spelling used by older clients.
const legacyFreeThrow = "point_1P"

// Kinds lists every valid kind in display order.
func Kinds() []Kind {
	return []Kind{
		KindPoint2P, KindPoint3P, KindPointFT,
		KindRebound, KindAssist, KindTurnover, KindSteal, KindBlock,
		KindFoul, KindTimeout, KindStarter, KindParticipation,
	}
}

// ParseKind validates s and normalizes the legacy free-throw spelling.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	if s == legacyFreeThrow {
		return KindPointFT, nil
	}
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPoint2P, KindPoint3P, KindPointFT,
		KindRebound, KindAssist, KindTurnover, KindSteal, KindBlock,
		KindFoul, KindTimeout, KindStarter, KindParticipation:
		return true
	}
	return false
}

// IsScoring reports whether events of this kind add to the score.
func (k Kind) IsScoring() bool {
	return k == KindPoint2P || k == KindPoint3P || k == KindPointFT
}

// IsLineup reports whether the kind records lineup presence.
func (k Kind) IsLineup() bool {
	return k == KindStarter || k == KindParticipation
}

// RequiresPlayer is false only for timeout.
func (k Kind) RequiresPlayer() bool {
	return k != KindTimeout
}

// UnmarshalJSON accepts the legacy free-throw spelling.
func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*k = ""
		return nil
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
