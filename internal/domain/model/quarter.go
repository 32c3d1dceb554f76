package model

import (
	"fmt"
	"strings"
)

// Quarter is the game period an event belongs to.
// QuarterStarter is a pseudo-period used for lineup registration.
type Quarter string

// Quarters.
const (
	QuarterStarter Quarter = "starter"
	QuarterFirst   Quarter = "first"
	QuarterSecond  Quarter = "second"
	QuarterThird   Quarter = "third"
	QuarterFourth  Quarter = "fourth"
)

// PlayQuarters returns the four playing quarters in order.
func PlayQuarters() []Quarter {
	return []Quarter{QuarterFirst, QuarterSecond, QuarterThird, QuarterFourth}
}

// ParseQuarter validates s.
func ParseQuarter(s string) (Quarter, error) {
	q := Quarter(strings.TrimSpace(s))
	if !q.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidQuarter, s)
	}
	return q, nil
}

// Valid reports whether q is a known quarter.
func (q Quarter) Valid() bool {
	switch q {
	case QuarterStarter, QuarterFirst, QuarterSecond, QuarterThird, QuarterFourth:
		return true
	}
	return false
}

// IsPlay is false for the starter pseudo-quarter.
func (q Quarter) IsPlay() bool {
	return q.Valid() && q != QuarterStarter
}
