// Package pubsub carries GameUpdated notifications from recording surfaces
// to display surfaces. Delivery is at-most-once: a notification only tells a
// display to re-read the store, so a lost one is repaired by the display's
// periodic refresh.
package pubsub

import (
	"context"
	"fmt"
)

// Source names where a notification came from.
type Source string

// Notification sources.
const (
	SourceOpener Source = "opener"
	SourceFeed   Source = "feed"
)

// GameUpdated says the event log of GameID changed.
type GameUpdated struct {
	GameID int64  `json:"game_id"`
	TeamID int64  `json:"team_id,omitempty"`
	Source Source `json:"source"`
	Seq    int64  `json:"seq,omitempty"`
}

// Subscription is a live stream of notifications for one game.
type Subscription interface {
	// C is closed after Close or when the subscription's context ends.
	C() <-chan GameUpdated
	Close()
}

// Broker is the notification transport.
type Broker interface {
	Publish(ctx context.Context, u GameUpdated) error
	// Subscribe streams notifications for gameID until ctx is done or the
	// subscription is closed.
	Subscribe(ctx context.Context, gameID int64) (Subscription, error)
	Close() error
}

// Channel returns the transport channel name for a game.
func Channel(gameID int64) string {
	return fmt.Sprintf("hoops.game.%d", gameID)
}

func validate(gameID int64) error {
	if gameID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidGame, gameID)
	}
	return nil
}
