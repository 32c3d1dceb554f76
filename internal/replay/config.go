package replay

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid replay config")

// Config holds configuration for a replay run.
type Config struct {
	BaseURL       string        // Base URL of the service
	Games         int           // Number of games to simulate
	EventsPerGame int           // Drafts per game after the starting lineups
	RosterSize    int           // Players created per team
	DuplicateRate float64       // Share of drafts submitted a second time with the same key
	Workers       int           // Concurrent submitters
	Timeout       time.Duration // HTTP request timeout
	Seed          uint64        // Generator seed; zero picks one from the clock
	OutputFile    string        // Optional JSON dump of the generated drafts
	Verbose       bool          // Log every rejected submission
}

// Validate checks the configured values.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.BaseURL) == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case c.Games < 1:
		return fmt.Errorf("%w: games must be positive", ErrInvalidConfig)
	case c.EventsPerGame < 0:
		return fmt.Errorf("%w: events must not be negative", ErrInvalidConfig)
	case c.RosterSize < 1:
		return fmt.Errorf("%w: roster size must be positive", ErrInvalidConfig)
	case c.DuplicateRate < 0 || c.DuplicateRate > 1:
		return fmt.Errorf("%w: duplicate rate must be within [0,1]", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	return nil
}

// Stats holds replay statistics.
type Stats struct {
	GamesCreated     int
	DraftsGenerated  int
	DraftsSubmitted  int
	DraftsCommitted  int
	DraftsDuplicate  int
	DraftsFailed     int
	GamesVerified    int
	Mismatches       int
	RankingsReturned int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
