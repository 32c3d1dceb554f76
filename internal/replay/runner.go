// Package replay drives a running scorebook through its HTTP API: it builds
// a small league, records generated games with idempotency keys and checks
// the served box scores against a local fold of the same drafts.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/pkg/logger"
)

// ErrMismatch is returned when a served box score disagrees with the fold.
var ErrMismatch = errors.New("scoreboard mismatch")

const (
	directoryPermission = 0750
	rankingLimit        = 10
	percentage          = 100
)

// Run executes a complete replay and returns its statistics.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Named("replay")
	stats := &Stats{StartTime: time.Now()}
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting replay",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("games", cfg.Games),
		logger.Int("eventsPerGame", cfg.EventsPerGame),
		logger.Int("workers", cfg.Workers))

	if err := client.Ready(ctx); err != nil {
		return stats, fmt.Errorf("service readiness check failed: %w", err)
	}

	gen := newGenerator(cfg.Seed)
	fixtures := make([]Fixture, 0, cfg.Games)
	plans := make(map[int64][]Submission, cfg.Games)
	for i := 0; i < cfg.Games; i++ {
		fx, err := setupGame(ctx, client, i, cfg.RosterSize)
		if err != nil {
			return stats, fmt.Errorf("game setup failed: %w", err)
		}
		fixtures = append(fixtures, fx)
		plans[fx.Game.ID] = gen.game(fx, cfg.EventsPerGame, cfg.DuplicateRate)
		stats.GamesCreated++
		stats.DraftsGenerated += len(plans[fx.Game.ID])
	}

	if cfg.OutputFile != "" {
		if err := save(cfg.OutputFile, fixtures, plans); err != nil {
			log.Warn(ctx, "failed to save drafts", logger.Error(err))
		}
	}

	if err := submit(ctx, client, cfg, fixtures, plans, stats); err != nil {
		return stats, fmt.Errorf("submission failed: %w", err)
	}
	if err := verify(ctx, client, fixtures, plans, stats); err != nil {
		finish(ctx, stats)
		return stats, err
	}
	finish(ctx, stats)
	return stats, nil
}

// setupGame creates two teams with rosterSize players each and a game
// between them.
func setupGame(ctx context.Context, c *Client, n, rosterSize int) (Fixture, error) {
	fx := Fixture{Rosters: make(map[int64][]model.Player, 2)}
	for side := range fx.Teams {
		name := "Replay " + strconv.Itoa(n+1) + string(rune('A'+side))
		t, err := c.CreateTeam(ctx, model.Team{Name: name, Area: "Replay"})
		if err != nil {
			return fx, err
		}
		fx.Teams[side] = t
		for no := 1; no <= rosterSize; no++ {
			p, err := c.CreatePlayer(ctx, model.Player{TeamID: t.ID, No: no, Name: name + " #" + strconv.Itoa(no)})
			if err != nil {
				return fx, err
			}
			fx.Rosters[t.ID] = append(fx.Rosters[t.ID], p)
		}
	}
	g, err := c.CreateGame(ctx, fx.Teams[0].ID, fx.Teams[1].ID)
	if err != nil {
		return fx, err
	}
	fx.Game = g
	return fx, nil
}

// submit posts every draft with cfg.Workers concurrent submitters, then
// replays the drafts marked Repeat with their original keys.
func submit(ctx context.Context, c *Client, cfg *Config, fixtures []Fixture, plans map[int64][]Submission, stats *Stats) error {
	var submitted, committed, duplicate, failed int64
	log := logger.Named("replay")

	post := func(ctx context.Context, s Submission) {
		atomic.AddInt64(&submitted, 1)
		rc, err := c.Submit(ctx, s)
		switch {
		case err != nil:
			atomic.AddInt64(&failed, 1)
			if cfg.Verbose {
				log.Warn(ctx, "submission failed", logger.String("key", s.IdempotencyKey), logger.Error(err))
			}
		case rc.Duplicate:
			atomic.AddInt64(&duplicate, 1)
		default:
			atomic.AddInt64(&committed, 1)
		}
	}

	for _, pass := range []func(Submission) bool{
		func(Submission) bool { return true },
		func(s Submission) bool { return s.Repeat },
	} {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Workers)
		for _, fx := range fixtures {
			for _, s := range plans[fx.Game.ID] {
				if !pass(s) {
					continue
				}
				g.Go(func() error {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					post(gctx, s)
					return nil
				})
			}
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	stats.DraftsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.DraftsCommitted = int(atomic.LoadInt64(&committed))
	stats.DraftsDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.DraftsFailed = int(atomic.LoadInt64(&failed))
	log.Info(ctx, "submission completed",
		logger.Int("committed", stats.DraftsCommitted),
		logger.Int("duplicate", stats.DraftsDuplicate),
		logger.Int("failed", stats.DraftsFailed))
	return nil
}

type savedGame struct {
	Fixture Fixture      `json:"fixture"`
	Drafts  []Submission `json:"drafts"`
}

// save writes the fixtures and their drafts as JSON.
func save(filename string, fixtures []Fixture, plans map[int64][]Submission) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	out := make([]savedGame, 0, len(fixtures))
	for _, fx := range fixtures {
		out = append(out, savedGame{Fixture: fx, Drafts: plans[fx.Game.ID]})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o600)
}

// finish stamps the end time and logs the final statistics.
func finish(ctx context.Context, stats *Stats) {
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	var successRate, draftsPerSecond float64
	if stats.DraftsSubmitted > 0 {
		successRate = float64(stats.DraftsCommitted+stats.DraftsDuplicate) / float64(stats.DraftsSubmitted) * percentage
	}
	if stats.Duration > 0 {
		draftsPerSecond = float64(stats.DraftsSubmitted) / stats.Duration.Seconds()
	}
	logger.Named("replay").Info(ctx, "final statistics",
		logger.Int("games", stats.GamesCreated),
		logger.Int("draftsGenerated", stats.DraftsGenerated),
		logger.Int("draftsSubmitted", stats.DraftsSubmitted),
		logger.Int("draftsCommitted", stats.DraftsCommitted),
		logger.Int("draftsDuplicate", stats.DraftsDuplicate),
		logger.Int("draftsFailed", stats.DraftsFailed),
		logger.Int("gamesVerified", stats.GamesVerified),
		logger.Int("mismatches", stats.Mismatches),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("draftsPerSecond", draftsPerSecond))
}
