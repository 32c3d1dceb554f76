package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/hoops/internal/replay"
	"github.com/okian/hoops/pkg/logger"
)

// Default configuration constants.
const (
	defaultGames         = 4
	defaultEventsPerGame = 200
	defaultRosterSize    = 10
	defaultDuplicateRate = 0.1
	defaultWorkers       = 2 // multiplier for runtime.NumCPU()
	defaultTimeout       = 30 * time.Second
	defaultRunTimeout    = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		games      = flag.Int("games", defaultGames, "Number of games to simulate")
		events     = flag.Int("events", defaultEventsPerGame, "Drafts per game after the starting lineups")
		roster     = flag.Int("roster", defaultRosterSize, "Players per team")
		dupRate    = flag.Float64("dup-rate", defaultDuplicateRate, "Share of drafts resubmitted with the same idempotency key")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed       = flag.Uint64("seed", 0, "Generator seed (0 uses the clock)")
		outputFile = flag.String("output", "", "Write the generated drafts to this JSON file")
		logFormat  = flag.String("log-format", logger.FormatText, "Log format: text or json")
		verbose    = flag.Bool("verbose", false, "Log every failed submission")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*logFormat)); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &replay.Config{
		BaseURL:       *baseURL,
		Games:         *games,
		EventsPerGame: *events,
		RosterSize:    *roster,
		DuplicateRate: *dupRate,
		Workers:       *workers,
		Timeout:       *timeout,
		Seed:          *seed,
		OutputFile:    *outputFile,
		Verbose:       *verbose,
	}
	if _, err := replay.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "replay failed", logger.Error(err))
		cancel()
		os.Exit(1)
	}
}
