// Package service wires the store, recorder, change feed and displays into
// the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/hoops/internal/adapters/mq/queue"
	"github.com/okian/hoops/internal/adapters/mq/worker"
	"github.com/okian/hoops/internal/adapters/pubsub"
	"github.com/okian/hoops/internal/adapters/repository"
	"github.com/okian/hoops/internal/domain/aggregate"
	"github.com/okian/hoops/internal/domain/dedupe"
	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/internal/domain/recorder"
	"github.com/okian/hoops/internal/domain/types"
	"github.com/okian/hoops/pkg/logger"
	"github.com/okian/hoops/pkg/metrics"
)

// Service implements the API dependencies of the scorebook.
type Service struct {
	mu sync.RWMutex

	store    repository.Store
	broker   pubsub.Broker
	deduper  dedupe.Deduper
	opener   *pubsub.Opener
	recorder *recorder.Recorder
	feed     *queue.InMemoryQueue
	pool     *worker.Pool

	controllers map[string]*recorder.Controller
	displays    map[string]*Display

	relayWorkers     int
	queueSize        int
	statusClearAfter time.Duration
	refreshInterval  time.Duration
	gamesPlayed      types.GamesPlayedPolicy
	resultPolicy     ResultPolicy
	rankingLimit     int

	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service. Unset collaborators default to in-memory ones.
func New(opts ...Option) *Service {
	s := &Service{
		relayWorkers:     runtime.NumCPU(),
		queueSize:        10000,
		statusClearAfter: recorder.DefaultStatusClearAfter,
		refreshInterval:  30 * time.Second,
		gamesPlayed:      types.PolicyDistinctGames,
		resultPolicy:     ResultVerified,
		rankingLimit:     aggregate.DefaultRankingLimit,
		opener:           pubsub.NewOpener(),
		controllers:      make(map[string]*recorder.Controller),
		displays:         make(map[string]*Display),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.broker == nil {
		s.broker = pubsub.NewHub()
	}
	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.recorder = recorder.New(s.store, s.deduper)
	return s
}

// Start connects the change feed to the broker.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if err := s.resultPolicy.validate(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.feed = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.store.OnChange(func(c model.Change) {
		s.feed.Enqueue(runCtx, c)
	})
	s.pool = worker.NewPool(s.relayWorkers, s.feed, s.broker)
	s.pool.Start(runCtx)

	if l, ok := s.store.(repository.Listener); ok {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := l.Listen(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error(runCtx, "change feed listener stopped", logger.Error(err))
				metrics.RecordErrorByComponent("listener", "stopped")
			}
		}()
	}

	s.started = true
	s.logger.Info(ctx, "scorebook service started",
		logger.Int("relay_workers", s.relayWorkers),
		logger.Int("queue_size", s.queueSize),
		logger.String("result_policy", string(s.resultPolicy)),
		logger.String("games_played_policy", string(s.gamesPlayed)),
	)
	return nil
}

// Stop closes displays and controllers, drains the feed and closes the
// broker and store.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	displays := s.displays
	s.displays = make(map[string]*Display)
	controllers := s.controllers
	s.controllers = make(map[string]*recorder.Controller)
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping scorebook service")

	for _, d := range displays {
		d.Close()
	}
	for _, c := range controllers {
		c.Close()
	}
	metrics.UpdateActiveControllers(0)

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "relay pool shutdown", logger.Error(err))
	}
	s.cancel()
	s.wg.Wait()

	if err := s.broker.Close(); err != nil {
		s.logger.Warn(ctx, "close broker", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "close store", logger.Error(err))
	}
	s.logger.Info(ctx, "scorebook service stopped")
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CreateTeam stores a team.
func (s *Service) CreateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	return s.store.CreateTeam(ctx, t)
}

// ListTeams returns every team.
func (s *Service) ListTeams(ctx context.Context) ([]model.Team, error) {
	return s.store.ListTeams(ctx)
}

// CreatePlayer stores a player.
func (s *Service) CreatePlayer(ctx context.Context, p model.Player) (model.Player, error) {
	return s.store.CreatePlayer(ctx, p)
}

// ListPlayers returns the roster of team.
func (s *Service) ListPlayers(ctx context.Context, team int64) ([]model.Player, error) {
	teams, err := s.store.ListTeams(ctx, team)
	if err != nil {
		return nil, err
	}
	if len(teams) == 0 {
		return nil, fmt.Errorf("team %d: %w", team, repository.ErrNotFound)
	}
	return s.store.ListPlayers(ctx, team)
}

// CreateGame stores a game.
func (s *Service) CreateGame(ctx context.Context, g model.Game) (model.Game, error) {
	return s.store.CreateGame(ctx, g)
}

// GetGame returns one game.
func (s *Service) GetGame(ctx context.Context, id int64) (model.Game, error) {
	return s.store.GetGame(ctx, id)
}

// ListGames returns every game.
func (s *Service) ListGames(ctx context.Context) ([]model.Game, error) {
	return s.store.ListGames(ctx)
}

// Record submits d through a short-lived controller. The commit does not
// signal any opener.
func (s *Service) Record(ctx context.Context, d recorder.Draft) (recorder.Receipt, error) {
	c := recorder.NewController(s.recorder, d.GameID, recorder.WithStatusClearAfter(s.statusClearAfter))
	defer c.Close()
	return c.SubmitDraft(ctx, d)
}

// OpenController creates a recording surface for gameID. When openerID names
// a display, every commit signals that display's mailbox.
func (s *Service) OpenController(ctx context.Context, gameID int64, openerID string) (*recorder.Controller, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	if _, err := s.store.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	opts := []recorder.ControllerOption{recorder.WithStatusClearAfter(s.statusClearAfter)}
	if openerID != "" {
		opts = append(opts, recorder.WithOnCommit(func(ctx context.Context, gameID int64, _ []model.ScoreEvent) {
			if !s.opener.Signal(openerID) {
				s.logger.Debug(ctx, "opener gone, signal dropped",
					logger.String("opener_id", openerID),
					logger.Any("game_id", gameID),
				)
			}
		}))
	}
	c := recorder.NewController(s.recorder, gameID, opts...)

	s.mu.Lock()
	s.controllers[c.ID()] = c
	n := len(s.controllers)
	s.mu.Unlock()
	metrics.UpdateActiveControllers(n)
	return c, nil
}

// Controller returns an open controller.
func (s *Service) Controller(id string) (*recorder.Controller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.controllers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrControllerNotFound, id)
	}
	return c, nil
}

// CloseController closes and forgets a controller.
func (s *Service) CloseController(id string) error {
	s.mu.Lock()
	c, ok := s.controllers[id]
	delete(s.controllers, id)
	n := len(s.controllers)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrControllerNotFound, id)
	}
	c.Close()
	metrics.UpdateActiveControllers(n)
	return nil
}

// Events returns the log of a game ordered by seq.
func (s *Service) Events(ctx context.Context, gameID int64) ([]model.ScoreEvent, error) {
	if _, err := s.store.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, repository.EventQuery{GameID: gameID})
}

// UpdateEvent applies an admin correction to one event.
func (s *Service) UpdateEvent(ctx context.Context, id int64, patch model.EventPatch) (model.ScoreEvent, error) {
	return s.store.UpdateEvent(ctx, id, patch)
}

// DeleteEvent removes one event.
func (s *Service) DeleteEvent(ctx context.Context, id int64) (model.ScoreEvent, error) {
	return s.store.DeleteEvent(ctx, id)
}

// Scoreboard folds the current log of a game into a Snapshot.
func (s *Service) Scoreboard(ctx context.Context, gameID int64) (aggregate.Snapshot, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return aggregate.Snapshot{}, err
	}
	teams, err := s.store.ListTeams(ctx, game.TeamAID, game.TeamBID)
	if err != nil {
		return aggregate.Snapshot{}, fmt.Errorf("load teams: %w", err)
	}
	roster, err := s.store.ListPlayers(ctx, game.TeamAID, game.TeamBID)
	if err != nil {
		return aggregate.Snapshot{}, fmt.Errorf("load roster: %w", err)
	}
	events, err := s.store.ListEvents(ctx, repository.EventQuery{GameID: gameID})
	if err != nil {
		return aggregate.Snapshot{}, fmt.Errorf("load events: %w", err)
	}
	var result *model.GameResult
	if r, err := s.store.GetResult(ctx, gameID); err == nil {
		result = &r
	} else if !errors.Is(err, repository.ErrNotFound) {
		return aggregate.Snapshot{}, fmt.Errorf("load result: %w", err)
	}

	started := time.Now()
	byID := make(map[int64]model.Team, len(teams))
	for _, t := range teams {
		byID[t.ID] = t
	}
	snap := aggregate.BoxScore(game, byID, roster, events, result)
	metrics.RecordAggregationLatency(float64(time.Since(started).Microseconds()) / 1000)
	return snap, nil
}

// Fouls returns the per-quarter team foul chart of a game.
func (s *Service) Fouls(ctx context.Context, gameID int64) ([]aggregate.FoulRow, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, repository.EventQuery{GameID: gameID, Kinds: []model.Kind{model.KindFoul}})
	if err != nil {
		return nil, err
	}
	return aggregate.TeamFoulChart(events, game.TeamAID, game.TeamBID), nil
}

// Rankings computes the cross-game ranking for q. Empty policy and limit
// take the service defaults.
func (s *Service) Rankings(ctx context.Context, q aggregate.RankQuery) ([]types.Entry, error) {
	if q.Policy == "" {
		q.Policy = s.gamesPlayed
	}
	if q.Limit <= 0 {
		q.Limit = s.rankingLimit
	}
	kinds := []model.Kind{model.KindStarter, model.KindParticipation}
	switch q.Category {
	case types.CategoryAssists:
		kinds = append(kinds, model.KindAssist)
	case types.CategoryRebounds:
		kinds = append(kinds, model.KindRebound)
	case types.CategorySteals:
		kinds = append(kinds, model.KindSteal)
	case types.CategoryBlocks:
		kinds = append(kinds, model.KindBlock)
	default:
		kinds = append(kinds, model.KindPoint2P, model.KindPoint3P, model.KindPointFT)
	}
	events, err := s.store.ListEvents(ctx, repository.EventQuery{Kinds: kinds})
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	players, err := s.store.ListPlayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load players: %w", err)
	}
	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	started := time.Now()
	entries := aggregate.Rank(events, players, teams, q)
	metrics.RecordAggregationLatency(float64(time.Since(started).Microseconds()) / 1000)
	return entries, nil
}

// Stats returns runtime counters for the stats endpoint.
func (s *Service) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":             s.started,
		"relay_workers":       s.relayWorkers,
		"queue_size":          s.queueSize,
		"result_policy":       s.resultPolicy,
		"games_played_policy": s.gamesPlayed,
		"controllers":         len(s.controllers),
		"displays":            len(s.displays),
		"opener_mailboxes":    s.opener.Len(),
	}
	if s.started {
		stats["queue_length"] = s.feed.Len()
		stats["relayed"] = s.pool.Processed()
	}
	if d, ok := s.deduper.(interface{ Size() int64 }); ok {
		stats["idempotency_keys"] = d.Size()
	}
	return stats
}
