package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/pkg/metrics"
)

// MemoryStore keeps every record set in process memory.
type MemoryStore struct {
	Notifier

	mu      sync.RWMutex
	teams   map[int64]model.Team
	players map[int64]model.Player
	games   map[int64]model.Game
	events  map[int64]model.ScoreEvent
	results map[int64]model.GameResult
	lastSeq map[int64]int64

	nextTeam, nextPlayer, nextGame, nextEvent int64

	now    func() time.Time
	closed bool
	// failAppend, when set, is returned by AppendEvents. Test hook.
	failAppend error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		teams:   make(map[int64]model.Team),
		players: make(map[int64]model.Player),
		games:   make(map[int64]model.Game),
		events:  make(map[int64]model.ScoreEvent),
		results: make(map[int64]model.GameResult),
		lastSeq: make(map[int64]int64),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}

// CreateTeam implements Store.
func (s *MemoryStore) CreateTeam(_ context.Context, t model.Team) (model.Team, error) {
	if err := ValidateTeam(&t); err != nil {
		return model.Team{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTeam++
	t.ID = s.nextTeam
	s.teams[t.ID] = t
	return t, nil
}

// ListTeams implements Store.
func (s *MemoryStore) ListTeams(_ context.Context, ids ...int64) ([]model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Team, 0, len(s.teams))
	for _, t := range s.teams {
		if len(ids) == 0 || slices.Contains(ids, t.ID) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreatePlayer implements Store.
func (s *MemoryStore) CreatePlayer(_ context.Context, p model.Player) (model.Player, error) {
	if err := ValidatePlayer(&p); err != nil {
		return model.Player{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[p.TeamID]; !ok {
		return model.Player{}, fmt.Errorf("team %d: %w", p.TeamID, ErrNotFound)
	}
	s.nextPlayer++
	p.ID = s.nextPlayer
	s.players[p.ID] = p
	return p, nil
}

// ListPlayers implements Store. Players are ordered by team, number then id.
func (s *MemoryStore) ListPlayers(_ context.Context, teamIDs ...int64) ([]model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Player, 0, len(s.players))
	for _, p := range s.players {
		if len(teamIDs) == 0 || slices.Contains(teamIDs, p.TeamID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TeamID != b.TeamID {
			return a.TeamID < b.TeamID
		}
		if a.No != b.No {
			return a.No < b.No
		}
		return a.ID < b.ID
	})
	return out, nil
}

// CreateGame implements Store.
func (s *MemoryStore) CreateGame(_ context.Context, g model.Game) (model.Game, error) {
	if err := ValidateGame(&g); err != nil {
		return model.Game{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range []int64{g.TeamAID, g.TeamBID} {
		if _, ok := s.teams[id]; !ok {
			return model.Game{}, fmt.Errorf("team %d: %w", id, ErrNotFound)
		}
	}
	s.nextGame++
	g.ID = s.nextGame
	if g.Date.IsZero() {
		g.Date = s.now().UTC()
	}
	s.games[g.ID] = g
	return g, nil
}

// GetGame implements Store.
func (s *MemoryStore) GetGame(_ context.Context, id int64) (model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	if !ok {
		return model.Game{}, fmt.Errorf("game %d: %w", id, ErrNotFound)
	}
	return g, nil
}

// ListGames implements Store.
func (s *MemoryStore) ListGames(_ context.Context) ([]model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Game, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AppendEvents implements Store.
func (s *MemoryStore) AppendEvents(_ context.Context, events []model.ScoreEvent) ([]model.ScoreEvent, error) {
	defer observe("append", time.Now())
	gameID, err := ValidateBatch(events)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.failAppend != nil {
		s.mu.Unlock()
		return nil, s.failAppend
	}
	if _, ok := s.games[gameID]; !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("game %d: %w", gameID, ErrNotFound)
	}
	now := s.now().UTC()
	out := make([]model.ScoreEvent, len(events))
	for i, e := range events {
		s.nextEvent++
		s.lastSeq[gameID]++
		e.ID = s.nextEvent
		e.Seq = s.lastSeq[gameID]
		e.CreatedAt = now
		s.events[e.ID] = e
		out[i] = e
	}
	s.mu.Unlock()

	s.Emit(InsertChanges(out)...)
	return out, nil
}

// ListEvents implements Store.
func (s *MemoryStore) ListEvents(_ context.Context, q EventQuery) ([]model.ScoreEvent, error) {
	defer observe("list", time.Now())
	kinds := KindSet(q.Kinds)
	s.mu.RLock()
	out := make([]model.ScoreEvent, 0)
	for _, e := range s.events {
		if q.GameID != 0 && e.GameID != q.GameID {
			continue
		}
		if q.TeamID != 0 && e.TeamID != q.TeamID {
			continue
		}
		if q.Quarter != "" && e.Quarter != q.Quarter {
			continue
		}
		if kinds != nil {
			if _, ok := kinds[e.Kind]; !ok {
				continue
			}
		}
		if len(q.PlayerIDs) > 0 && !slices.Contains(q.PlayerIDs, e.Player()) {
			continue
		}
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].GameID != out[j].GameID {
			return out[i].GameID < out[j].GameID
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

// GetEvent implements Store.
func (s *MemoryStore) GetEvent(_ context.Context, id int64) (model.ScoreEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return model.ScoreEvent{}, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return e, nil
}

// UpdateEvent implements Store.
func (s *MemoryStore) UpdateEvent(_ context.Context, id int64, patch model.EventPatch) (model.ScoreEvent, error) {
	defer observe("update", time.Now())
	s.mu.Lock()
	e, ok := s.events[id]
	if !ok {
		s.mu.Unlock()
		return model.ScoreEvent{}, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	updated := patch.Apply(e)
	if err := ValidateEvent(&updated); err != nil {
		s.mu.Unlock()
		return model.ScoreEvent{}, err
	}
	if g, ok := s.games[updated.GameID]; ok {
		if err := ValidateEventInGame(&g, &updated); err != nil {
			s.mu.Unlock()
			return model.ScoreEvent{}, err
		}
	}
	s.events[id] = updated
	s.mu.Unlock()

	s.Emit(ChangeOf(model.ChangeUpdate, &updated))
	return updated, nil
}

// DeleteEvent implements Store.
func (s *MemoryStore) DeleteEvent(_ context.Context, id int64) (model.ScoreEvent, error) {
	defer observe("delete", time.Now())
	s.mu.Lock()
	e, ok := s.events[id]
	if !ok {
		s.mu.Unlock()
		return model.ScoreEvent{}, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	delete(s.events, id)
	s.mu.Unlock()

	s.Emit(ChangeOf(model.ChangeDelete, &e))
	return e, nil
}

// GetResult implements Store.
func (s *MemoryStore) GetResult(_ context.Context, gameID int64) (model.GameResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[gameID]
	if !ok {
		return model.GameResult{}, fmt.Errorf("result for game %d: %w", gameID, ErrNotFound)
	}
	return r, nil
}

// PutResult implements Store.
func (s *MemoryStore) PutResult(_ context.Context, r model.GameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[r.GameID]
	if !ok {
		return fmt.Errorf("game %d: %w", r.GameID, ErrNotFound)
	}
	if err := ValidateResult(&g, &r); err != nil {
		return err
	}
	if _, ok := s.results[r.GameID]; ok {
		return ErrResultExists
	}
	s.results[r.GameID] = r
	return nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Count returns the number of stored score events.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
