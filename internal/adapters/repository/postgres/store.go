// Package postgres provides a PostgreSQL-backed game store whose change
// feed is driven by LISTEN/NOTIFY, so writes from any process are observed.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/hoops/internal/adapters/repository"
	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/pkg/metrics"
)

// NotifyChannel is the channel the score_events trigger notifies on.
const NotifyChannel = "hoops_score_events"

const eventColumns = "id, game_id, team_id, player_id, quarter, kind, point, seq, created_at, idempotency_key"

// Postgres error codes.
const (
	codeForeignKey = "23503"
	codeUnique     = "23505"
)

//go:embed schema.sql
var schema string

// Config holds pool settings.
type Config struct {
	DSN      string
	MinConns int32
	MaxConns int32
}

// Store persists the league in PostgreSQL.
type Store struct {
	repository.Notifier
	pool *pgxpool.Pool
}

// Open connects, verifies the connection and ensures the schema exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping implements repository.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// CreateTeam implements repository.Store.
func (s *Store) CreateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	if err := repository.ValidateTeam(&t); err != nil {
		return model.Team{}, err
	}
	err := s.pool.QueryRow(ctx,
		"INSERT INTO teams (name, area, prefecture) VALUES ($1, $2, $3) RETURNING id",
		t.Name, t.Area, t.Prefecture).Scan(&t.ID)
	if err != nil {
		return model.Team{}, fmt.Errorf("insert team: %w", err)
	}
	return t, nil
}

// ListTeams implements repository.Store.
func (s *Store) ListTeams(ctx context.Context, ids ...int64) ([]model.Team, error) {
	q := "SELECT id, name, area, prefecture FROM teams"
	var args []any
	if len(ids) > 0 {
		q += " WHERE id = ANY($1)"
		args = append(args, ids)
	}
	rows, err := s.pool.Query(ctx, q+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Team, error) {
		var t model.Team
		err := row.Scan(&t.ID, &t.Name, &t.Area, &t.Prefecture)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan teams: %w", err)
	}
	return out, nil
}

// CreatePlayer implements repository.Store.
func (s *Store) CreatePlayer(ctx context.Context, p model.Player) (model.Player, error) {
	if err := repository.ValidatePlayer(&p); err != nil {
		return model.Player{}, err
	}
	err := s.pool.QueryRow(ctx,
		"INSERT INTO players (team_id, no, name, position) VALUES ($1, $2, $3, $4) RETURNING id",
		p.TeamID, p.No, p.Name, p.Position).Scan(&p.ID)
	if hasCode(err, codeForeignKey) {
		return model.Player{}, fmt.Errorf("team %d: %w", p.TeamID, repository.ErrNotFound)
	}
	if err != nil {
		return model.Player{}, fmt.Errorf("insert player: %w", err)
	}
	return p, nil
}

// ListPlayers implements repository.Store.
func (s *Store) ListPlayers(ctx context.Context, teamIDs ...int64) ([]model.Player, error) {
	q := "SELECT id, team_id, no, name, position FROM players"
	var args []any
	if len(teamIDs) > 0 {
		q += " WHERE team_id = ANY($1)"
		args = append(args, teamIDs)
	}
	rows, err := s.pool.Query(ctx, q+" ORDER BY team_id, no, id", args...)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Player, error) {
		var p model.Player
		err := row.Scan(&p.ID, &p.TeamID, &p.No, &p.Name, &p.Position)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan players: %w", err)
	}
	return out, nil
}

// CreateGame implements repository.Store.
func (s *Store) CreateGame(ctx context.Context, g model.Game) (model.Game, error) {
	if err := repository.ValidateGame(&g); err != nil {
		return model.Game{}, err
	}
	if g.Date.IsZero() {
		g.Date = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		"INSERT INTO games (team_a_id, team_b_id, date) VALUES ($1, $2, $3) RETURNING id",
		g.TeamAID, g.TeamBID, g.Date).Scan(&g.ID)
	if hasCode(err, codeForeignKey) {
		return model.Game{}, fmt.Errorf("teams %d/%d: %w", g.TeamAID, g.TeamBID, repository.ErrNotFound)
	}
	if err != nil {
		return model.Game{}, fmt.Errorf("insert game: %w", err)
	}
	return g, nil
}

func scanGame(row pgx.Row) (model.Game, error) {
	var g model.Game
	err := row.Scan(&g.ID, &g.TeamAID, &g.TeamBID, &g.Date)
	g.Date = g.Date.UTC()
	return g, err
}

// GetGame implements repository.Store.
func (s *Store) GetGame(ctx context.Context, id int64) (model.Game, error) {
	g, err := scanGame(s.pool.QueryRow(ctx, "SELECT id, team_a_id, team_b_id, date FROM games WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Game{}, fmt.Errorf("game %d: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return model.Game{}, fmt.Errorf("get game: %w", err)
	}
	return g, nil
}

// ListGames implements repository.Store.
func (s *Store) ListGames(ctx context.Context) ([]model.Game, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, team_a_id, team_b_id, date FROM games ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Game, error) {
		return scanGame(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan games: %w", err)
	}
	return out, nil
}

// AppendEvents implements repository.Store. Sequence numbers come from
// games.last_seq, which the row lock serializes per game.
func (s *Store) AppendEvents(ctx context.Context, events []model.ScoreEvent) ([]model.ScoreEvent, error) {
	defer observe("append", time.Now())
	gameID, err := repository.ValidateBatch(events)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var last int64
	err = tx.QueryRow(ctx,
		"UPDATE games SET last_seq = last_seq + $1 WHERE id = $2 RETURNING last_seq",
		len(events), gameID).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("game %d: %w", gameID, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("allocate seq: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	first := last - int64(len(events)) + 1
	out := make([]model.ScoreEvent, len(events))
	for i, e := range events {
		e.Seq = first + int64(i)
		e.CreatedAt = now
		err := tx.QueryRow(ctx,
			`INSERT INTO score_events (game_id, team_id, player_id, quarter, kind, point, seq, created_at, idempotency_key)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
			e.GameID, e.TeamID, e.PlayerID, string(e.Quarter), string(e.Kind), e.Point, e.Seq, e.CreatedAt, e.IdempotencyKey,
		).Scan(&e.ID)
		if err != nil {
			return nil, fmt.Errorf("insert event: %w", err)
		}
		out[i] = e
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return out, nil
}

func scanEvent(row pgx.Row) (model.ScoreEvent, error) {
	var e model.ScoreEvent
	var quarter, kind string
	if err := row.Scan(&e.ID, &e.GameID, &e.TeamID, &e.PlayerID, &quarter, &kind, &e.Point, &e.Seq, &e.CreatedAt, &e.IdempotencyKey); err != nil {
		return model.ScoreEvent{}, err
	}
	e.Quarter = model.Quarter(quarter)
	e.Kind = model.Kind(kind)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

// ListEvents implements repository.Store.
func (s *Store) ListEvents(ctx context.Context, q repository.EventQuery) ([]model.ScoreEvent, error) {
	defer observe("list", time.Now())
	var where []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.GameID != 0 {
		add("game_id = $%d", q.GameID)
	}
	if q.TeamID != 0 {
		add("team_id = $%d", q.TeamID)
	}
	if q.Quarter != "" {
		add("quarter = $%d", string(q.Quarter))
	}
	if len(q.Kinds) > 0 {
		kinds := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			kinds[i] = string(k)
		}
		add("kind = ANY($%d)", kinds)
	}
	if len(q.PlayerIDs) > 0 {
		add("player_id = ANY($%d)", q.PlayerIDs)
	}
	query := "SELECT " + eventColumns + " FROM score_events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	rows, err := s.pool.Query(ctx, query+" ORDER BY game_id, seq", args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ScoreEvent, error) {
		return scanEvent(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	if out == nil {
		out = []model.ScoreEvent{}
	}
	return out, nil
}

// GetEvent implements repository.Store.
func (s *Store) GetEvent(ctx context.Context, id int64) (model.ScoreEvent, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx, "SELECT "+eventColumns+" FROM score_events WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ScoreEvent{}, fmt.Errorf("event %d: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return model.ScoreEvent{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// UpdateEvent implements repository.Store.
func (s *Store) UpdateEvent(ctx context.Context, id int64, patch model.EventPatch) (model.ScoreEvent, error) {
	defer observe("update", time.Now())
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.ScoreEvent{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanEvent(tx.QueryRow(ctx, "SELECT "+eventColumns+" FROM score_events WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ScoreEvent{}, fmt.Errorf("event %d: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return model.ScoreEvent{}, fmt.Errorf("get event: %w", err)
	}
	updated := patch.Apply(current)
	if err := repository.ValidateEvent(&updated); err != nil {
		return model.ScoreEvent{}, err
	}
	game, err := scanGame(tx.QueryRow(ctx, "SELECT id, team_a_id, team_b_id, date FROM games WHERE id = $1", updated.GameID))
	if err != nil {
		return model.ScoreEvent{}, fmt.Errorf("get game: %w", err)
	}
	if err := repository.ValidateEventInGame(&game, &updated); err != nil {
		return model.ScoreEvent{}, err
	}
	if _, err := tx.Exec(ctx,
		"UPDATE score_events SET team_id = $1, player_id = $2, quarter = $3, kind = $4, point = $5 WHERE id = $6",
		updated.TeamID, updated.PlayerID, string(updated.Quarter), string(updated.Kind), updated.Point, id); err != nil {
		return model.ScoreEvent{}, fmt.Errorf("update event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.ScoreEvent{}, fmt.Errorf("commit update: %w", err)
	}
	return updated, nil
}

// DeleteEvent implements repository.Store.
func (s *Store) DeleteEvent(ctx context.Context, id int64) (model.ScoreEvent, error) {
	defer observe("delete", time.Now())
	e, err := scanEvent(s.pool.QueryRow(ctx, "DELETE FROM score_events WHERE id = $1 RETURNING "+eventColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ScoreEvent{}, fmt.Errorf("event %d: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return model.ScoreEvent{}, fmt.Errorf("delete event: %w", err)
	}
	return e, nil
}

// GetResult implements repository.Store.
func (s *Store) GetResult(ctx context.Context, gameID int64) (model.GameResult, error) {
	r := model.GameResult{GameID: gameID}
	err := s.pool.QueryRow(ctx, "SELECT win_team, lose_team FROM game_results WHERE game_id = $1", gameID).
		Scan(&r.WinTeam, &r.LoseTeam)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.GameResult{}, fmt.Errorf("result for game %d: %w", gameID, repository.ErrNotFound)
	}
	if err != nil {
		return model.GameResult{}, fmt.Errorf("get result: %w", err)
	}
	return r, nil
}

// PutResult implements repository.Store.
func (s *Store) PutResult(ctx context.Context, r model.GameResult) error {
	g, err := s.GetGame(ctx, r.GameID)
	if err != nil {
		return err
	}
	if err := repository.ValidateResult(&g, &r); err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO game_results (game_id, win_team, lose_team) VALUES ($1, $2, $3)",
		r.GameID, r.WinTeam, r.LoseTeam)
	if hasCode(err, codeUnique) {
		return repository.ErrResultExists
	}
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// Listen holds a dedicated connection on NotifyChannel and emits every
// notification as a Change until ctx is done. Malformed payloads are
// counted and skipped.
func (s *Store) Listen(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		c, err := DecodeChange(n.Payload)
		if err != nil {
			metrics.RecordErrorByComponent("postgres_listener", "decode")
			continue
		}
		s.Emit(c)
	}
}

// DecodeChange parses a trigger payload.
func DecodeChange(payload string) (model.Change, error) {
	var c model.Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return model.Change{}, fmt.Errorf("decode change: %w", err)
	}
	switch c.Op {
	case model.ChangeInsert, model.ChangeUpdate, model.ChangeDelete:
	default:
		return model.Change{}, fmt.Errorf("decode change: unknown op %q", c.Op)
	}
	if c.GameID == 0 {
		return model.Change{}, fmt.Errorf("decode change: missing game_id")
	}
	return c, nil
}

var (
	_ repository.Store    = (*Store)(nil)
	_ repository.Listener = (*Store)(nil)
)
