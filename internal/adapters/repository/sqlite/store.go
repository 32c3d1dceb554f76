// Package sqlite provides a SQLite-backed game store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/hoops/internal/adapters/repository"
	"github.com/okian/hoops/internal/adapters/repository/sqlite/migrations"
	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/pkg/metrics"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const eventColumns = "id, game_id, team_id, player_id, quarter, kind, point, seq, created_at, idempotency_key"

// Store persists the league in a single SQLite file. It observes its own
// writes, so the change feed only covers this process.
type Store struct {
	repository.Notifier
	db *sql.DB
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; read-then-write transactions would otherwise
	// race for the WAL lock.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping implements repository.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}

// isForeignKeyViolation reports a missing referenced row.
func isForeignKeyViolation(err error) bool {
	var se *msqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// CreateTeam implements repository.Store.
func (s *Store) CreateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	if err := repository.ValidateTeam(&t); err != nil {
		return model.Team{}, err
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO teams (name, area, prefecture) VALUES (?, ?, ?)",
		t.Name, t.Area, t.Prefecture)
	if err != nil {
		return model.Team{}, fmt.Errorf("insert team: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return model.Team{}, fmt.Errorf("team id: %w", err)
	}
	return t, nil
}

// ListTeams implements repository.Store.
func (s *Store) ListTeams(ctx context.Context, ids ...int64) ([]model.Team, error) {
	q := "SELECT id, name, area, prefecture FROM teams"
	if len(ids) > 0 {
		q += " WHERE id IN (" + placeholders(len(ids)) + ")"
	}
	rows, err := s.db.QueryContext(ctx, q+" ORDER BY id", int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	defer rows.Close()
	var out []model.Team
	for rows.Next() {
		var t model.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Area, &t.Prefecture); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreatePlayer implements repository.Store.
func (s *Store) CreatePlayer(ctx context.Context, p model.Player) (model.Player, error) {
	if err := repository.ValidatePlayer(&p); err != nil {
		return model.Player{}, err
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO players (team_id, no, name, position) VALUES (?, ?, ?, ?)",
		p.TeamID, p.No, p.Name, p.Position)
	if isForeignKeyViolation(err) {
		return model.Player{}, fmt.Errorf("team %d: %w", p.TeamID, repository.ErrNotFound)
	}
	if err != nil {
		return model.Player{}, fmt.Errorf("insert player: %w", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return model.Player{}, fmt.Errorf("player id: %w", err)
	}
	return p, nil
}

// ListPlayers implements repository.Store.
func (s *Store) ListPlayers(ctx context.Context, teamIDs ...int64) ([]model.Player, error) {
	q := "SELECT id, team_id, no, name, position FROM players"
	if len(teamIDs) > 0 {
		q += " WHERE team_id IN (" + placeholders(len(teamIDs)) + ")"
	}
	rows, err := s.db.QueryContext(ctx, q+" ORDER BY team_id, no, id", int64Args(teamIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer rows.Close()
	var out []model.Player
	for rows.Next() {
		var p model.Player
		if err := rows.Scan(&p.ID, &p.TeamID, &p.No, &p.Name, &p.Position); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateGame implements repository.Store.
func (s *Store) CreateGame(ctx context.Context, g model.Game) (model.Game, error) {
	if err := repository.ValidateGame(&g); err != nil {
		return model.Game{}, err
	}
	if g.Date.IsZero() {
		g.Date = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO games (team_a_id, team_b_id, date) VALUES (?, ?, ?)",
		g.TeamAID, g.TeamBID, toMillis(g.Date))
	if isForeignKeyViolation(err) {
		return model.Game{}, fmt.Errorf("teams %d/%d: %w", g.TeamAID, g.TeamBID, repository.ErrNotFound)
	}
	if err != nil {
		return model.Game{}, fmt.Errorf("insert game: %w", err)
	}
	if g.ID, err = res.LastInsertId(); err != nil {
		return model.Game{}, fmt.Errorf("game id: %w", err)
	}
	g.Date = fromMillis(toMillis(g.Date))
	return g, nil
}

func scanGame(row interface{ Scan(...any) error }) (model.Game, error) {
	var g model.Game
	var date int64
	if err := row.Scan(&g.ID, &g.TeamAID, &g.TeamBID, &date); err != nil {
		return model.Game{}, err
	}
	g.Date = fromMillis(date)
	return g, nil
}

// GetGame implements repository.Store.
func (s *Store) GetGame(ctx context.Context, id int64) (model.Game, error) {
	g, err := scanGame(s.db.QueryRowContext(ctx, "SELECT id, team_a_id, team_b_id, date FROM games WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Game{}, fmt.Errorf("game %d: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return model.Game{}, fmt.Errorf("get game: %w", err)
	}
	return g, nil
}

// ListGames implements repository.Store.
func (s *Store) ListGames(ctx context.Context) ([]model.Game, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, team_a_id, team_b_id, date FROM games ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	defer rows.Close()
	var out []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// AppendEvents implements repository.Store. The batch is one transaction.
func (s *Store) AppendEvents(ctx context.Context, events []model.ScoreEvent) ([]model.ScoreEvent, error) {
	defer observe("append", time.Now())
	gameID, err := repository.ValidateBatch(events)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	err = tx.QueryRowContext(ctx,
		"UPDATE games SET last_seq = last_seq + ? WHERE id = ? RETURNING last_seq",
		len(events), gameID).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("game %d: %w", gameID, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("allocate seq: %w", err)
	}

	now := time.Now().UTC()
	out := make([]model.ScoreEvent, len(events))
	first := last - int64(len(events)) + 1
	for i, e := range events {
		e.Seq = first + int64(i)
		e.CreatedAt = fromMillis(toMillis(now))
		res, err := tx.ExecContext(ctx,
			`INSERT INTO score_events (game_id, team_id, player_id, quarter, kind, point, seq, created_at, idempotency_key)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.GameID, e.TeamID, e.PlayerID, string(e.Quarter), string(e.Kind), e.Point, e.Seq, toMillis(e.CreatedAt), e.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("insert event: %w", err)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("event id: %w", err)
		}
		out[i] = e
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}

	s.Emit(repository.InsertChanges(out)...)
	return out, nil
}

func scanEvent(row interface{ Scan(...any) error }) (model.ScoreEvent, error) {
	var e model.ScoreEvent
	var player sql.NullInt64
	var quarter, kind string
	var created int64
	if err := row.Scan(&e.ID, &e.GameID, &e.TeamID, &player, &quarter, &kind, &e.Point, &e.Seq, &created, &e.IdempotencyKey); err != nil {
		return model.ScoreEvent{}, err
	}
	if player.Valid {
		e.PlayerID = model.PlayerRef(player.Int64)
	}
	e.Quarter = model.Quarter(quarter)
	e.Kind = model.Kind(kind)
	e.CreatedAt = fromMillis(created)
	return e, nil
}

// ListEvents implements repository.Store.
func (s *Store) ListEvents(ctx context.Context, q repository.EventQuery) ([]model.ScoreEvent, error) {
	defer observe("list", time.Now())
	var where []string
	var args []any
	if q.GameID != 0 {
		where = append(where, "game_id = ?")
		args = append(args, q.GameID)
	}
	if q.TeamID != 0 {
		where = append(where, "team_id = ?")
		args = append(args, q.TeamID)
	}
	if q.Quarter != "" {
		where = append(where, "quarter = ?")
		args = append(args, string(q.Quarter))
	}
	if len(q.Kinds) > 0 {
		where = append(where, "kind IN ("+placeholders(len(q.Kinds))+")")
		for _, k := range q.Kinds {
			args = append(args, string(k))
		}
	}
	if len(q.PlayerIDs) > 0 {
		where = append(where, "player_id IN ("+placeholders(len(q.PlayerIDs))+")")
		args = append(args, int64Args(q.PlayerIDs)...)
	}
	query := "SELECT " + eventColumns + " FROM score_events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	rows, err := s.db.QueryContext(ctx, query+" ORDER BY game_id, seq", args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	out := make([]model.ScoreEvent, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEvent implements repository.Store.
func (s *Store) GetEvent(ctx context.Context, id int64) (model.ScoreEvent, error) {
	return s.getEvent(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getEvent(ctx context.Context, db queryRower, id int64) (model.ScoreEvent, error) {
	e, err := scanEvent(db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM score_events WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ScoreEvent{}, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.getEvent(ctx, tx, id)
	if err != nil {
		return model.ScoreEvent{}, err
	}
	updated := patch.Apply(current)
	if err := repository.ValidateEvent(&updated); err != nil {
		return model.ScoreEvent{}, err
	}
	game, err := scanGame(tx.QueryRowContext(ctx, "SELECT id, team_a_id, team_b_id, date FROM games WHERE id = ?", updated.GameID))
	if err != nil {
		return model.ScoreEvent{}, fmt.Errorf("get game: %w", err)
	}
	if err := repository.ValidateEventInGame(&game, &updated); err != nil {
		return model.ScoreEvent{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE score_events SET team_id = ?, player_id = ?, quarter = ?, kind = ?, point = ? WHERE id = ?",
		updated.TeamID, updated.PlayerID, string(updated.Quarter), string(updated.Kind), updated.Point, id); err != nil {
		return model.ScoreEvent{}, fmt.Errorf("update event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.ScoreEvent{}, fmt.Errorf("commit update: %w", err)
	}

	s.Emit(repository.ChangeOf(model.ChangeUpdate, &updated))
	return updated, nil
}

// DeleteEvent implements repository.Store.
func (s *Store) DeleteEvent(ctx context.Context, id int64) (model.ScoreEvent, error) {
	defer observe("delete", time.Now())
	e, err := scanEvent(s.db.QueryRowContext(ctx, "DELETE FROM score_events WHERE id = ? RETURNING "+eventColumns, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScoreEvent{}, fmt.Errorf("event %d: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return model.ScoreEvent{}, fmt.Errorf("delete event: %w", err)
	}
	s.Emit(repository.ChangeOf(model.ChangeDelete, &e))
	return e, nil
}

// GetResult implements repository.Store.
func (s *Store) GetResult(ctx context.Context, gameID int64) (model.GameResult, error) {
	r := model.GameResult{GameID: gameID}
	err := s.db.QueryRowContext(ctx, "SELECT win_team, lose_team FROM game_results WHERE game_id = ?", gameID).
		Scan(&r.WinTeam, &r.LoseTeam)
	if errors.Is(err, sql.ErrNoRows) {
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
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO game_results (game_id, win_team, lose_team) VALUES (?, ?, ?)",
		r.GameID, r.WinTeam, r.LoseTeam)
	if isUniqueViolation(err) {
		return repository.ErrResultExists
	}
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

var _ repository.Store = (*Store)(nil)
