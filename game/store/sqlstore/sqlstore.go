// Package sqlstore provides a database/sql implementation of store.Store
// for SQLite (modernc.org/sqlite) and PostgreSQL (pgx stdlib).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/store"
	"github.com/wricardo/tank-tactics/game/store/sqlstore/migrations"
)

// Dialect selects the SQL flavour and driver
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ParseDialect validates a dialect name
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case SQLite, Postgres:
		return d, nil
	case "postgresql", "pgx":
		return Postgres, nil
	}
	return "", fmt.Errorf("unknown sql dialect %q", s)
}

func (d Dialect) driver() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// Rebind rewrites ? placeholders into $n for PostgreSQL
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store persists games in a SQL database
type Store struct {
	db      *sql.DB
	dialect Dialect
	log     logrus.FieldLogger
}

// Open connects to the database and applies the embedded migrations. For
// SQLite dsn is a file path.
func Open(ctx context.Context, d Dialect, dsn string, log logrus.FieldLogger) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("storage dsn is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	source := dsn
	if d == SQLite {
		source = filepath.Clean(dsn) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open(d.driver(), source)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", d, err)
	}
	if d == SQLite {
		// one writer at a time serialises units of work
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", d, err)
	}
	if err := ApplyMigrations(ctx, db, d, migrations.FS, string(d)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.WithField("dialect", d).Info("sql store ready")
	return &Store{db: db, dialect: d, log: log}, nil
}

// Close closes the database handle
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Within runs fn in a database transaction
func (s *Store) Within(ctx context.Context, fn store.TxFunc) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	t := &tx{q: sqlTx, dialect: s.dialect}
	if err := fn(ctx, t); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.log.WithError(rbErr).Warn("rollback failed")
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Game loads a committed game
func (s *Store) Game(ctx context.Context, id string) (*engine.Game, error) {
	r := reader{q: s.db, dialect: s.dialect}
	return r.game(ctx, id, false)
}

// Games lists committed games oldest first
func (s *Store) Games(ctx context.Context, phases ...engine.Phase) ([]*engine.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games`
	args := make([]any, 0, len(phases))
	if len(phases) > 0 {
		marks := make([]string, len(phases))
		for i, p := range phases {
			marks[i] = "?"
			args = append(args, string(p))
		}
		query += ` WHERE phase IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	var games []*engine.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}

	r := reader{q: s.db, dialect: s.dialect}
	for _, g := range games {
		if g.Players, err = r.players(ctx, g.ID); err != nil {
			return nil, err
		}
	}
	return games, nil
}

// Logs returns the newest limit entries of a game in append order
func (s *Store) Logs(ctx context.Context, gameID string, limit int) ([]engine.LogEntry, error) {
	query := `SELECT id, game_id, type, payload, created_at FROM game_logs WHERE game_id = ? ORDER BY id DESC`
	args := []any{gameID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var entries []engine.LogEntry
	for rows.Next() {
		var (
			e       engine.LogEntry
			typ     string
			payload string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.GameID, &typ, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Type = engine.LogType(typ)
		e.Payload = []byte(payload)
		e.CreatedAt = fromMillis(created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const gameColumns = `id, phase, mode, width, height, point_interval_ms, next_point_at, created_by, created_at, previous_game_id`

const playerColumns = `id, game_id, user_id, seat, x, y, lives, points, range_radius, kills, color, team, version`

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func scanGame(row scanner) (*engine.Game, error) {
	var (
		g          engine.Game
		phase      string
		mode       string
		intervalMS int64
		next       sql.NullInt64
		created    int64
	)
	if err := row.Scan(&g.ID, &phase, &mode, &g.Width, &g.Height, &intervalMS, &next, &g.CreatedBy, &created, &g.PreviousGameID); err != nil {
		return nil, err
	}
	g.Phase = engine.Phase(phase)
	g.Mode = engine.Mode(mode)
	g.PointInterval = time.Duration(intervalMS) * time.Millisecond
	if next.Valid {
		t := fromMillis(next.Int64)
		g.NextPointAt = &t
	}
	g.CreatedAt = fromMillis(created)
	return &g, nil
}

func scanPlayer(row scanner) (*engine.Player, error) {
	var p engine.Player
	err := row.Scan(&p.ID, &p.GameID, &p.UserID, &p.Seat, &p.Position.X, &p.Position.Y,
		&p.Lives, &p.Points, &p.Range, &p.Kills, &p.Color, &p.Team, &p.Version)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type reader struct {
	q       querier
	dialect Dialect
}

func (r reader) game(ctx context.Context, id string, lock bool) (*engine.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = ?`
	if lock && r.dialect == Postgres {
		query += ` FOR UPDATE`
	}
	g, err := scanGame(r.q.QueryRowContext(ctx, r.dialect.Rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get game: %w", err)
	}
	if g.Players, err = r.players(ctx, id); err != nil {
		return nil, err
	}
	return g, nil
}

func (r reader) players(ctx context.Context, gameID string) ([]*engine.Player, error) {
	rows, err := r.q.QueryContext(ctx,
		r.dialect.Rebind(`SELECT `+playerColumns+` FROM players WHERE game_id = ? ORDER BY seat, id`), gameID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []*engine.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return players, nil
}

type tx struct {
	q       querier
	dialect Dialect
}

func (t *tx) Game(ctx context.Context, id string) (*engine.Game, error) {
	return reader{q: t.q, dialect: t.dialect}.game(ctx, id, true)
}

func (t *tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.q.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

func nullableMillis(ts *time.Time) sql.NullInt64 {
	if ts == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*ts), Valid: true}
}

func (t *tx) InsertGame(ctx context.Context, g *engine.Game) error {
	_, err := t.exec(ctx,
		`INSERT INTO games (`+gameColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, string(g.Phase), string(g.Mode), g.Width, g.Height,
		g.PointInterval.Milliseconds(), nullableMillis(g.NextPointAt),
		g.CreatedBy, toMillis(g.CreatedAt), g.PreviousGameID,
	)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	for _, p := range g.Players {
		if err := t.InsertPlayer(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) UpdateGame(ctx context.Context, g *engine.Game) error {
	res, err := t.exec(ctx,
		`UPDATE games SET phase = ?, mode = ?, width = ?, height = ?, point_interval_ms = ?,
		   next_point_at = ?, created_by = ?, previous_game_id = ?
		 WHERE id = ?`,
		string(g.Phase), string(g.Mode), g.Width, g.Height, g.PointInterval.Milliseconds(),
		nullableMillis(g.NextPointAt), g.CreatedBy, g.PreviousGameID, g.ID,
	)
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	return expectRow(res)
}

func (t *tx) InsertPlayer(ctx context.Context, p *engine.Player) error {
	_, err := t.exec(ctx,
		`INSERT INTO players (`+playerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.GameID, p.UserID, p.Seat, p.Position.X, p.Position.Y,
		p.Lives, p.Points, p.Range, p.Kills, p.Color, p.Team, p.Version,
	)
	if err != nil {
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

func (t *tx) UpdatePlayer(ctx context.Context, p *engine.Player) error {
	res, err := t.exec(ctx,
		`UPDATE players SET x = ?, y = ?, lives = ?, points = ?, range_radius = ?, kills = ?,
		   color = ?, team = ?, seat = ?, version = version + 1
		 WHERE id = ? AND game_id = ? AND version = ?`,
		p.Position.X, p.Position.Y, p.Lives, p.Points, p.Range, p.Kills,
		p.Color, p.Team, p.Seat, p.ID, p.GameID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	if n == 0 {
		var found int
		err := t.q.QueryRowContext(ctx, t.dialect.Rebind(`SELECT 1 FROM players WHERE id = ?`), p.ID).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("update player: %w", err)
		}
		return store.ErrConflict
	}
	p.Version++
	return nil
}

func (t *tx) DeletePlayer(ctx context.Context, gameID, playerID string) error {
	res, err := t.exec(ctx, `DELETE FROM players WHERE id = ? AND game_id = ?`, playerID, gameID)
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	return expectRow(res)
}

func (t *tx) AppendLog(ctx context.Context, e engine.LogEntry) (engine.LogEntry, error) {
	query := `INSERT INTO game_logs (game_id, type, payload, created_at) VALUES (?, ?, ?, ?) RETURNING id`
	err := t.q.QueryRowContext(ctx, t.dialect.Rebind(query),
		e.GameID, string(e.Type), string(e.Payload), toMillis(e.CreatedAt),
	).Scan(&e.ID)
	if err != nil {
		return engine.LogEntry{}, fmt.Errorf("append log: %w", err)
	}
	return e, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
