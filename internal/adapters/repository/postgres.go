package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/okian/refmatch/internal/domain/model"
)

const pgUniqueViolation = "23505"

// Schema creates the tables used by PostgresStore. Entities are stored as
// JSONB documents next to the columns queries filter on.
const Schema = `
CREATE TABLE IF NOT EXISTS games (
	id         TEXT PRIMARY KEY,
	status     TEXT        NOT NULL,
	starts_at  TIMESTAMPTZ NOT NULL,
	ends_at    TIMESTAMPTZ NOT NULL,
	version    BIGINT      NOT NULL,
	doc        JSONB       NOT NULL
);
CREATE INDEX IF NOT EXISTS games_status_idx ON games (status, starts_at);

CREATE TABLE IF NOT EXISTS referees (
	id      TEXT PRIMARY KEY,
	version BIGINT NOT NULL,
	doc     JSONB  NOT NULL
);

CREATE TABLE IF NOT EXISTS assignments (
	id         TEXT PRIMARY KEY,
	game_id    TEXT        NOT NULL REFERENCES games (id),
	referee_id TEXT        NOT NULL,
	status     TEXT        NOT NULL,
	offered_at TIMESTAMPTZ NOT NULL,
	deadline   TIMESTAMPTZ NOT NULL,
	version    BIGINT      NOT NULL,
	doc        JSONB       NOT NULL
);
CREATE INDEX IF NOT EXISTS assignments_game_idx ON assignments (game_id, offered_at);
CREATE INDEX IF NOT EXISTS assignments_status_idx ON assignments (status, deadline);
CREATE UNIQUE INDEX IF NOT EXISTS assignments_one_active_per_game
	ON assignments (game_id) WHERE status IN ('offered', 'confirmed');
`

// PostgresStore implements Store on database/sql with lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates missing tables and indexes.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetGame(ctx context.Context, id string) (model.Game, error) {
	var g model.Game
	err := s.getDoc(ctx, `SELECT doc, version FROM games WHERE id = $1`, id, &g, &g.Version)
	if err != nil {
		return model.Game{}, fmt.Errorf("game %s: %w", id, err)
	}
	return g, nil
}

func (s *PostgresStore) ListGames(ctx context.Context, statuses ...model.GameStatus) ([]model.Game, error) {
	query := `SELECT doc, version FROM games`
	var args []any
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		query += ` WHERE status = ANY($1)`
		args = append(args, pq.Array(names))
	}
	query += ` ORDER BY starts_at ASC, id ASC`

	return listDocs(ctx, s.db, query, args, func(g *model.Game) *int64 { return &g.Version })
}

func (s *PostgresStore) GetReferee(ctx context.Context, id string) (model.Referee, error) {
	var r model.Referee
	err := s.getDoc(ctx, `SELECT doc, version FROM referees WHERE id = $1`, id, &r, &r.Version)
	if err != nil {
		return model.Referee{}, fmt.Errorf("referee %s: %w", id, err)
	}
	return r, nil
}

func (s *PostgresStore) ListReferees(ctx context.Context) ([]model.Referee, error) {
	return listDocs(ctx, s.db, `SELECT doc, version FROM referees ORDER BY id ASC`, nil,
		func(r *model.Referee) *int64 { return &r.Version })
}

func (s *PostgresStore) GetAssignment(ctx context.Context, id string) (model.Assignment, error) {
	var a model.Assignment
	err := s.getDoc(ctx, `SELECT doc, version FROM assignments WHERE id = $1`, id, &a, &a.Version)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("assignment %s: %w", id, err)
	}
	return a, nil
}

func (s *PostgresStore) ListAssignmentsByGame(ctx context.Context, gameID string) ([]model.Assignment, error) {
	return listDocs(ctx, s.db,
		`SELECT doc, version FROM assignments WHERE game_id = $1 ORDER BY offered_at ASC, id ASC`,
		[]any{gameID}, assignmentVersion)
}

func (s *PostgresStore) ListActiveAssignments(ctx context.Context) ([]model.Assignment, error) {
	return listDocs(ctx, s.db,
		`SELECT doc, version FROM assignments WHERE status IN ('offered', 'confirmed') ORDER BY offered_at ASC, id ASC`,
		nil, assignmentVersion)
}

func (s *PostgresStore) ListOverdueOffers(ctx context.Context, now time.Time) ([]model.Assignment, error) {
	return listDocs(ctx, s.db,
		`SELECT doc, version FROM assignments WHERE status = 'offered' AND deadline <= $1 ORDER BY offered_at ASC, id ASC`,
		[]any{now.UTC()}, assignmentVersion)
}

func (s *PostgresStore) Commitments(ctx context.Context, excludeGameID string) (map[string][]model.Window, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.referee_id, g.starts_at, g.ends_at
		FROM assignments a JOIN games g ON g.id = a.game_id
		WHERE a.status IN ('offered', 'confirmed') AND a.game_id <> $1`, excludeGameID)
	if err != nil {
		return nil, fmt.Errorf("query commitments: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.Window)
	for rows.Next() {
		var (
			refereeID string
			w         model.Window
		)
		if err := rows.Scan(&refereeID, &w.Start, &w.End); err != nil {
			return nil, fmt.Errorf("scan commitment: %w", err)
		}
		out[refereeID] = append(out[refereeID], w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) LoadByReferee(ctx context.Context, w model.Window) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.referee_id, COUNT(*)
		FROM assignments a JOIN games g ON g.id = a.game_id
		WHERE a.status IN ('offered', 'confirmed', 'completed')
		  AND g.starts_at >= $1 AND g.starts_at < $2
		GROUP BY a.referee_id`, w.Start.UTC(), w.End.UTC())
	if err != nil {
		return nil, fmt.Errorf("query load: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			refereeID string
			n         int
		)
		if err := rows.Scan(&refereeID, &n); err != nil {
			return nil, fmt.Errorf("scan load: %w", err)
		}
		out[refereeID] = n
	}
	return out, rows.Err()
}

func (s *PostgresStore) Commit(ctx context.Context, c Change) (Change, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Change{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var out Change
	if c.Game != nil {
		g := *c.Game
		g.Version++
		err := writeDoc(ctx, tx, "game", g.ID, c.Game.Version, g,
			`INSERT INTO games (id, status, starts_at, ends_at, version, doc) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
			`UPDATE games SET status = $2, starts_at = $3, ends_at = $4, version = $5, doc = $6 WHERE id = $1 AND version = $7`,
			g.ID, string(g.Status), g.StartsAt.UTC(), g.EndsAt().UTC(), g.Version)
		if err != nil {
			return Change{}, err
		}
		out.Game = &g
	}
	if c.Referee != nil {
		r := c.Referee.Clone()
		r.Version++
		err := writeDoc(ctx, tx, "referee", r.ID, c.Referee.Version, r,
			`INSERT INTO referees (id, version, doc) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			`UPDATE referees SET version = $2, doc = $3 WHERE id = $1 AND version = $4`,
			r.ID, r.Version)
		if err != nil {
			return Change{}, err
		}
		out.Referee = &r
	}
	if c.Assignment != nil {
		a := *c.Assignment
		a.Version++
		err := writeDoc(ctx, tx, "assignment", a.ID, c.Assignment.Version, a,
			`INSERT INTO assignments (id, game_id, referee_id, status, offered_at, deadline, version, doc) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO NOTHING`,
			`UPDATE assignments SET game_id = $2, referee_id = $3, status = $4, offered_at = $5, deadline = $6, version = $7, doc = $8 WHERE id = $1 AND version = $9`,
			a.ID, a.GameID, a.RefereeID, string(a.Status), a.OfferedAt.UTC(), a.Deadline.UTC(), a.Version)
		if err != nil {
			return Change{}, err
		}
		out.Assignment = &a
	}

	if err := tx.Commit(); err != nil {
		return Change{}, classify("commit", err)
	}
	return out, nil
}

// writeDoc inserts when expected is zero and otherwise updates guarded by
// the expected version. cols are the leading column values; the JSON
// document follows them and the expected version closes the update.
func writeDoc(ctx context.Context, tx *sql.Tx, kind, id string, expected int64, doc any, insert, update string, cols ...any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, id, err)
	}
	args := append(append([]any{}, cols...), body)

	var res sql.Result
	if expected == 0 {
		res, err = tx.ExecContext(ctx, insert, args...)
	} else {
		res, err = tx.ExecContext(ctx, update, append(args, expected)...)
	}
	if err != nil {
		return classify(kind+" "+id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s rows affected: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s at version %d: %w", kind, id, expected, ErrStaleWrite)
	}
	return nil
}

func classify(what string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", what, ErrActiveAssignment)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *PostgresStore) getDoc(ctx context.Context, query, id string, dst any, version *int64) error {
	var body []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&body, version)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	v := *version
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	*version = v
	return nil
}

func listDocs[T any](ctx context.Context, db *sql.DB, query string, args []any, version func(*T) *int64) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var (
			body []byte
			v    int64
			item T
		)
		if err := rows.Scan(&body, &v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if err := json.Unmarshal(body, &item); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		*version(&item) = v
		out = append(out, item)
	}
	return out, rows.Err()
}

func assignmentVersion(a *model.Assignment) *int64 { return &a.Version }
