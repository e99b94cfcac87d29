package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Repository is the Postgres persistence collaborator for matches and the
// append-only move log.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// EnsureSchema creates the tables this process writes to. DDL is idempotent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			id TEXT PRIMARY KEY,
			player1_address TEXT NOT NULL,
			player1_name TEXT NOT NULL DEFAULT '',
			player2_address TEXT NOT NULL,
			player2_name TEXT NOT NULL DEFAULT '',
			scheduled_at TIMESTAMPTZ NOT NULL,
			stake_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'SCHEDULED',
			winner TEXT NOT NULL DEFAULT '',
			final_fen TEXT NOT NULL DEFAULT '',
			finished_at TIMESTAMPTZ,
			join_window_ends_at TIMESTAMPTZ,
			game_started_at TIMESTAMPTZ,
			white_time_remaining_ms BIGINT,
			black_time_remaining_ms BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS match_moves (
			match_id TEXT NOT NULL REFERENCES matches(id),
			seq INT NOT NULL,
			san TEXT NOT NULL,
			fen TEXT NOT NULL,
			played_by TEXT NOT NULL,
			played_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (match_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_status_scheduled
			ON matches (status, scheduled_at)`,
	}
	for _, q := range stmts {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const matchColumns = `id, player1_address, player1_name, player2_address, player2_name,
	scheduled_at, stake_amount, status, winner, final_fen, finished_at,
	join_window_ends_at, game_started_at, white_time_remaining_ms, black_time_remaining_ms`

func scanMatch(row interface{ Scan(...any) error }) (*Match, error) {
	var m Match
	err := row.Scan(
		&m.ID, &m.Player1Address, &m.Player1Name, &m.Player2Address, &m.Player2Name,
		&m.ScheduledAt, &m.StakeAmount, &m.Status, &m.Winner, &m.FinalFEN, &m.FinishedAt,
		&m.JoinWindowEndsAt, &m.GameStartedAt, &m.WhiteTimeRemaining, &m.BlackTimeRemaining,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMatchByID returns the match or (nil, nil) when absent.
func (r *Repository) FindMatchByID(ctx context.Context, id string) (*Match, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// MarkLive promotes a scheduled match and stamps its join window deadline.
func (r *Repository) MarkLive(ctx context.Context, id string, joinWindowEndsAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE matches SET status = $2, join_window_ends_at = $3 WHERE id = $1`,
		id, StatusLive, joinWindowEndsAt)
	return err
}

// Cancel marks a match cancelled.
func (r *Repository) Cancel(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE matches SET status = $2 WHERE id = $1`, id, StatusCancelled)
	return err
}

// SetGameStarted stamps the clock start and the initial time budgets.
func (r *Repository) SetGameStarted(ctx context.Context, id string, startedAt time.Time, whiteMs, blackMs int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE matches SET game_started_at = $2,
			white_time_remaining_ms = $3, black_time_remaining_ms = $4
		 WHERE id = $1`,
		id, startedAt, whiteMs, blackMs)
	return err
}

// UpdateTimers persists the current countdown state.
func (r *Repository) UpdateTimers(ctx context.Context, id string, whiteMs, blackMs int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE matches SET white_time_remaining_ms = $2, black_time_remaining_ms = $3
		 WHERE id = $1`,
		id, whiteMs, blackMs)
	return err
}

// SaveResult records the final outcome of a match.
func (r *Repository) SaveResult(ctx context.Context, id, winner, finalFEN string, finishedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE matches SET status = $2, winner = $3, final_fen = $4, finished_at = $5
		 WHERE id = $1`,
		id, StatusFinished, winner, finalFEN, finishedAt)
	return err
}

// AppendMove adds one row to the move log.
func (r *Repository) AppendMove(ctx context.Context, mv MoveRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO match_moves (match_id, seq, san, fen, played_by, played_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		mv.MatchID, mv.Sequence, mv.SAN, mv.FEN, mv.PlayedBy, mv.PlayedAt)
	return err
}

// CountMoves returns the number of applied moves for a match.
func (r *Repository) CountMoves(ctx context.Context, matchID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM match_moves WHERE match_id = $1`, matchID).Scan(&n)
	return n, err
}

// ListMovesByMatch returns the move log in sequence order.
func (r *Repository) ListMovesByMatch(ctx context.Context, matchID string) ([]MoveRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT match_id, seq, san, fen, played_by, played_at
		 FROM match_moves WHERE match_id = $1 ORDER BY seq`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MoveRecord
	for rows.Next() {
		var mv MoveRecord
		if err := rows.Scan(&mv.MatchID, &mv.Sequence, &mv.SAN, &mv.FEN, &mv.PlayedBy, &mv.PlayedAt); err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}

// ListScheduledDue returns scheduled matches whose start time has passed.
func (r *Repository) ListScheduledDue(ctx context.Context, now time.Time) ([]*Match, error) {
	return r.listMatches(ctx,
		`SELECT `+matchColumns+` FROM matches
		 WHERE status = $1 AND scheduled_at <= $2`, StatusScheduled, now)
}

// ListJoinWindowExpired returns live matches whose join window elapsed with
// no game start.
func (r *Repository) ListJoinWindowExpired(ctx context.Context, now time.Time) ([]*Match, error) {
	return r.listMatches(ctx,
		`SELECT `+matchColumns+` FROM matches
		 WHERE status = $1 AND game_started_at IS NULL
		   AND join_window_ends_at IS NOT NULL AND join_window_ends_at <= $2`,
		StatusLive, now)
}

func (r *Repository) listMatches(ctx context.Context, query string, args ...any) ([]*Match, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
