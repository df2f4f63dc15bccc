// Package pgstore implements the TellMeNow stores on PostgreSQL via pgx.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/raphaelgruber/tellmenow/internal/store"
)

const pgErrCodeUniqueViolation = "23505"

// Store is a pgxpool-backed store.Store.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New connects to PostgreSQL and verifies the connection.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("PostgreSQL connection established")
	return &Store{pool: pool, logger: logger}, nil
}

// InitSchema creates the tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	s.logger.Info("initializing database schema")
	if _, err := s.pool.Exec(ctx, SchemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// WipeData deletes all rows while preserving schema.
// Use for testing only.
func (s *Store) WipeData(ctx context.Context) error {
	s.logger.Warn("wiping all data from database")
	if _, err := s.pool.Exec(ctx, `TRUNCATE jobs, generated_skills, published_pages`); err != nil {
		return fmt.Errorf("wipe: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// SchemaSQL contains the table definitions.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
    id           TEXT PRIMARY KEY,
    query        TEXT NOT NULL,
    skill_id     TEXT NOT NULL,
    status       TEXT NOT NULL CHECK (status IN ('queued', 'reasoning', 'generating', 'completed', 'failed')),
    reasoning    TEXT,
    html_report  TEXT,
    report_title TEXT,
    error        TEXT,
    user_id      TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS jobs_user_created ON jobs (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS generated_skills (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL,
    name         TEXT NOT NULL,
    description  TEXT NOT NULL,
    input_spec   TEXT NOT NULL,
    output_spec  TEXT NOT NULL,
    chat_context TEXT,
    status       TEXT NOT NULL CHECK (status IN ('pending', 'generating', 'ready', 'failed')),
    content      TEXT,
    refs         JSONB,
    error        TEXT,
    share_status TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS generated_skills_user ON generated_skills (user_id);

CREATE TABLE IF NOT EXISTS published_pages (
    id         TEXT PRIMARY KEY,
    job_id     TEXT NOT NULL,
    user_id    TEXT,
    title      TEXT NOT NULL,
    html       TEXT NOT NULL,
    skill_id   TEXT NOT NULL,
    query      TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// wrapError maps pgx errors onto the store sentinels.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrCodeUniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrAlreadyExists, pgErr.Message)
	}
	return err
}
