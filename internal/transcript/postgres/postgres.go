// Package postgres archives transcript entries in PostgreSQL.
//
// Each entry becomes one row of transcript_entries, keyed by chunk id and
// sequence number, so re-delivering a chunk overwrites instead of duplicating.
// A GIN index over the text backs [Store.Search].
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Append(ctx, rec)
//	hits, _ := store.Search(ctx, "standup", 20)
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/daymind/internal/transcript"
)

var (
	_ transcript.Store    = (*Store)(nil)
	_ transcript.Reader   = (*Store)(nil)
	_ transcript.Searcher = (*Store)(nil)
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL
// ─────────────────────────────────────────────────────────────────────────────

const ddlTranscriptEntries = `
CREATE TABLE IF NOT EXISTS transcript_entries (
    chunk_id      TEXT         NOT NULL,
    seq           INTEGER      NOT NULL,
    start_at      TIMESTAMPTZ,
    end_at        TIMESTAMPTZ,
    text          TEXT         NOT NULL,
    session_start TEXT         NOT NULL DEFAULT '',
    session_end   TEXT         NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (chunk_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_transcript_entries_created_at
    ON transcript_entries (created_at);

CREATE INDEX IF NOT EXISTS idx_transcript_entries_fts
    ON transcript_entries USING GIN (to_tsvector('english', text));
`

// Migrate creates the transcript schema if it does not exist. It is safe to
// call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranscriptEntries); err != nil {
		return fmt.Errorf("migrate transcript_entries: %w", err)
	}
	return nil
}

// Store is a PostgreSQL-backed [transcript.Store]. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript postgres: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("transcript postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript postgres: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Append upserts one row per entry of rec inside a single transaction.
func (s *Store) Append(ctx context.Context, rec transcript.Record) error {
	const q = `
		INSERT INTO transcript_entries
		    (chunk_id, seq, start_at, end_at, text, session_start, session_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chunk_id, seq) DO UPDATE
		SET start_at = EXCLUDED.start_at,
		    end_at   = EXCLUDED.end_at,
		    text     = EXCLUDED.text`

	batch := &pgx.Batch{}
	for _, e := range transcript.Entries(rec) {
		batch.Queue(q, e.ChunkID, e.Seq, nullTime(e.Start), nullTime(e.End), e.Text, rec.SessionStart, rec.SessionEnd)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("transcript postgres: append %s: %w", rec.ChunkID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]transcript.Entry, error) {
	const q = `
		SELECT chunk_id, seq, start_at, end_at, text
		FROM   transcript_entries
		ORDER  BY created_at DESC, chunk_id DESC, seq DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, max(limit, 0))
	if err != nil {
		return nil, fmt.Errorf("transcript postgres: recent: %w", err)
	}
	return collectEntries(rows)
}

// Search runs a full-text query over entry text. The query is passed to
// plainto_tsquery so no operator syntax is required.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]transcript.Entry, error) {
	if query == "" {
		return nil, errors.New("transcript postgres: search: empty query")
	}
	const q = `
		SELECT chunk_id, seq, start_at, end_at, text
		FROM   transcript_entries
		WHERE  to_tsvector('english', text) @@ plainto_tsquery('english', $1)
		ORDER  BY created_at DESC, chunk_id DESC, seq DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, query, max(limit, 0))
	if err != nil {
		return nil, fmt.Errorf("transcript postgres: search: %w", err)
	}
	return collectEntries(rows)
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func collectEntries(rows pgx.Rows) ([]transcript.Entry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (transcript.Entry, error) {
		var (
			e          transcript.Entry
			start, end *time.Time
		)
		if err := row.Scan(&e.ChunkID, &e.Seq, &start, &end, &e.Text); err != nil {
			return e, err
		}
		if start != nil {
			e.Start = start.UTC()
		}
		if end != nil {
			e.End = end.UTC()
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("transcript postgres: scan: %w", err)
	}
	return entries, nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
