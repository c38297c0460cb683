package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists request history in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS speech_history (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT '',
			client_key TEXT NOT NULL DEFAULT '',
			voice_id TEXT NOT NULL DEFAULT '',
			preview TEXT NOT NULL DEFAULT '',
			chunk_count INTEGER NOT NULL,
			planned_count INTEGER NOT NULL,
			total_duration_ms INTEGER NOT NULL,
			interrupted BOOLEAN NOT NULL DEFAULT FALSE,
			warnings TEXT NOT NULL DEFAULT '',
			error_code TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`ALTER TABLE speech_history ADD COLUMN IF NOT EXISTS preview TEXT NOT NULL DEFAULT '';`,
		`CREATE INDEX IF NOT EXISTS idx_speech_history_created ON speech_history (created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO speech_history (id, job_id, kind, mode, client_key, voice_id, preview, chunk_count,
			planned_count, total_duration_ms, interrupted, warnings, error_code, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		record.ID,
		record.JobID,
		record.Kind,
		record.Mode,
		record.ClientKey,
		record.VoiceID,
		record.Preview,
		record.ChunkCount,
		record.PlannedCount,
		record.TotalDurationMs,
		record.Interrupted,
		joinWarnings(record.Warnings),
		record.ErrorCode,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save history record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, kind, mode, client_key, voice_id, preview, chunk_count, planned_count,
			total_duration_ms, interrupted, warnings, error_code, created_at
		 FROM speech_history ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent history: %w", err)
	}
	defer rows.Close()

	items := make([]Record, 0, limit)
	for rows.Next() {
		var (
			r        Record
			warnings string
		)
		if err := rows.Scan(&r.ID, &r.JobID, &r.Kind, &r.Mode, &r.ClientKey, &r.VoiceID, &r.Preview, &r.ChunkCount,
			&r.PlannedCount, &r.TotalDurationMs, &r.Interrupted, &warnings, &r.ErrorCode, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		r.Warnings = splitWarnings(warnings)
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
