package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists request history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS speech_history (
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
    interrupted INTEGER NOT NULL DEFAULT 0,
    warnings TEXT NOT NULL DEFAULT '',
    error_code TEXT NOT NULL DEFAULT '',
    created_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_speech_history_created ON speech_history(created_at_ms);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO speech_history (id, job_id, kind, mode, client_key, voice_id, preview, chunk_count,
			planned_count, total_duration_ms, interrupted, warnings, error_code, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
		record.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save history record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, kind, mode, client_key, voice_id, preview, chunk_count, planned_count,
			total_duration_ms, interrupted, warnings, error_code, created_at_ms
		 FROM speech_history ORDER BY created_at_ms DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent history: %w", err)
	}
	defer rows.Close()

	items := make([]Record, 0, limit)
	for rows.Next() {
		var (
			r         Record
			warnings  string
			createdMs int64
		)
		if err := rows.Scan(&r.ID, &r.JobID, &r.Kind, &r.Mode, &r.ClientKey, &r.VoiceID, &r.Preview, &r.ChunkCount,
			&r.PlannedCount, &r.TotalDurationMs, &r.Interrupted, &warnings, &r.ErrorCode, &createdMs); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		r.Warnings = splitWarnings(warnings)
		r.CreatedAt = time.UnixMilli(createdMs).UTC()
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
