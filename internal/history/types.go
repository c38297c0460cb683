// Package history keeps a log of finished synthesis requests.
package history

import (
	"context"
	"strings"
	"time"
)

const defaultRecentLimit = 20

// Record is one finished speak or dialogue request.
type Record struct {
	ID              string    `json:"id"`
	JobID           string    `json:"job_id"`
	Kind            string    `json:"kind"`
	Mode            string    `json:"mode,omitempty"`
	ClientKey       string    `json:"client_key,omitempty"`
	VoiceID         string    `json:"voice_id,omitempty"`
	Preview         string    `json:"preview,omitempty"`
	ChunkCount      int       `json:"chunk_count"`
	PlannedCount    int       `json:"planned_count"`
	TotalDurationMs int       `json:"total_duration_ms"`
	Interrupted     bool      `json:"interrupted"`
	Warnings        []string  `json:"warnings,omitempty"`
	ErrorCode       string    `json:"error_code,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store persists records and lists the most recent ones, newest first.
type Store interface {
	Save(ctx context.Context, record Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

func joinWarnings(codes []string) string { return strings.Join(codes, ",") }

func splitWarnings(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
