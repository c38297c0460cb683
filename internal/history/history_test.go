package history

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, kind := range []string{"speak", "dialogue", "speak"} {
		err := s.Save(ctx, Record{
			JobID:           "job-" + string(rune('a'+i)),
			Kind:            kind,
			Preview:         "line " + kind,
			ChunkCount:      i + 1,
			PlannedCount:    i + 1,
			TotalDurationMs: 100 * (i + 1),
			Interrupted:     i == 1,
			Warnings:        []string{"CHUNKED_TEXT", "TRUNCATED"}[:i],
			CreatedAt:       base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Save() #%d error = %v", i, err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Recent()) = %d, want 2", len(got))
	}
	if got[0].JobID != "job-c" || got[1].JobID != "job-b" {
		t.Fatalf("Recent() order = %s, %s; want job-c, job-b", got[0].JobID, got[1].JobID)
	}
	if got[1].Preview != "line dialogue" {
		t.Fatalf("Preview = %q, want %q", got[1].Preview, "line dialogue")
	}
	if got[0].ID == "" {
		t.Fatalf("record ID not assigned")
	}
	if !got[1].Interrupted || got[1].Kind != "dialogue" {
		t.Fatalf("record = %+v, want interrupted dialogue", got[1])
	}
	if len(got[0].Warnings) != 2 || got[0].Warnings[1] != "TRUNCATED" {
		t.Fatalf("Warnings = %v, want [CHUNKED_TEXT TRUNCATED]", got[0].Warnings)
	}
	if !got[0].CreatedAt.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("CreatedAt = %v, want %v", got[0].CreatedAt, base.Add(2*time.Second))
	}

	all, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent(0) error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(Recent(0)) = %d, want 3", len(all))
	}
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore(0))
}

func TestInMemoryStoreCapacity(t *testing.T) {
	s := NewInMemoryStore(2)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_ = s.Save(ctx, Record{JobID: id})
	}
	got, _ := s.Recent(ctx, 10)
	if len(got) != 2 || got[0].JobID != "c" || got[1].JobID != "b" {
		t.Fatalf("Recent() = %+v, want c, b", got)
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "history.db")
	s, err := NewStore(context.Background(), "sqlite:"+path)
	if err != nil {
		t.Fatalf("NewStore(sqlite) error = %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("SOUNDBOARD_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SOUNDBOARD_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, url)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	defer s.Close()
	if _, err := s.pool.Exec(ctx, `TRUNCATE speech_history`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	exerciseStore(t, s)
}

func TestNewStoreRejectsUnknownScheme(t *testing.T) {
	if _, err := NewStore(context.Background(), "mysql://x"); err == nil {
		t.Fatalf("NewStore(mysql) error = nil, want error")
	}
	s, err := NewStore(context.Background(), "  ")
	if err != nil {
		t.Fatalf("NewStore(empty) error = %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("NewStore(empty) = %T, want *InMemoryStore", s)
	}
}

func TestPreviewMasksContactDetails(t *testing.T) {
	got := Preview("Email me at sam@example.com or +1 (555) 123-9876\n and use 4242 4242 4242 4242.")
	for _, marker := range []string{"[email]", "[phone]", "[card]"} {
		if !strings.Contains(got, marker) {
			t.Fatalf("Preview() = %q, missing %s", got, marker)
		}
	}
	if strings.Contains(got, "\n") || strings.Contains(got, "sam@") {
		t.Fatalf("Preview() = %q, want single redacted line", got)
	}
}

func TestPreviewTruncates(t *testing.T) {
	got := Preview(strings.Repeat("x", 300))
	if n := len([]rune(got)); n != PreviewChars+1 {
		t.Fatalf("rune count = %d, want %d", n, PreviewChars+1)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("Preview() = %q, want ellipsis suffix", got)
	}
}
