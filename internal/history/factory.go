package history

import (
	"context"
	"fmt"
	"strings"
)

// NewStore picks a store from the database URL: empty for in-memory,
// postgres:// for PostgreSQL, sqlite: or file: for a local SQLite file.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	url := strings.TrimSpace(databaseURL)
	switch {
	case url == "":
		return NewInMemoryStore(0), nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgresStore(ctx, url)
	case strings.HasPrefix(url, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(url, "sqlite://"))
	case strings.HasPrefix(url, "sqlite:"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(url, "sqlite:"))
	case strings.HasPrefix(url, "file:"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(url, "file:"))
	default:
		return nil, fmt.Errorf("unsupported history database url %q", databaseURL)
	}
}
