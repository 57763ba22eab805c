// Package history provides the conversation history backends.
package history

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend    string
	SQLitePath string
	RedisURL   string
	Prefix     string
	MaxLen     int
	TTL        time.Duration
}

// New creates the configured HistoryStore.
func New(ctx context.Context, cfg Config) (core.HistoryStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(".sitegen", "history.db")
		}
		// Ensure path has .db extension for SQLite
		if !strings.HasSuffix(path, ".db") {
			path = strings.TrimSuffix(path, filepath.Ext(path)) + ".db"
		}
		return NewSQLiteStore(path)
	case BackendRedis:
		return NewRedisStore(ctx, RedisConfig{
			URL:    cfg.RedisURL,
			Prefix: cfg.Prefix,
			MaxLen: int64(cfg.MaxLen),
			TTL:    cfg.TTL,
		})
	case BackendMemory:
		return NewMemoryStore(cfg.MaxLen), nil
	default:
		return nil, core.ErrConfiguration(core.CodeInvalidConfig,
			fmt.Sprintf("unknown history backend %q", cfg.Backend))
	}
}

// Closeable is implemented by stores that hold connections.
type Closeable interface {
	Close() error
}

// Close closes store if it implements Closeable.
func Close(store core.HistoryStore) error {
	if c, ok := store.(Closeable); ok {
		return c.Close()
	}
	return nil
}
