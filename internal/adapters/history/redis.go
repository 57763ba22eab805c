package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

// RedisStore keeps each session's history as a capped Redis list of JSON
// messages, oldest at the head.
type RedisStore struct {
	client *redis.Client
	prefix string
	maxLen int64
	ttl    time.Duration
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	URL    string
	Prefix string
	// MaxLen caps each session list. Zero keeps everything.
	MaxLen int64
	// TTL expires an idle session's list. Zero disables expiry.
	TTL time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, core.ErrConfiguration(core.CodeInvalidConfig, "invalid redis url").WithCause(err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewRedisStoreFromClient(client, cfg), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, cfg RedisConfig) *RedisStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "sitegen:history:"
	}
	return &RedisStore{client: client, prefix: prefix, maxLen: cfg.MaxLen, ttl: cfg.TTL}
}

func (s *RedisStore) key(sessionKey string) string {
	return s.prefix + sessionKey
}

// AppendHistory pushes one message and trims the list to its cap.
func (s *RedisStore) AppendHistory(ctx context.Context, sessionKey string, role core.MessageRole, text string) error {
	data, err := json.Marshal(core.HistoryMessage{Role: role, Content: text, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	key := s.key(sessionKey)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.maxLen > 0 {
		pipe.LTrim(ctx, key, -s.maxLen, -1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	return nil
}

// LoadHistory returns at most limit of the newest messages, oldest first.
func (s *RedisStore) LoadHistory(ctx context.Context, sessionKey string, limit int) ([]core.HistoryMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, s.key(sessionKey), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	messages := make([]core.HistoryMessage, 0, len(raw))
	for _, item := range raw {
		var msg core.HistoryMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			// Skip entries written by something else.
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
