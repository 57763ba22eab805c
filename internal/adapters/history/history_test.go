package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

// exerciseStore runs the behavior every backend shares.
func exerciseStore(t *testing.T, store core.HistoryStore) {
	t.Helper()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		role := core.RoleUser
		if i%2 == 0 {
			role = core.RoleAI
		}
		require.NoError(t, store.AppendHistory(ctx, "s1", role, fmt.Sprintf("m%d", i)))
	}
	require.NoError(t, store.AppendHistory(ctx, "other", core.RoleUser, "x"))

	msgs, err := store.LoadHistory(ctx, "s1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m3", msgs[0].Content)
	assert.Equal(t, "m4", msgs[1].Content)
	assert.Equal(t, core.RoleAI, msgs[1].Role)
	assert.Equal(t, "m5", msgs[2].Content)
	assert.False(t, msgs[2].CreatedAt.IsZero())

	all, err := store.LoadHistory(ctx, "s1", 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := store.LoadHistory(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.AppendHistory(ctx, "s1", core.RoleUser, "persisted"))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	msgs, err := reopened.LoadHistory(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "persisted", msgs[0].Content)
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	_, client := newMiniRedis(t)
	exerciseStore(t, NewRedisStoreFromClient(client, RedisConfig{}))
}

func TestRedisStore_TrimsAndExpires(t *testing.T) {
	mr, client := newMiniRedis(t)
	store := NewRedisStoreFromClient(client, RedisConfig{Prefix: "t:", MaxLen: 2, TTL: time.Hour})
	ctx := context.Background()

	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, store.AppendHistory(ctx, "s1", core.RoleUser, s))
	}

	items, err := mr.List("t:s1")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, time.Hour, mr.TTL("t:s1"))

	msgs, err := store.LoadHistory(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", msgs[0].Content)
}

func TestRedisStore_SkipsForeignEntries(t *testing.T) {
	mr, client := newMiniRedis(t)
	store := NewRedisStoreFromClient(client, RedisConfig{Prefix: "t:"})
	_, err := mr.RPush("t:s1", "not json")
	require.NoError(t, err)
	require.NoError(t, store.AppendHistory(context.Background(), "s1", core.RoleAI, "ok"))

	msgs, err := store.LoadHistory(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ok", msgs[0].Content)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(0))
}

func TestNew_SelectsBackend(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		cfg     Config
		want    interface{}
		wantErr bool
	}{
		{name: "default sqlite", cfg: Config{SQLitePath: filepath.Join(t.TempDir(), "h.sqlite")}, want: &SQLiteStore{}},
		{name: "redis", cfg: Config{Backend: "redis", RedisURL: "redis://" + mr.Addr()}, want: &RedisStore{}},
		{name: "memory", cfg: Config{Backend: "MEMORY"}, want: &MemoryStore{}},
		{name: "bad redis url", cfg: Config{Backend: "redis", RedisURL: "::"}, wantErr: true},
		{name: "unknown", cfg: Config{Backend: "etcd"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(ctx, tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = Close(store) })
			assert.IsType(t, tt.want, store)
		})
	}
}

func TestNew_SQLitePathGetsDBExtension(t *testing.T) {
	dir := t.TempDir()
	store, err := New(context.Background(), Config{SQLitePath: filepath.Join(dir, "h.sqlite")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(store) })

	assert.Equal(t, filepath.Join(dir, "h.db"), store.(*SQLiteStore).dbPath)
}
