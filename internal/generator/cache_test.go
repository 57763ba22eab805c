package generator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// slowHistory blocks LoadHistory until released and counts calls.
type slowHistory struct {
	*testutil.MockHistory
	release chan struct{}
	loads   atomic.Int32
}

func (h *slowHistory) LoadHistory(ctx context.Context, key string, limit int) ([]core.HistoryMessage, error) {
	h.loads.Add(1)
	<-h.release
	return h.MockHistory.LoadHistory(ctx, key, limit)
}

func TestCache_ConcurrentMissConstructsOnce(t *testing.T) {
	history := &slowHistory{MockHistory: testutil.NewMockHistory(), release: make(chan struct{})}
	var mu sync.Mutex
	counts := map[string]int{}
	cache, err := NewCache(testutil.NewMockModel(), history, DefaultConfig(),
		WithObserver(func(e string) {
			mu.Lock()
			defer mu.Unlock()
			counts[e]++
		}))
	require.NoError(t, err)

	const callers = 8
	handles := make([]*Handle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := cache.Get(context.Background(), "s1", core.GenerationPlainPage)
			require.NoError(t, err)
			handles[i] = h
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(history.release)
	wg.Wait()

	assert.Equal(t, int32(1), history.loads.Load())
	for _, h := range handles[1:] {
		assert.Same(t, handles[0], h)
	}
	assert.Equal(t, 1, cache.Len())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"miss": 1, "hit": callers - 1}, counts,
		"every Get is counted once, including callers that joined the flight")
}

func TestCache_KeyIncludesGenerationType(t *testing.T) {
	cache, err := NewCache(testutil.NewMockModel(), nil, DefaultConfig())
	require.NoError(t, err)

	a, err := cache.Get(context.Background(), "s1", core.GenerationPlainPage)
	require.NoError(t, err)
	b, err := cache.Get(context.Background(), "s1", core.GenerationMultiFile)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "s1_plain_page", a.Key().String())
}

func TestCache_TTLExpiryCreatesNewHandle(t *testing.T) {
	clock := newFakeClock()
	var causes []EvictCause
	cfg := DefaultConfig()
	cfg.TTL = 30 * time.Minute
	cfg.IdleTTL = 10 * time.Minute
	cache, err := NewCache(testutil.NewMockModel(), nil, cfg,
		WithClock(clock.Now),
		WithEvictionListener(func(_ Key, c EvictCause) { causes = append(causes, c) }))
	require.NoError(t, err)

	first, err := cache.Get(context.Background(), "s1", core.GenerationPlainPage)
	require.NoError(t, err)

	// Keep it warm so only the fixed TTL can fire.
	for i := 0; i < 4; i++ {
		clock.Advance(8 * time.Minute)
		h, err := cache.Get(context.Background(), "s1", core.GenerationPlainPage)
		require.NoError(t, err)
		if i < 3 {
			assert.Same(t, first, h)
		} else {
			assert.NotSame(t, first, h)
		}
	}
	assert.Equal(t, []EvictCause{CauseTime}, causes)
}

func TestCache_IdleExpiry(t *testing.T) {
	clock := newFakeClock()
	var events []string
	cache, err := NewCache(testutil.NewMockModel(), nil, DefaultConfig(),
		WithClock(clock.Now),
		WithObserver(func(e string) { events = append(events, e) }))
	require.NoError(t, err)

	first, err := cache.Get(context.Background(), "s1", core.GenerationPlainPage)
	require.NoError(t, err)
	clock.Advance(11 * time.Minute)
	second, err := cache.Get(context.Background(), "s1", core.GenerationPlainPage)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, []string{"miss", "evict_idle", "miss"}, events)
}

func TestCache_CapacityEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []Key
	cfg := DefaultConfig()
	cfg.Capacity = 2
	cache, err := NewCache(testutil.NewMockModel(), nil, cfg,
		WithEvictionListener(func(k Key, c EvictCause) {
			assert.Equal(t, CauseSize, c)
			evicted = append(evicted, k)
		}))
	require.NoError(t, err)
	ctx := context.Background()

	_, _ = cache.Get(ctx, "a", core.GenerationPlainPage)
	_, _ = cache.Get(ctx, "b", core.GenerationPlainPage)
	_, _ = cache.Get(ctx, "a", core.GenerationPlainPage)
	_, _ = cache.Get(ctx, "c", core.GenerationPlainPage)

	assert.Equal(t, []Key{{SessionKey: "b", Type: core.GenerationPlainPage}}, evicted)
	assert.Equal(t, 2, cache.Len())
}

func TestCache_SweepAndPurge(t *testing.T) {
	clock := newFakeClock()
	cache, err := NewCache(testutil.NewMockModel(), nil, DefaultConfig(), WithClock(clock.Now))
	require.NoError(t, err)
	ctx := context.Background()

	_, _ = cache.Get(ctx, "a", core.GenerationPlainPage)
	clock.Advance(11 * time.Minute)
	_, _ = cache.Get(ctx, "b", core.GenerationPlainPage)

	assert.Equal(t, 1, cache.Sweep())
	assert.Equal(t, 1, cache.Len())

	cache.Purge()
	assert.Equal(t, 0, cache.Len())
}

func TestCache_LoadsRecentHistoryIntoMemory(t *testing.T) {
	history := testutil.NewMockHistory()
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleAI
		}
		require.NoError(t, history.AppendHistory(ctx, "s1", role, string(rune('a'+i))))
	}

	cache, err := NewCache(testutil.NewMockModel(), history, DefaultConfig())
	require.NoError(t, err)
	h, err := cache.Get(ctx, "s1", core.GenerationPlainPage)
	require.NoError(t, err)

	msgs := h.Memory().Messages()
	require.Len(t, msgs, 20)
	assert.Equal(t, "f", msgs[0].Content, "oldest of the newest twenty")
	assert.Equal(t, "y", msgs[19].Content)
}

func TestCache_HistoryFailureStillCreatesHandle(t *testing.T) {
	history := testutil.NewMockHistory().WithError(errors.New("db down"))
	cache, err := NewCache(testutil.NewMockModel(), history, DefaultConfig())
	require.NoError(t, err)

	h, err := cache.Get(context.Background(), "s1", core.GenerationPlainPage)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Memory().Len())
}

func TestHandle_GenerateSendsHistoryThenRemembersPrompt(t *testing.T) {
	model := testutil.NewMockModel().WithText("ok")
	h := newHandle(Key{SessionKey: "s1", Type: core.GenerationMultiFile}, model, NewMemory(3), time.Now())
	h.Remember(core.RoleAI, "earlier reply")

	ch, err := h.Generate(context.Background(), "make it blue", "/out")
	require.NoError(t, err)
	for range ch {
	}

	reqs := model.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "make it blue", reqs[0].Prompt)
	assert.Equal(t, core.GenerationMultiFile, reqs[0].Type)
	assert.Equal(t, "/out", reqs[0].OutputDir)
	require.Len(t, reqs[0].History, 1)
	assert.Equal(t, "earlier reply", reqs[0].History[0].Content)
	assert.Equal(t, 2, h.Memory().Len())
}

func TestMemory_SlidingWindow(t *testing.T) {
	m := NewMemory(2)
	for _, s := range []string{"1", "2", "3"} {
		m.Add(core.HistoryMessage{Content: s})
	}
	msgs := m.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "2", msgs[0].Content)
	assert.Equal(t, "3", msgs[1].Content)
}
