package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/flixresolver/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTable_PutRefreshesTimestamp(t *testing.T) {
	clk := newFakeClock()
	tb := NewTable[string, string]("search", clk.Now, nil)

	tb.Put("tt1", "a")
	clk.Advance(10 * time.Hour)
	age, ok := tb.Age("tt1")
	require.True(t, ok)
	assert.Equal(t, 10*time.Hour, age)

	tb.Put("tt1", "b")
	age, _ = tb.Age("tt1")
	assert.Equal(t, time.Duration(0), age)

	v, ok := tb.Get("tt1")
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestTable_GetDoesNotRefreshOrExpire(t *testing.T) {
	clk := newFakeClock()
	tb := NewTable[string, string]("search", clk.Now, nil)

	tb.Put("tt1", "a")
	clk.Advance(48 * time.Hour)

	v, ok := tb.Get("tt1")
	require.True(t, ok, "查询不应自行过期")
	assert.Equal(t, "a", v)

	age, _ := tb.Age("tt1")
	assert.Equal(t, 48*time.Hour, age)
	assert.True(t, tb.IsExpired("tt1", 24*time.Hour))
}

func TestTable_MissingIndexIsExpired(t *testing.T) {
	tb := NewTable[string, int]("x", nil, nil)
	assert.True(t, tb.IsExpired("never-written", time.Hour))

	tb.Put("k", 1)
	// 人为制造“有值但无时间戳”的状态。
	tb.mu.Lock()
	delete(tb.written, "k")
	tb.mu.Unlock()

	assert.True(t, tb.IsExpired("k", time.Hour))
	assert.Equal(t, 1, tb.Sweep(time.Hour))
	_, ok := tb.Get("k")
	assert.False(t, ok)
}

func TestStore_SweepEvictsOnlyExpired(t *testing.T) {
	clk := newFakeClock()
	s := New(Options{Now: clk.Now})

	s.Search.Put("tt-old", "https://site/s/1")
	s.Stream.Put("x:1:1", domain.Pending())
	clk.Advance(25 * time.Hour)
	s.Search.Put("tt-new", "https://site/s/2")
	s.Movie.Put("tt-movie", []domain.StreamVariant{{URL: "u"}})

	r := s.Sweep(24 * time.Hour)
	assert.Equal(t, 2, r.Total)
	assert.Equal(t, 1, r.Removed[TableSearch])
	assert.Equal(t, 1, r.Removed[TableStream])
	assert.Equal(t, 0, r.Removed[TableMovie])

	_, ok := s.Search.Get("tt-old")
	assert.False(t, ok)
	_, ok = s.Search.Get("tt-new")
	assert.True(t, ok)
	_, ok = s.Movie.Get("tt-movie")
	assert.True(t, ok)
}

func TestStore_SweepBoundaryIsInclusive(t *testing.T) {
	clk := newFakeClock()
	s := New(Options{Now: clk.Now})
	s.Meta.Put("tt1", domain.MetadataRecord{Name: "x"})

	clk.Advance(24 * time.Hour)
	assert.Equal(t, 0, s.Sweep(24*time.Hour).Total, "恰好等于 maxAge 不算过期")

	clk.Advance(time.Second)
	assert.Equal(t, 1, s.Sweep(24*time.Hour).Total)
}

func TestStore_FlushAllAndSnapshots(t *testing.T) {
	clk := newFakeClock()
	s := New(Options{Now: clk.Now})
	s.Search.Put("b", "2")
	s.Search.Put("a", "1")
	clk.Advance(time.Minute)
	s.Stream.Put("x:1:2", domain.Resolved("https://cdn/x.mkv"))

	snaps := s.Snapshots()
	require.Len(t, snaps, 4)
	assert.Equal(t, TableSearch, snaps[0].Table)
	assert.Equal(t, []string{"a", "b"}, snaps[0].Keys)
	assert.Equal(t, time.Minute, snaps[0].Ages["a"])
	assert.Equal(t, 1, snaps[1].Size)

	n := s.FlushAll()
	assert.Equal(t, 2, n[TableSearch])
	assert.Equal(t, 1, n[TableStream])
	for _, snap := range s.Snapshots() {
		assert.Zero(t, snap.Size)
	}
}

func TestJanitor_RunSweepsAndStops(t *testing.T) {
	clk := newFakeClock()
	s := New(Options{Now: clk.Now})
	s.Search.Put("old", "x")
	clk.Advance(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Janitor{Store: s, MaxAge: time.Hour, Interval: time.Hour, InitialDelay: 0}.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.Search.Len() == 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ctx 取消后 Run 应返回")
	}
}

func TestJanitor_CancelBeforeFirstSweep(t *testing.T) {
	clk := newFakeClock()
	s := New(Options{Now: clk.Now})
	s.Search.Put("old", "x")
	clk.Advance(48 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Janitor{Store: s, MaxAge: time.Hour, Interval: time.Hour, InitialDelay: time.Hour}.Run(ctx)

	assert.Equal(t, 1, s.Search.Len(), "首次清扫前取消，不应删除任何条目")
}
