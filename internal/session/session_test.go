package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginServer struct {
	*httptest.Server
	logins   atomic.Int32
	followed atomic.Int32
	fail     atomic.Bool
	delay    time.Duration
}

func newLoginServer(t *testing.T) *loginServer {
	t.Helper()
	ls := &loginServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/login/demo", func(w http.ResponseWriter, r *http.Request) {
		n := ls.logins.Add(1)
		if ls.delay > 0 {
			time.Sleep(ls.delay)
		}
		if ls.fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "s" + string(rune('0'+n))})
		http.SetCookie(w, &http.Cookie{Name: "demo", Value: "1"})
		http.Redirect(w, r, "/home", http.StatusFound)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		ls.followed.Add(1)
	})
	ls.Server = httptest.NewServer(mux)
	t.Cleanup(ls.Close)
	return ls
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newManager(ls *loginServer, clk *clock) *Manager {
	return New(Options{LoginURL: ls.URL + "/login/demo", Lifetime: 5 * time.Minute, Client: ls.Client(), Now: clk.Now})
}

func TestEnsureSession_LoginOnceWhileFresh(t *testing.T) {
	ls := newLoginServer(t)
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(ls, clk)

	c1, err := m.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sid=s1; demo=1", c1.Cookie)
	assert.Equal(t, clk.Now(), c1.IssuedAt)

	clk.Advance(4 * time.Minute)
	c2, err := m.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
	assert.EqualValues(t, 1, ls.logins.Load())
	assert.EqualValues(t, 0, ls.followed.Load(), "登录不应跟随重定向")
}

func TestEnsureSession_RelogsAfterLifetime(t *testing.T) {
	ls := newLoginServer(t)
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(ls, clk)

	_, err := m.EnsureSession(context.Background())
	require.NoError(t, err)

	clk.Advance(5*time.Minute + time.Second)
	c, err := m.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sid=s2; demo=1", c.Cookie)
	assert.EqualValues(t, 2, ls.logins.Load())
}

func TestEnsureSession_FailureWithoutCredential(t *testing.T) {
	ls := newLoginServer(t)
	ls.fail.Store(true)
	m := newManager(ls, &clock{now: time.Unix(1_700_000_000, 0)})

	_, err := m.EnsureSession(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSession))
	_, ok := m.Current()
	assert.False(t, ok)
}

func TestEnsureSession_FailureKeepsStaleCredential(t *testing.T) {
	ls := newLoginServer(t)
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(ls, clk)

	first, err := m.EnsureSession(context.Background())
	require.NoError(t, err)

	ls.fail.Store(true)
	clk.Advance(time.Hour)
	got, err := m.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, got, "刷新失败时应返回旧凭据")
}

func TestForceRefresh_IgnoresFreshness(t *testing.T) {
	ls := newLoginServer(t)
	m := newManager(ls, &clock{now: time.Unix(1_700_000_000, 0)})

	_, err := m.EnsureSession(context.Background())
	require.NoError(t, err)
	c, err := m.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sid=s2; demo=1", c.Cookie)
	assert.EqualValues(t, 2, ls.logins.Load())
}

func TestEnsureSession_ConcurrentCallersShareLogin(t *testing.T) {
	ls := newLoginServer(t)
	ls.delay = 100 * time.Millisecond
	m := newManager(ls, &clock{now: time.Unix(1_700_000_000, 0)})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.EnsureSession(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, ls.logins.Load())
}
