// Package session 维护与内容站点共享的唯一登录会话。
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/John-Robertt/flixresolver/internal/domain"
	"github.com/John-Robertt/flixresolver/internal/logx"
	"github.com/John-Robertt/flixresolver/internal/metrics"
	"github.com/John-Robertt/flixresolver/internal/provider"
)

const DefaultLifetime = 5 * time.Minute

// ErrNoSession 表示登录失败且此前从未拿到过凭据。
var ErrNoSession = errors.New("session: 无可用会话")

type Options struct {
	LoginURL string
	Lifetime time.Duration
	Client   *http.Client
	Now      func() time.Time
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Manager 持有当前凭据，并在过期时重新登录。
//
// 约束：
// - mu 只保护凭据的读写，不跨越登录请求
// - 并发的登录请求合并为一次（singleflight）
// - 登录失败时保留旧凭据：有旧凭据就返回旧凭据（可能已过期），否则返回 ErrNoSession
type Manager struct {
	loginURL string
	lifetime time.Duration
	client   *http.Client
	now      func() time.Time
	log      *slog.Logger
	metrics  *metrics.Metrics

	group singleflight.Group

	mu   sync.Mutex
	cred domain.Credential
}

func New(opts Options) *Manager {
	lifetime := opts.Lifetime
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	c := opts.Client
	if c == nil {
		c = http.DefaultClient
	}
	// 登录响应本身携带 Set-Cookie，跟随重定向会丢掉它。
	noRedirect := *c
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Manager{
		loginURL: strings.TrimSpace(opts.LoginURL),
		lifetime: lifetime,
		client:   &noRedirect,
		now:      now,
		log:      logx.OrDefault(opts.Logger),
		metrics:  opts.Metrics,
	}
}

// EnsureSession 返回可用凭据；凭据缺失或超过有效期时先登录。
func (m *Manager) EnsureSession(ctx context.Context) (domain.Credential, error) {
	m.mu.Lock()
	cred := m.cred
	m.mu.Unlock()

	if !cred.IsZero() && m.now().Sub(cred.IssuedAt) <= m.lifetime {
		return cred, nil
	}
	return m.refresh(ctx)
}

// ForceRefresh 无视有效期立即重新登录；失败规则与 EnsureSession 相同。
func (m *Manager) ForceRefresh(ctx context.Context) (domain.Credential, error) {
	return m.refresh(ctx)
}

// Current 返回当前凭据（不触发登录）。
func (m *Manager) Current() (domain.Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred, !m.cred.IsZero()
}

func (m *Manager) refresh(ctx context.Context) (domain.Credential, error) {
	// 登录结果被所有等待者共享：不让首个调用方的取消连累其它调用方。
	lctx := context.WithoutCancel(ctx)
	v, err, shared := m.group.Do("login", func() (any, error) {
		cred, err := m.login(lctx)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.cred = cred
		m.mu.Unlock()
		return cred, nil
	})
	if err == nil {
		if !shared {
			m.metrics.Login("ok")
		}
		return v.(domain.Credential), nil
	}

	m.metrics.Login("failed")
	m.mu.Lock()
	old := m.cred
	m.mu.Unlock()
	if !old.IsZero() {
		m.log.Warn("session refresh failed, keeping previous credential", "err", err, "issued_at", old.IssuedAt)
		return old, nil
	}
	m.log.Error("session login failed", "err", err)
	return domain.Credential{}, fmt.Errorf("%w: %v", ErrNoSession, err)
}

func (m *Manager) login(ctx context.Context) (domain.Credential, error) {
	if m.loginURL == "" {
		return domain.Credential{}, errors.New("login url 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.loginURL, nil)
	if err != nil {
		return domain.Credential{}, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return domain.Credential{}, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// 2xx 与 3xx 都算登录成功（站点通常以 302 跳回首页）。
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return domain.Credential{}, &provider.HTTPStatusError{
			URL:        m.loginURL,
			StatusCode: resp.StatusCode,
			Location:   resp.Header.Get("Location"),
		}
	}

	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return domain.Credential{}, errors.New("登录响应缺少 Set-Cookie")
	}
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	cred := domain.Credential{Cookie: strings.Join(parts, "; "), IssuedAt: m.now()}
	m.log.Debug("session login ok", "cookies", len(cookies))
	return cred, nil
}
