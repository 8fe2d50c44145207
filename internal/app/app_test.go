package app

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/John-Robertt/flixresolver/internal/config"
	"github.com/John-Robertt/flixresolver/internal/domain"
	"github.com/John-Robertt/flixresolver/internal/logx"
	"github.com/John-Robertt/flixresolver/internal/provider/dflix/dflixtest"
)

func newSite(t *testing.T, logins *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == config.DefaultSiteLoginPath:
			logins.Add(1)
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc"})
			http.Redirect(w, r, "/", http.StatusFound)
		case r.Method == http.MethodPost && r.URL.Path == "/search":
			if r.Header.Get("Cookie") == "" {
				http.Error(w, "no cookie", http.StatusForbidden)
				return
			}
			_, _ = io.WriteString(w, dflixtest.SearchPage(dflixtest.Hit{
				Href:   "/s/view/the-show",
				Title:  "The Show",
				Poster: "/img/the-show.jpg",
			}))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, siteURL string) config.EffectiveConfig {
	t.Helper()
	eff, err := config.LoadEffective(t.TempDir(), config.CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	eff.SiteBaseURL = siteURL
	eff.SiteLoginURL = siteURL + config.DefaultSiteLoginPath
	eff.MetadataBaseURL = siteURL
	eff.FetchTimeout = 5 * time.Second
	return eff
}

func TestBuild_SearchThroughAdmin(t *testing.T) {
	var logins atomic.Int32
	site := newSite(t, &logins)

	a, err := Build(testConfig(t, site.URL), logx.Discard())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=The+Show&type=series", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200，实际=%d body=%s", rec.Code, rec.Body.String())
	}
	var out struct {
		Metas []domain.SearchResult `json:"metas"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("解析响应失败：%v", err)
	}
	if len(out.Metas) != 1 || out.Metas[0].Name != "The Show" {
		t.Fatalf("搜索结果不符合预期：%+v", out.Metas)
	}
	if logins.Load() != 1 {
		t.Fatalf("期望登录 1 次，实际=%d", logins.Load())
	}
	if _, ok := a.Sessions.Current(); !ok {
		t.Fatalf("期望已持有会话凭据")
	}
	if a.Service.Cache().Search.Len() != 1 {
		t.Fatalf("期望搜索缓存 1 条，实际=%d", a.Service.Cache().Search.Len())
	}
}

func TestBuild_MetricsEndpoint(t *testing.T) {
	a, err := Build(testConfig(t, "http://127.0.0.1:1"), logx.Discard())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200，实际=%d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"flixresolver_cache_sweeps_total", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Fatalf("期望指标包含 %q", want)
		}
	}
}

func TestBuild_InvalidProxy(t *testing.T) {
	eff := testConfig(t, "http://127.0.0.1:1")
	eff.ProxyURL = "http://[::1"
	if _, err := Build(eff, logx.Discard()); err == nil {
		t.Fatalf("期望代理地址无效时报错")
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	a, err := Build(testConfig(t, "http://127.0.0.1:1"), logx.Discard())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("监听失败：%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/cache")
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("期望 200，实际=%d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Serve 未在取消后退出")
	}
}
