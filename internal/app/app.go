// Package app 把配置装配成可运行的进程：出站客户端、会话、缓存、解析服务与运维接口。
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/John-Robertt/flixresolver/internal/admin"
	"github.com/John-Robertt/flixresolver/internal/config"
	"github.com/John-Robertt/flixresolver/internal/infra/cache"
	"github.com/John-Robertt/flixresolver/internal/infra/httpx"
	"github.com/John-Robertt/flixresolver/internal/logx"
	"github.com/John-Robertt/flixresolver/internal/metrics"
	"github.com/John-Robertt/flixresolver/internal/provider/cinemeta"
	"github.com/John-Robertt/flixresolver/internal/provider/dflix"
	"github.com/John-Robertt/flixresolver/internal/resolve"
	"github.com/John-Robertt/flixresolver/internal/session"
)

const shutdownTimeout = 5 * time.Second

// App 持有一次进程生命周期内的全部组件。
type App struct {
	Config   config.EffectiveConfig
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Sessions *session.Manager
	Service  *resolve.Service
	Handler  http.Handler

	log *slog.Logger
}

// Build 按 EffectiveConfig 装配组件；不发起任何网络请求。
func Build(eff config.EffectiveConfig, logger *slog.Logger) (*App, error) {
	log := logx.OrDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	hopts := httpx.Options{
		ProxyURL:  eff.ProxyURL,
		Timeout:   eff.FetchTimeout,
		RetryMax:  eff.RetryMax,
		RateLimit: eff.RateLimit,
		Burst:     eff.RateBurst,
	}
	siteClient, err := httpx.NewSiteClient(hopts)
	if err != nil {
		return nil, fmt.Errorf("初始化站点客户端失败：%w", err)
	}
	metaClient, err := httpx.NewMetaClient(hopts)
	if err != nil {
		return nil, fmt.Errorf("初始化元数据客户端失败：%w", err)
	}

	sessions := session.New(session.Options{
		LoginURL: eff.SiteLoginURL,
		Lifetime: eff.SessionLifetime,
		Client:   siteClient,
		Logger:   log,
		Metrics:  m,
	})

	svc := resolve.New(resolve.Options{
		Site:           dflix.New(eff.SiteBaseURL, siteClient),
		Meta:           cinemeta.New(eff.MetadataBaseURL, metaClient),
		Sessions:       sessions,
		Cache:          cache.New(cache.Options{Metrics: m}),
		FetchTimeout:   eff.FetchTimeout,
		AdjacentWindow: eff.AdjacentWindow,
		Parallelism:    eff.MovieParallelism,
		Exceptions:     eff.Exceptions,
		Logger:         log,
		Metrics:        m,
	})

	return &App{
		Config:   eff,
		Registry: reg,
		Metrics:  m,
		Sessions: sessions,
		Service:  svc,
		Handler: admin.NewRouter(admin.Options{
			Resolver: svc,
			Gatherer: reg,
			Logger:   log,
		}),
		log: log,
	}, nil
}

// Janitor 返回绑定到本 App 缓存的维护任务。
func (a *App) Janitor() cache.Janitor {
	return cache.Janitor{
		Store:        a.Service.Cache(),
		MaxAge:       a.Config.CacheMaxAge,
		Interval:     a.Config.CacheSweepInterval,
		InitialDelay: a.Config.CacheInitialDelay,
		Logger:       a.log,
		Metrics:      a.Metrics,
	}
}

// Serve 在 ln 上提供运维接口并运行缓存维护，直到 ctx 取消。
//
// 约束：ctx 取消后优雅关闭 HTTP 服务（最多 shutdownTimeout），并等待维护循环退出。
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Janitor().Run(ctx)
	}()
	defer wg.Wait()

	srv := &http.Server{
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	a.log.Info("admin listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("关闭运维接口失败：%w", err)
	}
	<-errCh
	a.log.Info("admin stopped")
	return nil
}

// ListenAndServe 监听 Config.AdminListen 后调用 Serve。
func (a *App) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.AdminListen)
	if err != nil {
		return fmt.Errorf("监听 %s 失败：%w", a.Config.AdminListen, err)
	}
	return a.Serve(ctx, ln)
}
