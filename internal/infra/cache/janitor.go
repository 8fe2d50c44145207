package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/John-Robertt/flixresolver/internal/logx"
	"github.com/John-Robertt/flixresolver/internal/metrics"
)

const (
	DefaultMaxAge       = 24 * time.Hour
	DefaultInterval     = 6 * time.Hour
	DefaultInitialDelay = 30 * time.Minute
)

// Janitor 周期性清扫 Store：首次在 InitialDelay 之后，此后每 Interval 一次。
type Janitor struct {
	Store        *Store
	MaxAge       time.Duration
	Interval     time.Duration
	InitialDelay time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Run 阻塞直到 ctx 取消。
func (j Janitor) Run(ctx context.Context) {
	if j.Store == nil {
		return
	}
	maxAge := j.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	interval := j.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	delay := j.InitialDelay
	if delay < 0 {
		delay = DefaultInitialDelay
	}
	log := logx.OrDefault(j.Logger)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r := j.Store.Sweep(maxAge)
		j.Metrics.Sweep(r.Total)
		log.Info("cache sweep", "removed", r.Total, "search", r.Removed[TableSearch],
			"stream", r.Removed[TableStream], "meta", r.Removed[TableMeta], "movie", r.Removed[TableMovie])

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
