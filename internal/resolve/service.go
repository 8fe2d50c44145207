// Package resolve 把目录 ID 解析为站点定位符与最终可播放的流地址。
//
// Service 是进程内唯一的“解析上下文”：它持有四张缓存表与会话管理器，
// 所有边界操作都只返回值（空列表/nil），错误只进日志与指标。
package resolve

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/John-Robertt/flixresolver/internal/domain"
	"github.com/John-Robertt/flixresolver/internal/infra/cache"
	"github.com/John-Robertt/flixresolver/internal/logx"
	"github.com/John-Robertt/flixresolver/internal/metrics"
	"github.com/John-Robertt/flixresolver/internal/provider"
)

const (
	DefaultFetchTimeout = 20 * time.Second
	DefaultParallelism  = 4
)

var (
	// ErrNotFound 表示目录 ID 无法映射到站点内容（没有任何候选）。
	ErrNotFound = errors.New("resolve: 未找到内容")
	// ErrNoVerifiedVariants 表示存在候选，但没有一个通过页面校验与直链提取。
	ErrNoVerifiedVariants = errors.New("resolve: 候选均未通过校验")
)

// Site 是内容站点：页面抓取 + 站点 URL 约定。
type Site interface {
	provider.Site
	Abs(href string) string
	SearchURL() string
	FindMovieURL(title string) string
	MovieViewURL(id int) string
}

// Sessions 提供站点会话凭据。
type Sessions interface {
	EnsureSession(ctx context.Context) (domain.Credential, error)
	ForceRefresh(ctx context.Context) (domain.Credential, error)
}

type Options struct {
	Site     Site
	Meta     provider.MetadataSource
	Sessions Sessions
	Cache    *cache.Store

	FetchTimeout   time.Duration
	AdjacentWindow int
	Parallelism    int
	Exceptions     []domain.ExceptionRule

	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Service 编排解析流程。
//
// 约束：
// - 缓存表与会话各自加锁，锁从不跨越网络 I/O
// - 同一剧集/电影 ID 的并发解析合并为一次（singleflight）
// - 每次外部抓取都带 FetchTimeout 超时
type Service struct {
	site     Site
	meta     provider.MetadataSource
	sessions Sessions
	cache    *cache.Store

	fetchTimeout time.Duration
	window       int
	parallelism  int
	exceptions   []domain.ExceptionRule

	now     func() time.Time
	log     *slog.Logger
	metrics *metrics.Metrics

	inflight singleflight.Group
}

func New(opts Options) *Service {
	s := &Service{
		site:         opts.Site,
		meta:         opts.Meta,
		sessions:     opts.Sessions,
		cache:        opts.Cache,
		fetchTimeout: opts.FetchTimeout,
		window:       opts.AdjacentWindow,
		parallelism:  opts.Parallelism,
		exceptions:   opts.Exceptions,
		now:          opts.Now,
		log:          logx.OrDefault(opts.Logger),
		metrics:      opts.Metrics,
	}
	if s.fetchTimeout <= 0 {
		s.fetchTimeout = DefaultFetchTimeout
	}
	if s.window < 0 {
		s.window = 0
	}
	if s.parallelism <= 0 {
		s.parallelism = DefaultParallelism
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cache == nil {
		s.cache = cache.New(cache.Options{Now: s.now, Metrics: s.metrics})
	}
	return s
}

// Cache 暴露缓存（供运维接口查看与清空）。
func (s *Service) Cache() *cache.Store { return s.cache }

func (s *Service) get(ctx context.Context, cred domain.Credential, rawURL string) (provider.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	p, err := s.site.Get(ctx, cred, rawURL)
	s.recordFetch("site", err)
	return p, err
}

func (s *Service) post(ctx context.Context, cred domain.Credential, rawURL string, form url.Values) (provider.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	p, err := s.site.PostForm(ctx, cred, rawURL, form)
	s.recordFetch("site", err)
	return p, err
}

func (s *Service) recordFetch(target string, err error) {
	switch {
	case err == nil:
		s.metrics.Fetch(target, "ok")
	case errors.Is(err, context.DeadlineExceeded):
		s.metrics.Fetch(target, "timeout")
	case provider.Stage(err) == "parse":
		s.metrics.Fetch(target, "parse_error")
	default:
		var blocked *provider.BlockedError
		if errors.As(err, &blocked) {
			s.metrics.Fetch(target, "blocked")
			return
		}
		s.metrics.Fetch(target, "error")
	}
}

// lookupMeta 查询外部元数据（只对 tt 外部 ID 生效），结果写入 Meta 表。
func (s *Service) lookupMeta(ctx context.Context, typ domain.ContentType, id string) (domain.MetadataRecord, bool) {
	if !isExternalID(id) || s.meta == nil {
		return domain.MetadataRecord{}, false
	}
	key := string(typ) + ":" + id
	if rec, ok := s.cache.Meta.Get(key); ok && rec.Name != "" {
		return rec, true
	}

	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	rec, err := s.meta.Lookup(ctx, typ, id)
	s.recordFetch("meta", err)
	if err != nil {
		s.log.Warn("metadata lookup failed", "id", id, "type", typ, "err", err)
		return domain.MetadataRecord{}, false
	}
	s.cache.Meta.Put(key, rec)
	return rec, true
}

// nameFor 返回外部 ID 对应的标准名称；非外部 ID 或查询失败时返回 ""。
func (s *Service) nameFor(ctx context.Context, typ domain.ContentType, id string) string {
	rec, ok := s.lookupMeta(ctx, typ, id)
	if !ok {
		return ""
	}
	return rec.Name
}
