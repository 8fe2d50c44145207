// Package admin 提供调试用的运维 HTTP 接口：强制解析、查看/清空缓存、单次取流、搜索与元数据。
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/John-Robertt/flixresolver/internal/domain"
	"github.com/John-Robertt/flixresolver/internal/infra/cache"
	"github.com/John-Robertt/flixresolver/internal/logx"
)

// Resolver 是运维接口依赖的解析能力（由 resolve.Service 实现）。
type Resolver interface {
	Search(ctx context.Context, query string, typ domain.ContentType) []domain.SearchResult
	GetMetadata(ctx context.Context, catalogID string, typ domain.ContentType) *domain.MetadataRecord
	GetStreams(ctx context.Context, catalogID string, typ domain.ContentType) []domain.StreamVariant
	LoadSeries(ctx context.Context, catalogID string) *domain.MetadataRecord
	Cache() *cache.Store
}

type Options struct {
	Resolver Resolver
	// Gatherer 为 nil 时不挂载 /metrics。
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type handler struct {
	res Resolver
	log *slog.Logger
}

const requestIDHeader = "X-Request-ID"

const usage = `flixresolver admin

GET       /load?id=<catalogId>              强制解析剧集并缓存分集链接
GET       /cache                            查看各缓存表的大小、键与年龄
GET       /stream?id=<id>&type=movie|series 取一次流
GET|POST  /flush                            清空全部缓存
GET       /search?q=<query>&type=movie|series|all
GET       /meta?id=<catalogId>&type=movie|series
GET       /metrics                          Prometheus 指标
`

// NewRouter 构造运维接口路由。
func NewRouter(opts Options) *mux.Router {
	h := &handler{res: opts.Resolver, log: logx.OrDefault(opts.Logger)}

	r := mux.NewRouter()
	r.Use(h.requestLog)

	r.HandleFunc("/", h.help).Methods(http.MethodGet)
	r.HandleFunc("/load", h.load).Methods(http.MethodGet)
	r.HandleFunc("/cache", h.cache).Methods(http.MethodGet)
	r.HandleFunc("/stream", h.stream).Methods(http.MethodGet)
	r.HandleFunc("/flush", h.flush).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/search", h.search).Methods(http.MethodGet)
	r.HandleFunc("/meta", h.meta).Methods(http.MethodGet)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

func (h *handler) help(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(usage))
}

func (h *handler) load(w http.ResponseWriter, r *http.Request) {
	id, ok := requireParam(w, r, "id")
	if !ok {
		return
	}
	rec := h.res.LoadSeries(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":    id,
		"found": rec != nil,
		"meta":  rec,
	})
}

func (h *handler) cache(w http.ResponseWriter, _ *http.Request) {
	snaps := h.res.Cache().Snapshots()
	total := 0
	for _, s := range snaps {
		total += s.Size
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables": snaps,
		"total":  total,
	})
}

func (h *handler) stream(w http.ResponseWriter, r *http.Request) {
	id, ok := requireParam(w, r, "id")
	if !ok {
		return
	}
	typ := domain.ParseContentType(r.URL.Query().Get("type"))
	streams := h.res.GetStreams(r.Context(), id, typ)
	if streams == nil {
		streams = []domain.StreamVariant{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"streams": streams})
}

func (h *handler) flush(w http.ResponseWriter, r *http.Request) {
	removed := h.res.Cache().FlushAll()
	h.log.Info("caches flushed", "request_id", requestID(r), "removed", removed)
	writeJSON(w, http.StatusOK, map[string]any{"flushed": removed})
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	q, ok := requireParam(w, r, "q")
	if !ok {
		return
	}
	typ := domain.ParseContentType(r.URL.Query().Get("type"))
	metas := h.res.Search(r.Context(), q, typ)
	if metas == nil {
		metas = []domain.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"metas": metas})
}

func (h *handler) meta(w http.ResponseWriter, r *http.Request) {
	id, ok := requireParam(w, r, "id")
	if !ok {
		return
	}
	typ := domain.ParseContentType(r.URL.Query().Get("type"))
	writeJSON(w, http.StatusOK, map[string]any{"meta": h.res.GetMetadata(r.Context(), id, typ)})
}

type ctxKey struct{}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

// statusRecorder 记录响应码，供访问日志使用。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestLog 为每个请求分配 request id（沿用调用方传入的值）并记录访问日志。
func (h *handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		h.log.Info("admin request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func requireParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "缺少参数 " + name})
		return "", false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
