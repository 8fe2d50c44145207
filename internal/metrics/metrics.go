// Package metrics 汇总缓存/抓取/解析结果的 Prometheus 计数器。
//
// 所有方法对 nil *Metrics 安全，组件可在测试中直接传 nil。
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "flixresolver"

type Metrics struct {
	cacheLookups   *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	fetches        *prometheus.CounterVec
	resolutions    *prometheus.CounterVec
	logins         *prometheus.CounterVec
	sweeps         prometheus.Counter
	swept          prometheus.Counter
}

// New 创建计数器并注册到 reg；reg 为 nil 时只创建不注册。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by table and result (hit|miss).",
		}, []string{"table", "result"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Cache entries removed by table and reason.",
		}, []string{"table", "reason"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Outbound fetches by target and outcome.",
		}, []string{"target", "outcome"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Stream resolutions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_logins_total",
			Help:      "Session login attempts by outcome.",
		}, []string{"outcome"}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_sweeps_total",
			Help:      "Completed cache maintenance sweeps.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_swept_entries_total",
			Help:      "Entries removed by maintenance sweeps.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.cacheLookups, m.cacheEvictions, m.fetches, m.resolutions, m.logins, m.sweeps, m.swept)
	}
	return m
}

func (m *Metrics) CacheLookup(table string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(table, result).Inc()
}

func (m *Metrics) CacheEvict(table, reason string) {
	if m == nil {
		return
	}
	m.cacheEvictions.WithLabelValues(table, reason).Inc()
}

func (m *Metrics) Fetch(target, outcome string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(target, outcome).Inc()
}

func (m *Metrics) Resolution(kind, outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// Sweep 记录一次完整的清扫以及它删除的条目数。
func (m *Metrics) Sweep(removed int) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	if removed > 0 {
		m.swept.Add(float64(removed))
	}
}
