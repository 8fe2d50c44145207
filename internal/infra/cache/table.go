package cache

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/John-Robertt/flixresolver/internal/metrics"
)

// Clock 返回“当前时间”；测试可注入固定时钟。
type Clock func() time.Time

// Table 是一张带写入时间索引的内存表。
//
// 约束：
// - Put 总是刷新写入时间；Get 不刷新，也不会自行过期（过期只由 Sweep/调用方判断）
// - 写入时间索引中缺失的 key 一律视为已过期
// - mu 只保护 map 读写，从不跨越网络 I/O
type Table[K comparable, V any] struct {
	name    string
	now     Clock
	metrics *metrics.Metrics

	mu      sync.Mutex
	values  map[K]V
	written map[K]time.Time
}

// Snapshot 是某张表在某一时刻的只读视图（供运维接口展示）。
type Snapshot struct {
	Table string                   `json:"table"`
	Size  int                      `json:"size"`
	Keys  []string                 `json:"keys"`
	Ages  map[string]time.Duration `json:"ages"`
}

func NewTable[K comparable, V any](name string, now Clock, m *metrics.Metrics) *Table[K, V] {
	if now == nil {
		now = time.Now
	}
	return &Table[K, V]{
		name:    name,
		now:     now,
		metrics: m,
		values:  make(map[K]V),
		written: make(map[K]time.Time),
	}
}

func (t *Table[K, V]) Name() string { return t.name }

func (t *Table[K, V]) Get(k K) (V, bool) {
	t.mu.Lock()
	v, ok := t.values[k]
	t.mu.Unlock()
	t.metrics.CacheLookup(t.name, ok)
	return v, ok
}

func (t *Table[K, V]) Put(k K, v V) {
	now := t.now()
	t.mu.Lock()
	t.values[k] = v
	t.written[k] = now
	t.mu.Unlock()
}

// Delete 删除 key；返回是否确实存在过。
func (t *Table[K, V]) Delete(k K) bool {
	t.mu.Lock()
	_, ok := t.values[k]
	delete(t.values, k)
	delete(t.written, k)
	t.mu.Unlock()
	return ok
}

// Evict 与 Delete 相同，但额外记录淘汰原因。
func (t *Table[K, V]) Evict(k K, reason string) bool {
	ok := t.Delete(k)
	if ok {
		t.metrics.CacheEvict(t.name, reason)
	}
	return ok
}

// Age 返回 key 自上次写入以来的时长；索引缺失时 ok=false。
func (t *Table[K, V]) Age(k K) (time.Duration, bool) {
	now := t.now()
	t.mu.Lock()
	ts, ok := t.written[k]
	t.mu.Unlock()
	if !ok {
		return 0, false
	}
	return now.Sub(ts), true
}

// IsExpired 判断 key 是否超过 maxAge；不在写入时间索引中的 key 视为已过期。
func (t *Table[K, V]) IsExpired(k K, maxAge time.Duration) bool {
	age, ok := t.Age(k)
	if !ok {
		return true
	}
	return age > maxAge
}

func (t *Table[K, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.values)
}

func (t *Table[K, V]) Snapshot() Snapshot {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Table: t.name,
		Size:  len(t.values),
		Keys:  make([]string, 0, len(t.values)),
		Ages:  make(map[string]time.Duration, len(t.values)),
	}
	for k := range t.values {
		ks := fmt.Sprint(k)
		s.Keys = append(s.Keys, ks)
		if ts, ok := t.written[k]; ok {
			s.Ages[ks] = now.Sub(ts)
		}
	}
	sort.Strings(s.Keys)
	return s
}

// Flush 清空整张表，返回删除的条目数。
func (t *Table[K, V]) Flush() int {
	t.mu.Lock()
	n := len(t.values)
	t.values = make(map[K]V)
	t.written = make(map[K]time.Time)
	t.mu.Unlock()
	if n > 0 {
		t.metrics.CacheEvict(t.name, "flush")
	}
	return n
}

// Sweep 删除所有超过 maxAge（或缺失写入时间）的条目，返回删除数。
func (t *Table[K, V]) Sweep(maxAge time.Duration) int {
	now := t.now()
	t.mu.Lock()
	removed := 0
	for k := range t.values {
		ts, ok := t.written[k]
		if ok && now.Sub(ts) <= maxAge {
			continue
		}
		delete(t.values, k)
		delete(t.written, k)
		removed++
	}
	// 只剩时间戳、没有值的孤儿索引也一并清掉。
	for k := range t.written {
		if _, ok := t.values[k]; !ok {
			delete(t.written, k)
		}
	}
	t.mu.Unlock()

	for i := 0; i < removed; i++ {
		t.metrics.CacheEvict(t.name, "expired")
	}
	return removed
}
