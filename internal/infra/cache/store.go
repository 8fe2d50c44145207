package cache

import (
	"time"

	"github.com/John-Robertt/flixresolver/internal/domain"
	"github.com/John-Robertt/flixresolver/internal/metrics"
)

const (
	TableSearch = "search"
	TableStream = "stream"
	TableMeta   = "meta"
	TableMovie  = "movie"
)

// Store 聚合四张缓存表；进程内共享，无持久化。
//
//   - Search：目录 ID -> 站点定位符（详情页 URL）
//   - Stream：剧集复合 ID（series:s:e）-> LinkState
//   - Meta：类型:外部 ID -> 元数据记录
//   - Movie：目录 ID -> 已排序的电影变体
type Store struct {
	Search *Table[string, string]
	Stream *Table[string, domain.LinkState]
	Meta   *Table[string, domain.MetadataRecord]
	Movie  *Table[string, []domain.StreamVariant]
}

type Options struct {
	Now     Clock
	Metrics *metrics.Metrics
}

func New(opts Options) *Store {
	return &Store{
		Search: NewTable[string, string](TableSearch, opts.Now, opts.Metrics),
		Stream: NewTable[string, domain.LinkState](TableStream, opts.Now, opts.Metrics),
		Meta:   NewTable[string, domain.MetadataRecord](TableMeta, opts.Now, opts.Metrics),
		Movie:  NewTable[string, []domain.StreamVariant](TableMovie, opts.Now, opts.Metrics),
	}
}

// SweepReport 记录一次清扫在各表删除的条目数。
type SweepReport struct {
	Removed map[string]int `json:"removed"`
	Total   int            `json:"total"`
}

// Sweep 依次清扫四张表。
func (s *Store) Sweep(maxAge time.Duration) SweepReport {
	r := SweepReport{Removed: make(map[string]int, 4)}
	r.add(TableSearch, s.Search.Sweep(maxAge))
	r.add(TableStream, s.Stream.Sweep(maxAge))
	r.add(TableMeta, s.Meta.Sweep(maxAge))
	r.add(TableMovie, s.Movie.Sweep(maxAge))
	return r
}

func (r *SweepReport) add(table string, n int) {
	r.Removed[table] = n
	r.Total += n
}

// FlushAll 清空所有表，返回各表删除数。
func (s *Store) FlushAll() map[string]int {
	return map[string]int{
		TableSearch: s.Search.Flush(),
		TableStream: s.Stream.Flush(),
		TableMeta:   s.Meta.Flush(),
		TableMovie:  s.Movie.Flush(),
	}
}

func (s *Store) Snapshots() []Snapshot {
	return []Snapshot{
		s.Search.Snapshot(),
		s.Stream.Snapshot(),
		s.Meta.Snapshot(),
		s.Movie.Snapshot(),
	}
}
