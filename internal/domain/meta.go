package domain

import "time"

// MetadataRecord 是对外的条目元数据（也是外部元数据源 lookup 的结果形状）。
type MetadataRecord struct {
	ID          string      `json:"id"`
	Type        ContentType `json:"type"`
	Name        string      `json:"name"`
	Poster      string      `json:"poster,omitempty"`
	Description string      `json:"description,omitempty"`
	Genres      []string    `json:"genres,omitempty"`
	Videos      []Video     `json:"videos,omitempty"`
}

// Video 是剧集元数据里的一集（可能只是占位）。
type Video struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Season   int       `json:"season"`
	Episode  int       `json:"episode"`
	Released time.Time `json:"released"`
}

// SearchResult 是 search 边界操作的一条结果。
type SearchResult struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Poster string      `json:"poster,omitempty"`
	Type   ContentType `json:"type"`
}
