package domain

import "strings"

// ContentType 是调用方声明的内容类型。
type ContentType string

const (
	TypeMovie  ContentType = "movie"
	TypeSeries ContentType = "series"
	// TypeAll 只用于搜索：同时搜电影与剧集。
	TypeAll ContentType = "all"
)

// ParseContentType 把外部传入的类型字符串规范化。
// 协议层常见的 anime/tv 等别名一律视为 series；空串视为 all。
func ParseContentType(s string) ContentType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies", "film":
		return TypeMovie
	case "", "all":
		return TypeAll
	default:
		return TypeSeries
	}
}
