package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// EpisodeID 是复合剧集标识 seriesId:season:episode 的解析结果。
//
// 约束：season/episode 取最后两段，seriesId 可以自身包含 ':'（例如 dflix:...）。
type EpisodeID struct {
	SeriesID string
	Season   int
	Episode  int
}

// ParseEpisodeID 按 ':' 切分并取最后两段为整数。
// 任何一段缺失、非整数或 < 1 都返回 ok=false。
func ParseEpisodeID(s string) (EpisodeID, bool) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 3 {
		return EpisodeID{}, false
	}
	n := len(parts)
	season, err := strconv.Atoi(strings.TrimSpace(parts[n-2]))
	if err != nil || season < 1 {
		return EpisodeID{}, false
	}
	episode, err := strconv.Atoi(strings.TrimSpace(parts[n-1]))
	if err != nil || episode < 1 {
		return EpisodeID{}, false
	}
	series := strings.Join(parts[:n-2], ":")
	if strings.TrimSpace(series) == "" {
		return EpisodeID{}, false
	}
	return EpisodeID{SeriesID: series, Season: season, Episode: episode}, true
}

// Key 是 StreamCache 的键。
func (e EpisodeID) Key() string {
	return fmt.Sprintf("%s:%d:%d", e.SeriesID, e.Season, e.Episode)
}

func (e EpisodeID) String() string { return e.Key() }
