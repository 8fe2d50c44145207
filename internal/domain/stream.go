package domain

import (
	"regexp"
	"sort"
	"strings"
)

// StreamVariant 是一个可播放 URL 及其展示信息。
type StreamVariant struct {
	URL     string `json:"url"`
	Quality string `json:"quality,omitempty"`
	// Title 是展示标题，例如 "[1080P] Ad Astra"。
	Title string `json:"title"`
	// Name 是来源标签，例如 "DFlix Series"。
	Name       string `json:"name,omitempty"`
	BingeGroup string `json:"binge_group,omitempty"`
}

const QualityUnknown = "Unknown"

var qualityRE = regexp.MustCompile(`(?i)\b(4K|2160p|1080p|720p|480p)\b`)

// QualityFromText 从 URL/文件名/徽章文本中提取分辨率标签（大写），找不到返回 ""。
func QualityFromText(s string) string {
	m := qualityRE.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.ToUpper(m[1])
}

// QualityRank 越小越优先：4K/2160p < 1080p < 720p < 其它。
func QualityRank(label string) int {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "4k") || strings.Contains(l, "2160p"):
		return 0
	case strings.Contains(l, "1080p"):
		return 1
	case strings.Contains(l, "720p"):
		return 2
	default:
		return 3
	}
}

// SortByQuality 按画质稳定排序；同级保持发现顺序。
// 排序依据是 Title（与展示一致），Title 为空时回退 Quality。
func SortByQuality(vs []StreamVariant) {
	sort.SliceStable(vs, func(i, j int) bool {
		return QualityRank(rankText(vs[i])) < QualityRank(rankText(vs[j]))
	})
}

func rankText(v StreamVariant) string {
	if v.Title != "" {
		return v.Title
	}
	return v.Quality
}
