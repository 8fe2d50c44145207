package resolve

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

// normalize 先音译为 ASCII，再转小写并只保留 [a-z0-9]。
func normalize(s string) string {
	s = strings.ToLower(unidecode.Unidecode(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func decodeLower(p string) string {
	if d, err := url.PathUnescape(p); err == nil {
		p = d
	}
	return strings.ToLower(p)
}

// LooksLikeSameTitle 判断缓存的定位符是否仍指向 expected 这部作品。
//
// 规则：定位符解码后按 '/' 切段，任一段归一化后长度 > 3，且与归一化后的 expected
// （长度也必须 > 3）互为子串，即视为同一作品。expected 过短时一律判为不匹配。
func LooksLikeSameTitle(expected, candidatePath string) bool {
	exp := normalize(expected)
	if len(exp) <= 3 {
		return false
	}
	for _, part := range strings.Split(decodeLower(candidatePath), "/") {
		seg := normalize(part)
		if len(seg) <= 3 {
			continue
		}
		if strings.Contains(seg, exp) || strings.Contains(exp, seg) {
			return true
		}
	}
	return false
}

// SeriesPathMismatch 检查剧集链接路径是否明显属于另一部剧。
//
// 含 "series"/"season" 或以 's' 结尾的段被视为“目录标记”，其后一段即剧名；
// 剧名与 showName 归一化后长度都 > 3 且互不包含时判为不一致。
func SeriesPathMismatch(showName, link string) bool {
	show := normalize(showName)
	if len(show) <= 3 {
		return false
	}
	parts := strings.Split(decodeLower(link), "/")
	for i := 0; i < len(parts)-1; i++ {
		p := parts[i]
		if !strings.Contains(p, "series") && !strings.Contains(p, "season") && !strings.HasSuffix(p, "s") {
			continue
		}
		next := normalize(parts[i+1])
		if len(next) > 3 && !strings.Contains(next, show) && !strings.Contains(show, next) {
			return true
		}
	}
	return false
}

// IsExactTitle 判断站点标题是否与查询标题“精确”一致：
// 忽略大小写相等，或查询标题后跟一个括号年份（19xx/20xx）。
func IsExactTitle(found, query string) bool {
	found = strings.TrimSpace(found)
	query = strings.TrimSpace(query)
	if found == "" || query == "" {
		return false
	}
	if strings.EqualFold(found, query) {
		return true
	}
	re, err := regexp.Compile(`(?i)^` + regexp.QuoteMeta(query) + `\s+\((19|20)\d{2}\)$`)
	if err != nil {
		return false
	}
	return re.MatchString(found)
}

var parenRE = regexp.MustCompile(`\s*\([^)]*\)\s*`)

// SimplifyTitle 去掉标题中所有括号片段，例如 "Dune (2021)" -> "Dune"。
func SimplifyTitle(title string) string {
	return strings.Join(strings.Fields(parenRE.ReplaceAllString(title, " ")), " ")
}
