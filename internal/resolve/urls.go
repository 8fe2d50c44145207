package resolve

import (
	"net/url"
	"path"
	"strings"
)

// LocatorPrefix 标记“自描述”的目录 ID：dflix:<urlencoded 定位符>。
const LocatorPrefix = "dflix:"

var videoExts = []string{".mp4", ".mkv", ".avi", ".mov", ".webm", ".flv"}

// LocatorID 把站点定位符编码为自描述目录 ID。
func LocatorID(locator string) string {
	return LocatorPrefix + url.PathEscape(locator)
}

// DecodeLocatorID 解码自描述目录 ID；不是 dflix: 前缀时 ok=false。
func DecodeLocatorID(id string) (string, bool) {
	if !strings.HasPrefix(id, LocatorPrefix) {
		return "", false
	}
	raw := strings.TrimPrefix(id, LocatorPrefix)
	if d, err := url.PathUnescape(raw); err == nil {
		return d, true
	}
	return raw, true
}

func isExternalID(id string) bool { return strings.HasPrefix(id, "tt") }

func isAbsHTTP(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// IsVideoURL 判断链接路径是否以常见视频扩展名结尾（忽略 query 与大小写）。
func IsVideoURL(u string) bool {
	p := u
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.ToLower(path.Ext(p))
	for _, v := range videoExts {
		if ext == v {
			return true
		}
	}
	return false
}

// EncodePath 对 http(s) URL 的每个路径段单独做百分号编码，scheme 与 host 保持不变。
//
// 每段先解码再编码，因此结果幂等：EncodePath(EncodePath(x)) == EncodePath(x)。
// query 与 fragment 原样保留；非 http(s) 的输入原样返回。
func EncodePath(raw string) string {
	raw = strings.TrimSpace(raw)
	if !isAbsHTTP(raw) {
		return raw
	}
	rest := raw
	tail := ""
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest, tail = rest[:i], rest[i:]
	}

	schemeEnd := strings.Index(rest, "://") + 3
	hostEnd := strings.Index(rest[schemeEnd:], "/")
	if hostEnd < 0 {
		return raw
	}
	hostEnd += schemeEnd
	prefix, p := rest[:hostEnd], rest[hostEnd+1:]

	segs := strings.Split(p, "/")
	for i, seg := range segs {
		if d, err := url.PathUnescape(seg); err == nil {
			seg = d
		}
		segs[i] = url.PathEscape(seg)
	}
	return prefix + "/" + strings.Join(segs, "/") + tail
}
