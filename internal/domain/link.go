package domain

// LinkState 是 StreamCache 的值：要么是已解析的剧集链接，要么是“待解析”占位。
//
// 约束：Pending 永远不能当作 URL 返回（URL() 对 Pending 返回 ok=false）。
type LinkState struct {
	url     string
	pending bool
}

// Resolved 构造一个已解析链接。空串视为 Pending，避免写入“空 URL”。
func Resolved(u string) LinkState {
	if u == "" {
		return Pending()
	}
	return LinkState{url: u}
}

// Pending 构造占位状态。
func Pending() LinkState { return LinkState{pending: true} }

func (l LinkState) IsPending() bool { return l.pending || l.url == "" }

// URL 返回已解析链接；Pending 时 ok=false。
func (l LinkState) URL() (string, bool) {
	if l.IsPending() {
		return "", false
	}
	return l.url, true
}

func (l LinkState) String() string {
	if l.IsPending() {
		return "<pending>"
	}
	return l.url
}

// MarshalText 只用于调试输出（/cache）。
func (l LinkState) MarshalText() ([]byte, error) { return []byte(l.String()), nil }
