package domain

import "time"

// Credential 是一次登录得到的会话凭据（Cookie 头的值 + 签发时间）。
//
// 刷新是“全有或全无”：新凭据整体替换旧凭据，不做字段级合并。
type Credential struct {
	Cookie   string
	IssuedAt time.Time
}

// IsZero 表示尚未登录成功过。
func (c Credential) IsZero() bool { return c.Cookie == "" && c.IssuedAt.IsZero() }
