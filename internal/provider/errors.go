package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotFound 表示上游明确没有该条目（例如元数据服务返回 404 或空记录）。
var ErrNotFound = errors.New("not found")

// Error 是 provider 阶段的可追溯错误。
// 上层据此把失败归类为 fetch / parse，并写入日志与指标。
type Error struct {
	Provider string // provider name（小写）
	Stage    string // "fetch" 或 "parse"
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider=%s stage=%s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Stage 返回 err 链上第一个 *Error 的阶段；不是 provider 错误时返回空串。
func Stage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// HTTPStatusError 表示上游返回了不可接受的状态码。
// 404 与 ErrNotFound 等价（errors.Is 成立）。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string // 3xx 时的跳转目标
}

func (e *HTTPStatusError) Error() string {
	msg := fmt.Sprintf("状态码 %d", e.StatusCode)
	if e.URL != "" {
		msg += " url=" + e.URL
	}
	if loc := strings.TrimSpace(e.Location); loc != "" {
		msg += " location=" + loc
	}
	return msg
}

func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// BlockedError 表示请求被引导回登录页，即当前会话被站点拒绝。
// 约束：provider 不自行重新登录，由上层决定是否强制刷新会话。
type BlockedError struct {
	URL    string
	Reason string
}

func (e *BlockedError) Error() string {
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		reason = "未知原因"
	}
	return fmt.Sprintf("会话被拒绝（%s） url=%s", reason, e.URL)
}
