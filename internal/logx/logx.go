// Package logx 负责初始化进程级 slog logger。
package logx

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 描述日志输出；零值等价于 info 级别的 text 输出到 stderr。
type Options struct {
	Level  string // debug|info|warn|error
	Format string // text|json
	File   string // 非空时写入滚动文件，而不是 stderr
}

// New 按 Options 构造 logger；返回的 io.Closer 需在进程退出前关闭（stderr 时为 no-op）。
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)

	if p := strings.TrimSpace(opts.File); p != "" {
		p, err := expandHome(p)
		if err != nil {
			return nil, nil, err
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, nil, fmt.Errorf("创建日志目录失败：%w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   p,
			MaxSize:    20, // MB
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
		w, closer = lj, lj
	}

	return slog.New(NewHandler(w, opts)), closer, nil
}

// NewHandler 构造写入 w 的 handler（测试可直接传 bytes.Buffer）。
func NewHandler(w io.Writer, opts Options) slog.Handler {
	ho := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		return slog.NewJSONHandler(w, ho)
	}
	return slog.NewTextHandler(w, ho)
}

// ParseLevel 把字符串级别转换为 slog.Level；未知值退化为 info。
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard 返回丢弃所有输出的 logger。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDefault 在 l 为 nil 时返回 slog.Default()。
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("读取 home 目录失败：%w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
