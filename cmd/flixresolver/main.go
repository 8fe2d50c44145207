package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/John-Robertt/flixresolver/internal/app"
	"github.com/John-Robertt/flixresolver/internal/config"
	"github.com/John-Robertt/flixresolver/internal/domain"
	"github.com/John-Robertt/flixresolver/internal/logx"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage(os.Stdout)
		return
	}

	var code int
	switch args[0] {
	case "serve":
		code = serveCmd(args[1:])
	case "search", "meta", "stream", "load":
		code = queryCmd(args[0], args[1:])
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage(os.Stderr)
		code = 2
	}
	if code != 0 {
		os.Exit(code)
	}
}

type cliArgs struct {
	ConfigPath  string
	Listen      string
	ListenSet   bool
	LogLevel    string
	LogLevelSet bool
	Type        string
	Positional  []string
}

// parseArgs 解析公共参数；allowListen 只在 serve 下为 true。
func parseArgs(args []string, allowListen bool) (cliArgs, error) {
	ca := cliArgs{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		name, val, hasVal := strings.Cut(a, "=")
		if !strings.HasPrefix(a, "--") {
			if strings.HasPrefix(a, "-") && a != "-" {
				return cliArgs{}, fmt.Errorf("未知参数 %q", a)
			}
			ca.Positional = append(ca.Positional, a)
			continue
		}

		switch name {
		case "--config", "--listen", "--log-level", "--type":
		default:
			return cliArgs{}, fmt.Errorf("未知参数 %q", a)
		}
		if name == "--listen" && !allowListen {
			return cliArgs{}, fmt.Errorf("--listen 只能用于 serve")
		}
		if !hasVal {
			if i+1 >= len(args) {
				return cliArgs{}, fmt.Errorf("%s 需要一个值", name)
			}
			i++
			val = args[i]
		}

		switch name {
		case "--config":
			ca.ConfigPath = val
		case "--listen":
			if strings.TrimSpace(val) == "" {
				return cliArgs{}, fmt.Errorf("--listen 不能为空")
			}
			ca.Listen = val
			ca.ListenSet = true
		case "--log-level":
			ca.LogLevel = val
			ca.LogLevelSet = true
		case "--type":
			switch val {
			case "movie", "series", "all":
			default:
				return cliArgs{}, fmt.Errorf("--type 只能是 movie、series 或 all，实际是 %q", val)
			}
			ca.Type = val
		}
	}
	return ca, nil
}

func hasHelp(args []string) bool {
	for _, a := range args {
		if isHelp(a) {
			return true
		}
	}
	return false
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func serveCmd(args []string) int {
	if hasHelp(args) {
		printUsage(os.Stdout)
		return 0
	}
	ca, err := parseArgs(args, true)
	if err == nil && len(ca.Positional) > 0 {
		err = fmt.Errorf("serve 不接受位置参数：%q", ca.Positional[0])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printUsage(os.Stderr)
		return 2
	}

	a, closeLog, code := setup(ca)
	if code != 0 {
		return code
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.ListenAndServe(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "服务退出：%v\n", err)
		return 1
	}
	return 0
}

func queryCmd(cmd string, args []string) int {
	if hasHelp(args) {
		printUsage(os.Stdout)
		return 0
	}
	ca, err := parseArgs(args, false)
	if err == nil && len(ca.Positional) != 1 {
		err = fmt.Errorf("%s 需要且只需要一个参数", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printUsage(os.Stderr)
		return 2
	}

	a, closeLog, code := setup(ca)
	if code != 0 {
		return code
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	arg := ca.Positional[0]
	typ := domain.ParseContentType(ca.Type)
	svc := a.Service

	var out any
	switch cmd {
	case "search":
		metas := svc.Search(ctx, arg, typ)
		if metas == nil {
			metas = []domain.SearchResult{}
		}
		out = map[string]any{"metas": metas}
	case "meta":
		out = map[string]any{"meta": svc.GetMetadata(ctx, arg, typ)}
	case "stream":
		streams := svc.GetStreams(ctx, arg, typ)
		if streams == nil {
			streams = []domain.StreamVariant{}
		}
		out = map[string]any{"streams": streams}
	case "load":
		rec := svc.LoadSeries(ctx, arg)
		if rec == nil {
			fmt.Fprintf(os.Stderr, "未找到剧集：%s\n", arg)
			return 1
		}
		out = rec
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "输出失败：%v\n", err)
		return 1
	}
	return 0
}

// setup 读取配置、初始化日志并装配 App；失败时返回非零退出码。
func setup(ca cliArgs) (*app.App, func(), int) {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return nil, nil, 1
	}
	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		ConfigPath:  ca.ConfigPath,
		Listen:      ca.Listen,
		ListenSet:   ca.ListenSet,
		LogLevel:    ca.LogLevel,
		LogLevelSet: ca.LogLevelSet,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置错误（%s）：%v\n", config.Code(err), err)
		return nil, nil, 1
	}

	logger, closer, err := logx.New(logx.Options{Level: eff.LogLevel, Format: eff.LogFormat, File: eff.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败：%v\n", err)
		return nil, nil, 1
	}
	if eff.ConfigFile != "" {
		logger.Info("config loaded", "file", eff.ConfigFile)
	}

	a, err := app.Build(eff, logger)
	if err != nil {
		_ = closer.Close()
		fmt.Fprintf(os.Stderr, "初始化失败：%v\n", err)
		return nil, nil, 1
	}
	return a, func() { _ = closer.Close() }, 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  flixresolver serve [--config 文件] [--listen 地址] [--log-level 级别]
  flixresolver search <关键词> [--type movie|series|all]
  flixresolver meta <目录ID> [--type movie|series]
  flixresolver stream <ID> [--type movie|series]
  flixresolver load <剧集目录ID>

命令：
  serve   启动运维 HTTP 接口与缓存维护（默认监听 `+config.DefaultListen+`）
  search  搜索站点，输出 {"metas":[...]}
  meta    输出单个条目的元数据
  stream  解析并输出流变体（剧集 ID 形如 tt0000000:1:2）
  load    预加载整部剧集的分集链接

参数：
  --config     配置文件路径（未指定则在当前目录查找 flixresolver.{json,yaml,yml}）
  --listen     运维接口监听地址（仅 serve）
  --log-level  debug|info|warn|error
  --type       内容类型；未指定时 search 为 all，其余为 series
  -h, --help   显示帮助
`)
}
