package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/John-Robertt/flixresolver/internal/domain"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// EnvPrefix 是环境变量前缀，例如 FLIXRESOLVER_SITE_BASE_URL。
	EnvPrefix = "FLIXRESOLVER"
	// FileBaseName 是 cwd 下自动发现的配置文件名（扩展名 json/yaml/yml 均可）。
	FileBaseName = "flixresolver"

	DefaultSiteBaseURL     = "https://dflix.discoveryftp.net"
	DefaultSiteLoginPath   = "/login/demo"
	DefaultMetadataBaseURL = "https://v3-cinemeta.strem.io"
	DefaultListen          = ":7070"
)

// CLIArgs 只包含 CLI 暴露的覆盖项，并保留“是否显式指定”的信息。
type CLIArgs struct {
	ConfigPath string

	Listen    string
	ListenSet bool

	LogLevel    string
	LogLevelSet bool
}

// FileConfig 对应配置文件（与环境变量）的解析结构。
type FileConfig struct {
	Site     SiteConfig     `mapstructure:"site"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Session  SessionConfig  `mapstructure:"session"`
	Cache    CacheConfig    `mapstructure:"cache"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Movie    MovieConfig    `mapstructure:"movie"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Log      LogConfig      `mapstructure:"log"`
}

type SiteConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	LoginPath string `mapstructure:"login_path"`
}

type MetadataConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type ProxyConfig struct {
	URL string `mapstructure:"url"`
}

type SessionConfig struct {
	Lifetime time.Duration `mapstructure:"lifetime"`
}

type CacheConfig struct {
	MaxAge        time.Duration `mapstructure:"max_age"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
}

type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
	RetryMax  int           `mapstructure:"retry_max"`
}

type MovieConfig struct {
	AdjacentWindow int               `mapstructure:"adjacent_window"`
	Parallelism    int               `mapstructure:"parallelism"`
	Exceptions     []ExceptionConfig `mapstructure:"exceptions"`
}

type ExceptionConfig struct {
	Title     string          `mapstructure:"title"`
	RequireID int             `mapstructure:"require_id"`
	AddID     int             `mapstructure:"add_id"`
	Quality   string          `mapstructure:"quality"`
	Variants  []VariantConfig `mapstructure:"variants"`
}

type VariantConfig struct {
	URL     string `mapstructure:"url"`
	Quality string `mapstructure:"quality"`
}

type AdminConfig struct {
	Listen string `mapstructure:"listen"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	ConfigFile string // 实际读取的文件；未读取任何文件时为空

	SiteBaseURL     string
	SiteLoginURL    string
	MetadataBaseURL string
	ProxyURL        string

	SessionLifetime time.Duration

	CacheMaxAge        time.Duration
	CacheSweepInterval time.Duration
	CacheInitialDelay  time.Duration

	FetchTimeout time.Duration
	RateLimit    float64 // 每秒请求数；0 表示不限速
	RateBurst    int
	RetryMax     int

	AdjacentWindow   int
	MovieParallelism int
	Exceptions       []domain.ExceptionRule

	AdminListen string

	LogLevel  string
	LogFormat string
	LogFile   string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在
// 2) 否则尝试 <cwd>/flixresolver.{json,yaml,yml}（可选，不存在则全部走默认值）
//
// 覆盖优先级（固定）：CLI > 环境变量 FLIXRESOLVER_* > 配置文件 > 内置默认值
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	v := newViper()

	cfgPath := strings.TrimSpace(cli.ConfigPath)
	if cfgPath != "" {
		if !filepath.IsAbs(cfgPath) {
			cfgPath = filepath.Join(cwd, cfgPath)
		}
		if _, err := os.Stat(cfgPath); err != nil {
			if os.IsNotExist(err) {
				return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
			}
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	} else {
		cfgPath = discover(cwd)
	}

	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	return merge(cli, fc, cfgPath)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("site.base_url", DefaultSiteBaseURL)
	v.SetDefault("site.login_path", DefaultSiteLoginPath)
	v.SetDefault("metadata.base_url", DefaultMetadataBaseURL)
	v.SetDefault("proxy.url", "")
	v.SetDefault("session.lifetime", "5m")
	v.SetDefault("cache.max_age", "24h")
	v.SetDefault("cache.sweep_interval", "6h")
	v.SetDefault("cache.initial_delay", "30m")
	v.SetDefault("http.timeout", "20s")
	v.SetDefault("http.rate_limit", 5.0)
	v.SetDefault("http.burst", 5)
	v.SetDefault("http.retry_max", 0)
	v.SetDefault("movie.adjacent_window", 2)
	v.SetDefault("movie.parallelism", 4)
	v.SetDefault("movie.exceptions", []map[string]any{{
		"title":      "Ad Astra",
		"require_id": 14554,
		"add_id":     14553,
		"quality":    "1080p",
	}})
	v.SetDefault("admin.listen", DefaultListen)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	return v
}

func discover(cwd string) string {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		p := filepath.Join(cwd, FileBaseName+ext)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}

func merge(cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	siteBase, err := cleanBaseURL(fc.Site.BaseURL)
	if err != nil {
		return EffectiveConfig{}, invalid("site.base_url 无效：%v", err)
	}
	metaBase, err := cleanBaseURL(fc.Metadata.BaseURL)
	if err != nil {
		return EffectiveConfig{}, invalid("metadata.base_url 无效：%v", err)
	}

	loginPath := strings.TrimSpace(fc.Site.LoginPath)
	if loginPath == "" {
		loginPath = DefaultSiteLoginPath
	}
	loginURL := loginPath
	if !strings.HasPrefix(loginPath, "http://") && !strings.HasPrefix(loginPath, "https://") {
		if !strings.HasPrefix(loginPath, "/") {
			loginPath = "/" + loginPath
		}
		loginURL = siteBase + loginPath
	}

	proxyURL := strings.TrimSpace(fc.Proxy.URL)
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, invalid("proxy.url 无效：%v", err)
		}
	}

	for name, d := range map[string]time.Duration{
		"session.lifetime":     fc.Session.Lifetime,
		"cache.max_age":        fc.Cache.MaxAge,
		"cache.sweep_interval": fc.Cache.SweepInterval,
		"http.timeout":         fc.HTTP.Timeout,
	} {
		if d <= 0 {
			return EffectiveConfig{}, invalid("%s 必须为正数，实际是 %s", name, d)
		}
	}
	if fc.Cache.InitialDelay < 0 {
		return EffectiveConfig{}, invalid("cache.initial_delay 不能为负数")
	}

	rateLimit := fc.HTTP.RateLimit
	if rateLimit < 0 {
		rateLimit = 0
	}
	burst := fc.HTTP.Burst
	if burst < 1 {
		burst = 1
	}
	retryMax := fc.HTTP.RetryMax
	if retryMax < 0 {
		retryMax = 0
	}
	if retryMax > 5 {
		retryMax = 5
	}

	// 窗口与并发都截断到合理范围，避免一次探测打出上百个请求。
	window := clamp(fc.Movie.AdjacentWindow, 0, 10)
	parallelism := clamp(fc.Movie.Parallelism, 1, 32)

	rules := make([]domain.ExceptionRule, 0, len(fc.Movie.Exceptions))
	for i, ex := range fc.Movie.Exceptions {
		title := strings.TrimSpace(ex.Title)
		if title == "" {
			return EffectiveConfig{}, invalid("movie.exceptions[%d].title 不能为空", i)
		}
		r := domain.ExceptionRule{
			Title:     title,
			RequireID: ex.RequireID,
			AddID:     ex.AddID,
			Quality:   strings.TrimSpace(ex.Quality),
		}
		for j, vc := range ex.Variants {
			u := strings.TrimSpace(vc.URL)
			if u == "" {
				return EffectiveConfig{}, invalid("movie.exceptions[%d].variants[%d].url 不能为空", i, j)
			}
			r.Variants = append(r.Variants, domain.StreamVariant{URL: u, Quality: strings.ToUpper(strings.TrimSpace(vc.Quality))})
		}
		rules = append(rules, r)
	}

	listen := strings.TrimSpace(fc.Admin.Listen)
	if cli.ListenSet {
		listen = strings.TrimSpace(cli.Listen)
	}
	if listen == "" {
		listen = DefaultListen
	}

	level := strings.ToLower(strings.TrimSpace(fc.Log.Level))
	if cli.LogLevelSet {
		level = strings.ToLower(strings.TrimSpace(cli.LogLevel))
	}
	switch level {
	case "debug", "info", "warn", "error":
	case "":
		level = "info"
	default:
		return EffectiveConfig{}, invalid("log.level 只能是 debug|info|warn|error，实际是 %q", level)
	}

	format := strings.ToLower(strings.TrimSpace(fc.Log.Format))
	switch format {
	case "text", "json":
	case "":
		format = "text"
	default:
		return EffectiveConfig{}, invalid("log.format 只能是 text|json，实际是 %q", format)
	}

	return EffectiveConfig{
		ConfigFile:         cfgPath,
		SiteBaseURL:        siteBase,
		SiteLoginURL:       loginURL,
		MetadataBaseURL:    metaBase,
		ProxyURL:           proxyURL,
		SessionLifetime:    fc.Session.Lifetime,
		CacheMaxAge:        fc.Cache.MaxAge,
		CacheSweepInterval: fc.Cache.SweepInterval,
		CacheInitialDelay:  fc.Cache.InitialDelay,
		FetchTimeout:       fc.HTTP.Timeout,
		RateLimit:          rateLimit,
		RateBurst:          burst,
		RetryMax:           retryMax,
		AdjacentWindow:     window,
		MovieParallelism:   parallelism,
		Exceptions:         rules,
		AdminListen:        listen,
		LogLevel:           level,
		LogFormat:          format,
		LogFile:            strings.TrimSpace(fc.Log.File),
	}, nil
}

func cleanBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("必须是 http/https：%q", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
