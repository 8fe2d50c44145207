// Package httpx 固化出站 HTTP 策略：UA 轮换、默认请求头、代理、限速、有界立即重试与响应解压。
package httpx

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const defaultTimeout = 20 * time.Second

// Options 描述出站 HTTP 策略；零值可用（无代理、不限速、不重试、20s 超时）。
type Options struct {
	ProxyURL string
	Timeout  time.Duration

	// RetryMax 表示传输层失败后的立即重试次数（不含首次尝试），不做退避。
	RetryMax int

	// RateLimit 为每秒请求数；<=0 表示不限速。
	RateLimit float64
	Burst     int
}

// Transport 是站点与元数据客户端共用的 RoundTripper。
//
// 约束：
// - 只改动克隆出的请求，调用方的 Header 不被修改
// - 每次尝试前都要取得限速令牌（尊重 request ctx）
// - 只有可重放的请求才重试：无 body，或 body 可经 GetBody 重新取得
type Transport struct {
	Base    *http.Transport
	Limiter *rate.Limiter

	// RetryMax 例如 2 表示最多 3 次尝试。
	RetryMax int

	// DisableKeepAlives 决定是否对 Request 设置 Close=true；
	// 真正禁用连接复用依赖 Base.DisableKeepAlives。
	DisableKeepAlives bool

	// Header 中调用方未设置的键会被补上。
	Header http.Header
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || t.Base == nil {
		return nil, errors.New("httpx: 请求或底层 transport 为空")
	}

	attempts := 1
	if t.RetryMax > 0 && replayable(req) {
		attempts += t.RetryMax
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if t.Limiter != nil {
			if err := t.Limiter.Wait(req.Context()); err != nil {
				return nil, err
			}
		}
		r, err := t.prepare(req, i)
		if err != nil {
			return nil, err
		}
		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return decode(resp)
		}
		lastErr = err
		if req.Context().Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// prepare 克隆请求并补齐 UA、Accept-Encoding 与默认头；重试时重新取得 body。
func (t *Transport) prepare(req *http.Request, attempt int) (*http.Request, error) {
	r := req.Clone(req.Context())
	if attempt > 0 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("httpx: 重放请求体失败：%w", err)
		}
		r.Body = body
	}
	for k, vs := range t.Header {
		if r.Header.Get(k) == "" {
			r.Header[k] = append([]string(nil), vs...)
		}
	}
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", randomAgent())
	}
	if r.Header.Get("Accept-Encoding") == "" {
		// 显式声明后 net/http 不再自动解 gzip，统一由 decode 处理。
		r.Header.Set("Accept-Encoding", "br, gzip")
	}
	if t.DisableKeepAlives {
		r.Close = true
	}
	return r, nil
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

var decoders = map[string]func(io.Reader) (io.Reader, error){
	"br": func(r io.Reader) (io.Reader, error) { return brotli.NewReader(r), nil },
	"gzip": func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	},
}

func decode(resp *http.Response) (*http.Response, error) {
	enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	newReader, ok := decoders[enc]
	if !ok {
		return resp, nil
	}
	rd, err := newReader(resp.Body)
	if err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("httpx: 解压 %s 失败：%w", enc, err)
	}
	resp.Body = readCloser{Reader: rd, Closer: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// NewSiteClient 构造内容站点抓取用的 HTTP client。
//
// 规则：
// - 不带 cookie jar：会话 cookie 由 session 管理器显式注入
// - proxyURL 非空：必须走代理，且禁用 keep-alive（每请求新连接）
// - 默认按浏览器方式声明接受 HTML
func NewSiteClient(opts Options) (*http.Client, error) {
	return newClient(opts, http.Header{
		"Accept":          {"text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": {"en-US,en;q=0.8"},
	})
}

// NewMetaClient 构造外部元数据服务用的 HTTP client（带 publicsuffix cookie jar）。
func NewMetaClient(opts Options) (*http.Client, error) {
	c, err := newClient(opts, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	c.Jar = jar
	return c, nil
}

func newClient(opts Options, header http.Header) (*http.Client, error) {
	tr := &Transport{
		Base: &http.Transport{
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
			MaxIdleConnsPerHost:   8,
		},
		RetryMax: max(opts.RetryMax, 0),
		Header:   header,
	}

	if p := strings.TrimSpace(opts.ProxyURL); p != "" {
		u, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("代理地址无效：%w", err)
		}
		tr.Base.Proxy = http.ProxyURL(u)
		// 代理池按连接轮换出口，必须每请求新连接。
		tr.Base.DisableKeepAlives = true
		tr.DisableKeepAlives = true
	}

	if opts.RateLimit > 0 {
		tr.Limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(opts.Burst, 1))
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Transport: tr, Timeout: timeout}, nil
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:130.0) Gecko/20100101 Firefox/130.0",
	"Mozilla/5.0 (Linux; Android 14) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Mobile Safari/537.36",
}

func randomAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}
