// Package dflix 实现内容站点的页面抓取（Site）与 HTML 解析（纯函数）。
package dflix

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/flixresolver/internal/domain"
	providerx "github.com/John-Robertt/flixresolver/internal/provider"
)

const Name = "dflix"

// Client 是内容站点的 provider.Site 实现。
//
// 约束：
// - 不做缓存/退避（由上层统一控制；限速与有界重试在 httpx.Transport）
// - 会话 Cookie 由调用方显式传入，client 本身不持有 cookie jar
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

var _ providerx.Site = (*Client)(nil)

func New(baseURL string, c *http.Client) *Client {
	return &Client{BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), HTTP: c}
}

// Abs 把站点内相对链接还原为绝对链接；已是 http(s) 的原样返回。
func (c *Client) Abs(href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return c.BaseURL + href
	default:
		return c.BaseURL + "/" + href
	}
}

func (c *Client) SearchURL() string { return c.BaseURL + "/search" }

// FindMovieURL 是按标题直接查找电影卡片的页面。
func (c *Client) FindMovieURL(title string) string {
	return c.BaseURL + "/m/find/" + url.PathEscape(title)
}

func (c *Client) MovieViewURL(id int) string {
	return c.BaseURL + "/m/view/" + strconv.Itoa(id)
}

// SearchForm 构造站内搜索表单；types 为 "s"（剧集）或 "m"（电影）。
func SearchForm(term, types string) url.Values {
	return url.Values{"term": {term}, "types": {types}}
}

func (c *Client) Get(ctx context.Context, cred domain.Credential, rawURL string) (providerx.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return providerx.Page{}, fetchErr(err)
	}
	return c.do(req, cred)
}

func (c *Client) PostForm(ctx context.Context, cred domain.Credential, rawURL string, form url.Values) (providerx.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return providerx.Page{}, fetchErr(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, cred)
}

func (c *Client) do(req *http.Request, cred domain.Credential) (providerx.Page, error) {
	if c.HTTP == nil {
		return providerx.Page{}, fetchErr(errors.New("http client 不能为空"))
	}
	if cred.Cookie != "" {
		req.Header.Set("Cookie", cred.Cookie)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return providerx.Page{}, fetchErr(err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return providerx.Page{}, fetchErr(err)
	}

	final := req.URL.String()
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
		// 会话失效时站点会把任意页面跳回登录页。
		if strings.HasPrefix(resp.Request.URL.Path, "/login") && !strings.HasPrefix(req.URL.Path, "/login") {
			return providerx.Page{}, fetchErr(&providerx.BlockedError{URL: final, Reason: "login-required"})
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return providerx.Page{}, fetchErr(&providerx.HTTPStatusError{
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Location:   resp.Header.Get("Location"),
		})
	}
	return providerx.Page{URL: final, Body: b}, nil
}

func fetchErr(err error) error {
	return &providerx.Error{Provider: Name, Stage: "fetch", Err: err}
}
