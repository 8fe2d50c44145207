// Package cinemeta 通过公开的 Cinemeta 服务按外部 ID（tt…）查询标题等元数据。
package cinemeta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/flixresolver/internal/domain"
	providerx "github.com/John-Robertt/flixresolver/internal/provider"
)

const (
	Name           = "cinemeta"
	DefaultBaseURL = "https://v3-cinemeta.strem.io"
)

// Client 实现 provider.MetadataSource。
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

var _ providerx.MetadataSource = (*Client)(nil)

func New(baseURL string, c *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{BaseURL: baseURL, HTTP: c}
}

type metaResponse struct {
	Meta *struct {
		ID          string   `json:"id"`
		Type        string   `json:"type"`
		Name        string   `json:"name"`
		Poster      string   `json:"poster"`
		Description string   `json:"description"`
		Genres      []string `json:"genres"`
	} `json:"meta"`
}

// Lookup 查询 /meta/<type>/<id>.json；条目不存在或没有名称时返回 provider.ErrNotFound。
func (c *Client) Lookup(ctx context.Context, typ domain.ContentType, id string) (domain.MetadataRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.MetadataRecord{}, errors.New("id 不能为空")
	}
	if c.HTTP == nil {
		return domain.MetadataRecord{}, fetchErr(errors.New("http client 不能为空"))
	}
	if typ != domain.TypeMovie {
		typ = domain.TypeSeries
	}

	u := fmt.Sprintf("%s/meta/%s/%s.json", c.BaseURL, typ, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.MetadataRecord{}, fetchErr(err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return domain.MetadataRecord{}, fetchErr(err)
	}
	defer resp.Body.Close()

	// 404 经 HTTPStatusError.Is 映射为 ErrNotFound。
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.MetadataRecord{}, fetchErr(&providerx.HTTPStatusError{URL: u, StatusCode: resp.StatusCode})
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.MetadataRecord{}, fetchErr(err)
	}
	var mr metaResponse
	if err := json.Unmarshal(b, &mr); err != nil {
		return domain.MetadataRecord{}, &providerx.Error{Provider: Name, Stage: "parse", Err: err}
	}
	if mr.Meta == nil || strings.TrimSpace(mr.Meta.Name) == "" {
		return domain.MetadataRecord{}, &providerx.Error{Provider: Name, Stage: "parse", Err: fmt.Errorf("%s: %w", id, providerx.ErrNotFound)}
	}

	return domain.MetadataRecord{
		ID:          id,
		Type:        typ,
		Name:        strings.TrimSpace(mr.Meta.Name),
		Poster:      mr.Meta.Poster,
		Description: mr.Meta.Description,
		Genres:      mr.Meta.Genres,
	}, nil
}

func fetchErr(err error) error {
	return &providerx.Error{Provider: Name, Stage: "fetch", Err: err}
}
