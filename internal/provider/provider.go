package provider

import (
	"context"
	"net/url"

	"github.com/John-Robertt/flixresolver/internal/domain"
)

// Page 是一次抓取得到的原始页面。
//
// URL 是最终落地的地址（跟随重定向之后），用于把相对链接还原为绝对链接。
type Page struct {
	URL  string
	Body []byte
}

// Site 把“内容站点”的网络访问限制在 provider 层；解析由各站点包的纯函数完成。
//
// 约束：
// - 不做缓存、不做退避重试（这些由上层统一实现）
// - cred 为零值时不带 Cookie 发起请求
type Site interface {
	Get(ctx context.Context, cred domain.Credential, rawURL string) (Page, error)
	PostForm(ctx context.Context, cred domain.Credential, rawURL string, form url.Values) (Page, error)
}

// MetadataSource 是外部元数据服务（按外部 ID 查询名称等信息）。
type MetadataSource interface {
	Lookup(ctx context.Context, typ domain.ContentType, id string) (domain.MetadataRecord, error)
}
