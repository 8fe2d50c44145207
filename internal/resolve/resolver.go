package resolve

import (
	"context"

	"github.com/John-Robertt/flixresolver/internal/provider/dflix"
)

// Resolve 把目录 ID 映射为站点定位符（剧集详情页链接）。
//
// 顺序：dflix: 自描述 ID 直接解码；否则查 Search 表（有 expectedName 的 tt ID 先做名称校验，
// 不一致则驱逐并继续）；再否则用 expectedName 做一次站内剧集搜索，首条结果写入 Search 表。
// 找不到时 ok=false，不视为错误。
func (s *Service) Resolve(ctx context.Context, catalogID, expectedName string) (string, bool) {
	if loc, ok := DecodeLocatorID(catalogID); ok {
		return loc, loc != ""
	}

	if loc, ok := s.cache.Search.Get(catalogID); ok && loc != "" {
		if expectedName == "" || !isExternalID(catalogID) {
			return loc, true
		}
		if LooksLikeSameTitle(expectedName, loc) {
			return loc, true
		}
		s.log.Warn("cached locator does not match title, evicting", "id", catalogID, "locator", loc, "name", expectedName)
		s.cache.Search.Evict(catalogID, "mismatch")
	}

	if expectedName == "" {
		return "", false
	}
	hits, err := s.searchSeries(ctx, expectedName)
	if err != nil {
		s.log.Warn("series search failed", "id", catalogID, "name", expectedName, "err", err)
		return "", false
	}
	if len(hits) == 0 {
		s.log.Info("series search returned nothing", "id", catalogID, "name", expectedName)
		return "", false
	}
	s.cache.Search.Put(catalogID, hits[0].Href)
	return hits[0].Href, true
}

func (s *Service) searchSeries(ctx context.Context, term string) ([]dflix.SearchHit, error) {
	cred, err := s.sessions.EnsureSession(ctx)
	if err != nil {
		return nil, err
	}
	page, err := s.post(ctx, cred, s.site.SearchURL(), dflix.SearchForm(term, "s"))
	if err != nil {
		return nil, err
	}
	return dflix.ParseSearchResults(page.Body)
}
