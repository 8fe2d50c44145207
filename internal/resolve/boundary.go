package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/John-Robertt/flixresolver/internal/domain"
	"github.com/John-Robertt/flixresolver/internal/provider/dflix"
)

// 以下是对协议适配层暴露的边界操作：从不返回错误，失败一律表现为空值。

// siteHit 是一次站点搜索命中：对外结果 + 原始定位符。
type siteHit struct {
	Result  domain.SearchResult
	Locator string
}

// Search 在站点上按关键字搜索；typ 为 movie、series 或 all。
// 剧集结果的 dflix: ID 会同时写入 Search 表。
func (s *Service) Search(ctx context.Context, query string, typ domain.ContentType) []domain.SearchResult {
	hits := s.searchSite(ctx, query, typ)
	out := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Result)
	}
	return out
}

func (s *Service) searchSite(ctx context.Context, query string, typ domain.ContentType) []siteHit {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	cred, err := s.sessions.EnsureSession(ctx)
	if err != nil {
		s.log.Warn("search without session", "query", query, "err", err)
		return nil
	}

	var out []siteHit
	if typ == domain.TypeMovie || typ == domain.TypeAll {
		page, err := s.get(ctx, cred, s.site.FindMovieURL(query))
		if err != nil {
			s.log.Warn("movie search failed", "query", query, "err", err)
		} else if cards, err := dflix.ParseMovieCards(page.Body); err == nil {
			for _, c := range cards {
				id, ok := dflix.MovieID(c.Href)
				if !ok {
					continue
				}
				loc := fmt.Sprintf("/m/view/%d", id)
				out = append(out, siteHit{
					Locator: loc,
					Result: domain.SearchResult{
						ID:     LocatorID(loc),
						Name:   joinNonEmpty(c.Title, c.Quality, c.Feedback),
						Poster: s.site.Abs(c.Poster),
						Type:   domain.TypeMovie,
					},
				})
			}
		}
	}

	if typ == domain.TypeSeries || typ == domain.TypeAll {
		hits, err := s.searchSeries(ctx, query)
		if err != nil {
			s.log.Warn("series search failed", "query", query, "err", err)
		}
		for _, h := range hits {
			if h.Title == "" {
				continue
			}
			id := LocatorID(h.Href)
			s.cache.Search.Put(id, h.Href)
			out = append(out, siteHit{
				Locator: h.Href,
				Result: domain.SearchResult{
					ID:     id,
					Name:   h.Title,
					Poster: s.site.Abs(h.Poster),
					Type:   domain.TypeSeries,
				},
			})
		}
	}
	return out
}

// GetMetadata 返回条目的站点元数据；找不到时返回 nil。
//
// 外部 ID 先向元数据源取名称，再在站点上搜索并缓存映射；dflix: ID 直接使用其定位符。
// 剧集会为每一季列出占位分集（某季页面失败时只给一个占位）。
func (s *Service) GetMetadata(ctx context.Context, catalogID string, typ domain.ContentType) *domain.MetadataRecord {
	if typ != domain.TypeMovie {
		typ = domain.TypeSeries
	}
	loc, ok := s.locate(ctx, catalogID, typ)
	if !ok {
		return nil
	}
	cred, err := s.sessions.EnsureSession(ctx)
	if err != nil {
		s.log.Warn("metadata without session", "id", catalogID, "err", err)
		return nil
	}
	page, err := s.get(ctx, cred, s.site.Abs(loc))
	if err != nil {
		s.log.Warn("detail page fetch failed", "id", catalogID, "locator", loc, "err", err)
		return nil
	}

	if typ == domain.TypeMovie {
		d, err := dflix.ParseMovieDetail(page.Body)
		if err != nil {
			return nil
		}
		return &domain.MetadataRecord{
			ID:          catalogID,
			Type:        domain.TypeMovie,
			Name:        d.Title,
			Poster:      s.site.Abs(d.Poster),
			Description: d.Plot,
			Genres:      d.Genres,
		}
	}

	sp, err := dflix.ParseSeriesPage(page.Body)
	if err != nil {
		return nil
	}
	rec := seriesRecord(catalogID, sp, s.site.Abs(sp.Poster))
	for i, href := range sp.Seasons {
		season := i + 1
		eps, err := s.listSeason(ctx, cred, catalogID, season, href)
		if err != nil || len(eps) == 0 {
			s.log.Warn("season listing failed, using placeholder", "id", catalogID, "season", season, "err", err)
			rec.Videos = append(rec.Videos, s.video(catalogID, season, 1, fmt.Sprintf("Season %d, Episode 1", season)))
			continue
		}
		for j, e := range eps {
			name := e.Name
			if name == "" {
				name = fmt.Sprintf("Episode %d", j+1)
			}
			rec.Videos = append(rec.Videos, s.video(catalogID, season, j+1, name))
		}
	}
	return &rec
}

// locate 为 GetMetadata 找到站点定位符，并把映射写入 Search 表。
func (s *Service) locate(ctx context.Context, catalogID string, typ domain.ContentType) (string, bool) {
	if loc, ok := DecodeLocatorID(catalogID); ok {
		return loc, loc != ""
	}
	name := s.nameFor(ctx, typ, catalogID)
	if name == "" {
		s.log.Info("no name for catalog id", "id", catalogID, "type", typ)
		return "", false
	}
	hits := s.searchSite(ctx, name, typ)
	if len(hits) == 0 {
		s.log.Info("site search found nothing", "id", catalogID, "name", name)
		return "", false
	}
	loc := hits[0].Locator
	s.cache.Search.Put(catalogID, loc)
	return loc, true
}

// GetStreams 返回可播放变体；电影走变体发现，其余走剧集解析。
func (s *Service) GetStreams(ctx context.Context, catalogID string, typ domain.ContentType) []domain.StreamVariant {
	if typ == domain.TypeMovie {
		vs, err := s.DiscoverMovieVariants(ctx, catalogID)
		if err != nil {
			s.log.Warn("movie discovery failed", "id", catalogID, "err", err)
			return nil
		}
		return vs
	}
	return s.ResolveEpisodeStream(ctx, catalogID)
}

// LoadSeries 强制解析一部剧：定位、抓取所有季并缓存分集链接。
// 一集都没列出来时，为 id:1:1 写入 Pending 占位，留待按需解析。
func (s *Service) LoadSeries(ctx context.Context, catalogID string) *domain.MetadataRecord {
	name := s.nameFor(ctx, domain.TypeSeries, catalogID)
	loc, ok := s.Resolve(ctx, catalogID, name)
	if !ok {
		s.log.Info("series not found", "id", catalogID)
		return nil
	}
	cred, err := s.sessions.EnsureSession(ctx)
	if err != nil {
		s.log.Warn("load without session", "id", catalogID, "err", err)
		return nil
	}
	page, err := s.get(ctx, cred, s.site.Abs(loc))
	if err != nil {
		s.log.Warn("series page fetch failed", "id", catalogID, "err", err)
		return nil
	}
	sp, err := dflix.ParseSeriesPage(page.Body)
	if err != nil {
		return nil
	}

	rec := seriesRecord(catalogID, sp, s.site.Abs(sp.Poster))
	for i, href := range sp.Seasons {
		season := i + 1
		eps, err := s.listSeason(ctx, cred, catalogID, season, href)
		if err != nil {
			s.log.Warn("season extraction failed", "id", catalogID, "season", season, "err", err)
			continue
		}
		for j, e := range eps {
			if e.Link == "" {
				continue
			}
			rec.Videos = append(rec.Videos, s.video(catalogID, season, j+1, e.Name))
		}
	}
	if len(rec.Videos) == 0 {
		key := domain.EpisodeID{SeriesID: catalogID, Season: 1, Episode: 1}.Key()
		s.cache.Stream.Put(key, domain.Pending())
		s.log.Info("no episodes listed, cached placeholder", "key", key)
	}
	return &rec
}

func seriesRecord(id string, sp dflix.SeriesPage, poster string) domain.MetadataRecord {
	name := sp.Title
	if name == "" {
		name = "Unknown Title"
	}
	return domain.MetadataRecord{
		ID:          id,
		Type:        domain.TypeSeries,
		Name:        name,
		Poster:      poster,
		Description: sp.Plot,
		Genres:      sp.Genres,
	}
}

func (s *Service) video(seriesID string, season, episode int, title string) domain.Video {
	return domain.Video{
		ID:       domain.EpisodeID{SeriesID: seriesID, Season: season, Episode: episode}.Key(),
		Title:    title,
		Season:   season,
		Episode:  episode,
		Released: s.now().UTC(),
	}
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
