package resolve

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/John-Robertt/flixresolver/internal/domain"
	"github.com/John-Robertt/flixresolver/internal/provider/dflix"
	"github.com/John-Robertt/flixresolver/internal/session"
)

const seriesSourceName = "DFlix Series"

var errNoStreamLink = errors.New("页面中没有可用的直链")

// ResolveEpisodeStream 把剧集复合 ID（seriesId:season:episode）解析为可播放变体。
//
// 任一步失败都返回空列表；同一 ID 的并发调用只执行一次解析。
// 不含 ':' 的 ID（以及无法解析为复合 ID 的 dflix: ID）按“直链定位符”处理。
func (s *Service) ResolveEpisodeStream(ctx context.Context, compositeID string) []domain.StreamVariant {
	compositeID = strings.TrimSpace(compositeID)
	if compositeID == "" {
		return nil
	}
	v, _, _ := s.inflight.Do("episode:"+compositeID, func() (any, error) {
		return s.resolveEpisode(context.WithoutCancel(ctx), compositeID), nil
	})
	vs, _ := v.([]domain.StreamVariant)
	return slices.Clone(vs)
}

func (s *Service) resolveEpisode(ctx context.Context, compositeID string) []domain.StreamVariant {
	id, ok := domain.ParseEpisodeID(compositeID)
	if !ok {
		if !strings.Contains(compositeID, ":") || strings.HasPrefix(compositeID, LocatorPrefix) {
			return s.resolveDirect(ctx, compositeID)
		}
		s.log.Warn("invalid episode id", "id", compositeID)
		s.metrics.Resolution("episode", "invalid")
		return nil
	}
	key := id.Key()
	log := s.log.With("id", key)

	link := ""
	if st, ok := s.cache.Stream.Get(key); ok {
		if u, ok := st.URL(); ok {
			if s.seriesLinkMismatch(ctx, id.SeriesID, u) {
				log.Warn("cached episode link belongs to another series, evicting", "link", u)
				s.cache.Stream.Evict(key, "mismatch")
			} else {
				link = u
			}
		}
	}

	if link == "" {
		l, err := s.lookupEpisode(ctx, id)
		if err != nil {
			log.Warn("episode lookup failed", "err", err)
			s.metrics.Resolution("episode", outcome(err))
			return nil
		}
		link = l
	}

	u, err := s.extractEpisode(ctx, link)
	if err == nil {
		s.metrics.Resolution("episode", "ok")
		return []domain.StreamVariant{episodeVariant(id, u, "Stream")}
	}
	log.Warn("episode stream extraction failed", "link", link, "err", err)

	// 站外绝对链接（媒体服务器）即使无法识别扩展名，也作为直连兜底返回。
	if isAbsHTTP(link) && !s.onSite(link) {
		s.metrics.Resolution("episode", "fallback")
		return []domain.StreamVariant{episodeVariant(id, EncodePath(link), "Direct")}
	}
	s.metrics.Resolution("episode", outcome(err))
	return nil
}

// resolveDirect 处理“定位符即剧集链接”的 ID。
func (s *Service) resolveDirect(ctx context.Context, id string) []domain.StreamVariant {
	loc, ok := s.Resolve(ctx, id, "")
	if !ok {
		s.metrics.Resolution("direct", "not_found")
		return nil
	}
	u, err := s.extractEpisode(ctx, EncodePath(s.site.Abs(loc)))
	if err != nil {
		s.log.Warn("direct stream extraction failed", "id", id, "err", err)
		s.metrics.Resolution("direct", outcome(err))
		return nil
	}
	s.metrics.Resolution("direct", "ok")
	return []domain.StreamVariant{{
		URL:     u,
		Quality: qualityOrUnknown(domain.QualityFromText(u)),
		Title:   "DFlix Direct",
		Name:    seriesSourceName,
	}}
}

// seriesLinkMismatch 只对外部 ID 生效：取不到剧名时不做判断。
func (s *Service) seriesLinkMismatch(ctx context.Context, seriesID, link string) bool {
	if !isExternalID(seriesID) {
		return false
	}
	name := s.nameFor(ctx, domain.TypeSeries, seriesID)
	if name == "" {
		return false
	}
	return SeriesPathMismatch(name, link)
}

// lookupEpisode 定位单集链接：剧集详情页 -> 第 season 季 -> 第 episode 集。
// 季页面中所有集的链接都会写入 Stream 表。
func (s *Service) lookupEpisode(ctx context.Context, id domain.EpisodeID) (string, error) {
	name := s.nameFor(ctx, domain.TypeSeries, id.SeriesID)
	loc, ok := s.Resolve(ctx, id.SeriesID, name)
	if !ok {
		return "", fmt.Errorf("%w: 剧集 %s 没有站点定位符", ErrNotFound, id.SeriesID)
	}

	cred, err := s.sessions.EnsureSession(ctx)
	if err != nil {
		return "", err
	}
	page, err := s.get(ctx, cred, s.site.Abs(loc))
	if err != nil {
		return "", err
	}
	series, err := dflix.ParseSeriesPage(page.Body)
	if err != nil {
		return "", err
	}
	if id.Season > len(series.Seasons) {
		return "", fmt.Errorf("%w: 第 %d 季不存在（共 %d 季）", ErrNotFound, id.Season, len(series.Seasons))
	}
	seasonHref := series.Seasons[id.Season-1]
	if seasonHref == "" {
		return "", fmt.Errorf("%w: 第 %d 季缺少链接", ErrNotFound, id.Season)
	}

	eps, err := s.listSeason(ctx, cred, id.SeriesID, id.Season, seasonHref)
	if err != nil {
		return "", err
	}
	if id.Episode > len(eps) {
		return "", fmt.Errorf("%w: 第 %d 季没有第 %d 集（共 %d 集）", ErrNotFound, id.Season, id.Episode, len(eps))
	}
	link := eps[id.Episode-1].Link
	if link == "" {
		return "", fmt.Errorf("%w: S%dE%d 缺少链接", ErrNotFound, id.Season, id.Episode)
	}
	return EncodePath(s.site.Abs(link)), nil
}

// listSeason 抓取季页面，并把每个带链接的集写入 Stream 表。
func (s *Service) listSeason(ctx context.Context, cred domain.Credential, seriesID string, season int, href string) ([]dflix.SeasonEpisode, error) {
	page, err := s.get(ctx, cred, s.site.Abs(href))
	if err != nil {
		return nil, err
	}
	eps, err := dflix.ParseSeasonPage(page.Body)
	if err != nil {
		return nil, err
	}
	for i, e := range eps {
		if e.Link == "" {
			continue
		}
		key := domain.EpisodeID{SeriesID: seriesID, Season: season, Episode: i + 1}.Key()
		s.cache.Stream.Put(key, domain.Resolved(EncodePath(s.site.Abs(e.Link))))
	}
	return eps, nil
}

// extractEpisode 从剧集链接得到最终流地址：视频扩展名直接使用，否则抓取页面取直链锚点。
func (s *Service) extractEpisode(ctx context.Context, link string) (string, error) {
	if IsVideoURL(link) {
		return EncodePath(link), nil
	}
	cred, err := s.sessions.EnsureSession(ctx)
	if err != nil {
		return "", err
	}
	page, err := s.get(ctx, cred, link)
	if err != nil {
		return "", err
	}
	href, err := dflix.ParseEpisodeLink(page.Body)
	if err != nil {
		return "", err
	}
	if href == "" {
		return "", errNoStreamLink
	}
	return EncodePath(s.site.Abs(href)), nil
}

func (s *Service) onSite(u string) bool {
	return strings.HasPrefix(u, s.site.Abs("/"))
}

func episodeVariant(id domain.EpisodeID, u, kind string) domain.StreamVariant {
	return domain.StreamVariant{
		URL:        u,
		Quality:    qualityOrUnknown(domain.QualityFromText(u)),
		Title:      fmt.Sprintf("[S%dE%d] DFlix %s", id.Season, id.Episode, kind),
		Name:       seriesSourceName,
		BingeGroup: fmt.Sprintf("dflix-%s-season-%d", id.SeriesID, id.Season),
	}
}

func qualityOrUnknown(q string) string {
	if q == "" {
		return domain.QualityUnknown
	}
	return q
}

// outcome 把错误归类为指标标签。
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, session.ErrNoSession):
		return "no_session"
	case errors.Is(err, ErrNoVerifiedVariants), errors.Is(err, errNoStreamLink):
		return "no_stream"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "failed"
	}
}
