package resolve

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/John-Robertt/flixresolver/internal/domain"
	"github.com/John-Robertt/flixresolver/internal/provider/dflix"
)

const movieSourceName = "Movie"

// movieCandidate 是一个待校验的电影页面。
type movieCandidate struct {
	ID      int
	URL     string
	Title   string
	Quality string
	// body 是探测阶段已抓到的页面，校验时复用，避免重复抓取。
	body []byte
}

// DiscoverMovieVariants 找出同一部电影在站点上的所有画质版本，按画质排序并写入 Movie 表。
//
// 没有任何候选时返回 ErrNotFound；有候选但都未通过校验时返回 ErrNoVerifiedVariants。
func (s *Service) DiscoverMovieVariants(ctx context.Context, catalogID string) ([]domain.StreamVariant, error) {
	catalogID = strings.TrimSpace(catalogID)
	if vs, ok := s.cache.Movie.Get(catalogID); ok && len(vs) > 0 {
		return slices.Clone(vs), nil
	}
	v, err, _ := s.inflight.Do("movie:"+catalogID, func() (any, error) {
		return s.discoverMovie(context.WithoutCancel(ctx), catalogID)
	})
	if err != nil {
		s.metrics.Resolution("movie", outcome(err))
		return nil, err
	}
	s.metrics.Resolution("movie", "ok")
	return slices.Clone(v.([]domain.StreamVariant)), nil
}

func (s *Service) discoverMovie(ctx context.Context, catalogID string) ([]domain.StreamVariant, error) {
	log := s.log.With("id", catalogID)

	loc, isLocator := DecodeLocatorID(catalogID)
	title := ""
	if !isLocator {
		title = s.nameFor(ctx, domain.TypeMovie, catalogID)
		if title == "" {
			return nil, fmt.Errorf("%w: 无法取得电影名称 id=%s", ErrNotFound, catalogID)
		}
	}

	cred, err := s.sessions.ForceRefresh(ctx)
	if err != nil {
		return nil, err
	}

	var seed []movieCandidate
	if isLocator {
		page, err := s.get(ctx, cred, s.site.Abs(loc))
		if err != nil {
			return nil, err
		}
		detail, err := dflix.ParseMovieDetail(page.Body)
		if err != nil {
			return nil, err
		}
		if detail.Title == "" {
			return nil, fmt.Errorf("%w: 定位符页面没有标题 %s", ErrNotFound, loc)
		}
		title = detail.Title
		id, _ := dflix.MovieID(loc)
		seed = append(seed, movieCandidate{ID: id, URL: s.site.Abs(loc), Title: title, body: page.Body})
	}

	if vs, ok := s.fixedVariants(title); ok {
		log.Info("using configured movie variants", "title", title, "variants", len(vs))
		s.cache.Movie.Put(catalogID, vs)
		return vs, nil
	}

	cands := mergeCandidates(seed, s.searchMovies(ctx, cred, title))
	if len(cands) == 0 {
		if simple := SimplifyTitle(title); simple != title && simple != "" {
			log.Debug("retrying movie search with simplified title", "title", simple)
			cands = mergeCandidates(seed, s.searchMovies(ctx, cred, simple))
		}
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("%w: 站点没有与 %q 完全一致的电影", ErrNotFound, title)
	}

	cands = append(cands, s.probeAdjacent(ctx, cred, title, cands)...)
	cands = s.applyExceptions(title, cands)

	variants := s.verifyCandidates(ctx, cred, title, cands)
	if len(variants) == 0 {
		return nil, fmt.Errorf("%w: %d 个候选", ErrNoVerifiedVariants, len(cands))
	}
	domain.SortByQuality(variants)
	s.cache.Movie.Put(catalogID, variants)
	log.Info("movie variants discovered", "title", title, "candidates", len(cands), "variants", len(variants))
	return variants, nil
}

// searchMovies 同时查询 /m/find 与站内搜索，只保留标题完全一致的结果；/m/find 的结果在前。
func (s *Service) searchMovies(ctx context.Context, cred domain.Credential, title string) []movieCandidate {
	var out []movieCandidate

	if page, err := s.get(ctx, cred, s.site.FindMovieURL(title)); err != nil {
		s.log.Warn("movie find failed", "title", title, "err", err)
	} else if cards, err := dflix.ParseMovieCards(page.Body); err == nil {
		for _, c := range cards {
			if !IsExactTitle(c.Title, title) {
				continue
			}
			if id, ok := dflix.MovieID(c.Href); ok {
				out = append(out, movieCandidate{ID: id, URL: s.site.MovieViewURL(id), Title: c.Title, Quality: c.Quality})
			}
		}
	}

	if page, err := s.post(ctx, cred, s.site.SearchURL(), dflix.SearchForm(title, "m")); err != nil {
		s.log.Warn("movie search failed", "title", title, "err", err)
	} else if hits, err := dflix.ParseMovieSearchAnchors(page.Body); err == nil {
		for _, h := range hits {
			if !IsExactTitle(h.Title, title) {
				continue
			}
			id, _ := dflix.MovieID(h.Href)
			out = append(out, movieCandidate{
				ID:      id,
				URL:     s.site.Abs(h.Href),
				Title:   h.Title,
				Quality: domain.QualityFromText(h.Href),
			})
		}
	}
	return out
}

// mergeCandidates 按顺序合并并去重（数字 ID 优先，其次 URL）。
func mergeCandidates(lists ...[]movieCandidate) []movieCandidate {
	seenID := map[int]bool{}
	seenURL := map[string]bool{}
	var out []movieCandidate
	for _, l := range lists {
		for _, c := range l {
			if c.ID > 0 && seenID[c.ID] || seenURL[c.URL] {
				continue
			}
			if c.ID > 0 {
				seenID[c.ID] = true
			}
			seenURL[c.URL] = true
			out = append(out, c)
		}
	}
	return out
}

// probeAdjacent 探测候选 ID 左右 window 范围内的相邻 ID。
// 相邻页面标题必须与候选标题或查询标题完全一致（忽略大小写）才会被接受。
func (s *Service) probeAdjacent(ctx context.Context, cred domain.Credential, title string, cands []movieCandidate) []movieCandidate {
	if s.window <= 0 {
		return nil
	}
	known := map[int]bool{}
	for _, c := range cands {
		if c.ID > 0 {
			known[c.ID] = true
		}
	}
	var probes []movieCandidate
	for _, c := range cands {
		if c.ID <= 0 {
			continue
		}
		for off := -s.window; off <= s.window; off++ {
			id := c.ID + off
			if off == 0 || id <= 0 || known[id] {
				continue
			}
			known[id] = true
			probes = append(probes, movieCandidate{ID: id, URL: s.site.MovieViewURL(id), Title: c.Title})
		}
	}
	if len(probes) == 0 {
		return nil
	}

	accepted := make([]*movieCandidate, len(probes))
	p := pool.New().WithMaxGoroutines(s.parallelism).WithContext(ctx)
	for i, pr := range probes {
		i, pr := i, pr
		p.Go(func(ctx context.Context) error {
			page, err := s.get(ctx, cred, pr.URL)
			if err != nil {
				s.log.Debug("adjacent probe failed", "movie_id", pr.ID, "err", err)
				return nil
			}
			detail, err := dflix.ParseMovieDetail(page.Body)
			if err != nil || detail.Title == "" {
				return nil
			}
			if !strings.EqualFold(detail.Title, pr.Title) && !strings.EqualFold(detail.Title, title) {
				s.log.Debug("adjacent probe title differs", "movie_id", pr.ID, "title", detail.Title)
				return nil
			}
			pr.Title = detail.Title
			pr.Quality = detail.Badge
			pr.body = page.Body
			accepted[i] = &pr
			return nil
		})
	}
	_ = p.Wait()

	var out []movieCandidate
	for _, c := range accepted {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// fixedVariants 返回配置中为该标题登记的固定变体。
func (s *Service) fixedVariants(title string) ([]domain.StreamVariant, bool) {
	for _, r := range s.exceptions {
		if len(r.Variants) == 0 || !strings.EqualFold(strings.TrimSpace(r.Title), strings.TrimSpace(title)) {
			continue
		}
		out := make([]domain.StreamVariant, 0, len(r.Variants))
		for _, v := range r.Variants {
			v.Quality = qualityOrUnknown(v.Quality)
			if v.Title == "" {
				v.Title = "[" + v.Quality + "] " + title
			}
			if v.Name == "" {
				v.Name = movieSourceName
			}
			out = append(out, v)
		}
		domain.SortByQuality(out)
		return out, true
	}
	return nil, false
}

// applyExceptions 按配置补上已知缺失的 ID：标题匹配、RequireID 在候选中、AddID 不在。
func (s *Service) applyExceptions(title string, cands []movieCandidate) []movieCandidate {
	for _, r := range s.exceptions {
		if r.RequireID <= 0 || r.AddID <= 0 || !strings.EqualFold(strings.TrimSpace(r.Title), strings.TrimSpace(title)) {
			continue
		}
		hasRequired, hasAdded := false, false
		for _, c := range cands {
			hasRequired = hasRequired || c.ID == r.RequireID
			hasAdded = hasAdded || c.ID == r.AddID
		}
		if !hasRequired || hasAdded {
			continue
		}
		s.log.Info("applying movie exception rule", "title", title, "add_id", r.AddID)
		cands = append(cands, movieCandidate{ID: r.AddID, URL: s.site.MovieViewURL(r.AddID), Title: title, Quality: r.Quality})
	}
	return cands
}

// verifyCandidates 并发校验候选页面标题并提取直链；结果保持候选顺序。
func (s *Service) verifyCandidates(ctx context.Context, cred domain.Credential, title string, cands []movieCandidate) []domain.StreamVariant {
	results := make([]*domain.StreamVariant, len(cands))
	p := pool.New().WithMaxGoroutines(s.parallelism).WithContext(ctx)
	for i, c := range cands {
		i, c := i, c
		p.Go(func(ctx context.Context) error {
			v, err := s.verifyCandidate(ctx, cred, title, c)
			if err != nil {
				s.log.Info("movie candidate rejected", "url", c.URL, "err", err)
				return nil
			}
			results[i] = &v
			return nil
		})
	}
	_ = p.Wait()

	var out []domain.StreamVariant
	for _, v := range results {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func (s *Service) verifyCandidate(ctx context.Context, cred domain.Credential, title string, c movieCandidate) (domain.StreamVariant, error) {
	body := c.body
	if body == nil {
		page, err := s.get(ctx, cred, c.URL)
		if err != nil {
			return domain.StreamVariant{}, err
		}
		body = page.Body
	}
	link, err := dflix.ExtractMovieLink(body)
	if err != nil {
		return domain.StreamVariant{}, err
	}
	got := link.Detail.Title
	if got == "" || !strings.EqualFold(got, title) && !strings.EqualFold(got, SimplifyTitle(title)) {
		return domain.StreamVariant{}, fmt.Errorf("页面标题 %q 与 %q 不一致", got, title)
	}
	if link.Href == "" {
		return domain.StreamVariant{}, errNoStreamLink
	}

	abs := s.site.Abs(link.Href)
	q := movieQuality(link.Detail.Badge, abs, c.Quality)
	s.log.Debug("movie stream extracted", "url", c.URL, "strategy", link.Strategy, "quality", q)
	return domain.StreamVariant{
		URL:     EncodePath(abs),
		Quality: q,
		Title:   "[" + q + "] " + got,
		Name:    movieSourceName,
	}, nil
}

// movieQuality 取画质标签：页面徽章优先（含 DUAL 时追加 " Dual"），
// 其次 URL 与文件名，再其次候选自带的画质文本，都没有则为 Unknown。
func movieQuality(badge, streamURL, hint string) string {
	if q := domain.QualityFromText(badge); q != "" {
		if strings.Contains(badge, "DUAL") {
			q += " Dual"
		}
		return q
	}
	if q := domain.QualityFromText(streamURL); q != "" {
		return q
	}
	if q := domain.QualityFromText(fileName(streamURL)); q != "" {
		return q
	}
	return qualityOrUnknown(domain.QualityFromText(hint))
}

func fileName(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	name := path.Base(u)
	if d, err := url.PathUnescape(name); err == nil {
		return d
	}
	return name
}
