package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/flixresolver/internal/domain"
	"github.com/John-Robertt/flixresolver/internal/provider/dflix/dflixtest"
)

const movieID = "tt0816692"

func moviePage(title, badge, href string) string {
	return dflixtest.MoviePage(title, badge, dflixtest.PrimaryLink(href))
}

func TestDiscoverMovieVariants_AdjacentSiblings(t *testing.T) {
	site := newFakeSite(t)
	site.page("/m/find/Ad Astra", dflixtest.MovieFindPage(dflixtest.Card{Href: "/m/view/14554", Title: "Ad Astra", Quality: "1080p"}))
	site.page("/m/view/14554", moviePage("Ad Astra", "1080p", "/files/Movies/Ad Astra/Ad.Astra.2019.1080p.BluRay.mp4"))
	site.page("/m/view/14553", moviePage("Ad Astra", "4K", "/files/Movies/Ad Astra/Ad.Astra.2019.2160p.mkv"))
	site.page("/m/view/14555", moviePage("Another Film", "720p", "/files/x.mp4"))
	svc := newTestService(t, site, map[string]string{movieID: "Ad Astra"})

	vs, err := svc.DiscoverMovieVariants(context.Background(), movieID)
	require.NoError(t, err)
	assert.Equal(t, []string{"[4K] Ad Astra", "[1080P] Ad Astra"}, variantTitles(vs))
	assert.Equal(t, site.srv.URL+"/files/Movies/Ad%20Astra/Ad.Astra.2019.2160p.mkv", vs[0].URL)
	assert.Equal(t, "Movie", vs[0].Name)
	assert.Equal(t, 1, site.loginCount())

	// 第二次直接命中 Movie 表。
	before := site.fetches()
	again, err := svc.DiscoverMovieVariants(context.Background(), movieID)
	require.NoError(t, err)
	assert.Equal(t, vs, again)
	assert.Equal(t, before, site.fetches())
}

func TestDiscoverMovieVariants_QualityRanking(t *testing.T) {
	site := newFakeSite(t)
	site.page("/m/find/Interstellar", dflixtest.MovieFindPage(
		dflixtest.Card{Href: "/m/view/100", Title: "Interstellar"},
		dflixtest.Card{Href: "/m/view/200", Title: "Interstellar (2014)"},
		dflixtest.Card{Href: "/m/view/300", Title: "Interstellar"},
		dflixtest.Card{Href: "/m/view/400", Title: "Interstellar 2"},
	))
	site.page("/m/view/100", moviePage("Interstellar", "720p", "/f/i720.mp4"))
	site.page("/m/view/200", moviePage("Interstellar", "4K", "/f/i4k.mkv"))
	site.page("/m/view/300", moviePage("Interstellar", "1080p", "/f/i1080.mp4"))
	svc := newTestService(t, site, map[string]string{"tt0816692": "Interstellar"}, func(o *Options) { o.AdjacentWindow = 0 })

	vs, err := svc.DiscoverMovieVariants(context.Background(), "tt0816692")
	require.NoError(t, err)
	assert.Equal(t, []string{"[4K] Interstellar", "[1080P] Interstellar", "[720P] Interstellar"}, variantTitles(vs))
	assert.Equal(t, 0, site.hitCount("/m/view/400"))
}

func TestDiscoverMovieVariants_MergesBothSearchEndpoints(t *testing.T) {
	site := newFakeSite(t)
	site.page("/m/find/Heat", dflixtest.MovieFindPage(dflixtest.Card{Href: "/m/view/10", Title: "Heat"}))
	site.searchResult("m", "Heat", dflixtest.SearchPage(
		dflixtest.Hit{Href: "/m/view/10", Title: "Heat"},
		dflixtest.Hit{Href: "/m/view/50", Title: "Heat (1995)"},
	))
	site.page("/m/view/10", moviePage("Heat", "720p", "/f/heat.720p.mp4"))
	site.page("/m/view/50", moviePage("Heat", "DUAL 1080p", "/f/heat.mp4"))
	svc := newTestService(t, site, map[string]string{"tt0113277": "Heat"}, func(o *Options) { o.AdjacentWindow = 0 })

	vs, err := svc.DiscoverMovieVariants(context.Background(), "tt0113277")
	require.NoError(t, err)
	assert.Equal(t, []string{"[1080P Dual] Heat", "[720P] Heat"}, variantTitles(vs))
	assert.Equal(t, 1, site.hitCount("/m/view/10"))
}

func TestDiscoverMovieVariants_SimplifiedTitleRetry(t *testing.T) {
	site := newFakeSite(t)
	site.page("/m/find/Dune", dflixtest.MovieFindPage(dflixtest.Card{Href: "/m/view/7", Title: "Dune"}))
	site.page("/m/view/7", moviePage("Dune", "", "/f/Dune.2021.2160p.mkv"))
	svc := newTestService(t, site, map[string]string{"tt1160419": "Dune (2021)"}, func(o *Options) { o.AdjacentWindow = 0 })

	vs, err := svc.DiscoverMovieVariants(context.Background(), "tt1160419")
	require.NoError(t, err)
	require.Len(t, vs, 1)
	// 徽章为空时从文件名取画质。
	assert.Equal(t, "[2160P] Dune", vs[0].Title)
}

func TestDiscoverMovieVariants_ExceptionRuleAddsMissingID(t *testing.T) {
	site := newFakeSite(t)
	site.page("/m/find/Ad Astra", dflixtest.MovieFindPage(dflixtest.Card{Href: "/m/view/14554", Title: "Ad Astra"}))
	site.page("/m/view/14554", moviePage("Ad Astra", "4K", "/f/a.2160p.mkv"))
	site.page("/m/view/14553", moviePage("Ad Astra", "", "/f/a.mp4"))
	svc := newTestService(t, site, map[string]string{movieID: "Ad Astra"}, func(o *Options) {
		o.AdjacentWindow = 0
		o.Exceptions = []domain.ExceptionRule{{Title: "ad astra", RequireID: 14554, AddID: 14553, Quality: "1080p"}}
	})

	vs, err := svc.DiscoverMovieVariants(context.Background(), movieID)
	require.NoError(t, err)
	assert.Equal(t, []string{"[4K] Ad Astra", "[1080P] Ad Astra"}, variantTitles(vs))
}

func TestDiscoverMovieVariants_FixedVariants(t *testing.T) {
	site := newFakeSite(t)
	svc := newTestService(t, site, map[string]string{movieID: "Ad Astra"}, func(o *Options) {
		o.Exceptions = []domain.ExceptionRule{{
			Title: "Ad Astra",
			Variants: []domain.StreamVariant{
				{URL: "https://cdn.test/a.1080p.mp4", Quality: "1080P"},
				{URL: "https://cdn.test/a.2160p.mkv", Quality: "4K"},
			},
		}}
	})

	vs, err := svc.DiscoverMovieVariants(context.Background(), movieID)
	require.NoError(t, err)
	assert.Equal(t, []string{"[4K] Ad Astra", "[1080P] Ad Astra"}, variantTitles(vs))
	assert.Equal(t, 0, site.fetches())
}

func TestDiscoverMovieVariants_NotFoundVersusUnverified(t *testing.T) {
	site := newFakeSite(t)
	site.page("/m/find/Solaris", dflixtest.MovieFindPage(dflixtest.Card{Href: "/m/view/9", Title: "Solaris"}))
	site.page("/m/view/9", moviePage("Solaris Redux", "1080p", "/f/s.mp4"))
	svc := newTestService(t, site, map[string]string{
		"tt0069293": "Solaris",
		"tt0000001": "Nothing Here",
	}, func(o *Options) { o.AdjacentWindow = 0 })

	_, err := svc.DiscoverMovieVariants(context.Background(), "tt0069293")
	assert.ErrorIs(t, err, ErrNoVerifiedVariants)

	_, err = svc.DiscoverMovieVariants(context.Background(), "tt0000001")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.DiscoverMovieVariants(context.Background(), "tt9999999")
	assert.ErrorIs(t, err, ErrNotFound)

	_, ok := svc.Cache().Movie.Get("tt0069293")
	assert.False(t, ok)
}

func TestDiscoverMovieVariants_LocatorID(t *testing.T) {
	site := newFakeSite(t)
	site.page("/m/view/14554", moviePage("Ad Astra", "4K", "/f/a.2160p.mkv"))
	svc := newTestService(t, site, nil, func(o *Options) { o.AdjacentWindow = 0 })

	vs, err := svc.DiscoverMovieVariants(context.Background(), LocatorID("/m/view/14554"))
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, "[4K] Ad Astra", vs[0].Title)
	// 定位符页面在取标题时已抓过一次，校验阶段复用。
	assert.Equal(t, 1, site.hitCount("/m/view/14554"))
}

func TestMovieQuality(t *testing.T) {
	assert.Equal(t, "1080P Dual", movieQuality("DUAL 1080p 2.1GB", "http://x/a.mp4", ""))
	assert.Equal(t, "2160P", movieQuality("", "http://x/Ad.Astra.2160p.mkv", ""))
	assert.Equal(t, "720P", movieQuality("", "http://x/a.mp4", "720p"))
	assert.Equal(t, domain.QualityUnknown, movieQuality("", "http://x/a.mp4", ""))
}
