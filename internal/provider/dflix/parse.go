package dflix

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SearchHit 是站内搜索（POST /search）的一条结果。
type SearchHit struct {
	Href   string
	Title  string
	Poster string
}

// MovieCard 是 /m/find/<title> 页面的一张电影卡片。
type MovieCard struct {
	Href     string
	Title    string
	Quality  string
	Poster   string
	Feedback string
}

// SeriesPage 是剧集详情页；Seasons 已按站点约定反转（第 0 个即第 1 季）。
type SeriesPage struct {
	Title   string
	Poster  string
	Plot    string
	Genres  []string
	Seasons []string
}

// SeasonEpisode 是季页面中的一集；Link 可能为空（页面缺链接）。
type SeasonEpisode struct {
	Name      string
	Link      string
	Overview  string
	Thumbnail string
}

// MovieDetail 是电影详情页中与校验/展示相关的字段。
type MovieDetail struct {
	Title  string
	Badge  string
	Poster string
	Plot   string
	Genres []string
}

func parseDoc(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// ParseSearchResults 解析站内搜索结果，保持文档顺序。
func ParseSearchResults(body []byte) ([]SearchHit, error) {
	doc, err := parseDoc(body)
	if err != nil {
		return nil, err
	}
	var out []SearchHit
	doc.Find(".moviesearchiteam > a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		poster, _ := s.Find("img").First().Attr("src")
		out = append(out, SearchHit{
			Href:   href,
			Title:  normSpace(s.Find(".searchtitle").Text()),
			Poster: strings.TrimSpace(poster),
		})
	})
	return out, nil
}

// ParseMovieSearchAnchors 扫描搜索结果页中所有指向 /m/view/ 的链接。
//
// 标题优先取 .searchtitle，缺失时退化为链接文本。
func ParseMovieSearchAnchors(body []byte) ([]SearchHit, error) {
	doc, err := parseDoc(body)
	if err != nil {
		return nil, err
	}
	var out []SearchHit
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.Contains(href, "/m/view/") {
			return
		}
		title := s.Find(".searchtitle")
		t := normSpace(title.Text())
		if title.Length() == 0 {
			t = normSpace(s.Text())
		}
		poster, _ := s.Find("img").First().Attr("src")
		out = append(out, SearchHit{Href: strings.TrimSpace(href), Title: t, Poster: strings.TrimSpace(poster)})
	})
	return out, nil
}

// ParseMovieCards 解析 /m/find 页面，跳过海报被禁用（不可播放）的卡片。
func ParseMovieCards(body []byte) ([]MovieCard, error) {
	doc, err := parseDoc(body)
	if err != nil {
		return nil, err
	}
	var out []MovieCard
	doc.Find("div.card:not(:has(div.poster.disable))").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Find("div.card > a:nth-child(1)").First().Attr("href")
		poster, _ := s.Find("div.poster > img:nth-child(1)").First().Attr("src")
		c := MovieCard{
			Href:     strings.TrimSpace(href),
			Title:    normSpace(s.Find("div.card > div:nth-child(2) > h3:nth-child(1)").First().Text()),
			Quality:  normSpace(s.Find("div.card > a:nth-child(1) > span:nth-child(1)").First().Text()),
			Poster:   strings.TrimSpace(poster),
			Feedback: normSpace(s.Find("div.feedback > span:nth-child(1)").First().Text()),
		}
		if c.Href == "" || c.Title == "" {
			return
		}
		out = append(out, c)
	})
	return out, nil
}

// ParseSeriesPage 解析剧集详情页。季链接按文档逆序返回。
func ParseSeriesPage(body []byte) (SeriesPage, error) {
	doc, err := parseDoc(body)
	if err != nil {
		return SeriesPage{}, err
	}
	poster, _ := doc.Find(".movie-detail-banner > img:nth-child(1)").First().Attr("src")
	p := SeriesPage{
		Title:  normSpace(doc.Find(".movie-detail-content-test > h3:nth-child(1)").First().Text()),
		Poster: strings.TrimSpace(poster),
		Plot:   strings.TrimSpace(doc.Find(".storyline").Text()),
		Genres: parseGenres(doc),
	}
	var seasons []string
	doc.Find("table.table:nth-child(1) > tbody:nth-child(1) > tr a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		seasons = append(seasons, strings.TrimSpace(href))
	})
	for i, j := 0, len(seasons)-1; i < j; i, j = i+1, j-1 {
		seasons[i], seasons[j] = seasons[j], seasons[i]
	}
	p.Seasons = seasons
	return p, nil
}

// ParseSeasonPage 解析季页面中的剧集，保持文档顺序（第 0 个即第 1 集）。
func ParseSeasonPage(body []byte) ([]SeasonEpisode, error) {
	doc, err := parseDoc(body)
	if err != nil {
		return nil, err
	}
	var out []SeasonEpisode
	doc.Find("div.container:nth-child(6) > div").Each(func(_ int, s *goquery.Selection) {
		link, _ := s.Find("div.mt-2 > h5 > a").First().Attr("href")
		style, _ := s.Find("div").First().Attr("style")
		out = append(out, SeasonEpisode{
			Name:      strings.TrimSpace(s.Find("h4").First().Contents().First().Text()),
			Link:      strings.TrimSpace(link),
			Overview:  strings.TrimSpace(s.Find("div.season_overview").Text()),
			Thumbnail: bgImageURL(style),
		})
	})
	return out, nil
}

// ParseEpisodeLink 取剧集页面中的直链锚点。
func ParseEpisodeLink(body []byte) (string, error) {
	doc, err := parseDoc(body)
	if err != nil {
		return "", err
	}
	href, _ := doc.Find("div.mt-2 > h5 > a").First().Attr("href")
	return strings.TrimSpace(href), nil
}

// ParseMovieDetail 解析电影详情页。
func ParseMovieDetail(body []byte) (MovieDetail, error) {
	doc, err := parseDoc(body)
	if err != nil {
		return MovieDetail{}, err
	}
	return movieDetail(doc), nil
}

func movieDetail(doc *goquery.Document) MovieDetail {
	poster, _ := doc.Find(".movie-detail-banner > img:nth-child(1)").First().Attr("src")
	return MovieDetail{
		Title:  normSpace(doc.Find(".movie-detail-content > h3").First().Text()),
		Badge:  normSpace(doc.Find(".badge.badge-fill").Text()),
		Poster: strings.TrimSpace(poster),
		Plot:   strings.TrimSpace(doc.Find(".storyline").Text()),
		Genres: parseGenres(doc),
	}
}

func parseGenres(doc *goquery.Document) []string {
	var out []string
	doc.Find(".ganre-wrapper > a").Each(func(_ int, s *goquery.Selection) {
		g := strings.TrimSpace(strings.Replace(s.Text(), ",", "", 1))
		if g != "" {
			out = append(out, g)
		}
	})
	return out
}

var (
	viewIDRE     = regexp.MustCompile(`/m/view/(\d+)`)
	trailingIDRE = regexp.MustCompile(`/(\d+)$`)
	bgImageRE    = regexp.MustCompile(`url\(['"]?(.*?)['"]?\)`)
)

// MovieID 从电影链接中取数字 ID：优先 /m/view/<n>，其次末尾的 /<n>。
func MovieID(href string) (int, bool) {
	m := viewIDRE.FindStringSubmatch(href)
	if m == nil {
		m = trailingIDRE.FindStringSubmatch(strings.TrimSpace(href))
	}
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func bgImageURL(style string) string {
	m := bgImageRE.FindStringSubmatch(style)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
