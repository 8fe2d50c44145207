// Package dflixtest 生成与站点结构一致的最小 HTML，供解析与流程测试使用。
package dflixtest

import (
	"fmt"
	"html"
	"strings"
)

// Hit 是搜索结果页的一条结果。
type Hit struct {
	Href   string
	Title  string
	Poster string
}

// Card 是 /m/find 页面的一张卡片；Disabled 表示海报被禁用。
type Card struct {
	Href     string
	Title    string
	Quality  string
	Poster   string
	Feedback string
	Disabled bool
}

// Episode 是季页面中的一集。
type Episode struct {
	Name     string
	Link     string
	Overview string
	Thumb    string
}

func page(body string) string {
	return "<!doctype html><html><head><title>t</title></head><body>" + body + "</body></html>"
}

func SearchPage(hits ...Hit) string {
	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, `<div class="moviesearchiteam"><a href="%s"><img src="%s"><div class="searchtitle">%s</div></a></div>`,
			html.EscapeString(h.Href), html.EscapeString(h.Poster), html.EscapeString(h.Title))
	}
	return page(b.String())
}

func MovieFindPage(cards ...Card) string {
	var b strings.Builder
	b.WriteString(`<div class="row">`)
	for _, c := range cards {
		posterClass := "poster"
		if c.Disabled {
			posterClass = "poster disable"
		}
		fmt.Fprintf(&b, `<div class="col"><div class="card"><a href="%s"><span>%s</span></a><div><h3>%s</h3></div><div class="%s"><img src="%s"></div><div class="feedback"><span>%s</span></div></div></div>`,
			html.EscapeString(c.Href), html.EscapeString(c.Quality), html.EscapeString(c.Title),
			posterClass, html.EscapeString(c.Poster), html.EscapeString(c.Feedback))
	}
	b.WriteString(`</div>`)
	return page(b.String())
}

// SeriesPage 渲染剧集详情页；seasonHrefs 按文档顺序（即最新季在前）。
func SeriesPage(title, poster, plot string, genres []string, seasonHrefs ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="movie-detail-banner"><img src="%s"></div>`, html.EscapeString(poster))
	fmt.Fprintf(&b, `<div class="movie-detail-content-test"><h3>%s</h3></div>`, html.EscapeString(title))
	fmt.Fprintf(&b, `<div class="storyline">%s</div>`, html.EscapeString(plot))
	b.WriteString(`<div class="ganre-wrapper">`)
	for i, g := range genres {
		sep := ","
		if i == len(genres)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, `<a href="#">%s%s</a>`, html.EscapeString(g), sep)
	}
	b.WriteString(`</div>`)
	b.WriteString(`<div class="seasons"><table class="table"><tbody>`)
	for i, h := range seasonHrefs {
		fmt.Fprintf(&b, `<tr><td><a href="%s">Season %d</a></td></tr>`, html.EscapeString(h), len(seasonHrefs)-i)
	}
	b.WriteString(`</tbody></table></div>`)
	return page(b.String())
}

// SeasonPage 渲染季页面：剧集列表位于 body 的第 6 个子元素。
func SeasonPage(eps ...Episode) string {
	var b strings.Builder
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, `<div class="filler-%d"></div>`, i)
	}
	b.WriteString(`<div class="container">`)
	for _, e := range eps {
		b.WriteString(`<div>`)
		fmt.Fprintf(&b, `<div style="background-image: url('%s')"></div>`, html.EscapeString(e.Thumb))
		fmt.Fprintf(&b, `<h4>%s<span>45m</span></h4>`, html.EscapeString(e.Name))
		fmt.Fprintf(&b, `<div class="season_overview">%s</div>`, html.EscapeString(e.Overview))
		if e.Link != "" {
			fmt.Fprintf(&b, `<div class="mt-2"><h5><a href="%s">Download</a></h5></div>`, html.EscapeString(e.Link))
		}
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div>`)
	return page(b.String())
}

func EpisodePage(link string) string {
	return page(fmt.Sprintf(`<div class="mt-2"><h5><a href="%s">Play</a></h5></div>`, html.EscapeString(link)))
}

// MoviePage 渲染电影详情页；extra 原样插入 body（用于放置各种下载链接）。
func MoviePage(title, badge, extra string) string {
	return page(fmt.Sprintf(`<div class="movie-detail-banner"><img src="/p.jpg"></div>`+
		`<div class="movie-detail-content"><h3>%s</h3><span class="badge badge-fill">%s</span></div>`+
		`<div class="storyline">plot</div>%s`,
		html.EscapeString(title), html.EscapeString(badge), extra))
}

// PrimaryLink 生成主选择器能命中的结构：父元素的第 3 个子元素 div.col-md-12。
func PrimaryLink(href string) string {
	return fmt.Sprintf(`<div class="row"><div class="col-md-12"></div><div class="col-md-12"></div>`+
		`<div class="col-md-12"><div><a href="%s">Get</a></div></div></div>`, html.EscapeString(href))
}
