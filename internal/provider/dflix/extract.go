package dflix

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// 电影直链提取策略，按顺序尝试，首个非空结果胜出。
const (
	StrategyRegex        = "regex"
	StrategyPrimary      = "primary"
	StrategyActionAnchor = "action-anchor"
	StrategyQualityLinks = "quality-links"
	StrategyMediaHost    = "media-host"
)

// MediaHost 是站点的媒体内容域名。
const MediaHost = "content.discoveryftp.net"

var mediaURLRE = regexp.MustCompile(`(?i)(https?://[^\s"'<>]+\.(mp4|mkv|avi))`)

// MovieLink 是从电影详情页提取到的直链。
type MovieLink struct {
	Href     string
	Strategy string
	Detail   MovieDetail
}

// ExtractMovieLink 从电影详情页提取直链；找不到时 Href 为空。
func ExtractMovieLink(body []byte) (MovieLink, error) {
	doc, err := parseDoc(body)
	if err != nil {
		return MovieLink{}, err
	}
	out := MovieLink{Detail: movieDetail(doc)}

	if m := mediaURLRE.FindString(string(body)); m != "" {
		out.Href, out.Strategy = m, StrategyRegex
		return out, nil
	}

	if href, ok := doc.Find("div.col-md-12:nth-child(3) > div:nth-child(1) > a:nth-child(1)").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		out.Href, out.Strategy = strings.TrimSpace(href), StrategyPrimary
		return out, nil
	}

	if href := firstHref(doc.Find("a"), func(href string, s *goquery.Selection) bool {
		text := strings.ToLower(s.Text())
		return strings.Contains(text, "download") ||
			strings.Contains(text, "play") ||
			strings.Contains(text, "watch") ||
			strings.Contains(href, "/download/") ||
			strings.Contains(href, ".mp4") ||
			strings.Contains(href, ".mkv")
	}); href != "" {
		out.Href, out.Strategy = href, StrategyActionAnchor
		return out, nil
	}

	if href := firstHref(doc.Find(".movie-detail-genresandquality a, .movie-detail-buttons a, .btn-download"), nil); href != "" {
		out.Href, out.Strategy = href, StrategyQualityLinks
		return out, nil
	}

	if href := firstHref(doc.Find("a"), func(href string, _ *goquery.Selection) bool {
		return strings.Contains(href, "/download/") ||
			strings.Contains(href, MediaHost) ||
			strings.Contains(href, ".mp4") ||
			strings.Contains(href, ".mkv")
	}); href != "" {
		out.Href, out.Strategy = href, StrategyMediaHost
		return out, nil
	}

	return out, nil
}

func firstHref(sel *goquery.Selection, match func(href string, s *goquery.Selection) bool) string {
	found := ""
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return true
		}
		if match != nil && !match(href, s) {
			return true
		}
		found = href
		return false
	})
	return found
}
