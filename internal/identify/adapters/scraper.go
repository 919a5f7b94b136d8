package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"

	"github.com/hoshi42/phonox/internal/identify"
)

// HTTPScraper implements identify.Scraper as a plain GET plus HTML-to-text
// extraction, grounded on the teacher's internal/shards/researcher scraper
// (§4.6 explicitly calls for a page fetch, not a headless browser).
type HTTPScraper struct {
	http *resty.Client
}

// NewHTTPScraper builds an HTTPScraper.
func NewHTTPScraper() *HTTPScraper {
	return &HTTPScraper{http: resty.New()}
}

// Fetch retrieves url and returns its visible text content, bounded by
// timeout (§4.6: per-page scrape timeout).
func (s *HTTPScraper) Fetch(ctx context.Context, url string, timeout time.Duration) (string, error) {
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.http.R().SetContext(fctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("scraper: fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("scraper: fetch %s: status %d", url, resp.StatusCode())
	}

	doc, err := html.Parse(strings.NewReader(resp.String()))
	if err != nil {
		return "", fmt.Errorf("scraper: parse %s: %w", url, err)
	}
	return extractVisibleText(doc), nil
}

// extractVisibleText walks the parsed document collecting text nodes,
// skipping script/style content, mirroring the researcher shard's
// traversal pattern.
func extractVisibleText(n *html.Node) string {
	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.ElementNode && (node.Data == "script" || node.Data == "style") {
			return
		}
		if node.Type == html.TextNode {
			text := strings.TrimSpace(node.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	return truncate(strings.TrimSpace(sb.String()), 2000)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// parseDuckDuckGoResultsHTML extracts result links/snippets from DuckDuckGo's
// HTML-only results page, capped at maxResults.
func parseDuckDuckGoResultsHTML(body string, maxResults int) []identify.SearchHit {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var hits []identify.SearchHit
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if len(hits) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			href := attr(n, "href")
			title := extractVisibleText(n)
			if href != "" && title != "" {
				hits = append(hits, identify.SearchHit{URL: href, Title: title})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return hits
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" && strings.Contains(a.Val, class) {
			return true
		}
	}
	return false
}
