package adapters

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/hoshi42/phonox/internal/identify"
)

// TavilySearchClient implements identify.SearchClient. Tavily is the
// primary provider (§4.6); DuckDuckGo's HTML endpoint is the fallback when
// Tavily is unavailable or unauthorized, scraped the same way the teacher's
// researcher shard scrapes any other page.
type TavilySearchClient struct {
	http      *resty.Client
	tavilyKey string
}

// NewTavilySearchClient builds a SearchClient backed by Tavily + DuckDuckGo.
func NewTavilySearchClient(tavilyAPIKey string) *TavilySearchClient {
	return &TavilySearchClient{
		http:      resty.New(),
		tavilyKey: tavilyAPIKey,
	}
}

type tavilyRequest struct {
	APIKey         string   `json:"api_key"`
	Query          string   `json:"query"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	MaxResults     int      `json:"max_results"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Tavily queries the Tavily search API, optionally restricted to
// includeDomains (§4.6's restricted-then-unrestricted retry).
func (c *TavilySearchClient) Tavily(ctx context.Context, query string, includeDomains []string, maxResults int) ([]identify.SearchHit, error) {
	var out tavilyResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(tavilyRequest{
			APIKey:         c.tavilyKey,
			Query:          query,
			IncludeDomains: includeDomains,
			MaxResults:     maxResults,
		}).
		SetResult(&out).
		Post("https://api.tavily.com/search")
	if err != nil {
		return nil, fmt.Errorf("tavily: search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tavily: search: status %d", resp.StatusCode())
	}

	hits := make([]identify.SearchHit, 0, len(out.Results))
	for _, r := range out.Results {
		hits = append(hits, identify.SearchHit{URL: r.URL, Title: r.Title, Snippet: r.Content})
	}
	return hits, nil
}

// DuckDuckGo scrapes DuckDuckGo's HTML-only results endpoint (no API key
// required), the last-resort provider when Tavily fails entirely (§4.6).
func (c *TavilySearchClient) DuckDuckGo(ctx context.Context, query string, maxResults int) ([]identify.SearchHit, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		Get("https://html.duckduckgo.com/html/")
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("duckduckgo: search: status %d", resp.StatusCode())
	}

	hits := parseDuckDuckGoResultsHTML(resp.String(), maxResults)
	return hits, nil
}
