package identify

import (
	"context"
	"fmt"
	"strings"

	"github.com/hoshi42/phonox/internal/identify/config"
	"github.com/hoshi42/phonox/internal/identify/logging"
)

// websearchConfidence is the fixed confidence assigned to the single
// `websearch` evidence entry (§4.6); unlike every other source, web search
// contributes a flat score rather than a provider-reported or derived one.
const websearchConfidence = 0.60

// WebSearch implements C6 (§4.6): Tavily is tried first restricted to the
// configured preferred domains, retried once unrestricted on an empty
// result, then DuckDuckGo is tried as a last resort with a cleaned query.
// Matched URLs are deduplicated and scraped up to a bounded count/timeout;
// the whole stage yields at most one `websearch` Evidence entry.
func WebSearch(ctx context.Context, meta AggregatedMetadata, search SearchClient, scraper Scraper, limiter *ProviderLimiter, cfg config.WebSearchConfig, clock Clock) (*Evidence, *WebSearchResult) {
	timer := logging.StartTimer(logging.CategoryWebSearch, "WebSearch")
	defer timer.Stop()

	if search == nil || meta.Artist == nil || meta.Title == nil {
		return nil, nil
	}

	query := buildSearchQuery(meta)
	hits, provider := runSearchProviders(ctx, meta, query, search, limiter, cfg)
	if len(hits) == 0 {
		logging.Get(logging.CategoryWebSearch).Warn("web search returned no results from any provider")
		return nil, nil
	}

	hits = dedupeByURL(hits)
	excerpts := scrapeBounded(ctx, hits, scraper, limiter, cfg)

	result := WebSearchResult{Query: query, Results: hits, Excerpts: excerpts, Provider: provider}
	ev := &Evidence{
		Source:     SourceWebSearch,
		Confidence: websearchConfidence,
		Data:       webSearchResultToData(result),
		Timestamp:  clock.Now(),
	}
	return ev, &result
}

func buildSearchQuery(meta AggregatedMetadata) string {
	parts := []string{}
	if meta.Artist != nil {
		parts = append(parts, *meta.Artist)
	}
	if meta.Title != nil {
		parts = append(parts, *meta.Title)
	}
	if meta.Year != nil {
		parts = append(parts, fmt.Sprintf("%d", *meta.Year))
	}
	parts = append(parts, "vinyl", "record", "discogs")
	return strings.Join(parts, " ")
}

// cleanedQuery strips the discogs-anchoring terms before a DuckDuckGo
// fallback attempt, per §4.6's "cleaned query" step — a broad generic
// search engine does worse with a query over-fitted to one catalog site.
func cleanedQuery(meta AggregatedMetadata) string {
	parts := []string{}
	if meta.Artist != nil {
		parts = append(parts, *meta.Artist)
	}
	if meta.Title != nil {
		parts = append(parts, *meta.Title)
	}
	parts = append(parts, "vinyl record")
	return strings.Join(parts, " ")
}

func runSearchProviders(ctx context.Context, meta AggregatedMetadata, query string, search SearchClient, limiter *ProviderLimiter, cfg config.WebSearchConfig) ([]SearchHit, string) {
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = 1

	callThrough := func(cctx context.Context, provider string, fn func(context.Context) error) error {
		if limiter == nil {
			return fn(cctx)
		}
		if werr := limiter.Wait(cctx, provider, cfg.ScrapingTimeout); werr != nil {
			return werr
		}
		return limiter.Execute(cctx, provider, fn)
	}

	var hits []SearchHit
	err := RetryableCall(ctx, policy, func(cctx context.Context) error {
		return callThrough(cctx, "tavily", func(fctx context.Context) error {
			h, err := search.Tavily(fctx, query, cfg.PreferredDomains, cfg.ScrapingMaxURLs)
			if err != nil {
				return err
			}
			hits = h
			return nil
		})
	})
	if err == nil && len(hits) > 0 {
		return hits, "tavily"
	}

	// Retry Tavily once unrestricted before falling back to a different
	// provider entirely (§4.6).
	err = RetryableCall(ctx, policy, func(cctx context.Context) error {
		return callThrough(cctx, "tavily", func(fctx context.Context) error {
			h, err := search.Tavily(fctx, query, nil, cfg.ScrapingMaxURLs)
			if err != nil {
				return err
			}
			hits = h
			return nil
		})
	})
	if err == nil && len(hits) > 0 {
		return hits, "tavily"
	}

	ddgQuery := cleanedQuery(meta)
	err = RetryableCall(ctx, policy, func(cctx context.Context) error {
		return callThrough(cctx, "duckduckgo", func(fctx context.Context) error {
			h, err := search.DuckDuckGo(fctx, ddgQuery, cfg.ScrapingMaxURLs)
			if err != nil {
				return err
			}
			hits = h
			return nil
		})
	})
	if err == nil && len(hits) > 0 {
		return hits, "duckduckgo"
	}
	return nil, ""
}

func dedupeByURL(hits []SearchHit) []SearchHit {
	seen := make(map[string]bool, len(hits))
	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		if seen[h.URL] {
			continue
		}
		seen[h.URL] = true
		out = append(out, h)
	}
	return out
}

// scrapeBounded fetches at most cfg.ScrapingMaxURLs pages, each bounded by
// cfg.ScrapingTimeout; a single page's failure is soft and simply omitted
// from the excerpt map (§4.6: scraping never fails the stage).
func scrapeBounded(ctx context.Context, hits []SearchHit, scraper Scraper, limiter *ProviderLimiter, cfg config.WebSearchConfig) map[string]string {
	excerpts := make(map[string]string)
	if scraper == nil {
		return excerpts
	}

	limit := cfg.ScrapingMaxURLs
	if limit > len(hits) {
		limit = len(hits)
	}
	for i := 0; i < limit; i++ {
		url := hits[i].URL
		var text string
		fetch := func(fctx context.Context) error {
			t, err := scraper.Fetch(fctx, url, cfg.ScrapingTimeout)
			if err != nil {
				return err
			}
			text = t
			return nil
		}

		var err error
		if limiter != nil {
			if werr := limiter.Wait(ctx, "scraper", cfg.ScrapingTimeout); werr != nil {
				continue
			}
			err = limiter.Execute(ctx, "scraper", fetch)
		} else {
			err = fetch(ctx)
		}
		if err != nil {
			logging.Get(logging.CategoryWebSearch).Warn("scrape failed, omitting excerpt")
			continue
		}
		excerpts[url] = text
	}
	return excerpts
}

func webSearchResultToData(r WebSearchResult) map[string]interface{} {
	hits := make([]map[string]interface{}, 0, len(r.Results))
	for _, h := range r.Results {
		hits = append(hits, map[string]interface{}{"url": h.URL, "title": h.Title, "snippet": h.Snippet})
	}
	return map[string]interface{}{
		"query":    r.Query,
		"provider": r.Provider,
		"results":  hits,
		"excerpts": r.Excerpts,
	}
}
