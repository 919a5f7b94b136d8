package identify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hoshi42/phonox/internal/identify/config"
)

type fakeSearchClient struct {
	tavilyCalls     int
	tavilyResponses [][]SearchHit
	tavilyErr       error
	ddgHits         []SearchHit
	ddgErr          error
}

func (f *fakeSearchClient) Tavily(ctx context.Context, query string, includeDomains []string, maxResults int) ([]SearchHit, error) {
	if f.tavilyErr != nil {
		return nil, f.tavilyErr
	}
	if f.tavilyCalls < len(f.tavilyResponses) {
		r := f.tavilyResponses[f.tavilyCalls]
		f.tavilyCalls++
		return r, nil
	}
	f.tavilyCalls++
	return nil, nil
}

func (f *fakeSearchClient) DuckDuckGo(ctx context.Context, query string, maxResults int) ([]SearchHit, error) {
	return f.ddgHits, f.ddgErr
}

type fakeScraper struct {
	text map[string]string
	err  map[string]error
}

func (f *fakeScraper) Fetch(ctx context.Context, url string, timeout time.Duration) (string, error) {
	if err, ok := f.err[url]; ok {
		return "", err
	}
	return f.text[url], nil
}

func TestWebSearch_TavilyRestrictedSucceedsOnFirstTry(t *testing.T) {
	search := &fakeSearchClient{tavilyResponses: [][]SearchHit{
		{{URL: "https://discogs.com/release/1", Title: "Danzig - Danzig"}},
	}}
	meta := AggregatedMetadata{Artist: str("Danzig"), Title: str("Danzig")}
	ev, result := WebSearch(context.Background(), meta, search, nil, nil, config.Default().WebSearch, RealClock{})
	if ev == nil {
		t.Fatal("want evidence, got nil")
	}
	if result == nil || result.Provider != "tavily" {
		t.Fatalf("want result provider tavily, got %+v", result)
	}
	if ev.Confidence != websearchConfidence {
		t.Fatalf("want fixed confidence %v, got %v", websearchConfidence, ev.Confidence)
	}
	if ev.Data["provider"] != "tavily" {
		t.Fatalf("want provider tavily, got %v", ev.Data["provider"])
	}
	if search.tavilyCalls != 1 {
		t.Fatalf("want exactly 1 tavily call when restricted search succeeds, got %d", search.tavilyCalls)
	}
}

func TestWebSearch_TavilyRetriesUnrestrictedBeforeDuckDuckGo(t *testing.T) {
	search := &fakeSearchClient{tavilyResponses: [][]SearchHit{
		{}, // restricted: empty
		{{URL: "https://allmusic.com/release/2", Title: "Danzig - Danzig"}}, // unrestricted: hit
	}}
	meta := AggregatedMetadata{Artist: str("Danzig"), Title: str("Danzig")}
	ev, _ := WebSearch(context.Background(), meta, search, nil, nil, config.Default().WebSearch, RealClock{})
	if ev == nil {
		t.Fatal("want evidence from unrestricted retry, got nil")
	}
	if search.tavilyCalls != 2 {
		t.Fatalf("want 2 tavily calls (restricted then unrestricted), got %d", search.tavilyCalls)
	}
}

func TestWebSearch_FallsBackToDuckDuckGoWhenTavilyFails(t *testing.T) {
	search := &fakeSearchClient{
		tavilyErr: errors.New("fatal: unauthorized"),
		ddgHits:   []SearchHit{{URL: "https://example.com/x", Title: "hit"}},
	}
	meta := AggregatedMetadata{Artist: str("Danzig"), Title: str("Danzig")}
	ev, _ := WebSearch(context.Background(), meta, search, nil, nil, config.Default().WebSearch, RealClock{})
	if ev == nil {
		t.Fatal("want duckduckgo evidence, got nil")
	}
	if ev.Data["provider"] != "duckduckgo" {
		t.Fatalf("want provider duckduckgo, got %v", ev.Data["provider"])
	}
}

func TestWebSearch_NoResultsFromAnyProviderYieldsNoEvidence(t *testing.T) {
	search := &fakeSearchClient{}
	meta := AggregatedMetadata{Artist: str("Danzig"), Title: str("Danzig")}
	ev, result := WebSearch(context.Background(), meta, search, nil, nil, config.Default().WebSearch, RealClock{})
	if ev != nil || result != nil {
		t.Fatalf("want nil evidence/result when every provider is empty, got %+v / %+v", ev, result)
	}
}

func TestWebSearch_MissingArtistOrTitleSkipsSearch(t *testing.T) {
	search := &fakeSearchClient{tavilyResponses: [][]SearchHit{{{URL: "should-not-be-called"}}}}
	ev, result := WebSearch(context.Background(), AggregatedMetadata{}, search, nil, nil, config.Default().WebSearch, RealClock{})
	if ev != nil || result != nil {
		t.Fatalf("want nil evidence/result without artist+title, got %+v / %+v", ev, result)
	}
	if search.tavilyCalls != 0 {
		t.Fatalf("want search never invoked, got %d calls", search.tavilyCalls)
	}
}

func TestWebSearch_ScrapeFailureIsSoftAndOmitsExcerpt(t *testing.T) {
	search := &fakeSearchClient{tavilyResponses: [][]SearchHit{
		{
			{URL: "https://discogs.com/release/1", Title: "ok"},
			{URL: "https://discogs.com/release/2", Title: "broken"},
		},
	}}
	scraper := &fakeScraper{
		text: map[string]string{"https://discogs.com/release/1": "near mint pressing, 1988 reissue"},
		err:  map[string]error{"https://discogs.com/release/2": errors.New("fatal: 404 not found")},
	}
	meta := AggregatedMetadata{Artist: str("Danzig"), Title: str("Danzig")}
	cfg := config.Default().WebSearch
	cfg.ScrapingMaxURLs = 2

	ev, _ := WebSearch(context.Background(), meta, search, scraper, nil, cfg, RealClock{})
	if ev == nil {
		t.Fatal("want evidence, got nil")
	}
	excerpts, ok := ev.Data["excerpts"].(map[string]string)
	if !ok {
		t.Fatalf("want excerpts map in evidence data, got %T", ev.Data["excerpts"])
	}
	if len(excerpts) != 1 {
		t.Fatalf("want 1 excerpt (the other scrape failed soft), got %d: %+v", len(excerpts), excerpts)
	}
	if excerpts["https://discogs.com/release/1"] == "" {
		t.Fatal("want excerpt text for the page that scraped successfully")
	}
}

func TestDedupeByURL_RemovesDuplicateURLsKeepingFirst(t *testing.T) {
	hits := []SearchHit{
		{URL: "https://a.com", Title: "first"},
		{URL: "https://a.com", Title: "duplicate"},
		{URL: "https://b.com", Title: "second"},
	}
	out := dedupeByURL(hits)
	if len(out) != 2 {
		t.Fatalf("want 2 deduped hits, got %d", len(out))
	}
	if out[0].Title != "first" {
		t.Fatalf("want first occurrence kept, got %v", out[0].Title)
	}
}
