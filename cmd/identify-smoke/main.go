// Command identify-smoke exercises the identify library end-to-end with
// fake ports for manual smoke-testing. It is not an HTTP server and does
// not persist anything — per SPEC_FULL.md, the HTTP/persistence/UI layers
// are external collaborators this module never builds.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/hoshi42/phonox/internal/identify"
	"github.com/hoshi42/phonox/internal/identify/config"
	"github.com/hoshi42/phonox/internal/identify/identifytest"
	"github.com/hoshi42/phonox/internal/identify/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to identify/config.Default())")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "identify-smoke: logger init:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.Init(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "identify-smoke: config load:", err)
		os.Exit(1)
	}

	limiter := identify.NewDefaultProviderLimiter(cfg)
	deps := fakeDependencies(cfg, limiter)

	images := []identify.ImageBlob{
		{Bytes: []byte{0x01, 0xFF, 0xD8, 0xFF}, ContentType: "image/jpeg", Filename: "front.jpg"},
		{Bytes: []byte{0x02, 0xFF, 0xD8, 0xFF}, ContentType: "image/jpeg", Filename: "back.jpg"},
	}

	result := identify.Identify(context.Background(), images, deps)

	fmt.Printf("run_id=%s status=%s confidence=%.3f auto_commit=%v needs_review=%v\n",
		result.State.ID, result.Status, result.Confidence, result.AutoCommit, result.NeedsReview)
	if result.State.Error != "" {
		fmt.Printf("error=%s\n", result.State.Error)
	}
	if result.Metadata != nil {
		fmt.Printf("artist=%v title=%v label=%v catalog_number=%v\n",
			deref(result.Metadata.Artist), deref(result.Metadata.Title), deref(result.Metadata.Label), deref(result.Metadata.CatalogNumber))
	}
	if result.State.Valuation != nil && result.State.Valuation.EstimatedValueEUR != nil {
		fmt.Printf("estimated_value_eur=%.2f market_condition=%s\n", *result.State.Valuation.EstimatedValueEUR, result.State.Valuation.MarketCondition)
	}

	for _, h := range identify.ProviderHealth(limiter) {
		fmt.Printf("provider=%s state=%s consecutive_failures=%d\n", h.Provider, h.State, h.Counts.ConsecutiveFailures)
	}
}

func deref(s *string) string {
	if s == nil {
		return "?"
	}
	return *s
}

// fakeDependencies wires a deterministic, self-contained "Danzig - Danzig"
// identification so the smoke program runs with no network access and no
// API keys, per its one job: exercising the pipeline's wiring, not its
// providers.
func fakeDependencies(cfg *config.Config, limiter *identify.ProviderLimiter) identify.Dependencies {
	vision := identifytest.NewVisionClient()
	artist, title, label, catno := "Danzig", "Danzig", "Def American", "DEF 24077"
	vision.Responses[0x01] = identify.MetadataProposal{Artist: &artist, Title: &title, Confidence: 0.9}
	vision.Responses[0x02] = identify.MetadataProposal{Label: &label, CatalogNumber: &catno, Confidence: 0.8}

	discogs := &identifytest.DiscogsClient{
		SearchHits: []identify.DiscogsHit{
			{Artist: artist, Title: title, Label: label, CatalogNumber: catno, RelevanceScore: 0.9},
		},
	}
	musicbrainz := &identifytest.MusicBrainzClient{
		Hits: []identify.MusicBrainzHit{{Artist: artist, Title: title, ExactMatch: true}},
	}
	search := &identifytest.SearchClient{
		TavilyHits: []identify.SearchHit{
			{URL: "https://discogs.com/release/12345", Title: "Danzig - Danzig", Snippet: "sold for 45 EUR, near mint"},
		},
	}
	llm := &identifytest.LLMClient{
		Text: "ESTIMATED_VALUE: €45\nPRICE_RANGE_MIN: €35\nPRICE_RANGE_MAX: €60\n" +
			"MARKET_CONDITION: strong\nFACTORS: first pressing\nEXPLANATION: Popular first pressing.\n",
	}

	return identify.Dependencies{
		Vision:         vision,
		AggregationLLM: llm,
		ValuationLLM:   llm,
		Discogs:        discogs,
		MusicBrainz:    musicbrainz,
		Search:         search,
		Scraper:        identifytest.NewScraper(),
		Limiter:        limiter,
		Clock:          identifytest.Clock{At: time.Now()},
		Config:         cfg,
	}
}
