// Package identifytest provides hand-rolled fakes for every port in
// internal/identify, so both the package's own tests and any external
// caller's integration tests can wire a deterministic pipeline without a
// mocking framework — the same "fakes over mocks" style the rest of the
// module's tests use.
package identifytest

import (
	"context"
	"sync"
	"time"

	"github.com/hoshi42/phonox/internal/identify"
)

// VisionClient returns a fixed MetadataProposal (or error) per image index,
// keyed by the first byte of the image payload — mirroring the convention
// used throughout the package's own _test.go files.
type VisionClient struct {
	mu        sync.Mutex
	Responses map[byte]identify.MetadataProposal
	Errs      map[byte]error
	Calls     []byte
}

func NewVisionClient() *VisionClient {
	return &VisionClient{Responses: map[byte]identify.MetadataProposal{}, Errs: map[byte]error{}}
}

func (f *VisionClient) Extract(ctx context.Context, imageBytes []byte, contentType string, variant identify.PromptVariant, priors []identify.MetadataProposal) (identify.MetadataProposal, error) {
	key := byte(0)
	if len(imageBytes) > 0 {
		key = imageBytes[0]
	}
	f.mu.Lock()
	f.Calls = append(f.Calls, key)
	f.mu.Unlock()
	if err, ok := f.Errs[key]; ok {
		return identify.MetadataProposal{}, err
	}
	return f.Responses[key], nil
}

// LLMClient returns a fixed text response for every Complete call.
type LLMClient struct {
	Text string
	Err  error
}

func (f *LLMClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f.Text, f.Err
}

// DiscogsClient is a scriptable fake implementing identify.DiscogsClient.
type DiscogsClient struct {
	BarcodeHit DiscogsHitResult
	SearchHits []identify.DiscogsHit
	SearchErr  error
}

type DiscogsHitResult struct {
	Hit   identify.DiscogsHit
	Found bool
	Err   error
}

func (f *DiscogsClient) ByBarcode(ctx context.Context, barcode string) (identify.DiscogsHit, bool, error) {
	return f.BarcodeHit.Hit, f.BarcodeHit.Found, f.BarcodeHit.Err
}

func (f *DiscogsClient) Search(ctx context.Context, artist, title string) ([]identify.DiscogsHit, error) {
	return f.SearchHits, f.SearchErr
}

// MusicBrainzClient is a scriptable fake implementing identify.MusicBrainzClient.
type MusicBrainzClient struct {
	Hits []identify.MusicBrainzHit
	Err  error
}

func (f *MusicBrainzClient) Search(ctx context.Context, artist, title, catalogNumber string) ([]identify.MusicBrainzHit, error) {
	return f.Hits, f.Err
}

// SearchClient is a scriptable fake implementing identify.SearchClient.
type SearchClient struct {
	TavilyHits     []identify.SearchHit
	TavilyErr      error
	DuckDuckGoHits []identify.SearchHit
	DuckDuckGoErr  error
}

func (f *SearchClient) Tavily(ctx context.Context, query string, includeDomains []string, maxResults int) ([]identify.SearchHit, error) {
	return f.TavilyHits, f.TavilyErr
}

func (f *SearchClient) DuckDuckGo(ctx context.Context, query string, maxResults int) ([]identify.SearchHit, error) {
	return f.DuckDuckGoHits, f.DuckDuckGoErr
}

// Scraper returns fixed excerpt text (or error) per URL.
type Scraper struct {
	Text map[string]string
	Errs map[string]error
}

func NewScraper() *Scraper {
	return &Scraper{Text: map[string]string{}, Errs: map[string]error{}}
}

func (f *Scraper) Fetch(ctx context.Context, url string, timeout time.Duration) (string, error) {
	if err, ok := f.Errs[url]; ok {
		return "", err
	}
	return f.Text[url], nil
}

// Clock is a controllable identify.Clock for deterministic run timestamps.
type Clock struct {
	At time.Time
}

func (c Clock) Now() time.Time { return c.At }
