package identify

import (
	"context"
	"time"
)

// PromptVariant distinguishes the front-cover-optimized prompt (image 0)
// from the back/spine/label-optimized prompt (images 1+) per §4.3.
type PromptVariant int

const (
	PromptVariantFrontCover PromptVariant = iota
	PromptVariantBackSpineLabel
)

// VisionClient is the port C3 depends on. Implementations issue one
// multimodal call per image (§6).
type VisionClient interface {
	Extract(ctx context.Context, imageBytes []byte, contentType string, variant PromptVariant, priorProposals []MetadataProposal) (MetadataProposal, error)
}

// LLMClient is the generic text-completion port used by C4 (aggregation),
// C7 (valuation), and C9 (enhancement) — each configured with its own model
// identifier per §9's "LLM calls are ports, not details".
type LLMClient interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// DiscogsHit is one result from DiscogsClient.Search or the barcode lookup.
type DiscogsHit struct {
	Artist         string
	Title          string
	Year           int
	Label          string
	CatalogNumber  string
	Barcode        string
	Genres         []string
	RelevanceScore float64 // provider-reported fuzzy relevance, [0,1]
	SpotifyURL     string  // from release links, may be empty
}

// DiscogsClient is the §4.5/§6 Discogs port.
type DiscogsClient interface {
	ByBarcode(ctx context.Context, barcode string) (DiscogsHit, bool, error)
	Search(ctx context.Context, artist, title string) ([]DiscogsHit, error)
}

// MusicBrainzHit is one result from MusicBrainzClient.Search.
type MusicBrainzHit struct {
	Artist        string
	Title         string
	Year          int
	Label         string
	CatalogNumber string
	ExactMatch    bool
}

// MusicBrainzClient is the §4.5/§6 MusicBrainz port.
type MusicBrainzClient interface {
	Search(ctx context.Context, artist, title, catalogNumber string) ([]MusicBrainzHit, error)
}

// SearchClient is the §4.6/§6 web search port. Implementations of the
// default stack use Tavily as the primary and DuckDuckGo as the fallback
// (see TavilySearchClient in adapters/search.go).
type SearchClient interface {
	Tavily(ctx context.Context, query string, includeDomains []string, maxResults int) ([]SearchHit, error)
	DuckDuckGo(ctx context.Context, query string, maxResults int) ([]SearchHit, error)
}

// Scraper is the §4.6/§6 page-fetch port.
type Scraper interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (string, error)
}

// Clock is the §6 time port; production code uses RealClock, tests inject a
// fixed/controllable clock.
type Clock interface {
	Now() time.Time
}
