package adapters

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/hoshi42/phonox/internal/identify"
)

// DiscogsHTTPClient implements identify.DiscogsClient over the Discogs
// public API, grounded on the pack's resty-based HTTP client style
// (kirbs-btw-spotify-playlist-dataset).
type DiscogsHTTPClient struct {
	http  *resty.Client
	token string
}

// NewDiscogsHTTPClient builds a DiscogsHTTPClient. token is the Discogs
// personal access token (§6: DISCOGS_TOKEN, read from env, never logged).
func NewDiscogsHTTPClient(token string) *DiscogsHTTPClient {
	return &DiscogsHTTPClient{
		http:  resty.New().SetBaseURL("https://api.discogs.com"),
		token: token,
	}
}

type discogsBarcodeSearchResponse struct {
	Results []discogsSearchResult `json:"results"`
}

type discogsSearchResult struct {
	Title    string   `json:"title"`
	Year     string   `json:"year"`
	Label    []string `json:"label"`
	CatNo    string   `json:"catno"`
	Barcode  []string `json:"barcode"`
	Genre    []string `json:"genre"`
	Score    float64  `json:"community_score"`
	ResURL   string   `json:"resource_url"`
}

func (r discogsSearchResult) toHit() identify.DiscogsHit {
	hit := identify.DiscogsHit{
		Title:         r.Title,
		CatalogNumber: r.CatNo,
		Genres:        r.Genre,
	}
	if len(r.Label) > 0 {
		hit.Label = r.Label[0]
	}
	if len(r.Barcode) > 0 {
		hit.Barcode = r.Barcode[0]
	}
	fmt.Sscanf(r.Year, "%d", &hit.Year)
	return hit
}

// ByBarcode looks up a release by UPC/EAN barcode.
func (c *DiscogsHTTPClient) ByBarcode(ctx context.Context, barcode string) (identify.DiscogsHit, bool, error) {
	var out discogsBarcodeSearchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"barcode": barcode, "token": c.token}).
		SetResult(&out).
		Get("/database/search")
	if err != nil {
		return identify.DiscogsHit{}, false, fmt.Errorf("discogs: barcode lookup: %w", err)
	}
	if resp.IsError() {
		return identify.DiscogsHit{}, false, fmt.Errorf("discogs: barcode lookup: status %d", resp.StatusCode())
	}
	if len(out.Results) == 0 {
		return identify.DiscogsHit{}, false, nil
	}
	hit := out.Results[0].toHit()
	hit.Barcode = barcode
	return hit, true, nil
}

// Search looks up releases by artist and title, returning hits ordered by
// Discogs' own relevance ranking (§4.5: community_score maps onto
// identify.DiscogsHit.RelevanceScore, clamped to [0,1]).
func (c *DiscogsHTTPClient) Search(ctx context.Context, artist, title string) ([]identify.DiscogsHit, error) {
	var out discogsBarcodeSearchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"artist": artist,
			"release_title": title,
			"type":   "release",
			"token":  c.token,
		}).
		SetResult(&out).
		Get("/database/search")
	if err != nil {
		return nil, fmt.Errorf("discogs: search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("discogs: search: status %d", resp.StatusCode())
	}

	hits := make([]identify.DiscogsHit, 0, len(out.Results))
	for _, r := range out.Results {
		hit := r.toHit()
		hit.Artist = artist
		hit.RelevanceScore = clamp01(r.Score)
		hits = append(hits, hit)
	}
	return hits, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
