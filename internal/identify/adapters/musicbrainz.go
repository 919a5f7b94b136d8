package adapters

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/hoshi42/phonox/internal/identify"
)

// MusicBrainzHTTPClient implements identify.MusicBrainzClient over the
// MusicBrainz web service, grounded on the pack's resty HTTP client style.
type MusicBrainzHTTPClient struct {
	http *resty.Client
}

// NewMusicBrainzHTTPClient builds a MusicBrainzHTTPClient. MusicBrainz
// requires a descriptive User-Agent per its usage policy.
func NewMusicBrainzHTTPClient(userAgent string) *MusicBrainzHTTPClient {
	if userAgent == "" {
		userAgent = "phonox-identify/1.0"
	}
	return &MusicBrainzHTTPClient{
		http: resty.New().
			SetBaseURL("https://musicbrainz.org/ws/2").
			SetHeader("User-Agent", userAgent),
	}
}

type mbReleaseSearchResponse struct {
	Releases []mbRelease `json:"releases"`
}

type mbRelease struct {
	Title        string         `json:"title"`
	Date         string         `json:"date"`
	Score        int            `json:"score"`
	LabelInfo    []mbLabelInfo  `json:"label-info"`
	ArtistCredit []mbArtistName `json:"artist-credit"`
}

type mbLabelInfo struct {
	CatalogNumber string   `json:"catalog-number"`
	Label         mbLabel  `json:"label"`
}

type mbLabel struct {
	Name string `json:"name"`
}

type mbArtistName struct {
	Name string `json:"name"`
}

// Search queries MusicBrainz's release search, treating a perfect score
// (100) as an exact match per §4.5's exact-vs-partial distinction.
func (c *MusicBrainzHTTPClient) Search(ctx context.Context, artist, title, catalogNumber string) ([]identify.MusicBrainzHit, error) {
	query := fmt.Sprintf(`artist:"%s" AND release:"%s"`, artist, title)
	if catalogNumber != "" {
		query += fmt.Sprintf(` AND catno:"%s"`, catalogNumber)
	}

	var out mbReleaseSearchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"query": query, "fmt": "json"}).
		SetResult(&out).
		Get("/release")
	if err != nil {
		return nil, fmt.Errorf("musicbrainz: search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("musicbrainz: search: status %d", resp.StatusCode())
	}

	hits := make([]identify.MusicBrainzHit, 0, len(out.Releases))
	for _, r := range out.Releases {
		hit := identify.MusicBrainzHit{
			Title:      r.Title,
			ExactMatch: r.Score >= 100,
		}
		if len(r.ArtistCredit) > 0 {
			hit.Artist = r.ArtistCredit[0].Name
		}
		if len(r.LabelInfo) > 0 {
			hit.Label = r.LabelInfo[0].Label.Name
			hit.CatalogNumber = r.LabelInfo[0].CatalogNumber
		}
		if len(r.Date) >= 4 {
			fmt.Sscanf(r.Date[:4], "%d", &hit.Year)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
