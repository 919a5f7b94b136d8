package identify

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hoshi42/phonox/internal/identify/config"
	"github.com/hoshi42/phonox/internal/identify/logging"
)

// discogsFuzzyMin and discogsFuzzyMax bound the confidence mapped from
// Discogs' fuzzy relevance score (§4.5). The exact numeric mapping is
// explicitly left unpinned by the source per spec.md §9; this spec picks a
// monotone linear mapping and names it so tests can pin it.
const (
	discogsFuzzyMin = 0.55
	discogsFuzzyMax = 0.85
)

// DiscogsFuzzyConfidence maps a Discogs relevance score in [0,1] onto the
// clamped confidence band [0.55, 0.85], linearly and monotonically.
func DiscogsFuzzyConfidence(relevance float64) float64 {
	if relevance < 0 {
		relevance = 0
	}
	if relevance > 1 {
		relevance = 1
	}
	return discogsFuzzyMin + relevance*(discogsFuzzyMax-discogsFuzzyMin)
}

const (
	discogsBarcodeConfidence       = 0.95
	musicBrainzExactConfidence     = 0.80
	musicBrainzPartialConfidence   = 0.65
)

// Lookup implements C5 (§4.5): Discogs and MusicBrainz are queried in
// parallel; a failure or empty result from either is not fatal — the
// caller only gets evidence for the sources that succeeded.
func Lookup(ctx context.Context, meta AggregatedMetadata, discogs DiscogsClient, mb MusicBrainzClient, limiter *ProviderLimiter, cfg config.LookupConfig, clock Clock) []Evidence {
	timer := logging.StartTimer(logging.CategoryLookup, "Lookup")
	defer timer.Stop()

	combinedCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.CombinedTimeoutSeconds)*time.Second)
	defer cancel()

	var discogsEv, mbEv *Evidence

	g, gctx := errgroup.WithContext(combinedCtx)
	g.Go(func() error {
		discogsEv = lookupDiscogs(gctx, meta, discogs, limiter, cfg, clock)
		return nil
	})
	g.Go(func() error {
		mbEv = lookupMusicBrainz(gctx, meta, mb, limiter, cfg, clock)
		return nil
	})
	_ = g.Wait()

	// §5 ordering guarantee: emit in provider-name order (discogs before
	// musicbrainz) regardless of which completed first, so confidence
	// computation is deterministic across runs.
	var out []Evidence
	if discogsEv != nil {
		out = append(out, *discogsEv)
	}
	if mbEv != nil {
		out = append(out, *mbEv)
	}
	return out
}

func lookupDiscogs(ctx context.Context, meta AggregatedMetadata, client DiscogsClient, limiter *ProviderLimiter, cfg config.LookupConfig, clock Clock) *Evidence {
	if client == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	var hit DiscogsHit
	var found bool
	var confidence float64

	policy := DefaultRetryPolicy()
	policy.MaxAttempts = 1 // §4.5: failure/empty is not fatal, not retried here

	lookupFn := func(cctx context.Context) error {
		if meta.Barcode != nil && *meta.Barcode != "" {
			h, ok, err := client.ByBarcode(cctx, *meta.Barcode)
			if err != nil {
				return err
			}
			if ok {
				hit, found, confidence = h, true, discogsBarcodeConfidence
			}
			return nil
		}
		if meta.Artist == nil || meta.Title == nil {
			return nil
		}
		hits, err := client.Search(cctx, *meta.Artist, *meta.Title)
		if err != nil {
			return err
		}
		if len(hits) > 0 {
			hit, found, confidence = hits[0], true, DiscogsFuzzyConfidence(hits[0].RelevanceScore)
		}
		return nil
	}

	err := RetryableCall(callCtx, policy, func(cctx context.Context) error {
		if limiter != nil {
			if werr := limiter.Wait(cctx, "discogs", cfg.RateLimitQueueWait); werr != nil {
				return werr
			}
			return limiter.Execute(cctx, "discogs", lookupFn)
		}
		return lookupFn(cctx)
	})

	if err != nil {
		logging.Get(logging.CategoryLookup).Warn("discogs lookup failed, continuing without evidence")
		return nil
	}
	if !found {
		return nil
	}

	data := discogsHitToData(hit)
	return &Evidence{Source: SourceDiscogs, Confidence: confidence, Data: data, Timestamp: clock.Now()}
}

func lookupMusicBrainz(ctx context.Context, meta AggregatedMetadata, client MusicBrainzClient, limiter *ProviderLimiter, cfg config.LookupConfig, clock Clock) *Evidence {
	if client == nil || meta.Artist == nil || meta.Title == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	catalogNumber := ""
	if meta.CatalogNumber != nil {
		catalogNumber = *meta.CatalogNumber
	}

	var hits []MusicBrainzHit
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = 1

	searchFn := func(cctx context.Context) error {
		h, err := client.Search(cctx, *meta.Artist, *meta.Title, catalogNumber)
		if err != nil {
			return err
		}
		hits = h
		return nil
	}

	err := RetryableCall(callCtx, policy, func(cctx context.Context) error {
		if limiter != nil {
			if werr := limiter.Wait(cctx, "musicbrainz", cfg.RateLimitQueueWait); werr != nil {
				return werr
			}
			return limiter.Execute(cctx, "musicbrainz", searchFn)
		}
		return searchFn(cctx)
	})

	if err != nil {
		logging.Get(logging.CategoryLookup).Warn("musicbrainz lookup failed, continuing without evidence")
		return nil
	}
	if len(hits) == 0 {
		return nil
	}

	confidence := musicBrainzPartialConfidence
	if hits[0].ExactMatch {
		confidence = musicBrainzExactConfidence
	}

	data := map[string]interface{}{
		"artist": hits[0].Artist, "title": hits[0].Title,
	}
	if hits[0].Year != 0 {
		data["year"] = hits[0].Year
	}
	if hits[0].Label != "" {
		data["label"] = hits[0].Label
	}
	if hits[0].CatalogNumber != "" {
		data["catalog_number"] = hits[0].CatalogNumber
	}

	return &Evidence{Source: SourceMusicBrainz, Confidence: confidence, Data: data, Timestamp: clock.Now()}
}

func discogsHitToData(hit DiscogsHit) map[string]interface{} {
	d := map[string]interface{}{
		"artist": hit.Artist, "title": hit.Title,
	}
	if hit.Year != 0 {
		d["year"] = hit.Year
	}
	if hit.Label != "" {
		d["label"] = hit.Label
	}
	if hit.CatalogNumber != "" {
		d["catalog_number"] = hit.CatalogNumber
	}
	if hit.Barcode != "" {
		d["barcode"] = hit.Barcode
	}
	if len(hit.Genres) > 0 {
		d["genres"] = hit.Genres
	}
	if hit.SpotifyURL != "" {
		// §4.5 enrichment: Discogs release links carrying a Spotify URL are
		// attached under data.spotify_url.
		d["spotify_url"] = hit.SpotifyURL
	}
	return d
}
