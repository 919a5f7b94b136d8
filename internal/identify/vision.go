package identify

import (
	"context"
	"regexp"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hoshi42/phonox/internal/identify/config"
	"github.com/hoshi42/phonox/internal/identify/logging"
)

var barcodeRE = regexp.MustCompile(`^\d{12,13}$`)

const maxVisionConfidence = 0.95

// ExtractVision implements C3 (§4.3): one multimodal call per image, fanned
// out with a bounded semaphore (§5), reassembled into input order before
// return. Returns the per-image proposals (always len(images) long; a
// failed image yields a zero-value proposal with Confidence 0 rather than
// aborting the batch) and the vision evidence entries (one per image that
// produced a non-failed call), in image-index order (§5 ordering
// guarantee).
func ExtractVision(ctx context.Context, images []ImageBlob, client VisionClient, limiter *ProviderLimiter, cfg config.VisionConfig, clock Clock) ([]MetadataProposal, []Evidence) {
	timer := logging.StartTimer(logging.CategoryVision, "ExtractVision")
	defer timer.Stop()

	proposals := make([]MetadataProposal, len(images))
	ok := make([]bool, len(images))
	if len(images) == 0 {
		return proposals, nil
	}

	policy := RetryPolicy{MaxAttempts: maxInt(cfg.Retries, 1), BaseBackoff: cfg.BackoffBase, MaxBackoff: cfg.BackoffBase * 4}
	if policy.BaseBackoff <= 0 {
		policy = DefaultRetryPolicy()
	}

	extractOne := func(cctx context.Context, i int, variant PromptVariant, priors []MetadataProposal) (MetadataProposal, bool) {
		var proposal MetadataProposal
		err := RetryableCall(cctx, policy, func(rctx context.Context) error {
			if limiter != nil {
				if werr := limiter.Wait(rctx, "vision", cfg.BackoffBase*2); werr != nil {
					return werr
				}
				return limiter.Execute(rctx, "vision", func(ectx context.Context) error {
					p, cerr := client.Extract(ectx, images[i].Bytes, images[i].ContentType, variant, priors)
					if cerr != nil {
						return cerr
					}
					proposal = p
					return nil
				})
			}
			p, cerr := client.Extract(rctx, images[i].Bytes, images[i].ContentType, variant, priors)
			if cerr != nil {
				return cerr
			}
			proposal = p
			return nil
		})
		if err != nil {
			logging.Get(logging.CategoryVision).Warn("vision extraction failed for image",
				zap.Int("image_index", i), zap.Error(err))
			return MetadataProposal{}, false
		}
		proposal = sanitizeProposal(proposal, clock.Now().Year())
		proposal.ImageIndex = i
		proposal.Confidence = clampConfidence(proposal.Confidence)
		return proposal, true
	}

	// Image 0 (front-cover optics) runs alone: images 1+ use its result as
	// prompt context (§4.3), so it must complete before the rest fan out.
	if p, had := extractOne(ctx, 0, PromptVariantFrontCover, nil); had {
		proposals[0] = p
		ok[0] = true
	}

	var frontCoverPrior []MetadataProposal
	if ok[0] {
		frontCoverPrior = []MetadataProposal{proposals[0]}
	}

	if len(images) > 1 {
		sem := make(chan struct{}, maxInt(cfg.Concurrency, 1))
		g, gctx := errgroup.WithContext(ctx)

		for i := 1; i < len(images); i++ {
			i := i
			g.Go(func() error {
				select {
				case sem <- struct{}{}:
				case <-gctx.Done():
					return nil
				}
				defer func() { <-sem }()

				if p, had := extractOne(gctx, i, PromptVariantBackSpineLabel, frontCoverPrior); had {
					proposals[i] = p
					ok[i] = true
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	evidence := make([]Evidence, 0, len(images))
	for i, had := range ok {
		if !had {
			continue
		}
		evidence = append(evidence, Evidence{
			Source:     SourceVision,
			Confidence: proposals[i].Confidence,
			Data:       proposalToData(proposals[i]),
			Timestamp:  clock.Now(),
		})
	}

	return proposals, evidence
}

// clampConfidence enforces §4.3: "clamped to [0, 0.95] (never 1.0 from a
// single image)".
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > maxVisionConfidence {
		return maxVisionConfidence
	}
	return c
}

// sentinelStrings are coerced to null before merging (§4.4 quality
// validation).
var sentinelStrings = map[string]bool{
	"unknown": true, "n/a": true, "error": true, "": true,
}

// sanitizeProposal applies §4.4's advisory quality validation: out-of-range
// years, malformed barcodes, and sentinel strings are coerced to null. This
// never fails the stage; it only cleans the proposal before aggregation.
func sanitizeProposal(p MetadataProposal, currentYear int) MetadataProposal {
	p.Artist = cleanSentinel(p.Artist)
	p.Title = cleanSentinel(p.Title)
	p.Label = cleanSentinel(p.Label)
	p.CatalogNumber = cleanSentinel(p.CatalogNumber)

	if p.Year != nil && (*p.Year < 1900 || *p.Year > currentYear+1) {
		p.Year = nil
	}
	if p.Barcode != nil {
		if !barcodeRE.MatchString(*p.Barcode) {
			p.Barcode = nil
		} else if p.CatalogNumber != nil && *p.CatalogNumber == *p.Barcode {
			// §4.3: barcode must never be merged into catalog_number; if the
			// model echoed the same digits into both, keep only barcode.
			p.CatalogNumber = nil
		}
	}
	return p
}

func cleanSentinel(s *string) *string {
	if s == nil {
		return nil
	}
	if sentinelStrings[lower(*s)] {
		return nil
	}
	return s
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func proposalToData(p MetadataProposal) map[string]interface{} {
	d := map[string]interface{}{"image_index": p.ImageIndex}
	if p.Artist != nil {
		d["artist"] = *p.Artist
	}
	if p.Title != nil {
		d["title"] = *p.Title
	}
	if p.Year != nil {
		d["year"] = *p.Year
	}
	if p.Label != nil {
		d["label"] = *p.Label
	}
	if p.CatalogNumber != nil {
		d["catalog_number"] = *p.CatalogNumber
	}
	if p.Barcode != nil {
		d["barcode"] = *p.Barcode
	}
	if len(p.Genres) > 0 {
		d["genres"] = p.Genres
	}
	if p.Condition != nil {
		d["condition"] = p.Condition.String()
	}
	if p.ConditionNotes != "" {
		d["condition_notes"] = p.ConditionNotes
	}
	return d
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

