package identify

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hoshi42/phonox/internal/identify/config"
	"github.com/hoshi42/phonox/internal/identify/ierr"
	"github.com/hoshi42/phonox/internal/identify/logging"
)

// Dependencies bundles every external port the orchestrator wires together
// (§6: "LLM calls are ports, not details" generalized to every collaborator).
// A production caller supplies real adapters; tests supply hand-rolled
// fakes — both satisfy the same interfaces.
type Dependencies struct {
	Vision         VisionClient
	AggregationLLM LLMClient
	ValuationLLM   LLMClient
	Discogs        DiscogsClient
	MusicBrainz    MusicBrainzClient
	Search         SearchClient
	Scraper        Scraper
	// Limiter is nil-safe: every stage falls back to unthrottled,
	// breaker-free calls when it's nil. Production callers should wire
	// NewDefaultProviderLimiter(cfg) explicitly rather than rely on a
	// silent default.
	Limiter *ProviderLimiter
	Clock          Clock
	Config         *config.Config
}

func (d Dependencies) clock() Clock {
	if d.Clock != nil {
		return d.Clock
	}
	return RealClock{}
}

func (d Dependencies) config() *config.Config {
	if d.Config != nil {
		return d.Config
	}
	return config.Default()
}

// Identify runs the full C1-C8 pipeline (§4.1) over a fresh set of images:
// validate, extract vision per-image, aggregate, look up metadata,
// conditionally web-search and value, then gate the result.
func Identify(ctx context.Context, images []ImageBlob, deps Dependencies) RunResult {
	cfg := deps.config()
	clock := deps.clock()

	runCtx, cancel := context.WithDeadline(ctx, clock.Now().Add(cfg.Run.IdentifyDeadline))
	defer cancel()

	state := RunState{
		ID:        uuid.NewString(),
		Images:    images,
		StartedAt: clock.Now(),
		Deadline:  clock.Now().Add(cfg.Run.IdentifyDeadline),
	}
	log := logging.ForRun(logging.CategoryOrchestrator, state.ID)

	if err := ValidateImages(images, cfg.Validator); err != nil {
		log.Warn("image validation failed")
		state.Error = err.Error()
		return finalize(state)
	}
	state.ValidationPassed = true

	imageEvidence := Evidence{
		Source:     SourceImage,
		Confidence: 1.0,
		Data:       map[string]interface{}{"image_count": len(images)},
		Timestamp:  clock.Now(),
	}

	proposals, visionEvidence := ExtractVision(runCtx, images, deps.Vision, deps.Limiter, cfg.Vision, clock)
	state.VisionExtraction = proposals
	if runCtx.Err() != nil {
		state.Error = errors.Join(runCtx.Err(), ierr.ErrDeadlineExceeded).Error()
		return finalize(state)
	}

	agg := Aggregate(runCtx, proposals, deps.AggregationLLM, deps.Limiter, cfg.Confidence)
	if isEmptyAggregate(agg) {
		log.Warn("vision extraction produced no usable metadata")
		state.Error = ierr.ErrEmptyVision.Error()
		return finalize(state)
	}
	state.AggregatedVision = &agg

	lookupEvidence := Lookup(runCtx, agg, deps.Discogs, deps.MusicBrainz, deps.Limiter, cfg.Lookup, clock)
	state.MetadataLookup = lookupEvidence

	chain := buildEvidenceChain(imageEvidence, visionEvidence, lookupEvidence, nil)
	decision := Score(chain)

	// §4.1: web search only runs when the lookup-stage confidence hasn't
	// already cleared the fallback trigger, to avoid spending an external
	// call the gate doesn't need.
	if decision.Confidence < cfg.Confidence.FallbackTrigger {
		webEv, webResult := WebSearch(runCtx, agg, deps.Search, deps.Scraper, deps.Limiter, cfg.WebSearch, clock)
		if webEv != nil {
			state.WebSearchResults = webResult
			chain = buildEvidenceChain(imageEvidence, visionEvidence, lookupEvidence, webEv)
			decision = Score(chain)
		}
	}

	// §4.1: valuation only runs when the record has enough identity to
	// search on (artist+title); otherwise the LLM would be asked to value
	// nothing.
	if agg.Artist != nil && agg.Title != nil {
		state.Valuation = Valuate(runCtx, agg, state.WebSearchResults, deps.ValuationLLM, deps.Limiter, cfg.Models)
	}

	state.EvidenceChain = chain
	state.Confidence = decision.Confidence
	state.AutoCommit = decision.AutoCommit
	state.NeedsReview = decision.NeedsReview
	state.ReviewReason = decision.ReviewReason

	if runCtx.Err() != nil && state.Error == "" {
		state.Error = errors.Join(runCtx.Err(), ierr.ErrDeadlineExceeded).Error()
	}

	return finalize(state)
}

// Reanalyze implements §4.1's reanalyze(existing_record, new_images)
// operation: runs the identification pipeline fresh over new_images, then
// enhances the existing stored record with the freshly aggregated metadata
// rather than discarding what's already known. Only the enhanced record's
// metadata is returned (RunResult.Metadata); the record-level fields the
// enhancer keeps or merges, such as spotify_url and condition, are not part
// of the RunResult.
func Reanalyze(ctx context.Context, existing StoredRecord, newImages []ImageBlob, deps Dependencies) RunResult {
	cfg := deps.config()
	clock := deps.clock()

	runCtx, cancel := context.WithDeadline(ctx, clock.Now().Add(cfg.Run.ReanalyzeDeadline))
	defer cancel()

	result := Identify(runCtx, newImages, deps)
	if result.Metadata == nil {
		return result
	}

	enhanced := Enhance(runCtx, existing, *result.Metadata, cfg.Confidence)
	merged := enhanced.Record.Metadata
	result.Metadata = &merged
	result.State.AggregatedVision = &merged
	return result
}

// isEmptyAggregate reports whether a vision aggregation produced nothing
// usable at all — the empty_vision terminal condition (§4.3/§7).
func isEmptyAggregate(agg AggregatedMetadata) bool {
	return agg.Artist == nil && agg.Title == nil && agg.Label == nil &&
		agg.CatalogNumber == nil && agg.Barcode == nil && len(agg.Genres) == 0 &&
		agg.Condition == nil && agg.Confidence == 0
}

func buildEvidenceChain(image Evidence, vision, lookup []Evidence, web *Evidence) []Evidence {
	chain := make([]Evidence, 0, 1+len(vision)+len(lookup)+1)
	chain = append(chain, image)
	chain = append(chain, vision...)
	chain = append(chain, lookup...)
	if web != nil {
		chain = append(chain, *web)
	}
	return chain
}

// finalize derives the RunResult from a completed or failed RunState.
func finalize(state RunState) RunResult {
	return RunResult{
		State:    state,
		Metadata: state.AggregatedVision,
		Status:   state.Status(),
	}
}
