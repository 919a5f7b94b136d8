package identify

// Weights is the confidence-weight table used by the gate (§3, §4.8). This
// spec selects the later, 6-source table noted in spec.md §9 because it is
// the only one that covers every declared Source string; an earlier
// 4-source {0.45, 0.25, 0.20, 0.10} table also appears in the originating
// system and is intentionally not used here (see DESIGN.md).
var Weights = map[Source]float64{
	SourceDiscogs:     0.40,
	SourceMusicBrainz: 0.20,
	SourceVision:      0.18,
	SourceWebSearch:   0.12,
	SourceImage:       0.05,
	SourceUserInput:   0.05,
}

// unknownSourceWeight is the weight contributed by a recognized-but-absent
// source string per §4.8: "unknown sources contribute 0.10 weight, 0 if
// unrecognized". Here "unrecognized" means a Source value outside the
// canonical set above; WeightFor returns 0 for those, 0.10 for the sentinel
// below.
const unknownSourceWeight = 0.10

// SourceUnknown is a sentinel a caller may attach to ad hoc evidence whose
// provenance doesn't fit the canonical set but should still count toward
// the gate at the reduced "unknown" weight.
const SourceUnknown Source = "unknown"

// WeightFor returns the gate weight for a source, implementing §4.8's rule
// for unknown/unrecognized sources.
func WeightFor(s Source) float64 {
	if w, ok := Weights[s]; ok {
		return w
	}
	if s == SourceUnknown {
		return unknownSourceWeight
	}
	return 0
}

// Confidence thresholds (§3).
const (
	ThresholdAutoCommit       = 0.90
	ThresholdRecommendReview  = 0.85
	ThresholdManualReview     = 0.70
	ThresholdFallbackTrigger  = 0.75
	ThresholdManualEntry      = 0.50
)

// MaxGenres is the default cap on the aggregated/merged genre list (§4.4,
// §4.9), overridable via Config.MaxGenres.
const MaxGenres = 8
