package identify

import "testing"

func TestScore_Routing(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		chain        []Evidence
		wantAuto     bool
		wantReview   bool
		wantReason   ReviewReason
	}{
		{
			name: "high_confidence_auto_commit",
			chain: []Evidence{
				{Source: SourceDiscogs, Confidence: 0.95},
				{Source: SourceMusicBrainz, Confidence: 0.90},
				{Source: SourceVision, Confidence: 0.95},
			},
			wantAuto:   true,
			wantReview: false,
		},
		{
			name: "exactly_point_85_is_inclusive_auto_commit",
			chain: []Evidence{
				{Source: SourceDiscogs, Confidence: 0.85},
			},
			wantAuto:   true,
			wantReview: false,
		},
		{
			name:  "empty_chain_is_zero_confidence_manual_entry",
			chain: nil,
			wantAuto:   false,
			wantReview: true,
			wantReason: ReviewReasonManualEntry,
		},
		{
			name: "unrecognized_source_contributes_nothing",
			chain: []Evidence{
				{Source: Source("carrier_pigeon"), Confidence: 1.0},
			},
			wantAuto:   false,
			wantReview: true,
			wantReason: ReviewReasonManualEntry,
		},
		{
			name: "unknown_sentinel_source_contributes_reduced_weight",
			// (0.50*0.40 + 0.95*0.10) / (0.40 + 0.10) = 0.59: the unknown
			// entry pulls the mean up only by its 0.10 weight.
			chain: []Evidence{
				{Source: SourceDiscogs, Confidence: 0.50},
				{Source: SourceUnknown, Confidence: 0.95},
			},
			wantAuto:   false,
			wantReview: true,
			wantReason: ReviewReasonLowConfidence,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Score(tc.chain)
			if got.AutoCommit != tc.wantAuto {
				t.Errorf("AutoCommit = %v, want %v (confidence=%v)", got.AutoCommit, tc.wantAuto, got.Confidence)
			}
			if got.NeedsReview != tc.wantReview {
				t.Errorf("NeedsReview = %v, want %v", got.NeedsReview, tc.wantReview)
			}
			if tc.wantReason != "" && got.ReviewReason != tc.wantReason {
				t.Errorf("ReviewReason = %q, want %q", got.ReviewReason, tc.wantReason)
			}
		})
	}
}

func TestScore_BoundaryJustBelowAutoCommit(t *testing.T) {
	t.Parallel()
	// Weighted mean of 0.849 using a single discogs source: with one entry
	// the weight cancels out and the mean is the entry's own confidence.
	chain := []Evidence{{Source: SourceDiscogs, Confidence: 0.849 * (1 / Weights[SourceDiscogs]) * Weights[SourceDiscogs]}}
	// Simplify: a single source's weighted mean equals its own confidence.
	chain[0].Confidence = 0.849
	got := Score(chain)
	if got.AutoCommit {
		t.Fatalf("expected auto_commit=false at confidence 0.849, got AutoCommit=true (confidence=%v)", got.Confidence)
	}
	if !got.NeedsReview || got.ReviewReason != ReviewReasonConfidence {
		t.Fatalf("expected needs_review with reason=confidence, got review=%v reason=%q", got.NeedsReview, got.ReviewReason)
	}
}

func TestScore_Deterministic(t *testing.T) {
	t.Parallel()
	chain := []Evidence{
		{Source: SourceDiscogs, Confidence: 0.85},
		{Source: SourceVision, Confidence: 0.6},
		{Source: SourceWebSearch, Confidence: 0.6},
	}
	first := Score(chain)
	second := Score(append([]Evidence(nil), chain...))
	if first != second {
		t.Fatalf("gate is not pure: %+v != %+v", first, second)
	}
}

func TestWeights_SumToOne(t *testing.T) {
	t.Parallel()
	var sum float64
	for _, w := range Weights {
		sum += w
	}
	const epsilon = 1e-9
	if diff := sum - 1.0; diff > epsilon || diff < -epsilon {
		t.Fatalf("weights must sum to 1.0, got %v", sum)
	}
}
