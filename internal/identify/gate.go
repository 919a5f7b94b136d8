package identify

// Score implements the confidence gate (§4.8). It is pure: the same
// evidence chain always yields the same GateDecision (§8 testable
// property).
func Score(chain []Evidence) GateDecision {
	var weightedSum, totalWeight float64
	for _, ev := range chain {
		w := WeightFor(ev.Source)
		if w == 0 {
			continue
		}
		weightedSum += ev.Confidence * w
		totalWeight += w
	}

	var confidence float64
	if totalWeight > 0 {
		confidence = weightedSum / totalWeight
		if confidence > 1.0 {
			confidence = 1.0
		}
	}

	return route(confidence)
}

// route applies §4.8's routing table to a computed confidence value. The
// four bands are contiguous; the two extremes (>= 0.85 and < 0.50) are
// checked first, and the default branch covers 0.50 <= x < 0.70.
func route(confidence float64) GateDecision {
	d := GateDecision{Confidence: confidence}

	switch {
	case confidence >= ThresholdRecommendReview: // >= 0.85
		d.AutoCommit = true
		d.NeedsReview = false
	case confidence < ThresholdManualEntry: // < 0.50
		d.AutoCommit = false
		d.NeedsReview = true
		d.ReviewReason = ReviewReasonManualEntry
	case confidence >= ThresholdManualReview: // 0.70 <= x < 0.85
		d.AutoCommit = false
		d.NeedsReview = true
		d.ReviewReason = ReviewReasonConfidence
	default: // 0.50 <= x < 0.70
		d.AutoCommit = false
		d.NeedsReview = true
		d.ReviewReason = ReviewReasonLowConfidence
	}
	return d
}
