package identify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/hoshi42/phonox/internal/identify/config"
	"github.com/hoshi42/phonox/internal/identify/logging"
)

// Aggregate implements C4 (§4.4): merges N per-image proposals into one
// AggregatedMetadata. It first computes the deterministic merge (the
// contract the LLM merge must not violate), then — if an LLMClient is
// supplied — asks the model to reconcile naming variants on top of that
// base. Any failure or invalid JSON from the LLM falls back to the pure
// deterministic result (§4.4 "Failure mode").
func Aggregate(ctx context.Context, proposals []MetadataProposal, llm LLMClient, limiter *ProviderLimiter, cfg config.ConfidenceConfig) AggregatedMetadata {
	timer := logging.StartTimer(logging.CategoryAggregation, "Aggregate")
	defer timer.Stop()

	det := deterministicAggregate(proposals, cfg)

	if llm == nil {
		return det
	}

	refined, err := llmRefine(ctx, llm, limiter, det)
	if err != nil {
		logging.Get(logging.CategoryAggregation).Warn("LLM aggregation merge unavailable, using deterministic result")
		return det
	}
	return refined
}

// deterministicAggregate is the pure fallback merge (§4.4).
func deterministicAggregate(proposals []MetadataProposal, cfg config.ConfidenceConfig) AggregatedMetadata {
	agg := AggregatedMetadata{ImageResults: append([]MetadataProposal(nil), proposals...)}

	nonNull := make([]MetadataProposal, 0, len(proposals))
	for _, p := range proposals {
		if hasAnyField(p) {
			nonNull = append(nonNull, p)
		}
	}
	agg.ProcessedImages = len(proposals)

	if len(nonNull) == 0 {
		return agg
	}

	agg.Artist, agg.ImageIndex = pickString(nonNull, func(p MetadataProposal) *string { return p.Artist })
	agg.Title, _ = pickString(nonNull, func(p MetadataProposal) *string { return p.Title })
	agg.Label, _ = pickString(nonNull, func(p MetadataProposal) *string { return p.Label })
	agg.CatalogNumber, _ = pickString(nonNull, func(p MetadataProposal) *string { return p.CatalogNumber })
	agg.Year = pickYear(nonNull)

	agg.AllBarcodes = unionStrings(nonNull, func(p MetadataProposal) *string { return p.Barcode })
	agg.AllCatalogNumbers = unionStrings(nonNull, func(p MetadataProposal) *string { return p.CatalogNumber })
	agg.Barcode = mostFrequent(agg.AllBarcodes, nonNull, func(p MetadataProposal) *string { return p.Barcode })

	maxGenres := cfg.MaxGenres
	if maxGenres <= 0 {
		maxGenres = MaxGenres
	}
	agg.Genres = mergeGenres(nonNull, maxGenres)

	agg.Condition, agg.ConditionNotes = mergeCondition(nonNull)

	agg.Confidence = weightedMeanConfidence(nonNull)

	return agg
}

// hasAnyField reports whether a proposal contributes at least one non-null
// field (used to filter empty proposals out of the merge, and to detect the
// empty_vision condition upstream).
func hasAnyField(p MetadataProposal) bool {
	return p.Artist != nil || p.Title != nil || p.Label != nil ||
		p.CatalogNumber != nil || p.Barcode != nil || len(p.Genres) > 0 ||
		p.Condition != nil || p.Year != nil
}

func nonNullFieldCount(p MetadataProposal) int {
	n := 0
	for _, present := range []bool{p.Artist != nil, p.Title != nil, p.Label != nil, p.CatalogNumber != nil, p.Barcode != nil, len(p.Genres) > 0, p.Condition != nil, p.Year != nil} {
		if present {
			n++
		}
	}
	return n
}

// pickString implements §4.4's scalar tie-break: highest-confidence
// non-null proposal wins; ties broken by (a) higher agreeing-image count,
// (b) later image index.
func pickString(proposals []MetadataProposal, get func(MetadataProposal) *string) (*string, int) {
	type candidate struct {
		value      string
		confidence float64
		count      int
		lastIndex  int
	}
	byValue := map[string]*candidate{}

	for _, p := range proposals {
		v := get(p)
		if v == nil {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(*v))
		c, ok := byValue[key]
		if !ok {
			c = &candidate{value: *v}
			byValue[key] = c
		}
		c.count++
		if p.Confidence > c.confidence {
			c.confidence = p.Confidence
			c.value = *v // prefer the casing from the highest-confidence proposal
		}
		if p.ImageIndex > c.lastIndex {
			c.lastIndex = p.ImageIndex
		}
	}

	if len(byValue) == 0 {
		return nil, 0
	}

	var best *candidate
	for _, c := range byValue {
		if best == nil {
			best = c
			continue
		}
		switch {
		case c.confidence > best.confidence:
			best = c
		case c.confidence == best.confidence && c.count > best.count:
			best = c
		case c.confidence == best.confidence && c.count == best.count && c.lastIndex > best.lastIndex:
			best = c
		}
	}
	return &best.value, best.lastIndex
}

func pickYear(proposals []MetadataProposal) *int {
	type candidate struct {
		value      int
		confidence float64
		count      int
		lastIndex  int
	}
	byValue := map[int]*candidate{}
	for _, p := range proposals {
		if p.Year == nil {
			continue
		}
		c, ok := byValue[*p.Year]
		if !ok {
			c = &candidate{value: *p.Year}
			byValue[*p.Year] = c
		}
		c.count++
		if p.Confidence > c.confidence {
			c.confidence = p.Confidence
		}
		if p.ImageIndex > c.lastIndex {
			c.lastIndex = p.ImageIndex
		}
	}
	if len(byValue) == 0 {
		return nil
	}
	var best *candidate
	for _, c := range byValue {
		if best == nil || c.confidence > best.confidence ||
			(c.confidence == best.confidence && c.count > best.count) ||
			(c.confidence == best.confidence && c.count == best.count && c.lastIndex > best.lastIndex) {
			best = c
		}
	}
	v := best.value
	return &v
}

// unionStrings is the de-duplicated union of a string field across
// proposals, preserving first-seen order (§4.4).
func unionStrings(proposals []MetadataProposal, get func(MetadataProposal) *string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range proposals {
		v := get(p)
		if v == nil || *v == "" {
			continue
		}
		key := strings.ToLower(*v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, *v)
	}
	return out
}

// mostFrequent picks the most frequent value for a field across proposals,
// ties broken by first-seen order in `candidates` (already first-seen
// ordered by unionStrings).
func mostFrequent(candidates []string, proposals []MetadataProposal, get func(MetadataProposal) *string) *string {
	if len(candidates) == 0 {
		return nil
	}
	counts := map[string]int{}
	for _, p := range proposals {
		v := get(p)
		if v == nil {
			continue
		}
		counts[strings.ToLower(*v)]++
	}
	best := candidates[0]
	bestCount := counts[strings.ToLower(best)]
	for _, c := range candidates[1:] {
		if n := counts[strings.ToLower(c)]; n > bestCount {
			best = c
			bestCount = n
		}
	}
	return &best
}

// mergeGenres is the union, deduplicated case-insensitively, capped and
// ordered by frequency (§4.4).
func mergeGenres(proposals []MetadataProposal, maxCount int) []string {
	counts := map[string]int{}
	firstSeen := map[string]string{}
	var order []string
	for _, p := range proposals {
		for _, g := range p.Genres {
			key := strings.ToLower(strings.TrimSpace(g))
			if key == "" {
				continue
			}
			if _, ok := firstSeen[key]; !ok {
				firstSeen[key] = g
				order = append(order, key)
			}
			counts[key]++
		}
	}

	// Stable sort by descending frequency, first-seen order as tiebreak.
	sorted := append([]string(nil), order...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && counts[sorted[j]] > counts[sorted[j-1]]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	if maxCount > 0 && len(sorted) > maxCount {
		sorted = sorted[:maxCount]
	}

	out := make([]string, len(sorted))
	for i, key := range sorted {
		out[i] = firstSeen[key]
	}
	return out
}

// mergeCondition takes the worst grade across proposals and concatenates
// any explicit defect notes in image order (§4.4).
func mergeCondition(proposals []MetadataProposal) (*Condition, string) {
	var conditions []Condition
	var notes []string
	for _, p := range proposals {
		if p.Condition != nil {
			conditions = append(conditions, *p.Condition)
		}
		if p.ConditionNotes != "" {
			notes = append(notes, p.ConditionNotes)
		}
	}
	worst, any := WorstOf(conditions)
	if !any {
		return nil, strings.Join(notes, " ")
	}
	return &worst, strings.Join(notes, " ")
}

// weightedMeanConfidence is the aggregated confidence: the weighted mean of
// per-image confidences, weighted by the number of non-null fields each
// proposal contributes (§4.4).
func weightedMeanConfidence(proposals []MetadataProposal) float64 {
	var weightedSum float64
	var totalWeight float64
	for _, p := range proposals {
		w := float64(nonNullFieldCount(p))
		if w == 0 {
			continue
		}
		weightedSum += p.Confidence * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

// llmAggregationResponse is the strict-JSON shape the aggregation LLM is
// asked to return.
type llmAggregationResponse struct {
	Artist        *string  `json:"artist"`
	Title         *string  `json:"title"`
	Year          *int     `json:"year"`
	Label         *string  `json:"label"`
	CatalogNumber *string  `json:"catalog_number"`
	Genres        []string `json:"genres"`
	Confidence    *float64 `json:"confidence"`
}

// llmRefine asks the aggregation LLM to reconcile naming variants on top of
// the deterministic base, then re-applies the parts of the deterministic
// contract the LLM is not allowed to violate (barcodes, catalog-number
// union, condition, processed-image bookkeeping).
func llmRefine(ctx context.Context, llm LLMClient, limiter *ProviderLimiter, base AggregatedMetadata) (AggregatedMetadata, error) {
	prompt := buildAggregationPrompt(base)

	var text string
	call := func(cctx context.Context) error {
		out, cerr := llm.Complete(cctx, prompt, 512)
		if cerr != nil {
			return cerr
		}
		text = out
		return nil
	}
	var err error
	if limiter != nil {
		err = limiter.Execute(ctx, "llm", call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return AggregatedMetadata{}, err
	}

	var resp llmAggregationResponse
	if jsonErr := json.Unmarshal([]byte(extractJSONObject(text)), &resp); jsonErr != nil {
		return AggregatedMetadata{}, jsonErr
	}

	refined := base
	if resp.Artist != nil {
		refined.Artist = resp.Artist
	}
	if resp.Title != nil {
		refined.Title = resp.Title
	}
	if resp.Year != nil {
		refined.Year = resp.Year
	}
	if resp.Label != nil {
		refined.Label = resp.Label
	}
	if resp.CatalogNumber != nil {
		refined.CatalogNumber = resp.CatalogNumber
	}
	if len(resp.Genres) > 0 {
		refined.Genres = resp.Genres
	}
	if resp.Confidence != nil {
		refined.Confidence = *resp.Confidence
	}
	// Barcodes, all_catalog_numbers, condition and processed_images are
	// deterministic-only fields the LLM merge must not violate (§4.4).
	refined.AllBarcodes = base.AllBarcodes
	refined.Barcode = base.Barcode
	refined.AllCatalogNumbers = base.AllCatalogNumbers
	refined.Condition = base.Condition
	refined.ConditionNotes = base.ConditionNotes
	refined.ProcessedImages = base.ProcessedImages
	refined.ImageResults = base.ImageResults

	return refined, nil
}

func buildAggregationPrompt(base AggregatedMetadata) string {
	var b strings.Builder
	b.WriteString("Reconcile naming variants across these per-image vinyl record proposals ")
	b.WriteString("(e.g. \"PINK FLOYD\" and \"Pink Floyd\" are the same artist) and return strict JSON ")
	b.WriteString("with keys artist, title, year, label, catalog_number, genres, confidence. ")
	b.WriteString("Deterministic base merge:\n")
	if base.Artist != nil {
		b.WriteString("artist: " + *base.Artist + "\n")
	}
	if base.Title != nil {
		b.WriteString("title: " + *base.Title + "\n")
	}
	if base.Label != nil {
		b.WriteString("label: " + *base.Label + "\n")
	}
	return b.String()
}

// extractJSONObject finds the first top-level {...} span in text, tolerant
// of a model wrapping its JSON in prose or code fences.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}
