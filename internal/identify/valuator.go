package identify

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hoshi42/phonox/internal/identify/config"
	"github.com/hoshi42/phonox/internal/identify/logging"
)

const defaultMarketCondition = "stable"

var valueLineRE = regexp.MustCompile(`[€$]?\s*(\d+(?:[.,]\d+)?)`)

// Valuate implements C7 (§4.7): a single structured LLM call over the
// aggregated metadata and web search evidence, parsed against a fixed
// line-prefixed grammar. A run with no web search results never reaches
// this stage meaningfully — callers pass a nil WebSearchResult and get a
// nil Valuation back rather than a hallucinated price.
func Valuate(ctx context.Context, meta AggregatedMetadata, search *WebSearchResult, llm LLMClient, limiter *ProviderLimiter, cfg config.ModelsConfig) *Valuation {
	timer := logging.StartTimer(logging.CategoryValuation, "Valuate")
	defer timer.Stop()

	if llm == nil || search == nil || len(search.Results) == 0 {
		return nil
	}

	prompt := buildValuationPrompt(meta, *search)
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = 2

	var raw string
	err := RetryableCall(ctx, policy, func(cctx context.Context) error {
		call := func(fctx context.Context) error {
			out, cerr := llm.Complete(fctx, prompt, 400)
			if cerr != nil {
				return cerr
			}
			raw = out
			return nil
		}
		if limiter != nil {
			return limiter.Execute(cctx, "llm", call)
		}
		return call(cctx)
	})
	if err != nil {
		logging.Get(logging.CategoryValuation).Warn("valuation LLM call failed, returning no valuation")
		return nil
	}

	return parseValuation(raw)
}

func buildValuationPrompt(meta AggregatedMetadata, search WebSearchResult) string {
	var sb strings.Builder
	sb.WriteString("Estimate the current resale value of this vinyl record from the search evidence below.\n")
	sb.WriteString("Respond using exactly this line-prefixed format, one value per line:\n")
	sb.WriteString("ESTIMATED_VALUE: €<number>\nPRICE_RANGE_MIN: €<number>\nPRICE_RANGE_MAX: €<number>\n")
	sb.WriteString("MARKET_CONDITION: strong|stable|weak\nFACTORS: <comma-separated>\nEXPLANATION: <one paragraph>\n\n")
	if meta.Artist != nil {
		fmt.Fprintf(&sb, "Artist: %s\n", *meta.Artist)
	}
	if meta.Title != nil {
		fmt.Fprintf(&sb, "Title: %s\n", *meta.Title)
	}
	if meta.Condition != nil {
		fmt.Fprintf(&sb, "Condition: %s\n", meta.Condition.Display())
	}
	sb.WriteString("\nSearch evidence:\n")
	for _, hit := range search.Results {
		fmt.Fprintf(&sb, "- %s: %s\n", hit.Title, hit.Snippet)
		if excerpt, ok := search.Excerpts[hit.URL]; ok && excerpt != "" {
			fmt.Fprintf(&sb, "  %s\n", excerpt)
		}
	}
	return sb.String()
}

// parseValuation implements the §4.7 failure mode: any line that doesn't
// parse is simply dropped rather than aborting the whole valuation, and
// MARKET_CONDITION defaults to "stable" if the model omits or garbles it.
func parseValuation(raw string) *Valuation {
	v := &Valuation{MarketCondition: defaultMarketCondition}

	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "ESTIMATED_VALUE:"):
			if f, ok := extractEUR(line); ok {
				v.EstimatedValueEUR = &f
			}
		case strings.HasPrefix(line, "PRICE_RANGE_MIN:"):
			if f, ok := extractEUR(line); ok {
				v.PriceRangeMinEUR = &f
			}
		case strings.HasPrefix(line, "PRICE_RANGE_MAX:"):
			if f, ok := extractEUR(line); ok {
				v.PriceRangeMaxEUR = &f
			}
		case strings.HasPrefix(line, "MARKET_CONDITION:"):
			cond := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "MARKET_CONDITION:")))
			if cond == "strong" || cond == "stable" || cond == "weak" {
				v.MarketCondition = cond
			}
		case strings.HasPrefix(line, "FACTORS:"):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "FACTORS:"))
			if rest != "" {
				for _, f := range strings.Split(rest, ",") {
					if f = strings.TrimSpace(f); f != "" {
						v.Factors = append(v.Factors, f)
					}
				}
			}
		case strings.HasPrefix(line, "EXPLANATION:"):
			v.Explanation = strings.TrimSpace(strings.TrimPrefix(line, "EXPLANATION:"))
		}
	}
	return v
}

func extractEUR(line string) (float64, bool) {
	m := valueLineRE.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	normalized := strings.Replace(m[1], ",", ".", 1)
	f, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
