package identify

import (
	"context"
	"testing"

	"github.com/hoshi42/phonox/internal/identify/config"
)

func TestValuate_ParsesFixedGrammarLines(t *testing.T) {
	llm := llmClientFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "ESTIMATED_VALUE: €45.50\nPRICE_RANGE_MIN: €35\nPRICE_RANGE_MAX: €60\n" +
			"MARKET_CONDITION: strong\nFACTORS: rare pressing, first edition\n" +
			"EXPLANATION: First pressing in strong demand among collectors.\n", nil
	})
	meta := AggregatedMetadata{Artist: str("Danzig"), Title: str("Danzig")}
	search := &WebSearchResult{Results: []SearchHit{{URL: "https://discogs.com/x", Title: "Danzig LP", Snippet: "sold for 50"}}}

	v := Valuate(context.Background(), meta, search, llm, nil, config.Default().Models)
	if v == nil {
		t.Fatal("want valuation, got nil")
	}
	if v.EstimatedValueEUR == nil || *v.EstimatedValueEUR != 45.5 {
		t.Fatalf("want estimated value 45.5, got %v", v.EstimatedValueEUR)
	}
	if v.PriceRangeMinEUR == nil || *v.PriceRangeMinEUR != 35 {
		t.Fatalf("want min 35, got %v", v.PriceRangeMinEUR)
	}
	if v.MarketCondition != "strong" {
		t.Fatalf("want market_condition strong, got %v", v.MarketCondition)
	}
	if len(v.Factors) != 2 {
		t.Fatalf("want 2 factors, got %v", v.Factors)
	}
}

func TestValuate_MalformedMarketConditionDefaultsToStable(t *testing.T) {
	llm := llmClientFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "ESTIMATED_VALUE: €20\nMARKET_CONDITION: extremely hot right now\n", nil
	})
	meta := AggregatedMetadata{Artist: str("X"), Title: str("Y")}
	search := &WebSearchResult{Results: []SearchHit{{URL: "https://x.com"}}}

	v := Valuate(context.Background(), meta, search, llm, nil, config.Default().Models)
	if v == nil || v.MarketCondition != defaultMarketCondition {
		t.Fatalf("want default market_condition %q on garbled input, got %+v", defaultMarketCondition, v)
	}
}

func TestValuate_NoSearchResultsYieldsNilValuation(t *testing.T) {
	llm := llmClientFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		t.Fatal("LLM must not be called when there is no search evidence")
		return "", nil
	})
	meta := AggregatedMetadata{Artist: str("X"), Title: str("Y")}
	v := Valuate(context.Background(), meta, nil, llm, nil, config.Default().Models)
	if v != nil {
		t.Fatalf("want nil valuation without search results, got %+v", v)
	}
}

func TestValuate_IsIdempotentOverFixedLLMText(t *testing.T) {
	fixedText := "ESTIMATED_VALUE: €100\nPRICE_RANGE_MIN: €80\nPRICE_RANGE_MAX: €120\n" +
		"MARKET_CONDITION: weak\nFACTORS: reissue\nEXPLANATION: Common reissue, low demand.\n"
	llm := llmClientFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return fixedText, nil
	})
	meta := AggregatedMetadata{Artist: str("X"), Title: str("Y")}
	search := &WebSearchResult{Results: []SearchHit{{URL: "https://x.com"}}}

	v1 := Valuate(context.Background(), meta, search, llm, nil, config.Default().Models)
	v2 := Valuate(context.Background(), meta, search, llm, nil, config.Default().Models)

	if *v1.EstimatedValueEUR != *v2.EstimatedValueEUR || v1.MarketCondition != v2.MarketCondition {
		t.Fatalf("want identical valuations for identical LLM text, got %+v and %+v", v1, v2)
	}
}
