package llm

import (
	"strings"

	"leasesum/internal/domain"
)

// TokenPrice is the USD cost per token for a model.
type TokenPrice struct {
	Input  float64
	Output float64
}

// TokenPrices is keyed by model name prefix. Longer prefixes win.
var TokenPrices = map[string]TokenPrice{
	"gpt-4o":          {Input: 0.0000025, Output: 0.00003},
	"gpt-4o-mini":     {Input: 0.00000015, Output: 0.0000006},
	"o3-mini":         {Input: 0.0000011, Output: 0.0000044},
	"claude-sonnet-4": {Input: 0.000003, Output: 0.000015},
	"claude-haiku":    {Input: 0.0000008, Output: 0.000004},
	"gemini-2.0":      {Input: 0.0000001, Output: 0.0000004},
	"gemini-2.5":      {Input: 0.00000125, Output: 0.00001},
}

// PriceFor returns the price for model, or the zero price when unknown.
func PriceFor(model string) (TokenPrice, bool) {
	var best string
	for prefix := range TokenPrices {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return TokenPrice{}, false
	}
	return TokenPrices[best], true
}

// fallbackPriceModel prices models missing from TokenPrices.
const fallbackPriceModel = "gpt-4o"

// EstimateCost returns the USD cost of usage billed at model's rate. Unknown
// models are billed at gpt-4o rates so the cost guard never under-counts to zero.
func EstimateCost(model string, usage domain.Usage) float64 {
	price, ok := PriceFor(model)
	if !ok {
		price = TokenPrices[fallbackPriceModel]
	}
	return float64(usage.InputTokens)*price.Input + float64(usage.OutputTokens)*price.Output
}
