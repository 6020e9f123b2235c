package openai

import (
	"sort"
	"strings"

	"github.com/entrhq/forage/pkg/types"
)

// Price is the USD cost per one million tokens.
type Price struct {
	Input       float64 `yaml:"input" json:"input"`
	CachedInput float64 `yaml:"cached_input" json:"cached_input"`
	Output      float64 `yaml:"output" json:"output"`
}

// prices maps model name prefixes to list prices.
var prices = map[string]Price{
	"gpt-4o-mini":  {Input: 0.15, CachedInput: 0.075, Output: 0.60},
	"gpt-4o":       {Input: 2.50, CachedInput: 1.25, Output: 10.00},
	"gpt-4.1-nano": {Input: 0.10, CachedInput: 0.025, Output: 0.40},
	"gpt-4.1-mini": {Input: 0.40, CachedInput: 0.10, Output: 1.60},
	"gpt-4.1":      {Input: 2.00, CachedInput: 0.50, Output: 8.00},
	"o4-mini":      {Input: 1.10, CachedInput: 0.275, Output: 4.40},
	"o3":           {Input: 2.00, CachedInput: 0.50, Output: 8.00},
}

// pricePrefixes lists the table keys longest first so dated model names
// like gpt-4o-mini-2024-07-18 match their most specific entry.
var pricePrefixes = func() []string {
	keys := make([]string, 0, len(prices))
	for k := range prices {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return keys
}()

// LookupPrice returns the list price for model.
func LookupPrice(model string) (Price, bool) {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	for _, prefix := range pricePrefixes {
		if strings.HasPrefix(model, prefix) {
			return prices[prefix], true
		}
	}
	return Price{}, false
}

// Cost computes the USD cost of usage. Cached tokens are a subset of input tokens.
func (p Price) Cost(u types.Usage) float64 {
	cached := u.CacheReadTokens
	if cached > u.InputTokens {
		cached = u.InputTokens
	}
	uncached := u.InputTokens - cached
	return (float64(uncached)*p.Input + float64(cached)*p.CachedInput + float64(u.OutputTokens)*p.Output) / 1_000_000
}
