package kpi

import (
	"strings"

	"painel/internal/core"
)

var upsellKeywords = []string{"upsell", "bump", "complementar", "adicional", "extra", "plus"}

// Classify labels a product Upsell when its name contains an add-on keyword.
func Classify(product string) core.Classification {
	name := strings.ToLower(product)
	for _, k := range upsellKeywords {
		if strings.Contains(name, k) {
			return core.Upsell
		}
	}
	return core.Principal
}

// ClassifyWith consults overrides, keyed by exact product name, before
// falling back to Classify.
func ClassifyWith(product string, overrides map[string]core.Classification) core.Classification {
	if c, ok := overrides[product]; ok && (c == core.Principal || c == core.Upsell) {
		return c
	}
	return Classify(product)
}
