// services/pricing_service.go
package services

import (
	"math"
	"strings"
)

// Defaults when a model is missing from both tables (USD per 1K tokens).
const (
	defaultCostPer1KInput  = 0.0025
	defaultCostPer1KOutput = 0.010
)

// ModelPrice holds per-1K-token USD rates for one model.
type ModelPrice struct {
	Input  float64
	Output float64
}

type prefixPrice struct {
	Prefix string
	Price  ModelPrice
}

// PricingTable resolves model rates exact-first, then by prefix in declared
// order. Prefix order matters: earlier entries win.
type PricingTable struct {
	Exact    map[string]ModelPrice
	Prefixes []prefixPrice
}

// DefaultPricingTable returns the built-in rate card. External surcharges
// such as deep-research browsing fees are not modeled.
func DefaultPricingTable() PricingTable {
	return PricingTable{
		Exact: map[string]ModelPrice{
			"gpt-4o-mini-search-preview": {Input: 0.00015, Output: 0.0006},
			"gpt-4o-search-preview":      {Input: 0.00015, Output: 0.0006},

			"gpt-5-mini-2025-08-07": {Input: 0.0006, Output: 0.0024},

			"sonar":               {Input: 0.0010, Output: 0.0010},
			"sonar-pro":           {Input: 0.0030, Output: 0.0150},
			"sonar-reasoning":     {Input: 0.0010, Output: 0.0050},
			"sonar-reasoning-pro": {Input: 0.0020, Output: 0.0080},
			"sonar-deep-research": {Input: 0.0020, Output: 0.0080},
		},
		Prefixes: []prefixPrice{
			{Prefix: "gpt-4o-mini-search-preview", Price: ModelPrice{Input: 0.00015, Output: 0.0006}},
			{Prefix: "gpt-4o-search-preview", Price: ModelPrice{Input: 0.00015, Output: 0.0006}},
			{Prefix: "gpt-5-mini-2025-", Price: ModelPrice{Input: 0.0006, Output: 0.0024}},

			{Prefix: "sonar-", Price: ModelPrice{Input: 0.0030, Output: 0.0150}},
			{Prefix: "perplexity-", Price: ModelPrice{Input: defaultCostPer1KInput, Output: defaultCostPer1KOutput}},
		},
	}
}

type pricingService struct {
	table PricingTable
}

// NewPricingService builds a cost estimator over the given rate card.
func NewPricingService(table PricingTable) PricingService {
	return &pricingService{table: table}
}

func (s *pricingService) PricesForModel(model string) (float64, float64) {
	m := strings.TrimSpace(model)
	if m == "" {
		return defaultCostPer1KInput, defaultCostPer1KOutput
	}

	if p, ok := s.table.Exact[m]; ok {
		return p.Input, p.Output
	}

	for _, entry := range s.table.Prefixes {
		if strings.HasPrefix(m, entry.Prefix) {
			return entry.Price.Input, entry.Price.Output
		}
	}

	return defaultCostPer1KInput, defaultCostPer1KOutput
}

// EstimateCost prefers the adapter-reported cost when present, otherwise
// derives one from token counts and the rate card.
func (s *pricingService) EstimateCost(inputTokens, outputTokens int, reported *float64, model string) float64 {
	if reported != nil {
		return *reported
	}

	inPrice, outPrice := s.PricesForModel(model)
	cost := float64(max(inputTokens, 0))/1000.0*inPrice + float64(max(outputTokens, 0))/1000.0*outPrice
	return math.Round(cost*1e6) / 1e6
}
