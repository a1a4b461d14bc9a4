// internal/models/models.go
package models

import (
	"time"
)

// BrandContext identifies the aggregation slice a DailyMetrics row belongs to.
type BrandContext string

const (
	BrandContextOverall     BrandContext = "overall"
	BrandContextBrand       BrandContext = "brand"
	BrandContextCompetitors BrandContext = "competitors"
)

// DataVersion is stamped on every computed DailyMetrics row for schema evolution.
const DataVersion = "1.0"

const (
	RunStatusOK    = "ok"
	RunStatusError = "error"
)

// EntityMention is a single canonical entity found in response text.
// FirstPos is the character offset of the earliest occurrence of any form
// (canonical or alias) that resolved to this name.
type EntityMention struct {
	Name     string `json:"name"`
	FirstPos int    `json:"first_pos"`
}

// NormalizedEntity is the persisted, typed form of an extracted entity.
type NormalizedEntity struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	IsBrand      bool   `json:"is_brand"`
	IsCompetitor bool   `json:"is_competitor"`
}

// Citation is one normalized source reference from a response.
// Domain is always derived from URL, never supplied independently.
type Citation struct {
	URL    string  `json:"url"`
	Domain string  `json:"domain"`
	Rank   int     `json:"rank"` // 1-based order among citations in the response
	Title  *string `json:"title"`
}

// Run is the central record: one query execution against one engine.
type Run struct {
	ID            string    `json:"id"`
	TS            time.Time `json:"ts"`
	Engine        string    `json:"engine"`
	Model         string    `json:"model"`
	PromptVersion string    `json:"prompt_version"`
	Intent        string    `json:"intent"`
	IsBranded     bool      `json:"is_branded"`
	Query         string    `json:"query"`
	Status        string    `json:"status"`

	LatencyMS    int     `json:"latency_ms"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`

	RawExcerpt string          `json:"raw_excerpt"`
	Entities   []EntityMention `json:"entities"`
	Links      []string        `json:"links"`
	Domains    []string        `json:"domains"`

	// Cached enrichment, populated once (at write time or on first read)
	// and immutable afterwards.
	CitationsEnriched  []Citation         `json:"citations_enriched"`
	EntitiesNormalized []NormalizedEntity `json:"entities_normalized"`

	BrandMentioned bool `json:"brand_mentioned"`
	BrandRank      *int `json:"brand_rank"` // 1-based rank among mentioned entities, nil if absent

	// Soft delete: excluded from listings, still counted in cost rollups.
	Deleted bool `json:"deleted"`
}

// TopDomain is one entry of a DailyMetrics top-domain leaderboard.
type TopDomain struct {
	Domain       string  `json:"domain"`
	Count        int     `json:"count"`
	QualityScore float64 `json:"quality_score"`
}

// DailyMetrics is the aggregate row keyed by (date, engine, brand_context).
// It holds no state that is not recomputable from the underlying runs.
type DailyMetrics struct {
	Date         time.Time    `json:"date"`
	Engine       string       `json:"engine"`
	BrandContext BrandContext `json:"brand_context"`

	TotalRuns    int     `json:"total_runs"`
	TotalCostUSD float64 `json:"total_cost_usd"`

	TotalCitations int         `json:"total_citations"`
	UniqueDomains  int         `json:"unique_domains"`
	TopDomains     []TopDomain `json:"top_domains"`

	BrandMentions      int     `json:"brand_mentions"`
	CompetitorMentions int     `json:"competitor_mentions"`
	ShareOfVoicePct    float64 `json:"share_of_voice_pct"`

	AvgVisibilityScore   float64 `json:"avg_visibility_score"`
	HighQualityCitations int     `json:"high_quality_citations"` // quality_score > 0.7
	LastUpdated          string  `json:"last_updated"`           // ISO timestamp
	DataVersion          string  `json:"data_version"`
}

// MetricsSummary is the rolling-window rollup returned by GetMetricsSummary.
type MetricsSummary struct {
	PeriodDays         int                       `json:"period_days"`
	StartDate          string                    `json:"start_date"`
	EndDate            string                    `json:"end_date"`
	TotalRuns          int                       `json:"total_runs"`
	TotalCostUSD       float64                   `json:"total_cost_usd"`
	TotalCitations     int                       `json:"total_citations"`
	AvgVisibilityScore float64                   `json:"avg_visibility_score"`
	BrandShareOfVoice  float64                   `json:"brand_share_of_voice"`
	TopDomains         []TopDomain               `json:"top_domains"`
	ByEngine           map[string]EngineBreakout `json:"by_engine"`
}

// EngineBreakout is the per-engine slice of a metrics summary.
type EngineBreakout struct {
	Runs      int     `json:"runs"`
	Cost      float64 `json:"cost"`
	Citations int     `json:"citations"`
}

// CostRollup aggregates spend across runs, soft-deleted ones included.
type CostRollup struct {
	TotalCostUSD float64                    `json:"total_cost_usd"`
	TotalRuns    int                        `json:"total_runs"`
	ByEngine     map[string]CostRollupSlice `json:"by_engine"`
	ByModel      map[string]CostRollupSlice `json:"by_model"`
}

// CostRollupSlice is one engine's or model's share of a cost rollup.
type CostRollupSlice struct {
	Cost float64 `json:"cost"`
	Runs int     `json:"runs"`
}

// LookupMatch identifies an existing same-day run for a repeated query.
type LookupMatch struct {
	ID     string    `json:"id"`
	Engine string    `json:"engine"`
	TS     time.Time `json:"ts"`
}
