// services/interfaces.go
package services

import (
	"context"
	"time"

	"github.com/brandsight/brandsight-workflows/internal/models"
)

// ExtractService finds canonical entity mentions in response text.
// Implementations are pure and safe for concurrent use.
type ExtractService interface {
	// ExtractEntities returns one mention per canonical name, earliest
	// occurrence first. Empty input yields an empty list, never an error.
	ExtractEntities(text string) []models.EntityMention
	// NormalizeEntities converts mentions to the persisted typed form.
	NormalizeEntities(mentions []models.EntityMention) []models.NormalizedEntity
	// BrandPosition reports whether the tracked brand appears among the
	// mentions and its 1-based rank when it does.
	BrandPosition(mentions []models.EntityMention) (bool, *int)
	BrandName() string
}

// CitationService extracts, normalizes, enriches and scores citations.
type CitationService interface {
	// ExtractLinks returns unique cleaned URLs in first-seen order; markdown
	// link targets are captured before bare URLs.
	ExtractLinks(text string) []string
	// ToDomains lowercases each link's host and strips a leading "www.",
	// skipping links that fail to parse.
	ToDomains(links []string) []string
	// NormalizeURL strips tracking params and the fragment, lowercases
	// scheme/host and strips a leading "www.". Idempotent.
	NormalizeURL(raw string) string
	// EnrichCitations normalizes, dedupes and ranks links, fetching titles
	// best-effort for at most maxTitles entries.
	EnrichCitations(ctx context.Context, links []string, maxTitles int) []models.Citation
	// QualityScore returns the heuristic citation quality in [0, 1]. The
	// value is a relative ranking signal, stable in ordering only.
	QualityScore(citation models.Citation) float64
}

// PricingService estimates run cost from token counts when the engine
// adapter does not report one.
type PricingService interface {
	// PricesForModel resolves (input, output) USD per 1K tokens using
	// exact match, then prefix match, then the default fallback.
	PricesForModel(model string) (float64, float64)
	// EstimateCost prefers the adapter-reported cost when present.
	EstimateCost(inputTokens, outputTokens int, reported *float64, model string) float64
}

// QueryRequest describes one query to execute across engines.
type QueryRequest struct {
	Query         string
	Intent        string
	Engines       []string
	PromptVersion string
	Temperature   float64
}

// RunnerService executes queries through the engine boundary and persists
// the resulting runs.
type RunnerService interface {
	// RunQuery executes the request against every requested engine. A
	// failing engine produces an error-status run, not a failed batch.
	RunQuery(ctx context.Context, req QueryRequest) ([]*models.Run, error)
	// GetRun returns a run with enrichment populated, backfilling and
	// caching it on first read.
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*models.Run, error)
	DeleteRun(ctx context.Context, id string) error
	GetCostRollup(ctx context.Context) (*models.CostRollup, error)
}

// MetricsService computes, persists and reads daily aggregate metrics.
type MetricsService interface {
	// ComputeDailyMetrics builds the overall/brand/competitors rows per
	// engine for one calendar date. Zero runs yields an empty list.
	ComputeDailyMetrics(ctx context.Context, date time.Time, engine string) ([]*models.DailyMetrics, error)
	// UpsertDailyMetrics writes rows idempotently, all-or-nothing.
	UpsertDailyMetrics(ctx context.Context, rows []*models.DailyMetrics) error
	GetDailyMetrics(ctx context.Context, start, end time.Time, engine string, brandContext models.BrandContext) ([]*models.DailyMetrics, error)
	GetMetricsSummary(ctx context.Context, days int) (*models.MetricsSummary, error)
}

// InsightsService provides the read-only analytical views over runs.
type InsightsService interface {
	VisibilityReport(ctx context.Context, days int, engine string) (*VisibilityReport, error)
	CoverageGaps(ctx context.Context, days int, engine string) (*CoverageGapReport, error)
	BrandIntent(ctx context.Context, days int, engine string) (*BrandIntentReport, error)
	EntityAssociations(ctx context.Context, days int, engine string) (*EntityAssociationReport, error)
}

// LLMExtractService extracts source references with a structured-output
// model call; used when regex extraction finds no links in a response that
// clearly references sources.
type LLMExtractService interface {
	ExtractSources(ctx context.Context, answerText string) ([]string, error)
}

// LookupService finds existing same-day runs for a repeated query so
// callers can reuse results instead of paying for a duplicate execution.
type LookupService interface {
	// IndexRun registers a run for later duplicate lookup. Best-effort.
	IndexRun(ctx context.Context, run *models.Run) error
	// FindSameDayRuns returns the latest same-day run per engine matching
	// the query text, exact normalized match first, then embedding
	// similarity above the duplicate threshold.
	FindSameDayRuns(ctx context.Context, queryText string, engineFilter []string) ([]models.LookupMatch, error)
}

// SearchService indexes runs for the dashboard's filtered table view.
type SearchService interface {
	IndexRun(ctx context.Context, run *models.Run) error
	SearchRuns(ctx context.Context, queryText, engine string, limit int) ([]RunHit, error)
}

// RunHit is one search result from the run index.
type RunHit struct {
	ID     string    `json:"id"`
	Query  string    `json:"query"`
	Engine string    `json:"engine"`
	Model  string    `json:"model"`
	TS     time.Time `json:"ts"`
}
