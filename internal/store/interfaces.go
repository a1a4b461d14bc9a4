// internal/store/interfaces.go
package store

import (
	"context"
	"time"

	"github.com/brandsight/brandsight-workflows/internal/models"
)

// RunRecord is a Run read back from storage. EnrichmentErr is non-nil when a
// cached enrichment field held JSON that no longer decodes; the run itself is
// still usable and still counts toward run/cost totals.
type RunRecord struct {
	models.Run
	EnrichmentErr error
}

// RunRepository persists and reads Run records.
type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	Get(ctx context.Context, id string) (*RunRecord, error)
	// List returns non-deleted runs, newest first.
	List(ctx context.Context, limit, offset int) ([]*RunRecord, error)
	// ListWindow returns non-deleted runs with start <= ts < end, optionally
	// filtered by normalized engine name.
	ListWindow(ctx context.Context, start, end time.Time, engine string) ([]*RunRecord, error)
	// SaveEnrichment backfills the cached enrichment fields. Enrichment is
	// write-once: rows that already carry enrichment are left untouched.
	SaveEnrichment(ctx context.Context, id string, citations []models.Citation, entities []models.NormalizedEntity) error
	SoftDelete(ctx context.Context, id string) error
	// CostRollup sums cost and run counts across ALL runs, soft-deleted
	// included, broken out by engine and by model.
	CostRollup(ctx context.Context) (*models.CostRollup, error)
}

// MetricsRepository persists and reads DailyMetrics rows.
type MetricsRepository interface {
	// Upsert writes all rows in one transaction: every row either inserts or
	// overwrites the row with the same (date, engine, brand_context) key.
	// All-or-nothing; an empty slice is a no-op.
	Upsert(ctx context.Context, rows []*models.DailyMetrics) error
	// GetRange returns rows with start <= date <= end ordered by
	// (date, engine, brand_context); engine and brandContext filters are
	// optional ("" disables).
	GetRange(ctx context.Context, start, end time.Time, engine string, brandContext models.BrandContext) ([]*models.DailyMetrics, error)
}
