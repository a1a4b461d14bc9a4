// internal/store/metrics_repo.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brandsight/brandsight-workflows/internal/models"
)

type metricsRepo struct {
	db *Client
}

// NewMetricsRepo creates the Postgres-backed daily metrics repository.
func NewMetricsRepo(db *Client) MetricsRepository {
	return &metricsRepo{db: db}
}

type metricsRow struct {
	Date                 time.Time `db:"date"`
	Engine               string    `db:"engine"`
	BrandContext         string    `db:"brand_context"`
	TotalRuns            int       `db:"total_runs"`
	TotalCostUSD         float64   `db:"total_cost_usd"`
	TotalCitations       int       `db:"total_citations"`
	UniqueDomains        int       `db:"unique_domains"`
	TopDomains           []byte    `db:"top_domains"`
	BrandMentions        int       `db:"brand_mentions"`
	CompetitorMentions   int       `db:"competitor_mentions"`
	ShareOfVoicePct      float64   `db:"share_of_voice_pct"`
	AvgVisibilityScore   float64   `db:"avg_visibility_score"`
	HighQualityCitations int       `db:"high_quality_citations"`
	LastUpdated          string    `db:"last_updated"`
	DataVersion          string    `db:"data_version"`
}

func (repo *metricsRepo) Upsert(ctx context.Context, rows []*models.DailyMetrics) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := repo.db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin metrics upsert: %w", err)
	}
	defer tx.Rollback()

	// The unique constraint on the composite key plus ON CONFLICT makes
	// recomputation idempotent without any advisory locking.
	const upsertSQL = `
		INSERT INTO daily_metrics (
			date, engine, brand_context, total_runs, total_cost_usd,
			total_citations, unique_domains, top_domains,
			brand_mentions, competitor_mentions, share_of_voice_pct,
			avg_visibility_score, high_quality_citations, last_updated, data_version
		) VALUES (
			:date, :engine, :brand_context, :total_runs, :total_cost_usd,
			:total_citations, :unique_domains, :top_domains,
			:brand_mentions, :competitor_mentions, :share_of_voice_pct,
			:avg_visibility_score, :high_quality_citations, :last_updated, :data_version
		)
		ON CONFLICT (date, engine, brand_context) DO UPDATE SET
			total_runs = EXCLUDED.total_runs,
			total_cost_usd = EXCLUDED.total_cost_usd,
			total_citations = EXCLUDED.total_citations,
			unique_domains = EXCLUDED.unique_domains,
			top_domains = EXCLUDED.top_domains,
			brand_mentions = EXCLUDED.brand_mentions,
			competitor_mentions = EXCLUDED.competitor_mentions,
			share_of_voice_pct = EXCLUDED.share_of_voice_pct,
			avg_visibility_score = EXCLUDED.avg_visibility_score,
			high_quality_citations = EXCLUDED.high_quality_citations,
			last_updated = EXCLUDED.last_updated,
			data_version = EXCLUDED.data_version`

	for _, m := range rows {
		topDomains := m.TopDomains
		if topDomains == nil {
			topDomains = []models.TopDomain{}
		}
		topDomainsJSON, err := json.Marshal(topDomains)
		if err != nil {
			return fmt.Errorf("failed to marshal top domains: %w", err)
		}

		row := metricsRow{
			Date:                 m.Date,
			Engine:               m.Engine,
			BrandContext:         string(m.BrandContext),
			TotalRuns:            m.TotalRuns,
			TotalCostUSD:         m.TotalCostUSD,
			TotalCitations:       m.TotalCitations,
			UniqueDomains:        m.UniqueDomains,
			TopDomains:           topDomainsJSON,
			BrandMentions:        m.BrandMentions,
			CompetitorMentions:   m.CompetitorMentions,
			ShareOfVoicePct:      m.ShareOfVoicePct,
			AvgVisibilityScore:   m.AvgVisibilityScore,
			HighQualityCitations: m.HighQualityCitations,
			LastUpdated:          m.LastUpdated,
			DataVersion:          m.DataVersion,
		}

		if _, err := tx.NamedExecContext(ctx, upsertSQL, row); err != nil {
			return fmt.Errorf("failed to upsert metrics for %s/%s/%s: %w",
				m.Date.Format("2006-01-02"), m.Engine, m.BrandContext, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metrics upsert: %w", err)
	}
	return nil
}

func (repo *metricsRepo) GetRange(ctx context.Context, start, end time.Time, engine string, brandContext models.BrandContext) ([]*models.DailyMetrics, error) {
	query := `
		SELECT date, engine, brand_context, total_runs, total_cost_usd,
			total_citations, unique_domains, top_domains,
			brand_mentions, competitor_mentions, share_of_voice_pct,
			avg_visibility_score, high_quality_citations, last_updated, data_version
		FROM daily_metrics
		WHERE date >= $1 AND date <= $2`
	args := []any{start, end}

	if engine != "" {
		args = append(args, engine)
		query += fmt.Sprintf(" AND engine = $%d", len(args))
	}
	if brandContext != "" {
		args = append(args, string(brandContext))
		query += fmt.Sprintf(" AND brand_context = $%d", len(args))
	}
	query += ` ORDER BY date, engine, brand_context`

	var rows []metricsRow
	if err := repo.db.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get daily metrics: %w", err)
	}

	out := make([]*models.DailyMetrics, 0, len(rows))
	for _, row := range rows {
		m := &models.DailyMetrics{
			Date:                 row.Date,
			Engine:               row.Engine,
			BrandContext:         models.BrandContext(row.BrandContext),
			TotalRuns:            row.TotalRuns,
			TotalCostUSD:         row.TotalCostUSD,
			TotalCitations:       row.TotalCitations,
			UniqueDomains:        row.UniqueDomains,
			BrandMentions:        row.BrandMentions,
			CompetitorMentions:   row.CompetitorMentions,
			ShareOfVoicePct:      row.ShareOfVoicePct,
			AvgVisibilityScore:   row.AvgVisibilityScore,
			HighQualityCitations: row.HighQualityCitations,
			LastUpdated:          row.LastUpdated,
			DataVersion:          row.DataVersion,
		}
		if len(row.TopDomains) > 0 {
			if err := json.Unmarshal(row.TopDomains, &m.TopDomains); err != nil {
				return nil, fmt.Errorf("malformed top_domains for %s/%s/%s: %w",
					row.Date.Format("2006-01-02"), row.Engine, row.BrandContext, err)
			}
		}
		out = append(out, m)
	}
	return out, nil
}
