// internal/store/run_repo.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brandsight/brandsight-workflows/internal/models"
)

type runRepo struct {
	db *Client
}

// NewRunRepo creates the Postgres-backed run repository.
func NewRunRepo(db *Client) RunRepository {
	return &runRepo{db: db}
}

// runRow is the storage shape of a Run. The JSON columns are marshaled and
// unmarshaled here and nowhere else, so application code always sees the
// typed form.
type runRow struct {
	ID                 string         `db:"id"`
	TS                 time.Time      `db:"ts"`
	Engine             string         `db:"engine"`
	Model              string         `db:"model"`
	PromptVersion      string         `db:"prompt_version"`
	Intent             string         `db:"intent"`
	IsBranded          bool           `db:"is_branded"`
	Query              string         `db:"query"`
	Status             string         `db:"status"`
	LatencyMS          int            `db:"latency_ms"`
	InputTokens        int            `db:"input_tokens"`
	OutputTokens       int            `db:"output_tokens"`
	CostUSD            float64        `db:"cost_usd"`
	RawExcerpt         sql.NullString `db:"raw_excerpt"`
	Entities           []byte         `db:"entities"`
	Links              []byte         `db:"links"`
	Domains            []byte         `db:"domains"`
	CitationsEnriched  []byte         `db:"citations_enriched"`
	EntitiesNormalized []byte         `db:"entities_normalized"`
	BrandMentioned     bool           `db:"brand_mentioned"`
	BrandRank          *int           `db:"brand_rank"`
	Deleted            bool           `db:"deleted"`
}

const runColumns = `id, ts, engine, model, prompt_version, intent, is_branded, query, status,
	latency_ms, input_tokens, output_tokens, cost_usd, raw_excerpt,
	entities, links, domains, citations_enriched, entities_normalized,
	brand_mentioned, brand_rank, deleted`

func toRunRow(run *models.Run) (*runRow, error) {
	entities, err := json.Marshal(orEmptyMentions(run.Entities))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entities: %w", err)
	}
	links, err := json.Marshal(orEmptyStrings(run.Links))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal links: %w", err)
	}
	domains, err := json.Marshal(orEmptyStrings(run.Domains))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal domains: %w", err)
	}
	citations, err := json.Marshal(orEmptyCitations(run.CitationsEnriched))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal citations: %w", err)
	}
	normalized, err := json.Marshal(orEmptyEntities(run.EntitiesNormalized))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal normalized entities: %w", err)
	}

	return &runRow{
		ID:                 run.ID,
		TS:                 run.TS,
		Engine:             run.Engine,
		Model:              run.Model,
		PromptVersion:      run.PromptVersion,
		Intent:             run.Intent,
		IsBranded:          run.IsBranded,
		Query:              run.Query,
		Status:             run.Status,
		LatencyMS:          run.LatencyMS,
		InputTokens:        run.InputTokens,
		OutputTokens:       run.OutputTokens,
		CostUSD:            run.CostUSD,
		RawExcerpt:         sql.NullString{String: run.RawExcerpt, Valid: run.RawExcerpt != ""},
		Entities:           entities,
		Links:              links,
		Domains:            domains,
		CitationsEnriched:  citations,
		EntitiesNormalized: normalized,
		BrandMentioned:     run.BrandMentioned,
		BrandRank:          run.BrandRank,
		Deleted:            run.Deleted,
	}, nil
}

// toRecord converts a row back to the typed form. Decode failures on cached
// fields do not fail the record; they land in EnrichmentErr so aggregation
// can count them instead of silently dropping data.
func (r *runRow) toRecord() *RunRecord {
	rec := &RunRecord{
		Run: models.Run{
			ID:             r.ID,
			TS:             r.TS,
			Engine:         r.Engine,
			Model:          r.Model,
			PromptVersion:  r.PromptVersion,
			Intent:         r.Intent,
			IsBranded:      r.IsBranded,
			Query:          r.Query,
			Status:         r.Status,
			LatencyMS:      r.LatencyMS,
			InputTokens:    r.InputTokens,
			OutputTokens:   r.OutputTokens,
			CostUSD:        r.CostUSD,
			RawExcerpt:     r.RawExcerpt.String,
			BrandMentioned: r.BrandMentioned,
			BrandRank:      r.BrandRank,
			Deleted:        r.Deleted,
		},
	}

	decode := func(field string, data []byte, out any) {
		if len(data) == 0 {
			return
		}
		if err := json.Unmarshal(data, out); err != nil && rec.EnrichmentErr == nil {
			rec.EnrichmentErr = fmt.Errorf("run %s: malformed %s: %w", r.ID, field, err)
		}
	}

	decode("entities", r.Entities, &rec.Entities)
	decode("links", r.Links, &rec.Links)
	decode("domains", r.Domains, &rec.Domains)
	decode("citations_enriched", r.CitationsEnriched, &rec.CitationsEnriched)
	decode("entities_normalized", r.EntitiesNormalized, &rec.EntitiesNormalized)
	return rec
}

func (repo *runRepo) Create(ctx context.Context, run *models.Run) error {
	row, err := toRunRow(run)
	if err != nil {
		return err
	}

	_, err = repo.db.DB.NamedExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (:id, :ts, :engine, :model, :prompt_version, :intent, :is_branded, :query, :status,
			:latency_ms, :input_tokens, :output_tokens, :cost_usd, :raw_excerpt,
			:entities, :links, :domains, :citations_enriched, :entities_normalized,
			:brand_mentioned, :brand_rank, :deleted)`, row)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

func (repo *runRepo) Get(ctx context.Context, id string) (*RunRecord, error) {
	var row runRow
	err := repo.db.DB.GetContext(ctx, &row, `
		SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return row.toRecord(), nil
}

func (repo *runRepo) List(ctx context.Context, limit, offset int) ([]*RunRecord, error) {
	var rows []runRow
	err := repo.db.DB.SelectContext(ctx, &rows, `
		SELECT `+runColumns+` FROM runs
		WHERE deleted = FALSE
		ORDER BY ts DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return toRecords(rows), nil
}

func (repo *runRepo) ListWindow(ctx context.Context, start, end time.Time, engine string) ([]*RunRecord, error) {
	query := `
		SELECT ` + runColumns + ` FROM runs
		WHERE deleted = FALSE AND ts >= $1 AND ts < $2`
	args := []any{start, end}
	if engine != "" {
		query += ` AND engine = $3`
		args = append(args, engine)
	}
	query += ` ORDER BY ts ASC`

	var rows []runRow
	if err := repo.db.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list runs in window: %w", err)
	}
	return toRecords(rows), nil
}

func (repo *runRepo) SaveEnrichment(ctx context.Context, id string, citations []models.Citation, entities []models.NormalizedEntity) error {
	citationsJSON, err := json.Marshal(orEmptyCitations(citations))
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}
	entitiesJSON, err := json.Marshal(orEmptyEntities(entities))
	if err != nil {
		return fmt.Errorf("failed to marshal normalized entities: %w", err)
	}

	// Enrichment is write-once: only rows still missing a cached value take
	// the backfill.
	_, err = repo.db.DB.ExecContext(ctx, `
		UPDATE runs
		SET citations_enriched = $2, entities_normalized = $3
		WHERE id = $1
		  AND (jsonb_array_length(coalesce(citations_enriched, '[]'::jsonb)) = 0
		   OR  jsonb_array_length(coalesce(entities_normalized, '[]'::jsonb)) = 0)`,
		id, citationsJSON, entitiesJSON)
	if err != nil {
		return fmt.Errorf("failed to save enrichment for run %s: %w", id, err)
	}
	return nil
}

func (repo *runRepo) SoftDelete(ctx context.Context, id string) error {
	res, err := repo.db.DB.ExecContext(ctx, `
		UPDATE runs SET deleted = TRUE WHERE id = $1 AND deleted = FALSE`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

func (repo *runRepo) CostRollup(ctx context.Context) (*models.CostRollup, error) {
	rollup := &models.CostRollup{
		ByEngine: make(map[string]models.CostRollupSlice),
		ByModel:  make(map[string]models.CostRollupSlice),
	}

	err := repo.db.DB.QueryRowxContext(ctx, `
		SELECT coalesce(sum(cost_usd), 0), count(id) FROM runs`).
		Scan(&rollup.TotalCostUSD, &rollup.TotalRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to compute cost totals: %w", err)
	}

	type sliceRow struct {
		Key  sql.NullString `db:"key"`
		Cost float64        `db:"cost"`
		Runs int            `db:"runs"`
	}

	var byEngine []sliceRow
	err = repo.db.DB.SelectContext(ctx, &byEngine, `
		SELECT engine AS key, coalesce(sum(cost_usd), 0) AS cost, count(id) AS runs
		FROM runs GROUP BY engine`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute per-engine costs: %w", err)
	}
	for _, row := range byEngine {
		rollup.ByEngine[keyOrUnknown(row.Key)] = models.CostRollupSlice{Cost: row.Cost, Runs: row.Runs}
	}

	var byModel []sliceRow
	err = repo.db.DB.SelectContext(ctx, &byModel, `
		SELECT model AS key, coalesce(sum(cost_usd), 0) AS cost, count(id) AS runs
		FROM runs GROUP BY model`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute per-model costs: %w", err)
	}
	for _, row := range byModel {
		rollup.ByModel[keyOrUnknown(row.Key)] = models.CostRollupSlice{Cost: row.Cost, Runs: row.Runs}
	}

	return rollup, nil
}

func toRecords(rows []runRow) []*RunRecord {
	records := make([]*RunRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toRecord())
	}
	return records
}

func keyOrUnknown(key sql.NullString) string {
	if key.Valid && key.String != "" {
		return key.String
	}
	return "unknown"
}

// JSONB columns store empty arrays, not nulls, so reads never branch on shape.

func orEmptyStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func orEmptyMentions(v []models.EntityMention) []models.EntityMention {
	if v == nil {
		return []models.EntityMention{}
	}
	return v
}

func orEmptyCitations(v []models.Citation) []models.Citation {
	if v == nil {
		return []models.Citation{}
	}
	return v
}

func orEmptyEntities(v []models.NormalizedEntity) []models.NormalizedEntity {
	if v == nil {
		return []models.NormalizedEntity{}
	}
	return v
}
