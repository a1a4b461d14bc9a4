// services/runner_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brandsight/brandsight-workflows/internal/config"
	"github.com/brandsight/brandsight-workflows/internal/engines"
	"github.com/brandsight/brandsight-workflows/internal/models"
	"github.com/brandsight/brandsight-workflows/internal/store"
)

const rawExcerptMaxLen = 1500

// brandedTerms flags queries that name a vendor or ask for a comparison.
var brandedTerms = []string{"extreme", "cisco", "juniper", "aruba", "vs", "versus", "compare", "comparison"}

// ProviderFactory builds an engine adapter by name.
type ProviderFactory func(name string, cfg *config.Config) (engines.Provider, error)

type runnerService struct {
	cfg         *config.Config
	runRepo     store.RunRepository
	csvLog      *store.CSVLog
	extract     ExtractService
	citations   CitationService
	pricing     PricingService
	llmExtract  LLMExtractService
	lookup      LookupService
	search      SearchService
	newProvider ProviderFactory
}

// NewRunnerService wires the query execution pipeline. llmExtract, lookup
// and search may be nil when those backends are not configured.
func NewRunnerService(
	cfg *config.Config,
	runRepo store.RunRepository,
	csvLog *store.CSVLog,
	extract ExtractService,
	citations CitationService,
	pricing PricingService,
	llmExtract LLMExtractService,
	lookup LookupService,
	search SearchService,
	newProvider ProviderFactory,
) RunnerService {
	if newProvider == nil {
		newProvider = engines.NewProvider
	}
	return &runnerService{
		cfg:         cfg,
		runRepo:     runRepo,
		csvLog:      csvLog,
		extract:     extract,
		citations:   citations,
		pricing:     pricing,
		llmExtract:  llmExtract,
		lookup:      lookup,
		search:      search,
		newProvider: newProvider,
	}
}

func makeRunID(engine string) string {
	return fmt.Sprintf("run_%s_%s", engine, uuid.New().String())
}

// isBrandedQuery classifies branded vs non-branded for share-of-voice
// denominators downstream.
func isBrandedQuery(query, intent string) bool {
	in := strings.ToLower(intent)
	if in == "brand_focused" || in == "comparison" {
		return true
	}
	q := strings.ToLower(query)
	for _, term := range brandedTerms {
		if strings.Contains(q, term) {
			return true
		}
	}
	return false
}

// referencesSources reports whether an answer with no extractable URLs
// still talks about its sources, making an LLM extraction pass worthwhile.
func referencesSources(text string) bool {
	t := strings.ToLower(text)
	return strings.Contains(t, "source") || strings.Contains(t, "according to") || strings.Contains(t, "cited")
}

func (s *runnerService) RunQuery(ctx context.Context, req QueryRequest) ([]*models.Run, error) {
	if len(strings.TrimSpace(req.Query)) < 3 {
		return nil, fmt.Errorf("query too short")
	}
	if len(req.Engines) == 0 {
		return nil, fmt.Errorf("no engines requested")
	}
	if req.PromptVersion == "" {
		req.PromptVersion = "v1"
	}
	if req.Intent == "" {
		req.Intent = "unlabeled"
	}

	ts := time.Now().UTC()
	runs := make([]*models.Run, 0, len(req.Engines))

	for _, name := range req.Engines {
		run := s.runSingleEngine(ctx, req, name, ts)
		runs = append(runs, run)

		if err := s.persistRun(ctx, run); err != nil {
			fmt.Printf("[RunQuery] failed to persist run %s: %v\n", run.ID, err)
		}
	}

	return runs, nil
}

// runSingleEngine executes one engine and builds the full run record. An
// engine failure yields an error-status run so the batch keeps going.
func (s *runnerService) runSingleEngine(ctx context.Context, req QueryRequest, engineName string, ts time.Time) *models.Run {
	eng, err := engines.Normalize(engineName)
	if err != nil {
		return s.errorRun(req, engineName, ts, err)
	}

	provider, err := s.newProvider(string(eng), s.cfg)
	if err != nil {
		return s.errorRun(req, string(eng), ts, err)
	}

	resp, err := provider.RunQuery(ctx, req.Query, req.Temperature, "")
	if err != nil {
		fmt.Printf("[runSingleEngine] %s failed: %v\n", eng, err)
		return s.errorRun(req, string(eng), ts, err)
	}

	text := resp.Text
	costUSD := s.pricing.EstimateCost(resp.InputTokens, resp.OutputTokens, resp.CostUSD, resp.Model)

	mentions := s.extract.ExtractEntities(text)
	links := s.citations.ExtractLinks(text)
	if len(links) == 0 && s.llmExtract != nil && referencesSources(text) {
		extracted, err := s.llmExtract.ExtractSources(ctx, text)
		if err != nil {
			fmt.Printf("[runSingleEngine] llm source extraction failed: %v\n", err)
		} else {
			links = extracted
		}
	}
	domains := s.citations.ToDomains(links)
	entitiesNormalized := s.extract.NormalizeEntities(mentions)
	enriched := s.citations.EnrichCitations(ctx, links, s.cfg.Enrichment.MaxTitleFetches)
	brandMentioned, brandRank := s.extract.BrandPosition(mentions)

	excerpt := text
	if len(excerpt) > rawExcerptMaxLen {
		excerpt = excerpt[:rawExcerptMaxLen]
	}

	return &models.Run{
		ID:                 makeRunID(string(eng)),
		TS:                 ts,
		Engine:             string(eng),
		Model:              resp.Model,
		PromptVersion:      req.PromptVersion,
		Intent:             req.Intent,
		IsBranded:          isBrandedQuery(req.Query, req.Intent),
		Query:              req.Query,
		Status:             models.RunStatusOK,
		LatencyMS:          resp.LatencyMS,
		InputTokens:        resp.InputTokens,
		OutputTokens:       resp.OutputTokens,
		CostUSD:            costUSD,
		RawExcerpt:         excerpt,
		Entities:           mentions,
		Links:              links,
		Domains:            domains,
		CitationsEnriched:  enriched,
		EntitiesNormalized: entitiesNormalized,
		BrandMentioned:     brandMentioned,
		BrandRank:          brandRank,
	}
}

func (s *runnerService) errorRun(req QueryRequest, engineName string, ts time.Time, cause error) *models.Run {
	return &models.Run{
		ID:                 makeRunID(engineName),
		TS:                 ts,
		Engine:             engineName,
		Model:              "",
		PromptVersion:      req.PromptVersion,
		Intent:             req.Intent,
		IsBranded:          isBrandedQuery(req.Query, req.Intent),
		Query:              req.Query,
		Status:             fmt.Sprintf("%s: %v", models.RunStatusError, cause),
		Entities:           []models.EntityMention{},
		Links:              []string{},
		Domains:            []string{},
		CitationsEnriched:  []models.Citation{},
		EntitiesNormalized: []models.NormalizedEntity{},
	}
}

// persistRun writes the run to Postgres, the CSV log, and the optional
// lookup/search indexes. Index failures are logged, not fatal.
func (s *runnerService) persistRun(ctx context.Context, run *models.Run) error {
	if err := s.runRepo.Create(ctx, run); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	if err := s.csvLog.Append(run); err != nil {
		fmt.Printf("[persistRun] csv append failed for %s: %v\n", run.ID, err)
	}

	if s.lookup != nil {
		if err := s.lookup.IndexRun(ctx, run); err != nil {
			fmt.Printf("[persistRun] lookup index failed for %s: %v\n", run.ID, err)
		}
	}
	if s.search != nil {
		if err := s.search.IndexRun(ctx, run); err != nil {
			fmt.Printf("[persistRun] search index failed for %s: %v\n", run.ID, err)
		}
	}

	return nil
}

func (s *runnerService) GetRun(ctx context.Context, id string) (*models.Run, error) {
	rec, err := s.runRepo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if rec == nil || rec.Deleted {
		return nil, fmt.Errorf("run not found: %s", id)
	}

	run := &rec.Run

	// Serve cached enrichment when both halves are present and readable.
	if rec.EnrichmentErr == nil && len(run.CitationsEnriched) > 0 && len(run.EntitiesNormalized) > 0 {
		return run, nil
	}

	if len(run.CitationsEnriched) == 0 || rec.EnrichmentErr != nil {
		run.CitationsEnriched = s.citations.EnrichCitations(ctx, run.Links, s.cfg.Enrichment.MaxTitleFetches)
	}
	if len(run.EntitiesNormalized) == 0 || rec.EnrichmentErr != nil {
		run.EntitiesNormalized = s.extract.NormalizeEntities(run.Entities)
	}

	// Cache for future reads. The store refuses the write when enrichment
	// already exists, which is fine here.
	if err := s.runRepo.SaveEnrichment(ctx, id, run.CitationsEnriched, run.EntitiesNormalized); err != nil {
		fmt.Printf("[GetRun] enrichment backfill failed for %s: %v\n", id, err)
	}

	return run, nil
}

func (s *runnerService) ListRuns(ctx context.Context, limit, offset int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.runRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*models.Run, 0, len(records))
	for _, rec := range records {
		runs = append(runs, &rec.Run)
	}
	return runs, nil
}

func (s *runnerService) DeleteRun(ctx context.Context, id string) error {
	if err := s.runRepo.SoftDelete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

func (s *runnerService) GetCostRollup(ctx context.Context) (*models.CostRollup, error) {
	rollup, err := s.runRepo.CostRollup(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute cost rollup: %w", err)
	}
	return rollup, nil
}
