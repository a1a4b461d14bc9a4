package services_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/brandsight/brandsight-workflows/internal/config"
	"github.com/brandsight/brandsight-workflows/internal/engines"
	"github.com/brandsight/brandsight-workflows/internal/models"
	"github.com/brandsight/brandsight-workflows/internal/store"
	"github.com/brandsight/brandsight-workflows/services"
)

type fakeProvider struct {
	name string
	resp *engines.Response
	err  error
}

func (p *fakeProvider) RunQuery(ctx context.Context, prompt string, temperature float64, model string) (*engines.Response, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}

func (p *fakeProvider) GetProviderName() string { return p.name }

// providerTable routes each engine to a canned provider.
func providerTable(providers map[string]engines.Provider) services.ProviderFactory {
	return func(name string, cfg *config.Config) (engines.Provider, error) {
		p, ok := providers[name]
		if !ok {
			return nil, fmt.Errorf("no provider for engine: %s", name)
		}
		return p, nil
	}
}

type fakeLLMExtract struct {
	links  []string
	err    error
	called int
}

func (f *fakeLLMExtract) ExtractSources(ctx context.Context, answerText string) ([]string, error) {
	f.called++
	return f.links, f.err
}

func newTestRunnerService(repo *fakeRunRepo, llm services.LLMExtractService, factory services.ProviderFactory) services.RunnerService {
	cfg := &config.Config{
		Enrichment: config.EnrichmentConfig{
			MaxTitleFetches:   0,
			FetchTimeoutSecs:  1,
			MaxTitleBodyBytes: 1000,
		},
	}
	return services.NewRunnerService(
		cfg,
		repo,
		store.NewCSVLog(""),
		services.NewExtractService(services.DefaultEntityTable()),
		services.NewCitationService(cfg, nil),
		services.NewPricingService(services.DefaultPricingTable()),
		llm,
		nil,
		nil,
		factory,
	)
}

func TestRunQuery(t *testing.T) {
	repo := newFakeRunRepo()
	resp := &engines.Response{
		Text: "Juniper and Extreme Networks lead campus networking. " +
			"See https://www.juniper.net/report?utm_source=chat for details.",
		Model:        "sonar",
		InputTokens:  1000,
		OutputTokens: 1000,
		LatencyMS:    420,
	}
	svc := newTestRunnerService(repo, nil, providerTable(map[string]engines.Provider{
		"perplexity": &fakeProvider{name: "perplexity", resp: resp},
	}))

	runs, err := svc.RunQuery(context.Background(), services.QueryRequest{
		Query:   "best campus networking platforms",
		Engines: []string{"sonar"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}

	run := runs[0]
	if run.Status != models.RunStatusOK {
		t.Fatalf("expected ok status, got %q", run.Status)
	}
	if run.Engine != "perplexity" {
		t.Errorf("expected normalized engine perplexity, got %q", run.Engine)
	}
	if run.Model != "sonar" || run.LatencyMS != 420 {
		t.Errorf("provider fields not carried: model=%q latency=%d", run.Model, run.LatencyMS)
	}
	if run.PromptVersion != "v1" || run.Intent != "unlabeled" {
		t.Errorf("expected defaults, got version=%q intent=%q", run.PromptVersion, run.Intent)
	}
	if !strings.HasPrefix(run.ID, "run_perplexity_") {
		t.Errorf("unexpected run id %q", run.ID)
	}
	if run.CostUSD != 0.002 {
		t.Errorf("expected derived cost 0.002, got %v", run.CostUSD)
	}
	if run.IsBranded {
		t.Error("neutral query must not be flagged branded")
	}

	if len(run.Entities) != 2 || run.Entities[0].Name != "Juniper" || run.Entities[1].Name != "Extreme Networks" {
		t.Errorf("unexpected entities: %+v", run.Entities)
	}
	if !run.BrandMentioned || run.BrandRank == nil || *run.BrandRank != 2 {
		t.Errorf("expected brand at rank 2, got mentioned=%v rank=%v", run.BrandMentioned, run.BrandRank)
	}

	if len(run.Links) != 1 || run.Links[0] != "https://www.juniper.net/report?utm_source=chat" {
		t.Errorf("unexpected links: %v", run.Links)
	}
	if len(run.Domains) != 1 || run.Domains[0] != "juniper.net" {
		t.Errorf("unexpected domains: %v", run.Domains)
	}
	if len(run.CitationsEnriched) != 1 {
		t.Fatalf("expected 1 enriched citation, got %d", len(run.CitationsEnriched))
	}
	if run.CitationsEnriched[0].URL != "https://juniper.net/report" {
		t.Errorf("expected normalized citation url, got %q", run.CitationsEnriched[0].URL)
	}
	if len(run.EntitiesNormalized) != 2 {
		t.Errorf("expected 2 normalized entities, got %d", len(run.EntitiesNormalized))
	}

	if len(repo.created) != 1 {
		t.Errorf("expected run persisted, got %d creates", len(repo.created))
	}
}

func TestRunQueryEngineFailure(t *testing.T) {
	repo := newFakeRunRepo()
	good := &engines.Response{Text: "Extreme Networks leads.", Model: "sonar"}
	svc := newTestRunnerService(repo, nil, providerTable(map[string]engines.Provider{
		"perplexity": &fakeProvider{name: "perplexity", resp: good},
		"openai":     &fakeProvider{name: "openai", err: fmt.Errorf("rate limited")},
	}))

	runs, err := svc.RunQuery(context.Background(), services.QueryRequest{
		Query:   "top enterprise wifi platforms",
		Engines: []string{"openai", "perplexity"},
	})
	if err != nil {
		t.Fatalf("one engine failing must not fail the batch: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}

	failed := runs[0]
	if !strings.HasPrefix(failed.Status, models.RunStatusError) {
		t.Errorf("expected error status, got %q", failed.Status)
	}
	if !strings.Contains(failed.Status, "rate limited") {
		t.Errorf("expected cause in status, got %q", failed.Status)
	}
	if failed.Entities == nil || failed.Links == nil || failed.CitationsEnriched == nil {
		t.Error("error run must carry empty slices, not nil")
	}
	if len(failed.Entities) != 0 || len(failed.Links) != 0 {
		t.Errorf("error run must be empty: %+v", failed)
	}

	if runs[1].Status != models.RunStatusOK {
		t.Errorf("expected the other engine to succeed, got %q", runs[1].Status)
	}
	if len(repo.created) != 2 {
		t.Errorf("both runs must persist, got %d", len(repo.created))
	}
}

func TestRunQueryValidation(t *testing.T) {
	svc := newTestRunnerService(newFakeRunRepo(), nil, providerTable(nil))

	if _, err := svc.RunQuery(context.Background(), services.QueryRequest{Query: "ab", Engines: []string{"openai"}}); err == nil {
		t.Error("expected error for short query")
	}
	if _, err := svc.RunQuery(context.Background(), services.QueryRequest{Query: "valid query"}); err == nil {
		t.Error("expected error for empty engine list")
	}
}

func TestRunQueryBrandedClassification(t *testing.T) {
	resp := &engines.Response{Text: "answer", Model: "sonar"}
	svc := newTestRunnerService(newFakeRunRepo(), nil, providerTable(map[string]engines.Provider{
		"perplexity": &fakeProvider{name: "perplexity", resp: resp},
	}))

	tests := []struct {
		name     string
		query    string
		intent   string
		expected bool
	}{
		{"vendor name in query", "cisco catalyst lineup", "generic_intent", true},
		{"comparison term", "fortinet versus palo alto", "generic_intent", true},
		{"branded intent", "top wifi platforms", "brand_focused", true},
		{"comparison intent", "top wifi platforms", "comparison", true},
		{"neutral", "top wifi platforms", "generic_intent", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := svc.RunQuery(context.Background(), services.QueryRequest{
				Query:   tt.query,
				Intent:  tt.intent,
				Engines: []string{"perplexity"},
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if runs[0].IsBranded != tt.expected {
				t.Errorf("expected is_branded=%v for %q/%q", tt.expected, tt.query, tt.intent)
			}
		})
	}
}

func TestRunQueryExcerptTruncation(t *testing.T) {
	resp := &engines.Response{Text: strings.Repeat("x", 4000), Model: "sonar"}
	svc := newTestRunnerService(newFakeRunRepo(), nil, providerTable(map[string]engines.Provider{
		"perplexity": &fakeProvider{name: "perplexity", resp: resp},
	}))

	runs, err := svc.RunQuery(context.Background(), services.QueryRequest{
		Query:   "long answer please",
		Engines: []string{"perplexity"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs[0].RawExcerpt) != 1500 {
		t.Errorf("expected excerpt capped at 1500, got %d", len(runs[0].RawExcerpt))
	}
}

func TestRunQueryLLMSourceFallback(t *testing.T) {
	llm := &fakeLLMExtract{links: []string{"https://example.com/report"}}
	resp := &engines.Response{
		Text:  "According to the latest industry report, Extreme Networks gained share.",
		Model: "sonar",
	}
	svc := newTestRunnerService(newFakeRunRepo(), llm, providerTable(map[string]engines.Provider{
		"perplexity": &fakeProvider{name: "perplexity", resp: resp},
	}))

	runs, err := svc.RunQuery(context.Background(), services.QueryRequest{
		Query:   "who gained market share",
		Engines: []string{"perplexity"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if llm.called != 1 {
		t.Fatalf("expected llm fallback to run once, got %d", llm.called)
	}
	if len(runs[0].Links) != 1 || runs[0].Links[0] != "https://example.com/report" {
		t.Errorf("expected llm links adopted: %v", runs[0].Links)
	}
	if len(runs[0].Domains) != 1 || runs[0].Domains[0] != "example.com" {
		t.Errorf("expected domains from llm links: %v", runs[0].Domains)
	}
}

func TestRunQueryLLMSkippedWithoutSourceTalk(t *testing.T) {
	llm := &fakeLLMExtract{links: []string{"https://example.com/report"}}
	resp := &engines.Response{Text: "Extreme Networks gained share.", Model: "sonar"}
	svc := newTestRunnerService(newFakeRunRepo(), llm, providerTable(map[string]engines.Provider{
		"perplexity": &fakeProvider{name: "perplexity", resp: resp},
	}))

	if _, err := svc.RunQuery(context.Background(), services.QueryRequest{
		Query:   "who gained market share",
		Engines: []string{"perplexity"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if llm.called != 0 {
		t.Errorf("expected llm fallback skipped, called %d times", llm.called)
	}
}

func TestGetRun(t *testing.T) {
	enriched := &store.RunRecord{Run: models.Run{
		ID:                 "run_cached",
		TS:                 time.Now().UTC(),
		Engine:             "openai",
		Status:             models.RunStatusOK,
		CitationsEnriched:  []models.Citation{{URL: "https://example.com/a", Domain: "example.com", Rank: 1}},
		EntitiesNormalized: []models.NormalizedEntity{{Name: "Cisco", Type: "company", IsCompetitor: true}},
	}}
	stale := &store.RunRecord{Run: models.Run{
		ID:       "run_stale",
		TS:       time.Now().UTC(),
		Engine:   "openai",
		Status:   models.RunStatusOK,
		Links:    []string{"https://www.example.com/b?utm_source=x"},
		Entities: []models.EntityMention{{Name: "Cisco", FirstPos: 0}},
	}}
	deleted := &store.RunRecord{Run: models.Run{ID: "run_gone", Deleted: true}}

	repo := newFakeRunRepo(enriched, stale, deleted)
	svc := newTestRunnerService(repo, nil, providerTable(nil))

	t.Run("cached enrichment served as is", func(t *testing.T) {
		run, err := svc.GetRun(context.Background(), "run_cached")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(run.CitationsEnriched) != 1 || run.CitationsEnriched[0].URL != "https://example.com/a" {
			t.Errorf("cached citations must be served untouched: %+v", run.CitationsEnriched)
		}
		if repo.saved["run_cached"] != 0 {
			t.Error("cached run must not trigger a backfill write")
		}
	})

	t.Run("missing enrichment backfilled", func(t *testing.T) {
		run, err := svc.GetRun(context.Background(), "run_stale")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(run.CitationsEnriched) != 1 || run.CitationsEnriched[0].URL != "https://example.com/b" {
			t.Errorf("expected recomputed citations: %+v", run.CitationsEnriched)
		}
		if len(run.EntitiesNormalized) != 1 || run.EntitiesNormalized[0].Name != "Cisco" {
			t.Errorf("expected recomputed entities: %+v", run.EntitiesNormalized)
		}
		if repo.saved["run_stale"] != 1 {
			t.Errorf("expected one backfill write, got %d", repo.saved["run_stale"])
		}
	})

	t.Run("deleted run hidden", func(t *testing.T) {
		if _, err := svc.GetRun(context.Background(), "run_gone"); err == nil {
			t.Error("expected not found for deleted run")
		}
	})
}

func TestListRuns(t *testing.T) {
	repo := newFakeRunRepo(
		&store.RunRecord{Run: models.Run{ID: "run_1"}},
		&store.RunRecord{Run: models.Run{ID: "run_2"}},
		&store.RunRecord{Run: models.Run{ID: "run_3", Deleted: true}},
	)
	svc := newTestRunnerService(repo, nil, providerTable(nil))

	runs, err := svc.ListRuns(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected deleted runs excluded, got %d", len(runs))
	}
}

func TestDeleteRun(t *testing.T) {
	repo := newFakeRunRepo(&store.RunRecord{Run: models.Run{ID: "run_1"}})
	svc := newTestRunnerService(repo, nil, providerTable(nil))

	if err := svc.DeleteRun(context.Background(), "run_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.softDelete) != 1 || repo.softDelete[0] != "run_1" {
		t.Errorf("expected soft delete of run_1, got %v", repo.softDelete)
	}
}
