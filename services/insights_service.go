// services/insights_service.go
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/brandsight/brandsight-workflows/internal/engines"
	"github.com/brandsight/brandsight-workflows/internal/store"
)

const (
	answerPreviewLen    = 200
	intentExampleLimit  = 2
	associationTopLimit = 10
)

// competitorBrands flags queries that name a specific vendor; those are
// excluded from neutral-query visibility analysis.
var competitorBrands = []string{
	"cisco", "juniper", "aruba", "fortinet", "palo alto", "check point",
	"f5", "riverbed", "arista", "brocade", "ruckus", "ubiquiti", "netgear",
	"tp-link", "d-link", "linksys", "huawei", "dell", "hpe", "nokia",
	"meraki", "mist", "fortigate", "pan-os", "big-ip", "steelhead",
}

// VisibilityReport measures brand presence in answers to neutral queries.
type VisibilityReport struct {
	PeriodDays             int     `json:"period_days"`
	StartDate              string  `json:"start_date"`
	EndDate                string  `json:"end_date"`
	TotalMentions          int     `json:"total_mentions"`
	MentionRatePct         float64 `json:"mention_rate_pct"`
	TotalCitations         int     `json:"total_citations"`
	TotalDomains           int     `json:"total_domains"`
	AvgCitationsPerMention float64 `json:"avg_citations_per_mention"`
	AvgDomainsPerMention   float64 `json:"avg_domains_per_mention"`
	NeutralQueriesAnalyzed int     `json:"neutral_queries_analyzed"`
	BrandedQueriesExcluded int     `json:"branded_queries_excluded"`
}

// CoverageGap is one neutral query where competitors appeared but the brand
// did not.
type CoverageGap struct {
	Query                string   `json:"query"`
	Engine               string   `json:"engine"`
	Category             string   `json:"category"`
	CompetitorsMentioned []string `json:"competitors_mentioned"`
}

// IntentCoverage summarizes brand coverage within one intent category.
type IntentCoverage struct {
	Total           int     `json:"total"`
	BrandMentioned  int     `json:"brand_mentioned"`
	Gaps            int     `json:"gaps"`
	GapRatePct      float64 `json:"gap_rate_pct"`
	CoverageRatePct float64 `json:"coverage_rate_pct"`
}

// CoverageGapReport lists where the brand is missing from answers it should
// plausibly appear in.
type CoverageGapReport struct {
	PeriodDays             int                       `json:"period_days"`
	StartDate              string                    `json:"start_date"`
	EndDate                string                    `json:"end_date"`
	ByIntent               map[string]IntentCoverage `json:"by_intent"`
	TotalGaps              int                       `json:"total_gaps"`
	OverallGapRatePct      float64                   `json:"overall_gap_rate_pct"`
	Gaps                   []CoverageGap             `json:"gaps"`
	QueriesAnalyzed        int                       `json:"queries_analyzed"`
	BrandedQueriesExcluded int                       `json:"branded_queries_excluded"`
}

// IntentExample is a sample query/answer pair for one intent category.
type IntentExample struct {
	Query         string `json:"query"`
	AnswerPreview string `json:"answer_preview"`
	Engine        string `json:"engine"`
	Intent        string `json:"intent"`
}

// BrandIntentReport breaks down the intent of queries where the brand
// appeared.
type BrandIntentReport struct {
	PeriodDays         int                        `json:"period_days"`
	TotalBrandMentions int                        `json:"total_brand_mentions"`
	IntentBreakdown    map[string]int             `json:"intent_breakdown"`
	Examples           map[string][]IntentExample `json:"examples"`
}

// AssociationCount is one associated term and its mention count.
type AssociationCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// EntityAssociationReport captures what products and keywords engines
// associate with the brand.
type EntityAssociationReport struct {
	PeriodDays          int                       `json:"period_days"`
	EntityTypes         map[string]map[string]int `json:"entity_types"`
	ProductAssociations []AssociationCount        `json:"product_associations"`
	KeywordAssociations []AssociationCount        `json:"keyword_associations"`
	TotalEntityMentions int                       `json:"total_entity_mentions"`
}

type insightsService struct {
	runRepo store.RunRepository
	extract ExtractService
}

// NewInsightsService builds the read-only analytical views over stored runs.
func NewInsightsService(runRepo store.RunRepository, extract ExtractService) InsightsService {
	return &insightsService{runRepo: runRepo, extract: extract}
}

func (s *insightsService) loadWindow(ctx context.Context, days int, engine string) ([]*store.RunRecord, time.Time, time.Time, error) {
	if days <= 0 {
		days = 30
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)
	records, err := s.runRepo.ListWindow(ctx, start, end, engine)
	if err != nil {
		return nil, start, end, fmt.Errorf("failed to load runs: %w", err)
	}
	return records, start, end, nil
}

func mentionsCompetitorBrand(query string) bool {
	q := strings.ToLower(query)
	for _, brand := range competitorBrands {
		if strings.Contains(q, brand) {
			return true
		}
	}
	return false
}

func engineDisplayName(name string) string {
	return engines.DisplayName(name)
}

func (s *insightsService) VisibilityReport(ctx context.Context, days int, engine string) (*VisibilityReport, error) {
	records, start, end, err := s.loadWindow(ctx, days, engine)
	if err != nil {
		return nil, err
	}

	report := &VisibilityReport{
		PeriodDays: days,
		StartDate:  start.Format("2006-01-02"),
		EndDate:    end.Format("2006-01-02"),
	}

	for _, rec := range records {
		if rec.IsBranded || mentionsCompetitorBrand(rec.Query) {
			report.BrandedQueriesExcluded++
			continue
		}
		report.NeutralQueriesAnalyzed++
		if rec.BrandMentioned {
			report.TotalMentions++
			report.TotalCitations += len(rec.Links)
			report.TotalDomains += len(rec.Domains)
		}
	}

	if report.NeutralQueriesAnalyzed > 0 {
		report.MentionRatePct = round2(float64(report.TotalMentions) / float64(report.NeutralQueriesAnalyzed) * 100)
	}
	if report.TotalMentions > 0 {
		report.AvgCitationsPerMention = round2(float64(report.TotalCitations) / float64(report.TotalMentions))
		report.AvgDomainsPerMention = round2(float64(report.TotalDomains) / float64(report.TotalMentions))
	}

	return report, nil
}

func (s *insightsService) CoverageGaps(ctx context.Context, days int, engine string) (*CoverageGapReport, error) {
	records, start, end, err := s.loadWindow(ctx, days, engine)
	if err != nil {
		return nil, err
	}

	report := &CoverageGapReport{
		PeriodDays: days,
		StartDate:  start.Format("2006-01-02"),
		EndDate:    end.Format("2006-01-02"),
		ByIntent:   make(map[string]IntentCoverage),
		Gaps:       []CoverageGap{},
	}

	brandName := s.extract.BrandName()

	for _, rec := range records {
		if rec.IsBranded || mentionsCompetitorBrand(rec.Query) {
			report.BrandedQueriesExcluded++
			continue
		}
		report.QueriesAnalyzed++

		intent := rec.Intent
		if intent == "" {
			intent = "unknown"
		}
		cov := report.ByIntent[intent]
		cov.Total++

		if rec.BrandMentioned {
			cov.BrandMentioned++
			report.ByIntent[intent] = cov
			continue
		}

		// Re-extract from the answer text: the brand may appear in prose
		// that the stored flag predates.
		mentions := s.extract.ExtractEntities(rec.RawExcerpt)
		names := make([]string, 0, len(mentions))
		brandInText := false
		for _, m := range mentions {
			names = append(names, m.Name)
			if m.Name == brandName {
				brandInText = true
			}
		}
		if !brandInText {
			cov.Gaps++
			report.Gaps = append(report.Gaps, CoverageGap{
				Query:                rec.Query,
				Engine:               engineDisplayName(rec.Engine),
				Category:             classifyGapCategory(rec.Query),
				CompetitorsMentioned: names,
			})
		}
		report.ByIntent[intent] = cov
	}

	for intent, cov := range report.ByIntent {
		if cov.Total > 0 {
			cov.GapRatePct = round2(float64(cov.Gaps) / float64(cov.Total) * 100)
			cov.CoverageRatePct = round2(float64(cov.BrandMentioned) / float64(cov.Total) * 100)
		}
		report.ByIntent[intent] = cov
	}

	report.TotalGaps = len(report.Gaps)
	if len(records) > 0 {
		report.OverallGapRatePct = round2(float64(report.TotalGaps) / float64(len(records)) * 100)
	}

	return report, nil
}

// gapCategories maps query keywords to the product area where the brand
// should plausibly have appeared. First match wins.
var gapCategories = []struct {
	category string
	words    []string
}{
	{"Network Infrastructure", []string{"switch", "router", "networking", "network"}},
	{"Wi-Fi & Wireless", []string{"wifi", "wi-fi", "wireless", "802.11", "6e", "7"}},
	{"Network Security", []string{"security", "firewall", "sase", "zero trust"}},
	{"Enterprise Solutions", []string{"enterprise", "business", "corporate"}},
	{"Cloud & Automation", []string{"cloud", "automation", "ai", "ml", "orchestration"}},
	{"Data Center", []string{"data center", "datacenter", "server", "storage"}},
}

func classifyGapCategory(query string) string {
	q := strings.ToLower(query)
	for _, gc := range gapCategories {
		for _, w := range gc.words {
			if strings.Contains(q, w) {
				return gc.category
			}
		}
	}
	return "General Networking"
}

// brandIntents are the recognized categories in classification priority
// order.
var brandIntents = []struct {
	intent string
	words  []string
}{
	{"comparison", []string{"vs", "versus", "compare", "comparison"}},
	{"review", []string{"review", "evaluation", "assessment"}},
	{"product_specific", []string{"wifi", "wi-fi", "6e", "7", "switch", "router", "sase", "aiops"}},
	{"technical", []string{"specs", "specifications", "technical", "architecture", "protocol"}},
	{"branded", []string{"extreme networks", "extreme"}},
}

func classifyBrandIntent(query string) string {
	q := strings.ToLower(query)
	for _, bi := range brandIntents {
		for _, w := range bi.words {
			if strings.Contains(q, w) {
				return bi.intent
			}
		}
	}
	return "informational"
}

func (s *insightsService) BrandIntent(ctx context.Context, days int, engine string) (*BrandIntentReport, error) {
	records, _, _, err := s.loadWindow(ctx, days, engine)
	if err != nil {
		return nil, err
	}

	report := &BrandIntentReport{
		PeriodDays:      days,
		IntentBreakdown: make(map[string]int),
		Examples:        make(map[string][]IntentExample),
	}
	for _, bi := range brandIntents {
		report.IntentBreakdown[bi.intent] = 0
	}
	report.IntentBreakdown["informational"] = 0

	for _, rec := range records {
		if !rec.BrandMentioned || rec.Query == "" {
			continue
		}
		report.TotalBrandMentions++

		intent := classifyBrandIntent(rec.Query)
		report.IntentBreakdown[intent]++

		if len(report.Examples[intent]) < intentExampleLimit {
			preview := rec.RawExcerpt
			if len(preview) > answerPreviewLen {
				preview = preview[:answerPreviewLen] + "..."
			}
			report.Examples[intent] = append(report.Examples[intent], IntentExample{
				Query:         rec.Query,
				AnswerPreview: preview,
				Engine:        engineDisplayName(rec.Engine),
				Intent:        intent,
			})
		}
	}

	return report, nil
}

var (
	productWords = []string{"wifi", "wi-fi", "6e", "6", "sase", "campus", "networking", "switch", "router"}
	keywordWords = []string{"enterprise", "cloud", "security", "automation", "ai", "ml"}
)

func (s *insightsService) EntityAssociations(ctx context.Context, days int, engine string) (*EntityAssociationReport, error) {
	records, _, _, err := s.loadWindow(ctx, days, engine)
	if err != nil {
		return nil, err
	}

	report := &EntityAssociationReport{
		PeriodDays:          days,
		EntityTypes:         make(map[string]map[string]int),
		ProductAssociations: []AssociationCount{},
		KeywordAssociations: []AssociationCount{},
	}

	productCounts := make(map[string]int)
	keywordCounts := make(map[string]int)

	for _, rec := range records {
		if !rec.BrandMentioned || len(rec.EntitiesNormalized) == 0 {
			continue
		}
		for _, entity := range rec.EntitiesNormalized {
			name := strings.ToLower(entity.Name)
			if name == "" {
				continue
			}
			entityType := entity.Type
			if entityType == "" {
				entityType = "unknown"
			}
			if report.EntityTypes[entityType] == nil {
				report.EntityTypes[entityType] = make(map[string]int)
			}
			report.EntityTypes[entityType][name]++
			report.TotalEntityMentions++

			if containsAny(name, productWords) {
				productCounts[name]++
			}
			if containsAny(name, keywordWords) {
				keywordCounts[name]++
			}
		}
	}

	report.ProductAssociations = topAssociations(productCounts, associationTopLimit)
	report.KeywordAssociations = topAssociations(keywordCounts, associationTopLimit)

	return report, nil
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func topAssociations(counts map[string]int, limit int) []AssociationCount {
	out := make([]AssociationCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, AssociationCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
