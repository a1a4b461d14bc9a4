// services/metrics_service.go
package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/brandsight/brandsight-workflows/internal/models"
	"github.com/brandsight/brandsight-workflows/internal/store"
)

const (
	highQualityThreshold = 0.7
	maxMetricsRangeDays  = 90
	topDomainLimit       = 10
)

type metricsService struct {
	runRepo     store.RunRepository
	metricsRepo store.MetricsRepository
	citations   CitationService
}

// NewMetricsService builds the daily aggregation service. Citation quality
// comes from the citation service so metrics and reports score identically.
func NewMetricsService(runRepo store.RunRepository, metricsRepo store.MetricsRepository, citations CitationService) MetricsService {
	return &metricsService{
		runRepo:     runRepo,
		metricsRepo: metricsRepo,
		citations:   citations,
	}
}

func (s *metricsService) ComputeDailyMetrics(ctx context.Context, date time.Time, engine string) ([]*models.DailyMetrics, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	records, err := s.runRepo.ListWindow(ctx, day, day.Add(24*time.Hour), engine)
	if err != nil {
		return nil, fmt.Errorf("failed to load runs for %s: %w", day.Format("2006-01-02"), err)
	}
	if len(records) == 0 {
		return []*models.DailyMetrics{}, nil
	}

	byEngine := make(map[string][]*store.RunRecord)
	var engineOrder []string
	for _, rec := range records {
		if _, ok := byEngine[rec.Engine]; !ok {
			engineOrder = append(engineOrder, rec.Engine)
		}
		byEngine[rec.Engine] = append(byEngine[rec.Engine], rec)
	}
	sort.Strings(engineOrder)

	var metrics []*models.DailyMetrics
	skipped := 0

	for _, eng := range engineOrder {
		engineRuns := byEngine[eng]

		overall, engineSkipped := s.computeEngineMetrics(engineRuns, day, eng, models.BrandContextOverall)
		skipped += engineSkipped
		metrics = append(metrics, overall)

		if brand := s.computeBrandMetrics(engineRuns, day, eng); brand != nil {
			metrics = append(metrics, brand)
		}
		if competitors := s.computeCompetitorMetrics(engineRuns, day, eng); competitors != nil {
			metrics = append(metrics, competitors)
		}
	}

	if skipped > 0 {
		fmt.Printf("[ComputeDailyMetrics] skipped %d unreadable cached citation lists for %s\n", skipped, day.Format("2006-01-02"))
	}

	return metrics, nil
}

// computeEngineMetrics builds the citation/cost aggregates shared by every
// brand context. Runs whose cached citations no longer decode still count
// toward run and cost totals; only their citation contribution is skipped.
func (s *metricsService) computeEngineMetrics(runs []*store.RunRecord, day time.Time, engine string, context models.BrandContext) (*models.DailyMetrics, int) {
	totalCost := 0.0
	skipped := 0
	var allCitations []models.Citation
	domainCounts := make(map[string]int)

	for _, rec := range runs {
		totalCost += rec.CostUSD
		if rec.EnrichmentErr != nil {
			skipped++
			continue
		}
		for _, c := range rec.CitationsEnriched {
			allCitations = append(allCitations, c)
			if c.Domain != "" {
				domainCounts[c.Domain]++
			}
		}
	}

	avgVisibility := 0.0
	highQuality := 0
	for _, c := range allCitations {
		score := s.citations.QualityScore(c)
		avgVisibility += score
		if score > highQualityThreshold {
			highQuality++
		}
	}
	if len(allCitations) > 0 {
		avgVisibility /= float64(len(allCitations))
	}

	return &models.DailyMetrics{
		Date:                 day,
		Engine:               engine,
		BrandContext:         context,
		TotalRuns:            len(runs),
		TotalCostUSD:         totalCost,
		TotalCitations:       len(allCitations),
		UniqueDomains:        len(domainCounts),
		TopDomains:           s.topDomains(domainCounts, allCitations),
		AvgVisibilityScore:   round2(avgVisibility),
		HighQualityCitations: highQuality,
		LastUpdated:          time.Now().UTC().Format(time.RFC3339),
		DataVersion:          models.DataVersion,
	}, skipped
}

// computeBrandMetrics counts runs where the brand appeared against the rest
// of the engine's runs. Nil when the brand never appeared that day.
func (s *metricsService) computeBrandMetrics(runs []*store.RunRecord, day time.Time, engine string) *models.DailyMetrics {
	brandRuns := 0
	for _, rec := range runs {
		if rec.BrandMentioned {
			brandRuns++
		}
	}
	if brandRuns == 0 {
		return nil
	}

	m, _ := s.computeEngineMetrics(runs, day, engine, models.BrandContextBrand)
	m.BrandMentions = brandRuns
	m.CompetitorMentions = len(runs) - brandRuns
	m.ShareOfVoicePct = shareOfVoice(m.BrandMentions, m.CompetitorMentions)
	return m
}

// computeCompetitorMetrics uses a different competitor population than the
// brand row: runs with entities but no brand mention. The two rows answer
// different questions and are not complements of each other.
func (s *metricsService) computeCompetitorMetrics(runs []*store.RunRecord, day time.Time, engine string) *models.DailyMetrics {
	brandRuns := 0
	competitorRuns := 0
	for _, rec := range runs {
		if rec.BrandMentioned {
			brandRuns++
		} else if len(rec.EntitiesNormalized) > 0 {
			competitorRuns++
		}
	}
	if competitorRuns == 0 {
		return nil
	}

	m, _ := s.computeEngineMetrics(runs, day, engine, models.BrandContextCompetitors)
	m.BrandMentions = brandRuns
	m.CompetitorMentions = competitorRuns
	m.ShareOfVoicePct = shareOfVoice(m.CompetitorMentions, m.BrandMentions)
	return m
}

func shareOfVoice(numerator, other int) float64 {
	total := numerator + other
	if total == 0 {
		return 0
	}
	return round2(float64(numerator) / float64(total) * 100)
}

func (s *metricsService) topDomains(domainCounts map[string]int, citations []models.Citation) []models.TopDomain {
	type domainCount struct {
		domain string
		count  int
	}
	counts := make([]domainCount, 0, len(domainCounts))
	for d, c := range domainCounts {
		counts = append(counts, domainCount{d, c})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].domain < counts[j].domain
	})
	if len(counts) > topDomainLimit {
		counts = counts[:topDomainLimit]
	}

	top := make([]models.TopDomain, 0, len(counts))
	for _, dc := range counts {
		sum := 0.0
		n := 0
		for _, c := range citations {
			if c.Domain == dc.domain {
				sum += s.citations.QualityScore(c)
				n++
			}
		}
		avg := 0.0
		if n > 0 {
			avg = sum / float64(n)
		}
		top = append(top, models.TopDomain{
			Domain:       dc.domain,
			Count:        dc.count,
			QualityScore: round2(avg),
		})
	}
	return top
}

func (s *metricsService) UpsertDailyMetrics(ctx context.Context, rows []*models.DailyMetrics) error {
	if err := s.metricsRepo.Upsert(ctx, rows); err != nil {
		return fmt.Errorf("failed to upsert daily metrics: %w", err)
	}
	return nil
}

func (s *metricsService) GetDailyMetrics(ctx context.Context, start, end time.Time, engine string, brandContext models.BrandContext) ([]*models.DailyMetrics, error) {
	if start.After(end) {
		return nil, fmt.Errorf("start date %s is after end date %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	if end.Sub(start) > maxMetricsRangeDays*24*time.Hour {
		return nil, fmt.Errorf("date range exceeds %d days", maxMetricsRangeDays)
	}

	rows, err := s.metricsRepo.GetRange(ctx, start, end, engine, brandContext)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily metrics: %w", err)
	}
	return rows, nil
}

func (s *metricsService) GetMetricsSummary(ctx context.Context, days int) (*models.MetricsSummary, error) {
	if days <= 0 {
		days = 30
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -days)

	rows, err := s.metricsRepo.GetRange(ctx, start, end, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics for summary: %w", err)
	}

	summary := &models.MetricsSummary{
		PeriodDays: days,
		StartDate:  start.Format("2006-01-02"),
		EndDate:    end.Format("2006-01-02"),
		TopDomains: []models.TopDomain{},
		ByEngine:   make(map[string]models.EngineBreakout),
	}
	if len(rows) == 0 {
		return summary, nil
	}

	visibilitySum := 0.0
	visibilityN := 0
	sovSum := 0.0
	sovN := 0
	domainTotals := make(map[string]int)

	for _, m := range rows {
		summary.TotalRuns += m.TotalRuns
		summary.TotalCostUSD += m.TotalCostUSD
		summary.TotalCitations += m.TotalCitations

		if m.AvgVisibilityScore > 0 {
			visibilitySum += m.AvgVisibilityScore
			visibilityN++
		}
		if m.BrandContext == models.BrandContextBrand {
			sovSum += m.ShareOfVoicePct
			sovN++
		}
		for _, d := range m.TopDomains {
			domainTotals[d.Domain] += d.Count
		}

		breakout := summary.ByEngine[m.Engine]
		breakout.Runs += m.TotalRuns
		breakout.Cost += m.TotalCostUSD
		breakout.Citations += m.TotalCitations
		summary.ByEngine[m.Engine] = breakout
	}

	if visibilityN > 0 {
		summary.AvgVisibilityScore = round2(visibilitySum / float64(visibilityN))
	}
	if sovN > 0 {
		summary.BrandShareOfVoice = round2(sovSum / float64(sovN))
	}

	type domainCount struct {
		domain string
		count  int
	}
	totals := make([]domainCount, 0, len(domainTotals))
	for d, c := range domainTotals {
		totals = append(totals, domainCount{d, c})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].count != totals[j].count {
			return totals[i].count > totals[j].count
		}
		return totals[i].domain < totals[j].domain
	})
	if len(totals) > topDomainLimit {
		totals = totals[:topDomainLimit]
	}
	for _, dc := range totals {
		summary.TopDomains = append(summary.TopDomains, models.TopDomain{Domain: dc.domain, Count: dc.count})
	}

	return summary, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
