// workflows/daily_metrics_processor.go
package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"

	"github.com/brandsight/brandsight-workflows/internal/models"
	"github.com/brandsight/brandsight-workflows/services"
)

// MetricsRecomputeEvent requests a metrics rebuild for one date.
type MetricsRecomputeEvent struct {
	Date   string `json:"date"`   // YYYY-MM-DD
	Engine string `json:"engine"` // optional
}

type DailyMetricsProcessor struct {
	metricsService services.MetricsService
	client         inngestgo.Client
}

func NewDailyMetricsProcessor(metricsService services.MetricsService) *DailyMetricsProcessor {
	return &DailyMetricsProcessor{
		metricsService: metricsService,
	}
}

func (p *DailyMetricsProcessor) SetClient(client inngestgo.Client) {
	p.client = client
}

// DailyMetricsWorkflow aggregates yesterday's runs into daily metrics every
// morning, after the overnight query schedule has finished.
func (p *DailyMetricsProcessor) DailyMetricsWorkflow() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:   "daily-metrics-processor",
			Name: "Daily Metrics Aggregation",
		},
		inngestgo.CronTrigger("0 4 * * *"), // Every day at 4 AM UTC
		func(ctx context.Context, input inngestgo.Input[any]) (any, error) {
			yesterday := time.Now().UTC().AddDate(0, 0, -1)
			return p.computeAndUpsert(ctx, yesterday, "")
		},
	)
	if err != nil {
		fmt.Printf("Failed to create daily metrics processor function: %v\n", err)
	}
	return fn
}

// RecomputeMetricsWorkflow rebuilds metrics for a specific date on demand,
// for backfills and corrections after run deletions.
func (p *DailyMetricsProcessor) RecomputeMetricsWorkflow() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:   "metrics-recompute-processor",
			Name: "Metrics Recompute",
		},
		inngestgo.EventTrigger("metrics/recompute.requested", nil),
		func(ctx context.Context, input inngestgo.Input[MetricsRecomputeEvent]) (any, error) {
			target, err := time.Parse("2006-01-02", input.Event.Data.Date)
			if err != nil {
				return nil, fmt.Errorf("invalid date %q: %w", input.Event.Data.Date, err)
			}
			if target.After(time.Now().UTC()) {
				return nil, fmt.Errorf("cannot compute metrics for future date %s", input.Event.Data.Date)
			}
			return p.computeAndUpsert(ctx, target, input.Event.Data.Engine)
		},
	)
	if err != nil {
		fmt.Printf("Failed to create metrics recompute function: %v\n", err)
	}
	return fn
}

func (p *DailyMetricsProcessor) computeAndUpsert(ctx context.Context, date time.Time, engine string) (any, error) {
	dateStr := date.Format("2006-01-02")

	rows, err := step.Run(ctx, "compute-daily-metrics", func(ctx context.Context) ([]*models.DailyMetrics, error) {
		return p.metricsService.ComputeDailyMetrics(ctx, date, engine)
	})
	if err != nil {
		return nil, fmt.Errorf("step 'compute-daily-metrics' failed: %w", err)
	}

	if len(rows) == 0 {
		return map[string]interface{}{
			"date":             dateStr,
			"engine":           engine,
			"metrics_computed": 0,
			"message":          "No runs found for the specified date",
		}, nil
	}

	_, err = step.Run(ctx, "upsert-daily-metrics", func(ctx context.Context) (interface{}, error) {
		return nil, p.metricsService.UpsertDailyMetrics(ctx, rows)
	})
	if err != nil {
		return nil, fmt.Errorf("step 'upsert-daily-metrics' failed: %w", err)
	}

	contexts := make([]string, 0, len(rows))
	for _, row := range rows {
		contexts = append(contexts, fmt.Sprintf("%s/%s", row.Engine, row.BrandContext))
	}

	return map[string]interface{}{
		"date":             dateStr,
		"engine":           engine,
		"metrics_computed": len(rows),
		"contexts":         contexts,
	}, nil
}
