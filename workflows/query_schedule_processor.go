// workflows/query_schedule_processor.go
package workflows

import (
	"context"
	"fmt"

	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"

	"github.com/brandsight/brandsight-workflows/internal/engines"
	"github.com/brandsight/brandsight-workflows/services"
)

// defaultQueryPlan is the automated daily rotation: neutral discovery
// queries plus a smaller branded and comparison slice.
var defaultQueryPlan = []services.QueryRequest{
	{Query: "best enterprise network switches 2025", Intent: "generic_intent"},
	{Query: "top wi-fi 7 access points for business", Intent: "generic_intent"},
	{Query: "how to choose a campus network vendor", Intent: "generic_intent"},
	{Query: "cloud managed networking solutions for enterprises", Intent: "generic_intent"},
	{Query: "network automation platforms for data centers", Intent: "generic_intent"},
	{Query: "what is extreme networks known for", Intent: "brand_focused"},
	{Query: "extreme networks cloud iq review", Intent: "brand_focused"},
	{Query: "extreme networks vs cisco enterprise switching", Intent: "comparison"},
	{Query: "juniper mist vs extreme networks wireless", Intent: "comparison"},
}

type queryStepResult struct {
	Ran     int `json:"ran"`
	Skipped int `json:"skipped"`
}

type QueryScheduleProcessor struct {
	runnerService services.RunnerService
	lookupService services.LookupService
	client        inngestgo.Client
}

func NewQueryScheduleProcessor(runnerService services.RunnerService, lookupService services.LookupService) *QueryScheduleProcessor {
	return &QueryScheduleProcessor{
		runnerService: runnerService,
		lookupService: lookupService,
	}
}

func (p *QueryScheduleProcessor) SetClient(client inngestgo.Client) {
	p.client = client
}

// DailyQueryWorkflow executes the automated query plan across all engines
// each night. Queries that already ran today on an engine are skipped via
// the duplicate lookup so reruns of the workflow stay idempotent.
func (p *QueryScheduleProcessor) DailyQueryWorkflow() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:   "daily-query-processor",
			Name: "Daily Automated Query Runner",
		},
		inngestgo.CronTrigger("0 2 * * *"), // Every day at 2 AM UTC
		func(ctx context.Context, input inngestgo.Input[any]) (any, error) {
			allEngines := make([]string, 0, len(engines.All()))
			for _, eng := range engines.All() {
				allEngines = append(allEngines, string(eng))
			}

			executed := 0
			skipped := 0

			for i, planned := range defaultQueryPlan {
				req := planned
				req.PromptVersion = "v1"
				req.Temperature = 0.2

				stepName := fmt.Sprintf("run-query-%d", i)
				result, err := step.Run(ctx, stepName, func(ctx context.Context) (queryStepResult, error) {
					pending := allEngines
					if p.lookupService != nil {
						matches, err := p.lookupService.FindSameDayRuns(ctx, req.Query, allEngines)
						if err != nil {
							fmt.Printf("[DailyQueryWorkflow] lookup failed for %q: %v\n", req.Query, err)
						} else {
							covered := make(map[string]bool, len(matches))
							for _, m := range matches {
								covered[m.Engine] = true
							}
							pending = make([]string, 0, len(allEngines))
							for _, eng := range allEngines {
								if !covered[eng] {
									pending = append(pending, eng)
								}
							}
						}
					}

					if len(pending) == 0 {
						return queryStepResult{Skipped: len(allEngines)}, nil
					}

					req.Engines = pending
					runs, err := p.runnerService.RunQuery(ctx, req)
					if err != nil {
						return queryStepResult{}, err
					}
					return queryStepResult{
						Ran:     len(runs),
						Skipped: len(allEngines) - len(pending),
					}, nil
				})
				if err != nil {
					fmt.Printf("Warning: query %q failed: %v\n", req.Query, err)
					continue
				}

				executed += result.Ran
				skipped += result.Skipped
			}

			return map[string]interface{}{
				"queries_planned": len(defaultQueryPlan),
				"runs_executed":   executed,
				"runs_skipped":    skipped,
			}, nil
		},
	)
	if err != nil {
		fmt.Printf("Failed to create daily query processor function: %v\n", err)
	}
	return fn
}
