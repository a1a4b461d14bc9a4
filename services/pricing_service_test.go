package services_test

import (
	"testing"

	"github.com/brandsight/brandsight-workflows/services"
)

func TestPricesForModel(t *testing.T) {
	svc := services.NewPricingService(services.DefaultPricingTable())

	tests := []struct {
		name         string
		model        string
		expectInput  float64
		expectOutput float64
	}{
		{
			name:         "exact sonar-pro",
			model:        "sonar-pro",
			expectInput:  0.0030,
			expectOutput: 0.0150,
		},
		{
			name:         "exact sonar base",
			model:        "sonar",
			expectInput:  0.0010,
			expectOutput: 0.0010,
		},
		{
			name:         "exact sonar-deep-research",
			model:        "sonar-deep-research",
			expectInput:  0.0020,
			expectOutput: 0.0080,
		},
		{
			name:         "sonar prefix for unknown variant",
			model:        "sonar-experimental",
			expectInput:  0.0030,
			expectOutput: 0.0150,
		},
		{
			name:         "gpt-5-mini dated snapshot via prefix",
			model:        "gpt-5-mini-2025-09-01",
			expectInput:  0.0006,
			expectOutput: 0.0024,
		},
		{
			name:         "perplexity prefix falls back to defaults",
			model:        "perplexity-online",
			expectInput:  0.0025,
			expectOutput: 0.0100,
		},
		{
			name:         "exact gpt-4o search preview",
			model:        "gpt-4o-search-preview",
			expectInput:  0.00015,
			expectOutput: 0.0006,
		},
		{
			name:         "unknown model uses defaults",
			model:        "claude-sonnet-4-20250514",
			expectInput:  0.0025,
			expectOutput: 0.0100,
		},
		{
			name:         "empty model uses defaults",
			model:        "",
			expectInput:  0.0025,
			expectOutput: 0.0100,
		},
		{
			name:         "whitespace trimmed",
			model:        "  sonar-pro  ",
			expectInput:  0.0030,
			expectOutput: 0.0150,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out := svc.PricesForModel(tt.model)
			if in != tt.expectInput || out != tt.expectOutput {
				t.Errorf("expected (%v, %v), got (%v, %v)", tt.expectInput, tt.expectOutput, in, out)
			}
		})
	}
}

func TestEstimateCost(t *testing.T) {
	svc := services.NewPricingService(services.DefaultPricingTable())

	t.Run("reported cost wins", func(t *testing.T) {
		reported := 0.123456
		got := svc.EstimateCost(1000, 1000, &reported, "sonar")
		if got != reported {
			t.Errorf("expected reported %v, got %v", reported, got)
		}
	})

	t.Run("derived from token counts", func(t *testing.T) {
		got := svc.EstimateCost(1000, 1000, nil, "sonar")
		if got != 0.002 {
			t.Errorf("expected 0.002, got %v", got)
		}
	})

	t.Run("rounds to six decimals", func(t *testing.T) {
		// 123/1000*0.0030 + 456/1000*0.0150 = 0.000369 + 0.00684
		got := svc.EstimateCost(123, 456, nil, "sonar-pro")
		if got != 0.007209 {
			t.Errorf("expected 0.007209, got %v", got)
		}
	})

	t.Run("negative token counts clamp to zero", func(t *testing.T) {
		got := svc.EstimateCost(-10, -10, nil, "sonar")
		if got != 0 {
			t.Errorf("expected 0, got %v", got)
		}
	})

	t.Run("zero tokens no reported cost", func(t *testing.T) {
		got := svc.EstimateCost(0, 0, nil, "gpt-4o-search-preview")
		if got != 0 {
			t.Errorf("expected 0, got %v", got)
		}
	})
}
