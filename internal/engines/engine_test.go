package engines_test

import (
	"testing"

	"github.com/brandsight/brandsight-workflows/internal/engines"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expect    engines.Engine
		expectErr bool
	}{
		{
			name:   "canonical openai",
			input:  "openai",
			expect: engines.EngineOpenAI,
		},
		{
			name:   "gpt model name",
			input:  "gpt-4o-search-preview",
			expect: engines.EngineOpenAI,
		},
		{
			name:   "canonical anthropic",
			input:  "anthropic",
			expect: engines.EngineAnthropic,
		},
		{
			name:   "claude model name",
			input:  "claude-sonnet-4-20250514",
			expect: engines.EngineAnthropic,
		},
		{
			name:   "canonical perplexity",
			input:  "perplexity",
			expect: engines.EnginePerplexity,
		},
		{
			name:   "sonar model name",
			input:  "sonar-reasoning-pro",
			expect: engines.EnginePerplexity,
		},
		{
			name:   "case and whitespace insensitive",
			input:  "  OpenAI  ",
			expect: engines.EngineOpenAI,
		},
		{
			name:      "empty name",
			input:     "",
			expectErr: true,
		},
		{
			name:      "unknown engine",
			input:     "gemini",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engines.Normalize(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Errorf("expected error for %q, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.input, err)
			}
			if got != tt.expect {
				t.Errorf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestIsKnown(t *testing.T) {
	if !engines.IsKnown("sonar-pro") {
		t.Error("expected sonar-pro to be known")
	}
	if engines.IsKnown("mistral") {
		t.Error("expected mistral to be unknown")
	}
	if engines.IsKnown("") {
		t.Error("expected empty name to be unknown")
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input  string
		expect string
	}{
		{"openai", "OpenAI"},
		{"gpt-4o-search-preview", "OpenAI"},
		{"anthropic", "Anthropic"},
		{"sonar", "Perplexity"},
		{"gemini", "gemini"},
		{"", "Unknown"},
	}
	for _, tt := range tests {
		if got := engines.DisplayName(tt.input); got != tt.expect {
			t.Errorf("DisplayName(%q) = %q, expected %q", tt.input, got, tt.expect)
		}
	}
}

func TestDefaultModel(t *testing.T) {
	tests := []struct {
		engine engines.Engine
		expect string
	}{
		{engines.EngineOpenAI, "gpt-4o-search-preview"},
		{engines.EngineAnthropic, "claude-sonnet-4-20250514"},
		{engines.EnginePerplexity, "sonar"},
	}
	for _, tt := range tests {
		if got := tt.engine.DefaultModel(); got != tt.expect {
			t.Errorf("DefaultModel(%s) = %q, expected %q", tt.engine, got, tt.expect)
		}
	}
}

func TestAllCoversEveryEngine(t *testing.T) {
	all := engines.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 engines, got %d", len(all))
	}
	for _, eng := range all {
		if !engines.IsKnown(string(eng)) {
			t.Errorf("engine %q from All() is not known", eng)
		}
	}
}
