// internal/engines/engine.go
package engines

import (
	"fmt"
	"strings"
)

// Engine is the closed set of supported AI search engines. All engine-name
// handling goes through Normalize so substring checks never leak into call
// sites.
type Engine string

const (
	EngineOpenAI     Engine = "openai"
	EngineAnthropic  Engine = "anthropic"
	EnginePerplexity Engine = "perplexity"
)

// All returns every supported engine, in stable order.
func All() []Engine {
	return []Engine{EngineOpenAI, EngineAnthropic, EnginePerplexity}
}

// Normalize maps an engine or model identifier to its canonical Engine.
// Accepts the canonical names plus the model-family spellings that show up
// in stored data ("gpt-4o-search-preview", "claude-sonnet-4", "sonar-pro").
func Normalize(name string) (Engine, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", fmt.Errorf("empty engine name")
	}

	switch {
	case n == string(EngineOpenAI), strings.HasPrefix(n, "openai"), strings.HasPrefix(n, "gpt"):
		return EngineOpenAI, nil
	case n == string(EngineAnthropic), strings.HasPrefix(n, "anthropic"), strings.HasPrefix(n, "claude"):
		return EngineAnthropic, nil
	case n == string(EnginePerplexity), strings.HasPrefix(n, "perplexity"), strings.HasPrefix(n, "sonar"):
		return EnginePerplexity, nil
	}

	return "", fmt.Errorf("unsupported engine: %s", name)
}

// IsKnown reports whether name resolves to a supported engine.
func IsKnown(name string) bool {
	_, err := Normalize(name)
	return err == nil
}

// DisplayName returns the dashboard label for an engine identifier,
// falling back to the raw value for unknown engines.
func DisplayName(name string) string {
	eng, err := Normalize(name)
	if err != nil {
		if name == "" {
			return "Unknown"
		}
		return name
	}
	switch eng {
	case EngineOpenAI:
		return "OpenAI"
	case EngineAnthropic:
		return "Anthropic"
	case EnginePerplexity:
		return "Perplexity"
	}
	return name
}

// DefaultModel returns the model used when a caller does not pin one.
func (e Engine) DefaultModel() string {
	switch e {
	case EngineOpenAI:
		return "gpt-4o-search-preview"
	case EngineAnthropic:
		return "claude-sonnet-4-20250514"
	case EnginePerplexity:
		return "sonar"
	}
	return ""
}
