// internal/engines/provider.go
package engines

import (
	"context"
	"fmt"

	"github.com/brandsight/brandsight-workflows/internal/config"
)

// Provider is the call_engine boundary: one query in, one normalized
// response out.
type Provider interface {
	RunQuery(ctx context.Context, prompt string, temperature float64, model string) (*Response, error)
	GetProviderName() string
}

// NewProvider creates the provider for an engine or model identifier.
func NewProvider(name string, cfg *config.Config) (Provider, error) {
	engine, err := Normalize(name)
	if err != nil {
		return nil, err
	}

	switch engine {
	case EngineOpenAI:
		return NewOpenAIProvider(cfg), nil
	case EngineAnthropic:
		return NewAnthropicProvider(cfg), nil
	case EnginePerplexity:
		return NewPerplexityProvider(cfg), nil
	}

	return nil, fmt.Errorf("no provider for engine: %s", engine)
}
