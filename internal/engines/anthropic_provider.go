// internal/engines/anthropic_provider.go
package engines

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/brandsight/brandsight-workflows/internal/config"
)

type anthropicProvider struct {
	client *anthropic.Client
}

func NewAnthropicProvider(cfg *config.Config) Provider {
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.AnthropicAPIKey),
	)

	return &anthropicProvider{
		client: &client,
	}
}

func (p *anthropicProvider) GetProviderName() string {
	return string(EngineAnthropic)
}

func (p *anthropicProvider) RunQuery(ctx context.Context, prompt string, temperature float64, model string) (*Response, error) {
	if model == "" {
		model = EngineAnthropic.DefaultModel()
	}

	messages := []anthropic.MessageParam{{
		Content: []anthropic.ContentBlockParamUnion{{
			OfText: &anthropic.TextBlockParam{Text: prompt},
		}},
		Role: anthropic.MessageParamRoleUser,
	}}

	started := time.Now()
	response, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   2000,
		System:      []anthropic.TextBlockParam{{Text: SystemPrompt}},
		Messages:    messages,
		Temperature: anthropic.Float(temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic message failed: %w", err)
	}

	text := p.extractResponseText(response)
	if text == "" {
		return nil, fmt.Errorf("anthropic returned no text content for model %s", model)
	}

	return &Response{
		Text:         text,
		Model:        string(response.Model),
		InputTokens:  int(response.Usage.InputTokens),
		OutputTokens: int(response.Usage.OutputTokens),
		LatencyMS:    int(time.Since(started).Milliseconds()),
		CostUSD:      nil,
	}, nil
}

// extractResponseText concatenates the text blocks of a message response.
func (p *anthropicProvider) extractResponseText(response *anthropic.Message) string {
	var parts []string
	for _, block := range response.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}
