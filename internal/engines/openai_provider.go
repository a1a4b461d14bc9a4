// internal/engines/openai_provider.go
package engines

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brandsight/brandsight-workflows/internal/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openAIProvider struct {
	client *openai.Client
}

func NewOpenAIProvider(cfg *config.Config) Provider {
	client := openai.NewClient(
		option.WithAPIKey(cfg.OpenAIAPIKey),
	)

	return &openAIProvider{
		client: &client,
	}
}

func (p *openAIProvider) GetProviderName() string {
	return string(EngineOpenAI)
}

func (p *openAIProvider) RunQuery(ctx context.Context, prompt string, temperature float64, model string) (*Response, error) {
	if model == "" {
		model = EngineOpenAI.DefaultModel()
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(model),
	}

	// gpt-5 family rejects explicit temperature
	if !strings.HasPrefix(model, "gpt-5") {
		params.Temperature = openai.Float(temperature)
	}

	started := time.Now()
	chatResponse, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}

	if len(chatResponse.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices for model %s", model)
	}

	respModel := chatResponse.Model
	if respModel == "" {
		respModel = model
	}

	return &Response{
		Text:         chatResponse.Choices[0].Message.Content,
		Model:        respModel,
		InputTokens:  int(chatResponse.Usage.PromptTokens),
		OutputTokens: int(chatResponse.Usage.CompletionTokens),
		LatencyMS:    int(time.Since(started).Milliseconds()),
		CostUSD:      nil, // OpenAI does not report cost; the pricing service estimates it
	}, nil
}
