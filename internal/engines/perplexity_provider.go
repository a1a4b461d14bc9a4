// internal/engines/perplexity_provider.go
package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brandsight/brandsight-workflows/internal/config"
)

type perplexityProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewPerplexityProvider(cfg *config.Config) Provider {
	return &perplexityProvider{
		apiKey:  cfg.PerplexityAPIKey,
		baseURL: "https://api.perplexity.ai",
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (p *perplexityProvider) GetProviderName() string {
	return string(EnginePerplexity)
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityRequest struct {
	Model       string              `json:"model"`
	Messages    []perplexityMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
}

type perplexityResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int      `json:"prompt_tokens"`
		CompletionTokens int      `json:"completion_tokens"`
		CostUSD          *float64 `json:"cost_usd,omitempty"`
	} `json:"usage"`
}

func (p *perplexityProvider) RunQuery(ctx context.Context, prompt string, temperature float64, model string) (*Response, error) {
	if model == "" {
		model = EnginePerplexity.DefaultModel()
	}

	reqBody := perplexityRequest{
		Model: model,
		Messages: []perplexityMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal perplexity request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create perplexity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perplexity request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read perplexity response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("perplexity returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed perplexityResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse perplexity response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("perplexity returned no choices for model %s", model)
	}

	respModel := parsed.Model
	if respModel == "" {
		respModel = model
	}

	return &Response{
		Text:         parsed.Choices[0].Message.Content,
		Model:        respModel,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		LatencyMS:    int(time.Since(started).Milliseconds()),
		CostUSD:      parsed.Usage.CostUSD,
	}, nil
}
