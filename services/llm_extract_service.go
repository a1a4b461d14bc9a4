// services/llm_extract_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/brandsight/brandsight-workflows/internal/config"
)

// SourcesResponse is the structured output for LLM source extraction.
type SourcesResponse struct {
	Sources []SourceExtract `json:"sources" jsonschema_description:"Source references the answer relies on"`
}

type SourceExtract struct {
	URL  *string `json:"url" jsonschema_description:"Full URL of the source if one is given, null otherwise"`
	Name string  `json:"name" jsonschema_description:"Name of the publication, site or document"`
}

var sourcesResponseSchema = GenerateSchema[SourcesResponse]()

type llmExtractService struct {
	cfg          *config.Config
	openAIClient *openai.Client
	citations    CitationService
}

// NewLLMExtractService builds the fallback source extractor used when regex
// extraction finds no links in an answer that clearly references sources.
func NewLLMExtractService(cfg *config.Config, citations CitationService) LLMExtractService {
	fmt.Printf("[NewLLMExtractService] Creating service with OpenAI key (length: %d)\n", len(cfg.OpenAIAPIKey))

	client := openai.NewClient(
		option.WithAPIKey(cfg.OpenAIAPIKey),
	)

	return &llmExtractService{
		cfg:          cfg,
		openAIClient: &client,
		citations:    citations,
	}
}

func (s *llmExtractService) ExtractSources(ctx context.Context, answerText string) ([]string, error) {
	if strings.TrimSpace(answerText) == "" {
		return []string{}, nil
	}

	model := openai.ChatModel("gpt-4o-mini")

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "source_extraction",
		Description: openai.String("Extract source references from an AI search answer"),
		Schema:      sourcesResponseSchema,
		Strict:      openai.Bool(true),
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are an analyst extracting source references from AI search answers. List every source the answer cites or clearly relies on. Only include URLs that appear in the text."),
			openai.UserMessage(s.buildPrompt(answerText)),
		},
		Model: model,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
		},
		Temperature: openai.Float(0.1),
	}

	chatResponse, err := s.openAIClient.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to extract sources: %w", err)
	}
	if len(chatResponse.Choices) == 0 {
		return nil, fmt.Errorf("no completion choices returned")
	}

	var parsed SourcesResponse
	if err := json.Unmarshal([]byte(chatResponse.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}

	urls := make([]string, 0, len(parsed.Sources))
	seen := make(map[string]bool)
	for _, src := range parsed.Sources {
		if src.URL == nil || *src.URL == "" {
			continue
		}
		normalized := s.citations.NormalizeURL(*src.URL)
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		urls = append(urls, normalized)
	}

	fmt.Printf("[ExtractSources] Extracted %d source URLs\n", len(urls))
	return urls, nil
}

func (s *llmExtractService) buildPrompt(answerText string) string {
	return fmt.Sprintf(`Extract the sources referenced in this AI search answer.

ANSWER:
%s

Return every distinct source. Include the URL only when it appears verbatim in the answer.`, answerText)
}

// GenerateSchema generates a JSON schema for structured outputs
func GenerateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var zero T
	schema := reflector.Reflect(zero)

	result := map[string]interface{}{
		"type":       "object",
		"properties": schema.Properties,
		"required":   schema.Required,
	}

	if schema.AdditionalProperties != nil {
		result["additionalProperties"] = false
	}

	return result
}
