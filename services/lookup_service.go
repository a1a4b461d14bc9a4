// services/lookup_service.go
package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/qdrant/go-client/qdrant"

	"github.com/brandsight/brandsight-workflows/internal/config"
	"github.com/brandsight/brandsight-workflows/internal/models"
)

const (
	// RunQueryCollection is the Qdrant collection holding query embeddings.
	RunQueryCollection = "run_queries"
	// RunQueryVectorSize matches the embedding model's output dimension.
	RunQueryVectorSize = 1536

	embeddingModel     = "text-embedding-3-small"
	duplicateThreshold = 0.90
	lookupScanLimit    = 200
)

var queryNormWhitespaceRE = regexp.MustCompile(`\s+`)

type lookupService struct {
	qdrantClient *qdrant.Client
	openAIClient *openai.Client
}

// NewLookupService builds the same-day duplicate finder over Qdrant.
func NewLookupService(cfg *config.Config, qdrantClient *qdrant.Client) LookupService {
	client := openai.NewClient(
		option.WithAPIKey(cfg.OpenAIAPIKey),
	)
	return &lookupService{
		qdrantClient: qdrantClient,
		openAIClient: &client,
	}
}

// normalizeQueryText reduces a query to lowercase alphanumeric words so
// trivial punctuation and quoting differences compare equal.
func normalizeQueryText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, `'"`)
	var b strings.Builder
	for _, ch := range s {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == ' ' {
			b.WriteRune(ch)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.TrimSpace(queryNormWhitespaceRE.ReplaceAllString(b.String(), " "))
}

func (s *lookupService) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.openAIClient.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
		Model: embeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	vector := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

func (s *lookupService) IndexRun(ctx context.Context, run *models.Run) error {
	norm := normalizeQueryText(run.Query)
	if norm == "" {
		return nil
	}

	vector, err := s.embed(ctx, norm)
	if err != nil {
		return fmt.Errorf("failed to embed query for run %s: %w", run.ID, err)
	}

	payload := qdrant.NewValueMap(map[string]any{
		"run_id":     run.ID,
		"engine":     run.Engine,
		"query_norm": norm,
		"ts":         run.TS.Format(time.RFC3339),
		"day":        run.TS.UTC().Format("2006-01-02"),
	})

	waitUpsert := true
	_, err = s.qdrantClient.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: RunQueryCollection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(uuid.New().String()),
				Vectors: qdrant.NewVectors(vector...),
				Payload: payload,
			},
		},
		Wait: &waitUpsert,
	})
	if err != nil {
		return fmt.Errorf("failed to index run %s: %w", run.ID, err)
	}
	return nil
}

func (s *lookupService) FindSameDayRuns(ctx context.Context, queryText string, engineFilter []string) ([]models.LookupMatch, error) {
	norm := normalizeQueryText(queryText)
	if norm == "" {
		return []models.LookupMatch{}, nil
	}

	today := time.Now().UTC().Format("2006-01-02")

	// Exact normalized match first.
	exactFilter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("day", today),
			qdrant.NewMatch("query_norm", norm),
		},
	}
	points, err := s.qdrantClient.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: RunQueryCollection,
		Filter:         exactFilter,
		Limit:          qdrant.PtrOf(uint32(lookupScanLimit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan for exact matches: %w", err)
	}

	matches := latestPerEngine(payloadsOf(points), engineFilter)
	if len(matches) > 0 {
		return matches, nil
	}

	// Fall back to embedding similarity above the duplicate threshold.
	vector, err := s.embed(ctx, norm)
	if err != nil {
		return nil, err
	}

	scored, err := s.qdrantClient.Query(ctx, &qdrant.QueryPoints{
		CollectionName: RunQueryCollection,
		Query:          qdrant.NewQuery(vector...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("day", today),
			},
		},
		Limit:          qdrant.PtrOf(uint64(lookupScanLimit)),
		ScoreThreshold: qdrant.PtrOf(float32(duplicateThreshold)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query similar runs: %w", err)
	}

	payloads := make([]map[string]*qdrant.Value, 0, len(scored))
	for _, p := range scored {
		payloads = append(payloads, p.Payload)
	}
	return latestPerEngine(payloads, engineFilter), nil
}

func payloadsOf(points []*qdrant.RetrievedPoint) []map[string]*qdrant.Value {
	out := make([]map[string]*qdrant.Value, 0, len(points))
	for _, p := range points {
		out = append(out, p.Payload)
	}
	return out
}

// latestPerEngine keeps the most recent match per engine, most recent
// first.
func latestPerEngine(payloads []map[string]*qdrant.Value, engineFilter []string) []models.LookupMatch {
	allowed := make(map[string]bool, len(engineFilter))
	for _, e := range engineFilter {
		allowed[e] = true
	}

	best := make(map[string]models.LookupMatch)
	for _, payload := range payloads {
		runID := payload["run_id"].GetStringValue()
		engine := payload["engine"].GetStringValue()
		tsRaw := payload["ts"].GetStringValue()
		if runID == "" || engine == "" {
			continue
		}
		if len(engineFilter) > 0 && !allowed[engine] {
			continue
		}
		ts, err := time.Parse(time.RFC3339, tsRaw)
		if err != nil {
			continue
		}
		if existing, ok := best[engine]; !ok || ts.After(existing.TS) {
			best[engine] = models.LookupMatch{ID: runID, Engine: engine, TS: ts}
		}
	}

	matches := make([]models.LookupMatch, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].TS.After(matches[j].TS)
	})
	return matches
}
