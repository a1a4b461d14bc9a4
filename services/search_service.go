// services/search_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"

	"github.com/brandsight/brandsight-workflows/internal/models"
)

// RunSearchCollection is the Typesense collection backing the dashboard's
// run table.
const RunSearchCollection = "runs"

// RunSearchSchema describes the indexed run document.
func RunSearchSchema() *api.CollectionSchema {
	return &api.CollectionSchema{
		Name: RunSearchCollection,
		Fields: []api.Field{
			{Name: "query", Type: "string"},
			{Name: "engine", Type: "string", Facet: pointer.True()},
			{Name: "model", Type: "string", Facet: pointer.True()},
			{Name: "ts", Type: "int64", Sort: pointer.True()},
		},
		DefaultSortingField: pointer.String("ts"),
	}
}

type searchService struct {
	typesenseClient *typesense.Client
}

// NewSearchService builds the run search index over Typesense.
func NewSearchService(typesenseClient *typesense.Client) SearchService {
	return &searchService{typesenseClient: typesenseClient}
}

func (s *searchService) IndexRun(ctx context.Context, run *models.Run) error {
	doc := map[string]interface{}{
		"id":     run.ID,
		"query":  run.Query,
		"engine": run.Engine,
		"model":  run.Model,
		"ts":     run.TS.Unix(),
	}

	action := "upsert"
	_, err := s.typesenseClient.Collection(RunSearchCollection).Documents().Import(ctx, []interface{}{doc}, &api.ImportDocumentsParams{Action: &action})
	if err != nil {
		return fmt.Errorf("failed to index run %s: %w", run.ID, err)
	}
	return nil
}

func (s *searchService) SearchRuns(ctx context.Context, queryText, engine string, limit int) ([]RunHit, error) {
	if limit <= 0 {
		limit = 25
	}

	params := &api.SearchCollectionParams{
		Q:       pointer.String(queryText),
		QueryBy: pointer.String("query"),
		SortBy:  pointer.String("ts:desc"),
		PerPage: pointer.Int(limit),
	}
	if engine != "" {
		params.FilterBy = pointer.String(fmt.Sprintf("engine:=%s", engine))
	}

	result, err := s.typesenseClient.Collection(RunSearchCollection).Documents().Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search runs: %w", err)
	}

	hits := []RunHit{}
	if result.Hits == nil {
		return hits, nil
	}
	for _, hit := range *result.Hits {
		if hit.Document == nil {
			continue
		}
		doc := *hit.Document
		hits = append(hits, RunHit{
			ID:     stringField(doc, "id"),
			Query:  stringField(doc, "query"),
			Engine: stringField(doc, "engine"),
			Model:  stringField(doc, "model"),
			TS:     time.Unix(int64Field(doc, "ts"), 0).UTC(),
		})
	}
	return hits, nil
}

func stringField(doc map[string]interface{}, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

func int64Field(doc map[string]interface{}, key string) int64 {
	switch v := doc[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
