package store_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brandsight/brandsight-workflows/internal/models"
	"github.com/brandsight/brandsight-workflows/internal/store"
)

func sampleRun(id string) *models.Run {
	rank := 2
	return &models.Run{
		ID:             id,
		TS:             time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Engine:         "perplexity",
		Model:          "sonar",
		PromptVersion:  "v1",
		Intent:         "generic_intent",
		Query:          "best campus switches",
		Status:         models.RunStatusOK,
		LatencyMS:      1200,
		InputTokens:    100,
		OutputTokens:   400,
		CostUSD:        0.0025,
		RawExcerpt:     "Cisco and Extreme Networks lead.",
		Entities:       []models.EntityMention{{Name: "Cisco", FirstPos: 0}, {Name: "Extreme Networks", FirstPos: 10}},
		Links:          []string{"https://cisco.com/a"},
		Domains:        []string{"cisco.com"},
		BrandMentioned: true,
		BrandRank:      &rank,
	}
}

func TestCSVLogAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "runs.csv")
	l := store.NewCSVLog(path)

	if err := l.Append(sampleRun("run_1")); err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	if err := l.Append(sampleRun("run_2")); err != nil {
		t.Fatalf("second append failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}

	header := rows[0]
	if header[0] != "ts" || header[1] != "run_id" || header[len(header)-1] != "brand_rank" {
		t.Errorf("unexpected header: %v", header)
	}

	first := rows[1]
	if first[1] != "run_1" || first[2] != "perplexity" || first[3] != "sonar" {
		t.Errorf("unexpected first row: %v", first)
	}
	if first[0] != "2026-08-30T12:00:00Z" {
		t.Errorf("expected RFC3339 timestamp, got %q", first[0])
	}
	if first[11] != "0.002500" {
		t.Errorf("expected six decimal cost, got %q", first[11])
	}
	if first[16] != "true" || first[17] != "2" {
		t.Errorf("unexpected brand columns: %q %q", first[16], first[17])
	}

	if rows[2][1] != "run_2" {
		t.Errorf("expected appended row for run_2, got %v", rows[2])
	}
}

func TestCSVLogDisabled(t *testing.T) {
	l := store.NewCSVLog("")
	if err := l.Append(sampleRun("run_1")); err != nil {
		t.Errorf("disabled log must be a no-op, got %v", err)
	}

	var nilLog *store.CSVLog
	if err := nilLog.Append(sampleRun("run_1")); err != nil {
		t.Errorf("nil log must be a no-op, got %v", err)
	}
}
