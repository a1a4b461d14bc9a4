// internal/store/csv_log.go
package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/brandsight/brandsight-workflows/internal/models"
)

// csvColumns is the fixed column order of the legacy flat-file export.
var csvColumns = []string{
	"ts", "run_id", "engine", "model", "prompt_version",
	"intent", "query", "status", "latency_ms",
	"input_tokens", "output_tokens", "cost_usd",
	"raw_excerpt", "entities", "links", "domains",
	"brand_mentioned", "brand_rank",
}

// CSVLog is the append-only write-through log of runs. It is not
// authoritative and may lag or diverge from the primary store; the database
// is the source of truth.
type CSVLog struct {
	path string
	mu   sync.Mutex
}

// NewCSVLog creates a log writing to path. Empty path disables logging.
func NewCSVLog(path string) *CSVLog {
	return &CSVLog{path: path}
}

// Append writes one run as a CSV row, creating the file with a header row if
// it does not exist yet.
func (l *CSVLog) Append(run *models.Run) error {
	if l == nil || l.path == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create csv log directory: %w", err)
	}

	_, statErr := os.Stat(l.path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open csv log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(csvColumns); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
	}

	row, err := csvRowFor(run)
	if err != nil {
		return err
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to append csv row: %w", err)
	}

	w.Flush()
	return w.Error()
}

func csvRowFor(run *models.Run) ([]string, error) {
	entities, err := json.Marshal(run.Entities)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entities for csv: %w", err)
	}
	links, err := json.Marshal(run.Links)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal links for csv: %w", err)
	}
	domains, err := json.Marshal(run.Domains)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal domains for csv: %w", err)
	}

	brandRank := ""
	if run.BrandRank != nil {
		brandRank = strconv.Itoa(*run.BrandRank)
	}

	return []string{
		run.TS.UTC().Format(time.RFC3339),
		run.ID,
		run.Engine,
		run.Model,
		run.PromptVersion,
		run.Intent,
		run.Query,
		run.Status,
		strconv.Itoa(run.LatencyMS),
		strconv.Itoa(run.InputTokens),
		strconv.Itoa(run.OutputTokens),
		strconv.FormatFloat(run.CostUSD, 'f', 6, 64),
		run.RawExcerpt,
		string(entities),
		string(links),
		string(domains),
		strconv.FormatBool(run.BrandMentioned),
		brandRank,
	}, nil
}
