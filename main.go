// main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/inngest/inngestgo"
	"github.com/joho/godotenv"
	"github.com/qdrant/go-client/qdrant"
	"github.com/typesense/typesense-go/v2/typesense"

	"github.com/brandsight/brandsight-workflows/internal/config"
	"github.com/brandsight/brandsight-workflows/internal/store"
	"github.com/brandsight/brandsight-workflows/services"
	"github.com/brandsight/brandsight-workflows/workflows"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("dev.env"); err != nil {
			log.Printf("Note: No .env or dev.env file loaded: %v", err)
		} else {
			log.Printf("Loaded dev.env file for local development")
		}
	} else {
		log.Printf("Loaded .env file")
	}

	cfg := config.Load()

	log.Printf("Environment: %s", cfg.Environment)
	log.Printf("Port: %s", cfg.Port)
	log.Printf("Database Host: %s", cfg.Database.Host)
	log.Printf("Database Name: %s", cfg.Database.Name)
	log.Printf("Tracked brand: %s", cfg.BrandName)

	if cfg.OpenAIAPIKey == "" {
		log.Printf("WARNING: OpenAI API key not loaded!")
	} else {
		log.Printf("OpenAI API key loaded (length: %d)", len(cfg.OpenAIAPIKey))
	}
	if cfg.AnthropicAPIKey == "" {
		log.Printf("WARNING: Anthropic API key not loaded!")
	}
	if cfg.PerplexityAPIKey == "" {
		log.Printf("WARNING: Perplexity API key not loaded!")
	}

	ctx := context.Background()
	dbClient, err := store.NewClient(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbClient.Close()
	log.Printf("Successfully connected to database")

	repoManager := store.NewRepositoryManager(dbClient)
	log.Printf("Repository manager initialized")

	if cfg.Environment == "development" || cfg.Environment == "" {
		os.Unsetenv("INNGEST_SIGNING_KEY")
		cfg.InngestSigningKey = ""
		log.Printf("Running in development mode - signing key verification disabled")
	}

	log.Println("Attempting to initialize Qdrant client...")
	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Qdrant.Host,
		Port: cfg.Qdrant.Port,
	})
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}
	log.Printf("Qdrant client object created for host: %s. Attempting to create collection...", cfg.Qdrant.Host)

	err = qdrantClient.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: services.RunQueryCollection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     services.RunQueryVectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		log.Printf("Qdrant collection create returned: %v (already exists is fine)", err)
	} else {
		log.Printf("Qdrant collection %q is ready.", services.RunQueryCollection)
	}

	log.Println("Attempting to initialize Typesense client...")
	typesenseClient := typesense.NewClient(
		typesense.WithServer(fmt.Sprintf("http://%s:%d", cfg.Typesense.Host, cfg.Typesense.Port)),
		typesense.WithAPIKey(cfg.Typesense.APIKey),
	)
	log.Printf("Typesense client object created for host: %s. Attempting to create collection...", cfg.Typesense.Host)

	_, err = typesenseClient.Collections().Create(ctx, services.RunSearchSchema())
	if err != nil {
		log.Printf("Typesense collection create returned: %v (already exists is fine)", err)
	} else {
		log.Printf("Typesense collection %q is ready.", services.RunSearchCollection)
	}

	// Wire up the service layer.
	extractService := services.NewExtractService(services.EntityTableForBrand(cfg.BrandName))
	citationService := services.NewCitationService(cfg, nil)
	pricingService := services.NewPricingService(services.DefaultPricingTable())
	lookupService := services.NewLookupService(cfg, qdrantClient)
	searchService := services.NewSearchService(typesenseClient)
	llmExtractService := services.NewLLMExtractService(cfg, citationService)

	csvLog := store.NewCSVLog(cfg.CSVLogPath)
	runnerService := services.NewRunnerService(
		cfg,
		repoManager.RunRepo,
		csvLog,
		extractService,
		citationService,
		pricingService,
		llmExtractService,
		lookupService,
		searchService,
		nil,
	)
	metricsService := services.NewMetricsService(repoManager.RunRepo, repoManager.MetricsRepo, citationService)
	insightsService := services.NewInsightsService(repoManager.RunRepo, extractService)
	log.Printf("Services initialized")

	client, err := inngestgo.NewClient(
		inngestgo.ClientOpts{
			AppID:    "brandsight-workflows",
			EventKey: inngestgo.StrPtr(cfg.InngestEventKey),
			Env:      inngestgo.StrPtr(cfg.Environment),
		},
	)
	if err != nil {
		log.Fatalf("Failed to create Inngest client: %v", err)
	}

	log.Printf("Initializing DailyMetricsProcessor workflow...")
	metricsProcessor := workflows.NewDailyMetricsProcessor(metricsService)
	metricsProcessor.SetClient(client)
	metricsProcessor.DailyMetricsWorkflow()
	metricsProcessor.RecomputeMetricsWorkflow()

	log.Printf("Initializing QueryScheduleProcessor workflow...")
	queryProcessor := workflows.NewQueryScheduleProcessor(runnerService, lookupService)
	queryProcessor.SetClient(client)
	queryProcessor.DailyQueryWorkflow()

	log.Printf("All processors initialized and functions registered")

	h := client.Serve()
	mux := http.NewServeMux()
	mux.Handle("/api/inngest", h)
	log.Printf("Inngest client started successfully...")

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"service":"brandsight-workflows","status":"running"}`))
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	writeJSON := func(w http.ResponseWriter, v interface{}, err error) {
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	intParam := func(r *http.Request, name string, fallback int) int {
		if raw := r.URL.Query().Get(name); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				return v
			}
		}
		return fallback
	}

	mux.HandleFunc("/insights/visibility", func(w http.ResponseWriter, r *http.Request) {
		report, err := insightsService.VisibilityReport(r.Context(), intParam(r, "days", 30), r.URL.Query().Get("engine"))
		writeJSON(w, report, err)
	})
	mux.HandleFunc("/insights/coverage-gaps", func(w http.ResponseWriter, r *http.Request) {
		report, err := insightsService.CoverageGaps(r.Context(), intParam(r, "days", 30), r.URL.Query().Get("engine"))
		writeJSON(w, report, err)
	})
	mux.HandleFunc("/insights/brand-intent", func(w http.ResponseWriter, r *http.Request) {
		report, err := insightsService.BrandIntent(r.Context(), intParam(r, "days", 30), r.URL.Query().Get("engine"))
		writeJSON(w, report, err)
	})
	mux.HandleFunc("/insights/entity-associations", func(w http.ResponseWriter, r *http.Request) {
		report, err := insightsService.EntityAssociations(r.Context(), intParam(r, "days", 30), r.URL.Query().Get("engine"))
		writeJSON(w, report, err)
	})
	mux.HandleFunc("/metrics/summary", func(w http.ResponseWriter, r *http.Request) {
		summary, err := metricsService.GetMetricsSummary(r.Context(), intParam(r, "days", 30))
		writeJSON(w, summary, err)
	})
	mux.HandleFunc("/stats/costs", func(w http.ResponseWriter, r *http.Request) {
		rollup, err := runnerService.GetCostRollup(r.Context())
		writeJSON(w, rollup, err)
	})
	mux.HandleFunc("/runs/search", func(w http.ResponseWriter, r *http.Request) {
		hits, err := searchService.SearchRuns(r.Context(), r.URL.Query().Get("q"), r.URL.Query().Get("engine"), intParam(r, "limit", 25))
		writeJSON(w, hits, err)
	})

	mux.HandleFunc("/test/trigger-metrics", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		date := r.URL.Query().Get("date")
		evt := inngestgo.Event{
			Name: "metrics/recompute.requested",
			Data: map[string]interface{}{"date": date, "engine": r.URL.Query().Get("engine")},
		}
		result, err := client.Send(r.Context(), evt)
		if err != nil {
			log.Printf("Failed to send recompute event: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(fmt.Sprintf(`{"error":"Failed to send event: %v"}`, err)))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(fmt.Sprintf(`{"status":"success","message":"Recompute requested for %s","event_ids":["%s"]}`, date, result)))
	})

	port := cfg.Port
	log.Printf("Starting Brandsight Workflows service on port %s", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatal(err)
	}
}
