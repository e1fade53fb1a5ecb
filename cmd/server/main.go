package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/localledger/receipt-backend/api"
	"github.com/localledger/receipt-backend/internal/completion"
	"github.com/localledger/receipt-backend/internal/config"
	"github.com/localledger/receipt-backend/internal/extractor"
	"github.com/localledger/receipt-backend/internal/ingest"
	"github.com/localledger/receipt-backend/internal/query"
	"github.com/localledger/receipt-backend/internal/storage"
	"github.com/localledger/receipt-backend/internal/store"
	"github.com/localledger/receipt-backend/internal/vectorindex"
)

func main() {
	ctx := context.Background()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	st, err := store.Open(ctx, cfg.StorePath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()
	log.Println("Relational store initialized")

	index, err := newVectorIndex(ctx, cfg, st)
	if err != nil {
		log.Fatalf("Failed to initialize vector index: %v", err)
	}
	log.Printf("Vector index initialized (backend=%s)", cfg.VectorBackend)

	provider, err := newCompletionProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize completion provider: %v", err)
	}
	limited := completion.NewLimited(provider, cfg.MaxInFlightCompletions)

	images, err := newImageBackend(cfg)
	if err != nil {
		log.Printf("Warning: image storage not available: %v", err)
	}

	ingestor := ingest.New(st, index, limited)
	if err := ingestor.ReconcileAll(ctx); err != nil {
		log.Printf("Warning: startup reconciliation sweep failed: %v", err)
	}
	go reconcileLoop(ctx, ingestor)

	ext := extractor.New(limited)
	planner := query.New(st, index, limited, limited)

	handler := api.New(st, index, ingestor, ext, planner, images, limited)
	router := handler.Routes()

	addr := fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort)
	log.Printf("Starting receipt backend on %s", addr)
	log.Printf("Vector backend: %s", cfg.VectorBackend)
	log.Printf("AI provider: %s", cfg.AIProvider)
	log.Printf("Endpoints:")
	log.Printf("  GET  http://%s/api/health", addr)
	log.Printf("  GET  http://%s/api/receipts", addr)
	log.Printf("  POST http://%s/api/ingest", addr)
	log.Printf("  POST http://%s/api/extract", addr)
	log.Printf("  POST http://%s/api/extract/upload", addr)
	log.Printf("  GET  http://%s/api/audit", addr)
	log.Printf("  GET  http://%s/api/analytics/summary", addr)
	log.Printf("  POST http://%s/api/chat/query", addr)

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// newVectorIndex picks the persistent backend (sharing the relational
// store's pgx pool) or the in-memory one.
func newVectorIndex(ctx context.Context, cfg config.Config, st *store.PGStore) (vectorindex.Index, error) {
	if cfg.VectorBackend == "persistent" {
		return vectorindex.NewPostgres(ctx, st.Pool(), cfg.EmbeddingDim)
	}
	return vectorindex.NewMemory(), nil
}

// newCompletionProvider builds the completion.Provider selected by
// cfg.AIProvider. The OpenAI-compatible provider is the default and needs
// no API key for local servers (e.g. Ollama); selecting Gemini explicitly
// without GEMINI_API_KEY is a configuration error.
func newCompletionProvider(ctx context.Context, cfg config.Config) (completion.Provider, error) {
	switch cfg.AIProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("AI_PROVIDER=gemini but GEMINI_API_KEY is not set")
		}
		return completion.NewGemini(ctx, cfg.GeminiAPIKey, cfg.CompletionEndpoint, cfg.VisionModel, cfg.TextModel, cfg.EmbeddingDim)

	default:
		return completion.NewOpenAICompatible(cfg.CompletionEndpoint, cfg.OpenAIAPIKey, cfg.VisionModel, cfg.TextModel, cfg.EmbeddingDim), nil
	}
}

// newImageBackend picks MinIO when configured, else local disk under
// ./data/images.
func newImageBackend(cfg config.Config) (storage.Backend, error) {
	if cfg.MinIOEndpoint != "" {
		return storage.NewMinIO(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL)
	}
	return storage.NewLocal("./data/images", "/images")
}

// reconcileLoop periodically retries vector-index upserts that failed at
// ingest time (the bounded-backoff reconciliation queue).
func reconcileLoop(ctx context.Context, ingestor *ingest.Ingestor) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ingestor.RunReconciliation(ctx)
		}
	}
}
