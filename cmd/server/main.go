package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"pdfchat/internal/config"
	"pdfchat/internal/server"
	"pdfchat/internal/util"
	"pdfchat/internal/worker"
	"pdfchat/pkg/ai"
	"pdfchat/pkg/queue"
	"pdfchat/pkg/rag"
	"pdfchat/pkg/storage"
	"pdfchat/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := buildStore(cfg)
	if err != nil {
		util.Fatal("failed to init store", "err", err)
	}

	generator, err := buildGenerator(cfg)
	if err != nil {
		util.Fatal("failed to init generation provider", "err", err)
	}
	embedder, err := buildEmbedder(cfg)
	if err != nil {
		util.Fatal("failed to init embedding provider", "err", err)
	}

	engine, err := rag.New(rag.Config{
		Store:             dataStore,
		Generator:         generator,
		Embedder:          embedder,
		TopK:              cfg.TopK,
		MaxChunkSize:      cfg.MaxChunkSize,
		EmbedConcurrency:  cfg.EmbedConcurrency,
		GenerationTimeout: time.Duration(cfg.GenerationTimeoutSeconds) * time.Second,
	})
	if err != nil {
		util.Fatal("failed to init engine", "err", err)
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			util.Fatal("failed to init object store", "err", err)
		}
		objects = minioStore
	}

	var jobs *queue.RedisJobQueue
	if cfg.RedisAddr != "" {
		jobs, err = queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			Stream:     cfg.QueueStream,
			Group:      cfg.QueueGroup,
			MaxRetries: cfg.QueueMaxRetries,
		})
		if err != nil {
			util.Fatal("failed to init job queue", "err", err)
		}
		w := worker.New(engine, objects, jobs, logger)
		w.Start(context.Background(), cfg.QueueConcurrency)
		slog.Info("ingestion workers started", "concurrency", cfg.QueueConcurrency)
	}

	httpServer := server.New(server.Config{
		Engine:         engine,
		Objects:        objects,
		Jobs:           jobs,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("pdfchat server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func buildStore(cfg config.FileConfig) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("no databaseURL configured, using in-memory store")
		return store.NewMemoryStore(), nil
	}
	return store.NewGormStore(cfg.DatabaseURL, store.WithEmbeddingDim(cfg.EmbeddingDim))
}

func buildGenerator(cfg config.FileConfig) (ai.TextGenerator, error) {
	switch cfg.GenerationProvider {
	case "none":
		return nil, nil
	case "gemini":
		client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return ai.NewGeminiGenerator(client, cfg.GenerationModel), nil
	case "ollama":
		return ai.NewOllamaGenerator(ai.NewOllamaClient(cfg.GenerationBaseURL), cfg.GenerationModel), nil
	case "openai":
		return ai.NewOpenAICompatGenerator(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.GenerationModel), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.GenerationProvider)
	}
}

func buildEmbedder(cfg config.FileConfig) (ai.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "hash":
		// nil selects the engine's deterministic hash embedder
		return nil, nil
	case "gemini":
		client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return ai.NewGeminiEmbedder(client, cfg.EmbeddingModel), nil
	case "ollama":
		return ai.NewOllamaEmbedder(ai.NewOllamaClient(cfg.EmbeddingBaseURL), cfg.EmbeddingModel, cfg.EmbeddingDim), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}
