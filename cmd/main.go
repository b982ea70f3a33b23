package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"aqi-advisory/internal/chromemdb"
	"aqi-advisory/internal/config"
	"aqi-advisory/internal/db"
	"aqi-advisory/internal/embedding"
	"aqi-advisory/internal/helper"
	"aqi-advisory/internal/rag"
	"aqi-advisory/internal/server"
)

const defaultConfigPath = "config.yaml"

func main() {
	if err := config.LoadEnv(".env"); err != nil {
		log.Fatal().Err(err).Msg("Error loading .env")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Error loading config")
	}
	helper.SetupLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	log.Debug().
		Str("backend", cfg.RAG.Backend).
		Str("provider", cfg.EmbedLLM.Provider).
		Str("model", cfg.EmbedLLM.Model).
		Str("guidelines", cfg.RAG.GuidelinesPath).
		Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating embedder")
	}

	store, closeStore, err := newStore(ctx, cfg, embedder)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.RAG.Backend).Msg("Error opening vector store")
	}
	defer closeStore()

	log.Info().Msg("Loading health guidelines and initializing vector database...")
	retriever, err := rag.NewIndexer(store, embedder, cfg.RAG).Initialize(ctx)
	if err != nil {
		closeStore()
		log.Fatal().Err(err).Msg("Error initializing vector database")
	}
	log.Info().Msg("Backend ready! Starting server...")

	router := server.NewRouter(server.NewHandler(retriever, cfg.RAG.TopK), &cfg.Server)
	srv := server.New(&cfg.Server, router)

	if err := server.Run(ctx, srv, cfg.Server.ShutdownTimeout); err != nil {
		closeStore()
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server exited")
}

// newStore opens the configured vector index backend.
func newStore(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder) (rag.Store, func(), error) {
	switch cfg.RAG.Backend {
	case config.BackendPGVector:
		store, err := db.NewPGVectorStore(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing database")
			}
		}, nil
	default:
		if err := helper.CreateFolder(cfg.RAG.IndexPath); err != nil {
			return nil, nil, err
		}
		store, err := chromemdb.NewVectorDBManager(chromemdb.Options{
			Path:          cfg.RAG.IndexPath,
			Collection:    cfg.RAG.Collection,
			Compress:      cfg.RAG.Compress,
			SnapshotPath:  cfg.RAG.SnapshotPath,
			EncryptionKey: cfg.RAG.EncryptionKey,
		}, embedder)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}
