package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"aqi-advisory/internal/config"
	"aqi-advisory/internal/models"
	"aqi-advisory/internal/parser"
)

var (
	// ErrConfiguration means startup inputs are missing or unusable.
	ErrConfiguration = errors.New("configuration error")
	// ErrIndexNotReady is returned by a Retriever that was never initialized.
	ErrIndexNotReady = errors.New("vector database not initialized")
)

// Store persists chunk embeddings and answers nearest neighbour queries.
type Store interface {
	Count(ctx context.Context) (int, error)
	Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, k int) ([]models.Match, error)
}

// Snapshotter is implemented by stores that can seed themselves from, and
// write themselves to, a single snapshot file.
type Snapshotter interface {
	Import(ctx context.Context) (bool, error)
	Export(ctx context.Context) error
}

type Indexer struct {
	store    Store
	embedder embeddings.Embedder
	cfg      config.RAGConfig
}

func NewIndexer(store Store, embedder embeddings.Embedder, cfg config.RAGConfig) *Indexer {
	return &Indexer{store: store, embedder: embedder, cfg: cfg}
}

// Initialize loads and chunks the guidelines, then either reuses the
// populated store or embeds every chunk into it. The returned Retriever is
// the only way to query the index.
func (ix *Indexer) Initialize(ctx context.Context) (*Retriever, error) {
	path := ix.cfg.GuidelinesPath

	chunks, err := parser.ParseGuidelines(path, ix.cfg.ChunkSize, ix.cfg.ChunkOverlap)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: health guidelines file not found at %s", ErrConfiguration, path)
		case errors.Is(err, parser.ErrEmptyDocument):
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return nil, fmt.Errorf("failed to parse guidelines: %w", err)
	}

	count, err := ix.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect vector index: %w", err)
	}

	if s, ok := ix.store.(Snapshotter); ok && count == 0 {
		imported, err := s.Import(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to import snapshot: %w", err)
		}
		if imported {
			if count, err = ix.store.Count(ctx); err != nil {
				return nil, fmt.Errorf("failed to inspect vector index: %w", err)
			}
			log.Info().Int("documents", count).Msg("Seeded vector index from snapshot")
		}
	}

	if count > 0 {
		log.Info().Int("documents", count).Msg("Loaded existing vector index")
	} else {
		if err := ix.build(ctx, chunks); err != nil {
			return nil, err
		}
	}

	log.Info().Msgf("Vector database initialized with %d chunks", len(chunks))
	return &Retriever{store: ix.store, embedder: ix.embedder}, nil
}

func (ix *Indexer) build(ctx context.Context, chunks []models.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	log.Info().Int("chunks", len(chunks)).Msg("Embedding guideline chunks")
	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed guidelines: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	if err := ix.store.Add(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("failed to store embeddings: %w", err)
	}

	if s, ok := ix.store.(Snapshotter); ok {
		if err := s.Export(ctx); err != nil {
			return fmt.Errorf("failed to export snapshot: %w", err)
		}
	}
	return nil
}

// Retriever answers similarity queries against an initialized index. The
// zero value is not ready.
type Retriever struct {
	store    Store
	embedder embeddings.Embedder
}

// Search returns the text of the k chunks closest to query, best first.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]string, error) {
	if r == nil || r.store == nil || r.embedder == nil {
		return nil, ErrIndexNotReady
	}
	if k <= 0 {
		return nil, nil
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := r.store.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector index: %w", err)
	}
	models.SortMatches(matches)

	if len(matches) > k {
		matches = matches[:k]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Content
	}
	return out, nil
}

