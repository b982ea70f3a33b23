package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"aqi-advisory/internal/models"
)

// Options configure where and how the index is kept.
type Options struct {
	Path       string
	Collection string
	InMemory   bool
	Compress   bool
	// SnapshotPath, when set, is a single-file export used to seed an empty index.
	SnapshotPath  string
	EncryptionKey string
}

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
	embed      chromem.EmbeddingFunc
	opts       Options
}

// NewVectorDBManager opens (or creates) the database and its collection.
// Persisted documents are loaded from disk as part of opening.
func NewVectorDBManager(opts Options, embedder embeddings.Embedder) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if opts.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(opts.Path, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:    db,
		embed: embeddingFunc(embedder),
		opts:  opts,
	}
	if _, err := m.GetOrCreateCollection(opts.Collection); err != nil {
		return nil, err
	}
	return m, nil
}

// embeddingFunc lets chromem embed through the configured langchaingo embedder
// instead of its built-in OpenAI default.
func embeddingFunc(e embeddings.Embedder) chromem.EmbeddingFunc {
	if e == nil {
		return nil
	}
	return func(ctx context.Context, text string) ([]float32, error) {
		return e.EmbedQuery(ctx, text)
	}
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(collectionName, nil, m.embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

func (m *VectorDBManager) Count(_ context.Context) (int, error) {
	return m.collection.Count(), nil
}

// Add stores chunks with their precomputed embeddings
func (m *VectorDBManager) Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d chunks but %d embeddings", len(chunks), len(vectors))
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:      c.ID,
			Content: c.Content,
			Metadata: map[string]string{
				"source":   c.Source,
				"chunk_id": strconv.Itoa(c.ChunkID),
			},
			Embedding: vectors[i],
		}
	}

	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Search returns up to k documents most similar to vector, ties broken by ID.
// chromem leaves the order of equal scores at its cutoff unspecified, so the
// whole collection is scored and trimmed here.
func (m *VectorDBManager) Search(ctx context.Context, vector []float32, k int) ([]models.Match, error) {
	if len(vector) == 0 {
		return nil, errors.New("query embedding must be provided")
	}

	n := m.collection.Count()
	if n == 0 || k <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	matches := make([]models.Match, len(results))
	for i, r := range results {
		matches[i] = models.Match{ID: r.ID, Content: r.Content, Similarity: r.Similarity}
	}
	models.SortMatches(matches)

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Export writes the collection to the snapshot file, if one is configured.
func (m *VectorDBManager) Export(_ context.Context) error {
	if m.opts.SnapshotPath == "" {
		return nil
	}

	log.Debug().
		Str("collection", m.collection.Name).
		Str("file", m.opts.SnapshotPath).
		Bool("compress", m.opts.Compress).
		Bool("encrypted", m.opts.EncryptionKey != "").
		Msg("Exporting vector index")

	err := m.db.ExportToFile(m.opts.SnapshotPath, m.opts.Compress, m.opts.EncryptionKey, m.collection.Name)
	if err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads the snapshot file into the collection. It reports false when
// no snapshot is configured or the file does not exist yet.
func (m *VectorDBManager) Import(_ context.Context) (bool, error) {
	if m.opts.SnapshotPath == "" {
		return false, nil
	}
	if _, err := os.Stat(m.opts.SnapshotPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	name := m.collection.Name
	if err := m.db.ImportFromFile(m.opts.SnapshotPath, m.opts.EncryptionKey, name); err != nil {
		return false, fmt.Errorf("failed to import database: %w", err)
	}

	c := m.db.GetCollection(name, m.embed)
	if c == nil {
		return false, fmt.Errorf("snapshot %s has no collection %q", m.opts.SnapshotPath, name)
	}
	m.collection = c
	return true, nil
}
