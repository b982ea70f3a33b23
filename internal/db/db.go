package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"aqi-advisory/internal/config"
	"aqi-advisory/internal/models"
)

// chunkRecord is one row of the chunk table; the table name is set per query.
type chunkRecord struct {
	bun.BaseModel `bun:"alias:gc"`
	ID            int64   `bun:"id,pk,autoincrement"`
	DocID         string  `bun:"doc_id,notnull"`
	Content       string  `bun:"content,notnull"`
	Source        string  `bun:"source"`
	ChunkID       int     `bun:"chunk_id"`
	Embedding     string  `bun:"embedding,notnull"`
	Similarity    float32 `bun:"similarity,scanonly"`
}

// PGVectorStore keeps guideline chunks in a Postgres table with a pgvector column.
type PGVectorStore struct {
	db         *bun.DB
	table      string
	dimensions int
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(dsn string) *sql.DB {
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
}

// NewPGVectorStore connects, enables the vector extension and creates the
// chunk table if it does not exist.
func NewPGVectorStore(ctx context.Context, cfg *config.DatabaseConfig) (*PGVectorStore, error) {
	db := NewDB(ConnectDB(cfg.DSN), cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &PGVectorStore{db: db, table: cfg.Table, dimensions: cfg.Dimensions}
	if err := s.InitDB(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGVectorStore) InitDB(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}

	_, err := s.db.NewRaw(`CREATE TABLE IF NOT EXISTS ? (
	id bigserial PRIMARY KEY,
	doc_id text NOT NULL UNIQUE,
	content text NOT NULL,
	source text,
	chunk_id integer,
	embedding vector(?) NOT NULL
)`, bun.Ident(s.table), s.dimensions).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

func (s *PGVectorStore) tableExpr() (string, bun.Ident) {
	return "? AS gc", bun.Ident(s.table)
}

func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	expr, table := s.tableExpr()
	return s.db.NewSelect().Model((*chunkRecord)(nil)).ModelTableExpr(expr, table).Count(ctx)
}

func (s *PGVectorStore) Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d chunks but %d embeddings", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	records := make([]chunkRecord, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != s.dimensions {
			return fmt.Errorf("chunk %d: embedding has %d dimensions, table expects %d", c.ChunkID, len(vectors[i]), s.dimensions)
		}
		records[i] = chunkRecord{
			DocID:     c.ID,
			Content:   c.Content,
			Source:    c.Source,
			ChunkID:   c.ChunkID,
			Embedding: vectorLiteral(vectors[i]),
		}
	}

	expr, table := s.tableExpr()
	_, err := s.db.NewInsert().
		Model(&records).
		ModelTableExpr(expr, table).
		ExcludeColumn("id").
		On("CONFLICT (doc_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	log.Debug().Int("rows", len(records)).Str("table", s.table).Msg("Stored chunks")
	return nil
}

// Search orders by cosine distance, then doc_id for stable ties.
func (s *PGVectorStore) Search(ctx context.Context, vector []float32, k int) ([]models.Match, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	if k <= 0 {
		return nil, nil
	}

	lit := vectorLiteral(vector)
	var rows []chunkRecord
	expr, table := s.tableExpr()
	err := s.db.NewSelect().
		Model(&rows).
		ModelTableExpr(expr, table).
		Column("doc_id", "content").
		ColumnExpr("1 - (embedding <=> ?::vector) AS similarity", lit).
		OrderExpr("embedding <=> ?::vector", lit).
		OrderExpr("doc_id").
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	matches := make([]models.Match, len(rows))
	for i, r := range rows {
		matches[i] = models.Match{ID: r.DocID, Content: r.Content, Similarity: r.Similarity}
	}
	return matches, nil
}

// DropChunks removes the chunk table so the next start rebuilds it.
func (s *PGVectorStore) DropChunks(ctx context.Context) error {
	_, err := s.db.NewDropTable().Model((*chunkRecord)(nil)).ModelTableExpr("?", bun.Ident(s.table)).IfExists().Exec(ctx)
	return err
}

func (s *PGVectorStore) Close() error {
	return s.db.Close()
}

// vectorLiteral renders v in pgvector's text input format, e.g. [0.1,0.2].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
