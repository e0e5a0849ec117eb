package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"study-rag/internal/chromemdb"
	"study-rag/internal/config"
	"study-rag/internal/db"
	"study-rag/internal/models"
	"study-rag/internal/pinecone"
	"study-rag/internal/redisdb"
)

// Store is a similarity index over records, partitioned by namespace
type Store interface {
	// EnsureIndex creates the index with the configured dimension and cosine
	// metric if it does not exist yet
	EnsureIndex(ctx context.Context) error
	// Upsert inserts or overwrites records by id
	Upsert(ctx context.Context, namespace string, records []models.Record) error
	// Query returns up to topK matches ordered by descending similarity
	Query(ctx context.Context, vector []float32, topK int, namespace string, includeMetadata bool) ([]models.Match, error)
	Count(ctx context.Context, namespace string) (int, error)
	Close() error
}

var (
	_ Store = (*pinecone.Store)(nil)
	_ Store = (*chromemdb.Store)(nil)
	_ Store = (*db.Store)(nil)
	_ Store = (*redisdb.Store)(nil)
)

// Open returns the backend selected by cfg.VectorStore.Type
func Open(cfg *config.Config) (Store, error) {
	switch strings.ToLower(cfg.VectorStore.Type) {
	case "", "pinecone":
		return pinecone.NewStore(cfg.VectorStore.Pinecone, cfg.Index), nil
	case "chromem":
		return chromemdb.NewStore(cfg.VectorStore.Chromem, cfg.Index)
	case "pgvector", "postgres":
		return db.NewStore(cfg.VectorStore.Database, cfg.Index)
	case "redis":
		return redisdb.NewStore(cfg.VectorStore.Redis, cfg.Index), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store %q", models.ErrStore, cfg.VectorStore.Type)
	}
}
