package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"study-rag/internal/config"
	"study-rag/internal/helper"
	"study-rag/internal/models"
)

const (
	metaSource = "source"
	metaPage   = "page"
	metaChunk  = "chunk"
)

var errNoEmbeddingFunc = errors.New("chromem store only accepts precomputed embeddings")

// Store keeps one chromem collection per namespace. The index name is the
// directory under the configured path.
type Store struct {
	db       *chromem.DB
	dbPath   string
	inMemory bool
	index    string
	dim      int
}

// NewStore opens an in-memory or file-persisted chromem database
func NewStore(cfg config.ChromemConfig, index config.IndexConfig) (*Store, error) {
	s := &Store{
		dbPath:   filepath.Join(cfg.Path, index.Name),
		inMemory: cfg.InMemory,
		index:    index.Name,
		dim:      index.Dimension,
	}
	if cfg.InMemory {
		s.db = chromem.NewDB()
		return s, nil
	}

	if err := helper.CreateFolder(s.dbPath); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStore, err)
	}
	db, err := chromem.NewPersistentDB(s.dbPath, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", models.ErrStore, err)
	}
	s.db = db
	return s, nil
}

// EnsureIndex is a no-op: the database directory is created on open and
// collections on first upsert.
func (s *Store) EnsureIndex(ctx context.Context) error {
	log.Debug().Str("index", s.index).Str("path", s.dbPath).Bool("in_memory", s.inMemory).Msg("Using chromem index")
	return nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

func (s *Store) collection(namespace string) (*chromem.Collection, error) {
	c, err := s.db.GetOrCreateCollection(namespace, map[string]string{"index": s.index}, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create/get collection %s: %w", models.ErrStore, namespace, err)
	}
	return c, nil
}

func (s *Store) Upsert(ctx context.Context, namespace string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		if err := models.CheckDimension(r.ID, r.Values, s.dim); err != nil {
			return err
		}
		docs = append(docs, chromem.Document{
			ID:      r.ID,
			Content: r.Metadata.Text,
			Metadata: map[string]string{
				metaSource: r.Metadata.Source,
				metaPage:   strconv.Itoa(r.Metadata.Page),
				metaChunk:  strconv.Itoa(r.Metadata.Chunk),
			},
			// chromem normalizes in place
			Embedding: append([]float32(nil), r.Values...),
		})
	}

	c, err := s.collection(namespace)
	if err != nil {
		return err
	}
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: failed to add documents: %w", models.ErrStore, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int, namespace string, includeMetadata bool) ([]models.Match, error) {
	if err := models.CheckDimension("query", vector, s.dim); err != nil {
		return nil, err
	}
	c := s.db.GetCollection(namespace, noEmbedding)
	if c == nil {
		return nil, fmt.Errorf("%w: namespace %q does not exist in index %q", models.ErrStore, namespace, s.index)
	}

	// chromem rejects nResults larger than the collection
	n := min(topK, c.Count())
	if n <= 0 {
		return []models.Match{}, nil
	}

	results, err := c.QueryEmbedding(ctx, append([]float32(nil), vector...), n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query by similarity: %w", models.ErrStore, err)
	}

	matches := make([]models.Match, 0, len(results))
	for _, r := range results {
		m := models.Match{ID: r.ID, Score: r.Similarity}
		if includeMetadata {
			m.Metadata = toMetadata(r)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func toMetadata(r chromem.Result) *models.Metadata {
	page, _ := strconv.Atoi(r.Metadata[metaPage])
	chunk, _ := strconv.Atoi(r.Metadata[metaChunk])
	return &models.Metadata{
		Source: r.Metadata[metaSource],
		Page:   page,
		Chunk:  chunk,
		Text:   r.Content,
	}
}

func (s *Store) Count(ctx context.Context, namespace string) (int, error) {
	c := s.db.GetCollection(namespace, noEmbedding)
	if c == nil {
		return 0, nil
	}
	return c.Count(), nil
}

func (s *Store) Close() error { return nil }
