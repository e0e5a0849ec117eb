package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"study-rag/internal/config"
	"study-rag/internal/models"
)

// Chunk is one row of the index table. The table is named after the index.
type Chunk struct {
	bun.BaseModel `bun:"alias:c"`

	Namespace  string          `bun:"namespace,pk"`
	ID         string          `bun:"id,pk"`
	Source     string          `bun:"source,notnull"`
	Page       int             `bun:"page,notnull"`
	ChunkIndex int             `bun:"chunk,notnull"`
	Content    string          `bun:"content,notnull"`
	Embedding  pgvector.Vector `bun:"embedding,notnull"`
	Score      float32         `bun:"score,scanonly"`
}

// Store keeps vectors in a PostgreSQL table with the pgvector extension
type Store struct {
	db    *bun.DB
	table string
	dim   int
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens dsn with either the bun pgdriver or lib/pq
func ConnectDB(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "", "pgdriver":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), nil
	case "pq", "postgres":
		return sql.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("%w: unsupported database driver %q", models.ErrStore, driver)
	}
}

func NewStore(cfg config.DatabaseConfig, index config.IndexConfig) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: database url is required", models.ErrStore)
	}
	sqldb, err := ConnectDB(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStore, err)
	}
	return &Store{db: NewDB(sqldb, cfg.Debug), table: index.Name, dim: index.Dimension}, nil
}

// EnsureIndex creates the extension, table and HNSW cosine index if missing
func (s *Store) EnsureIndex(ctx context.Context) error {
	stmts := []struct {
		query string
		args  []any
	}{
		{"CREATE EXTENSION IF NOT EXISTS vector", nil},
		{`CREATE TABLE IF NOT EXISTS ? (
			namespace text NOT NULL,
			id text NOT NULL,
			source text NOT NULL,
			page integer NOT NULL,
			chunk integer NOT NULL,
			content text NOT NULL,
			embedding vector(?) NOT NULL,
			PRIMARY KEY (namespace, id)
		)`, []any{bun.Ident(s.table), s.dim}},
		{"CREATE INDEX IF NOT EXISTS ? ON ? USING hnsw (embedding vector_cosine_ops)",
			[]any{bun.Ident(s.table + "_embedding_idx"), bun.Ident(s.table)}},
	}
	for _, st := range stmts {
		if _, err := s.db.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("%w: init table %s: %w", models.ErrStore, s.table, err)
		}
	}
	log.Debug().Str("table", s.table).Int("dimension", s.dim).Msg("pgvector index ready")
	return nil
}

func (s *Store) rows(namespace string, records []models.Record) ([]Chunk, error) {
	rows := make([]Chunk, 0, len(records))
	for _, r := range records {
		if err := models.CheckDimension(r.ID, r.Values, s.dim); err != nil {
			return nil, err
		}
		rows = append(rows, Chunk{
			Namespace:  namespace,
			ID:         r.ID,
			Source:     r.Metadata.Source,
			Page:       r.Metadata.Page,
			ChunkIndex: r.Metadata.Chunk,
			Content:    r.Metadata.Text,
			Embedding:  pgvector.NewVector(r.Values),
		})
	}
	return rows, nil
}

func (s *Store) Upsert(ctx context.Context, namespace string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows, err := s.rows(namespace, records)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().
		Model(&rows).
		ModelTableExpr("?", bun.Ident(s.table)).
		On("CONFLICT (namespace, id) DO UPDATE").
		Set("source = EXCLUDED.source").
		Set("page = EXCLUDED.page").
		Set("chunk = EXCLUDED.chunk").
		Set("content = EXCLUDED.content").
		Set("embedding = EXCLUDED.embedding").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: upsert into %s: %w", models.ErrStore, s.table, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int, namespace string, includeMetadata bool) ([]models.Match, error) {
	if err := models.CheckDimension("query", vector, s.dim); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []models.Match{}, nil
	}

	vec := pgvector.NewVector(vector)
	var rows []Chunk
	err := s.db.NewSelect().
		Model(&rows).
		ModelTableExpr("? AS c", bun.Ident(s.table)).
		Column("id", "source", "page", "chunk", "content").
		ColumnExpr("1 - (embedding <=> ?) AS score", vec).
		Where("namespace = ?", namespace).
		OrderExpr("embedding <=> ?", vec).
		Limit(topK).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %w", models.ErrStore, s.table, err)
	}
	return toMatches(rows, includeMetadata), nil
}

func toMatches(rows []Chunk, includeMetadata bool) []models.Match {
	matches := make([]models.Match, 0, len(rows))
	for _, r := range rows {
		m := models.Match{ID: r.ID, Score: r.Score}
		if includeMetadata {
			m.Metadata = &models.Metadata{
				Source: r.Source,
				Page:   r.Page,
				Chunk:  r.ChunkIndex,
				Text:   r.Content,
			}
		}
		matches = append(matches, m)
	}
	return matches
}

func (s *Store) Count(ctx context.Context, namespace string) (int, error) {
	n, err := s.db.NewSelect().
		TableExpr("?", bun.Ident(s.table)).
		Where("namespace = ?", namespace).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count %s: %w", models.ErrStore, s.table, err)
	}
	return n, nil
}

// DropTable removes the whole index
func (s *Store) DropTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS ?", bun.Ident(s.table)); err != nil {
		return fmt.Errorf("%w: drop %s: %w", models.ErrStore, s.table, err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }
