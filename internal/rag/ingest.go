package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"study-rag/internal/metrics"
	"study-rag/internal/models"
	"study-rag/internal/parser"
	"study-rag/internal/vectorstore"
)

const defaultBatchSize = 100

// Ingestor loads one PDF into the store: extract, chunk, embed, upsert
type Ingestor struct {
	extractor parser.Extractor
	embedder  Embedder
	store     vectorstore.Store
	namespace string
	chunkSize int
	batchSize int
	metrics   *metrics.Metrics
}

func NewIngestor(extractor parser.Extractor, embedder Embedder, store vectorstore.Store, namespace string, chunkSize, batchSize int, m *metrics.Metrics) *Ingestor {
	if chunkSize <= 0 {
		chunkSize = models.DefaultChunkSize
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Ingestor{
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		namespace: namespace,
		chunkSize: chunkSize,
		batchSize: batchSize,
		metrics:   m,
	}
}

// Ingest returns the number of chunks upserted. Pages without recognizable
// text are skipped. Re-ingesting the same file overwrites its records.
func (in *Ingestor) Ingest(ctx context.Context, filePath string) (int, error) {
	if err := in.store.EnsureIndex(ctx); err != nil {
		return 0, err
	}

	pages, err := in.extractor.Extract(ctx, filePath)
	if err != nil {
		return 0, err
	}

	source := parser.SourceName(filePath)
	withText := make([]models.Page, 0, len(pages))
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			log.Warn().Int("page", p.Number).Str("source", source).Msg("No text on page, skipping")
			continue
		}
		withText = append(withText, p)
	}
	empty := len(pages) - len(withText)
	chunks := parser.ChunkPages(withText, source, in.chunkSize)
	log.Info().Str("source", source).Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Chunked document")

	total := 0
	for start := 0; start < len(chunks); start += in.batchSize {
		batch := chunks[start:min(start+in.batchSize, len(chunks))]
		n, err := in.upsertBatch(ctx, batch)
		if err != nil {
			return total, err
		}
		total += n
	}

	in.metrics.ObserveIngest(len(pages), empty, total)
	return total, nil
}

func (in *Ingestor) upsertBatch(ctx context.Context, batch []models.Chunk) (int, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}
	vecs, err := in.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vecs) != len(batch) {
		return 0, fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrEmbedding, len(vecs), len(batch))
	}

	records := make([]models.Record, len(batch))
	for i, c := range batch {
		records[i] = models.NewRecord(c, vecs[i])
	}
	if err := in.store.Upsert(ctx, in.namespace, records); err != nil {
		return 0, err
	}
	log.Debug().Int("records", len(records)).Str("first", records[0].ID).Msg("Upserted batch")
	return len(records), nil
}
