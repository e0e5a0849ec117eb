package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"study-rag/internal/config"
	"study-rag/internal/models"
)

// Embedder maps text to fixed-length vectors. The same instance, and so the
// same model, must be used for ingestion and for queries.
type Embedder struct {
	client embeddings.Embedder
	dim    int
}

// New wraps an existing langchaingo embedder
func New(client embeddings.Embedder, dim int) *Embedder {
	if dim <= 0 {
		dim = models.DefaultDimension
	}
	return &Embedder{client: client, dim: dim}
}

// NewEmbedder builds the embedder described by cfg. Ollama is the default
// provider; "openai" targets any OpenAI-compatible embeddings endpoint.
func NewEmbedder(cfg config.LLMConfig, dim int) (*Embedder, error) {
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating embedder")

	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		client, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	case "openai":
		client, err = openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", models.ErrEmbedding, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: init %s: %w", models.ErrEmbedding, cfg.Provider, err)
	}

	impl, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEmbedding, err)
	}
	return New(impl, dim), nil
}

func (e *Embedder) Dimension() int { return e.dim }

// EmbedQuery embeds a single text. Empty text is sent to the model as is.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.client.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEmbedding, err)
	}
	if err := e.check(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedDocuments embeds texts in order, one vector per text
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.client.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEmbedding, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", models.ErrEmbedding, len(vecs), len(texts))
	}
	for _, v := range vecs {
		if err := e.check(v); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

func (e *Embedder) check(vec []float32) error {
	if len(vec) != e.dim {
		return fmt.Errorf("%w: model returned %d dimensions, index expects %d", models.ErrEmbedding, len(vec), e.dim)
	}
	return nil
}
