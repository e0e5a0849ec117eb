package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"study-rag/internal/metrics"
	"study-rag/internal/models"
	"study-rag/internal/vectorstore"
)

// Embedder is the part of embedding.Embedder the pipelines need
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator is a chat completion model
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

var errNoChoices = errors.New("model returned no choices")

// RAG answers questions from the notes stored in one namespace
type RAG struct {
	embedder  Embedder
	store     vectorstore.Store
	llm       Generator
	namespace string
	topK      int
	metrics   *metrics.Metrics
}

func NewRAG(embedder Embedder, store vectorstore.Store, llm Generator, namespace string, topK int, m *metrics.Metrics) *RAG {
	if topK <= 0 {
		topK = models.DefaultTopK
	}
	return &RAG{
		embedder:  embedder,
		store:     store,
		llm:       llm,
		namespace: namespace,
		topK:      topK,
		metrics:   m,
	}
}

// Answer returns the model's explanation for query
func (r *RAG) Answer(ctx context.Context, query string) (string, error) {
	res, err := r.Query(ctx, query)
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// Query runs embed, retrieve and generate, returning the matches used as context.
// Every failure is reported as models.ErrGeneration wrapping the cause.
func (r *RAG) Query(ctx context.Context, query string) (res *models.PromptResponse, err error) {
	start := time.Now()
	defer func() {
		n := 0
		if res != nil {
			n = len(res.Matches)
		}
		r.metrics.ObserveAnswer(start, n, err)
	}()

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrGeneration, err)
	}

	matches, err := r.store.Query(ctx, vec, r.topK, r.namespace, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrGeneration, err)
	}
	if len(matches) > r.topK {
		matches = matches[:r.topK]
	}
	log.Debug().Int("matches", len(matches)).Str("namespace", r.namespace).Msg("Retrieved context")

	resp, err := r.llm.GenerateContent(ctx, BuildMessages(BuildContext(matches), query))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %w", models.ErrGeneration, errNoChoices)
	}

	return &models.PromptResponse{
		Query:   query,
		Answer:  resp.Choices[0].Content,
		Matches: matches,
	}, nil
}

// BuildContext joins the matches' chunk text in the order given
func BuildContext(matches []models.Match) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m.ContextText())
	}
	return strings.Join(parts, models.ContextSeparator)
}

// BuildMessages is the two-turn conversation sent to the chat model
func BuildMessages(contextBlock, query string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, models.SystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(models.UserPromptTemplate, contextBlock, query)),
	}
}
