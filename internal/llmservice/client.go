package llmservice

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"study-rag/internal/config"
)

// Client calls an OpenAI-compatible chat completion endpoint (Groq by default)
type Client struct {
	cfg config.LLMConfig
}

func NewClient(cfg config.LLMConfig) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) Model() string { return c.cfg.Model }

// GenerateContent builds a fresh model per call, so a missing key is reported
// by the call that needs it.
func (c *Client) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	log.Debug().Str("base_url", c.cfg.BaseURL).Str("model", c.cfg.Model).Int("messages", len(messages)).Msg("Generating content")
	llm, err := openai.New(
		openai.WithBaseURL(c.cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(c.cfg.Key, "Bearer ")),
		openai.WithModel(c.cfg.Model),
	)
	if err != nil {
		return nil, err
	}
	return llm.GenerateContent(ctx, messages, options...)
}
