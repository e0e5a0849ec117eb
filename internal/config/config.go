package config

import (
	"errors"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"study-rag/internal/models"
)

type Config struct {
	Index       IndexConfig       `yaml:"index"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	EmbedLLM    LLMConfig         `yaml:"embed_llm"`
	ChatLLM     LLMConfig         `yaml:"chat_llm"`
	RAG         RAGConfig         `yaml:"rag"`
	OCR         OCRConfig         `yaml:"ocr"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// IndexConfig names the single index/namespace pair the app works against
type IndexConfig struct {
	Name      string `yaml:"name" env:"INDEX_NAME"`
	Namespace string `yaml:"namespace" env:"INDEX_NAMESPACE"`
	Dimension int    `yaml:"dimension"`
	Metric    string `yaml:"metric"`
}

type VectorStoreConfig struct {
	Type     string         `yaml:"type" env:"VECTOR_STORE"`
	Pinecone PineconeConfig `yaml:"pinecone"`
	Chromem  ChromemConfig  `yaml:"chromem"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
}

type PineconeConfig struct {
	APIKey string `yaml:"api_key" env:"PINECONE_API_KEY"`
	Cloud  string `yaml:"cloud"`
	Region string `yaml:"region"`
}

type ChromemConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
	Compress bool   `yaml:"compress"`
}

type DatabaseConfig struct {
	URL    string `yaml:"url" env:"DATABASE_URL"`
	Driver string `yaml:"driver"` // pgdriver or pq
	Debug  bool   `yaml:"debug"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

type RAGConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	TopK      int `yaml:"top_k"`
	BatchSize int `yaml:"batch_size"`
}

type OCRConfig struct {
	Mode     string  `yaml:"mode"` // ocr or text
	Language string  `yaml:"language"`
	DPI      float64 `yaml:"dpi"`
}

type ServerConfig struct {
	Addr  string `yaml:"addr" env:"SERVER_ADDR"`
	Title string `yaml:"title"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Pretty bool   `yaml:"pretty"`
}

// secrets are only ever read from the environment
type secrets struct {
	GroqKey      string `env:"GROQ_API_KEY"`
	OllamaURL    string `env:"OLLAMA_URL"`
	EmbeddingKey string `env:"EMBEDDING_API_KEY"`
}

// LoadConfig reads the YAML file at path (defaults are used when it is missing),
// loads .env if present and applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	_ = godotenv.Load()

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	var s secrets
	if err := env.Parse(&s); err != nil {
		return nil, err
	}
	if s.GroqKey != "" {
		cfg.ChatLLM.Key = s.GroqKey
	}
	if s.OllamaURL != "" && cfg.EmbedLLM.Provider != "openai" {
		cfg.EmbedLLM.BaseURL = s.OllamaURL
	}
	if s.EmbeddingKey != "" {
		cfg.EmbedLLM.Key = s.EmbeddingKey
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Index.Name == "" {
		cfg.Index.Name = models.DefaultIndexName
	}
	if cfg.Index.Namespace == "" {
		cfg.Index.Namespace = models.DefaultNamespace
	}
	if cfg.Index.Dimension == 0 {
		cfg.Index.Dimension = models.DefaultDimension
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = models.MetricCosine
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "pinecone"
	}
	if cfg.VectorStore.Pinecone.Cloud == "" {
		cfg.VectorStore.Pinecone.Cloud = "aws"
	}
	if cfg.VectorStore.Pinecone.Region == "" {
		cfg.VectorStore.Pinecone.Region = "us-east-1"
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "./chromemdb"
	}
	if cfg.VectorStore.Database.Driver == "" {
		cfg.VectorStore.Database.Driver = "pgdriver"
	}
	if cfg.VectorStore.Redis.Addr == "" {
		cfg.VectorStore.Redis.Addr = "localhost:6379"
	}

	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "ollama"
	}
	if cfg.EmbedLLM.BaseURL == "" && cfg.EmbedLLM.Provider == "ollama" {
		cfg.EmbedLLM.BaseURL = "http://localhost:11434"
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = models.DefaultEmbedModel
	}

	if cfg.ChatLLM.BaseURL == "" {
		cfg.ChatLLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.ChatLLM.Model == "" {
		cfg.ChatLLM.Model = models.DefaultChatModel
	}

	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = models.DefaultChunkSize
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = models.DefaultTopK
	}
	if cfg.RAG.BatchSize == 0 {
		cfg.RAG.BatchSize = 100
	}

	if cfg.OCR.Mode == "" {
		cfg.OCR.Mode = "ocr"
	}
	if cfg.OCR.Language == "" {
		cfg.OCR.Language = "eng"
	}
	if cfg.OCR.DPI == 0 {
		cfg.OCR.DPI = 200
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8501"
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = "Physics"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
