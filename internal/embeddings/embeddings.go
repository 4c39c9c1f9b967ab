// Package embeddings provides text embedding services for fragment retrieval.
package embeddings

import (
	"context"
	"fmt"

	"github.com/nickcecere/docrag/internal/config"
)

// Provider represents an embedding provider type.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Service defines the interface for embedding services.
type Service interface {
	// Embed generates an embedding for the given text (for documents).
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery generates an embedding for a query (may use different task prefix).
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one vector per text
	// in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the expected embedding dimensions, or 0 when the
	// model is unknown and the first response decides.
	Dimensions() int

	// Provider returns the provider name.
	Provider() Provider

	// ModelName returns the model name.
	ModelName() string
}

// Known model dimensions
var modelDimensions = map[string]int{
	// Ollama models
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
	"bge-m3":                 1024,

	// OpenAI models
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,

	// DashScope (OpenAI-compatible)
	"text-embedding-v3": 1024,
	"text-embedding-v4": 1024,
}

// GetModelDimensions returns the known dimensions for a model, or 0 if unknown.
func GetModelDimensions(model string) int {
	return modelDimensions[model]
}

// NewService creates an embedding service based on the configuration.
func NewService(cfg *config.Config) (Service, error) {
	switch cfg.Embeddings.Provider {
	case "ollama":
		return NewOllamaService(
			cfg.Embeddings.Ollama.URL,
			cfg.Embeddings.Ollama.Model,
		)
	case "openai":
		return NewOpenAIService(
			cfg.Embeddings.OpenAI.APIKey,
			cfg.Embeddings.OpenAI.Model,
			cfg.Embeddings.OpenAI.BaseURL,
			cfg.Embeddings.OpenAI.Dimensions,
		)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embeddings.Provider)
	}
}

// ModelID identifies the provider and model a store was built with.
func ModelID(svc Service) string {
	return string(svc.Provider()) + "/" + svc.ModelName()
}

// NewBatcherFromConfig creates the configured service wrapped in a Batcher.
func NewBatcherFromConfig(cfg *config.Config) (*Batcher, error) {
	svc, err := NewService(cfg)
	if err != nil {
		return nil, err
	}
	opts := BatchOptions{
		BatchSize: cfg.Embeddings.BatchSize,
		Workers:   cfg.Embeddings.Workers,
	}
	if svc.Provider() == ProviderOpenAI {
		opts.Dimensions = cfg.Embeddings.OpenAI.Dimensions
	}
	return NewBatcher(svc, opts)
}
