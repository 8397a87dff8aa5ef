package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder turns texts into vectors, one per input in the same order.
// An empty input slice returns an empty output without a backend call.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API via
// langchaingo. One instance is safe for concurrent use.
type OpenAIEmbedder struct {
	embedder *embeddings.EmbedderImpl
	model    string
	timeout  time.Duration
}

// EmbedderConfig configures an OpenAIEmbedder.
type EmbedderConfig struct {
	APIKey  string
	Model   string
	BaseURL string        // optional, for OpenAI-compatible endpoints
	Timeout time.Duration // per-call timeout, 0 means 30s
}

// NewOpenAIEmbedder creates an embedder for the configured model.
func NewOpenAIEmbedder(config EmbedderConfig) (*OpenAIEmbedder, error) {
	opts := []openai.Option{
		openai.WithToken(config.APIKey),
		openai.WithEmbeddingModel(config.Model),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	log.Debug().Str("model", config.Model).Msg("Created OpenAI embedder")

	return &OpenAIEmbedder{
		embedder: embedder,
		model:    config.Model,
		timeout:  timeout,
	}, nil
}

// Embed returns one vector per input text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	return vectors, nil
}
