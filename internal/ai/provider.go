package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider is the external reasoning capability: one prompt in, one
// response out. Implementations must respect context cancellation.
type Provider interface {
	Invoke(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Options configures a langchaingo-backed provider.
type Options struct {
	Provider    string // openai, gemini, claude, ollama
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// LangchainProvider implements Provider over langchaingo model clients.
type LangchainProvider struct {
	llm     llms.Model
	options Options
}

// NewLangchainProvider creates a provider for the configured backend.
func NewLangchainProvider(ctx context.Context, options Options) (*LangchainProvider, error) {
	var model llms.Model
	var err error

	log.Debug().
		Str("provider", options.Provider).
		Str("model", options.Model).
		Float64("temperature", options.Temperature).
		Msg("Creating reasoning provider")

	switch options.Provider {
	case "openai":
		model, err = createOpenAIModel(options)
	case "gemini":
		model, err = createGeminiModel(ctx, options)
	case "claude":
		model, err = createAnthropicModel(options)
	case "ollama":
		model, err = createOllamaModel(options)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", options.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", options.Provider, err)
	}

	return &LangchainProvider{llm: model, options: options}, nil
}

// Invoke sends one prompt and returns the model's text response.
func (p *LangchainProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	callOptions := []llms.CallOption{
		llms.WithTemperature(p.options.Temperature),
	}
	if p.options.MaxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(p.options.MaxTokens))
	}

	return llms.GenerateFromSinglePrompt(ctx, p.llm, prompt, callOptions...)
}

// Name returns the configured backend name.
func (p *LangchainProvider) Name() string {
	return p.options.Provider
}

func createOpenAIModel(options Options) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(options.Model),
		openai.WithToken(options.APIKey),
	}
	if options.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(options.BaseURL))
	}
	return openai.New(opts...)
}

func createGeminiModel(ctx context.Context, options Options) (llms.Model, error) {
	opts := []googleai.Option{
		googleai.WithAPIKey(options.APIKey),
		googleai.WithDefaultModel(options.Model),
	}
	return googleai.New(ctx, opts...)
}

func createAnthropicModel(options Options) (llms.Model, error) {
	opts := []anthropic.Option{
		anthropic.WithToken(options.APIKey),
		anthropic.WithModel(options.Model),
	}
	return anthropic.New(opts...)
}

func createOllamaModel(options Options) (llms.Model, error) {
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	opts := []ollama.Option{
		ollama.WithServerURL(baseURL),
		ollama.WithModel(options.Model),
	}
	return ollama.New(opts...)
}
