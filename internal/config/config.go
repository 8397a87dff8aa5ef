package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the complete application configuration. It is constructed once
// at process start and passed explicitly to every component that needs it.
type Config struct {
	General struct {
		DefaultPlatform string `koanf:"default_platform"`
		LogLevel        string `koanf:"log_level"`
	} `koanf:"general"`

	AI struct {
		Provider           string  `koanf:"provider"` // openai, gemini, claude, ollama
		APIKey             string  `koanf:"api_key"`
		Model              string  `koanf:"model"`
		BaseURL            string  `koanf:"base_url"`
		Temperature        float64 `koanf:"temperature"`
		MaxTokens          int     `koanf:"max_tokens"`
		TimeoutSeconds     int     `koanf:"timeout_seconds"`
		MaxRetries         int     `koanf:"max_retries"`
		MaxConcurrentCalls int64   `koanf:"max_concurrent_calls"`
	} `koanf:"ai"`

	Embedding struct {
		APIKey  string `koanf:"api_key"`
		Model   string `koanf:"model"`
		BaseURL string `koanf:"base_url"`
	} `koanf:"embedding"`

	Platforms struct {
		GitHub struct {
			Token string `koanf:"token"`
		} `koanf:"github"`
		GitLab struct {
			URL   string `koanf:"url"`
			Token string `koanf:"token"`
		} `koanf:"gitlab"`
		Bitbucket struct {
			Username    string `koanf:"username"`
			AppPassword string `koanf:"app_password"`
			URL         string `koanf:"url"`
		} `koanf:"bitbucket"`
	} `koanf:"platforms"`

	Knowledge struct {
		PersistDir string `koanf:"persist_dir"`
		BaseDir    string `koanf:"base_dir"` // root of the markdown knowledge tree
		ChunkSize  int    `koanf:"chunk_size"`
		RetrievalK int    `koanf:"retrieval_k"`
	} `koanf:"knowledge"`

	Review struct {
		TimeoutSeconds int  `koanf:"timeout_seconds"`
		MaxHunks       int  `koanf:"max_hunks"`
		MaxSampleLines int  `koanf:"max_sample_lines"`
		PostComments   bool `koanf:"post_comments"`
	} `koanf:"review"`
}

// AITimeout returns the per-call reasoning timeout.
func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AI.TimeoutSeconds) * time.Second
}

// ReviewTimeout returns the whole-review deadline.
func (c *Config) ReviewTimeout() time.Duration {
	return time.Duration(c.Review.TimeoutSeconds) * time.Second
}

// Load loads the configuration: defaults, then a TOML file, then environment
// variables with the REVIEWLOOP_ prefix.
func Load(configPath string) (*Config, error) {
	var k = koanf.New(".")

	k.Load(confmap.Provider(map[string]interface{}{
		"general.default_platform": "github",
		"general.log_level":        "info",
		"ai.provider":              "openai",
		"ai.model":                 "gpt-4o",
		"ai.temperature":           0.1,
		"ai.timeout_seconds":       300,
		"ai.max_retries":           3,
		"ai.max_concurrent_calls":  4,
		"embedding.model":          "text-embedding-3-small",
		"platforms.gitlab.url":     "https://gitlab.com",
		"platforms.bitbucket.url":  "https://api.bitbucket.org",
		"knowledge.persist_dir":    "./data/vector_db",
		"knowledge.base_dir":       "./knowledge_base",
		"knowledge.chunk_size":     1000,
		"knowledge.retrieval_k":    5,
		"review.timeout_seconds":   900,
		"review.max_hunks":         10,
		"review.max_sample_lines":  5,
	}, "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./reviewloop.toml", "$HOME/.reviewloop.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// REVIEWLOOP_AI__API_KEY -> ai.api_key. Double underscore separates
	// levels so key names may themselves contain underscores.
	k.Load(env.Provider("REVIEWLOOP_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "REVIEWLOOP_")), "__", ".", -1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// Validate checks that the configuration can support a review run.
// It fails fast, before any review starts.
func Validate(config *Config) error {
	switch config.AI.Provider {
	case "openai", "gemini", "claude":
		if config.AI.APIKey == "" {
			return fmt.Errorf("ai api_key is required for provider %s", config.AI.Provider)
		}
	case "ollama":
		// Local models need no key.
	case "":
		return fmt.Errorf("ai provider is required")
	default:
		return fmt.Errorf("unsupported ai provider: %s", config.AI.Provider)
	}

	if config.AI.Model == "" {
		return fmt.Errorf("ai model is required")
	}
	if config.Knowledge.PersistDir == "" {
		return fmt.Errorf("knowledge persist_dir is required")
	}
	if config.Knowledge.ChunkSize <= 0 {
		return fmt.Errorf("knowledge chunk_size must be positive")
	}
	if config.Knowledge.RetrievalK <= 0 {
		return fmt.Errorf("knowledge retrieval_k must be positive")
	}
	if config.AI.MaxConcurrentCalls <= 0 {
		return fmt.Errorf("ai max_concurrent_calls must be positive")
	}

	return nil
}

// Init writes a sample configuration file at the given path.
func Init(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# reviewloop configuration

[general]
default_platform = "github"
log_level = "info"

[ai]
provider = "openai"
api_key = "your-openai-api-key"
model = "gpt-4o"
temperature = 0.1
max_concurrent_calls = 4

[embedding]
model = "text-embedding-3-small"

[platforms.github]
token = "your-github-token"

[platforms.gitlab]
url = "https://gitlab.com"
token = "your-gitlab-token"

[platforms.bitbucket]
username = "your-username"
app_password = "your-app-password"

[knowledge]
persist_dir = "./data/vector_db"
base_dir = "./knowledge_base"
chunk_size = 1000
retrieval_k = 5
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}
