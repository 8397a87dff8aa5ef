package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "gpt-4o", cfg.AI.Model)
	assert.Equal(t, 1000, cfg.Knowledge.ChunkSize)
	assert.Equal(t, 5, cfg.Knowledge.RetrievalK)
	assert.Equal(t, 10, cfg.Review.MaxHunks)
	assert.Equal(t, int64(4), cfg.AI.MaxConcurrentCalls)
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviewloop.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[ai]
provider = "claude"
model = "from-file"
`), 0o644))

	t.Setenv("REVIEWLOOP_AI__MODEL", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	// File overrides defaults; env overrides the file.
	assert.Equal(t, "claude", cfg.AI.Provider)
	assert.Equal(t, "from-env", cfg.AI.Model)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.AI.Provider = "openai"
		cfg.AI.APIKey = "sk-test"
		cfg.AI.Model = "gpt-4o"
		cfg.AI.MaxConcurrentCalls = 4
		cfg.Knowledge.PersistDir = "./db"
		cfg.Knowledge.ChunkSize = 1000
		cfg.Knowledge.RetrievalK = 5
		return cfg
	}

	require.NoError(t, Validate(valid()))

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing api key", func(c *Config) { c.AI.APIKey = "" }},
		{"missing provider", func(c *Config) { c.AI.Provider = "" }},
		{"unknown provider", func(c *Config) { c.AI.Provider = "cyberenlightenment" }},
		{"missing model", func(c *Config) { c.AI.Model = "" }},
		{"missing persist dir", func(c *Config) { c.Knowledge.PersistDir = "" }},
		{"zero chunk size", func(c *Config) { c.Knowledge.ChunkSize = 0 }},
		{"zero retrieval k", func(c *Config) { c.Knowledge.RetrievalK = 0 }},
		{"zero concurrency", func(c *Config) { c.AI.MaxConcurrentCalls = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidateOllamaNeedsNoKey(t *testing.T) {
	cfg := &Config{}
	cfg.AI.Provider = "ollama"
	cfg.AI.Model = "qwen2.5-coder"
	cfg.AI.MaxConcurrentCalls = 1
	cfg.Knowledge.PersistDir = "./db"
	cfg.Knowledge.ChunkSize = 500
	cfg.Knowledge.RetrievalK = 3

	assert.NoError(t, Validate(cfg))
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviewloop.toml")
	require.NoError(t, Init(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.AI.Provider)

	// Refuses to clobber an existing file.
	require.Error(t, Init(path))
}
