package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("corpus:\n  path: /data/corpus.json\n"))
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.Embedding.Provider)
	assert.Equal(t, "gemini-embedding-001", cfg.Embedding.Model)
	assert.Equal(t, "GEMINI_API_KEY", cfg.Embedding.APIKeyEnv)
	assert.Equal(t, 5, cfg.Cache.BatchSize)
	assert.Equal(t, 1, cfg.Cache.Concurrency)
	assert.Equal(t, 5, cfg.Retrieval.DefaultTopK)
	assert.Equal(t, "auto", cfg.Retrieval.Strategy)
	assert.Equal(t, "gemini-2.5-flash", cfg.Analyzer.Model)
	assert.Equal(t, int32(16384), cfg.Analyzer.MaxOutputTokens)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestParse_OpenAIDefaults(t *testing.T) {
	cfg, err := Parse([]byte("corpus:\n  path: c.json\nembedding:\n  provider: OpenAI\n"))
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.OpenAIModel)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedding.BaseURL)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing corpus", "embedding:\n  provider: gemini\n"},
		{"unknown provider", "corpus:\n  path: c.json\nembedding:\n  provider: volcengine\n"},
		{"batch too large", "corpus:\n  path: c.json\ncache:\n  batch_size: 500\n"},
		{"bad strategy", "corpus:\n  path: c.json\nretrieval:\n  strategy: fuzzy\n"},
		{"bad level", "corpus:\n  path: c.json\nlogging:\n  level: trace\n"},
		{"not yaml", "corpus: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corep.yaml")
	content := "corpus:\n  path: data/corpus.json\ncache:\n  path: data/cache.db\nanalyzer:\n  template_path: /abs/template.json\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", "corpus.json"), cfg.Corpus.Path)
	assert.Equal(t, filepath.Join(dir, "data", "cache.db"), cfg.Cache.Path)
	assert.Equal(t, "/abs/template.json", cfg.Analyzer.TemplatePath)
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("HOME", home)

	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, ".corep", "data"), ExpandPath("~/.corep/data"))
	assert.Equal(t, filepath.Join(home, "x.db"), ExpandPath("$HOME/x.db"))
	assert.Equal(t, "/tmp/x.db", ExpandPath("/tmp/x.db"))
}

func TestGeminiAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")

	cfg := EmbeddingConfig{APIKeyEnv: "GEMINI_API_KEY"}
	assert.Equal(t, "google-key", cfg.GeminiAPIKey())

	t.Setenv("GEMINI_API_KEY", "gemini-key")
	assert.Equal(t, "gemini-key", cfg.GeminiAPIKey())

	cfg.APIKey = "inline"
	assert.Equal(t, "inline", cfg.GeminiAPIKey())
}

func TestAnalyzerAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg, err := Parse([]byte("corpus:\n  path: c.json\nembedding:\n  provider: openai\n"))
	require.NoError(t, err)
	assert.Equal(t, "gemini-key", cfg.AnalyzerAPIKey())
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.ModelName())

	cfg.Embedding.Provider = ProviderGemini
	cfg.Embedding.Model = "gemini-embedding-001"
	assert.Equal(t, "gemini-embedding-001", cfg.Embedding.ModelName())
}

func TestWriteDefaultTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "corep.yaml")

	created, err := WriteDefaultTemplate(path)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = WriteDefaultTemplate(path)
	require.NoError(t, err)
	assert.False(t, created)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "data", "regulatory_corpus.json"), cfg.Corpus.Path)
}
