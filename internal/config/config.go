package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Corpus    CorpusConfig    `yaml:"corpus"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval,omitempty"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// CorpusConfig locates the regulatory corpus
type CorpusConfig struct {
	// Path is a corpus file or a doublestar pattern (data/corpus/**/*.json)
	Path    string   `yaml:"path"`
	Exclude []string `yaml:"exclude,omitempty"` // Exclude patterns
}

// CacheConfig holds vector cache configuration
type CacheConfig struct {
	// Path to the SQLite cache file
	// If empty, uses ~/.corep/data/<corpus-name>.db
	Path        string `yaml:"path,omitempty"`
	BatchSize   int    `yaml:"batch_size,omitempty"`  // Texts per embedding request
	Concurrency int    `yaml:"concurrency,omitempty"` // Parallel embedding requests during a build
}

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "gemini" | "openai" | "none"

	// Gemini specific
	APIKey    string `yaml:"api_key,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"` // env var consulted when api_key is empty
	Model     string `yaml:"model,omitempty"`
	TaskType  string `yaml:"task_type,omitempty"`

	// OpenAI specific
	OpenAIAPIKey string `yaml:"openai_api_key,omitempty"`
	OpenAIModel  string `yaml:"openai_model,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"`

	Dimensions  int `yaml:"dimensions,omitempty"`
	TimeoutSecs int `yaml:"timeout_secs,omitempty"`
}

// RetrievalConfig holds retrieval defaults
type RetrievalConfig struct {
	DefaultTopK  int    `yaml:"default_top_k,omitempty"`
	Strategy     string `yaml:"strategy,omitempty"` // "auto" | "semantic" | "keyword" | "fulltext"
	TimeoutSecs  int    `yaml:"timeout_secs,omitempty"`
	// Optional YAML file of extra abbreviations for fulltext search
	SynonymsPath string `yaml:"synonyms_path,omitempty"`
}

// AnalyzerConfig holds LLM analyzer configuration
type AnalyzerConfig struct {
	Model                string  `yaml:"model,omitempty"`
	Temperature          float32 `yaml:"temperature,omitempty"`
	MaxOutputTokens      int32   `yaml:"max_output_tokens,omitempty"`
	// Output budget for the single retry after an unparseable response
	RetryMaxOutputTokens int32   `yaml:"retry_max_output_tokens,omitempty"`
	TemplatePath         string  `yaml:"template_path,omitempty"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "debug" | "info" | "warn" | "error"
	Dir   string `yaml:"dir,omitempty"`   // If empty, uses ~/.corep/logs
}

// Provider names
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// Load loads configuration from the default config file
// Default location: ~/.corep/config/corep.yaml
func Load() (*Config, error) {
	configPath, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromFile(configPath)
}

// DefaultPath returns ~/.corep/config/corep.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".corep", "config", "corep.yaml"), nil
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			defaultPath, _ := DefaultPath()
			return nil, &NotFoundError{
				RequestedPath: path,
				DefaultPath:   defaultPath,
			}
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Relative corpus/cache paths are resolved against the config file
	cfg.resolveRelative(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes, defaults and validates a YAML document
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// NotFoundError is returned when config file is not found
type NotFoundError struct {
	RequestedPath string
	DefaultPath   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("config file not found at: %s\n\nDefault location: %s\n\nYou can:\n"+
		"  1. Create the config file at the default location\n"+
		"  2. Specify a custom path with --config\n"+
		"  3. Run 'corep init' to write a template",
		e.RequestedPath, e.DefaultPath)
}

// IsNotFound checks if error is config not found
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// ExpandPath expands ~ and $HOME to the user's home directory
// Supports both:
//
//	~/.corep/data/corep.db
//	$HOME/.corep/data/corep.db
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "$HOME/") || path == "$HOME" {
		homeDir := os.Getenv("HOME")
		if homeDir == "" {
			var err error
			homeDir, err = os.UserHomeDir()
			if err != nil {
				return path
			}
		}
		if path == "$HOME" {
			return homeDir
		}
		return filepath.Join(homeDir, path[6:])
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return homeDir
		}
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderGemini
	}
	c.Embedding.Provider = strings.ToLower(c.Embedding.Provider)

	switch c.Embedding.Provider {
	case ProviderGemini:
		if c.Embedding.Model == "" {
			c.Embedding.Model = "gemini-embedding-001"
		}
		if c.Embedding.APIKeyEnv == "" {
			c.Embedding.APIKeyEnv = "GEMINI_API_KEY"
		}
		if c.Embedding.Dimensions == 0 {
			c.Embedding.Dimensions = 3072
		}
	case ProviderOpenAI:
		if c.Embedding.OpenAIModel == "" {
			c.Embedding.OpenAIModel = "text-embedding-3-small"
		}
		if c.Embedding.BaseURL == "" {
			c.Embedding.BaseURL = "https://api.openai.com/v1"
		}
		if c.Embedding.Dimensions == 0 {
			c.Embedding.Dimensions = 1536
		}
	}
	if c.Embedding.TimeoutSecs == 0 {
		c.Embedding.TimeoutSecs = 30
	}

	// Batches of 5 keep us under the free-tier embedding rate limit
	if c.Cache.BatchSize == 0 {
		c.Cache.BatchSize = 5
	}
	if c.Cache.Concurrency == 0 {
		c.Cache.Concurrency = 1
	}
	if c.Cache.Path != "" {
		c.Cache.Path = ExpandPath(c.Cache.Path)
	}
	if c.Corpus.Path != "" {
		c.Corpus.Path = ExpandPath(c.Corpus.Path)
	}

	if c.Retrieval.DefaultTopK == 0 {
		c.Retrieval.DefaultTopK = 5
	}
	if c.Retrieval.Strategy == "" {
		c.Retrieval.Strategy = "auto"
	}
	if c.Retrieval.TimeoutSecs == 0 {
		c.Retrieval.TimeoutSecs = 60
	}
	if c.Retrieval.SynonymsPath != "" {
		c.Retrieval.SynonymsPath = ExpandPath(c.Retrieval.SynonymsPath)
	}

	if c.Analyzer.Model == "" {
		c.Analyzer.Model = "gemini-2.5-flash"
	}
	if c.Analyzer.Temperature == 0 {
		c.Analyzer.Temperature = 0.2
	}
	if c.Analyzer.MaxOutputTokens == 0 {
		c.Analyzer.MaxOutputTokens = 16384
	}
	if c.Analyzer.RetryMaxOutputTokens == 0 {
		c.Analyzer.RetryMaxOutputTokens = 32768
	}
	if c.Analyzer.TemplatePath != "" {
		c.Analyzer.TemplatePath = ExpandPath(c.Analyzer.TemplatePath)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir != "" {
		c.Logging.Dir = ExpandPath(c.Logging.Dir)
	}
}

func (c *Config) resolveRelative(base string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Corpus.Path = resolve(c.Corpus.Path)
	c.Cache.Path = resolve(c.Cache.Path)
	c.Analyzer.TemplatePath = resolve(c.Analyzer.TemplatePath)
	c.Retrieval.SynonymsPath = resolve(c.Retrieval.SynonymsPath)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Corpus.Path == "" {
		return fmt.Errorf("corpus.path is required")
	}

	switch c.Embedding.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderNone:
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}

	if c.Cache.BatchSize <= 0 || c.Cache.BatchSize > 100 {
		return fmt.Errorf("cache.batch_size must be between 1 and 100, got: %d", c.Cache.BatchSize)
	}
	if c.Cache.Concurrency <= 0 || c.Cache.Concurrency > 16 {
		return fmt.Errorf("cache.concurrency must be between 1 and 16, got: %d", c.Cache.Concurrency)
	}

	if c.Retrieval.DefaultTopK <= 0 {
		return fmt.Errorf("retrieval.default_top_k must be positive, got: %d", c.Retrieval.DefaultTopK)
	}
	switch strings.ToLower(c.Retrieval.Strategy) {
	case "auto", "semantic", "keyword", "fulltext":
	default:
		return fmt.Errorf("unsupported retrieval strategy: %s", c.Retrieval.Strategy)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported logging level: %s", c.Logging.Level)
	}

	return nil
}

// GeminiAPIKey resolves the Gemini key from config, then api_key_env, then GOOGLE_API_KEY
func (c *EmbeddingConfig) GeminiAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv != "" {
		if v := os.Getenv(c.APIKeyEnv); v != "" {
			return v
		}
	}
	return os.Getenv("GOOGLE_API_KEY")
}

// ModelName returns the embedding model of the selected provider
func (c *EmbeddingConfig) ModelName() string {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIModel
	}
	return c.Model
}

// AnalyzerAPIKey resolves the Gemini key used by the analyzer.
// It falls back to GEMINI_API_KEY when the embedding provider is not Gemini.
func (c *Config) AnalyzerAPIKey() string {
	if key := c.Embedding.GeminiAPIKey(); key != "" {
		return key
	}
	return os.Getenv("GEMINI_API_KEY")
}

// RetrievalTimeout returns the overall deadline applied around a retrieval call
func (c *RetrievalConfig) RetrievalTimeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// SaveToFile saves the configuration to a specific file
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

const defaultConfigTemplate = `# corep configuration
#
# Default location: $HOME/.corep/config/corep.yaml

corpus:
  # Corpus file or pattern (JSON or YAML records with chunk_id, text, source, section_ref, keywords)
  path: ./data/regulatory_corpus.json

cache:
  # SQLite vector cache; defaults to ~/.corep/data/<corpus>.db
  # path: ./data/embeddings.db
  batch_size: 5
  concurrency: 1

embedding:
  # Provider: "gemini", "openai" or "none" (keyword retrieval only)
  provider: gemini
  # api_key: your-gemini-api-key     # or set GEMINI_API_KEY / GOOGLE_API_KEY
  model: gemini-embedding-001

  # OpenAI-compatible alternative
  # provider: openai
  # openai_api_key: your-openai-api-key
  # openai_model: text-embedding-3-small
  # base_url: https://api.openai.com/v1

retrieval:
  default_top_k: 5
  strategy: auto

analyzer:
  model: gemini-2.5-flash
  template_path: ./data/template_c0100.json
`

// WriteDefaultTemplate creates a default configuration file if it does not exist.
// It returns true if a file was created, false if it already existed.
func WriteDefaultTemplate(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return false, fmt.Errorf("failed to write config template: %w", err)
	}

	return true, nil
}
