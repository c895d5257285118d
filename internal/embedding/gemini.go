package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/DreamCats/corep/internal/config"
)

// GeminiClient implements Client with the Gemini embedding API
type GeminiClient struct {
	client     *genai.Client
	model      string
	taskType   string
	dimensions int
}

// NewGeminiClient creates a Gemini embedding client.
// The key comes from api_key, then api_key_env, then GOOGLE_API_KEY.
func NewGeminiClient(ctx context.Context, cfg *config.EmbeddingConfig) (*GeminiClient, error) {
	apiKey := cfg.GeminiAPIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is not set: %w", ErrNotConfigured)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		client:     client,
		model:      model,
		taskType:   cfg.TaskType,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed generates an embedding for a single text
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request
func (c *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	cfg := &genai.EmbedContentConfig{TaskType: c.taskType}
	if c.dimensions > 0 {
		dims := int32(c.dimensions)
		cfg.OutputDimensionality = &dims
	}

	result, err := c.client.Models.EmbedContent(ctx, c.model, contents, cfg)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Err: err}
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	embeddings := make([][]float32, len(texts))
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		embeddings[i] = emb.Values
	}

	return embeddings, nil
}

// Dimensions returns the configured output dimensionality
func (c *GeminiClient) Dimensions() int {
	if c.dimensions > 0 {
		return c.dimensions
	}
	// gemini-embedding-001 default
	return 3072
}
