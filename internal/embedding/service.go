package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DreamCats/corep/internal/config"
)

// ErrNotConfigured is returned when no usable embedding provider is configured
var ErrNotConfigured = errors.New("embedding provider not configured")

// ProviderError wraps a quota, network or API failure from a provider
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s embedding request failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Client is the interface for embedding API clients
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Service provides embedding generation functionality
type Service struct {
	client      Client
	name        string
	batchSize   int
	concurrency int
	logger      *zap.Logger
}

// Options configures batching for a Service
type Options struct {
	BatchSize   int // Texts per provider request, default 5
	Concurrency int // Parallel requests, default 1
	Logger      *zap.Logger
}

// NewService creates the embedding service for the configured provider.
// It returns ErrNotConfigured (wrapped) when the provider is "none" or has no key.
func NewService(ctx context.Context, cfg *config.EmbeddingConfig, opts Options) (*Service, error) {
	var client Client
	var err error

	switch cfg.Provider {
	case config.ProviderGemini:
		client, err = NewGeminiClient(ctx, cfg)
	case config.ProviderOpenAI:
		client, err = NewOpenAIClient(cfg)
	case config.ProviderNone, "":
		return nil, ErrNotConfigured
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	svc := NewServiceWithClient(client, opts)
	svc.name = cfg.Provider
	return svc, nil
}

// NewServiceWithClient wraps an existing client
func NewServiceWithClient(client Client, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		client:      client,
		name:        "custom",
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
}

// Name returns the provider name
func (s *Service) Name() string {
	return s.name
}

// Embed generates an embedding for a single text
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	vec, err := s.client.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("provider returned an empty vector")
	}
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts.
// vectors[i] always corresponds to texts[i].
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return s.EmbedBatchProgress(ctx, texts, nil)
}

// EmbedBatchProgress is EmbedBatch with a callback invoked with the number of
// texts completed after each batch. The callback may be called concurrently.
// Any batch failure fails the whole call and no partial result is returned.
func (s *Service) EmbedBatchProgress(ctx context.Context, texts []string, progress func(n int)) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("cannot embed empty text at index %d", i)
		}
	}

	results := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		g.Go(func() error {
			batch := texts[start:end]
			embeddings, err := s.client.EmbedBatch(gctx, batch)
			if err != nil {
				return fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
			}
			if len(embeddings) != len(batch) {
				return fmt.Errorf("batch %d-%d: expected %d embeddings, got %d", start, end, len(batch), len(embeddings))
			}

			// Reassemble by index, never by completion order
			for j, emb := range embeddings {
				results[start+j] = emb
			}

			s.logger.Debug("embedded batch",
				zap.Int("start", start),
				zap.Int("end", end))
			if progress != nil {
				progress(len(batch))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(results[0])
	for i, vec := range results {
		if len(vec) == 0 || len(vec) != dim {
			return nil, fmt.Errorf("inconsistent embedding dimension at index %d: %d vs %d", i, len(vec), dim)
		}
	}

	return results, nil
}

// Dimensions returns the dimension of the embeddings
func (s *Service) Dimensions() int {
	return s.client.Dimensions()
}

// NormEpsilon is added to every vector norm before dividing so zero vectors score 0
const NormEpsilon = 1e-10

// Normalize returns v / (|v| + NormEpsilon) in float64
func Normalize(v []float32) []float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + NormEpsilon

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x) / norm
	}
	return out
}

// Dot returns the dot product of two normalized vectors
func Dot(a, b []float64) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vector dimension mismatch: %d vs %d", len(a), len(b)))
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
