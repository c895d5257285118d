package vectorcache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/DreamCats/corep/internal/corpus"
	"github.com/DreamCats/corep/internal/embedding"
	"github.com/DreamCats/corep/internal/store"
)

// Store persists the cache. *store.VectorCacheStore satisfies it.
type Store interface {
	Save(ctx context.Context, ids []string, vectors [][]float32, model string) error
	Load(ctx context.Context) (*store.Snapshot, error)
}

// Embedder turns chunk texts into vectors; vectors[i] must belong to texts[i].
// *embedding.Service satisfies it.
type Embedder interface {
	EmbedBatchProgress(ctx context.Context, texts []string, progress func(n int)) ([][]float32, error)
}

// Progress is notified while the cache is being built
type Progress interface {
	Start(total int)
	Add(n int)
	Finish()
}

// DefaultBuildTimeout bounds a shared load/build started by Ensure
const DefaultBuildTimeout = 10 * time.Minute

// Options configures a Cache
type Options struct {
	Model        string // recorded with persisted vectors
	BuildTimeout time.Duration
	Logger       *zap.Logger
	Progress     Progress
}

// Cache holds one embedding vector per corpus chunk.
// It is valid only for the exact id sequence of the corpus it was built from.
type Cache struct {
	corpus   *corpus.Corpus
	store    Store
	embedder Embedder
	model    string
	timeout  time.Duration
	logger   *zap.Logger
	progress Progress

	group singleflight.Group

	mu         sync.RWMutex
	vectors    [][]float32
	normalized [][]float64
}

// New creates a cache for c. store and embedder may be nil; a nil embedder
// means Build always fails and a nil store means nothing is persisted.
func New(c *corpus.Corpus, st Store, embedder Embedder, opts Options) *Cache {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BuildTimeout <= 0 {
		opts.BuildTimeout = DefaultBuildTimeout
	}
	return &Cache{
		corpus:   c,
		store:    st,
		embedder: embedder,
		model:    opts.Model,
		timeout:  opts.BuildTimeout,
		logger:   opts.Logger,
		progress: opts.Progress,
	}
}

// Load reads the persisted cache and makes it resident when its ids match
// the corpus id sequence exactly. Read errors count as a miss.
func (c *Cache) Load(ctx context.Context) bool {
	if c.store == nil {
		return false
	}

	snap, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Debug("vector cache unreadable, treating as absent", zap.Error(err))
		return false
	}
	if snap.Len() == 0 {
		c.logger.Debug("no persisted vector cache")
		return false
	}
	if len(snap.Vectors) != len(snap.IDs) {
		c.logger.Debug("vector cache ids and vectors disagree",
			zap.Int("ids", len(snap.IDs)),
			zap.Int("vectors", len(snap.Vectors)))
		return false
	}
	if !c.corpus.SameIDs(snap.IDs) {
		c.logger.Info("vector cache is stale for the current corpus",
			zap.Int("cached", len(snap.IDs)),
			zap.Int("corpus", c.corpus.Len()))
		return false
	}

	if c.model != "" && snap.Model != "" && snap.Model != c.model {
		c.logger.Warn("vector cache was built with a different model, run `corep cache rebuild`",
			zap.String("cached", snap.Model),
			zap.String("configured", c.model))
	}

	c.setResident(snap.Vectors)
	c.logger.Debug("loaded vector cache",
		zap.Int("entries", snap.Len()),
		zap.Int("dimension", snap.Dimension),
		zap.String("model", snap.Model))
	return true
}

// Build embeds every chunk and persists the result. Any embedding failure
// discards the partial work and returns false. A persist failure is logged
// and the vectors are still kept in memory.
func (c *Cache) Build(ctx context.Context) bool {
	if c.embedder == nil {
		c.logger.Debug("no embedding provider, cannot build vector cache")
		return false
	}

	texts := c.corpus.Texts()
	if len(texts) == 0 {
		return false
	}
	if c.progress != nil {
		c.progress.Start(len(texts))
	}

	var onBatch func(int)
	if c.progress != nil {
		onBatch = c.progress.Add
	}
	vectors, err := c.embedder.EmbedBatchProgress(ctx, texts, onBatch)

	if c.progress != nil {
		c.progress.Finish()
	}
	if err != nil {
		c.logger.Warn("vector cache build failed", zap.Error(err))
		return false
	}
	if len(vectors) != len(texts) {
		c.logger.Warn("embedder returned wrong number of vectors",
			zap.Int("want", len(texts)),
			zap.Int("got", len(vectors)))
		return false
	}

	if c.store != nil {
		if err := c.store.Save(ctx, c.corpus.IDs(), vectors, c.model); err != nil {
			c.logger.Warn("failed to persist vector cache", zap.Error(err))
		}
	}

	c.setResident(vectors)
	c.logger.Info("built vector cache",
		zap.Int("entries", len(vectors)),
		zap.Int("dimension", len(vectors[0])))
	return true
}

// Ensure makes the cache resident, loading or building it if needed.
// Concurrent callers share a single load/build, which runs detached from
// any caller's cancellation under its own BuildTimeout. A caller whose ctx
// ends first gets false while the shared work carries on for the others.
func (c *Cache) Ensure(ctx context.Context) bool {
	if c.Resident() {
		return true
	}

	ch := c.group.DoChan("ensure", func() (any, error) {
		if c.Resident() {
			return true, nil
		}
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		if c.Load(buildCtx) {
			return true, nil
		}
		return c.Build(buildCtx), nil
	})

	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		c.logger.Debug("gave up waiting for vector cache", zap.Error(ctx.Err()))
		return false
	}
}

// Model returns the model name recorded with newly built vectors
func (c *Cache) Model() string {
	return c.model
}

// Resident reports whether vectors are in memory
func (c *Cache) Resident() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vectors != nil
}

// Vectors returns the resident matrix, row i for corpus chunk i.
// The result must not be modified.
func (c *Cache) Vectors() [][]float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vectors
}

// Normalized returns the resident vectors scaled to unit length
func (c *Cache) Normalized() [][]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.normalized
}

// Dimension returns the resident vector dimension, 0 when nothing is resident
func (c *Cache) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.vectors) == 0 {
		return 0
	}
	return len(c.vectors[0])
}

// Invalidate drops the resident vectors; the next Ensure reloads or rebuilds
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors = nil
	c.normalized = nil
}

func (c *Cache) setResident(vectors [][]float32) {
	normalized := make([][]float64, len(vectors))
	for i, vec := range vectors {
		normalized[i] = embedding.Normalize(vec)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors = vectors
	c.normalized = normalized
}
