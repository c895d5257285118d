package vectorcache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/DreamCats/corep/internal/corpus"
	"github.com/DreamCats/corep/internal/store"
)

func TestMain(m *testing.M) {
	// genai links opencensus, whose view worker starts in init and never exits
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeEmbedder struct {
	calls atomic.Int32
	texts atomic.Int32
	err   error
	gate  chan struct{}
	delay time.Duration
}

func (f *fakeEmbedder) EmbedBatchProgress(ctx context.Context, texts []string, progress func(n int)) ([][]float32, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	f.texts.Add(int32(len(texts)))

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), float32(strings.Count(text, "a")), 1}
		if progress != nil {
			progress(1)
		}
	}
	return out, nil
}

type memStore struct {
	mu    sync.Mutex
	snap  *store.Snapshot
	saves int
	err   error
}

func (m *memStore) Save(ctx context.Context, ids []string, vectors [][]float32, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.snap = &store.Snapshot{IDs: ids, Vectors: vectors, Model: model, Dimension: len(vectors[0])}
	return nil
}

func (m *memStore) Load(ctx context.Context) (*store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.snap == nil {
		return &store.Snapshot{}, nil
	}
	return m.snap, nil
}

type countingProgress struct {
	total, added, finished int
}

func (p *countingProgress) Start(total int) { p.total = total }
func (p *countingProgress) Add(n int)       { p.added += n }
func (p *countingProgress) Finish()         { p.finished++ }

func testCorpus(t *testing.T, n int) *corpus.Corpus {
	t.Helper()
	chunks := make([]corpus.Chunk, n)
	for i := range chunks {
		chunks[i] = corpus.Chunk{
			ID:         fmt.Sprintf("chunk_%d", i),
			Text:       strings.Repeat("a", i+1) + " capital",
			Source:     "CRR",
			SectionRef: fmt.Sprintf("Article %d", i+1),
		}
	}
	c, err := corpus.New(chunks)
	require.NoError(t, err)
	return c
}

func TestCache_BuildPersistsAndLoads(t *testing.T) {
	ctx := context.Background()
	c := testCorpus(t, 3)
	st := &memStore{}
	emb := &fakeEmbedder{}
	progress := &countingProgress{}

	cache := New(c, st, emb, Options{Model: "fake", Progress: progress})
	assert.False(t, cache.Load(ctx))
	require.True(t, cache.Build(ctx))

	assert.Equal(t, 1, st.saves)
	assert.Equal(t, c.IDs(), st.snap.IDs)
	assert.Equal(t, "fake", st.snap.Model)
	assert.Equal(t, 3, progress.total)
	assert.Equal(t, 3, progress.added)
	assert.Equal(t, 1, progress.finished)

	// A fresh cache over the same corpus loads without embedding again
	again := New(c, st, emb, Options{})
	require.True(t, again.Ensure(ctx))
	assert.Equal(t, int32(1), emb.calls.Load())
	assert.Len(t, again.Vectors(), 3)
	assert.Equal(t, 3, again.Dimension())
}

func TestCache_AppendInvalidatesAndRebuildsAll(t *testing.T) {
	ctx := context.Background()
	st := &memStore{}
	emb := &fakeEmbedder{}

	require.True(t, New(testCorpus(t, 2), st, emb, Options{}).Ensure(ctx))

	grown := testCorpus(t, 3)
	cache := New(grown, st, emb, Options{})
	assert.False(t, cache.Load(ctx))

	require.True(t, cache.Ensure(ctx))
	assert.Len(t, cache.Vectors(), 3)
	assert.Equal(t, grown.IDs(), st.snap.IDs)
	// 2 texts for the first build, all 3 for the rebuild
	assert.Equal(t, int32(5), emb.texts.Load())
}

func TestCache_ReorderInvalidates(t *testing.T) {
	ctx := context.Background()
	c := testCorpus(t, 2)
	st := &memStore{snap: &store.Snapshot{
		IDs:     []string{"chunk_1", "chunk_0"},
		Vectors: [][]float32{{1}, {2}},
	}}

	assert.False(t, New(c, st, nil, Options{}).Load(ctx))
}

func TestCache_ProviderErrorFails(t *testing.T) {
	ctx := context.Background()
	st := &memStore{}
	emb := &fakeEmbedder{err: errors.New("quota exceeded")}

	cache := New(testCorpus(t, 2), st, emb, Options{})
	assert.False(t, cache.Ensure(ctx))
	assert.False(t, cache.Resident())
	assert.Nil(t, cache.Vectors())
	assert.Equal(t, 0, st.saves)
}

func TestCache_NoEmbedder(t *testing.T) {
	cache := New(testCorpus(t, 1), &memStore{}, nil, Options{})
	assert.False(t, cache.Ensure(context.Background()))
}

func TestCache_StoreErrorsDegrade(t *testing.T) {
	ctx := context.Background()
	st := &memStore{err: errors.New("disk full")}
	emb := &fakeEmbedder{}

	cache := New(testCorpus(t, 2), st, emb, Options{})
	assert.False(t, cache.Load(ctx))

	// Persist failure still leaves usable vectors in memory
	require.True(t, cache.Ensure(ctx))
	assert.Len(t, cache.Vectors(), 2)
}

func TestCache_ConcurrentEnsureBuildsOnce(t *testing.T) {
	ctx := context.Background()
	emb := &fakeEmbedder{gate: make(chan struct{})}
	cache := New(testCorpus(t, 4), &memStore{}, emb, Options{})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = cache.Ensure(ctx)
		}(i)
	}

	close(emb.gate)
	wg.Wait()

	for i, ok := range results {
		assert.True(t, ok, "caller %d", i)
	}
	assert.Equal(t, int32(1), emb.calls.Load())
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	emb := &fakeEmbedder{}
	cache := New(testCorpus(t, 2), nil, emb, Options{})

	require.True(t, cache.Ensure(ctx))
	cache.Invalidate()
	assert.False(t, cache.Resident())
	assert.Equal(t, 0, cache.Dimension())

	require.True(t, cache.Ensure(ctx))
	assert.Equal(t, int32(2), emb.calls.Load())
}

func TestCache_NormalizedUnitLength(t *testing.T) {
	cache := New(testCorpus(t, 2), nil, &fakeEmbedder{}, Options{})
	require.True(t, cache.Ensure(context.Background()))

	for _, vec := range cache.Normalized() {
		var sum float64
		for _, x := range vec {
			sum += x * x
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
}

func TestCache_WithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer db.Close()

	st := store.NewVectorCacheStore(db)
	emb := &fakeEmbedder{}

	require.True(t, New(testCorpus(t, 3), st, emb, Options{Model: "fake"}).Ensure(ctx))

	loaded := New(testCorpus(t, 3), st, nil, Options{})
	require.True(t, loaded.Load(ctx))
	assert.Equal(t, []float32{9, 3, 1}, loaded.Vectors()[0])
	assert.False(t, New(testCorpus(t, 4), st, nil, Options{}).Load(ctx))
}

func TestCache_EnsureCallerDeadlineDoesNotFailOthers(t *testing.T) {
	emb := &fakeEmbedder{delay: 200 * time.Millisecond}
	cache := New(testCorpus(t, 3), &memStore{}, emb, Options{})

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	var shortOK, longOK bool
	wg.Add(2)
	go func() {
		defer wg.Done()
		shortOK = cache.Ensure(short)
	}()
	go func() {
		defer wg.Done()
		longOK = cache.Ensure(context.Background())
	}()
	wg.Wait()

	assert.False(t, shortOK)
	assert.True(t, longOK)
	assert.True(t, cache.Resident())
	assert.Equal(t, int32(1), emb.calls.Load())
}

func TestCache_EnsureBuildTimeout(t *testing.T) {
	emb := &fakeEmbedder{delay: time.Second}
	cache := New(testCorpus(t, 2), &memStore{}, emb, Options{BuildTimeout: 20 * time.Millisecond})

	assert.False(t, cache.Ensure(context.Background()))
	assert.False(t, cache.Resident())
}

func TestCache_LoadWarnsOnModelChange(t *testing.T) {
	ctx := context.Background()
	st := &memStore{}
	require.True(t, New(testCorpus(t, 2), st, &fakeEmbedder{}, Options{Model: "old-model"}).Build(ctx))

	core, logs := observer.New(zapcore.WarnLevel)
	cache := New(testCorpus(t, 2), st, nil, Options{Model: "new-model", Logger: zap.New(core)})

	require.True(t, cache.Load(ctx))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Contains(t, entry.Message, "different model")
	assert.Equal(t, "old-model", entry.ContextMap()["cached"])
	assert.Equal(t, "new-model", entry.ContextMap()["configured"])

	// same model: no warning
	core, logs = observer.New(zapcore.WarnLevel)
	require.True(t, New(testCorpus(t, 2), st, nil, Options{Model: "old-model", Logger: zap.New(core)}).Load(ctx))
	assert.Equal(t, 0, logs.Len())
}
