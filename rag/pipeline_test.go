package rag

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/BaSui01/tutorflow/internal/metrics"
	"github.com/BaSui01/tutorflow/llm/embedding"
)

// --- fakes ---

type fakeSearcher struct {
	hits  []SearchHit
	err   error
	calls int
}

func (f *fakeSearcher) Search(_ context.Context, _ string, maxResults int) ([]SearchHit, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if maxResults < len(f.hits) {
		return f.hits[:maxResults], nil
	}
	return f.hits, nil
}

type fakeLoader struct {
	pages  map[string]string
	err    error
	loaded [][]string
}

func (f *fakeLoader) Load(_ context.Context, urls []string) ([]Document, error) {
	f.loaded = append(f.loaded, append([]string(nil), urls...))
	if f.err != nil {
		return nil, f.err
	}
	var docs []Document
	for _, u := range urls {
		body, ok := f.pages[u]
		if !ok {
			continue
		}
		docs = append(docs, Document{
			Content:  body,
			Metadata: map[string]any{MetaSource: u, MetaTitle: "page " + u},
		})
	}
	return docs, nil
}

type memCache struct {
	mu      sync.Mutex
	data    map[string][]string
	readErr error
	appends int
}

func newMemCache() *memCache { return &memCache{data: map[string][]string{}} }

func (c *memCache) Read(_ context.Context, collection string) (map[string]struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	out := make(map[string]struct{})
	for _, u := range c.data[collection] {
		out[u] = struct{}{}
	}
	return out, nil
}

func (c *memCache) Append(_ context.Context, collection string, urls []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appends++
	c.data[collection] = append(c.data[collection], urls...)
	return nil
}

type failingStore struct{ VectorStore }

func (failingStore) AddDocuments(context.Context, []Document) error {
	return errors.New("disk full")
}

func testSplitter(t *testing.T) *Splitter {
	return NewSplitter(SplitConfig{SplitBy: SplitByCharacter, ChunkSize: 200, ChunkOverlap: 20}, nil, zaptest.NewLogger(t))
}

func newTestPipeline(t *testing.T, s Searcher, l Loader, c URLCache, store VectorStore, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	p, err := NewPipeline(PipelineConfig{Collection: "go_basics"}, store, Dependencies{
		Searcher: s,
		Loader:   l,
		Splitter: testSplitter(t),
		Cache:    c,
	}, opts...)
	require.NoError(t, err)
	return p
}

func hits(urls ...string) []SearchHit {
	out := make([]SearchHit, len(urls))
	for i, u := range urls {
		out[i] = SearchHit{Title: u, Link: u}
	}
	return out
}

// --- tests ---

func TestNewPipeline_Validation(t *testing.T) {
	store := NewInMemoryVectorStore(embedding.NewHashProvider(32), nil)
	_, err := NewPipeline(PipelineConfig{Collection: "c"}, nil, Dependencies{}, WithLogger(zap.NewNop()))
	assert.Error(t, err)

	_, err = NewPipeline(PipelineConfig{Collection: "c"}, store, Dependencies{})
	assert.Error(t, err)

	_, err = NewPipeline(PipelineConfig{}, store, Dependencies{
		Searcher: &fakeSearcher{}, Loader: &fakeLoader{}, Splitter: testSplitter(t), Cache: newMemCache(),
	})
	assert.Error(t, err)
}

func TestPipeline_SearchAndStore_IngestsNewURLs(t *testing.T) {
	ctx := context.Background()
	searcher := &fakeSearcher{hits: hits("http://a", "http://b", "http://c", "http://d")}
	loader := &fakeLoader{pages: map[string]string{
		"http://a": "Goroutines are lightweight threads managed by the Go runtime.",
		"http://b": "Channels connect concurrent goroutines.",
		"http://c": "Select lets a goroutine wait on multiple channel operations.",
	}}
	cache := newMemCache()
	store := NewInMemoryVectorStore(embedding.NewHashProvider(64), nil)
	p := newTestPipeline(t, searcher, loader, cache, store)

	report, err := p.SearchAndStore(ctx, "go concurrency")
	require.NoError(t, err)

	// 默认 num_results = 3
	assert.Equal(t, []string{"http://a", "http://b", "http://c"}, report.Candidates)
	assert.Equal(t, report.Candidates, report.NewURLs)
	assert.Equal(t, 3, report.Documents)
	assert.Equal(t, 3, report.Chunks)
	assert.Len(t, report.Cached, 3)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"http://a", "http://b", "http://c"}, cache.data["go_basics"])
}

func TestPipeline_SearchAndStore_Idempotent(t *testing.T) {
	ctx := context.Background()
	searcher := &fakeSearcher{hits: hits("http://a", "http://b")}
	loader := &fakeLoader{pages: map[string]string{
		"http://a": "Maps are reference types.",
		"http://b": "Slices share backing arrays.",
	}}
	cache := newMemCache()
	store := NewInMemoryVectorStore(embedding.NewHashProvider(64), nil)
	p := newTestPipeline(t, searcher, loader, cache, store)

	_, err := p.SearchAndStore(ctx, "go types")
	require.NoError(t, err)
	before, _ := store.Count(ctx)

	report, err := p.SearchAndStore(ctx, "go types")
	require.NoError(t, err)
	assert.Empty(t, report.NewURLs)
	assert.Zero(t, report.Chunks)

	after, _ := store.Count(ctx)
	assert.Equal(t, before, after)
	assert.Len(t, loader.loaded, 1, "second run must not fetch")
	assert.Equal(t, 1, cache.appends)
}

func TestPipeline_FiltersCachedURLs(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	cache.data["go_basics"] = []string{"http://a"}
	loader := &fakeLoader{pages: map[string]string{"http://b": "Interfaces are satisfied implicitly."}}
	store := NewInMemoryVectorStore(embedding.NewHashProvider(32), nil)
	p := newTestPipeline(t, &fakeSearcher{hits: hits("http://a", "http://b")}, loader, cache, store)

	report, err := p.SearchAndStore(ctx, "interfaces")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://b"}, report.NewURLs)
	require.Len(t, loader.loaded, 1)
	assert.Equal(t, []string{"http://b"}, loader.loaded[0])
	assert.Equal(t, []string{"http://a", "http://b"}, cache.data["go_basics"])
}

func TestPipeline_SearchFailureIsSoft(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{}
	cache := newMemCache()
	store := NewInMemoryVectorStore(embedding.NewHashProvider(32), nil)
	p := newTestPipeline(t, &fakeSearcher{err: errors.New("quota exceeded")}, loader, cache, store)

	report, err := p.SearchAndStore(ctx, "anything")
	require.NoError(t, err)
	assert.Empty(t, report.Candidates)
	assert.Empty(t, loader.loaded)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "quota exceeded")
	assert.Zero(t, cache.appends)
}

func TestPipeline_FetchFailureIsSoft(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	store := NewInMemoryVectorStore(embedding.NewHashProvider(32), nil)
	p := newTestPipeline(t, &fakeSearcher{hits: hits("http://a")}, &fakeLoader{err: errors.New("tls handshake")}, cache, store)

	report, err := p.SearchAndStore(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a"}, report.NewURLs)
	assert.Zero(t, report.Chunks)
	// 没有内容写入，URL 不记入缓存，下次仍会重试
	assert.Zero(t, cache.appends)
	n, _ := store.Count(ctx)
	assert.Zero(t, n)
}

func TestPipeline_MixedBatchCachesEveryNewURL(t *testing.T) {
	ctx := context.Background()
	// 同批中 http://b 无内容，http://a 产生分块
	loader := &fakeLoader{pages: map[string]string{
		"http://a": "Goroutines are lightweight threads managed by the Go runtime.",
	}}
	cache := newMemCache()
	store := NewInMemoryVectorStore(embedding.NewHashProvider(32), nil)
	p := newTestPipeline(t, &fakeSearcher{hits: hits("http://a", "http://b")}, loader, cache, store)

	report, err := p.SearchAndStore(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
	assert.ElementsMatch(t, []string{"http://a", "http://b"}, cache.data["go_basics"])

	// 整批 URL 已记入缓存，http://b 不会被重新抓取
	report, err = p.SearchAndStore(ctx, "q")
	require.NoError(t, err)
	assert.Empty(t, report.NewURLs)
	assert.Len(t, loader.loaded, 1)
}

func TestPipeline_CacheReadErrorFails(t *testing.T) {
	cache := newMemCache()
	cache.readErr = errors.New("permission denied")
	store := NewInMemoryVectorStore(embedding.NewHashProvider(32), nil)
	searcher := &fakeSearcher{hits: hits("http://a")}
	p := newTestPipeline(t, searcher, &fakeLoader{}, cache, store)

	_, err := p.SearchAndStore(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Zero(t, searcher.calls)
}

func TestPipeline_StoreErrorSkipsCacheAppend(t *testing.T) {
	cache := newMemCache()
	store := failingStore{NewInMemoryVectorStore(embedding.NewHashProvider(32), nil)}
	loader := &fakeLoader{pages: map[string]string{"http://a": "content"}}
	p := newTestPipeline(t, &fakeSearcher{hits: hits("http://a")}, loader, cache, store)

	_, err := p.SearchAndStore(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, cache.appends)
}

func TestPipeline_RunRetrieves(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{pages: map[string]string{
		"http://a": "defer runs a function when the surrounding function returns",
		"http://b": "the garbage collector reclaims unreachable memory",
	}}
	store := NewInMemoryVectorStore(embedding.NewHashProvider(128), nil)
	collector := metrics.NewCollector("tutorflow_test", zap.NewNop())
	p := newTestPipeline(t, &fakeSearcher{hits: hits("http://a", "http://b")}, loader, newMemCache(), store, WithMetrics(collector))

	docs, err := p.Run(ctx, "defer runs a function when the surrounding function returns")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "http://a", docs[0].Source())

	top, err := p.Retrieve(ctx, "garbage collector", 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestFilterURLs_Example(t *testing.T) {
	got := FilterURLs([]string{"http://a", "http://b"}, map[string]struct{}{"http://a": {}})
	assert.Equal(t, []string{"http://b"}, got)

	assert.Equal(t, []string{"x", "y"}, FilterURLs([]string{"x", "y", "x"}, nil))
	assert.Empty(t, FilterURLs(nil, nil))
}

func TestProperty_FilterURLs(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		pool := []string{"http://a", "http://b", "http://c", "http://d", "http://e"}
		candidates := rapid.SliceOf(rapid.SampledFrom(pool)).Draw(rt, "candidates")
		cachedList := rapid.SliceOf(rapid.SampledFrom(pool)).Draw(rt, "cached")
		cached := make(map[string]struct{})
		for _, u := range cachedList {
			cached[u] = struct{}{}
		}

		got := FilterURLs(candidates, cached)

		seen := make(map[string]struct{})
		for _, u := range got {
			if _, ok := cached[u]; ok {
				rt.Fatalf("cached url %q returned", u)
			}
			if _, ok := seen[u]; ok {
				rt.Fatalf("duplicate url %q", u)
			}
			seen[u] = struct{}{}
		}
		for _, u := range candidates {
			_, inCache := cached[u]
			_, inOut := seen[u]
			if !inCache && !inOut {
				rt.Fatalf("uncached candidate %q dropped", u)
			}
		}
		// 保持首次出现顺序
		idx := -1
		for _, u := range got {
			pos := -1
			for i, c := range candidates {
				if c == u {
					pos = i
					break
				}
			}
			if pos <= idx {
				rt.Fatalf("order not preserved: %v from %v", got, candidates)
			}
			idx = pos
		}
	})
}
