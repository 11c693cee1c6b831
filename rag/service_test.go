package rag

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/tutorflow/config"
	"github.com/BaSui01/tutorflow/llm/embedding"
)

func newTestService(t *testing.T, prefix string, s Searcher, l Loader, c URLCache) (*Service, *VectorStoreFactory) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	factory := NewVectorStoreFactory(config.VectorStoreConfig{
		Type:             string(VectorStoreMemory),
		CollectionPrefix: prefix,
	}, embedding.NewHashProvider(64), logger)
	svc := NewService(factory, Dependencies{
		Searcher: s,
		Loader:   l,
		Splitter: testSplitter(t),
		Cache:    c,
	}, ServiceConfig{NumResults: 2, RetrieveK: 1}, WithLogger(logger))
	return svc, factory
}

func TestService_RunRetrieval_UsesPrefixedCollection(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	loader := &fakeLoader{pages: map[string]string{
		"http://a": "closures capture variables",
		"http://b": "methods have receivers",
		"http://c": "never fetched",
	}}
	svc, factory := newTestService(t, "tutor", &fakeSearcher{hits: hits("http://a", "http://b", "http://c")}, loader, cache)

	docs, err := svc.RunRetrieval(ctx, "closures capture variables", "go_basics")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "http://a", docs[0].Source())

	assert.ElementsMatch(t, []string{"http://a", "http://b"}, cache.data["tutor_go_basics"])
	assert.Empty(t, cache.data["go_basics"])

	store, err := factory.Open(ctx, "go_basics")
	require.NoError(t, err)
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestService_IngestThenRetrieve(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{pages: map[string]string{"http://a": "struct embedding promotes fields"}}
	svc, _ := newTestService(t, "", &fakeSearcher{hits: hits("http://a")}, loader, newMemCache())

	report, err := svc.Ingest(ctx, "embedding", "structs")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Chunks)

	docs, err := svc.Retrieve(ctx, "struct embedding", "structs", 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Content, "promotes fields")

	_, err = svc.Retrieve(ctx, "x", "  ", 1)
	assert.Error(t, err)
}

func TestService_ConcurrentIngestSameCollection(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	loader := &fakeLoader{pages: map[string]string{
		"http://a": "errors are values",
		"http://b": "wrap errors with %w",
	}}
	var mu sync.Mutex
	searcher := &lockedSearcher{mu: &mu, inner: &fakeSearcher{hits: hits("http://a", "http://b")}}
	loaderLocked := &lockedLoader{mu: &mu, inner: loader}
	svc, factory := newTestService(t, "", searcher, loaderLocked, cache)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Ingest(ctx, "errors", "errors")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 串行化后只有第一次运行会抓取与写缓存
	assert.Equal(t, 1, cache.appends)
	assert.Len(t, cache.data["errors"], 2)
	store, err := factory.Open(ctx, "errors")
	require.NoError(t, err)
	n, _ := store.Count(ctx)
	assert.Equal(t, 2, n)
}

type lockedSearcher struct {
	mu    *sync.Mutex
	inner *fakeSearcher
}

func (s *lockedSearcher) Search(ctx context.Context, q string, n int) ([]SearchHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Search(ctx, q, n)
}

type lockedLoader struct {
	mu    *sync.Mutex
	inner *fakeLoader
}

func (l *lockedLoader) Load(ctx context.Context, urls []string) ([]Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Load(ctx, urls)
}
