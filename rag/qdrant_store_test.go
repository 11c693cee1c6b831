package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/tutorflow/llm/embedding"
)

func TestQdrantStore_BasicFlow(t *testing.T) {
	t.Parallel()

	var createCollectionCalls atomic.Int64
	var upsertCalls atomic.Int64
	var searchCalls atomic.Int64
	var countCalls atomic.Int64

	mux := http.NewServeMux()

	mux.HandleFunc("/collections/testcol", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		createCollectionCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","result":true}`))
	})

	mux.HandleFunc("/collections/testcol/points", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.True(t, strings.Contains(r.URL.RawQuery, "wait=true"), "expected wait=true query, got %q", r.URL.RawQuery)
		upsertCalls.Add(1)

		var req struct {
			Points []struct {
				ID      string         `json:"id"`
				Vector  []float64      `json:"vector"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Len(t, req.Points, 2)
		for _, p := range req.Points {
			assert.NotEmpty(t, p.ID)
			assert.Len(t, p.Vector, 16)
			assert.Contains(t, p.Payload, "doc_id")
		}
		assert.Equal(t, qdrantPointID("doc1"), req.Points[0].ID)

		_, _ = w.Write([]byte(`{"status":"ok","result":{"operation_id":1}}`))
	})

	mux.HandleFunc("/collections/testcol/points/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		searchCalls.Add(1)

		var req struct {
			Vector []float64 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, 2, req.Limit)
		assert.Len(t, req.Vector, 16)

		_, _ = w.Write([]byte(`{
			"status":"ok",
			"result":[
				{"id":"00000000-0000-0000-0000-000000000001","score":0.9,"payload":{"doc_id":"doc1","content":"hello","metadata":{"source":"https://a.example"}}},
				{"id":"00000000-0000-0000-0000-000000000002","score":0.8,"payload":{"content":"world"}}
			]
		}`))
	})

	mux.HandleFunc("/collections/testcol/points/count", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		countCalls.Add(1)
		_, _ = w.Write([]byte(`{"status":"ok","result":{"count":2}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store := NewQdrantStore(QdrantConfig{
		BaseURL:    srv.URL,
		APIKey:     "secret",
		Collection: "testcol",
	}, embedding.NewHashProvider(16), zaptest.NewLogger(t))

	ctx := context.Background()

	docs := []Document{
		{ID: "doc1", Content: "hello", Metadata: map[string]any{"source": "https://a.example"}},
		{ID: "doc2", Content: "world"},
	}

	require.NoError(t, store.AddDocuments(ctx, docs))
	require.NoError(t, store.AddDocuments(ctx, docs))

	results, err := store.SimilaritySearch(ctx, "hello", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "doc1", results[0].ID)
	assert.Equal(t, "hello", results[0].Content)
	assert.Equal(t, "https://a.example", results[0].Source())
	assert.Equal(t, "00000000-0000-0000-0000-000000000002", results[1].ID)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.EqualValues(t, 1, createCollectionCalls.Load())
	assert.EqualValues(t, 2, upsertCalls.Load())
	assert.EqualValues(t, 1, searchCalls.Load())
	assert.EqualValues(t, 1, countCalls.Load())
}

func TestQdrantStore_ExistingAndMissingCollection(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/collections/c", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"status":{"error":"already exists"}}`))
	})
	mux.HandleFunc("/collections/c/points", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/collections/missing/points/search", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/collections/missing/points/count", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	emb := embedding.NewHashProvider(8)

	existing := NewQdrantStore(QdrantConfig{BaseURL: srv.URL, Collection: "c"}, emb, nil)
	require.NoError(t, existing.AddDocuments(ctx, []Document{{ID: "x", Content: "x"}}))

	missing := NewQdrantStore(QdrantConfig{BaseURL: srv.URL, Collection: "missing"}, emb, nil)
	docs, err := missing.SimilaritySearch(ctx, "q", 3)
	require.NoError(t, err)
	assert.Empty(t, docs)
	n, err := missing.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQdrantStore_UpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	t.Cleanup(srv.Close)

	store := NewQdrantStore(QdrantConfig{BaseURL: srv.URL, Collection: "c"}, embedding.NewHashProvider(8), nil)
	_, err := store.SimilaritySearch(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=500")
}
