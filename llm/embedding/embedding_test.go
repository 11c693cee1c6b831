package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/tutorflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProvider_EmbedDocuments(t *testing.T) {
	var gotAuth string
	var gotReq openAIEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		// 倒序返回，验证按 index 归位
		data := make([]map[string]any, len(gotReq.Input))
		for i := range gotReq.Input {
			j := len(gotReq.Input) - 1 - i
			data[i] = map[string]any{"object": "embedding", "index": j, "embedding": []float64{float64(j), 1}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  gotReq.Model,
			"usage":  map[string]int{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "text-embedding-3-small", gotReq.Model)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		assert.Equal(t, float64(i), v[0])
	}
}

func TestOpenAIProvider_NoKeyNoAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5]}],"model":"nomic-embed-text"}`))
	}))
	defer srv.Close()

	p, err := New(Config{Provider: "ollama", BaseURL: srv.URL})
	require.NoError(t, err)
	v, err := p.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, v)
}

func TestOpenAIProvider_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL})
	_, err := p.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, types.ErrBackendTransport, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestHashProvider(t *testing.T) {
	p := NewHashProvider(64)
	ctx := context.Background()

	a, err := p.EmbedQuery(ctx, "Go channels and goroutines")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "go CHANNELS, and goroutines!")
	require.NoError(t, err)
	c, err := p.EmbedQuery(ctx, "baking sourdough bread")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.InDelta(t, 1.0, dot(a, a), 1e-9)
	assert.InDelta(t, 1.0, dot(a, b), 1e-9)
	assert.Less(t, dot(a, c), dot(a, b))

	empty, err := p.EmbedQuery(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, dot(empty, empty))
}

func TestNew_Unknown(t *testing.T) {
	_, err := New(Config{Provider: "nope"})
	assert.Error(t, err)

	p, err := New(Config{Provider: "hash"})
	require.NoError(t, err)
	assert.Equal(t, DefaultHashDimensions, p.Dimensions())
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	if math.IsNaN(s) {
		return 0
	}
	return s
}
