package factory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/tutorflow/llm"
	"github.com/BaSui01/tutorflow/llm/circuitbreaker"
	"github.com/BaSui01/tutorflow/llm/retry"
	"github.com/BaSui01/tutorflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingProvider struct {
	mu    sync.Mutex
	reqs  []llm.ChatRequest
	errs  []error
	delay time.Duration
}

func (p *recordingProvider) Name() string { return "fake" }

func (p *recordingProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, *req)
	var err error
	if len(p.errs) > 0 {
		err, p.errs = p.errs[0], p.errs[1:]
	}
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{Choices: []llm.ChatChoice{{Message: llm.Message{Content: "ok"}}}}, nil
}

func TestFactory_CachesBySettingsKey(t *testing.T) {
	f := New(Options{}, zaptest.NewLogger(t))
	builds := 0
	f.Register("fake", func(provider, model string, s Settings) (llm.Provider, error) {
		builds++
		return &recordingProvider{}, nil
	})

	p1, err := f.Create(Settings{Model: "fake:m1", Temperature: 0.1})
	require.NoError(t, err)
	p2, err := f.Create(Settings{Model: "fake:m1", Temperature: 0.9})
	require.NoError(t, err)
	p3, err := f.Create(Settings{Model: "fake:m2"})
	require.NoError(t, err)

	assert.Same(t, p1, p2)
	assert.NotSame(t, p1, p3)
	assert.Equal(t, 2, builds)
	assert.Equal(t, 2, f.Len())
}

func TestFactory_AppliesSettingsToRequests(t *testing.T) {
	inner := &recordingProvider{}
	f := New(Options{}, nil)
	f.Register("fake", func(provider, model string, s Settings) (llm.Provider, error) {
		return inner, nil
	})

	p, err := f.Create(Settings{Model: "fake:model-x", Temperature: 0.7, MaxTokens: 256})
	require.NoError(t, err)
	_, err = p.Completion(context.Background(), &llm.ChatRequest{})
	require.NoError(t, err)

	require.Len(t, inner.reqs, 1)
	assert.Equal(t, "model-x", inner.reqs[0].Model)
	assert.InDelta(t, 0.7, inner.reqs[0].Temperature, 0.0001)
	assert.Equal(t, 256, inner.reqs[0].MaxTokens)
}

type batchingProvider struct {
	recordingProvider
	batches [][]llm.ChatRequest
}

func (p *batchingProvider) BatchCompletion(ctx context.Context, reqs []*llm.ChatRequest) ([]*llm.ChatResponse, error) {
	batch := make([]llm.ChatRequest, len(reqs))
	out := make([]*llm.ChatResponse, len(reqs))
	for i, req := range reqs {
		batch[i] = *req
		out[i] = &llm.ChatResponse{Choices: []llm.ChatChoice{{Message: llm.Message{Content: "ok"}}}}
	}
	p.mu.Lock()
	p.batches = append(p.batches, batch)
	p.mu.Unlock()
	return out, nil
}

func TestFactory_BatchReachesNativeBatchProvider(t *testing.T) {
	inner := &batchingProvider{}
	f := New(Options{
		TransportRetry: &retry.Policy{MaxRetries: 1, InitialDelay: time.Millisecond},
		CircuitBreaker: &circuitbreaker.Config{Threshold: 3},
	}, zaptest.NewLogger(t))
	f.Register("fake", func(provider, model string, s Settings) (llm.Provider, error) {
		return inner, nil
	})

	p, err := f.Create(Settings{Model: "fake:model-x", Temperature: 0.3})
	require.NoError(t, err)
	resps, err := llm.CompleteBatch(context.Background(), p, []*llm.ChatRequest{{}, {MaxTokens: 9}})
	require.NoError(t, err)
	require.Len(t, resps, 2)

	require.Len(t, inner.batches, 1)
	assert.Empty(t, inner.reqs)
	for _, r := range inner.batches[0] {
		assert.Equal(t, "model-x", r.Model)
		assert.InDelta(t, 0.3, r.Temperature, 0.0001)
	}
	assert.Equal(t, 9, inner.batches[0][1].MaxTokens)
}

func TestFactory_TimeoutIsRecoverable(t *testing.T) {
	f := New(Options{DefaultTimeout: 20 * time.Millisecond}, nil)
	f.Register("fake", func(provider, model string, s Settings) (llm.Provider, error) {
		return &recordingProvider{delay: time.Second}, nil
	})

	p, err := f.Create(Settings{Model: "fake:slow"})
	require.NoError(t, err)
	_, err = p.Completion(context.Background(), &llm.ChatRequest{})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrTimeout))
	assert.True(t, types.IsRecoverable(err))
}

func TestFactory_TransportRetry(t *testing.T) {
	transient := types.BackendTransport("fake", errors.New("503")).WithRetryable(true)
	inner := &recordingProvider{errs: []error{transient, transient}}
	f := New(Options{TransportRetry: &retry.Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}}, nil)
	f.Register("fake", func(provider, model string, s Settings) (llm.Provider, error) {
		return inner, nil
	})

	p, err := f.Create(Settings{Model: "fake:m"})
	require.NoError(t, err)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text())
	assert.Len(t, inner.reqs, 3)
}

func TestFactory_UnknownProviderNeedsBaseURL(t *testing.T) {
	f := New(Options{}, nil)
	_, err := f.Create(Settings{Model: "mystery:model"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url is required")
}

func TestFactory_ResolvesAliases(t *testing.T) {
	var gotProvider, gotModel string
	f := New(Options{}, nil)
	f.Register("ollama", func(provider, model string, s Settings) (llm.Provider, error) {
		gotProvider, gotModel = provider, model
		assert.Equal(t, "http://localhost:11434", s.BaseURL)
		return &recordingProvider{}, nil
	})

	_, err := f.Create(Settings{Model: "llama"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", gotProvider)
	assert.Equal(t, "llama3.2", gotModel)
}

func TestFactory_NativeProviders(t *testing.T) {
	f := New(Options{}, zaptest.NewLogger(t))
	tests := []struct {
		model string
		name  string
	}{
		{"anthropic:claude-3-5-haiku-latest", "anthropic"},
		{"gemini:gemini-2.0-flash", "gemini"},
		{"google:gemini-2.0-flash", "google"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p, err := f.Create(Settings{Model: tt.model, APIKey: "k"})
			require.NoError(t, err)
			assert.Equal(t, tt.name, p.Name())
		})
	}
}
