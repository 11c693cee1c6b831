package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/BaSui01/tutorflow/llm"
	"github.com/BaSui01/tutorflow/types"
)

type stubProvider struct {
	resp *llm.ChatResponse
	err  error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Completion(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return s.resp, s.err
}

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetricsWith(tracenoop.NewTracerProvider().Tracer("test"), metricnoop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return m
}

func TestWrap_NilMetrics(t *testing.T) {
	inner := &stubProvider{}
	assert.Same(t, inner, Wrap(inner, nil))
}

func TestInstrumentedProvider(t *testing.T) {
	m := newTestMetrics(t)
	resp := &llm.ChatResponse{Usage: types.TokenUsage{PromptTokens: 3, CompletionTokens: 4}}

	p := Wrap(&stubProvider{resp: resp}, m)
	assert.Equal(t, "stub", p.Name())

	got, err := p.Completion(context.Background(), &llm.ChatRequest{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Same(t, resp, got)

	boom := types.BackendTransport("stub", errors.New("down"))
	_, err = Wrap(&stubProvider{err: boom}, m).Completion(context.Background(), &llm.ChatRequest{})
	assert.ErrorIs(t, err, boom)
}

type batchStub struct {
	stubProvider
	batches int
}

func (s *batchStub) BatchCompletion(_ context.Context, reqs []*llm.ChatRequest) ([]*llm.ChatResponse, error) {
	s.batches++
	out := make([]*llm.ChatResponse, len(reqs))
	for i := range reqs {
		out[i] = s.resp
	}
	return out, s.err
}

func TestInstrumentedProvider_ForwardsBatch(t *testing.T) {
	resp := &llm.ChatResponse{Usage: types.TokenUsage{PromptTokens: 1, CompletionTokens: 2}}
	inner := &batchStub{stubProvider: stubProvider{resp: resp}}

	got, err := llm.CompleteBatch(context.Background(), Wrap(inner, newTestMetrics(t)), []*llm.ChatRequest{{Model: "m"}, {Model: "m"}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Same(t, resp, got[1])
	assert.Equal(t, 1, inner.batches)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", errorCode(nil))
	assert.Equal(t, "TIMEOUT", errorCode(types.Timeout("p", nil)))
	assert.Equal(t, "UNKNOWN", errorCode(errors.New("x")))
}
