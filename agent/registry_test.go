package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/tutorflow/types"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))

	explain := newTestAgent(t, &scriptedProvider{outputs: []any{`{"a": 1}`}}, nil)
	require.NoError(t, r.Register(explain))
	assert.Error(t, r.Register(explain))

	got, ok := r.Get("tester")
	require.True(t, ok)
	assert.Same(t, explain, got)
	assert.Equal(t, []string{"tester"}, r.Names())
}

func TestRegistry_InvokeAgent(t *testing.T) {
	r := NewRegistry(nil)
	p := &scriptedProvider{outputs: []any{`{"a": 1}`}}
	require.NoError(t, r.Register(newTestAgent(t, p, nil)))

	v, err := r.InvokeAgent(context.Background(), "tester", map[string]any{"topic": "x"}, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1)}, v)

	v, err = r.InvokeAgent(context.Background(), "tester", map[string]string{"topic": "x"}, false)
	require.NoError(t, err)
	assert.NotNil(t, v)

	v, err = r.InvokeAgent(context.Background(), "tester", []any{
		map[string]any{"topic": "x"},
		map[string]any{"topic": "y"},
	}, true)
	require.NoError(t, err)
	assert.Len(t, v, 2)

	_, err = r.InvokeAgent(context.Background(), "missing", nil, false)
	assert.True(t, types.IsErrorCode(err, types.ErrAgentNotFound))

	_, err = r.InvokeAgent(context.Background(), "tester", "not a map", false)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))

	_, err = r.InvokeAgent(context.Background(), "tester", []any{"bad"}, true)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))
}

func TestRegistry_InvokeAgentExhausted(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(newTestAgent(t, &scriptedProvider{outputs: []any{"nope"}}, nil)))

	_, err := r.InvokeAgent(context.Background(), "tester", map[string]any{"topic": "x"}, false)
	assert.True(t, types.IsErrorCode(err, types.ErrRetriesExhausted))
}
