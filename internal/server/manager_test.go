package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/tutorflow/internal/metrics"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(":9090")
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Positive(t, cfg.ReadTimeout)
}

func TestManager_ServesMetricsAndHealth(t *testing.T) {
	collector := metrics.NewCollector("tutorflow_test", zaptest.NewLogger(t))
	collector.RecordAgentInvocation("draft_knowledge_point", "success", 2, 50*time.Millisecond)

	m := NewManager(NewHandler(collector), DefaultConfig("127.0.0.1:0"), zaptest.NewLogger(t))
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	assert.True(t, m.IsRunning())
	assert.False(t, strings.HasSuffix(m.Addr(), ":0"))

	code, body := get(t, "http://"+m.Addr()+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get(t, "http://"+m.Addr()+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `agent="draft_knowledge_point"`)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestManager_DoubleStart(t *testing.T) {
	m := NewManager(http.NewServeMux(), DefaultConfig("127.0.0.1:0"), nil)
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	m := NewManager(http.NewServeMux(), DefaultConfig("127.0.0.1:0"), nil)
	require.NoError(t, m.Start())

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestManager_ShutdownBeforeStart(t *testing.T) {
	m := NewManager(http.NewServeMux(), DefaultConfig("127.0.0.1:0"), nil)
	assert.False(t, m.IsRunning())
	assert.Equal(t, "127.0.0.1:0", m.Addr())
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_ListenError(t *testing.T) {
	first := NewManager(http.NewServeMux(), DefaultConfig("127.0.0.1:0"), nil)
	require.NoError(t, first.Start())
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	second := NewManager(http.NewServeMux(), DefaultConfig(first.Addr()), nil)
	err := second.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")

	select {
	case err := <-first.Errors():
		t.Fatalf("unexpected serve error: %v", err)
	default:
	}
}
