package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector("test", zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.Registry())
	assert.NotNil(t, collector.agentInvocationsTotal)
	assert.NotNil(t, collector.pipelineStageTotal)
}

func TestNewCollector_IndependentRegistries(t *testing.T) {
	// 同名 namespace 不会重复注册冲突
	assert.NotPanics(t, func() {
		NewCollector("dup", nil)
		NewCollector("dup", nil)
	})
}

func TestCollector_RecordAgentInvocation(t *testing.T) {
	collector := NewCollector("test", zap.NewNop())

	collector.RecordAgentInvocation("drafter", "success", 2, 300*time.Millisecond)
	collector.RecordAgentInvocation("drafter", "success", 1, 100*time.Millisecond)
	collector.RecordAgentInvocation("drafter", "retries_exhausted", 3, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.agentInvocationsTotal.WithLabelValues("drafter", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.agentInvocationsTotal.WithLabelValues("drafter", "retries_exhausted")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.agentInvocationAttempts))
}

func TestCollector_RecordStateTransition(t *testing.T) {
	collector := NewCollector("test", zap.NewNop())

	collector.RecordAgentStateTransition("quiz", "validating", "retrying")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.agentStateTransitions.WithLabelValues("quiz", "validating", "retrying")))
}

func TestCollector_RecordPipeline(t *testing.T) {
	collector := NewCollector("test", zap.NewNop())

	collector.RecordPipelineStage("search", "success", 10*time.Millisecond)
	collector.RecordPipelineStage("fetch", "error", 10*time.Millisecond)
	collector.RecordChunksStored("algebra", 5)
	collector.RecordChunksStored("algebra", 0)
	collector.RecordCacheFilter("algebra", 2, 3)
	collector.RecordSearch("serper", "success")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.pipelineStageTotal.WithLabelValues("fetch", "error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.chunksStored.WithLabelValues("algebra")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("algebra")))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.cacheMisses.WithLabelValues("algebra")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.searchRequestsTotal.WithLabelValues("serper", "success")))
}

func TestCollector_NilReceiver(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordAgentInvocation("a", "success", 1, time.Second)
		c.RecordAgentStateTransition("a", "idle", "invoking")
		c.RecordPipelineStage("search", "success", time.Second)
		c.RecordChunksStored("c", 1)
		c.RecordSearch("p", "error")
		c.RecordCacheFilter("c", 1, 1)
	})
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector("tutorflow", zap.NewNop())
	collector.RecordSearch("brave", "success")

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tutorflow_search_requests_total"))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "success", Status(nil))
	assert.Equal(t, "error", Status(errors.New("x")))
}
