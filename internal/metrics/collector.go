// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法对 nil 接收者是空操作。
type Collector struct {
	registry *prometheus.Registry

	// Agent 指标
	agentInvocationsTotal   *prometheus.CounterVec
	agentInvocationAttempts *prometheus.HistogramVec
	agentInvocationDuration *prometheus.HistogramVec
	agentStateTransitions   *prometheus.CounterVec

	// 检索管线指标
	pipelineStageTotal    *prometheus.CounterVec
	pipelineStageDuration *prometheus.HistogramVec
	chunksStored          *prometheus.CounterVec

	// 搜索指标
	searchRequestsTotal *prometheus.CounterVec

	// URL 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，使用独立的 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	// Agent 指标
	c.agentInvocationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_invocations_total",
			Help:      "Total number of agent invocations",
		},
		[]string{"agent", "status"},
	)

	c.agentInvocationAttempts = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_invocation_attempts",
			Help:      "Model calls made per agent invocation",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		},
		[]string{"agent"},
	)

	c.agentInvocationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_invocation_duration_seconds",
			Help:      "Agent invocation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent"},
	)

	c.agentStateTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_state_transitions_total",
			Help:      "Total number of invocation state transitions",
		},
		[]string{"agent", "from_state", "to_state"},
	)

	// 检索管线指标
	c.pipelineStageTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_total",
			Help:      "Total number of retrieval pipeline stage executions",
		},
		[]string{"stage", "status"},
	)

	c.pipelineStageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Retrieval pipeline stage duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	c.chunksStored = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_chunks_stored_total",
			Help:      "Total number of chunks written to the vector store",
		},
		[]string{"collection"},
	)

	c.searchRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of web search requests",
		},
		[]string{"provider", "status"},
	)

	// 缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "url_cache_hits_total",
			Help:      "Candidate URLs skipped because they were already ingested",
		},
		[]string{"collection"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "url_cache_misses_total",
			Help:      "Candidate URLs not yet ingested",
		},
		[]string{"collection"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// Registry 返回底层 Registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 /metrics HTTP 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// =============================================================================
// 🎭 Agent 指标记录
// =============================================================================

// RecordAgentInvocation 记录一次 Agent 调用
func (c *Collector) RecordAgentInvocation(agent, status string, attempts int, duration time.Duration) {
	if c == nil {
		return
	}
	c.agentInvocationsTotal.WithLabelValues(agent, status).Inc()
	c.agentInvocationAttempts.WithLabelValues(agent).Observe(float64(attempts))
	c.agentInvocationDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordAgentStateTransition 记录调用状态转换
func (c *Collector) RecordAgentStateTransition(agent, fromState, toState string) {
	if c == nil {
		return
	}
	c.agentStateTransitions.WithLabelValues(agent, fromState, toState).Inc()
}

// =============================================================================
// 🔎 检索管线指标记录
// =============================================================================

// RecordPipelineStage 记录管线阶段
func (c *Collector) RecordPipelineStage(stage, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.pipelineStageTotal.WithLabelValues(stage, status).Inc()
	c.pipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordChunksStored 记录写入向量库的分块数
func (c *Collector) RecordChunksStored(collection string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.chunksStored.WithLabelValues(collection).Add(float64(n))
}

// RecordSearch 记录搜索请求
func (c *Collector) RecordSearch(provider, status string) {
	if c == nil {
		return
	}
	c.searchRequestsTotal.WithLabelValues(provider, status).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheFilter 记录一次 URL 过滤的命中与未命中数
func (c *Collector) RecordCacheFilter(collection string, hits, misses int) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(collection).Add(float64(hits))
	c.cacheMisses.WithLabelValues(collection).Add(float64(misses))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// Status 将错误转换为 status 标签
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
