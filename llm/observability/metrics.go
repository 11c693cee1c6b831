package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/BaSui01/tutorflow/types"
)

const instrumentationName = "github.com/BaSui01/tutorflow/llm"

// Metrics LLM 指标收集器
type Metrics struct {
	tracer trace.Tracer
	meter  metric.Meter
	// 计数器
	requestTotal metric.Int64Counter
	tokenTotal   metric.Int64Counter
	errorTotal   metric.Int64Counter
	// 直方图
	requestDuration metric.Float64Histogram
	// 当前值
	activeRequests metric.Int64UpDownCounter
}

// NewMetrics 创建指标收集器，使用全局 TracerProvider 与 MeterProvider。
func NewMetrics() (*Metrics, error) {
	return NewMetricsWith(otel.Tracer(instrumentationName), otel.Meter(instrumentationName))
}

// NewMetricsWith 使用指定的 tracer 和 meter 创建收集器
func NewMetricsWith(tracer trace.Tracer, meter metric.Meter) (*Metrics, error) {
	m := &Metrics{
		tracer: tracer,
		meter:  meter,
	}

	var err error

	m.requestTotal, err = meter.Int64Counter("llm.request.total",
		metric.WithDescription("Total number of LLM requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	m.tokenTotal, err = meter.Int64Counter("llm.token.total",
		metric.WithDescription("Total tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.errorTotal, err = meter.Int64Counter("llm.error.total",
		metric.WithDescription("Total number of errors"),
		metric.WithUnit("{error}"))
	if err != nil {
		return nil, err
	}

	// 请求延迟
	m.requestDuration, err = meter.Float64Histogram("llm.request.duration",
		metric.WithDescription("Request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60))
	if err != nil {
		return nil, err
	}

	m.activeRequests, err = meter.Int64UpDownCounter("llm.request.active",
		metric.WithDescription("Number of active requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RequestAttrs 请求属性
type RequestAttrs struct {
	Provider string
	Model    string
	Agent    string
}

// ResponseAttrs 响应属性
type ResponseAttrs struct {
	Status           string
	ErrorCode        string
	TokensPrompt     int
	TokensCompletion int
	Duration         time.Duration
}

// StartRequest 开始请求追踪
func (m *Metrics) StartRequest(ctx context.Context, attrs RequestAttrs) (context.Context, trace.Span) {
	ctx, span := m.tracer.Start(ctx, "llm.completion",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", attrs.Provider),
			attribute.String("llm.model", attrs.Model),
			attribute.String("agent.name", attrs.Agent),
		))

	m.activeRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", attrs.Provider),
			attribute.String("model", attrs.Model)))

	return ctx, span
}

// EndRequest 结束请求追踪
func (m *Metrics) EndRequest(ctx context.Context, span trace.Span, req RequestAttrs, resp ResponseAttrs) {
	defer span.End()

	commonAttrs := []attribute.KeyValue{
		attribute.String("provider", req.Provider),
		attribute.String("model", req.Model),
		attribute.String("status", resp.Status),
	}

	m.activeRequests.Add(ctx, -1,
		metric.WithAttributes(
			attribute.String("provider", req.Provider),
			attribute.String("model", req.Model)))

	m.requestTotal.Add(ctx, 1, metric.WithAttributes(commonAttrs...))
	m.requestDuration.Record(ctx, resp.Duration.Seconds(), metric.WithAttributes(commonAttrs...))

	if total := int64(resp.TokensPrompt + resp.TokensCompletion); total > 0 {
		m.tokenTotal.Add(ctx, int64(resp.TokensPrompt), metric.WithAttributes(
			attribute.String("provider", req.Provider),
			attribute.String("model", req.Model),
			attribute.String("type", "prompt")))
		m.tokenTotal.Add(ctx, int64(resp.TokensCompletion), metric.WithAttributes(
			attribute.String("provider", req.Provider),
			attribute.String("model", req.Model),
			attribute.String("type", "completion")))
	}

	if resp.ErrorCode != "" {
		m.errorTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", req.Provider),
			attribute.String("model", req.Model),
			attribute.String("error_code", resp.ErrorCode)))
		span.SetAttributes(attribute.String("error.code", resp.ErrorCode))
		span.SetStatus(codes.Error, resp.ErrorCode)
	}

	span.SetAttributes(
		attribute.String("llm.status", resp.Status),
		attribute.Int("llm.tokens.prompt", resp.TokensPrompt),
		attribute.Int("llm.tokens.completion", resp.TokensCompletion),
		attribute.Float64("llm.duration_ms", float64(resp.Duration.Milliseconds())))
}

// Tracer 获取 Tracer
func (m *Metrics) Tracer() trace.Tracer {
	return m.tracer
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := types.GetErrorCode(err); code != "" {
		return string(code)
	}
	return "UNKNOWN"
}
