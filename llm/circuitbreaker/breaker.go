package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/tutorflow/llm"
	"github.com/BaSui01/tutorflow/types"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值（触发熔断）
	Threshold uint32 `yaml:"threshold" json:"threshold"`

	// ResetTimeout 熔断恢复等待时间（从 Open -> HalfOpen）
	ResetTimeout time.Duration `yaml:"reset_timeout" json:"reset_timeout"`

	// Interval 关闭状态下清零失败计数的周期，0 表示不清零
	Interval time.Duration `yaml:"interval" json:"interval"`

	// HalfOpenMaxCalls 半开状态下允许的最大请求数
	HalfOpenMaxCalls uint32 `yaml:"half_open_max_calls" json:"half_open_max_calls"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Threshold:        5,
		ResetTimeout:     60 * time.Second,
		Interval:         60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Provider 为 llm.Provider 增加熔断保护。
// 连续传输失败达到阈值后直接快速失败，不再请求上游。
type Provider struct {
	inner   llm.Provider
	breaker *gobreaker.CircuitBreaker[*llm.ChatResponse]
	logger  *zap.Logger
}

// Wrap 创建熔断包装；零值配置项使用默认值。
func Wrap(inner llm.Provider, cfg Config, logger *zap.Logger) *Provider {
	def := DefaultConfig()
	if cfg.Threshold == 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMaxCalls == 0 {
		cfg.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "circuit_breaker"))

	threshold := cfg.Threshold
	cb := gobreaker.NewCircuitBreaker[*llm.ChatResponse](gobreaker.Settings{
		Name:        "llm:" + inner.Name(),
		MaxRequests: cfg.HalfOpenMaxCalls,
		Interval:    cfg.Interval,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: isSuccessful,
	})

	return &Provider{inner: inner, breaker: cb, logger: logger}
}

// isSuccessful 客户端错误（鉴权、参数错误）不计入熔断失败
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if types.IsErrorCode(err, types.ErrTimeout) {
		return false
	}
	return types.IsErrorCode(err, types.ErrBackendTransport) && !types.IsRetryable(err)
}

func (p *Provider) Name() string { return p.inner.Name() }

// Completion 经熔断器转发调用。
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := p.breaker.Execute(func() (*llm.ChatResponse, error) {
		return p.inner.Completion(ctx, req)
	})
	if err != nil {
		return nil, p.mapOpen(err)
	}
	return resp, nil
}

// BatchCompletion 整批作为一次熔断器调用。
func (p *Provider) BatchCompletion(ctx context.Context, reqs []*llm.ChatRequest) ([]*llm.ChatResponse, error) {
	var resps []*llm.ChatResponse
	_, err := p.breaker.Execute(func() (*llm.ChatResponse, error) {
		var err error
		resps, err = llm.CompleteBatch(ctx, p.inner, reqs)
		return nil, err
	})
	if err != nil {
		return nil, p.mapOpen(err)
	}
	return resps, nil
}

func (p *Provider) mapOpen(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.BackendTransport(p.inner.Name(), err)
	}
	return err
}

// State 返回当前熔断状态，用于监控。
func (p *Provider) State() gobreaker.State {
	return p.breaker.State()
}

var _ llm.BatchProvider = (*Provider)(nil)
