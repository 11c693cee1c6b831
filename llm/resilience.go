package llm

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/tutorflow/llm/retry"
	"github.com/BaSui01/tutorflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// ⏱️ 单次调用超时
// =============================================================================

// TimeoutProvider 为每次调用附加截止时间，超时映射为可重试的 TIMEOUT 错误。
type TimeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

// WithTimeout 包装 Provider；timeout <= 0 时直接返回原 Provider。
func WithTimeout(p Provider, timeout time.Duration) Provider {
	if timeout <= 0 {
		return p
	}
	return &TimeoutProvider{inner: p, timeout: timeout}
}

func (p *TimeoutProvider) Name() string { return p.inner.Name() }

// Completion 使用 req.Timeout（若设置）或默认超时执行调用。
func (p *TimeoutProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	timeout := p.timeout
	if req != nil && req.Timeout > 0 {
		timeout = req.Timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.inner.Completion(callCtx, req)
	if err != nil {
		return nil, p.mapDeadline(ctx, callCtx, err)
	}
	return resp, nil
}

// BatchCompletion 整批共用一个截止时间，取各请求 Timeout 的最大值（未设置时用默认超时）。
func (p *TimeoutProvider) BatchCompletion(ctx context.Context, reqs []*ChatRequest) ([]*ChatResponse, error) {
	timeout := p.timeout
	for _, req := range reqs {
		if req != nil && req.Timeout > timeout {
			timeout = req.Timeout
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resps, err := CompleteBatch(callCtx, p.inner, reqs)
	if err != nil {
		return nil, p.mapDeadline(ctx, callCtx, err)
	}
	return resps, nil
}

// mapDeadline 只有本层截止时间触发时才视为超时，上游取消原样返回
func (p *TimeoutProvider) mapDeadline(ctx, callCtx context.Context, err error) error {
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return types.Timeout(p.inner.Name(), err)
	}
	return err
}

// =============================================================================
// 🔁 传输层重试
// =============================================================================

// RetryingProvider 对标记为 Retryable 的传输错误做指数退避重试。
// 这些重试发生在一次调用内部，不消耗 Agent 的尝试次数。
type RetryingProvider struct {
	inner   Provider
	retryer *retry.Retryer
}

// WithTransportRetry 包装 Provider；policy 为 nil 或 MaxRetries 为 0 时直接返回原 Provider。
func WithTransportRetry(p Provider, policy *retry.Policy, logger *zap.Logger) Provider {
	if policy == nil || policy.MaxRetries <= 0 {
		return p
	}
	pol := *policy
	if pol.ShouldRetry == nil {
		pol.ShouldRetry = isTransientTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingProvider{
		inner:   p,
		retryer: retry.NewBackoffRetryer(&pol, logger.With(zap.String("provider", p.Name()))),
	}
}

func (p *RetryingProvider) Name() string { return p.inner.Name() }

func (p *RetryingProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	resp, err := retry.Do(ctx, p.retryer, func() (*ChatResponse, error) {
		return p.inner.Completion(ctx, req)
	})
	if err != nil {
		return nil, unwrapTyped(err)
	}
	return resp, nil
}

// BatchCompletion 对整批重试：任一项出现可重放的传输错误时重新发送整批。
func (p *RetryingProvider) BatchCompletion(ctx context.Context, reqs []*ChatRequest) ([]*ChatResponse, error) {
	resps, err := retry.Do(ctx, p.retryer, func() ([]*ChatResponse, error) {
		return CompleteBatch(ctx, p.inner, reqs)
	})
	if err != nil {
		return nil, unwrapTyped(err)
	}
	return resps, nil
}

// unwrapTyped 保持错误码不变，外层只看到 BACKEND_TRANSPORT / TIMEOUT
func unwrapTyped(err error) error {
	var typed *types.Error
	if errors.As(err, &typed) {
		return typed
	}
	return err
}

func isTransientTransport(err error) bool {
	return types.IsErrorCode(err, types.ErrBackendTransport) && types.IsRetryable(err)
}

var (
	_ BatchProvider = (*TimeoutProvider)(nil)
	_ BatchProvider = (*RetryingProvider)(nil)
)
