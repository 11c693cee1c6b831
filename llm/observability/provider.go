package observability

import (
	"context"
	"time"

	"github.com/BaSui01/tutorflow/llm"
)

// InstrumentedProvider 为每次 Completion 记录 span 与指标。
type InstrumentedProvider struct {
	inner   llm.Provider
	metrics *Metrics
}

// Wrap 包装 Provider；metrics 为 nil 时原样返回。
func Wrap(inner llm.Provider, metrics *Metrics) llm.Provider {
	if metrics == nil {
		return inner
	}
	return &InstrumentedProvider{inner: inner, metrics: metrics}
}

func (p *InstrumentedProvider) Name() string { return p.inner.Name() }

func (p *InstrumentedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	attrs := RequestAttrs{Provider: p.inner.Name(), Model: req.Model, Agent: req.Metadata["agent"]}
	ctx, span := p.metrics.StartRequest(ctx, attrs)

	start := time.Now()
	resp, err := p.inner.Completion(ctx, req)

	out := ResponseAttrs{Status: "success", Duration: time.Since(start)}
	if err != nil {
		out.Status = "error"
		out.ErrorCode = errorCode(err)
		span.RecordError(err)
	} else if resp != nil {
		out.TokensPrompt = resp.Usage.PromptTokens
		out.TokensCompletion = resp.Usage.CompletionTokens
	}
	p.metrics.EndRequest(ctx, span, attrs, out)

	return resp, err
}

// BatchCompletion 整批记录为一次请求，Token 为各项之和。
func (p *InstrumentedProvider) BatchCompletion(ctx context.Context, reqs []*llm.ChatRequest) ([]*llm.ChatResponse, error) {
	attrs := RequestAttrs{Provider: p.inner.Name()}
	if len(reqs) > 0 && reqs[0] != nil {
		attrs.Model = reqs[0].Model
		attrs.Agent = reqs[0].Metadata["agent"]
	}
	ctx, span := p.metrics.StartRequest(ctx, attrs)

	start := time.Now()
	resps, err := llm.CompleteBatch(ctx, p.inner, reqs)

	out := ResponseAttrs{Status: "success", Duration: time.Since(start)}
	if err != nil {
		out.Status = "error"
		out.ErrorCode = errorCode(err)
		span.RecordError(err)
	}
	for _, resp := range resps {
		if resp != nil {
			out.TokensPrompt += resp.Usage.PromptTokens
			out.TokensCompletion += resp.Usage.CompletionTokens
		}
	}
	p.metrics.EndRequest(ctx, span, attrs, out)

	return resps, err
}

var _ llm.BatchProvider = (*InstrumentedProvider)(nil)
