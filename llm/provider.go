package llm

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/tutorflow/types"
)

// Message 与 types.Message 相同，在 llm 包内提供简短别名。
type Message = types.Message

// ResponseFormat 控制结构化输出模式。
type ResponseFormat struct {
	// Type 取值 "text" 或 "json_object"
	Type string `json:"type"`
}

// JSONObjectFormat 请求模型直接返回 JSON 对象。
var JSONObjectFormat = &ResponseFormat{Type: "json_object"}

type ChatRequest struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float32           `json:"temperature,omitempty"`
	TopP           float32           `json:"top_p,omitempty"`
	Stop           []string          `json:"stop,omitempty"`
	ResponseFormat *ResponseFormat   `json:"response_format,omitempty"`
	Timeout        time.Duration     `json:"timeout,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

type ChatResponse struct {
	ID        string           `json:"id,omitempty"`
	Provider  string           `json:"provider,omitempty"`
	Model     string           `json:"model"`
	Choices   []ChatChoice     `json:"choices"`
	Usage     types.TokenUsage `json:"usage,omitempty"`
	CreatedAt time.Time        `json:"created_at,omitempty"`
}

// Text 返回第一个 choice 的文本内容，没有 choice 时返回空串。
func (r *ChatResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Provider 定义了统一的 LLM 适配接口。
// 实现方必须把网络、鉴权、限流失败映射为 types.ErrBackendTransport，
// 并在可以安全重放时设置 Retryable。
type Provider interface {
	// Completion 发起同步聊天请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}

// BatchProvider 是可选接口：一次调用处理多组消息。
// 返回切片与输入一一对应。
type BatchProvider interface {
	Provider
	BatchCompletion(ctx context.Context, reqs []*ChatRequest) ([]*ChatResponse, error)
}

// DefaultBatchConcurrency 不支持批量接口时的并发调用上限
const DefaultBatchConcurrency = 8

// CompleteBatch 对支持批量的 Provider 走批量接口，否则以有界并发逐个调用。
// 返回切片与 reqs 一一对应；任一调用失败会取消其余调用并返回该错误。
func CompleteBatch(ctx context.Context, p Provider, reqs []*ChatRequest) ([]*ChatResponse, error) {
	if bp, ok := p.(BatchProvider); ok {
		return bp.BatchCompletion(ctx, reqs)
	}
	return completeConcurrently(ctx, p, reqs, DefaultBatchConcurrency)
}

func completeConcurrently(ctx context.Context, p Provider, reqs []*ChatRequest, limit int) ([]*ChatResponse, error) {
	out := make([]*ChatResponse, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := p.Completion(gctx, req)
			if err != nil {
				return err
			}
			out[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
