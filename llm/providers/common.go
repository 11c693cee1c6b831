package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BaSui01/tutorflow/llm"
	"github.com/BaSui01/tutorflow/types"
)

// MapHTTPError 将上游 HTTP 状态映射为传输错误，并标记可否重放。
func MapHTTPError(status int, msg string, provider string) *types.Error {
	retryable := false
	switch {
	case status == http.StatusTooManyRequests:
		retryable = true
	case status == http.StatusRequestTimeout:
		retryable = true
	case status == 529: // Model overloaded (used by some providers)
		retryable = true
	case status >= 500:
		retryable = true
	}
	return types.NewError(types.ErrBackendTransport, fmt.Sprintf("%s returned %d: %s", provider, status, msg)).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithProvider(provider)
}

// ReadErrorMessage 从错误响应体中提取可读信息。
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	// 尝试解析为通用错误响应
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}

	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}

	// 回退到原始文本
	return string(data)
}

type OpenAICompatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type OpenAICompatRequest struct {
	Model          string                `json:"model"`
	Messages       []OpenAICompatMessage `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    float32               `json:"temperature,omitempty"`
	TopP           float32               `json:"top_p,omitempty"`
	Stop           []string              `json:"stop,omitempty"`
	ResponseFormat *llm.ResponseFormat   `json:"response_format,omitempty"`
}

type OpenAICompatChoice struct {
	Index        int                 `json:"index"`
	FinishReason string              `json:"finish_reason"`
	Message      OpenAICompatMessage `json:"message"`
}

type OpenAICompatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAICompatResponse struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Created int64                `json:"created"`
	Choices []OpenAICompatChoice `json:"choices"`
	Usage   *OpenAICompatUsage   `json:"usage,omitempty"`
}

// ConvertMessagesToOpenAI 转换为 OpenAI 兼容的消息格式。
func ConvertMessagesToOpenAI(msgs []llm.Message) []OpenAICompatMessage {
	out := make([]OpenAICompatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, OpenAICompatMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.Name,
		})
	}
	return out
}

// ToLLMChatResponse 将 OpenAI 兼容响应转换为统一响应。
func ToLLMChatResponse(oa OpenAICompatResponse, provider string) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(oa.Choices))
	for _, c := range oa.Choices {
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message: llm.Message{
				Role:    types.Role(c.Message.Role),
				Content: c.Message.Content,
			},
		})
	}
	resp := &llm.ChatResponse{
		ID:       oa.ID,
		Provider: provider,
		Model:    oa.Model,
		Choices:  choices,
	}
	if oa.Usage != nil {
		resp.Usage = types.TokenUsage{
			PromptTokens:     oa.Usage.PromptTokens,
			CompletionTokens: oa.Usage.CompletionTokens,
			TotalTokens:      oa.Usage.TotalTokens,
		}
	}
	if oa.Created != 0 {
		resp.CreatedAt = time.Unix(oa.Created, 0)
	}
	return resp
}

// ChooseModel 按请求、默认、兜底的顺序选择模型。
func ChooseModel(req *llm.ChatRequest, defaultModel, fallbackModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallbackModel
}
