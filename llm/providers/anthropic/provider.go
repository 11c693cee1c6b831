package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/tutorflow/internal/tlsutil"
	"github.com/BaSui01/tutorflow/llm"
	"github.com/BaSui01/tutorflow/llm/providers"
	"github.com/BaSui01/tutorflow/types"
	"go.uber.org/zap"
)

const (
	defaultBaseURL    = "https://api.anthropic.com"
	defaultAPIVersion = "2023-06-01"
	defaultModel      = "claude-3-5-sonnet-latest"
	// Messages API 要求 max_tokens 必填
	defaultMaxTokens = 4096
)

// ClaudeProvider 对接 Anthropic Messages API
type ClaudeProvider struct {
	cfg    providers.ClaudeConfig
	client *http.Client
	logger *zap.Logger
}

func NewClaudeProvider(cfg providers.ClaudeConfig, logger *zap.Logger) *ClaudeProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaudeProvider{
		cfg:    cfg,
		client: tlsutil.NewHTTPClient(tlsutil.ClientOptions{Timeout: timeout}),
		logger: logger.With(zap.String("provider", "anthropic")),
	}
}

func (p *ClaudeProvider) Name() string { return "anthropic" }

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model         string          `json:"model"`
	System        string          `json:"system,omitempty"`
	Messages      []claudeMessage `json:"messages"`
	MaxTokens     int             `json:"max_tokens"`
	Temperature   float32         `json:"temperature,omitempty"`
	TopP          float32         `json:"top_p,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeResponse struct {
	ID         string               `json:"id"`
	Model      string               `json:"model"`
	Content    []claudeContentBlock `json:"content"`
	StopReason string               `json:"stop_reason"`
	Usage      claudeUsage          `json:"usage"`
}

// convertMessages system 消息单独放入 system 字段，其余按顺序保留
func convertMessages(msgs []llm.Message) (string, []claudeMessage) {
	var system []string
	out := make([]claudeMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			system = append(system, m.Content)
		case types.RoleAssistant:
			out = append(out, claudeMessage{Role: "assistant", Content: m.Content})
		default:
			out = append(out, claudeMessage{Role: "user", Content: m.Content})
		}
	}
	return strings.Join(system, "\n\n"), out
}

func (p *ClaudeProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	system, msgs := convertMessages(req.Messages)
	body := claudeRequest{
		Model:         providers.ChooseModel(req, p.cfg.Model, defaultModel),
		System:        system,
		Messages:      msgs,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = defaultMaxTokens
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", p.cfg.APIVersion)
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, types.BackendTransport(p.Name(), err).WithRetryable(true).WithHTTPStatus(http.StatusBadGateway)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}

	var cr claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, types.BackendTransport(p.Name(), fmt.Errorf("decode response: %w", err)).WithRetryable(true)
	}
	p.logger.Debug("completion finished",
		zap.String("model", body.Model),
		zap.Duration("latency", time.Since(start)),
		zap.Int("output_tokens", cr.Usage.OutputTokens),
	)
	return toChatResponse(cr, p.Name()), nil
}

func toChatResponse(cr claudeResponse, provider string) *llm.ChatResponse {
	var sb strings.Builder
	for _, block := range cr.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return &llm.ChatResponse{
		ID:       cr.ID,
		Provider: provider,
		Model:    cr.Model,
		Choices: []llm.ChatChoice{{
			FinishReason: cr.StopReason,
			Message:      types.NewAssistantMessage(sb.String()),
		}},
		Usage: types.TokenUsage{
			PromptTokens:     cr.Usage.InputTokens,
			CompletionTokens: cr.Usage.OutputTokens,
			TotalTokens:      cr.Usage.InputTokens + cr.Usage.OutputTokens,
		},
		CreatedAt: time.Now(),
	}
}

var _ llm.Provider = (*ClaudeProvider)(nil)
