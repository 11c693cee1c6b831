package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
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
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash"
)

// GeminiProvider 直接调用 Gemini generateContent 接口
type GeminiProvider struct {
	cfg    providers.GeminiConfig
	name   string
	client *http.Client
	logger *zap.Logger
}

// NewGeminiProvider 创建 Gemini Provider；name 为空时取 "gemini"
func NewGeminiProvider(name string, cfg providers.GeminiConfig, logger *zap.Logger) *GeminiProvider {
	if name == "" {
		name = "gemini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiProvider{
		cfg:    cfg,
		name:   name,
		client: tlsutil.NewHTTPClient(tlsutil.ClientOptions{Timeout: timeout}),
		logger: logger.With(zap.String("provider", name)),
	}
}

func (p *GeminiProvider) Name() string { return p.name }

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float32  `json:"temperature,omitempty"`
	TopP             float32  `json:"topP,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	StopSequences    []string `json:"stopSequences,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
	ModelVersion  string            `json:"modelVersion,omitempty"`
}

// convertMessages system 消息合并进 systemInstruction，assistant 角色映射为 model
func convertMessages(msgs []llm.Message) (*geminiContent, []geminiContent) {
	var system []string
	contents := make([]geminiContent, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			system = append(system, m.Content)
		case types.RoleAssistant:
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(system) == 0 {
		return nil, contents
	}
	return &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}, contents
}

func (p *GeminiProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := providers.ChooseModel(req, p.cfg.Model, defaultModel)
	system, contents := convertMessages(req.Messages)
	body := geminiRequest{
		Contents:          contents,
		SystemInstruction: system,
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.Stop,
		},
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == llm.JSONObjectFormat.Type {
		body.GenerationConfig.ResponseMimeType = "application/json"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(p.cfg.BaseURL, "/"), model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, types.BackendTransport(p.Name(), err).WithRetryable(true).WithHTTPStatus(http.StatusBadGateway)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, providers.MapHTTPError(resp.StatusCode, readErrorMessage(resp.Body), p.Name())
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, types.BackendTransport(p.Name(), fmt.Errorf("decode response: %w", err)).WithRetryable(true)
	}
	return toChatResponse(gr, p.Name(), model), nil
}

// readErrorMessage Gemini 错误体为 {"error":{"message","status"}}
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &errResp) == nil && errResp.Error.Message != "" {
		if errResp.Error.Status != "" {
			return fmt.Sprintf("%s (status: %s)", errResp.Error.Message, errResp.Error.Status)
		}
		return errResp.Error.Message
	}
	return string(data)
}

func toChatResponse(gr geminiResponse, provider, model string) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(gr.Candidates))
	for _, c := range gr.Candidates {
		var sb strings.Builder
		for _, part := range c.Content.Parts {
			sb.WriteString(part.Text)
		}
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: strings.ToLower(c.FinishReason),
			Message:      types.NewAssistantMessage(sb.String()),
		})
	}
	if gr.ModelVersion != "" {
		model = gr.ModelVersion
	}
	out := &llm.ChatResponse{
		Provider:  provider,
		Model:     model,
		Choices:   choices,
		CreatedAt: time.Now(),
	}
	if gr.UsageMetadata != nil {
		out.Usage = types.TokenUsage{
			PromptTokens:     gr.UsageMetadata.PromptTokenCount,
			CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gr.UsageMetadata.TotalTokenCount,
		}
	}
	return out
}

var _ llm.Provider = (*GeminiProvider)(nil)
