// =============================================================================
// OpenAI-Compatible Provider
// =============================================================================
// One chat-completions client serves every backend that speaks the OpenAI
// wire format (OpenAI, Groq, Mistral, DeepSeek, Together, Ollama).
// =============================================================================

package openaicompat

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

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// ProviderName is the unique identifier for this provider (e.g., "openai", "ollama").
	ProviderName string

	// APIKey is the bearer token. Empty keys send no Authorization header.
	APIKey string

	// BaseURL is the base URL for the provider's API (e.g., "https://api.openai.com").
	BaseURL string

	// DefaultModel is the model to use when none is specified in the request.
	DefaultModel string

	// FallbackModel is used when both request and DefaultModel are empty.
	FallbackModel string

	// Timeout is the HTTP client timeout. Defaults to 60s if zero.
	Timeout time.Duration

	// EndpointPath is the chat completions endpoint path. Defaults to "/v1/chat/completions".
	EndpointPath string
}

// Provider implements llm.Provider over the OpenAI chat-completions API.
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

// New creates a new OpenAI-compatible provider with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Client: tlsutil.NewHTTPClient(tlsutil.ClientOptions{Timeout: timeout}),
		Logger: logger.With(zap.String("provider", cfg.ProviderName)),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

func (p *Provider) endpoint(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(p.Cfg.BaseURL, "/"), path)
}

func (p *Provider) buildHeaders(req *http.Request) {
	if p.Cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.Cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := providers.OpenAICompatRequest{
		Model:          providers.ChooseModel(req, p.Cfg.DefaultModel, p.Cfg.FallbackModel),
		Messages:       providers.ConvertMessagesToOpenAI(req.Messages),
		MaxTokens:      req.MaxTokens,
		Temperature:    req.Temperature,
		TopP:           req.TopP,
		Stop:           req.Stop,
		ResponseFormat: req.ResponseFormat,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	start := time.Now()
	resp, err := p.Client.Do(httpReq)
	if err != nil {
		// 超时交给外层 TimeoutProvider 判定
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, types.BackendTransport(p.Name(), err).WithRetryable(true).WithHTTPStatus(http.StatusBadGateway)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var oaResp providers.OpenAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, types.BackendTransport(p.Name(), fmt.Errorf("decode response: %w", err)).WithRetryable(true)
	}

	p.Logger.Debug("completion finished",
		zap.String("model", body.Model),
		zap.Duration("latency", time.Since(start)),
		zap.Int("total_tokens", usageTotal(oaResp.Usage)),
	)
	return providers.ToLLMChatResponse(oaResp, p.Name()), nil
}

func usageTotal(u *providers.OpenAICompatUsage) int {
	if u == nil {
		return 0
	}
	return u.TotalTokens
}

var _ llm.Provider = (*Provider)(nil)
