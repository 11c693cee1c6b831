// Package factory builds llm.Provider instances from llm.Settings. It imports
// the provider sub-packages and the resilience wrappers, breaking the import
// cycle that would occur if this logic lived in the llm package directly.
package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/tutorflow/llm"
	"github.com/BaSui01/tutorflow/llm/circuitbreaker"
	"github.com/BaSui01/tutorflow/llm/observability"
	"github.com/BaSui01/tutorflow/llm/providers"
	claude "github.com/BaSui01/tutorflow/llm/providers/anthropic"
	"github.com/BaSui01/tutorflow/llm/providers/gemini"
	"github.com/BaSui01/tutorflow/llm/providers/openaicompat"
	"github.com/BaSui01/tutorflow/llm/retry"
	"go.uber.org/zap"
)

// Builder constructs a raw provider for one provider name.
type Builder func(provider, model string, s Settings) (llm.Provider, error)

// Settings is llm.Settings with the API key and base URL already resolved.
type Settings = llm.Settings

// Options configures the wrappers applied to every provider the factory builds.
type Options struct {
	// DefaultTimeout 单次调用超时，Settings.Timeout 为 0 时使用
	DefaultTimeout time.Duration

	// TransportRetry 传输层重试策略，nil 表示不重试
	TransportRetry *retry.Policy

	// CircuitBreaker 非 nil 时启用熔断
	CircuitBreaker *circuitbreaker.Config

	// Metrics 非 nil 时为每次调用记录 span 与指标
	Metrics *observability.Metrics
}

// Factory creates and caches providers keyed by Settings.CacheKey.
type Factory struct {
	opts     Options
	logger   *zap.Logger
	mu       sync.Mutex
	cache    map[string]llm.Provider
	builders map[string]Builder
}

// New creates a Factory. A nil logger is replaced by zap.NewNop().
func New(opts Options, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 60 * time.Second
	}
	f := &Factory{
		opts:     opts,
		logger:   logger.With(zap.String("component", "llm_factory")),
		cache:    make(map[string]llm.Provider),
		builders: make(map[string]Builder),
	}
	f.builders["anthropic"] = f.anthropic
	for _, name := range []string{"gemini", "google", "google_genai"} {
		f.builders[name] = f.gemini
	}
	return f
}

// Register overrides how providers named provider are built.
func (f *Factory) Register(provider string, b Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[provider] = b
}

// Create returns a cached provider for settings, building it on first use.
func (f *Factory) Create(settings Settings) (llm.Provider, error) {
	settings.Model = llm.Normalize(settings.Model)
	providerName, model := llm.SplitModel(settings.Model)
	settings.APIKey = llm.ResolveAPIKey(providerName, settings.APIKey)
	if settings.BaseURL == "" {
		settings.BaseURL = llm.DefaultBaseURL(providerName)
	}
	key := settings.CacheKey()

	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.cache[key]; ok {
		return p, nil
	}

	build, ok := f.builders[providerName]
	if !ok {
		build = f.openAICompatible
	}
	raw, err := build(providerName, model, settings)
	if err != nil {
		return nil, fmt.Errorf("create provider %s: %w", providerName, err)
	}

	p := f.wrap(raw, settings)
	f.cache[key] = p
	f.logger.Info("provider created",
		zap.String("provider", providerName),
		zap.String("model", model),
		zap.String("base_url", settings.BaseURL),
	)
	return p, nil
}

// Len returns the number of cached providers.
func (f *Factory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cache)
}

func (f *Factory) openAICompatible(provider, model string, s Settings) (llm.Provider, error) {
	if s.BaseURL == "" {
		return nil, fmt.Errorf("unknown provider %q: base_url is required for a generic OpenAI-compatible provider", provider)
	}
	if env, ok := llm.APIKeyEnv(provider); ok && env != "" && s.APIKey == "" {
		f.logger.Warn("no API key configured", zap.String("provider", provider), zap.String("env", env))
	}
	cfg := openaicompat.Config{
		ProviderName: provider,
		APIKey:       s.APIKey,
		BaseURL:      s.BaseURL,
		DefaultModel: model,
	}
	if v, ok := s.Extra["endpoint_path"].(string); ok {
		cfg.EndpointPath = v
	}
	return openaicompat.New(cfg, f.logger), nil
}

func (f *Factory) anthropic(_, model string, s Settings) (llm.Provider, error) {
	cfg := providers.ClaudeConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  s.APIKey,
			BaseURL: s.BaseURL,
			Model:   model,
		},
	}
	if v, ok := s.Extra["api_version"].(string); ok {
		cfg.APIVersion = v
	}
	return claude.NewClaudeProvider(cfg, f.logger), nil
}

func (f *Factory) gemini(provider, model string, s Settings) (llm.Provider, error) {
	return gemini.NewGeminiProvider(provider, providers.GeminiConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  s.APIKey,
			BaseURL: s.BaseURL,
			Model:   model,
		},
	}, f.logger), nil
}

// wrap 由内向外：观测 -> 超时 -> 熔断 -> 传输重试
func (f *Factory) wrap(p llm.Provider, s Settings) llm.Provider {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = f.opts.DefaultTimeout
	}
	p = observability.Wrap(p, f.opts.Metrics)
	p = llm.WithTimeout(p, timeout)
	if f.opts.CircuitBreaker != nil {
		p = circuitbreaker.Wrap(p, *f.opts.CircuitBreaker, f.logger)
	}
	p = llm.WithTransportRetry(p, f.opts.TransportRetry, f.logger)
	return &settingsProvider{inner: p, settings: s}
}

// settingsProvider fills request defaults from the settings it was built with.
type settingsProvider struct {
	inner    llm.Provider
	settings Settings
}

func (p *settingsProvider) Name() string { return p.inner.Name() }

func (p *settingsProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	r := *req
	p.settings.Apply(&r)
	return p.inner.Completion(ctx, &r)
}

// BatchCompletion 为每个请求填充默认值后整批转发。
func (p *settingsProvider) BatchCompletion(ctx context.Context, reqs []*llm.ChatRequest) ([]*llm.ChatResponse, error) {
	filled := make([]*llm.ChatRequest, len(reqs))
	for i, req := range reqs {
		r := *req
		p.settings.Apply(&r)
		filled[i] = &r
	}
	return llm.CompleteBatch(ctx, p.inner, filled)
}

var (
	_ llm.ProviderFactory = (*Factory)(nil)
	_ llm.BatchProvider   = (*settingsProvider)(nil)
)
