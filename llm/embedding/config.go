package embedding

import (
	"fmt"
	"strings"
	"time"
)

// OpenAIConfig configures the OpenAI embedding provider.
type OpenAIConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`           // text-embedding-3-small
	Dimensions int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty"` // 0 表示模型默认维度
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultOpenAIConfig returns default OpenAI embedding config.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL: "https://api.openai.com",
		Model:   "text-embedding-3-small",
		Timeout: 30 * time.Second,
	}
}

// Config 选择嵌入提供者
type Config struct {
	// Provider 取值 openai | ollama | hash
	Provider   string        `yaml:"provider" env:"PROVIDER"`
	Model      string        `yaml:"model" env:"MODEL"`
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Dimensions int           `yaml:"dimensions" env:"DIMENSIONS"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// New 按配置创建嵌入提供者
func New(cfg Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		}), nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL: baseURL,
			Model:   model,
			Timeout: cfg.Timeout,
		}), nil
	case "hash":
		return NewHashProvider(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
