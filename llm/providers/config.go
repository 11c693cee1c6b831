package providers

import "time"

// BaseProviderConfig 原生协议 Provider 共享的基础配置字段。
type BaseProviderConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ClaudeConfig Anthropic Messages API 配置
type ClaudeConfig struct {
	BaseProviderConfig `yaml:",inline"`
	// APIVersion anthropic-version 请求头，默认 2023-06-01
	APIVersion string `json:"api_version,omitempty" yaml:"api_version,omitempty"`
}

// GeminiConfig Google Gemini generateContent API 配置
type GeminiConfig struct {
	BaseProviderConfig `yaml:",inline"`
}
