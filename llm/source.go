package llm

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Settings describes the model an agent wants a factory to build.
type Settings struct {
	Model       string            `yaml:"model" json:"model"`
	Temperature float32           `yaml:"temperature" json:"temperature"`
	MaxTokens   int               `yaml:"max_tokens" json:"max_tokens,omitempty"`
	TopP        float32           `yaml:"top_p" json:"top_p,omitempty"`
	APIKey      string            `yaml:"api_key" json:"-"`
	BaseURL     string            `yaml:"base_url" json:"base_url,omitempty"`
	Timeout     time.Duration     `yaml:"timeout" json:"timeout,omitempty"`
	Tags        []string          `yaml:"tags" json:"tags,omitempty"`
	Metadata    map[string]string `yaml:"metadata" json:"metadata,omitempty"`
	// Extra 透传给具体 Provider 的额外参数
	Extra map[string]any `yaml:"extra" json:"extra,omitempty"`
}

// DefaultSettings returns settings for DefaultModel at temperature 0.7.
func DefaultSettings() Settings {
	return Settings{
		Model:       DefaultModel,
		Temperature: 0.7,
	}
}

// CacheKey identifies settings that produce an identical provider.
// Request-level knobs (temperature, tokens, tags) are not part of the key.
func (s Settings) CacheKey() string {
	provider, model := SplitModel(s.Model)
	parts := []string{provider, model, s.BaseURL, s.Timeout.String(), fingerprint(s.APIKey)}
	if len(s.Extra) > 0 {
		keys := make([]string, 0, len(s.Extra))
		for k := range s.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, s.Extra[k]))
		}
	}
	return strings.Join(parts, "|")
}

// Apply copies the request-level settings onto req where req leaves them unset.
func (s Settings) Apply(req *ChatRequest) {
	if req.Model == "" {
		_, req.Model = SplitModel(s.Model)
	}
	if req.Temperature == 0 {
		req.Temperature = s.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = s.MaxTokens
	}
	if req.TopP == 0 {
		req.TopP = s.TopP
	}
	if len(req.Tags) == 0 {
		req.Tags = s.Tags
	}
	if len(req.Metadata) == 0 && len(s.Metadata) > 0 {
		req.Metadata = s.Metadata
	}
}

func fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// ProviderFactory builds providers from settings.
type ProviderFactory interface {
	Create(settings Settings) (Provider, error)
}

// SourceKind tags the variant held by a ModelSource.
type SourceKind int

const (
	SourceDirect SourceKind = iota + 1
	SourceFactory
)

func (k SourceKind) String() string {
	switch k {
	case SourceDirect:
		return "direct"
	case SourceFactory:
		return "factory"
	default:
		return "unknown"
	}
}

// ModelSource is either a ready provider or a factory plus the settings to
// build one with. The zero value is invalid.
type ModelSource struct {
	kind     SourceKind
	provider Provider
	factory  ProviderFactory
	settings Settings
}

// Direct wraps an existing provider.
func Direct(p Provider) ModelSource {
	return ModelSource{kind: SourceDirect, provider: p}
}

// FromFactory defers provider construction to f.
func FromFactory(f ProviderFactory, settings Settings) ModelSource {
	return ModelSource{kind: SourceFactory, factory: f, settings: settings}
}

// Kind returns the variant tag.
func (s ModelSource) Kind() SourceKind { return s.kind }

// Settings returns the settings of a factory source. Direct sources return the zero value.
func (s ModelSource) Settings() Settings { return s.settings }

// Resolve returns the provider for this source.
func (s ModelSource) Resolve() (Provider, error) {
	switch s.kind {
	case SourceDirect:
		if s.provider == nil {
			return nil, fmt.Errorf("direct model source has nil provider")
		}
		return s.provider, nil
	case SourceFactory:
		if s.factory == nil {
			return nil, fmt.Errorf("factory model source has nil factory")
		}
		return s.factory.Create(s.settings)
	default:
		return nil, fmt.Errorf("model source is not initialized")
	}
}
