package llm

import (
	"os"
	"strings"
)

// DefaultModel is used when neither the caller nor the configuration names a model.
const DefaultModel = "openai:gpt-4o-mini"

// legacyAliases maps historical shorthand names to provider-qualified names.
var legacyAliases = map[string]string{
	"gpt4o":              "openai:gpt-4o",
	"gpt-4o":             "openai:gpt-4o",
	"gpt4":               "openai:gpt-4.1",
	"gpt-4":              "openai:gpt-4.1",
	"gpt4o-mini":         "openai:gpt-4o-mini",
	"gpt-4o-mini":        "openai:gpt-4o-mini",
	"gpt4o-mini-preview": "openai:gpt-4o-mini",
	"llama":              "ollama:llama3.2",
	"llama3":             "ollama:llama3",
	"llama3.1":           "ollama:llama3.1",
	"llama3.2":           "ollama:llama3.2",
	"prometheus":         "prometheus-eval/prometheus-7b-v2.0",
}

// Normalize resolves legacy aliases and trims whitespace. It is a pure
// function: unknown names are returned unchanged, and an empty name maps to
// DefaultModel.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultModel
	}
	if canonical, ok := legacyAliases[strings.ToLower(name)]; ok {
		return canonical
	}
	return name
}

// SplitModel splits a "provider:model" identifier. Bare names default to
// the openai provider. The name is normalized first.
func SplitModel(name string) (provider, model string) {
	name = Normalize(name)
	if i := strings.Index(name, ":"); i > 0 {
		return strings.ToLower(name[:i]), name[i+1:]
	}
	return "openai", name
}

// providerKeyEnv maps a provider to the environment variable holding its key.
// An empty value means the provider needs no key.
var providerKeyEnv = map[string]string{
	"openai":       "OPENAI_API_KEY",
	"azure":        "AZURE_OPENAI_API_KEY",
	"anthropic":    "ANTHROPIC_API_KEY",
	"google":       "GOOGLE_API_KEY",
	"gemini":       "GOOGLE_API_KEY",
	"google_genai": "GOOGLE_API_KEY",
	"groq":         "GROQ_API_KEY",
	"mistral":      "MISTRAL_API_KEY",
	"cohere":       "COHERE_API_KEY",
	"deepseek":     "DEEPSEEK_API_KEY",
	"together":     "TOGETHER_API_KEY",
	"huggingface":  "HUGGINGFACEHUB_API_TOKEN",
	"hf":           "HUGGINGFACEHUB_API_TOKEN",
	"ollama":       "",
}

// APIKeyEnv returns the environment variable that carries the key for provider.
func APIKeyEnv(provider string) (string, bool) {
	env, ok := providerKeyEnv[strings.ToLower(provider)]
	return env, ok
}

// ResolveAPIKey returns explicit when set, otherwise the provider's key from the environment.
func ResolveAPIKey(provider, explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	env, ok := APIKeyEnv(provider)
	if !ok || env == "" {
		return ""
	}
	return os.Getenv(env)
}

// defaultBaseURLs lists OpenAI-compatible endpoints for known providers.
var defaultBaseURLs = map[string]string{
	"openai":   "https://api.openai.com",
	"groq":     "https://api.groq.com/openai",
	"mistral":  "https://api.mistral.ai",
	"deepseek": "https://api.deepseek.com",
	"together": "https://api.together.xyz",
	"ollama":   "http://localhost:11434",
}

// DefaultBaseURL returns the known base URL for provider, or "" when unknown.
func DefaultBaseURL(provider string) string {
	return defaultBaseURLs[strings.ToLower(provider)]
}
