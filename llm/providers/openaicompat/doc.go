// Package openaicompat implements llm.Provider for every backend that speaks
// the OpenAI chat-completions wire format (OpenAI, Groq, Mistral, DeepSeek,
// Together, Ollama and self-hosted gateways).
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "ollama",
//	    BaseURL:      "http://localhost:11434",
//	    DefaultModel: "llama3.2",
//	}, logger)
package openaicompat
