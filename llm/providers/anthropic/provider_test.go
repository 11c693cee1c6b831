package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/tutorflow/llm"
	"github.com/BaSui01/tutorflow/llm/providers"
	"github.com/BaSui01/tutorflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestClaudeProvider_Completion(t *testing.T) {
	var got claudeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "model": "claude-3-5-haiku-latest", "stop_reason": "end_turn",
			"content": [{"type": "text", "text": "hello"}],
			"usage": {"input_tokens": 5, "output_tokens": 1}
		}`))
	}))
	defer srv.Close()

	p := NewClaudeProvider(providers.ClaudeConfig{
		BaseProviderConfig: providers.BaseProviderConfig{APIKey: "sk-ant", BaseURL: srv.URL, Model: "claude-3-5-haiku-latest"},
	}, zaptest.NewLogger(t))
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{types.NewSystemMessage("sys"), types.NewUserMessage("hi")},
	})
	require.NoError(t, err)

	assert.Equal(t, "sys", got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	assert.Equal(t, "claude-3-5-haiku-latest", got.Model)

	assert.Equal(t, "hello", resp.Text())
	assert.Equal(t, 6, resp.Usage.TotalTokens)
	assert.Equal(t, "anthropic", resp.Provider)
}

func TestClaudeProvider_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	p := NewClaudeProvider(providers.ClaudeConfig{BaseProviderConfig: providers.BaseProviderConfig{BaseURL: srv.URL}}, nil)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{Messages: []llm.Message{types.NewUserMessage("hi")}})
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
	assert.Contains(t, err.Error(), "slow down")
}
