package providers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/BaSui01/tutorflow/llm"
	"github.com/BaSui01/tutorflow/types"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{529, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := MapHTTPError(tt.status, "boom", "openai")
			assert.Equal(t, types.ErrBackendTransport, err.Code)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, "openai", err.Provider)
			assert.Contains(t, err.Message, "boom")
		})
	}
}

// 任意 4xx/5xx 都归为传输错误，且只有 5xx、408、429 可重放
func TestMapHTTPError_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		status := rapid.IntRange(400, 599).Draw(rt, "status")
		provider := rapid.StringMatching(`[a-z]{1,12}`).Draw(rt, "provider")

		err := MapHTTPError(status, "msg", provider)
		if err.Code != types.ErrBackendTransport {
			rt.Fatalf("code = %s", err.Code)
		}
		want := status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
		if err.Retryable != want {
			rt.Fatalf("status %d retryable = %v, want %v", status, err.Retryable, want)
		}
		if !types.IsRetryable(err) && want {
			rt.Fatalf("IsRetryable disagrees for %d", status)
		}
	})
}

func TestReadErrorMessage(t *testing.T) {
	assert.Equal(t, "bad key (type: auth)",
		ReadErrorMessage(strings.NewReader(`{"error":{"message":"bad key","type":"auth"}}`)))
	assert.Equal(t, "bad key",
		ReadErrorMessage(strings.NewReader(`{"error":{"message":"bad key"}}`)))
	assert.Equal(t, "upstream down", ReadErrorMessage(strings.NewReader("upstream down")))
}

func TestChooseModel(t *testing.T) {
	assert.Equal(t, "req", ChooseModel(&llm.ChatRequest{Model: "req"}, "def", "fb"))
	assert.Equal(t, "def", ChooseModel(&llm.ChatRequest{}, "def", "fb"))
	assert.Equal(t, "fb", ChooseModel(nil, "", "fb"))
}

func TestConvertMessagesToOpenAI(t *testing.T) {
	out := ConvertMessagesToOpenAI([]llm.Message{
		types.NewSystemMessage("sys"),
		types.NewUserMessage("hi"),
	})
	assert.Equal(t, []OpenAICompatMessage{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hi"},
	}, out)
}

func TestToLLMChatResponse(t *testing.T) {
	resp := ToLLMChatResponse(OpenAICompatResponse{
		ID:      "x",
		Model:   "m",
		Created: 1700000000,
		Choices: []OpenAICompatChoice{{FinishReason: "stop", Message: OpenAICompatMessage{Role: "assistant", Content: "ok"}}},
		Usage:   &OpenAICompatUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3},
	}, "openai")
	assert.Equal(t, "ok", resp.Text())
	assert.Equal(t, 3, resp.Usage.TotalTokens)
	assert.Equal(t, int64(1700000000), resp.CreatedAt.Unix())
}
