package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForModel_SelectsEncoding(t *testing.T) {
	tests := []struct {
		model    string
		encoding string
	}{
		{"gpt-4o-mini", "o200k_base"},
		{"openai:gpt-4o", "o200k_base"},
		{"gpt-4.1", "o200k_base"},
		{"gpt-3.5-turbo-0125", "cl100k_base"},
		{"text-embedding-3-small", "cl100k_base"},
		{"cl100k_base", "cl100k_base"},
		{"", "o200k_base"},
	}

	for _, tt := range tests {
		tok, ok := ForModel(tt.model).(*TiktokenTokenizer)
		require.True(t, ok, "model %q should use tiktoken", tt.model)
		assert.Equal(t, tt.encoding, tok.Encoding(), "model %q", tt.model)
	}
}

func TestForModel_UnknownUsesEstimator(t *testing.T) {
	tok := ForModel("ollama:llama3")
	assert.Equal(t, "estimator", tok.Name())
}

func TestEstimator(t *testing.T) {
	e := NewEstimatorTokenizer("llama3")

	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = e.CountTokens("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.CountTokens("你好世界")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ids, err := e.Encode("abcdefghijkl")
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	_, err = e.Decode(ids)
	assert.ErrorIs(t, err, ErrDecodeUnsupported)
}
