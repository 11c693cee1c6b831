package tokenizer

import (
	"errors"
	"strings"
)

// ErrDecodeUnsupported 表示分词器无法把 token 还原为文本。
var ErrDecodeUnsupported = errors.New("tokenizer does not support decode")

// Tokenizer 是统一的 token 计数与编解码接口。
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Encode 将文本转换为 token ID 列表.
	Encode(text string) ([]int, error)

	// Decode 将 token ID 转换回文本，不支持时返回 ErrDecodeUnsupported.
	Decode(tokens []int) (string, error)

	// Name 返回分词器的名称.
	Name() string
}

// ForModel 为模型返回分词器：OpenAI 家族模型与 "cl100k_base"、"o200k_base"
// 编码名使用 tiktoken，其余模型使用估算器。
func ForModel(model string) Tokenizer {
	if _, model = splitProvider(model); model == "" {
		model = "gpt-4o-mini"
	}
	if enc, ok := encodingNames[model]; ok {
		return newTiktoken(model, enc)
	}
	if enc, ok := lookupEncoding(model); ok {
		return newTiktoken(model, enc)
	}
	return NewEstimatorTokenizer(model)
}

func splitProvider(model string) (string, string) {
	if i := strings.Index(model, ":"); i > 0 {
		return model[:i], model[i+1:]
	}
	return "", model
}
