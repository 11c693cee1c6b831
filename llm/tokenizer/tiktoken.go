package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer 为 OpenAI 家族模型适配 tiktoken.
type TiktokenTokenizer struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// encodingNames 允许直接以编码名作为 model 使用
var encodingNames = map[string]string{
	"cl100k_base": "cl100k_base",
	"o200k_base":  "o200k_base",
}

// modelEncodings 将模型名前缀映射到其 tiktoken 编码。
// 按前缀长度从长到短匹配。
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o-mini", "o200k_base"},
	{"gpt-4o", "o200k_base"},
	{"gpt-4.1", "o200k_base"},
	{"o1", "o200k_base"},
	{"o3", "o200k_base"},
	{"gpt-4-turbo", "cl100k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5-turbo", "cl100k_base"},
	{"text-embedding-3", "cl100k_base"},
	{"text-embedding-ada-002", "cl100k_base"},
}

func lookupEncoding(model string) (string, bool) {
	for _, m := range modelEncodings {
		if strings.HasPrefix(model, m.prefix) {
			return m.encoding, true
		}
	}
	return "", false
}

// NewTiktokenTokenizer 为给定模型创建 tiktoken 分词器，未知模型使用 cl100k_base.
func NewTiktokenTokenizer(model string) *TiktokenTokenizer {
	enc, ok := lookupEncoding(model)
	if !ok {
		enc = "cl100k_base"
	}
	return newTiktoken(model, enc)
}

func newTiktoken(model, encoding string) *TiktokenTokenizer {
	return &TiktokenTokenizer{model: model, encoding: encoding}
}

// init 懒加载编码（首次使用时可能下载 BPE 数据）.
func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) Encode(text string) ([]int, error) {
	if err := t.init(); err != nil {
		return nil, err
	}
	return t.enc.Encode(text, nil, nil), nil
}

func (t *TiktokenTokenizer) Decode(tokens []int) (string, error) {
	if err := t.init(); err != nil {
		return "", err
	}
	return t.enc.Decode(tokens), nil
}

// Encoding 返回编码名称.
func (t *TiktokenTokenizer) Encoding() string {
	return t.encoding
}

func (t *TiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
