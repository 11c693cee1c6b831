package rag

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	lltok "github.com/BaSui01/tutorflow/llm/tokenizer"
)

// SplitBy 分块策略
type SplitBy string

const (
	SplitByToken     SplitBy = "token"     // 按 token 窗口切分
	SplitByCharacter SplitBy = "character" // 递归字符切分
)

// 估算每个 token 约 4 个字符
const charsPerToken = 4

// SplitConfig 分块配置
type SplitConfig struct {
	SplitBy      SplitBy `json:"split_by" yaml:"split_by" env:"SPLIT_BY"`
	ChunkSize    int     `json:"chunk_size" yaml:"chunk_size" env:"CHUNK_SIZE"`
	ChunkOverlap int     `json:"chunk_overlap" yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
}

// DefaultSplitConfig 默认分块配置
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		SplitBy:      SplitByToken,
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Normalize 补齐默认值；overlap >= chunk_size 时收缩为 chunk_size/5。
// 第二个返回值表示 overlap 是否被调整。
func (c SplitConfig) Normalize() (SplitConfig, bool) {
	if c.SplitBy == "" {
		c.SplitBy = SplitByToken
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultSplitConfig().ChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 5
		return c, true
	}
	return c, false
}

// Splitter 文档分块器
type Splitter struct {
	config    SplitConfig
	tokenizer lltok.Tokenizer
	logger    *zap.Logger
}

// NewSplitter 创建文档分块器。tokenizer 为 nil 时使用 cl100k_base。
func NewSplitter(config SplitConfig, tokenizer lltok.Tokenizer, logger *zap.Logger) *Splitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "splitter"))

	requested := config.ChunkOverlap
	config, clamped := config.Normalize()
	if clamped {
		logger.Warn("chunk_overlap must be smaller than chunk_size; reducing overlap",
			zap.Int("chunk_overlap", requested),
			zap.Int("chunk_size", config.ChunkSize),
			zap.Int("new_overlap", config.ChunkOverlap))
	}
	if tokenizer == nil {
		tokenizer = lltok.ForModel("cl100k_base")
	}
	return &Splitter{config: config, tokenizer: tokenizer, logger: logger}
}

// Config 返回生效的分块配置
func (s *Splitter) Config() SplitConfig {
	return s.config
}

// SplitDocuments 切分文档。空文档被跳过；每个分块继承原文档元数据，
// 附加 chunk_index，并获得由来源与内容派生的稳定 ID。
func (s *Splitter) SplitDocuments(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		source := doc.Source()
		if source == "" {
			source = doc.ID
		}
		for i, text := range s.SplitText(doc.Content) {
			meta := cloneMetadata(doc.Metadata)
			meta[MetaChunkIndex] = i
			out = append(out, Document{
				ID:       ChunkID(source, text),
				Content:  text,
				Metadata: meta,
			})
		}
	}
	s.logger.Debug("documents split",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(out)),
		zap.String("split_by", string(s.config.SplitBy)))
	return out
}

// SplitText 按配置策略切分单段文本，丢弃空白分块。
func (s *Splitter) SplitText(text string) []string {
	var parts []string
	switch s.config.SplitBy {
	case SplitByCharacter:
		parts = s.splitCharacters(text)
	default:
		parts = s.splitTokens(text)
	}
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Splitter) splitCharacters(text string) []string {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.config.ChunkSize),
		textsplitter.WithChunkOverlap(s.config.ChunkOverlap),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		s.logger.Warn("recursive character split failed, falling back to rune windows", zap.Error(err))
		return runeWindows(text, s.config.ChunkSize, s.config.ChunkOverlap)
	}
	return parts
}

// splitTokens 以 token 为单位滑动窗口，步长 chunk_size - overlap。
// 分词器不可用或不支持解码时按字符估算。
func (s *Splitter) splitTokens(text string) []string {
	tokens, err := s.tokenizer.Encode(text)
	if err == nil {
		var parts []string
		parts, err = s.decodeWindows(tokens)
		if err == nil {
			return parts
		}
	}
	if !errors.Is(err, lltok.ErrDecodeUnsupported) {
		s.logger.Warn("token split failed, falling back to estimate",
			zap.String("tokenizer", s.tokenizer.Name()),
			zap.Error(err))
	}
	return runeWindows(text, s.config.ChunkSize*charsPerToken, s.config.ChunkOverlap*charsPerToken)
}

// decodeWindows 窗口边界若落在多字节字符中间，则收缩到完整字符；
// 下一个窗口从收缩后的结尾之前开始，不丢字节。
func (s *Splitter) decodeWindows(tokens []int) ([]string, error) {
	size, step := s.config.ChunkSize, s.config.ChunkSize-s.config.ChunkOverlap
	var parts []string
	for start := 0; start < len(tokens); {
		text, end, err := s.decodeAligned(tokens, start, min(start+size, len(tokens)))
		if err != nil {
			return nil, err
		}
		parts = append(parts, text)
		if end == len(tokens) {
			break
		}
		start = min(start+step, end)
	}
	return parts, nil
}

// decodeAligned 解码 tokens[start:end]，首尾各最多调整 utf8.UTFMax-1 个 token；
// 仍不完整的字节被丢弃。返回实际使用的 end。
func (s *Splitter) decodeAligned(tokens []int, start, end int) (string, int, error) {
	for i := 0; ; i++ {
		text, err := s.tokenizer.Decode(tokens[start:end])
		if err != nil {
			return "", end, err
		}
		head, tail := brokenHead(text), brokenTail(text)
		if (!head && !tail) || i == utf8.UTFMax-1 || end-start <= 1 {
			return strings.ToValidUTF8(text, ""), end, nil
		}
		if head {
			start++
		}
		if tail && end-1 > start {
			end--
		}
	}
}

func brokenHead(text string) bool {
	r, n := utf8.DecodeRuneInString(text)
	return r == utf8.RuneError && n == 1
}

func brokenTail(text string) bool {
	r, n := utf8.DecodeLastRuneInString(text)
	return r == utf8.RuneError && n == 1
}

func runeWindows(text string, size, overlap int) []string {
	runes := []rune(text)
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var parts []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		parts = append(parts, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return parts
}
