package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// 元数据键
const (
	MetaSource     = "source"
	MetaTitle      = "title"
	MetaChunkIndex = "chunk_index"
)

// Document 文档或文档分块
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float64      `json:"embedding,omitempty"`
}

// Source 返回文档来源 URL（没有则为空）
func (d Document) Source() string {
	return metaString(d.Metadata, MetaSource)
}

// Title 返回文档标题（没有则为空）
func (d Document) Title() string {
	return metaString(d.Metadata, MetaTitle)
}

func metaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

var chunkNamespace = uuid.MustParse("5b0c7f0e-9a51-4c1e-9d7e-1f8a2e6b3c40")

// ChunkID 由来源与内容派生稳定 ID，重复摄取同一内容会得到同一 ID。
func ChunkID(source, content string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(source+"\x00"+content)).String()
}

// FormatDocs 把检索结果格式化为提示词上下文：
// 每篇 "Source: <metadata>\nContent: <content>"，以空行分隔，跳过空文档。
func FormatDocs(docs []Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("Source: %s\nContent: %s", formatMetadata(d.Metadata), d.Content))
	}
	return strings.Join(parts, "\n\n")
}

// formatMetadata 以 JSON 输出（键有序），保证格式稳定
func formatMetadata(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprint(m)
	}
	return string(b)
}

// Embedder 把文本转换为向量，llm/embedding 的提供者均满足该接口。
type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)
}

// SearchHit 搜索引擎返回的一条结果
type SearchHit struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Searcher 网络搜索后端
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchHit, error)
}

// Loader 抓取 URL 并转换为文档，单个 URL 失败时跳过。
type Loader interface {
	Load(ctx context.Context, urls []string) ([]Document, error)
}

// URLCache 记录每个集合已经摄取过的 URL。
type URLCache interface {
	Read(ctx context.Context, collection string) (map[string]struct{}, error)
	Append(ctx context.Context, collection string, urls []string) error
}
