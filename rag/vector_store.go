package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// VectorStore 文本级向量存储接口，由实现负责嵌入。
type VectorStore interface {
	// AddDocuments 按 ID upsert 文档，重复 ID 覆盖旧值
	AddDocuments(ctx context.Context, docs []Document) error

	// SimilaritySearch 返回与 query 最相似的至多 k 篇文档，按相似度降序
	SimilaritySearch(ctx context.Context, query string, k int) ([]Document, error)

	// Count 返回文档数量
	Count(ctx context.Context) (int, error)
}

// Retriever 以固定 k 检索文档
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Document, error)
}

// RetrieverFunc 函数适配器
type RetrieverFunc func(ctx context.Context, query string) ([]Document, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, query string) ([]Document, error) {
	return f(ctx, query)
}

// AsRetriever 把向量存储包装为固定 k 的检索器
func AsRetriever(store VectorStore, k int) Retriever {
	return RetrieverFunc(func(ctx context.Context, query string) ([]Document, error) {
		return store.SimilaritySearch(ctx, query, k)
	})
}

// ====== 内存向量存储（用于测试和小规模应用）======

// InMemoryVectorStore 内存向量存储（余弦相似度）
type InMemoryVectorStore struct {
	embedder Embedder
	order    []string
	docs     map[string]Document
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewInMemoryVectorStore 创建内存向量存储
func NewInMemoryVectorStore(embedder Embedder, logger *zap.Logger) *InMemoryVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryVectorStore{
		embedder: embedder,
		docs:     make(map[string]Document),
		logger:   logger.With(zap.String("component", "memory_store")),
	}
}

// AddDocuments 添加文档；缺少向量的文档先批量嵌入
func (s *InMemoryVectorStore) AddDocuments(ctx context.Context, docs []Document) error {
	docs, err := embedMissing(ctx, s.embedder, docs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = ChunkID(doc.Source(), doc.Content)
		}
		if _, ok := s.docs[doc.ID]; !ok {
			s.order = append(s.order, doc.ID)
		}
		s.docs[doc.ID] = doc
	}

	s.logger.Debug("documents added to vector store",
		zap.Int("count", len(docs)),
		zap.Int("total", len(s.docs)))

	return nil
}

// SimilaritySearch 搜索相似文档
func (s *InMemoryVectorStore) SimilaritySearch(ctx context.Context, query string, k int) ([]Document, error) {
	if k <= 0 {
		return []Document{}, nil
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("memory store: embedder is required")
	}
	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]scored, 0, len(s.order))
	for _, id := range s.order {
		doc := s.docs[id]
		results = append(results, scored{doc: doc, score: cosineSimilarity(queryEmbedding, doc.Embedding)})
	}
	sortByScore(results)

	if k > len(results) {
		k = len(results)
	}
	out := make([]Document, k)
	for i := range out {
		out[i] = results[i].doc
	}
	return out, nil
}

// Count 返回文档计数
func (s *InMemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// embedMissing 为没有向量的文档批量生成嵌入，返回副本
func embedMissing(ctx context.Context, embedder Embedder, docs []Document) ([]Document, error) {
	out := make([]Document, len(docs))
	copy(out, docs)

	var idx []int
	var texts []string
	for i, d := range out {
		if len(d.Embedding) == 0 {
			idx = append(idx, i)
			texts = append(texts, d.Content)
		}
	}
	if len(texts) == 0 {
		return out, nil
	}
	if embedder == nil {
		return nil, fmt.Errorf("document %q has no embedding and no embedder is configured", out[idx[0]].ID)
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(texts))
	}
	for j, i := range idx {
		out[i].Embedding = vectors[j]
	}
	return out, nil
}

// 功用函数

type scored struct {
	doc   Document
	score float64
}

// cosineSimilarity 余弦相似度，维度不一致或零向量时为 0
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortByScore 按分数降序排序，同分保持插入顺序
func sortByScore(results []scored) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
}
