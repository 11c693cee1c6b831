package rag

import (
	"context"
	"fmt"
	"os"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// OpenChromemDB 打开（或创建）持久化目录下的 chromem 数据库。
// dir 为空时返回纯内存数据库。
func OpenChromemDB(dir string, compress bool) (*chromem.DB, error) {
	if dir == "" {
		return chromem.NewDB(), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create vectorstore directory %s: %w", dir, err)
	}
	db, err := chromem.NewPersistentDB(dir, compress)
	if err != nil {
		return nil, fmt.Errorf("open chromem db at %s: %w", dir, err)
	}
	return db, nil
}

// ChromemStore 基于 chromem-go 的嵌入式向量存储，一个实例对应一个集合。
type ChromemStore struct {
	collection *chromem.Collection
	embedder   Embedder
	logger     *zap.Logger
}

// NewChromemStore 获取或创建集合
func NewChromemStore(db *chromem.DB, collection string, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("chromem store: embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ChromemStore{
		embedder: embedder,
		logger: logger.With(
			zap.String("component", "chromem_store"),
			zap.String("collection", collection)),
	}
	c, err := db.GetOrCreateCollection(collection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", collection, err)
	}
	s.collection = c
	return s, nil
}

func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		v, err := s.embedder.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		return toFloat32(v), nil
	}
}

// AddDocuments 嵌入并写入文档，相同 ID 覆盖
func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	docs, err := embedMissing(ctx, s.embedder, docs)
	if err != nil {
		return err
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		id := doc.ID
		if id == "" {
			id = ChunkID(doc.Source(), doc.Content)
		}
		chromemDocs[i] = chromem.Document{
			ID:        id,
			Content:   doc.Content,
			Metadata:  metadataToStrings(doc.Metadata),
			Embedding: toFloat32(doc.Embedding),
		}
	}

	// 向量已就绪，并发度 1
	if err := s.collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	s.logger.Debug("added documents to chromem", zap.Int("count", len(docs)))
	return nil
}

// SimilaritySearch 检索相似文档；k 不超过集合大小
func (s *ChromemStore) SimilaritySearch(ctx context.Context, query string, k int) ([]Document, error) {
	if k <= 0 {
		return []Document{}, nil
	}
	n := s.collection.Count()
	if n == 0 {
		return []Document{}, nil
	}
	if k > n {
		k = n
	}

	results, err := s.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	out := make([]Document, len(results))
	for i, r := range results {
		out[i] = Document{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: metadataFromStrings(r.Metadata),
		}
	}
	return out, nil
}

// Count 返回集合文档数
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	return s.collection.Count(), nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func metadataToStrings(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

func metadataFromStrings(m map[string]string) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
