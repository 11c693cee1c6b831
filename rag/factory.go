// Config → RAG 桥接层。
//
// 提供工厂函数，将 config.Config 各分区转换为 rag 包的运行时实例，
// 消除 config 包和 rag 包之间的手动配置映射。
package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/BaSui01/tutorflow/config"
	"github.com/BaSui01/tutorflow/llm"
	"github.com/BaSui01/tutorflow/llm/embedding"
)

// VectorStoreType 标识要创建的向量存储后端。
type VectorStoreType string

const (
	VectorStoreChromem VectorStoreType = "chromem"
	VectorStoreMemory  VectorStoreType = "memory"
	VectorStoreQdrant  VectorStoreType = "qdrant"
)

// NewEmbedderFromConfig 根据嵌入配置创建 Embedder。
// openai 未配置 API Key 时读取 OPENAI_API_KEY。
func NewEmbedderFromConfig(c config.EmbeddingConfig) (Embedder, error) {
	provider := strings.ToLower(strings.TrimSpace(c.Provider))
	apiKey := c.APIKey
	if provider == "" || provider == "openai" {
		apiKey = llm.ResolveAPIKey("openai", apiKey)
	}
	p, err := embedding.New(embedding.Config{
		Provider:   provider,
		Model:      c.Model,
		APIKey:     apiKey,
		BaseURL:    c.BaseURL,
		Dimensions: c.Dimensions,
		Timeout:    c.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}
	return p, nil
}

// SplitConfigFromConfig 映射分块配置
func SplitConfigFromConfig(c config.RAGConfig) SplitConfig {
	return SplitConfig{
		SplitBy:      SplitBy(c.SplitBy),
		ChunkSize:    c.ChunkSize,
		ChunkOverlap: c.ChunkOverlap,
	}
}

// VectorStoreFactory 按集合打开向量存储并缓存实例。
// 实际集合名为 <collection_prefix>_<collection>。
type VectorStoreFactory struct {
	cfg      config.VectorStoreConfig
	embedder Embedder
	logger   *zap.Logger

	mu     sync.Mutex
	db     *chromem.DB
	stores map[string]VectorStore
}

// NewVectorStoreFactory 创建向量存储工厂
func NewVectorStoreFactory(cfg config.VectorStoreConfig, embedder Embedder, logger *zap.Logger) *VectorStoreFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorStoreFactory{
		cfg:      cfg,
		embedder: embedder,
		logger:   logger,
		stores:   make(map[string]VectorStore),
	}
}

// CollectionName 返回带前缀的集合名
func (f *VectorStoreFactory) CollectionName(collection string) string {
	prefix := strings.TrimSpace(f.cfg.CollectionPrefix)
	if prefix == "" {
		return collection
	}
	return prefix + "_" + collection
}

// Open 返回集合对应的向量存储，同一集合复用同一实例
func (f *VectorStoreFactory) Open(ctx context.Context, collection string) (VectorStore, error) {
	if strings.TrimSpace(collection) == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	name := f.CollectionName(collection)

	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.stores[name]; ok {
		return s, nil
	}

	var (
		store VectorStore
		err   error
	)
	switch VectorStoreType(f.cfg.Type) {
	case VectorStoreChromem, "":
		if f.db == nil {
			f.db, err = OpenChromemDB(f.cfg.PersistDirectory, f.cfg.Compress)
			if err != nil {
				return nil, err
			}
		}
		store, err = NewChromemStore(f.db, name, f.embedder, f.logger)
	case VectorStoreMemory:
		store = NewInMemoryVectorStore(f.embedder, f.logger)
	case VectorStoreQdrant:
		q := f.cfg.Qdrant
		store = NewQdrantStore(QdrantConfig{
			Host:       q.Host,
			Port:       q.Port,
			BaseURL:    q.BaseURL,
			APIKey:     q.APIKey,
			Collection: name,
			Timeout:    q.Timeout,
		}, f.embedder, f.logger)
	default:
		return nil, fmt.Errorf("unsupported vector store type: %s", f.cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	f.stores[name] = store
	f.logger.Debug("vector store opened",
		zap.String("type", f.cfg.Type),
		zap.String("collection", name))
	return store, nil
}
