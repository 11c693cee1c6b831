package urlcache

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/tutorflow/config"
	"github.com/BaSui01/tutorflow/rag"
)

// Cache 可关闭的 URL 缓存
type Cache interface {
	rag.URLCache
	io.Closer
}

var (
	_ Cache = (*CSVCache)(nil)
	_ Cache = (*RedisCache)(nil)
	_ Cache = (*SQLCache)(nil)
	_ Cache = (*MongoCache)(nil)
)

// New 按 cfg.Backend 创建缓存，默认 csv
func New(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (Cache, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "csv", "":
		return NewCSV(cfg.Path, logger)
	case "redis":
		return NewRedis(RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
	case "sql":
		return NewSQL(ctx, cfg.SQL, logger)
	case "mongo":
		return NewMongo(ctx, cfg.Mongo, logger)
	default:
		return nil, fmt.Errorf("unsupported url cache backend %q", cfg.Backend)
	}
}
