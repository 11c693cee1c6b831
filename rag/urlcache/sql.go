package urlcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/tutorflow/config"
	"github.com/BaSui01/tutorflow/internal/database"
	"github.com/BaSui01/tutorflow/internal/migration"
)

// urlRecord url_cache 表的一行，结构由 internal/migration 维护。
// 唯一约束建在 (collection_name, url_hash) 上，URL 长度不受索引限制。
type urlRecord struct {
	ID             uint   `gorm:"primaryKey"`
	CollectionName string `gorm:"column:collection_name"`
	URL            string `gorm:"column:url"`
	URLHash        string `gorm:"column:url_hash"`
	CreatedAt      time.Time
}

// hashURL url_hash 列的取值：URL 的 SHA-256 十六进制串
func hashURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:])
}

func (urlRecord) TableName() string { return "url_cache" }

const sqlTxRetries = 3

// SQLCache 把 URL 记录在关系库中，同一集合内 URL 唯一
type SQLCache struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewSQL 按配置打开数据库；AutoMigrate 为真时先执行内嵌迁移
func NewSQL(ctx context.Context, cfg config.SQLConfig, logger *zap.Logger) (*SQLCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AutoMigrate {
		if err := migration.UpFromConfig(ctx, cfg); err != nil {
			return nil, fmt.Errorf("migrate url cache: %w", err)
		}
	}
	pool, err := database.Open(cfg.Driver, cfg.DSN, database.DefaultPoolConfig(), logger)
	if err != nil {
		return nil, err
	}
	return NewSQLWithPool(pool, logger), nil
}

// NewSQLWithPool 使用已有连接池
func NewSQLWithPool(pool *database.PoolManager, logger *zap.Logger) *SQLCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLCache{
		pool:   pool,
		logger: logger.With(zap.String("component", "url_cache"), zap.String("backend", "sql")),
	}
}

// Read 返回 collection 已缓存的 URL
func (c *SQLCache) Read(ctx context.Context, collection string) (map[string]struct{}, error) {
	var urls []string
	err := c.pool.DB().WithContext(ctx).
		Model(&urlRecord{}).
		Where("collection_name = ?", collection).
		Pluck("url", &urls).Error
	if err != nil {
		return nil, fmt.Errorf("read url cache: %w", err)
	}
	out := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		out[u] = struct{}{}
	}
	return out, nil
}

// Append 在一个事务中插入 URL，已存在的行忽略
func (c *SQLCache) Append(ctx context.Context, collection string, urls []string) error {
	seen := make(map[string]struct{}, len(urls))
	records := make([]urlRecord, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		records = append(records, urlRecord{CollectionName: collection, URL: u, URLHash: hashURL(u)})
	}
	if len(records) == 0 {
		return nil
	}

	err := c.pool.WithTransactionRetry(ctx, sqlTxRetries, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&records).Error
	})
	if err != nil {
		return fmt.Errorf("append url cache: %w", err)
	}
	c.logger.Debug("urls cached", zap.String("collection", collection), zap.Int("count", len(records)))
	return nil
}

// Close 关闭连接池
func (c *SQLCache) Close() error {
	return c.pool.Close()
}
