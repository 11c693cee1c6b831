package urlcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache 每个集合一个 Set：<prefix>:<collection>
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// RedisOptions Redis 连接参数
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedis 连接 Redis 并检查连通性
func NewRedis(opts RedisOptions, logger *zap.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "tutorflow:urls"
	}
	logger.Info("redis url cache initialized", zap.String("addr", opts.Addr))
	return &RedisCache{
		client: client,
		prefix: prefix,
		logger: logger.With(zap.String("component", "url_cache"), zap.String("backend", "redis")),
	}, nil
}

func (c *RedisCache) key(collection string) string {
	return c.prefix + ":" + collection
}

// Read 返回 collection 已缓存的 URL
func (c *RedisCache) Read(ctx context.Context, collection string) (map[string]struct{}, error) {
	members, err := c.client.SMembers(ctx, c.key(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	out := make(map[string]struct{}, len(members))
	for _, m := range members {
		out[m] = struct{}{}
	}
	return out, nil
}

// Append 追加 URL，空 URL 跳过
func (c *RedisCache) Append(ctx context.Context, collection string, urls []string) error {
	members := make([]any, 0, len(urls))
	for _, u := range urls {
		if u != "" {
			members = append(members, u)
		}
	}
	if len(members) == 0 {
		return nil
	}
	if err := c.client.SAdd(ctx, c.key(collection), members...).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	c.logger.Debug("urls cached", zap.String("collection", collection), zap.Int("count", len(members)))
	return nil
}

// Close 关闭连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}
