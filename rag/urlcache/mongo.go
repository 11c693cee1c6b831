package urlcache

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/tutorflow/config"
)

// MongoCache 每个 URL 一个文档 {collection_name, url, created_at}，两字段联合唯一
type MongoCache struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

type mongoEntry struct {
	URL string `bson:"url"`
}

// NewMongo 连接 MongoDB 并确保唯一索引存在
func NewMongo(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*MongoCache, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo url cache: uri is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetTimeout(10 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	db, collName := cfg.Database, cfg.Collection
	if db == "" {
		db = "tutorflow"
	}
	if collName == "" {
		collName = "url_cache"
	}
	coll := client.Database(db).Collection(collName)

	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "collection_name", Value: 1}, {Key: "url", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("collection_url_unique"),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create url cache index: %w", err)
	}

	logger.Info("mongo url cache initialized", zap.String("database", db), zap.String("collection", collName))
	return &MongoCache{
		client: client,
		coll:   coll,
		logger: logger.With(zap.String("component", "url_cache"), zap.String("backend", "mongo")),
	}, nil
}

// Read 返回 collection 已缓存的 URL
func (c *MongoCache) Read(ctx context.Context, collection string) (map[string]struct{}, error) {
	cur, err := c.coll.Find(ctx,
		bson.D{{Key: "collection_name", Value: collection}},
		options.Find().SetProjection(bson.D{{Key: "url", Value: 1}, {Key: "_id", Value: 0}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	var entries []mongoEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("mongo decode: %w", err)
	}
	out := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		out[e.URL] = struct{}{}
	}
	return out, nil
}

// Append 以 upsert 写入，已存在的 URL 保持原样
func (c *MongoCache) Append(ctx context.Context, collection string, urls []string) error {
	models := upsertModels(collection, urls, time.Now().UTC())
	if len(models) == 0 {
		return nil
	}
	_, err := c.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("mongo bulk write: %w", err)
	}
	c.logger.Debug("urls cached", zap.String("collection", collection), zap.Int("count", len(models)))
	return nil
}

func upsertModels(collection string, urls []string, now time.Time) []mongo.WriteModel {
	seen := make(map[string]struct{}, len(urls))
	models := make([]mongo.WriteModel, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		filter := bson.D{{Key: "collection_name", Value: collection}, {Key: "url", Value: u}}
		update := bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: now}}}}
		models = append(models, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true))
	}
	return models
}

// Close 断开连接
func (c *MongoCache) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Disconnect(ctx)
}
