package urlcache

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

var csvHeader = []string{"collection_name", "url"}

// CSVCache 把 (collection_name, url) 记录在单个 CSV 文件中。
// 进程内用互斥锁、进程间用文件锁串行化读写。
type CSVCache struct {
	path   string
	lock   *flock.Flock
	mu     sync.Mutex
	logger *zap.Logger
}

// NewCSV 创建 CSV 缓存，文件不存在时写入表头
func NewCSV(path string, logger *zap.Logger) (*CSVCache, error) {
	if path == "" {
		return nil, fmt.Errorf("csv url cache: path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	c := &CSVCache{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger.With(zap.String("component", "url_cache"), zap.String("backend", "csv")),
	}
	if err := c.withLock(context.Background(), c.ensureHeader); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *CSVCache) withLock(ctx context.Context, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok, err := c.lock.TryLockContext(ctx, 20*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock url cache: %w", err)
	}
	if !ok {
		return fmt.Errorf("lock url cache: not acquired")
	}
	defer func() {
		if err := c.lock.Unlock(); err != nil {
			c.logger.Warn("unlock url cache failed", zap.Error(err))
		}
	}()
	return fn()
}

func (c *CSVCache) ensureHeader() error {
	info, err := os.Stat(c.path)
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat url cache: %w", err)
	}
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create url cache: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Read 返回 collection 已缓存的 URL
func (c *CSVCache) Read(ctx context.Context, collection string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	err := c.withLock(ctx, func() error {
		f, err := os.Open(c.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("open url cache: %w", err)
		}
		defer f.Close()

		r := csv.NewReader(f)
		r.FieldsPerRecord = -1
		first := true
		for {
			rec, err := r.Read()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read url cache: %w", err)
			}
			if first {
				first = false
				if len(rec) == 2 && rec[0] == csvHeader[0] && rec[1] == csvHeader[1] {
					continue
				}
			}
			if len(rec) < 2 || rec[0] != collection || rec[1] == "" {
				continue
			}
			out[rec[1]] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Append 追加 URL，空 URL 跳过
func (c *CSVCache) Append(ctx context.Context, collection string, urls []string) error {
	rows := make([][]string, 0, len(urls))
	for _, u := range urls {
		if u != "" {
			rows = append(rows, []string{collection, u})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return c.withLock(ctx, func() error {
		if err := c.ensureHeader(); err != nil {
			return err
		}
		f, err := os.OpenFile(c.path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open url cache: %w", err)
		}
		defer f.Close()
		w := csv.NewWriter(f)
		if err := w.WriteAll(rows); err != nil {
			return fmt.Errorf("append url cache: %w", err)
		}
		c.logger.Debug("urls cached", zap.String("collection", collection), zap.Int("count", len(rows)))
		return nil
	})
}

// Close 释放锁文件句柄
func (c *CSVCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lock.Close()
}
