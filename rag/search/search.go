package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/tutorflow/config"
	"github.com/BaSui01/tutorflow/internal/metrics"
	"github.com/BaSui01/tutorflow/rag"
	"github.com/BaSui01/tutorflow/types"
)

// Result 一条搜索结果
type Result = rag.SearchHit

// Provider 具体搜索引擎
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Options 构造提供者的公共参数
type Options struct {
	APIKey      string
	BaseURL     string
	SearchDepth string
	Timeout     time.Duration
	UserAgent   string
}

// Client 为提供者加上限流、单次超时、结果截断与指标。
// Client 满足 rag.Searcher。
type Client struct {
	provider   Provider
	limiter    *rate.Limiter
	timeout    time.Duration
	maxResults int
	logger     *zap.Logger
	metrics    *metrics.Collector
}

var _ rag.Searcher = (*Client)(nil)

// NewClient 包装提供者。rps <= 0 表示不限流。
func NewClient(p Provider, rps float64, timeout time.Duration, maxResults int, logger *zap.Logger, collector *metrics.Collector) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Client{
		provider:   p,
		limiter:    rate.NewLimiter(limit, 1),
		timeout:    timeout,
		maxResults: maxResults,
		logger:     logger.With(zap.String("component", "search"), zap.String("provider", p.Name())),
		metrics:    collector,
	}
}

// New 按配置创建搜索客户端
func New(cfg config.SearchConfig, logger *zap.Logger, collector *metrics.Collector) (*Client, error) {
	p, err := NewProvider(cfg.Provider, Options{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		SearchDepth: cfg.SearchDepth,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return NewClient(p, cfg.RatePerSecond, cfg.Timeout, cfg.MaxResults, logger, collector), nil
}

// NewProvider 按名称创建提供者
func NewProvider(name string, opts Options) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "serper", "serper.dev", "google-serper":
		return NewSerper(opts)
	case "bing", "microsoft-bing":
		return NewBing(opts)
	case "duckduckgo", "duck-duck-go", "":
		return NewDuckDuckGo(opts), nil
	case "brave", "brave-search":
		return NewBrave(opts)
	case "searxng", "searx":
		return NewSearXNG(opts)
	case "tavily":
		return NewTavily(opts)
	case "you", "you.com":
		return NewYou(opts)
	case "arxiv":
		return NewArxiv(opts), nil
	default:
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("unsupported search provider %q, choose from serper, bing, duckduckgo, brave, searxng, tavily, you, arxiv", name))
	}
}

// Name 返回提供者名称
func (c *Client) Name() string {
	return c.provider.Name()
}

// Search 执行一次搜索。maxResults <= 0 时使用配置值。
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = c.maxResults
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.RecordSearch(c.provider.Name(), "rate_limited")
		return nil, fmt.Errorf("search rate limiter: %w", err)
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	results, err := c.provider.Search(callCtx, query, maxResults)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = types.Timeout(c.provider.Name(), err)
		}
		c.metrics.RecordSearch(c.provider.Name(), metrics.Status(err))
		c.logger.Warn("search failed", zap.String("query", query), zap.Error(err))
		return nil, err
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.Link) == "" {
			continue
		}
		out = append(out, r)
		if len(out) == maxResults {
			break
		}
	}
	c.metrics.RecordSearch(c.provider.Name(), metrics.Status(nil))
	c.logger.Debug("search completed",
		zap.String("query", query),
		zap.Int("results", len(out)),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}
