package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/tutorflow/internal/metrics"
)

const instrumentationName = "github.com/BaSui01/tutorflow/rag"

// 管线阶段名
const (
	StageCacheRead = "cache_read"
	StageSearch    = "search"
	StageFilter    = "filter"
	StageFetch     = "fetch"
	StageSplit     = "split"
	StageStore     = "store"
	StageRetrieve  = "retrieve"
)

// PipelineConfig 管线配置
type PipelineConfig struct {
	// Collection 写入 URL 缓存与指标的集合名
	Collection string
	// NumResults 每次搜索摄取的结果数
	NumResults int
	// RetrieveK Retrieve 未指定 k 时的默认值
	RetrieveK int
}

// Dependencies 管线依赖的外部后端
type Dependencies struct {
	Searcher Searcher
	Loader   Loader
	Splitter *Splitter
	Cache    URLCache
}

// Option 配置 Pipeline 与 Service
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
}

func buildOptions(opts []Option) options {
	o := options{
		logger: zap.NewNop(),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records stage metrics into collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *options) { o.metrics = collector }
}

// WithTracer overrides the otel tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// IngestReport 一次 SearchAndStore 的结果
type IngestReport struct {
	Query      string
	Candidates []string
	NewURLs    []string
	Documents  int
	Chunks     int
	// Cached 本次运行结束后集合的已摄取 URL 集合
	Cached map[string]struct{}
	// Errors 失败但被容忍的阶段错误
	Errors []string
}

// Pipeline 搜索 → 过滤 → {摄取: 抓取 → 切分 → 存储 | 跳过 → 存储}
type Pipeline struct {
	cfg   PipelineConfig
	store VectorStore
	deps  Dependencies
	lock  sync.Locker

	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
}

// NewPipeline 创建绑定到单个向量存储集合的管线
func NewPipeline(cfg PipelineConfig, store VectorStore, deps Dependencies, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("pipeline: vector store is required")
	}
	if deps.Searcher == nil || deps.Loader == nil || deps.Cache == nil || deps.Splitter == nil {
		return nil, fmt.Errorf("pipeline: searcher, loader, splitter and cache are required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("pipeline: collection is required")
	}
	if cfg.NumResults <= 0 {
		cfg.NumResults = 3
	}
	if cfg.RetrieveK <= 0 {
		cfg.RetrieveK = 5
	}
	o := buildOptions(opts)
	return &Pipeline{
		cfg:   cfg,
		store: store,
		deps:  deps,
		lock:  &sync.Mutex{},
		logger: o.logger.With(
			zap.String("component", "rag_pipeline"),
			zap.String("collection", cfg.Collection)),
		metrics: o.metrics,
		tracer:  o.tracer,
	}, nil
}

// Store 返回管线绑定的向量存储
func (p *Pipeline) Store() VectorStore {
	return p.store
}

// Run 摄取 query 的搜索结果后检索最相关的文档
func (p *Pipeline) Run(ctx context.Context, query string) ([]Document, error) {
	if _, err := p.SearchAndStore(ctx, query); err != nil {
		return nil, err
	}
	return p.Retrieve(ctx, query, p.cfg.RetrieveK)
}

// SearchAndStore 执行摄取。搜索与抓取失败只记录，不中断；
// 缓存读写和向量写入失败返回错误。同一集合的过滤与存储串行执行。
func (p *Pipeline) SearchAndStore(ctx context.Context, query string) (*IngestReport, error) {
	ctx, span := p.tracer.Start(ctx, "rag.search_and_store", trace.WithAttributes(
		attribute.String("rag.collection", p.cfg.Collection),
	))
	defer span.End()

	p.lock.Lock()
	defer p.lock.Unlock()

	report := &IngestReport{Query: query}

	var cached map[string]struct{}
	err := p.stage(ctx, StageCacheRead, func(ctx context.Context) error {
		var err error
		cached, err = p.deps.Cache.Read(ctx, p.cfg.Collection)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("read url cache: %w", err)
	}
	if cached == nil {
		cached = make(map[string]struct{})
	}
	report.Cached = cached

	_ = p.stage(ctx, StageSearch, func(ctx context.Context) error {
		hits, err := p.deps.Searcher.Search(ctx, query, p.cfg.NumResults)
		if err != nil {
			p.logger.Warn("search failed", zap.String("query", query), zap.Error(err))
			report.Errors = append(report.Errors, "search error: "+err.Error())
			return err
		}
		for _, h := range hits {
			if h.Link != "" {
				report.Candidates = append(report.Candidates, h.Link)
			}
		}
		return nil
	})
	p.logger.Debug("candidate urls found", zap.Int("count", len(report.Candidates)), zap.String("query", query))

	_ = p.stage(ctx, StageFilter, func(context.Context) error {
		report.NewURLs = FilterURLs(report.Candidates, cached)
		return nil
	})
	p.metrics.RecordCacheFilter(p.cfg.Collection, len(report.Candidates)-len(report.NewURLs), len(report.NewURLs))

	if len(report.NewURLs) == 0 {
		p.logger.Info("collection already contains all candidate urls",
			zap.Int("candidates", len(report.Candidates)))
		span.SetAttributes(attribute.Bool("rag.skipped", true))
		return report, nil
	}

	var docs []Document
	_ = p.stage(ctx, StageFetch, func(ctx context.Context) error {
		var err error
		docs, err = p.deps.Loader.Load(ctx, report.NewURLs)
		if err != nil {
			p.logger.Warn("failed to load websites", zap.Error(err))
			report.Errors = append(report.Errors, "loader error: "+err.Error())
			docs = nil
			return err
		}
		return nil
	})
	report.Documents = len(docs)

	var chunks []Document
	_ = p.stage(ctx, StageSplit, func(context.Context) error {
		chunks = p.deps.Splitter.SplitDocuments(docs)
		return nil
	})
	report.Chunks = len(chunks)

	if len(chunks) == 0 {
		return report, nil
	}

	err = p.stage(ctx, StageStore, func(ctx context.Context) error {
		if err := p.store.AddDocuments(ctx, chunks); err != nil {
			return fmt.Errorf("store chunks: %w", err)
		}
		if err := p.deps.Cache.Append(ctx, p.cfg.Collection, report.NewURLs); err != nil {
			return fmt.Errorf("append url cache: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for _, u := range report.NewURLs {
		cached[u] = struct{}{}
	}
	p.metrics.RecordChunksStored(p.cfg.Collection, len(chunks))
	span.SetAttributes(attribute.Int("rag.chunks", len(chunks)))
	p.logger.Info("stored chunks",
		zap.Int("chunks", len(chunks)),
		zap.Int("documents", len(docs)),
		zap.Int("new_urls", len(report.NewURLs)))
	return report, nil
}

// Retrieve 从向量存储检索 k 篇文档，k <= 0 时使用默认值
func (p *Pipeline) Retrieve(ctx context.Context, query string, k int) ([]Document, error) {
	if k <= 0 {
		k = p.cfg.RetrieveK
	}
	var docs []Document
	err := p.stage(ctx, StageRetrieve, func(ctx context.Context) error {
		var err error
		docs, err = p.store.SimilaritySearch(ctx, query, k)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	return docs, nil
}

// stage 为阶段记录 span 与指标
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "rag."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	p.metrics.RecordPipelineStage(name, metrics.Status(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// FilterURLs 返回不在 cached 中的候选 URL，保持顺序并去重
func FilterURLs(candidates []string, cached map[string]struct{}) []string {
	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, u := range candidates {
		if _, ok := cached[u]; ok {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
