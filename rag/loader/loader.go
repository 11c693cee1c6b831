package loader

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/tutorflow/config"
	"github.com/BaSui01/tutorflow/rag"
)

// FileLoader 读取本地文件
type FileLoader interface {
	// Load reads the file at path and returns documents.
	Load(ctx context.Context, path string) ([]rag.Document, error)

	// SupportedTypes returns the file extensions this loader handles (e.g. ".txt", ".md").
	SupportedTypes() []string
}

// FileRegistry routes Load calls to the appropriate FileLoader based on file extension.
type FileRegistry struct {
	mu      sync.RWMutex
	loaders map[string]FileLoader // extension (lowercase, with dot) -> loader
}

// NewFileRegistry creates a registry pre-populated with the built-in loaders.
func NewFileRegistry(t Transformer) *FileRegistry {
	r := &FileRegistry{
		loaders: make(map[string]FileLoader),
	}
	for _, l := range []FileLoader{NewTextLoader(), NewMarkdownLoader(), NewHTMLFileLoader(t)} {
		for _, ext := range l.SupportedTypes() {
			r.loaders[strings.ToLower(ext)] = l
		}
	}
	return r
}

// Register adds or replaces a loader for the given file extension.
func (r *FileRegistry) Register(ext string, loader FileLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[strings.ToLower(ext)] = loader
}

// Load determines the loader from the file extension and delegates to it.
func (r *FileRegistry) Load(ctx context.Context, path string) ([]rag.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil, fmt.Errorf("loader: cannot determine file type for %q (no extension)", path)
	}

	r.mu.RLock()
	l, ok := r.loaders[ext]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("loader: no loader registered for extension %q", ext)
	}
	return l.Load(ctx, path)
}

// SupportedTypes returns all registered extensions, sorted.
func (r *FileRegistry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// WebLoader 并发抓取 URL 并转换为文档，满足 rag.Loader。
// 单个 URL 失败只记录并跳过；file:// URL 由 FileRegistry 读取。
type WebLoader struct {
	fetcher     Fetcher
	transformer Transformer
	files       *FileRegistry
	timeout     time.Duration
	concurrency int
	logger      *zap.Logger
}

var _ rag.Loader = (*WebLoader)(nil)

// WebLoaderOption 配置 WebLoader
type WebLoaderOption func(*WebLoader)

// WithTimeout sets the per-URL timeout.
func WithTimeout(d time.Duration) WebLoaderOption {
	return func(l *WebLoader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithConcurrency bounds concurrent fetches.
func WithConcurrency(n int) WebLoaderOption {
	return func(l *WebLoader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) WebLoaderOption {
	return func(l *WebLoader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewWebLoader 创建网页加载器
func NewWebLoader(f Fetcher, t Transformer, opts ...WebLoaderOption) *WebLoader {
	if t == nil {
		t = MainContent{}
	}
	l := &WebLoader{
		fetcher:     f,
		transformer: t,
		files:       NewFileRegistry(t),
		timeout:     fetchTimeout,
		concurrency: 4,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("component", "web_loader"), zap.String("transformer", t.Name()))
	return l
}

// New 按配置创建加载器：type html 或 chromium
func New(cfg config.LoaderConfig, logger *zap.Logger) (*WebLoader, error) {
	t, err := NewTransformer(cfg.Transformer)
	if err != nil {
		return nil, err
	}
	var f Fetcher
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "html", "":
		f = NewHTTPFetcher(cfg.UserAgent)
	case "chromium":
		f = NewChromiumFetcher(cfg.UserAgent, logger)
	default:
		return nil, fmt.Errorf("unsupported loader type %q", cfg.Type)
	}
	return NewWebLoader(f, t,
		WithTimeout(cfg.Timeout),
		WithConcurrency(cfg.MaxConcurrency),
		WithLogger(logger)), nil
}

// Files 返回本地文件注册表
func (l *WebLoader) Files() *FileRegistry {
	return l.files
}

// Close 释放抓取器资源
func (l *WebLoader) Close() error {
	if c, ok := l.fetcher.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Load 抓取全部 URL，结果保持输入顺序。只有 ctx 被取消时返回错误。
func (l *WebLoader) Load(ctx context.Context, urls []string) ([]rag.Document, error) {
	results := make([][]rag.Document, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			docs, err := l.loadOne(gctx, u)
			if err != nil {
				l.logger.Warn("failed to load url", zap.String("url", u), zap.Error(err))
				return nil
			}
			results[i] = docs
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []rag.Document
	for _, docs := range results {
		out = append(out, docs...)
	}
	l.logger.Debug("loaded documents", zap.Int("urls", len(urls)), zap.Int("documents", len(out)))
	return out, nil
}

func (l *WebLoader) loadOne(ctx context.Context, rawURL string) ([]rag.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	var docs []rag.Document
	switch u.Scheme {
	case "file":
		docs, err = l.files.Load(ctx, u.Path)
		if err != nil {
			return nil, err
		}
	case "http", "https":
		page, err := l.fetcher.Fetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		title, text, err := l.transformer.Transform(page)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("no text content")
		}
		docs = []rag.Document{{Content: text, Metadata: map[string]any{rag.MetaTitle: title}}}
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = map[string]any{}
		}
		docs[i].Metadata[rag.MetaSource] = rawURL
	}
	return docs, nil
}
