package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/BaSui01/tutorflow/internal/tlsutil"
	"github.com/BaSui01/tutorflow/llm/providers"
	"github.com/BaSui01/tutorflow/types"
)

// 单个页面的最大读取字节数
const maxPageBytes = 5 << 20

// Fetcher 抓取一个 URL 的原始 HTML
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher 直接 GET 页面
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher 创建 HTTP 抓取器
func NewHTTPFetcher(userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		client:    tlsutil.NewHTTPClient(tlsutil.ClientOptions{UserAgent: userAgent}),
		userAgent: userAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.Timeout("http_loader", err)
		}
		return nil, types.BackendTransport("http_loader", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), "http_loader")
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") && !strings.HasPrefix(ct, "text/") {
		return nil, fmt.Errorf("unsupported content type %q", ct)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// ChromiumFetcher 用无头 Chromium 渲染页面后取 outerHTML，适合依赖脚本的页面。
// 浏览器进程在首次抓取时启动，Close 释放。
type ChromiumFetcher struct {
	userAgent string
	logger    *zap.Logger

	once        sync.Once
	startErr    error
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
}

// NewChromiumFetcher 创建 Chromium 抓取器
func NewChromiumFetcher(userAgent string, logger *zap.Logger) *ChromiumFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromiumFetcher{userAgent: userAgent, logger: logger.With(zap.String("component", "chromium_loader"))}
}

func (f *ChromiumFetcher) start() error {
	f.once.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if f.userAgent != "" {
			opts = append(opts, chromedp.UserAgent(f.userAgent))
		}
		f.allocCtx, f.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		f.browserCtx, f.cancel = chromedp.NewContext(f.allocCtx,
			chromedp.WithLogf(func(format string, args ...any) {
				f.logger.Debug(fmt.Sprintf(format, args...))
			}),
		)
		if err := chromedp.Run(f.browserCtx); err != nil {
			f.cancel()
			f.allocCancel()
			f.startErr = fmt.Errorf("failed to start browser: %w", err)
			return
		}
		f.logger.Info("chromium browser started")
	})
	return f.startErr
}

func (f *ChromiumFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.start(); err != nil {
		return nil, err
	}
	// 每个 URL 一个标签页
	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	defer cancelTab()

	// 调用方的截止时间作用于标签页
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		tabCtx, cancel = context.WithDeadline(tabCtx, deadline)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var page string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &page, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.Timeout("chromium_loader", err)
		}
		return nil, types.BackendTransport("chromium_loader", err)
	}
	return []byte(page), nil
}

// Close 关闭浏览器
func (f *ChromiumFetcher) Close() error {
	if f.cancel != nil {
		f.cancel()
	}
	if f.allocCancel != nil {
		f.allocCancel()
	}
	return nil
}

// fetchTimeout 缺省的单 URL 超时
const fetchTimeout = 15 * time.Second
