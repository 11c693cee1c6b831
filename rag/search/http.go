package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/BaSui01/tutorflow/internal/tlsutil"
	"github.com/BaSui01/tutorflow/llm/providers"
	"github.com/BaSui01/tutorflow/types"
)

const defaultUserAgent = "tutorflow/1.0"

// newRestyClient 基于 tlsutil 客户端创建 resty 客户端
func newRestyClient(baseURL string, opts Options) *resty.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return resty.NewWithClient(tlsutil.NewHTTPClient(tlsutil.ClientOptions{Timeout: timeout})).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("User-Agent", ua)
}

func baseURLOr(opts Options, def string) string {
	if opts.BaseURL != "" {
		return opts.BaseURL
	}
	return def
}

func requireKey(provider string, opts Options) error {
	if strings.TrimSpace(opts.APIKey) == "" {
		return types.NewError(types.ErrInvalidConfig, provider+" search requires search.api_key").WithProvider(provider)
	}
	return nil
}

// do 执行请求并把 JSON 响应解到 out
func do(ctx context.Context, provider string, req *resty.Request, method, path string, out any) error {
	resp, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return types.BackendTransport(provider, err).WithRetryable(true)
	}
	if resp.IsError() {
		return providers.MapHTTPError(resp.StatusCode(), providers.ReadErrorMessage(bytes.NewReader(resp.Body())), provider)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return types.BackendTransport(provider, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func requireBaseURL(provider string) error {
	return types.NewError(types.ErrInvalidConfig, provider+" search requires search.base_url").WithProvider(provider)
}
