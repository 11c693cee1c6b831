package search

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

// =============================================================================
// Serper (Google)
// =============================================================================

// Serper google.serper.dev 搜索
type Serper struct {
	client *resty.Client
	apiKey string
}

func NewSerper(opts Options) (*Serper, error) {
	if err := requireKey("serper", opts); err != nil {
		return nil, err
	}
	return &Serper{client: newRestyClient(baseURLOr(opts, "https://google.serper.dev"), opts), apiKey: opts.APIKey}, nil
}

func (s *Serper) Name() string { return "serper" }

func (s *Serper) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	var out struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	req := s.client.R().
		SetHeader("X-API-KEY", s.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"q": query, "num": maxResults})
	if err := do(ctx, s.Name(), req, http.MethodPost, "/search", &out); err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(out.Organic))
	for _, r := range out.Organic {
		results = append(results, Result{Title: r.Title, Link: r.Link, Snippet: r.Snippet})
	}
	return results, nil
}

// =============================================================================
// Bing Web Search v7
// =============================================================================

// Bing Bing Web Search API
type Bing struct {
	client *resty.Client
	apiKey string
}

func NewBing(opts Options) (*Bing, error) {
	if err := requireKey("bing", opts); err != nil {
		return nil, err
	}
	return &Bing{client: newRestyClient(baseURLOr(opts, "https://api.bing.microsoft.com"), opts), apiKey: opts.APIKey}, nil
}

func (b *Bing) Name() string { return "bing" }

func (b *Bing) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	var out struct {
		WebPages struct {
			Value []struct {
				Name    string `json:"name"`
				URL     string `json:"url"`
				Snippet string `json:"snippet"`
			} `json:"value"`
		} `json:"webPages"`
	}
	req := b.client.R().
		SetHeader("Ocp-Apim-Subscription-Key", b.apiKey).
		SetQueryParams(map[string]string{
			"q":          query,
			"count":      strconv.Itoa(maxResults),
			"textFormat": "Raw",
		})
	if err := do(ctx, b.Name(), req, http.MethodGet, "/v7.0/search", &out); err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(out.WebPages.Value))
	for _, r := range out.WebPages.Value {
		results = append(results, Result{Title: r.Name, Link: r.URL, Snippet: r.Snippet})
	}
	return results, nil
}

// =============================================================================
// Brave
// =============================================================================

// Brave Brave Search API
type Brave struct {
	client *resty.Client
	apiKey string
}

func NewBrave(opts Options) (*Brave, error) {
	if err := requireKey("brave", opts); err != nil {
		return nil, err
	}
	return &Brave{client: newRestyClient(baseURLOr(opts, "https://api.search.brave.com"), opts), apiKey: opts.APIKey}, nil
}

func (b *Brave) Name() string { return "brave" }

func (b *Brave) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	var out struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	req := b.client.R().
		SetHeader("X-Subscription-Token", b.apiKey).
		SetHeader("Accept", "application/json").
		SetQueryParams(map[string]string{
			"q":     query,
			"count": strconv.Itoa(maxResults),
		})
	if err := do(ctx, b.Name(), req, http.MethodGet, "/res/v1/web/search", &out); err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(out.Web.Results))
	for _, r := range out.Web.Results {
		results = append(results, Result{Title: r.Title, Link: r.URL, Snippet: r.Description})
	}
	return results, nil
}

// =============================================================================
// SearXNG
// =============================================================================

// SearXNG 自建 SearXNG 实例（JSON 输出需在实例中启用）
type SearXNG struct {
	client *resty.Client
}

func NewSearXNG(opts Options) (*SearXNG, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, requireBaseURL("searxng")
	}
	return &SearXNG{client: newRestyClient(opts.BaseURL, opts)}, nil
}

func (s *SearXNG) Name() string { return "searxng" }

func (s *SearXNG) Search(ctx context.Context, query string, _ int) ([]Result, error) {
	var out struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	req := s.client.R().
		SetHeader("Accept", "application/json").
		SetQueryParams(map[string]string{
			"q":      query,
			"format": "json",
			"pageno": "1",
		})
	if err := do(ctx, s.Name(), req, http.MethodGet, "/search", &out); err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, Result{Title: r.Title, Link: r.URL, Snippet: r.Content})
	}
	return results, nil
}

// =============================================================================
// Tavily
// =============================================================================

// Tavily Tavily 搜索 API
type Tavily struct {
	client *resty.Client
	apiKey string
	depth  string
}

func NewTavily(opts Options) (*Tavily, error) {
	if err := requireKey("tavily", opts); err != nil {
		return nil, err
	}
	depth := opts.SearchDepth
	if depth == "" {
		depth = "basic"
	}
	return &Tavily{
		client: newRestyClient(baseURLOr(opts, "https://api.tavily.com"), opts),
		apiKey: opts.APIKey,
		depth:  depth,
	}, nil
}

func (t *Tavily) Name() string { return "tavily" }

func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	var out struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	req := t.client.R().
		SetAuthToken(t.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"query":        query,
			"max_results":  maxResults,
			"search_depth": t.depth,
		})
	if err := do(ctx, t.Name(), req, http.MethodPost, "/search", &out); err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, Result{Title: r.Title, Link: r.URL, Snippet: r.Content})
	}
	return results, nil
}

// =============================================================================
// You.com
// =============================================================================

// You You.com 搜索 API
type You struct {
	client *resty.Client
	apiKey string
}

func NewYou(opts Options) (*You, error) {
	if err := requireKey("you", opts); err != nil {
		return nil, err
	}
	return &You{client: newRestyClient(baseURLOr(opts, "https://api.ydc-index.io"), opts), apiKey: opts.APIKey}, nil
}

func (y *You) Name() string { return "you" }

func (y *You) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	var out struct {
		Hits []struct {
			Title       string   `json:"title"`
			URL         string   `json:"url"`
			Description string   `json:"description"`
			Snippets    []string `json:"snippets"`
		} `json:"hits"`
	}
	req := y.client.R().
		SetHeader("X-API-Key", y.apiKey).
		SetQueryParams(map[string]string{
			"query":           query,
			"num_web_results": strconv.Itoa(maxResults),
		})
	if err := do(ctx, y.Name(), req, http.MethodGet, "/search", &out); err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(out.Hits))
	for _, h := range out.Hits {
		snippet := h.Description
		if len(h.Snippets) > 0 {
			snippet = strings.Join(h.Snippets, " ")
		}
		results = append(results, Result{Title: h.Title, Link: h.URL, Snippet: snippet})
	}
	return results, nil
}
