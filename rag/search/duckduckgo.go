package search

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"

	"github.com/BaSui01/tutorflow/llm/providers"
	"github.com/BaSui01/tutorflow/types"
)

// DuckDuckGo 解析 html.duckduckgo.com 的无脚本结果页，无需 API Key。
type DuckDuckGo struct {
	client *resty.Client
}

func NewDuckDuckGo(opts Options) *DuckDuckGo {
	return &DuckDuckGo{client: newRestyClient(baseURLOr(opts, "https://html.duckduckgo.com"), opts)}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"q": query}).
		Post("/html/")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.BackendTransport(d.Name(), err).WithRetryable(true)
	}
	if resp.IsError() {
		return nil, providers.MapHTTPError(resp.StatusCode(), providers.ReadErrorMessage(bytes.NewReader(resp.Body())), d.Name())
	}
	results, err := parseDuckDuckGo(resp.Body())
	if err != nil {
		return nil, types.BackendTransport(d.Name(), err)
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// parseDuckDuckGo 提取 a.result__a 与其后的 .result__snippet
func parseDuckDuckGo(body []byte) ([]Result, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo html: %w", err)
	}

	var results []Result
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				link := resolveDuckDuckGoLink(attr(n, "href"))
				if link != "" {
					results = append(results, Result{Title: nodeText(n), Link: link})
				}
				return
			case hasClass(n, "result__snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = nodeText(n)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

// resolveDuckDuckGoLink 还原 /l/?uddg= 跳转链接，丢弃广告链接
func resolveDuckDuckGoLink(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
		// y.js 等广告跳转
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
