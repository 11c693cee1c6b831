package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/BaSui01/tutorflow/types"
)

// =============================================================================
// arXiv
// =============================================================================

// Arxiv 通过 arXiv 公共 API 搜索论文，结果链接为摘要页
type Arxiv struct {
	client *resty.Client
}

// NewArxiv 不需要 API Key
func NewArxiv(opts Options) *Arxiv {
	return &Arxiv{client: newRestyClient(baseURLOr(opts, "http://export.arxiv.org"), opts)}
}

func (a *Arxiv) Name() string { return "arxiv" }

// arxivFeed Atom 响应
type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID      string      `xml:"id"`
	Title   string      `xml:"title"`
	Summary string      `xml:"summary"`
	Links   []arxivLink `xml:"link"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

// absURL 优先取 rel=alternate 的摘要页，缺失时退回 entry id
func (e arxivEntry) absURL() string {
	for _, l := range e.Links {
		if l.Rel == "alternate" && l.Href != "" {
			return l.Href
		}
	}
	return strings.TrimSpace(e.ID)
}

func (a *Arxiv) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	req := a.client.R().
		SetHeader("Accept", "application/atom+xml").
		SetQueryParams(map[string]string{
			"search_query": "all:" + query,
			"start":        "0",
			"max_results":  strconv.Itoa(maxResults),
			"sortBy":       "relevance",
			"sortOrder":    "descending",
		})
	resp, err := req.SetContext(ctx).Get("/api/query")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.BackendTransport(a.Name(), err).WithRetryable(true)
	}
	if resp.IsError() {
		return nil, types.BackendTransport(a.Name(), fmt.Errorf("arXiv API returned status %d", resp.StatusCode())).
			WithHTTPStatus(resp.StatusCode()).
			WithRetryable(resp.StatusCode() >= 500)
	}

	var feed arxivFeed
	if err := xml.Unmarshal(resp.Body(), &feed); err != nil {
		return nil, types.BackendTransport(a.Name(), fmt.Errorf("decode atom feed: %w", err))
	}
	results := make([]Result, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		results = append(results, Result{
			Title:   strings.Join(strings.Fields(e.Title), " "),
			Link:    e.absURL(),
			Snippet: strings.Join(strings.Fields(e.Summary), " "),
		})
	}
	return results, nil
}
