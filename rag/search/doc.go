// Package search 提供检索管线使用的网络搜索后端。
//
// 支持 serper、bing、duckduckgo、brave、searxng（别名 searx）、tavily、you 与 arxiv（论文摘要页）。
// Client 在提供者之上做限流、单次超时与结果截断，并满足 rag.Searcher。
package search
