// Package loader 把网页与本地笔记转换为 rag.Document。
//
// WebLoader 满足 rag.Loader：按 URL 并发抓取（HTTPFetcher 直接请求，
// ChromiumFetcher 通过 chromedp 渲染），再由 Transformer 提取正文：
//
//   - main_content（别名 beautiful_soup）：标题与 <p> 段落，空行分隔
//   - body_text（别名 html2text）：body 中除脚本样式外的全部文本，按块换行
//
// file:// URL 交给 FileRegistry，按扩展名选择 .txt / .md / .html 加载器：
//
//	registry := loader.NewFileRegistry(loader.MainContent{})
//	docs, err := registry.Load(ctx, "/notes/goroutines.md")
//
// 每篇文档的元数据包含 source（原始 URL）与 title。
package loader
