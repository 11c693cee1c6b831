// Package urlcache 记录每个集合已经入库的网页 URL，满足 rag.URLCache。
//
// 后端：
//
//   - csv：单文件，表头 collection_name,url；进程内互斥锁加 flock 文件锁
//   - redis：每个集合一个 Set，键为 <key_prefix>:<collection>
//   - sql：gorm 连接 sqlite / postgres / mysql，表结构由 internal/migration 维护
//   - mongo：每个 URL 一个文档，(collection_name, url) 唯一索引
//
// 所有后端的 Append 都是幂等的，空 URL 被忽略。
package urlcache
