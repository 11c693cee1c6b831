// Copyright (c) TutorFlow Authors.
// Licensed under the MIT License.

/*
# 概述

Package rag 实现检索增强的摄取管线：搜索 → 过滤已缓存 URL → 抓取 →
切分 → 写入向量存储 → 记录 URL，随后按相似度检索。

# 核心接口/类型

  - Document：文本与元数据，Source/Title 从元数据读取
  - Searcher / Loader / URLCache：搜索、抓取与 URL 缓存的抽象，实现位于
    子包 search、loader、urlcache
  - VectorStore：AddDocuments / SimilaritySearch / Count，实现有
    InMemoryVectorStore、ChromemStore、QdrantStore
  - Splitter：按 token 或字符窗口切分，带重叠
  - Pipeline：绑定单个集合的摄取与检索
  - Service：按集合名懒创建 Pipeline，同一集合的摄取串行执行

# 工厂

  - NewEmbedderFromConfig：由 embedding 配置创建 Embedder
  - NewVectorStoreFactory：按 vectorstore.type 打开 memory / chromem / qdrant
  - SplitConfigFromConfig：rag 配置转换为 SplitConfig

FormatDocs 把检索结果渲染为带 Source 与 Content 的文本块，供提示词直接使用。
*/
package rag
