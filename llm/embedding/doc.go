// 版权所有 2026 TutorFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 embedding 提供统一的文本嵌入（Embedding）接口与实现，
检索管线用它把文档分块与查询转换为向量。

# 核心接口

  - Provider：统一嵌入接口，定义 Embed、EmbedQuery、EmbedDocuments 等方法。
  - EmbeddingRequest / EmbeddingResponse：标准化的请求与响应模型。
  - BaseProvider：公共基类，封装 HTTP 请求、错误映射与分批嵌入。

# 实现

  - OpenAIProvider：调用 /v1/embeddings，默认 text-embedding-3-small，
    也可指向 Ollama 等兼容服务。
  - HashProvider：基于特征哈希的确定性词袋向量，无需网络，用于离线与测试。

# 使用方式

	provider, err := embedding.New(embedding.Config{Provider: "openai", APIKey: key})
	vec, err := provider.EmbedQuery(ctx, "搜索关键词")
	vecs, err := provider.EmbedDocuments(ctx, []string{"文档1", "文档2"})
*/
package embedding
