// =============================================================================
// 📦 TutorFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Log:         DefaultLogConfig(),
		LLM:         DefaultLLMConfig(),
		Agent:       DefaultAgentConfig(),
		Search:      DefaultSearchConfig(),
		Loader:      DefaultLoaderConfig(),
		VectorStore: DefaultVectorStoreConfig(),
		Embedding:   DefaultEmbeddingConfig(),
		RAG:         DefaultRAGConfig(),
		Cache:       DefaultCacheConfig(),
		Metrics:     DefaultMetricsConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:            "openai:gpt-4o-mini",
		Temperature:      0.7,
		Timeout:          60 * time.Second,
		TransportRetries: 0,
	}
}

// DefaultAgentConfig 返回默认调用控制配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxRetries: 3,
		MaxWorkers: 3,
	}
}

// DefaultSearchConfig 返回默认搜索配置
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Provider:      "duckduckgo",
		MaxResults:    5,
		SearchDepth:   "basic",
		RatePerSecond: 1,
		Timeout:       15 * time.Second,
	}
}

// DefaultLoaderConfig 返回默认抓取配置
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		Type:           "html",
		Transformer:    "main_content",
		Timeout:        15 * time.Second,
		MaxConcurrency: 4,
		UserAgent:      "tutorflow/1.0",
	}
}

// DefaultVectorStoreConfig 返回默认向量存储配置
func DefaultVectorStoreConfig() VectorStoreConfig {
	return VectorStoreConfig{
		Type:             "chromem",
		PersistDirectory: "./data/vectorstore",
		Qdrant: QdrantConfig{
			Host:    "localhost",
			Port:    6333,
			Timeout: 30 * time.Second,
		},
	}
}

// DefaultEmbeddingConfig 返回默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider: "openai",
		Model:    "text-embedding-3-small",
		Timeout:  30 * time.Second,
	}
}

// DefaultRAGConfig 返回默认检索管线配置
func DefaultRAGConfig() RAGConfig {
	return RAGConfig{
		SplitBy:      "token",
		ChunkSize:    1000,
		ChunkOverlap: 200,
		NumResults:   3,
		RetrieveK:    5,
		MaxWorkers:   3,
	}
}

// DefaultCacheConfig 返回默认 URL 缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Backend: "csv",
		Path:    "./data/vectorstore/urls_cache.csv",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "tutorflow:urls",
		},
		SQL: SQLConfig{
			Driver:      "sqlite",
			DSN:         "./data/url_cache.db",
			AutoMigrate: true,
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "tutorflow",
			Collection: "url_cache",
		},
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "tutorflow",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "tutorflow",
		SampleRate:   0.1,
	}
}
