// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "openai:gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 0.7, cfg.LLM.Temperature)
	assert.Zero(t, cfg.LLM.TransportRetries)

	assert.Equal(t, 3, cfg.Agent.MaxRetries)
	assert.Equal(t, 3, cfg.RAG.MaxWorkers)

	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, "basic", cfg.Search.SearchDepth)
	assert.Equal(t, 15*time.Second, cfg.Loader.Timeout)

	assert.Equal(t, "chromem", cfg.VectorStore.Type)
	assert.Equal(t, "./data/vectorstore", cfg.VectorStore.PersistDirectory)

	assert.Equal(t, "token", cfg.RAG.SplitBy)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 3, cfg.RAG.NumResults)

	assert.Equal(t, "csv", cfg.Cache.Backend)
	assert.Equal(t, "info", cfg.Log.Level)

	require.NoError(t, cfg.Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "openai:gpt-4o-mini", cfg.LLM.Model)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
llm:
  model: "ollama:llama3.2"
  timeout: 30s
  transport_retries: 2
search:
  provider: searxng
  base_url: http://localhost:8888
vectorstore:
  type: qdrant
  collection_prefix: tutor
  qdrant:
    port: 7333
rag:
  split_by: character
  chunk_size: 500
  chunk_overlap: 50
cache:
  backend: redis
  redis:
    addr: "redis:6379"
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o600))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, "ollama:llama3.2", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 2, cfg.LLM.TransportRetries)
	assert.Equal(t, "searxng", cfg.Search.Provider)
	assert.Equal(t, "qdrant", cfg.VectorStore.Type)
	assert.Equal(t, "tutor", cfg.VectorStore.CollectionPrefix)
	assert.Equal(t, 7333, cfg.VectorStore.Qdrant.Port)
	// 未出现在文件中的字段保留默认值
	assert.Equal(t, "localhost", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, "character", cfg.RAG.SplitBy)
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, "chromem", cfg.VectorStore.Type)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0o600))

	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("TUTORFLOW_LLM_MODEL", "gpt4o")
	t.Setenv("TUTORFLOW_LLM_TEMPERATURE", "0.2")
	t.Setenv("TUTORFLOW_AGENT_MAX_RETRIES", "5")
	t.Setenv("TUTORFLOW_SEARCH_TIMEOUT", "3s")
	t.Setenv("TUTORFLOW_VECTORSTORE_QDRANT_API_KEY", "qk")
	t.Setenv("TUTORFLOW_CACHE_SQL_DRIVER", "postgres")
	t.Setenv("TUTORFLOW_LLM_CIRCUIT_BREAKER", "true")
	t.Setenv("TUTORFLOW_LOG_OUTPUT_PATHS", "stdout, /tmp/tutor.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt4o", cfg.LLM.Model)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, 5, cfg.Agent.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Search.Timeout)
	assert.Equal(t, "qk", cfg.VectorStore.Qdrant.APIKey)
	assert.Equal(t, "postgres", cfg.Cache.SQL.Driver)
	assert.True(t, cfg.LLM.CircuitBreaker)
	assert.Equal(t, []string{"stdout", "/tmp/tutor.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvInvalidValue(t *testing.T) {
	t.Setenv("TUTORFLOW_RAG_CHUNK_SIZE", "big")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TUTORFLOW_RAG_CHUNK_SIZE")
}

func TestLoader_CustomPrefixAndValidator(t *testing.T) {
	t.Setenv("TF_RAG_CHUNK_SIZE", "0")

	_, err := NewLoader().WithEnvPrefix("TF").WithValidator(func(c *Config) error {
		return c.Validate()
	}).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rag.chunk_size")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "llm.temperature"},
		{"max retries", func(c *Config) { c.Agent.MaxRetries = 0 }, "agent.max_retries"},
		{"loader type", func(c *Config) { c.Loader.Type = "curl" }, "loader.type"},
		{"vector store", func(c *Config) { c.VectorStore.Type = "pinecone" }, "vectorstore.type"},
		{"split by", func(c *Config) { c.RAG.SplitBy = "sentence" }, "rag.split_by"},
		{"cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"workers", func(c *Config) { c.RAG.MaxWorkers = 0 }, "max_workers"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, "telemetry.sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMustLoad_Panics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n\t- x"), 0o600))
	assert.Panics(t, func() { MustLoad(path) })
}
