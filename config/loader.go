// =============================================================================
// 📦 TutorFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("TUTORFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 TutorFlow 的完整配置结构
type Config struct {
	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// LLM 大语言模型配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Agent 调用控制配置
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// Search 网络搜索配置
	Search SearchConfig `yaml:"search" env:"SEARCH"`

	// Loader 网页抓取配置
	Loader LoaderConfig `yaml:"loader" env:"LOADER"`

	// VectorStore 向量存储配置
	VectorStore VectorStoreConfig `yaml:"vectorstore" env:"VECTORSTORE"`

	// Embedding 嵌入模型配置
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// RAG 检索管线配置
	RAG RAGConfig `yaml:"rag" env:"RAG"`

	// Cache URL 缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry OpenTelemetry 链路追踪配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// 模型，格式 provider:model 或旧别名
	Model string `yaml:"model" env:"MODEL"`
	// API Key（为空时按 provider 读取对应环境变量）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 单次调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 传输层重试次数，0 表示关闭
	TransportRetries int `yaml:"transport_retries" env:"TRANSPORT_RETRIES"`
	// 是否启用熔断
	CircuitBreaker bool `yaml:"circuit_breaker" env:"CIRCUIT_BREAKER"`
}

// AgentConfig 调用控制配置
type AgentConfig struct {
	// 内容级最大尝试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 批处理最大并发
	MaxWorkers int `yaml:"max_workers" env:"MAX_WORKERS"`
	// 提示词包文件，为空使用内置提示词
	PromptsFile string `yaml:"prompts_file" env:"PROMPTS_FILE"`
}

// SearchConfig 网络搜索配置
type SearchConfig struct {
	// 提供者: serper, bing, duckduckgo, brave, searxng, tavily, you, arxiv
	Provider string `yaml:"provider" env:"PROVIDER"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（searxng 必填，其余可选）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 每次搜索返回的最大结果数
	MaxResults int `yaml:"max_results" env:"MAX_RESULTS"`
	// 搜索深度（tavily）: basic, advanced
	SearchDepth string `yaml:"search_depth" env:"SEARCH_DEPTH"`
	// 每秒请求数上限
	RatePerSecond float64 `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
	// 单次搜索超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LoaderConfig 网页抓取配置
type LoaderConfig struct {
	// 抓取方式: html, chromium
	Type string `yaml:"type" env:"TYPE"`
	// 内容提取: main_content (beautiful_soup), body_text (html2text)
	Transformer string `yaml:"transformer" env:"TRANSFORMER"`
	// 单个 URL 超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 并发抓取数
	MaxConcurrency int `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	// User-Agent
	UserAgent string `yaml:"user_agent" env:"USER_AGENT"`
}

// VectorStoreConfig 向量存储配置
type VectorStoreConfig struct {
	// 后端: chromem, memory, qdrant
	Type string `yaml:"type" env:"TYPE"`
	// chromem 持久化目录
	PersistDirectory string `yaml:"persist_directory" env:"PERSIST_DIRECTORY"`
	// chromem 是否压缩
	Compress bool `yaml:"compress" env:"COMPRESS"`
	// 集合名前缀，实际集合名为 <prefix>_<collection>
	CollectionPrefix string `yaml:"collection_prefix" env:"COLLECTION_PREFIX"`
	// Qdrant 配置
	Qdrant QdrantConfig `yaml:"qdrant" env:"QDRANT"`
}

// QdrantConfig Qdrant 向量存储配置
type QdrantConfig struct {
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// REST 端口
	Port int `yaml:"port" env:"PORT"`
	// 完整地址（优先于 host/port）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key（可选）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// EmbeddingConfig 嵌入模型配置
type EmbeddingConfig struct {
	// 提供者: openai, ollama, hash
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 模型
	Model string `yaml:"model" env:"MODEL"`
	// API Key（openai 为空时读取 OPENAI_API_KEY）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 向量维度，0 表示模型默认
	Dimensions int `yaml:"dimensions" env:"DIMENSIONS"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RAGConfig 检索管线配置
type RAGConfig struct {
	// 分块方式: token, character
	SplitBy string `yaml:"split_by" env:"SPLIT_BY"`
	// 分块大小
	ChunkSize int `yaml:"chunk_size" env:"CHUNK_SIZE"`
	// 分块重叠，必须小于 chunk_size
	ChunkOverlap int `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
	// 每次搜索摄取的结果数
	NumResults int `yaml:"num_results" env:"NUM_RESULTS"`
	// 检索返回文档数
	RetrieveK int `yaml:"retrieve_k" env:"RETRIEVE_K"`
	// 并行起草的最大并发
	MaxWorkers int `yaml:"max_workers" env:"MAX_WORKERS"`
}

// CacheConfig URL 缓存配置
type CacheConfig struct {
	// 后端: csv, redis, sql, mongo
	Backend string `yaml:"backend" env:"BACKEND"`
	// CSV 文件路径
	Path string `yaml:"path" env:"PATH"`
	// Redis 配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
	// SQL 配置
	SQL SQLConfig `yaml:"sql" env:"SQL"`
	// Mongo 配置
	Mongo MongoConfig `yaml:"mongo" env:"MONGO"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// SQLConfig 数据库配置
type SQLConfig struct {
	// 驱动类型: sqlite, postgres, mysql
	Driver string `yaml:"driver" env:"DRIVER"`
	// 连接串；sqlite 为文件路径
	DSN string `yaml:"dsn" env:"DSN"`
	// 打开时执行内嵌迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	// 连接 URI
	URI string `yaml:"uri" env:"URI"`
	// 数据库名
	Database string `yaml:"database" env:"DATABASE"`
	// 集合名
	Collection string `yaml:"collection" env:"COLLECTION"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 监听地址，为空表示不暴露
	Addr string `yaml:"addr" env:"ADDR"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TelemetryConfig OpenTelemetry 配置
type TelemetryConfig struct {
	// 是否启用，关闭时使用 noop provider
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP gRPC 地址
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率 0-1
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "TUTORFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if !oneOf(c.Log.Format, "json", "console") {
		errs = append(errs, "log.format must be json or console")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, "llm.timeout must be positive")
	}
	if c.LLM.TransportRetries < 0 {
		errs = append(errs, "llm.transport_retries must not be negative")
	}
	if c.Agent.MaxRetries < 1 {
		errs = append(errs, "agent.max_retries must be at least 1")
	}
	if c.Agent.MaxWorkers < 1 || c.RAG.MaxWorkers < 1 {
		errs = append(errs, "max_workers must be at least 1")
	}
	if c.Search.MaxResults < 1 {
		errs = append(errs, "search.max_results must be at least 1")
	}
	if !oneOf(c.Loader.Type, "html", "chromium") {
		errs = append(errs, "loader.type must be html or chromium")
	}
	if !oneOf(c.VectorStore.Type, "chromem", "memory", "qdrant") {
		errs = append(errs, "vectorstore.type must be chromem, memory or qdrant")
	}
	if !oneOf(c.RAG.SplitBy, "token", "character") {
		errs = append(errs, "rag.split_by must be token or character")
	}
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, "rag.chunk_size must be positive")
	}
	if c.RAG.ChunkOverlap < 0 {
		errs = append(errs, "rag.chunk_overlap must not be negative")
	}
	if c.RAG.NumResults < 1 || c.RAG.RetrieveK < 1 {
		errs = append(errs, "rag.num_results and rag.retrieve_k must be at least 1")
	}
	if !oneOf(c.Cache.Backend, "csv", "redis", "sql", "mongo") {
		errs = append(errs, "cache.backend must be csv, redis, sql or mongo")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
