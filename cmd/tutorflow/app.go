package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tutorflow/agent"
	"github.com/BaSui01/tutorflow/agent/tutor"
	"github.com/BaSui01/tutorflow/config"
	"github.com/BaSui01/tutorflow/internal/metrics"
	"github.com/BaSui01/tutorflow/internal/server"
	"github.com/BaSui01/tutorflow/internal/telemetry"
	"github.com/BaSui01/tutorflow/llm"
	"github.com/BaSui01/tutorflow/llm/circuitbreaker"
	"github.com/BaSui01/tutorflow/llm/factory"
	"github.com/BaSui01/tutorflow/llm/observability"
	"github.com/BaSui01/tutorflow/llm/retry"
	"github.com/BaSui01/tutorflow/llm/tokenizer"
	"github.com/BaSui01/tutorflow/rag"
	"github.com/BaSui01/tutorflow/rag/loader"
	"github.com/BaSui01/tutorflow/rag/search"
	"github.com/BaSui01/tutorflow/rag/urlcache"
)

// app 持有一次命令执行所需的组件，按需懒加载
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	collector *metrics.Collector
	otel      *telemetry.Providers
	server    *server.Manager

	model   llm.ModelSource
	service *rag.Service
	closers []func() error
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader().WithEnvPrefix("TUTORFLOW")
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newApp 初始化日志、遥测、指标与模型来源
func newApp(configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := initLogger(cfg.Log)
	logger.Debug("starting tutorflow",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
	)

	a := &app{cfg: cfg, logger: logger}

	// 遥测初始化失败不影响命令执行
	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	a.otel = providers

	a.collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	if cfg.Metrics.Addr != "" {
		a.server = server.NewManager(server.NewHandler(a.collector), server.DefaultConfig(cfg.Metrics.Addr), logger)
		if err := a.server.Start(); err != nil {
			a.Close()
			return nil, fmt.Errorf("start metrics server: %w", err)
		}
	}

	a.model, err = a.newModelSource()
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) newModelSource() (llm.ModelSource, error) {
	c := a.cfg.LLM
	opts := factory.Options{DefaultTimeout: c.Timeout}

	if c.TransportRetries > 0 {
		policy := retry.DefaultPolicy()
		policy.MaxRetries = c.TransportRetries
		opts.TransportRetry = policy
	}
	if c.CircuitBreaker {
		cb := circuitbreaker.DefaultConfig()
		opts.CircuitBreaker = &cb
	}
	m, err := observability.NewMetrics()
	if err != nil {
		return llm.ModelSource{}, fmt.Errorf("create llm metrics: %w", err)
	}
	opts.Metrics = m

	f := factory.New(opts, a.logger)
	return llm.FromFactory(f, llm.Settings{
		Model:       c.Model,
		Temperature: float32(c.Temperature),
		MaxTokens:   c.MaxTokens,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Timeout:     c.Timeout,
	}), nil
}

// ragService 组装搜索、抓取、分块、URL 缓存与向量存储
func (a *app) ragService(ctx context.Context) (*rag.Service, error) {
	if a.service != nil {
		return a.service, nil
	}
	cfg := a.cfg

	cache, err := urlcache.New(ctx, cfg.Cache, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open url cache: %w", err)
	}
	a.closers = append(a.closers, cache.Close)

	searcher, err := search.New(cfg.Search, a.logger, a.collector)
	if err != nil {
		return nil, fmt.Errorf("create search client: %w", err)
	}
	web, err := loader.New(cfg.Loader, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create web loader: %w", err)
	}
	a.closers = append(a.closers, web.Close)

	embedder, err := rag.NewEmbedderFromConfig(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	_, model := llm.SplitModel(llm.Normalize(cfg.LLM.Model))
	splitter := rag.NewSplitter(rag.SplitConfigFromConfig(cfg.RAG), tokenizer.ForModel(model), a.logger)

	a.service = rag.NewService(
		rag.NewVectorStoreFactory(cfg.VectorStore, embedder, a.logger),
		rag.Dependencies{
			Searcher: searcher,
			Loader:   web,
			Splitter: splitter,
			Cache:    cache,
		},
		rag.ServiceConfig{NumResults: cfg.RAG.NumResults, RetrieveK: cfg.RAG.RetrieveK},
		rag.WithLogger(a.logger),
		rag.WithMetrics(a.collector),
	)
	return a.service, nil
}

// tutor 构建四个 Agent；retriever 为 nil 时起草不做检索
func (a *app) tutor(retriever tutor.Retriever) (*tutor.Tutor, error) {
	prompts, err := tutor.LoadPrompts(a.cfg.Agent.PromptsFile)
	if err != nil {
		return nil, err
	}
	workers := a.cfg.RAG.MaxWorkers
	if workers <= 0 {
		workers = a.cfg.Agent.MaxWorkers
	}
	opts := tutor.Options{
		Model:        a.model,
		Prompts:      prompts,
		Retriever:    retriever,
		MaxRetries:   a.cfg.Agent.MaxRetries,
		Timeout:      a.cfg.LLM.Timeout,
		Parallel:     true,
		MaxWorkers:   workers,
		Logger:       a.logger,
		AgentOptions: []agent.Option{agent.WithMetrics(a.collector)},
	}
	return tutor.New(opts)
}

// planner 构建目标、技能差距、学习者画像与学习路径 Agent
func (a *app) planner() (*tutor.Planner, error) {
	prompts, err := tutor.LoadPrompts(a.cfg.Agent.PromptsFile)
	if err != nil {
		return nil, err
	}
	return tutor.NewPlanner(tutor.Options{
		Model:        a.model,
		Prompts:      prompts,
		MaxRetries:   a.cfg.Agent.MaxRetries,
		Timeout:      a.cfg.LLM.Timeout,
		Logger:       a.logger,
		AgentOptions: []agent.Option{agent.WithMetrics(a.collector)},
	})
}

// registry 注册全部 Agent
func (a *app) registry() (*agent.Registry, error) {
	t, err := a.tutor(nil)
	if err != nil {
		return nil, err
	}
	p, err := a.planner()
	if err != nil {
		return nil, err
	}
	reg := agent.NewRegistry(a.logger)
	if err := reg.Register(append(p.Agents(), t.Agents()...)...); err != nil {
		return nil, err
	}
	return reg, nil
}

// Close 释放资源，可重复调用
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if a.server != nil {
		errs = append(errs, a.server.Shutdown(ctx))
	}
	if a.otel != nil {
		errs = append(errs, a.otel.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
}
