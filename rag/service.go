package rag

import (
	"context"
	"sync"
)

// ServiceConfig 服务级管线参数
type ServiceConfig struct {
	NumResults int
	RetrieveK  int
}

// Service 按集合组装检索管线，同一集合的摄取串行执行。
type Service struct {
	factory *VectorStoreFactory
	deps    Dependencies
	cfg     ServiceConfig
	opts    []Option

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService 创建检索服务
func NewService(factory *VectorStoreFactory, deps Dependencies, cfg ServiceConfig, opts ...Option) *Service {
	return &Service{
		factory: factory,
		deps:    deps,
		cfg:     cfg,
		opts:    opts,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Service) collectionLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// Pipeline 返回 collection 对应的管线
func (s *Service) Pipeline(ctx context.Context, collection string) (*Pipeline, error) {
	store, err := s.factory.Open(ctx, collection)
	if err != nil {
		return nil, err
	}
	name := s.factory.CollectionName(collection)
	p, err := NewPipeline(PipelineConfig{
		Collection: name,
		NumResults: s.cfg.NumResults,
		RetrieveK:  s.cfg.RetrieveK,
	}, store, s.deps, s.opts...)
	if err != nil {
		return nil, err
	}
	p.lock = s.collectionLock(name)
	return p, nil
}

// RunRetrieval 为 query 摄取网络内容到 collection，并返回最相关的文档
func (s *Service) RunRetrieval(ctx context.Context, query, collection string) ([]Document, error) {
	p, err := s.Pipeline(ctx, collection)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, query)
}

// Ingest 只执行摄取
func (s *Service) Ingest(ctx context.Context, query, collection string) (*IngestReport, error) {
	p, err := s.Pipeline(ctx, collection)
	if err != nil {
		return nil, err
	}
	return p.SearchAndStore(ctx, query)
}

// Retrieve 只执行检索
func (s *Service) Retrieve(ctx context.Context, query, collection string, k int) ([]Document, error) {
	p, err := s.Pipeline(ctx, collection)
	if err != nil {
		return nil, err
	}
	return p.Retrieve(ctx, query, k)
}
