package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/tutorflow/internal/tlsutil"
)

// QdrantConfig configures the Qdrant VectorStore implementation.
//
// Notes:
// - Qdrant point IDs are UUIDs; a stable UUID is derived from Document.ID.
// - Document content/metadata are stored in payload.
type QdrantConfig struct {
	Host       string        `json:"host" yaml:"host"`
	Port       int           `json:"port" yaml:"port"`
	BaseURL    string        `json:"base_url,omitempty" yaml:"base_url"`
	APIKey     string        `json:"api_key,omitempty" yaml:"api_key"`
	Collection string        `json:"collection" yaml:"collection"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout"`

	Distance   string `json:"distance,omitempty" yaml:"distance"`       // Cosine (default), Dot, Euclid
	VectorSize int    `json:"vector_size,omitempty" yaml:"vector_size"` // Optional override; defaults to len(embedding)
}

const (
	qdrantIDField       = "doc_id"
	qdrantContentField  = "content"
	qdrantMetadataField = "metadata"
)

// QdrantStore implements VectorStore using Qdrant's REST API.
type QdrantStore struct {
	cfg      QdrantConfig
	embedder Embedder

	baseURL string
	client  *http.Client
	logger  *zap.Logger

	ensureMu sync.Mutex
	ensured  bool
}

// NewQdrantStore creates a Qdrant-backed VectorStore. The collection is
// created on first write.
func NewQdrantStore(cfg QdrantConfig, embedder Embedder, logger *zap.Logger) *QdrantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}

	return &QdrantStore{
		cfg:      cfg,
		embedder: embedder,
		baseURL:  baseURL,
		client:   tlsutil.NewHTTPClient(tlsutil.ClientOptions{Timeout: cfg.Timeout}),
		logger: logger.With(
			zap.String("component", "qdrant_store"),
			zap.String("collection", cfg.Collection)),
	}
}

var qdrantNamespace = uuid.MustParse("d9bde6d4-4f3a-4e6b-8f7a-5d8d2f3b4c1a")

func qdrantPointID(docID string) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(docID)).String()
}

// qdrantError 携带状态码，便于区分集合不存在
type qdrantError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *qdrantError) Error() string {
	return fmt.Sprintf("qdrant request failed: method=%s path=%s status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}

func (s *QdrantStore) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(s.cfg.Collection) + suffix
}

// ensureCollection 创建集合；失败时下次写入会重试，409 视为已存在。
func (s *QdrantStore) ensureCollection(ctx context.Context, vectorSize int) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.ensured {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": s.cfg.Distance,
		},
	}
	err := s.doJSON(ctx, http.MethodPut, s.collectionPath(""), body, nil)
	if qe, ok := err.(*qdrantError); ok && qe.Status == http.StatusConflict {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	s.ensured = true
	return nil
}

func (s *QdrantStore) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(s.cfg.APIKey) != "" {
		// Qdrant convention.
		req.Header.Set("api-key", s.cfg.APIKey)
	}
}

func (s *QdrantStore) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &qdrantError{Method: method, Path: path, Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// AddDocuments 嵌入并 upsert 文档
func (s *QdrantStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return fmt.Errorf("qdrant collection is required")
	}

	docs, err := embedMissing(ctx, s.embedder, docs)
	if err != nil {
		return err
	}

	vectorSize := s.cfg.VectorSize
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document[%d] has empty id", i)
		}
		if vectorSize == 0 {
			vectorSize = len(doc.Embedding)
		}
		if len(doc.Embedding) != vectorSize {
			return fmt.Errorf("document[%d] embedding dimension mismatch: got=%d want=%d", i, len(doc.Embedding), vectorSize)
		}
	}

	if err := s.ensureCollection(ctx, vectorSize); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float64      `json:"vector"`
		Payload map[string]any `json:"payload,omitempty"`
	}

	points := make([]point, 0, len(docs))
	for _, doc := range docs {
		points = append(points, point{
			ID:     qdrantPointID(doc.ID),
			Vector: doc.Embedding,
			Payload: map[string]any{
				qdrantIDField:       doc.ID,
				qdrantContentField:  doc.Content,
				qdrantMetadataField: doc.Metadata,
			},
		})
	}

	req := struct {
		Points []point `json:"points"`
	}{Points: points}

	if err := s.doJSON(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil); err != nil {
		return err
	}

	s.logger.Debug("qdrant upsert completed", zap.Int("count", len(docs)))
	return nil
}

// SimilaritySearch 嵌入查询并检索；集合不存在时返回空结果
func (s *QdrantStore) SimilaritySearch(ctx context.Context, query string, k int) ([]Document, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if k <= 0 {
		return []Document{}, nil
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("qdrant store: embedder is required")
	}
	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	req := struct {
		Vector      []float64 `json:"vector"`
		Limit       int       `json:"limit"`
		WithPayload bool      `json:"with_payload"`
	}{
		Vector:      queryEmbedding,
		Limit:       k,
		WithPayload: true,
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/search"), req, &resp); err != nil {
		if qe, ok := err.(*qdrantError); ok && qe.Status == http.StatusNotFound {
			return []Document{}, nil
		}
		return nil, err
	}

	out := make([]Document, 0, len(resp.Result))
	for _, r := range resp.Result {
		doc := Document{}
		if v, ok := r.Payload[qdrantIDField].(string); ok {
			doc.ID = v
		}
		if v, ok := r.Payload[qdrantContentField].(string); ok {
			doc.Content = v
		}
		if v, ok := r.Payload[qdrantMetadataField].(map[string]any); ok {
			doc.Metadata = v
		}
		if doc.ID == "" {
			doc.ID = fmt.Sprint(r.ID)
		}
		out = append(out, doc)
	}
	return out, nil
}

// Count 返回集合中的点数；集合不存在时为 0
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return 0, fmt.Errorf("qdrant collection is required")
	}

	req := struct {
		Exact bool `json:"exact"`
	}{Exact: true}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}

	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/count"), req, &resp); err != nil {
		if qe, ok := err.(*qdrantError); ok && qe.Status == http.StatusNotFound {
			return 0, nil
		}
		return 0, err
	}
	return resp.Result.Count, nil
}
