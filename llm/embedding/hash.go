package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"time"
	"unicode"
)

// DefaultHashDimensions is the vector size of HashProvider when unset.
const DefaultHashDimensions = 256

// HashProvider is a deterministic bag-of-words embedder using feature hashing.
// It needs no network access; texts sharing words get similar vectors.
type HashProvider struct {
	dims int
}

// NewHashProvider creates a HashProvider with dims dimensions.
func NewHashProvider(dims int) *HashProvider {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashProvider{dims: dims}
}

func (p *HashProvider) Name() string      { return "hash" }
func (p *HashProvider) Dimensions() int   { return p.dims }
func (p *HashProvider) MaxBatchSize() int { return math.MaxInt32 }

// Embed generates embeddings for the given inputs.
func (p *HashProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]EmbeddingData, len(req.Input))
	for i, text := range req.Input {
		out[i] = EmbeddingData{Index: i, Embedding: p.vector(text), Object: "embedding"}
	}
	return &EmbeddingResponse{
		Provider:   p.Name(),
		Model:      "feature-hash",
		Embeddings: out,
		CreatedAt:  time.Now(),
	}, nil
}

// EmbedQuery embeds a single query.
func (p *HashProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.vector(query), nil
}

// EmbedDocuments embeds multiple documents.
func (p *HashProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float64, len(documents))
	for i, d := range documents {
		out[i] = p.vector(d)
	}
	return out, nil
}

func (p *HashProvider) vector(text string) []float64 {
	v := make([]float64, p.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		idx := int(sum % uint64(p.dims))
		// 高位决定符号，减少碰撞带来的偏差
		if sum>>63 == 1 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}
