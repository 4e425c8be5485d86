// Package cache keeps embeddings in a key-value store so unchanged chunks are
// not re-embedded on the next ingest run.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/metrics"
)

// ErrMiss is returned by a KV when the key does not exist.
var ErrMiss = errors.New("cache miss")

// KV is the storage the cache needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Embedder serves embeddings from the KV and forwards misses to inner.
// Keys are namespaced by model, so switching models never returns stale vectors.
type Embedder struct {
	inner  domain.Embedder
	kv     KV
	prefix string
	logger *zap.Logger
}

var (
	_ domain.Embedder      = (*Embedder)(nil)
	_ domain.BatchEmbedder = (*Embedder)(nil)
	_ domain.HealthChecker = (*Embedder)(nil)
)

// New creates a caching decorator. prefix is prepended to every key.
func New(inner domain.Embedder, kv KV, prefix, model string, logger *zap.Logger) *Embedder {
	return &Embedder{
		inner:  inner,
		kv:     kv,
		prefix: prefix + "emb:" + model + ":",
		logger: logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// A hit reports zero tokens.
func (c *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.key(text)
	if vec, ok := c.get(ctx, key); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()

	res, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	c.put(ctx, key, res.Embedding)
	return res, nil
}

// BatchEmbed sends only the misses to the inner embedder, in one batch.
func (c *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	var (
		missIdx   []int
		missTexts []string
	)
	for i, t := range texts {
		keys[i] = c.key(t)
		if vec, ok := c.get(ctx, keys[i]); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("hit").Add(float64(len(texts) - len(missIdx)))
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Add(float64(len(missIdx)))

	if len(missTexts) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: out}, nil
	}

	res, err := domain.EmbedTexts(ctx, c.inner, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	if len(res.Embeddings) != len(missTexts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("%w: expected %d embeddings, got %d",
			domain.ErrEmbeddingProviderError, len(missTexts), len(res.Embeddings))
	}
	for j, i := range missIdx {
		out[i] = res.Embeddings[j]
		c.put(ctx, keys[i], res.Embeddings[j])
	}

	c.logger.Debug("Embedding cache batch",
		zap.Int("texts", len(texts)),
		zap.Int("misses", len(missIdx)),
	)
	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (c *Embedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (c *Embedder) key(text string) string {
	h := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(h[:])
}

// get treats every KV failure as a miss; the cache never fails an ingest.
func (c *Embedder) get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := decode(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *Embedder) put(ctx context.Context, key string, vec []float32) {
	if err := c.kv.Set(ctx, key, encode(vec)); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decode(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
