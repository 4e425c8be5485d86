// Package vectorstore selects, opens and validates vector store backends.
package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/domain"
)

// Kind identifies a vector store backend.
type Kind string

// Supported backends.
const (
	KindFAISS         Kind = "faiss"
	KindElasticsearch Kind = "elasticsearch"
	KindS3            Kind = "s3"
	KindRedis         Kind = "redis"
)

// Dimensioned reports the dimensionality of persisted vectors; 0 when empty.
type Dimensioned interface {
	Dimension() int
}

// EmbeddingsModel describes the embeddings model bound to a store.
type EmbeddingsModel interface {
	ModelName() string
	Dimensions() int
}

// Store is an opened vector store. A Store is owned by one session and is
// not safe for concurrent writers.
type Store interface {
	Dimensioned
	Kind() Kind
	AddDocuments(ctx context.Context, docs []domain.Document) error
	SimilaritySearch(ctx context.Context, query string, k int) ([]Result, error)
	Save(ctx context.Context) error
	Close() error
}

// Result is a single similarity search hit. Higher Score is more similar.
type Result struct {
	Document domain.Document
	Score    float64
}

// Options are passed to every backend constructor.
type Options struct {
	// Path locates the persisted store (directory, object prefix or index name).
	Path     string
	Embedder domain.Embedder
	Model    EmbeddingsModel
	// InitDocs, when non-empty, makes the constructor build a new store from
	// these documents instead of loading the one at Path.
	InitDocs []domain.Document
	Logger   *zap.Logger
}

// Log returns the configured logger or a no-op one.
func (o Options) Log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Name is the last element of Path. Backends that address stores by name
// (index names, key prefixes) use it instead of the full path.
func (o Options) Name() string {
	if o.Path == "" {
		return ""
	}
	return filepath.Base(filepath.Clean(o.Path))
}

// EmbedDocuments vectorizes document texts and checks that every vector has
// the dimensionality the model declares.
func EmbedDocuments(ctx context.Context, opts Options, docs []domain.Document) ([][]float32, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if opts.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	res, err := domain.EmbedTexts(ctx, opts.Embedder, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(res.Embeddings) != len(docs) {
		return nil, fmt.Errorf("embed documents: got %d vectors for %d documents", len(res.Embeddings), len(docs))
	}
	if err := checkVectors(opts.Model, res.Embeddings); err != nil {
		return nil, err
	}
	return res.Embeddings, nil
}

// EmbedQuery vectorizes a single search query.
func EmbedQuery(ctx context.Context, opts Options, query string) ([]float32, error) {
	if opts.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	res, err := opts.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := checkVectors(opts.Model, [][]float32{res.Embedding}); err != nil {
		return nil, err
	}
	return res.Embedding, nil
}

func checkVectors(model EmbeddingsModel, vectors [][]float32) error {
	if model == nil || model.Dimensions() == 0 {
		return nil
	}
	for _, v := range vectors {
		if len(v) != model.Dimensions() {
			return &domain.DimensionMismatchError{Expected: model.Dimensions(), Actual: len(v)}
		}
	}
	return nil
}
