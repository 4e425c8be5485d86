package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/domain"
)

// ValidateDimension fails when a non-empty store holds vectors of a different
// size than the model produces.
func ValidateDimension(store Dimensioned, model EmbeddingsModel) error {
	if model == nil {
		return errors.New("embeddings model is required")
	}
	actual := store.Dimension()
	if actual == 0 {
		return nil
	}
	if actual != model.Dimensions() {
		return &domain.DimensionMismatchError{Expected: model.Dimensions(), Actual: actual}
	}
	return nil
}

// Open creates the store and validates it against the embeddings model. A
// store that fails validation is closed and never returned.
func Open(ctx context.Context, reg *Registry, kind string, opts Options) (Store, error) {
	store, err := reg.Create(ctx, kind, opts)
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", kind, err)
	}

	if err := ValidateDimension(store, opts.Model); err != nil {
		if cerr := store.Close(); cerr != nil {
			opts.Log().Warn("Failed to close rejected store", zap.Error(cerr))
		}
		return nil, err
	}

	opts.Log().Info("Vector store ready",
		zap.String("backend", string(store.Kind())),
		zap.Int("dimension", store.Dimension()),
		zap.Int("init_docs", len(opts.InitDocs)),
	)
	return store, nil
}
