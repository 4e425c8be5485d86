package search

import (
	"context"

	"github.com/kailas-cloud/docingest/internal/vectorstore"
)

// Searcher runs similarity search against an opened store.
type Searcher interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]vectorstore.Result, error)
}
