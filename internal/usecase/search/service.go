package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/vectorstore"
)

// Search limits.
const (
	DefaultTopK = 4
	MaxTopK     = 100
)

// Request is a validated query.
type Request struct {
	Query    string
	TopK     int
	MinScore float64
}

// NewRequest validates a query. topK 0 selects DefaultTopK.
func NewRequest(query string, topK int, minScore float64) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, &domain.ConfigurationError{Field: "query", Expected: "non-empty text", Actual: "empty"}
	}
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK < 0 || topK > MaxTopK {
		return Request{}, &domain.ConfigurationError{
			Field:    "k",
			Expected: "between 1 and " + strconv.Itoa(MaxTopK),
			Actual:   strconv.Itoa(topK),
		}
	}
	if minScore < 0 {
		return Request{}, &domain.ConfigurationError{
			Field:    "min_score",
			Expected: ">= 0",
			Actual:   strconv.FormatFloat(minScore, 'g', -1, 64),
		}
	}
	return Request{Query: query, TopK: topK, MinScore: minScore}, nil
}

// Service answers queries against one vector store.
type Service struct {
	store Searcher
}

// New creates a search service.
func New(store Searcher) *Service {
	return &Service{store: store}
}

// Search embeds the query through the store and drops hits below MinScore.
func (s *Service) Search(ctx context.Context, req Request) ([]vectorstore.Result, error) {
	results, err := s.store.SimilaritySearch(ctx, req.Query, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	// Post-filter: min_score
	if req.MinScore > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= req.MinScore {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	if len(results) > req.TopK {
		results = results[:req.TopK]
	}
	return results, nil
}
