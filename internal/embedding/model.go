// Package embedding describes embeddings models and wraps providers with
// batching and logging.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/docingest/internal/domain"
)

// Model is an embeddings model with a known output dimensionality.
type Model struct {
	Name string
	Dims int
}

func (m Model) ModelName() string { return m.Name }
func (m Model) Dimensions() int { return m.Dims }

// KnownDimensions lists output sizes of common models so no probe call is needed.
var KnownDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"all-mpnet-base-v2":      768,
	"all-MiniLM-L6-v2":       384,
	"embed-english-v3.0":     1024,
}

var knownProviders = []string{"openai", "azure_openai", "huggingface", "cohere"}

// ParseName splits a "<provider>_<model>" identifier such as
// "openai_text-embedding-ada-002". Names without a known provider prefix
// are returned whole with an empty provider.
func ParseName(name string) (provider, model string) {
	for _, p := range knownProviders {
		if rest, ok := strings.CutPrefix(name, p+"_"); ok && rest != "" {
			return p, rest
		}
	}
	return "", name
}

const probeText = "dimension probe"

// ResolveModel determines the dimensionality of model: configured dims win,
// then KnownDimensions, then a single probe call to e.
func ResolveModel(ctx context.Context, model string, dims int, e domain.Embedder) (Model, error) {
	if model == "" {
		return Model{}, &domain.ConfigurationError{Field: "embedding.model", Expected: "a model name", Actual: "empty"}
	}
	if dims < 0 {
		return Model{}, &domain.ConfigurationError{Field: "embedding.dimensions", Expected: ">= 0", Actual: fmt.Sprint(dims)}
	}
	if dims > 0 {
		return Model{Name: model, Dims: dims}, nil
	}

	short := model
	if i := strings.LastIndex(model, "/"); i >= 0 {
		short = model[i+1:]
	}
	if d, ok := KnownDimensions[short]; ok {
		return Model{Name: model, Dims: d}, nil
	}

	if e == nil {
		return Model{}, &domain.ConfigurationError{
			Field: "embedding.dimensions", Expected: "set for unknown model " + model, Actual: "0",
		}
	}
	res, err := e.Embed(ctx, probeText)
	if err != nil {
		return Model{}, fmt.Errorf("probe dimensions of %s: %w", model, err)
	}
	if len(res.Embedding) == 0 {
		return Model{}, fmt.Errorf("probe dimensions of %s: empty vector: %w", model, domain.ErrEmbeddingProviderError)
	}
	return Model{Name: model, Dims: len(res.Embedding)}, nil
}
