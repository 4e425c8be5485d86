// Package elastic stores documents in an Elasticsearch index with a
// dense_vector field and searches them with approximate kNN.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/vectorstore"
)

const (
	backendName = "elasticsearch"
	vectorField = "vector"
)

// Config holds connection parameters.
type Config struct {
	Addresses []string
	CloudID   string
	Username  string
	Password  string
	APIKey    string
}

// NewClient creates an Elasticsearch client from config.
func NewClient(cfg Config) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		CloudID:   cfg.CloudID,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return client, nil
}

// Store is a vectorstore.Store over one Elasticsearch index.
type Store struct {
	client *elasticsearch.Client
	index  string
	dims   int
	opts   vectorstore.Options
	logger *zap.Logger
}

var _ vectorstore.Store = (*Store)(nil)

// NewConstructor binds the client and index name. An empty index falls back
// to the lower-cased store name.
func NewConstructor(client *elasticsearch.Client, index string) vectorstore.Constructor {
	return func(ctx context.Context, opts vectorstore.Options) (vectorstore.Store, error) {
		name := index
		if name == "" {
			name = strings.ToLower(opts.Name())
		}
		if name == "" {
			return nil, &domain.ConfigurationError{Field: "elasticsearch.index", Expected: "an index name", Actual: "empty"}
		}
		return Open(ctx, client, name, opts)
	}
}

// Open loads an existing index or, with opts.InitDocs, creates and fills it.
func Open(ctx context.Context, client *elasticsearch.Client, index string, opts vectorstore.Options) (*Store, error) {
	s := &Store{client: client, index: index, opts: opts, logger: opts.Log()}

	exists, err := s.indexExists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		if s.dims, err = s.mappedDims(ctx); err != nil {
			return nil, err
		}
	}

	if len(opts.InitDocs) > 0 {
		if err := s.AddDocuments(ctx, opts.InitDocs); err != nil {
			return nil, err
		}
		return s, nil
	}
	if !exists {
		return nil, fmt.Errorf("%w: elasticsearch index %s", domain.ErrStoreNotFound, index)
	}
	return s, nil
}

func (s *Store) Kind() vectorstore.Kind { return vectorstore.KindElasticsearch }
func (s *Store) Dimension() int { return s.dims }

func (s *Store) AddDocuments(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	vectors, err := vectorstore.EmbedDocuments(ctx, s.opts, docs)
	if err != nil {
		return err
	}

	if s.dims == 0 {
		if err := s.createIndex(ctx, len(vectors[0])); err != nil {
			return err
		}
	} else if len(vectors[0]) != s.dims {
		return &domain.DimensionMismatchError{Expected: len(vectors[0]), Actual: s.dims}
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for i, d := range docs {
		action := map[string]any{"index": map[string]any{"_index": s.index, "_id": uuid.NewString()}}
		source := map[string]any{"text": d.Text, "metadata": d.Metadata.Clone(), vectorField: vectors[i]}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(source); err != nil {
			return fmt.Errorf("encode bulk source: %w", err)
		}
	}

	res, err := s.client.Bulk(&body, s.client.Bulk.WithContext(ctx), s.client.Bulk.WithIndex(s.index))
	if err := checkResponse(res, err, "bulk"); err != nil {
		return err
	}
	defer closeBody(res)

	var out struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return &domain.BackendError{Backend: backendName, Op: "bulk", Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Errors {
		failed := 0
		var first string
		for _, item := range out.Items {
			for _, r := range item {
				if r.Status >= http.StatusMultipleChoices {
					failed++
					if first == "" {
						first = r.Error.Type + ": " + r.Error.Reason
					}
				}
			}
		}
		return &domain.BackendError{
			Backend: backendName, Op: "bulk",
			Err: fmt.Errorf("%d of %d documents rejected, first: %s", failed, len(docs), first),
		}
	}

	s.logger.Debug("Bulk indexed documents", zap.String("index", s.index), zap.Int("documents", len(docs)))
	return nil
}

func (s *Store) SimilaritySearch(ctx context.Context, query string, k int) ([]vectorstore.Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	vec, err := vectorstore.EmbedQuery(ctx, s.opts, query)
	if err != nil {
		return nil, err
	}

	req := map[string]any{
		"size": k,
		"knn": map[string]any{
			"field":          vectorField,
			"query_vector":   vec,
			"k":              k,
			"num_candidates": max(100, k*10),
		},
		"_source": []string{"text", "metadata"},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode search: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err := checkResponse(res, err, "search"); err != nil {
		return nil, err
	}
	defer closeBody(res)

	var out struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					Text     string          `json:"text"`
					Metadata domain.Metadata `json:"metadata"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, &domain.BackendError{Backend: backendName, Op: "search", Err: fmt.Errorf("decode response: %w", err)}
	}

	results := make([]vectorstore.Result, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		results = append(results, vectorstore.Result{
			Document: domain.Document{Text: h.Source.Text, Metadata: h.Source.Metadata},
			Score:    h.Score,
		})
	}
	return results, nil
}

// Save refreshes the index so written documents become searchable.
func (s *Store) Save(ctx context.Context) error {
	res, err := s.client.Indices.Refresh(
		s.client.Indices.Refresh.WithContext(ctx),
		s.client.Indices.Refresh.WithIndex(s.index),
	)
	if err := checkResponse(res, err, "refresh"); err != nil {
		return err
	}
	closeBody(res)
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) indexExists(ctx context.Context) (bool, error) {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, &domain.BackendError{Backend: backendName, Op: "exists", Err: err}
	}
	defer closeBody(res)

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &domain.BackendError{Backend: backendName, Op: "exists", Err: fmt.Errorf("status %s", res.Status())}
	}
}

func (s *Store) createIndex(ctx context.Context, dims int) error {
	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"text":     map[string]any{"type": "text"},
				"metadata": map[string]any{"type": "object"},
				vectorField: map[string]any{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}

	res, err := s.client.Indices.Create(s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err := checkResponse(res, err, "create index"); err != nil {
		return err
	}
	closeBody(res)

	s.dims = dims
	s.logger.Info("Elasticsearch index created", zap.String("index", s.index), zap.Int("dims", dims))
	return nil
}

// mappedDims reads the dense_vector dims from the index mapping.
func (s *Store) mappedDims(ctx context.Context) (int, error) {
	res, err := s.client.Indices.GetMapping(
		s.client.Indices.GetMapping.WithContext(ctx),
		s.client.Indices.GetMapping.WithIndex(s.index),
	)
	if err := checkResponse(res, err, "get mapping"); err != nil {
		return 0, err
	}
	defer closeBody(res)

	var out map[string]struct {
		Mappings struct {
			Properties map[string]struct {
				Type string `json:"type"`
				Dims int    `json:"dims"`
			} `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, &domain.BackendError{Backend: backendName, Op: "get mapping", Err: fmt.Errorf("decode response: %w", err)}
	}
	idx, ok := out[s.index]
	if !ok {
		return 0, nil
	}
	field, ok := idx.Mappings.Properties[vectorField]
	if !ok || field.Type != "dense_vector" {
		return 0, nil
	}
	return field.Dims, nil
}

func checkResponse(res *esapi.Response, err error, op string) error {
	if err != nil {
		return &domain.BackendError{Backend: backendName, Op: op, Err: err}
	}
	if res.IsError() {
		defer closeBody(res)
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return &domain.BackendError{Backend: backendName, Op: op, Err: fmt.Errorf("status %s: %s", res.Status(), bytes.TrimSpace(msg))}
	}
	return nil
}

func closeBody(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}
}
