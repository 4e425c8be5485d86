package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/vectorstore"
)

const backendName = "redis"

// Store is a vectorstore.Store over one FT index. The client is shared and
// owned by the caller; Close does not close it.
type Store struct {
	client rueidis.Client
	index  string
	prefix string
	dims   int
	opts   vectorstore.Options
	logger *zap.Logger
}

var _ vectorstore.Store = (*Store)(nil)

// NewConstructor binds a client. The index is named <indexPrefix><store name>.
func NewConstructor(client rueidis.Client, indexPrefix string) vectorstore.Constructor {
	return func(ctx context.Context, opts vectorstore.Options) (vectorstore.Store, error) {
		return Open(ctx, client, indexPrefix+opts.Name(), opts)
	}
}

// Open loads the index or, with opts.InitDocs, creates and fills it.
func Open(ctx context.Context, client rueidis.Client, index string, opts vectorstore.Options) (*Store, error) {
	if !validIdentifier(index) {
		return nil, &domain.ConfigurationError{Field: "redis index", Expected: errInvalidIndexName.Error(), Actual: fmt.Sprintf("%q", index)}
	}
	s := &Store{client: client, index: index, prefix: index + ":", opts: opts, logger: opts.Log()}

	dims, exists, err := s.indexDims(ctx)
	if err != nil {
		return nil, err
	}
	s.dims = dims

	if len(opts.InitDocs) > 0 {
		if err := s.AddDocuments(ctx, opts.InitDocs); err != nil {
			return nil, err
		}
		return s, nil
	}
	if !exists {
		return nil, fmt.Errorf("%w: redis index %s", domain.ErrStoreNotFound, index)
	}
	return s, nil
}

func (s *Store) Kind() vectorstore.Kind { return vectorstore.KindRedis }
func (s *Store) Dimension() int { return s.dims }

// AddDocuments stores every document as a hash in a single DoMulti round-trip.
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

	cmds := make([]rueidis.Completed, len(docs))
	keys := make([]string, len(docs))
	for i, d := range docs {
		meta, err := json.Marshal(d.Metadata.Clone())
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		keys[i] = s.prefix + uuid.NewString()
		cmds[i] = s.client.B().Hset().Key(keys[i]).FieldValue().
			FieldValue(fieldText, d.Text).
			FieldValue(fieldMetadata, string(meta)).
			FieldValue(fieldVector, vectorToBytes(vectors[i])).
			Build()
	}

	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return &domain.BackendError{Backend: backendName, Op: "HSET", Err: fmt.Errorf("key %s: %w", keys[i], err)}
		}
	}

	s.logger.Debug("Stored documents", zap.String("index", s.index), zap.Int("documents", len(docs)))
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
	return s.searchKNN(ctx, vec, k)
}

// Save is a no-op: writes are durable per server persistence settings.
func (s *Store) Save(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
