package faiss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/vectorstore"
)

// Persister loads and saves an Index. Load returns an error wrapping
// domain.ErrStoreNotFound when nothing is persisted yet.
type Persister interface {
	Load(ctx context.Context) (*Index, error)
	Persist(ctx context.Context, ix *Index) error
}

// Store is a vectorstore.Store over an in-memory Index.
type Store struct {
	kind      vectorstore.Kind
	index     *Index
	persister Persister
	opts      vectorstore.Options
	logger    *zap.Logger
}

var _ vectorstore.Store = (*Store)(nil)

// Open builds a store from opts.InitDocs, or loads it through p.
func Open(ctx context.Context, kind vectorstore.Kind, p Persister, opts vectorstore.Options) (*Store, error) {
	s := &Store{kind: kind, persister: p, opts: opts, logger: opts.Log()}

	if len(opts.InitDocs) > 0 {
		s.index = NewIndex(0)
		if err := s.AddDocuments(ctx, opts.InitDocs); err != nil {
			return nil, fmt.Errorf("build index: %w", err)
		}
		s.logger.Info("Index built", zap.String("backend", string(kind)), zap.Int("documents", s.index.Len()))
		return s, nil
	}

	ix, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	s.index = ix
	s.logger.Info("Index loaded", zap.String("backend", string(kind)), zap.Int("documents", ix.Len()))
	return s, nil
}

// New is the local-disk constructor: the index lives in directory opts.Path.
func New(ctx context.Context, opts vectorstore.Options) (vectorstore.Store, error) {
	if opts.Path == "" {
		return nil, &domain.ConfigurationError{Field: "vector_store.path", Expected: "a directory", Actual: "empty"}
	}
	return Open(ctx, vectorstore.KindFAISS, &DirPersister{Dir: opts.Path}, opts)
}

func (s *Store) Kind() vectorstore.Kind { return s.kind }
func (s *Store) Dimension() int { return s.index.Dimension() }

// Index exposes the underlying index.
func (s *Store) Index() *Index { return s.index }

func (s *Store) AddDocuments(ctx context.Context, docs []domain.Document) error {
	vectors, err := vectorstore.EmbedDocuments(ctx, s.opts, docs)
	if err != nil {
		return err
	}
	return s.index.Add(docs, vectors)
}

func (s *Store) SimilaritySearch(ctx context.Context, query string, k int) ([]vectorstore.Result, error) {
	vec, err := vectorstore.EmbedQuery(ctx, s.opts, query)
	if err != nil {
		return nil, err
	}
	return s.index.Search(vec, k)
}

func (s *Store) Save(ctx context.Context) error {
	if err := s.persister.Persist(ctx, s.index); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

// DirPersister keeps the index files in a local directory.
type DirPersister struct {
	Dir string
}

func (p *DirPersister) Load(_ context.Context) (*Index, error) {
	vf, err := os.Open(filepath.Join(p.Dir, IndexFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrStoreNotFound, p.Dir)
		}
		return nil, fmt.Errorf("open vectors: %w", err)
	}
	defer func() { _ = vf.Close() }()

	df, err := os.Open(filepath.Join(p.Dir, DocstoreFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s has no docstore", domain.ErrStoreNotFound, p.Dir)
		}
		return nil, fmt.Errorf("open docstore: %w", err)
	}
	defer func() { _ = df.Close() }()

	return ReadIndex(vf, df)
}

func (p *DirPersister) Persist(_ context.Context, ix *Index) error {
	if err := os.MkdirAll(p.Dir, 0o750); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(p.Dir, IndexFile), ix.WriteVectors); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(p.Dir, DocstoreFile), ix.WriteDocstore)
}

func writeFileAtomic(path string, write func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
