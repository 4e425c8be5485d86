// Package ingest turns input directories into vector stores or generated
// documentation, one output folder per input directory.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/chunking"
	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/metrics"
	"github.com/kailas-cloud/docingest/internal/reader"
	"github.com/kailas-cloud/docingest/internal/vectorstore"
)

// Mode selects what happens to grouped chunks.
type Mode string

// Ingest modes.
const (
	ModeStore Mode = "store"
	ModeDocs  Mode = "docs"
)

// sampleSize is how many grouped chunks a sampled run logs.
const sampleSize = 5

// Request describes one ingest run.
type Request struct {
	Dirs           []string
	Files          []string // overrides directory scanning in every folder
	Recursive      bool
	Exts           []string
	Limit          int
	ExcludeHidden  bool
	Bounds         chunking.Bounds
	Sample         bool
	Mode           Mode
	Backend        string
	Upload         bool
	StrictDecoding bool // fail the folder on an undecodable file instead of skipping it
}

// FolderResult reports what one input directory produced.
type FolderResult struct {
	Folder     string
	Dir        string
	Documents  int
	Chunks     int
	Skipped    int
	OutputPath string
}

// Summary reports a finished run.
type Summary struct {
	Folders  []FolderResult
	Uploaded int
}

// Pipeline reads, groups and persists documents.
type Pipeline struct {
	registry  *vectorstore.Registry
	embedder  domain.Embedder
	model     vectorstore.EmbeddingsModel
	grouper   *chunking.Grouper
	outputDir string
	docs      DocGenerator
	uploader  DirUploader
	logger    *zap.Logger
}

// New creates a pipeline writing under outputDir.
func New(
	registry *vectorstore.Registry,
	embedder domain.Embedder,
	model vectorstore.EmbeddingsModel,
	outputDir string,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		registry:  registry,
		embedder:  embedder,
		model:     model,
		grouper:   chunking.NewGrouper(nil).WithLogger(logger),
		outputDir: outputDir,
		logger:    logger,
	}
}

// WithDocGenerator enables ModeDocs.
func (p *Pipeline) WithDocGenerator(g DocGenerator) *Pipeline {
	p.docs = g
	return p
}

// WithUploader enables Request.Upload.
func (p *Pipeline) WithUploader(u DirUploader) *Pipeline {
	p.uploader = u
	return p
}

// WithGrouper replaces the default chunk grouper.
func (p *Pipeline) WithGrouper(g *chunking.Grouper) *Pipeline {
	p.grouper = g
	return p
}

// FolderNames derives output folder names from directory base names. Repeated
// names get _2, _3 and so on, in input order.
func FolderNames(dirs []string) []string {
	counts := make(map[string]int, len(dirs))
	names := make([]string, 0, len(dirs))
	for _, d := range dirs {
		name := filepath.Base(filepath.Clean(d))
		counts[name]++
		if n := counts[name]; n > 1 {
			name += "_" + strconv.Itoa(n)
		}
		names = append(names, name)
	}
	return names
}

// Run processes every directory in order and stops at the first failure.
func (p *Pipeline) Run(ctx context.Context, req Request) (Summary, error) {
	if err := p.validate(&req); err != nil {
		return Summary{}, err
	}

	var sum Summary
	for i, folder := range FolderNames(req.Dirs) {
		res, err := p.runFolder(ctx, req, req.Dirs[i], folder)
		if err != nil {
			return sum, fmt.Errorf("ingest %s: %w", req.Dirs[i], err)
		}
		sum.Folders = append(sum.Folders, res)
	}

	if req.Upload {
		n, err := p.uploader.UploadDir(ctx, p.outputDir)
		if err != nil {
			return sum, fmt.Errorf("upload outputs: %w", err)
		}
		sum.Uploaded = n
	}
	return sum, nil
}

func (p *Pipeline) validate(req *Request) error {
	if req.Mode == "" {
		req.Mode = ModeStore
	}
	if len(req.Dirs) == 0 {
		return &domain.ConfigurationError{Field: "dirs", Expected: "at least one directory", Actual: "none"}
	}
	if err := req.Bounds.Validate(); err != nil {
		return err
	}

	switch req.Mode {
	case ModeStore:
		if p.model == nil {
			return errors.New("embeddings model is required in store mode")
		}
	case ModeDocs:
		if p.docs == nil {
			return &domain.ConfigurationError{Field: "llm", Expected: "a configured chat model", Actual: "none"}
		}
	default:
		return &domain.ConfigurationError{
			Field:    "mode",
			Expected: string(ModeStore) + " or " + string(ModeDocs),
			Actual:   string(req.Mode),
		}
	}

	if req.Upload && p.uploader == nil {
		return &domain.ConfigurationError{Field: "aws.bucket", Expected: "a bucket name", Actual: "empty"}
	}
	return nil
}

func (p *Pipeline) runFolder(ctx context.Context, req Request, dir, folder string) (res FolderResult, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.IngestDuration.WithLabelValues(string(req.Mode), status).Observe(time.Since(start).Seconds())
	}()

	log := p.logger.With(zap.String("folder", folder), zap.String("dir", dir))
	res = FolderResult{Folder: folder, Dir: dir}

	r := reader.New(reader.Options{
		InputDir:      dir,
		InputFiles:    req.Files,
		Recursive:     req.Recursive,
		RequiredExts:  req.Exts,
		Limit:         req.Limit,
		ExcludeHidden: req.ExcludeHidden,
	}, log)

	raw, loadErr := r.Load(ctx)
	if loadErr != nil && !errors.Is(loadErr, domain.ErrDecoding) {
		return res, fmt.Errorf("read documents: %w", loadErr)
	}
	if loadErr != nil && req.StrictDecoding {
		return res, fmt.Errorf("read documents: %w", loadErr)
	}
	if loadErr != nil {
		res.Skipped = countDecoding(loadErr)
		metrics.DecodeFailuresTotal.WithLabelValues(folder).Add(float64(res.Skipped))
		log.Warn("Skipped undecodable files", zap.Int("count", res.Skipped), zap.Error(loadErr))
	}
	res.Documents = len(raw)
	metrics.DocumentsReadTotal.WithLabelValues(folder).Add(float64(len(raw)))

	docs, err := p.grouper.Group(raw, req.Bounds)
	if err != nil {
		return res, fmt.Errorf("group documents: %w", err)
	}
	res.Chunks = len(docs)
	metrics.ChunksEmittedTotal.WithLabelValues(folder).Add(float64(len(docs)))

	log.Info("Documents grouped",
		zap.Int("documents", res.Documents),
		zap.Int("chunks", res.Chunks),
		zap.Bool("token_check", req.Bounds.TokenCheck),
	)

	if req.Sample {
		for i, d := range docs[:min(sampleSize, len(docs))] {
			log.Info("Sample chunk", zap.Int("index", i), zap.String("text", d.Text))
		}
	}

	if len(docs) == 0 {
		log.Warn("No content to ingest")
		return res, nil
	}

	switch req.Mode {
	case ModeDocs:
		out, err := p.docs.Generate(ctx, folder, docs)
		if err != nil {
			return res, fmt.Errorf("generate docs: %w", err)
		}
		if len(out.Files) > 0 {
			res.OutputPath = filepath.Dir(out.Files[0])
		}
	default:
		path, err := p.buildStore(ctx, req.Backend, folder, docs)
		if err != nil {
			return res, err
		}
		res.OutputPath = path
	}
	return res, nil
}

func (p *Pipeline) buildStore(ctx context.Context, backend, folder string, docs []domain.Document) (string, error) {
	path := filepath.Join(p.outputDir, folder)

	store, err := vectorstore.Open(ctx, p.registry, backend, vectorstore.Options{
		Path:     path,
		Embedder: p.embedder,
		Model:    p.model,
		InitDocs: docs,
		Logger:   p.logger,
	})
	if err != nil {
		return "", fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			p.logger.Warn("Failed to close store", zap.Error(cerr))
		}
	}()

	if err := store.Save(ctx); err != nil {
		return "", fmt.Errorf("save store: %w", err)
	}
	return path, nil
}

func countDecoding(err error) int {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		n := 0
		for _, e := range joined.Unwrap() {
			if errors.Is(e, domain.ErrDecoding) {
				n++
			}
		}
		return n
	}
	return 1
}
