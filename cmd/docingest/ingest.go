package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/chunking"
	"github.com/kailas-cloud/docingest/internal/config"
	"github.com/kailas-cloud/docingest/internal/docgen"
	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/ingest"
	"github.com/kailas-cloud/docingest/internal/vectorstore"
)

type ingestFlags struct {
	yes        bool
	dirs       []string
	files      []string
	recursive  bool
	limit      int
	formats    []string
	exclude    bool
	sample     bool
	tokenCheck bool
	minTokens  int
	maxTokens  int
	s3Upload   bool
	mode       string
	backend    string
	strict     bool
}

func newIngestCmd(a *app) *cobra.Command {
	f := &ingestFlags{}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Create vector stores or documentation from input folders",
		Long: `Reads every --dir (default: inputs), groups small documents and splits large
ones against the token bounds, then embeds the chunks into the configured
vector store under <output_dir>/<folder>. Repeated folder names get _2, _3
suffixes. With --mode docs a chat model writes Markdown instead; the cost
estimate is printed and nothing is sent unless --yes is given.`,
		Example: `  docingest ingest --dir inputs --dir inputs2
  docingest ingest --file inputs/1.md --file inputs/2.md
  docingest ingest --formats .md,.pdf --max-tokens 1000 --backend redis
  docingest ingest --mode docs --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, a, f)
		},
	}

	fl := cmd.Flags()
	fl.BoolVarP(&f.yes, "yes", "y", false, "skip the cost check and call the chat model in docs mode")
	fl.StringArrayVar(&f.dirs, "dir", nil, "input directory, repeatable (default from config: inputs)")
	fl.StringArrayVar(&f.files, "file", nil, "input file, repeatable; overrides directory scanning")
	fl.BoolVar(&f.recursive, "recursive", true, "search subdirectories")
	fl.IntVar(&f.limit, "limit", 0, "maximum number of files to read (0 = no limit)")
	fl.StringSliceVar(&f.formats, "formats", nil, "required extensions with dot, e.g. .rst,.md,.pdf")
	fl.BoolVar(&f.exclude, "exclude", true, "exclude hidden files and directories")
	fl.BoolVar(&f.sample, "sample", false, "log the first 5 grouped chunks")
	fl.BoolVar(&f.tokenCheck, "token-check", true, "group small documents and split large ones")
	fl.IntVar(&f.minTokens, "min-tokens", 0, "minimum tokens of a chunk that is not grouped (default from config: 150)")
	fl.IntVar(&f.maxTokens, "max-tokens", 0, "maximum tokens of a chunk that is not split (default from config: 2000)")
	fl.BoolVar(&f.s3Upload, "s3-upload", false, "upload the output directory to aws.bucket afterwards")
	fl.StringVar(&f.mode, "mode", "", "store or docs (default from config: store)")
	fl.StringVar(&f.backend, "backend", "", "faiss, s3, elasticsearch or redis (default from config)")
	fl.BoolVar(&f.strict, "strict", false, "fail on undecodable files instead of skipping them")

	return cmd
}

// buildRequest merges flags over config defaults.
func buildRequest(f *ingestFlags, cfg config.Config) ingest.Request {
	req := ingest.Request{
		Dirs:          f.dirs,
		Files:         f.files,
		Recursive:     f.recursive,
		Exts:          f.formats,
		Limit:         f.limit,
		ExcludeHidden: f.exclude,
		Bounds: chunking.Bounds{
			MinTokens:  cfg.Ingest.MinTokens,
			MaxTokens:  cfg.Ingest.MaxTokens,
			TokenCheck: f.tokenCheck,
		},
		Sample:  f.sample,
		Mode:    ingest.Mode(cfg.Ingest.Mode),
		Backend: cfg.VectorStore.Backend,
		Upload:  f.s3Upload,

		StrictDecoding: f.strict || cfg.Ingest.StrictDecoding,
	}
	if len(req.Dirs) == 0 {
		req.Dirs = cfg.Ingest.Dirs
	}
	if len(req.Exts) == 0 {
		req.Exts = cfg.Ingest.Formats
	}
	if f.minTokens > 0 {
		req.Bounds.MinTokens = f.minTokens
	}
	if f.maxTokens > 0 {
		req.Bounds.MaxTokens = f.maxTokens
	}
	if f.mode != "" {
		req.Mode = ingest.Mode(strings.ToLower(f.mode))
	}
	if f.backend != "" {
		req.Backend = f.backend
	}
	return req
}

func runIngest(cmd *cobra.Command, a *app, f *ingestFlags) error {
	ctx := cmd.Context()
	req := buildRequest(f, a.cfg)

	b := newBackends(a.cfg, a.logger)
	defer b.Close()

	var (
		embedder domain.Embedder
		model    vectorstore.EmbeddingsModel
	)
	if req.Mode == ingest.ModeStore {
		e, m, err := buildEmbedder(ctx, a.cfg.Embedding, a.logger)
		if err != nil {
			return fmt.Errorf("embeddings: %w", err)
		}
		if e, err = b.withCache(ctx, e, m.Name); err != nil {
			return err
		}
		embedder, model = e, m
	}

	pipeline := ingest.New(b.Registry(), embedder, model, a.cfg.Ingest.OutputDir, a.logger)

	if req.Mode == ingest.ModeDocs {
		gen, err := buildGenerator(a.cfg.LLM, a.cfg.Ingest.OutputDir, a.logger)
		if err != nil {
			return err
		}
		if f.yes {
			pipeline.WithDocGenerator(gen)
		} else {
			pipeline.WithDocGenerator(&costReport{gen: gen, out: cmd.OutOrStdout()})
		}
	}

	if req.Upload {
		up, err := buildUploader(ctx, b)
		if err != nil {
			return err
		}
		pipeline.WithUploader(up)
	}

	sum, err := pipeline.Run(ctx, req)
	for _, r := range sum.Folders {
		a.logger.Info("Folder ingested",
			zap.String("folder", r.Folder),
			zap.Int("documents", r.Documents),
			zap.Int("chunks", r.Chunks),
			zap.Int("skipped", r.Skipped),
			zap.String("output", r.OutputPath),
		)
	}
	if err != nil {
		return err
	}
	if req.Upload {
		a.logger.Info("Uploaded outputs", zap.Int("files", sum.Uploaded), zap.String("bucket", a.cfg.AWS.Bucket))
	}
	return nil
}

// costReport stands in for the generator when --yes is absent: it prints the
// estimate and sends nothing.
type costReport struct {
	gen *docgen.Generator
	out io.Writer
}

func (c *costReport) Generate(_ context.Context, folder string, docs []domain.Document) (docgen.Result, error) {
	est := c.gen.EstimateCost(docs)
	fmt.Fprintf(c.out, "%s: %d chunks, ~%d tokens, estimated cost $%.4f (rerun with --yes to generate)\n",
		folder, est.Documents, est.Tokens, est.CostUSD)
	return docgen.Result{}, nil
}
