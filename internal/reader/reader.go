// Package reader loads documents from a directory tree or an explicit file list.
package reader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/domain"
)

// DefaultExts are the extensions read when none are configured.
var DefaultExts = []string{".rst", ".md"}

// Options controls which files are read.
type Options struct {
	InputDir      string
	InputFiles    []string // overrides InputDir when non-empty
	Recursive     bool
	RequiredExts  []string // with leading dot; empty means DefaultExts
	Limit         int      // 0 = unlimited
	ExcludeHidden bool
	// FileMetadata builds the metadata for a file name; defaults to {"title": name}.
	FileMetadata func(name string) domain.Metadata
}

// DirectoryReader turns files into documents, one document per file.
type DirectoryReader struct {
	opts    Options
	parsers map[string]Parser
	logger  *zap.Logger
}

// New creates a reader with the built-in parsers.
func New(opts Options, logger *zap.Logger) *DirectoryReader {
	if len(opts.RequiredExts) == 0 {
		opts.RequiredExts = DefaultExts
	}
	if opts.FileMetadata == nil {
		opts.FileMetadata = TitleFromFilename
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryReader{opts: opts, parsers: defaultParsers(), logger: logger}
}

// WithParser registers or replaces the parser for an extension.
func (r *DirectoryReader) WithParser(ext string, p Parser) *DirectoryReader {
	r.parsers[normalizeExt(ext)] = p
	return r
}

// TitleFromFilename is the default FileMetadata.
func TitleFromFilename(name string) domain.Metadata {
	return domain.Metadata{domain.MetaTitle: name}
}

// Files resolves the list of files to read, sorted and limited.
func (r *DirectoryReader) Files() ([]string, error) {
	if len(r.opts.InputFiles) > 0 {
		files := slices.Clone(r.opts.InputFiles)
		return r.limit(files), nil
	}
	if r.opts.InputDir == "" {
		return nil, errors.New("input directory is required")
	}

	info, err := os.Stat(r.opts.InputDir)
	if err != nil {
		return nil, fmt.Errorf("stat input dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input dir %s is not a directory", r.opts.InputDir)
	}

	exts := make(map[string]struct{}, len(r.opts.RequiredExts))
	for _, e := range r.opts.RequiredExts {
		exts[normalizeExt(e)] = struct{}{}
	}

	var files []string
	err = filepath.WalkDir(r.opts.InputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == r.opts.InputDir {
			return nil
		}
		hidden := strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if !r.opts.Recursive || (r.opts.ExcludeHidden && hidden) {
				return filepath.SkipDir
			}
			return nil
		}
		if r.opts.ExcludeHidden && hidden {
			return nil
		}
		if _, ok := exts[normalizeExt(filepath.Ext(path))]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", r.opts.InputDir, err)
	}

	slices.Sort(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no files with extensions %v found in %s", r.opts.RequiredExts, r.opts.InputDir)
	}
	return r.limit(files), nil
}

func (r *DirectoryReader) limit(files []string) []string {
	if r.opts.Limit > 0 && len(files) > r.opts.Limit {
		return files[:r.opts.Limit]
	}
	return files
}

// Load reads every file. Files that fail to decode are skipped and reported as
// *domain.DecodingError values joined into the returned error; the documents
// that did load are returned alongside so the caller can decide what is fatal.
func (r *DirectoryReader) Load(ctx context.Context) ([]domain.Document, error) {
	files, err := r.Files()
	if err != nil {
		return nil, err
	}

	docs := make([]domain.Document, 0, len(files))
	var failures []error
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return docs, fmt.Errorf("load documents: %w", err)
		}

		doc, err := r.loadFile(path)
		if err != nil {
			r.logger.Warn("Failed to decode document", zap.String("path", path), zap.Error(err))
			failures = append(failures, err)
			continue
		}
		docs = append(docs, doc)
	}

	r.logger.Debug("Documents loaded",
		zap.Int("files", len(files)),
		zap.Int("documents", len(docs)),
		zap.Int("failures", len(failures)),
	)

	return docs, errors.Join(failures...)
}

func (r *DirectoryReader) loadFile(path string) (domain.Document, error) {
	ext := normalizeExt(filepath.Ext(path))
	parse, ok := r.parsers[ext]
	if !ok {
		parse = parsePlainText
	}

	text, err := parse(path)
	if err != nil {
		return domain.Document{}, &domain.DecodingError{Path: path, Err: err}
	}

	meta := r.opts.FileMetadata(filepath.Base(path)).Clone()
	meta[domain.MetaSource] = path
	return domain.Document{Text: text, Metadata: meta}, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
