package ingest

import (
	"context"

	"github.com/kailas-cloud/docingest/internal/docgen"
	"github.com/kailas-cloud/docingest/internal/domain"
)

// DocGenerator writes documentation for a folder's grouped chunks.
type DocGenerator interface {
	Generate(ctx context.Context, folder string, docs []domain.Document) (docgen.Result, error)
}

// DirUploader copies a finished output tree to object storage.
type DirUploader interface {
	UploadDir(ctx context.Context, dir string) (int, error)
}
