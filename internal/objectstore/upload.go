package objectstore

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// PutObjectAPI is the subset of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader copies local files into a bucket under a key prefix.
type Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *zap.Logger
}

// NewUploader creates an uploader for bucket.
func NewUploader(client PutObjectAPI, bucket, prefix string, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// UploadFile uploads one file. An empty key uses the file's base name.
func (u *Uploader) UploadFile(ctx context.Context, file, key string) error {
	if u.bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if key == "" {
		key = filepath.Base(file)
	}
	key = path.Join(u.prefix, key)

	f, err := os.Open(file) //nolint:gosec // caller-provided output path
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer func() { _ = f.Close() }()

	in := &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		in.ContentType = aws.String(ct)
	}
	if _, err := u.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", u.bucket, key, err)
	}

	u.logger.Debug("Uploaded file", zap.String("file", file), zap.String("key", key))
	return nil
}

// UploadDir uploads every regular file under dir. Keys are the paths relative
// to dir, so "outputs/react/index.faiss" becomes "<prefix>/react/index.faiss".
func (u *Uploader) UploadDir(ctx context.Context, dir string) (int, error) {
	uploaded := 0

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", p, err)
		}
		if err := u.UploadFile(ctx, p, filepath.ToSlash(rel)); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, fmt.Errorf("upload %s: %w", dir, err)
	}

	u.logger.Info("Uploaded directory",
		zap.String("dir", dir),
		zap.String("bucket", u.bucket),
		zap.Int("files", uploaded),
	)
	return uploaded, nil
}
