// Package s3store persists the flat index as objects in an S3 bucket.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/vectorstore"
	"github.com/kailas-cloud/docingest/internal/vectorstore/faiss"
)

const backendName = "s3"

// API is the subset of the S3 client the store uses.
type API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Persister stores index.faiss and index.json under <prefix>/<path>/.
type Persister struct {
	client API
	bucket string
	dir    string
}

// NewPersister creates a persister for one store location.
func NewPersister(client API, bucket, prefix, storePath string) *Persister {
	return &Persister{client: client, bucket: bucket, dir: path.Join(prefix, storePath)}
}

// NewConstructor returns a vectorstore.Constructor bound to bucket. Stores
// live under <prefix>/<store name>, the same keys an uploaded output
// directory gets.
func NewConstructor(client API, bucket, prefix string) vectorstore.Constructor {
	return func(ctx context.Context, opts vectorstore.Options) (vectorstore.Store, error) {
		if bucket == "" {
			return nil, &domain.ConfigurationError{Field: "aws.bucket", Expected: "a bucket name", Actual: "empty"}
		}
		p := NewPersister(client, bucket, prefix, opts.Name())
		return faiss.Open(ctx, vectorstore.KindS3, p, opts)
	}
}

func (p *Persister) key(name string) string {
	return path.Join(p.dir, name)
}

// Load lists the store prefix first so a missing store is reported as
// domain.ErrStoreNotFound rather than an access error.
func (p *Persister) Load(ctx context.Context) (*faiss.Index, error) {
	prefix := p.dir + "/"
	if p.dir == "" || p.dir == "." {
		prefix = ""
	}
	found := make(map[string]bool)
	pages := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, &domain.BackendError{Backend: backendName, Op: "ListObjectsV2", Err: err}
		}
		for _, obj := range page.Contents {
			found[aws.ToString(obj.Key)] = true
		}
	}
	for _, name := range []string{faiss.IndexFile, faiss.DocstoreFile} {
		if !found[p.key(name)] {
			return nil, fmt.Errorf("%w: s3://%s/%s", domain.ErrStoreNotFound, p.bucket, p.key(name))
		}
	}

	vectors, err := p.get(ctx, faiss.IndexFile)
	if err != nil {
		return nil, err
	}
	docs, err := p.get(ctx, faiss.DocstoreFile)
	if err != nil {
		return nil, err
	}
	return faiss.ReadIndex(bytes.NewReader(vectors), bytes.NewReader(docs))
}

func (p *Persister) get(ctx context.Context, name string) ([]byte, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key(name)),
	})
	if err != nil {
		return nil, &domain.BackendError{Backend: backendName, Op: "GetObject", Err: err}
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &domain.BackendError{Backend: backendName, Op: "GetObject", Err: err}
	}
	return data, nil
}

// Persist uploads the vector file, then the docstore.
func (p *Persister) Persist(ctx context.Context, ix *faiss.Index) error {
	var vectors, docs bytes.Buffer
	if err := ix.WriteVectors(&vectors); err != nil {
		return err
	}
	if err := ix.WriteDocstore(&docs); err != nil {
		return err
	}

	for _, obj := range []struct {
		name string
		body []byte
		ct   string
	}{
		{faiss.IndexFile, vectors.Bytes(), "application/octet-stream"},
		{faiss.DocstoreFile, docs.Bytes(), "application/json"},
	} {
		_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(p.bucket),
			Key:         aws.String(p.key(obj.name)),
			Body:        bytes.NewReader(obj.body),
			ContentType: aws.String(obj.ct),
		})
		if err != nil {
			return &domain.BackendError{Backend: backendName, Op: "PutObject", Err: err}
		}
	}
	return nil
}
