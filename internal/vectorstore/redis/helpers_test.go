package redis

import (
	"github.com/redis/rueidis"

	"github.com/kailas-cloud/docingest/internal/vectorstore"
)

// newStoreForTest wraps a mock client without probing the server.
func newStoreForTest(c rueidis.Client, index string, dims int, opts vectorstore.Options) *Store {
	return &Store{client: c, index: index, prefix: index + ":", dims: dims, opts: opts, logger: opts.Log()}
}
