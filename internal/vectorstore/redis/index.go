package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/docingest/internal/domain"
)

// HNSW parameters for the vector field.
const (
	hnswM              = 16
	hnswEFConstruction = 200
)

const (
	fieldText     = "text"
	fieldMetadata = "metadata"
	fieldVector   = "vector"
	scoreField    = "__vector_score"
)

var errInvalidIndexName = errors.New("index name must match [a-zA-Z0-9_:-]+")

// createIndex runs FT.CREATE for a HASH index with a cosine HNSW vector field.
func (s *Store) createIndex(ctx context.Context, dims int) error {
	cmd := s.client.B().Arbitrary("FT.CREATE").Args(createArgs(s.index, s.prefix, dims)...).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		if !isRedisErr(err, "index already exists") {
			return &domain.BackendError{Backend: backendName, Op: "FT.CREATE", Err: err}
		}
	}
	s.dims = dims
	return nil
}

func createArgs(index, prefix string, dims int) []string {
	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dims),
		"DISTANCE_METRIC", "COSINE",
		"M", strconv.Itoa(hnswM),
		"EF_CONSTRUCTION", strconv.Itoa(hnswEFConstruction),
	}

	args := []string{
		index, "ON", "HASH",
		"PREFIX", "1", prefix,
		"SCHEMA",
		fieldText, "TEXT",
		fieldVector, "VECTOR", "HNSW", strconv.Itoa(len(attrs)),
	}
	return append(args, attrs...)
}

// indexDims probes the index via FT.INFO. exists is false on "unknown index
// name"; dims is 0 when the reply carries no dimension attribute.
func (s *Store) indexDims(ctx context.Context) (dims int, exists bool, err error) {
	cmd := s.client.B().Arbitrary("FT.INFO").Args(s.index).Build()
	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "not found") {
			return 0, false, nil
		}
		return 0, false, &domain.BackendError{Backend: backendName, Op: "FT.INFO", Err: err}
	}
	return findDim(raw), true, nil
}

// findDim walks the nested FT.INFO reply for a "dim" (Redis) or
// "dimensions" (Valkey) key.
func findDim(msgs []rueidis.RedisMessage) int {
	for i := range msgs {
		switch {
		case msgs[i].IsString() && i+1 < len(msgs) && !msgs[i+1].IsArray():
			key, _ := msgs[i].ToString()
			if k := strings.ToLower(key); k == "dim" || k == "dimensions" {
				if n, err := msgs[i+1].AsInt64(); err == nil {
					return int(n)
				}
			}
		case msgs[i].IsArray():
			nested, _ := msgs[i].ToArray()
			if d := findDim(nested); d > 0 {
				return d
			}
		}
	}
	return 0
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
