package redis

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/vectorstore"
)

func (s *Store) searchKNN(ctx context.Context, vec []float32, k int) ([]vectorstore.Result, error) {
	args := []string{
		s.index, fmt.Sprintf("*=>[KNN %d @%s $BLOB]", k, fieldVector),
		"RETURN", "3", fieldText, fieldMetadata, scoreField,
		"SORTBY", scoreField,
		"LIMIT", "0", strconv.Itoa(k),
		"PARAMS", "2", "BLOB", vectorToBytes(vec),
		"DIALECT", "2",
	}

	cmd := s.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &domain.BackendError{Backend: backendName, Op: "FT.SEARCH", Err: err}
	}
	return parseKNNResult(raw)
}

// parseKNNResult reads [total, key1, fields1, key2, fields2, ...].
func parseKNNResult(raw []rueidis.RedisMessage) ([]vectorstore.Result, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	results := make([]vectorstore.Result, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		m := parseFieldPairs(fields)

		doc := domain.Document{Text: m[fieldText], Metadata: domain.Metadata{}}
		if md := m[fieldMetadata]; md != "" {
			if err := json.Unmarshal([]byte(md), &doc.Metadata); err != nil {
				return nil, fmt.Errorf("parse metadata: %w", err)
			}
		}

		var score float64
		if d, err := strconv.ParseFloat(m[scoreField], 64); err == nil {
			score = max(0, 1.0-d) // cosine distance to similarity
		}
		results = append(results, vectorstore.Result{Document: doc, Score: score})
	}
	return results, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
