// Package faiss implements a flat L2 vector index persisted as a binary
// vector file plus a JSON docstore.
package faiss

import (
	"bufio"
	"cmp"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/google/uuid"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/vectorstore"
)

// File names inside a persisted store.
const (
	IndexFile    = "index.faiss"
	DocstoreFile = "index.json"
)

var fileMagic = [4]byte{'D', 'I', 'F', 'L'}

const formatVersion uint32 = 1

var errCorruptIndex = errors.New("corrupt index")

// Index is an exhaustive L2 index. Vectors are stored row-major.
type Index struct {
	dim     int
	vectors []float32
	ids     []string
	docs    map[string]domain.Document
}

// NewIndex creates an empty index. dim 0 lets the first Add decide.
func NewIndex(dim int) *Index {
	return &Index{dim: dim, docs: make(map[string]domain.Document)}
}

// Dimension returns the vector size, 0 while the index is empty and unsized.
func (ix *Index) Dimension() int { return ix.dim }

// Len returns the number of stored vectors.
func (ix *Index) Len() int { return len(ix.ids) }

// Add appends documents with their vectors, assigning each a new id.
func (ix *Index) Add(docs []domain.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("add: %d documents but %d vectors", len(docs), len(vectors))
	}
	dim := ix.dim
	for _, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return &domain.DimensionMismatchError{Expected: dim, Actual: len(v)}
		}
	}
	ix.dim = dim
	for i, v := range vectors {
		id := uuid.NewString()
		ix.ids = append(ix.ids, id)
		ix.vectors = append(ix.vectors, v...)
		ix.docs[id] = docs[i]
	}
	return nil
}

// Search returns the k nearest documents by L2 distance. Score is 1/(1+d).
func (ix *Index) Search(query []float32, k int) ([]vectorstore.Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	if ix.Len() == 0 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, &domain.DimensionMismatchError{Expected: ix.dim, Actual: len(query)}
	}

	type hit struct {
		row  int
		dist float64
	}
	hits := make([]hit, ix.Len())
	for row := range hits {
		hits[row] = hit{row: row, dist: l2(query, ix.vectors[row*ix.dim:(row+1)*ix.dim])}
	}
	slices.SortStableFunc(hits, func(a, b hit) int { return cmp.Compare(a.dist, b.dist) })

	k = min(k, len(hits))
	out := make([]vectorstore.Result, k)
	for i := range k {
		h := hits[i]
		out[i] = vectorstore.Result{
			Document: ix.docs[ix.ids[h.row]],
			Score:    1 / (1 + h.dist),
		}
	}
	return out, nil
}

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// WriteVectors encodes the vector file: magic, version, dim, count, then
// count*dim little-endian float32 values.
func (ix *Index) WriteVectors(w io.Writer) error {
	bw := bufio.NewWriter(w)
	header := []any{fileMagic, formatVersion, uint32(ix.dim), uint64(ix.Len())} //nolint:gosec // dim fits in uint32
	for _, v := range header {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, ix.vectors); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}
	return bw.Flush()
}

type docstoreEntry struct {
	Text     string          `json:"text"`
	Metadata domain.Metadata `json:"metadata"`
}

type docstore struct {
	IDs       []string                 `json:"ids"`
	Documents map[string]docstoreEntry `json:"documents"`
}

// WriteDocstore encodes ids and documents as JSON.
func (ix *Index) WriteDocstore(w io.Writer) error {
	ds := docstore{IDs: ix.ids, Documents: make(map[string]docstoreEntry, len(ix.docs))}
	for id, d := range ix.docs {
		ds.Documents[id] = docstoreEntry{Text: d.Text, Metadata: d.Metadata}
	}
	if ds.IDs == nil {
		ds.IDs = []string{}
	}
	if err := json.NewEncoder(w).Encode(ds); err != nil {
		return fmt.Errorf("write docstore: %w", err)
	}
	return nil
}

// ReadIndex decodes an index written by WriteVectors and WriteDocstore.
func ReadIndex(vectors, docs io.Reader) (*Index, error) {
	br := bufio.NewReader(vectors)

	var (
		magic   [4]byte
		version uint32
		dim     uint32
		count   uint64
	)
	for _, v := range []any{&magic, &version, &dim, &count} {
		if err := binary.Read(br, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
	}
	if magic != fileMagic {
		return nil, fmt.Errorf("%w: bad magic %q", errCorruptIndex, magic[:])
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errCorruptIndex, version)
	}

	ix := NewIndex(int(dim))
	ix.vectors = make([]float32, int(count)*int(dim)) //nolint:gosec // header written by WriteVectors
	if err := binary.Read(br, binary.LittleEndian, ix.vectors); err != nil {
		return nil, fmt.Errorf("read vectors: %w", err)
	}

	var ds docstore
	if err := json.NewDecoder(docs).Decode(&ds); err != nil {
		return nil, fmt.Errorf("read docstore: %w", err)
	}
	if uint64(len(ds.IDs)) != count {
		return nil, fmt.Errorf("%w: %d vectors but %d ids", errCorruptIndex, count, len(ds.IDs))
	}
	ix.ids = ds.IDs
	for _, id := range ds.IDs {
		e, ok := ds.Documents[id]
		if !ok {
			return nil, fmt.Errorf("%w: missing document %s", errCorruptIndex, id)
		}
		ix.docs[id] = domain.Document{Text: e.Text, Metadata: e.Metadata}
	}
	return ix, nil
}
