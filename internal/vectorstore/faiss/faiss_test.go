package faiss

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/vectorstore"
)

type testModel struct{ dims int }

func (m testModel) ModelName() string { return "test" }
func (m testModel) Dimensions() int { return m.dims }

// mapEmbedder returns fixed vectors per text.
type mapEmbedder struct {
	vectors map[string][]float32
	calls   int
}

func (e *mapEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	e.calls++
	v, ok := e.vectors[text]
	if !ok {
		return domain.EmbeddingResult{}, errors.New("unknown text " + text)
	}
	return domain.EmbeddingResult{Embedding: v}, nil
}

func testOptions(dir string) vectorstore.Options {
	return vectorstore.Options{
		Path: dir,
		Embedder: &mapEmbedder{vectors: map[string][]float32{
			"north": {0, 1, 0},
			"south": {0, -1, 0},
			"east":  {1, 0, 0},
			"up":    {0, 0.9, 0.1},
		}},
		Model: testModel{dims: 3},
	}
}

func docs(texts ...string) []domain.Document {
	out := make([]domain.Document, len(texts))
	for i, t := range texts {
		out[i] = domain.NewDocument(t, domain.Metadata{domain.MetaTitle: t + ".md", domain.MetaPartIndex: i})
	}
	return out
}

func TestStore_BuildAndSearch(t *testing.T) {
	opts := testOptions(t.TempDir())
	opts.InitDocs = docs("north", "south", "east")

	s, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Dimension() != 3 || s.Kind() != vectorstore.KindFAISS {
		t.Fatalf("dimension=%d kind=%s", s.Dimension(), s.Kind())
	}

	res, err := s.SimilaritySearch(context.Background(), "up", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].Document.Text != "north" {
		t.Errorf("nearest = %q, want north", res[0].Document.Text)
	}
	if res[0].Score <= res[1].Score {
		t.Errorf("scores not descending: %v, %v", res[0].Score, res[1].Score)
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	opts := testOptions(dir)
	opts.InitDocs = docs("north", "south")

	s, err := New(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	for _, f := range []string{IndexFile, DocstoreFile} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("expected %s: %v", f, err)
		}
	}

	loadOpts := testOptions(dir)
	loaded, err := New(context.Background(), loadOpts)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Dimension() != 3 {
		t.Errorf("dimension = %d", loaded.Dimension())
	}
	if n := loaded.(*Store).Index().Len(); n != 2 {
		t.Errorf("len = %d", n)
	}

	res, err := loaded.SimilaritySearch(context.Background(), "south", 1)
	if err != nil {
		t.Fatal(err)
	}
	if res[0].Document.Text != "south" || res[0].Score != 1 {
		t.Errorf("got %q score %v", res[0].Document.Text, res[0].Score)
	}
	if idx, ok := res[0].Document.Metadata.Int(domain.MetaPartIndex); !ok || idx != 1 {
		t.Errorf("metadata not restored: %v", res[0].Document.Metadata)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	_, err := New(context.Background(), testOptions(t.TempDir()))
	if !errors.Is(err, domain.ErrStoreNotFound) {
		t.Fatalf("expected ErrStoreNotFound, got %v", err)
	}
}

func TestStore_EmptyPath(t *testing.T) {
	_, err := New(context.Background(), vectorstore.Options{})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestOpen_RejectsMismatchedModel(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	opts.InitDocs = docs("north")
	s, err := New(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background()); err != nil {
		t.Fatal(err)
	}

	reg := vectorstore.NewRegistry(map[vectorstore.Kind]vectorstore.Constructor{vectorstore.KindFAISS: New})
	loadOpts := testOptions(dir)
	loadOpts.Model = testModel{dims: 1536}

	_, err = vectorstore.Open(context.Background(), reg, "FAISS", loadOpts)
	var dme *domain.DimensionMismatchError
	if !errors.As(err, &dme) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if dme.Expected != 1536 || dme.Actual != 3 {
		t.Errorf("expected=%d actual=%d", dme.Expected, dme.Actual)
	}
}

func TestIndex_AddDimensionMismatch(t *testing.T) {
	ix := NewIndex(0)
	if err := ix.Add(docs("a"), [][]float32{{1, 2}}); err != nil {
		t.Fatal(err)
	}
	err := ix.Add(docs("b"), [][]float32{{1, 2, 3}})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
	if ix.Len() != 1 {
		t.Errorf("failed add must not change the index, len=%d", ix.Len())
	}
}

func TestIndex_Search(t *testing.T) {
	ix := NewIndex(2)
	if res, err := ix.Search([]float32{1, 1}, 3); err != nil || res != nil {
		t.Fatalf("empty index: res=%v err=%v", res, err)
	}
	if err := ix.Add(docs("a", "b"), [][]float32{{0, 0}, {3, 4}}); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Search([]float32{1, 1}, 0); err == nil {
		t.Error("expected error for k=0")
	}
	if _, err := ix.Search([]float32{1}, 1); !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("expected ErrVectorDimMismatch, got %v", err)
	}

	res, err := ix.Search([]float32{0, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Fatalf("k larger than index must be clamped, got %d", len(res))
	}
	if res[1].Score != 1.0/6.0 {
		t.Errorf("score = %v, want 1/(1+5)", res[1].Score)
	}
}

func TestReadIndex_Corrupt(t *testing.T) {
	ix := NewIndex(0)
	if err := ix.Add(docs("a"), [][]float32{{1, 2}}); err != nil {
		t.Fatal(err)
	}
	var vec, ds bytes.Buffer
	if err := ix.WriteVectors(&vec); err != nil {
		t.Fatal(err)
	}
	if err := ix.WriteDocstore(&ds); err != nil {
		t.Fatal(err)
	}

	bad := bytes.Clone(vec.Bytes())
	bad[0] = 'X'
	if _, err := ReadIndex(bytes.NewReader(bad), bytes.NewReader(ds.Bytes())); !errors.Is(err, errCorruptIndex) {
		t.Errorf("bad magic: %v", err)
	}

	truncated := vec.Bytes()[:vec.Len()-2]
	if _, err := ReadIndex(bytes.NewReader(truncated), bytes.NewReader(ds.Bytes())); err == nil {
		t.Error("expected error for truncated vectors")
	}

	if _, err := ReadIndex(bytes.NewReader(vec.Bytes()), bytes.NewReader([]byte(`{"ids":[],"documents":{}}`))); !errors.Is(err, errCorruptIndex) {
		t.Errorf("id count mismatch: %v", err)
	}
}
