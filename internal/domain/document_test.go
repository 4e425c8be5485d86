package domain

import "testing"

func TestDocumentWith_DoesNotMutateOriginal(t *testing.T) {
	orig := NewDocument("text", Metadata{MetaTitle: "a.md"})
	next := orig.With(MetaPartIndex, 2)

	if _, ok := orig.Metadata[MetaPartIndex]; ok {
		t.Fatal("original metadata was mutated")
	}
	if idx, ok := next.Metadata.Int(MetaPartIndex); !ok || idx != 2 {
		t.Errorf("expected part_index=2, got %v", next.Metadata[MetaPartIndex])
	}
	if next.Metadata.String(MetaTitle) != "a.md" {
		t.Errorf("expected title carried over, got %q", next.Metadata.String(MetaTitle))
	}
}

func TestNewDocument_CopiesMetadata(t *testing.T) {
	meta := Metadata{MetaTitle: "x"}
	doc := NewDocument("t", meta)
	meta[MetaTitle] = "changed"

	if doc.Metadata.String(MetaTitle) != "x" {
		t.Errorf("document shares caller's map: %q", doc.Metadata.String(MetaTitle))
	}
}

func TestMetadataInt_JSONNumbers(t *testing.T) {
	m := Metadata{"a": float64(3), "b": int64(4), "c": "5"}

	if v, ok := m.Int("a"); !ok || v != 3 {
		t.Errorf("float64: got %d %v", v, ok)
	}
	if v, ok := m.Int("b"); !ok || v != 4 {
		t.Errorf("int64: got %d %v", v, ok)
	}
	if _, ok := m.Int("c"); ok {
		t.Error("string should not convert")
	}
}

func TestMetadataClone_Nil(t *testing.T) {
	var m Metadata
	c := m.Clone()
	if c == nil {
		t.Fatal("expected non-nil clone")
	}
	c["k"] = "v"
}
