package domain

import "maps"

// Metadata keys set by the reader and the chunk grouper.
const (
	MetaTitle       = "title"
	MetaSource      = "source"
	MetaPartIndex   = "part_index"
	MetaMergedCount = "merged_count"
)

// Metadata holds string or numeric attributes of a document.
type Metadata map[string]any

// Clone returns a shallow copy. Values are strings or numbers, so shallow is enough.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	return maps.Clone(m)
}

// String returns the value under key if it is a string.
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Int returns the value under key as an int. Accepts the numeric kinds that
// survive a JSON round trip.
func (m Metadata) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// Document is one logical unit of text (file, section, page or chunk).
// Documents are values: transformations build new ones instead of mutating.
type Document struct {
	Text     string
	Metadata Metadata
}

// NewDocument creates a document that owns a copy of meta.
func NewDocument(text string, meta Metadata) Document {
	return Document{Text: text, Metadata: meta.Clone()}
}

// With returns a copy of the document with one extra metadata entry.
func (d Document) With(key string, value any) Document {
	meta := d.Metadata.Clone()
	meta[key] = value
	return Document{Text: d.Text, Metadata: meta}
}

// WithText returns a copy of the document carrying text instead of d.Text.
func (d Document) WithText(text string) Document {
	return Document{Text: text, Metadata: d.Metadata.Clone()}
}
