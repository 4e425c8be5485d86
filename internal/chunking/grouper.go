// Package chunking groups raw documents into chunks sized for an LLM context
// window: undersized neighbours are merged, oversized documents are split.
package chunking

import (
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/tokens"
)

// DefaultSeparator joins the texts of merged documents.
const DefaultSeparator = "\n\n"

// DefaultLookback is the share of the token budget searched backwards for a clean split point.
const DefaultLookback = 0.25

// Grouper merges and splits documents against token bounds. It keeps input
// order: packing is greedy and never reorders documents.
type Grouper struct {
	counter   tokens.Counter
	separator string
	lookback  float64
	logger    *zap.Logger
}

// NewGrouper creates a grouper. A nil counter selects tokens.Estimator.
func NewGrouper(counter tokens.Counter) *Grouper {
	if counter == nil {
		counter = tokens.Estimator{}
	}
	return &Grouper{
		counter:   counter,
		separator: DefaultSeparator,
		lookback:  DefaultLookback,
		logger:    zap.NewNop(),
	}
}

// WithSeparator sets the text inserted between merged documents.
func (g *Grouper) WithSeparator(sep string) *Grouper {
	g.separator = sep
	return g
}

// WithLookback sets the share of the budget (0..1] searched for a split boundary.
func (g *Grouper) WithLookback(ratio float64) *Grouper {
	if ratio > 0 && ratio <= 1 {
		g.lookback = ratio
	}
	return g
}

// WithLogger sets the logger used for per-pass statistics.
func (g *Grouper) WithLogger(l *zap.Logger) *Grouper {
	if l != nil {
		g.logger = l
	}
	return g
}

// GroupSplit groups documents with a default Grouper.
func GroupSplit(docs []domain.Document, b Bounds) ([]domain.Document, error) {
	return NewGrouper(nil).Group(docs, b)
}

// Group merges documents whose combined estimate fits MaxTokens and splits
// documents that exceed it. With TokenCheck disabled the input is returned as is.
func (g *Grouper) Group(docs []domain.Document, b Bounds) ([]domain.Document, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if !b.TokenCheck {
		return docs, nil
	}

	out := make([]domain.Document, 0, len(docs))
	acc := accumulator{sep: g.separator, sepTokens: g.counter.Count(g.separator)}
	var merged, split int

	for _, d := range docs {
		n := g.counter.Count(d.Text)

		switch {
		case n > b.MaxTokens:
			out = acc.flush(out)
			parts := g.split(d, b.MaxTokens)
			split++

			tail := parts[len(parts)-1]
			if tailTokens := g.counter.Count(tail.Text); tailTokens < b.MinTokens {
				out = append(out, parts[:len(parts)-1]...)
				acc.add(tail, tailTokens)
			} else {
				out = append(out, parts...)
			}

		case n == b.MaxTokens:
			out = acc.flush(out)
			out = append(out, d)

		case acc.cost(n) > b.MaxTokens:
			out = acc.flush(out)
			acc.add(d, n)

		default:
			if len(acc.docs) > 0 {
				merged++
			}
			acc.add(d, n)
		}
	}
	out = acc.flush(out)

	g.logger.Debug("Grouped documents",
		zap.Int("input", len(docs)),
		zap.Int("output", len(out)),
		zap.Int("merged", merged),
		zap.Int("split", split),
		zap.Int("min_tokens", b.MinTokens),
		zap.Int("max_tokens", b.MaxTokens),
	)

	return out, nil
}

// split cuts d into sub-documents that inherit its metadata plus part_index.
func (g *Grouper) split(d domain.Document, maxTokens int) []domain.Document {
	texts := g.splitText(d.Text, maxTokens)
	parts := make([]domain.Document, len(texts))
	for i, text := range texts {
		parts[i] = d.WithText(text).With(domain.MetaPartIndex, i)
	}
	return parts
}

// accumulator collects consecutive documents that fit together.
type accumulator struct {
	docs      []domain.Document
	tokens    int
	sep       string
	sepTokens int
}

// cost is the running estimate after appending a document of n tokens.
func (a *accumulator) cost(n int) int {
	if len(a.docs) == 0 {
		return n
	}
	return a.tokens + a.sepTokens + n
}

func (a *accumulator) add(d domain.Document, n int) {
	a.tokens = a.cost(n)
	a.docs = append(a.docs, d)
}

// flush appends the accumulated group to out as one document and resets.
func (a *accumulator) flush(out []domain.Document) []domain.Document {
	switch len(a.docs) {
	case 0:
		return out
	case 1:
		out = append(out, a.docs[0])
	default:
		texts := make([]string, len(a.docs))
		count := 0
		for i, d := range a.docs {
			texts[i] = d.Text
			if c, ok := d.Metadata.Int(domain.MetaMergedCount); ok && c > 0 {
				count += c
			} else {
				count++
			}
		}
		first := a.docs[0]
		out = append(out, first.WithText(strings.Join(texts, a.sep)).With(domain.MetaMergedCount, count))
	}
	a.docs = nil
	a.tokens = 0
	return out
}
