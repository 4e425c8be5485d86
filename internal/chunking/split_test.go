package chunking

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/docingest/internal/tokens"
)

func TestSplitText_PrefersParagraph(t *testing.T) {
	para1 := "aa bb cc dd ee ff gg."
	para2 := "hh ii jj kk ll mm nn."
	g := NewGrouper(nil).WithLookback(0.5)

	parts := g.splitText(para1+"\n\n"+para2, 10)

	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d: %q", len(parts), parts)
	}
	if parts[0] != para1 || parts[1] != para2 {
		t.Errorf("expected paragraph split, got %q", parts)
	}
}

func TestSplitText_PrefersSentenceOverSpace(t *testing.T) {
	g := NewGrouper(nil).WithLookback(0.5)

	parts := g.splitText("aa bb cc. dd ee ff gg hh ii jj kk", 6)

	want := []string{"aa bb cc.", "dd ee ff gg hh ii", "jj kk"}
	if len(parts) != len(want) {
		t.Fatalf("expected %d parts, got %q", len(want), parts)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Errorf("part %d: got %q, want %q", i, parts[i], want[i])
		}
	}
}

func TestSplitText_BoundaryOutsideWindowIgnored(t *testing.T) {
	g := NewGrouper(nil).WithLookback(0.1)

	// window is 1 token: the sentence end after "aa." is too far back
	parts := g.splitText("aa. bb cc dd ee ff gg hh ii jj kk ll", 10)

	if parts[0] != "aa. bb cc dd ee ff gg hh ii jj" {
		t.Errorf("expected greedy cut, got %q", parts[0])
	}
}

func TestSplitText_HardSplitsLongWord(t *testing.T) {
	g := NewGrouper(nil)
	long := strings.Repeat("q", 50)

	parts := g.splitText(long, 5)

	if len(parts) != 3 {
		t.Fatalf("expected 3 pieces, got %d", len(parts))
	}
	if strings.Join(parts, "") != long {
		t.Error("hard split lost characters")
	}
	for i, p := range parts {
		if n := tokens.Estimate(p); n > 5 {
			t.Errorf("piece %d has %d tokens", i, n)
		}
	}
}

func TestSplitText_LongWordBetweenShortOnes(t *testing.T) {
	g := NewGrouper(nil)
	text := "aa bb " + strings.Repeat("w", 30) + " cc dd"

	parts := g.splitText(text, 4)

	joined := strings.Join(parts, "")
	if strings.ReplaceAll(text, " ", "") != strings.ReplaceAll(joined, " ", "") {
		t.Errorf("content changed: %q", parts)
	}
	if parts[0] != "aa bb" {
		t.Errorf("expected cut before long word, got %q", parts[0])
	}
	for i, p := range parts {
		if n := tokens.Estimate(p); n > 4 {
			t.Errorf("part %d has %d tokens", i, n)
		}
	}
}

func TestScanWords_Gaps(t *testing.T) {
	words := scanWords("end. next\nline word\n\npara", tokens.Estimator{})

	want := []gap{gapSentence, gapLine, gapSpace, gapParagraph, gapEnd}
	if len(words) != len(want) {
		t.Fatalf("expected %d words, got %d", len(want), len(words))
	}
	for i, w := range words {
		if w.after != want[i] {
			t.Errorf("word %d: gap %d, want %d", i, w.after, want[i])
		}
	}
}

// wordCounter charges one token per word plus one per space, which is not additive.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	f := strings.Fields(text)
	if len(f) == 0 {
		return 0
	}
	return 2*len(f) - 1
}

func TestSplitText_NonAdditiveCounter(t *testing.T) {
	g := NewGrouper(wordCounter{})

	parts := g.splitText("a b c d e f g h", 5)

	for i, p := range parts {
		if n := (wordCounter{}).Count(p); n > 5 {
			t.Errorf("part %d %q costs %d", i, p, n)
		}
	}
}
