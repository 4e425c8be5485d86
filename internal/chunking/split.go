package chunking

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kailas-cloud/docingest/internal/tokens"
)

// gap is the strength of the boundary that follows a word.
type gap int

const (
	gapEnd gap = iota // end of text
	gapSpace
	gapLine
	gapSentence
	gapParagraph
)

type word struct {
	start, end int // byte offsets
	tokens     int
	after      gap
}

// scanWords splits text into words and classifies the whitespace after each one.
func scanWords(text string, counter tokens.Counter) []word {
	var words []word
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, word{start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, word{start: start, end: len(text)})
	}

	for i := range words {
		w := &words[i]
		w.tokens = counter.Count(text[w.start:w.end])
		if i == len(words)-1 {
			w.after = gapEnd
			continue
		}
		between := text[w.end:words[i+1].start]
		switch {
		case strings.Count(between, "\n") >= 2:
			w.after = gapParagraph
		case endsSentence(text[w.start:w.end]):
			w.after = gapSentence
		case strings.Contains(between, "\n"):
			w.after = gapLine
		default:
			w.after = gapSpace
		}
	}
	return words
}

func endsSentence(w string) bool {
	w = strings.TrimRight(w, `"')]}»”’`)
	r, _ := utf8.DecodeLastRuneInString(w)
	switch r {
	case '.', '!', '?', '…', ';':
		return true
	}
	return false
}

// splitText cuts text into pieces of at most maxTokens each. Cuts land on the
// strongest boundary within the lookback window; words longer than the budget
// are the only thing ever cut in the middle.
func (g *Grouper) splitText(text string, maxTokens int) []string {
	words := scanWords(text, g.counter)
	window := max(1, int(float64(maxTokens)*g.lookback))

	var parts []string
	for s := 0; s < len(words); {
		if words[s].tokens > maxTokens {
			parts = append(parts, g.hardSplit(text[words[s].start:words[s].end], maxTokens)...)
			s++
			continue
		}

		sum := 0
		j := s
		for j < len(words) && sum+words[j].tokens <= maxTokens {
			sum += words[j].tokens
			j++
		}

		end := j - 1
		if j < len(words) && words[j].tokens <= maxTokens {
			end = bestCut(words, s, j-1, window)
		}

		part := text[words[s].start:words[end].end]
		// Counters other than the Estimator need not be additive.
		for end > s && g.counter.Count(part) > maxTokens {
			end--
			part = text[words[s].start:words[end].end]
		}

		parts = append(parts, part)
		s = end + 1
	}
	return parts
}

// bestCut picks the word after which to cut, scanning back from last while the
// tokens pushed into the next part stay within window. Ties go to the later word.
func bestCut(words []word, s, last, window int) int {
	best := last
	bestGap := words[last].after
	pushed := 0
	for c := last - 1; c >= s; c-- {
		pushed += words[c+1].tokens
		if pushed > window {
			break
		}
		if words[c].after > bestGap {
			best, bestGap = c, words[c].after
		}
	}
	return best
}

// hardSplit cuts a single oversized word on rune boundaries.
func (g *Grouper) hardSplit(w string, maxTokens int) []string {
	runes := []rune(w)
	size := max(1, tokens.RuneBudget(maxTokens))

	var parts []string
	for len(runes) > 0 {
		n := min(size, len(runes))
		for n > 1 && g.counter.Count(string(runes[:n])) > maxTokens {
			n -= max(1, n/10)
		}
		parts = append(parts, string(runes[:n]))
		runes = runes[n:]
	}
	return parts
}
