// Package tokens estimates the token cost of text without a model tokenizer.
package tokens

import "unicode"

// CharsPerToken is the average number of characters per token for English text
// with BPE tokenizers of the cl100k family.
const CharsPerToken = 4

// Counter estimates how many tokens a text costs.
type Counter interface {
	Count(text string) int
}

// Estimator is the default Counter. Every whitespace-separated word costs
// ceil(runes/CharsPerToken) tokens; whitespace is free. The estimate is exactly
// additive over whitespace-joined concatenation.
type Estimator struct{}

var _ Counter = Estimator{}

// Count implements Counter.
func (Estimator) Count(text string) int {
	total := 0
	runes := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			total += WordCost(runes)
			runes = 0
			continue
		}
		runes++
	}
	return total + WordCost(runes)
}

// WordCost returns the token cost of a word of n runes.
func WordCost(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + CharsPerToken - 1) / CharsPerToken
}

// Estimate counts tokens with the default Estimator.
func Estimate(text string) int {
	return Estimator{}.Count(text)
}

// RuneBudget is the longest run of non-space runes that fits in n tokens.
func RuneBudget(n int) int {
	return n * CharsPerToken
}
