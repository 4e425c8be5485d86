package tokens

import (
	"strings"
	"testing"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", " \n\t ", 0},
		{"single short word", "a", 1},
		{"four chars", "abcd", 1},
		{"five chars", "abcde", 2},
		{"two words", "hello world", 4},
		{"multibyte counted by runes", "привет", 2},
		{"newlines separate words", "one\ntwo\n\nthree", 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Estimate(tc.text); got != tc.want {
				t.Errorf("Estimate(%q) = %d, want %d", tc.text, got, tc.want)
			}
		})
	}
}

func TestEstimate_AdditiveOverWhitespaceJoin(t *testing.T) {
	a := strings.Repeat("lorem ipsum ", 40)
	b := strings.Repeat("dolor sit amet ", 25)

	if got, want := Estimate(a+"\n\n"+b), Estimate(a)+Estimate(b); got != want {
		t.Errorf("joined estimate %d, want %d", got, want)
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox. ", 100)
	first := Estimate(text)
	for range 10 {
		if Estimate(text) != first {
			t.Fatal("estimate is not deterministic")
		}
	}
}

func TestWordCost(t *testing.T) {
	if WordCost(0) != 0 || WordCost(-1) != 0 {
		t.Error("non-positive rune counts must cost 0")
	}
	if WordCost(8) != 2 || WordCost(9) != 3 {
		t.Errorf("unexpected costs: %d %d", WordCost(8), WordCost(9))
	}
	if RuneBudget(3) != 12 {
		t.Errorf("RuneBudget(3) = %d", RuneBudget(3))
	}
}
