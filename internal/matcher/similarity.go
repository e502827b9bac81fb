package matcher

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Ratio is a Levenshtein similarity in [0,100], rounded to the nearest integer.
// Two identical strings (including two empty ones) score 100.
func Ratio(a, b string) float64 {
	if a == b {
		return 100
	}
	maxLen := utf8.RuneCountInString(a)
	if l := utf8.RuneCountInString(b); l > maxLen {
		maxLen = l
	}
	dist := levenshtein.ComputeDistance(a, b)
	return math.Round(100 * (1 - float64(dist)/float64(maxLen)))
}

// TokenSortRatio is Ratio over the space-separated tokens of each side sorted
// alphabetically, so word order does not matter.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortTokens(a), sortTokens(b))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
