// Package similarity implements string similarity scoring for entity matching
package similarity

import (
	"sort"
	"strings"
)

// Scorer provides string comparison algorithms. All methods are pure and
// deterministic; inputs are lowercased and whitespace-normalized before
// comparison.
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score returns the overall similarity between two strings as a value in
// [0,100]. It takes the best of three views: the exact-order character ratio,
// the substring/partial ratio, and the token-order-insensitive ratio, so that
// abbreviations, reordered tokens, and missing suffixes all still score well.
func (s *Scorer) Score(a, b string) float64 {
	a = Normalize(a)
	b = Normalize(b)

	if a == b {
		if a == "" {
			return 0.0
		}
		return 100.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	best := s.Ratio(a, b)
	if partial := s.PartialRatio(a, b); partial > best {
		best = partial
	}
	if tokenSort := s.TokenSortRatio(a, b); tokenSort > best {
		best = tokenSort
	}
	return best
}

// Normalize lowercases, trims, and collapses internal whitespace
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Ratio calculates the whole-string similarity based on edit distance.
// Returns a value between 0.0 and 100.0.
func (s *Scorer) Ratio(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0.0
	}
	distance := levenshtein(ra, rb)
	return (1.0 - float64(distance)/float64(maxLen)) * 100.0
}

// PartialRatio calculates the best similarity between the shorter string and
// any equal-length window of the longer string. Catches names that are a
// prefix or embedded fragment of the other ("acme" vs "acme industrial").
func (s *Scorer) PartialRatio(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		return 0.0
	}
	if len(ra) == len(rb) {
		return s.Ratio(string(ra), string(rb))
	}

	best := 0.0
	for i := 0; i+len(ra) <= len(rb); i++ {
		window := string(rb[i : i+len(ra)])
		if score := s.Ratio(string(ra), window); score > best {
			best = score
		}
		if best == 100.0 {
			break
		}
	}
	return best
}

// TokenSortRatio sorts each string's tokens before comparing, so token order
// does not matter ("steel plate 3mm" vs "3mm steel plate").
func (s *Scorer) TokenSortRatio(a, b string) float64 {
	return s.Ratio(tokenSort(a), tokenSort(b))
}

func tokenSort(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// levenshtein calculates the edit distance between two rune slices using two
// rolling rows
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}
