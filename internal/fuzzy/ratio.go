// Package fuzzy implements the approximate string-matching primitives used
// by the cross-language search pipeline: a Levenshtein-based similarity
// ratio, a partial (substring) ratio alignment, and the keyword/sentence
// matchers built on top of them.
package fuzzy

import (
	"github.com/agnivade/levenshtein"
)

// Ratio returns the Levenshtein-based similarity percentage of a and b in
// the range [0, 100]. Two empty strings are defined as a perfect match.
func Ratio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	score := 100 - (dist*100)/maxLen
	if score < 0 {
		return 0
	}
	return score
}

// Alignment is the best-matching substring of a haystack against a
// needle: Score in [0,100] plus the half-open rune range [Start, End)
// within the haystack that produced it.
type Alignment struct {
	Score int
	Start int
	End   int
}

// PartialRatioAlignment finds the best-aligned substring of text against
// search and returns it only if its score exceeds cutoff. When search is
// longer than text the roles are swapped internally but the returned range
// always indexes into text (runes, not bytes).
func PartialRatioAlignment(text, search string, cutoff int) (Alignment, bool) {
	t, s := []rune(text), []rune(search)
	if len(t) == 0 || len(s) == 0 {
		return Alignment{}, false
	}
	if len(s) > len(t) {
		// search longer than text: best we can do is compare the whole text.
		score := Ratio(text, search)
		if score > cutoff {
			return Alignment{Score: score, Start: 0, End: len(t)}, true
		}
		return Alignment{}, false
	}

	best := Alignment{Score: -1}
	// Slide a window the length of search (and +/-1 to tolerate a single
	// insertion/deletion at the boundary) across text, scoring each window.
	tryWindow := func(start, length int) {
		if start < 0 || length <= 0 || start+length > len(t) {
			return
		}
		window := string(t[start : start+length])
		score := Ratio(window, search)
		if score > best.Score {
			best = Alignment{Score: score, Start: start, End: start + length}
		}
	}
	for start := 0; start+len(s) <= len(t); start++ {
		tryWindow(start, len(s))
		tryWindow(start, len(s)-1)
		tryWindow(start, len(s)+1)
	}

	if best.Score > cutoff {
		return best, true
	}
	return Alignment{}, false
}
