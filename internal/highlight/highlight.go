// Package highlight renders matched tokens and spans into display
// snippets: tagging matched tokens with <mark> markers, merging
// adjacent marks, then extracting a context-windowed snippet joined
// with ellipses.
package highlight

import (
	"sort"
	"strings"
)

const (
	openMark  = "<mark>"
	closeMark = "</mark>"

	// DefaultContextSize is the number of tokens of surrounding context
	// kept on each side of a matched-token group.
	DefaultContextSize = 3
)

// TokenSpan is a single matched position expressed in token-index space:
// a matched keyword token index is represented as [i, i+1); a sentence
// span is widened to its first/last covered token index by the caller
// via TokenRangeForCharSpan before being passed in here.
type TokenSpan struct {
	Start, End int // half-open token-index range
}

// TokenRangeForCharSpan converts a character span [charStart, charEnd)
// into a half-open token-index range by binary-searching the token
// start/end index arrays: a token is included when its range overlaps
// the char span, with the boundary token included only when charEnd-1
// falls inside it.
func TokenRangeForCharSpan(starts, ends []int, charStart, charEnd int) (TokenSpan, bool) {
	n := len(starts)
	if n == 0 || charEnd <= charStart {
		return TokenSpan{}, false
	}

	// First token whose end > charStart.
	first := sort.Search(n, func(i int) bool { return ends[i] > charStart })
	if first == n {
		return TokenSpan{}, false
	}
	// Last token whose start < charEnd (i.e. charEnd-1 falls at/after its start).
	last := sort.Search(n, func(i int) bool { return starts[i] >= charEnd })
	if last <= first {
		// charEnd-1 may still land inside the `first` token itself.
		if charEnd-1 >= starts[first] && charEnd-1 < ends[first] {
			return TokenSpan{Start: first, End: first + 1}, true
		}
		return TokenSpan{}, false
	}
	return TokenSpan{Start: first, End: last}, true
}

// Builder renders a highlighted, simplified snippet from a token list
// plus the retained keyword/sentence matches for one column
// (original or translation) of a single row.
type Builder struct {
	ContextSize int
}

// NewBuilder returns a Builder with the default ±3-token context size.
func NewBuilder() *Builder {
	return &Builder{ContextSize: DefaultContextSize}
}

// tagged is a token alongside whether it was wrapped in <mark>.
type tagged struct {
	text   string
	marked bool
}

// Build renders one column's snippet end-to-end: tag matched tokens,
// merge adjacent marks, then simplify into a context-windowed snippet.
// tokens is the full token list; the original text layout is not needed
// here, tokens are joined with single spaces. keywordIdx is the set of
// matched token indices; sentenceSpans are token-index ranges already
// converted via TokenRangeForCharSpan. Returns ("", false) when there
// is nothing to highlight.
func (b *Builder) Build(tokens []string, keywordIdx []int, sentenceSpans []TokenSpan) (string, bool) {
	if len(tokens) == 0 {
		return "", false
	}
	marked := make([]bool, len(tokens))
	any := false
	for _, i := range keywordIdx {
		if i >= 0 && i < len(tokens) {
			marked[i] = true
			any = true
		}
	}
	for _, sp := range sentenceSpans {
		start, end := sp.Start, sp.End
		if start < 0 {
			start = 0
		}
		if end > len(tokens) {
			end = len(tokens)
		}
		for i := start; i < end; i++ {
			marked[i] = true
			any = true
		}
	}
	if !any {
		return "", false
	}

	tags := make([]tagged, len(tokens))
	for i, tok := range tokens {
		if marked[i] {
			tags[i] = tagged{text: openMark + tok + closeMark, marked: true}
		} else {
			tags[i] = tagged{text: tok, marked: false}
		}
	}

	// Merge adjacent marks: strip the closing tag of i and the opening
	// tag of i+1 whenever both are marked, so consecutive matched tokens
	// read as one <mark>...</mark> run instead of many.
	for i := 0; i < len(tags); i++ {
		if !tags[i].marked {
			continue
		}
		tags[i].text = strings.TrimSuffix(tags[i].text, closeMark)
		if i+1 < len(tags) && tags[i+1].marked {
			tags[i+1].text = strings.TrimPrefix(tags[i+1].text, openMark)
		} else {
			tags[i].text += closeMark
		}
	}

	groups := matchedGroups(marked)
	contextSize := b.ContextSize
	if contextSize <= 0 {
		contextSize = DefaultContextSize
	}

	var parts []string
	// Walking starts at token 0 so the gap check also covers the lead-in
	// before the first window: a first match away from the start gets a
	// leading ellipsis like any other gap.
	prevEnd := 0
	reachedEnd := false
	for _, g := range groups {
		winStart := g.Start - contextSize
		if winStart < 0 {
			winStart = 0
		}
		winEnd := g.End + contextSize
		if winEnd > len(tags) {
			winEnd = len(tags)
		}

		switch {
		case winStart > prevEnd:
			// gap between the previous window and this one
			parts = append(parts, "...")
		case winStart < prevEnd:
			// overlap: truncate this window's leading edge to where the
			// previous one already left off, whether the overlap falls in
			// the matched region or only in the context tails
			winStart = prevEnd
		}
		for i := winStart; i < winEnd; i++ {
			parts = append(parts, tags[i].text)
		}
		if winEnd > prevEnd {
			prevEnd = winEnd
		}
		reachedEnd = prevEnd >= len(tags)
	}
	if !reachedEnd {
		parts = append(parts, "...")
	}
	return strings.Join(parts, " "), true
}

type group struct{ Start, End int }

// matchedGroups collapses a marked[] bitmap into contiguous runs.
func matchedGroups(marked []bool) []group {
	var groups []group
	i := 0
	for i < len(marked) {
		if !marked[i] {
			i++
			continue
		}
		start := i
		for i < len(marked) && marked[i] {
			i++
		}
		groups = append(groups, group{Start: start, End: i})
	}
	return groups
}

// WrapLiteral implements the literal (non-AI) path's highlight: a
// single case-insensitive substring wrap of query in text, with no
// tokenization pass. Returns the original text unchanged, plus false,
// when query does not occur in text.
func WrapLiteral(text, query string) (string, bool) {
	if query == "" {
		return text, false
	}
	lowerText := strings.ToLower(text)
	lowerQuery := strings.ToLower(query)
	idx := strings.Index(lowerText, lowerQuery)
	if idx < 0 {
		return text, false
	}
	end := idx + len(query)
	return text[:idx] + openMark + text[idx:end] + closeMark + text[end:], true
}
