package fuzzy

import "sort"

// Threshold is the fuzzy-acceptance cutoff shared by ratio and
// partial-ratio comparisons throughout the matcher.
const Threshold = 90

// Span is a half-open character range [Start, End) in rune offsets.
type Span struct {
	Start int
	End   int
}

// MatchKeyword matches a single tokenized word against a list of
// keyword search terms: accept if ratio(w,s) > 90, or if
// len(w) >= len(s) and partial_ratio(w,s) > 90.
func MatchKeyword(word string, terms []string) bool {
	wr := []rune(word)
	for _, term := range terms {
		if Ratio(word, term) > Threshold {
			return true
		}
		if len(wr) >= len([]rune(term)) {
			if _, ok := PartialRatioAlignment(word, term, Threshold); ok {
				return true
			}
		}
	}
	return false
}

// MatchKeywordIndices returns the sorted, deduplicated set of token indices
// in tokens that match any of terms under MatchKeyword.
func MatchKeywordIndices(tokens []string, terms []string) []int {
	if len(terms) == 0 {
		return nil
	}
	seen := make(map[int]struct{})
	for i, tok := range tokens {
		if MatchKeyword(tok, terms) {
			seen[i] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// MatchSentenceSpans runs the FIFO splitting matcher for each sentence
// search term against text, returning the set of matched half-open rune
// spans. Ties among queue items are resolved by processing order
// (FIFO).
func MatchSentenceSpans(text string, terms []string) []Span {
	var result []Span
	for _, term := range terms {
		spans := matchOne([]rune(text), term)
		result = append(result, spans...)
	}
	return dedupSpans(result)
}

type queueItem struct {
	text  []rune
	start int
}

func matchOne(text []rune, search string) []Span {
	sr := []rune(search)
	queue := []queueItem{{text: text, start: 0}}
	var spans []Span

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		// A full-ratio hit ends the search for this term: remaining
		// queue fragments are abandoned, not drained.
		if Ratio(string(item.text), search) > Threshold {
			spans = append(spans, Span{Start: item.start, End: item.start + len(item.text)})
			break
		}
		if len(item.text) < len(sr) {
			continue
		}
		align, ok := PartialRatioAlignment(string(item.text), search, Threshold)
		if !ok {
			continue
		}
		spans = append(spans, Span{Start: item.start + align.Start, End: item.start + align.End})
		if align.Start > 0 {
			queue = append(queue, queueItem{text: item.text[:align.Start], start: item.start})
		}
		if align.End < len(item.text) {
			queue = append(queue, queueItem{text: item.text[align.End:], start: item.start + align.End})
		}
	}
	return spans
}

func dedupSpans(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	seen := make(map[Span]struct{}, len(spans))
	out := make([]Span, 0, len(spans))
	for _, s := range spans {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End-out[i].Start > out[j].End-out[j].Start
	})
	return out
}
