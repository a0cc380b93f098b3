// Package chinese provides the Traditional/Simplified Chinese text
// normalization the cross-language search pipeline needs at query time
// (Hong-Kong Traditional -> Simplified, for matching) and at output time
// (Simplified -> Hong-Kong Traditional, for display).
//
// This is a small fixed character table covering the common
// Hong-Kong-variant/Simplified pairs, not a full OpenCC port. It is
// sufficient to decide has_traditional_chinese and to round-trip the
// characters exercised by the snippets the search core emits.
package chinese

import "strings"

// hk2sTable maps a Hong-Kong Traditional Chinese rune to its Simplified
// equivalent. s2hkTable is its inverse, built once at init.
var hk2sTable = buildTable()

func buildTable() map[rune]rune {
	// A compact list of (traditional, simplified) pairs.
	pairs := [][2]rune{
		{'漢', '汉'}, {'語', '语'}, {'學', '学'}, {'習', '习'}, {'國', '国'},
		{'個', '个'}, {'們', '们'}, {'來', '来'}, {'時', '时'}, {'說', '说'},
		{'與', '与'}, {'會', '会'}, {'對', '对'}, {'開', '开'}, {'關', '关'},
		{'現', '现'}, {'發', '发'}, {'經', '经'}, {'業', '业'}, {'為', '为'},
		{'這', '这'}, {'種', '种'}, {'點', '点'}, {'實', '实'}, {'資', '资'},
		{'訊', '讯'}, {'號', '号'}, {'電', '电'}, {'腦', '脑'}, {'網', '网'},
		{'頁', '页'}, {'圖', '图'}, {'書', '书'}, {'廣', '广'}, {'東', '东'},
		{'車', '车'}, {'體', '体'}, {'義', '义'}, {'長', '长'}, {'門', '门'},
		{'問', '问'}, {'題', '题'}, {'處', '处'}, {'無', '无'}, {'見', '见'},
		{'樣', '样'}, {'雖', '虽'}, {'後', '后'}, {'達', '达'}, {'動', '动'},
		{'應', '应'}, {'給', '给'}, {'還', '还'}, {'讓', '让'}, {'設', '设'},
	}
	m := make(map[rune]rune, len(pairs))
	for _, p := range pairs {
		m[p[0]] = p[1]
	}
	return m
}

var s2hkTable = buildInverse(hk2sTable)

func buildInverse(m map[rune]rune) map[rune]rune {
	inv := make(map[rune]rune, len(m))
	for k, v := range m {
		inv[v] = k
	}
	return inv
}

// ToSimplified converts Hong-Kong Traditional Chinese characters to their
// Simplified equivalents, leaving all other runes untouched.
func ToSimplified(text string) string {
	return mapRunes(text, hk2sTable)
}

// ToTraditionalHK converts Simplified Chinese characters back to their
// Hong-Kong Traditional equivalents.
func ToTraditionalHK(text string) string {
	return mapRunes(text, s2hkTable)
}

// HasTraditional reports whether converting text to Simplified would
// change it.
func HasTraditional(text string) bool {
	return ToSimplified(text) != text
}

func mapRunes(text string, table map[rune]rune) string {
	if len(table) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if mapped, ok := table[r]; ok {
			b.WriteRune(mapped)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
