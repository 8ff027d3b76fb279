// Package text provides HTML-to-text extraction, CJK-heuristic language
// detection, and truncation/whitespace helpers shared across collectors and
// the dedup/enrich stages.
package text

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// cjkRanges are the Unicode blocks treated as Japanese/Chinese/Korean for the
// purposes of the language-detection heuristic: CJK Unified Ideographs,
// Hiragana, Katakana, and Halfwidth Katakana.
var cjkRanges = []struct{ lo, hi rune }{
	{0x4E00, 0x9FFF},
	{0x3040, 0x309F},
	{0x30A0, 0x30FF},
	{0xFF65, 0xFF9F},
}

func isCJK(r rune) bool {
	for _, rg := range cjkRanges {
		if r >= rg.lo && r <= rg.hi {
			return true
		}
	}
	return false
}

// cjkThreshold is the fraction of CJK characters above which text is
// classified as Japanese.
const cjkThreshold = 0.2

// DetectLanguage classifies s as Japanese when more than cjkThreshold of its
// letters fall in a CJK Unicode block, else English.
func DetectLanguage(s string) string {
	var letters, cjk int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if isCJK(r) {
			cjk++
		}
	}
	if letters == 0 {
		return "en"
	}
	if float64(cjk)/float64(letters) > cjkThreshold {
		return "ja"
	}
	return "en"
}

// HasCJK reports whether s contains any CJK character; used by the
// cross-language dedup stage as a cheap opposite-language-candidate filter.
func HasCJK(s string) bool {
	for _, r := range s {
		if isCJK(r) {
			return true
		}
	}
	return false
}

// stripSelectors are the containers whose contents never belong in extracted
// body text, regardless of which collector invoked the stripper.
var stripSelectors = []string{"nav", "header", "footer", "aside", "script", "style"}

// HTMLToText strips tags, navigation/boilerplate containers, and collapses
// whitespace, returning plain body text.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return CleanWhitespace(html)
	}

	for _, sel := range stripSelectors {
		doc.Find(sel).Remove()
	}

	return CleanWhitespace(doc.Text())
}

// CleanWhitespace collapses runs of whitespace into single spaces and trims
// the result.
func CleanWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// Truncate cuts s to at most n runes, leaving it unchanged if it already fits.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
