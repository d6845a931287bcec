package ingest

import (
	"strings"
	"unicode"
)

// LanguageDetector is the capability interface used when a chunk's
// language_hint is absent (spec.md §4.4 step 3). No language-identification
// library appears anywhere in the retrieved example pack, so this is
// implemented directly rather than adding an invented dependency.
type LanguageDetector interface {
	Detect(text string) string
}

// scriptDetector is a heuristic LanguageDetector: it classifies by Unicode
// script first (unambiguous for CJK, Cyrillic, Arabic, Hebrew, Greek), then
// falls back to a small stopword vote among the Latin-script languages it
// knows about. Good enough to pick a default when the caller supplies no
// hint; never the sole authority the pipeline relies on for correctness.
type scriptDetector struct{}

// NewScriptDetector constructs the default LanguageDetector.
func NewScriptDetector() LanguageDetector { return scriptDetector{} }

var stopwords = map[string][]string{
	"en": {" the ", " and ", " is ", " of ", " to ", " a "},
	"es": {" el ", " la ", " de ", " que ", " y ", " los "},
	"fr": {" le ", " la ", " de ", " et ", " les ", " une "},
	"de": {" der ", " die ", " und ", " das ", " ist ", " ein "},
	"pt": {" o ", " a ", " de ", " que ", " e ", " do "},
}

func (scriptDetector) Detect(text string) string {
	if text == "" {
		return "und"
	}

	var hasHan, hasHiragana, hasKatakana, hasHangul, hasCyrillic, hasArabic, hasHebrew, hasGreek bool
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			hasHan = true
		case unicode.Is(unicode.Hiragana, r):
			hasHiragana = true
		case unicode.Is(unicode.Katakana, r):
			hasKatakana = true
		case unicode.Is(unicode.Hangul, r):
			hasHangul = true
		case unicode.Is(unicode.Cyrillic, r):
			hasCyrillic = true
		case unicode.Is(unicode.Arabic, r):
			hasArabic = true
		case unicode.Is(unicode.Hebrew, r):
			hasHebrew = true
		case unicode.Is(unicode.Greek, r):
			hasGreek = true
		}
	}

	switch {
	case hasHiragana || hasKatakana:
		return "ja"
	case hasHangul:
		return "ko"
	case hasHan:
		return "zh"
	case hasCyrillic:
		return "ru"
	case hasArabic:
		return "ar"
	case hasHebrew:
		return "he"
	case hasGreek:
		return "el"
	}

	padded := " " + strings.ToLower(text) + " "
	best, bestCount := "en", -1
	for lang, words := range stopwords {
		count := 0
		for _, w := range words {
			count += countOccurrences(padded, w)
		}
		if count > bestCount {
			best, bestCount = lang, count
		}
	}
	if bestCount <= 0 {
		return "en"
	}
	return best
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
		}
	}
	return count
}
