package menu

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	arabicArticle = "ال"
	tatweel       = 'ـ'
)

// newFolder builds a fresh transformer; transformers carry state and must not
// be shared between goroutines.
func newFolder() transform.Transformer {
	return transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == tatweel })),
		runes.Map(foldRune),
		cases.Fold(),
		norm.NFC,
	)
}

func foldRune(r rune) rune {
	switch {
	case r >= '٠' && r <= '٩':
		return '0' + (r - '٠')
	case r >= '۰' && r <= '۹':
		return '0' + (r - '۰')
	case r == 'ة':
		return 'ه'
	case r == 'ى':
		return 'ي'
	}
	return r
}

// Fold normalizes text for comparison: case folded, combining marks removed
// (Latin accents, Arabic harakat, hamza carriers), Arabic-Indic digits mapped
// to ASCII, taa marbuta and alef maqsura unified, whitespace collapsed.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	out, _, err := transform.String(newFolder(), s)
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(out), " ")
}

// StripArticle removes the Arabic definite article from the start of every
// word of an already folded string.
func StripArticle(folded string) string {
	words := strings.Fields(folded)
	for i, w := range words {
		words[i] = stripWordArticle(w)
	}
	return strings.Join(words, " ")
}

func stripWordArticle(w string) string {
	rest, ok := strings.CutPrefix(w, arabicArticle)
	if !ok || utf8.RuneCountInString(rest) < 2 {
		return w
	}
	return rest
}

// DualStem strips an Arabic dual suffix (ين or ان) from a folded word. ok is
// false when the word carries no suffix or the stem would be too short.
func DualStem(word string) (stem string, ok bool) {
	for _, suffix := range []string{"ين", "ان"} {
		if rest, found := strings.CutSuffix(word, suffix); found && utf8.RuneCountInString(rest) >= 3 {
			return rest, true
		}
	}
	return word, false
}

// wordEq compares folded words, tolerating an English plural suffix.
func wordEq(a, b string) bool {
	if a == b {
		return true
	}
	for _, suffix := range []string{"s", "es"} {
		if a == b+suffix || b == a+suffix {
			return true
		}
	}
	return false
}
