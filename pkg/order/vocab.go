package order

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/vango-go/vai-kiosk/pkg/menu"
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"واحد": 1, "واحده": 1,
	"اثنين": 2, "اتنين": 2, "ثنين": 2,
	"ثلاثة": 3, "تلاتة": 3,
	"أربعة": 4,
	"خمسة": 5,
	"ستة": 6,
	"سبعة": 7,
	"ثمانية": 8, "تمانية": 8,
	"تسعة": 9,
	"عشرة": 10,
}

var foldedNumberWords = func() map[string]int {
	out := make(map[string]int, len(numberWords))
	for w, n := range numberWords {
		out[menu.Fold(w)] = n
	}
	return out
}()

// quantityPattern matches a digit run or any spelled-out number word.
var quantityPattern = func() string {
	words := make([]string, 0, len(foldedNumberWords))
	for w := range foldedNumberWords {
		words = append(words, regexp.QuoteMeta(w))
	}
	// Longest first so alternation never stops at a prefix.
	slices.SortFunc(words, func(a, b string) int { return len(b) - len(a) })
	return `\d+|` + strings.Join(words, "|")
}()

// parseQuantity reads a folded quantity token.
func parseQuantity(tok string) (int, bool) {
	if n, err := strconv.Atoi(tok); err == nil {
		return n, true
	}
	n, ok := foldedNumberWords[tok]
	return n, ok
}

// vocabulary is a set of phrases searched in folded text.
type vocabulary struct {
	re *regexp.Regexp
}

func newVocabulary(phrases ...string) vocabulary {
	parts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		words := strings.Fields(menu.Fold(p))
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		parts = append(parts, strings.Join(words, `\s+`))
	}
	return vocabulary{re: regexp.MustCompile(strings.Join(parts, "|"))}
}

func (v vocabulary) in(folded string) bool { return v.re.MatchString(folded) }

var (
	removalVocab = newVocabulary(
		"شلنا", "حذف", "عدلنا", "أشيل", "شيل", "احذف", "هنشيل", "تم حذف", "حذفت",
		"removed", "remove", "delete", "cancel",
	)
	menuVocab = newVocabulary(
		"menu", "available", "we have",
		"قائمة", "متاح", "موجود", "يوجد", "لدينا", "نقدم",
	)
	confirmationVocab = newVocabulary(
		"current order", "order is",
		"صار الطلب", "الطلب الآن", "عندنا", "عندي", "طلبك",
	)
	statementVocab = newVocabulary(
		"order", "طلبك", "عندك", "صار",
	)
)

// remainderClause captures what is left on the order after a removal, as in
// "now you have only: 1 Sprite".
var remainderClause = regexp.MustCompile(
	`(?:الان|صار|كده|now)\s+(?:عندك|عندنا|you\s+have|order\s+is|order\s+has)\s*(?:فقط|only)?\s*:?\s*([^.،؟?!]+)`,
)

// HasRemoval reports whether text carries removal vocabulary.
func HasRemoval(text string) bool {
	return removalVocab.in(menu.Fold(text))
}
