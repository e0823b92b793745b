package menu

import (
	"strings"
	"unicode/utf8"
)

// Matcher resolves free text to a catalog item.
type Matcher interface {
	Match(text string) (Item, bool)
}

// Chain tries matchers in order and returns the first hit.
type Chain []Matcher

func (c Chain) Match(text string) (Item, bool) {
	for _, m := range c {
		if it, ok := m.Match(text); ok {
			return it, true
		}
	}
	return Item{}, false
}

// NewMatcher returns the exact, substring, word-overlap chain over cat.
func NewMatcher(cat *Catalog) Chain {
	return Chain{
		ExactMatcher{Catalog: cat},
		SubstringMatcher{Catalog: cat},
		WordOverlapMatcher{Catalog: cat},
	}
}

// ExactMatcher matches whole names, tolerating plurals and the Arabic article.
type ExactMatcher struct {
	Catalog *Catalog
}

func (m ExactMatcher) Match(text string) (Item, bool) {
	folded := Fold(text)
	if folded == "" {
		return Item{}, false
	}
	if it, ok := m.Catalog.Lookup(folded); ok {
		return it, true
	}
	words := strings.Fields(StripArticle(folded))
	for i, forms := range m.Catalog.forms {
		for _, f := range forms {
			if wordsEq(words, strings.Fields(StripArticle(f))) {
				return m.Catalog.items[i], true
			}
		}
	}
	return Item{}, false
}

func wordsEq(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !wordEq(a[i], b[i]) {
			return false
		}
	}
	return true
}

// SubstringMatcher matches when the text contains a name, or a name contains
// the text. Containing a name wins over being contained; longer names win.
type SubstringMatcher struct {
	Catalog *Catalog
}

func (m SubstringMatcher) Match(text string) (Item, bool) {
	t := StripArticle(Fold(text))
	if utf8.RuneCountInString(t) < 2 {
		return Item{}, false
	}
	best, bestLen, contained := -1, 0, false
	for i, forms := range m.Catalog.forms {
		for _, f := range forms {
			f = StripArticle(f)
			switch {
			case strings.Contains(t, f):
				if !contained || len(f) > bestLen {
					best, bestLen, contained = i, len(f), true
				}
			case !contained && best < 0 && utf8.RuneCountInString(t) >= 3 && strings.Contains(f, t):
				best = i
			}
		}
	}
	if best < 0 {
		return Item{}, false
	}
	return m.Catalog.items[best], true
}

// WordOverlapMatcher scores items by shared words. An equal word scores 2, a
// word contained in the other scores 1. Ties keep catalog order.
type WordOverlapMatcher struct {
	Catalog *Catalog
}

func (m WordOverlapMatcher) Match(text string) (Item, bool) {
	var words []string
	for _, w := range strings.Fields(StripArticle(Fold(text))) {
		if utf8.RuneCountInString(w) > 1 {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return Item{}, false
	}
	best, bestScore := -1, 0
	for i, forms := range m.Catalog.forms {
		score := 0
		for _, f := range forms {
			if s := overlapScore(words, strings.Fields(StripArticle(f))); s > score {
				score = s
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Item{}, false
	}
	return m.Catalog.items[best], true
}

func overlapScore(words, name []string) int {
	score := 0
	for _, w := range words {
		wordScore := 0
		for _, n := range name {
			switch {
			case wordEq(w, n):
				wordScore = 2
			case wordScore == 0 && (strings.Contains(n, w) || strings.Contains(w, n)):
				wordScore = 1
			}
		}
		score += wordScore
	}
	return score
}
