package order

import (
	"strings"
	"unicode"
)

// splitOutsideBrackets splits s at any rune for which sep returns true,
// ignoring separators inside [...].
func splitOutsideBrackets(s string, sep func(rune) bool) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i, r := range s {
		switch {
		case r == '[':
			depth++
		case r == ']':
			if depth > 0 {
				depth--
			}
		case depth == 0 && sep(r):
			parts = append(parts, s[start:i])
			start = i + len(string(r))
		}
	}
	return append(parts, s[start:])
}

func isListSeparator(r rune) bool { return r == ',' || r == '،' }

// splitConjunctions splits s on a standalone "and" or "و" outside brackets.
// With onlyBeforeQuantity set, a conjunction splits only when the next word
// starts with a digit.
func splitConjunctions(s string, onlyBeforeQuantity bool) []string {
	words := strings.Fields(s)
	var (
		parts []string
		cur   []string
		depth int
	)
	for i, w := range words {
		isConj := depth == 0 && (strings.EqualFold(w, "and") || w == "و")
		if isConj && onlyBeforeQuantity {
			isConj = i+1 < len(words) && startsWithDigit(words[i+1])
		}
		depth += strings.Count(w, "[") - strings.Count(w, "]")
		if depth < 0 {
			depth = 0
		}
		if isConj {
			if len(cur) > 0 {
				parts = append(parts, strings.Join(cur, " "))
			}
			cur = nil
			continue
		}
		cur = append(cur, w)
	}
	if len(cur) > 0 {
		parts = append(parts, strings.Join(cur, " "))
	}
	return parts
}

func startsWithDigit(w string) bool {
	for _, r := range w {
		return unicode.IsDigit(r)
	}
	return false
}

// splitItems breaks a restated order into item segments.
func splitItems(span string) []string {
	parts := splitOutsideBrackets(span, isListSeparator)
	if len(parts) == 1 {
		return splitConjunctions(parts[0], false)
	}
	var out []string
	for _, p := range parts {
		out = append(out, splitConjunctions(p, true)...)
	}
	return out
}

// splitCustomizations splits a bracket clause on commas.
func splitCustomizations(clause string) []string {
	var out []string
	for _, c := range strings.FieldsFunc(clause, isListSeparator) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
