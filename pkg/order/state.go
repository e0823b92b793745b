// Package order holds the canonical order for the current customer and the
// extractor that derives it from the agent's restated utterances.
package order

import (
	"math"
	"slices"
	"strings"

	"github.com/vango-go/vai-kiosk/pkg/menu"
)

// Line is one item on the order.
type Line struct {
	Item           menu.Item `json:"item"`
	Quantity       int       `json:"quantity"`
	Customizations []string  `json:"customizations,omitempty"`
}

// Key identifies lines that must be merged: same item, same customizations.
func (l Line) Key() string {
	return l.Item.Name + "\x00" + strings.Join(l.Customizations, "\x1f")
}

// Subtotal is quantity times unit price.
func (l Line) Subtotal() float64 {
	return float64(l.Quantity) * l.Item.UnitPrice
}

func (l Line) clone() Line {
	l.Customizations = slices.Clone(l.Customizations)
	return l
}

// Merge folds lines with equal keys together by summing quantities, keeping
// first-seen order. Lines with a non-positive quantity are dropped.
func Merge(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if i, ok := index[l.Key()]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.Key()] = len(out)
		out = append(out, l.clone())
	}
	return out
}

// Total sums line subtotals, rounded to cents.
func Total(lines []Line) float64 {
	var sum float64
	for _, l := range lines {
		sum += l.Subtotal()
	}
	return math.Round(sum*100) / 100
}

// State is the order being built. It is not safe for concurrent use; callers
// serialize access.
type State struct {
	lines []Line
}

// Lines returns a deep copy of the current lines.
func (s *State) Lines() []Line {
	out := make([]Line, len(s.lines))
	for i, l := range s.lines {
		out[i] = l.clone()
	}
	return out
}

func (s *State) Len() int { return len(s.lines) }

func (s *State) IsEmpty() bool { return len(s.lines) == 0 }

// Total is recomputed from the lines on every call.
func (s *State) Total() float64 { return Total(s.lines) }

// Replace discards the current lines and installs lines.
func (s *State) Replace(lines []Line) {
	s.lines = Merge(lines)
}

// Upsert sets the quantity of the first line holding the same item, or
// appends line when the item is not on the order yet.
func (s *State) Upsert(line Line) {
	if line.Quantity <= 0 {
		return
	}
	for i := range s.lines {
		if s.lines[i].Item.Name == line.Item.Name {
			s.lines[i].Quantity = line.Quantity
			s.lines = Merge(s.lines)
			return
		}
	}
	s.lines = append(s.lines, line.clone())
}

// RemoveByName drops every line whose item is called name, in English or
// the localized form. It returns the number of lines removed.
func (s *State) RemoveByName(name string) int {
	want := menu.StripArticle(menu.Fold(name))
	if want == "" {
		return 0
	}
	kept := s.lines[:0]
	removed := 0
	for _, l := range s.lines {
		if menu.StripArticle(menu.Fold(l.Item.Name)) == want || menu.StripArticle(menu.Fold(l.Item.LocalizedName)) == want {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	clear(s.lines[len(kept):])
	s.lines = kept
	return removed
}

// Clear empties the order.
func (s *State) Clear() { s.lines = nil }

// Apply installs an extraction result and reports whether the order changed.
func (s *State) Apply(r Result) bool {
	before := s.Lines()
	switch r.Action {
	case ActionReplace:
		s.Replace(r.Lines)
	case ActionMerge:
		for _, l := range r.Lines {
			s.Upsert(l)
		}
	default:
		return false
	}
	return !Equal(before, s.lines)
}

// Equal reports whether two line lists are identical in order and content.
func Equal(a, b []Line) bool {
	return slices.EqualFunc(a, b, func(x, y Line) bool {
		return x.Key() == y.Key() && x.Quantity == y.Quantity
	})
}
