package order

import (
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vango-go/vai-kiosk/pkg/menu"
)

// Action tells the caller how to apply extracted lines.
type Action int

const (
	ActionNone Action = iota
	ActionReplace
	ActionMerge
)

func (a Action) String() string {
	switch a {
	case ActionReplace:
		return "replace"
	case ActionMerge:
		return "merge"
	default:
		return "none"
	}
}

// Strategy names the extraction path that produced a result.
type Strategy string

const (
	StrategyNone       Strategy = "none"
	StrategyStructured Strategy = "structured"
	StrategyScan       Strategy = "scan"
	StrategyDeletion   Strategy = "deletion"
)

// ScanPolicy decides whether keyword-scan results replace or merge.
type ScanPolicy int

const (
	// ScanReplaceOnStatement replaces when the utterance reads as a statement
	// of the whole order, and merges otherwise.
	ScanReplaceOnStatement ScanPolicy = iota
	ScanAlwaysMerge
	ScanAlwaysReplace
)

// Result is the outcome of extracting one agent utterance.
type Result struct {
	Action   Action
	Strategy Strategy
	Lines    []Line
	// Deletion is set when the utterance carries removal vocabulary.
	Deletion bool
	// Reason explains a no-op result for logging.
	Reason string
}

// menuListingThreshold is the distinct item count at which a scan is taken
// to be the agent reading out the menu.
const menuListingThreshold = 5

// minStructuredSpan is the shortest captured span treated as an item list.
const minStructuredSpan = 3

var structuredMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?is)طلبك\s*(?:هو|ال[آا]ن|صار|كان)?\s*:+\s*(.*?)(?:\.(?:\s|$)|[؟?!]|\s*تحب|\s*في\s+حاجة|\s*حاجة\s+تانية|$)`),
	regexp.MustCompile(`(?is)الطلب\s*(?:هو|ال[آا]ن|صار)?\s*:+\s*(.*?)(?:\.(?:\s|$)|[؟?!]|\s*تحب|\s*في\s+حاجة|\s*حاجة\s+تانية|$)`),
	regexp.MustCompile(`(?is)your\s+order\s+(?:is\s+now|is|now)?\s*:+\s*(.*?)(?:\.(?:\s|$)|[?!؟]|\s*would\s+you|\s*anything\s+else|$)`),
}

var customizationClause = regexp.MustCompile(`^(.+?)\s*\[([^\]]*)\]`)

// parenthetical drops asides such as a spoken price, "1 Water ($1.99)".
var parenthetical = regexp.MustCompile(`\s*\([^)]*\)`)

// Options configures an Extractor.
type Options struct {
	// Matcher resolves item text; defaults to menu.NewMatcher(catalog).
	Matcher menu.Matcher
	Policy  ScanPolicy
	Logger  *slog.Logger
}

// Extractor turns agent utterances into order mutations. It is stateless and
// safe for concurrent use.
type Extractor struct {
	catalog  *menu.Catalog
	matcher  menu.Matcher
	exact    menu.Matcher
	policy   ScanPolicy
	scanners []itemScanner
	logger   *slog.Logger
}

// NewExtractor builds an extractor over catalog.
func NewExtractor(catalog *menu.Catalog, opts Options) *Extractor {
	e := &Extractor{
		catalog: catalog,
		matcher: opts.Matcher,
		exact:   menu.ExactMatcher{Catalog: catalog},
		policy:  opts.Policy,
		logger:  opts.Logger,
	}
	if e.matcher == nil {
		e.matcher = menu.NewMatcher(catalog)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	for _, it := range catalog.Items() {
		e.scanners = append(e.scanners, newItemScanner(it))
	}
	return e
}

// Extract applies the structured, scan and deletion strategies in order and
// returns the first that yields a decision.
func (e *Extractor) Extract(text string) Result {
	folded := menu.Fold(text)
	deletion := removalVocab.in(folded)

	if lines, ok := e.structured(text); ok {
		return Result{Action: ActionReplace, Strategy: StrategyStructured, Lines: lines, Deletion: deletion}
	}

	res := e.scan(folded, deletion)
	res.Deletion = deletion
	if res.Action != ActionNone {
		return res
	}
	if deletion {
		return Result{Action: ActionNone, Strategy: StrategyDeletion, Deletion: true, Reason: res.Reason}
	}
	return res
}

// structured parses "Your order is: ..." restatements. ok is false when no
// marker is present or the span yielded nothing usable.
func (e *Extractor) structured(text string) ([]Line, bool) {
	span, found := findStructuredSpan(text)
	if !found {
		return nil, false
	}
	if utf8.RuneCountInString(span) < minStructuredSpan {
		return []Line{}, true
	}

	var lines []Line
	for _, seg := range splitItems(span) {
		line, ok := e.parseSegment(seg)
		if !ok {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		e.logger.Debug("structured restatement yielded no items", "span", span)
		return nil, false
	}
	return Merge(lines), true
}

func findStructuredSpan(text string) (string, bool) {
	best, bestAt := "", -1
	for _, re := range structuredMarkers {
		m := re.FindStringSubmatchIndex(text)
		if m == nil {
			continue
		}
		if bestAt < 0 || m[0] < bestAt {
			best, bestAt = strings.TrimSpace(text[m[2]:m[3]]), m[0]
		}
	}
	return best, bestAt >= 0
}

// parseSegment reads "[qty] item [custom, custom]".
func (e *Extractor) parseSegment(seg string) (Line, bool) {
	seg = strings.TrimSpace(parenthetical.ReplaceAllString(seg, ""))
	if utf8.RuneCountInString(seg) < 2 {
		return Line{}, false
	}

	var customs []string
	if m := customizationClause.FindStringSubmatch(seg); m != nil {
		customs = splitCustomizations(m[2])
		seg = strings.TrimSpace(m[1])
	}

	words := strings.Fields(menu.Fold(seg))
	if len(words) == 0 {
		return Line{}, false
	}
	qty, explicit := 1, false
	if n, ok := leadingQuantity(words[0]); ok {
		qty, explicit = n, true
		words = words[1:]
		if len(words) > 0 && (words[0] == "x" || words[0] == "×" || words[0] == "من") {
			words = words[1:]
		}
	}
	if len(words) == 0 || qty <= 0 {
		return Line{}, false
	}
	itemText := strings.Join(words, " ")

	if !explicit {
		if stem, ok := menu.DualStem(menu.StripArticle(words[0])); ok {
			dual := append([]string{stem}, words[1:]...)
			if it, ok := e.exact.Match(strings.Join(dual, " ")); ok {
				return Line{Item: it, Quantity: 2, Customizations: customs}, true
			}
		}
	}

	it, ok := e.matcher.Match(itemText)
	if !ok {
		e.logger.Debug("order segment matched no menu item", "segment", seg)
		return Line{}, false
	}
	return Line{Item: it, Quantity: qty, Customizations: customs}, true
}

// leadingQuantity reads "2", "2x" or a number word.
func leadingQuantity(tok string) (int, bool) {
	if n, ok := parseQuantity(tok); ok {
		return n, true
	}
	if trimmed, found := strings.CutSuffix(tok, "x"); found {
		return parseQuantity(trimmed)
	}
	return parseQuantity(strings.TrimSuffix(tok, "×"))
}

func (e *Extractor) scan(folded string, deletion bool) Result {
	target := folded
	restricted := false
	if deletion {
		m := remainderClause.FindStringSubmatch(folded)
		if m == nil {
			return Result{Action: ActionNone, Strategy: StrategyNone, Reason: "removal without remaining order"}
		}
		target, restricted = m[1], true
	} else if menuVocab.in(folded) && !confirmationVocab.in(folded) {
		return Result{Action: ActionNone, Strategy: StrategyNone, Reason: "menu listing"}
	}

	type hit struct {
		line  Line
		first int
	}
	var hits []hit
	for _, s := range e.scanners {
		qty, first := s.scan(target)
		if qty > 0 {
			hits = append(hits, hit{line: Line{Item: s.item, Quantity: qty}, first: first})
		}
	}
	if len(hits) == 0 {
		return Result{Action: ActionNone, Strategy: StrategyNone, Reason: "no menu items mentioned"}
	}
	if len(hits) >= menuListingThreshold {
		return Result{Action: ActionNone, Strategy: StrategyNone, Reason: "menu listing"}
	}
	slices.SortStableFunc(hits, func(a, b hit) int { return a.first - b.first })

	lines := make([]Line, len(hits))
	for i, h := range hits {
		lines[i] = h.line
	}

	action := ActionMerge
	switch {
	case restricted, e.policy == ScanAlwaysReplace:
		action = ActionReplace
	case e.policy == ScanReplaceOnStatement && statementVocab.in(folded):
		action = ActionReplace
	}
	return Result{Action: action, Strategy: StrategyScan, Lines: lines}
}

// itemScanner finds every mention of one menu item in folded text.
type itemScanner struct {
	item menu.Item
	re   *regexp.Regexp
}

func newItemScanner(it menu.Item) itemScanner {
	var names []string
	if en := strings.Fields(menu.Fold(it.Name)); len(en) > 0 {
		names = append(names, quoteWords(en)+`(?:e?s)?`)
	}
	if ar := strings.Fields(menu.StripArticle(menu.Fold(it.LocalizedName))); len(ar) > 0 {
		parts := make([]string, len(ar))
		for i, w := range ar {
			parts[i] = `(?:ال)?` + regexp.QuoteMeta(w)
			if i == 0 {
				parts[i] += `(ين|ان)?`
			}
		}
		names = append(names, strings.Join(parts, `\s+`))
	}
	// Groups: 1 quantity, 2 dual suffix (absent without a localized name).
	pattern := `(?:^|[^\pL\pN])(?:و)?(?:(` + quantityPattern + `)\s*(?:من\s+)?)?(?:` + strings.Join(names, "|") + `)`
	return itemScanner{item: it, re: regexp.MustCompile(pattern)}
}

func quoteWords(words []string) string {
	q := make([]string, len(words))
	for i, w := range words {
		q[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(q, `\s+`)
}

// scan returns the accumulated quantity of all mentions and the offset of the
// first one.
func (s itemScanner) scan(folded string) (total int, first int) {
	first = -1
	for _, m := range s.re.FindAllStringSubmatchIndex(folded, -1) {
		if next, _ := utf8.DecodeRuneInString(folded[m[1]:]); m[1] < len(folded) && (unicode.IsLetter(next) || unicode.IsDigit(next)) {
			continue
		}
		qty := 1
		switch {
		case m[2] >= 0:
			if n, ok := parseQuantity(folded[m[2]:m[3]]); ok && n > 0 {
				qty = n
			}
		case len(m) > 4 && m[4] >= 0:
			qty = 2
		}
		total += qty
		if first < 0 {
			first = m[0]
		}
	}
	return total, first
}
