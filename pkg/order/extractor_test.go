package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-kiosk/pkg/menu"
)

type wantLine struct {
	name    string
	qty     int
	customs []string
}

func assertLines(t *testing.T, got []Line, want ...wantLine) {
	t.Helper()
	require.Len(t, got, len(want))
	for i, w := range want {
		assert.Equal(t, w.name, got[i].Item.Name, "line %d", i)
		assert.Equal(t, w.qty, got[i].Quantity, "line %d", i)
		assert.Equal(t, w.customs, got[i].Customizations, "line %d", i)
	}
}

func newTestExtractor(policy ScanPolicy) *Extractor {
	return NewExtractor(menu.Default(), Options{Policy: policy})
}

func TestExtract_StructuredEnglish(t *testing.T) {
	res := newTestExtractor(ScanReplaceOnStatement).Extract(
		"Great! Your order is: 2 Cheeseburgers [no onions, extra cheese], 1 Sprite. Anything else?")

	assert.Equal(t, ActionReplace, res.Action)
	assert.Equal(t, StrategyStructured, res.Strategy)
	assert.False(t, res.Deletion)
	assertLines(t, res.Lines,
		wantLine{"Cheeseburger", 2, []string{"no onions", "extra cheese"}},
		wantLine{"Sprite", 1, nil},
	)
	assert.Equal(t, 18.97, Total(res.Lines))
}

func TestExtract_StructuredSpanSurvivesSpokenPrice(t *testing.T) {
	res := newTestExtractor(ScanReplaceOnStatement).Extract(
		"Your order is: 1 Cheeseburger ($7.99), 1 Water. Anything else?")

	assert.Equal(t, StrategyStructured, res.Strategy)
	assertLines(t, res.Lines,
		wantLine{"Cheeseburger", 1, nil},
		wantLine{"Water", 1, nil},
	)
}

func TestExtract_StructuredArabic(t *testing.T) {
	res := newTestExtractor(ScanReplaceOnStatement).Extract(
		"تمام! طلبك هو: 1 برجر دجاج [بدون جبن]، 1 برجر الجبن. حاجة تانية؟")

	assert.Equal(t, StrategyStructured, res.Strategy)
	assertLines(t, res.Lines,
		wantLine{"Chicken Burger", 1, []string{"بدون جبن"}},
		wantLine{"Cheeseburger", 1, nil},
	)
}

func TestExtract_StructuredBracketAwareSplit(t *testing.T) {
	res := newTestExtractor(ScanReplaceOnStatement).Extract(
		"Your order is: 1 Cheeseburger [no lettuce, no tomato, extra sauce], 1 Water.")

	assertLines(t, res.Lines,
		wantLine{"Cheeseburger", 1, []string{"no lettuce", "no tomato", "extra sauce"}},
		wantLine{"Water", 1, nil},
	)
}

func TestExtract_StructuredConjunctions(t *testing.T) {
	ex := newTestExtractor(ScanReplaceOnStatement)

	res := ex.Extract("Your order is: 1 Large Fries and 2 Coca Cola.")
	assertLines(t, res.Lines,
		wantLine{"Large Fries", 1, nil},
		wantLine{"Coca Cola", 2, nil},
	)

	res = ex.Extract("Your order is: 1 Sprite, 1 Water and 2 Orange Juice.")
	assertLines(t, res.Lines,
		wantLine{"Sprite", 1, nil},
		wantLine{"Water", 1, nil},
		wantLine{"Orange Juice", 2, nil},
	)
}

func TestExtract_StructuredMergesDuplicatesAndDropsUnknown(t *testing.T) {
	res := newTestExtractor(ScanReplaceOnStatement).Extract(
		"Your order is: 1 Pizza, 2 Water, 1 water.")

	assert.Equal(t, StrategyStructured, res.Strategy)
	assertLines(t, res.Lines, wantLine{"Water", 3, nil})
}

func TestExtract_StructuredDualAndNumberWords(t *testing.T) {
	ex := newTestExtractor(ScanReplaceOnStatement)

	res := ex.Extract("طلبك: برجرين دجاج، اتنين سبرايت.")
	assertLines(t, res.Lines,
		wantLine{"Chicken Burger", 2, nil},
		wantLine{"Sprite", 2, nil},
	)

	res = ex.Extract("Your order is: six sprites.")
	assertLines(t, res.Lines, wantLine{"Sprite", 6, nil})
}

func TestExtract_EmptyStructuredSpanClearsOrder(t *testing.T) {
	ex := newTestExtractor(ScanReplaceOnStatement)
	for _, text := range []string{"Your order is: .", "Your order is:", "طلبك: ؟"} {
		res := ex.Extract(text)
		assert.Equal(t, ActionReplace, res.Action, text)
		assert.Equal(t, StrategyStructured, res.Strategy, text)
		assert.NotNil(t, res.Lines, text)
		assert.Empty(t, res.Lines, text)
	}
}

func TestExtract_StructuredWithoutItemsFallsThroughToScan(t *testing.T) {
	res := newTestExtractor(ScanReplaceOnStatement).Extract(
		"Your order is: the usual stuff. Sure, one sprite.")

	assert.Equal(t, StrategyScan, res.Strategy)
	assert.Equal(t, ActionReplace, res.Action)
	assertLines(t, res.Lines, wantLine{"Sprite", 1, nil})
}

func TestExtract_ScanAccumulatesAndMerges(t *testing.T) {
	res := newTestExtractor(ScanReplaceOnStatement).Extract(
		"Sure, I added two cheeseburgers and a sprite, plus another cheeseburger.")

	assert.Equal(t, StrategyScan, res.Strategy)
	assert.Equal(t, ActionMerge, res.Action)
	assertLines(t, res.Lines,
		wantLine{"Cheeseburger", 3, nil},
		wantLine{"Sprite", 1, nil},
	)
}

func TestExtract_ScanArabicDual(t *testing.T) {
	res := newTestExtractor(ScanReplaceOnStatement).Extract("تمام، ضفت برجرين دجاج")

	assert.Equal(t, ActionMerge, res.Action)
	assertLines(t, res.Lines, wantLine{"Chicken Burger", 2, nil})
}

func TestExtract_ScanItemWithoutLocalizedName(t *testing.T) {
	cat, err := menu.New([]menu.Item{{Name: "Taco", UnitPrice: 3.5}})
	require.NoError(t, err)
	ex := NewExtractor(cat, Options{Policy: ScanAlwaysMerge})

	for _, text := range []string{"Sure, a Taco coming up.", "Sure, one Taco coming up.", "Taco"} {
		var res Result
		require.NotPanics(t, func() { res = ex.Extract(text) }, text)
		assert.Equal(t, ActionMerge, res.Action, text)
		assertLines(t, res.Lines, wantLine{"Taco", 1, nil})
	}
}

func TestExtract_ScanPolicies(t *testing.T) {
	text := "Sure, I added two cheeseburgers."
	assert.Equal(t, ActionReplace, newTestExtractor(ScanAlwaysReplace).Extract(text).Action)

	statement := "Your order now has two sprites."
	assert.Equal(t, ActionReplace, newTestExtractor(ScanReplaceOnStatement).Extract(statement).Action)
	assert.Equal(t, ActionMerge, newTestExtractor(ScanAlwaysMerge).Extract(statement).Action)
}

func TestExtract_MenuListingIsIgnored(t *testing.T) {
	ex := newTestExtractor(ScanReplaceOnStatement)

	res := ex.Extract("We have Cheeseburger, Chicken Burger, and Sprite on the menu.")
	assert.Equal(t, ActionNone, res.Action)
	assert.Equal(t, "menu listing", res.Reason)

	res = ex.Extract("Cheeseburger, Chicken Burger, Veggie Burger, Large Fries and Sprite are all great.")
	assert.Equal(t, ActionNone, res.Action)
	assert.Equal(t, "menu listing", res.Reason)
}

func TestExtract_RemovalUsesRemainingClause(t *testing.T) {
	res := newTestExtractor(ScanAlwaysMerge).Extract(
		"Removed the sprite. Now you have only: 1 Cheeseburger.")

	assert.True(t, res.Deletion)
	assert.Equal(t, StrategyScan, res.Strategy)
	assert.Equal(t, ActionReplace, res.Action)
	assertLines(t, res.Lines, wantLine{"Cheeseburger", 1, nil})
}

func TestExtract_RemovalWithoutRemainderIsDeletionOnly(t *testing.T) {
	res := newTestExtractor(ScanReplaceOnStatement).Extract("Okay, I removed the fries.")

	assert.Equal(t, ActionNone, res.Action)
	assert.Equal(t, StrategyDeletion, res.Strategy)
	assert.True(t, res.Deletion)
	assert.Empty(t, res.Lines)
}

func TestExtract_RemovalWithStructuredRestatement(t *testing.T) {
	res := newTestExtractor(ScanReplaceOnStatement).Extract("شلنا البطاطس. طلبك الآن: 1 برجر الجبن.")

	assert.True(t, res.Deletion)
	assert.Equal(t, StrategyStructured, res.Strategy)
	assertLines(t, res.Lines, wantLine{"Cheeseburger", 1, nil})
}

func TestExtract_SmallTalkIsNoop(t *testing.T) {
	res := newTestExtractor(ScanReplaceOnStatement).Extract("Hello! Welcome, what can I get you today?")

	assert.Equal(t, ActionNone, res.Action)
	assert.Equal(t, StrategyNone, res.Strategy)
	assert.False(t, res.Deletion)
}

func TestHasRemoval(t *testing.T) {
	assert.True(t, HasRemoval("I'll cancel that"))
	assert.True(t, HasRemoval("تم حذف البطاطس"))
	assert.True(t, HasRemoval("أشيل الكولا؟"))
	assert.False(t, HasRemoval("Your order is ready"))
}
