package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-kiosk/pkg/menu"
)

func item(t *testing.T, name string) menu.Item {
	t.Helper()
	it, ok := menu.Default().Lookup(name)
	require.True(t, ok, name)
	return it
}

func TestMergeSumsIdenticalKeys(t *testing.T) {
	burger := item(t, "Cheeseburger")
	lines := Merge([]Line{
		{Item: burger, Quantity: 1, Customizations: []string{"no onions"}},
		{Item: burger, Quantity: 2},
		{Item: burger, Quantity: 3, Customizations: []string{"no onions"}},
		{Item: burger, Quantity: 0},
	})
	require.Len(t, lines, 2)
	assert.Equal(t, 4, lines[0].Quantity)
	assert.Equal(t, []string{"no onions"}, lines[0].Customizations)
	assert.Equal(t, 2, lines[1].Quantity)
}

func TestTotalIsDerivedFromLines(t *testing.T) {
	var s State
	s.Replace([]Line{
		{Item: item(t, "Cheeseburger"), Quantity: 2},
		{Item: item(t, "Sprite"), Quantity: 1},
	})
	assert.Equal(t, 18.97, s.Total())

	s.Upsert(Line{Item: item(t, "Sprite"), Quantity: 3})
	assert.Equal(t, 24.95, s.Total())
	assert.Equal(t, Total(s.Lines()), s.Total())
}

func TestUpsertSetsQuantityOrAppends(t *testing.T) {
	var s State
	s.Replace([]Line{{Item: item(t, "Water"), Quantity: 1}})

	s.Upsert(Line{Item: item(t, "Water"), Quantity: 4})
	s.Upsert(Line{Item: item(t, "Sprite"), Quantity: 1})
	s.Upsert(Line{Item: item(t, "Sprite"), Quantity: 0})

	lines := s.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "Water", lines[0].Item.Name)
	assert.Equal(t, 4, lines[0].Quantity)
	assert.Equal(t, "Sprite", lines[1].Item.Name)
}

func TestRemoveByName(t *testing.T) {
	var s State
	s.Replace([]Line{
		{Item: item(t, "Cheeseburger"), Quantity: 1, Customizations: []string{"extra cheese"}},
		{Item: item(t, "Cheeseburger"), Quantity: 1},
		{Item: item(t, "Large Fries"), Quantity: 1},
	})

	assert.Equal(t, 2, s.RemoveByName("cheeseburger"))
	assert.Equal(t, 1, s.RemoveByName("البطاطس الكبيرة"))
	assert.Equal(t, 0, s.RemoveByName("Sprite"))
	assert.True(t, s.IsEmpty())
}

func TestLinesReturnsCopies(t *testing.T) {
	var s State
	s.Replace([]Line{{Item: item(t, "Cheeseburger"), Quantity: 1, Customizations: []string{"no pickles"}}})

	lines := s.Lines()
	lines[0].Quantity = 9
	lines[0].Customizations[0] = "mutated"

	again := s.Lines()
	assert.Equal(t, 1, again[0].Quantity)
	assert.Equal(t, "no pickles", again[0].Customizations[0])
}

func TestApplyReportsChange(t *testing.T) {
	var s State
	res := Result{Action: ActionReplace, Lines: []Line{{Item: item(t, "Water"), Quantity: 1}}}

	assert.True(t, s.Apply(res))
	assert.False(t, s.Apply(res), "replaying the same restatement must not change the order")
	assert.False(t, s.Apply(Result{Action: ActionNone}))
	assert.True(t, s.Apply(Result{Action: ActionMerge, Lines: []Line{{Item: item(t, "Water"), Quantity: 2}}}))
	assert.Equal(t, 2, s.Lines()[0].Quantity)
}
