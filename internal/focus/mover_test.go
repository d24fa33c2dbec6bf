package focus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/dom"
)

const moverHTML = `<html><body>
<button id="before">before</button>
<div id="m">
  <button id="x">x</button>
  <button id="y">y</button>
  <button id="z">z</button>
</div>
<button id="after">after</button>
</body></html>`

func TestMover_Arrows(t *testing.T) {
	tests := []struct {
		name    string
		props   schemas.MoverProps
		rtl     bool
		from    string
		key     string
		handled bool
		want    string
	}{
		{"Horizontal right", schemas.MoverProps{Direction: schemas.MoverHorizontal}, false, "x", "ArrowRight", true, "y"},
		{"Horizontal left", schemas.MoverProps{Direction: schemas.MoverHorizontal}, false, "y", "ArrowLeft", true, "x"},
		{"Cyclic wraps forward", schemas.MoverProps{Direction: schemas.MoverHorizontal, Cyclic: true}, false, "z", "ArrowRight", true, "x"},
		{"Cyclic wraps backward", schemas.MoverProps{Direction: schemas.MoverHorizontal, Cyclic: true}, false, "x", "ArrowLeft", true, "z"},
		{"Edge without cycling stays", schemas.MoverProps{Direction: schemas.MoverHorizontal}, false, "z", "ArrowRight", true, "z"},
		{"Off-axis key is not handled", schemas.MoverProps{Direction: schemas.MoverHorizontal}, false, "x", "ArrowDown", false, "x"},
		{"Vertical down", schemas.MoverProps{Direction: schemas.MoverVertical}, false, "x", "ArrowDown", true, "y"},
		{"Vertical ignores left", schemas.MoverProps{Direction: schemas.MoverVertical}, false, "y", "ArrowLeft", false, "y"},
		{"Both accepts up", schemas.MoverProps{Direction: schemas.MoverBoth}, false, "y", "ArrowUp", true, "x"},
		{"Right to left swaps", schemas.MoverProps{Direction: schemas.MoverHorizontal}, true, "x", "ArrowLeft", true, "y"},
		{"Home", schemas.MoverProps{Direction: schemas.MoverVertical}, false, "z", "Home", true, "x"},
		{"End", schemas.MoverProps{Direction: schemas.MoverVertical}, false, "x", "End", true, "z"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, moverHTML)
			if tc.rtl {
				dom.SetAttr(h.el("m"), "dir", "rtl")
			}
			props := tc.props
			props.Keys = schemas.MoverKeysArrows
			h.set("m", mover(props))

			h.focus(tc.from)
			assert.Equal(t, tc.handled, h.press(tc.key))
			assert.Equal(t, tc.want, h.focused())
		})
	}
}

func TestMover_TextEntryKeepsArrows(t *testing.T) {
	h := newHarness(t, `<html><body><div id="m"><input id="in" type="text"><button id="b">b</button></div></body></html>`)
	h.set("m", mover(schemas.MoverProps{Keys: schemas.MoverKeysArrows}))
	h.focus("in")
	assert.False(t, h.press("ArrowRight"))
	assert.Equal(t, "in", h.focused())
}

func TestMover_Tab(t *testing.T) {
	t.Run("Arrow-only mover is one tab stop", func(t *testing.T) {
		h := newHarness(t, moverHTML)
		h.set("m", mover(schemas.MoverProps{Keys: schemas.MoverKeysArrows}))

		h.focus("before")
		assert.True(t, h.press("Tab"))
		assert.Equal(t, "x", h.focused())
		assert.True(t, h.press("ArrowDown"))
		assert.Equal(t, "y", h.focused())
		assert.True(t, h.press("Tab"))
		assert.Equal(t, "after", h.focused())
		assert.True(t, h.press("Shift+Tab"))
		assert.Equal(t, "x", h.focused())

		h.focus("y")
		assert.True(t, h.press("Shift+Tab"))
		assert.Equal(t, "before", h.focused())
	})

	t.Run("Memorized item is the entry", func(t *testing.T) {
		h := newHarness(t, moverHTML)
		h.set("m", mover(schemas.MoverProps{Keys: schemas.MoverKeysArrows, Memorize: true}))

		h.focus("before")
		h.press("Tab")
		h.press("ArrowDown")
		h.press("ArrowDown")
		require.Equal(t, "z", h.focused())
		h.press("Tab")
		require.Equal(t, "after", h.focused())

		assert.True(t, h.press("Shift+Tab"))
		assert.Equal(t, "z", h.focused())
		assert.Equal(t, h.el("z"), h.inst.MoverOf(h.el("m")).EntryElement())
	})

	t.Run("Default item is the entry", func(t *testing.T) {
		h := newHarness(t, moverHTML)
		h.set("m", mover(schemas.MoverProps{Keys: schemas.MoverKeysArrows}))
		h.set("y", schemas.BehaviorConfig{Focusable: &schemas.FocusableProps{IsDefault: true}})

		h.focus("before")
		assert.True(t, h.press("Tab"))
		assert.Equal(t, "y", h.focused())
	})

	t.Run("Tab and arrows mover is tab-through", func(t *testing.T) {
		h := newHarness(t, moverHTML)
		h.set("m", mover(schemas.MoverProps{Keys: schemas.MoverKeysBoth}))

		h.focus("before")
		for _, want := range []string{"x", "y", "z", "after"} {
			assert.True(t, h.press("Tab"))
			assert.Equal(t, want, h.focused())
		}
		h.focus("x")
		assert.True(t, h.press("ArrowRight"))
		assert.Equal(t, "y", h.focused())
	})
}

func TestMover_TabWrapsCyclic(t *testing.T) {
	const page = `<html><body><div id="m">
  <button id="x">x</button>
  <button id="y">y</button>
  <button id="z">z</button>
</div></body></html>`

	t.Run("Cyclic wraps at the document edges", func(t *testing.T) {
		h := newHarness(t, page)
		h.set("m", mover(schemas.MoverProps{Keys: schemas.MoverKeysBoth, Direction: schemas.MoverHorizontal, Cyclic: true}))

		h.focus("z")
		assert.True(t, h.press("Tab"))
		assert.Equal(t, "x", h.focused())

		assert.True(t, h.press("Shift+Tab"))
		assert.Equal(t, "z", h.focused())
	})

	t.Run("Non-cyclic falls through to the root", func(t *testing.T) {
		h := newHarness(t, page)
		h.set("m", mover(schemas.MoverProps{Keys: schemas.MoverKeysBoth, Direction: schemas.MoverHorizontal}))

		h.focus("z")
		h.press("Tab")
		assert.Equal(t, "z", h.focused())
	})
}

func TestMover_Grid(t *testing.T) {
	h := newHarness(t, `<html><body><div id="grid">
<button id="c1">1</button><button id="c2">2</button><button id="c3">3</button>
<button id="c4">4</button><button id="c5">5</button><button id="c6">6</button>
</div></body></html>`)
	h.set("grid", mover(schemas.MoverProps{Keys: schemas.MoverKeysArrows, Direction: schemas.MoverGrid}))
	for n, id := range []string{"c1", "c2", "c3", "c4", "c5", "c6"} {
		h.host.SetBox(h.el(id), dom.Rect{X: float64(n%3) * 100, Y: float64(n/3) * 50, Width: 100, Height: 50})
	}

	steps := []struct {
		from, key, want string
	}{
		{"c2", "ArrowDown", "c5"},
		{"c6", "ArrowUp", "c3"},
		{"c3", "ArrowRight", "c4"},
		{"c4", "ArrowLeft", "c3"},
		{"c1", "ArrowUp", "c1"},
		{"c5", "ArrowDown", "c5"},
	}
	for _, s := range steps {
		h.focus(s.from)
		assert.True(t, h.press(s.key), "%s from %s", s.key, s.from)
		assert.Equal(t, s.want, h.focused(), "%s from %s", s.key, s.from)
	}
}

func TestMover_Items(t *testing.T) {
	h := newHarness(t, moverHTML)
	dom.SetAttr(h.el("y"), "disabled", "")
	h.set("m", mover(schemas.MoverProps{Keys: schemas.MoverKeysArrows}))
	assert.Equal(t, []string{"x", "z"}, h.ids(h.inst.MoverOf(h.el("m")).Items()))

	h.focus("x")
	assert.True(t, h.press("ArrowDown"))
	assert.Equal(t, "z", h.focused(), "disabled items are skipped")
}
