package focus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/dom"
)

func ariaHidden(t *testing.T, n *html.Node) string {
	t.Helper()
	v, ok := dom.Attr(n, "aria-hidden")
	if !ok {
		return "<unset>"
	}
	return v
}

func TestModalizer_AriaMarks(t *testing.T) {
	h := newHarness(t, `<html><body>
<button id="pre">pre</button>
<div id="side" aria-hidden="false"><button id="s1">s</button></div>
<div id="wrap">
  <div id="M1"><button id="m1a">a</button><button id="m1b">b</button></div>
  <div id="M2"><button id="m2a">c</button></div>
</div>
<div id="toast"><button id="t1">t</button></div>
<button id="post">post</button>
</body></html>`)
	h.set("M1", modalizer(schemas.ModalizerProps{ID: "m1"}))
	h.set("M2", modalizer(schemas.ModalizerProps{ID: "m2"}))
	h.set("toast", modalizer(schemas.ModalizerProps{ID: "toast", IsAlwaysAccessible: true}))
	api := h.inst.Modalizer

	h.focus("m1a")
	require.NotNil(t, api.Active())
	assert.Equal(t, "m1", api.Active().ID())
	assert.True(t, api.Active().IsFocused())
	for _, id := range []string{"pre", "side", "M2", "post"} {
		assert.Equal(t, "true", ariaHidden(t, h.el(id)), id)
	}
	for _, id := range []string{"wrap", "M1", "toast"} {
		assert.Equal(t, "<unset>", ariaHidden(t, h.el(id)), id)
	}
	assert.Equal(t, 4, api.HiddenCount())
	assert.False(t, h.inst.Focusables.IsTabbable(h.el("m2a")))
	assert.True(t, h.inst.Focusables.IsTabbable(h.el("t1")), "always-accessible content stays reachable")

	api.SetActive(api.ByID("m2"))
	assert.Equal(t, "true", ariaHidden(t, h.el("M1")))
	assert.Equal(t, "<unset>", ariaHidden(t, h.el("M2")))
	assert.Equal(t, "true", ariaHidden(t, h.el("side")))

	api.SetActive(nil)
	assert.Nil(t, api.Active())
	assert.Equal(t, 0, api.HiddenCount())
	for _, id := range []string{"pre", "M1", "M2", "post", "toast"} {
		assert.Equal(t, "<unset>", ariaHidden(t, h.el(id)), id)
	}
	assert.Equal(t, "false", ariaHidden(t, h.el("side")), "original value is put back")

	activations, deactivations := api.Transitions()
	assert.Equal(t, 2, activations)
	assert.Equal(t, 2, deactivations)
}

func TestModalizer_Diagnostics(t *testing.T) {
	h := newHarness(t, `<html><body><div id="a"></div><div id="b"></div></body></html>`)

	h.set("a", modalizer(schemas.ModalizerProps{}))
	assert.Equal(t, 0, h.inst.Stats().Modalizers)
	assert.Equal(t, 1, h.inst.Diagnostics().Count(DiagModalizerMissingID))
	assert.Equal(t, 1, h.logs.FilterMessage("modalizer declared without an id").Len())

	h.set("a", modalizer(schemas.ModalizerProps{ID: "dup"}))
	h.set("b", modalizer(schemas.ModalizerProps{ID: "dup"}))
	assert.Equal(t, 1, h.inst.Stats().Modalizers)
	assert.Equal(t, 1, h.inst.Diagnostics().Count(DiagModalizerDuplicateID))
	assert.Equal(t, h.el("a"), h.inst.Modalizer.ByID("dup").Element())

	recent := h.inst.Diagnostics().Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, DiagModalizerDuplicateID, recent[1].Code)
}

const trapHTML = `<html><body>
<button id="pre">pre</button>
<div id="M"><button id="a">a</button><button id="b">b</button></div>
<button id="post">post</button>
</body></html>`

func TestModalizer_Trap(t *testing.T) {
	t.Run("Tab wraps inside", func(t *testing.T) {
		h := newHarness(t, trapHTML)
		h.set("M", modalizer(schemas.ModalizerProps{ID: "m"}))

		h.focus("a")
		assert.True(t, h.press("Tab"))
		assert.Equal(t, "b", h.focused())
		assert.True(t, h.press("Tab"))
		assert.Equal(t, "a", h.focused())
		assert.True(t, h.press("Shift+Tab"))
		assert.Equal(t, "b", h.focused())
	})

	t.Run("Escaped focus is pulled back", func(t *testing.T) {
		h := newHarness(t, trapHTML)
		h.set("M", modalizer(schemas.ModalizerProps{ID: "m"}))
		h.focus("a")
		h.press("Tab")
		require.Equal(t, "b", h.focused())

		force := FocusOptions{IgnoreAccessibility: true, PreventScroll: true}
		assert.True(t, h.inst.Focused.Focus(h.el("pre"), force))
		assert.Equal(t, "a", h.focused(), "before the modalizer lands on its first element")

		assert.True(t, h.inst.Focused.Focus(h.el("post"), force))
		assert.Equal(t, "b", h.focused(), "after the modalizer lands on its last element")
		assert.Equal(t, h.el("b"), h.host.ActiveElement())
	})
}

func TestModalizer_OthersAccessible(t *testing.T) {
	t.Run("Veto keeps focus inside", func(t *testing.T) {
		h := newHarness(t, trapHTML)
		h.set("M", modalizer(schemas.ModalizerProps{ID: "m", IsOthersAccessible: true}))
		var vetoed []string
		h.inst.Modalizer.OnBeforeFocusOut(func(m *Modalizer, next *html.Node) bool {
			vetoed = append(vetoed, m.ID()+">"+dom.ID(next))
			return true
		})

		h.focus("b")
		assert.Equal(t, 0, h.inst.Modalizer.HiddenCount(), "others stay accessible")
		assert.True(t, h.press("Tab"))
		assert.Equal(t, "b", h.focused())
		assert.Equal(t, []string{"m>post"}, vetoed)
	})

	t.Run("Leaving deactivates", func(t *testing.T) {
		h := newHarness(t, trapHTML)
		h.set("M", modalizer(schemas.ModalizerProps{ID: "m", IsOthersAccessible: true}))
		var events []string
		h.inst.Modalizer.OnFocusIn(func(m *Modalizer) { events = append(events, "in:"+m.ID()) })
		h.inst.Modalizer.OnFocusOut(func(m *Modalizer) { events = append(events, "out:"+m.ID()) })

		h.focus("a")
		h.focus("b")
		require.NotNil(t, h.inst.Modalizer.Active())

		assert.True(t, h.press("Tab"))
		assert.Equal(t, "post", h.focused())
		assert.Nil(t, h.inst.Modalizer.Active())
		assert.Equal(t, []string{"in:m", "out:m"}, events)
	})
}

func TestModalizer_RemovedWhileActive(t *testing.T) {
	h := newHarness(t, trapHTML)
	h.set("M", modalizer(schemas.ModalizerProps{ID: "m"}))
	h.focus("a")
	require.Equal(t, "true", ariaHidden(t, h.el("pre")))

	h.inst.SetBehavior(h.el("M"), schemas.BehaviorConfig{}, schemas.KindModalizer)
	assert.Nil(t, h.inst.Modalizer.Active())
	assert.Equal(t, "<unset>", ariaHidden(t, h.el("pre")))
	assert.True(t, h.inst.Focusables.IsTabbable(h.el("post")))
}
