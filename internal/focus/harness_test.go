package focus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/config"
	"github.com/xkilldash9x/keynav/internal/dom"
	"github.com/xkilldash9x/keynav/internal/scheduler"
)

const rowHeight = 20

// harness wires an instance to a static host and a manual clock.
type harness struct {
	t     *testing.T
	doc   *dom.Document
	host  *dom.StaticHost
	sched *scheduler.Manual
	inst  *Instance
	logs  *observer.ObservedLogs
}

func newHarness(t *testing.T, markup string, mutate ...func(*config.EngineConfig)) *harness {
	t.Helper()
	doc, err := dom.ParseString(markup)
	require.NoError(t, err)

	host := dom.NewStaticHost(doc, dom.WithAutoLayout(rowHeight), dom.WithViewport(dom.Rect{Width: 1024, Height: 10000}))
	sched := scheduler.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	cfg := config.NewDefaultConfig().Engine()
	for _, m := range mutate {
		m(&cfg)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	inst := New(doc, host, sched, cfg, zap.New(core))
	t.Cleanup(inst.Dispose)

	return &harness{t: t, doc: doc, host: host, sched: sched, inst: inst, logs: logs}
}

func (h *harness) el(id string) *html.Node {
	h.t.Helper()
	n := h.doc.ByID(id)
	require.NotNil(h.t, n, "no element #%s", id)
	return n
}

func (h *harness) set(id string, cfg schemas.BehaviorConfig) {
	h.t.Helper()
	h.inst.SetBehavior(h.el(id), cfg)
}

func (h *harness) focus(id string) {
	h.t.Helper()
	require.True(h.t, h.inst.Focused.Focus(h.el(id), FocusOptions{PreventScroll: true}), "focus #%s", id)
	h.sched.RunPending()
}

func (h *harness) press(chord string) bool {
	h.t.Helper()
	ev, err := schemas.ParseKeyChord(chord)
	require.NoError(h.t, err)
	handled := h.inst.HandleKeyDown(ev)
	h.sched.RunPending()
	return handled
}

// focused returns the id of the focused element, or "" when nothing is focused.
func (h *harness) focused() string {
	el := h.inst.Focused.Element()
	if el == nil {
		return ""
	}
	return dom.ID(el)
}

func (h *harness) ids(nodes []*html.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, dom.ID(n))
	}
	return out
}

// detach removes the element the way a re-render would and reports the mutation.
func (h *harness) detach(id string) {
	h.t.Helper()
	n := h.el(id)
	h.host.Detach(n)
	h.inst.HandleMutation(MutationEvent{Kind: NodeRemoved, Node: n})
}

func newElement(tag, id string, attrs ...html.Attribute) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag}
	if id != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: "id", Val: id})
	}
	n.Attr = append(n.Attr, attrs...)
	return n
}

func limited(limit schemas.GroupperFocusLimit) schemas.BehaviorConfig {
	return schemas.BehaviorConfig{Groupper: &schemas.GroupperProps{TabbableLimit: limit}}
}

func root(props schemas.RootProps) schemas.BehaviorConfig {
	return schemas.BehaviorConfig{Root: &props}
}

func mover(props schemas.MoverProps) schemas.BehaviorConfig {
	return schemas.BehaviorConfig{Mover: &props}
}

func modalizer(props schemas.ModalizerProps) schemas.BehaviorConfig {
	return schemas.BehaviorConfig{Modalizer: &props}
}
