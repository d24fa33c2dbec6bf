package crossframe

import (
	"sync"
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
	"github.com/xkilldash9x/keynav/internal/focus"
	"github.com/xkilldash9x/keynav/internal/scheduler"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// node is one frame with its own document, sharing a clock with its peers.
type node struct {
	t     *testing.T
	doc   *dom.Document
	host  *dom.StaticHost
	inst  *focus.Instance
	frame *Frame
	logs  *observer.ObservedLogs
}

func newNode(t *testing.T, sched *scheduler.Manual, id, markup string) *node {
	t.Helper()
	doc, err := dom.ParseString(markup)
	require.NoError(t, err)
	host := dom.NewStaticHost(doc, dom.WithAutoLayout(20), dom.WithViewport(dom.Rect{Width: 1024, Height: 10000}))

	root := config.NewDefaultConfig()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	inst := focus.New(doc, host, sched, root.Engine(), logger)
	frame := New(inst, root.CrossFrame(), logger, WithID(id))
	t.Cleanup(func() {
		frame.Dispose()
		inst.Dispose()
	})
	return &node{t: t, doc: doc, host: host, inst: inst, frame: frame, logs: logs}
}

func (n *node) el(id string) *html.Node {
	n.t.Helper()
	el := n.doc.ByID(id)
	require.NotNil(n.t, el, "no element #%s", id)
	return el
}

func (n *node) focus(id string) {
	n.t.Helper()
	require.True(n.t, n.inst.Focused.Focus(n.el(id), focus.FocusOptions{PreventScroll: true}))
}

func (n *node) detach(id string) {
	n.t.Helper()
	el := n.el(id)
	n.host.Detach(el)
	n.inst.HandleMutation(focus.MutationEvent{Kind: focus.NodeRemoved, Node: el})
}

func (n *node) focusedID() string {
	if el := n.inst.Focused.Element(); el != nil {
		return dom.ID(el)
	}
	return ""
}

// states records the updates a frame applies from its peers.
func (n *node) states() *[]schemas.StateData {
	var out []schemas.StateData
	n.frame.OnStateChange(func(d schemas.StateData) { out = append(out, d) })
	return &out
}

func connect(sched *scheduler.Manual, a, b *node) (Channel, Channel) {
	x, y := Pipe()
	a.frame.AddLink(x)
	b.frame.AddLink(y)
	sched.RunPending()
	return x, y
}

// cuttable drops traffic in both directions once cut is set.
type cuttable struct {
	Channel
	cut *bool
}

func (c cuttable) Send(msg []byte) error {
	if *c.cut {
		return ErrClosed
	}
	return c.Channel.Send(msg)
}

func connectCuttable(sched *scheduler.Manual, a, b *node) (cut func()) {
	x, y := Pipe()
	flag := false
	a.frame.AddLink(cuttable{Channel: x, cut: &flag})
	b.frame.AddLink(cuttable{Channel: y, cut: &flag})
	sched.RunPending()
	return func() { flag = true }
}

// fakeChannel records what a frame sends and lets the test play the peer.
type fakeChannel struct {
	mu   sync.Mutex
	sent [][]byte
	recv func([]byte)
}

func (c *fakeChannel) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), msg...))
	return nil
}

func (c *fakeChannel) SetReceiver(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recv = fn
}

func (c *fakeChannel) Close() error { return nil }

func (c *fakeChannel) deliver(msg []byte) {
	c.mu.Lock()
	recv := c.recv
	c.mu.Unlock()
	if recv != nil {
		recv(msg)
	}
}

// envelopes decodes everything sent so far.
func (c *fakeChannel) envelopes(t *testing.T) []schemas.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schemas.Envelope, 0, len(c.sent))
	for _, raw := range c.sent {
		var env schemas.Envelope
		require.NoError(t, codec.Unmarshal(raw, &env))
		out = append(out, env)
	}
	return out
}

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	b, err := codec.Marshal(v)
	require.NoError(t, err)
	return b
}

func observed(name string) schemas.BehaviorConfig {
	return schemas.BehaviorConfig{Observed: &schemas.ObservedProps{Name: name}}
}
