package crossframe

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/scheduler"
)

const (
	parentHTML = `<html><body><button id="e">e</button><div id="host"><button id="save">save</button></div></body></html>`
	childHTML  = `<html><body><button id="c1">c1</button><button id="c2">c2</button></body></html>`
)

func TestFrame_Bootstrap(t *testing.T) {
	sched := scheduler.NewManual(epoch)
	f1 := newNode(t, sched, "f1", parentHTML)
	f2 := newNode(t, sched, "f2", childHTML)
	f1.inst.Keyboard.Set(true)

	connect(sched, f1, f2)

	assert.Equal(t, []string{"f2"}, f1.frame.Peers())
	assert.Equal(t, []string{"f1"}, f2.frame.Peers())
	assert.True(t, f2.frame.IsNavigatingWithKeyboard(), "keyboard mode is adopted from the neighbour")
	assert.Equal(t, 2, sched.PendingTimers(), "only the two liveness sweeps remain")
}

func TestFrame_FocusedStateAndGetElement(t *testing.T) {
	sched := scheduler.NewManual(epoch)
	f1 := newNode(t, sched, "f1", parentHTML)
	f2 := newNode(t, sched, "f2", childHTML)
	connect(sched, f1, f2)

	f1.focus("e")
	sched.RunPending()

	want := &schemas.ElementDescriptor{
		OwnerUID: "f1",
		UID:      f1.inst.Registry().UID(f1.el("e")),
		ID:       "e",
	}
	if diff := cmp.Diff(want, f2.frame.FocusedElement()); diff != "" {
		t.Errorf("focused descriptor mismatch (-want +got):\n%s", diff)
	}

	var got *schemas.ElementDescriptor
	var gotErr error
	called := false
	f2.frame.GetElement(schemas.ElementDescriptor{}, 0, func(d *schemas.ElementDescriptor, err error) {
		called, got, gotErr = true, d, err
	})
	assert.False(t, called, "callbacks never run synchronously")
	sched.RunPending()

	require.True(t, called)
	require.NoError(t, gotErr)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetElement mismatch (-want +got):\n%s", diff)
	}
	assert.Same(t, f1.el("e"), f1.frame.Resolve(*got))
	assert.Nil(t, f2.frame.Resolve(*got), "descriptors owned elsewhere do not resolve locally")

	t.Run("Blur is shared", func(t *testing.T) {
		sched.Advance(time.Millisecond)
		f1.host.Blur(f1.el("e"))
		sched.RunPending()
		assert.Nil(t, f2.frame.FocusedElement())
	})
}

func TestFrame_FocusElement(t *testing.T) {
	sched := scheduler.NewManual(epoch)
	f1 := newNode(t, sched, "f1", parentHTML)
	f2 := newNode(t, sched, "f2", childHTML)
	connect(sched, f1, f2)

	var results []bool
	record := func(ok bool, err error) {
		assert.NoError(t, err)
		results = append(results, ok)
	}

	f2.frame.FocusElement(schemas.ElementDescriptor{ID: "c2"}, 0, record)
	sched.RunPending()
	assert.Equal(t, "c2", f2.focusedID(), "the local element wins without crossing frames")

	f2.frame.FocusElement(schemas.ElementDescriptor{ID: "e"}, 0, record)
	sched.RunPending()
	assert.Equal(t, "e", f1.focusedID())
	assert.Equal(t, "f1", f2.frame.FocusedElement().OwnerUID)

	f1.frame.FocusElement(schemas.ElementDescriptor{OwnerUID: "f2", ID: "missing"}, 0, record)
	sched.RunPending()
	assert.Equal(t, []bool{true, true, false}, results)
}

func TestFrame_Observed(t *testing.T) {
	sched := scheduler.NewManual(epoch)
	f1 := newNode(t, sched, "f1", parentHTML)
	f2 := newNode(t, sched, "f2", childHTML)
	connect(sched, f1, f2)

	f1.inst.SetBehavior(f1.el("save"), observed("save"))
	sched.RunPending()
	assert.Equal(t, "f1", f2.frame.ObservedOwner("save"))

	var ok bool
	f2.frame.FocusElement(schemas.ElementDescriptor{ObservedName: "save"}, 0, func(b bool, _ error) { ok = b })
	sched.RunPending()
	assert.True(t, ok)
	assert.Equal(t, "save", f1.focusedID())

	t.Run("Waits for a name that appears later", func(t *testing.T) {
		var got *schemas.ElementDescriptor
		f2.frame.GetElement(schemas.ElementDescriptor{ObservedName: "late"}, time.Second, func(d *schemas.ElementDescriptor, err error) {
			require.NoError(t, err)
			got = d
		})
		sched.RunPending()
		assert.Nil(t, got)

		sched.Advance(500 * time.Millisecond)
		f1.inst.SetBehavior(f1.el("e"), observed("late"))
		sched.RunPending()
		require.NotNil(t, got)
		assert.Equal(t, "f1", got.OwnerUID)
		assert.Equal(t, "e", got.ID)
		assert.Equal(t, "late", got.ObservedName)
	})

	t.Run("Removal is shared", func(t *testing.T) {
		f1.detach("host")
		sched.RunPending()
		assert.Empty(t, f2.frame.ObservedOwner("save"))
	})
}

func TestFrame_KeyboardAndOutline(t *testing.T) {
	sched := scheduler.NewManual(epoch)
	f1 := newNode(t, sched, "f1", parentHTML)
	f2 := newNode(t, sched, "f2", childHTML)
	connect(sched, f1, f2)
	changes := f2.states()

	f1.focus("e")
	sched.RunPending()
	ev, err := schemas.ParseKeyChord("Tab")
	require.NoError(t, err)
	require.True(t, f1.inst.HandleKeyDown(ev))
	sched.RunPending()

	assert.True(t, f2.inst.Keyboard.IsNavigatingWithKeyboard())
	require.NotNil(t, f2.frame.Outlined())
	assert.Equal(t, "save", f2.frame.Outlined().ID)

	f1.inst.HandlePointerDown(f1.el("e"))
	sched.RunPending()
	assert.False(t, f2.inst.Keyboard.IsNavigatingWithKeyboard())
	assert.Nil(t, f2.frame.Outlined())

	var kinds []schemas.StateType
	for _, c := range *changes {
		kinds = append(kinds, c.State)
	}
	assert.Contains(t, kinds, schemas.StateKeyboardNavigation)
	assert.Contains(t, kinds, schemas.StateOutline)
	assert.Positive(t, f2.logs.FilterMessage("Applied state from peer.").Len())
}

func TestFrame_Forwarding(t *testing.T) {
	sched := scheduler.NewManual(epoch)
	top := newNode(t, sched, "top", parentHTML)
	mid := newNode(t, sched, "mid", `<html><body><button id="m">m</button></body></html>`)
	leaf := newNode(t, sched, "leaf", childHTML)
	connect(sched, top, mid)
	connect(sched, mid, leaf)

	leaf.focus("c1")
	sched.RunPending()
	require.NotNil(t, top.frame.FocusedElement())
	assert.Equal(t, "leaf", top.frame.FocusedElement().OwnerUID)
	assert.Contains(t, top.frame.Peers(), "leaf", "the originator is reachable through the forwarder")

	var ok bool
	top.frame.FocusElement(schemas.ElementDescriptor{OwnerUID: "leaf", ID: "c2"}, 0, func(b bool, err error) {
		require.NoError(t, err)
		ok = b
	})
	sched.RunPending()
	assert.True(t, ok)
	assert.Equal(t, "c2", leaf.focusedID())

	var pingErr error
	pinged := false
	top.frame.Ping("leaf", func(err error) { pinged, pingErr = true, err })
	sched.RunPending()
	assert.True(t, pinged)
	assert.NoError(t, pingErr, "targeted requests are relayed")
}

func TestFrame_PurgeDeadPeer(t *testing.T) {
	sched := scheduler.NewManual(epoch)
	f1 := newNode(t, sched, "f1", parentHTML)
	f2 := newNode(t, sched, "f2", childHTML)
	f3 := newNode(t, sched, "f3", `<html><body><button id="x">x</button></body></html>`)
	cut := connectCuttable(sched, f1, f2)
	connect(sched, f1, f3)

	f2.focus("c1")
	sched.RunPending()
	require.Equal(t, "f2", f3.frame.FocusedElement().OwnerUID)
	changes := f3.states()

	cut()
	sched.Advance(10 * time.Second)

	assert.Equal(t, []string{"f3"}, f1.frame.Peers())
	assert.NotContains(t, f3.frame.Peers(), "f2")
	assert.Nil(t, f1.frame.FocusedElement())
	assert.Nil(t, f3.frame.FocusedElement())

	blurred := 0
	for _, c := range *changes {
		if c.State == schemas.StateBlurred {
			blurred++
			assert.Equal(t, "f2", c.Element.OwnerUID)
		}
	}
	assert.Equal(t, 1, blurred)
	assert.Equal(t, 1, f1.logs.FilterMessage("Peer purged.").Len())

	// Purging again is a no-op.
	f1.frame.purge("f2", "again")
	sched.RunPending()
	assert.Equal(t, 1, f1.logs.FilterMessage("Peer purged.").Len())
}

func TestFrame_Timeout(t *testing.T) {
	sched := scheduler.NewManual(epoch)
	f1 := newNode(t, sched, "f1", childHTML)
	ch := &fakeChannel{}
	f1.frame.AddLink(ch)

	calls := 0
	var gotErr error
	f1.frame.GetElement(schemas.ElementDescriptor{ID: "nowhere"}, 0, func(d *schemas.ElementDescriptor, err error) {
		calls++
		assert.Nil(t, d)
		gotErr = err
	})
	sched.RunPending()

	sent := ch.envelopes(t)
	require.Len(t, sent, 2)
	req := sent[1]
	assert.Equal(t, schemas.TxGetElement, req.Type)
	assert.Equal(t, "f1", req.Owner)
	assert.True(t, req.SentTo["f1"])
	assert.Equal(t, int64(5000), req.Timeout)

	sched.Advance(5 * time.Second)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, gotErr, ErrTransactionTimeout)

	// A late answer is ignored.
	late := schemas.Envelope{
		Transaction: req.Transaction,
		Type:        schemas.TxGetElement,
		IsResponse:  true,
		Owner:       "f9",
		EndData:     mustEncode(t, schemas.ElementResponse{Element: &schemas.ElementDescriptor{OwnerUID: "f9", ID: "nowhere"}}),
	}
	ch.deliver(mustEncode(t, late))
	sched.RunPending()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, f1.logs.FilterMessage("Ignoring response to a finished transaction.").Len())
}

func TestFrame_DropsBadEnvelopes(t *testing.T) {
	sched := scheduler.NewManual(epoch)
	f1 := newNode(t, sched, "f1", childHTML)
	ch := &fakeChannel{}
	f1.frame.AddLink(ch)
	sched.RunPending()
	before := len(ch.envelopes(t))

	ch.deliver([]byte(`{not json`))
	ch.deliver(mustEncode(t, schemas.Envelope{Transaction: "t1", Type: schemas.TransactionType(42), Owner: "f9"}))
	ch.deliver(mustEncode(t, schemas.Envelope{Transaction: "t2", Type: schemas.TxPing}))
	sched.RunPending()

	assert.Equal(t, 3, f1.logs.FilterMessage("Dropping envelope.").Len())
	assert.Empty(t, f1.frame.Peers())
	assert.Len(t, ch.envelopes(t), before, "nothing is answered")
}

func TestFrame_AnswersRequests(t *testing.T) {
	sched := scheduler.NewManual(epoch)
	f1 := newNode(t, sched, "f1", childHTML)
	ch := &fakeChannel{}
	f1.frame.AddLink(ch)
	sched.RunPending()

	ping := schemas.Envelope{Transaction: "p1", Type: schemas.TxPing, Owner: "f9", Target: "f1", Timeout: 1000}
	ch.deliver(mustEncode(t, ping))
	ch.deliver(mustEncode(t, ping))
	sched.RunPending()

	sent := ch.envelopes(t)
	var replies []schemas.Envelope
	for _, env := range sent {
		if env.IsResponse && env.Transaction == "p1" {
			replies = append(replies, env)
		}
	}
	require.Len(t, replies, 2, "a repeated request is still answered")
	assert.Equal(t, "f1", replies[0].Owner)
	assert.Equal(t, "f9", replies[0].Target)
	assert.True(t, isOK(replies[0].EndData))
	assert.Empty(t, replies[1].EndData, "but handled only once")
	assert.Equal(t, []string{"f9"}, f1.frame.Peers())
}

func TestFrame_RestoreFocusInDeloser(t *testing.T) {
	sched := scheduler.NewManual(epoch)
	f1 := newNode(t, sched, "f1", parentHTML)
	f2 := newNode(t, sched, "f2", `<html><body><div id="D"><button id="d1">1</button><button id="d2">2</button></div></body></html>`)
	connect(sched, f1, f2)

	f2.inst.SetBehavior(f2.el("D"), schemas.BehaviorConfig{Deloser: &schemas.DeloserProps{}})
	f2.focus("d1")
	f2.focus("d2")
	f2.host.Blur(f2.el("d2"))
	sched.RunPending()
	require.Equal(t, "", f2.focusedID())

	// f1 loses focus with nothing left to restore locally; f2 steps in.
	f1.focus("e")
	sched.RunPending()
	f1.detach("e")
	sched.Advance(200 * time.Millisecond)

	assert.Equal(t, "d2", f2.focusedID())
	assert.Equal(t, "f2", f1.frame.FocusedElement().OwnerUID)
}

func TestFrame_Dispose(t *testing.T) {
	sched := scheduler.NewManual(epoch)
	f1 := newNode(t, sched, "f1", childHTML)
	ch := &fakeChannel{}
	f1.frame.AddLink(ch)

	var gotErr error
	f1.frame.RestoreFocusInDeloser(func(_ bool, err error) { gotErr = err })
	f1.frame.Dispose()
	sched.RunPending()
	assert.ErrorIs(t, gotErr, ErrClosed)
	assert.Equal(t, 0, sched.PendingTimers())

	f1.frame.Ping("anyone", func(err error) { gotErr = err })
	sched.RunPending()
	assert.ErrorIs(t, gotErr, ErrPeerGone)
}
