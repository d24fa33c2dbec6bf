// internal/crossframe/frame.go
package crossframe

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/config"
	"github.com/xkilldash9x/keynav/internal/dom"
	"github.com/xkilldash9x/keynav/internal/focus"
	"github.com/xkilldash9x/keynav/internal/scheduler"
)

// link is one channel to a neighbouring frame. peer is the neighbour's id once
// it introduced itself.
type link struct {
	ch   Channel
	peer string
}

// peer is a frame known to this one, reachable through link.
type peer struct {
	id       string
	link     *link
	lastSeen time.Time
	pinging  bool
}

// Frame joins a focus instance to the cross-frame protocol. All of its state
// is owned by the instance's scheduler; inbound messages are posted onto it.
type Frame struct {
	id     string
	inst   *focus.Instance
	sched  scheduler.Scheduler
	cfg    config.CrossFrameConfig
	logger *zap.Logger

	links   []*link
	peers   map[string]*peer
	pending map[string]*transaction
	seen    *seenSet
	state   sharedState
	changes []func(schemas.StateData)

	sweep  scheduler.Timer
	unsubs []func()

	disposed        bool
	applyingRemote  bool
	restoringRemote bool
}

// Option configures a Frame.
type Option func(*Frame)

// WithID fixes the frame id instead of generating one.
func WithID(id string) Option {
	return func(f *Frame) { f.id = id }
}

// New attaches a frame to inst and starts the liveness sweep.
func New(inst *focus.Instance, cfg config.CrossFrameConfig, logger *zap.Logger, opts ...Option) *Frame {
	f := &Frame{
		id:      uuid.NewString(),
		inst:    inst,
		sched:   inst.Scheduler(),
		cfg:     cfg,
		peers:   make(map[string]*peer),
		pending: make(map[string]*transaction),
		seen:    newSeenSet(seenCapacity),
		state:   newSharedState(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = logger.Named("crossframe").With(zap.String("frame", f.id))
	f.hook()
	f.scheduleSweep()
	f.logger.Debug("Frame attached.")
	return f
}

// ID returns the frame's globally unique id.
func (f *Frame) ID() string { return f.id }

// Instance returns the focus instance this frame serves.
func (f *Frame) Instance() *focus.Instance { return f.inst }

// AddLink connects a channel to a neighbouring frame and bootstraps it.
func (f *Frame) AddLink(ch Channel) {
	if f.disposed {
		return
	}
	l := &link{ch: ch}
	f.links = append(f.links, l)
	ch.SetReceiver(func(msg []byte) {
		f.sched.Post(func() { f.receive(l, msg) })
	})
	f.bootstrap(l)
}

// RemoveLink detaches ch and forgets the peers that were reachable through it.
func (f *Frame) RemoveLink(ch Channel) {
	idx := slices.IndexFunc(f.links, func(l *link) bool { return l.ch == ch })
	if idx < 0 {
		return
	}
	l := f.links[idx]
	f.links = slices.Delete(f.links, idx, idx+1)
	ch.SetReceiver(nil)
	for _, p := range f.peerList() {
		if p.link == l {
			f.purge(p.id, "link removed")
		}
	}
}

// Peers returns the ids of the frames currently known, sorted.
func (f *Frame) Peers() []string {
	ids := make([]string, 0, len(f.peers))
	for id := range f.peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (f *Frame) peerList() []*peer {
	out := make([]*peer, 0, len(f.peers))
	for _, id := range f.Peers() {
		out = append(out, f.peers[id])
	}
	return out
}

// Dispose stops the sweep, rejects pending transactions and closes every link.
func (f *Frame) Dispose() {
	if f.disposed {
		return
	}
	f.disposed = true
	if f.sweep != nil {
		f.sweep.Stop()
		f.sweep = nil
	}
	for _, tx := range f.pendingList() {
		f.finish(tx, ErrClosed)
	}
	for _, unsub := range f.unsubs {
		unsub()
	}
	f.unsubs = nil
	for _, l := range f.links {
		l.ch.SetReceiver(nil)
		if err := l.ch.Close(); err != nil {
			f.logger.Debug("Closing link failed.", zap.Error(err))
		}
	}
	f.links = nil
	f.changes = nil
	f.logger.Debug("Frame disposed.")
}

// OnStateChange registers fn for every state update applied from a peer.
func (f *Frame) OnStateChange(fn func(schemas.StateData)) (unsubscribe func()) {
	f.changes = append(f.changes, fn)
	idx := len(f.changes) - 1
	return func() {
		if idx < len(f.changes) {
			f.changes[idx] = nil
		}
	}
}

func (f *Frame) emitChange(d schemas.StateData) {
	for _, fn := range slices.Clone(f.changes) {
		if fn != nil {
			fn(d)
		}
	}
}

// FocusedElement returns the element focused anywhere in the frame tree, as
// far as this frame knows.
func (f *Frame) FocusedElement() *schemas.ElementDescriptor { return cloneDescriptor(f.state.focused) }

// Outlined returns the element showing the keyboard outline anywhere.
func (f *Frame) Outlined() *schemas.ElementDescriptor { return cloneDescriptor(f.state.outlined) }

// IsNavigatingWithKeyboard reports the shared keyboard navigation mode.
func (f *Frame) IsNavigatingWithKeyboard() bool { return f.inst.Keyboard.IsNavigatingWithKeyboard() }

// ObservedOwner returns the id of the frame holding the observed element name.
func (f *Frame) ObservedOwner(name string) string { return f.state.observed[name] }

func (f *Frame) now() int64 { return f.sched.Now().UnixMilli() }

// descriptor names a local element for other frames.
func (f *Frame) descriptor(el *html.Node) *schemas.ElementDescriptor {
	if el == nil {
		return nil
	}
	return &schemas.ElementDescriptor{OwnerUID: f.id, UID: f.inst.Registry().UID(el), ID: dom.ID(el)}
}

// resolve finds the local element d names and passes it to cb. An
// observed name may be waited for up to wait.
func (f *Frame) resolve(d schemas.ElementDescriptor, wait time.Duration, cb func(*html.Node)) {
	if d.OwnerUID != "" && d.OwnerUID != f.id {
		cb(nil)
		return
	}
	if d.IsEmpty() {
		cb(f.inst.Focused.Element())
		return
	}
	if d.UID != "" {
		if el := f.inst.Registry().Lookup(d.UID); el != nil && f.inst.Document().IsAttached(el) {
			cb(el)
			return
		}
	}
	if d.ID != "" {
		if el := f.inst.Document().ByID(d.ID); el != nil {
			cb(el)
			return
		}
	}
	if d.ObservedName != "" {
		if wait <= 0 {
			cb(f.inst.Observed.Element(d.ObservedName))
			return
		}
		f.inst.Observed.WaitElement(d.ObservedName, wait, cb)
		return
	}
	cb(nil)
}

// Resolve returns the local element d names, without waiting.
func (f *Frame) Resolve(d schemas.ElementDescriptor) *html.Node {
	var out *html.Node
	f.resolve(d, 0, func(el *html.Node) { out = el })
	return out
}
