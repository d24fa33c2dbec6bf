// internal/crossframe/state.go
package crossframe

import (
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/focus"
)

// sharedState is this frame's view of the focus state of the whole frame tree.
type sharedState struct {
	focused   *schemas.ElementDescriptor
	focusedTs int64
	outlined  *schemas.ElementDescriptor
	// observed maps an observed name to the frame holding it.
	observed map[string]string
}

func newSharedState() sharedState {
	return sharedState{observed: make(map[string]string)}
}

func cloneDescriptor(d *schemas.ElementDescriptor) *schemas.ElementDescriptor {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func ownedBy(d *schemas.ElementDescriptor, frame string) bool {
	return d != nil && d.OwnerUID == frame
}

// clearOwned drops every piece of state that belongs to frame.
func (s *sharedState) clearOwned(frame string) {
	if ownedBy(s.focused, frame) {
		s.focused = nil
	}
	if ownedBy(s.outlined, frame) {
		s.outlined = nil
	}
	for name, owner := range s.observed {
		if owner == frame {
			delete(s.observed, name)
		}
	}
}

// hook publishes local focus state changes to the other frames.
func (f *Frame) hook() {
	f.unsubs = append(f.unsubs,
		f.inst.Focused.Subscribe(f.onLocalFocus),
		f.inst.Observed.OnChange(f.onLocalObserved),
		f.inst.Keyboard.Subscribe(f.onLocalKeyboard),
		f.inst.Outline.Subscribe(f.onLocalOutline),
		f.inst.Deloser.OnRestoreFailed(f.onLocalRestoreFailed),
	)
}

func (f *Frame) onLocalFocus(el *html.Node, d focus.FocusedElementDetails) {
	ts := f.now()
	if el != nil {
		desc := f.descriptor(el)
		f.state.focused, f.state.focusedTs = desc, ts
		f.broadcastState(schemas.StateData{
			State:                     schemas.StateFocused,
			Element:                   desc,
			IsFocusedProgrammatically: d.IsFocusedProgrammatically,
			IsNavigatingWithKeyboard:  f.inst.Keyboard.IsNavigatingWithKeyboard(),
			Timestamp:                 ts,
		})
		return
	}
	if !ownedBy(f.state.focused, f.id) {
		return
	}
	prev := f.state.focused
	f.state.focused, f.state.focusedTs = nil, ts
	f.broadcastState(schemas.StateData{State: schemas.StateBlurred, Element: prev, Timestamp: ts})
}

func (f *Frame) onLocalObserved(c focus.ObservedChange) {
	desc := &schemas.ElementDescriptor{OwnerUID: f.id, ObservedName: c.Name}
	if c.Element != nil {
		if uid, ok := f.inst.Registry().PeekUID(c.Element); ok {
			desc.UID = uid
		}
	}
	if c.Added {
		f.state.observed[c.Name] = f.id
	} else if f.state.observed[c.Name] == f.id {
		delete(f.state.observed, c.Name)
	}
	f.broadcastState(schemas.StateData{
		State:     schemas.StateObserved,
		Element:   desc,
		Removed:   !c.Added,
		Timestamp: f.now(),
	})
}

func (f *Frame) onLocalKeyboard(on bool) {
	if f.applyingRemote {
		return
	}
	f.broadcastState(schemas.StateData{
		State:                    schemas.StateKeyboardNavigation,
		IsNavigatingWithKeyboard: on,
		Timestamp:                f.now(),
	})
}

func (f *Frame) onLocalOutline(el *html.Node) {
	desc := f.descriptor(el)
	if desc == nil {
		if !ownedBy(f.state.outlined, f.id) {
			return
		}
		// An empty descriptor clears the outline this frame owned.
		desc = &schemas.ElementDescriptor{OwnerUID: f.id}
		f.state.outlined = nil
	} else {
		f.state.outlined = desc
	}
	f.broadcastState(schemas.StateData{State: schemas.StateOutline, Element: desc, Timestamp: f.now()})
}

func (f *Frame) onLocalRestoreFailed(*html.Node) {
	if f.restoringRemote || len(f.links) == 0 {
		return
	}
	f.RestoreFocusInDeloser(func(ok bool, err error) {
		f.logger.Debug("Deloser restoration asked of peers.", zap.Bool("restored", ok), zap.Error(err))
	})
}

func (f *Frame) broadcastState(d schemas.StateData) {
	if f.disposed || len(f.links) == 0 {
		return
	}
	f.begin(schemas.TxState, d, txOptions{}, nil)
}

// applyState merges an update from another frame and reports whether it changed anything.
func (f *Frame) applyState(d schemas.StateData) bool {
	switch d.State {
	case schemas.StateFocused:
		if d.Element == nil || d.Timestamp < f.state.focusedTs {
			return false
		}
		f.state.focused, f.state.focusedTs = cloneDescriptor(d.Element), d.Timestamp
	case schemas.StateBlurred:
		cur := f.state.focused
		if cur == nil || d.Element == nil || d.Timestamp <= f.state.focusedTs || cur.OwnerUID != d.Element.OwnerUID {
			return false
		}
		f.state.focused, f.state.focusedTs = nil, d.Timestamp
	case schemas.StateObserved:
		if d.Element == nil || d.Element.ObservedName == "" {
			return false
		}
		name, owner := d.Element.ObservedName, d.Element.OwnerUID
		if d.Removed {
			if f.state.observed[name] != owner {
				return false
			}
			delete(f.state.observed, name)
		} else {
			f.state.observed[name] = owner
		}
	case schemas.StateKeyboardNavigation:
		f.applyingRemote = true
		f.inst.Keyboard.Set(d.IsNavigatingWithKeyboard)
		f.applyingRemote = false
	case schemas.StateOutline:
		if d.Element == nil {
			return false
		}
		if d.Element.IsEmpty() {
			if !ownedBy(f.state.outlined, d.Element.OwnerUID) {
				return false
			}
			f.state.outlined = nil
		} else {
			f.state.outlined = cloneDescriptor(d.Element)
		}
	case schemas.StateDeadWindow:
		if d.Dead == "" || d.Dead == f.id {
			return false
		}
		f.dropPeer(d.Dead)
	default:
		return false
	}
	f.logger.Debug("Applied state from peer.", zap.Stringer("state", d.State))
	f.emitChange(d)
	return true
}

// applyBootstrap adopts what a neighbour knew when the link came up.
func (f *Frame) applyBootstrap(d schemas.BootstrapData) {
	if d.Focused != nil && d.FocusedTimestamp >= f.state.focusedTs && !ownedBy(d.Focused, f.id) {
		f.state.focused, f.state.focusedTs = cloneDescriptor(d.Focused), d.FocusedTimestamp
	}
	if d.Outlined != nil && f.state.outlined == nil && !ownedBy(d.Outlined, f.id) {
		f.state.outlined = cloneDescriptor(d.Outlined)
	}
	if d.IsNavigatingWithKeyboard && !f.inst.Keyboard.IsNavigatingWithKeyboard() {
		f.applyingRemote = true
		f.inst.Keyboard.Set(true)
		f.applyingRemote = false
	}
}

func (f *Frame) bootstrapData() schemas.BootstrapData {
	return schemas.BootstrapData{
		Focused:                  cloneDescriptor(f.state.focused),
		FocusedTimestamp:         f.state.focusedTs,
		Outlined:                 cloneDescriptor(f.state.outlined),
		IsNavigatingWithKeyboard: f.inst.Keyboard.IsNavigatingWithKeyboard(),
	}
}
