// internal/crossframe/liveness.go
package crossframe

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/keynav/api/schemas"
)

func (f *Frame) scheduleSweep() {
	if f.disposed || f.cfg.PingInterval <= 0 {
		return
	}
	f.sweep = f.sched.AfterFunc(f.cfg.PingInterval, f.runSweep)
}

// runSweep pings every peer that has been silent for longer than the peer
// timeout and purges the ones that do not answer.
func (f *Frame) runSweep() {
	f.sweep = nil
	if f.disposed {
		return
	}
	now := f.sched.Now()
	for _, p := range f.peerList() {
		if p.pinging || now.Sub(p.lastSeen) <= f.cfg.PeerTimeout {
			continue
		}
		p.pinging = true
		id := p.id
		f.Ping(id, func(err error) {
			if cur := f.peers[id]; cur != nil {
				cur.pinging = false
			}
			if err != nil {
				f.purge(id, err.Error())
			}
		})
	}
	f.scheduleSweep()
}

// dropPeer forgets id and everything it owned.
func (f *Frame) dropPeer(id string) bool {
	if _, ok := f.peers[id]; !ok {
		return false
	}
	delete(f.peers, id)
	for _, l := range f.links {
		if l.peer == id {
			l.peer = ""
		}
	}
	f.state.clearOwned(id)
	return true
}

// purge removes a dead peer. If it owned focus, the other frames learn that
// focus is gone and a forced deloser restoration is scheduled.
func (f *Frame) purge(id, reason string) {
	focused := f.state.focused
	ownedFocus := ownedBy(focused, id)
	if !f.dropPeer(id) {
		return
	}
	f.logger.Info("Peer purged.", zap.String("peer", id), zap.String("reason", reason))

	ts := f.now()
	if ownedFocus {
		f.state.focusedTs = ts
		blurred := schemas.StateData{State: schemas.StateBlurred, Element: focused, Timestamp: ts}
		f.broadcastState(blurred)
		f.emitChange(blurred)
	}
	dead := schemas.StateData{State: schemas.StateDeadWindow, Dead: id, Timestamp: ts}
	f.broadcastState(dead)
	f.emitChange(dead)

	if ownedFocus {
		f.inst.Deloser.ScheduleRestore(true)
	}
}
