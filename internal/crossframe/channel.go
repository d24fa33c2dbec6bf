// internal/crossframe/channel.go
package crossframe

import (
	"errors"
	"sync"
)

var (
	// ErrClosed is returned for operations on a closed channel or disposed frame.
	ErrClosed = errors.New("crossframe: closed")
	// ErrTransactionTimeout rejects a transaction not every recipient answered in time.
	ErrTransactionTimeout = errors.New("crossframe: transaction timed out")
	// ErrPeerGone rejects a transaction whose target left the peer table.
	ErrPeerGone = errors.New("crossframe: peer is gone")
	// ErrMalformedEnvelope reports a message that is not a valid envelope.
	ErrMalformedEnvelope = errors.New("crossframe: malformed envelope")
	// ErrUnknownTransaction reports an envelope with a type no handler serves.
	ErrUnknownTransaction = errors.New("crossframe: unknown transaction type")
)

// Channel is a bidirectional message pipe to one neighbouring frame. Delivery
// is at least once and unordered. The receiver may be called from any goroutine.
type Channel interface {
	Send(msg []byte) error
	SetReceiver(fn func(msg []byte))
	Close() error
}

// pipeEnd is one side of an in-memory channel pair. Messages arriving before a
// receiver is set wait in backlog.
type pipeEnd struct {
	mu      sync.Mutex
	peer    *pipeEnd
	recv    func([]byte)
	backlog [][]byte
	closed  bool
}

// Pipe returns two connected in-memory channels. A message sent on one end is
// handed to the other end's receiver synchronously, as a private copy.
func Pipe() (Channel, Channel) {
	a, b := &pipeEnd{}, &pipeEnd{}
	a.peer, b.peer = b, a
	return a, b
}

func (p *pipeEnd) Send(msg []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	msg = append([]byte(nil), msg...)
	peer := p.peer
	peer.mu.Lock()
	if peer.closed {
		peer.mu.Unlock()
		return ErrClosed
	}
	recv := peer.recv
	if recv == nil {
		peer.backlog = append(peer.backlog, msg)
	}
	peer.mu.Unlock()
	if recv != nil {
		recv(msg)
	}
	return nil
}

func (p *pipeEnd) SetReceiver(fn func([]byte)) {
	p.mu.Lock()
	p.recv = fn
	var backlog [][]byte
	if fn != nil {
		backlog, p.backlog = p.backlog, nil
	}
	p.mu.Unlock()
	for _, msg := range backlog {
		fn(msg)
	}
}

func (p *pipeEnd) Close() error {
	p.mu.Lock()
	p.closed = true
	p.recv = nil
	p.backlog = nil
	p.mu.Unlock()
	return nil
}
