// internal/crossframe/transactions.go
package crossframe

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/scheduler"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

const seenCapacity = 512

// transaction is one request in flight, either originated here or forwarded
// on behalf of another frame. It ends exactly once.
type transaction struct {
	env     schemas.Envelope
	handler *transactionHandler
	waiting map[*link]struct{}
	results []jsoniter.RawMessage
	timer   scheduler.Timer
	cb      func(end jsoniter.RawMessage, err error)

	selfPending bool
	started     bool
	fulfilled   bool
	done        bool
}

type txOptions struct {
	// link restricts the request to one neighbour.
	link    *link
	target  string
	timeout time.Duration
}

// seenSet remembers the most recent request ids so a request looping back
// through another path is answered without being handled twice.
type seenSet struct {
	ids   map[string]struct{}
	order []string
	limit int
}

func newSeenSet(limit int) *seenSet {
	return &seenSet{ids: make(map[string]struct{}, limit), limit: limit}
}

// add records id and reports whether it was new.
func (s *seenSet) add(id string) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.limit {
		delete(s.ids, s.order[0])
		s.order = s.order[1:]
	}
	return true
}

// begin originates a transaction. cb runs on the scheduler with the merged
// endData, or with an error when the transaction could not complete.
func (f *Frame) begin(typ schemas.TransactionType, data any, o txOptions, cb func(jsoniter.RawMessage, error)) {
	if cb == nil {
		cb = func(jsoniter.RawMessage, error) {}
	}
	if f.disposed {
		f.sched.Post(func() { cb(nil, ErrClosed) })
		return
	}
	h, ok := handlers[typ]
	if !ok {
		f.sched.Post(func() { cb(nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, typ)) })
		return
	}
	var beginData jsoniter.RawMessage
	if data != nil {
		b, err := codec.Marshal(data)
		if err != nil {
			f.sched.Post(func() { cb(nil, fmt.Errorf("failed to encode %s request: %w", typ, err)) })
			return
		}
		beginData = b
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = f.cfg.TransactionTimeout
	}

	env := schemas.Envelope{
		Transaction: uuid.NewString(),
		Type:        typ,
		Timestamp:   f.now(),
		Owner:       f.id,
		SentTo:      map[string]bool{f.id: true},
		Timeout:     timeout.Milliseconds(),
		Target:      o.target,
		BeginData:   beginData,
	}
	f.seen.add(env.Transaction)

	var links []*link
	if o.link != nil {
		links = []*link{o.link}
	} else {
		links = f.route(env, nil, true)
	}
	local := h.selfRespond && (o.target == "" || o.target == f.id)
	f.start(env, h, links, local, timeout, cb)
}

// notified reports whether the neighbour behind l already saw env.
func notified(env schemas.Envelope, l *link) bool {
	return l.peer != "" && env.SentTo[l.peer]
}

// route picks the links a request goes out on. A targeted request follows the
// known route to its target and floods otherwise; an untargeted one reaches
// every neighbour that has not seen it when fanOut is set.
func (f *Frame) route(env schemas.Envelope, from *link, fanOut bool) []*link {
	if env.Target == f.id {
		return nil
	}
	if env.Target != "" {
		if p := f.peers[env.Target]; p != nil {
			if p.link == from || notified(env, p.link) {
				return nil
			}
			return []*link{p.link}
		}
		fanOut = true
	}
	if !fanOut {
		return nil
	}
	var out []*link
	for _, l := range f.links {
		if l != from && !notified(env, l) {
			out = append(out, l)
		}
	}
	return out
}

func (f *Frame) start(env schemas.Envelope, h *transactionHandler, links []*link, local bool, timeout time.Duration, cb func(jsoniter.RawMessage, error)) {
	tx := &transaction{env: env, handler: h, waiting: make(map[*link]struct{}), cb: cb}
	f.pending[env.Transaction] = tx

	if local {
		tx.selfPending = true
		h.respond(f, env, func(end jsoniter.RawMessage) {
			if tx.done {
				return
			}
			tx.selfPending = false
			f.collect(tx, end)
			f.checkDone(tx)
		})
		if tx.done {
			return
		}
	}

	out := env
	out.SentTo = maps.Clone(env.SentTo)
	for _, l := range links {
		if l.peer != "" {
			out.SentTo[l.peer] = true
		}
	}
	if len(links) > 0 {
		msg, err := codec.Marshal(out)
		if err != nil {
			f.finish(tx, fmt.Errorf("failed to encode envelope: %w", err))
			return
		}
		for _, l := range links {
			if err := l.ch.Send(msg); err != nil {
				f.logger.Debug("Send to peer failed.", zap.String("peer", l.peer), zap.Error(err))
				continue
			}
			tx.waiting[l] = struct{}{}
		}
	}
	tx.started = true

	if len(tx.waiting) == 0 && !tx.selfPending {
		var err error
		if env.Target != "" && env.Target != f.id && !local {
			err = ErrPeerGone
		}
		f.finish(tx, err)
		return
	}
	tx.timer = f.sched.AfterFunc(timeout, func() {
		tx.timer = nil
		f.logger.Debug("Transaction timed out.",
			zap.String("transaction", env.Transaction),
			zap.Stringer("type", env.Type),
			zap.Int("unanswered", len(tx.waiting)))
		f.finish(tx, ErrTransactionTimeout)
	})
}

func (f *Frame) collect(tx *transaction, end jsoniter.RawMessage) {
	if len(end) == 0 {
		return
	}
	tx.results = append(tx.results, end)
	if tx.handler.fulfilled != nil && tx.handler.fulfilled(end) {
		tx.fulfilled = true
	}
}

// checkDone ends tx once it is fulfilled or nobody is left to answer.
func (f *Frame) checkDone(tx *transaction) {
	if tx.done {
		return
	}
	if tx.fulfilled || (tx.started && !tx.selfPending && len(tx.waiting) == 0) {
		f.finish(tx, nil)
	}
}

func (f *Frame) finish(tx *transaction, err error) {
	if tx.done {
		return
	}
	tx.done = true
	if tx.timer != nil {
		tx.timer.Stop()
		tx.timer = nil
	}
	if f.pending[tx.env.Transaction] == tx {
		delete(f.pending, tx.env.Transaction)
	}
	var merged jsoniter.RawMessage
	if tx.handler.merge != nil {
		merged = tx.handler.merge(tx.results)
	} else if len(tx.results) > 0 {
		merged = tx.results[0]
	}
	cb := tx.cb
	f.sched.Post(func() { cb(merged, err) })
}

func (f *Frame) pendingList() []*transaction {
	ids := slices.Sorted(maps.Keys(f.pending))
	out := make([]*transaction, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.pending[id])
	}
	return out
}

// receive handles one inbound message from l.
func (f *Frame) receive(l *link, raw []byte) {
	if f.disposed {
		return
	}
	var env schemas.Envelope
	if err := codec.Unmarshal(raw, &env); err != nil {
		f.logger.Debug("Dropping envelope.", zap.Error(fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)))
		return
	}
	if env.Transaction == "" || env.Owner == "" {
		f.logger.Debug("Dropping envelope.", zap.Error(ErrMalformedEnvelope))
		return
	}
	h, ok := handlers[env.Type]
	if !ok {
		f.logger.Debug("Dropping envelope.", zap.Error(fmt.Errorf("%w: %s", ErrUnknownTransaction, env.Type)))
		return
	}
	if env.SentTo == nil {
		env.SentTo = make(map[string]bool)
	}
	f.touch(l, env)

	if env.IsResponse {
		f.onResponse(l, env)
		return
	}
	f.onRequest(l, env, h)
}

// touch records that the sender of env is alive and reachable through l.
// Responses and bootstrap requests always come from the neighbour itself.
func (f *Frame) touch(l *link, env schemas.Envelope) {
	now := f.sched.Now()
	if env.Owner != f.id && (env.IsResponse || env.Type == schemas.TxBootstrap) {
		l.peer = env.Owner
	}
	if l.peer != "" {
		if p := f.peers[l.peer]; p != nil {
			p.lastSeen = now
		}
	}
	if env.Owner == f.id {
		return
	}
	p := f.peers[env.Owner]
	if p == nil {
		p = &peer{id: env.Owner}
		f.peers[env.Owner] = p
		f.logger.Debug("Peer discovered.", zap.String("peer", env.Owner))
	}
	p.link = l
	p.lastSeen = now
}

func (f *Frame) onResponse(l *link, env schemas.Envelope) {
	tx := f.pending[env.Transaction]
	if tx == nil {
		f.logger.Debug("Ignoring response to a finished transaction.", zap.String("transaction", env.Transaction))
		return
	}
	if _, ok := tx.waiting[l]; !ok {
		return
	}
	delete(tx.waiting, l)
	f.collect(tx, env.EndData)
	f.checkDone(tx)
}

// onRequest answers a request from l. Untargeted requests of forwarding types
// continue to the neighbours that have not seen them; the local answer and
// theirs are merged into one reply.
func (f *Frame) onRequest(l *link, env schemas.Envelope, h *transactionHandler) {
	if env.Owner == f.id || !f.seen.add(env.Transaction) {
		f.reply(l, env, nil)
		return
	}

	timeout := time.Duration(env.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = f.cfg.TransactionTimeout
	}
	// Answer before the requester gives up on us.
	timeout = timeout * 3 / 4

	child := env
	child.SentTo = maps.Clone(env.SentTo)
	child.SentTo[f.id] = true
	local := env.Target == "" || env.Target == f.id
	links := f.route(child, l, h.forward && env.Target == "")

	f.start(child, h, links, local, timeout, func(end jsoniter.RawMessage, err error) {
		if err != nil && !errors.Is(err, ErrTransactionTimeout) {
			f.logger.Debug("Forwarded transaction failed.", zap.Stringer("type", env.Type), zap.Error(err))
		}
		f.reply(l, env, end)
	})
}

func (f *Frame) reply(l *link, req schemas.Envelope, end jsoniter.RawMessage) {
	resp := schemas.Envelope{
		Transaction: req.Transaction,
		Type:        req.Type,
		IsResponse:  true,
		Timestamp:   f.now(),
		Owner:       f.id,
		Target:      req.Owner,
		EndData:     end,
	}
	msg, err := codec.Marshal(resp)
	if err != nil {
		f.logger.Error("Failed to encode response.", zap.Error(err))
		return
	}
	if err := l.ch.Send(msg); err != nil {
		f.logger.Debug("Reply to peer failed.", zap.String("peer", l.peer), zap.Error(err))
	}
}
