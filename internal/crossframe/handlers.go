// internal/crossframe/handlers.go
package crossframe

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/focus"
)

// transactionHandler defines how one transaction type is served.
type transactionHandler struct {
	// forward sends untargeted requests on to neighbours that have not seen them.
	forward bool
	// selfRespond lets the originating frame answer its own request first.
	selfRespond bool
	// respond computes this frame's endData and passes it to reply, possibly later.
	respond func(f *Frame, env schemas.Envelope, reply func(jsoniter.RawMessage))
	// fulfilled reports whether one answer is enough to end the transaction.
	fulfilled func(end jsoniter.RawMessage) bool
	merge     func(results []jsoniter.RawMessage) jsoniter.RawMessage
}

var handlers map[schemas.TransactionType]*transactionHandler

func init() {
	handlers = map[schemas.TransactionType]*transactionHandler{
		schemas.TxBootstrap: {
			respond: respondBootstrap,
		},
		schemas.TxFocusElement: {
			forward:     true,
			selfRespond: true,
			respond:     respondFocusElement,
			fulfilled:   isOK,
			merge:       mergeOK,
		},
		schemas.TxState: {
			forward: true,
			respond: respondState,
		},
		schemas.TxGetElement: {
			forward:     true,
			selfRespond: true,
			respond:     respondGetElement,
			fulfilled:   hasElement,
			merge:       mergeElement,
		},
		schemas.TxRestoreFocusInDeloser: {
			forward:   true,
			respond:   respondRestore,
			fulfilled: isOK,
			merge:     mergeOK,
		},
		schemas.TxPing: {
			respond: respondPing,
		},
	}
}

func encode(f *Frame, v any) jsoniter.RawMessage {
	b, err := codec.Marshal(v)
	if err != nil {
		f.logger.Error("Failed to encode response data.", zap.Error(err))
		return nil
	}
	return b
}

func decodeBegin[T any](f *Frame, env schemas.Envelope) (T, bool) {
	var v T
	if len(env.BeginData) == 0 {
		return v, true
	}
	if err := codec.Unmarshal(env.BeginData, &v); err != nil {
		f.logger.Debug("Dropping malformed request data.", zap.Stringer("type", env.Type), zap.Error(err))
		return v, false
	}
	return v, true
}

func isOK(end jsoniter.RawMessage) bool {
	var r schemas.BoolResponse
	return codec.Unmarshal(end, &r) == nil && r.OK
}

func mergeOK(results []jsoniter.RawMessage) jsoniter.RawMessage {
	for _, r := range results {
		if isOK(r) {
			return r
		}
	}
	if len(results) > 0 {
		return results[0]
	}
	return nil
}

func hasElement(end jsoniter.RawMessage) bool {
	var r schemas.ElementResponse
	return codec.Unmarshal(end, &r) == nil && r.Element != nil
}

func mergeElement(results []jsoniter.RawMessage) jsoniter.RawMessage {
	for _, r := range results {
		if hasElement(r) {
			return r
		}
	}
	return nil
}

func respondBootstrap(f *Frame, _ schemas.Envelope, reply func(jsoniter.RawMessage)) {
	reply(encode(f, f.bootstrapData()))
}

func respondPing(f *Frame, _ schemas.Envelope, reply func(jsoniter.RawMessage)) {
	reply(encode(f, schemas.BoolResponse{OK: true}))
}

func respondState(f *Frame, env schemas.Envelope, reply func(jsoniter.RawMessage)) {
	if d, ok := decodeBegin[schemas.StateData](f, env); ok && env.Owner != f.id {
		f.applyState(d)
	}
	reply(nil)
}

func respondFocusElement(f *Frame, env schemas.Envelope, reply func(jsoniter.RawMessage)) {
	req, ok := decodeBegin[schemas.ElementRequest](f, env)
	if !ok {
		reply(encode(f, schemas.BoolResponse{}))
		return
	}
	wait := time.Duration(req.ObservedTimeout) * time.Millisecond
	f.resolve(req.Element, wait, func(el *html.Node) {
		focused := el != nil && f.inst.Focused.Focus(el, focus.FocusOptions{})
		reply(encode(f, schemas.BoolResponse{OK: focused}))
	})
}

func respondGetElement(f *Frame, env schemas.Envelope, reply func(jsoniter.RawMessage)) {
	req, ok := decodeBegin[schemas.ElementRequest](f, env)
	if !ok {
		reply(nil)
		return
	}
	wait := time.Duration(req.ObservedTimeout) * time.Millisecond
	f.resolve(req.Element, wait, func(el *html.Node) {
		d := f.descriptor(el)
		if d != nil && req.Element.ObservedName != "" {
			d.ObservedName = req.Element.ObservedName
		}
		reply(encode(f, schemas.ElementResponse{Element: d}))
	})
}

func respondRestore(f *Frame, _ schemas.Envelope, reply func(jsoniter.RawMessage)) {
	f.restoringRemote = true
	ok := f.inst.Deloser.Restore(focus.RestoreOptions{})
	f.restoringRemote = false
	reply(encode(f, schemas.BoolResponse{OK: ok}))
}

// bootstrap introduces this frame to the neighbour behind l.
func (f *Frame) bootstrap(l *link) {
	f.begin(schemas.TxBootstrap, nil, txOptions{link: l}, func(end jsoniter.RawMessage, err error) {
		if err != nil {
			f.logger.Debug("Bootstrap got no answer.", zap.Error(err))
			return
		}
		var d schemas.BootstrapData
		if len(end) == 0 || codec.Unmarshal(end, &d) != nil {
			return
		}
		f.applyBootstrap(d)
	})
}

// elementTarget picks the frame a request about d should go to, if known.
func (f *Frame) elementTarget(d schemas.ElementDescriptor) string {
	if d.OwnerUID != "" {
		return d.OwnerUID
	}
	if d.ObservedName != "" {
		return f.state.observed[d.ObservedName]
	}
	return ""
}

// requestTimeout leaves room for an observed wait on top of the transaction timeout.
func (f *Frame) requestTimeout(wait time.Duration) time.Duration {
	if wait <= 0 {
		return f.cfg.TransactionTimeout
	}
	return f.cfg.TransactionTimeout + wait
}

// GetElement resolves d to an element in whichever frame holds it. An empty
// descriptor asks for the focused element. An observed name may be waited for
// up to wait. cb runs on the scheduler.
func (f *Frame) GetElement(d schemas.ElementDescriptor, wait time.Duration, cb func(*schemas.ElementDescriptor, error)) {
	req := schemas.ElementRequest{Element: d, ObservedTimeout: wait.Milliseconds()}
	opts := txOptions{target: f.elementTarget(d), timeout: f.requestTimeout(wait)}
	f.begin(schemas.TxGetElement, req, opts, func(end jsoniter.RawMessage, err error) {
		var resp schemas.ElementResponse
		if len(end) > 0 && codec.Unmarshal(end, &resp) == nil && resp.Element != nil {
			cb(resp.Element, nil)
			return
		}
		cb(nil, err)
	})
}

// FocusElement focuses the element d names in whichever frame holds it.
func (f *Frame) FocusElement(d schemas.ElementDescriptor, wait time.Duration, cb func(bool, error)) {
	req := schemas.ElementRequest{Element: d, ObservedTimeout: wait.Milliseconds()}
	opts := txOptions{target: f.elementTarget(d), timeout: f.requestTimeout(wait)}
	f.begin(schemas.TxFocusElement, req, opts, func(end jsoniter.RawMessage, err error) {
		if cb == nil {
			return
		}
		cb(len(end) > 0 && isOK(end), err)
	})
}

// RestoreFocusInDeloser asks the other frames to restore focus from their
// own deloser history.
func (f *Frame) RestoreFocusInDeloser(cb func(bool, error)) {
	f.begin(schemas.TxRestoreFocusInDeloser, nil, txOptions{}, func(end jsoniter.RawMessage, err error) {
		if cb == nil {
			return
		}
		cb(len(end) > 0 && isOK(end), err)
	})
}

// Ping checks that the frame id is alive. cb receives nil on success.
func (f *Frame) Ping(id string, cb func(error)) {
	if f.peers[id] == nil {
		f.sched.Post(func() { cb(ErrPeerGone) })
		return
	}
	f.begin(schemas.TxPing, nil, txOptions{target: id, timeout: f.cfg.PingTimeout}, func(end jsoniter.RawMessage, err error) {
		switch {
		case err != nil:
			cb(err)
		case len(end) == 0 || !isOK(end):
			cb(ErrPeerGone)
		default:
			cb(nil)
		}
	})
}
