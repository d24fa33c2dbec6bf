package schemas

import (
	"fmt"

	json "github.com/json-iterator/go"
)

// -- Cross Frame Wire Schemas --

// TransactionType identifies the operation carried by an Envelope.
type TransactionType int

const (
	TxBootstrap             TransactionType = 1
	TxFocusElement          TransactionType = 2
	TxState                 TransactionType = 3
	TxGetElement            TransactionType = 4
	TxRestoreFocusInDeloser TransactionType = 5
	TxPing                  TransactionType = 6
)

func (t TransactionType) String() string {
	switch t {
	case TxBootstrap:
		return "bootstrap"
	case TxFocusElement:
		return "focus-element"
	case TxState:
		return "state"
	case TxGetElement:
		return "get-element"
	case TxRestoreFocusInDeloser:
		return "restore-focus-in-deloser"
	case TxPing:
		return "ping"
	}
	return fmt.Sprintf("transaction(%d)", int(t))
}

// Envelope is the message exchanged between frames. Timestamps and timeouts are
// milliseconds; SentTo is the set of frame ids that already saw the transaction.
type Envelope struct {
	Transaction string          `json:"transaction"`
	Type        TransactionType `json:"type"`
	IsResponse  bool            `json:"isResponse"`
	Timestamp   int64           `json:"timestamp"`
	Owner       string          `json:"owner"`
	SentTo      map[string]bool `json:"sentto"`
	Timeout     int64           `json:"timeout,omitempty"`
	Target      string          `json:"target,omitempty"`
	BeginData   json.RawMessage `json:"beginData,omitempty"`
	EndData     json.RawMessage `json:"endData,omitempty"`
}

// ElementDescriptor names an element across frames.
type ElementDescriptor struct {
	OwnerUID     string `json:"ownerUId"`
	UID          string `json:"uid,omitempty"`
	ID           string `json:"id,omitempty"`
	ObservedName string `json:"observedName,omitempty"`
}

// IsEmpty reports whether the descriptor selects nothing in particular.
func (d ElementDescriptor) IsEmpty() bool {
	return d.UID == "" && d.ID == "" && d.ObservedName == ""
}

// StateType is the kind of cross-frame state update.
type StateType int

const (
	StateFocused StateType = iota + 1
	StateBlurred
	StateObserved
	StateKeyboardNavigation
	StateOutline
	StateDeadWindow
)

func (s StateType) String() string {
	switch s {
	case StateFocused:
		return "focused"
	case StateBlurred:
		return "blurred"
	case StateObserved:
		return "observed"
	case StateKeyboardNavigation:
		return "keyboard-navigation"
	case StateOutline:
		return "outline"
	case StateDeadWindow:
		return "dead-window"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StateData is the beginData of a State transaction.
type StateData struct {
	State                     StateType          `json:"state"`
	Element                   *ElementDescriptor `json:"element,omitempty"`
	IsFocusedProgrammatically bool               `json:"isFocusedProgrammatically,omitempty"`
	IsNavigatingWithKeyboard  bool               `json:"isNavigatingWithKeyboard,omitempty"`
	// Timestamp is when the state changed in its owner frame, in milliseconds.
	Timestamp int64 `json:"ts"`
	// Dead names the frame a DeadWindow update is about.
	Dead string `json:"dead,omitempty"`
	// Removed marks an Observed update for a name that went away.
	Removed bool `json:"removed,omitempty"`
}

// BootstrapData is the endData of a Bootstrap response.
type BootstrapData struct {
	Focused                  *ElementDescriptor `json:"focused,omitempty"`
	FocusedTimestamp         int64              `json:"focusedTs,omitempty"`
	Outlined                 *ElementDescriptor `json:"outlined,omitempty"`
	IsNavigatingWithKeyboard bool               `json:"isNavigatingWithKeyboard"`
}

// ElementRequest is the beginData of GetElement and FocusElement.
type ElementRequest struct {
	Element ElementDescriptor `json:"element"`
	// ObservedTimeout is how long an observedName lookup may wait, in milliseconds.
	ObservedTimeout int64 `json:"observedTimeout,omitempty"`
}

// ElementResponse is the endData of GetElement.
type ElementResponse struct {
	Element *ElementDescriptor `json:"element,omitempty"`
}

// BoolResponse is the endData of FocusElement and RestoreFocusInDeloser.
type BoolResponse struct {
	OK bool `json:"ok"`
}
