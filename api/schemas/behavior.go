package schemas

import (
	"fmt"
	"strings"
)

// -- Behavior Configuration Schemas --

// BehaviorKind names one of the behaviors that can be attached to an element.
type BehaviorKind int

const (
	KindRoot BehaviorKind = iota
	KindModalizer
	KindGroupper
	KindMover
	KindObserved
	KindFocusable
	KindOutline
	KindDeloser
)

func (k BehaviorKind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindModalizer:
		return "modalizer"
	case KindGroupper:
		return "groupper"
	case KindMover:
		return "mover"
	case KindObserved:
		return "observed"
	case KindFocusable:
		return "focusable"
	case KindOutline:
		return "outline"
	case KindDeloser:
		return "deloser"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// BehaviorConfig is the per-element behavior declaration. A nil field means the
// behavior is absent.
type BehaviorConfig struct {
	Root      *RootProps      `json:"root,omitempty" yaml:"root,omitempty"`
	Modalizer *ModalizerProps `json:"modalizer,omitempty" yaml:"modalizer,omitempty"`
	Groupper  *GroupperProps  `json:"groupper,omitempty" yaml:"groupper,omitempty"`
	Mover     *MoverProps     `json:"mover,omitempty" yaml:"mover,omitempty"`
	Observed  *ObservedProps  `json:"observed,omitempty" yaml:"observed,omitempty"`
	Focusable *FocusableProps `json:"focusable,omitempty" yaml:"focusable,omitempty"`
	Outline   *OutlineProps   `json:"outline,omitempty" yaml:"outline,omitempty"`
	Deloser   *DeloserProps   `json:"deloser,omitempty" yaml:"deloser,omitempty"`
}

// IsEmpty reports whether no behavior is declared.
func (c BehaviorConfig) IsEmpty() bool {
	return c.Root == nil && c.Modalizer == nil && c.Groupper == nil && c.Mover == nil &&
		c.Observed == nil && c.Focusable == nil && c.Outline == nil && c.Deloser == nil
}

// Has reports whether the behavior of the given kind is declared.
func (c BehaviorConfig) Has(kind BehaviorKind) bool {
	switch kind {
	case KindRoot:
		return c.Root != nil
	case KindModalizer:
		return c.Modalizer != nil
	case KindGroupper:
		return c.Groupper != nil
	case KindMover:
		return c.Mover != nil
	case KindObserved:
		return c.Observed != nil
	case KindFocusable:
		return c.Focusable != nil
	case KindOutline:
		return c.Outline != nil
	case KindDeloser:
		return c.Deloser != nil
	}
	return false
}

// Merge overlays the non-nil fields of patch onto c and drops every kind listed in remove.
func (c BehaviorConfig) Merge(patch BehaviorConfig, remove ...BehaviorKind) BehaviorConfig {
	out := c
	if patch.Root != nil {
		out.Root = patch.Root
	}
	if patch.Modalizer != nil {
		out.Modalizer = patch.Modalizer
	}
	if patch.Groupper != nil {
		out.Groupper = patch.Groupper
	}
	if patch.Mover != nil {
		out.Mover = patch.Mover
	}
	if patch.Observed != nil {
		out.Observed = patch.Observed
	}
	if patch.Focusable != nil {
		out.Focusable = patch.Focusable
	}
	if patch.Outline != nil {
		out.Outline = patch.Outline
	}
	if patch.Deloser != nil {
		out.Deloser = patch.Deloser
	}
	for _, kind := range remove {
		switch kind {
		case KindRoot:
			out.Root = nil
		case KindModalizer:
			out.Modalizer = nil
		case KindGroupper:
			out.Groupper = nil
		case KindMover:
			out.Mover = nil
		case KindObserved:
			out.Observed = nil
		case KindFocusable:
			out.Focusable = nil
		case KindOutline:
			out.Outline = nil
		case KindDeloser:
			out.Deloser = nil
		}
	}
	return out
}

type RootProps struct {
	// RestoreFocusOrder overrides the order of every deloser in this root.
	RestoreFocusOrder RestoreFocusOrder `json:"restoreFocusOrder,omitempty" yaml:"restore_focus_order,omitempty"`
	// Cycle wraps Tab navigation at the edges of the root instead of leaving it.
	Cycle bool `json:"cycle,omitempty" yaml:"cycle,omitempty"`
}

type ModalizerProps struct {
	ID                 string `json:"id" yaml:"id"`
	IsOthersAccessible bool   `json:"isOthersAccessible,omitempty" yaml:"others_accessible,omitempty"`
	IsAlwaysAccessible bool   `json:"isAlwaysAccessible,omitempty" yaml:"always_accessible,omitempty"`
}

type GroupperProps struct {
	TabbableLimit GroupperFocusLimit `json:"tabbability,omitempty" yaml:"tabbability,omitempty"`
}

type MoverProps struct {
	Direction MoverDirection `json:"direction,omitempty" yaml:"direction,omitempty"`
	Cyclic    bool           `json:"cyclic,omitempty" yaml:"cyclic,omitempty"`
	Keys      MoverKeys      `json:"keys,omitempty" yaml:"keys,omitempty"`
	// Memorize makes Tab re-entry land on the element focused last.
	Memorize bool `json:"memorizeCurrent,omitempty" yaml:"memorize,omitempty"`
}

type ObservedProps struct {
	Name string `json:"name" yaml:"name"`
}

type FocusableProps struct {
	IsDefault          bool `json:"isDefault,omitempty" yaml:"default,omitempty"`
	IgnoreAriaDisabled bool `json:"ignoreAriaDisabled,omitempty" yaml:"ignore_aria_disabled,omitempty"`
}

type OutlineProps struct {
	IsIgnored bool `json:"isIgnored,omitempty" yaml:"ignored,omitempty"`
}

type DeloserProps struct {
	RestoreFocusOrder RestoreFocusOrder `json:"restoreFocusOrder,omitempty" yaml:"restore_focus_order,omitempty"`
}

// -- Enumerations --

// GroupperFocusLimit controls how a groupper behaves under Tab.
type GroupperFocusLimit int

const (
	// Unlimited grouppers are transparent to Tab.
	Unlimited GroupperFocusLimit = iota
	// Limited grouppers are a single tab stop until entered with Enter.
	Limited
	// LimitedTrapFocus grouppers additionally trap Tab once entered.
	LimitedTrapFocus
)

// MoverDirection controls which arrow keys a mover honors.
type MoverDirection int

const (
	MoverBoth MoverDirection = iota
	MoverVertical
	MoverHorizontal
	MoverGrid
)

// MoverKeys controls which keys engage a mover.
type MoverKeys int

const (
	MoverKeysTab MoverKeys = iota
	MoverKeysArrows
	MoverKeysBoth
)

// HasArrows reports whether arrow keys move focus within the mover.
func (k MoverKeys) HasArrows() bool { return k == MoverKeysArrows || k == MoverKeysBoth }

// RestoreFocusOrder selects the priority of deloser restoration candidates.
// RestoreUnset defers to the next level of configuration.
type RestoreFocusOrder int

const (
	RestoreUnset RestoreFocusOrder = iota
	RestoreHistory
	RestoreDeloserDefault
	RestoreDeloserFirst
	RestoreRootDefault
	RestoreRootFirst
)

// enumText keeps the textual forms used by manifests in one place.
var (
	groupperLimitNames = []string{"unlimited", "limited", "limited-trap-focus"}
	moverDirNames      = []string{"both", "vertical", "horizontal", "grid"}
	moverKeysNames     = []string{"tab", "arrows", "both"}
	restoreOrderNames  = []string{"", "history", "deloser-default", "deloser-first", "root-default", "root-first"}
)

func enumString(names []string, v int) string {
	if v >= 0 && v < len(names) {
		return names[v]
	}
	return fmt.Sprintf("%d", v)
}

func enumParse(names []string, what string, text []byte) (int, error) {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for i, name := range names {
		if name == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", what, string(text))
}

func (g GroupperFocusLimit) String() string { return enumString(groupperLimitNames, int(g)) }
func (d MoverDirection) String() string     { return enumString(moverDirNames, int(d)) }
func (k MoverKeys) String() string          { return enumString(moverKeysNames, int(k)) }
func (r RestoreFocusOrder) String() string  { return enumString(restoreOrderNames, int(r)) }

func (g GroupperFocusLimit) MarshalText() ([]byte, error) { return []byte(g.String()), nil }
func (d MoverDirection) MarshalText() ([]byte, error)     { return []byte(d.String()), nil }
func (k MoverKeys) MarshalText() ([]byte, error)          { return []byte(k.String()), nil }
func (r RestoreFocusOrder) MarshalText() ([]byte, error)  { return []byte(r.String()), nil }

func (g *GroupperFocusLimit) UnmarshalText(text []byte) error {
	v, err := enumParse(groupperLimitNames, "groupper tabbability", text)
	*g = GroupperFocusLimit(v)
	return err
}

func (d *MoverDirection) UnmarshalText(text []byte) error {
	v, err := enumParse(moverDirNames, "mover direction", text)
	*d = MoverDirection(v)
	return err
}

func (k *MoverKeys) UnmarshalText(text []byte) error {
	v, err := enumParse(moverKeysNames, "mover keys", text)
	*k = MoverKeys(v)
	return err
}

func (r *RestoreFocusOrder) UnmarshalText(text []byte) error {
	v, err := enumParse(restoreOrderNames, "restore focus order", text)
	*r = RestoreFocusOrder(v)
	return err
}
