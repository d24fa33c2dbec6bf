package schemas

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
)

// -- Key Event Schemas --

// KeyEventData represents a structured key event, including the main key and active modifiers.
type KeyEventData struct {
	// Key is the primary key pressed, using the chromedp/kb encoding (kb.Tab, kb.ArrowDown, ...).
	Key string `json:"key" yaml:"key"`
	// Modifiers is a bitmask of active modifiers.
	Modifiers KeyModifier `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
}

// KeyModifier represents keyboard modifiers (Ctrl, Alt, Shift, Meta).
// These values correspond directly to the CDP input.DispatchKeyEvent modifiers bitfield.
type KeyModifier int

const (
	ModNone  KeyModifier = 0
	ModAlt   KeyModifier = 1 // Corresponds to CDP modifier 1
	ModCtrl  KeyModifier = 2 // Corresponds to CDP modifier 2
	ModMeta  KeyModifier = 4 // Corresponds to CDP modifier 4
	ModShift KeyModifier = 8 // Corresponds to CDP modifier 8
)

// CDP converts the bitmask into the CDP representation.
func (m KeyModifier) CDP() input.Modifier {
	var cdpModifiers input.Modifier
	if m&ModAlt != 0 {
		cdpModifiers |= input.ModifierAlt
	}
	if m&ModCtrl != 0 {
		cdpModifiers |= input.ModifierCtrl
	}
	if m&ModMeta != 0 {
		cdpModifiers |= input.ModifierMeta
	}
	if m&ModShift != 0 {
		cdpModifiers |= input.ModifierShift
	}
	return cdpModifiers
}

// ModifierFromCDP is the inverse of KeyModifier.CDP.
func ModifierFromCDP(m input.Modifier) KeyModifier {
	var km KeyModifier
	if m&input.ModifierAlt != 0 {
		km |= ModAlt
	}
	if m&input.ModifierCtrl != 0 {
		km |= ModCtrl
	}
	if m&input.ModifierMeta != 0 {
		km |= ModMeta
	}
	if m&input.ModifierShift != 0 {
		km |= ModShift
	}
	return km
}

// Shift reports whether the shift modifier is held.
func (k KeyEventData) Shift() bool { return k.Modifiers&ModShift != 0 }

// HasCommandModifier reports whether Alt, Ctrl or Meta is held.
func (k KeyEventData) HasCommandModifier() bool {
	return k.Modifiers&(ModAlt|ModCtrl|ModMeta) != 0
}

// keyNames maps the DOM key names accepted on the command line and in
// manifests to their chromedp/kb encoding.
var keyNames = map[string]string{
	"tab":        kb.Tab,
	"enter":      kb.Enter,
	"escape":     kb.Escape,
	"esc":        kb.Escape,
	"arrowleft":  kb.ArrowLeft,
	"left":       kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"right":      kb.ArrowRight,
	"arrowup":    kb.ArrowUp,
	"up":         kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"down":       kb.ArrowDown,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"home":       kb.Home,
	"end":        kb.End,
}

var modifierNames = map[string]KeyModifier{
	"alt":     ModAlt,
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"meta":    ModMeta,
	"cmd":     ModMeta,
	"shift":   ModShift,
}

// ParseKeyChord parses chords like "Tab", "Shift+Tab" or "ctrl+ArrowDown".
func ParseKeyChord(chord string) (KeyEventData, error) {
	parts := strings.Split(strings.TrimSpace(chord), "+")
	var data KeyEventData
	for i, part := range parts {
		name := strings.ToLower(strings.TrimSpace(part))
		if i < len(parts)-1 {
			mod, ok := modifierNames[name]
			if !ok {
				return KeyEventData{}, fmt.Errorf("unknown modifier %q in chord %q", part, chord)
			}
			data.Modifiers |= mod
			continue
		}
		key, ok := keyNames[name]
		if !ok {
			// Printable characters stand for themselves.
			if utf8.RuneCountInString(strings.TrimSpace(part)) != 1 {
				return KeyEventData{}, fmt.Errorf("unknown key %q in chord %q", part, chord)
			}
			key = strings.TrimSpace(part)
		}
		data.Key = key
	}
	return data, nil
}

// KeyName returns a readable name for a kb encoded key.
func KeyName(key string) string {
	switch key {
	case kb.Tab:
		return "Tab"
	case kb.Enter:
		return "Enter"
	case kb.Escape:
		return "Escape"
	case kb.ArrowLeft:
		return "ArrowLeft"
	case kb.ArrowRight:
		return "ArrowRight"
	case kb.ArrowUp:
		return "ArrowUp"
	case kb.ArrowDown:
		return "ArrowDown"
	case kb.PageUp:
		return "PageUp"
	case kb.PageDown:
		return "PageDown"
	case kb.Home:
		return "Home"
	case kb.End:
		return "End"
	}
	return fmt.Sprintf("%q", key)
}

func (k KeyEventData) String() string {
	var b strings.Builder
	if k.Modifiers&ModCtrl != 0 {
		b.WriteString("Ctrl+")
	}
	if k.Modifiers&ModAlt != 0 {
		b.WriteString("Alt+")
	}
	if k.Modifiers&ModMeta != 0 {
		b.WriteString("Meta+")
	}
	if k.Modifiers&ModShift != 0 {
		b.WriteString("Shift+")
	}
	b.WriteString(KeyName(k.Key))
	return b.String()
}
