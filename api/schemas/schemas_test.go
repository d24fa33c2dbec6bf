package schemas_test

import (
	"testing"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/keynav/api/schemas"
)

func TestParseKeyChord(t *testing.T) {
	tests := []struct {
		chord string
		want  schemas.KeyEventData
	}{
		{"Tab", schemas.KeyEventData{Key: kb.Tab}},
		{"Shift+Tab", schemas.KeyEventData{Key: kb.Tab, Modifiers: schemas.ModShift}},
		{"esc", schemas.KeyEventData{Key: kb.Escape}},
		{"ctrl+alt+Down", schemas.KeyEventData{Key: kb.ArrowDown, Modifiers: schemas.ModCtrl | schemas.ModAlt}},
		{"PageUp", schemas.KeyEventData{Key: kb.PageUp}},
	}
	for _, tt := range tests {
		t.Run(tt.chord, func(t *testing.T) {
			got, err := schemas.ParseKeyChord(tt.chord)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := schemas.ParseKeyChord("Hyper+Tab")
	assert.ErrorContains(t, err, "unknown modifier")
	_, err = schemas.ParseKeyChord("F13")
	assert.ErrorContains(t, err, "unknown key")
}

func TestKeyModifier_CDP(t *testing.T) {
	m := schemas.ModShift | schemas.ModMeta
	cdp := m.CDP()
	assert.Equal(t, input.ModifierShift|input.ModifierMeta, cdp)
	assert.Equal(t, m, schemas.ModifierFromCDP(cdp))

	k := schemas.KeyEventData{Key: kb.Tab, Modifiers: schemas.ModShift}
	assert.True(t, k.Shift())
	assert.False(t, k.HasCommandModifier())
	assert.Equal(t, "Shift+Tab", k.String())
	assert.True(t, schemas.KeyEventData{Key: kb.Tab, Modifiers: schemas.ModAlt}.HasCommandModifier())
}

func TestBehaviorConfig_Merge(t *testing.T) {
	base := schemas.BehaviorConfig{
		Groupper: &schemas.GroupperProps{TabbableLimit: schemas.Limited},
	}
	merged := base.Merge(schemas.BehaviorConfig{Mover: &schemas.MoverProps{Cyclic: true}})
	require.NotNil(t, merged.Groupper)
	require.NotNil(t, merged.Mover)
	assert.True(t, merged.Mover.Cyclic)
	assert.Nil(t, base.Mover, "merge must not mutate the receiver")

	removed := merged.Merge(schemas.BehaviorConfig{}, schemas.KindGroupper, schemas.KindMover)
	assert.True(t, removed.IsEmpty())
	assert.False(t, removed.Has(schemas.KindGroupper))
}

func TestBehaviorConfig_YAMLEnums(t *testing.T) {
	doc := `
groupper:
  tabbability: limited-trap-focus
mover:
  direction: grid
  keys: arrows
  cyclic: true
deloser:
  restore_focus_order: root-first
`
	var cfg schemas.BehaviorConfig
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))
	assert.Equal(t, schemas.LimitedTrapFocus, cfg.Groupper.TabbableLimit)
	assert.Equal(t, schemas.MoverGrid, cfg.Mover.Direction)
	assert.True(t, cfg.Mover.Keys.HasArrows())
	assert.Equal(t, schemas.RestoreRootFirst, cfg.Deloser.RestoreFocusOrder)

	err := yaml.Unmarshal([]byte("mover:\n  direction: diagonal\n"), &cfg)
	assert.ErrorContains(t, err, "unknown mover direction")
}

func TestEnvelope_WireFormat(t *testing.T) {
	env := schemas.Envelope{
		Transaction: "tx-1",
		Type:        schemas.TxGetElement,
		Timestamp:   42,
		Owner:       "frame-a",
		SentTo:      map[string]bool{"frame-a": true},
		Timeout:     5000,
		BeginData:   json.RawMessage(`{"element":{"ownerUId":"frame-b","id":"save"}}`),
	}
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &generic))
	for _, key := range []string{"transaction", "type", "isResponse", "timestamp", "owner", "sentto", "timeout", "beginData"} {
		assert.Contains(t, generic, key)
	}
	assert.NotContains(t, generic, "endData")
	assert.Equal(t, float64(4), generic["type"])

	var req schemas.ElementRequest
	require.NoError(t, json.Unmarshal(env.BeginData, &req))
	assert.Equal(t, "save", req.Element.ID)
	assert.False(t, req.Element.IsEmpty())
	assert.True(t, schemas.ElementDescriptor{OwnerUID: "x"}.IsEmpty())
}
