// internal/replay/replay.go
package replay

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
	"unicode"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/config"
	"github.com/xkilldash9x/keynav/internal/dom"
	"github.com/xkilldash9x/keynav/internal/focus"
	"github.com/xkilldash9x/keynav/internal/scheduler"
)

// ErrNothingToFocus is returned when the page has no element to start from.
var ErrNothingToFocus = errors.New("replay: no element to start from")

// epoch is the start of the replay clock, so traces do not depend on wall time.
var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Options controls a replay run.
type Options struct {
	Keys []schemas.KeyEventData
	// Focus is the XPath of the element focused before the first key.
	// The first tabbable element is used when empty.
	Focus string
	// Settle is how far the clock advances after each key so that delayed
	// work such as deloser restoration runs. Derived from the engine config when zero.
	Settle time.Duration
	// RowHeight is the height of the synthetic layout rows.
	RowHeight float64
	Viewport  dom.Rect
}

// Step is one key press of the trace.
type Step struct {
	Index    int    `json:"index"`
	Key      string `json:"key"`
	Handled  bool   `json:"handled"`
	From     string `json:"from"`
	To       string `json:"to"`
	Keyboard bool   `json:"keyboardNavigation"`
}

// Result is the full focus trace of a run.
type Result struct {
	Initial string      `json:"initial"`
	Steps   []Step      `json:"steps"`
	Stats   focus.Stats `json:"stats"`
}

// ParseKeys splits a sequence like "Tab Shift+Tab Enter, Esc" into key events.
func ParseKeys(seq string) ([]schemas.KeyEventData, error) {
	fields := strings.FieldsFunc(seq, func(r rune) bool { return unicode.IsSpace(r) || r == ',' })
	keys := make([]schemas.KeyEventData, 0, len(fields))
	for _, f := range fields {
		k, err := schemas.ParseKeyChord(f)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Run binds m onto doc, focuses the start element and plays the keys on a
// static host driven by a manual clock.
func Run(doc *dom.Document, m *Manifest, opts Options, cfg config.EngineConfig, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("replay")
	if opts.RowHeight <= 0 {
		opts.RowHeight = 20
	}
	if opts.Viewport.IsEmpty() {
		opts.Viewport = dom.Rect{Width: 1024, Height: 768}
	}
	if opts.Settle <= 0 {
		opts.Settle = cfg.DeloserRestoreDelay + cfg.BlurConfirmDelay + cfg.GroupperVisibilityDelay + time.Millisecond
	}

	sched := scheduler.NewManual(epoch)
	host := dom.NewStaticHost(doc, dom.WithAutoLayout(opts.RowHeight), dom.WithViewport(opts.Viewport))
	inst := focus.New(doc, host, sched, cfg, logger)
	defer inst.Dispose()

	bound, err := m.Bind(doc, func(el *html.Node, c schemas.BehaviorConfig) { inst.SetBehavior(el, c) })
	if err != nil {
		return nil, err
	}
	sched.RunPending()
	logger.Debug("Behaviors bound.", zap.Int("elements", bound))

	start, err := startElement(doc, inst, opts.Focus)
	if err != nil {
		return nil, err
	}
	if !inst.Focused.Focus(start, focus.FocusOptions{}) {
		return nil, fmt.Errorf("replay: %s refused focus", dom.Describe(start))
	}
	sched.Advance(opts.Settle)

	res := &Result{Initial: describe(inst.Focused.Element())}
	for i, key := range opts.Keys {
		from := describe(inst.Focused.Element())
		handled := inst.HandleKeyDown(key)
		sched.RunPending()
		sched.Advance(opts.Settle)
		res.Steps = append(res.Steps, Step{
			Index:    i + 1,
			Key:      key.String(),
			Handled:  handled,
			From:     from,
			To:       describe(inst.Focused.Element()),
			Keyboard: inst.Keyboard.IsNavigatingWithKeyboard(),
		})
	}
	res.Stats = inst.Stats()
	logger.Info("Replay finished.", zap.Int("keys", len(opts.Keys)), zap.String("focused", describe(inst.Focused.Element())))
	return res, nil
}

func startElement(doc *dom.Document, inst *focus.Instance, xpath string) (*html.Node, error) {
	if xpath == "" {
		if n := inst.Focusables.FindFirst(focus.FindOptions{}); n != nil {
			return n, nil
		}
		return nil, ErrNothingToFocus
	}
	n, err := doc.QueryOne(xpath)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%w: %s matched nothing", ErrNothingToFocus, xpath)
	}
	return n, nil
}

func describe(n *html.Node) string {
	if n == nil {
		return "-"
	}
	return dom.Describe(n)
}

// WriteText prints the trace as aligned columns.
func (r *Result) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tKEY\tFROM\tTO\tHANDLED\n")
	fmt.Fprintf(tw, "0\t\t\t%s\t\n", r.Initial)
	for _, s := range r.Steps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\n", s.Index, s.Key, s.From, s.To, s.Handled)
	}
	return tw.Flush()
}

// WriteJSON prints the trace as indented JSON.
func (r *Result) WriteJSON(w io.Writer) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
