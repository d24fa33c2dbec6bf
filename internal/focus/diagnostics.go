// internal/focus/diagnostics.go
package focus

import (
	"sync"

	"go.uber.org/zap"
)

// Diagnostic codes reported for configuration misuse. Misuse never fails the
// caller; the operation becomes a no-op and a diagnostic is recorded.
const (
	DiagModalizerMissingID   = "modalizer-missing-id"
	DiagModalizerDuplicateID = "modalizer-duplicate-id"
	DiagDisposed             = "instance-disposed"
	DiagDetachedElement      = "detached-element"
	DiagUnknownElement       = "unknown-element"
)

// Diagnostic is one recorded misuse.
type Diagnostic struct {
	Code    string
	Message string
	Element string
}

const maxRecentDiagnostics = 32

// Diagnostics is the misuse channel: every report is logged at warn level and counted.
type Diagnostics struct {
	logger *zap.Logger

	mu     sync.Mutex
	counts map[string]int
	recent []Diagnostic
}

func newDiagnostics(logger *zap.Logger) *Diagnostics {
	return &Diagnostics{logger: logger.Named("diagnostics"), counts: make(map[string]int)}
}

// Report records a diagnostic.
func (d *Diagnostics) Report(code, message, element string) {
	d.logger.Warn(message, zap.String("code", code), zap.String("element", element))

	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts[code]++
	d.recent = append(d.recent, Diagnostic{Code: code, Message: message, Element: element})
	if len(d.recent) > maxRecentDiagnostics {
		d.recent = d.recent[len(d.recent)-maxRecentDiagnostics:]
	}
}

// Count returns how often code was reported.
func (d *Diagnostics) Count(code string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[code]
}

// Recent returns the most recent diagnostics, oldest first.
func (d *Diagnostics) Recent() []Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Diagnostic(nil), d.recent...)
}
