// internal/dom/registry.go
package dom

import (
	"runtime"
	"strconv"
	"sync"
	"weak"

	"github.com/xkilldash9x/keynav/api/schemas"
	"golang.org/x/net/html"
)

// Registry assigns stable ids to elements and stores their behavior declarations.
// Elements are held weakly: once a node is unreachable its entries are dropped
// and its uid is never handed out again.
type Registry struct {
	// mu guards the maps against runtime cleanups, which run on their own goroutine.
	mu      sync.Mutex
	prefix  string
	next    uint64
	uids    map[weak.Pointer[html.Node]]string
	nodes   map[string]weak.Pointer[html.Node]
	configs map[weak.Pointer[html.Node]]schemas.BehaviorConfig
}

// NewRegistry creates a registry whose uids start with prefix.
func NewRegistry(prefix string) *Registry {
	return &Registry{
		prefix:  prefix,
		uids:    make(map[weak.Pointer[html.Node]]string),
		nodes:   make(map[string]weak.Pointer[html.Node]),
		configs: make(map[weak.Pointer[html.Node]]schemas.BehaviorConfig),
	}
}

// UID returns the id of n, assigning one on first use.
func (r *Registry) UID(n *html.Node) string {
	if n == nil {
		return ""
	}
	key := weak.Make(n)

	r.mu.Lock()
	defer r.mu.Unlock()
	if uid, ok := r.uids[key]; ok {
		return uid
	}
	r.next++
	uid := r.prefix + strconv.FormatUint(r.next, 10)
	r.uids[key] = uid
	r.nodes[uid] = key
	runtime.AddCleanup(n, r.forget, key)
	return uid
}

// PeekUID returns the id of n without assigning one.
func (r *Registry) PeekUID(n *html.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	uid, ok := r.uids[weak.Make(n)]
	return uid, ok
}

// Lookup returns the element registered under uid, if it is still alive.
func (r *Registry) Lookup(uid string) *html.Node {
	r.mu.Lock()
	key, ok := r.nodes[uid]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return key.Value()
}

// Config returns the behavior declaration of n.
func (r *Registry) Config(n *html.Node) (schemas.BehaviorConfig, bool) {
	if n == nil {
		return schemas.BehaviorConfig{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[weak.Make(n)]
	return cfg, ok
}

// SetConfig merges patch into the declaration of n and drops the kinds in remove.
// A declaration left without any behavior is deleted. It returns the resulting
// declaration and the kinds whose presence changed.
func (r *Registry) SetConfig(n *html.Node, patch schemas.BehaviorConfig, remove ...schemas.BehaviorKind) (schemas.BehaviorConfig, []schemas.BehaviorKind) {
	r.UID(n)
	key := weak.Make(n)

	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.configs[key]
	next := prev.Merge(patch, remove...)
	if next.IsEmpty() {
		delete(r.configs, key)
	} else {
		r.configs[key] = next
	}

	var changed []schemas.BehaviorKind
	for kind := schemas.KindRoot; kind <= schemas.KindDeloser; kind++ {
		if prev.Has(kind) != next.Has(kind) || (patch.Has(kind) && next.Has(kind)) {
			changed = append(changed, kind)
		}
	}
	return next, changed
}

// Configured returns every live element that carries a declaration.
func (r *Registry) Configured() []*html.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*html.Node, 0, len(r.configs))
	for key := range r.configs {
		if n := key.Value(); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Forget drops every entry for n. The uid stays retired.
func (r *Registry) Forget(n *html.Node) {
	if n == nil {
		return
	}
	r.forget(weak.Make(n))
}

func (r *Registry) forget(key weak.Pointer[html.Node]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if uid, ok := r.uids[key]; ok {
		delete(r.nodes, uid)
	}
	delete(r.uids, key)
	delete(r.configs, key)
}

// Len reports how many elements currently hold a uid.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.uids)
}
