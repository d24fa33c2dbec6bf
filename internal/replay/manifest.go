// internal/replay/manifest.go
package replay

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/dom"
)

// Manifest binds behaviors to the elements matched by XPath selectors.
//
//	behaviors:
//	  - select: //ul[@id='menu']
//	    mover:
//	      direction: vertical
//	      cyclic: true
//	  - select: //div[@class='card']
//	    groupper:
//	      tabbability: limited-trap-focus
type Manifest struct {
	Behaviors []Binding `yaml:"behaviors"`
}

// Binding is one selector and the behaviors declared on every match.
type Binding struct {
	Select                 string `yaml:"select"`
	schemas.BehaviorConfig `yaml:",inline"`
}

// LoadManifest reads a manifest from path. An empty path yields an empty manifest.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return &Manifest{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open behaviors file: %w", err)
	}
	defer f.Close()
	return ParseManifest(f)
}

// ParseManifest decodes a YAML manifest and checks that every binding is usable.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse behaviors: %w", err)
	}
	for i, b := range m.Behaviors {
		if strings.TrimSpace(b.Select) == "" {
			return nil, fmt.Errorf("behavior %d: missing select", i)
		}
		if b.IsEmpty() {
			return nil, fmt.Errorf("behavior %d (%s): no behavior declared", i, b.Select)
		}
	}
	return &m, nil
}

// Bind declares every binding on the matching elements of doc through set,
// in manifest order. It returns how many elements were configured.
func (m *Manifest) Bind(doc *dom.Document, set func(el *html.Node, cfg schemas.BehaviorConfig)) (int, error) {
	bound := 0
	for i, b := range m.Behaviors {
		nodes, err := doc.Query(b.Select)
		if err != nil {
			return bound, fmt.Errorf("behavior %d: %w", i, err)
		}
		if len(nodes) == 0 {
			return bound, fmt.Errorf("behavior %d: %s matched nothing", i, b.Select)
		}
		for _, n := range nodes {
			set(n, b.BehaviorConfig)
			bound++
		}
	}
	return bound, nil
}
