package mission

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

var ErrNotFound = errors.New("mission not found")

// Catalog is the ordered set of wizard pages served by the app.
type Catalog struct {
	Version string       `yaml:"version" json:"version"`
	Pages   []Definition `yaml:"pages" json:"pages"`

	byID map[string]int
}

// Load reads the catalog at path, or the embedded catalog when path is
// empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(embeddedCatalog)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(embeddedCatalog)
}

func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks ids, routes and every gate, then builds the lookup index.
func (c *Catalog) Validate() error {
	var errs []error
	byID := make(map[string]int, len(c.Pages))
	routes := map[string]string{}
	for i, d := range c.Pages {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("page %d: missing id", i))
			continue
		}
		if _, dup := byID[id]; dup {
			errs = append(errs, fmt.Errorf("page %s: duplicate id", id))
			continue
		}
		byID[id] = i
		if d.Route == "" {
			errs = append(errs, fmt.Errorf("page %s: missing route", id))
		} else if other, dup := routes[d.Route]; dup {
			errs = append(errs, fmt.Errorf("page %s: route %s already used by %s", id, d.Route, other))
		} else {
			routes[d.Route] = id
		}
		if len(d.Panels) == 0 {
			errs = append(errs, fmt.Errorf("page %s: no panels", id))
			continue
		}
		if d.Stub && d.Gate != nil {
			errs = append(errs, fmt.Errorf("page %s: stub pages cannot be gated", id))
		}
		if _, err := d.WizardSpec(); err != nil {
			errs = append(errs, fmt.Errorf("page %s: %w", id, err))
		}
		for step, p := range d.Panels {
			if err := validateButton(p.Button); err != nil {
				errs = append(errs, fmt.Errorf("page %s step %d: %w", id, step+1, err))
			}
			if p.Rejected != nil {
				if err := validateButton(p.Rejected.Button); err != nil {
					errs = append(errs, fmt.Errorf("page %s step %d rejected: %w", id, step+1, err))
				}
				if d.Gate == nil || d.Gate.ResultStep != step+1 {
					errs = append(errs, fmt.Errorf("page %s step %d: rejected panel outside the result step", id, step+1))
				}
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	c.byID = byID
	return nil
}

func validateButton(b *Button) error {
	if b == nil {
		return nil
	}
	if strings.TrimSpace(b.Label) == "" {
		return errors.New("button without label")
	}
	switch b.Action {
	case ActionNext, ActionBack, ActionRetry, ActionProceed:
		return nil
	case ActionLink:
		if b.Route == "" {
			return errors.New("link button without route")
		}
		return nil
	default:
		return fmt.Errorf("unknown button action %q", b.Action)
	}
}

// Lookup finds a page by id.
func (c *Catalog) Lookup(id string) (Definition, bool) {
	i, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Definition{}, false
	}
	return c.Pages[i], true
}

// Resolve returns the catalog page for id or the generic placeholder.
func (c *Catalog) Resolve(id string) Definition {
	if d, ok := c.Lookup(id); ok {
		return d
	}
	return Placeholder(id)
}

// List returns summaries in catalog order.
func (c *Catalog) List() []Summary {
	out := make([]Summary, 0, len(c.Pages))
	for _, d := range c.Pages {
		out = append(out, d.Summary())
	}
	return out
}

// Missions returns only the numbered missions, in catalog order.
func (c *Catalog) Missions() []Summary {
	out := make([]Summary, 0, len(c.Pages))
	for _, d := range c.Pages {
		if d.ID == BriefingID {
			continue
		}
		out = append(out, d.Summary())
	}
	return out
}
