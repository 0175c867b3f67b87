package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed data/technologies.yaml
var defaultCatalog []byte

type document struct {
	Categories []Category `yaml:"categories" validate:"min=1,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default builds the catalog shipped with the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// LoadFile builds a catalog from a YAML file on disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Load parses and validates a YAML catalog.
func Load(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return Build(doc.Categories)
}

// Build indexes and validates categories that were authored in code or
// decoded elsewhere.
func Build(categories []Category) (*Catalog, error) {
	if err := validate.Struct(document{Categories: categories}); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	c := &Catalog{
		byCategory:    make(map[string]*Category, len(categories)),
		nodes:         make(map[string]*Node),
		membership:    make(map[string]Membership),
		categoryNodes: make(map[string]map[string]struct{}, len(categories)),
		requiredBy:    make(map[string][]string),
	}

	for i := range categories {
		cat := copyCategory(categories[i])
		if _, dup := c.byCategory[cat.ID]; dup {
			return nil, fmt.Errorf("%w: category %q", ErrDuplicateID, cat.ID)
		}
		c.byCategory[cat.ID] = cat
		c.categories = append(c.categories, cat)
		ids := make(map[string]struct{})
		lineIDs := make(map[string]struct{}, len(cat.Lines))

		for li := range cat.Lines {
			line := &cat.Lines[li]
			if _, dup := lineIDs[line.ID]; dup {
				return nil, fmt.Errorf("%w: line %q in category %q", ErrDuplicateID, line.ID, cat.ID)
			}
			lineIDs[line.ID] = struct{}{}
			for ni := range line.Nodes {
				node := &line.Nodes[ni]
				if prev, dup := c.membership[node.ID]; dup {
					return nil, fmt.Errorf("%w: technology %q in %s/%s and %s/%s",
						ErrDuplicateID, node.ID, prev.Category, prev.Line, cat.ID, line.ID)
				}
				c.nodes[node.ID] = node
				c.membership[node.ID] = Membership{Category: cat.ID, Line: line.ID}
				ids[node.ID] = struct{}{}
			}
		}
		c.categoryNodes[cat.ID] = ids
	}

	for _, cat := range c.categories {
		for _, line := range cat.Lines {
			for _, node := range line.Nodes {
				seen := make(map[string]struct{}, len(node.Requires))
				for _, req := range node.Requires {
					if req == node.ID {
						return nil, fmt.Errorf("%w: %q requires itself", ErrCycleDetected, node.ID)
					}
					if _, ok := c.nodes[req]; !ok {
						return nil, fmt.Errorf("%w: %q requires %q", ErrUnknownRequirement, node.ID, req)
					}
					if _, dup := seen[req]; dup {
						return nil, fmt.Errorf("%w: %q lists requirement %q twice", ErrDuplicateID, node.ID, req)
					}
					seen[req] = struct{}{}
					c.requiredBy[req] = append(c.requiredBy[req], node.ID)
				}
			}
		}
	}
	for id := range c.requiredBy {
		sort.Strings(c.requiredBy[id])
	}

	order, err := c.topoSort()
	if err != nil {
		return nil, err
	}
	c.topoOrder = order
	return c, nil
}

// topoSort runs Kahn's algorithm; nodes left unvisited sit on a cycle.
func (c *Catalog) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(c.nodes))
	for id, node := range c.nodes {
		inDegree[id] = len(node.Requires)
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(c.nodes))
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		order = append(order, curr)
		for _, dep := range c.requiredBy[curr] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(c.nodes) {
		var stuck []string
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: %v", ErrCycleDetected, stuck)
	}
	return order, nil
}

func copyCategory(in Category) *Category {
	out := &Category{ID: in.ID, Name: in.Name, Lines: make([]Line, len(in.Lines))}
	for i, line := range in.Lines {
		nodes := make([]Node, len(line.Nodes))
		for j, n := range line.Nodes {
			n.Requires = append([]string(nil), n.Requires...)
			nodes[j] = n
		}
		out.Lines[i] = Line{ID: line.ID, Name: line.Name, Nodes: nodes}
	}
	return out
}
