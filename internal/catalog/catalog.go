// Package catalog holds the static technology research graph.
//
// A Catalog is built once at startup from YAML, validated (unique ids,
// known requires targets, no cycles) and then shared read-only by every
// request. Nothing in this package mutates a Catalog after Load returns.
package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrCategoryNotFound   = errors.New("category not found")
	ErrTechnologyNotFound = errors.New("technology not found")
	ErrDuplicateID        = errors.New("duplicate id")
	ErrUnknownRequirement = errors.New("requires unknown technology")
	ErrCycleDetected      = errors.New("cycle detected in requires graph")
)

// Node is a single unlockable technology.
type Node struct {
	ID       string   `yaml:"id" json:"id" validate:"required,max=64"`
	Name     string   `yaml:"name" json:"name" validate:"required"`
	Year     int      `yaml:"year" json:"year" validate:"gt=0"`
	Requires []string `yaml:"requires" json:"requires" validate:"dive,required"`
}

// Cost is the research point price of the node. It follows the in-game year.
func (n Node) Cost() int64 {
	return int64(n.Year)
}

type Line struct {
	ID    string `yaml:"id" json:"id" validate:"required"`
	Name  string `yaml:"name" json:"name" validate:"required"`
	Nodes []Node `yaml:"technologies" json:"technologies" validate:"dive"`
}

type Category struct {
	ID    string `yaml:"id" json:"id" validate:"required"`
	Name  string `yaml:"name" json:"name" validate:"required"`
	Lines []Line `yaml:"lines" json:"lines" validate:"min=1,dive"`
}

// Membership locates a node inside the category/line hierarchy.
type Membership struct {
	Category string `json:"category"`
	Line     string `json:"line"`
}

// Summary is the listing shape of a category.
type Summary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LineCount int    `json:"line_count"`
	NodeCount int    `json:"node_count"`
}

type Catalog struct {
	categories []*Category
	byCategory map[string]*Category
	nodes      map[string]*Node
	membership map[string]Membership
	// categoryNodes[c] is the id set of nodes rendered in category c.
	categoryNodes map[string]map[string]struct{}
	// requiredBy is the reverse requires index over the whole catalog.
	requiredBy map[string][]string
	topoOrder  []string
}

// AllNodeIDs returns every technology id in the catalog, in dependency order.
func (c *Catalog) AllNodeIDs() []string {
	out := make([]string, len(c.topoOrder))
	copy(out, c.topoOrder)
	return out
}

func (c *Catalog) Len() int {
	return len(c.nodes)
}

// Lookup returns the node with the given id.
func (c *Catalog) Lookup(id string) (Node, bool) {
	n, ok := c.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

func (c *Catalog) MembershipOf(id string) (Membership, bool) {
	m, ok := c.membership[id]
	return m, ok
}

// Category returns the category subtree for id.
func (c *Catalog) Category(id string) (*Category, error) {
	cat, ok := c.byCategory[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCategoryNotFound, id)
	}
	return cat, nil
}

// NodesInCategory returns the category's nodes in authored line order.
func (c *Catalog) NodesInCategory(categoryID string) ([]Node, error) {
	cat, err := c.Category(categoryID)
	if err != nil {
		return nil, err
	}
	var out []Node
	for _, line := range cat.Lines {
		out = append(out, line.Nodes...)
	}
	return out, nil
}

// InCategory reports whether id is rendered in the given category.
func (c *Catalog) InCategory(categoryID, id string) bool {
	_, ok := c.categoryNodes[categoryID][id]
	return ok
}

// RequiredBy lists the nodes, from any category, whose requires contain id.
func (c *Catalog) RequiredBy(id string) []string {
	return c.requiredBy[id]
}

func (c *Catalog) Summaries() []Summary {
	out := make([]Summary, 0, len(c.categories))
	for _, cat := range c.categories {
		s := Summary{ID: cat.ID, Name: cat.Name, LineCount: len(cat.Lines)}
		for _, line := range cat.Lines {
			s.NodeCount += len(line.Nodes)
		}
		out = append(out, s)
	}
	return out
}
