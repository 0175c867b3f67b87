// Package visibility decides which technologies of a category a nation can
// see. Everything here is a pure function of the catalog and a researched
// set; no storage is touched.
package visibility

import (
	"sort"

	"github.com/Terasay/viau-sub000/internal/catalog"
)

// Set is a researched technology id set.
type Set map[string]struct{}

func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

type NodeView struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Year       int      `json:"year"`
	Cost       int64    `json:"cost"`
	Requires   []string `json:"requires"`
	Hidden     bool     `json:"hidden"`
	Researched bool     `json:"researched"`
}

type LineView struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Nodes []NodeView `json:"technologies"`
}

type Tree struct {
	Category string     `json:"category"`
	Name     string     `json:"name"`
	Lines    []LineView `json:"lines"`
}

// IsVisible applies the disclosure rule to one node of a category:
//  1. roots (no requires) are always visible;
//  2. a node is visible once any in-category prerequisite is researched;
//  3. a node is visible once any researched node anywhere requires it.
func IsVisible(cat *catalog.Catalog, categoryID string, node catalog.Node, researched Set) bool {
	if len(node.Requires) == 0 {
		return true
	}
	for _, req := range node.Requires {
		if cat.InCategory(categoryID, req) && researched.Has(req) {
			return true
		}
	}
	for _, dependent := range cat.RequiredBy(node.ID) {
		if researched.Has(dependent) {
			return true
		}
	}
	return false
}

// Build renders the category for a researched set. Hidden nodes are dropped
// unless revealHidden is set, in which case they are kept and flagged.
// Within a line nodes are ordered by (cost, id).
func Build(cat *catalog.Catalog, categoryID string, researched Set, revealHidden bool) (Tree, error) {
	c, err := cat.Category(categoryID)
	if err != nil {
		return Tree{}, err
	}

	out := Tree{Category: c.ID, Name: c.Name, Lines: make([]LineView, 0, len(c.Lines))}
	for _, line := range c.Lines {
		lv := LineView{ID: line.ID, Name: line.Name, Nodes: []NodeView{}}
		for _, node := range line.Nodes {
			visible := IsVisible(cat, categoryID, node, researched)
			if !visible && !revealHidden {
				continue
			}
			lv.Nodes = append(lv.Nodes, NodeView{
				ID:         node.ID,
				Name:       node.Name,
				Year:       node.Year,
				Cost:       node.Cost(),
				Requires:   inCategoryRequires(cat, categoryID, node.Requires),
				Hidden:     !visible,
				Researched: researched.Has(node.ID),
			})
		}
		sort.Slice(lv.Nodes, func(i, j int) bool {
			a, b := lv.Nodes[i], lv.Nodes[j]
			if a.Cost != b.Cost {
				return a.Cost < b.Cost
			}
			return a.ID < b.ID
		})
		out.Lines = append(out.Lines, lv)
	}
	return out, nil
}

// inCategoryRequires drops edges to other categories; the client draws a
// single category at a time.
func inCategoryRequires(cat *catalog.Catalog, categoryID string, requires []string) []string {
	out := make([]string, 0, len(requires))
	for _, req := range requires {
		if cat.InCategory(categoryID, req) {
			out = append(out, req)
		}
	}
	return out
}
