package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogLoads(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	summaries := c.Summaries()
	require.Len(t, summaries, 6)
	assert.Equal(t, "land_forces", summaries[0].ID)

	n, ok := c.Lookup("matchlock")
	require.True(t, ok)
	assert.Equal(t, int64(1525), n.Cost())
	assert.Equal(t, []string{"arquebus", "gunpowder_production"}, n.Requires)

	m, ok := c.MembershipOf("gunpowder_production")
	require.True(t, ok)
	assert.Equal(t, Membership{Category: "industry", Line: "manufacture"}, m)

	assert.True(t, c.InCategory("land_forces", "arquebus"))
	assert.False(t, c.InCategory("land_forces", "gunpowder_production"))
	assert.Len(t, c.AllNodeIDs(), c.Len())
}

func TestRequiredByCrossesCategories(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	assert.Contains(t, c.RequiredBy("gunpowder_production"), "matchlock")
	assert.Contains(t, c.RequiredBy("gunpowder_production"), "field_gun")
	assert.Empty(t, c.RequiredBy("socket_bayonet"))
}

func TestAllNodeIDsIsDependencyOrdered(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	pos := make(map[string]int)
	for i, id := range c.AllNodeIDs() {
		pos[id] = i
	}
	for _, id := range c.AllNodeIDs() {
		n, _ := c.Lookup(id)
		for _, req := range n.Requires {
			assert.Less(t, pos[req], pos[id], "%s must come after %s", id, req)
		}
	}
}

func TestUnknownCategory(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	_, err = c.NodesInCategory("alchemy")
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestLoadRejectsBadCatalogs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{
			name: "duplicate id across categories",
			yaml: `
categories:
  - id: a
    name: A
    lines:
      - {id: l, name: L, technologies: [{id: x, name: X, year: 1}]}
  - id: b
    name: B
    lines:
      - {id: l, name: L, technologies: [{id: x, name: X2, year: 2}]}
`,
			want: ErrDuplicateID,
		},
		{
			name: "unknown requirement",
			yaml: `
categories:
  - id: a
    name: A
    lines:
      - {id: l, name: L, technologies: [{id: x, name: X, year: 1, requires: [ghost]}]}
`,
			want: ErrUnknownRequirement,
		},
		{
			name: "two node cycle",
			yaml: `
categories:
  - id: a
    name: A
    lines:
      - id: l
        name: L
        technologies:
          - {id: x, name: X, year: 1, requires: [y]}
          - {id: y, name: Y, year: 2, requires: [x]}
          - {id: z, name: Z, year: 3}
`,
			want: ErrCycleDetected,
		},
		{
			name: "self requirement",
			yaml: `
categories:
  - id: a
    name: A
    lines:
      - {id: l, name: L, technologies: [{id: x, name: X, year: 1, requires: [x]}]}
`,
			want: ErrCycleDetected,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestLoadRejectsInvalidFields(t *testing.T) {
	_, err := Load(strings.NewReader(`
categories:
  - id: a
    name: A
    lines:
      - {id: l, name: L, technologies: [{id: x, name: X, year: 0}]}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate catalog")

	_, err = Load(strings.NewReader(`
categories:
  - id: a
    name: A
    colour: red
    lines: []
`))
	require.Error(t, err)
}

func TestBuildCopiesInput(t *testing.T) {
	cats := []Category{{
		ID: "a", Name: "A",
		Lines: []Line{{ID: "l", Name: "L", Nodes: []Node{
			{ID: "x", Name: "X", Year: 10},
			{ID: "y", Name: "Y", Year: 20, Requires: []string{"x"}},
		}}},
	}}
	c, err := Build(cats)
	require.NoError(t, err)

	cats[0].Lines[0].Nodes[1].Requires[0] = "mutated"
	n, ok := c.Lookup("y")
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, n.Requires)
}
