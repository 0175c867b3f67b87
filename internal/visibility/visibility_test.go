package visibility

import (
	"testing"

	"github.com/Terasay/viau-sub000/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Build([]catalog.Category{
		{
			ID: "army", Name: "Army",
			Lines: []catalog.Line{
				{ID: "guns", Name: "Guns", Nodes: []catalog.Node{
					{ID: "matchlock", Name: "Matchlock", Year: 1525, Requires: []string{"arquebus", "gunpowder_production"}},
					{ID: "arquebus", Name: "Arquebus", Year: 1500},
					{ID: "musket", Name: "Musket", Year: 1580, Requires: []string{"matchlock"}},
				}},
				{ID: "drill", Name: "Drill", Nodes: []catalog.Node{
					{ID: "volley_fire", Name: "Volley Fire", Year: 1600, Requires: []string{"musket"}},
				}},
			},
		},
		{
			ID: "industry", Name: "Industry",
			Lines: []catalog.Line{
				{ID: "works", Name: "Works", Nodes: []catalog.Node{
					{ID: "saltpeter", Name: "Saltpeter", Year: 1440},
					{ID: "gunpowder_production", Name: "Gunpowder Production", Year: 1470, Requires: []string{"saltpeter"}},
				}},
			},
		},
	})
	require.NoError(t, err)
	return c
}

func nodeIDs(tree Tree) []string {
	var out []string
	for _, line := range tree.Lines {
		for _, n := range line.Nodes {
			out = append(out, n.ID)
		}
	}
	return out
}

func TestEmptyResearchedShowsOnlyRoots(t *testing.T) {
	c := fixture(t)
	tree, err := Build(c, "army", NewSet(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"arquebus"}, nodeIDs(tree))
	require.Len(t, tree.Lines, 2)
	assert.Empty(t, tree.Lines[1].Nodes)
}

func TestInCategoryPrerequisiteRevealsNode(t *testing.T) {
	c := fixture(t)
	tree, err := Build(c, "army", NewSet("arquebus"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"arquebus", "matchlock"}, nodeIDs(tree))

	matchlock := tree.Lines[0].Nodes[1]
	assert.Equal(t, "matchlock", matchlock.ID)
	assert.Equal(t, []string{"arquebus"}, matchlock.Requires)
	assert.False(t, matchlock.Hidden)
	assert.False(t, matchlock.Researched)
	assert.True(t, tree.Lines[0].Nodes[0].Researched)
}

func TestCrossCategoryPrerequisiteDoesNotReveal(t *testing.T) {
	c := fixture(t)
	tree, err := Build(c, "army", NewSet("gunpowder_production"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"arquebus"}, nodeIDs(tree))
}

func TestResearchedDependentRevealsAncestor(t *testing.T) {
	c := fixture(t)
	// musket researched without matchlock: matchlock is disclosed through
	// its dependent; volley_fire through its in-category prerequisite.
	tree, err := Build(c, "army", NewSet("musket"), false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"arquebus", "matchlock", "volley_fire"}, nodeIDs(tree))
	assert.NotContains(t, nodeIDs(tree), "musket")

	// dependents in other categories reveal too.
	c2, err := catalog.Build([]catalog.Category{
		{ID: "a", Name: "A", Lines: []catalog.Line{{ID: "l", Name: "L", Nodes: []catalog.Node{
			{ID: "root", Name: "Root", Year: 1},
			{ID: "mid", Name: "Mid", Year: 2, Requires: []string{"root"}},
		}}}},
		{ID: "b", Name: "B", Lines: []catalog.Line{{ID: "l", Name: "L", Nodes: []catalog.Node{
			{ID: "far", Name: "Far", Year: 3, Requires: []string{"mid"}},
		}}}},
	})
	require.NoError(t, err)
	tree, err = Build(c2, "a", NewSet("far"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "mid"}, nodeIDs(tree))
}

func TestRevealHiddenTagsNodes(t *testing.T) {
	c := fixture(t)
	tree, err := Build(c, "army", NewSet(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"arquebus", "matchlock", "musket", "volley_fire"}, nodeIDs(tree))
	hidden := map[string]bool{}
	for _, line := range tree.Lines {
		for _, n := range line.Nodes {
			hidden[n.ID] = n.Hidden
		}
	}
	assert.Equal(t, map[string]bool{"arquebus": false, "matchlock": true, "musket": true, "volley_fire": true}, hidden)
}

func TestOrderingByCostThenID(t *testing.T) {
	c, err := catalog.Build([]catalog.Category{{
		ID: "a", Name: "A", Lines: []catalog.Line{{ID: "l", Name: "L", Nodes: []catalog.Node{
			{ID: "zeta", Name: "Z", Year: 10},
			{ID: "beta", Name: "B", Year: 20},
			{ID: "alpha", Name: "A", Year: 20},
			{ID: "gamma", Name: "G", Year: 5},
		}}},
	}})
	require.NoError(t, err)
	tree, err := Build(c, "a", nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma", "zeta", "alpha", "beta"}, nodeIDs(tree))

	again, err := Build(c, "a", nil, false)
	require.NoError(t, err)
	assert.Equal(t, tree, again)
}

func TestUnknownCategory(t *testing.T) {
	_, err := Build(fixture(t), "navy", NewSet(), false)
	assert.ErrorIs(t, err, catalog.ErrCategoryNotFound)
}

func TestRootsAlwaysVisible(t *testing.T) {
	c, err := catalog.Default()
	require.NoError(t, err)
	sets := []Set{NewSet(), NewSet("matchlock"), NewSet(c.AllNodeIDs()...)}
	for _, s := range c.Summaries() {
		nodes, err := c.NodesInCategory(s.ID)
		require.NoError(t, err)
		for _, n := range nodes {
			if len(n.Requires) != 0 {
				continue
			}
			for _, r := range sets {
				assert.True(t, IsVisible(c, s.ID, n, r), "root %s", n.ID)
			}
		}
	}
}

func TestDisclosureIsMonotonic(t *testing.T) {
	c, err := catalog.Default()
	require.NoError(t, err)

	// Grow the researched set one node at a time in dependency order and
	// check nothing that was visible ever disappears.
	researched := NewSet()
	visible := map[string]bool{}
	for _, id := range c.AllNodeIDs() {
		researched[id] = struct{}{}
		for _, s := range c.Summaries() {
			nodes, err := c.NodesInCategory(s.ID)
			require.NoError(t, err)
			for _, n := range nodes {
				now := IsVisible(c, s.ID, n, researched)
				if visible[n.ID] {
					assert.True(t, now, "%s vanished after researching %s", n.ID, id)
				}
				visible[n.ID] = now
			}
		}
	}
}
