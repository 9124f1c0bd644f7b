package graph_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/graph"
	"runway.dev/runway/internal/workspace"
	"runway.dev/runway/testhelpers"
)

func adjacency(edges map[string][]string) map[string]map[string]struct{} {
	adj := map[string]map[string]struct{}{}
	for name, deps := range edges {
		if adj[name] == nil {
			adj[name] = map[string]struct{}{}
		}
		for _, d := range deps {
			adj[name][d] = struct{}{}
			if adj[d] == nil {
				adj[d] = map[string]struct{}{}
			}
		}
	}
	return adj
}

// assertPlanInvariants checks coverage, edge ordering, sources and intra-tier order
func assertPlanInvariants(t *testing.T, g *graph.Graph, edges map[string][]string) {
	t.Helper()
	plan := g.Plan()

	seen := map[string]int{}
	for _, tier := range plan {
		for _, name := range tier {
			seen[name]++
		}
		sorted := append([]string(nil), tier...)
		sort.Slice(sorted, func(i, j int) bool {
			di, dj := len(g.Dependents(sorted[i])), len(g.Dependents(sorted[j]))
			if di != dj {
				return di > dj
			}
			return sorted[i] < sorted[j]
		})
		assert.Equal(t, []string(sorted), []string(tier))
	}
	assert.Len(t, seen, g.TotalPackages())
	for name, count := range seen {
		assert.Equal(t, 1, count, "package %s appears more than once", name)
	}

	for u, deps := range edges {
		tu, _ := g.TierForPackage(u)
		for _, v := range deps {
			tv, _ := g.TierForPackage(v)
			assert.Less(t, tv, tu, "%s must publish before %s", v, u)
		}
		if len(deps) == 0 {
			tier, ok := g.TierForPackage(u)
			require.True(t, ok)
			assert.Equal(t, 0, tier)
		}
	}
}

func TestPlan(t *testing.T) {
	t.Run("canonical publish order", func(t *testing.T) {
		edges := map[string][]string{
			"A": {"B", "C"},
			"B": {"C"},
			"C": nil,
			"D": nil,
			"E": {"A", "B"},
		}
		g, err := graph.FromAdjacency(adjacency(edges))
		require.NoError(t, err)

		assert.Equal(t, graph.Plan{{"C", "D"}, {"B"}, {"A"}, {"E"}}, g.Plan())
		assert.Equal(t, []string{"C", "D", "B", "A", "E"}, g.PublishOrder())
		assert.Equal(t, 4, g.TierCount())
		assert.Equal(t, 5, g.TotalPackages())
		assert.Equal(t, []string{"A", "B"}, g.Dependents("C"))
		assert.Equal(t, []string{"B", "C"}, g.Dependencies("A"))
		assert.Empty(t, g.Dependents("D"))
		assertPlanInvariants(t, g, edges)
	})

	t.Run("most depended-upon source is first in tier zero", func(t *testing.T) {
		edges := map[string][]string{
			"kodegen_tool": nil,
			"aardvark":     nil,
			"alpha":        {"kodegen_tool", "aardvark"},
			"beta":         {"kodegen_tool"},
			"gamma":        {"kodegen_tool"},
		}
		g, err := graph.FromAdjacency(adjacency(edges))
		require.NoError(t, err)

		tier, ok := g.TierForPackage("kodegen_tool")
		require.True(t, ok)
		assert.Equal(t, 0, tier)
		assert.Equal(t, "kodegen_tool", g.Plan()[0][0])
		assert.Equal(t, graph.Tier{"kodegen_tool", "aardvark"}, g.Plan()[0])
		assert.Equal(t, graph.Tier{"alpha", "beta", "gamma"}, g.Plan()[1])
		assertPlanInvariants(t, g, edges)
	})

	t.Run("ties break by ascending name", func(t *testing.T) {
		edges := map[string][]string{"zed": nil, "mid": nil, "abc": nil}
		g, err := graph.FromAdjacency(adjacency(edges))
		require.NoError(t, err)
		assert.Equal(t, graph.Plan{{"abc", "mid", "zed"}}, g.Plan())
	})

	t.Run("unknown package is absent from tiers", func(t *testing.T) {
		g, err := graph.FromAdjacency(adjacency(map[string][]string{"a": nil}))
		require.NoError(t, err)
		_, ok := g.TierForPackage("nope")
		assert.False(t, ok)
	})

	t.Run("plan is a copy", func(t *testing.T) {
		g, err := graph.FromAdjacency(adjacency(map[string][]string{"a": nil, "b": nil}))
		require.NoError(t, err)
		p := g.Plan()
		p[0][0] = "mutated"
		assert.Equal(t, "a", g.Plan()[0][0])
	})
}

func TestCycles(t *testing.T) {
	t.Run("two-package cycle names both", func(t *testing.T) {
		g, err := graph.FromAdjacency(adjacency(map[string][]string{"A": {"B"}, "B": {"A"}}))
		require.Error(t, err)
		assert.Nil(t, g)
		assert.ErrorIs(t, err, runwayerrors.ErrCycle)
		assert.ErrorIs(t, err, runwayerrors.ErrGraph)

		var cycleErr *graph.CycleError
		require.ErrorAs(t, err, &cycleErr)
		assert.Equal(t, []string{"A", "B", "A"}, cycleErr.Cycle)
		assert.Contains(t, err.Error(), "A -> B -> A")
	})

	t.Run("longer cycle behind an acyclic prefix", func(t *testing.T) {
		edges := map[string][]string{
			"app": {"x"},
			"x":   {"y"},
			"y":   {"z"},
			"z":   {"x"},
		}
		_, err := graph.FromAdjacency(adjacency(edges))
		var cycleErr *graph.CycleError
		require.ErrorAs(t, err, &cycleErr)
		assert.Equal(t, []string{"x", "y", "z", "x"}, cycleErr.Cycle)
	})

	t.Run("self dependency", func(t *testing.T) {
		adj := map[string]map[string]struct{}{"solo": {"solo": {}}}
		_, err := graph.FromAdjacency(adj)
		assert.ErrorIs(t, err, runwayerrors.ErrCycle)
	})

	t.Run("dangling dependency is a graph error", func(t *testing.T) {
		adj := map[string]map[string]struct{}{"a": {"ghost": {}}}
		_, err := graph.FromAdjacency(adj)
		assert.ErrorIs(t, err, runwayerrors.ErrGraph)
		assert.NotErrorIs(t, err, runwayerrors.ErrCycle)
	})
}

func TestNewFromWorkspace(t *testing.T) {
	root, err := testhelpers.WriteWorkspace(t.TempDir(), "0.1.0", []testhelpers.CrateSpec{
		{Name: "core"},
		{Name: "io", PathDeps: []string{"core"}},
		{Name: "cli", PathDeps: []string{"core", "io"}, Binary: true},
		{Name: "docs"},
	})
	require.NoError(t, err)
	ws, err := workspace.Analyze(root)
	require.NoError(t, err)

	g, err := graph.New(ws)
	require.NoError(t, err)
	assert.Equal(t, graph.Plan{{"core", "docs"}, {"io"}, {"cli"}}, g.Plan())
	assert.Equal(t, 2, g.DependentsCount("core"))
}
