package graph

import "sort"

// Tier is a set of packages with the same topological rank, in publish order
type Tier []string

// Plan is the ordered sequence of tiers
type Plan []Tier

// Flatten returns every package in plan order
func (p Plan) Flatten() []string {
	var out []string
	for _, tier := range p {
		out = append(out, tier...)
	}
	return out
}

// layer runs Kahn's algorithm one frontier at a time. Each frontier becomes a
// tier sorted by descending dependents count, then ascending name.
func (g *Graph) layer() (Plan, error) {
	indegree := make(map[string]int, len(g.deps))
	for name, deps := range g.deps {
		indegree[name] = len(deps)
	}

	var frontier []string
	for name, d := range indegree {
		if d == 0 {
			frontier = append(frontier, name)
		}
	}

	var plan Plan
	visited := 0
	for len(frontier) > 0 {
		g.sortTier(frontier)
		plan = append(plan, Tier(frontier))
		visited += len(frontier)

		var next []string
		for _, name := range frontier {
			for _, dependent := range g.dependents[name] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		frontier = next
	}

	if visited != len(g.deps) {
		var stuck []string
		for _, name := range g.names() {
			if indegree[name] > 0 {
				stuck = append(stuck, name)
			}
		}
		return nil, &CycleError{Cycle: stuck}
	}
	return plan, nil
}

func (g *Graph) sortTier(tier []string) {
	sort.Slice(tier, func(i, j int) bool {
		di, dj := len(g.dependents[tier[i]]), len(g.dependents[tier[j]])
		if di != dj {
			return di > dj
		}
		return tier[i] < tier[j]
	})
}

// DependentsCount returns how many packages depend on pkg
func (g *Graph) DependentsCount(pkg string) int {
	return len(g.dependents[pkg])
}
