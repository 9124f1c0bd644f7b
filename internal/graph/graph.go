// Package graph builds the internal dependency graph of a workspace and plans
// a tiered publish order over it.
//
// Edges point from a dependent to its dependency. Construction fails on a
// cycle, so every Graph value is acyclic and always has a plan.
package graph

import (
	"fmt"
	"sort"
	"strings"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/workspace"
)

// CycleError reports a dependency cycle as the path that closes it
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// Is returns true for ErrCycle and ErrGraph
func (e *CycleError) Is(target error) bool {
	return target == runwayerrors.ErrCycle || target == runwayerrors.ErrGraph
}

// Graph is an acyclic internal dependency graph
type Graph struct {
	deps       map[string][]string
	dependents map[string][]string
	plan       Plan
	tierOf     map[string]int
}

// New builds the graph for a workspace
func New(ws *workspace.Workspace) (*Graph, error) {
	return FromAdjacency(ws.Internal)
}

// FromAdjacency builds a graph from a name -> internal dependencies map.
// Dependencies that are not keys of the map are rejected.
func FromAdjacency(adj map[string]map[string]struct{}) (*Graph, error) {
	g := &Graph{
		deps:       make(map[string][]string, len(adj)),
		dependents: make(map[string][]string, len(adj)),
		tierOf:     make(map[string]int, len(adj)),
	}
	for name := range adj {
		g.deps[name] = nil
		g.dependents[name] = nil
	}
	for name, deps := range adj {
		for dep := range deps {
			if _, ok := adj[dep]; !ok {
				return nil, runwayerrors.Errorf(runwayerrors.KindGraph, "package %s depends on unknown package %s", name, dep)
			}
			if dep == name {
				return nil, &CycleError{Cycle: []string{name, name}}
			}
			g.deps[name] = append(g.deps[name], dep)
			g.dependents[dep] = append(g.dependents[dep], name)
		}
	}
	for name := range g.deps {
		sort.Strings(g.deps[name])
		sort.Strings(g.dependents[name])
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleError{Cycle: cycle}
	}

	plan, err := g.layer()
	if err != nil {
		return nil, err
	}
	g.plan = plan
	for i, tier := range plan {
		for _, name := range tier {
			g.tierOf[name] = i
		}
	}
	return g, nil
}

// Dependencies returns the sorted internal dependencies of pkg
func (g *Graph) Dependencies(pkg string) []string {
	return append([]string(nil), g.deps[pkg]...)
}

// Dependents returns the sorted packages that depend on pkg
func (g *Graph) Dependents(pkg string) []string {
	return append([]string(nil), g.dependents[pkg]...)
}

// TierForPackage returns the tier index of pkg
func (g *Graph) TierForPackage(pkg string) (int, bool) {
	tier, ok := g.tierOf[pkg]
	return tier, ok
}

// Plan returns a copy of the tiered publish plan
func (g *Graph) Plan() Plan {
	out := make(Plan, len(g.plan))
	for i, tier := range g.plan {
		out[i] = append(Tier(nil), tier...)
	}
	return out
}

// PublishOrder returns every package in publish order
func (g *Graph) PublishOrder() []string {
	return g.plan.Flatten()
}

// TierCount returns the number of tiers
func (g *Graph) TierCount() int {
	return len(g.plan)
}

// TotalPackages returns the number of packages in the graph
func (g *Graph) TotalPackages() int {
	return len(g.deps)
}

func (g *Graph) names() []string {
	names := make([]string, 0, len(g.deps))
	for name := range g.deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
