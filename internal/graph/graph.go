// Package graph derives the reconciliation order of a project's services.
// Services are kept in the project's ordered slice; the graph itself is
// adjacency lists of integer indices into that slice, which avoids ownership
// cycles between a service and its dependents.
package graph

import (
	"fmt"
	"sort"

	"github.com/bnema/flotilla/internal/domain"
)

// Graph is the directed acyclic dependency graph over a project's services.
// An edge A -> B means A must be reconciled before B. It is read-only after
// Build and safe to share across concurrent walkers.
type Graph struct {
	project *domain.Project
	index   map[string]int

	// dependencies[i] lists the indices service i depends on;
	// dependents[i] lists the indices that depend on service i.
	dependencies [][]int
	dependents   [][]int
}

// Build validates dependency references and derives edges from depends_on,
// links, volumes_from and service-scoped network modes. It fails with a
// ConfigError on an unknown reference or a cycle, before any engine call.
func Build(project *domain.Project) (*Graph, error) {
	g := &Graph{
		project:      project,
		index:        make(map[string]int, len(project.Services)),
		dependencies: make([][]int, len(project.Services)),
		dependents:   make([][]int, len(project.Services)),
	}
	for i := range project.Services {
		g.index[project.Services[i].Name] = i
	}

	for i := range project.Services {
		svc := &project.Services[i]
		for _, dep := range svc.DependencyNames() {
			j, ok := g.index[dep]
			if !ok {
				return nil, domain.NewConfigError(
					fmt.Sprintf("services.%s", svc.Name),
					"depends on undefined service %q", dep)
			}
			if j == i {
				return nil, domain.NewConfigError(
					fmt.Sprintf("services.%s", svc.Name), "depends on itself")
			}
			g.dependencies[i] = append(g.dependencies[i], j)
			g.dependents[j] = append(g.dependents[j], i)
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, domain.NewCycleError(cycle)
	}
	return g, nil
}

// findCycle runs a DFS over dependency edges and returns the services of the
// first cycle found, in traversal order, or nil.
func (g *Graph) findCycle() []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(g.dependencies))
	var stack []int

	var visit func(i int) []string
	visit = func(i int) []string {
		state[i] = visiting
		stack = append(stack, i)
		for _, j := range g.dependencies[i] {
			switch state[j] {
			case visiting:
				// Slice the stack from the first occurrence of j: that is
				// the cycle, in dependency order.
				var cycle []string
				for k, idx := range stack {
					if idx == j {
						for _, s := range stack[k:] {
							cycle = append(cycle, g.project.Services[s].Name)
						}
						break
					}
				}
				return append(cycle, g.project.Services[j].Name)
			case unvisited:
				if cycle := visit(j); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
		return nil
	}

	for i := range g.dependencies {
		if state[i] == unvisited {
			if cycle := visit(i); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// Services returns the service names in project resolution order.
func (g *Graph) Services() []string {
	return g.project.ServiceNames()
}

// Dependencies returns the names of the services name directly depends on.
func (g *Graph) Dependencies(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.names(g.dependencies[i])
}

// Dependents returns the names of the services that directly depend on name.
func (g *Graph) Dependents(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.names(g.dependents[i])
}

// Roots returns services with no dependencies, sorted by name.
func (g *Graph) Roots() []string {
	var roots []string
	for i := range g.dependencies {
		if len(g.dependencies[i]) == 0 {
			roots = append(roots, g.project.Services[i].Name)
		}
	}
	sort.Strings(roots)
	return roots
}

// Closure returns names plus every transitive dependency, as a set.
func (g *Graph) Closure(names []string) map[string]bool {
	out := make(map[string]bool)
	var walk func(i int)
	walk = func(i int) {
		name := g.project.Services[i].Name
		if out[name] {
			return
		}
		out[name] = true
		for _, j := range g.dependencies[i] {
			walk(j)
		}
	}
	for _, name := range names {
		if i, ok := g.index[name]; ok {
			walk(i)
		}
	}
	return out
}

// DependentClosure returns names plus every service that transitively
// depends on one of them, as a set.
func (g *Graph) DependentClosure(names []string) map[string]bool {
	out := make(map[string]bool)
	var walk func(i int)
	walk = func(i int) {
		name := g.project.Services[i].Name
		if out[name] {
			return
		}
		out[name] = true
		for _, j := range g.dependents[i] {
			walk(j)
		}
	}
	for _, name := range names {
		if i, ok := g.index[name]; ok {
			walk(i)
		}
	}
	return out
}

// TopoSort returns all services in an order where every dependency precedes
// its dependents. Build guarantees acyclicity, so this cannot fail.
func (g *Graph) TopoSort() []string {
	indegree := make([]int, len(g.dependencies))
	for i := range g.dependencies {
		indegree[i] = len(g.dependencies[i])
	}

	var ready []int
	for i, d := range indegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]string, 0, len(g.dependencies))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		out = append(out, g.project.Services[i].Name)
		for _, j := range g.dependents[i] {
			indegree[j]--
			if indegree[j] == 0 {
				ready = append(ready, j)
			}
		}
	}
	return out
}

func (g *Graph) names(indices []int) []string {
	out := make([]string, len(indices))
	for k, i := range indices {
		out[k] = g.project.Services[i].Name
	}
	return out
}
