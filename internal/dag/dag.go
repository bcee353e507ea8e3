// Package dag validates a playbook's step dependency graph and computes the scheduling sets
// the run controller drives its loop from: ready steps, and the transitive dependents of a
// failed step that must be cascade-skipped.
package dag

import (
	"sort"

	"github.com/playbookrun/controller/common/gerror"
	"github.com/playbookrun/controller/internal/models"
)

// Validate checks that every step's declared dependencies name another step in the same set
// and that the dependency graph is acyclic. It uses Kahn's algorithm for the acyclicity check
// and, on failure, a separate depth-first walk to reconstruct one concrete witness cycle.
func Validate(steps []models.StepDefinition) error {
	byID := make(map[string]models.StepDefinition, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}
	for _, s := range steps {
		for _, dep := range s.Dependencies {
			if _, ok := byID[dep]; !ok {
				return gerror.NewErrPlaybookInvalid("step " + s.ID + " depends on unknown step " + dep)
			}
		}
	}

	inDegree := make(map[string]int, len(steps))
	forward := make(map[string][]string, len(steps)) // dep -> steps that depend on it
	for _, s := range steps {
		inDegree[s.ID] = len(s.Dependencies)
		for _, dep := range s.Dependencies {
			forward[dep] = append(forward[dep], s.ID)
		}
	}

	queue := make([]string, 0, len(steps))
	for _, s := range steps {
		if inDegree[s.ID] == 0 {
			queue = append(queue, s.ID)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		next := append([]string(nil), forward[id]...)
		sort.Strings(next)
		for _, dependent := range next {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if visited != len(steps) {
		cycle := findCycle(steps)
		return gerror.NewErrCyclicDependency("cyclic step dependency: " + formatCycle(cycle))
	}
	return nil
}

// findCycle performs a depth-first walk from every step, returning the first cycle
// encountered as a path of step IDs that starts and ends on the same ID.
func findCycle(steps []models.StepDefinition) []string {
	byID := make(map[string]models.StepDefinition, len(steps))
	ids := make([]string, 0, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(steps))
	var path []string

	var walk func(id string) []string
	walk = func(id string) []string {
		state[id] = visiting
		path = append(path, id)
		deps := append([]string(nil), byID[id].Dependencies...)
		sort.Strings(deps)
		for _, dep := range deps {
			switch state[dep] {
			case visiting:
				// Found the cycle: slice path from dep's first occurrence, close the loop.
				for i, p := range path {
					if p == dep {
						return append(append([]string(nil), path[i:]...), dep)
					}
				}
			case unvisited:
				if cyc := walk(dep); cyc != nil {
					return cyc
				}
			}
		}
		state[id] = done
		path = path[:len(path)-1]
		return nil
	}

	for _, id := range ids {
		if state[id] == unvisited {
			if cyc := walk(id); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

func formatCycle(cycle []string) string {
	out := ""
	for i, id := range cycle {
		if i > 0 {
			out += " -> "
		}
		out += id
	}
	return out
}

// ReadySteps returns the steps that may be launched in the current scheduling iteration:
// not already completed, failed, skipped or running, and every declared dependency is in
// completed. The result is ordered by each step's declared Order, ascending.
func ReadySteps(steps []models.StepDefinition, completed, terminal, running map[string]bool) []models.StepDefinition {
	var ready []models.StepDefinition
	for _, s := range steps {
		if completed[s.ID] || terminal[s.ID] || running[s.ID] {
			continue
		}
		allDepsCompleted := true
		for _, dep := range s.Dependencies {
			if !completed[dep] {
				allDepsCompleted = false
				break
			}
		}
		if allDepsCompleted {
			ready = append(ready, s)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Order < ready[j].Order
	})
	return ready
}

// Graph holds the reverse adjacency (dependency id -> dependent ids) of a validated step set,
// built once per run and reused for every failure cascade rather than recomputed per call.
type Graph struct {
	reverse map[string][]string
}

// BuildGraph constructs the reverse adjacency list for steps.
func BuildGraph(steps []models.StepDefinition) *Graph {
	reverse := make(map[string][]string, len(steps))
	for _, s := range steps {
		for _, dep := range s.Dependencies {
			reverse[dep] = append(reverse[dep], s.ID)
		}
	}
	return &Graph{reverse: reverse}
}

// TransitiveDependents returns every step that transitively depends on stepID, i.e. every
// descendant in the "enables" graph (the reverse of the dependency graph). The origin step
// itself is excluded. Equivalent to a breadth-first search over the reverse edges.
func (g *Graph) TransitiveDependents(stepID string) map[string]bool {
	result := make(map[string]bool)
	queue := append([]string(nil), g.reverse[stepID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if result[id] {
			continue
		}
		result[id] = true
		queue = append(queue, g.reverse[id]...)
	}
	delete(result, stepID)
	return result
}

// TransitiveDependents is a convenience wrapper for one-off callers (e.g. tests) that builds
// the reverse adjacency on the fly. The run controller should use BuildGraph once and call
// (*Graph).TransitiveDependents for every cascade within that run.
func TransitiveDependents(stepID string, steps []models.StepDefinition) map[string]bool {
	return BuildGraph(steps).TransitiveDependents(stepID)
}
