package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sourceplane/flowci/internal/model"
)

// CycleError reports a dependency cycle found at construction. Cycle holds
// the job names along the cycle, first node repeated at the end.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

// Graph is the validated DAG over job specs. Construction fails on unknown
// predecessors and on cycles, so runtime traversal never encounters either.
type Graph struct {
	specs      map[string]model.JobSpec
	dependents map[string][]string
	order      []string
}

// New validates the spec set and builds the graph.
func New(specs []model.JobSpec) (*Graph, error) {
	g := &Graph{
		specs:      make(map[string]model.JobSpec, len(specs)),
		dependents: make(map[string][]string, len(specs)),
	}

	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("job with empty name")
		}
		if _, exists := g.specs[spec.Name]; exists {
			return nil, fmt.Errorf("duplicate job name: %s", spec.Name)
		}
		if !spec.If.Valid() {
			return nil, fmt.Errorf("job %s: unknown run condition %q", spec.Name, spec.If)
		}
		g.specs[spec.Name] = spec
	}

	for _, spec := range g.specs {
		for _, need := range spec.Needs {
			if need == spec.Name {
				return nil, &CycleError{Cycle: []string{spec.Name, spec.Name}}
			}
			if _, exists := g.specs[need]; !exists {
				return nil, fmt.Errorf("job %s needs unknown job %s", spec.Name, need)
			}
			g.dependents[need] = append(g.dependents[need], spec.Name)
		}
	}

	if err := g.findCycle(); err != nil {
		return nil, err
	}

	order, err := g.topologicalOrder()
	if err != nil {
		return nil, err
	}
	g.order = order

	return g, nil
}

// Spec returns the job spec for a name. The name must exist; construction
// validated every edge endpoint.
func (g *Graph) Spec(name string) model.JobSpec {
	return g.specs[name]
}

// Jobs returns all job names in deterministic execution order.
func (g *Graph) Jobs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Predecessors returns the declared needs of a job.
func (g *Graph) Predecessors(name string) []string {
	return g.specs[name].Needs
}

// Dependents returns the jobs that declare name as a predecessor, sorted.
func (g *Graph) Dependents(name string) []string {
	deps := make([]string, len(g.dependents[name]))
	copy(deps, g.dependents[name])
	sort.Strings(deps)
	return deps
}

// Required returns the names of jobs marked as gate-required, sorted.
func (g *Graph) Required() []string {
	var required []string
	for name, spec := range g.specs {
		if spec.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	return required
}

// findCycle runs a DFS over the needs edges, tracking the current path so
// the offending cycle can be named in the error.
func (g *Graph) findCycle() error {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(g.specs))

	var path []string
	var visit func(name string) error
	visit = func(name string) error {
		state[name] = inProgress
		path = append(path, name)

		for _, need := range g.specs[name].Needs {
			switch state[need] {
			case inProgress:
				start := 0
				for i, n := range path {
					if n == need {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, path[start:]...), need)
				return &CycleError{Cycle: cycle}
			case unvisited:
				if err := visit(need); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		state[name] = done
		return nil
	}

	names := make([]string, 0, len(g.specs))
	for name := range g.specs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if state[name] == unvisited {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// topologicalOrder sorts jobs with Kahn's algorithm; the ready queue is kept
// sorted so the order is deterministic across runs.
func (g *Graph) topologicalOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.specs))
	for name := range g.specs {
		inDegree[name] = len(g.specs[name].Needs)
	}

	queue := make([]string, 0)
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	ordered := make([]string, 0, len(g.specs))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ordered = append(ordered, current)

		for _, dependent := range g.dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
		sort.Strings(queue)
	}

	if len(ordered) != len(g.specs) {
		return nil, fmt.Errorf("topological sort left %d jobs unplaced", len(g.specs)-len(ordered))
	}

	return ordered, nil
}
