// Package matrix expands a parameterized job spec into concrete job
// instances, one per combination of axis values.
package matrix

import (
	"fmt"
	"strings"

	"github.com/sourceplane/flowci/internal/model"
)

// Expand computes the Cartesian product of the spec's matrix axes. Each
// combination yields one JobInstance with a deterministic, human-readable
// label and the spec's environment overlaid with the combination's axis
// values. A spec without a matrix expands to exactly one instance with an
// empty label.
func Expand(spec model.JobSpec) ([]*model.JobInstance, error) {
	if spec.Matrix == nil || len(spec.Matrix.Axes) == 0 {
		return []*model.JobInstance{newInstance(spec, nil)}, nil
	}

	for _, axis := range spec.Matrix.Axes {
		if axis.Name == "" {
			return nil, fmt.Errorf("job %s: matrix axis with empty name", spec.Name)
		}
		if len(axis.Values) == 0 {
			return nil, fmt.Errorf("job %s: matrix axis %s has no values", spec.Name, axis.Name)
		}
	}

	combos := combinations(spec.Matrix.Axes)
	instances := make([]*model.JobInstance, 0, len(combos))
	seen := make(map[string]bool, len(combos))
	for _, combo := range combos {
		inst := newInstance(spec, combo)
		if seen[inst.Label] {
			return nil, fmt.Errorf("job %s: matrix label %q is ambiguous, axis values must not collide when joined", spec.Name, inst.Label)
		}
		seen[inst.Label] = true
		instances = append(instances, inst)
	}
	return instances, nil
}

// combinations walks the axes in declaration order so sibling labels come
// out in a stable sequence.
func combinations(axes []model.Axis) [][]axisValue {
	combos := [][]axisValue{{}}
	for _, axis := range axes {
		next := make([][]axisValue, 0, len(combos)*len(axis.Values))
		for _, combo := range combos {
			for _, value := range axis.Values {
				extended := make([]axisValue, len(combo), len(combo)+1)
				copy(extended, combo)
				extended = append(extended, axisValue{axis.Name, value})
				next = append(next, extended)
			}
		}
		combos = next
	}
	return combos
}

type axisValue struct {
	name  string
	value string
}

func newInstance(spec model.JobSpec, combo []axisValue) *model.JobInstance {
	env := make(map[string]string, len(spec.Env)+len(combo))
	for k, v := range spec.Env {
		env[k] = v
	}

	axes := make(map[string]string, len(combo))
	labels := make([]string, 0, len(combo))
	for _, av := range combo {
		env[av.name] = av.value
		axes[av.name] = av.value
		labels = append(labels, av.value)
	}

	steps := make([]model.StepSpec, len(spec.Steps))
	copy(steps, spec.Steps)

	return &model.JobInstance{
		Job:    spec.Name,
		Label:  strings.Join(labels, "-"),
		Axes:   axes,
		Env:    env,
		Steps:  steps,
		Status: model.StatusPending,
	}
}
