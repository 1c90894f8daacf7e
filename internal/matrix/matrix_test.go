package matrix

import (
	"testing"

	"github.com/sourceplane/flowci/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandUnparameterized(t *testing.T) {
	spec := model.JobSpec{
		Name:  "lint",
		Env:   map[string]string{"CI": "true"},
		Steps: []model.StepSpec{{Name: "lint", Run: "make lint"}},
	}

	instances, err := Expand(spec)
	require.NoError(t, err)
	require.Len(t, instances, 1)

	inst := instances[0]
	assert.Equal(t, "lint", inst.Job)
	assert.Empty(t, inst.Label)
	assert.Equal(t, "lint", inst.ID())
	assert.Equal(t, "true", inst.Env["CI"])
	assert.Equal(t, model.StatusPending, inst.Status)
}

func TestExpandCartesianProduct(t *testing.T) {
	spec := model.JobSpec{
		Name: "test",
		Matrix: &model.MatrixSpec{
			Axes: []model.Axis{
				{Name: "python", Values: []string{"3.8", "3.12"}},
				{Name: "os", Values: []string{"linux", "macos", "windows"}},
			},
		},
		Steps: []model.StepSpec{{Name: "test", Run: "make test"}},
	}

	instances, err := Expand(spec)
	require.NoError(t, err)
	require.Len(t, instances, 6, "2x3 axes expand to 6 instances")

	labels := make(map[string]bool, len(instances))
	for _, inst := range instances {
		labels[inst.Label] = true
	}
	assert.Len(t, labels, 6, "every combination label is distinct")

	// Declaration order of axes drives label and expansion order.
	assert.Equal(t, "3.8-linux", instances[0].Label)
	assert.Equal(t, "test[3.8-linux]", instances[0].ID())
	assert.Equal(t, "3.12-windows", instances[5].Label)
}

func TestExpandEnvOverlay(t *testing.T) {
	spec := model.JobSpec{
		Name: "test",
		Env:  map[string]string{"CI": "true", "python": "default"},
		Matrix: &model.MatrixSpec{
			Axes: []model.Axis{{Name: "python", Values: []string{"3.12"}}},
		},
		Steps: []model.StepSpec{{Name: "test", Run: "make test"}},
	}

	instances, err := Expand(spec)
	require.NoError(t, err)
	require.Len(t, instances, 1)

	// Axis value wins over the job-level env.
	assert.Equal(t, "3.12", instances[0].Env["python"])
	assert.Equal(t, "true", instances[0].Env["CI"])
	assert.Equal(t, map[string]string{"python": "3.12"}, instances[0].Axes)
}

func TestExpandRejectsEmptyAxis(t *testing.T) {
	spec := model.JobSpec{
		Name: "test",
		Matrix: &model.MatrixSpec{
			Axes: []model.Axis{{Name: "python", Values: nil}},
		},
	}

	_, err := Expand(spec)
	assert.ErrorContains(t, err, "axis python has no values")

	spec.Matrix.Axes = []model.Axis{{Name: "", Values: []string{"x"}}}
	_, err = Expand(spec)
	assert.ErrorContains(t, err, "empty name")
}

func TestExpandRejectsCollidingLabels(t *testing.T) {
	// a/b-c and a-b/c would both label "a-b-c", making the sibling legs
	// indistinguishable as artifact origins.
	spec := model.JobSpec{
		Name: "test",
		Matrix: &model.MatrixSpec{
			Axes: []model.Axis{
				{Name: "python", Values: []string{"a", "a-b"}},
				{Name: "os", Values: []string{"b-c", "c"}},
			},
		},
		Steps: []model.StepSpec{{Name: "s", Run: "true"}},
	}

	_, err := Expand(spec)
	require.Error(t, err)
	assert.ErrorContains(t, err, `label "a-b-c" is ambiguous`)
}

func TestExpandIsolatesInstances(t *testing.T) {
	spec := model.JobSpec{
		Name: "test",
		Matrix: &model.MatrixSpec{
			Axes: []model.Axis{{Name: "v", Values: []string{"a", "b"}}},
		},
		Steps: []model.StepSpec{{Name: "s", Run: "true"}},
	}

	instances, err := Expand(spec)
	require.NoError(t, err)

	// Mutating one instance's env must not leak into a sibling.
	instances[0].Env["extra"] = "1"
	_, ok := instances[1].Env["extra"]
	assert.False(t, ok)
}
