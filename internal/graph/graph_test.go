package graph

import (
	"errors"
	"testing"

	"github.com/sourceplane/flowci/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func job(name string, needs ...string) model.JobSpec {
	return model.JobSpec{
		Name:  name,
		Needs: needs,
		Steps: []model.StepSpec{{Name: "noop", Run: "true"}},
	}
}

func TestNew(t *testing.T) {
	t.Run("valid graph", func(t *testing.T) {
		g, err := New([]model.JobSpec{job("a"), job("b", "a"), job("c", "a", "b")})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, g.Jobs())
	})

	t.Run("duplicate job name", func(t *testing.T) {
		_, err := New([]model.JobSpec{job("a"), job("a")})
		assert.ErrorContains(t, err, "duplicate job name")
	})

	t.Run("unknown predecessor", func(t *testing.T) {
		_, err := New([]model.JobSpec{job("a", "ghost")})
		assert.ErrorContains(t, err, "unknown job ghost")
	})

	t.Run("unknown run condition", func(t *testing.T) {
		spec := job("a")
		spec.If = "sometimes"
		_, err := New([]model.JobSpec{spec})
		assert.ErrorContains(t, err, "unknown run condition")
	})
}

func TestCycleDetection(t *testing.T) {
	t.Run("self reference", func(t *testing.T) {
		_, err := New([]model.JobSpec{job("a", "a")})
		var cycleErr *CycleError
		require.ErrorAs(t, err, &cycleErr)
		assert.Equal(t, []string{"a", "a"}, cycleErr.Cycle)
	})

	t.Run("two node cycle", func(t *testing.T) {
		_, err := New([]model.JobSpec{job("a", "b"), job("b", "a")})
		var cycleErr *CycleError
		require.ErrorAs(t, err, &cycleErr)
		assert.Len(t, cycleErr.Cycle, 3)
		assert.Equal(t, cycleErr.Cycle[0], cycleErr.Cycle[len(cycleErr.Cycle)-1])
	})

	t.Run("cycle behind a valid prefix", func(t *testing.T) {
		_, err := New([]model.JobSpec{
			job("lint"),
			job("test", "lint"),
			job("x", "test", "z"),
			job("y", "x"),
			job("z", "y"),
		})
		var cycleErr *CycleError
		require.ErrorAs(t, err, &cycleErr)
		// The cycle names only its own members, not lint/test.
		assert.NotContains(t, cycleErr.Cycle, "lint")
		assert.Equal(t, cycleErr.Cycle[0], cycleErr.Cycle[len(cycleErr.Cycle)-1])
	})

	t.Run("error message names the path", func(t *testing.T) {
		_, err := New([]model.JobSpec{job("a", "b"), job("b", "a")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dependency cycle:")
		assert.Contains(t, err.Error(), "->")
	})
}

func TestTopologicalOrder(t *testing.T) {
	g, err := New([]model.JobSpec{
		job("release", "gate"),
		job("gate", "lint", "test", "coverage"),
		job("coverage", "test"),
		job("test", "lint"),
		job("lint"),
		job("docs"),
	})
	require.NoError(t, err)

	order := g.Jobs()
	assert.Len(t, order, 6)

	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	for _, name := range order {
		for _, need := range g.Predecessors(name) {
			assert.Less(t, pos[need], pos[name], "%s must come before %s", need, name)
		}
	}

	// Ties break lexicographically, so the order is stable across runs.
	g2, err := New([]model.JobSpec{
		job("lint"),
		job("docs"),
		job("test", "lint"),
		job("coverage", "test"),
		job("gate", "lint", "test", "coverage"),
		job("release", "gate"),
	})
	require.NoError(t, err)
	assert.Equal(t, order, g2.Jobs())
}

func TestDependents(t *testing.T) {
	g, err := New([]model.JobSpec{job("a"), job("b", "a"), job("c", "a")})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, g.Dependents("a"))
	assert.Empty(t, g.Dependents("b"))
}

func TestRequired(t *testing.T) {
	lint := job("lint")
	lint.Required = true
	test := job("test", "lint")
	test.Required = true
	docs := job("docs")

	g, err := New([]model.JobSpec{docs, test, lint})
	require.NoError(t, err)
	assert.Equal(t, []string{"lint", "test"}, g.Required())
}

func TestCycleErrorType(t *testing.T) {
	_, err := New([]model.JobSpec{job("a", "b"), job("b", "c"), job("c", "a")})
	require.Error(t, err)
	var cycleErr *CycleError
	assert.True(t, errors.As(err, &cycleErr))
}
