package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sourceplane/flowci/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T) (*ShellRunner, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return NewShellRunner(t.TempDir(), &out, &out, false), &out
}

func TestRunStepsInOrder(t *testing.T) {
	r, _ := newTestRunner(t)

	steps := []model.StepSpec{
		{Name: "first", Run: "printf one >> order.txt"},
		{Name: "second", Run: "printf two >> order.txt"},
	}

	status, produced, err := r.RunSteps(context.Background(), nil, steps, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, status)
	assert.Empty(t, produced)

	written, err := os.ReadFile(filepath.Join(r.WorkDir, "order.txt"))
	require.NoError(t, err)
	assert.Equal(t, "onetwo", string(written))
}

func TestRunStepsFailureStopsSequence(t *testing.T) {
	r, _ := newTestRunner(t)

	steps := []model.StepSpec{
		{Name: "break", Run: "exit 3"},
		{Name: "after", Run: "printf reached > after.txt"},
	}

	status, _, err := r.RunSteps(context.Background(), nil, steps, nil)
	assert.Equal(t, model.StatusFailed, status)

	var failure *StepFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "break", failure.Step)

	_, statErr := os.Stat(filepath.Join(r.WorkDir, "after.txt"))
	assert.True(t, os.IsNotExist(statErr), "later steps must not run after a failure")
}

func TestRunStepsCollectsDeclaredArtifacts(t *testing.T) {
	r, _ := newTestRunner(t)

	steps := []model.StepSpec{
		{
			Name:     "build",
			Run:      "printf payload > out.bin",
			Artifact: &model.ArtifactDecl{Name: "dist", Path: "out.bin"},
		},
	}

	status, produced, err := r.RunSteps(context.Background(), nil, steps, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, status)
	require.Len(t, produced, 1)
	assert.Equal(t, "dist", produced[0].Name)
	assert.Equal(t, []byte("payload"), produced[0].Payload)
}

func TestRunStepsMissingDeclaredArtifact(t *testing.T) {
	r, _ := newTestRunner(t)

	steps := []model.StepSpec{
		{
			Name:     "build",
			Run:      "true",
			Artifact: &model.ArtifactDecl{Name: "dist", Path: "never-written.bin"},
		},
	}

	status, _, err := r.RunSteps(context.Background(), nil, steps, nil)
	assert.Equal(t, model.StatusFailed, status)
	var failure *StepFailure
	require.True(t, errors.As(err, &failure))
	assert.Contains(t, failure.Error(), "not readable")
}

func TestRunStepsEnvOverlay(t *testing.T) {
	r, _ := newTestRunner(t)

	steps := []model.StepSpec{
		{Name: "env", Run: "printf '%s' \"$FLOWCI_AXIS\" > env.txt"},
	}

	status, _, err := r.RunSteps(context.Background(), map[string]string{"FLOWCI_AXIS": "py312"}, steps, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, status)

	written, err := os.ReadFile(filepath.Join(r.WorkDir, "env.txt"))
	require.NoError(t, err)
	assert.Equal(t, "py312", string(written))
}

func TestRunStepsMaterializesInputs(t *testing.T) {
	r, _ := newTestRunner(t)

	inputs := model.ArtifactSet{}
	inputs.Add(model.Artifact{Name: "coverage", Origin: "test[py312]", Payload: []byte("cov")})

	steps := []model.StepSpec{
		{Name: "merge", Run: "cat .flowci/inputs/coverage/* > merged.txt"},
	}

	status, _, err := r.RunSteps(context.Background(), nil, steps, inputs)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, status)

	written, err := os.ReadFile(filepath.Join(r.WorkDir, "merged.txt"))
	require.NoError(t, err)
	assert.Equal(t, "cov", string(written))
}

func TestRunStepsCancelledContext(t *testing.T) {
	r, _ := newTestRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status, _, err := r.RunSteps(ctx, nil, []model.StepSpec{{Name: "noop", Run: "true"}}, nil)
	assert.Equal(t, model.StatusCancelled, status)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunStepsDryRun(t *testing.T) {
	var out bytes.Buffer
	r := NewShellRunner(t.TempDir(), &out, &out, true)

	steps := []model.StepSpec{
		{Name: "build", Run: "printf payload > out.bin"},
	}

	status, produced, err := r.RunSteps(context.Background(), nil, steps, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, status)
	assert.Empty(t, produced, "dry-run must not collect artifacts")
	assert.Contains(t, out.String(), "printf payload > out.bin")

	_, statErr := os.Stat(filepath.Join(r.WorkDir, "out.bin"))
	assert.True(t, os.IsNotExist(statErr), "dry-run must not execute commands")
}
