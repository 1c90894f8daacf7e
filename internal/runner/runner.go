// Package runner is the seam where opaque external work is invoked: it
// executes a job instance's steps in order and collects declared artifacts.
// The correctness of the commands themselves (lint, test, build) is outside
// this engine's scope; only their exit status and declared outputs matter.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sourceplane/flowci/internal/model"
)

// StepFailure reports a step whose command returned non-success. It
// terminates its job instance as Failed; remaining steps are not attempted
// and no retry happens at this layer.
type StepFailure struct {
	Step string
	Err  error
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepFailure) Unwrap() error { return e.Err }

// StepRunner executes the steps of one job instance against an environment
// overlay, with upstream artifacts available as inputs. Implementations
// return the instance's terminal status and the artifacts collected from
// steps that succeeded.
type StepRunner interface {
	RunSteps(ctx context.Context, env map[string]string, steps []model.StepSpec, inputs model.ArtifactSet) (model.Status, []model.Artifact, error)
}

// ShellRunner runs each step through `sh -c` in a working directory,
// layering the step's declared environment on top of the process
// environment. Input artifacts are materialized under
// <workdir>/.flowci/inputs/<name>/<origin> before the first step runs.
type ShellRunner struct {
	WorkDir string
	Stdout  io.Writer
	Stderr  io.Writer
	DryRun  bool
}

// NewShellRunner creates a runner rooted at workDir.
func NewShellRunner(workDir string, stdout, stderr io.Writer, dryRun bool) *ShellRunner {
	return &ShellRunner{
		WorkDir: workDir,
		Stdout:  stdout,
		Stderr:  stderr,
		DryRun:  dryRun,
	}
}

// RunSteps executes steps strictly in order. The first non-success step
// stops the sequence and yields Failed; a cancelled context yields
// Cancelled. Declared artifacts are collected only from steps that
// themselves succeeded.
func (r *ShellRunner) RunSteps(ctx context.Context, env map[string]string, steps []model.StepSpec, inputs model.ArtifactSet) (model.Status, []model.Artifact, error) {
	if err := r.materializeInputs(inputs); err != nil {
		return model.StatusFailed, nil, err
	}

	var produced []model.Artifact

	for _, step := range steps {
		if ctx.Err() != nil {
			return model.StatusCancelled, produced, ctx.Err()
		}

		fmt.Fprintf(r.Stdout, "  - Step %s\n", step.Name)
		if r.DryRun {
			fmt.Fprintf(r.Stdout, "    %s\n", step.Run)
			continue
		}

		cmd := exec.CommandContext(ctx, "sh", "-c", step.Run)
		cmd.Dir = r.WorkDir
		cmd.Stdout = r.Stdout
		cmd.Stderr = r.Stderr
		cmd.Env = overlayEnviron(env)

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return model.StatusCancelled, produced, ctx.Err()
			}
			return model.StatusFailed, produced, &StepFailure{Step: step.Name, Err: err}
		}

		if step.Artifact != nil {
			payload, err := os.ReadFile(r.resolvePath(step.Artifact.Path))
			if err != nil {
				return model.StatusFailed, produced, &StepFailure{
					Step: step.Name,
					Err:  fmt.Errorf("declared artifact %s not readable: %w", step.Artifact.Name, err),
				}
			}
			produced = append(produced, model.Artifact{Name: step.Artifact.Name, Payload: payload})
		}
	}

	return model.StatusSucceeded, produced, nil
}

func (r *ShellRunner) materializeInputs(inputs model.ArtifactSet) error {
	if r.DryRun || inputs.Len() == 0 {
		return nil
	}
	for name, byOrigin := range inputs {
		dir := filepath.Join(r.WorkDir, ".flowci", "inputs", name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create input directory: %w", err)
		}
		for origin, art := range byOrigin {
			path := filepath.Join(dir, sanitize(origin))
			if err := os.WriteFile(path, art.Payload, 0o644); err != nil {
				return fmt.Errorf("failed to write input artifact %s: %w", name, err)
			}
		}
	}
	return nil
}

func (r *ShellRunner) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.WorkDir, path)
}

// sanitize makes an instance ID safe for use as a file name.
func sanitize(origin string) string {
	out := []rune(origin)
	for i, c := range out {
		switch c {
		case '/', '[', ']', ' ':
			out[i] = '_'
		}
	}
	return string(out)
}

func overlayEnviron(env map[string]string) []string {
	merged := os.Environ()
	for k, v := range env {
		merged = append(merged, k+"="+v)
	}
	return merged
}
