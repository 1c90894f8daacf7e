// Package release implements the conditionally-triggered publish at the
// end of a successful run. The trigger fires only when the gate succeeded
// and the triggering ref is a release tag, executes its side effect at most
// once per run, and reports each distribution target's outcome distinctly.
package release

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sourceplane/flowci/internal/ctxlog"
	"github.com/sourceplane/flowci/internal/model"
)

// Outcome classifies what happened at one distribution target.
type Outcome int

const (
	OutcomeNotAttempted Outcome = iota
	OutcomePublished
	OutcomeSkippedExisting
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePublished:
		return "published"
	case OutcomeSkippedExisting:
		return "skipped-existing"
	case OutcomeFailed:
		return "failed"
	}
	return "not-attempted"
}

// ConflictError reports that a target already holds a different payload
// under this version. A byte-identical re-publish is not a conflict; it is
// absorbed by the skip-existing policy.
type ConflictError struct {
	Target  string
	Version string
	Name    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("target %s already has %s %s with different content", e.Target, e.Name, e.Version)
}

// Target is one distribution destination accepting a versioned artifact.
type Target interface {
	Name() string
	// Publish ships the artifact under version. With skipExisting, a
	// byte-identical payload already present is a no-op reported as
	// OutcomeSkippedExisting; a differing payload is a ConflictError.
	Publish(ctx context.Context, version string, art model.Artifact, skipExisting bool) (Outcome, error)
}

// TargetResult is one target's reported outcome.
type TargetResult struct {
	Target  string
	Outcome Outcome
	Err     error
}

// Report describes what the trigger did for one run.
type Report struct {
	Fired   bool
	Reason  string
	Version string
	Results []TargetResult
}

// Trigger gates the publish side effect. It consumes only the gate's
// computed boolean and the run context's release-tag predicate; it never
// re-inspects individual job statuses.
type Trigger struct {
	targets      []Target
	skipExisting bool

	mu     sync.Mutex
	report *Report
}

// NewTrigger builds a trigger over the ordered target list.
func NewTrigger(targets []Target, skipExisting bool) *Trigger {
	return &Trigger{targets: targets, skipExisting: skipExisting}
}

// Fire evaluates the release predicate and, when it holds, publishes the
// per-target artifacts in order. Calling Fire again within the same run
// returns the first call's report without repeating the side effect.
// Failure of a later target never masks an earlier target's success: every
// target's outcome is reported, and the returned error joins the
// individual failures.
func (t *Trigger) Fire(ctx context.Context, rc model.RunContext, gateResult model.GateResult, artifacts map[string]model.Artifact) (*Report, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.report != nil {
		return t.report, nil
	}

	logger := ctxlog.FromContext(ctx)

	if !gateResult.Success {
		t.report = &Report{Fired: false, Reason: "gate failed"}
		return t.report, nil
	}
	if !rc.RefIsReleaseTag {
		t.report = &Report{Fired: false, Reason: "ref is not a release tag"}
		return t.report, nil
	}

	version := model.TagName(rc.Ref)
	report := &Report{Fired: true, Version: version}
	var errs []error

	for _, target := range t.targets {
		art, ok := artifacts[target.Name()]
		if !ok {
			err := fmt.Errorf("no artifact bound for target %s", target.Name())
			report.Results = append(report.Results, TargetResult{Target: target.Name(), Outcome: OutcomeFailed, Err: err})
			errs = append(errs, err)
			continue
		}

		outcome, err := target.Publish(ctx, version, art, t.skipExisting)
		report.Results = append(report.Results, TargetResult{Target: target.Name(), Outcome: outcome, Err: err})
		if err != nil {
			logger.Error("Publish failed.", "target", target.Name(), "version", version, "error", err)
			errs = append(errs, fmt.Errorf("target %s: %w", target.Name(), err))
			continue
		}
		logger.Info("Published.", "target", target.Name(), "version", version, "outcome", outcome.String())
	}

	t.report = report
	return report, errors.Join(errs...)
}
