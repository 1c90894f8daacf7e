// Package gate computes the aggregate pass/fail signal from the required
// job set. The gate result is the single authoritative success predicate
// for a run: downstream release logic consumes the boolean and never
// re-inspects individual job statuses.
package gate

import (
	"fmt"

	"github.com/sourceplane/flowci/internal/model"
)

// Evaluate derives the gate result from the terminal statuses of every
// instance of every required job. The gate succeeds iff each required job's
// every instance is Succeeded, or the job as a whole was Skipped (a
// conditionally-skipped required job is non-blocking by policy). Any Failed
// or Cancelled instance anywhere in a required job's expansion blocks the
// gate, as does a job that never reached a terminal state.
func Evaluate(required []string, statuses map[string][]model.Status) model.GateResult {
	result := model.GateResult{Success: true}

	for _, job := range required {
		instances, ok := statuses[job]
		if !ok || len(instances) == 0 {
			result.Blocking = append(result.Blocking, model.GateReason{
				Job:    job,
				Reason: "no recorded instances",
			})
			result.Success = false
			continue
		}

		for _, status := range instances {
			switch status {
			case model.StatusSucceeded, model.StatusSkipped:
			case model.StatusFailed, model.StatusCancelled:
				result.Blocking = append(result.Blocking, model.GateReason{
					Job:    job,
					Reason: fmt.Sprintf("instance %s", status),
				})
				result.Success = false
			default:
				result.Blocking = append(result.Blocking, model.GateReason{
					Job:    job,
					Reason: fmt.Sprintf("instance not terminal (%s)", status),
				})
				result.Success = false
			}
		}
	}

	return result
}
