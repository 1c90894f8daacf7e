package model

import "fmt"

// JobInstance is one concrete, schedulable execution of a job: the job
// itself for unparameterized jobs, or one matrix combination. Instances are
// created when their job becomes eligible and reach exactly one terminal
// status; they are never reused across a run.
type JobInstance struct {
	Job    string
	Label  string            // matrix combination label, empty when unparameterized
	Axes   map[string]string // axis name -> value for this combination
	Env    map[string]string // job env overlaid with axis values
	Steps  []StepSpec
	Status Status
	Err    error
}

// ID returns the run-unique identifier of the instance, used as the
// origin label for artifacts it uploads.
func (i *JobInstance) ID() string {
	if i.Label == "" {
		return i.Job
	}
	return fmt.Sprintf("%s[%s]", i.Job, i.Label)
}
