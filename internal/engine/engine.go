// Package engine drives one pipeline run: it resolves job eligibility
// against the dependency graph, fans parameterized jobs out across matrix
// legs, aggregates artifacts, and finishes by evaluating the gate and
// firing the release trigger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sourceplane/flowci/internal/artifact"
	"github.com/sourceplane/flowci/internal/ctxlog"
	"github.com/sourceplane/flowci/internal/gate"
	"github.com/sourceplane/flowci/internal/graph"
	"github.com/sourceplane/flowci/internal/matrix"
	"github.com/sourceplane/flowci/internal/model"
	"github.com/sourceplane/flowci/internal/release"
	"github.com/sourceplane/flowci/internal/runner"
)

// Mirror receives a copy of every uploaded artifact, keyed by
// runID/name/origin. Mirror failures are logged, never fatal: the
// in-memory store stays authoritative within the run.
type Mirror interface {
	Put(ctx context.Context, key string, payload []byte) error
}

// Options tunes a run.
type Options struct {
	Workers int
	Mirror  Mirror
	Trigger *release.Trigger

	// DryRun marks a preview run: the step runner only prints commands, so
	// producers never upload their declared artifacts and the artifact
	// completeness check for consumers is waived.
	DryRun bool
}

// Engine executes a workflow. It owns the job instance lifecycle; the
// artifact store is the only shared mutable resource between instances.
type Engine struct {
	wf     *model.Workflow
	graph  *graph.Graph
	runner runner.StepRunner
	store  *artifact.Store
	opts   Options
}

// New validates the workflow's dependency graph and builds an engine.
// Cycles and unknown predecessors fail here, before any job executes.
func New(wf *model.Workflow, stepRunner runner.StepRunner, opts Options) (*Engine, error) {
	g, err := graph.New(wf.Jobs)
	if err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Engine{
		wf:     wf,
		graph:  g,
		runner: stepRunner,
		store:  artifact.NewStore(),
		opts:   opts,
	}, nil
}

// JobResult is the recorded terminal state of one job.
type JobResult struct {
	Job       string
	Outcome   model.Status
	Instances []*model.JobInstance
	Err       error
}

// RunReport is the observable result of a run: every job's terminal
// status, the gate's verdict, and what the release trigger did.
type RunReport struct {
	RunID   string
	Jobs    map[string]*JobResult
	Gate    model.GateResult
	Release *release.Report
}

// runState is the mutable bookkeeping for one Run invocation.
type runState struct {
	mu      sync.Mutex
	results map[string]*JobResult
	pending map[string]*atomic.Int32
	ready   chan string
	wg      sync.WaitGroup
}

func (st *runState) result(job string) *JobResult {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.results[job]
}

func (st *runState) record(res *JobResult) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.results[res.Job] = res
}

// Run executes the workflow against the run context and returns the
// report. A failed gate is reported, not returned as an error; errors are
// reserved for the engine's own invariants breaking.
func (e *Engine) Run(ctx context.Context, rc model.RunContext) (*RunReport, error) {
	logger := ctxlog.FromContext(ctx).With("runID", rc.RunID)
	ctx = ctxlog.WithLogger(ctx, logger)

	jobs := e.graph.Jobs()
	st := &runState{
		results: make(map[string]*JobResult, len(jobs)),
		pending: make(map[string]*atomic.Int32, len(jobs)),
		ready:   make(chan string, len(jobs)),
	}

	for _, name := range jobs {
		counter := &atomic.Int32{}
		counter.Store(int32(len(e.graph.Predecessors(name))))
		st.pending[name] = counter
	}

	// Jobs with no predecessors are eligible immediately.
	for _, name := range jobs {
		if st.pending[name].Load() == 0 {
			st.ready <- name
		}
	}

	st.wg.Add(len(jobs))
	for i := 0; i < e.opts.Workers; i++ {
		go e.worker(ctx, rc, st)
	}
	st.wg.Wait()
	close(st.ready)

	report := &RunReport{
		RunID: rc.RunID,
		Jobs:  st.results,
	}

	// The gate runs unconditionally: its purpose is to observe and report
	// upstream failure, so no upstream outcome may suppress it.
	report.Gate = gate.Evaluate(e.graph.Required(), e.statuses(st))
	logger.Info("Gate evaluated.", "success", report.Gate.Success, "required", len(e.graph.Required()))

	if e.opts.Trigger != nil && e.wf.Release != nil {
		// Binding warns about unbound targets, so it runs only when the
		// trigger's own predicate can actually fire the publish.
		var bound map[string]model.Artifact
		if report.Gate.Success && rc.RefIsReleaseTag {
			bound = e.releaseArtifacts(ctx)
		}
		releaseReport, err := e.opts.Trigger.Fire(ctx, rc, report.Gate, bound)
		if err != nil {
			logger.Error("Release reported failures.", "error", err)
		}
		report.Release = releaseReport
	}

	return report, nil
}

// worker is the processing loop for one concurrent scheduler worker. When
// a job reaches a terminal state it decrements each dependent's pending
// counter; a dependent whose counter hits zero becomes eligible.
func (e *Engine) worker(ctx context.Context, rc model.RunContext, st *runState) {
	for name := range st.ready {
		e.processJob(ctx, rc, name, st)

		for _, dependent := range e.graph.Dependents(name) {
			if st.pending[dependent].Add(-1) == 0 {
				st.ready <- dependent
			}
		}
		st.wg.Done()
	}
}

// processJob takes one eligible job to a terminal state: condition check,
// matrix expansion, leg execution, artifact upload.
func (e *Engine) processJob(ctx context.Context, rc model.RunContext, name string, st *runState) {
	logger := ctxlog.FromContext(ctx).With("job", name)
	spec := e.graph.Spec(name)

	if ctx.Err() != nil {
		st.record(&JobResult{Job: name, Outcome: model.StatusCancelled, Err: ctx.Err()})
		return
	}

	preds := make([]model.Status, 0, len(spec.Needs))
	for _, need := range spec.Needs {
		preds = append(preds, st.result(need).Outcome)
	}

	if !spec.If.Met(rc, preds) {
		logger.Info("Job skipped.", "condition", spec.If)
		st.record(&JobResult{Job: name, Outcome: model.StatusSkipped})
		return
	}

	instances, err := matrix.Expand(spec)
	if err != nil {
		logger.Error("Matrix expansion failed.", "error", err)
		st.record(&JobResult{Job: name, Outcome: model.StatusFailed, Err: err})
		return
	}

	inputs, err := e.mergeInputs(spec, st)
	if err != nil {
		logger.Error("Input artifacts incomplete.", "error", err)
		st.record(&JobResult{Job: name, Outcome: model.StatusFailed, Instances: instances, Err: err})
		markAll(instances, model.StatusFailed)
		return
	}

	e.runInstances(ctx, rc, spec, instances, inputs)

	result := &JobResult{Job: name, Outcome: jobOutcome(instances), Instances: instances}
	for _, inst := range instances {
		if inst.Err != nil && result.Err == nil {
			result.Err = inst.Err
		}
		logger.Info("Instance finished.", "instance", inst.ID(), "status", inst.Status.String())
	}
	st.record(result)
}

// runInstances executes all matrix legs in parallel. With fail-fast, the
// first Failed leg cancels the shared sibling context; legs that have not
// started observe the cancellation and go straight to Cancelled, running
// legs are interrupted and finish Cancelled. The cancellation never leaves
// the sibling set.
func (e *Engine) runInstances(ctx context.Context, rc model.RunContext, spec model.JobSpec, instances []*model.JobInstance, inputs model.ArtifactSet) {
	failFast := spec.Matrix != nil && spec.Matrix.FailFast

	legCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var legWG sync.WaitGroup
	for _, inst := range instances {
		inst := inst
		legWG.Add(1)
		go func() {
			defer legWG.Done()

			if legCtx.Err() != nil {
				inst.Status = model.StatusCancelled
				inst.Err = legCtx.Err()
				return
			}

			inst.Status = model.StatusRunning
			status, produced, err := e.runner.RunSteps(legCtx, inst.Env, inst.Steps, inputs)
			inst.Status = status
			inst.Err = err

			if status == model.StatusSucceeded {
				if uploadErr := e.uploadArtifacts(ctx, rc, inst, produced); uploadErr != nil {
					inst.Status = model.StatusFailed
					inst.Err = uploadErr
				}
			}

			if inst.Status == model.StatusFailed && failFast {
				cancel()
			}
		}()
	}
	legWG.Wait()
}

func (e *Engine) uploadArtifacts(ctx context.Context, rc model.RunContext, inst *model.JobInstance, produced []model.Artifact) error {
	logger := ctxlog.FromContext(ctx)
	for _, art := range produced {
		if err := e.store.Upload(inst.ID(), art.Name, art.Payload); err != nil {
			return err
		}
		if e.opts.Mirror != nil {
			key := fmt.Sprintf("%s/%s/%s", rc.RunID, art.Name, inst.ID())
			if err := e.opts.Mirror.Put(ctx, key, art.Payload); err != nil {
				logger.Warn("Artifact mirror upload failed.", "artifact", art.Name, "error", err)
			}
		}
	}
	return nil
}

// mergeInputs assembles the artifacts a consuming job declared. The
// expected contribution set is every Succeeded instance of every ancestor
// job declaring that artifact name; ancestors are terminal by the
// eligibility rule, so the merge sees a consistent snapshot.
func (e *Engine) mergeInputs(spec model.JobSpec, st *runState) (model.ArtifactSet, error) {
	if len(spec.Consumes) == 0 {
		return nil, nil
	}

	ancestors := e.ancestors(spec.Name)
	expect := make(map[string][]string, len(spec.Consumes))
	for _, name := range spec.Consumes {
		var origins []string
		for ancestor := range ancestors {
			if !declaresArtifact(e.graph.Spec(ancestor), name) {
				continue
			}
			res := st.result(ancestor)
			if res == nil {
				continue
			}
			for _, inst := range res.Instances {
				if inst.Status == model.StatusSucceeded {
					origins = append(origins, inst.ID())
				}
			}
		}
		expect[name] = origins
	}

	merged, err := e.store.Merge(expect)
	if err != nil {
		var missing *artifact.MissingArtifactError
		if e.opts.DryRun && errors.As(err, &missing) {
			return nil, nil
		}
		return nil, err
	}
	return merged, nil
}

// ancestors returns the transitive predecessor closure of a job.
func (e *Engine) ancestors(name string) map[string]bool {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(job string) {
		for _, need := range e.graph.Predecessors(job) {
			if !seen[need] {
				seen[need] = true
				walk(need)
			}
		}
	}
	walk(name)
	return seen
}

// statuses flattens recorded results into the per-job instance status
// lists the gate consumes. A job that never instantiated (skipped or
// cancelled before expansion) is represented by its job-level outcome.
func (e *Engine) statuses(st *runState) map[string][]model.Status {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make(map[string][]model.Status, len(st.results))
	for name, res := range st.results {
		if len(res.Instances) == 0 {
			out[name] = []model.Status{res.Outcome}
			continue
		}
		statuses := make([]model.Status, len(res.Instances))
		for i, inst := range res.Instances {
			statuses[i] = inst.Status
		}
		out[name] = statuses
	}
	return out
}

// releaseArtifacts binds each release target to its artifact. A target
// binds only when exactly one origin uploaded under the configured name;
// zero or several leave the target unbound and the trigger reports it.
func (e *Engine) releaseArtifacts(ctx context.Context) map[string]model.Artifact {
	logger := ctxlog.FromContext(ctx)
	bound := make(map[string]model.Artifact, len(e.wf.Release.Targets))

	for _, target := range e.wf.Release.Targets {
		origins := e.store.Origins(target.Artifact)
		switch len(origins) {
		case 1:
			if art, ok := e.store.Get(target.Artifact, origins[0]); ok {
				bound[target.Name] = art
			}
		case 0:
			logger.Warn("No upload for release artifact.", "target", target.Name, "artifact", target.Artifact)
		default:
			logger.Warn("Ambiguous release artifact.", "target", target.Name, "artifact", target.Artifact, "origins", len(origins))
		}
	}
	return bound
}

// Store exposes the run's artifact store, primarily for inspection after
// a run completes.
func (e *Engine) Store() *artifact.Store {
	return e.store
}

// Graph exposes the validated dependency graph.
func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

func declaresArtifact(spec model.JobSpec, name string) bool {
	for _, step := range spec.Steps {
		if step.Artifact != nil && step.Artifact.Name == name {
			return true
		}
	}
	return false
}

func markAll(instances []*model.JobInstance, status model.Status) {
	for _, inst := range instances {
		inst.Status = status
	}
}

// jobOutcome collapses instance statuses into a job-level outcome with
// precedence Failed > Cancelled > Skipped > Succeeded.
func jobOutcome(instances []*model.JobInstance) model.Status {
	outcome := model.StatusSucceeded
	sawSkipped := false
	sawCancelled := false
	for _, inst := range instances {
		switch inst.Status {
		case model.StatusFailed:
			return model.StatusFailed
		case model.StatusCancelled:
			sawCancelled = true
		case model.StatusSkipped:
			sawSkipped = true
		}
	}
	if sawCancelled {
		return model.StatusCancelled
	}
	if sawSkipped {
		return model.StatusSkipped
	}
	return outcome
}
