package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sourceplane/flowci/internal/ctxlog"
	"github.com/sourceplane/flowci/internal/engine"
	"github.com/sourceplane/flowci/internal/loader"
	"github.com/sourceplane/flowci/internal/model"
	"github.com/sourceplane/flowci/internal/objectstore"
	"github.com/sourceplane/flowci/internal/release"
	"github.com/sourceplane/flowci/internal/render"
	"github.com/sourceplane/flowci/internal/runner"
	"github.com/spf13/cobra"
)

var (
	runExecute      bool
	runWorkDir      string
	runRef          string
	runRepo         string
	runEvent        string
	runForkPR       bool
	runWorkers      int
	runReportFile   string
	runReleaseDir   string
	runMirrorBucket bool
	runSkipExisting bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a workflow for a trigger event",
	Long:  "Schedule the workflow's jobs against the dependency DAG, evaluate the gate, and fire the release trigger when the gate passes on a release tag.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflow()
	},
}

func registerRunCommand(root *cobra.Command) {
	root.AddCommand(runCmd)

	runCmd.Flags().BoolVarP(&runExecute, "execute", "x", false, "Actually execute step commands (default is dry-run)")
	runCmd.Flags().StringVar(&runWorkDir, "workdir", ".", "Working directory for step commands")
	runCmd.Flags().StringVar(&runRef, "ref", "refs/heads/main", "Triggering ref (branch, tag or PR ref)")
	runCmd.Flags().StringVar(&runRepo, "repo", "", "Originating repository identity")
	runCmd.Flags().StringVar(&runEvent, "event", "push", "Trigger event type (push/tag/pull_request)")
	runCmd.Flags().BoolVar(&runForkPR, "fork-pr", false, "Mark the pull request as coming from a fork")
	runCmd.Flags().IntVar(&runWorkers, "workers", 4, "Concurrent scheduler workers")
	runCmd.Flags().StringVarP(&runReportFile, "report", "o", "", "Write run report to file (json or yaml)")
	runCmd.Flags().StringVar(&runReleaseDir, "release-dir", "", "Publish release targets into this directory instead of the object store")
	runCmd.Flags().BoolVar(&runMirrorBucket, "mirror-artifacts", false, "Mirror uploaded artifacts to the configured S3 bucket")
	runCmd.Flags().BoolVar(&runSkipExisting, "skip-existing", true, "Treat byte-identical re-publishes of an existing version as success")
}

func runWorkflow() error {
	fmt.Println("□ Loading workflow...")
	wf, err := loader.LoadWorkflow(workflowFile)
	if err != nil {
		return fmt.Errorf("failed to load workflow: %w", err)
	}

	tagPattern := ""
	if wf.Release != nil {
		tagPattern = wf.Release.TagPattern
	}

	rc, err := model.NewRunContext(runRepo, runRef, model.EventType(runEvent), runForkPR, tagPattern, envSnapshot())
	if err != nil {
		return fmt.Errorf("failed to build run context: %w", err)
	}

	dryRun := !runExecute
	if dryRun {
		fmt.Println("□ Dry-run mode enabled. Use --execute to run step commands.")
	}

	ctx := ctxlog.WithLogger(context.Background(), newLogger(os.Stderr))

	opts := engine.Options{Workers: runWorkers, DryRun: dryRun}

	if runMirrorBucket {
		cfg, err := objectstore.ConfigFromEnv()
		if err != nil {
			return fmt.Errorf("failed to configure artifact mirror: %w", err)
		}
		bucket, err := objectstore.NewBucket(cfg)
		if err != nil {
			return fmt.Errorf("failed to connect artifact mirror: %w", err)
		}
		if err := bucket.Ensure(ctx, cfg.Region); err != nil {
			return fmt.Errorf("failed to prepare mirror bucket: %w", err)
		}
		opts.Mirror = bucket
	}

	// Publishing is a side effect a preview run must not perform, so the
	// trigger is wired only for real runs.
	if wf.Release != nil && !dryRun {
		targets, err := buildReleaseTargets(wf)
		if err != nil {
			return err
		}
		opts.Trigger = release.NewTrigger(targets, runSkipExisting)
	}

	stepRunner := runner.NewShellRunner(runWorkDir, os.Stdout, os.Stderr, dryRun)
	eng, err := engine.New(wf, stepRunner, opts)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	fmt.Printf("□ Running %d jobs (run %s)...\n", len(wf.Jobs), rc.RunID)
	report, err := eng.Run(ctx, rc)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	doc := render.BuildReport(report)
	fmt.Print("\n" + render.Summary(doc))

	if runReportFile != "" {
		if err := render.WriteReport(doc, runReportFile); err != nil {
			return err
		}
		fmt.Printf("✓ Report saved to: %s\n", runReportFile)
	}

	if !report.Gate.Success {
		return fmt.Errorf("gate failed")
	}

	fmt.Println("✓ Run complete")
	return nil
}

// buildReleaseTargets binds the workflow's declared targets to backends:
// a local directory when --release-dir is set, otherwise the configured
// S3 bucket with the target name as key prefix.
func buildReleaseTargets(wf *model.Workflow) ([]release.Target, error) {
	targets := make([]release.Target, 0, len(wf.Release.Targets))

	if runReleaseDir != "" {
		for _, spec := range wf.Release.Targets {
			targets = append(targets, release.NewDirTarget(spec.Name, runReleaseDir+"/"+spec.Name))
		}
		return targets, nil
	}

	cfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to configure release targets: %w", err)
	}
	bucket, err := objectstore.NewBucket(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect release bucket: %w", err)
	}
	for _, spec := range wf.Release.Targets {
		targets = append(targets, release.NewBucketTarget(spec.Name, bucket, spec.Name))
	}
	return targets, nil
}

func envSnapshot() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return env
}
