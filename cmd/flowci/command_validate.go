package main

import (
	"fmt"

	"github.com/sourceplane/flowci/internal/graph"
	"github.com/sourceplane/flowci/internal/loader"
	"github.com/sourceplane/flowci/internal/matrix"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a workflow file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateWorkflow()
	},
}

func registerValidateCommand(root *cobra.Command) {
	root.AddCommand(validateCmd)
}

func validateWorkflow() error {
	fmt.Println("□ Validating workflow...")
	wf, err := loader.LoadWorkflow(workflowFile)
	if err != nil {
		return err
	}

	fmt.Println("□ Checking dependency graph...")
	g, err := graph.New(wf.Jobs)
	if err != nil {
		return err
	}

	fmt.Println("□ Checking matrix axes...")
	instances := 0
	for _, name := range g.Jobs() {
		expanded, err := matrix.Expand(g.Spec(name))
		if err != nil {
			return err
		}
		instances += len(expanded)
	}

	fmt.Printf("✓ Workflow is valid (%d jobs, %d instances)\n", len(wf.Jobs), instances)
	return nil
}
