package main

import (
	"fmt"

	"github.com/sourceplane/flowci/internal/graph"
	"github.com/sourceplane/flowci/internal/loader"
	"github.com/sourceplane/flowci/internal/render"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the workflow's job DAG in execution order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showGraph()
	},
}

func registerGraphCommand(root *cobra.Command) {
	root.AddCommand(graphCmd)
}

func showGraph() error {
	wf, err := loader.LoadWorkflow(workflowFile)
	if err != nil {
		return err
	}

	g, err := graph.New(wf.Jobs)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%d jobs)\n", wf.Metadata.Name, len(wf.Jobs))
	fmt.Print(render.GraphView(g))
	return nil
}
