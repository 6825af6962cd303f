package main

import (
	"github.com/spf13/cobra"

	"github.com/vk/flowgridgo/internal/app"
)

var planCmd = &cobra.Command{
	Use:   "plan <workflow-file>",
	Short: "Print scheduling diagnostics for a workflow",
	Long: `Print the topological order, the parallel batches, and the critical
path of a workflow without executing anything.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &app.Config{WorkflowPath: args[0], LogLevel: "warn"}
		a := app.New(cmd.OutOrStdout(), cfg)
		return a.Plan(cmd.Context(), cfg)
	},
}
