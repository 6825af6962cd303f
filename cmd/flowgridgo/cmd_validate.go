package main

import (
	"github.com/spf13/cobra"

	"github.com/vk/flowgridgo/internal/app"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow-file>",
	Short: "Check a workflow definition without executing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &app.Config{WorkflowPath: args[0], LogLevel: "warn"}
		a := app.New(cmd.OutOrStdout(), cfg)
		return a.Validate(cmd.Context(), cfg)
	},
}
