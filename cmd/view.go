package cmd

import (
	"github.com/spf13/cobra"
)

// viewCmd represents the view command.
var viewCmd = newViewCmd()

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "View the classification records of the last run",
		Long:  "View the mutants classified by the last run in the output directory, with verdict totals.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := currentWorkflow()
			if err != nil {
				return err
			}

			return wf.View(cmd.Context())
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
