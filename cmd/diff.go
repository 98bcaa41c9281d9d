package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"lbcmut.dev/pkg/lbcmut/internal/domain"
)

// diffCmd represents the diff command.
var diffCmd = newDiffCmd()

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <sequence-id>",
		Short: "Compare a mutant with its seed",
		Long: `Print a unified diff between the configured seed and the mutant generated
at the given sequence id. Injected instructions are prefixed with '+'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id < 0 {
				return fmt.Errorf("invalid sequence id %q", args[0])
			}

			wf, err := currentWorkflow()
			if err != nil {
				return err
			}

			return wf.Diff(cmd.Context(), domain.DiffArgs{Seed: seedPath(nil), SequenceID: id})
		},
	}
}

func init() {
	rootCmd.AddCommand(diffCmd)
}
