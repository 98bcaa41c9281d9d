package cmd

import (
	"github.com/spf13/cobra"
)

// disasmCmd represents the disasm command.
var disasmCmd = newDisasmCmd()

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm [class]",
		Short: "Show the instructions and identifiers of a class",
		Long: `Disassemble a class file (default: the configured seed) and list every
instruction with its sequence number, code position and def/use key.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := currentWorkflow()
			if err != nil {
				return err
			}

			return wf.Disassemble(cmd.Context(), seedPath(args))
		},
	}
}

func init() {
	rootCmd.AddCommand(disasmCmd)
}
