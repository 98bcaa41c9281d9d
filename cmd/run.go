package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lbcmut.dev/pkg/lbcmut/internal/domain"
)

var runSeedFlag string
var runOracleFlag string
var runIterationsFlag int
var runRandomSeedFlag uint64

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the mutation search",
		Long:  runLongDescription,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			wf, err := currentWorkflow()
			if err != nil {
				return err
			}

			_, err = wf.Run(ctx, domain.RunArgs{
				Seed:   seedPath(nil),
				RunID:  uuid.NewString(),
				Oracle: viper.GetString(oracleModeKey),
			})

			return err
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&runSeedFlag, seedFlagName, "s", viper.GetString(seedPathKey), "seed class file")
	bindFlagToConfig(cmd.Flags().Lookup(seedFlagName), seedPathKey)

	cmd.Flags().StringVar(&runOracleFlag, oracleFlagName, viper.GetString(oracleModeKey), "oracle executing the mutants: process, agent or vm")
	bindFlagToConfig(cmd.Flags().Lookup(oracleFlagName), oracleModeKey)

	cmd.Flags().IntVarP(&runIterationsFlag, iterationsFlagName, "n", viper.GetInt(maxIterationsKey), "number of mutants to generate")
	bindFlagToConfig(cmd.Flags().Lookup(iterationsFlagName), maxIterationsKey)

	cmd.Flags().Uint64Var(&runRandomSeedFlag, randomSeedFlagName, viper.GetUint64(randomSeedKey), "seed of the random source (0 picks one)")
	bindFlagToConfig(cmd.Flags().Lookup(randomSeedFlagName), randomSeedKey)
}
