// Package cmd provides the root command and CLI setup for lbcmut.
package cmd

import (
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"lbcmut.dev/pkg/lbcmut/internal/adapter"
	"lbcmut.dev/pkg/lbcmut/internal/controller"
	"lbcmut.dev/pkg/lbcmut/internal/domain"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

var codec adapter.ClassCodec
var ui controller.UI

// workflow overrides the workflow assembled from the configuration.
var workflow domain.Workflow

// outputDirFlag is a root-level flag shared by commands that read/write a run directory.
var outputDirFlag string

// verboseFlag switches the log file to debug level.
var verboseFlag bool

func init() {
	// Initialize shared dependencies.
	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
	codec = adapter.NewLocalClassCodec()
}

const rootLongDescription = `lbcmut mutates the control flow of a compiled JVM class. Each iteration
injects a loop-bounded hijack (goto, return, throw, switch) or removes an
earlier one, runs the mutant with instruction tracing and keeps it when the
coverage of the seed's instructions does not drop too far.

Mutants are written below the output directory, sorted by verdict.`

const runLongDescription = `Run the coverage-guided search on the seed class.

Every mutant is classified ACC, REJ or NONLIVE; classifications are written
as they happen so an interrupted run keeps its results.`

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func baseRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lbcmut",
		Short: "Loop-bounded control-flow mutation of JVM classes",
		Long:  rootLongDescription,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger(viper.GetString(logFilenameKey), viper.GetBool(logVerboseKey))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}
}

func newRootCmd() *cobra.Command {
	cmd := baseRootCmd()
	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&outputDirFlag, outputFlagName, "o",
			viper.GetString(outputFlagName),
			"output directory for mutants, results and the corpus manifest",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(outputFlagName), outputFlagName)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", viper.GetBool(logVerboseKey), "write debug messages to the log file")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(verboseFlagName), logVerboseKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// currentWorkflow returns the override or assembles a workflow from the
// configuration.
func currentWorkflow() (domain.Workflow, error) {
	if workflow != nil {
		return workflow, nil
	}

	cfg, err := searchConfig()
	if err != nil {
		return nil, err
	}

	oracle, err := newOracle(viper.GetString(oracleModeKey))
	if err != nil {
		return nil, err
	}

	root := m.Path(viper.GetString(outputFlagName))
	artifacts := adapter.NewLocalArtifactStore(root)
	reports := adapter.NewLocalReportStore(root)
	rng := rand.New(rand.NewPCG(cfg.RandomSeed, cfg.RandomSeed)) // #nosec G404 - seeded so runs replay
	engine := domain.NewEngine(oracle, artifacts, reports, ui, codec, rng, cfg)

	return domain.NewWorkflow(artifacts, reports, codec, ui, engine, cfg.Parameters), nil
}

// seedPath returns the seed class from args or the configuration.
func seedPath(args []string) m.Path {
	if len(args) > 0 {
		return m.Path(args[0])
	}

	return m.Path(viper.GetString(seedPathKey))
}
