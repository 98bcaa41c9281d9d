package controller

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

var verdictColors = map[m.Verdict]*color.Color{
	m.Accepted: color.New(color.FgGreen, color.Bold),
	m.Rejected: color.New(color.FgYellow),
	m.NonLive:  color.New(color.FgRed),
}

func colorVerdict(v m.Verdict) string {
	if c, ok := verdictColors[v]; ok {
		return c.Sprint(string(v))
	}

	return string(v)
}

// SimpleUI implements UI using cobra Command's output.
type SimpleUI struct {
	cmd *cobra.Command
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context, _ ...StartOption) error {
	return ctx.Err()
}

// Close finalizes the UI.
func (s *SimpleUI) Close(context.Context) {}

// Wait returns immediately; SimpleUI never blocks.
func (s *SimpleUI) Wait(context.Context) {}

// DisplayRunInfo prints the search parameters.
func (s *SimpleUI) DisplayRunInfo(ctx context.Context, info RunInfo) {
	if ctx.Err() != nil {
		return
	}

	p := info.Parameters
	s.printf("Run %s: %s (%s), %d method(s), %d instruction(s)\n",
		info.RunID, info.Class, info.Seed, info.Methods, info.SeedSize)
	s.printf("Oracle %s | iterations %d | loop count %d | beta %g | prob %g/%g | epsilon %g | seed %d\n",
		info.Oracle, p.MaxIterations, p.LoopCount, p.Beta, p.ProbLow, p.ProbHigh, p.Epsilon, p.RandomSeed)
}

// DisplayIteration prints one classification.
func (s *SimpleUI) DisplayIteration(ctx context.Context, record m.Record, progress m.Progress) {
	if ctx.Err() != nil {
		return
	}

	s.printf("[%d/%d] %s %s %s hook %d -> %s (coverage %.3f, p %.3f, live %d/%d)\n",
		progress.Iteration, progress.MaxIterations,
		record.Artifact, record.Mutation.Operator, record.Mutation.Method, record.Mutation.HookSite,
		colorVerdict(record.Verdict), record.Coverage, record.Probability,
		progress.TotalLive, progress.SeedSize)
}

// DisplaySummary prints the verdict totals of a run.
func (s *SimpleUI) DisplaySummary(ctx context.Context, manifest m.Manifest) {
	if ctx.Err() != nil {
		return
	}

	s.printf("\nIterations: %d | %s %d | %s %d | %s %d\n",
		manifest.Iterations,
		colorVerdict(m.Accepted), manifest.Totals[m.Accepted],
		colorVerdict(m.Rejected), manifest.Totals[m.Rejected],
		colorVerdict(m.NonLive), manifest.Totals[m.NonLive])
	s.printf("Coverage: %.2f%% | Ever live: %d/%d\n", manifest.Coverage*100, manifest.TotalLive, manifest.SeedSize)

	if manifest.Stopped != "" {
		s.printf("Stopped: %s\n", manifest.Stopped)
	}
}

// DisplayProgram prints the disassembly of every method.
func (s *SimpleUI) DisplayProgram(ctx context.Context, class string, methods []*m.Method) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("%s", renderProgramTable(class, methods))

	return nil
}

// DisplayRecords prints the classification records of a run.
func (s *SimpleUI) DisplayRecords(ctx context.Context, records []m.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("%s", renderRecordsTable(records, colorVerdict))

	return nil
}

// DisplayDiff prints a unified diff.
func (s *SimpleUI) DisplayDiff(ctx context.Context, diff string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if diff == "" {
		s.printf("no differences\n")
		return nil
	}

	s.printf("%s", diff)

	return nil
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}
