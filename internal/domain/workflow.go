package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"lbcmut.dev/pkg/lbcmut/internal/adapter"
	"lbcmut.dev/pkg/lbcmut/internal/classfile"
	"lbcmut.dev/pkg/lbcmut/internal/controller"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

// RunArgs contains the arguments for one search run.
type RunArgs struct {
	Seed   m.Path
	RunID  string
	Oracle string
}

// DiffArgs selects the mutant to compare with its seed.
type DiffArgs struct {
	Seed       m.Path
	SequenceID int
}

// Workflow defines the commands of the mutation engine.
type Workflow interface {
	Run(ctx context.Context, args RunArgs) (m.Manifest, error)
	Disassemble(ctx context.Context, path m.Path) error
	View(ctx context.Context) error
	Diff(ctx context.Context, args DiffArgs) error
}

type workflow struct {
	adapter.ArtifactStore
	adapter.ClassCodec
	controller.UI
	reports      adapter.ReportStore
	disassembler Disassembler
	engine       Engine
	params       m.Parameters
}

// NewWorkflow creates a new Workflow instance with the provided dependencies.
func NewWorkflow(
	artifacts adapter.ArtifactStore,
	reports adapter.ReportStore,
	codec adapter.ClassCodec,
	ui controller.UI,
	engine Engine,
	params m.Parameters,
) Workflow {
	return &workflow{
		ArtifactStore: artifacts,
		ClassCodec:    codec,
		UI:            ui,
		reports:       reports,
		disassembler:  NewDisassembler(codec),
		engine:        engine,
		params:        params,
	}
}

// Run searches the seed and writes the manifest, also when the search fails
// or is cancelled.
func (w *workflow) Run(ctx context.Context, args RunArgs) (m.Manifest, error) {
	manifest := m.Manifest{
		RunID:      args.RunID,
		Seed:       args.Seed.String(),
		Started:    time.Now(),
		Parameters: w.params,
	}

	data, program, err := w.load(args.Seed)
	if err != nil {
		return manifest, err
	}

	manifest.Class = program.Class
	manifest.SeedSize = len(program.Seed)

	if hash, err := w.HashFile(args.Seed); err == nil {
		manifest.SeedHash = hash
	} else {
		slog.Warn("Failed to hash seed", "seed", args.Seed, "error", err)
	}

	if err := w.Reset(); err != nil {
		return manifest, fmt.Errorf("reset artifacts: %w", err)
	}

	if err := w.reports.Begin(program.SimpleName()); err != nil {
		return manifest, fmt.Errorf("begin reports: %w", err)
	}

	defer func() {
		if err := w.reports.Close(); err != nil {
			slog.Error("Failed to close reports", "error", err)
		}
	}()

	if err := w.Start(ctx, controller.WithRunMode()); err != nil {
		return manifest, fmt.Errorf("start ui: %w", err)
	}

	w.DisplayRunInfo(ctx, controller.RunInfo{
		RunID:      args.RunID,
		Seed:       args.Seed,
		Class:      program.Class,
		Methods:    len(program.Methods),
		SeedSize:   len(program.Seed),
		Oracle:     args.Oracle,
		Parameters: w.params,
	})

	outcome, searchErr := w.engine.Search(ctx, program, data)

	manifest.Finished = time.Now()
	manifest.Iterations = outcome.Iterations
	manifest.Totals = outcome.Summary
	manifest.Stopped = outcome.Stopped
	manifest.Accepted = acceptedMutations(program)

	if state := outcome.State; state != nil {
		manifest.Coverage = state.CurrentCoverage
		manifest.TotalLive = state.TotalLive.Cardinality()
	}

	if searchErr != nil && manifest.Stopped == "" {
		manifest.Stopped = searchErr.Error()
	}

	if err := w.reports.SaveManifest(manifest); err != nil {
		slog.Error("Failed to save manifest", "error", err)
		searchErr = errors.Join(searchErr, fmt.Errorf("save manifest: %w", err))
	}

	uiCtx := context.WithoutCancel(ctx)
	w.DisplaySummary(uiCtx, manifest)
	w.Close(uiCtx)
	w.Wait(uiCtx)

	return manifest, searchErr
}

func acceptedMutations(program *Program) map[string][]m.Mutation {
	accepted := map[string][]m.Mutation{}

	for _, method := range program.Methods {
		if len(method.AllMutations) > 0 {
			accepted[method.Name] = method.AllMutations
		}
	}

	return accepted
}

// Disassemble shows the method models of a class.
func (w *workflow) Disassemble(ctx context.Context, path m.Path) error {
	_, program, err := w.load(path)
	if err != nil {
		return err
	}

	if err := w.Start(ctx, controller.WithViewMode()); err != nil {
		return err
	}

	defer w.Close(ctx)

	return w.DisplayProgram(ctx, program.Class, program.Methods)
}

// View shows the classification records of the last run.
func (w *workflow) View(ctx context.Context) error {
	records, err := w.reports.LoadRecords()
	if err != nil {
		return err
	}

	if err := w.Start(ctx, controller.WithViewMode()); err != nil {
		return err
	}

	defer w.Close(ctx)

	return w.DisplayRecords(ctx, records)
}

// Diff shows a unified diff between the seed and one mutant, synthetic code
// included.
func (w *workflow) Diff(ctx context.Context, args DiffArgs) error {
	seed, program, err := w.load(args.Seed)
	if err != nil {
		return err
	}

	artifact := m.ArtifactName(program.SimpleName(), args.SequenceID)

	mutant, err := w.LoadArtifact(artifact, program.Class)
	if err != nil {
		return err
	}

	before, err := w.listing(seed)
	if err != nil {
		return err
	}

	after, err := w.listing(mutant)
	if err != nil {
		return fmt.Errorf("%s: %w", artifact, err)
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: args.Seed.String(),
		ToFile:   artifact,
		Context:  3,
	})
	if err != nil {
		return fmt.Errorf("diff %s: %w", artifact, err)
	}

	if err := w.Start(ctx, controller.WithViewMode()); err != nil {
		return err
	}

	defer w.Close(ctx)

	return w.DisplayDiff(ctx, diff)
}

func (w *workflow) load(path m.Path) ([]byte, *Program, error) {
	data, err := w.LoadSeed(path)
	if err != nil {
		return nil, nil, err
	}

	program, err := w.disassembler.Disassemble(path, data)
	if err != nil {
		return nil, nil, err
	}

	return data, program, nil
}

// listing renders the raw instruction stream of every method. Original
// labels are renumbered by position so offsets do not show up as changes;
// synthetic code is prefixed with '+'.
func (w *workflow) listing(data []byte) (string, error) {
	class, err := w.Decode(data)
	if err != nil {
		return "", err
	}

	var b strings.Builder

	for _, method := range class.Methods {
		if method.Code == nil {
			continue
		}

		fmt.Fprintf(&b, "%s\n", method.Key())

		labels := 0

		for _, insn := range method.Code.Insns {
			if insn.Kind == classfile.KindLabel && !insn.Label.Synthetic {
				insn.Label.Name = fmt.Sprintf("L%d", labels)
				labels++
			}
		}

		for _, insn := range method.Code.Insns {
			mark := " "
			if insn.Synthetic {
				mark = "+"
			}

			if insn.Kind == classfile.KindLabel {
				fmt.Fprintf(&b, "%s %s:\n", mark, class.Describe(insn))
				continue
			}

			fmt.Fprintf(&b, "%s     %s\n", mark, class.Describe(insn))
		}
	}

	return b.String(), nil
}
