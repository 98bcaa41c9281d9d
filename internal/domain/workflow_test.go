package domain

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lbcmut.dev/pkg/lbcmut/internal/adapter"
	"lbcmut.dev/pkg/lbcmut/internal/controller"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

type workflowFixture struct {
	Workflow
	out     *bytes.Buffer
	root    m.Path
	seed    m.Path
	reports *adapter.LocalReportStore
}

func newWorkflowFixture(t *testing.T, binary []byte, iterations int, oracle adapter.Oracle) *workflowFixture {
	t.Helper()

	dir := t.TempDir()
	seed := filepath.Join(dir, "Seed.class")
	require.NoError(t, os.WriteFile(seed, binary, 0o600))

	root := m.Path(filepath.Join(dir, "out"))
	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)

	cfg := searchConfig(iterations)
	codec := adapter.NewLocalClassCodec()
	artifacts := adapter.NewLocalArtifactStore(root)
	reports := adapter.NewLocalReportStore(root)
	ui := controller.NewSimpleUI(cmd)
	rng := newRand(cfg.RandomSeed)
	search := NewEngine(oracle, artifacts, reports, ui, codec, rng, cfg)

	return &workflowFixture{
		Workflow: NewWorkflow(artifacts, reports, codec, ui, search, cfg.Parameters),
		out:      out,
		root:     root,
		seed:     m.Path(seed),
		reports:  reports,
	}
}

func TestWorkflow_Run(t *testing.T) {
	f := newWorkflowFixture(t, loopSeed(t), 12, vmOracle())

	manifest, err := f.Run(context.Background(), RunArgs{Seed: f.seed, RunID: "run-1", Oracle: "vm"})
	require.NoError(t, err)

	assert.Equal(t, "run-1", manifest.RunID)
	assert.Equal(t, "demo/Loop", manifest.Class)
	assert.Equal(t, 12, manifest.Iterations)
	assert.Equal(t, 12, m.Summary(manifest.Totals).Total())
	assert.Positive(t, manifest.Coverage)
	assert.Positive(t, manifest.TotalLive)
	assert.LessOrEqual(t, manifest.TotalLive, manifest.SeedSize)
	assert.False(t, manifest.Finished.Before(manifest.Started))
	assert.Len(t, manifest.SeedHash, 64)

	output := f.out.String()
	assert.Contains(t, output, "Run run-1: demo/Loop")
	assert.Contains(t, output, "[12/12] Loop_MUTANT_")
	assert.Contains(t, output, "Iterations: 12")

	saved, err := f.reports.LoadManifest()
	require.NoError(t, err)
	assert.Equal(t, manifest.Totals, saved.Totals)
	assert.Equal(t, manifest.Parameters, saved.Parameters)

	results, err := os.ReadFile(string(adapter.ResultsPath(f.root, "Loop")))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(results)), "\n"), 12)

	t.Run("view lists the records", func(t *testing.T) {
		f.out.Reset()

		require.NoError(t, f.View(context.Background()))
		assert.Contains(t, f.out.String(), "Loop_MUTANT_0")
		assert.Contains(t, f.out.String(), "ARTIFACT")
	})

	t.Run("diff marks synthetic code", func(t *testing.T) {
		f.out.Reset()

		require.NoError(t, f.Diff(context.Background(), DiffArgs{Seed: f.seed, SequenceID: 0}))
		assert.Contains(t, f.out.String(), "+++ Loop_MUTANT_0")
		assert.Contains(t, f.out.String(), "\n++ ")
	})

	t.Run("diff of a missing mutant", func(t *testing.T) {
		err := f.Diff(context.Background(), DiffArgs{Seed: f.seed, SequenceID: 999})
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestWorkflow_RunMalformedSeed(t *testing.T) {
	f := newWorkflowFixture(t, []byte("not a class"), 3, vmOracle())

	_, err := f.Run(context.Background(), RunArgs{Seed: f.seed, RunID: "run-2"})
	require.ErrorIs(t, err, m.ErrMalformedInput)

	_, err = os.Stat(string(f.root.Join("corpus.yaml")))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// oracleFunc adapts a function to adapter.Oracle.
type oracleFunc func(context.Context, adapter.Candidate) ([]string, error)

func (f oracleFunc) Execute(ctx context.Context, candidate adapter.Candidate) ([]string, error) {
	return f(ctx, candidate)
}

func TestWorkflow_RunInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner, calls := vmOracle(), 0
	oracle := oracleFunc(func(ctx context.Context, candidate adapter.Candidate) ([]string, error) {
		if calls++; calls == 3 {
			cancel()
		}

		return inner.Execute(context.WithoutCancel(ctx), candidate)
	})

	f := newWorkflowFixture(t, counterSeed(t), 50, oracle)

	manifest, err := f.Run(ctx, RunArgs{Seed: f.seed, RunID: "run-3"})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, StopInterrupted, manifest.Stopped)
	assert.Less(t, manifest.Iterations, 50)

	saved, loadErr := f.reports.LoadManifest()
	require.NoError(t, loadErr)
	assert.Equal(t, StopInterrupted, saved.Stopped)
	assert.Equal(t, manifest.Iterations, saved.Iterations)
}

func TestWorkflow_Disassemble(t *testing.T) {
	f := newWorkflowFixture(t, loopSeed(t), 1, vmOracle())

	require.NoError(t, f.Disassemble(context.Background(), f.seed))

	output := f.out.String()
	assert.Contains(t, output, "class demo/Loop")
	assert.Contains(t, output, "square(I)I  (4 instructions, 1 code positions, 1 locals)")
	assert.Contains(t, output, "local:1")
}

func TestWorkflow_DisassembleMissingSeed(t *testing.T) {
	f := newWorkflowFixture(t, counterSeed(t), 1, vmOracle())

	err := f.Disassemble(context.Background(), m.Path(filepath.Join(t.TempDir(), "Nope.class")))
	assert.Error(t, err)
}
