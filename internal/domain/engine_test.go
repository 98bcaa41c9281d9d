package domain

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lbcmut.dev/pkg/lbcmut/internal/adapter"
	"lbcmut.dev/pkg/lbcmut/internal/adapter/mocks"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

type engineFixture struct {
	artifacts *adapter.LocalArtifactStore
	reports   *adapter.LocalReportStore
	ui        *recordingUI
	program   *Program
	seed      []byte
}

func newEngineFixture(t *testing.T, seed []byte) *engineFixture {
	t.Helper()

	root := m.Path(t.TempDir())
	reports := adapter.NewLocalReportStore(root)
	program := disassemble(t, seed)

	require.NoError(t, reports.Begin(program.SimpleName()))
	t.Cleanup(func() { _ = reports.Close() })

	return &engineFixture{
		artifacts: adapter.NewLocalArtifactStore(root),
		reports:   reports,
		ui:        &recordingUI{},
		program:   program,
		seed:      seed,
	}
}

func (f *engineFixture) engine(oracle adapter.Oracle, cfg SearchConfig) Engine {
	return NewEngine(oracle, f.artifacts, f.reports, f.ui, adapter.NewLocalClassCodec(), newRand(cfg.RandomSeed), cfg)
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func searchConfig(iterations int) SearchConfig {
	cfg := DefaultSearchConfig()
	cfg.MaxIterations = iterations
	cfg.LoopCount = 2
	cfg.RandomSeed = 42

	return cfg
}

func vmOracle() adapter.Oracle {
	return adapter.NewVMOracle(adapter.VMOracleConfig{MaxSteps: 200_000, MaxTraceLines: 10_000})
}

func TestEngine_Search(t *testing.T) {
	f := newEngineFixture(t, loopSeed(t))

	out, err := f.engine(vmOracle(), searchConfig(25)).Search(context.Background(), f.program, f.seed)
	require.NoError(t, err)

	assert.Empty(t, out.Stopped)
	assert.Equal(t, 25, out.Iterations)
	assert.Len(t, f.ui.records, out.Summary.Total())
	assert.InDelta(t, out.State.CurrentCoverage, f.ui.progress[len(f.ui.progress)-1].Coverage, 1e-12)
	assert.Positive(t, out.State.CurrentCoverage)

	previous, last := 0, -1
	for i, record := range f.ui.records {
		assert.Greater(t, record.SequenceID, last, "sequence ids increase")
		last = record.SequenceID

		assert.GreaterOrEqual(t, f.ui.progress[i].TotalLive, previous, "total live never shrinks")
		previous = f.ui.progress[i].TotalLive

		_, err := f.artifacts.LoadArtifact(record.Artifact, f.program.Class)
		assert.NoError(t, err, record.Artifact)

		if record.Verdict == m.Accepted {
			assert.Positive(t, record.Coverage)
		}
	}

	accepted := 0
	for _, method := range f.program.Methods {
		accepted += len(method.AllMutations)
		assert.Equal(t, len(method.AllMutations)+1, method.MutationCount)
	}

	assert.LessOrEqual(t, accepted, out.Summary[m.Accepted])

	require.NoError(t, f.reports.Close())

	records, err := f.reports.LoadRecords()
	require.NoError(t, err)
	require.Len(t, records, len(f.ui.records))

	for i, record := range records {
		assert.Equal(t, f.ui.records[i].Artifact, record.Artifact)
		assert.Equal(t, f.ui.records[i].Verdict, record.Verdict)
	}
}

func TestEngine_SearchIsReproducible(t *testing.T) {
	run := func() []m.Record {
		f := newEngineFixture(t, loopSeed(t))

		_, err := f.engine(vmOracle(), searchConfig(15)).Search(context.Background(), f.program, f.seed)
		require.NoError(t, err)

		return f.ui.records
	}

	a, b := run(), run()
	require.Len(t, b, len(a))

	for i := range a {
		assert.Equal(t, a[i].Mutation, b[i].Mutation)
		assert.Equal(t, a[i].Verdict, b[i].Verdict)
	}
}

// seedThenFail answers the seed with its full trace and every mutant with err.
func seedThenFail(program *Program, err error) func(context.Context, adapter.Candidate) ([]string, error) {
	var calls atomic.Int32

	return func(context.Context, adapter.Candidate) ([]string, error) {
		if calls.Add(1) == 1 {
			return program.Seed, nil
		}

		return nil, err
	}
}

func TestEngine_OracleUnavailable(t *testing.T) {
	f := newEngineFixture(t, counterSeed(t))

	oracle := mocks.NewMockOracle(t)
	oracle.EXPECT().Execute(mock.Anything, mock.Anything).
		RunAndReturn(seedThenFail(f.program, fmt.Errorf("%w: connection refused", m.ErrOracleUnavailable)))

	cfg := searchConfig(10)
	cfg.Operators = []m.Operator{m.OperatorThrow}
	cfg.MaxOracleFailures = 3

	out, err := f.engine(oracle, cfg).Search(context.Background(), f.program, f.seed)
	require.ErrorIs(t, err, m.ErrOracleUnavailable)

	assert.Equal(t, StopOracleFailures, out.Stopped)
	assert.Equal(t, 3, out.Iterations)
	assert.Zero(t, out.Summary.Total())
	assert.Empty(t, f.ui.records)

	_, err = f.artifacts.LoadArtifact(m.ArtifactName("Counter", 0), f.program.Class)
	assert.Error(t, err, "failed candidates are discarded")
}

func TestEngine_TimeoutIsNonLive(t *testing.T) {
	f := newEngineFixture(t, counterSeed(t))

	oracle := mocks.NewMockOracle(t)
	oracle.EXPECT().Execute(mock.Anything, mock.Anything).
		RunAndReturn(seedThenFail(f.program, m.ErrOracleTimeout))

	cfg := searchConfig(4)
	cfg.Operators = []m.Operator{m.OperatorGoto}

	out, err := f.engine(oracle, cfg).Search(context.Background(), f.program, f.seed)
	require.NoError(t, err)

	assert.Equal(t, m.Summary{m.NonLive: 4}, out.Summary)

	for _, record := range f.ui.records {
		assert.Equal(t, m.NonLive, record.Verdict)
		assert.Equal(t, "timeout", record.Reason)

		_, err := f.artifacts.LoadArtifact(record.Artifact, f.program.Class)
		assert.NoError(t, err)
	}
}

func TestEngine_SeedFailure(t *testing.T) {
	f := newEngineFixture(t, counterSeed(t))

	oracle := mocks.NewMockOracle(t)
	oracle.EXPECT().Execute(mock.Anything, mock.Anything).Return(nil, m.ErrOracleUnavailable).Once()

	out, err := f.engine(oracle, searchConfig(5)).Search(context.Background(), f.program, f.seed)
	require.ErrorIs(t, err, m.ErrOracleUnavailable)
	assert.Zero(t, out.Iterations)
}

func TestEngine_TooManySkips(t *testing.T) {
	f := newEngineFixture(t, counterSeed(t))

	cfg := searchConfig(5)
	cfg.Operators = []m.Operator{m.OperatorRemove}
	cfg.MaxSkips = 10

	out, err := f.engine(vmOracle(), cfg).Search(context.Background(), f.program, f.seed)
	require.NoError(t, err)

	assert.Equal(t, StopTooManySkips, out.Stopped)
	assert.Zero(t, out.Iterations)
}

func TestEngine_Interrupted(t *testing.T) {
	f := newEngineFixture(t, counterSeed(t))

	ctx, cancel := context.WithCancel(context.Background())

	oracle := mocks.NewMockOracle(t)
	oracle.EXPECT().Execute(mock.Anything, mock.Anything).
		RunAndReturn(func(context.Context, adapter.Candidate) ([]string, error) {
			cancel()
			return f.program.Seed, nil
		}).Once()

	out, err := f.engine(oracle, searchConfig(5)).Search(ctx, f.program, f.seed)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StopInterrupted, out.Stopped)
	assert.Zero(t, out.Iterations)
}
