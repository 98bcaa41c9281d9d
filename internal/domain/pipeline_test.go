package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lbcmut.dev/pkg/lbcmut/internal/adapter"
	c "lbcmut.dev/pkg/lbcmut/internal/classfile"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

func newPipeline(loopCount int) *Pipeline {
	return NewPipeline(adapter.NewLocalClassCodec(), RewriteConfig{LoopCount: loopCount, StackMargin: 2})
}

// backEdge jumps from the return back to the increment of counterSeed.
func backEdge(t *testing.T, method *m.Method, sequenceID int) m.Mutation {
	t.Helper()

	ret := instruction(t, method, c.KindInsn, 2)
	require.Equal(t, 7, ret.Sequence)

	return m.Mutation{
		Method:          method.Name,
		Operator:        m.OperatorGoto,
		HookSite:        ret.CodePosition,
		HookInstruction: ret.ID(),
		Targets:         []string{instruction(t, method, c.KindIinc, 0).ID()},
		SequenceID:      sequenceID,
		Removes:         m.NoRemoval,
	}
}

func TestPipeline_LoopIsBounded(t *testing.T) {
	seed := counterSeed(t)
	program := disassemble(t, seed)
	method, _ := program.Method(mainKey)

	assert.Equal(t, "1\n", execute(t, seed))

	proposal := backEdge(t, method, 0)

	mutant, err := newPipeline(3).Mutate(seed, program, &proposal)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n4\n", execute(t, mutant))

	mutant, err = newPipeline(1).Mutate(seed, program, &proposal)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n", execute(t, mutant))
}

func TestPipeline_IdentifiersSurviveMutation(t *testing.T) {
	seed := counterSeed(t)
	program := disassemble(t, seed)
	method, _ := program.Method(mainKey)

	accepted := backEdge(t, method, 0)
	require.NoError(t, method.Apply(accepted))

	proposal := m.Mutation{
		Method:     mainKey,
		Operator:   m.OperatorThrow,
		HookSite:   1,
		SequenceID: 1,
		Removes:    m.NoRemoval,
	}

	mutant, err := newPipeline(2).Mutate(seed, program, &proposal)
	require.NoError(t, err)

	again := disassemble(t, mutant)
	assert.Equal(t, program.Seed, again.Seed)

	remutated, _ := again.Method(mainKey)
	assert.Equal(t, method.CodePositions, remutated.CodePositions)
	assert.Equal(t, positions(method), positions(remutated))
}

func TestPipeline_RemovalRestoresBehaviour(t *testing.T) {
	seed := counterSeed(t)
	program := disassemble(t, seed)
	method, _ := program.Method(mainKey)

	require.NoError(t, method.Apply(backEdge(t, method, 0)))

	p := newPipeline(3)

	mutant, err := p.Mutate(seed, program, nil)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n4\n", execute(t, mutant))

	removal := m.Mutation{Method: mainKey, Operator: m.OperatorRemove, HookSite: 2, SequenceID: 1, Removes: 0}

	mutant, err = p.Mutate(seed, program, &removal)
	require.NoError(t, err)
	assert.Equal(t, "1\n", execute(t, mutant))
}

func TestPipeline_Operators(t *testing.T) {
	tests := []struct {
		name     string
		operator m.Operator
		hookSite int
		want     string
	}{
		{name: "return at entry", operator: m.OperatorReturn, hookSite: m.EntryHookSite, want: ""},
		{name: "return before print", operator: m.OperatorReturn, hookSite: 1, want: ""},
		{name: "switch back to increment", operator: m.OperatorTableSwitch, hookSite: 2, want: "1\n2\n3\n"},
		{name: "lookup back to increment", operator: m.OperatorLookupSwitch, hookSite: 2, want: "1\n2\n3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seed := counterSeed(t)
			program := disassemble(t, seed)
			method, _ := program.Method(mainKey)

			proposal := m.Mutation{
				Method:     mainKey,
				Operator:   tt.operator,
				HookSite:   tt.hookSite,
				SequenceID: 4,
				Removes:    m.NoRemoval,
			}
			if tt.operator.TargetCount() > 0 {
				proposal.Targets = []string{instruction(t, method, c.KindIinc, 0).ID()}
			}

			mutant, err := newPipeline(2).Mutate(seed, program, &proposal)
			require.NoError(t, err)
			assert.Equal(t, tt.want, execute(t, mutant))
		})
	}
}

func TestPipeline_ThrowEndsExecution(t *testing.T) {
	seed := counterSeed(t)
	program := disassemble(t, seed)

	proposal := m.Mutation{Method: mainKey, Operator: m.OperatorThrow, HookSite: 2, SequenceID: 0, Removes: m.NoRemoval}

	mutant, err := newPipeline(1).Mutate(seed, program, &proposal)
	require.NoError(t, err)

	trace, err := adapter.NewVMOracle(adapter.VMOracleConfig{MaxSteps: 10_000}).Execute(context.Background(),
		instrumented(t, program, mutant))
	require.NoError(t, err)

	method, _ := program.Method(mainKey)
	assert.Equal(t, program.Seed[:7], trace)
	assert.NotContains(t, trace, method.Instructions[7].ID())
}

func TestPipeline_DanglingTarget(t *testing.T) {
	seed := counterSeed(t)
	program := disassemble(t, seed)

	proposal := m.Mutation{
		Method:     mainKey,
		Operator:   m.OperatorGoto,
		HookSite:   0,
		Targets:    []string{m.InstructionID(mainKey, 99, c.KindInsn)},
		SequenceID: 5,
		Removes:    m.NoRemoval,
	}

	_, err := newPipeline(2).Mutate(seed, program, &proposal)
	require.ErrorIs(t, err, m.ErrDanglingTarget)

	var dangling *m.DanglingTargetError
	require.ErrorAs(t, err, &dangling)
	assert.Equal(t, 5, dangling.SequenceID)
}

func TestPipeline_UntouchedMethodsAreKept(t *testing.T) {
	seed := loopSeed(t)
	program := disassemble(t, seed)

	proposal := m.Mutation{Method: "square(I)I", Operator: m.OperatorReturn, HookSite: 0, SequenceID: 0, Removes: m.NoRemoval}

	mutant, err := newPipeline(2).Mutate(seed, program, &proposal)
	require.NoError(t, err)

	assert.Equal(t, "0\n1\n4\n9\n16\nend\n", execute(t, seed))
	// counters are reset on every call
	assert.Equal(t, "0\n0\n0\n0\n0\nend\n", execute(t, mutant))
}

func TestPipeline_InstrumentedTraceMatchesSeed(t *testing.T) {
	seed := counterSeed(t)
	program := disassemble(t, seed)

	trace, err := adapter.NewVMOracle(adapter.VMOracleConfig{MaxSteps: 10_000}).Execute(context.Background(),
		instrumented(t, program, seed))
	require.NoError(t, err)

	assert.Equal(t, program.Seed, trace)

	state := m.NewSearchState(program.Seed)
	assert.InDelta(t, 1.0, state.Coverage(trace), 1e-9)
}

func instrumented(t *testing.T, program *Program, binary []byte) adapter.Candidate {
	t.Helper()

	data, err := newPipeline(1).Instrument(binary, program)
	require.NoError(t, err)

	return adapter.Candidate{Name: "candidate", Class: program.Class, Binary: data}
}
