package domain

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c "lbcmut.dev/pkg/lbcmut/internal/classfile"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

func newHeuristics(seed uint64, ops ...m.Operator) *Heuristics {
	cfg := DefaultSearchConfig()
	if len(ops) > 0 {
		cfg.Operators = ops
	}

	return NewHeuristics(rand.New(rand.NewPCG(seed, seed)), cfg)
}

func liveState(program *Program) *m.SearchState {
	state := m.NewSearchState(program.Seed)
	state.Accept(program.Seed, 1)

	return state
}

func TestRankIndex(t *testing.T) {
	tests := []struct {
		n    int
		u    float64
		want int
	}{
		{n: 4, u: 0, want: 0},
		{n: 4, u: 0.5, want: 0},
		{n: 4, u: 0.99, want: 2},
		{n: 1, u: 0.99, want: 0},
	}

	for _, tt := range tests {
		got := rankIndex(tt.n, tt.u, 0.05)
		assert.Equal(t, tt.want, got, "n=%d u=%v", tt.n, tt.u)
		assert.Less(t, got, tt.n)
	}
}

func TestHeuristics_ProposeIsDeterministic(t *testing.T) {
	program := disassemble(t, loopSeed(t))
	state := liveState(program)

	a, b := newHeuristics(7), newHeuristics(7)

	for i := range 20 {
		pa, errA := a.Propose(i, program, state)
		pb, errB := b.Propose(i, program, state)

		assert.Equal(t, errA, errB)
		assert.Equal(t, pa, pb)
	}
}

func TestHeuristics_ProposeGoto(t *testing.T) {
	program := disassemble(t, counterSeed(t))
	method, _ := program.Method(mainKey)

	proposal, err := newHeuristics(1, m.OperatorGoto).Propose(3, program, liveState(program))
	require.NoError(t, err)

	assert.Equal(t, mainKey, proposal.Method)
	assert.Equal(t, 3, proposal.SequenceID)
	assert.Equal(t, m.NoRemoval, proposal.Removes)
	require.Len(t, proposal.Targets, 1)
	assert.True(t, method.Has(proposal.Targets[0]))

	hook, ok := method.Instruction(proposal.HookInstruction)
	require.True(t, ok)
	assert.Equal(t, hook.CodePosition, proposal.HookSite)
}

func TestHeuristics_SwitchTargetsAreDistinct(t *testing.T) {
	program := disassemble(t, loopSeed(t))
	h := newHeuristics(3, m.OperatorLookupSwitch)

	for i := range 10 {
		proposal, err := h.Propose(i, program, liveState(program))
		require.NoError(t, err)

		assert.NotEmpty(t, proposal.Targets)
		assert.LessOrEqual(t, len(proposal.Targets), 3)

		seen := map[string]bool{}
		for _, id := range proposal.Targets {
			assert.False(t, seen[id], "duplicate target %s", id)
			seen[id] = true
		}
	}
}

func TestHeuristics_NoLiveMethod(t *testing.T) {
	program := disassemble(t, counterSeed(t))

	_, err := newHeuristics(1).Propose(0, program, m.NewSearchState(program.Seed))
	assert.ErrorIs(t, err, m.ErrNoLiveMethod)
}

func TestHeuristics_Removal(t *testing.T) {
	program := disassemble(t, counterSeed(t))
	state := liveState(program)
	h := newHeuristics(1, m.OperatorRemove)

	_, err := h.Propose(0, program, state)
	require.ErrorIs(t, err, m.ErrNothingToRemove)

	method, _ := program.Method(mainKey)
	require.NoError(t, method.Apply(m.Mutation{Method: mainKey, Operator: m.OperatorThrow, HookSite: 1, SequenceID: 4, Removes: m.NoRemoval}))

	proposal, err := h.Propose(5, program, state)
	require.NoError(t, err)

	assert.Equal(t, m.OperatorRemove, proposal.Operator)
	assert.Equal(t, 4, proposal.Removes)
	assert.Equal(t, 5, proposal.SequenceID)
	assert.Equal(t, 1, proposal.HookSite)
}

func TestHeuristics_TargetPrefersNeverLive(t *testing.T) {
	program := disassemble(t, counterSeed(t))
	method, _ := program.Method(mainKey)
	cold := instruction(t, method, c.KindIinc, 0).ID()

	state := m.NewSearchState(program.Seed)

	var trace []string
	for _, id := range program.Seed {
		if id != cold {
			trace = append(trace, id)
		}
	}

	state.Accept(trace, 0.5)

	cfg := DefaultSearchConfig()
	cfg.ProbLow, cfg.ProbHigh = 0, 0
	h := NewHeuristics(rand.New(rand.NewPCG(9, 9)), cfg)

	for range 10 {
		assert.Equal(t, []string{cold}, h.Targets(method, state, 1))
	}
}

func TestHeuristics_MethodFavoursPotential(t *testing.T) {
	program := disassemble(t, loopSeed(t))
	state := liveState(program)
	h := newHeuristics(11)

	picks := map[string]int{}
	for range 200 {
		method, err := h.Method(program.Methods, state)
		require.NoError(t, err)
		picks[method.Name]++
	}

	assert.Greater(t, picks[mainKey], picks["square(I)I"])
}

func TestDefUseOverlap(t *testing.T) {
	insns := []m.Instruction{
		{DefUse: true, DefUseKey: "local:1"},
		{DefUse: true, DefUseKey: "local:2"},
		{},
		{DefUse: true, DefUseKey: "local:1"},
	}

	assert.Equal(t, 0, defUseOverlap(insns, 0))
	assert.Equal(t, 1, defUseOverlap(insns, 2))
	assert.Equal(t, 0, defUseOverlap(insns, 4))
}

func TestSearchConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultSearchConfig().Validate())

	cfg := DefaultSearchConfig()
	cfg.Epsilon = 1
	cfg.ProbLow = 0.9
	cfg.LoopCount = 0
	cfg.Operators = nil

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "epsilon")
	assert.Contains(t, err.Error(), "probabilities")
	assert.Contains(t, err.Error(), "loop count")
	assert.Contains(t, err.Error(), "no operators")
}
