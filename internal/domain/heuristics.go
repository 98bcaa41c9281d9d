package domain

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

// maxTargetDraws bounds the rejection sampling of a single target site. When
// no draw qualifies the last one is used.
const maxTargetDraws = 1000

// SearchConfig parameterizes the search loop.
type SearchConfig struct {
	m.Parameters

	// MaxSkips ends the run after this many consecutive proposals that could
	// not be built.
	MaxSkips int
	// MaxOracleFailures ends the run after this many consecutive iterations
	// the oracle could not execute.
	MaxOracleFailures int
	StackMargin       int
}

// DefaultSearchConfig returns the reference constants.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Parameters: m.Parameters{
			MaxIterations: 10,
			LoopCount:     5,
			Beta:          0.08,
			ProbLow:       0.2,
			ProbHigh:      0.8,
			Epsilon:       0.05,
			Operators:     slices.Clone(m.Operators),
		},
		MaxSkips:          1000,
		MaxOracleFailures: 3,
		StackMargin:       2,
	}
}

// Validate checks the constants are usable.
func (c SearchConfig) Validate() error {
	var errs []error

	if c.Epsilon <= 0 || c.Epsilon >= 1 {
		errs = append(errs, fmt.Errorf("epsilon %v not in (0, 1)", c.Epsilon))
	}

	if c.ProbLow < 0 || c.ProbLow > c.ProbHigh || c.ProbHigh > 1 {
		errs = append(errs, fmt.Errorf("probabilities %v/%v do not satisfy 0 <= low <= high <= 1", c.ProbLow, c.ProbHigh))
	}

	if c.Beta < 0 {
		errs = append(errs, fmt.Errorf("beta %v is negative", c.Beta))
	}

	if c.LoopCount < 1 {
		errs = append(errs, fmt.Errorf("loop count %d is below 1", c.LoopCount))
	}

	if c.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("max iterations %d is negative", c.MaxIterations))
	}

	if len(c.Operators) == 0 {
		errs = append(errs, errors.New("no operators configured"))
	}

	return errors.Join(errs...)
}

// RewriteConfig returns the pass constants of c.
func (c SearchConfig) RewriteConfig() RewriteConfig {
	return RewriteConfig{LoopCount: c.LoopCount, StackMargin: c.StackMargin}
}

// Heuristics draws every random choice of the search from one source.
type Heuristics struct {
	rng    *rand.Rand
	config SearchConfig
}

// NewHeuristics creates Heuristics drawing from rng.
func NewHeuristics(rng *rand.Rand, cfg SearchConfig) *Heuristics {
	return &Heuristics{rng: rng, config: cfg}
}

// Propose builds the descriptor for iteration sequenceID. It fails with
// ErrNoLiveMethod when nothing ran in the current trace and with
// ErrNothingToRemove when a removal is drawn for an unmutated method.
func (h *Heuristics) Propose(sequenceID int, program *Program, state *m.SearchState) (m.Mutation, error) {
	op := h.Operator()

	method, err := h.Method(program.Methods, state)
	if err != nil {
		return m.Mutation{}, err
	}

	if op == m.OperatorRemove {
		return h.Removal(method, sequenceID)
	}

	hook, err := h.HookPoint(method, state)
	if err != nil {
		return m.Mutation{}, err
	}

	return m.Mutation{
		Method:          method.Name,
		Operator:        op,
		HookSite:        hook.CodePosition,
		HookInstruction: hook.ID(),
		Targets:         h.Targets(method, state, op.TargetCount()),
		SequenceID:      sequenceID,
		Removes:         m.NoRemoval,
	}, nil
}

// Operator draws uniformly from the configured operators. Repeated entries
// weight the draw.
func (h *Heuristics) Operator() m.Operator {
	ops := h.config.Operators
	return ops[h.rng.IntN(len(ops))]
}

// Method picks a method that ran in the current trace. Methods are ranked by
// potential, highest first, and the rank is drawn from a truncated
// exponential so the best ranks are strongly favoured.
func (h *Heuristics) Method(methods []*m.Method, state *m.SearchState) (*m.Method, error) {
	var live []*m.Method

	for _, method := range methods {
		if slices.ContainsFunc(method.Instructions, func(insn m.Instruction) bool { return state.IsCurrentlyLive(insn.ID()) }) {
			live = append(live, method)
		}
	}

	if len(live) == 0 {
		return nil, m.ErrNoLiveMethod
	}

	slices.SortStableFunc(live, func(a, b *m.Method) int {
		if c := cmp.Compare(b.Potential(), a.Potential()); c != 0 {
			return c
		}

		return cmp.Compare(a.Name, b.Name)
	})

	return live[rankIndex(len(live), h.rng.Float64(), h.config.Epsilon)], nil
}

// rankIndex maps u in [0, 1) to floor(n*ln(1-u)/ln(epsilon)) mod n.
func rankIndex(n int, u, epsilon float64) int {
	k := int(math.Floor(float64(n) * math.Log(1-u) / math.Log(epsilon)))
	return k % n
}

// HookPoint draws two candidates from the live part of method and keeps the
// one splitting the def/use storage more evenly: the one with more keys
// used both before and after it. Ties go to the first draw.
func (h *Heuristics) HookPoint(method *m.Method, state *m.SearchState) (m.Instruction, error) {
	var live []m.Instruction

	for _, insn := range method.Instructions {
		if state.IsCurrentlyLive(insn.ID()) {
			live = append(live, insn)
		}
	}

	if len(live) == 0 {
		live = method.Instructions
	}

	if len(live) == 0 {
		return m.Instruction{}, fmt.Errorf("method %s has no instructions", method.Name)
	}

	a, b := h.rng.IntN(len(live)), h.rng.IntN(len(live))
	if defUseOverlap(live, b) > defUseOverlap(live, a) {
		return live[b], nil
	}

	return live[a], nil
}

// defUseOverlap counts def/use keys occurring both strictly before at and at
// or after it.
func defUseOverlap(insns []m.Instruction, at int) int {
	before := mapset.NewThreadUnsafeSet[string]()
	after := mapset.NewThreadUnsafeSet[string]()

	for i, insn := range insns {
		if !insn.DefUse {
			continue
		}

		if i < at {
			before.Add(insn.DefUseKey)
		} else {
			after.Add(insn.DefUseKey)
		}
	}

	return before.Intersect(after).Cardinality()
}

// Targets draws n target sites of method. Duplicates are dropped, so fewer
// than n may be returned.
func (h *Heuristics) Targets(method *m.Method, state *m.SearchState, n int) []string {
	if n == 0 || len(method.Instructions) == 0 {
		return nil
	}

	targets := make([]string, 0, n)

	for range n {
		if id := h.target(method, state); !slices.Contains(targets, id) {
			targets = append(targets, id)
		}
	}

	return targets
}

// target prefers instructions that never ran, then ones that did not run in
// the current trace.
func (h *Heuristics) target(method *m.Method, state *m.SearchState) string {
	var id string

	for range maxTargetDraws {
		id = method.Instructions[h.rng.IntN(len(method.Instructions))].ID()
		r := h.rng.Float64()

		switch {
		case !state.EverLive(id):
			return id
		case !state.IsCurrentlyLive(id) && r < h.config.ProbHigh:
			return id
		case state.IsCurrentlyLive(id) && r < h.config.ProbLow:
			return id
		}
	}

	return id
}

// Removal picks an accepted mutation of method uniformly by hook site, then
// by descriptor at that site, and wraps it in a REMOVE descriptor.
func (h *Heuristics) Removal(method *m.Method, sequenceID int) (m.Mutation, error) {
	sites := method.HookSites()
	if method.MutationCount <= 1 || len(sites) == 0 {
		return m.Mutation{}, fmt.Errorf("%w: %s", m.ErrNothingToRemove, method.Name)
	}

	at := method.MutationsByHookSite[sites[h.rng.IntN(len(sites))]]
	chosen := at[h.rng.IntN(len(at))]

	return m.Mutation{
		Method:          method.Name,
		Operator:        m.OperatorRemove,
		HookSite:        chosen.HookSite,
		HookInstruction: chosen.HookInstruction,
		SequenceID:      sequenceID,
		Removes:         chosen.SequenceID,
	}, nil
}
