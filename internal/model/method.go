package model

import (
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// Method is the mutation bookkeeping of one method of the seed.
type Method struct {
	// Name is the method key: name followed by descriptor.
	Name          string
	Instructions  []Instruction
	CodePositions int
	LocalSlots    int
	// MutationsByHookSite lists accepted descriptors per hook site, most
	// recent first.
	MutationsByHookSite map[int][]Mutation
	AllMutations        []Mutation
	// MutationCount is len(AllMutations)+1: the unmutated baseline counts once.
	MutationCount int
	// LiveTargets accumulates every target of an accepted mutation.
	LiveTargets mapset.Set[string]

	index map[string]int
}

// NewMethod returns an empty method model.
func NewMethod(name string) *Method {
	return &Method{
		Name:                name,
		MutationsByHookSite: map[int][]Mutation{},
		MutationCount:       1,
		LiveTargets:         mapset.NewThreadUnsafeSet[string](),
		index:               map[string]int{},
	}
}

// AddInstruction appends insn in program order.
func (m *Method) AddInstruction(insn Instruction) {
	m.index[insn.ID()] = len(m.Instructions)
	m.Instructions = append(m.Instructions, insn)
}

// Instruction looks an instruction up by identifier.
func (m *Method) Instruction(id string) (Instruction, bool) {
	i, ok := m.index[id]
	if !ok {
		return Instruction{}, false
	}

	return m.Instructions[i], true
}

// Has reports whether id names an instruction of this method.
func (m *Method) Has(id string) bool {
	_, ok := m.index[id]
	return ok
}

// Potential ranks methods for selection: code size over mutation density.
func (m *Method) Potential() float64 {
	return float64(len(m.Instructions)) / float64(m.MutationCount)
}

// HookSites returns the hook sites holding accepted mutations in ascending order.
func (m *Method) HookSites() []int {
	sites := make([]int, 0, len(m.MutationsByHookSite))
	for site := range m.MutationsByHookSite {
		sites = append(sites, site)
	}

	slices.Sort(sites)

	return sites
}

// Mutation returns the accepted descriptor with sequence id.
func (m *Method) Mutation(sequenceID int) (Mutation, bool) {
	for _, mu := range m.AllMutations {
		if mu.SequenceID == sequenceID {
			return mu, true
		}
	}

	return Mutation{}, false
}

// AddMutation records an accepted descriptor. Every target must be an
// instruction of this method.
func (m *Method) AddMutation(mu Mutation) error {
	if mu.Method != m.Name {
		return fmt.Errorf("mutation #%d belongs to %s, not %s", mu.SequenceID, mu.Method, m.Name)
	}

	for _, t := range mu.Targets {
		if !m.Has(t) {
			return &DanglingTargetError{Method: m.Name, Target: t, SequenceID: mu.SequenceID}
		}
	}

	m.MutationsByHookSite[mu.HookSite] = append([]Mutation{mu}, m.MutationsByHookSite[mu.HookSite]...)
	m.AllMutations = append(m.AllMutations, mu)
	m.MutationCount++

	for _, t := range mu.Targets {
		m.LiveTargets.Add(t)
	}

	return nil
}

// RemoveMutation drops the accepted descriptor with sequence id.
func (m *Method) RemoveMutation(sequenceID int) (Mutation, error) {
	i := slices.IndexFunc(m.AllMutations, func(mu Mutation) bool { return mu.SequenceID == sequenceID })
	if i < 0 {
		return Mutation{}, fmt.Errorf("%w: #%d in %s", ErrNothingToRemove, sequenceID, m.Name)
	}

	mu := m.AllMutations[i]
	m.AllMutations = slices.Delete(m.AllMutations, i, i+1)

	site := slices.DeleteFunc(m.MutationsByHookSite[mu.HookSite], func(x Mutation) bool {
		return x.SequenceID == sequenceID
	})
	if len(site) == 0 {
		delete(m.MutationsByHookSite, mu.HookSite)
	} else {
		m.MutationsByHookSite[mu.HookSite] = site
	}

	m.MutationCount--

	return mu, nil
}

// Apply folds an accepted descriptor into the method: removals undo their
// referenced mutation, anything else is added.
func (m *Method) Apply(mu Mutation) error {
	if mu.IsRemoval() {
		_, err := m.RemoveMutation(mu.Removes)
		return err
	}

	return m.AddMutation(mu)
}

// Touched reports whether the method needs rewriting for proposal: it holds
// accepted mutations or proposal targets it.
func (m *Method) Touched(proposal *Mutation) bool {
	return len(m.AllMutations) > 0 || (proposal != nil && proposal.Method == m.Name)
}

func (m *Method) String() string {
	return fmt.Sprintf("%s: %d instructions, %d code positions, %d mutations", m.Name, len(m.Instructions), m.CodePositions, len(m.AllMutations))
}
