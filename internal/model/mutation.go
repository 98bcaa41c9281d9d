// Package model defines the data structures of the mutation engine.
package model

import (
	"fmt"
	"strings"
)

// Operator is the control-flow hijack a mutation injects.
type Operator string

const (
	// OperatorGoto jumps to a single target instruction.
	OperatorGoto Operator = "GOTO"
	// OperatorReturn returns from the method with a default value.
	OperatorReturn Operator = "RETURN"
	// OperatorThrow raises a java.lang.RuntimeException.
	OperatorThrow Operator = "THROW"
	// OperatorLookupSwitch dispatches to one of several targets via lookupswitch.
	OperatorLookupSwitch Operator = "LOOKUPSWITCH"
	// OperatorTableSwitch dispatches to one of several targets via tableswitch.
	OperatorTableSwitch Operator = "TABLESWITCH"
	// OperatorRemove undoes a previously accepted mutation.
	OperatorRemove Operator = "REMOVE"
)

// Operators lists every operator in declaration order.
var Operators = []Operator{
	OperatorGoto,
	OperatorReturn,
	OperatorThrow,
	OperatorLookupSwitch,
	OperatorTableSwitch,
	OperatorRemove,
}

// ParseOperator matches an operator name case-insensitively.
func ParseOperator(s string) (Operator, error) {
	for _, op := range Operators {
		if strings.EqualFold(string(op), strings.TrimSpace(s)) {
			return op, nil
		}
	}

	return "", fmt.Errorf("unknown operator %q", s)
}

// TargetCount returns how many target sites the operator draws.
func (o Operator) TargetCount() int {
	switch o {
	case OperatorGoto:
		return 1
	case OperatorLookupSwitch, OperatorTableSwitch:
		return 3
	default:
		return 0
	}
}

// NoRemoval marks a descriptor that does not undo another one.
const NoRemoval = -1

// EntryHookSite anchors a hijack at method entry, before the first code
// position marker.
const EntryHookSite = -1

// Mutation describes one proposed or accepted hijack. It is treated as an
// immutable value once created.
type Mutation struct {
	Method   string   `yaml:"method"`
	Operator Operator `yaml:"operator"`
	// HookSite is the code position index the hijack is anchored to.
	HookSite int `yaml:"hook_site"`
	// HookInstruction is the instruction the hook site was derived from.
	HookInstruction string `yaml:"hook_instruction,omitempty"`
	// Targets holds instruction identifiers in draw order, without duplicates.
	Targets    []string `yaml:"targets,flow,omitempty"`
	SequenceID int      `yaml:"sequence_id"`
	Removes    int      `yaml:"removes"`
}

// IsRemoval reports whether the descriptor undoes a prior mutation.
func (m Mutation) IsRemoval() bool {
	return m.Operator == OperatorRemove
}

// Artifact returns the mutant class name for this descriptor.
func (m Mutation) Artifact(seedClass string) string {
	return ArtifactName(seedClass, m.SequenceID)
}

func (m Mutation) String() string {
	if m.IsRemoval() {
		return fmt.Sprintf("#%d %s %s removes #%d", m.SequenceID, m.Operator, m.Method, m.Removes)
	}

	return fmt.Sprintf("#%d %s %s@%d -> %v", m.SequenceID, m.Operator, m.Method, m.HookSite, m.Targets)
}

// ArtifactName names the mutant generated at sequence id from seedClass.
func ArtifactName(seedClass string, sequenceID int) string {
	return fmt.Sprintf("%s_MUTANT_%d", seedClass, sequenceID)
}
