package model

import (
	"fmt"
	"strconv"
	"strings"

	"lbcmut.dev/pkg/lbcmut/internal/classfile"
)

// TraceSentinel prefixes every instruction identifier, both in the model and
// in trace lines printed by instrumented classes.
const TraceSentinel = "[INSNID]"

// Instruction is one decoded bytecode instruction of the seed.
type Instruction struct {
	Kind         classfile.Kind
	Payload      string
	Method       string
	Sequence     int
	CodePosition int
	DefUse       bool
	// DefUseKey names the variable a def/use instruction touches, such as
	// "local:3" or "array:I". Empty for other instructions.
	DefUseKey string
}

// ID returns the identifier shared by the model, every rewriting pass and the
// execution trace.
func (i Instruction) ID() string {
	return InstructionID(i.Method, i.Sequence, i.Kind)
}

func (i Instruction) String() string {
	s := fmt.Sprintf("%d - %s: %s", i.Sequence, i.Kind, i.Payload)
	if i.DefUse {
		s += " defuse(" + i.DefUseKey + ")"
	}

	return s
}

// InstructionID builds an identifier from the owning method key, the
// instruction's sequence index and its kind. The payload is deliberately
// excluded so identifiers stay stable when operands are rewritten.
func InstructionID(method string, sequence int, kind classfile.Kind) string {
	return TraceSentinel + method + "-" + strconv.Itoa(sequence) + "-" + kind.String()
}

// ParseInstructionID splits an identifier back into its parts. Method keys
// may contain dashes, so the split happens from the right.
func ParseInstructionID(id string) (method string, sequence int, kind classfile.Kind, err error) {
	rest, ok := strings.CutPrefix(id, TraceSentinel)
	if !ok {
		return "", 0, 0, fmt.Errorf("identifier %q: missing %s prefix", id, TraceSentinel)
	}

	k := strings.LastIndexByte(rest, '-')
	if k < 0 {
		return "", 0, 0, fmt.Errorf("identifier %q: missing kind", id)
	}

	if kind, err = classfile.ParseKind(rest[k+1:]); err != nil {
		return "", 0, 0, fmt.Errorf("identifier %q: %w", id, err)
	}

	rest = rest[:k]

	s := strings.LastIndexByte(rest, '-')
	if s < 0 {
		return "", 0, 0, fmt.Errorf("identifier %q: missing sequence", id)
	}

	if sequence, err = strconv.Atoi(rest[s+1:]); err != nil {
		return "", 0, 0, fmt.Errorf("identifier %q: %w", id, err)
	}

	return rest[:s], sequence, kind, nil
}
