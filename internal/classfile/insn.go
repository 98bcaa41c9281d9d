package classfile

import "math"

// Access flags used when building classes.
const (
	AccPublic uint16 = 0x0001
	AccStatic uint16 = 0x0008
	AccSuper  uint16 = 0x0020
)

// NewLabel returns an unplaced label.
func NewLabel(name string, synthetic bool) *Label {
	return &Label{Name: name, Synthetic: synthetic}
}

// Mark places l in an instruction stream.
func Mark(l *Label) *Insn {
	return &Insn{Kind: KindLabel, Label: l, Synthetic: l.Synthetic}
}

// Op returns an instruction without operands.
func Op(op Opcode) *Insn {
	return &Insn{Kind: KindInsn, Op: op}
}

// Var returns a load, store or ret of slot.
func Var(op Opcode, slot int) *Insn {
	return &Insn{Kind: KindVar, Op: op, Var: slot}
}

// IincInsn returns an iinc of slot by delta.
func IincInsn(slot, delta int) *Insn {
	return &Insn{Kind: KindIinc, Op: Iinc, Var: slot, Operand: delta}
}

// Jump returns a branch to target.
func Jump(op Opcode, target *Label) *Insn {
	return &Insn{Kind: KindJump, Op: op, Target: target}
}

// Ref returns a field, method or type instruction on constant idx.
func Ref(op Opcode, idx uint16) *Insn {
	return &Insn{Kind: op.Kind(), Op: op, Index: idx}
}

// LdcInsn loads constant idx.
func LdcInsn(idx uint16) *Insn {
	return &Insn{Kind: KindLdc, Op: Ldc, Index: idx}
}

// TableSwitch dispatches keys low..low+len(targets)-1.
func TableSwitch(low int32, dflt *Label, targets ...*Label) *Insn {
	return &Insn{Kind: KindTableSwitch, Op: Tableswitch, Low: low, Default: dflt, Targets: targets}
}

// LookupSwitch dispatches keys[i] to targets[i]. Keys must be sorted.
func LookupSwitch(dflt *Label, keys []int32, targets []*Label) *Insn {
	return &Insn{Kind: KindLookupSwitch, Op: Lookupswitch, Default: dflt, Keys: keys, Targets: targets}
}

// PushInt returns the shortest instruction pushing v.
func PushInt(pool *ConstantPool, v int) *Insn {
	switch {
	case v >= -1 && v <= 5:
		return Op(Opcode(int(Iconst0) + v))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return &Insn{Kind: KindInt, Op: Bipush, Operand: v}
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return &Insn{Kind: KindInt, Op: Sipush, Operand: v}
	default:
		return LdcInsn(pool.AddInteger(int32(v)))
	}
}

// Synthetic flags insns as pass-inserted code and returns them.
func Synthetic(insns ...*Insn) []*Insn {
	for _, i := range insns {
		i.Synthetic = true
		if i.Kind == KindLabel {
			i.Label.Synthetic = true
		}
	}

	return insns
}
