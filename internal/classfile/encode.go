package classfile

import (
	"fmt"
	"math"
)

const maxCodeLength = 65535

// Encode serializes c. Code layout, branch offsets and line numbers are
// recomputed from the instruction streams; local variable tables are dropped
// and frames are handled according to mode. Encode may add constant pool
// entries for attribute and marker names.
func Encode(c *Class, mode FrameMode) ([]byte, error) {
	methods := make([][]Attribute, len(c.Methods))

	for i, m := range c.Methods {
		if m.NameIndex == 0 {
			m.NameIndex = c.Pool.AddUtf8(m.Name)
		}

		if m.DescriptorIndex == 0 {
			m.DescriptorIndex = c.Pool.AddUtf8(m.Descriptor)
		}

		attrs := append([]Attribute(nil), m.Attributes...)

		if m.Code != nil {
			data, err := encodeCode(m.Code, c.Pool, mode)
			if err != nil {
				return nil, fmt.Errorf("%w: method %s: %w", ErrFormat, m.Key(), err)
			}

			attrs = append([]Attribute{{NameIndex: c.Pool.AddUtf8(attrCode), Data: data}}, attrs...)
		}

		methods[i] = attrs
	}

	major, minor := c.Major, c.Minor
	if mode == FramesDrop && major > 50 && !needsModernVerifier(c.Pool) {
		major, minor = 50, 0
	}

	w := &byteWriter{}
	w.u32(classMagic)
	w.u16(minor)
	w.u16(major)
	c.Pool.write(w)
	w.u16(c.AccessFlags)
	w.u16(c.ThisClass)
	w.u16(c.SuperClass)
	w.u16(uint16(len(c.Interfaces)))

	for _, i := range c.Interfaces {
		w.u16(i)
	}

	w.u16(uint16(len(c.Fields)))

	for _, f := range c.Fields {
		writeMember(w, f.AccessFlags, f.NameIndex, f.DescriptorIndex, f.Attributes)
	}

	w.u16(uint16(len(c.Methods)))

	for i, m := range c.Methods {
		writeMember(w, m.AccessFlags, m.NameIndex, m.DescriptorIndex, methods[i])
	}

	writeAttributes(w, c.Attributes)

	return w.buf, nil
}

// needsModernVerifier reports whether the pool holds constant kinds that
// require a class version above 50.
func needsModernVerifier(p *ConstantPool) bool {
	for _, t := range []Tag{TagMethodHandle, TagMethodType, TagDynamic, TagInvokeDynamic, TagModule, TagPackage} {
		if p.Has(t) {
			return true
		}
	}

	return false
}

func writeMember(w *byteWriter, access, name, desc uint16, attrs []Attribute) {
	w.u16(access)
	w.u16(name)
	w.u16(desc)
	writeAttributes(w, attrs)
}

func writeAttributes(w *byteWriter, attrs []Attribute) {
	w.u16(uint16(len(attrs)))

	for _, a := range attrs {
		w.u16(a.NameIndex)
		w.u32(uint32(len(a.Data)))
		w.bytes(a.Data)
	}
}

type layout struct {
	offsets []int
	wide    map[*Insn]bool
	length  int
}

// layoutCode assigns offsets to every element, widening goto and jsr until
// all branch displacements fit.
func layoutCode(insns []*Insn, pool *ConstantPool) (*layout, error) {
	l := &layout{offsets: make([]int, len(insns)), wide: map[*Insn]bool{}}
	placed := map[*Label]bool{}

	for _, insn := range insns {
		if insn.Kind == KindLabel {
			if insn.Label == nil {
				return nil, fmt.Errorf("label element without label")
			}

			placed[insn.Label] = true
		}
	}

	for _, insn := range insns {
		for _, t := range branchTargets(insn) {
			if t == nil || !placed[t] {
				return nil, fmt.Errorf("%s refers to a label outside the method", insn.Op)
			}
		}
	}

	for {
		off := 0

		for i, insn := range insns {
			l.offsets[i] = off
			if insn.Kind == KindLabel {
				insn.Label.offset = off
				continue
			}

			size, err := insnSize(insn, off, l.wide[insn], pool)
			if err != nil {
				return nil, err
			}

			off += size
		}

		if off > maxCodeLength {
			return nil, fmt.Errorf("code length %d exceeds %d", off, maxCodeLength)
		}

		l.length = off
		changed := false

		for i, insn := range insns {
			if insn.Kind != KindJump || l.wide[insn] {
				continue
			}

			delta := insn.Target.offset - l.offsets[i]
			if delta >= math.MinInt16 && delta <= math.MaxInt16 {
				continue
			}

			if insn.Op != Goto && insn.Op != Jsr {
				return nil, fmt.Errorf("%s displacement %d out of range", insn.Op, delta)
			}

			l.wide[insn] = true
			changed = true
		}

		if !changed {
			return l, nil
		}
	}
}

func branchTargets(insn *Insn) []*Label {
	switch insn.Kind {
	case KindJump:
		return []*Label{insn.Target}
	case KindTableSwitch, KindLookupSwitch:
		return append([]*Label{insn.Default}, insn.Targets...)
	default:
		return nil
	}
}

func isWideConstant(pool *ConstantPool, idx uint16) bool {
	c, err := pool.Get(idx)

	return err == nil && (c.Tag == TagLong || c.Tag == TagDouble)
}

func insnSize(insn *Insn, off int, wide bool, pool *ConstantPool) (int, error) {
	switch insn.Kind {
	case KindInsn:
		return 1, nil
	case KindInt:
		if insn.Op == Sipush {
			return 3, nil
		}

		return 2, nil
	case KindVar:
		switch {
		case insn.Var < 0 || insn.Var > math.MaxUint16:
			return 0, fmt.Errorf("local slot %d out of range", insn.Var)
		case insn.Op != Ret && insn.Var <= 3:
			return 1, nil
		case insn.Var <= math.MaxUint8:
			return 2, nil
		default:
			return 4, nil
		}
	case KindIinc:
		if insn.Var <= math.MaxUint8 && insn.Operand >= math.MinInt8 && insn.Operand <= math.MaxInt8 {
			return 3, nil
		}

		return 6, nil
	case KindLdc:
		if insn.Op == Ldc2W || isWideConstant(pool, insn.Index) || insn.Index > math.MaxUint8 {
			return 3, nil
		}

		return 2, nil
	case KindJump:
		if wide {
			return 5, nil
		}

		return 3, nil
	case KindTableSwitch:
		return 1 + switchPadding(off) + 12 + 4*len(insn.Targets), nil
	case KindLookupSwitch:
		return 1 + switchPadding(off) + 8 + 8*len(insn.Targets), nil
	case KindField, KindType:
		return 3, nil
	case KindMethod:
		if insn.Op == Invokeinterface {
			return 5, nil
		}

		return 3, nil
	case KindInvokeDynamic:
		return 5, nil
	case KindMultiANewArray:
		return 4, nil
	default:
		return 0, fmt.Errorf("unknown element kind %s", insn.Kind)
	}
}

func encodeCode(code *Code, pool *ConstantPool, mode FrameMode) ([]byte, error) {
	l, err := layoutCode(code.Insns, pool)
	if err != nil {
		return nil, err
	}

	body := &byteWriter{}

	var (
		lines     [][2]int
		synthetic []int
		markers   []*Label
	)

	for i, insn := range code.Insns {
		pc := l.offsets[i]

		if insn.Kind == KindLabel {
			switch {
			case insn.Label.Synthetic:
				markers = append(markers, insn.Label)
			case insn.Label.Line > 0:
				lines = append(lines, [2]int{pc, insn.Label.Line})
			}

			continue
		}

		if insn.Synthetic {
			synthetic = append(synthetic, pc)
		}

		if err := emitInsn(body, insn, pc, l.wide[insn], pool); err != nil {
			return nil, err
		}
	}

	if body.len() != l.length {
		return nil, fmt.Errorf("layout mismatch: emitted %d bytes, planned %d", body.len(), l.length)
	}

	w := &byteWriter{}
	w.u16(uint16(code.MaxStack))
	w.u16(uint16(code.MaxLocals))
	w.u32(uint32(body.len()))
	w.bytes(body.buf)
	w.u16(uint16(len(code.Handlers)))

	for _, h := range code.Handlers {
		if h.Start == nil || h.End == nil || h.Handler == nil {
			return nil, fmt.Errorf("exception handler with unset label")
		}

		w.u16(uint16(h.Start.offset))
		w.u16(uint16(h.End.offset))
		w.u16(uint16(h.Handler.offset))
		w.u16(h.CatchType)
	}

	var attrs []Attribute

	if len(lines) > 0 {
		a := &byteWriter{}
		a.u16(uint16(len(lines)))

		for _, e := range lines {
			a.u16(uint16(e[0]))
			a.u16(uint16(e[1]))
		}

		attrs = append(attrs, Attribute{NameIndex: pool.AddUtf8(attrLineNumberTable), Data: a.buf})
	}

	if mode == FramesKeep && code.frames != nil {
		attrs = append(attrs, Attribute{NameIndex: pool.AddUtf8(attrStackMapTable), Data: code.frames})
	}

	if len(synthetic) > 0 {
		a := &byteWriter{}
		a.u16(uint16(len(synthetic)))

		for _, pc := range synthetic {
			a.u16(uint16(pc))
		}

		attrs = append(attrs, Attribute{NameIndex: pool.AddUtf8(attrSynthetic), Data: a.buf})
	}

	if len(markers) > 0 {
		a := &byteWriter{}
		a.u16(uint16(len(markers)))

		for _, m := range markers {
			a.u16(uint16(m.offset))
			a.u16(pool.AddUtf8(m.Name))
		}

		attrs = append(attrs, Attribute{NameIndex: pool.AddUtf8(attrMarkers), Data: a.buf})
	}

	writeAttributes(w, attrs)

	return w.buf, nil
}

func emitInsn(w *byteWriter, insn *Insn, pc int, wide bool, pool *ConstantPool) error {
	switch insn.Kind {
	case KindInsn:
		w.u8(uint8(insn.Op))
	case KindInt:
		switch insn.Op {
		case Sipush:
			if insn.Operand < math.MinInt16 || insn.Operand > math.MaxInt16 {
				return fmt.Errorf("sipush operand %d out of range", insn.Operand)
			}

			w.u8(uint8(insn.Op))
			w.u16(uint16(int16(insn.Operand)))
		case Bipush:
			if insn.Operand < math.MinInt8 || insn.Operand > math.MaxInt8 {
				return fmt.Errorf("bipush operand %d out of range", insn.Operand)
			}

			w.u8(uint8(insn.Op))
			w.u8(uint8(int8(insn.Operand)))
		default:
			w.u8(uint8(insn.Op))
			w.u8(uint8(insn.Operand))
		}
	case KindVar:
		if short, ok := shortVarForm(insn.Op, insn.Var); ok {
			w.u8(uint8(short))
		} else if insn.Var <= math.MaxUint8 {
			w.u8(uint8(insn.Op))
			w.u8(uint8(insn.Var))
		} else {
			w.u8(uint8(Wide))
			w.u8(uint8(insn.Op))
			w.u16(uint16(insn.Var))
		}
	case KindIinc:
		if insn.Var <= math.MaxUint8 && insn.Operand >= math.MinInt8 && insn.Operand <= math.MaxInt8 {
			w.u8(uint8(Iinc))
			w.u8(uint8(insn.Var))
			w.u8(uint8(int8(insn.Operand)))
		} else {
			w.u8(uint8(Wide))
			w.u8(uint8(Iinc))
			w.u16(uint16(insn.Var))
			w.u16(uint16(int16(insn.Operand)))
		}
	case KindLdc:
		switch {
		case insn.Op == Ldc2W || isWideConstant(pool, insn.Index):
			w.u8(uint8(Ldc2W))
			w.u16(insn.Index)
		case insn.Index > math.MaxUint8:
			w.u8(uint8(LdcW))
			w.u16(insn.Index)
		default:
			w.u8(uint8(Ldc))
			w.u8(uint8(insn.Index))
		}
	case KindJump:
		delta := insn.Target.offset - pc
		if wide {
			op := GotoW
			if insn.Op == Jsr {
				op = JsrW
			}

			w.u8(uint8(op))
			w.u32(uint32(int32(delta)))
		} else {
			w.u8(uint8(insn.Op))
			w.u16(uint16(int16(delta)))
		}
	case KindTableSwitch:
		w.u8(uint8(Tableswitch))
		w.bytes(make([]byte, switchPadding(pc)))
		w.u32(uint32(int32(insn.Default.offset - pc)))
		w.u32(uint32(insn.Low))
		w.u32(uint32(insn.Low + int32(len(insn.Targets)) - 1))

		for _, t := range insn.Targets {
			w.u32(uint32(int32(t.offset - pc)))
		}
	case KindLookupSwitch:
		if len(insn.Keys) != len(insn.Targets) {
			return fmt.Errorf("lookupswitch with %d keys and %d targets", len(insn.Keys), len(insn.Targets))
		}

		w.u8(uint8(Lookupswitch))
		w.bytes(make([]byte, switchPadding(pc)))
		w.u32(uint32(int32(insn.Default.offset - pc)))
		w.u32(uint32(len(insn.Keys)))

		for i, k := range insn.Keys {
			w.u32(uint32(k))
			w.u32(uint32(int32(insn.Targets[i].offset - pc)))
		}
	case KindField, KindType:
		w.u8(uint8(insn.Op))
		w.u16(insn.Index)
	case KindMethod:
		w.u8(uint8(insn.Op))
		w.u16(insn.Index)

		if insn.Op == Invokeinterface {
			_, _, desc, err := pool.Ref(insn.Index)
			if err != nil {
				return err
			}

			mt, err := ParseMethodDescriptor(desc)
			if err != nil {
				return err
			}

			w.u8(uint8(mt.ArgSlots() + 1))
			w.u8(0)
		}
	case KindInvokeDynamic:
		w.u8(uint8(Invokedynamic))
		w.u16(insn.Index)
		w.u16(0)
	case KindMultiANewArray:
		w.u8(uint8(Multianewarray))
		w.u16(insn.Index)
		w.u8(uint8(insn.Operand))
	default:
		return fmt.Errorf("unknown element kind %s", insn.Kind)
	}

	return nil
}
