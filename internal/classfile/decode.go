package classfile

import (
	"errors"
	"fmt"
	"sort"
)

// Decode parses a class file into an editable model.
func Decode(data []byte) (*Class, error) {
	c, err := decodeClass(newByteReader(data))
	if err != nil {
		if errors.Is(err, ErrFormat) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	return c, nil
}

func decodeClass(r *byteReader) (*Class, error) {
	magic, err := r.readU32()
	if err != nil {
		return nil, err
	}

	if magic != classMagic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrFormat, magic)
	}

	c := &Class{}

	if c.Minor, err = r.readU16(); err != nil {
		return nil, err
	}

	if c.Major, err = r.readU16(); err != nil {
		return nil, err
	}

	if c.Pool, err = readConstantPool(r); err != nil {
		return nil, err
	}

	for _, dst := range []*uint16{&c.AccessFlags, &c.ThisClass, &c.SuperClass} {
		if *dst, err = r.readU16(); err != nil {
			return nil, err
		}
	}

	n, err := r.readU16()
	if err != nil {
		return nil, err
	}

	c.Interfaces = make([]uint16, n)
	for i := range c.Interfaces {
		if c.Interfaces[i], err = r.readU16(); err != nil {
			return nil, err
		}
	}

	if n, err = r.readU16(); err != nil {
		return nil, err
	}

	for range n {
		f, err := readMember(r)
		if err != nil {
			return nil, err
		}

		c.Fields = append(c.Fields, f)
	}

	if n, err = r.readU16(); err != nil {
		return nil, err
	}

	for range n {
		m, err := decodeMethod(r, c.Pool)
		if err != nil {
			return nil, err
		}

		c.Methods = append(c.Methods, m)
	}

	if c.Attributes, err = readAttributes(r); err != nil {
		return nil, err
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrFormat, r.remaining())
	}

	return c, nil
}

func readMember(r *byteReader) (*Member, error) {
	m := &Member{}

	var err error

	for _, dst := range []*uint16{&m.AccessFlags, &m.NameIndex, &m.DescriptorIndex} {
		if *dst, err = r.readU16(); err != nil {
			return nil, err
		}
	}

	if m.Attributes, err = readAttributes(r); err != nil {
		return nil, err
	}

	return m, nil
}

func readAttributes(r *byteReader) ([]Attribute, error) {
	n, err := r.readU16()
	if err != nil {
		return nil, err
	}

	attrs := make([]Attribute, 0, n)

	for range n {
		name, err := r.readU16()
		if err != nil {
			return nil, err
		}

		size, err := r.readU32()
		if err != nil {
			return nil, err
		}

		data, err := r.readBytes(int(size))
		if err != nil {
			return nil, err
		}

		attrs = append(attrs, Attribute{NameIndex: name, Data: append([]byte(nil), data...)})
	}

	return attrs, nil
}

func decodeMethod(r *byteReader, pool *ConstantPool) (*Method, error) {
	member, err := readMember(r)
	if err != nil {
		return nil, err
	}

	m := &Method{
		AccessFlags:     member.AccessFlags,
		NameIndex:       member.NameIndex,
		DescriptorIndex: member.DescriptorIndex,
	}

	if m.Name, err = pool.Utf8(m.NameIndex); err != nil {
		return nil, err
	}

	if m.Descriptor, err = pool.Utf8(m.DescriptorIndex); err != nil {
		return nil, err
	}

	for _, a := range member.Attributes {
		name, err := pool.Utf8(a.NameIndex)
		if err != nil {
			return nil, err
		}

		if name != attrCode {
			m.Attributes = append(m.Attributes, a)
			continue
		}

		if m.Code, err = decodeCode(a.Data, pool); err != nil {
			return nil, fmt.Errorf("method %s: %w", m.Key(), err)
		}
	}

	return m, nil
}

// rawInsn is an instruction before branch offsets are bound to labels.
type rawInsn struct {
	insn    *Insn
	offset  int
	target  int
	targets []int
}

type codeMeta struct {
	lines     map[int]int
	synthetic map[int]bool
	markers   map[int][]string
	frames    []byte
}

func decodeCode(data []byte, pool *ConstantPool) (*Code, error) {
	r := newByteReader(data)

	maxStack, err := r.readU16()
	if err != nil {
		return nil, err
	}

	maxLocals, err := r.readU16()
	if err != nil {
		return nil, err
	}

	codeLen, err := r.readU32()
	if err != nil {
		return nil, err
	}

	bytecode, err := r.readBytes(int(codeLen))
	if err != nil {
		return nil, err
	}

	type rawHandler struct{ start, end, handler, catchType uint16 }

	nHandlers, err := r.readU16()
	if err != nil {
		return nil, err
	}

	handlers := make([]rawHandler, nHandlers)
	for i := range handlers {
		for _, dst := range []*uint16{&handlers[i].start, &handlers[i].end, &handlers[i].handler, &handlers[i].catchType} {
			if *dst, err = r.readU16(); err != nil {
				return nil, err
			}
		}
	}

	attrs, err := readAttributes(r)
	if err != nil {
		return nil, err
	}

	meta, err := readCodeMeta(attrs, pool)
	if err != nil {
		return nil, err
	}

	raws, err := parseBytecode(bytecode)
	if err != nil {
		return nil, err
	}

	starts := make(map[int]bool, len(raws)+1)
	for _, ri := range raws {
		starts[ri.offset] = true
	}

	starts[len(bytecode)] = true

	original := map[int]bool{}
	mark := func(off int) error {
		if !starts[off] {
			return fmt.Errorf("%w: branch into the middle of an instruction at %d", ErrFormat, off)
		}

		original[off] = true

		return nil
	}

	for _, ri := range raws {
		if ri.insn.Synthetic = meta.synthetic[ri.offset]; ri.insn.Synthetic {
			continue
		}

		for _, t := range ri.allTargets() {
			if err := mark(t); err != nil {
				return nil, err
			}
		}
	}

	for _, h := range handlers {
		for _, off := range []uint16{h.start, h.end, h.handler} {
			if err := mark(int(off)); err != nil {
				return nil, err
			}
		}
	}

	for off := range meta.lines {
		if starts[off] {
			original[off] = true
		}
	}

	b := newLabelBinder(original, meta)

	for _, ri := range raws {
		if !ri.insn.Synthetic {
			continue
		}

		for _, t := range ri.allTargets() {
			if !starts[t] {
				return nil, fmt.Errorf("%w: branch into the middle of an instruction at %d", ErrFormat, t)
			}

			b.syntheticTarget(t)
		}
	}

	code := &Code{MaxStack: int(maxStack), MaxLocals: int(maxLocals), frames: meta.frames}

	for _, ri := range raws {
		code.Insns = append(code.Insns, b.labelsAt(ri.offset)...)

		insn := ri.insn
		bind := b.originalLabel
		if insn.Synthetic {
			bind = b.syntheticLabel
		}

		switch insn.Kind {
		case KindJump:
			insn.Target = bind(ri.target)
		case KindTableSwitch, KindLookupSwitch:
			insn.Default = bind(ri.target)
			for _, t := range ri.targets {
				insn.Targets = append(insn.Targets, bind(t))
			}
		}

		code.Insns = append(code.Insns, insn)
	}

	code.Insns = append(code.Insns, b.labelsAt(len(bytecode))...)

	for _, h := range handlers {
		code.Handlers = append(code.Handlers, Handler{
			Start:     b.originalLabel(int(h.start)),
			End:       b.originalLabel(int(h.end)),
			Handler:   b.originalLabel(int(h.handler)),
			CatchType: h.catchType,
		})
	}

	return code, nil
}

func (ri rawInsn) allTargets() []int {
	switch ri.insn.Kind {
	case KindJump:
		return []int{ri.target}
	case KindTableSwitch, KindLookupSwitch:
		return append([]int{ri.target}, ri.targets...)
	default:
		return nil
	}
}

func readCodeMeta(attrs []Attribute, pool *ConstantPool) (codeMeta, error) {
	meta := codeMeta{
		lines:     map[int]int{},
		synthetic: map[int]bool{},
		markers:   map[int][]string{},
	}

	for _, a := range attrs {
		name, err := pool.Utf8(a.NameIndex)
		if err != nil {
			return meta, err
		}

		r := newByteReader(a.Data)

		switch name {
		case attrLineNumberTable:
			n, err := r.readU16()
			if err != nil {
				return meta, err
			}

			for range n {
				pc, err := r.readU16()
				if err != nil {
					return meta, err
				}

				line, err := r.readU16()
				if err != nil {
					return meta, err
				}

				if _, seen := meta.lines[int(pc)]; !seen {
					meta.lines[int(pc)] = int(line)
				}
			}
		case attrStackMapTable:
			meta.frames = a.Data
		case attrSynthetic:
			n, err := r.readU16()
			if err != nil {
				return meta, err
			}

			for range n {
				off, err := r.readU16()
				if err != nil {
					return meta, err
				}

				meta.synthetic[int(off)] = true
			}
		case attrMarkers:
			n, err := r.readU16()
			if err != nil {
				return meta, err
			}

			for range n {
				off, err := r.readU16()
				if err != nil {
					return meta, err
				}

				idx, err := r.readU16()
				if err != nil {
					return meta, err
				}

				label, err := pool.Utf8(idx)
				if err != nil {
					return meta, err
				}

				meta.markers[int(off)] = append(meta.markers[int(off)], label)
			}
		}
	}

	return meta, nil
}

// labelBinder creates the labels of one method body. At a given offset the
// original label comes first, followed by synthetic markers in recorded order.
type labelBinder struct {
	meta      codeMeta
	original  map[int]*Label
	markers   map[int][]*Label
	synthetic map[int]*Label
}

func newLabelBinder(original map[int]bool, meta codeMeta) *labelBinder {
	b := &labelBinder{
		meta:      meta,
		original:  make(map[int]*Label, len(original)),
		markers:   make(map[int][]*Label, len(meta.markers)),
		synthetic: map[int]*Label{},
	}

	offsets := make([]int, 0, len(original))
	for off := range original {
		offsets = append(offsets, off)
	}

	sort.Ints(offsets)

	for i, off := range offsets {
		b.original[off] = &Label{Name: fmt.Sprintf("L%d", i), Line: meta.lines[off], offset: off}
	}

	for off, names := range meta.markers {
		for _, name := range names {
			b.markers[off] = append(b.markers[off], &Label{Name: name, Synthetic: true, offset: off})
		}
	}

	return b
}

func (b *labelBinder) syntheticTarget(off int) {
	if len(b.markers[off]) > 0 || b.original[off] != nil || b.synthetic[off] != nil {
		return
	}

	b.synthetic[off] = &Label{Name: fmt.Sprintf("S%d", off), Synthetic: true, offset: off}
}

func (b *labelBinder) originalLabel(off int) *Label {
	return b.original[off]
}

func (b *labelBinder) syntheticLabel(off int) *Label {
	if ms := b.markers[off]; len(ms) > 0 {
		return ms[0]
	}

	if l := b.original[off]; l != nil {
		return l
	}

	return b.synthetic[off]
}

func (b *labelBinder) labelsAt(off int) []*Insn {
	var out []*Insn

	if l := b.original[off]; l != nil {
		out = append(out, &Insn{Kind: KindLabel, Label: l})
	}

	for _, l := range b.markers[off] {
		out = append(out, &Insn{Kind: KindLabel, Label: l, Synthetic: true})
	}

	if l := b.synthetic[off]; l != nil {
		out = append(out, &Insn{Kind: KindLabel, Label: l, Synthetic: true})
	}

	return out
}

// parseBytecode splits a code array into canonical instructions. Implicit
// operand forms, ldc_w and the wide branch forms are folded into their base
// opcodes; Encode picks the shortest encoding again.
func parseBytecode(code []byte) ([]rawInsn, error) {
	r := newByteReader(code)

	var out []rawInsn

	for r.remaining() > 0 {
		pc := r.offset

		b, _ := r.readU8()
		op := Opcode(b)

		if !op.Valid() {
			return nil, fmt.Errorf("%w: invalid opcode %d at %d", ErrFormat, b, pc)
		}

		ri := rawInsn{offset: pc, insn: &Insn{Op: op}}

		var err error

		switch {
		case op == Wide:
			err = parseWide(r, ri.insn)
		case op == Bipush:
			var v int8
			v, err = r.readS8()
			ri.insn.Operand = int(v)
		case op == Sipush:
			var v int16
			v, err = r.readS16()
			ri.insn.Operand = int(v)
		case op == Newarray:
			var v uint8
			v, err = r.readU8()
			ri.insn.Operand = int(v)
		case op == Ldc:
			var v uint8
			v, err = r.readU8()
			ri.insn.Index = uint16(v)
		case op == LdcW:
			ri.insn.Op = Ldc
			ri.insn.Index, err = r.readU16()
		case op == Ldc2W:
			ri.insn.Index, err = r.readU16()
		case op >= Iload && op <= Aload, op >= Istore && op <= Astore, op == Ret:
			var v uint8
			v, err = r.readU8()
			ri.insn.Var = int(v)
		case op >= Iload0 && op <= Aload3, op >= Istore0 && op <= Astore3:
			base, slot, _ := shortVarBase(op)
			ri.insn.Op, ri.insn.Var = base, slot
		case op == Iinc:
			var slot uint8
			var incr int8
			if slot, err = r.readU8(); err == nil {
				incr, err = r.readS8()
			}

			ri.insn.Var, ri.insn.Operand = int(slot), int(incr)
		case op == GotoW || op == JsrW:
			var d int32
			d, err = r.readS32()
			ri.target = pc + int(d)
			ri.insn.Op = Goto
			if op == JsrW {
				ri.insn.Op = Jsr
			}
		case op.Kind() == KindJump:
			var d int16
			d, err = r.readS16()
			ri.target = pc + int(d)
		case op == Tableswitch:
			err = parseTableSwitch(r, &ri)
		case op == Lookupswitch:
			err = parseLookupSwitch(r, &ri)
		case op == Invokeinterface, op == Invokedynamic:
			if ri.insn.Index, err = r.readU16(); err == nil {
				err = r.skip(2)
			}
		case op == Multianewarray:
			var dims uint8
			if ri.insn.Index, err = r.readU16(); err == nil {
				dims, err = r.readU8()
			}

			ri.insn.Operand = int(dims)
		case op.Kind() == KindField, op.Kind() == KindMethod, op.Kind() == KindType:
			ri.insn.Index, err = r.readU16()
		}

		if err != nil {
			return nil, fmt.Errorf("%w: truncated %s at %d: %w", ErrFormat, op, pc, err)
		}

		ri.insn.Kind = ri.insn.Op.Kind()
		out = append(out, ri)
	}

	return out, nil
}

func parseWide(r *byteReader, insn *Insn) error {
	b, err := r.readU8()
	if err != nil {
		return err
	}

	op := Opcode(b)

	slot, err := r.readU16()
	if err != nil {
		return err
	}

	insn.Op, insn.Var = op, int(slot)

	switch {
	case op == Iinc:
		incr, err := r.readS16()
		insn.Operand = int(incr)

		return err
	case op >= Iload && op <= Aload, op >= Istore && op <= Astore, op == Ret:
		return nil
	default:
		return fmt.Errorf("%w: wide %s", ErrFormat, op)
	}
}

func switchPadding(pc int) int {
	return 3 - pc%4
}

func parseTableSwitch(r *byteReader, ri *rawInsn) error {
	if err := r.skip(switchPadding(ri.offset)); err != nil {
		return err
	}

	dflt, err := r.readS32()
	if err != nil {
		return err
	}

	low, err := r.readS32()
	if err != nil {
		return err
	}

	high, err := r.readS32()
	if err != nil {
		return err
	}

	if high < low || int64(high)-int64(low) >= 65536 {
		return fmt.Errorf("%w: tableswitch range %d..%d", ErrFormat, low, high)
	}

	ri.target = ri.offset + int(dflt)
	ri.insn.Low = low

	for range int(high-low) + 1 {
		d, err := r.readS32()
		if err != nil {
			return err
		}

		ri.targets = append(ri.targets, ri.offset+int(d))
	}

	return nil
}

func parseLookupSwitch(r *byteReader, ri *rawInsn) error {
	if err := r.skip(switchPadding(ri.offset)); err != nil {
		return err
	}

	dflt, err := r.readS32()
	if err != nil {
		return err
	}

	n, err := r.readS32()
	if err != nil {
		return err
	}

	if n < 0 || n > 65536 {
		return fmt.Errorf("%w: lookupswitch with %d pairs", ErrFormat, n)
	}

	ri.target = ri.offset + int(dflt)

	for range n {
		key, err := r.readS32()
		if err != nil {
			return err
		}

		d, err := r.readS32()
		if err != nil {
			return err
		}

		ri.insn.Keys = append(ri.insn.Keys, key)
		ri.targets = append(ri.targets, ri.offset+int(d))
	}

	return nil
}
