package classfile

import "fmt"

// Builder assembles a class from scratch. It is used to produce seeds and
// fixtures without a Java toolchain.
type Builder struct {
	class *Class
}

// NewBuilder starts a public class extending java/lang/Object.
func NewBuilder(name string) *Builder {
	pool := NewConstantPool()

	return &Builder{class: &Class{
		Major:       52,
		Pool:        pool,
		AccessFlags: AccPublic | AccSuper,
		ThisClass:   pool.AddClass(name),
		SuperClass:  pool.AddClass("java/lang/Object"),
	}}
}

// Pool returns the constant pool of the class under construction.
func (b *Builder) Pool() *ConstantPool {
	return b.class.Pool
}

// Class returns the built class.
func (b *Builder) Class() *Class {
	return b.class
}

// Method declares a method and returns a builder for its body. The local
// count starts at the parameter slots.
func (b *Builder) Method(access uint16, name, descriptor string) *MethodBuilder {
	m := &Method{
		AccessFlags:     access,
		Name:            name,
		Descriptor:      descriptor,
		NameIndex:       b.class.Pool.AddUtf8(name),
		DescriptorIndex: b.class.Pool.AddUtf8(descriptor),
		Code:            &Code{MaxStack: 2},
	}

	if mt, err := ParseMethodDescriptor(descriptor); err == nil {
		m.Code.MaxLocals = mt.ArgSlots()
	}

	if access&AccStatic == 0 {
		m.Code.MaxLocals++
	}

	b.class.Methods = append(b.class.Methods, m)

	return &MethodBuilder{pool: b.class.Pool, method: m, labels: map[string]*Label{}}
}

// MethodBuilder appends to one method body. Labels are referenced by name and
// created on first use.
type MethodBuilder struct {
	pool   *ConstantPool
	method *Method
	labels map[string]*Label
}

// Method returns the method being built.
func (mb *MethodBuilder) Method() *Method {
	return mb.method
}

func (mb *MethodBuilder) emit(insns ...*Insn) *MethodBuilder {
	mb.method.Code.Insns = append(mb.method.Code.Insns, insns...)
	return mb
}

// Label returns the label called name.
func (mb *MethodBuilder) Label(name string) *Label {
	l, ok := mb.labels[name]
	if !ok {
		l = NewLabel(name, false)
		mb.labels[name] = l
	}

	return l
}

// Mark places the label called name.
func (mb *MethodBuilder) Mark(name string) *MethodBuilder {
	return mb.emit(Mark(mb.Label(name)))
}

// Line places the label called name and records line as its source line.
func (mb *MethodBuilder) Line(name string, line int) *MethodBuilder {
	l := mb.Label(name)
	l.Line = line

	return mb.emit(Mark(l))
}

// Op appends an instruction without operands.
func (mb *MethodBuilder) Op(op Opcode) *MethodBuilder {
	return mb.emit(Op(op))
}

// Var appends a local variable instruction and grows max locals.
func (mb *MethodBuilder) Var(op Opcode, slot int) *MethodBuilder {
	mb.touch(slot)
	return mb.emit(Var(op, slot))
}

// Iinc appends an increment of slot.
func (mb *MethodBuilder) Iinc(slot, delta int) *MethodBuilder {
	mb.touch(slot)
	return mb.emit(IincInsn(slot, delta))
}

// Int pushes an int constant.
func (mb *MethodBuilder) Int(v int) *MethodBuilder {
	return mb.emit(PushInt(mb.pool, v))
}

// String pushes a string constant.
func (mb *MethodBuilder) String(s string) *MethodBuilder {
	return mb.emit(LdcInsn(mb.pool.AddString(s)))
}

// Jump appends a branch to the label called name.
func (mb *MethodBuilder) Jump(op Opcode, name string) *MethodBuilder {
	return mb.emit(Jump(op, mb.Label(name)))
}

// TableSwitch appends a tableswitch over low..low+len(names)-1.
func (mb *MethodBuilder) TableSwitch(low int32, dflt string, names ...string) *MethodBuilder {
	return mb.emit(TableSwitch(low, mb.Label(dflt), mb.resolve(names)...))
}

// LookupSwitch appends a lookupswitch mapping keys[i] to names[i].
func (mb *MethodBuilder) LookupSwitch(dflt string, keys []int32, names ...string) *MethodBuilder {
	return mb.emit(LookupSwitch(mb.Label(dflt), keys, mb.resolve(names)))
}

// NewArray appends a newarray of a primitive type code, 10 for int.
func (mb *MethodBuilder) NewArray(typeCode int) *MethodBuilder {
	return mb.emit(&Insn{Kind: KindInt, Op: Newarray, Operand: typeCode})
}

// Field appends a field access.
func (mb *MethodBuilder) Field(op Opcode, owner, name, desc string) *MethodBuilder {
	return mb.emit(Ref(op, mb.pool.AddFieldref(owner, name, desc)))
}

// Invoke appends a call of a class method.
func (mb *MethodBuilder) Invoke(op Opcode, owner, name, desc string) *MethodBuilder {
	return mb.emit(Ref(op, mb.pool.AddMethodref(owner, name, desc)))
}

// Type appends new, anewarray, checkcast or instanceof.
func (mb *MethodBuilder) Type(op Opcode, class string) *MethodBuilder {
	return mb.emit(Ref(op, mb.pool.AddClass(class)))
}

// Println prints the int or String on top of the stack.
func (mb *MethodBuilder) Println(desc string) *MethodBuilder {
	mb.emit(Ref(Getstatic, mb.pool.AddFieldref("java/lang/System", "out", "Ljava/io/PrintStream;")))
	mb.emit(Op(Swap))

	return mb.Invoke(Invokevirtual, "java/io/PrintStream", "println", fmt.Sprintf("(%s)V", desc))
}

// Handler adds an exception table entry. An empty catchType catches all.
func (mb *MethodBuilder) Handler(start, end, handler, catchType string) *MethodBuilder {
	h := Handler{Start: mb.Label(start), End: mb.Label(end), Handler: mb.Label(handler)}
	if catchType != "" {
		h.CatchType = mb.pool.AddClass(catchType)
	}

	mb.method.Code.Handlers = append(mb.method.Code.Handlers, h)

	return mb
}

// MaxStack sets the operand stack size.
func (mb *MethodBuilder) MaxStack(n int) *MethodBuilder {
	mb.method.Code.MaxStack = n
	return mb
}

func (mb *MethodBuilder) touch(slot int) {
	if slot+1 > mb.method.Code.MaxLocals {
		mb.method.Code.MaxLocals = slot + 1
	}
}

func (mb *MethodBuilder) resolve(names []string) []*Label {
	out := make([]*Label, len(names))
	for i, n := range names {
		out[i] = mb.Label(n)
	}

	return out
}
