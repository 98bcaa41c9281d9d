package vm

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	c "lbcmut.dev/pkg/lbcmut/internal/classfile"
)

// fault aborts the interpretation of a frame from inside the stack helpers.
// It never escapes run.
type fault struct {
	err error
}

type frame struct {
	vm     *Machine
	method *c.Method
	info   *methodInfo
	locals []any
	stack  []any
	pc     int
	depth  int
}

type result struct {
	value    any
	thrown   *Object
	returned bool
}

func thrown(class string, message any) result {
	return result{thrown: newThrowable(class, message)}
}

func (f *frame) fail(format string, args ...any) {
	panic(fault{err: fmt.Errorf("%w: %s in %s", ErrUnsupported, fmt.Sprintf(format, args...), f.method.Key())})
}

// invalid aborts on code a verifier would reject, such as a stack underflow
// after a jump into the middle of an expression.
func (f *frame) invalid(format string, args ...any) {
	panic(fault{err: fmt.Errorf("%w: %s in %s", ErrInvalidCode, fmt.Sprintf(format, args...), f.method.Key())})
}

func (f *frame) push(v any) {
	f.stack = append(f.stack, v)
}

func (f *frame) pop() any {
	if len(f.stack) == 0 {
		f.invalid("operand stack underflow")
	}

	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]

	return v
}

func (f *frame) peek() any {
	if len(f.stack) == 0 {
		f.invalid("operand stack underflow")
	}

	return f.stack[len(f.stack)-1]
}

func (f *frame) popInt() int32 {
	v := f.pop()

	i, ok := v.(int32)
	if !ok {
		f.invalid("expected int, found %T", v)
	}

	return i
}

func (f *frame) jump(l *c.Label) {
	i, ok := f.info.labels[l]
	if !ok {
		f.invalid("branch to unplaced label %s", l.Name)
	}

	f.pc = i
}

func (f *frame) local(slot int) any {
	if slot >= len(f.locals) {
		f.invalid("local %d out of range", slot)
	}

	return f.locals[slot]
}

func (f *frame) setLocal(slot int, v any) {
	if slot >= len(f.locals) {
		f.invalid("local %d out of range", slot)
	}

	f.locals[slot] = v
}

func (f *frame) run(ctx context.Context) (ret any, exc *Object, err error) {
	defer func() {
		if r := recover(); r != nil {
			flt, ok := r.(fault)
			if !ok {
				panic(r)
			}

			err = flt.err
		}
	}()

	insns := f.method.Code.Insns

	for f.pc < len(insns) {
		insn := insns[f.pc]
		at := f.pc
		f.pc++

		if insn.IsLabel() {
			continue
		}

		if err := f.vm.step(ctx); err != nil {
			return nil, nil, err
		}

		res, err := f.exec(ctx, insn)
		if err != nil {
			return nil, nil, err
		}

		switch {
		case res.thrown != nil:
			h := f.handler(res.thrown, at)
			if h < 0 {
				return nil, res.thrown, nil
			}

			f.stack = append(f.stack[:0], res.thrown)
			f.pc = h
		case res.returned:
			return res.value, nil, nil
		}
	}

	return nil, nil, fmt.Errorf("%w: execution ran past the end of %s", ErrInvalidCode, f.method.Key())
}

// handler returns the stream index of the handler covering at for exc, or -1.
func (f *frame) handler(exc *Object, at int) int {
	for _, h := range f.method.Code.Handlers {
		if at <= f.info.labels[h.Start] || at >= f.info.labels[h.End] {
			continue
		}

		if h.CatchType != 0 {
			name, err := f.vm.class.Pool.ClassName(h.CatchType)
			if err != nil || !f.vm.isA(exc.Class, name) {
				continue
			}
		}

		return f.info.labels[h.Handler]
	}

	return -1
}

//nolint:gocyclo // One case per opcode family.
func (f *frame) exec(ctx context.Context, insn *c.Insn) (result, error) {
	op := insn.Op

	switch {
	case op == c.Nop:
	case op == c.AconstNull:
		f.push(nil)
	case op >= c.IconstM1 && op <= c.Iconst5:
		f.push(int32(op) - int32(c.Iconst0))
	case op == c.Lconst0 || op == c.Lconst1:
		f.push(int64(op - c.Lconst0))
	case op >= c.Fconst0 && op <= c.Fconst2:
		f.push(float32(op - c.Fconst0))
	case op == c.Dconst0 || op == c.Dconst1:
		f.push(float64(op - c.Dconst0))
	case op == c.Bipush || op == c.Sipush:
		f.push(int32(insn.Operand))
	case op >= c.Ldc && op <= c.Ldc2W:
		f.push(f.constant(insn.Index))
	case op >= c.Iload && op <= c.Aload:
		f.push(f.local(insn.Var))
	case op >= c.Istore && op <= c.Astore:
		f.setLocal(insn.Var, f.pop())
	case op == c.Iinc:
		v, ok := f.local(insn.Var).(int32)
		if !ok {
			f.invalid("iinc on non-int local %d", insn.Var)
		}

		f.setLocal(insn.Var, v+int32(insn.Operand))
	case op >= c.Iaload && op <= c.Saload:
		return f.arrayLoad()
	case op >= c.Iastore && op <= c.Sastore:
		return f.arrayStore(op)
	case op >= c.Pop && op <= c.Swap:
		f.stackOp(op)
	case op >= c.Iadd && op <= c.Iinc, op >= c.I2b && op <= c.I2s:
		return f.arithmetic(op)
	case op >= c.Ifeq && op <= c.Ifle:
		if compare(op-c.Ifeq, f.popInt(), 0) {
			f.jump(insn.Target)
		}
	case op >= c.IfIcmpeq && op <= c.IfIcmple:
		b, a := f.popInt(), f.popInt()
		if compare(op-c.IfIcmpeq, a, b) {
			f.jump(insn.Target)
		}
	case op == c.IfAcmpeq || op == c.IfAcmpne:
		b, a := f.pop(), f.pop()
		if (a == b) == (op == c.IfAcmpeq) {
			f.jump(insn.Target)
		}
	case op == c.Ifnull || op == c.Ifnonnull:
		if (f.pop() == nil) == (op == c.Ifnull) {
			f.jump(insn.Target)
		}
	case op == c.Goto:
		f.jump(insn.Target)
	case op == c.Tableswitch:
		k := int64(f.popInt()) - int64(insn.Low)
		if k >= 0 && k < int64(len(insn.Targets)) {
			f.jump(insn.Targets[k])
		} else {
			f.jump(insn.Default)
		}
	case op == c.Lookupswitch:
		k := f.popInt()
		target := insn.Default

		for i, key := range insn.Keys {
			if key == k {
				target = insn.Targets[i]
				break
			}
		}

		f.jump(target)
	case op >= c.Ireturn && op <= c.Areturn:
		return result{value: f.pop(), returned: true}, nil
	case op == c.Return:
		return result{returned: true}, nil
	case op >= c.Getstatic && op <= c.Putfield:
		return f.field(op, insn.Index)
	case op >= c.Invokevirtual && op <= c.Invokeinterface:
		return f.call(ctx, op, insn.Index)
	default:
		return f.object(op, insn)
	}

	return result{}, nil
}

func compare(rel c.Opcode, a, b int32) bool {
	switch rel {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a >= b
	case 4:
		return a > b
	default:
		return a <= b
	}
}

func (f *frame) constant(idx uint16) any {
	k, err := f.vm.class.Pool.Get(idx)
	if err != nil {
		f.fail("constant #%d: %v", idx, err)
	}

	switch k.Tag {
	case c.TagInteger:
		return int32(uint32(k.Value))
	case c.TagFloat:
		return math.Float32frombits(uint32(k.Value))
	case c.TagLong:
		return int64(k.Value)
	case c.TagDouble:
		return math.Float64frombits(k.Value)
	case c.TagString:
		s, err := f.vm.class.Pool.Utf8(k.A)
		if err != nil {
			f.fail("string constant #%d: %v", idx, err)
		}

		return s
	default:
		f.fail("ldc of constant tag %d", k.Tag)
		return nil
	}
}

func (f *frame) stackOp(op c.Opcode) {
	switch op {
	case c.Pop:
		f.pop()
	case c.Pop2:
		if v := f.pop(); !wide(v) {
			f.pop()
		}
	case c.Dup:
		f.push(f.peek())
	case c.DupX1:
		v1, v2 := f.pop(), f.pop()
		f.push(v1)
		f.push(v2)
		f.push(v1)
	case c.DupX2:
		v1, v2 := f.pop(), f.pop()
		if wide(v2) {
			f.push(v1)
			f.push(v2)
			f.push(v1)

			return
		}

		v3 := f.pop()
		f.push(v1)
		f.push(v3)
		f.push(v2)
		f.push(v1)
	case c.Dup2:
		if wide(f.peek()) {
			f.push(f.peek())
			return
		}

		v1, v2 := f.pop(), f.pop()
		f.push(v2)
		f.push(v1)
		f.push(v2)
		f.push(v1)
	case c.Swap:
		v1, v2 := f.pop(), f.pop()
		f.push(v1)
		f.push(v2)
	default:
		f.fail("%s", op)
	}
}

func wide(v any) bool {
	switch v.(type) {
	case int64, float64:
		return true
	default:
		return false
	}
}

func (f *frame) arithmetic(op c.Opcode) (result, error) {
	switch op {
	case c.Ineg:
		f.push(-f.popInt())
		return result{}, nil
	case c.I2b:
		f.push(int32(int8(f.popInt())))
		return result{}, nil
	case c.I2c:
		f.push(int32(uint16(f.popInt())))
		return result{}, nil
	case c.I2s:
		f.push(int32(int16(f.popInt())))
		return result{}, nil
	}

	b, a := f.popInt(), f.popInt()

	switch op {
	case c.Iadd:
		f.push(a + b)
	case c.Isub:
		f.push(a - b)
	case c.Imul:
		f.push(a * b)
	case c.Idiv, c.Irem:
		if b == 0 {
			return thrown("java/lang/ArithmeticException", "/ by zero"), nil
		}

		if op == c.Idiv {
			f.push(a / b)
		} else {
			f.push(a % b)
		}
	case c.Ishl:
		f.push(a << (b & 31))
	case c.Ishr:
		f.push(a >> (b & 31))
	case c.Iushr:
		f.push(int32(uint32(a) >> (b & 31)))
	case c.Iand:
		f.push(a & b)
	case c.Ior:
		f.push(a | b)
	case c.Ixor:
		f.push(a ^ b)
	default:
		f.fail("%s", op)
	}

	return result{}, nil
}

func (f *frame) array(v any) (*Array, *result) {
	if v == nil {
		r := thrown("java/lang/NullPointerException", nil)
		return nil, &r
	}

	arr, ok := v.(*Array)
	if !ok {
		f.invalid("expected array, found %T", v)
	}

	return arr, nil
}

func (f *frame) arrayLoad() (result, error) {
	idx := f.popInt()

	arr, exc := f.array(f.pop())
	if exc != nil {
		return *exc, nil
	}

	if idx < 0 || int(idx) >= len(arr.Elems) {
		return thrown("java/lang/ArrayIndexOutOfBoundsException", strconv.Itoa(int(idx))), nil
	}

	f.push(arr.Elems[idx])

	return result{}, nil
}

func (f *frame) arrayStore(op c.Opcode) (result, error) {
	v := f.pop()
	idx := f.popInt()

	arr, exc := f.array(f.pop())
	if exc != nil {
		return *exc, nil
	}

	if idx < 0 || int(idx) >= len(arr.Elems) {
		return thrown("java/lang/ArrayIndexOutOfBoundsException", strconv.Itoa(int(idx))), nil
	}

	if i, ok := v.(int32); ok {
		switch {
		case op == c.Bastore && arr.Elem == "Z":
			i &= 1
		case op == c.Bastore:
			i = int32(int8(i))
		case op == c.Castore:
			i = int32(uint16(i))
		case op == c.Sastore:
			i = int32(int16(i))
		}

		v = i
	}

	arr.Elems[idx] = v

	return result{}, nil
}

func zero(desc string) any {
	switch desc[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		return int32(0)
	case 'J':
		return int64(0)
	case 'F':
		return float32(0)
	case 'D':
		return float64(0)
	default:
		return nil
	}
}

func (f *frame) field(op c.Opcode, idx uint16) (result, error) {
	owner, name, desc, err := f.vm.class.Pool.Ref(idx)
	if err != nil {
		return result{}, err
	}

	switch op {
	case c.Getstatic:
		switch {
		case owner == "java/lang/System" && (name == "out" || name == "err"):
			f.push(printStream{})
		case owner == f.vm.name:
			v, ok := f.vm.statics[name]
			if !ok {
				v = zero(desc)
			}

			f.push(v)
		default:
			f.fail("static field %s.%s", owner, name)
		}
	case c.Putstatic:
		if owner != f.vm.name {
			f.fail("static field %s.%s", owner, name)
		}

		f.vm.statics[name] = f.pop()
	case c.Getfield:
		obj, exc := f.object0(f.pop())
		if exc != nil {
			return *exc, nil
		}

		v, ok := obj.Fields[name]
		if !ok {
			v = zero(desc)
		}

		f.push(v)
	case c.Putfield:
		v := f.pop()

		obj, exc := f.object0(f.pop())
		if exc != nil {
			return *exc, nil
		}

		obj.Fields[name] = v
	}

	return result{}, nil
}

func (f *frame) object0(v any) (*Object, *result) {
	if v == nil {
		r := thrown("java/lang/NullPointerException", nil)
		return nil, &r
	}

	obj, ok := v.(*Object)
	if !ok {
		f.invalid("expected object, found %T", v)
	}

	return obj, nil
}

// newarray element types.
var arrayTypes = map[int]string{4: "Z", 5: "C", 6: "F", 7: "D", 8: "B", 9: "S", 10: "I", 11: "J"}

func (f *frame) object(op c.Opcode, insn *c.Insn) (result, error) {
	pool := f.vm.class.Pool

	switch op {
	case c.New:
		name, err := pool.ClassName(insn.Index)
		if err != nil {
			return result{}, err
		}

		if !f.vm.known(name) {
			f.fail("new %s", name)
		}

		f.push(&Object{Class: name, Fields: map[string]any{}})
	case c.Newarray, c.Anewarray:
		n := f.popInt()
		if n < 0 {
			return thrown("java/lang/NegativeArraySizeException", strconv.Itoa(int(n))), nil
		}

		elem := "L"
		if op == c.Newarray {
			if elem = arrayTypes[insn.Operand]; elem == "" {
				f.fail("newarray of type %d", insn.Operand)
			}
		}

		arr := &Array{Elem: elem, Elems: make([]any, n)}
		for i := range arr.Elems {
			arr.Elems[i] = zero(elem)
		}

		f.push(arr)
	case c.Arraylength:
		arr, exc := f.array(f.pop())
		if exc != nil {
			return *exc, nil
		}

		f.push(int32(len(arr.Elems)))
	case c.Athrow:
		obj, exc := f.object0(f.pop())
		if exc != nil {
			return *exc, nil
		}

		return result{thrown: obj}, nil
	case c.Checkcast, c.Instanceof:
		name, err := pool.ClassName(insn.Index)
		if err != nil {
			return result{}, err
		}

		v := f.pop()
		ok := v == nil || f.instanceOf(v, name)

		if op == c.Instanceof {
			if ok && v != nil {
				f.push(int32(1))
			} else {
				f.push(int32(0))
			}

			return result{}, nil
		}

		if !ok {
			return thrown("java/lang/ClassCastException", name), nil
		}

		f.push(v)
	case c.Monitorenter, c.Monitorexit:
		if f.pop() == nil {
			return thrown("java/lang/NullPointerException", nil), nil
		}
	default:
		f.fail("%s", op)
	}

	return result{}, nil
}

func (f *frame) instanceOf(v any, class string) bool {
	if class == "java/lang/Object" {
		return true
	}

	switch v := v.(type) {
	case string:
		return class == "java/lang/String" || class == "java/lang/CharSequence"
	case *Array:
		return strings.HasPrefix(class, "[")
	case *Object:
		return f.vm.isA(v.Class, class)
	default:
		return false
	}
}

// call dispatches an invoke instruction: methods of the interpreted class
// run in a new frame, a few library methods are emulated.
func (f *frame) call(ctx context.Context, op c.Opcode, idx uint16) (result, error) {
	owner, name, desc, err := f.vm.class.Pool.Ref(idx)
	if err != nil {
		return result{}, err
	}

	mt, err := c.ParseMethodDescriptor(desc)
	if err != nil {
		return result{}, err
	}

	args := make([]any, len(mt.Params))
	for i := len(args) - 1; i >= 0; i-- {
		args[i] = f.pop()
	}

	var recv any

	if op != c.Invokestatic {
		if recv = f.pop(); recv == nil {
			return thrown("java/lang/NullPointerException", nil), nil
		}
	}

	if target := f.vm.class.Method(name + desc); target != nil && owner == f.vm.name {
		if recv != nil {
			args = append([]any{recv}, args...)
		}

		ret, exc, err := f.vm.invoke(ctx, target, args, f.depth+1)
		if err != nil {
			return result{}, err
		}

		if exc != nil {
			return result{thrown: exc}, nil
		}

		if mt.Return != "V" {
			f.push(ret)
		}

		return result{}, nil
	}

	v, res, err := f.library(owner, name, desc, mt, recv, args)
	if err != nil || res.thrown != nil {
		return res, err
	}

	if mt.Return != "V" {
		f.push(v)
	}

	return result{}, nil
}

func (f *frame) library(owner, name, desc string, mt c.MethodType, recv any, args []any) (any, result, error) {
	param := ""
	if len(mt.Params) > 0 {
		param = mt.Params[0]
	}

	switch {
	case isPrintStream(recv) && (name == "println" || name == "print"):
		var err error
		if len(args) == 0 {
			err = f.vm.print("", name == "println")
		} else {
			err = f.vm.print(typed(args[0], param), name == "println")
		}

		return nil, result{}, err
	case name == "<init>":
		obj, ok := recv.(*Object)
		if !ok {
			f.fail("constructor of %s on %T", owner, recv)
		}

		if obj.Class == "java/lang/StringBuilder" {
			obj.Message = ""
		}

		if len(args) > 0 {
			if s, ok := args[0].(string); ok {
				obj.Message = s
			}
		}

		return nil, result{}, nil
	case owner == "java/lang/StringBuilder":
		obj, _ := recv.(*Object)
		switch name {
		case "append":
			obj.Message = format(obj.Message) + format(typed(args[0], param))
			return obj, result{}, nil
		case "toString":
			return format(obj.Message), result{}, nil
		case "length":
			return int32(len(format(obj.Message))), result{}, nil
		}
	case owner == "java/lang/String":
		switch name {
		case "valueOf":
			return format(typed(args[0], param)), result{}, nil
		case "length":
			return int32(len(recv.(string))), result{}, nil
		case "equals":
			return boolInt(recv == args[0]), result{}, nil
		}
	case owner == "java/lang/Math" && mt.Return == "I":
		a := args[0].(int32)
		switch name {
		case "abs":
			if a < 0 {
				a = -a
			}

			return a, result{}, nil
		case "max":
			return max(a, args[1].(int32)), result{}, nil
		case "min":
			return min(a, args[1].(int32)), result{}, nil
		}
	case owner == "java/lang/Integer" && name == "valueOf" && param == "I":
		return args[0], result{}, nil
	case name == "getMessage":
		if obj, ok := recv.(*Object); ok {
			return obj.Message, result{}, nil
		}
	}

	f.fail("call %s.%s%s", owner, name, desc)

	return nil, result{}, nil
}

func isPrintStream(v any) bool {
	_, ok := v.(printStream)
	return ok
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}

	return 0
}

// boolean and char arguments are int32 on the stack; typed restores them
// for printing.
func typed(v any, desc string) any {
	i, ok := v.(int32)
	if !ok {
		return v
	}

	switch desc {
	case "Z":
		return i != 0
	case "C":
		return string(rune(uint16(i)))
	default:
		return v
	}
}

func format(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return v
	case int32:
		return strconv.Itoa(int(v))
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case float32:
		return formatFloat(float64(v), 32)
	case float64:
		return formatFloat(v, 64)
	case *Object:
		if v.Class == "java/lang/StringBuilder" {
			return format(v.Message)
		}

		name := strings.ReplaceAll(v.Class, "/", ".")
		if v.Message != nil {
			return name + ": " + format(v.Message)
		}

		return name
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(v float64, bits int) string {
	s := strconv.FormatFloat(v, 'f', -1, bits)
	if !strings.ContainsAny(s, ".eEIN") {
		s += ".0"
	}

	return s
}
