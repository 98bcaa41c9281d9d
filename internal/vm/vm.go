// Package vm interprets a single class in-process. It covers the integer,
// String and exception subset of the JVM instruction set, which is enough
// to run small seeds and their mutants without a Java installation.
//
// Values are int32 for every int-like type, int64, float32 and float64 for
// the wide and floating types, string for java/lang/String, *Object, *Array
// and nil.
package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"lbcmut.dev/pkg/lbcmut/internal/classfile"
)

var (
	// ErrStepLimit is returned when execution exceeds Options.MaxSteps.
	ErrStepLimit = errors.New("step limit exceeded")
	// ErrUnsupported is returned for instructions or library calls outside the
	// interpreted subset.
	ErrUnsupported = errors.New("unsupported")
	// ErrInvalidCode is returned when execution reaches code the JVM verifier
	// would reject.
	ErrInvalidCode = errors.New("invalid code")
)

// ctxCheckInterval is the number of steps between context checks.
const ctxCheckInterval = 1024

// Options bounds an interpretation.
type Options struct {
	// MaxSteps caps executed instructions, 0 for no limit.
	MaxSteps int
	// MaxDepth caps the call depth; deeper calls throw StackOverflowError.
	MaxDepth int
	// Stdout receives System.out output.
	Stdout io.Writer
}

// Object is an instance of the interpreted class or of a library exception.
type Object struct {
	Class   string
	Message any
	Fields  map[string]any
}

// Array is a one-dimensional array.
type Array struct {
	Elem  string
	Elems []any
}

// printStream stands for System.out.
type printStream struct{}

// UncaughtError reports an exception that left the entry method.
type UncaughtError struct {
	Exception *Object
}

func (e *UncaughtError) Error() string {
	if e.Exception.Message != nil {
		return fmt.Sprintf("uncaught %s: %v", e.Exception.Class, e.Exception.Message)
	}

	return "uncaught " + e.Exception.Class
}

// Machine runs methods of one class.
type Machine struct {
	class   *classfile.Class
	name    string
	options Options
	statics map[string]any
	steps   int
	frames  map[*classfile.Method]*methodInfo
}

type methodInfo struct {
	labels map[*classfile.Label]int
	params []string
	ret    string
}

// New returns a Machine for class.
func New(class *classfile.Class, opts Options) *Machine {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 512
	}

	return &Machine{
		class:   class,
		name:    class.Name(),
		options: opts,
		statics: map[string]any{},
		frames:  map[*classfile.Method]*methodInfo{},
	}
}

// Steps returns the number of instructions executed so far.
func (vm *Machine) Steps() int {
	return vm.steps
}

// Run invokes the static method name with descriptor. An exception escaping
// the method is returned as *UncaughtError.
func (vm *Machine) Run(ctx context.Context, name, descriptor string, args ...any) (any, error) {
	cm := vm.class.Method(name + descriptor)
	if cm == nil {
		return nil, fmt.Errorf("method %s%s not found in %s", name, descriptor, vm.name)
	}

	if err := vm.initialize(ctx); err != nil {
		return nil, err
	}

	ret, thrown, err := vm.invoke(ctx, cm, args, 0)
	if err != nil {
		return nil, err
	}

	if thrown != nil {
		return nil, &UncaughtError{Exception: thrown}
	}

	return ret, nil
}

func (vm *Machine) initialize(ctx context.Context) error {
	clinit := vm.class.Method("<clinit>()V")
	if clinit == nil {
		return nil
	}

	_, thrown, err := vm.invoke(ctx, clinit, nil, 0)
	if err != nil {
		return err
	}

	if thrown != nil {
		return &UncaughtError{Exception: thrown}
	}

	return nil
}

func (vm *Machine) info(cm *classfile.Method) (*methodInfo, error) {
	if mi, ok := vm.frames[cm]; ok {
		return mi, nil
	}

	mt, err := classfile.ParseMethodDescriptor(cm.Descriptor)
	if err != nil {
		return nil, err
	}

	mi := &methodInfo{labels: map[*classfile.Label]int{}, params: mt.Params, ret: mt.Return}
	for i, insn := range cm.Code.Insns {
		if insn.IsLabel() {
			mi.labels[insn.Label] = i
		}
	}

	vm.frames[cm] = mi

	return mi, nil
}

// invoke runs cm. It returns either the method result, a thrown exception or
// an interpreter error.
func (vm *Machine) invoke(ctx context.Context, cm *classfile.Method, args []any, depth int) (any, *Object, error) {
	if cm.Code == nil {
		return nil, nil, fmt.Errorf("%w: method %s has no code", ErrUnsupported, cm.Key())
	}

	if depth >= vm.options.MaxDepth {
		return nil, newThrowable("java/lang/StackOverflowError", nil), nil
	}

	mi, err := vm.info(cm)
	if err != nil {
		return nil, nil, err
	}

	f := &frame{
		vm:     vm,
		method: cm,
		info:   mi,
		locals: make([]any, max(cm.Code.MaxLocals, len(args)*2)),
		depth:  depth,
	}

	slot := 0
	if !cm.IsStatic() {
		if len(args) == 0 {
			return nil, nil, fmt.Errorf("%w: instance method %s called without receiver", ErrInvalidCode, cm.Key())
		}

		f.locals[0] = args[0]
		args = args[1:]
		slot = 1
	}

	for i, p := range mi.params {
		f.locals[slot] = args[i]
		slot += classfile.SlotSize(p)
	}

	return f.run(ctx)
}

func (vm *Machine) step(ctx context.Context) error {
	vm.steps++

	if vm.options.MaxSteps > 0 && vm.steps > vm.options.MaxSteps {
		return fmt.Errorf("%w: %d", ErrStepLimit, vm.options.MaxSteps)
	}

	if vm.steps%ctxCheckInterval == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}

// superclass of every library class the interpreter can instantiate.
var superclass = map[string]string{
	"java/lang/StringBuilder":                   "java/lang/Object",
	"java/lang/Throwable":                       "java/lang/Object",
	"java/lang/Exception":                       "java/lang/Throwable",
	"java/lang/Error":                           "java/lang/Throwable",
	"java/lang/RuntimeException":                "java/lang/Exception",
	"java/lang/ArithmeticException":             "java/lang/RuntimeException",
	"java/lang/IndexOutOfBoundsException":       "java/lang/RuntimeException",
	"java/lang/ArrayIndexOutOfBoundsException":  "java/lang/IndexOutOfBoundsException",
	"java/lang/NegativeArraySizeException":      "java/lang/RuntimeException",
	"java/lang/NullPointerException":            "java/lang/RuntimeException",
	"java/lang/ClassCastException":              "java/lang/RuntimeException",
	"java/lang/IllegalArgumentException":        "java/lang/RuntimeException",
	"java/lang/IllegalStateException":           "java/lang/RuntimeException",
	"java/lang/UnsupportedOperationException":   "java/lang/RuntimeException",
	"java/lang/VirtualMachineError":             "java/lang/Error",
	"java/lang/StackOverflowError":              "java/lang/VirtualMachineError",
	"java/lang/AssertionError":                  "java/lang/Error",
	"java/lang/ArrayStoreException":             "java/lang/RuntimeException",
	"java/lang/IllegalMonitorStateException":    "java/lang/RuntimeException",
	"java/lang/CloneNotSupportedException":      "java/lang/Exception",
	"java/lang/InterruptedException":            "java/lang/Exception",
	"java/lang/NumberFormatException":           "java/lang/IllegalArgumentException",
	"java/lang/StringIndexOutOfBoundsException": "java/lang/IndexOutOfBoundsException",
}

func (vm *Machine) superOf(class string) (string, bool) {
	if class == vm.name {
		super, err := vm.class.Pool.ClassName(vm.class.SuperClass)
		return super, err == nil
	}

	s, ok := superclass[class]

	return s, ok
}

func (vm *Machine) known(class string) bool {
	_, ok := superclass[class]
	return ok || class == vm.name || class == "java/lang/Object"
}

// isA reports whether class is target or one of its subclasses.
func (vm *Machine) isA(class, target string) bool {
	for class != "" {
		if class == target {
			return true
		}

		next, ok := vm.superOf(class)
		if !ok {
			return false
		}

		class = next
	}

	return false
}

func newThrowable(class string, message any) *Object {
	return &Object{Class: class, Message: message, Fields: map[string]any{}}
}

func (vm *Machine) print(v any, newline bool) error {
	s := format(v)
	if newline {
		s += "\n"
	}

	if _, err := io.WriteString(vm.options.Stdout, s); err != nil {
		slog.Debug("vm stdout write failed", "error", err)
		return err
	}

	return nil
}

// Main runs public static void main(String[]) with an empty argument array.
func (vm *Machine) Main(ctx context.Context) error {
	_, err := vm.Run(ctx, "main", "([Ljava/lang/String;)V", &Array{Elem: "Ljava/lang/String;"})
	return err
}
