// Package domain implements the mutation engine: disassembly, the rewriting
// pipeline, selection heuristics and the search loop.
package domain

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"lbcmut.dev/pkg/lbcmut/internal/adapter"
	"lbcmut.dev/pkg/lbcmut/internal/classfile"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

// Program is a disassembled seed.
type Program struct {
	// Class is the internal name of the seed class, e.g. "pkg/Seed".
	Class   string
	Methods []*m.Method
	// Seed lists every instruction identifier in declaration order.
	Seed []string

	byName map[string]*m.Method
}

// Method returns the model of the method with key name.
func (p *Program) Method(name string) (*m.Method, bool) {
	method, ok := p.byName[name]
	return method, ok
}

// SimpleName returns the class name without its package.
func (p *Program) SimpleName() string {
	return p.Class[strings.LastIndexByte(p.Class, '/')+1:]
}

// Disassembler builds the method models of a class binary.
type Disassembler interface {
	Disassemble(path m.Path, data []byte) (*Program, error)
}

type disassembler struct {
	adapter.ClassCodec
}

// NewDisassembler creates a Disassembler decoding through codec.
func NewDisassembler(codec adapter.ClassCodec) Disassembler {
	return &disassembler{ClassCodec: codec}
}

func (d *disassembler) Disassemble(path m.Path, data []byte) (*Program, error) {
	class, err := d.Decode(data)
	if err != nil {
		slog.Error("Failed to decode seed", "path", path, "error", err)
		return nil, &m.MalformedInputError{Path: path.String(), Err: err}
	}

	program := &Program{
		Class:  class.Name(),
		byName: make(map[string]*m.Method, len(class.Methods)),
	}

	for _, cm := range class.Methods {
		method := disassembleMethod(class, cm)
		program.Methods = append(program.Methods, method)
		program.byName[method.Name] = method

		for _, insn := range method.Instructions {
			program.Seed = append(program.Seed, insn.ID())
		}
	}

	slog.Debug("Disassembled seed", "class", program.Class, "methods", len(program.Methods), "instructions", len(program.Seed))

	return program, nil
}

func disassembleMethod(class *classfile.Class, cm *classfile.Method) *m.Method {
	method := m.NewMethod(cm.Key())
	if cm.Code == nil {
		return method
	}

	method.LocalSlots = cm.Code.MaxLocals

	for _, e := range number(cm.Code.Insns) {
		if e.marker >= 0 {
			method.CodePositions++
		}

		if e.sequence < 0 {
			continue
		}

		method.AddInstruction(m.Instruction{
			Kind:         e.insn.Kind,
			Payload:      class.Describe(e.insn),
			Method:       method.Name,
			Sequence:     e.sequence,
			CodePosition: e.position,
			DefUse:       e.insn.Op.IsDefUse(),
			DefUseKey:    defUseKey(e.insn),
		})
	}

	return method
}

// element is one entry of a method stream together with its numbering in the
// original code. Synthetic entries are skipped by both counters, so every
// pass numbers the original instructions the same way.
type element struct {
	insn *classfile.Insn
	// sequence is the instruction index, -1 for labels and synthetic code.
	sequence int
	// position is the index of the latest original label, -1 before the first.
	position int
	// marker is the index of this original label, -1 otherwise.
	marker int
}

func number(insns []*classfile.Insn) []element {
	out := make([]element, len(insns))
	seq, pos := 0, -1

	for i, insn := range insns {
		e := element{insn: insn, sequence: -1, marker: -1}

		switch {
		case insn.Synthetic:
		case insn.IsLabel():
			pos++
			e.marker = pos
		default:
			e.sequence = seq
			seq++
		}

		e.position = pos
		out[i] = e
	}

	return out
}

// defUseKey names the storage a load, store or increment touches: a local
// slot, or the element type of an array.
func defUseKey(insn *classfile.Insn) string {
	if insn.IsLabel() || !insn.Op.IsDefUse() {
		return ""
	}

	if insn.Kind == classfile.KindVar || insn.Kind == classfile.KindIinc {
		return "local:" + strconv.Itoa(insn.Var)
	}

	return "array:" + strings.ToUpper(insn.Op.String()[:1])
}

// Listing renders the model of every method, one instruction per line.
func (p *Program) Listing() string {
	var b strings.Builder

	for _, method := range p.Methods {
		fmt.Fprintf(&b, "%s\n", method)

		for _, insn := range method.Instructions {
			fmt.Fprintf(&b, "  [%d] %s\n", insn.CodePosition, insn)
		}
	}

	return b.String()
}
