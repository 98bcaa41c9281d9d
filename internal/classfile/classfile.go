// Package classfile reads and writes JVM class files as an editable model.
//
// Method bodies are decoded into a flat stream of instructions and labels.
// Branches refer to labels rather than offsets, so passes can insert or remove
// code freely and Encode recomputes the layout. Code inserted by a pass is
// flagged Synthetic and the flag survives Encode/Decode round trips.
package classfile

import (
	"errors"
	"fmt"
)

// ErrFormat is returned when a class file cannot be decoded or encoded.
var ErrFormat = errors.New("malformed class file")

const classMagic = 0xCAFEBABE

// Attribute names the codec interprets.
const (
	attrCode               = "Code"
	attrLineNumberTable    = "LineNumberTable"
	attrStackMapTable      = "StackMapTable"
	attrLocalVariableTable = "LocalVariableTable"
	attrLocalVarTypeTable  = "LocalVariableTypeTable"
	attrSynthetic          = "LBCSynthetic"
	attrMarkers            = "LBCMarkers"
)

// FrameMode controls what Encode does with StackMapTable frames.
type FrameMode int

const (
	// FramesDrop removes frames and lowers the class version to 50 when the
	// class does not depend on newer constant kinds, so the JVM falls back to
	// the type-inferencing verifier.
	FramesDrop FrameMode = iota
	// FramesKeep copies the original frames. Only valid when code layout did
	// not change.
	FramesKeep
)

// Kind is the category of an element in a method's instruction stream.
type Kind int

// Element kinds.
const (
	KindLabel Kind = iota
	KindInsn
	KindInt
	KindVar
	KindType
	KindField
	KindMethod
	KindInvokeDynamic
	KindJump
	KindLdc
	KindIinc
	KindTableSwitch
	KindLookupSwitch
	KindMultiANewArray
)

var kindNames = [...]string{
	KindLabel:          "Label",
	KindInsn:           "Insn",
	KindInt:            "IntInsn",
	KindVar:            "VarInsn",
	KindType:           "TypeInsn",
	KindField:          "FieldInsn",
	KindMethod:         "MethodInsn",
	KindInvokeDynamic:  "InvokeDynamicInsn",
	KindJump:           "JumpInsn",
	KindLdc:            "LdcInsn",
	KindIinc:           "IincInsn",
	KindTableSwitch:    "TableSwitchInsn",
	KindLookupSwitch:   "LookupSwitchInsn",
	KindMultiANewArray: "MultiANewArrayInsn",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}

	return kindNames[k]
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}

	return 0, fmt.Errorf("unknown instruction kind %q", s)
}

// Label is a code position inside a method. Original labels mark branch
// targets, exception ranges and line number starts of the decoded class;
// synthetic ones were inserted by a pass and carry their name across round
// trips. Line is the source line starting at the label, 0 when unknown.
type Label struct {
	Name      string
	Line      int
	Synthetic bool

	offset int
}

// Handler is an exception table entry. A zero CatchType catches everything.
type Handler struct {
	Start, End, Handler *Label
	CatchType           uint16
}

// Insn is one element of a method's instruction stream: a label when Kind is
// KindLabel, an instruction otherwise. Operand fields are used per kind:
//
//	KindInt            Operand (bipush/sipush value, newarray type)
//	KindVar            Var
//	KindIinc           Var, Operand (increment)
//	KindType, KindField, KindMethod, KindInvokeDynamic, KindLdc
//	                   Index (constant pool)
//	KindMultiANewArray Index, Operand (dimensions)
//	KindJump           Target
//	KindTableSwitch    Default, Targets, Low
//	KindLookupSwitch   Default, Targets, Keys
type Insn struct {
	Kind      Kind
	Op        Opcode
	Label     *Label
	Var       int
	Operand   int
	Index     uint16
	Target    *Label
	Default   *Label
	Targets   []*Label
	Low       int32
	Keys      []int32
	Synthetic bool
}

// IsLabel reports whether the element is a code position marker.
func (i *Insn) IsLabel() bool {
	return i.Kind == KindLabel
}

// Member is a field, kept opaque.
type Member struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []Attribute
}

// Attribute is an uninterpreted attribute.
type Attribute struct {
	NameIndex uint16
	Data      []byte
}

// Method is a method declaration with its decoded body.
type Method struct {
	AccessFlags     uint16
	Name            string
	Descriptor      string
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []Attribute
	Code            *Code
}

// Key identifies a method within its class: name followed by descriptor.
func (m *Method) Key() string {
	return m.Name + m.Descriptor
}

// IsStatic reports whether the method has ACC_STATIC.
func (m *Method) IsStatic() bool {
	return m.AccessFlags&0x0008 != 0
}

// Code is a decoded Code attribute.
type Code struct {
	MaxStack  int
	MaxLocals int
	Insns     []*Insn
	Handlers  []Handler

	frames []byte
}

// Class is a decoded class file.
type Class struct {
	Minor       uint16
	Major       uint16
	Pool        *ConstantPool
	AccessFlags uint16
	ThisClass   uint16
	SuperClass  uint16
	Interfaces  []uint16
	Fields      []*Member
	Methods     []*Method
	Attributes  []Attribute
}

// Name returns the internal name of the class.
func (c *Class) Name() string {
	name, err := c.Pool.ClassName(c.ThisClass)
	if err != nil {
		return ""
	}

	return name
}

// Method looks a method up by Key.
func (c *Class) Method(key string) *Method {
	for _, m := range c.Methods {
		if m.Key() == key {
			return m
		}
	}

	return nil
}

// Describe renders the operands of an instruction as a canonical string.
func (c *Class) Describe(insn *Insn) string {
	switch insn.Kind {
	case KindLabel:
		return insn.Label.Name
	case KindInsn:
		return insn.Op.String()
	case KindInt:
		return fmt.Sprintf("%s %d", insn.Op, insn.Operand)
	case KindVar:
		return fmt.Sprintf("%s %d", insn.Op, insn.Var)
	case KindIinc:
		return fmt.Sprintf("%s %d %d", insn.Op, insn.Var, insn.Operand)
	case KindType, KindField, KindMethod, KindInvokeDynamic, KindLdc:
		return fmt.Sprintf("%s %s", insn.Op, c.Pool.Format(insn.Index))
	case KindMultiANewArray:
		return fmt.Sprintf("%s %s %d", insn.Op, c.Pool.Format(insn.Index), insn.Operand)
	case KindJump:
		return fmt.Sprintf("%s %s", insn.Op, labelName(insn.Target))
	case KindTableSwitch:
		return fmt.Sprintf("%s %d %s %s", insn.Op, insn.Low, labelName(insn.Default), labelNames(insn.Targets))
	case KindLookupSwitch:
		return fmt.Sprintf("%s %s %v %s", insn.Op, labelName(insn.Default), insn.Keys, labelNames(insn.Targets))
	default:
		return insn.Op.String()
	}
}

func labelName(l *Label) string {
	if l == nil {
		return "<nil>"
	}

	return l.Name
}

func labelNames(ls []*Label) string {
	out := "["

	for i, l := range ls {
		if i > 0 {
			out += " "
		}

		out += labelName(l)
	}

	return out + "]"
}
