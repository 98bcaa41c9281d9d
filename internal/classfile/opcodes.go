package classfile

import "fmt"

// Opcode is a JVM instruction opcode.
type Opcode uint8

// JVM opcodes, see https://docs.oracle.com/javase/specs/jvms/se8/html/jvms-6.html.
const (
	Nop             Opcode = 0
	AconstNull      Opcode = 1
	IconstM1        Opcode = 2
	Iconst0         Opcode = 3
	Iconst1         Opcode = 4
	Iconst2         Opcode = 5
	Iconst3         Opcode = 6
	Iconst4         Opcode = 7
	Iconst5         Opcode = 8
	Lconst0         Opcode = 9
	Lconst1         Opcode = 10
	Fconst0         Opcode = 11
	Fconst1         Opcode = 12
	Fconst2         Opcode = 13
	Dconst0         Opcode = 14
	Dconst1         Opcode = 15
	Bipush          Opcode = 16
	Sipush          Opcode = 17
	Ldc             Opcode = 18
	LdcW            Opcode = 19
	Ldc2W           Opcode = 20
	Iload           Opcode = 21
	Lload           Opcode = 22
	Fload           Opcode = 23
	Dload           Opcode = 24
	Aload           Opcode = 25
	Iload0          Opcode = 26
	Aload3          Opcode = 45
	Iaload          Opcode = 46
	Laload          Opcode = 47
	Faload          Opcode = 48
	Daload          Opcode = 49
	Aaload          Opcode = 50
	Baload          Opcode = 51
	Caload          Opcode = 52
	Saload          Opcode = 53
	Istore          Opcode = 54
	Lstore          Opcode = 55
	Fstore          Opcode = 56
	Dstore          Opcode = 57
	Astore          Opcode = 58
	Istore0         Opcode = 59
	Astore3         Opcode = 78
	Iastore         Opcode = 79
	Lastore         Opcode = 80
	Fastore         Opcode = 81
	Dastore         Opcode = 82
	Aastore         Opcode = 83
	Bastore         Opcode = 84
	Castore         Opcode = 85
	Sastore         Opcode = 86
	Pop             Opcode = 87
	Pop2            Opcode = 88
	Dup             Opcode = 89
	DupX1           Opcode = 90
	DupX2           Opcode = 91
	Dup2            Opcode = 92
	Dup2X1          Opcode = 93
	Dup2X2          Opcode = 94
	Swap            Opcode = 95
	Iadd            Opcode = 96
	Isub            Opcode = 100
	Imul            Opcode = 104
	Idiv            Opcode = 108
	Irem            Opcode = 112
	Ineg            Opcode = 116
	Ishl            Opcode = 120
	Ishr            Opcode = 122
	Iushr           Opcode = 124
	Iand            Opcode = 126
	Ior             Opcode = 128
	Ixor            Opcode = 130
	Iinc            Opcode = 132
	I2b             Opcode = 145
	I2c             Opcode = 146
	I2s             Opcode = 147
	Ifeq            Opcode = 153
	Ifne            Opcode = 154
	Iflt            Opcode = 155
	Ifge            Opcode = 156
	Ifgt            Opcode = 157
	Ifle            Opcode = 158
	IfIcmpeq        Opcode = 159
	IfIcmpne        Opcode = 160
	IfIcmplt        Opcode = 161
	IfIcmpge        Opcode = 162
	IfIcmpgt        Opcode = 163
	IfIcmple        Opcode = 164
	IfAcmpeq        Opcode = 165
	IfAcmpne        Opcode = 166
	Goto            Opcode = 167
	Jsr             Opcode = 168
	Ret             Opcode = 169
	Tableswitch     Opcode = 170
	Lookupswitch    Opcode = 171
	Ireturn         Opcode = 172
	Lreturn         Opcode = 173
	Freturn         Opcode = 174
	Dreturn         Opcode = 175
	Areturn         Opcode = 176
	Return          Opcode = 177
	Getstatic       Opcode = 178
	Putstatic       Opcode = 179
	Getfield        Opcode = 180
	Putfield        Opcode = 181
	Invokevirtual   Opcode = 182
	Invokespecial   Opcode = 183
	Invokestatic    Opcode = 184
	Invokeinterface Opcode = 185
	Invokedynamic   Opcode = 186
	New             Opcode = 187
	Newarray        Opcode = 188
	Anewarray       Opcode = 189
	Arraylength     Opcode = 190
	Athrow          Opcode = 191
	Checkcast       Opcode = 192
	Instanceof      Opcode = 193
	Monitorenter    Opcode = 194
	Monitorexit     Opcode = 195
	Wide            Opcode = 196
	Multianewarray  Opcode = 197
	Ifnull          Opcode = 198
	Ifnonnull       Opcode = 199
	GotoW           Opcode = 200
	JsrW            Opcode = 201
)

var opNames = [...]string{"nop", "aconst_null", "iconst_m1", "iconst_0", "iconst_1", "iconst_2", "iconst_3", "iconst_4", "iconst_5", "lconst_0", "lconst_1", "fconst_0", "fconst_1", "fconst_2", "dconst_0", "dconst_1", "bipush", "sipush", "ldc", "ldc_w", "ldc2_w", "iload", "lload", "fload", "dload", "aload", "iload_0", "iload_1", "iload_2", "iload_3", "lload_0", "lload_1", "lload_2", "lload_3", "fload_0", "fload_1", "fload_2", "fload_3", "dload_0", "dload_1", "dload_2", "dload_3", "aload_0", "aload_1", "aload_2", "aload_3", "iaload", "laload", "faload", "daload", "aaload", "baload", "caload", "saload", "istore", "lstore", "fstore", "dstore", "astore", "istore_0", "istore_1", "istore_2", "istore_3", "lstore_0", "lstore_1", "lstore_2", "lstore_3", "fstore_0", "fstore_1", "fstore_2", "fstore_3", "dstore_0", "dstore_1", "dstore_2", "dstore_3", "astore_0", "astore_1", "astore_2", "astore_3", "iastore", "lastore", "fastore", "dastore", "aastore", "bastore", "castore", "sastore", "pop", "pop2", "dup", "dup_x1", "dup_x2", "dup2", "dup2_x1", "dup2_x2", "swap", "iadd", "ladd", "fadd", "dadd", "isub", "lsub", "fsub", "dsub", "imul", "lmul", "fmul", "dmul", "idiv", "ldiv", "fdiv", "ddiv", "irem", "lrem", "frem", "drem", "ineg", "lneg", "fneg", "dneg", "ishl", "lshl", "ishr", "lshr", "iushr", "lushr", "iand", "land", "ior", "lor", "ixor", "lxor", "iinc", "i2l", "i2f", "i2d", "l2i", "l2f", "l2d", "f2i", "f2l", "f2d", "d2i", "d2l", "d2f", "i2b", "i2c", "i2s", "lcmp", "fcmpl", "fcmpg", "dcmpl", "dcmpg", "ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle", "if_icmpeq", "if_icmpne", "if_icmplt", "if_icmpge", "if_icmpgt", "if_icmple", "if_acmpeq", "if_acmpne", "goto", "jsr", "ret", "tableswitch", "lookupswitch", "ireturn", "lreturn", "freturn", "dreturn", "areturn", "return", "getstatic", "putstatic", "getfield", "putfield", "invokevirtual", "invokespecial", "invokestatic", "invokeinterface", "invokedynamic", "new", "newarray", "anewarray", "arraylength", "athrow", "checkcast", "instanceof", "monitorenter", "monitorexit", "wide", "multianewarray", "ifnull", "ifnonnull", "goto_w", "jsr_w"}

// Valid reports whether op is a defined JVM opcode.
func (op Opcode) Valid() bool {
	return int(op) < len(opNames)
}

func (op Opcode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("op(%d)", uint8(op))
	}

	return opNames[op]
}

// Kind returns the instruction category of op in its canonical form.
func (op Opcode) Kind() Kind {
	switch {
	case op == Bipush || op == Sipush || op == Newarray:
		return KindInt
	case op >= Ldc && op <= Ldc2W:
		return KindLdc
	case op >= Iload && op <= Aload3, op >= Istore && op <= Astore3, op == Ret:
		return KindVar
	case op == Iinc:
		return KindIinc
	case op >= Ifeq && op <= Jsr, op >= Ifnull && op <= JsrW:
		return KindJump
	case op == Tableswitch:
		return KindTableSwitch
	case op == Lookupswitch:
		return KindLookupSwitch
	case op >= Getstatic && op <= Putfield:
		return KindField
	case op >= Invokevirtual && op <= Invokeinterface:
		return KindMethod
	case op == Invokedynamic:
		return KindInvokeDynamic
	case op == New || op == Anewarray || op == Checkcast || op == Instanceof:
		return KindType
	case op == Multianewarray:
		return KindMultiANewArray
	default:
		return KindInsn
	}
}

// IsDefUse reports whether op reads or writes a local variable slot or an array
// element: the load, store and increment families.
func (op Opcode) IsDefUse() bool {
	switch {
	case op >= Iload && op <= Saload:
		return true
	case op >= Istore && op <= Sastore:
		return true
	case op == Iinc:
		return true
	default:
		return false
	}
}

// IsReturn reports whether op returns from the current method.
func (op Opcode) IsReturn() bool {
	return op >= Ireturn && op <= Return
}

// IsConditionalJump reports whether op is a two-way branch.
func (op Opcode) IsConditionalJump() bool {
	return (op >= Ifeq && op <= IfAcmpne) || op == Ifnull || op == Ifnonnull
}

// shortVarBase maps the implicit-operand forms (iload_0, astore_3, ...) to the
// explicit opcode they abbreviate.
func shortVarBase(op Opcode) (Opcode, int, bool) {
	switch {
	case op >= Iload0 && op <= Aload3:
		rel := int(op - Iload0)
		return Iload + Opcode(rel/4), rel % 4, true
	case op >= Istore0 && op <= Astore3:
		rel := int(op - Istore0)
		return Istore + Opcode(rel/4), rel % 4, true
	default:
		return op, 0, false
	}
}

// shortVarForm returns the implicit-operand opcode for op and slot when one exists.
func shortVarForm(op Opcode, slot int) (Opcode, bool) {
	if slot < 0 || slot > 3 {
		return op, false
	}

	switch {
	case op >= Iload && op <= Aload:
		return Iload0 + Opcode(int(op-Iload)*4+slot), true
	case op >= Istore && op <= Astore:
		return Istore0 + Opcode(int(op-Istore)*4+slot), true
	default:
		return op, false
	}
}
