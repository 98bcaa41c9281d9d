package domain

import (
	"fmt"
	"slices"

	"lbcmut.dev/pkg/lbcmut/internal/classfile"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

const (
	runtimeError   = "java/lang/RuntimeException"
	systemClass    = "java/lang/System"
	printStream    = "java/io/PrintStream"
	printStreamRef = "Ljava/io/PrintStream;"
)

func targetMarker(sequence int) string {
	return fmt.Sprintf("target%d", sequence)
}

// labelingPass places a marker in front of every instruction a pending
// mutation jumps to.
type labelingPass struct{}

func (labelingPass) Name() string { return "labeling" }

func (labelingPass) Apply(pc *PassContext, class *classfile.Class) error {
	return pc.eachTouched(class, func(method *m.Method, cm *classfile.Method) error {
		wanted := method.LiveTargets.Clone()
		if pc.proposes(method) {
			for _, t := range pc.Proposal.Targets {
				wanted.Add(t)
			}
		}

		markers := map[string]string{}
		pc.Markers[method.Name] = markers

		if wanted.Cardinality() == 0 {
			return nil
		}

		code := cm.Code
		out := make([]*classfile.Insn, 0, len(code.Insns)+wanted.Cardinality())

		for _, e := range number(code.Insns) {
			if e.sequence >= 0 {
				id := m.InstructionID(method.Name, e.sequence, e.insn.Kind)
				if wanted.Contains(id) {
					name := targetMarker(e.sequence)
					out = append(out, classfile.Mark(classfile.NewLabel(name, true)))
					markers[id] = name
				}
			}

			out = append(out, e.insn)
		}

		code.Insns = out

		return nil
	})
}

// counterPass allocates one loop counter per pending mutation and sets each
// to the loop bound on method entry.
type counterPass struct{}

func (counterPass) Name() string { return "counters" }

func (counterPass) Apply(pc *PassContext, class *classfile.Class) error {
	return pc.eachTouched(class, func(method *m.Method, cm *classfile.Method) error {
		code := cm.Code
		base := code.MaxLocals
		count := method.MutationCount

		slots := make(map[int]int, count)
		next := base

		if pc.proposes(method) {
			slots[pc.Proposal.SequenceID] = next
			next++
		}

		for _, mu := range method.AllMutations {
			slots[mu.SequenceID] = next
			next++
		}

		init := make([]*classfile.Insn, 0, 2*count)
		for slot := base; slot < base+count; slot++ {
			init = append(init, classfile.PushInt(class.Pool, pc.Config.LoopCount), classfile.Var(classfile.Istore, slot))
		}

		code.Insns = append(classfile.Synthetic(init...), code.Insns...)
		code.MaxLocals = base + count
		code.MaxStack += pc.Config.StackMargin * count
		pc.Counters[method.Name] = slots

		return nil
	})
}

// injectionPass emits the hijack of every pending mutation at its hook site.
type injectionPass struct{}

func (injectionPass) Name() string { return "injection" }

func (p injectionPass) Apply(pc *PassContext, class *classfile.Class) error {
	return pc.eachTouched(class, func(method *m.Method, cm *classfile.Method) error {
		sites := pending(pc, method)
		if len(sites) == 0 {
			return nil
		}

		code := cm.Code
		labels := map[string]*classfile.Label{}

		for _, insn := range code.Insns {
			if insn.IsLabel() && insn.Label.Synthetic {
				labels[insn.Label.Name] = insn.Label
			}
		}

		// Counter initialization is the only synthetic code in front of the
		// first label; entry hijacks go right after it.
		entry := slices.IndexFunc(code.Insns, func(insn *classfile.Insn) bool {
			return insn.IsLabel() || !insn.Synthetic
		})
		if entry < 0 {
			entry = len(code.Insns)
		}

		out := make([]*classfile.Insn, 0, len(code.Insns))
		emit := func(site int) error {
			for _, mu := range sites[site] {
				hijack, err := p.hijack(pc, class, cm, labels, mu)
				if err != nil {
					return err
				}

				out = append(out, hijack...)
			}

			return nil
		}

		for i, e := range number(code.Insns) {
			if i == entry {
				if err := emit(m.EntryHookSite); err != nil {
					return err
				}
			}

			out = append(out, e.insn)

			if e.marker >= 0 {
				if err := emit(e.marker); err != nil {
					return err
				}
			}
		}

		if entry == len(code.Insns) {
			if err := emit(m.EntryHookSite); err != nil {
				return err
			}
		}

		code.Insns = out

		return nil
	})
}

// pending returns the descriptors to emit per hook site: the proposal first,
// then accepted ones most recent first, without the one a removal undoes.
func pending(pc *PassContext, method *m.Method) map[int][]m.Mutation {
	sites := map[int][]m.Mutation{}
	removed := m.NoRemoval

	if pc.proposes(method) {
		if pc.Proposal.IsRemoval() {
			removed = pc.Proposal.Removes
		} else {
			sites[pc.Proposal.HookSite] = append(sites[pc.Proposal.HookSite], *pc.Proposal)
		}
	}

	for _, site := range method.HookSites() {
		for _, mu := range method.MutationsByHookSite[site] {
			if mu.SequenceID != removed {
				sites[site] = append(sites[site], mu)
			}
		}
	}

	return sites
}

// hijack returns the guarded effect of mu:
//
//	iload c; ifle skip; iinc c -1; <effect>; skip:
func (injectionPass) hijack(pc *PassContext, class *classfile.Class, cm *classfile.Method, labels map[string]*classfile.Label, mu m.Mutation) ([]*classfile.Insn, error) {
	slot, ok := pc.Counters[mu.Method][mu.SequenceID]
	if !ok {
		return nil, fmt.Errorf("mutation #%d: no counter in %s", mu.SequenceID, mu.Method)
	}

	targets := make([]*classfile.Label, 0, len(mu.Targets))

	for _, id := range mu.Targets {
		l := labels[pc.Markers[mu.Method][id]]
		if l == nil {
			return nil, &m.DanglingTargetError{Method: mu.Method, Target: id, SequenceID: mu.SequenceID}
		}

		targets = append(targets, l)
	}

	skip := classfile.NewLabel(fmt.Sprintf("skip%d", mu.SequenceID), true)
	insns := []*classfile.Insn{
		classfile.Var(classfile.Iload, slot),
		classfile.Jump(classfile.Ifle, skip),
		classfile.IincInsn(slot, -1),
	}

	switch mu.Operator {
	case m.OperatorGoto:
		if len(targets) == 0 {
			return nil, fmt.Errorf("mutation #%d: %s without target", mu.SequenceID, mu.Operator)
		}

		insns = append(insns, classfile.Jump(classfile.Goto, targets[0]))
	case m.OperatorReturn:
		ret, err := defaultReturn(cm.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("mutation #%d: %w", mu.SequenceID, err)
		}

		insns = append(insns, ret...)
	case m.OperatorThrow:
		insns = append(insns,
			classfile.Ref(classfile.New, class.Pool.AddClass(runtimeError)),
			classfile.Op(classfile.Dup),
			classfile.Ref(classfile.Invokespecial, class.Pool.AddMethodref(runtimeError, "<init>", "()V")),
			classfile.Op(classfile.Athrow),
		)
	case m.OperatorLookupSwitch, m.OperatorTableSwitch:
		if len(targets) == 0 {
			return nil, fmt.Errorf("mutation #%d: %s without target", mu.SequenceID, mu.Operator)
		}

		insns = append(insns, classfile.Var(classfile.Iload, slot))

		if mu.Operator == m.OperatorTableSwitch {
			insns = append(insns, classfile.TableSwitch(0, targets[0], targets...))
		} else {
			keys := make([]int32, len(targets))
			for i := range keys {
				keys[i] = int32(i)
			}

			insns = append(insns, classfile.LookupSwitch(targets[0], keys, targets))
		}
	case m.OperatorRemove:
		return nil, nil
	default:
		return nil, fmt.Errorf("mutation #%d: unknown operator %q", mu.SequenceID, mu.Operator)
	}

	insns = append(insns, classfile.Mark(skip))

	return classfile.Synthetic(insns...), nil
}

// defaultReturn returns zero, null or nothing according to the return type of
// descriptor.
func defaultReturn(descriptor string) ([]*classfile.Insn, error) {
	mt, err := classfile.ParseMethodDescriptor(descriptor)
	if err != nil {
		return nil, err
	}

	switch mt.Return[0] {
	case 'V':
		return []*classfile.Insn{classfile.Op(classfile.Return)}, nil
	case 'Z', 'B', 'C', 'S', 'I':
		return []*classfile.Insn{classfile.Op(classfile.Iconst0), classfile.Op(classfile.Ireturn)}, nil
	case 'J':
		return []*classfile.Insn{classfile.Op(classfile.Lconst0), classfile.Op(classfile.Lreturn)}, nil
	case 'F':
		return []*classfile.Insn{classfile.Op(classfile.Fconst0), classfile.Op(classfile.Freturn)}, nil
	case 'D':
		return []*classfile.Insn{classfile.Op(classfile.Dconst0), classfile.Op(classfile.Dreturn)}, nil
	default:
		return []*classfile.Insn{classfile.Op(classfile.AconstNull), classfile.Op(classfile.Areturn)}, nil
	}
}

// instrumentationPass prints the identifier of every original instruction
// right before it runs.
type instrumentationPass struct{}

func (instrumentationPass) Name() string { return "instrumentation" }

func (instrumentationPass) Apply(pc *PassContext, class *classfile.Class) error {
	outRef := class.Pool.AddFieldref(systemClass, "out", printStreamRef)
	printRef := class.Pool.AddMethodref(printStream, "println", "(Ljava/lang/String;)V")

	for _, cm := range class.Methods {
		if cm.Code == nil {
			continue
		}

		if _, ok := pc.Program.Method(cm.Key()); !ok {
			return fmt.Errorf("method %s is not part of %s", cm.Key(), pc.Program.Class)
		}

		code := cm.Code
		insns := make([]*classfile.Insn, 0, 4*len(code.Insns))

		for _, e := range number(code.Insns) {
			if e.sequence >= 0 {
				id := m.InstructionID(cm.Key(), e.sequence, e.insn.Kind)
				insns = append(insns, classfile.Synthetic(
					classfile.Ref(classfile.Getstatic, outRef),
					classfile.LdcInsn(class.Pool.AddString(id)),
					classfile.Ref(classfile.Invokevirtual, printRef),
				)...)
			}

			insns = append(insns, e.insn)
		}

		code.Insns = insns
		code.MaxStack += 2
	}

	return nil
}
