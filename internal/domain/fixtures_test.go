package domain

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"lbcmut.dev/pkg/lbcmut/internal/adapter"
	c "lbcmut.dev/pkg/lbcmut/internal/classfile"
	"lbcmut.dev/pkg/lbcmut/internal/controller"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
	"lbcmut.dev/pkg/lbcmut/internal/vm"
)

const (
	mainKey  = "main([Ljava/lang/String;)V"
	mainDesc = "([Ljava/lang/String;)V"
)

// counterSeed increments and prints a local once:
//
//	a: x = 0
//	b: x++; println(x)
//	c: return
func counterSeed(t *testing.T) []byte {
	t.Helper()

	b := c.NewBuilder("demo/Counter")
	b.Method(c.AccPublic|c.AccStatic, "main", mainDesc).
		Line("a", 1).Int(0).Var(c.Istore, 1).
		Line("b", 2).Iinc(1, 1).Var(c.Iload, 1).Println("I").
		Line("c", 3).Op(c.Return).
		MaxStack(2)

	data, err := c.Encode(b.Class(), c.FramesDrop)
	require.NoError(t, err)

	return data
}

// loopSeed prints the squares of 0..4 through a helper, then "end".
func loopSeed(t *testing.T) []byte {
	t.Helper()

	b := c.NewBuilder("demo/Loop")
	b.Method(c.AccPublic|c.AccStatic, "main", mainDesc).
		Line("l0", 1).Int(0).Var(c.Istore, 1).
		Line("loop", 2).Var(c.Iload, 1).Int(5).Jump(c.IfIcmpge, "done").
		Line("body", 3).Var(c.Iload, 1).Invoke(c.Invokestatic, "demo/Loop", "square", "(I)I").Println("I").
		Iinc(1, 1).Jump(c.Goto, "loop").
		Line("done", 4).String("end").Println("Ljava/lang/String;").
		Op(c.Return).
		MaxStack(2)
	b.Method(c.AccPublic|c.AccStatic, "square", "(I)I").
		Line("s0", 10).Var(c.Iload, 0).Var(c.Iload, 0).Op(c.Imul).Op(c.Ireturn).
		MaxStack(2)

	data, err := c.Encode(b.Class(), c.FramesDrop)
	require.NoError(t, err)

	return data
}

func disassemble(t *testing.T, data []byte) *Program {
	t.Helper()

	program, err := NewDisassembler(adapter.NewLocalClassCodec()).Disassemble("Seed.class", data)
	require.NoError(t, err)

	return program
}

// execute runs main of a class binary and returns what it printed.
func execute(t *testing.T, data []byte) string {
	t.Helper()

	class, err := c.Decode(data)
	require.NoError(t, err)

	var out bytes.Buffer

	err = vm.New(class, vm.Options{MaxSteps: 100_000, Stdout: &out}).Main(context.Background())
	require.NoError(t, err)

	return out.String()
}

func instruction(t *testing.T, method *m.Method, kind c.Kind, nth int) m.Instruction {
	t.Helper()

	for _, insn := range method.Instructions {
		if insn.Kind != kind {
			continue
		}

		if nth == 0 {
			return insn
		}

		nth--
	}

	require.FailNow(t, "instruction not found", "%s #%d in %s", kind, nth, method.Name)

	return m.Instruction{}
}

// recordingUI keeps what the engine displays.
type recordingUI struct {
	controller.SimpleUI

	records  []m.Record
	progress []m.Progress
	summary  *m.Manifest
}

func (u *recordingUI) Start(context.Context, ...controller.StartOption) error { return nil }
func (u *recordingUI) Close(context.Context)                                   {}
func (u *recordingUI) Wait(context.Context)                                    {}
func (u *recordingUI) DisplayRunInfo(context.Context, controller.RunInfo)      {}

func (u *recordingUI) DisplayIteration(_ context.Context, record m.Record, progress m.Progress) {
	u.records = append(u.records, record)
	u.progress = append(u.progress, progress)
}

func (u *recordingUI) DisplaySummary(_ context.Context, manifest m.Manifest) {
	u.summary = &manifest
}
