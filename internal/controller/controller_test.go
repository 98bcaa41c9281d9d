package controller

import (
	"bytes"
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lbcmut.dev/pkg/lbcmut/internal/classfile"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

func newTestCmd() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer

	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	return cmd, &out
}

func testRecords() []m.Record {
	return []m.Record{
		{
			Artifact: "Seed_MUTANT_0",
			Verdict:  m.Accepted,
			Mutation: m.Mutation{Method: "main([Ljava/lang/String;)V", Operator: m.OperatorGoto},
			Coverage: 0.75, Probability: 1,
		},
		{
			SequenceID: 1,
			Artifact:   "Seed_MUTANT_1",
			Verdict:    m.NonLive,
			Mutation:   m.Mutation{Method: "main([Ljava/lang/String;)V", Operator: m.OperatorThrow},
		},
	}
}

func TestSimpleUI_DisplayRecords(t *testing.T) {
	cmd, out := newTestCmd()
	ui := NewSimpleUI(cmd)

	require.NoError(t, ui.DisplayRecords(context.Background(), testRecords()))

	for _, want := range []string{"Seed_MUTANT_0", "Seed_MUTANT_1", "GOTO", "THROW", "0.750", "TOTAL 2", "ACC 1", "NONLIVE 1"} {
		assert.Contains(t, strings.ToUpper(out.String()), strings.ToUpper(want))
	}
}

func TestSimpleUI_DisplayProgram(t *testing.T) {
	cmd, out := newTestCmd()
	ui := NewSimpleUI(cmd)

	method := m.NewMethod("main()V")
	method.AddInstruction(m.Instruction{Kind: classfile.KindVar, Payload: "iload 1", Method: "main()V", DefUse: true, DefUseKey: "local:1"})
	method.AddInstruction(m.Instruction{Kind: classfile.KindInsn, Payload: "return", Method: "main()V", Sequence: 1})

	require.NoError(t, ui.DisplayProgram(context.Background(), "Seed", []*m.Method{method}))

	text := out.String()
	assert.Contains(t, text, "class Seed")
	assert.Contains(t, text, "main()V")
	assert.Contains(t, text, "iload 1")
	assert.Contains(t, text, "local:1")
}

func TestSimpleUI_DisplayIterationAndSummary(t *testing.T) {
	cmd, out := newTestCmd()
	ui := NewSimpleUI(cmd)
	ctx := context.Background()

	require.NoError(t, ui.Start(ctx, WithRunMode()))
	ui.DisplayRunInfo(ctx, RunInfo{RunID: "abc", Class: "Seed", Oracle: "vm", Parameters: m.Parameters{MaxIterations: 2}})
	ui.DisplayIteration(ctx, testRecords()[0], m.Progress{Iteration: 1, MaxIterations: 2, TotalLive: 3, SeedSize: 4})
	ui.DisplaySummary(ctx, m.Manifest{Iterations: 2, Totals: map[m.Verdict]int{m.Accepted: 1}, Stopped: "interrupted"})
	ui.Close(ctx)
	ui.Wait(ctx)

	text := out.String()
	assert.Contains(t, text, "Run abc")
	assert.Contains(t, text, "[1/2] Seed_MUTANT_0 GOTO")
	assert.Contains(t, text, "live 3/4")
	assert.Contains(t, text, "Stopped: interrupted")
}

func TestSimpleUI_CancelledContext(t *testing.T) {
	cmd, out := newTestCmd()
	ui := NewSimpleUI(cmd)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, ui.Start(ctx), context.Canceled)
	require.ErrorIs(t, ui.DisplayRecords(ctx, testRecords()), context.Canceled)
	ui.DisplayIteration(ctx, testRecords()[0], m.Progress{})
	assert.Empty(t, out.String())
}

func TestSimpleUI_DisplayDiff(t *testing.T) {
	cmd, out := newTestCmd()
	ui := NewSimpleUI(cmd)

	require.NoError(t, ui.DisplayDiff(context.Background(), ""))
	assert.Equal(t, "no differences\n", out.String())
}

func TestTUI_ViewModePrintsListing(t *testing.T) {
	var out bytes.Buffer

	ui := NewTUI(&out)
	ctx := context.Background()

	require.NoError(t, ui.Start(ctx, WithViewMode()))
	require.NoError(t, ui.DisplayRecords(ctx, testRecords()))
	ui.DisplayIteration(ctx, testRecords()[1], m.Progress{})
	ui.Close(ctx)
	ui.Wait(ctx)

	assert.Contains(t, out.String(), "Results")
	assert.Contains(t, out.String(), "Seed_MUTANT_1")
}

func TestRunModel_Update(t *testing.T) {
	var model tea.Model = newRunModel()

	model, _ = model.Update(RunInfo{Class: "Seed", Oracle: "vm"})
	for i := range recentIterations + 2 {
		record := testRecords()[0]
		record.SequenceID = i
		model, _ = model.Update(iterationMsg{record: record, progress: m.Progress{Iteration: i + 1, MaxIterations: 20}})
	}

	rm := model.(runModel)
	assert.Len(t, rm.recent, recentIterations)
	assert.Equal(t, 2, rm.recent[0].SequenceID)
	assert.Contains(t, rm.View(), "10/20")

	_, cmd := model.Update(summaryMsg(m.Manifest{Iterations: 10}))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestPagerModel_Navigation(t *testing.T) {
	lines := make([]string, 40)
	for i := range lines {
		lines[i] = strings.Repeat("x", i)
	}

	pm := newPagerModel("Listing", lines)
	pm.height = 15

	require.True(t, pm.needsPagination())
	assert.Equal(t, 10, pm.itemsPerPage())
	assert.Equal(t, 30, pm.maxOffset())

	press := func(key string) {
		var model tea.Model

		model, _ = pm.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
		pm = model.(pagerModel)
	}

	press("j")
	assert.Equal(t, 1, pm.offset)
	press("G")
	assert.Equal(t, 30, pm.offset)
	press("j")
	assert.Equal(t, 30, pm.offset)
	press("u")
	assert.Equal(t, 20, pm.offset)
	press("g")
	assert.Equal(t, 0, pm.offset)
	press("k")
	assert.Equal(t, 0, pm.offset)

	assert.Contains(t, pm.View(), "Lines 1-10 of 40")

	_, cmd := pm.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
}

func TestPagerModel_SmallContentIsNotPaged(t *testing.T) {
	pm := newPagerModel("Diff", []string{"a", "b"})
	assert.False(t, pm.needsPagination())

	pm.height = 40
	assert.False(t, pm.needsPagination())
	assert.Equal(t, "a\nb\n", strings.SplitN(pm.View(), "\n\n", 2)[1])
}

func TestIsTTY(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestNewUI(t *testing.T) {
	cmd, _ := newTestCmd()

	assert.IsType(t, &SimpleUI{}, NewUI(cmd, false))
	assert.IsType(t, &TUI{}, NewUI(cmd, true))
}
