package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lbcmut.dev/pkg/lbcmut/internal/domain"
	domainmocks "lbcmut.dev/pkg/lbcmut/internal/domain/mocks"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

func TestViewCmd_ShowsRecords(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newViewCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	mockWorkflow.On("View", mock.Anything).Return(nil)

	cmd.SetArgs([]string{"view"})
	err := cmd.Execute()
	require.NoError(t, err)
}

func TestViewCmd_PositionalArgsAreRejected(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)
	cmd := newRootCmd()
	cmd.AddCommand(newViewCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	cmd.SetArgs([]string{"view", "./custom-reports"})
	err := cmd.Execute()
	require.Error(t, err)
}

func TestDisasmCmd(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want m.Path
	}{
		{name: "configured seed", args: []string{"disasm"}, want: m.Path(defaultSeedPath)},
		{name: "explicit class", args: []string{"disasm", "out/acc/Seed_MUTANT_3/Seed.class"}, want: m.Path("out/acc/Seed_MUTANT_3/Seed.class")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockWorkflow := domainmocks.NewMockWorkflow(t)

			cmd := newRootCmd()
			cmd.AddCommand(newDisasmCmd())
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})

			originalWorkflow := workflow
			workflow = mockWorkflow
			defer func() { workflow = originalWorkflow }()

			mockWorkflow.On("Disassemble", mock.Anything, tt.want).Return(nil)

			cmd.SetArgs(tt.args)
			require.NoError(t, cmd.Execute())
		})
	}
}

func TestDiffCmd(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newDiffCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	mockWorkflow.On("Diff", mock.Anything, domain.DiffArgs{Seed: m.Path(defaultSeedPath), SequenceID: 12}).Return(nil)

	cmd.SetArgs([]string{"diff", "12"})
	require.NoError(t, cmd.Execute())
}

func TestDiffCmd_InvalidSequenceID(t *testing.T) {
	for _, arg := range []string{"abc", "-1"} {
		cmd := newRootCmd()
		cmd.AddCommand(newDiffCmd())
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})

		cmd.SetArgs([]string{"diff", "--", arg})
		require.Error(t, cmd.Execute(), arg)
	}
}
