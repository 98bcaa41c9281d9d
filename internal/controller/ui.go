// Package controller provides output adapters for displaying search progress,
// disassembly listings and run results.
package controller

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

// StartMode defines the mode of operation for the UI.
type StartMode int

// Available StartMode values.
const (
	ModeView StartMode = iota
	ModeRun
)

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	mode StartMode
}

// WithViewMode sets the UI to print listings and exit.
func WithViewMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeView
	}
}

// WithRunMode sets the UI to follow a running search.
func WithRunMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeRun
	}
}

// RunInfo describes a search before its first iteration.
type RunInfo struct {
	RunID      string
	Seed       m.Path
	Class      string
	Methods    int
	SeedSize   int
	Oracle     string
	Parameters m.Parameters
}

// UI defines the interface for displaying search progress and results.
// Implementations can use different output methods (simple text, TUI, etc).
type UI interface {
	Start(ctx context.Context, options ...StartOption) error
	Close(ctx context.Context)
	Wait(ctx context.Context) // Wait for UI to finish (user closes it)
	DisplayRunInfo(ctx context.Context, info RunInfo)
	DisplayIteration(ctx context.Context, record m.Record, progress m.Progress)
	DisplaySummary(ctx context.Context, manifest m.Manifest)
	DisplayProgram(ctx context.Context, class string, methods []*m.Method) error
	DisplayRecords(ctx context.Context, records []m.Record) error
	DisplayDiff(ctx context.Context, diff string) error
}

// NewUI returns the TUI for terminals and the SimpleUI otherwise.
func NewUI(cmd *cobra.Command, tty bool) UI {
	if tty {
		return NewTUI(cmd.OutOrStdout())
	}

	return NewSimpleUI(cmd)
}

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return term.IsTerminal(int(f.Fd()))
}
