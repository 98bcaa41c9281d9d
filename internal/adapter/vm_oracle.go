package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lbcmut.dev/pkg/lbcmut/internal/classfile"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
	"lbcmut.dev/pkg/lbcmut/internal/vm"
)

// VMOracleConfig bounds in-process execution.
type VMOracleConfig struct {
	MaxSteps      int
	Timeout       time.Duration
	MaxTraceLines int
}

// VMOracle runs candidates in the in-process interpreter. Running out of
// steps counts as a timeout; code a verifier would reject ends the candidate
// like an abnormal exit does.
type VMOracle struct {
	config VMOracleConfig
}

// NewVMOracle constructs a VMOracle.
func NewVMOracle(cfg VMOracleConfig) *VMOracle {
	return &VMOracle{config: cfg}
}

// Execute implements Oracle.
func (o *VMOracle) Execute(ctx context.Context, candidate Candidate) ([]string, error) {
	class, err := classfile.Decode(candidate.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", m.ErrOracleUnavailable, err)
	}

	runCtx, cancel := withTimeout(ctx, o.config.Timeout)
	defer cancel()

	out := &traceWriter{limit: o.config.MaxTraceLines}
	err = vm.New(class, vm.Options{MaxSteps: o.config.MaxSteps, Stdout: out}).Main(runCtx)
	trace := out.Trace()

	var uncaught *vm.UncaughtError

	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, vm.ErrStepLimit), errors.Is(err, context.DeadlineExceeded):
		slog.Debug("Candidate timed out", "candidate", candidate.Name, "error", err)
		return trace, fmt.Errorf("%w: %s: %w", m.ErrOracleTimeout, candidate.Name, err)
	case errors.As(err, &uncaught):
		slog.Debug("Candidate exited abnormally", "candidate", candidate.Name, "exception", uncaught.Exception.Class)
	case errors.Is(err, vm.ErrInvalidCode):
		slog.Debug("Candidate crashed", "candidate", candidate.Name, "error", err)
	case err != nil:
		slog.Error("Failed to interpret candidate", "candidate", candidate.Name, "error", err)
		return nil, fmt.Errorf("%w: %w", m.ErrOracleUnavailable, err)
	}

	return trace, nil
}
