package adapter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

// waitDelay bounds how long Wait keeps reading a killed JVM's pipes.
const waitDelay = 2 * time.Second

// ProcessOracleConfig configures the JVM launched per candidate.
type ProcessOracleConfig struct {
	Java          string
	JVMArgs       []string
	Classpath     []string
	Timeout       time.Duration
	MaxTraceLines int
	// WorkDir holds the staged candidates, the system temp dir when empty.
	WorkDir string
}

// ProcessOracle runs every candidate in a fresh JVM and reads the trace from
// its standard output.
type ProcessOracle struct {
	config ProcessOracleConfig
}

// NewProcessOracle constructs a ProcessOracle.
func NewProcessOracle(cfg ProcessOracleConfig) *ProcessOracle {
	if cfg.Java == "" {
		cfg.Java = "java"
	}

	return &ProcessOracle{config: cfg}
}

// Execute implements Oracle.
func (o *ProcessOracle) Execute(ctx context.Context, candidate Candidate) ([]string, error) {
	dir, _, err := stage(o.config.WorkDir, candidate)
	if err != nil {
		slog.Error("Failed to stage candidate", "candidate", candidate.Name, "error", err)
		return nil, fmt.Errorf("%w: %w", m.ErrOracleUnavailable, err)
	}

	defer os.RemoveAll(dir)

	runCtx, cancel := withTimeout(ctx, o.config.Timeout)
	defer cancel()

	args := append(slices.Clone(o.config.JVMArgs), "-cp", classPath(dir, o.config.Classpath), binaryName(candidate.Class))
	cmd := exec.CommandContext(runCtx, o.config.Java, args...)
	cmd.WaitDelay = waitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", m.ErrOracleUnavailable, err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", m.ErrOracleUnavailable, err)
	}

	if err := cmd.Start(); err != nil {
		slog.Error("Failed to start JVM", "java", o.config.Java, "error", err)
		return nil, fmt.Errorf("%w: start %s: %w", m.ErrOracleUnavailable, o.config.Java, err)
	}

	var (
		trace []string
		last  string
		group errgroup.Group
	)

	group.Go(func() error {
		var err error

		trace, _, err = readTrace(stdout, o.config.MaxTraceLines, "")

		return err
	})
	group.Go(func() error {
		var err error

		last, err = lastLine(stderr)

		return err
	})

	readErr := group.Wait()
	waitErr := cmd.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		slog.Debug("Candidate timed out", "candidate", candidate.Name, "timeout", o.config.Timeout)
		return trace, fmt.Errorf("%w: %s after %s", m.ErrOracleTimeout, candidate.Name, o.config.Timeout)
	}

	var exit *exec.ExitError

	switch {
	case errors.As(waitErr, &exit):
		slog.Debug("Candidate exited abnormally", "candidate", candidate.Name, "code", exit.ExitCode(), "stderr", last)
	case waitErr != nil:
		slog.Error("Failed to run candidate", "candidate", candidate.Name, "error", waitErr)
		return nil, fmt.Errorf("%w: %w", m.ErrOracleUnavailable, waitErr)
	}

	if readErr != nil {
		slog.Warn("Candidate output was not fully read", "candidate", candidate.Name, "error", readErr)
	}

	return trace, nil
}

// withTimeout applies timeout when it is positive.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}

// lastLine drains r and returns its last non-empty line.
func lastLine(r io.Reader) (string, error) {
	var last string

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for sc.Scan() {
		if line := sc.Text(); line != "" {
			last = line
		}
	}

	return last, sc.Err()
}
