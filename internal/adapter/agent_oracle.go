package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

// agentEnd terminates the reply of the loopback agent.
const agentEnd = "END"

// AgentOracleConfig configures the connection to a long-running JVM agent.
type AgentOracleConfig struct {
	Address       string
	Classpath     []string
	Timeout       time.Duration
	MaxTraceLines int
	WorkDir       string
}

// AgentOracle asks a JVM agent listening on a loopback address to load and
// run each candidate. The request is one line
//
//	loadClass <classpath> <class> <file>
//
// and the reply is the candidate's output followed by a line reading END.
type AgentOracle struct {
	config AgentOracleConfig
}

// NewAgentOracle constructs an AgentOracle.
func NewAgentOracle(cfg AgentOracleConfig) *AgentOracle {
	return &AgentOracle{config: cfg}
}

// Execute implements Oracle.
func (o *AgentOracle) Execute(ctx context.Context, candidate Candidate) ([]string, error) {
	dir, file, err := stage(o.config.WorkDir, candidate)
	if err != nil {
		slog.Error("Failed to stage candidate", "candidate", candidate.Name, "error", err)
		return nil, fmt.Errorf("%w: %w", m.ErrOracleUnavailable, err)
	}

	defer os.RemoveAll(dir)

	runCtx, cancel := withTimeout(ctx, o.config.Timeout)
	defer cancel()

	var dialer net.Dialer

	conn, err := dialer.DialContext(runCtx, "tcp", o.config.Address)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		slog.Error("Failed to reach agent", "address", o.config.Address, "error", err)

		return nil, fmt.Errorf("%w: dial %s: %w", m.ErrOracleUnavailable, o.config.Address, err)
	}

	defer conn.Close()

	var (
		trace []string
		ended bool
		done  = make(chan struct{})
	)

	group, groupCtx := errgroup.WithContext(runCtx)

	// Unblock the exchange when the deadline passes or the run is cancelled.
	group.Go(func() error {
		select {
		case <-groupCtx.Done():
			return conn.SetDeadline(time.Now())
		case <-done:
			return nil
		}
	})
	group.Go(func() error {
		defer close(done)

		request := fmt.Sprintf("loadClass %s %s %s\n", classPath(dir, o.config.Classpath), binaryName(candidate.Class), file)
		if _, err := conn.Write([]byte(request)); err != nil {
			return fmt.Errorf("send request: %w", err)
		}

		var err error

		trace, ended, err = readTrace(conn, o.config.MaxTraceLines, agentEnd)

		return err
	})

	err = group.Wait()

	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		slog.Debug("Candidate timed out", "candidate", candidate.Name, "timeout", o.config.Timeout)
		return trace, fmt.Errorf("%w: %s after %s", m.ErrOracleTimeout, candidate.Name, o.config.Timeout)
	case err != nil:
		slog.Error("Agent exchange failed", "candidate", candidate.Name, "error", err)
		return nil, fmt.Errorf("%w: %w", m.ErrOracleUnavailable, err)
	}

	if !ended {
		slog.Debug("Agent closed the connection without END", "candidate", candidate.Name)
	}

	return trace, nil
}
