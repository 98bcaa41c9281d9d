package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"lbcmut.dev/pkg/lbcmut/internal/adapter"
	"lbcmut.dev/pkg/lbcmut/internal/controller"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

// errRewrite marks a proposal the pipeline could not turn into a class.
var errRewrite = errors.New("rewrite failed")

// Reasons a search ends before consuming every iteration.
const (
	StopNoLiveMethod   = "no live method"
	StopTooManySkips   = "too many proposals without a mutant"
	StopOracleFailures = "oracle failed repeatedly"
	StopInterrupted    = "interrupted"
)

// Outcome summarizes a finished search.
type Outcome struct {
	Iterations int
	Summary    m.Summary
	State      *m.SearchState
	// Stopped is the reason the search ended early, empty otherwise.
	Stopped string
}

// Engine runs the coverage-guided search over one seed.
type Engine interface {
	Search(ctx context.Context, program *Program, seed []byte) (Outcome, error)
}

type engine struct {
	adapter.Oracle
	adapter.ArtifactStore
	controller.UI
	reports    adapter.ReportStore
	pipeline   *Pipeline
	heuristics *Heuristics
	rng        *rand.Rand
	config     SearchConfig
}

// NewEngine creates an Engine. Every random draw of the search comes from
// rng, so a fixed seed replays a run.
func NewEngine(
	oracle adapter.Oracle,
	artifacts adapter.ArtifactStore,
	reports adapter.ReportStore,
	ui controller.UI,
	codec adapter.ClassCodec,
	rng *rand.Rand,
	cfg SearchConfig,
) Engine {
	return &engine{
		Oracle:        oracle,
		ArtifactStore: artifacts,
		UI:            ui,
		reports:       reports,
		pipeline:      NewPipeline(codec, cfg.RewriteConfig()),
		heuristics:    NewHeuristics(rng, cfg),
		rng:           rng,
		config:        cfg,
	}
}

// Search executes the seed, then proposes, builds, runs and classifies one
// mutant per iteration. Records are persisted as they are produced, so a
// cancelled search keeps everything classified so far.
func (e *engine) Search(ctx context.Context, program *Program, seed []byte) (Outcome, error) {
	state := m.NewSearchState(program.Seed)
	out := Outcome{State: state, Summary: m.Summary{}}

	trace, err := e.trace(ctx, program, program.SimpleName(), seed)
	if err != nil {
		slog.Error("Failed to execute seed", "class", program.Class, "error", err)
		return out, fmt.Errorf("execute seed: %w", err)
	}

	coverage := state.Coverage(trace)
	if coverage == 0 {
		slog.Warn("Seed trace covers no instruction", "class", program.Class, "lines", len(trace))
	}

	state.Accept(trace, coverage)
	slog.Info("Seed executed", "class", program.Class, "coverage", coverage, "trace", len(trace))

	skips, failures := 0, 0

	for out.Iterations < e.config.MaxIterations {
		if err := ctx.Err(); err != nil {
			out.Stopped = StopInterrupted
			return out, err
		}

		proposal, err := e.heuristics.Propose(out.Iterations, program, state)

		switch {
		case errors.Is(err, m.ErrNothingToRemove):
			skips++
			if e.config.MaxSkips > 0 && skips >= e.config.MaxSkips {
				out.Stopped = StopTooManySkips
				return out, nil
			}

			continue
		case errors.Is(err, m.ErrNoLiveMethod):
			slog.Warn("No method ran in the current trace", "iteration", out.Iterations)

			out.Stopped = StopNoLiveMethod

			return out, nil
		case err != nil:
			return out, fmt.Errorf("propose mutation %d: %w", out.Iterations, err)
		}

		skips = 0
		out.Iterations++

		record, err := e.iterate(ctx, program, state, seed, proposal)

		switch {
		case ctx.Err() != nil:
			out.Stopped = StopInterrupted
			return out, ctx.Err()
		case errors.Is(err, errRewrite):
			slog.Warn("Skipping mutation", "sequence", proposal.SequenceID, "error", err)
			continue
		case errors.Is(err, m.ErrOracleUnavailable):
			failures++
			slog.Warn("Oracle unavailable", "sequence", proposal.SequenceID, "failures", failures, "error", err)

			if failures >= max(e.config.MaxOracleFailures, 1) {
				out.Stopped = StopOracleFailures
				return out, err
			}

			continue
		case err != nil:
			return out, err
		}

		failures = 0
		out.Summary[record.Verdict]++

		e.DisplayIteration(ctx, record, m.Progress{
			Iteration:     out.Iterations,
			MaxIterations: e.config.MaxIterations,
			Coverage:      state.CurrentCoverage,
			TotalLive:     state.TotalLive.Cardinality(),
			SeedSize:      state.Seed.Cardinality(),
			Summary:       out.Summary,
		})
	}

	return out, nil
}

// iterate builds, executes and classifies the mutant of proposal.
func (e *engine) iterate(ctx context.Context, program *Program, state *m.SearchState, seed []byte, proposal m.Mutation) (m.Record, error) {
	artifact := proposal.Artifact(program.SimpleName())
	record := m.Record{
		SequenceID: proposal.SequenceID,
		Artifact:   artifact,
		Mutation:   proposal,
		Time:       time.Now(),
	}

	mutant, err := e.pipeline.Mutate(seed, program, &proposal)
	if err != nil {
		return record, fmt.Errorf("%w: %s: %w", errRewrite, artifact, err)
	}

	if _, err := e.SaveMutant(artifact, program.Class, mutant); err != nil {
		return record, err
	}

	trace, err := e.trace(ctx, program, artifact, mutant)

	switch {
	case ctx.Err() != nil:
		_ = e.Discard(artifact)
		return record, ctx.Err()
	case errors.Is(err, m.ErrOracleTimeout):
		record.Verdict = m.NonLive
		record.Reason = "timeout"
	case err != nil:
		if discardErr := e.Discard(artifact); discardErr != nil {
			slog.Warn("Failed to discard artifact", "artifact", artifact, "error", discardErr)
		}

		return record, err
	default:
		decision := Decide(state, trace, e.config.Beta, e.rng.Float64())
		record.Verdict = decision.Verdict
		record.Coverage = decision.Coverage
		record.Probability = decision.Probability

		if decision.Verdict == m.Accepted {
			if err := e.accept(program, state, proposal, trace, decision.Coverage); err != nil {
				return record, err
			}
		}
	}

	if _, err := e.Classify(artifact, record.Verdict); err != nil {
		return record, err
	}

	if err := e.reports.Append(record); err != nil {
		return record, err
	}

	slog.Info("Classified mutant", "artifact", artifact, "operator", proposal.Operator,
		"method", proposal.Method, "verdict", record.Verdict, "coverage", record.Coverage)

	return record, nil
}

func (e *engine) accept(program *Program, state *m.SearchState, proposal m.Mutation, trace []string, coverage float64) error {
	method, ok := program.Method(proposal.Method)
	if !ok {
		return fmt.Errorf("accept mutation %d: unknown method %s", proposal.SequenceID, proposal.Method)
	}

	if err := method.Apply(proposal); err != nil {
		slog.Error("Failed to apply accepted mutation", "sequence", proposal.SequenceID, "error", err)
		return fmt.Errorf("accept mutation %d: %w", proposal.SequenceID, err)
	}

	state.Accept(trace, coverage)

	return nil
}

// trace instruments binary and executes it.
func (e *engine) trace(ctx context.Context, program *Program, name string, binary []byte) ([]string, error) {
	instrumented, err := e.pipeline.Instrument(binary, program)
	if err != nil {
		return nil, fmt.Errorf("%w: instrument %s: %w", errRewrite, name, err)
	}

	return e.Execute(ctx, adapter.Candidate{Name: name, Class: program.Class, Binary: instrumented})
}
