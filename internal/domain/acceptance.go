package domain

import (
	"math"

	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

// AcceptanceProbability is the Metropolis rule min(1, exp(beta*(c-b))).
func AcceptanceProbability(beta, candidate, baseline float64) float64 {
	return math.Min(1, math.Exp(beta*(candidate-baseline)))
}

// Decision is the classification of one executed candidate.
type Decision struct {
	Verdict     m.Verdict
	Coverage    float64
	Probability float64
}

// Decide classifies trace against the current state using r, a uniform draw
// from [0, 1). Candidates that ran none of the seed are not live.
func Decide(state *m.SearchState, trace []string, beta, r float64) Decision {
	c := state.Coverage(trace)
	if c == 0 {
		return Decision{Verdict: m.NonLive}
	}

	p := AcceptanceProbability(beta, c, state.CurrentCoverage)
	if p > r {
		return Decision{Verdict: m.Accepted, Coverage: c, Probability: p}
	}

	return Decision{Verdict: m.Rejected, Coverage: c, Probability: p}
}
