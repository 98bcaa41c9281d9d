package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

func TestAcceptanceProbability(t *testing.T) {
	assert.InDelta(t, 1.0, AcceptanceProbability(0.08, 0.5, 0.5), 1e-12)
	assert.InDelta(t, 1.0, AcceptanceProbability(0.08, 0.9, 0.5), 1e-12)
	assert.InDelta(t, math.Exp(-0.008), AcceptanceProbability(0.08, 0.4, 0.5), 1e-12)
	assert.InDelta(t, 1.0, AcceptanceProbability(0, 0.1, 0.9), 1e-12)
}

func TestDecide(t *testing.T) {
	state := m.NewSearchState([]string{"a", "b"})
	state.Accept([]string{"a", "b"}, 1)

	nonlive := Decide(state, []string{"x"}, 0.08, 0)
	assert.Equal(t, m.NonLive, nonlive.Verdict)
	assert.Zero(t, nonlive.Coverage)

	p := math.Exp(0.08 * -0.5)

	rejected := Decide(state, []string{"a"}, 0.08, 0.99)
	assert.Equal(t, m.Rejected, rejected.Verdict)
	assert.InDelta(t, 0.5, rejected.Coverage, 1e-12)
	assert.InDelta(t, p, rejected.Probability, 1e-12)

	accepted := Decide(state, []string{"a"}, 0.08, 0.5)
	assert.Equal(t, m.Accepted, accepted.Verdict)

	equal := Decide(state, []string{"b", "a"}, 0.08, 0.999)
	assert.Equal(t, m.Accepted, equal.Verdict)
	assert.InDelta(t, 1.0, equal.Probability, 1e-12)
}
