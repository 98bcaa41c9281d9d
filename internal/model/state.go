package model

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// SearchState is the coverage feedback shared by all iterations of one run.
type SearchState struct {
	// Seed holds every instruction identifier of the seed. Fixed after disassembly.
	Seed mapset.Set[string]
	// TotalLive grows with the trace of every accepted mutant.
	TotalLive mapset.Set[string]
	// CurrentLive is the trace of the most recently accepted mutant.
	CurrentLive []string
	// CurrentCoverage is Coverage(CurrentLive).
	CurrentCoverage float64

	current mapset.Set[string]
}

// NewSearchState returns a state over the seed identifiers.
func NewSearchState(seed []string) *SearchState {
	return &SearchState{
		Seed:      mapset.NewThreadUnsafeSet(seed...),
		TotalLive: mapset.NewThreadUnsafeSet[string](),
		current:   mapset.NewThreadUnsafeSet[string](),
	}
}

// Coverage returns the fraction of seed instructions present in trace. An
// empty seed has zero coverage.
func (s *SearchState) Coverage(trace []string) float64 {
	if s.Seed.Cardinality() == 0 {
		return 0
	}

	hit := mapset.NewThreadUnsafeSet[string]()

	for _, id := range trace {
		if s.Seed.Contains(id) {
			hit.Add(id)
		}
	}

	return float64(hit.Cardinality()) / float64(s.Seed.Cardinality())
}

// Accept makes trace the current trace and folds it into TotalLive.
func (s *SearchState) Accept(trace []string, coverage float64) {
	s.CurrentLive = trace
	s.CurrentCoverage = coverage
	s.current = mapset.NewThreadUnsafeSet(trace...)

	for _, id := range trace {
		s.TotalLive.Add(id)
	}
}

// IsCurrentlyLive reports whether id ran in the current trace.
func (s *SearchState) IsCurrentlyLive(id string) bool {
	return s.current.Contains(id)
}

// EverLive reports whether id ran in any accepted trace.
func (s *SearchState) EverLive(id string) bool {
	return s.TotalLive.Contains(id)
}
