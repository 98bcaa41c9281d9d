package domain

import (
	"fmt"
	"log/slog"

	"lbcmut.dev/pkg/lbcmut/internal/adapter"
	"lbcmut.dev/pkg/lbcmut/internal/classfile"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

// RewriteConfig holds the constants the rewriting passes emit.
type RewriteConfig struct {
	// LoopCount bounds how often a hijack fires per method invocation.
	LoopCount int
	// StackMargin is added to max stack once per counter.
	StackMargin int
}

// PassContext is everything a pass reads or records. Passes own no other
// state, so a pipeline run can be replayed from the seed and a context.
type PassContext struct {
	Program  *Program
	Proposal *m.Mutation
	Config   RewriteConfig
	// Markers maps a method key and a target identifier to the name of the
	// marker placed in front of the target.
	Markers map[string]map[string]string
	// Counters maps a method key and a descriptor sequence id to the local
	// slot of its counter.
	Counters map[string]map[int]int
}

// NewPassContext returns an empty context for one pipeline run.
func NewPassContext(program *Program, proposal *m.Mutation, cfg RewriteConfig) *PassContext {
	return &PassContext{
		Program:  program,
		Proposal: proposal,
		Config:   cfg,
		Markers:  map[string]map[string]string{},
		Counters: map[string]map[int]int{},
	}
}

// proposes reports whether the proposal belongs to method.
func (pc *PassContext) proposes(method *m.Method) bool {
	return pc.Proposal != nil && pc.Proposal.Method == method.Name
}

// eachTouched calls fn for every method with code that holds pending
// mutations.
func (pc *PassContext) eachTouched(class *classfile.Class, fn func(*m.Method, *classfile.Method) error) error {
	for _, cm := range class.Methods {
		if cm.Code == nil {
			continue
		}

		method, ok := pc.Program.Method(cm.Key())
		if !ok || !method.Touched(pc.Proposal) {
			continue
		}

		if err := fn(method, cm); err != nil {
			return err
		}
	}

	return nil
}

// Pass is one stage of the rewriting pipeline.
type Pass interface {
	Name() string
	Apply(pc *PassContext, class *classfile.Class) error
}

// Pipeline rewrites class binaries. Every pass decodes the output of the
// previous one and encodes a fresh binary.
type Pipeline struct {
	adapter.ClassCodec
	config RewriteConfig
}

// NewPipeline creates a Pipeline using codec.
func NewPipeline(codec adapter.ClassCodec, cfg RewriteConfig) *Pipeline {
	return &Pipeline{ClassCodec: codec, config: cfg}
}

// Mutate builds the mutant for proposal from the seed binary: every accepted
// mutation of program plus the proposal.
func (p *Pipeline) Mutate(seed []byte, program *Program, proposal *m.Mutation) ([]byte, error) {
	pc := NewPassContext(program, proposal, p.config)
	return p.Run(seed, pc, labelingPass{}, counterPass{}, injectionPass{})
}

// Instrument prefixes every original instruction with a print of its
// identifier.
func (p *Pipeline) Instrument(binary []byte, program *Program) ([]byte, error) {
	pc := NewPassContext(program, nil, p.config)
	return p.Run(binary, pc, instrumentationPass{})
}

// Run applies passes in order.
func (p *Pipeline) Run(data []byte, pc *PassContext, passes ...Pass) ([]byte, error) {
	for _, pass := range passes {
		class, err := p.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s pass: %w", pass.Name(), err)
		}

		if err := pass.Apply(pc, class); err != nil {
			slog.Debug("Pass failed", "pass", pass.Name(), "error", err)
			return nil, fmt.Errorf("%s pass: %w", pass.Name(), err)
		}

		if data, err = p.Encode(class, classfile.FramesDrop); err != nil {
			return nil, fmt.Errorf("%s pass: %w", pass.Name(), err)
		}
	}

	return data, nil
}
