package model

import (
	"fmt"
	"strings"
	"time"
)

// Verdict is the classification of one generated mutant.
type Verdict string

const (
	// Accepted mutants were folded into the search state.
	Accepted Verdict = "ACC"
	// Rejected mutants ran but lost the acceptance draw.
	Rejected Verdict = "REJ"
	// NonLive mutants executed none of the seed's instructions.
	NonLive Verdict = "NONLIVE"
)

// Verdicts lists every verdict in report order.
var Verdicts = []Verdict{Accepted, Rejected, NonLive}

// ParseVerdict reads a verdict written by Verdict.String.
func ParseVerdict(s string) (Verdict, error) {
	for _, v := range Verdicts {
		if string(v) == strings.TrimSpace(s) {
			return v, nil
		}
	}

	return "", fmt.Errorf("unknown verdict %q", s)
}

func (v Verdict) String() string {
	return string(v)
}

// Dir is the artifact directory mutants with this verdict are moved to.
func (v Verdict) Dir() string {
	return strings.ToLower(string(v))
}

// Record is the outcome of one iteration that produced a mutant.
type Record struct {
	SequenceID  int       `json:"sequence_id" yaml:"sequence_id"`
	Artifact    string    `json:"artifact" yaml:"artifact"`
	Verdict     Verdict   `json:"verdict" yaml:"verdict"`
	Mutation    Mutation  `json:"mutation" yaml:"mutation"`
	Coverage    float64   `json:"coverage" yaml:"coverage"`
	Probability float64   `json:"probability" yaml:"probability"`
	Reason      string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Time        time.Time `json:"time" yaml:"time"`
}

// ResultLine renders the record as a line of the results file.
func (r Record) ResultLine() string {
	return fmt.Sprintf("%s, %s", r.Artifact, r.Verdict)
}

// Summary counts records per verdict.
type Summary map[Verdict]int

// Summarize tallies records.
func Summarize(records []Record) Summary {
	s := Summary{}
	for _, r := range records {
		s[r.Verdict]++
	}

	return s
}

// Total returns the number of records counted.
func (s Summary) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}

	return n
}

// Parameters are the search constants of one run.
type Parameters struct {
	MaxIterations int        `yaml:"max_iterations"`
	LoopCount     int        `yaml:"loop_count"`
	Beta          float64    `yaml:"beta"`
	ProbLow       float64    `yaml:"prob_low"`
	ProbHigh      float64    `yaml:"prob_high"`
	Epsilon       float64    `yaml:"epsilon"`
	RandomSeed    uint64     `yaml:"random_seed"`
	Operators     []Operator `yaml:"operators,flow"`
}

// Manifest describes a finished or interrupted run.
type Manifest struct {
	RunID      string                `yaml:"run_id"`
	Seed       string                `yaml:"seed"`
	SeedHash   string                `yaml:"seed_hash,omitempty"`
	Class      string                `yaml:"class"`
	Started    time.Time             `yaml:"started"`
	Finished   time.Time             `yaml:"finished"`
	Parameters Parameters            `yaml:"parameters"`
	Iterations int                   `yaml:"iterations"`
	Coverage   float64               `yaml:"coverage"`
	SeedSize   int                   `yaml:"seed_size"`
	TotalLive  int                   `yaml:"total_live"`
	Totals     map[Verdict]int       `yaml:"totals"`
	Accepted   map[string][]Mutation `yaml:"accepted,omitempty"`
	Stopped    string                `yaml:"stopped,omitempty"`
}

// Progress is a snapshot of the search shown after every iteration.
type Progress struct {
	Iteration     int
	MaxIterations int
	Coverage      float64
	TotalLive     int
	SeedSize      int
	Summary       Summary
}
