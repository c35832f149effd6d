package optimization

import (
	"github.com/aeroalgo/robots-sub000/internal/discovery"
	"github.com/aeroalgo/robots-sub000/pkg/types"
)

// Individual is one member of the population: a strategy topology plus
// its inline parameters, and the fitness computed for it against one
// evaluation dataset.
type Individual struct {
	Candidate     *discovery.StrategyCandidate
	Report        types.Report
	Fitness       float64
	Evaluated     bool
	Generation    int
	IslandID      int
	FailureReason string // set when evaluation failed; fitness is 0 and Report is absent
}

// Population is an ordered slice of individuals, conventionally sorted
// by descending fitness after each generation's evaluation step.
type Population []*Individual

// Best returns the highest-fitness individual, or nil if empty.
func (p Population) Best() *Individual {
	if len(p) == 0 {
		return nil
	}
	best := p[0]
	for _, ind := range p[1:] {
		if ind.Fitness > best.Fitness {
			best = ind
		}
	}
	return best
}

// Clone deep-copies the individual's candidate, leaving fitness/report
// unevaluated (a clone is always re-evaluated after structural change).
func (ind *Individual) Clone() *Individual {
	return &Individual{Candidate: ind.Candidate.Clone()}
}
