package optimization

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/aeroalgo/robots-sub000/internal/discovery"
	"github.com/aeroalgo/robots-sub000/internal/strategy"
	"github.com/aeroalgo/robots-sub000/pkg/types"
)

// Evaluator materializes a candidate into a compiled strategy definition,
// runs it bar-by-bar over the held price frames, and scores the resulting
// report. It holds only the shared, read-only price frames and run
// settings, so one Evaluator serves a whole optimizer run across
// concurrent workers; each Evaluate call builds its own strategy engine
// and indicator runtime, whose cache is therefore never shared.
type Evaluator struct {
	Frames        map[types.Timeframe]types.PriceFrame
	BaseTimeframe types.Timeframe
	StartingCash  float64
	Logger        *zap.Logger
}

// NewEvaluator constructs an Evaluator over a fixed set of price frames
// held by shared immutable reference for the lifetime of the optimizer
// run.
func NewEvaluator(frames map[types.Timeframe]types.PriceFrame, baseTimeframe types.Timeframe, startingCash float64, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{Frames: frames, BaseTimeframe: baseTimeframe, StartingCash: startingCash, Logger: logger}
}

// Evaluate runs one candidate to completion and returns its Individual.
// Materialization, preparation, or per-bar evaluation failures are
// isolated to this individual:
// fitness is set to 0, the report is absent, and the failure is recorded
// in FailureReason rather than returned as an error (which is reserved
// for genuinely fatal configuration problems the caller never expects to
// see per-individual).
func (e *Evaluator) Evaluate(c *discovery.StrategyCandidate, thresholds FitnessThresholds, weights FitnessWeights) *Individual {
	ind := &Individual{Candidate: c}

	def, err := discovery.Materialize(c, "candidate_"+c.ID, 1.0)
	if err != nil {
		ind.FailureReason = fmt.Sprintf("materialize: %v", err)
		return ind
	}
	def.BaseTimeframe = e.BaseTimeframe

	eng, err := strategy.NewEngine(def, e.Frames, e.Logger)
	if err != nil {
		ind.FailureReason = fmt.Sprintf("prepare: %v", err)
		return ind
	}

	report := eng.Run(e.StartingCash)
	ind.Report = report
	ind.Evaluated = true
	ind.Fitness = ComputeFitness(report, thresholds, weights)
	return ind
}
