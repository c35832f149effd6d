// Package core is the public API boundary of the strategy discovery and
// optimization engine: two entry points (RunOptimization,
// OptimizeStructure) and one error taxonomy (CoreError). No internal package type
// (discovery.Mutator, runtime.Evaluator, strategy.Engine) is required by
// a caller; only discovery.StrategyCandidate, discovery.BuilderConfig,
// discovery.DiscoveryConfig, optimization.AlgorithmConfig, pkg/types
// values and an optional *zap.Logger cross this boundary.
package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aeroalgo/robots-sub000/internal/discovery"
	"github.com/aeroalgo/robots-sub000/internal/optimization"
	"github.com/aeroalgo/robots-sub000/pkg/types"
)

// CoreErrorKind taxonomizes every error that can cross the core boundary.
type CoreErrorKind string

const (
	InvalidConfiguration CoreErrorKind = "invalid_configuration"
	DataUnavailable      CoreErrorKind = "data_unavailable"
	IndicatorFailure     CoreErrorKind = "indicator_failure"
	StrategyInvalid      CoreErrorKind = "strategy_invalid"
	EvaluationFailure    CoreErrorKind = "evaluation_failure"
)

// CoreError is the only error type RunOptimization/OptimizeStructure
// return; every internal error is wrapped into one of these before
// crossing the boundary.
type CoreError struct {
	Kind    CoreErrorKind
	Message string
	Cause   error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("core: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("core: %s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

func newCoreError(kind CoreErrorKind, message string, cause error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Cause: cause}
}

// EvaluatedStrategy pairs a discovered topology with its backtest report
// and fitness: the candidate's representation plus the evidence for why
// it scored the way it did.
type EvaluatedStrategy struct {
	Candidate     discovery.StrategyCandidate
	Report        types.Report
	Fitness       float64
	Generation    int
	FailureReason string
}

// FormatSummary renders the one-line strategy summary
// "<strategy_name> | PF=<x>, SR=<y>, WR=<z>%, N=<trades>".
func FormatSummary(name string, s EvaluatedStrategy) string {
	m := s.Report.Metrics
	winRatePct := m.WinRate.Mul(decimal.NewFromInt(100))
	return fmt.Sprintf("%s | PF=%s, SR=%s, WR=%s%%, N=%d",
		name,
		m.ProfitFactor.StringFixed(2),
		m.SharpeRatio.StringFixed(2),
		winRatePct.StringFixed(0),
		m.TotalTrades,
	)
}

func framesToMap(frames []types.PriceFrame) (map[types.Timeframe]types.PriceFrame, error) {
	if len(frames) == 0 {
		return nil, newCoreError(DataUnavailable, "no price frames supplied", nil)
	}
	out := make(map[types.Timeframe]types.PriceFrame, len(frames))
	for _, f := range frames {
		if err := f.Validate(); err != nil {
			return nil, newCoreError(DataUnavailable, "price frame failed validation", err)
		}
		out[f.Timeframe] = f
	}
	return out, nil
}

func toEvaluated(pop optimization.Population) []EvaluatedStrategy {
	out := make([]EvaluatedStrategy, 0, len(pop))
	for _, ind := range pop {
		if ind == nil || ind.Candidate == nil {
			continue
		}
		out = append(out, EvaluatedStrategy{
			Candidate:     *ind.Candidate,
			Report:        ind.Report,
			Fitness:       ind.Fitness,
			Generation:    ind.Generation,
			FailureReason: ind.FailureReason,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fitness > out[j].Fitness })
	return out
}

// RunOptimization discovers and optimizes an initial population of
// strategy candidates over baseTimeframe's price history, returning
// every surviving individual sorted by descending fitness.
// builderCfg/discCfg carry the discovery construction parameters the
// optimizer's initial population needs;
// DefaultBuilderConfig()/DefaultDiscoveryConfig() are used when the
// caller has none.
func RunOptimization(
	ctx context.Context,
	cfg optimization.AlgorithmConfig,
	builderCfg discovery.BuilderConfig,
	discCfg discovery.DiscoveryConfig,
	frames []types.PriceFrame,
	baseTimeframe types.Timeframe,
	existing []discovery.StrategyCandidate,
	seed int64,
	logger *zap.Logger,
) ([]EvaluatedStrategy, error) {
	if !baseTimeframe.Valid() {
		return nil, newCoreError(InvalidConfiguration, fmt.Sprintf("invalid base timeframe %q", baseTimeframe), nil)
	}
	if cfg.PopulationSize <= 0 {
		return nil, newCoreError(InvalidConfiguration, "population size must be > 0", nil)
	}

	frameMap, err := framesToMap(frames)
	if err != nil {
		return nil, err
	}
	if _, ok := frameMap[baseTimeframe]; !ok {
		return nil, newCoreError(DataUnavailable, fmt.Sprintf("no price frame supplied for base timeframe %q", baseTimeframe), nil)
	}
	discCfg.BaseTimeframe = baseTimeframe

	existingPtrs := make([]*discovery.StrategyCandidate, len(existing))
	for i := range existing {
		c := existing[i]
		existingPtrs[i] = &c
	}

	opt := optimization.NewOptimizer(cfg, builderCfg, discCfg, frameMap, logger)
	pop, err := opt.Run(ctx, seed, existingPtrs)
	if err != nil && pop == nil {
		return nil, newCoreError(EvaluationFailure, "optimization run failed", err)
	}
	return toEvaluated(pop), nil
}

// OptimizeStructure re-optimizes only the parameters of one fixed
// topology, leaving its structure untouched.
func OptimizeStructure(
	ctx context.Context,
	structure discovery.StrategyCandidate,
	cfg optimization.AlgorithmConfig,
	frames []types.PriceFrame,
	baseTimeframe types.Timeframe,
	seed int64,
	logger *zap.Logger,
) ([]EvaluatedStrategy, error) {
	if !baseTimeframe.Valid() {
		return nil, newCoreError(InvalidConfiguration, fmt.Sprintf("invalid base timeframe %q", baseTimeframe), nil)
	}
	if len(structure.Indicators) == 0 {
		return nil, newCoreError(StrategyInvalid, "structure has no indicators", nil)
	}

	frameMap, err := framesToMap(frames)
	if err != nil {
		return nil, err
	}
	if _, ok := frameMap[baseTimeframe]; !ok {
		return nil, newCoreError(DataUnavailable, fmt.Sprintf("no price frame supplied for base timeframe %q", baseTimeframe), nil)
	}

	pso := optimization.NewPerStructureOptimizer(cfg, frameMap, logger)
	pop, err := pso.OptimizeStructure(ctx, &structure, baseTimeframe, seed)
	if err != nil && pop == nil {
		return nil, newCoreError(EvaluationFailure, "per-structure optimization failed", err)
	}
	return toEvaluated(pop), nil
}
