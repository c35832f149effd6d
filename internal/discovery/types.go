// Package discovery generates random, topologically valid strategy
// candidates: which indicators, conditions, stop/take handlers and
// timeframes participate, subject to a rules registry of pair-wise
// compatibility constraints. A candidate names structure
// only; concrete parameter values live inline on each element and are the
// surface the optimizer's parameter mutation perturbs.
package discovery

import (
	"github.com/aeroalgo/robots-sub000/internal/runtime"
	"github.com/aeroalgo/robots-sub000/internal/strategy"
	"github.com/aeroalgo/robots-sub000/pkg/types"
)

// HandlerSpec describes one stop/take handler before it is bound to a
// concrete strategy.StopTakeHandler implementation (see Materialize).
type HandlerSpec struct {
	ID          string
	Name        string // e.g. "StopLossPct", "ATRTrailStop"
	Params      map[string]float64
	Timeframe   types.Timeframe
	AnchorAlias string // indicator alias this handler trails, for indicator-anchored families
}

// StrategyCandidate is a strategy topology: the set of indicators (including nested ones, distinguished
// by runtime.SourceNested bindings), conditions, stop/take handlers and
// timeframes that participate, plus the discovery configuration it was
// built under. Parameter values are carried inline on each element
// (ParameterSet.Current on indicator bindings, map entries on condition
// and handler specs) rather than through a separate parameter-map
// indirection.
type StrategyCandidate struct {
	ID              string
	BaseTimeframe   types.Timeframe
	Timeframes      []types.Timeframe
	Indicators      []runtime.IndicatorBinding
	EntryConditions []strategy.ConditionBinding
	ExitConditions  []strategy.ConditionBinding
	StopHandlers    []HandlerSpec
	TakeHandlers    []HandlerSpec
	Discovery       DiscoveryConfig
}

// Clone returns a deep copy safe to mutate independently of the original
// (used by crossover/mutation so a parent's candidate is never aliased
// into two children).
func (c *StrategyCandidate) Clone() *StrategyCandidate {
	out := &StrategyCandidate{
		ID:            c.ID,
		BaseTimeframe: c.BaseTimeframe,
		Discovery:     c.Discovery,
	}
	out.Timeframes = append([]types.Timeframe(nil), c.Timeframes...)
	out.Indicators = make([]runtime.IndicatorBinding, len(c.Indicators))
	for i, b := range c.Indicators {
		b.Source.Params = b.Source.Params.Clone()
		out.Indicators[i] = b
	}
	out.EntryConditions = cloneConditions(c.EntryConditions)
	out.ExitConditions = cloneConditions(c.ExitConditions)
	out.StopHandlers = cloneHandlers(c.StopHandlers)
	out.TakeHandlers = cloneHandlers(c.TakeHandlers)
	return out
}

func cloneConditions(in []strategy.ConditionBinding) []strategy.ConditionBinding {
	out := make([]strategy.ConditionBinding, len(in))
	for i, cb := range in {
		params := make(map[string]float64, len(cb.Parameters))
		for k, v := range cb.Parameters {
			params[k] = v
		}
		cb.Parameters = params
		out[i] = cb
	}
	return out
}

func cloneHandlers(in []HandlerSpec) []HandlerSpec {
	out := make([]HandlerSpec, len(in))
	for i, h := range in {
		params := make(map[string]float64, len(h.Params))
		for k, v := range h.Params {
			params[k] = v
		}
		h.Params = params
		out[i] = h
	}
	return out
}

// IndicatorAliases returns the set of every alias present in the
// candidate's indicator set (direct or nested), used by the alias
// integrity check after structural crossover/mutation.
func (c *StrategyCandidate) IndicatorAliases() map[string]bool {
	out := make(map[string]bool, len(c.Indicators))
	for _, b := range c.Indicators {
		out[b.Alias] = true
	}
	return out
}

// DiscoveryConfig bounds what the builder may construct.
type DiscoveryConfig struct {
	MaxOptimizationParams    int
	TimeframeCount           int
	BaseTimeframe            types.Timeframe
	AllowIndicatorOnIndicator bool
	MaxIndicatorDepth        int
}

// DefaultDiscoveryConfig returns sensible defaults.
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		MaxOptimizationParams:     12,
		TimeframeCount:            2,
		BaseTimeframe:             types.Timeframe1h,
		AllowIndicatorOnIndicator: true,
		MaxIndicatorDepth:         2,
	}
}

// ElementCounts are the per-element-class min/max constraints the
// builder and mutator honor.
type ElementCounts struct {
	MinIndicators, MaxIndicators             int
	MinEntryConditions, MaxEntryConditions    int
	MinExitConditions, MaxExitConditions      int
	MinStopHandlers, MaxStopHandlers          int
	MinTakeHandlers, MaxTakeHandlers          int
	MinTimeframes, MaxTimeframes              int
}

// Probabilities are the per-element-class and phase-continuation
// probabilities driving random construction.
type Probabilities struct {
	AddIndicator      float64
	AddEntryCondition float64
	AddExitCondition  float64
	AddTimeframe      float64
	AddStopHandler    float64
	AddTakeHandler    float64
	ContinueBuilding  float64 // base probability of continuing past phase 1; decays per phase
	ContinueDecay     float64 // multiplicative decay applied to ContinueBuilding per phase
}

// DependencyRule fires after phase 1 to add missing obligatory companions.
type DependencyRule struct {
	IfHandler      string
	RequireHandler string
	RequireIsStop  bool // the required companion belongs in StopHandlers (false = TakeHandlers)
	DefaultParams  map[string]float64
}

// BuilderConfig is the full candidate-builder configuration.
type BuilderConfig struct {
	Elements        ElementCounts
	Probabilities   Probabilities
	DependencyRules []DependencyRule
	MaxPhases       int
}

// DefaultBuilderConfig returns the defaults used when generating the
// initial population.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		Elements: ElementCounts{
			MinIndicators: 1, MaxIndicators: 5,
			MinEntryConditions: 1, MaxEntryConditions: 4,
			MinExitConditions: 0, MaxExitConditions: 3,
			MinStopHandlers: 1, MaxStopHandlers: 2,
			MinTakeHandlers: 0, MaxTakeHandlers: 2,
			MinTimeframes: 1, MaxTimeframes: 3,
		},
		Probabilities: Probabilities{
			AddIndicator:      0.5,
			AddEntryCondition: 0.4,
			AddExitCondition:  0.3,
			AddTimeframe:      0.2,
			AddStopHandler:    0.2,
			AddTakeHandler:    0.25,
			ContinueBuilding:  0.7,
			ContinueDecay:     0.75,
		},
		DependencyRules: []DependencyRule{
			{IfHandler: "StopLossPct", RequireHandler: "TakeProfitPct", RequireIsStop: false, DefaultParams: map[string]float64{"pct": 0.05}},
		},
		MaxPhases: 8,
	}
}
