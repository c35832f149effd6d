// Package strategy implements the condition evaluator, rule combinator,
// position lifecycle, stop/take handler dispatch, and backtest report
// generation for a compiled strategy definition.
package strategy

import (
	"fmt"

	"github.com/aeroalgo/robots-sub000/internal/indicators"
	"github.com/aeroalgo/robots-sub000/internal/runtime"
	"github.com/aeroalgo/robots-sub000/pkg/types"
)

// Operator is the condition evaluator family name.
type Operator string

const (
	OpGreaterThan    Operator = "GreaterThan"
	OpLessThan       Operator = "LessThan"
	OpAbove          Operator = "Above"
	OpBelow          Operator = "Below"
	OpCrossesAbove   Operator = "CrossesAbove"
	OpCrossesBelow   Operator = "CrossesBelow"
	OpRisingTrend    Operator = "RisingTrend"
	OpFallingTrend   Operator = "FallingTrend"
	OpGreaterPercent Operator = "GreaterPercent"
	OpLowerPercent   Operator = "LowerPercent"
	OpBetween        Operator = "Between"
)

// SourceKind discriminates what a condition input Source resolves against.
type SourceKind int

const (
	SourceIndicator SourceKind = iota
	SourcePriceField
	SourceConstant
)

// Source names one side of a comparison: an indicator alias (optionally
// pinned to a specific timeframe), a price field on a timeframe, or a
// named constant.
type Source struct {
	Kind      SourceKind
	Alias     string
	Timeframe types.Timeframe // zero value means "use the condition's own timeframe"
	Field     string          // "open"|"high"|"low"|"close"|"volume", when Kind == SourcePriceField
	Constant  float64
}

// InputShape selects which fields of InputSpec are meaningful.
type InputShape string

const (
	ShapeSingle         InputShape = "single"
	ShapeDual           InputShape = "dual"
	ShapeDualWithPercent InputShape = "dual_with_percent"
	ShapeRange          InputShape = "range"
	ShapeIndexed        InputShape = "indexed"
	ShapeOhlc           InputShape = "ohlc"
)

// InputSpec is the condition's data-source shape.
type InputSpec struct {
	Shape     InputShape
	Primary   Source
	Secondary Source
	Percent   float64
	Lower     Source
	Upper     Source
	Offset    int
}

// ConditionBinding is {id, timeframe, operator, input_spec, parameters,
// weight}.
type ConditionBinding struct {
	ID         string
	Timeframe  types.Timeframe
	Operator   Operator
	Input      InputSpec
	Parameters map[string]float64 // e.g. "period" for trend operators
	Weight     float64
}

// RuleLogic is the combination mode over a rule's referenced conditions.
type RuleLogic struct {
	Mode     LogicMode
	AtLeastK int     // meaningful when Mode == LogicAtLeast
	MinTotal float64 // meaningful when Mode == LogicWeighted
}

type LogicMode string

const (
	LogicAll      LogicMode = "All"
	LogicAny      LogicMode = "Any"
	LogicAtLeast  LogicMode = "AtLeast"
	LogicWeighted LogicMode = "Weighted"
)

// SignalType distinguishes entry vs exit rules.
type SignalType string

const (
	SignalEntry SignalType = "entry"
	SignalExit  SignalType = "exit"
)

// Rule is {id, logic, conditions, signal, direction, quantity?,
// target_entry_ids}.
type Rule struct {
	ID             string
	Logic          RuleLogic
	ConditionIDs   []string
	Signal         SignalType
	Direction      types.Direction
	Quantity       float64 // 0 means "use default quantity"
	TargetEntryIDs []string
}

// StrategyDefinition is the full, validated strategy topology plus
// concrete parameters: metadata, bindings, formulas, conditions, rules,
// handlers, and defaults.
type StrategyDefinition struct {
	Name               string
	IndicatorBindings  []runtime.IndicatorBinding
	ConditionBindings  []ConditionBinding
	EntryRules         []Rule
	ExitRules          []Rule
	StopHandlers       []StopTakeHandler
	TakeHandlers       []StopTakeHandler
	DefaultQuantity    float64
	BaseTimeframe      types.Timeframe
}

// Validate checks the structural invariants: every
// condition referenced by a rule exists, every indicator alias referenced
// by a condition exists, and every timeframe referenced is represented in
// frames.
func (d *StrategyDefinition) Validate(frames map[types.Timeframe]types.PriceFrame) error {
	if _, ok := frames[d.BaseTimeframe]; !ok {
		return &Error{Kind: ErrMissingPriceSeries, Message: fmt.Sprintf("no price frame for base timeframe %s", d.BaseTimeframe)}
	}
	conditionIDs := make(map[string]bool, len(d.ConditionBindings))
	aliases := make(map[string]bool, len(d.IndicatorBindings))
	for _, c := range d.ConditionBindings {
		conditionIDs[c.ID] = true
	}
	for _, b := range d.IndicatorBindings {
		aliases[b.Alias] = true
		if _, ok := frames[b.Timeframe]; !ok {
			return &Error{Kind: ErrMissingPriceSeries, Message: fmt.Sprintf("indicator %q: no price frame for timeframe %s", b.Alias, b.Timeframe)}
		}
	}
	checkSource := func(s Source) error {
		if s.Kind == SourceIndicator && !aliases[s.Alias] {
			return &Error{Kind: ErrUnknownConditionReference, Message: fmt.Sprintf("condition references unknown indicator alias %q", s.Alias)}
		}
		return nil
	}
	for _, c := range d.ConditionBindings {
		if _, ok := frames[c.Timeframe]; !ok {
			return &Error{Kind: ErrMissingPriceSeries, Message: fmt.Sprintf("condition %q: no price frame for timeframe %s", c.ID, c.Timeframe)}
		}
		if err := checkSource(c.Input.Primary); err != nil {
			return err
		}
		switch c.Input.Shape {
		case ShapeDual, ShapeDualWithPercent:
			if err := checkSource(c.Input.Secondary); err != nil {
				return err
			}
		case ShapeRange:
			if err := checkSource(c.Input.Lower); err != nil {
				return err
			}
			if err := checkSource(c.Input.Upper); err != nil {
				return err
			}
		}
	}
	checkRule := func(r Rule) error {
		for _, cid := range r.ConditionIDs {
			if !conditionIDs[cid] {
				return &Error{Kind: ErrUnknownConditionReference, Message: fmt.Sprintf("rule %q references unknown condition %q", r.ID, cid)}
			}
		}
		switch r.Logic.Mode {
		case LogicAll, LogicAny, LogicAtLeast, LogicWeighted:
		default:
			return &Error{Kind: ErrUnsupportedRuleLogic, Message: string(r.Logic.Mode)}
		}
		return nil
	}
	for _, r := range d.EntryRules {
		if err := checkRule(r); err != nil {
			return err
		}
	}
	for _, r := range d.ExitRules {
		if err := checkRule(r); err != nil {
			return err
		}
	}
	return nil
}

// defaultParamSetFor is a small helper used by builders/tests to construct
// a one-parameter ParameterSet quickly.
func defaultParamSetFor(name string, current float64, lo, hi float64) indicators.ParameterSet {
	return indicators.NewParameterSet(indicators.ParameterSpec{
		Name: name, Current: current,
		Range: indicators.ParameterRange{Start: lo, End: hi, Step: 1},
		Type:  indicators.ParamPeriod,
	})
}
