package strategy

import (
	"github.com/aeroalgo/robots-sub000/internal/runtime"
	"github.com/aeroalgo/robots-sub000/pkg/types"
)

// HandlerDecision is what a stop/take handler returns for one bar: whether
// the position should exit now, and at what price.
type HandlerDecision struct {
	ShouldExit bool
	ExitPrice  float64
	Reason     types.ExitReason
}

// StopTakeHandler is the shared two-method contract for every stop/take
// family. ComputeStopLevel updates and returns the handler's internal
// notion of "current stop level" for the position (monotonic tightening
// for trailing families); Evaluate checks whether the current bar's
// price action has crossed that level, accounting for gap-through exits.
type StopTakeHandler interface {
	Name() string
	Priority() int
	AuxiliaryIndicators() []runtime.AuxiliaryIndicatorSpec
	ValidateBeforeEntry(pos *ActivePosition) error
	ComputeStopLevel(pos *ActivePosition, bar types.Bar, index int, ev *runtime.Evaluator) float64
	Evaluate(pos *ActivePosition, bar types.Bar, index int, level float64) HandlerDecision
}

func directionSign(d types.Direction) float64 {
	if d == types.DirectionShort {
		return -1
	}
	return 1
}

// gapAwareExit returns the exit price for a breached stop/target level,
// accounting for the bar gapping straight through the level: if the open
// already satisfies the breach the fill is the open, otherwise the fill
// is the level itself.
func gapAwareExit(open, level float64, breachedOnOpen bool) float64 {
	if breachedOnOpen {
		return open
	}
	return level
}

// --- StopLossPct -----------------------------------------------------

// StopLossPct exits when price moves against the entry by a fixed
// percentage.
type StopLossPct struct {
	Pct float64
}

func (h *StopLossPct) Name() string     { return "StopLossPct" }
func (h *StopLossPct) Priority() int    { return 10 }
func (h *StopLossPct) AuxiliaryIndicators() []runtime.AuxiliaryIndicatorSpec { return nil }
func (h *StopLossPct) ValidateBeforeEntry(pos *ActivePosition) error {
	if h.Pct <= 0 || h.Pct >= 1 {
		return &Error{Kind: ErrInvalidParameter, Message: "StopLossPct: pct must be in (0,1)"}
	}
	return nil
}

func (h *StopLossPct) ComputeStopLevel(pos *ActivePosition, bar types.Bar, index int, ev *runtime.Evaluator) float64 {
	sign := directionSign(pos.Direction)
	return pos.EntryPrice - sign*pos.EntryPrice*h.Pct
}

func (h *StopLossPct) Evaluate(pos *ActivePosition, bar types.Bar, index int, level float64) HandlerDecision {
	sign := directionSign(pos.Direction)
	var breached bool
	if sign > 0 {
		breached = bar.Low <= level
	} else {
		breached = bar.High >= level
	}
	if !breached {
		return HandlerDecision{}
	}
	breachedOnOpen := (sign > 0 && bar.Open <= level) || (sign < 0 && bar.Open >= level)
	return HandlerDecision{ShouldExit: true, ExitPrice: gapAwareExit(bar.Open, level, breachedOnOpen), Reason: types.ExitReasonStopLoss}
}

// --- TakeProfitPct ----------------------------------------------------

// TakeProfitPct exits when price moves in favor of the entry by a fixed
// percentage.
type TakeProfitPct struct {
	Pct float64
}

func (h *TakeProfitPct) Name() string  { return "TakeProfitPct" }
func (h *TakeProfitPct) Priority() int { return 20 }
func (h *TakeProfitPct) AuxiliaryIndicators() []runtime.AuxiliaryIndicatorSpec { return nil }
func (h *TakeProfitPct) ValidateBeforeEntry(pos *ActivePosition) error {
	if h.Pct <= 0 {
		return &Error{Kind: ErrInvalidParameter, Message: "TakeProfitPct: pct must be > 0"}
	}
	return nil
}

func (h *TakeProfitPct) ComputeStopLevel(pos *ActivePosition, bar types.Bar, index int, ev *runtime.Evaluator) float64 {
	sign := directionSign(pos.Direction)
	return pos.EntryPrice + sign*pos.EntryPrice*h.Pct
}

func (h *TakeProfitPct) Evaluate(pos *ActivePosition, bar types.Bar, index int, level float64) HandlerDecision {
	sign := directionSign(pos.Direction)
	var breached bool
	if sign > 0 {
		breached = bar.High >= level
	} else {
		breached = bar.Low <= level
	}
	if !breached {
		return HandlerDecision{}
	}
	breachedOnOpen := (sign > 0 && bar.Open >= level) || (sign < 0 && bar.Open <= level)
	return HandlerDecision{ShouldExit: true, ExitPrice: gapAwareExit(bar.Open, level, breachedOnOpen), Reason: types.ExitReasonTakeProfit}
}

// --- PercentTrailingStop ----------------------------------------------

// PercentTrailingStop trails the best-seen close by a fixed percentage,
// only ever tightening toward price (monotonic).
type PercentTrailingStop struct {
	Pct float64
}

func (h *PercentTrailingStop) Name() string  { return "PercentTrailingStop" }
func (h *PercentTrailingStop) Priority() int { return 30 }
func (h *PercentTrailingStop) AuxiliaryIndicators() []runtime.AuxiliaryIndicatorSpec { return nil }
func (h *PercentTrailingStop) ValidateBeforeEntry(pos *ActivePosition) error {
	if h.Pct <= 0 || h.Pct >= 1 {
		return &Error{Kind: ErrInvalidParameter, Message: "PercentTrailingStop: pct must be in (0,1)"}
	}
	return nil
}

func (h *PercentTrailingStop) ComputeStopLevel(pos *ActivePosition, bar types.Bar, index int, ev *runtime.Evaluator) float64 {
	sign := directionSign(pos.Direction)
	var candidate float64
	if sign > 0 {
		candidate = pos.HighestClose * (1 - h.Pct)
		if pos.CurrentStop == 0 || candidate > pos.CurrentStop {
			pos.CurrentStop = candidate
		}
	} else {
		candidate = pos.LowestClose * (1 + h.Pct)
		if pos.CurrentStop == 0 || candidate < pos.CurrentStop {
			pos.CurrentStop = candidate
		}
	}
	return pos.CurrentStop
}

func (h *PercentTrailingStop) Evaluate(pos *ActivePosition, bar types.Bar, index int, level float64) HandlerDecision {
	sign := directionSign(pos.Direction)
	var breached bool
	if sign > 0 {
		breached = bar.Low <= level
	} else {
		breached = bar.High >= level
	}
	if !breached {
		return HandlerDecision{}
	}
	breachedOnOpen := (sign > 0 && bar.Open <= level) || (sign < 0 && bar.Open >= level)
	return HandlerDecision{ShouldExit: true, ExitPrice: gapAwareExit(bar.Open, level, breachedOnOpen), Reason: types.ExitReasonTrailing}
}

// --- ATRTrailStop -------------------------------------------------------

// ATRTrailStop trails price by a multiple of ATR, computed from an
// auxiliary ATR indicator resolved before the backtest begins.
type ATRTrailStop struct {
	Multiplier float64
	ATRAlias   string
	ATRPeriod  int
	Timeframe  types.Timeframe
}

func (h *ATRTrailStop) Name() string  { return "ATRTrailStop" }
func (h *ATRTrailStop) Priority() int { return 40 }

func (h *ATRTrailStop) AuxiliaryIndicators() []runtime.AuxiliaryIndicatorSpec {
	return []runtime.AuxiliaryIndicatorSpec{{
		IndicatorName: "ATR",
		Parameters:    defaultParamSetFor("period", float64(h.ATRPeriod), 2, 100),
		Alias:         h.ATRAlias,
		Timeframe:     h.Timeframe,
	}}
}

func (h *ATRTrailStop) ValidateBeforeEntry(pos *ActivePosition) error {
	if h.Multiplier <= 0 {
		return &Error{Kind: ErrInvalidParameter, Message: "ATRTrailStop: multiplier must be > 0"}
	}
	return nil
}

func (h *ATRTrailStop) ComputeStopLevel(pos *ActivePosition, bar types.Bar, index int, ev *runtime.Evaluator) float64 {
	atr, ok := ev.Get(h.ATRAlias)
	if !ok || index >= len(atr) {
		return pos.CurrentStop
	}
	sign := directionSign(pos.Direction)
	offset := h.Multiplier * atr[index]
	var candidate float64
	if sign > 0 {
		candidate = pos.HighestClose - offset
		if pos.CurrentStop == 0 || candidate > pos.CurrentStop {
			pos.CurrentStop = candidate
		}
	} else {
		candidate = pos.LowestClose + offset
		if pos.CurrentStop == 0 || candidate < pos.CurrentStop {
			pos.CurrentStop = candidate
		}
	}
	return pos.CurrentStop
}

func (h *ATRTrailStop) Evaluate(pos *ActivePosition, bar types.Bar, index int, level float64) HandlerDecision {
	sign := directionSign(pos.Direction)
	var breached bool
	if sign > 0 {
		breached = bar.Low <= level
	} else {
		breached = bar.High >= level
	}
	if !breached {
		return HandlerDecision{}
	}
	breachedOnOpen := (sign > 0 && bar.Open <= level) || (sign < 0 && bar.Open >= level)
	return HandlerDecision{ShouldExit: true, ExitPrice: gapAwareExit(bar.Open, level, breachedOnOpen), Reason: types.ExitReasonTrailing}
}

// --- ATRTrailIndicatorStop ----------------------------------------------

// ATRTrailIndicatorStop anchors the trailing stop to an arbitrary
// published indicator series (e.g. SuperTrend) offset by an ATR
// multiple, rather than to the best-seen close.
type ATRTrailIndicatorStop struct {
	Multiplier     float64
	AnchorAlias    string
	ATRAlias       string
	ATRPeriod      int
	AnchorName     string
	AnchorParams   map[string]float64
	Timeframe      types.Timeframe
}

func (h *ATRTrailIndicatorStop) Name() string  { return "ATRTrailIndicatorStop" }
func (h *ATRTrailIndicatorStop) Priority() int { return 45 }

func (h *ATRTrailIndicatorStop) AuxiliaryIndicators() []runtime.AuxiliaryIndicatorSpec {
	return []runtime.AuxiliaryIndicatorSpec{
		{IndicatorName: "ATR", Parameters: defaultParamSetFor("period", float64(h.ATRPeriod), 2, 100), Alias: h.ATRAlias, Timeframe: h.Timeframe},
	}
}

func (h *ATRTrailIndicatorStop) ValidateBeforeEntry(pos *ActivePosition) error {
	if h.Multiplier <= 0 {
		return &Error{Kind: ErrInvalidParameter, Message: "ATRTrailIndicatorStop: multiplier must be > 0"}
	}
	return nil
}

func (h *ATRTrailIndicatorStop) ComputeStopLevel(pos *ActivePosition, bar types.Bar, index int, ev *runtime.Evaluator) float64 {
	anchor, ok := ev.Get(h.AnchorAlias)
	atr, okAtr := ev.Get(h.ATRAlias)
	if !ok || !okAtr || index >= len(anchor) || index >= len(atr) {
		return pos.CurrentStop
	}
	sign := directionSign(pos.Direction)
	offset := h.Multiplier * atr[index]
	var candidate float64
	if sign > 0 {
		candidate = anchor[index] - offset
		if pos.CurrentStop == 0 || candidate > pos.CurrentStop {
			pos.CurrentStop = candidate
		}
	} else {
		candidate = anchor[index] + offset
		if pos.CurrentStop == 0 || candidate < pos.CurrentStop {
			pos.CurrentStop = candidate
		}
	}
	return pos.CurrentStop
}

func (h *ATRTrailIndicatorStop) Evaluate(pos *ActivePosition, bar types.Bar, index int, level float64) HandlerDecision {
	sign := directionSign(pos.Direction)
	var breached bool
	if sign > 0 {
		breached = bar.Low <= level
	} else {
		breached = bar.High >= level
	}
	if !breached {
		return HandlerDecision{}
	}
	breachedOnOpen := (sign > 0 && bar.Open <= level) || (sign < 0 && bar.Open >= level)
	return HandlerDecision{ShouldExit: true, ExitPrice: gapAwareExit(bar.Open, level, breachedOnOpen), Reason: types.ExitReasonTrailing}
}

// --- HILOTrailingStop -----------------------------------------------

// HILOTrailingStop trails the rolling high/low over a lookback window
// (via auxiliary MAXFOR/MINFOR series).
type HILOTrailingStop struct {
	Period     int
	MaxAlias   string
	MinAlias   string
	Timeframe  types.Timeframe
}

func (h *HILOTrailingStop) Name() string  { return "HILOTrailingStop" }
func (h *HILOTrailingStop) Priority() int { return 50 }

func (h *HILOTrailingStop) AuxiliaryIndicators() []runtime.AuxiliaryIndicatorSpec {
	return []runtime.AuxiliaryIndicatorSpec{
		{IndicatorName: "MAXFOR", Parameters: defaultParamSetFor("period", float64(h.Period), 2, 200), Alias: h.MaxAlias, Timeframe: h.Timeframe},
		{IndicatorName: "MINFOR", Parameters: defaultParamSetFor("period", float64(h.Period), 2, 200), Alias: h.MinAlias, Timeframe: h.Timeframe},
	}
}

func (h *HILOTrailingStop) ValidateBeforeEntry(pos *ActivePosition) error {
	if h.Period < 2 {
		return &Error{Kind: ErrInvalidParameter, Message: "HILOTrailingStop: period must be >= 2"}
	}
	return nil
}

func (h *HILOTrailingStop) ComputeStopLevel(pos *ActivePosition, bar types.Bar, index int, ev *runtime.Evaluator) float64 {
	sign := directionSign(pos.Direction)
	if sign > 0 {
		min, ok := ev.Get(h.MinAlias)
		if !ok || index >= len(min) {
			return pos.CurrentStop
		}
		if pos.CurrentStop == 0 || min[index] > pos.CurrentStop {
			pos.CurrentStop = min[index]
		}
	} else {
		max, ok := ev.Get(h.MaxAlias)
		if !ok || index >= len(max) {
			return pos.CurrentStop
		}
		if pos.CurrentStop == 0 || max[index] < pos.CurrentStop {
			pos.CurrentStop = max[index]
		}
	}
	return pos.CurrentStop
}

func (h *HILOTrailingStop) Evaluate(pos *ActivePosition, bar types.Bar, index int, level float64) HandlerDecision {
	sign := directionSign(pos.Direction)
	var breached bool
	if sign > 0 {
		breached = bar.Low <= level
	} else {
		breached = bar.High >= level
	}
	if !breached {
		return HandlerDecision{}
	}
	breachedOnOpen := (sign > 0 && bar.Open <= level) || (sign < 0 && bar.Open >= level)
	return HandlerDecision{ShouldExit: true, ExitPrice: gapAwareExit(bar.Open, level, breachedOnOpen), Reason: types.ExitReasonTrailing}
}

// --- PercentTrailIndicatorStop -----------------------------------------

// PercentTrailIndicatorStop trails a named indicator series by a fixed
// percentage offset, rather than trailing price directly.
type PercentTrailIndicatorStop struct {
	Pct         float64
	AnchorAlias string
}

func (h *PercentTrailIndicatorStop) Name() string  { return "PercentTrailIndicatorStop" }
func (h *PercentTrailIndicatorStop) Priority() int { return 35 }
func (h *PercentTrailIndicatorStop) AuxiliaryIndicators() []runtime.AuxiliaryIndicatorSpec { return nil }
func (h *PercentTrailIndicatorStop) ValidateBeforeEntry(pos *ActivePosition) error {
	if h.Pct <= 0 || h.Pct >= 1 {
		return &Error{Kind: ErrInvalidParameter, Message: "PercentTrailIndicatorStop: pct must be in (0,1)"}
	}
	return nil
}

func (h *PercentTrailIndicatorStop) ComputeStopLevel(pos *ActivePosition, bar types.Bar, index int, ev *runtime.Evaluator) float64 {
	anchor, ok := ev.Get(h.AnchorAlias)
	if !ok || index >= len(anchor) {
		return pos.CurrentStop
	}
	sign := directionSign(pos.Direction)
	var candidate float64
	if sign > 0 {
		candidate = anchor[index] * (1 - h.Pct)
		if pos.CurrentStop == 0 || candidate > pos.CurrentStop {
			pos.CurrentStop = candidate
		}
	} else {
		candidate = anchor[index] * (1 + h.Pct)
		if pos.CurrentStop == 0 || candidate < pos.CurrentStop {
			pos.CurrentStop = candidate
		}
	}
	return pos.CurrentStop
}

func (h *PercentTrailIndicatorStop) Evaluate(pos *ActivePosition, bar types.Bar, index int, level float64) HandlerDecision {
	sign := directionSign(pos.Direction)
	var breached bool
	if sign > 0 {
		breached = bar.Low <= level
	} else {
		breached = bar.High >= level
	}
	if !breached {
		return HandlerDecision{}
	}
	breachedOnOpen := (sign > 0 && bar.Open <= level) || (sign < 0 && bar.Open >= level)
	return HandlerDecision{ShouldExit: true, ExitPrice: gapAwareExit(bar.Open, level, breachedOnOpen), Reason: types.ExitReasonTrailing}
}

// --- IndicatorStop -------------------------------------------------------

// IndicatorStop exits at the bar's close once that close falls below
// (long) or rises above (short) a named indicator series (e.g. a
// SuperTrend flip), with no trailing/tightening behavior of its own.
type IndicatorStop struct {
	Alias string
}

func (h *IndicatorStop) Name() string  { return "IndicatorStop" }
func (h *IndicatorStop) Priority() int { return 25 }
func (h *IndicatorStop) AuxiliaryIndicators() []runtime.AuxiliaryIndicatorSpec { return nil }
func (h *IndicatorStop) ValidateBeforeEntry(pos *ActivePosition) error {
	if h.Alias == "" {
		return &Error{Kind: ErrInvalidParameter, Message: "IndicatorStop: alias required"}
	}
	return nil
}

func (h *IndicatorStop) ComputeStopLevel(pos *ActivePosition, bar types.Bar, index int, ev *runtime.Evaluator) float64 {
	series, ok := ev.Get(h.Alias)
	if !ok || index >= len(series) {
		return pos.CurrentStop
	}
	pos.CurrentStop = series[index]
	return pos.CurrentStop
}

func (h *IndicatorStop) Evaluate(pos *ActivePosition, bar types.Bar, index int, level float64) HandlerDecision {
	sign := directionSign(pos.Direction)
	var breached bool
	if sign > 0 {
		breached = bar.Close < level
	} else {
		breached = bar.Close > level
	}
	if !breached {
		return HandlerDecision{}
	}
	return HandlerDecision{ShouldExit: true, ExitPrice: bar.Close, Reason: types.ExitReasonStopLoss}
}
