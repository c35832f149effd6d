package strategy

import (
	"fmt"
	"sync"

	"github.com/aeroalgo/robots-sub000/internal/runtime"
	"github.com/aeroalgo/robots-sub000/pkg/types"
)

// SignalStrength is a discrete 1..4 score for ranking purposes.
type SignalStrength int

const (
	Weak SignalStrength = iota + 1
	Medium
	Strong
	VeryStrong
)

// ResolvedSeries holds the numeric series a condition needs, already
// looked up from the runtime evaluator and/or price frame, all aligned to
// the condition's own timeframe index space.
type ResolvedSeries struct {
	Primary   []float64
	Secondary []float64
	Lower     []float64
	Upper     []float64
	Length    int
}

// ConditionEvaluatorFunc is the polymorphic per-operator contract: given
// the resolved input series and parameters, produce per-bar signals and
// strengths.
type ConditionEvaluatorFunc func(r ResolvedSeries, params map[string]float64) ([]bool, []SignalStrength, error)

var (
	conditionRegistryMu sync.RWMutex
	conditionRegistry   = map[Operator]ConditionEvaluatorFunc{}
)

func registerCondition(op Operator, fn ConditionEvaluatorFunc) {
	conditionRegistryMu.Lock()
	defer conditionRegistryMu.Unlock()
	conditionRegistry[op] = fn
}

// ConditionEvaluatorFor returns the registered evaluator for op.
func ConditionEvaluatorFor(op Operator) (ConditionEvaluatorFunc, bool) {
	conditionRegistryMu.RLock()
	defer conditionRegistryMu.RUnlock()
	fn, ok := conditionRegistry[op]
	return fn, ok
}

func init() {
	registerCondition(OpGreaterThan, compareOp(func(a, b float64) bool { return a > b }))
	registerCondition(OpAbove, compareOp(func(a, b float64) bool { return a > b }))
	registerCondition(OpLessThan, compareOp(func(a, b float64) bool { return a < b }))
	registerCondition(OpBelow, compareOp(func(a, b float64) bool { return a < b }))
	registerCondition(OpCrossesAbove, crossOp(true))
	registerCondition(OpCrossesBelow, crossOp(false))
	registerCondition(OpRisingTrend, trendOp(true))
	registerCondition(OpFallingTrend, trendOp(false))
	registerCondition(OpGreaterPercent, percentOp(true))
	registerCondition(OpLowerPercent, percentOp(false))
	registerCondition(OpBetween, betweenOp)
}

// bucketStrength maps a non-negative "how strongly is this satisfied"
// ratio to the four-level discrete scale.
func bucketStrength(ratio float64) SignalStrength {
	switch {
	case ratio >= 3:
		return VeryStrong
	case ratio >= 1.5:
		return Strong
	case ratio >= 0.5:
		return Medium
	default:
		return Weak
	}
}

func epsilonDenom(v float64) float64 {
	if v < 0 {
		v = -v
	}
	if v < 1e-9 {
		return 1e-9
	}
	return v
}

func compareOp(pred func(a, b float64) bool) ConditionEvaluatorFunc {
	return func(r ResolvedSeries, params map[string]float64) ([]bool, []SignalStrength, error) {
		n := r.Length
		signals := make([]bool, n)
		strengths := make([]SignalStrength, n)
		for i := 0; i < n; i++ {
			a, b := r.Primary[i], r.Secondary[i]
			signals[i] = pred(a, b)
			ratio := (a - b) / epsilonDenom(b)
			if ratio < 0 {
				ratio = -ratio
			}
			strengths[i] = bucketStrength(ratio)
		}
		return signals, strengths, nil
	}
}

func crossOp(above bool) ConditionEvaluatorFunc {
	return func(r ResolvedSeries, params map[string]float64) ([]bool, []SignalStrength, error) {
		n := r.Length
		signals := make([]bool, n)
		strengths := make([]SignalStrength, n)
		for i := 0; i < n; i++ {
			if i == 0 {
				signals[i] = false
				strengths[i] = Weak
				continue
			}
			prevA, prevB := r.Primary[i-1], r.Secondary[i-1]
			curA, curB := r.Primary[i], r.Secondary[i]
			if above {
				signals[i] = prevA <= prevB && curA > curB
			} else {
				signals[i] = prevA >= prevB && curA < curB
			}
			ratio := (curA - curB) / epsilonDenom(curB)
			if ratio < 0 {
				ratio = -ratio
			}
			strengths[i] = bucketStrength(ratio)
		}
		return signals, strengths, nil
	}
}

// trendOp examines a period-long window ending at i and returns true when
// the series is monotone increasing (rising) or decreasing (falling)
// over it.
func trendOp(rising bool) ConditionEvaluatorFunc {
	return func(r ResolvedSeries, params map[string]float64) ([]bool, []SignalStrength, error) {
		period := int(params["period"])
		if period < 2 {
			period = 2
		}
		n := r.Length
		signals := make([]bool, n)
		strengths := make([]SignalStrength, n)
		for i := 0; i < n; i++ {
			start := i - period + 1
			if start < 0 {
				signals[i] = false
				strengths[i] = Weak
				continue
			}
			monotone := true
			var totalDelta float64
			for j := start + 1; j <= i; j++ {
				delta := r.Primary[j] - r.Primary[j-1]
				totalDelta += delta
				if rising && delta < 0 {
					monotone = false
				}
				if !rising && delta > 0 {
					monotone = false
				}
			}
			signals[i] = monotone
			ratio := totalDelta / epsilonDenom(r.Primary[start])
			if ratio < 0 {
				ratio = -ratio
			}
			strengths[i] = bucketStrength(ratio)
		}
		return signals, strengths, nil
	}
}

// percentOp computes (primary-secondary)/secondary*100 and compares
// against the percent parameter.
func percentOp(greater bool) ConditionEvaluatorFunc {
	return func(r ResolvedSeries, params map[string]float64) ([]bool, []SignalStrength, error) {
		threshold := params["percent"]
		n := r.Length
		signals := make([]bool, n)
		strengths := make([]SignalStrength, n)
		for i := 0; i < n; i++ {
			actual := (r.Primary[i] - r.Secondary[i]) / epsilonDenom(r.Secondary[i]) * 100
			if greater {
				signals[i] = actual > threshold
			} else {
				signals[i] = actual < threshold
			}
			ratio := (actual - threshold) / epsilonDenom(threshold)
			if ratio < 0 {
				ratio = -ratio
			}
			strengths[i] = bucketStrength(ratio)
		}
		return signals, strengths, nil
	}
}

func betweenOp(r ResolvedSeries, params map[string]float64) ([]bool, []SignalStrength, error) {
	n := r.Length
	signals := make([]bool, n)
	strengths := make([]SignalStrength, n)
	for i := 0; i < n; i++ {
		lo, hi := r.Lower[i], r.Upper[i]
		v := r.Primary[i]
		signals[i] = v >= lo && v <= hi
		width := epsilonDenom(hi - lo)
		mid := (lo + hi) / 2
		distFromEdge := (width / 2) - absFloat(v-mid)
		ratio := distFromEdge / width
		if ratio < 0 {
			ratio = -ratio
		}
		strengths[i] = bucketStrength(ratio * 4)
	}
	return signals, strengths, nil
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// PreparedCondition is a condition binding bound to its resolved series
// and its full-length signal/strength vectors, computed once per backtest
// run and
// projected onto the engine's base-timeframe index space so the engine can
// always index them with a base-timeframe bar index directly.
type PreparedCondition struct {
	Binding   ConditionBinding
	Signals   []bool
	Strengths []SignalStrength
}

// projectIndices maps each bar of targetFrame to the index, in
// sourceFrame, of the most recently closed source bar as of that target
// bar's own timestamp, or -1 where no source bar has closed yet. Both
// frames are chronologically ordered (types.PriceFrame.Validate), so a
// single forward sweep over both suffices.
func projectIndices(sourceFrame, targetFrame types.PriceFrame) []int {
	sourceDur := sourceFrame.Timeframe.Duration()
	out := make([]int, targetFrame.Len())
	j := -1
	for i, bar := range targetFrame.Bars {
		for j+1 < len(sourceFrame.Bars) && !sourceFrame.Bars[j+1].Timestamp.Add(sourceDur).After(bar.Timestamp) {
			j++
		}
		out[i] = j
	}
	return out
}

// projectFloats resamples a series computed over sourceFrame onto
// targetFrame's index space. A target bar with no closed source bar yet
// projects to zero.
func projectFloats(series []float64, sourceFrame, targetFrame types.PriceFrame) []float64 {
	if sourceFrame.Timeframe == targetFrame.Timeframe && len(series) == targetFrame.Len() {
		return series
	}
	idx := projectIndices(sourceFrame, targetFrame)
	out := make([]float64, len(idx))
	for i, j := range idx {
		if j >= 0 && j < len(series) {
			out[i] = series[j]
		}
	}
	return out
}

// projectSignals resamples a condition's evaluated signal/strength
// vectors (computed over sourceFrame, the condition's own timeframe) onto
// targetFrame's index space (the engine's base timeframe). A target bar
// with no closed source bar yet projects to an unfired, Weak signal.
func projectSignals(signals []bool, strengths []SignalStrength, sourceFrame, targetFrame types.PriceFrame) ([]bool, []SignalStrength) {
	if sourceFrame.Timeframe == targetFrame.Timeframe && len(signals) == targetFrame.Len() {
		return signals, strengths
	}
	idx := projectIndices(sourceFrame, targetFrame)
	outSignals := make([]bool, len(idx))
	outStrengths := make([]SignalStrength, len(idx))
	for i, j := range idx {
		if j >= 0 && j < len(signals) {
			outSignals[i] = signals[j]
			outStrengths[i] = strengths[j]
		}
	}
	return outSignals, outStrengths
}

// sourceWarmup returns how many condition-timeframe bars a Source spends
// warming up. Price fields and constants never warm up; an indicator
// source reports the evaluator's recorded warmup, scaled up when the
// indicator lives on a longer timeframe than the condition (one source
// bar spans several condition bars).
func sourceWarmup(s Source, conditionTF types.Timeframe, ev *runtime.Evaluator) int {
	if s.Kind != SourceIndicator {
		return 0
	}
	w, ok := ev.Warmup(s.Alias)
	if !ok || w == 0 {
		return 0
	}
	srcTF, ok := ev.Timeframe(s.Alias)
	if !ok || srcTF == conditionTF {
		return w
	}
	srcDur := srcTF.Duration()
	condDur := conditionTF.Duration()
	if srcDur <= condDur || condDur == 0 {
		return w
	}
	return w * int(srcDur/condDur)
}

// conditionWarmup is the longest warmup among a binding's sources, in the
// condition's own timeframe index space.
func conditionWarmup(b ConditionBinding, ev *runtime.Evaluator) int {
	warmup := sourceWarmup(b.Input.Primary, b.Timeframe, ev)
	consider := func(s Source) {
		if w := sourceWarmup(s, b.Timeframe, ev); w > warmup {
			warmup = w
		}
	}
	switch b.Input.Shape {
	case ShapeDual, ShapeDualWithPercent:
		consider(b.Input.Secondary)
	case ShapeRange:
		consider(b.Input.Lower)
		consider(b.Input.Upper)
	case ShapeIndexed:
		// a lookback pushes the first meaningful comparison out by its
		// offset
		consider(b.Input.Secondary)
		warmup += b.Input.Offset
	}
	return warmup
}

// sourceIsSet reports whether s was populated at all; the zero value
// (SourceIndicator with an empty alias) means "absent".
func sourceIsSet(s Source) bool {
	return s.Kind != SourceIndicator || s.Alias != ""
}

// maskWarmup clears signals over the leading warmup region, where
// indicator series do not yet carry a meaningful value and a comparison
// against them is meaningless.
func maskWarmup(signals []bool, strengths []SignalStrength, warmup int) {
	if warmup > len(signals) {
		warmup = len(signals)
	}
	for i := 0; i < warmup; i++ {
		signals[i] = false
		strengths[i] = Weak
	}
}

// shiftBack rebuilds a series so index i reads the value offset bars
// earlier; the first offset bars read zero (a historical lookback has
// nothing to look back on there).
func shiftBack(series []float64, offset int) []float64 {
	out := make([]float64, len(series))
	for i := offset; i < len(series); i++ {
		out[i] = series[i-offset]
	}
	return out
}

// resolveSource looks up a Source's series and projects it onto the
// condition's own timeframe index space. A source may live at a
// different timeframe than the condition itself: an explicit
// Source.Timeframe override, or (for SourceIndicator) an indicator bound
// at a timeframe other than the condition's; resolveSource aligns either
// case onto length via projectFloats rather than trusting the series'
// native length to already match.
func resolveSource(s Source, conditionTF types.Timeframe, frames map[types.Timeframe]types.PriceFrame, ev *runtime.Evaluator, length int) ([]float64, error) {
	tf := conditionTF
	if s.Timeframe != "" {
		tf = s.Timeframe
	}
	if s.Kind == SourceConstant {
		out := make([]float64, length)
		for i := range out {
			out[i] = s.Constant
		}
		return out, nil
	}
	conditionFrame, ok := frames[conditionTF]
	if !ok {
		return nil, &Error{Kind: ErrMissingPriceSeries, Message: fmt.Sprintf("no frame for timeframe %s", conditionTF)}
	}
	switch s.Kind {
	case SourcePriceField:
		frame, ok := frames[tf]
		if !ok {
			return nil, &Error{Kind: ErrMissingPriceSeries, Message: fmt.Sprintf("no frame for timeframe %s", tf)}
		}
		var series []float64
		switch s.Field {
		case "open":
			series = frame.Opens()
		case "high":
			series = frame.Highs()
		case "low":
			series = frame.Lows()
		case "volume":
			series = frame.Volumes()
		default:
			series = frame.Closes()
		}
		return projectFloats(series, frame, conditionFrame), nil
	case SourceIndicator:
		series, ok := ev.Get(s.Alias)
		if !ok {
			return nil, &Error{Kind: ErrUnknownConditionReference, Message: fmt.Sprintf("indicator alias %q not published", s.Alias)}
		}
		seriesTF, ok := ev.Timeframe(s.Alias)
		if !ok {
			seriesTF = tf
		}
		seriesFrame, ok := frames[seriesTF]
		if !ok {
			seriesFrame = conditionFrame
		}
		return projectFloats(series, seriesFrame, conditionFrame), nil
	}
	return nil, fmt.Errorf("strategy: unknown source kind")
}

// PrepareConditions resolves every condition binding's sources, evaluates
// its full-length signal/strength vectors once, and projects them onto
// baseTimeframe's index space so the engine's base-timeframe bar index
// always indexes every condition safely and at the correct wall-clock
// alignment.
func PrepareConditions(bindings []ConditionBinding, frames map[types.Timeframe]types.PriceFrame, ev *runtime.Evaluator, baseTimeframe types.Timeframe) (map[string]*PreparedCondition, error) {
	baseFrame, ok := frames[baseTimeframe]
	if !ok {
		return nil, &Error{Kind: ErrMissingPriceSeries, Message: fmt.Sprintf("no frame for base timeframe %s", baseTimeframe)}
	}

	out := make(map[string]*PreparedCondition, len(bindings))
	for _, b := range bindings {
		frame, ok := frames[b.Timeframe]
		if !ok {
			return nil, &Error{Kind: ErrMissingPriceSeries, Message: fmt.Sprintf("condition %q: no frame for timeframe %s", b.ID, b.Timeframe)}
		}
		length := frame.Len()

		resolved := ResolvedSeries{Length: length}
		var err error
		resolved.Primary, err = resolveSource(b.Input.Primary, b.Timeframe, frames, ev, length)
		if err != nil {
			return nil, err
		}
		if b.Input.Shape == ShapeIndexed && b.Input.Offset > 0 {
			resolved.Primary = shiftBack(resolved.Primary, b.Input.Offset)
		}
		switch b.Input.Shape {
		case ShapeDual, ShapeDualWithPercent:
			resolved.Secondary, err = resolveSource(b.Input.Secondary, b.Timeframe, frames, ev, length)
			if err != nil {
				return nil, err
			}
		case ShapeIndexed:
			// a lookback used with a comparison operator still carries a
			// secondary; single-input operators leave it unset
			if sourceIsSet(b.Input.Secondary) {
				resolved.Secondary, err = resolveSource(b.Input.Secondary, b.Timeframe, frames, ev, length)
				if err != nil {
					return nil, err
				}
			}
		case ShapeRange:
			resolved.Lower, err = resolveSource(b.Input.Lower, b.Timeframe, frames, ev, length)
			if err != nil {
				return nil, err
			}
			resolved.Upper, err = resolveSource(b.Input.Upper, b.Timeframe, frames, ev, length)
			if err != nil {
				return nil, err
			}
		}

		params := make(map[string]float64, len(b.Parameters)+1)
		for k, v := range b.Parameters {
			params[k] = v
		}
		if b.Input.Shape == ShapeDualWithPercent {
			params["percent"] = b.Input.Percent
		}

		evalFn, ok := ConditionEvaluatorFor(b.Operator)
		if !ok {
			return nil, &Error{Kind: ErrUnsupportedRuleLogic, Message: fmt.Sprintf("no evaluator registered for operator %q", b.Operator)}
		}
		signals, strengths, err := evalFn(resolved, params)
		if err != nil {
			return nil, &Error{Kind: ErrConditionFailure, Message: err.Error()}
		}
		maskWarmup(signals, strengths, conditionWarmup(b, ev))
		signals, strengths = projectSignals(signals, strengths, frame, baseFrame)
		out[b.ID] = &PreparedCondition{Binding: b, Signals: signals, Strengths: strengths}
	}
	return out, nil
}
