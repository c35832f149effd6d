package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/aeroalgo/robots-sub000/internal/indicators"
	"github.com/aeroalgo/robots-sub000/internal/runtime"
	"github.com/aeroalgo/robots-sub000/pkg/types"
)

func sinusoidFrame(n int, amplitude, period float64) types.PriceFrame {
	bars := make([]types.Bar, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := 100 + amplitude*math.Sin(2*math.Pi*float64(i)/period)
		bars[i] = types.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c, Low: c, Close: c, Volume: 1,
		}
	}
	return types.PriceFrame{Symbol: "TEST", Timeframe: types.Timeframe1h, Bars: bars}
}

func registryBinding(alias, name string, period float64) runtime.IndicatorBinding {
	k, _ := indicators.Get(name)
	return runtime.IndicatorBinding{
		Alias:     alias,
		Timeframe: types.Timeframe1h,
		Source: runtime.BindingSource{
			Kind:   runtime.SourceRegistry,
			Name:   name,
			Params: k.DefaultParameters().WithValue("period", period),
		},
	}
}

func dualIndicatorCondition(id string, op Operator, primary, secondary string) ConditionBinding {
	return ConditionBinding{
		ID:        id,
		Timeframe: types.Timeframe1h,
		Operator:  op,
		Input: InputSpec{
			Shape:     ShapeDual,
			Primary:   Source{Kind: SourceIndicator, Alias: primary},
			Secondary: Source{Kind: SourceIndicator, Alias: secondary},
		},
	}
}

// TestSMACrossoverBaseline runs the classic two-SMA long strategy over a
// sinusoidal close series and checks the engine's trade log against an
// independent walk of the same signals: entries exactly where the fast
// SMA crossed above the slow on the previous closed bar, entry price
// always the entry bar's close.
func TestSMACrossoverBaseline(t *testing.T) {
	frame := sinusoidFrame(500, 10, 100)
	frames := map[types.Timeframe]types.PriceFrame{types.Timeframe1h: frame}

	def := &StrategyDefinition{
		Name:          "sma_crossover",
		BaseTimeframe: types.Timeframe1h,
		IndicatorBindings: []runtime.IndicatorBinding{
			registryBinding("sma20", "SMA", 20),
			registryBinding("sma50", "SMA", 50),
		},
		ConditionBindings: []ConditionBinding{
			dualIndicatorCondition("c_up", OpCrossesAbove, "sma20", "sma50"),
			dualIndicatorCondition("c_down", OpCrossesBelow, "sma20", "sma50"),
		},
		EntryRules: []Rule{{
			ID: "enter_long", Logic: RuleLogic{Mode: LogicAll},
			ConditionIDs: []string{"c_up"}, Signal: SignalEntry, Direction: types.DirectionLong,
		}},
		ExitRules: []Rule{{
			ID: "exit_long", Logic: RuleLogic{Mode: LogicAll},
			ConditionIDs: []string{"c_down"}, Signal: SignalExit,
		}},
		StopHandlers:    []StopTakeHandler{&StopLossPct{Pct: 0.05}},
		DefaultQuantity: 1,
	}

	eng, err := NewEngine(def, frames, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	report := eng.Run(10000)

	// independent walk over the same kernels and signal semantics
	smaK, _ := indicators.Get("SMA")
	s20, err := smaK.ComputeSimple(frame.Closes(), smaK.DefaultParameters().WithValue("period", 20))
	if err != nil {
		t.Fatalf("SMA(20): %v", err)
	}
	s50, err := smaK.ComputeSimple(frame.Closes(), smaK.DefaultParameters().WithValue("period", 50))
	if err != nil {
		t.Fatalf("SMA(50): %v", err)
	}
	n := frame.Len()
	closes := frame.Closes()
	warmup := 50 // the slower SMA's MinBars dominates both conditions
	crossAbove := make([]bool, n)
	crossBelow := make([]bool, n)
	for i := 1; i < n; i++ {
		if i < warmup {
			continue
		}
		crossAbove[i] = s20[i-1] <= s50[i-1] && s20[i] > s50[i]
		crossBelow[i] = s20[i-1] >= s50[i-1] && s20[i] < s50[i]
	}

	type expTrade struct{ entry, exit int }
	var expected []expTrade
	open := false
	var entryIdx int
	var stopLevel float64
	for i := 0; i < n; i++ {
		if open {
			switch {
			case closes[i] <= stopLevel:
				expected = append(expected, expTrade{entryIdx, i})
				open = false
			case i >= 1 && crossBelow[i-1]:
				expected = append(expected, expTrade{entryIdx, i})
				open = false
			}
		}
		if !open && i >= 1 && crossAbove[i-1] {
			open = true
			entryIdx = i
			stopLevel = closes[i] - closes[i]*0.05
		}
	}
	if open {
		expected = append(expected, expTrade{entryIdx, n - 1})
	}

	if len(expected) == 0 {
		t.Fatalf("test setup produced no crossovers; the series needs more cycles")
	}
	if len(report.Trades) != len(expected) {
		t.Fatalf("trade count: want %d, got %d", len(expected), len(report.Trades))
	}
	for i, tr := range report.Trades {
		if tr.EntryIndex != expected[i].entry || tr.ExitIndex != expected[i].exit {
			t.Errorf("trade %d: want entry/exit %d/%d, got %d/%d",
				i, expected[i].entry, expected[i].exit, tr.EntryIndex, tr.ExitIndex)
		}
		wantEntry := closes[tr.EntryIndex]
		if got := tr.EntryPrice.InexactFloat64(); math.Abs(got-wantEntry) > 1e-9 {
			t.Errorf("trade %d: entry price %g is not the crossover bar's close %g", i, got, wantEntry)
		}
		if tr.Direction != types.DirectionLong {
			t.Errorf("trade %d: want long, got %s", i, tr.Direction)
		}
	}
}

// TestRSIOscillatorScenario drives a mean-reversion RSI strategy over a
// cyclic series: no entries may land inside the RSI warmup, at least one
// full round trip must occur, and every exit strictly follows its entry.
func TestRSIOscillatorScenario(t *testing.T) {
	frame := sinusoidFrame(300, 15, 50)
	frames := map[types.Timeframe]types.PriceFrame{types.Timeframe1h: frame}

	def := &StrategyDefinition{
		Name:          "rsi_reversion",
		BaseTimeframe: types.Timeframe1h,
		IndicatorBindings: []runtime.IndicatorBinding{
			registryBinding("rsi14", "RSI", 14),
		},
		ConditionBindings: []ConditionBinding{
			{
				ID: "c_oversold", Timeframe: types.Timeframe1h, Operator: OpLessThan,
				Input: InputSpec{
					Shape:     ShapeDual,
					Primary:   Source{Kind: SourceIndicator, Alias: "rsi14"},
					Secondary: Source{Kind: SourceConstant, Constant: 30},
				},
			},
			{
				ID: "c_overbought", Timeframe: types.Timeframe1h, Operator: OpGreaterThan,
				Input: InputSpec{
					Shape:     ShapeDual,
					Primary:   Source{Kind: SourceIndicator, Alias: "rsi14"},
					Secondary: Source{Kind: SourceConstant, Constant: 70},
				},
			},
		},
		EntryRules: []Rule{{
			ID: "enter_long", Logic: RuleLogic{Mode: LogicAll},
			ConditionIDs: []string{"c_oversold"}, Signal: SignalEntry, Direction: types.DirectionLong,
		}},
		ExitRules: []Rule{{
			ID: "exit_long", Logic: RuleLogic{Mode: LogicAll},
			ConditionIDs: []string{"c_overbought"}, Signal: SignalExit,
		}},
		DefaultQuantity: 1,
	}

	eng, err := NewEngine(def, frames, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	report := eng.Run(10000)

	if len(report.Trades) == 0 {
		t.Fatalf("expected at least one trade over a full overbought/oversold cycle")
	}
	for i, tr := range report.Trades {
		if tr.EntryIndex <= 14 {
			t.Errorf("trade %d: entry at bar %d inside the RSI warmup", i, tr.EntryIndex)
		}
		if tr.ExitIndex <= tr.EntryIndex {
			t.Errorf("trade %d: exit index %d does not follow entry index %d", i, tr.ExitIndex, tr.EntryIndex)
		}
	}
}

// TestATRTrailingStopScenario enters on the second bar of a steady
// uptrend and lets an ATR trailing stop manage the exit through the
// subsequent decline. The trailing level must only ever rise, the exit
// must fire on the bar whose low breaches it, and the fill must be the
// stop level itself (the open never gaps through in this series).
func TestATRTrailingStopScenario(t *testing.T) {
	n := 200
	bars := make([]types.Bar, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		if i < 120 {
			closes[i] = 100 + float64(i)*(10.0/120.0)
		} else {
			closes[i] = 110 - float64(i-120)*(5.5/80.0)
		}
	}
	for i := 0; i < n; i++ {
		open := closes[i]
		if i > 0 {
			open = closes[i-1]
		}
		hi := math.Max(open, closes[i]) + 0.05
		lo := math.Min(open, closes[i]) - 0.05
		bars[i] = types.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      open, High: hi, Low: lo, Close: closes[i], Volume: 1,
		}
	}
	frame := types.PriceFrame{Symbol: "TEST", Timeframe: types.Timeframe1h, Bars: bars}
	frames := map[types.Timeframe]types.PriceFrame{types.Timeframe1h: frame}

	def := &StrategyDefinition{
		Name:          "atr_trail",
		BaseTimeframe: types.Timeframe1h,
		ConditionBindings: []ConditionBinding{{
			ID: "c_always", Timeframe: types.Timeframe1h, Operator: OpGreaterThan,
			Input: InputSpec{
				Shape:     ShapeDual,
				Primary:   Source{Kind: SourcePriceField, Field: "close"},
				Secondary: Source{Kind: SourceConstant, Constant: 0},
			},
		}},
		EntryRules: []Rule{{
			ID: "enter_long", Logic: RuleLogic{Mode: LogicAll},
			ConditionIDs: []string{"c_always"}, Signal: SignalEntry, Direction: types.DirectionLong,
		}},
		StopHandlers: []StopTakeHandler{&ATRTrailStop{
			Multiplier: 3, ATRAlias: "atr14", ATRPeriod: 14, Timeframe: types.Timeframe1h,
		}},
		DefaultQuantity: 1,
	}

	eng, err := NewEngine(def, frames, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	report := eng.Run(10000)
	if len(report.Trades) == 0 {
		t.Fatalf("expected the trailing stop to close at least one trade")
	}

	// replicate the first trade by hand: entry at bar 1 (the always-true
	// condition first fires on the previous closed bar), then the trailing
	// level advances with the running highest close.
	atrK, _ := indicators.Get("ATR")
	atr, err := atrK.ComputeOHLC(frame, atrK.DefaultParameters().WithValue("period", 14))
	if err != nil {
		t.Fatalf("ATR: %v", err)
	}
	highest := closes[1]
	stop := 0.0
	exitIdx := -1
	exitPrice := 0.0
	for i := 2; i < n; i++ {
		if closes[i] > highest {
			highest = closes[i]
		}
		candidate := highest - 3*atr[i]
		if stop != 0 && candidate < stop {
			candidate = stop
		}
		if candidate < stop {
			t.Fatalf("trailing stop regressed at bar %d: %g -> %g", i, stop, candidate)
		}
		stop = candidate
		if bars[i].Low <= stop {
			exitIdx = i
			exitPrice = stop
			if bars[i].Open <= stop {
				exitPrice = bars[i].Open
			}
			break
		}
	}
	if exitIdx < 120 {
		t.Fatalf("test setup broken: the stop should only breach during the decline, got bar %d", exitIdx)
	}

	first := report.Trades[0]
	if first.EntryIndex != 1 {
		t.Fatalf("first trade: want entry at bar 1, got %d", first.EntryIndex)
	}
	if first.ExitIndex != exitIdx {
		t.Fatalf("first trade: want exit at bar %d, got %d", exitIdx, first.ExitIndex)
	}
	if got := first.ExitPrice.InexactFloat64(); math.Abs(got-exitPrice) > 1e-9 {
		t.Fatalf("first trade: want exit fill %g (the stop level), got %g", exitPrice, got)
	}
	if first.ExitReason != types.ExitReasonTrailing {
		t.Fatalf("first trade: want %s, got %s", types.ExitReasonTrailing, first.ExitReason)
	}
}

// TestEntryDedupAgainstOpenPosition verifies an entry rule cannot stack a
// second position while one it opened is still running.
func TestEntryDedupAgainstOpenPosition(t *testing.T) {
	frame := sinusoidFrame(50, 5, 25)
	frames := map[types.Timeframe]types.PriceFrame{types.Timeframe1h: frame}

	def := &StrategyDefinition{
		Name:          "always_in",
		BaseTimeframe: types.Timeframe1h,
		ConditionBindings: []ConditionBinding{{
			ID: "c_always", Timeframe: types.Timeframe1h, Operator: OpGreaterThan,
			Input: InputSpec{
				Shape:     ShapeDual,
				Primary:   Source{Kind: SourcePriceField, Field: "close"},
				Secondary: Source{Kind: SourceConstant, Constant: 0},
			},
		}},
		EntryRules: []Rule{{
			ID: "enter_long", Logic: RuleLogic{Mode: LogicAll},
			ConditionIDs: []string{"c_always"}, Signal: SignalEntry, Direction: types.DirectionLong,
		}},
		DefaultQuantity: 1,
	}

	eng, err := NewEngine(def, frames, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	report := eng.Run(10000)

	// the always-firing rule may only ever hold one position, closed at
	// the end of data
	if len(report.Trades) != 1 {
		t.Fatalf("want exactly one trade from a deduplicated always-on entry, got %d", len(report.Trades))
	}
	if report.Trades[0].ExitReason != types.ExitReasonEndOfData {
		t.Fatalf("want end-of-data exit, got %s", report.Trades[0].ExitReason)
	}
}

// TestValidateRejectsDanglingReferences covers the structural invariants:
// a rule referencing a missing condition and a condition referencing a
// missing indicator alias must both fail validation up front.
func TestValidateRejectsDanglingReferences(t *testing.T) {
	frame := sinusoidFrame(50, 5, 25)
	frames := map[types.Timeframe]types.PriceFrame{types.Timeframe1h: frame}

	missingCondition := &StrategyDefinition{
		Name:          "bad_rule",
		BaseTimeframe: types.Timeframe1h,
		EntryRules: []Rule{{
			ID: "r", Logic: RuleLogic{Mode: LogicAll}, ConditionIDs: []string{"ghost"},
			Signal: SignalEntry, Direction: types.DirectionLong,
		}},
	}
	if _, err := NewEngine(missingCondition, frames, nil); err == nil {
		t.Fatalf("expected validation failure for a rule referencing a missing condition")
	}

	missingAlias := &StrategyDefinition{
		Name:          "bad_condition",
		BaseTimeframe: types.Timeframe1h,
		ConditionBindings: []ConditionBinding{{
			ID: "c", Timeframe: types.Timeframe1h, Operator: OpAbove,
			Input: InputSpec{
				Shape:     ShapeDual,
				Primary:   Source{Kind: SourceIndicator, Alias: "ghost"},
				Secondary: Source{Kind: SourceConstant, Constant: 0},
			},
		}},
	}
	if _, err := NewEngine(missingAlias, frames, nil); err == nil {
		t.Fatalf("expected validation failure for a condition referencing a missing indicator")
	}
}
