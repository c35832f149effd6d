package strategy

import (
	"testing"
	"time"

	"github.com/aeroalgo/robots-sub000/internal/runtime"
	"github.com/aeroalgo/robots-sub000/pkg/types"
)

func fifteenMinuteFrame(n int, start time.Time) types.PriceFrame {
	bars := make([]types.Bar, n)
	for i := 0; i < n; i++ {
		price := float64(i + 1)
		bars[i] = types.Bar{
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      price, High: price, Low: price, Close: price,
			Volume: 1,
		}
	}
	return types.PriceFrame{Symbol: "TEST", Timeframe: types.Timeframe15m, Bars: bars}
}

// TestPrepareConditionsProjectsHigherTimeframeOntoBase guards the
// multi-timeframe alignment: a condition bound to an hourly timeframe must
// come back sized to the (shorter-period, longer-slice) base timeframe,
// with each base bar mapped to the most recently closed hourly bar as of
// that base bar's own timestamp.
func TestPrepareConditionsProjectsHigherTimeframeOntoBase(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	base := fifteenMinuteFrame(16, start)
	hourly, err := base.Resample(types.Timeframe1h)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if hourly.Len() != 4 {
		t.Fatalf("expected 4 hourly bars, got %d", hourly.Len())
	}

	frames := map[types.Timeframe]types.PriceFrame{
		types.Timeframe15m: base,
		types.Timeframe1h:  hourly,
	}
	ev := runtime.New(frames, nil)

	binding := ConditionBinding{
		ID:        "c1",
		Timeframe: types.Timeframe1h,
		Operator:  OpGreaterThan,
		Input: InputSpec{
			Shape:     ShapeDual,
			Primary:   Source{Kind: SourcePriceField, Field: "close"},
			Secondary: Source{Kind: SourceConstant, Constant: 0},
		},
	}

	prepared, err := PrepareConditions([]ConditionBinding{binding}, frames, ev, types.Timeframe15m)
	if err != nil {
		t.Fatalf("PrepareConditions: %v", err)
	}
	c := prepared["c1"]
	if len(c.Signals) != base.Len() {
		t.Fatalf("expected %d signals (base length), got %d", base.Len(), len(c.Signals))
	}
	if len(c.Strengths) != base.Len() {
		t.Fatalf("expected %d strengths (base length), got %d", base.Len(), len(c.Strengths))
	}

	// The first hourly bar (close=4, the 15m bucket ending at index 3)
	// does not close until start+1h, so no base bar before index 4 may
	// see it fire.
	for i := 0; i < 4; i++ {
		if c.Signals[i] {
			t.Errorf("base bar %d: expected no signal before the first hourly bar closes", i)
		}
	}
	// From base bar 4 (timestamp start+1h) through 7, the first hourly
	// bar has closed (close=4 > 0) and must be visible.
	for i := 4; i < 8; i++ {
		if !c.Signals[i] {
			t.Errorf("base bar %d: expected the closed first hourly bar's signal to be visible", i)
		}
	}
}

// TestPrepareConditionsBaseTimeframeUnchanged guards against regressing
// the common case: a condition bound to the engine's own base timeframe
// must come back bit-for-bit as evaluated, with no projection distortion.
func TestPrepareConditionsBaseTimeframeUnchanged(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	base := fifteenMinuteFrame(8, start)
	frames := map[types.Timeframe]types.PriceFrame{types.Timeframe15m: base}
	ev := runtime.New(frames, nil)

	binding := ConditionBinding{
		ID:        "c1",
		Timeframe: types.Timeframe15m,
		Operator:  OpGreaterThan,
		Input: InputSpec{
			Shape:     ShapeDual,
			Primary:   Source{Kind: SourcePriceField, Field: "close"},
			Secondary: Source{Kind: SourceConstant, Constant: 3},
		},
	}
	prepared, err := PrepareConditions([]ConditionBinding{binding}, frames, ev, types.Timeframe15m)
	if err != nil {
		t.Fatalf("PrepareConditions: %v", err)
	}
	c := prepared["c1"]
	for i, want := range []bool{false, false, false, true, true, true, true, true} {
		if c.Signals[i] != want {
			t.Errorf("bar %d: expected signal %v, got %v", i, want, c.Signals[i])
		}
	}
}

// TestPrepareConditionsIndexedLookback checks that an Indexed shape reads
// the primary series offset bars back: the comparison that fires at bar i
// without an offset must not fire until bar i+offset with one.
func TestPrepareConditionsIndexedLookback(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	base := fifteenMinuteFrame(8, start) // closes 1..8
	frames := map[types.Timeframe]types.PriceFrame{types.Timeframe15m: base}
	ev := runtime.New(frames, nil)

	binding := ConditionBinding{
		ID:        "c1",
		Timeframe: types.Timeframe15m,
		Operator:  OpGreaterThan,
		Input: InputSpec{
			Shape:     ShapeIndexed,
			Offset:    2,
			Primary:   Source{Kind: SourcePriceField, Field: "close"},
			Secondary: Source{Kind: SourceConstant, Constant: 3},
		},
	}
	prepared, err := PrepareConditions([]ConditionBinding{binding}, frames, ev, types.Timeframe15m)
	if err != nil {
		t.Fatalf("PrepareConditions: %v", err)
	}
	c := prepared["c1"]
	// close > 3 first holds at bar 3; looking back 2 bars it first holds
	// at bar 5
	for i, want := range []bool{false, false, false, false, false, true, true, true} {
		if c.Signals[i] != want {
			t.Errorf("bar %d: expected signal %v, got %v", i, want, c.Signals[i])
		}
	}
}

// TestPrepareConditionsNoLookAhead truncates the price frame and checks
// the prefix of every signal vector is unchanged: a signal at bar i may
// depend only on data at indices <= i.
func TestPrepareConditionsNoLookAhead(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	full := fifteenMinuteFrame(60, start)
	cut := types.PriceFrame{Symbol: full.Symbol, Timeframe: full.Timeframe, Bars: full.Bars[:40]}

	binding := ConditionBinding{
		ID:        "c1",
		Timeframe: types.Timeframe15m,
		Operator:  OpCrossesAbove,
		Input: InputSpec{
			Shape:     ShapeDual,
			Primary:   Source{Kind: SourcePriceField, Field: "close"},
			Secondary: Source{Kind: SourceConstant, Constant: 20},
		},
	}

	fullFrames := map[types.Timeframe]types.PriceFrame{types.Timeframe15m: full}
	cutFrames := map[types.Timeframe]types.PriceFrame{types.Timeframe15m: cut}

	fullPrepared, err := PrepareConditions([]ConditionBinding{binding}, fullFrames, runtime.New(fullFrames, nil), types.Timeframe15m)
	if err != nil {
		t.Fatalf("PrepareConditions(full): %v", err)
	}
	cutPrepared, err := PrepareConditions([]ConditionBinding{binding}, cutFrames, runtime.New(cutFrames, nil), types.Timeframe15m)
	if err != nil {
		t.Fatalf("PrepareConditions(cut): %v", err)
	}

	fullSignals := fullPrepared["c1"].Signals
	cutSignals := cutPrepared["c1"].Signals
	for i := range cutSignals {
		if cutSignals[i] != fullSignals[i] {
			t.Fatalf("signal at bar %d changed when future bars were removed", i)
		}
	}
}
