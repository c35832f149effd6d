package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aeroalgo/robots-sub000/pkg/types"
)

func tradeWithPnL(pnl float64) types.Trade {
	return types.Trade{PnL: decimal.NewFromFloat(pnl)}
}

func equityCurve(values ...float64) []types.EquityCurvePoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.EquityCurvePoint, len(values))
	for i, v := range values {
		out[i] = types.EquityCurvePoint{Index: i, Timestamp: start.Add(time.Duration(i) * time.Hour), Equity: decimal.NewFromFloat(v)}
	}
	return out
}

func TestMetricsProfitFactorAndWinRate(t *testing.T) {
	trades := []types.Trade{tradeWithPnL(100), tradeWithPnL(50), tradeWithPnL(-60)}
	curve := equityCurve(1000, 1100, 1150, 1090)
	m := NewMetricsCalculator().Calculate(trades, curve, decimal.NewFromInt(1000))

	if m.TotalTrades != 3 || m.WinningTrades != 2 || m.LosingTrades != 1 {
		t.Fatalf("trade counts wrong: total %d, wins %d, losses %d", m.TotalTrades, m.WinningTrades, m.LosingTrades)
	}
	wantPF := 150.0 / 60.0
	if got := m.ProfitFactor.InexactFloat64(); math.Abs(got-wantPF) > 1e-9 {
		t.Errorf("profit factor: want %g, got %g", wantPF, got)
	}
	if got := m.WinRate.InexactFloat64(); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Errorf("win rate: want %g, got %g", 2.0/3.0, got)
	}
	if got := m.TotalProfit.InexactFloat64(); math.Abs(got-90) > 1e-9 {
		t.Errorf("total profit: want 90, got %g", got)
	}
	if got := m.TotalReturn.InexactFloat64(); math.Abs(got-0.09) > 1e-9 {
		t.Errorf("total return: want 0.09, got %g", got)
	}
}

func TestMetricsMaxDrawdownRunningPeak(t *testing.T) {
	trades := []types.Trade{tradeWithPnL(1)}
	// peak 1200, trough 900: drawdown (1200-900)/1200 = 0.25
	curve := equityCurve(1000, 1200, 900, 1100)
	m := NewMetricsCalculator().Calculate(trades, curve, decimal.NewFromInt(1000))

	if got := m.MaxDrawdown.InexactFloat64(); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("max drawdown: want 0.25, got %g", got)
	}
	if got := m.MaxDrawdownAbs.InexactFloat64(); math.Abs(got-300) > 1e-9 {
		t.Errorf("absolute max drawdown: want 300, got %g", got)
	}
}

func TestMetricsAllWinnersGetSentinelProfitFactor(t *testing.T) {
	trades := []types.Trade{tradeWithPnL(100), tradeWithPnL(50)}
	curve := equityCurve(1000, 1100, 1150)
	m := NewMetricsCalculator().Calculate(trades, curve, decimal.NewFromInt(1000))

	if got := m.ProfitFactor.InexactFloat64(); got != perfectProfitFactor {
		t.Errorf("zero-loss profit factor: want the %g sentinel, got %g", float64(perfectProfitFactor), got)
	}
}

func TestMetricsUseLogReturns(t *testing.T) {
	trades := []types.Trade{tradeWithPnL(100), tradeWithPnL(-20)}
	curve := equityCurve(1000, 1100, 1080)
	m := NewMetricsCalculator().Calculate(trades, curve, decimal.NewFromInt(1000))

	// per-period log-returns: ln(1.1), ln(1080/1100); Sharpe is their
	// mean over sample stdev, annualized by sqrt(252)
	r1 := math.Log(1100.0 / 1000.0)
	r2 := math.Log(1080.0 / 1100.0)
	mean := (r1 + r2) / 2
	d1, d2 := r1-mean, r2-mean
	sd := math.Sqrt(d1*d1 + d2*d2) // divide by n-1 = 1
	want := mean / sd * math.Sqrt(252)
	if got := m.SharpeRatio.InexactFloat64(); math.Abs(got-want) > 1e-9 {
		t.Errorf("Sharpe over log-returns: want %g, got %g", want, got)
	}
}

func TestMetricsEmptyInputsProduceZeroValue(t *testing.T) {
	m := NewMetricsCalculator().Calculate(nil, nil, decimal.NewFromInt(1000))
	if m.TotalTrades != 0 || !m.ProfitFactor.IsZero() {
		t.Fatalf("empty inputs must produce a zero-value Metrics, got %+v", m)
	}
}

func TestMonotoneTrailingStopLongAndShort(t *testing.T) {
	long := NewActivePosition("r", "g", types.DirectionLong, 1, 100, 0, time.Now(), types.Timeframe1h)
	h := &PercentTrailingStop{Pct: 0.05}
	bar := types.Bar{Open: 100, High: 101, Low: 99, Close: 100}

	prev := 0.0
	for _, close := range []float64{100, 104, 102, 108, 107, 110} {
		long.UpdateExcursion(close)
		level := h.ComputeStopLevel(long, bar, 0, nil)
		if prev != 0 && level < prev {
			t.Fatalf("long trailing stop regressed: %g -> %g", prev, level)
		}
		prev = level
	}

	short := NewActivePosition("r", "g", types.DirectionShort, 1, 100, 0, time.Now(), types.Timeframe1h)
	prev = 0
	for _, close := range []float64{100, 96, 98, 92, 93, 90} {
		short.UpdateExcursion(close)
		level := h.ComputeStopLevel(short, bar, 0, nil)
		if prev != 0 && level > prev {
			t.Fatalf("short trailing stop loosened: %g -> %g", prev, level)
		}
		prev = level
	}
}

func TestStopLossPctGapThroughUsesOpen(t *testing.T) {
	h := &StopLossPct{Pct: 0.05}
	pos := NewActivePosition("r", "g", types.DirectionLong, 1, 100, 0, time.Now(), types.Timeframe1h)

	// stop sits at 95; the bar gaps open below it, so the fill is the open
	gap := types.Bar{Open: 92, High: 93, Low: 91, Close: 92}
	level := h.ComputeStopLevel(pos, gap, 1, nil)
	if math.Abs(level-95) > 1e-9 {
		t.Fatalf("stop level: want 95, got %g", level)
	}
	decision := h.Evaluate(pos, gap, 1, level)
	if !decision.ShouldExit {
		t.Fatalf("expected the gapped bar to trigger the stop")
	}
	if math.Abs(decision.ExitPrice-92) > 1e-9 {
		t.Fatalf("gap-through fill must be the open: want 92, got %g", decision.ExitPrice)
	}

	// an ordinary intrabar breach fills at the stop level itself
	intrabar := types.Bar{Open: 96, High: 97, Low: 94, Close: 96}
	decision = h.Evaluate(pos, intrabar, 1, level)
	if !decision.ShouldExit {
		t.Fatalf("expected the intrabar breach to trigger the stop")
	}
	if math.Abs(decision.ExitPrice-95) > 1e-9 {
		t.Fatalf("intrabar fill must be the stop level: want 95, got %g", decision.ExitPrice)
	}
}

func TestValidateBeforeEntryRejectsBadParameters(t *testing.T) {
	pos := NewActivePosition("r", "g", types.DirectionLong, 1, 100, 0, time.Now(), types.Timeframe1h)
	if err := (&StopLossPct{Pct: 1.5}).ValidateBeforeEntry(pos); err == nil {
		t.Errorf("StopLossPct with pct >= 1 must be rejected")
	}
	if err := (&TakeProfitPct{Pct: 0}).ValidateBeforeEntry(pos); err == nil {
		t.Errorf("TakeProfitPct with pct = 0 must be rejected")
	}
	if err := (&ATRTrailStop{Multiplier: 0}).ValidateBeforeEntry(pos); err == nil {
		t.Errorf("ATRTrailStop with zero multiplier must be rejected")
	}
	if err := (&StopLossPct{Pct: 0.05}).ValidateBeforeEntry(pos); err != nil {
		t.Errorf("valid StopLossPct rejected: %v", err)
	}
}
