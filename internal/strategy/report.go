package strategy

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aeroalgo/robots-sub000/pkg/types"
)

// perfectProfitFactor stands in for an infinite profit factor when a
// trade log has zero losing trades; Sigma(wins)/Sigma(losses) is
// undefined there, and 0 would read as "worst possible" to every
// threshold and weight downstream. Large enough to clear any sane
// min-profit-factor gate, small enough not to drown the other weighted
// fitness terms.
const perfectProfitFactor = 1000

// MetricsCalculator derives performance metrics from a completed trade
// log and equity curve: profit factor, expectancy, Sharpe/Sortino over
// per-period equity log-returns annualized by sqrt(252), running-peak
// max drawdown, and Calmar ratio.
type MetricsCalculator struct{}

// NewMetricsCalculator constructs a MetricsCalculator.
func NewMetricsCalculator() *MetricsCalculator { return &MetricsCalculator{} }

// Calculate computes a full Metrics set from trades and an equity curve.
func (mc *MetricsCalculator) Calculate(trades []types.Trade, equityCurve []types.EquityCurvePoint, initialCapital decimal.Decimal) types.Metrics {
	if len(trades) == 0 || len(equityCurve) == 0 {
		return types.Metrics{}
	}

	var m types.Metrics
	var winningTrades, losingTrades int
	var totalWins, totalLosses decimal.Decimal
	var largestWin, largestLoss decimal.Decimal

	for _, t := range trades {
		switch {
		case t.PnL.GreaterThan(decimal.Zero):
			winningTrades++
			totalWins = totalWins.Add(t.PnL)
			if t.PnL.GreaterThan(largestWin) {
				largestWin = t.PnL
			}
		case t.PnL.LessThan(decimal.Zero):
			losingTrades++
			totalLosses = totalLosses.Add(t.PnL.Abs())
			if t.PnL.Abs().GreaterThan(largestLoss) {
				largestLoss = t.PnL.Abs()
			}
		}
	}

	m.TotalTrades = len(trades)
	m.WinningTrades = winningTrades
	m.LosingTrades = losingTrades
	m.LargestWin = largestWin
	m.LargestLoss = largestLoss

	if m.TotalTrades > 0 {
		m.WinRate = decimal.NewFromInt(int64(winningTrades)).Div(decimal.NewFromInt(int64(m.TotalTrades)))
	}
	if winningTrades > 0 {
		m.AvgWin = totalWins.Div(decimal.NewFromInt(int64(winningTrades)))
	}
	if losingTrades > 0 {
		m.AvgLoss = totalLosses.Div(decimal.NewFromInt(int64(losingTrades)))
	}
	if !totalLosses.IsZero() {
		m.ProfitFactor = totalWins.Div(totalLosses)
	} else if winningTrades > 0 {
		// no losing trades: emit the sentinel cap rather than 0, so an
		// all-winners run is not gated out by a min-profit-factor
		// threshold
		m.ProfitFactor = decimal.NewFromFloat(perfectProfitFactor)
	}
	if m.TotalTrades > 0 {
		winPct := m.WinRate
		lossPct := decimal.NewFromFloat(1).Sub(winPct)
		m.Expectancy = winPct.Mul(m.AvgWin).Sub(lossPct.Mul(m.AvgLoss))
	}
	m.TotalProfit = totalWins.Sub(totalLosses)

	if !initialCapital.IsZero() {
		finalEquity := equityCurve[len(equityCurve)-1].Equity
		m.TotalReturn = finalEquity.Sub(initialCapital).Div(initialCapital)
	}

	returns := mc.periodReturns(equityCurve)
	if len(returns) > 0 {
		avg := mean(returns)
		m.AnnualizedReturn = decimal.NewFromFloat(avg * 252)
		m.CAGR = m.AnnualizedReturn
	}
	if len(returns) > 1 {
		avg := mean(returns)
		sd := stdDev(returns)
		if sd > 0 {
			m.SharpeRatio = decimal.NewFromFloat((avg / sd) * math.Sqrt(252))
		}
		dd := downsideDeviation(returns)
		if dd > 0 {
			m.SortinoRatio = decimal.NewFromFloat((avg / dd) * math.Sqrt(252))
		}
	}

	maxDD, maxDDAbs, maxDDAt := mc.maxDrawdown(equityCurve)
	m.MaxDrawdown = maxDD
	m.MaxDrawdownAbs = maxDDAbs
	m.MaxDrawdownAt = maxDDAt

	if !m.MaxDrawdown.IsZero() {
		m.CalmarRatio = m.AnnualizedReturn.Div(m.MaxDrawdown)
	}

	return m
}

// periodReturns produces the per-period log-returns of the equity curve,
// skipping periods where either side is non-positive (log undefined).
func (mc *MetricsCalculator) periodReturns(curve []types.EquityCurvePoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev, _ := curve[i-1].Equity.Float64()
		cur, _ := curve[i].Equity.Float64()
		if prev <= 0 || cur <= 0 {
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

func (mc *MetricsCalculator) maxDrawdown(curve []types.EquityCurvePoint) (decimal.Decimal, decimal.Decimal, time.Time) {
	var maxDD decimal.Decimal
	var maxDDAbs decimal.Decimal
	var at time.Time
	peak := curve[0].Equity
	for _, p := range curve {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
		}
		if !peak.IsZero() {
			dd := peak.Sub(p.Equity).Div(peak)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
				maxDDAbs = peak.Sub(p.Equity)
				at = p.Timestamp
			}
		}
	}
	return maxDD, maxDDAbs, at
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	avg := mean(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - avg
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}

func downsideDeviation(returns []float64) float64 {
	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	if len(negative) == 0 {
		return 0
	}
	return stdDev(negative)
}
