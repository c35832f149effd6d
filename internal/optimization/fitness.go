package optimization

import "github.com/aeroalgo/robots-sub000/pkg/types"

// ComputeFitness applies the hard threshold gate and, if the
// report clears every threshold, returns the weighted-sum fitness;
// otherwise returns exactly zero.
func ComputeFitness(report types.Report, thresholds FitnessThresholds, weights FitnessWeights) float64 {
	m := report.Metrics
	totalTrades := int(m.TotalTrades)
	if totalTrades < thresholds.MinTrades {
		return 0
	}
	winRate := m.WinRate.InexactFloat64()
	if winRate < thresholds.MinWinRate {
		return 0
	}
	profitFactor := m.ProfitFactor.InexactFloat64()
	if profitFactor < thresholds.MinProfitFactor {
		return 0
	}
	maxDD := m.MaxDrawdown.InexactFloat64()
	if thresholds.MaxDrawdownPct > 0 && maxDD > thresholds.MaxDrawdownPct {
		return 0
	}
	sharpe := m.SharpeRatio.InexactFloat64()
	if sharpe < thresholds.MinSharpe {
		return 0
	}
	totalProfit := m.TotalProfit.InexactFloat64()
	if totalProfit < thresholds.MinTotalProfit {
		return 0
	}
	cagr := m.CAGR.InexactFloat64()
	if cagr < thresholds.MinCagr {
		return 0
	}
	if thresholds.MaxMaxDrawdown > 0 && m.MaxDrawdownAbs.InexactFloat64() > thresholds.MaxMaxDrawdown {
		return 0
	}

	sortino := m.SortinoRatio.InexactFloat64()
	calmar := m.CalmarRatio.InexactFloat64()

	// profitNormalized is total
	// profit divided by a configured denominator. With no denominator
	// configured, TotalReturn already expresses profit normalized by
	// starting capital, so it stands in directly.
	profitNormalized := m.TotalReturn.InexactFloat64()
	if weights.ProfitNormalizationDenominator != 0 {
		profitNormalized = totalProfit / weights.ProfitNormalizationDenominator
	}

	score := 0.0
	score += weights.ProfitFactor * clampFinite(profitFactor)
	score += weights.Sharpe * clampFinite(sharpe)
	score += weights.Sortino * clampFinite(sortino)
	score += weights.Calmar * clampFinite(calmar)
	score += weights.WinRate * winRate
	score += weights.TotalReturn * clampFinite(profitNormalized)
	score += weights.Cagr * clampFinite(cagr)
	// w*(1-dd) ranks identically to -w*dd (they differ by the constant
	// w), while keeping the term's contribution non-negative
	score += weights.Drawdown * (1 - maxDD)

	if score < 0 {
		return 0
	}
	return score
}

// clampFinite guards against NaN/Inf metrics poisoning the weighted sum:
// NaN scores 0 and values beyond +/-1e6 (including +/-Inf) are capped
// there. The all-winners profit-factor sentinel (1000) lies below the cap
// and passes through unchanged.
func clampFinite(v float64) float64 {
	if v != v { // NaN
		return 0
	}
	if v > 1e6 {
		return 1e6
	}
	if v < -1e6 {
		return -1e6
	}
	return v
}
