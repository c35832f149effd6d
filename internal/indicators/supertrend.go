package indicators

import "github.com/aeroalgo/robots-sub000/pkg/types"

// SuperTrendKernel implements the ATR band-flip trend-following overlay.
// The simple variant derives ATR from |delta series| with the bar's own
// value standing in for the median price; the OHLC variant uses WATR over
// (High+Low)/2. The first two bars always emit 0. Bands only ever tighten
// toward price except on a trend flip, where the opposite band is adopted
// outright.
type SuperTrendKernel struct{}

func NewSuperTrend() Kernel { return &SuperTrendKernel{} }

func superTrendParams() ParameterSet {
	return NewParameterSet(
		ParameterSpec{Name: "period", Current: 10, Range: ParameterRange{Start: 2, End: 100, Step: 1}, Type: ParamPeriod},
		ParameterSpec{Name: "coeff_atr", Current: 3, Range: ParameterRange{Start: 0.5, End: 10, Step: 0.1}, Type: ParamMultiplier},
	)
}

func (k *SuperTrendKernel) Name() string                    { return "SuperTrend" }
func (k *SuperTrendKernel) Category() Category              { return CategoryTrend }
func (k *SuperTrendKernel) Kind() Kind                      { return KindUniversal }
func (k *SuperTrendKernel) DefaultParameters() ParameterSet { return superTrendParams() }
func (k *SuperTrendKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 10) + 2 }

func (k *SuperTrendKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 10), len(series))
	coeff := params.MustGet("coeff_atr", 3)

	deltas := make([]float64, len(series))
	for i := 1; i < len(series); i++ {
		deltas[i] = absf(series[i] - series[i-1])
	}
	atr := sma(deltas, period)
	return superTrendFromMedianATR(series, series, atr, coeff), nil
}

func (k *SuperTrendKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 10), frame.Len())
	coeff := params.MustGet("coeff_atr", 3)

	tr := trueRangeSeries(frame)
	atr := weightedMovingAverage(tr, period)
	median := make([]float64, frame.Len())
	for i, bar := range frame.Bars {
		median[i] = bar.Median()
	}
	return superTrendFromMedianATR(frame.Closes(), median, atr, coeff), nil
}

// superTrendFromMedianATR runs the band-flip state machine shared by both
// kernel variants.
func superTrendFromMedianATR(closes, median, atr []float64, coeff float64) []float64 {
	n := len(closes)
	out := make([]float64, n)
	if n < 3 {
		return out
	}
	finalUpper := make([]float64, n)
	finalLower := make([]float64, n)

	for i := 2; i < n; i++ {
		upperBand := median[i] + coeff*atr[i]
		lowerBand := median[i] - coeff*atr[i]

		if i == 2 {
			finalUpper[i] = upperBand
			finalLower[i] = lowerBand
			if closes[i] <= upperBand {
				out[i] = upperBand
			} else {
				out[i] = lowerBand
			}
			continue
		}

		if upperBand < finalUpper[i-1] || closes[i-1] > finalUpper[i-1] {
			finalUpper[i] = upperBand
		} else {
			finalUpper[i] = finalUpper[i-1]
		}

		if lowerBand > finalLower[i-1] || closes[i-1] < finalLower[i-1] {
			finalLower[i] = lowerBand
		} else {
			finalLower[i] = finalLower[i-1]
		}

		switch {
		case out[i-1] == finalUpper[i-1] && closes[i] <= finalUpper[i]:
			out[i] = finalUpper[i]
		case out[i-1] == finalUpper[i-1] && closes[i] > finalUpper[i]:
			out[i] = finalLower[i]
		case out[i-1] == finalLower[i-1] && closes[i] >= finalLower[i]:
			out[i] = finalLower[i]
		case out[i-1] == finalLower[i-1] && closes[i] < finalLower[i]:
			out[i] = finalUpper[i]
		default:
			out[i] = finalUpper[i]
		}
	}
	return out
}
