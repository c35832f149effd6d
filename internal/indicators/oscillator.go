package indicators

import "github.com/aeroalgo/robots-sub000/pkg/types"

// --- RSI ---

type RSIKernel struct{ simpleKernelBase }

func NewRSI() Kernel                                { return &RSIKernel{} }
func (k *RSIKernel) Name() string                    { return "RSI" }
func (k *RSIKernel) Category() Category              { return CategoryOscillator }
func (k *RSIKernel) Kind() Kind                      { return KindSimple }
func (k *RSIKernel) DefaultParameters() ParameterSet { return periodParam(14) }
func (k *RSIKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 14) + 1 }

// ComputeSimple separates gains/losses per bar, applies EMA(period) to
// each, then RSI = 100 - 100/(1 + gain/loss); if loss == 0, output 100.
func (k *RSIKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 14), len(series))
	n := len(series)
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := series[i] - series[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}
	avgGain := ema(gains, period)
	avgLoss := ema(losses, period)

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if avgLoss[i] == 0 {
			out[i] = 100
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - 100/(1+rs)
	}
	zeroSentinel(out, min1(period, n))
	return out, nil
}

func (k *RSIKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	return k.computeOHLCViaClose(k, frame, params)
}

func min1(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// --- Stochastic (%K only) ---

type StochasticKernel struct{ simpleKernelBase }

func NewStochastic() Kernel                                { return &StochasticKernel{} }
func (k *StochasticKernel) Name() string                    { return "Stochastic" }
func (k *StochasticKernel) Category() Category              { return CategoryOscillator }
func (k *StochasticKernel) Kind() Kind                      { return KindOHLC }
func (k *StochasticKernel) DefaultParameters() ParameterSet { return periodParam(14) }
func (k *StochasticKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 14) }

func (k *StochasticKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	return nil, newTypeMismatch(KindOHLC, KindSimple)
}

// ComputeOHLC implements %K = 100*(close-minLow)/(maxHigh-minLow); a flat
// window (maxHigh == minLow) outputs 50.
func (k *StochasticKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 14), frame.Len())
	highs := frame.Highs()
	lows := frame.Lows()
	closes := frame.Closes()
	maxHigh := rollingMax(highs, period)
	minLow := rollingMin(lows, period)
	out := make([]float64, frame.Len())
	for i := range out {
		rng := maxHigh[i] - minLow[i]
		if rng == 0 {
			out[i] = 50
			continue
		}
		out[i] = 100 * (closes[i] - minLow[i]) / rng
	}
	return out, nil
}
