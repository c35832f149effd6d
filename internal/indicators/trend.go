package indicators

import (
	"math"

	"github.com/aeroalgo/robots-sub000/pkg/types"
)

func periodParam(def float64) ParameterSet {
	return NewParameterSet(ParameterSpec{
		Name: "period", Current: def,
		Range: ParameterRange{Start: 2, End: 200, Step: 1},
		Type:  ParamPeriod, Description: "lookback period in bars",
	})
}

// simpleKernelBase implements the ComputeOHLC convenience shared by every
// Close-price-driven trend/oscillator kernel: extract the closing series
// and delegate to ComputeSimple. This keeps both entry points always
// callable instead of making ComputeOHLC an error path for the common
// "run this indicator on Close" usage.
type simpleKernelBase struct{}

func (simpleKernelBase) computeOHLCViaClose(k Kernel, frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	return k.ComputeSimple(frame.Closes(), params)
}

// --- SMA ---

type SMAKernel struct{ simpleKernelBase }

func NewSMA() Kernel                                { return &SMAKernel{} }
func (k *SMAKernel) Name() string                    { return "SMA" }
func (k *SMAKernel) Category() Category              { return CategoryTrend }
func (k *SMAKernel) Kind() Kind                      { return KindSimple }
func (k *SMAKernel) DefaultParameters() ParameterSet { return periodParam(20) }
func (k *SMAKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 20) }

func (k *SMAKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 20), len(series))
	out := sma(series, period)
	zeroSentinel(out, min(period-1, len(out)))
	return out, nil
}

func (k *SMAKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	return k.computeOHLCViaClose(k, frame, params)
}

// --- EMA ---

type EMAKernel struct{ simpleKernelBase }

func NewEMA() Kernel                                { return &EMAKernel{} }
func (k *EMAKernel) Name() string                    { return "EMA" }
func (k *EMAKernel) Category() Category              { return CategoryTrend }
func (k *EMAKernel) Kind() Kind                      { return KindSimple }
func (k *EMAKernel) DefaultParameters() ParameterSet { return periodParam(20) }
func (k *EMAKernel) MinBars(p ParameterSet) int      { return 1 }

func (k *EMAKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 20), len(series))
	return ema(series, period), nil
}

func (k *EMAKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	return k.computeOHLCViaClose(k, frame, params)
}

// --- WMA ---

type WMAKernel struct{ simpleKernelBase }

func NewWMA() Kernel                                { return &WMAKernel{} }
func (k *WMAKernel) Name() string                    { return "WMA" }
func (k *WMAKernel) Category() Category              { return CategoryTrend }
func (k *WMAKernel) Kind() Kind                      { return KindSimple }
func (k *WMAKernel) DefaultParameters() ParameterSet { return periodParam(20) }
func (k *WMAKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 20) }

func (k *WMAKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 20), len(series))
	out := weightedMovingAverage(series, period)
	return out, nil
}

func (k *WMAKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	return k.computeOHLCViaClose(k, frame, params)
}

// weightedMovingAverage applies linearly ascending weights 1..p over a
// trailing window.
func weightedMovingAverage(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		window := series[start : i+1]
		var weightedSum, weightTotal float64
		for j, v := range window {
			w := float64(j + 1)
			weightedSum += v * w
			weightTotal += w
		}
		if weightTotal > 0 {
			out[i] = weightedSum / weightTotal
		}
	}
	return out
}

// --- AMA (Kaufman Adaptive Moving Average) ---

type AMAKernel struct{ simpleKernelBase }

func NewAMA() Kernel                                { return &AMAKernel{} }
func (k *AMAKernel) Name() string                    { return "AMA" }
func (k *AMAKernel) Category() Category              { return CategoryTrend }
func (k *AMAKernel) Kind() Kind                      { return KindSimple }
func (k *AMAKernel) DefaultParameters() ParameterSet { return periodParam(10) }
func (k *AMAKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 10) + 1 }

func (k *AMAKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 10), len(series))
	out := make([]float64, len(series))
	n := len(series)
	copyLimit := period * 2
	if copyLimit > n-1 {
		copyLimit = n - 1
	}
	if copyLimit < 0 {
		copyLimit = 0
	}
	for i := 0; i <= copyLimit && i < n; i++ {
		out[i] = series[i]
	}
	if n == 0 {
		return out, nil
	}
	amaPrev := out[copyLimit]
	for j := copyLimit + 1; j < n; j++ {
		diff := math.Abs(series[j] - series[j-period])
		var denom float64 = 1e-9
		for idx := j - period + 1; idx <= j; idx++ {
			if idx <= 0 {
				continue
			}
			denom += math.Abs(series[idx] - series[idx-1])
		}
		efficiency := diff / denom
		x := efficiency*0.60215 + 0.06452
		smoothing := x * x
		amaPrev = amaPrev + smoothing*(series[j]-amaPrev)
		out[j] = amaPrev
	}
	return out, nil
}

func (k *AMAKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	return k.computeOHLCViaClose(k, frame, params)
}

// --- SINEWMA ---

type SINEWMAKernel struct{ simpleKernelBase }

func NewSINEWMA() Kernel                                { return &SINEWMAKernel{} }
func (k *SINEWMAKernel) Name() string                    { return "SINEWMA" }
func (k *SINEWMAKernel) Category() Category              { return CategoryTrend }
func (k *SINEWMAKernel) Kind() Kind                      { return KindSimple }
func (k *SINEWMAKernel) DefaultParameters() ParameterSet { return periodParam(20) }
func (k *SINEWMAKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 20) }

func (k *SINEWMAKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 20), len(series))
	out := make([]float64, len(series))
	for i := range series {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		window := series[start : i+1]
		p := len(window)
		var weightedSum, weightTotal float64
		for j, v := range window {
			w := math.Sin(math.Pi * float64(j+1) / float64(p+1))
			weightedSum += v * w
			weightTotal += w
		}
		if weightTotal > 0 {
			out[i] = weightedSum / weightTotal
		}
	}
	return out, nil
}

func (k *SINEWMAKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	return k.computeOHLCViaClose(k, frame, params)
}

// --- SQWMA (least-squares linear trend intercept) ---

type SQWMAKernel struct{ simpleKernelBase }

func NewSQWMA() Kernel                                { return &SQWMAKernel{} }
func (k *SQWMAKernel) Name() string                    { return "SQWMA" }
func (k *SQWMAKernel) Category() Category              { return CategoryTrend }
func (k *SQWMAKernel) Kind() Kind                      { return KindSimple }
func (k *SQWMAKernel) DefaultParameters() ParameterSet { return periodParam(20) }
func (k *SQWMAKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 20) }

func (k *SQWMAKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 20), len(series))
	out := make([]float64, len(series))
	for i := range series {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		window := series[start : i+1]
		n := float64(len(window))
		var sumX, sumY, sumXY, sumXX float64
		for j, v := range window {
			x := float64(j)
			sumX += x
			sumY += v
			sumXY += x * v
			sumXX += x * x
		}
		denom := n*sumXX - sumX*sumX
		var slope, intercept float64
		if denom != 0 {
			slope = (n*sumXY - sumX*sumY) / denom
			intercept = (sumY - slope*sumX) / n
		} else {
			intercept = sumY / n
		}
		// value of the fitted line at the last point in the window (x = n-1)
		out[i] = intercept + slope*(n-1)
	}
	return out, nil
}

func (k *SQWMAKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	return k.computeOHLCViaClose(k, frame, params)
}

// --- ZLEMA (Zero-Lag EMA) ---

type ZLEMAKernel struct{ simpleKernelBase }

func NewZLEMA() Kernel                                { return &ZLEMAKernel{} }
func (k *ZLEMAKernel) Name() string                    { return "ZLEMA" }
func (k *ZLEMAKernel) Category() Category              { return CategoryTrend }
func (k *ZLEMAKernel) Kind() Kind                      { return KindSimple }
func (k *ZLEMAKernel) DefaultParameters() ParameterSet { return periodParam(20) }
func (k *ZLEMAKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 20) }

func (k *ZLEMAKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 20), len(series))
	lag := (period - 1) / 2
	deLagged := make([]float64, len(series))
	for i, v := range series {
		ref := i - lag
		if ref < 0 {
			ref = 0
		}
		deLagged[i] = v + (v - series[ref])
	}
	return ema(deLagged, period), nil
}

func (k *ZLEMAKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	return k.computeOHLCViaClose(k, frame, params)
}

// --- AMMA: (SMA(p) + SMA(2p)) / 2 over a trailing window of length 2p ---

type AMMAKernel struct{ simpleKernelBase }

func NewAMMA() Kernel                                { return &AMMAKernel{} }
func (k *AMMAKernel) Name() string                    { return "AMMA" }
func (k *AMMAKernel) Category() Category              { return CategoryTrend }
func (k *AMMAKernel) Kind() Kind                      { return KindSimple }
func (k *AMMAKernel) DefaultParameters() ParameterSet { return periodParam(10) }
func (k *AMMAKernel) MinBars(p ParameterSet) int      { return 2 * p.GetInt("period", 10) }

func (k *AMMAKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 10), len(series))
	smaP := sma(series, period)
	sma2P := sma(series, 2*period)
	out := make([]float64, len(series))
	for i := range series {
		out[i] = (smaP[i] + sma2P[i]) / 2
	}
	return out, nil
}

func (k *AMMAKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	return k.computeOHLCViaClose(k, frame, params)
}

// --- GEOMEAN: geometric mean via log-sum ---

type GEOMEANKernel struct{ simpleKernelBase }

func NewGEOMEAN() Kernel                                { return &GEOMEANKernel{} }
func (k *GEOMEANKernel) Name() string                    { return "GEOMEAN" }
func (k *GEOMEANKernel) Category() Category              { return CategoryTrend }
func (k *GEOMEANKernel) Kind() Kind                      { return KindSimple }
func (k *GEOMEANKernel) DefaultParameters() ParameterSet { return periodParam(20) }
func (k *GEOMEANKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 20) }

func (k *GEOMEANKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 20), len(series))
	out := make([]float64, len(series))
	for i := range series {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		window := series[start : i+1]
		var logSum float64
		count := 0
		for _, v := range window {
			if v > 0 {
				logSum += math.Log(v)
				count++
			}
		}
		if count > 0 {
			out[i] = math.Exp(logSum / float64(count))
		}
	}
	return out, nil
}

func (k *GEOMEANKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	return k.computeOHLCViaClose(k, frame, params)
}

// --- TPBF: three-pole Butterworth filter, closed-form IIR coefficients ---

type TPBFKernel struct{ simpleKernelBase }

func NewTPBF() Kernel                                { return &TPBFKernel{} }
func (k *TPBFKernel) Name() string                    { return "TPBF" }
func (k *TPBFKernel) Category() Category              { return CategoryTrend }
func (k *TPBFKernel) Kind() Kind                      { return KindSimple }
func (k *TPBFKernel) DefaultParameters() ParameterSet { return periodParam(20) }
func (k *TPBFKernel) MinBars(p ParameterSet) int      { return 3 }

func (k *TPBFKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 20), len(series))
	if period < 3 {
		period = 3
	}
	a := math.Exp(-math.Pi / float64(period))
	b := 2 * a * math.Cos(1.738*math.Pi/float64(period))
	c := a * a

	c1 := b + c
	c2 := -(c + b*c)
	c3 := c * c
	c4 := 1 - c1 - c2 - c3

	out := make([]float64, len(series))
	for i, v := range series {
		var p1, p2, p3 float64
		if i >= 1 {
			p1 = out[i-1]
		} else {
			p1 = v
		}
		if i >= 2 {
			p2 = out[i-2]
		} else {
			p2 = v
		}
		if i >= 3 {
			p3 = out[i-3]
		} else {
			p3 = v
		}
		out[i] = c4*v + c1*p1 + c2*p2 + c3*p3
	}
	return out, nil
}

func (k *TPBFKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	return k.computeOHLCViaClose(k, frame, params)
}
