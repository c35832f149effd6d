package indicators

import "github.com/aeroalgo/robots-sub000/pkg/types"

// trueRangeSeries computes the per-bar true range
// max(H-L, |H-prevC|, |L-prevC|); the first bar has no previous close so
// its true range is simply H-L.
func trueRangeSeries(frame types.PriceFrame) []float64 {
	out := make([]float64, frame.Len())
	var prevClose float64
	for i, bar := range frame.Bars {
		hl := bar.High - bar.Low
		if i == 0 {
			out[i] = hl
		} else {
			hc := absf(bar.High - prevClose)
			lc := absf(bar.Low - prevClose)
			out[i] = maxf(hl, maxf(hc, lc))
		}
		prevClose = bar.Close
	}
	return out
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// --- ATR: Universal kind. Simple variant uses |delta close| smoothed by a
// trailing mean; OHLC variant uses full true range smoothed the same way. ---

type ATRKernel struct{}

func NewATR() Kernel                                { return &ATRKernel{} }
func (k *ATRKernel) Name() string                    { return "ATR" }
func (k *ATRKernel) Category() Category              { return CategoryVolatility }
func (k *ATRKernel) Kind() Kind                      { return KindUniversal }
func (k *ATRKernel) DefaultParameters() ParameterSet { return periodParam(14) }
func (k *ATRKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 14) }

func (k *ATRKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 14), len(series))
	deltas := make([]float64, len(series))
	for i := 1; i < len(series); i++ {
		deltas[i] = absf(series[i] - series[i-1])
	}
	return sma(deltas, period), nil
}

func (k *ATRKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 14), frame.Len())
	tr := trueRangeSeries(frame)
	return sma(tr, period), nil
}

// --- TrueRange: unsmoothed ATR bar-by-bar. ---

type TrueRangeKernel struct{}

func NewTrueRange() Kernel                                { return &TrueRangeKernel{} }
func (k *TrueRangeKernel) Name() string                    { return "TrueRange" }
func (k *TrueRangeKernel) Category() Category              { return CategoryVolatility }
func (k *TrueRangeKernel) Kind() Kind                      { return KindOHLC }
func (k *TrueRangeKernel) DefaultParameters() ParameterSet { return NewParameterSet() }
func (k *TrueRangeKernel) MinBars(p ParameterSet) int      { return 1 }

func (k *TrueRangeKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	return nil, newTypeMismatch(KindOHLC, KindSimple)
}

func (k *TrueRangeKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	return trueRangeSeries(frame), nil
}

// --- WATR: WMA(period) over the TrueRange series. ---

type WATRKernel struct{}

func NewWATR() Kernel                                { return &WATRKernel{} }
func (k *WATRKernel) Name() string                    { return "WATR" }
func (k *WATRKernel) Category() Category              { return CategoryVolatility }
func (k *WATRKernel) Kind() Kind                      { return KindOHLC }
func (k *WATRKernel) DefaultParameters() ParameterSet { return periodParam(14) }
func (k *WATRKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 14) }

func (k *WATRKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	return nil, newTypeMismatch(KindOHLC, KindSimple)
}

func (k *WATRKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 14), frame.Len())
	tr := trueRangeSeries(frame)
	return weightedMovingAverage(tr, period), nil
}

// --- MAXFOR / MINFOR: rolling high/low over high/low arrays.
// Auxiliary-only: excluded from direct candidate construction. ---

type MAXFORKernel struct{}

func NewMAXFOR() Kernel                                { return &MAXFORKernel{} }
func (k *MAXFORKernel) Name() string                    { return "MAXFOR" }
func (k *MAXFORKernel) Category() Category              { return CategoryVolatility }
func (k *MAXFORKernel) Kind() Kind                      { return KindSimple }
func (k *MAXFORKernel) DefaultParameters() ParameterSet { return periodParam(14) }
func (k *MAXFORKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 14) }

func (k *MAXFORKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 14), len(series))
	return rollingMax(series, period), nil
}

func (k *MAXFORKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 14), frame.Len())
	return rollingMax(frame.Highs(), period), nil
}

type MINFORKernel struct{}

func NewMINFOR() Kernel                                { return &MINFORKernel{} }
func (k *MINFORKernel) Name() string                    { return "MINFOR" }
func (k *MINFORKernel) Category() Category              { return CategoryVolatility }
func (k *MINFORKernel) Kind() Kind                      { return KindSimple }
func (k *MINFORKernel) DefaultParameters() ParameterSet { return periodParam(14) }
func (k *MINFORKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 14) }

func (k *MINFORKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 14), len(series))
	return rollingMin(series, period), nil
}

func (k *MINFORKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 14), frame.Len())
	return rollingMin(frame.Lows(), period), nil
}

// --- VTRAND: (MAXFOR(p) + MINFOR(p)) / 2 over OHLC high/low. ---

type VTRANDKernel struct{}

func NewVTRAND() Kernel                                { return &VTRANDKernel{} }
func (k *VTRANDKernel) Name() string                    { return "VTRAND" }
func (k *VTRANDKernel) Category() Category              { return CategoryVolatility }
func (k *VTRANDKernel) Kind() Kind                      { return KindOHLC }
func (k *VTRANDKernel) DefaultParameters() ParameterSet { return periodParam(14) }
func (k *VTRANDKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 14) }

func (k *VTRANDKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	return nil, newTypeMismatch(KindOHLC, KindSimple)
}

func (k *VTRANDKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 14), frame.Len())
	hi := rollingMax(frame.Highs(), period)
	lo := rollingMin(frame.Lows(), period)
	out := make([]float64, frame.Len())
	for i := range out {
		out[i] = (hi[i] + lo[i]) / 2
	}
	return out, nil
}
