package indicators

import "github.com/aeroalgo/robots-sub000/pkg/types"

func bbParams() ParameterSet {
	return NewParameterSet(
		ParameterSpec{Name: "period", Current: 20, Range: ParameterRange{Start: 2, End: 200, Step: 1}, Type: ParamPeriod},
		ParameterSpec{Name: "k", Current: 2, Range: ParameterRange{Start: 0.5, End: 5, Step: 0.1}, Type: ParamMultiplier},
	)
}

// bbBand computes SMA(period) +/- k*stdev(period) (population stdev) over
// a Close series; sign selects upper (+1), lower (-1), or middle (0).
func bbBand(series []float64, period int, k, sign float64) []float64 {
	mid := sma(series, period)
	out := make([]float64, len(series))
	for i := range series {
		sd := stdevPopulation(series, i, period)
		out[i] = mid[i] + sign*k*sd
	}
	return out
}

type BBMiddleKernel struct{ simpleKernelBase }

func NewBBMiddle() Kernel                                { return &BBMiddleKernel{} }
func (k *BBMiddleKernel) Name() string                    { return "BBMiddle" }
func (k *BBMiddleKernel) Category() Category              { return CategoryChannel }
func (k *BBMiddleKernel) Kind() Kind                      { return KindSimple }
func (k *BBMiddleKernel) DefaultParameters() ParameterSet { return bbParams() }
func (k *BBMiddleKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 20) }
func (k *BBMiddleKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 20), len(series))
	return sma(series, period), nil
}
func (k *BBMiddleKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	return k.computeOHLCViaClose(k, frame, params)
}

type BBUpperKernel struct{ simpleKernelBase }

func NewBBUpper() Kernel                                { return &BBUpperKernel{} }
func (k *BBUpperKernel) Name() string                    { return "BBUpper" }
func (k *BBUpperKernel) Category() Category              { return CategoryChannel }
func (k *BBUpperKernel) Kind() Kind                      { return KindSimple }
func (k *BBUpperKernel) DefaultParameters() ParameterSet { return bbParams() }
func (k *BBUpperKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 20) }
func (k *BBUpperKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 20), len(series))
	kMul := params.MustGet("k", 2)
	return bbBand(series, period, kMul, 1), nil
}
func (k *BBUpperKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	return k.computeOHLCViaClose(k, frame, params)
}

type BBLowerKernel struct{ simpleKernelBase }

func NewBBLower() Kernel                                { return &BBLowerKernel{} }
func (k *BBLowerKernel) Name() string                    { return "BBLower" }
func (k *BBLowerKernel) Category() Category              { return CategoryChannel }
func (k *BBLowerKernel) Kind() Kind                      { return KindSimple }
func (k *BBLowerKernel) DefaultParameters() ParameterSet { return bbParams() }
func (k *BBLowerKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 20) }
func (k *BBLowerKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 20), len(series))
	kMul := params.MustGet("k", 2)
	return bbBand(series, period, kMul, -1), nil
}
func (k *BBLowerKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	return k.computeOHLCViaClose(k, frame, params)
}

func kcParams() ParameterSet {
	return NewParameterSet(
		ParameterSpec{Name: "period", Current: 20, Range: ParameterRange{Start: 2, End: 200, Step: 1}, Type: ParamPeriod},
		ParameterSpec{Name: "atr_period", Current: 10, Range: ParameterRange{Start: 2, End: 200, Step: 1}, Type: ParamPeriod},
		ParameterSpec{Name: "multiplier", Current: 2, Range: ParameterRange{Start: 0.5, End: 5, Step: 0.1}, Type: ParamMultiplier},
	)
}

// keltnerBand computes EMA(period) of typical price (H+L+C)/3, plus/minus
// multiplier*ATR(atr_period); sign selects upper (+1), lower (-1),
// middle (0).
func keltnerBand(frame types.PriceFrame, period, atrPeriod int, mul, sign float64) []float64 {
	typical := make([]float64, frame.Len())
	for i, bar := range frame.Bars {
		typical[i] = bar.Typical()
	}
	mid := ema(typical, period)
	tr := trueRangeSeries(frame)
	atr := sma(tr, atrPeriod)
	out := make([]float64, frame.Len())
	for i := range out {
		out[i] = mid[i] + sign*mul*atr[i]
	}
	return out
}

type KCMiddleKernel struct{}

func NewKCMiddle() Kernel                                { return &KCMiddleKernel{} }
func (k *KCMiddleKernel) Name() string                    { return "KCMiddle" }
func (k *KCMiddleKernel) Category() Category              { return CategoryChannel }
func (k *KCMiddleKernel) Kind() Kind                      { return KindOHLC }
func (k *KCMiddleKernel) DefaultParameters() ParameterSet { return kcParams() }
func (k *KCMiddleKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 20) }
func (k *KCMiddleKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	return nil, newTypeMismatch(KindOHLC, KindSimple)
}
func (k *KCMiddleKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 20), frame.Len())
	atrPeriod := clampPeriod(params.GetInt("atr_period", 10), frame.Len())
	return keltnerBand(frame, period, atrPeriod, params.MustGet("multiplier", 2), 0), nil
}

type KCUpperKernel struct{}

func NewKCUpper() Kernel                                { return &KCUpperKernel{} }
func (k *KCUpperKernel) Name() string                    { return "KCUpper" }
func (k *KCUpperKernel) Category() Category              { return CategoryChannel }
func (k *KCUpperKernel) Kind() Kind                      { return KindOHLC }
func (k *KCUpperKernel) DefaultParameters() ParameterSet { return kcParams() }
func (k *KCUpperKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 20) }
func (k *KCUpperKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	return nil, newTypeMismatch(KindOHLC, KindSimple)
}
func (k *KCUpperKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 20), frame.Len())
	atrPeriod := clampPeriod(params.GetInt("atr_period", 10), frame.Len())
	return keltnerBand(frame, period, atrPeriod, params.MustGet("multiplier", 2), 1), nil
}

type KCLowerKernel struct{}

func NewKCLower() Kernel                                { return &KCLowerKernel{} }
func (k *KCLowerKernel) Name() string                    { return "KCLower" }
func (k *KCLowerKernel) Category() Category              { return CategoryChannel }
func (k *KCLowerKernel) Kind() Kind                      { return KindOHLC }
func (k *KCLowerKernel) DefaultParameters() ParameterSet { return kcParams() }
func (k *KCLowerKernel) MinBars(p ParameterSet) int      { return p.GetInt("period", 20) }
func (k *KCLowerKernel) ComputeSimple(series []float64, params ParameterSet) ([]float64, error) {
	return nil, newTypeMismatch(KindOHLC, KindSimple)
}
func (k *KCLowerKernel) ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error) {
	period := clampPeriod(params.GetInt("period", 20), frame.Len())
	atrPeriod := clampPeriod(params.GetInt("atr_period", 10), frame.Len())
	return keltnerBand(frame, period, atrPeriod, params.MustGet("multiplier", 2), -1), nil
}
