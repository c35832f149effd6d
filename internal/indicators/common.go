package indicators

import "math"

// sma computes the trailing simple mean over period, shrinking the window
// during warmup
func sma(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	var sum float64
	for i := range series {
		sum += series[i]
		if i >= period {
			sum -= series[i-period]
		}
		window := period
		if i+1 < window {
			window = i + 1
		}
		out[i] = sum / float64(window)
	}
	return out
}

// ema computes the exponential moving average with alpha = 2/(period+1),
// seeded with the first value
func ema(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = alpha*series[i] + (1-alpha)*out[i-1]
	}
	return out
}

// stdevPopulation computes the population standard deviation (divide by N,
// not N-1) over the trailing window ending at i, matching the classic
// "stdev is population" note for Bollinger Bands.
func stdevPopulation(series []float64, i, period int) float64 {
	start := i - period + 1
	if start < 0 {
		start = 0
	}
	window := series[start : i+1]
	mean := meanOf(window)
	var sumSq float64
	for _, v := range window {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(window)))
}

func meanOf(window []float64) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}

// rollingMax/rollingMin compute a trailing window extremum series.
func rollingMax(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		m := series[start]
		for j := start + 1; j <= i; j++ {
			if series[j] > m {
				m = series[j]
			}
		}
		out[i] = m
	}
	return out
}

func rollingMin(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		m := series[start]
		for j := start + 1; j <= i; j++ {
			if series[j] < m {
				m = series[j]
			}
		}
		out[i] = m
	}
	return out
}
