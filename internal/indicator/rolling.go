package indicator

import "math"

// RollingMean returns the trailing mean over period observations, aligned
// with the input. Positions with fewer than period prior values, or with a
// NaN inside the window, are NaN.
func RollingMean(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}

	for i := period - 1; i < len(values); i++ {
		var sum float64
		ok := true
		for _, v := range values[i-period+1 : i+1] {
			if math.IsNaN(v) {
				ok = false
				break
			}
			sum += v
		}
		if ok {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// RollingStd returns the trailing sample standard deviation (n-1
// denominator) over period observations, aligned with the input. The mean
// of each window is taken from means, which must come from RollingMean on
// the same input.
func RollingStd(values, means []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period < 2 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		mean := means[i]
		if math.IsNaN(mean) {
			continue
		}
		var ss float64
		for _, v := range values[i-period+1 : i+1] {
			d := v - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(period-1))
	}
	return out
}

// FillGaps back-fills then forward-fills NaN runs in place.
func FillGaps(values []float64) {
	next := math.NaN()
	for i := len(values) - 1; i >= 0; i-- {
		if math.IsNaN(values[i]) {
			values[i] = next
		} else {
			next = values[i]
		}
	}
	prev := math.NaN()
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = prev
		} else {
			prev = v
		}
	}
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
