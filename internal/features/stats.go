package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// windowStats are the time-domain statistics of one axis over one window.
type windowStats struct {
	mean     float64
	std      float64
	peak     float64
	kurtosis float64
	rms      float64
}

func computeStats(x []float64) windowStats {
	mean, std := stat.PopMeanStdDev(x, nil)
	return windowStats{
		mean:     mean,
		std:      std,
		peak:     floats.Max(x),
		kurtosis: excessKurtosis(x, mean),
		rms:      float64(float32(rms(x))),
	}
}

// excessKurtosis is the biased Fisher kurtosis m4/m2^2 - 3. Zero-variance and
// non-finite results collapse to 0.
func excessKurtosis(x []float64, mean float64) float64 {
	var m2, m4 float64
	for _, v := range x {
		d := v - mean
		d2 := d * d
		m2 += d2
		m4 += d2 * d2
	}
	n := float64(len(x))
	m2 /= n
	m4 /= n
	// Summation error can leave a constant window with a tiny positive m2.
	tol := 1e-14 * math.Max(1, math.Abs(mean))
	if m2 <= tol*tol {
		return 0
	}
	k := m4/(m2*m2) - 3
	if math.IsNaN(k) || math.IsInf(k, 0) {
		return 0
	}
	return k
}

func rms(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}
