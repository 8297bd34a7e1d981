package features

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// peakFrequency returns the frequency (Hz) of the largest real-FFT magnitude
// bin of x. Ties resolve to the lowest bin.
func peakFrequency(fft *fourier.FFT, x []float64, rate float64, coeff []complex128) (float64, []complex128) {
	coeff = fft.Coefficients(coeff, x)
	best, bestMag := 0, -1.0
	for i, c := range coeff {
		if mag := cmplx.Abs(c); mag > bestMag {
			best, bestMag = i, mag
		}
	}
	return float64(best) * rate / float64(len(x)), coeff
}
