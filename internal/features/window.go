package features

import (
	"fmt"
	"math"

	"github.com/miradorstack/mirador-pdm/internal/models"
)

// WindowPolicy derives the window length of a stream from its sampling rate.
type WindowPolicy struct {
	// HighRateSeconds is the target duration above HighRateThresholdHz. The
	// sample count is rounded up to a power of two for the FFT.
	HighRateSeconds float64
	// LowRateSeconds is the target duration at or below HighRateThresholdHz.
	LowRateSeconds      float64
	HighRateThresholdHz float64
}

// DefaultWindowPolicy returns the 1.0 s / 1.23 s policy split at 1000 Hz.
func DefaultWindowPolicy() WindowPolicy {
	return WindowPolicy{HighRateSeconds: 1.0, LowRateSeconds: 1.23, HighRateThresholdHz: 1000}
}

// HighRate reports whether rate gets spectral features.
func (p WindowPolicy) HighRate(rate float64) bool {
	return rate > p.HighRateThresholdHz
}

// Length returns the window length in samples for rate. It is always >= 1.
func (p WindowPolicy) Length(rate float64) int {
	if p.HighRate(rate) {
		return nextPowerOfTwo(int(math.Round(rate * p.HighRateSeconds)))
	}
	n := int(math.Round(rate * p.LowRateSeconds))
	if n < 1 {
		return 1
	}
	return n
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// EstimateRate derives samples per second from the stream's time column as
// count / (last - first).
func EstimateRate(stream *models.SensorStream, timeColumn string) (float64, error) {
	ts, ok := stream.Column(timeColumn)
	if !ok {
		return 0, fmt.Errorf("no sampling rate declared and no %q column", timeColumn)
	}
	if len(ts) < 2 {
		return 0, fmt.Errorf("cannot estimate sampling rate from %d samples", len(ts))
	}
	span := ts[len(ts)-1] - ts[0]
	if !(span > 0) {
		return 0, fmt.Errorf("cannot estimate sampling rate: time span %v", span)
	}
	return float64(len(ts)) / span, nil
}
