// Package features turns raw sensor streams into windowed feature tables.
package features

import (
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/miradorstack/mirador-pdm/internal/models"
)

// Stat suffixes in column output order.
const (
	StatMean     = "mean"
	StatStd      = "std"
	StatPeak     = "peak"
	StatKurtosis = "kurtosis"
	StatRMS      = "rms"
	StatPeakFreq = "peak_freq"
)

// Options controls which stream columns are treated as data axes.
type Options struct {
	TimeColumn      string
	ExcludePrefixes []string
	Policy          WindowPolicy
}

// DefaultOptions matches the dataset conventions: a Time column and
// SW_TAG_/HW_TAG_ auxiliary columns.
func DefaultOptions() Options {
	return Options{
		TimeColumn:      "Time",
		ExcludePrefixes: []string{"SW_TAG_", "HW_TAG_"},
		Policy:          DefaultWindowPolicy(),
	}
}

// Extractor computes per-window statistics. It holds no mutable state and is
// safe for concurrent use.
type Extractor struct {
	opts Options
}

// NewExtractor builds an Extractor. Zero-valued option fields take defaults.
func NewExtractor(opts Options) *Extractor {
	def := DefaultOptions()
	if opts.TimeColumn == "" {
		opts.TimeColumn = def.TimeColumn
	}
	if opts.ExcludePrefixes == nil {
		opts.ExcludePrefixes = def.ExcludePrefixes
	}
	if opts.Policy == (WindowPolicy{}) {
		opts.Policy = def.Policy
	}
	return &Extractor{opts: opts}
}

// Policy exposes the window policy callers use to size windows.
func (e *Extractor) Policy() WindowPolicy { return e.opts.Policy }

// TimeColumn names the timestamp column.
func (e *Extractor) TimeColumn() string { return e.opts.TimeColumn }

// DataColumns returns the stream columns that carry axis samples, in source order.
func (e *Extractor) DataColumns(stream *models.SensorStream) []string {
	cols := make([]string, 0, len(stream.Columns))
	for _, c := range stream.Columns {
		if e.isAuxiliary(c) {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

func (e *Extractor) isAuxiliary(col string) bool {
	if col == e.opts.TimeColumn {
		return true
	}
	for _, p := range e.opts.ExcludePrefixes {
		if strings.HasPrefix(col, p) {
			return true
		}
	}
	return false
}

// AxisLabel strips unit annotations: "x [g]" becomes "x".
func AxisLabel(column string) string {
	fields := strings.Fields(column)
	if len(fields) == 0 {
		return column
	}
	return fields[0]
}

// FeatureNames lists the output columns for the given axes.
func FeatureNames(key models.SensorKey, axes []string, spectral bool) []string {
	stats := []string{StatMean, StatStd, StatPeak, StatKurtosis, StatRMS}
	if spectral {
		stats = append(stats, StatPeakFreq)
	}
	names := make([]string, 0, len(axes)*len(stats))
	for _, axis := range axes {
		prefix := key.String() + "_" + AxisLabel(axis) + "_"
		for _, s := range stats {
			names = append(names, prefix+s)
		}
	}
	return names
}

// statRank orders stat suffixes as FeatureNames emits them. peak_freq is
// matched before peak.
var statRank = []string{StatMean, StatStd, StatPeak, StatKurtosis, StatRMS, StatPeakFreq}

func splitFeatureName(name string) (prefix string, rank int) {
	best := -1
	for i, s := range statRank {
		if strings.HasSuffix(name, "_"+s) && (best < 0 || len(s) > len(statRank[best])) {
			best = i
		}
	}
	if best < 0 {
		return name, len(statRank)
	}
	return strings.TrimSuffix(name, "_"+statRank[best]), best
}

// LessFeatureName orders feature columns by axis, then by stat in FeatureNames
// order. Names without a known stat suffix sort after, by name.
func LessFeatureName(a, b string) bool {
	pa, ra := splitFeatureName(a)
	pb, rb := splitFeatureName(b)
	if (ra == len(statRank)) != (rb == len(statRank)) {
		return rb == len(statRank)
	}
	if pa != pb {
		return pa < pb
	}
	return ra < rb
}

// Extract reduces stream to one feature row per complete window of windowLen
// samples. The trailing partial window is dropped. A stream without data
// columns, or shorter than one window, yields an empty table.
func (e *Extractor) Extract(stream *models.SensorStream, windowLen int, meta models.RowMeta, rate float64) *models.FeatureTable {
	table := &models.FeatureTable{Key: stream.Key}
	axes := e.DataColumns(stream)
	if len(axes) == 0 || windowLen < 1 {
		return table
	}
	numWindows := stream.Len() / windowLen
	if numWindows == 0 {
		return table
	}

	spectral := e.opts.Policy.HighRate(rate)
	table.FeatureNames = FeatureNames(stream.Key, axes, spectral)

	var fft *fourier.FFT
	var coeff []complex128
	if spectral {
		fft = fourier.NewFFT(windowLen)
	}

	perAxis := len(table.FeatureNames) / len(axes)
	table.Values = make([][]float64, numWindows)
	table.Meta = make([]models.RowMeta, numWindows)
	for w := 0; w < numWindows; w++ {
		row := make([]float64, len(table.FeatureNames))
		lo, hi := w*windowLen, (w+1)*windowLen
		for a, axis := range axes {
			samples := stream.Data[axis][lo:hi]
			st := computeStats(samples)
			base := a * perAxis
			row[base] = st.mean
			row[base+1] = st.std
			row[base+2] = st.peak
			row[base+3] = st.kurtosis
			row[base+4] = st.rms
			if spectral {
				row[base+5], coeff = peakFrequency(fft, samples, rate, coeff)
			}
		}
		table.Values[w] = row
		table.Meta[w] = meta
	}
	return table
}
