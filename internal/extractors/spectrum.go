package extractors

import (
	"context"
	"fmt"
	"log/slog"
	"math/cmplx"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/miradorstack/mirador-pdm/internal/models"
)

// TopPeaks is how many spectral peaks a summary lists.
const TopPeaks = 3

// Spectrum is the one-sided amplitude spectrum of a mean-removed signal.
type Spectrum struct {
	Frequencies []float64
	Magnitudes  []float64
}

// ComputeSpectrum removes the mean of x, applies a real FFT and scales the
// magnitudes by 2/n. Bin k maps to k*rate/n Hz.
func ComputeSpectrum(x []float64, rate float64) Spectrum {
	n := len(x)
	if n == 0 {
		return Spectrum{}
	}
	mean := stat.Mean(x, nil)
	centred := make([]float64, n)
	for i, v := range x {
		centred[i] = v - mean
	}
	coeff := fourier.NewFFT(n).Coefficients(nil, centred)
	s := Spectrum{Frequencies: make([]float64, len(coeff)), Magnitudes: make([]float64, len(coeff))}
	for k, c := range coeff {
		s.Frequencies[k] = float64(k) * rate / float64(n)
		s.Magnitudes[k] = cmplx.Abs(c) * 2 / float64(n)
	}
	return s
}

// Peak is one spectral line.
type Peak struct {
	Frequency float64 `json:"freq"`
	Magnitude float64 `json:"mag"`
}

// FrequencySummary condenses a spectrum for reporting.
type FrequencySummary struct {
	Sensor           string  `json:"sensor"`
	Type             string  `json:"type"`
	Axis             string  `json:"axis"`
	PeakFrequency    float64 `json:"peak_frequency"`
	PeakMagnitude    float64 `json:"peak_magnitude"`
	SpectralCentroid float64 `json:"spectral_centroid"`
	TopPeaks         []Peak  `json:"top_peaks"`
}

// SummarizeSpectrum reports the dominant bin, the magnitude-weighted centroid
// and the strongest bins.
func SummarizeSpectrum(s Spectrum, key models.SensorKey, axis string, topN int) FrequencySummary {
	out := FrequencySummary{Sensor: key.Name, Type: key.Type, Axis: axis}
	if len(s.Magnitudes) == 0 {
		return out
	}
	peak := floats.MaxIdx(s.Magnitudes)
	out.PeakFrequency = round(s.Frequencies[peak], 2)
	out.PeakMagnitude = round(s.Magnitudes[peak], 4)
	if total := floats.Sum(s.Magnitudes); total > 0 {
		out.SpectralCentroid = round(floats.Dot(s.Frequencies, s.Magnitudes)/total, 2)
	}

	order := make([]int, len(s.Magnitudes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return s.Magnitudes[order[a]] > s.Magnitudes[order[b]] })
	if topN > len(order) {
		topN = len(order)
	}
	for _, i := range order[:topN] {
		out.TopPeaks = append(out.TopPeaks, Peak{Frequency: round(s.Frequencies[i], 2), Magnitude: round(s.Magnitudes[i], 4)})
	}
	return out
}

// FormatFrequencySummary renders a summary as report text.
func FormatFrequencySummary(s FrequencySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Frequency Profile for %s (%s) axis %s:\n", s.Sensor, s.Type, s.Axis)
	fmt.Fprintf(&b, "- Dominant Frequency: %g Hz (Magnitude: %g)\n", s.PeakFrequency, s.PeakMagnitude)
	fmt.Fprintf(&b, "- Spectral Centroid: %g Hz (Overall energy balance)\n", s.SpectralCentroid)
	b.WriteString("- Top Peaks identified:\n")
	for _, p := range s.TopPeaks {
		fmt.Fprintf(&b, "  * %g Hz (Mag: %g)\n", p.Frequency, p.Magnitude)
	}
	return b.String()
}

// SpectrumExtractor builds frequency-spectrum reports.
type SpectrumExtractor struct {
	logger     *slog.Logger
	reader     StreamReader
	timeColumn string
}

// NewSpectrumExtractor constructs a SpectrumExtractor.
func NewSpectrumExtractor(logger *slog.Logger, reader StreamReader, timeColumn string) *SpectrumExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if timeColumn == "" {
		timeColumn = "Time"
	}
	return &SpectrumExtractor{logger: logger, reader: reader, timeColumn: timeColumn}
}

// Report computes the spectrum of every data column of the requested
// streams, with one figure per type clipped at the Nyquist frequency.
func (e *SpectrumExtractor) Report(ctx context.Context, acqPath, name, typ string) (*Report, error) {
	streams, _, err := loadStreams(ctx, e.reader, acqPath, name, typ, e.timeColumn)
	if err != nil {
		return nil, err
	}

	var lines []string
	if acquisitionLabel(acqPath) == models.LabelOK {
		lines = append(lines, "This observation belongs to OK(normal) category")
	} else {
		lines = append(lines, "This observation belongs to KO(faulty) category")
	}

	report := &Report{}
	for _, ls := range streams {
		key := ls.stream.Key
		fig := models.Figure{
			Kind:   models.FigureLine,
			Title:  fmt.Sprintf("Frequency Spectrum: %s (%s)", key.Name, key.Type),
			XLabel: "Frequency [Hz]",
			YLabel: fmt.Sprintf("Magnitude [%s]", unitsOrNA(ls.info.Units)),
			XMax:   ls.rate / 2,
		}
		for j, col := range dataColumns(ls.stream, e.timeColumn) {
			spec := ComputeSpectrum(ls.stream.Data[col], ls.rate)
			label := axisLabel(ls.info, j, col)
			lines = append(lines, FormatFrequencySummary(SummarizeSpectrum(spec, key, label, TopPeaks)))
			x, y := decimate(spec.Frequencies, spec.Magnitudes, MaxFigurePoints)
			fig.Series = append(fig.Series, models.Series{Name: label, X: x, Y: y})
		}
		report.Figures = append(report.Figures, fig)
	}
	report.Text = strings.Join(lines, "\n")
	e.logger.Debug("spectrum report built", slog.String("acquisition", filepath.Base(acqPath)), slog.String("sensor", name), slog.Int("figures", len(report.Figures)))
	return report, nil
}
