package extractors

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/miradorstack/mirador-pdm/internal/models"
)

// AxisSummary describes one data column over a whole stream.
type AxisSummary struct {
	Axis       string  `json:"axis"`
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Max        float64 `json:"max"`
	RMS        float64 `json:"rms"`
	Kurtosis   float64 `json:"kurtosis"`
	Skewness   float64 `json:"skewness"`
	Slope      float64 `json:"slope"`
	PeakToPeak float64 `json:"peak_to_peak"`
}

// SignalSummary profiles every data column of one stream.
type SignalSummary struct {
	Sensor      string        `json:"sensor"`
	Type        string        `json:"type"`
	SampleCount int           `json:"sample_count"`
	Axes        []AxisSummary `json:"axes"`
}

// SummarizeSignal computes sample statistics and a least-squares trend per
// data column. NaN samples are ignored. Without a time column, sample index
// divided by rate is used as time.
func SummarizeSignal(stream *models.SensorStream, timeColumn string, rate float64) SignalSummary {
	s := SignalSummary{Sensor: stream.Key.Name, Type: stream.Key.Type, SampleCount: stream.Len()}
	ts := timeAxis(stream, timeColumn, rate)

	for _, col := range dataColumns(stream, timeColumn) {
		var x, y []float64
		for i, v := range stream.Data[col] {
			if math.IsNaN(v) {
				continue
			}
			x = append(x, ts[i])
			y = append(y, v)
		}
		if len(y) == 0 {
			continue
		}
		mean, std := stat.MeanStdDev(y, nil)
		_, slope := stat.LinearRegression(x, y, nil, false)
		hi, lo := floats.Max(y), floats.Min(y)
		s.Axes = append(s.Axes, AxisSummary{
			Axis:       col,
			Mean:       round(mean, 4),
			Std:        round(finite(std), 4),
			Max:        round(hi, 4),
			RMS:        round(math.Sqrt(floats.Dot(y, y)/float64(len(y))), 4),
			Kurtosis:   round(finite(stat.ExKurtosis(y, nil)), 2),
			Skewness:   round(finite(stat.Skew(y, nil)), 2),
			Slope:      round(finite(slope), 6),
			PeakToPeak: round(hi-lo, 4),
		})
	}
	return s
}

// FormatSignalSummary renders a summary with trend and symmetry hints.
func FormatSignalSummary(s SignalSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Data Profile for %s (%s):\n", s.Sensor, s.Type)
	for _, a := range s.Axes {
		trend := "stable/flat"
		if math.Abs(a.Slope) >= 0.0001 {
			trend = "falling"
			if a.Slope > 0 {
				trend = "rising"
			}
		}
		shape := "symmetric"
		if math.Abs(a.Skewness) >= 0.5 {
			shape = "left-leaning"
			if a.Skewness > 0 {
				shape = "right-leaning"
			}
		}
		fmt.Fprintf(&b, "- %s Axis: RMS=%g, Kurtosis=%g, Std=%g (thickness), Skewness=%g (%s), Slope=%g (%s)\n",
			a.Axis, a.RMS, a.Kurtosis, a.Std, a.Skewness, shape, a.Slope, trend)
	}
	return b.String()
}

// SignalExtractor builds time-series reports.
type SignalExtractor struct {
	logger     *slog.Logger
	reader     StreamReader
	timeColumn string
}

// NewSignalExtractor constructs a SignalExtractor.
func NewSignalExtractor(logger *slog.Logger, reader StreamReader, timeColumn string) *SignalExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if timeColumn == "" {
		timeColumn = "Time"
	}
	return &SignalExtractor{logger: logger, reader: reader, timeColumn: timeColumn}
}

// Report profiles name (and typ, or every type of name when empty) in the
// acquisition at acqPath and returns one line figure per type.
func (e *SignalExtractor) Report(ctx context.Context, acqPath, name, typ string) (*Report, error) {
	streams, _, err := loadStreams(ctx, e.reader, acqPath, name, typ, e.timeColumn)
	if err != nil {
		return nil, err
	}

	id := filepath.Base(filepath.Clean(acqPath))
	lines := []string{fmt.Sprintf("Analysis for Acquisition: **%s**", id)}
	if acquisitionLabel(acqPath) == models.LabelOK {
		lines = append(lines, "Condition: OK (Normal State)\n")
	} else {
		lines = append(lines, "Condition: KO (Faulty State)\n")
	}

	report := &Report{}
	for _, ls := range streams {
		summary := SummarizeSignal(ls.stream, e.timeColumn, ls.rate)
		lines = append(lines, FormatSignalSummary(summary))

		fig := models.Figure{
			Kind:   models.FigureLine,
			Title:  fmt.Sprintf("Acquisition ID: %s | Sensor: %s | Type: %s", id, ls.stream.Key.Name, ls.stream.Key.Type),
			XLabel: "Time [seconds]",
			YLabel: fmt.Sprintf("Value [%s]", unitsOrNA(ls.info.Units)),
		}
		ts := timeAxis(ls.stream, e.timeColumn, ls.rate)
		for j, col := range dataColumns(ls.stream, e.timeColumn) {
			x, y := decimate(ts, ls.stream.Data[col], MaxFigurePoints)
			fig.Series = append(fig.Series, models.Series{Name: axisLabel(ls.info, j, col), X: x, Y: y})
		}
		report.Figures = append(report.Figures, fig)
	}
	report.Text = strings.Join(lines, "\n")
	e.logger.Debug("signal report built", slog.String("acquisition", id), slog.String("sensor", name), slog.Int("figures", len(report.Figures)))
	return report, nil
}

func timeAxis(stream *models.SensorStream, timeColumn string, rate float64) []float64 {
	if ts, ok := stream.Column(timeColumn); ok {
		return ts
	}
	if rate <= 0 {
		rate = 1
	}
	ts := make([]float64, stream.Len())
	for i := range ts {
		ts[i] = float64(i) / rate
	}
	return ts
}

func unitsOrNA(u string) string {
	if u == "" {
		return "N/A"
	}
	return u
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
