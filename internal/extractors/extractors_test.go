package extractors

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-pdm/internal/models"
	"github.com/miradorstack/mirador-pdm/internal/repo"
)

type toneReader struct {
	rate float64
	n    int
	freq float64
}

func (r toneReader) ReadStream(_ context.Context, _ string, key models.SensorKey) (*models.SensorStream, error) {
	ts := make([]float64, r.n)
	x := make([]float64, r.n)
	y := make([]float64, r.n)
	for i := range ts {
		ts[i] = float64(i) / r.rate
		x[i] = 0.5 + math.Sin(2*math.Pi*r.freq*ts[i])
		y[i] = 2 * ts[i]
	}
	return &models.SensorStream{
		Key:     key,
		Columns: []string{"Time", "A_x", "A_y"},
		Data:    map[string][]float64{"Time": ts, "A_x": x, "A_y": y},
	}, nil
}

func writeAcquisition(t *testing.T, label models.Label, sensors ...string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), string(label), "acq-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	rate := 1000.0
	meta := &models.Metadata{SessionInfo: models.SessionInfo{AcquisitionID: "acq-1"}, Sensors: map[string]models.SensorInfo{}}
	for _, s := range sensors {
		key, err := models.ParseSensorKey(s)
		require.NoError(t, err)
		meta.Sensors[s] = models.SensorInfo{SensorName: key.Name, SensorType: key.Type, Units: "g", Columns: []string{"x [g]", "y [g]"}, SamplingRateHz: &rate}
		require.NoError(t, os.WriteFile(filepath.Join(dir, s+".parquet"), nil, 0o644))
	}
	require.NoError(t, repo.WriteMetadata(dir, meta))
	return dir
}

func TestSummarizeSignal(t *testing.T) {
	stream, _ := toneReader{rate: 1000, n: 1000, freq: 50}.ReadStream(context.Background(), "", models.SensorKey{Name: "A", Type: "ACC"})
	s := SummarizeSignal(stream, "Time", 1000)
	require.Equal(t, 1000, s.SampleCount)
	require.Len(t, s.Axes, 2)

	x := s.Axes[0]
	require.InDelta(t, 0.5, x.Mean, 1e-4)
	require.InDelta(t, 2.0, x.PeakToPeak, 1e-3)
	require.InDelta(t, 0.0, x.Skewness, 0.01)
	require.InDelta(t, 0.0, x.Slope, 0.1)

	y := s.Axes[1]
	require.InDelta(t, 2.0, y.Slope, 1e-6)

	text := FormatSignalSummary(s)
	require.Contains(t, text, "Data Profile for A (ACC)")
	require.Contains(t, text, "A_x Axis")
	require.Contains(t, text, "(symmetric)")
	require.Contains(t, text, "(rising)")
}

func TestComputeSpectrum(t *testing.T) {
	rate := 1000.0
	x := make([]float64, 1000)
	for i := range x {
		x[i] = 3 + 2*math.Sin(2*math.Pi*125*float64(i)/rate)
	}
	spec := ComputeSpectrum(x, rate)
	require.Len(t, spec.Frequencies, 501)
	require.InDelta(t, 500.0, spec.Frequencies[500], 1e-9)

	sum := SummarizeSpectrum(spec, models.SensorKey{Name: "A", Type: "ACC"}, "x", TopPeaks)
	require.Equal(t, 125.0, sum.PeakFrequency)
	require.InDelta(t, 2.0, sum.PeakMagnitude, 1e-3)
	require.InDelta(t, 0.0, spec.Magnitudes[0], 1e-9, "mean must be removed")
	require.Len(t, sum.TopPeaks, 3)
	require.Equal(t, 125.0, sum.TopPeaks[0].Frequency)
	require.InDelta(t, 125.0, sum.SpectralCentroid, 1.0)
}

func TestSignalReport(t *testing.T) {
	acq := writeAcquisition(t, models.LabelOK, "A_ACC", "A_GYRO", "B_ACC")
	ex := NewSignalExtractor(nil, toneReader{rate: 1000, n: 12000, freq: 50}, "")

	rep, err := ex.Report(context.Background(), acq, "A", "")
	require.NoError(t, err)
	require.Len(t, rep.Figures, 2)
	require.Contains(t, rep.Text, "Analysis for Acquisition: **acq-1**")
	require.Contains(t, rep.Text, "Condition: OK (Normal State)")
	require.Equal(t, "x [g]", rep.Figures[0].Series[0].Name)
	require.Equal(t, "Value [g]", rep.Figures[0].YLabel)
	require.LessOrEqual(t, len(rep.Figures[0].Series[0].X), MaxFigurePoints)

	_, err = ex.Report(context.Background(), acq, "A", "MIC")
	require.True(t, errors.Is(err, ErrNoStreams))
}

func TestSpectrumReport(t *testing.T) {
	acq := writeAcquisition(t, models.LabelKO, "A_ACC")
	ex := NewSpectrumExtractor(nil, toneReader{rate: 1000, n: 1000, freq: 50}, "Time")

	rep, err := ex.Report(context.Background(), acq, "A", "ACC")
	require.NoError(t, err)
	require.Len(t, rep.Figures, 1)
	require.Equal(t, 500.0, rep.Figures[0].XMax)
	require.True(t, strings.HasPrefix(rep.Text, "This observation belongs to KO(faulty) category"))
	require.Contains(t, rep.Text, "Dominant Frequency: 50 Hz")
}
