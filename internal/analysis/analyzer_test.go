package analysis

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-pdm/internal/models"
	"github.com/miradorstack/mirador-pdm/internal/repo"
)

// writeTable persists a table whose first feature separates OK from KO with
// the given noise level.
func writeTable(t *testing.T, dir, name, typ string, rows int, noise float64, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	key := models.SensorKey{Name: name, Type: typ}
	table := &models.FeatureTable{
		Key:          key,
		FeatureNames: []string{key.String() + "_x_mean", key.String() + "_x_std"},
	}
	for i := 0; i < rows; i++ {
		label := models.LabelOK
		sign := 1.0
		if i%2 == 1 {
			label = models.LabelKO
			sign = -1
		}
		table.Values = append(table.Values, []float64{sign + noise*rng.NormFloat64(), rng.Float64()})
		table.Meta = append(table.Meta, models.RowMeta{Condition: "c", FaultDetail: "f", Label: label, AcquisitionID: "a"})
	}
	_, err := repo.NewFeatureStore(dir).Write(table)
	require.NoError(t, err)
}

func TestRunRejectsAlgorithmBeforeIO(t *testing.T) {
	// A regular file in place of the directory makes any listing fail.
	notADir := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(notADir, nil, 0o644))

	out, err := NewAnalyzer(nil, DefaultConfig()).Run(context.Background(), notADir, "svm", nil)
	require.NoError(t, err)
	require.Equal(t, StatusUnsupportedAlgorithm, out.Status)
	require.False(t, out.Valid())
}

func TestRunInvalidSensors(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, "A", "ACC", 30, 0.1, 1)

	out, err := NewAnalyzer(nil, DefaultConfig()).Run(context.Background(), dir, "rf", []models.SensorRequest{models.ByName("C")})
	require.NoError(t, err)
	require.Equal(t, StatusInvalidSensors, out.Status)
	require.Equal(t, []models.SensorRequest{models.ByName("C")}, out.Unresolved)
	require.Nil(t, out.Report)
}

func TestRunNoData(t *testing.T) {
	out, err := NewAnalyzer(nil, DefaultConfig()).Run(context.Background(), t.TempDir(), "dt", nil)
	require.NoError(t, err)
	require.Equal(t, StatusNoData, out.Status)
	require.False(t, out.Valid())
}

func TestRunRanksSensors(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, "A", "ACC", 60, 0.1, 1)
	writeTable(t, dir, "B", "ACC", 60, 3.0, 2)
	writeTable(t, dir, "B", "GYRO", 2, 0.1, 3)

	for _, tag := range SupportedAlgorithms() {
		t.Run(tag, func(t *testing.T) {
			out, err := NewAnalyzer(nil, DefaultConfig()).Run(context.Background(), dir, tag, nil)
			require.NoError(t, err)
			require.True(t, out.Valid())
			require.Equal(t, []string{"B_GYRO"}, out.Skipped)

			rep := out.Report
			require.Equal(t, tag, rep.Algorithm)
			require.Len(t, rep.Ranking, 2)
			require.Equal(t, "A_ACC", rep.Ranking[0].Sensor)
			require.GreaterOrEqual(t, rep.Ranking[0].Accuracy, rep.Ranking[1].Accuracy)

			require.Len(t, rep.TopFeatures, 4)
			for i := 1; i < len(rep.TopFeatures); i++ {
				require.GreaterOrEqual(t, rep.TopFeatures[i-1].GlobalScore, rep.TopFeatures[i].GlobalScore)
			}
			for _, r := range rep.TopFeatures {
				require.InDelta(t, r.Importance*r.SensorAccuracy, r.GlobalScore, 1e-12)
			}

			require.Len(t, rep.Reliability.Bars, 2)
			require.Equal(t, []models.ReferenceLine{{Label: "Random Guessing", Value: 0.5}}, rep.Reliability.References)
			require.Len(t, rep.Importance.Bars, 4)
		})
	}
}

func TestRunLimitsTopFeatures(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K"} {
		writeTable(t, dir, name, "ACC", 30, 0.2, int64(i))
	}
	out, err := NewAnalyzer(nil, DefaultConfig()).Run(context.Background(), dir, "dt", nil)
	require.NoError(t, err)
	require.True(t, out.Valid())
	require.Len(t, out.Report.Ranking, 11)
	require.Len(t, out.Report.TopFeatures, 20)
	require.Contains(t, out.Report.Importance.Title, "Top 20")
}

func TestPrepareBadRowPolicy(t *testing.T) {
	build := func(bad int) *models.FeatureTable {
		table := &models.FeatureTable{FeatureNames: []string{"f1", "f2"}}
		for i := 0; i < 40; i++ {
			v := float64(i)
			if i < bad {
				v = math.NaN()
				if i%2 == 0 {
					v = math.Inf(-1)
				}
			}
			label := models.LabelOK
			if i%2 == 0 {
				label = models.LabelKO
			}
			table.Values = append(table.Values, []float64{v, 1})
			table.Meta = append(table.Meta, models.RowMeta{Label: label})
		}
		return table
	}

	dropped := Prepare(build(2), DefaultBadRowTolerance)
	require.Equal(t, 2, dropped.Dropped)
	require.Len(t, dropped.X, 38)
	require.False(t, dropped.ZeroFilled)

	filled := Prepare(build(10), DefaultBadRowTolerance)
	require.Equal(t, 0, filled.Dropped)
	require.Len(t, filled.X, 40)
	require.True(t, filled.ZeroFilled)
	for _, row := range filled.X[:10] {
		require.Equal(t, 0.0, row[0])
	}
}

func TestPrepareLabelEncoding(t *testing.T) {
	table := &models.FeatureTable{
		FeatureNames: []string{"f"},
		Values:       [][]float64{{1}, {2}, {3}, {4}},
		Meta:         []models.RowMeta{{Label: "OK"}, {Label: "KO"}, {Label: ""}, {Label: "OK"}},
	}
	p := Prepare(table, DefaultBadRowTolerance)
	require.Equal(t, []models.Label{models.LabelKO, models.LabelOK}, p.Classes)
	require.Equal(t, []int{1, 0, 1}, p.Y)
	require.Equal(t, [][]float64{{1}, {2}, {4}}, p.X)
}

func TestSummarize(t *testing.T) {
	report := &models.Report{
		Ranking: []models.SensorScore{{Sensor: "A_ACC", Accuracy: 0.95}, {Sensor: "B_ACC", Accuracy: 0.5}},
	}
	for i := 0; i < 8; i++ {
		report.TopFeatures = append(report.TopFeatures, models.ImportanceRecord{
			Sensor: "A_ACC", Feature: "A_ACC_f" + string(rune('0'+i)), SensorAccuracy: 0.95, GlobalScore: 0.1,
		})
	}
	text := Summarize(report, 0)
	require.True(t, strings.HasPrefix(text, "### AUTOMATED ANALYSIS REPORT ###\n\n"))
	require.Contains(t, text, "--- SENSOR RELIABILITY (Model Accuracy) ---")
	require.Contains(t, text, "--- TOP PREDICTIVE FEATURES (Global Weighted Score) ---")
	require.Contains(t, text, "Global_Score")
	require.Contains(t, text, "A_ACC_f4")
	require.NotContains(t, text, "A_ACC_f5")
	require.Contains(t, text, "0.950000")
}
