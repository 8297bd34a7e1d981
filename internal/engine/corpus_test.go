package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-pdm/internal/models"
	"github.com/miradorstack/mirador-pdm/internal/repo"
)

func newTestBuilder(t *testing.T, reader StreamReader, workers int) *CorpusBuilder {
	t.Helper()
	b := NewCorpusBuilder(nil, NewAcquisitionProcessor(nil, reader, nil), workers)
	t.Cleanup(b.Close)
	return b
}

func TestDiscoverTwoLevels(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, []acqSpec{
		{label: models.LabelOK, name: "s2", sensors: []string{"A_ACC"}},
		{label: models.LabelOK, name: "s1", sensors: []string{"A_ACC"}},
		{label: models.LabelKO, name: "s1", sensors: []string{"A_ACC"}},
	})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "extra", "s9"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "OK", "readme.txt"), nil, 0o644))

	tasks, err := Discover(root)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	require.Equal(t, models.LabelKO, tasks[0].Label)
	require.Equal(t, "s1", tasks[1].Name)
	require.Equal(t, "s2", tasks[2].Name)

	_, err = Discover(filepath.Join(root, "missing"))
	require.Error(t, err)
}

// rowMultiset renders every row with its provenance so tables can be compared
// regardless of row order.
func rowMultiset(table *models.FeatureTable) []string {
	rows := make([]string, table.Rows())
	for i, row := range table.Values {
		rows[i] = fmt.Sprintf("%v|%+v", row, table.Meta[i])
	}
	sort.Strings(rows)
	return rows
}

func TestMergeOrderIndependent(t *testing.T) {
	root := t.TempDir()
	var acqs []acqSpec
	for i := 0; i < 6; i++ {
		label := models.LabelOK
		if i%2 == 1 {
			label = models.LabelKO
		}
		acqs = append(acqs, acqSpec{label: label, name: "acq-" + strings.Repeat("x", i+1), sensors: []string{"A_ACC", "B_GYRO"}, rate: ptr(200)})
	}
	writeDataset(t, root, acqs)

	tasks, err := Discover(root)
	require.NoError(t, err)

	reader := &fakeReader{n: 1000, rate: 200}
	builder := newTestBuilder(t, reader, 3)
	baseline, err := builder.Run(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, baseline, 2)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 5; trial++ {
		permuted := append([]models.AcquisitionTask(nil), tasks...)
		rng.Shuffle(len(permuted), func(i, j int) { permuted[i], permuted[j] = permuted[j], permuted[i] })

		got, err := builder.Run(context.Background(), permuted)
		require.NoError(t, err)
		require.Len(t, got, len(baseline))
		for key, table := range baseline {
			require.Equal(t, table.FeatureNames, got[key].FeatureNames)
			require.Equal(t, rowMultiset(table), rowMultiset(got[key]))
		}
	}
}

func TestMergeResultsUnionsColumns(t *testing.T) {
	key := models.SensorKey{Name: "A", Type: "ACC"}
	meta := models.RowMeta{Label: models.LabelOK}
	a := &models.FeatureTable{Key: key, FeatureNames: []string{"f1"}, Values: [][]float64{{1}}, Meta: []models.RowMeta{meta}}
	b := &models.FeatureTable{Key: key, FeatureNames: []string{"f1", "f2"}, Values: [][]float64{{2, 3}}, Meta: []models.RowMeta{meta}}

	merged := MergeResults([]map[models.SensorKey]*models.FeatureTable{{key: a}, {}, {key: b}})
	table := merged[key]
	require.Equal(t, []string{"f1", "f2"}, table.FeatureNames)
	require.Equal(t, 2, table.Rows())
	require.Equal(t, 1.0, table.Values[0][0])
	require.True(t, math.IsNaN(table.Values[0][1]), "missing cell should be NaN")
}

func TestMergeResultsCanonicalColumns(t *testing.T) {
	key := models.SensorKey{Name: "A", Type: "ACC"}
	meta := models.RowMeta{Label: models.LabelOK}
	high := &models.FeatureTable{
		Key:          key,
		FeatureNames: []string{"A_ACC_x_mean", "A_ACC_x_rms", "A_ACC_x_peak_freq", "A_ACC_y_mean", "A_ACC_y_rms", "A_ACC_y_peak_freq"},
		Values:       [][]float64{{1, 2, 3, 4, 5, 6}},
		Meta:         []models.RowMeta{meta},
	}
	low := &models.FeatureTable{
		Key:          key,
		FeatureNames: []string{"A_ACC_x_mean", "A_ACC_x_rms", "A_ACC_y_mean", "A_ACC_y_rms"},
		Values:       [][]float64{{10, 20, 40, 50}},
		Meta:         []models.RowMeta{meta},
	}
	want := []string{"A_ACC_x_mean", "A_ACC_x_rms", "A_ACC_x_peak_freq", "A_ACC_y_mean", "A_ACC_y_rms", "A_ACC_y_peak_freq"}

	a := MergeResults([]map[models.SensorKey]*models.FeatureTable{{key: low}, {key: high}})[key]
	b := MergeResults([]map[models.SensorKey]*models.FeatureTable{{key: high}, {key: low}})[key]
	require.Equal(t, want, a.FeatureNames)
	require.Equal(t, want, b.FeatureNames)

	col, ok := a.Column("A_ACC_y_rms")
	require.True(t, ok)
	require.Equal(t, []float64{50, 5}, col)
	freq, ok := a.Column("A_ACC_x_peak_freq")
	require.True(t, ok)
	require.True(t, math.IsNaN(freq[0]))
	require.Equal(t, 3.0, freq[1])
}

func TestBuildSkipsBadFiles(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, []acqSpec{
		{label: models.LabelOK, name: "s1", sensors: []string{"A_ACC", "B_GYRO"}, rate: ptr(200)},
		{label: models.LabelKO, name: "s1", sensors: []string{"A_ACC", "B_GYRO"}, rate: ptr(200)},
	})
	// A broken metadata record drops only its own acquisition.
	bad := filepath.Join(root, "KO", "s2")
	require.NoError(t, os.MkdirAll(bad, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bad, "metadata.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bad, "A_ACC.parquet"), nil, 0o644))

	reader := &fakeReader{n: 500, rate: 200, fail: map[string]bool{"B_GYRO.parquet": true}}
	out := filepath.Join(t.TempDir(), "features")
	res, err := newTestBuilder(t, reader, 2).Build(context.Background(), root, out)
	require.NoError(t, err)
	require.False(t, res.Empty())
	require.Equal(t, 3, res.Acquisitions)

	key := models.SensorKey{Name: "A", Type: "ACC"}
	require.Len(t, res.Tables, 1)
	// 500 samples at 200 Hz: window round(246) gives 2 windows per session.
	require.Equal(t, 4, res.Rows[key])

	table, err := repo.ReadTable(res.Tables[key])
	require.NoError(t, err)
	require.Equal(t, 4, table.Rows())
}

func TestBuildEmptyCorpus(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "OK"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "KO"), 0o755))

	out := filepath.Join(t.TempDir(), "features")
	res, err := newTestBuilder(t, &fakeReader{n: 10, rate: 200}, 1).Build(context.Background(), root, out)
	require.NoError(t, err)
	require.True(t, res.Empty())
	_, err = os.Stat(out)
	require.True(t, os.IsNotExist(err))

	// Streams shorter than one window are also an empty corpus.
	writeDataset(t, root, []acqSpec{{label: models.LabelOK, name: "s1", sensors: []string{"A_ACC"}, rate: ptr(200)}})
	res, err = newTestBuilder(t, &fakeReader{n: 10, rate: 200}, 1).Build(context.Background(), root, out)
	require.NoError(t, err)
	require.True(t, res.Empty())
}

func TestProcessEstimatesMissingRate(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, []acqSpec{{label: models.LabelOK, name: "s1", sensors: []string{"A_ACC"}}})

	proc := NewAcquisitionProcessor(nil, &fakeReader{n: 1000, rate: 100}, nil)
	out := proc.Process(context.Background(), models.AcquisitionTask{Path: filepath.Join(root, "OK", "s1"), Name: "s1", Label: models.LabelOK})
	table := out[models.SensorKey{Name: "A", Type: "ACC"}]
	require.NotNil(t, table)
	// Estimated rate is 1000/9.99 ≈ 100.1 Hz, giving round(123.12) = 123 samples per window.
	require.Equal(t, 1000/123, table.Rows())
	require.Equal(t, "s1", table.Meta[0].AcquisitionID)
	require.Equal(t, models.LabelOK, table.Meta[0].Label)
}

func TestBuildKeepsFolderAcquisitionIDs(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, []acqSpec{
		{label: models.LabelOK, name: "vel-fissa_OK_acq1", sensors: []string{"A_ACC"}, rate: ptr(200), metaID: "acq1"},
		{label: models.LabelOK, name: "vel-var_OK_acq1", sensors: []string{"A_ACC"}, rate: ptr(200), metaID: "acq1"},
	})
	tasks, err := Discover(root)
	require.NoError(t, err)

	got, err := newTestBuilder(t, &fakeReader{n: 500, rate: 200}, 2).Run(context.Background(), tasks)
	require.NoError(t, err)
	table := got[models.SensorKey{Name: "A", Type: "ACC"}]
	require.NotNil(t, table)

	ids := map[string]bool{}
	for _, m := range table.Meta {
		ids[m.AcquisitionID] = true
	}
	require.Equal(t, map[string]bool{"vel-fissa_OK_acq1": true, "vel-var_OK_acq1": true}, ids)
}
