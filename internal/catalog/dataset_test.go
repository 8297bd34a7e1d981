package catalog

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-pdm/internal/models"
	"github.com/miradorstack/mirador-pdm/internal/repo"
)

func writeSession(t *testing.T, root string, label models.Label, name, condition, fault string, sensors ...string) string {
	t.Helper()
	dir := filepath.Join(root, string(label), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	rate := 26667.0
	meta := &models.Metadata{
		SessionInfo: models.SessionInfo{Condition: condition, FaultDetail: fault, AcquisitionID: name},
		Sensors:     map[string]models.SensorInfo{},
	}
	for _, s := range sensors {
		key, err := models.ParseSensorKey(s)
		require.NoError(t, err)
		meta.Sensors[s] = models.SensorInfo{FileName: s + ".parquet", SensorName: key.Name, SensorType: key.Type, Units: "g", Columns: []string{"x [g]"}, SamplingRateHz: &rate, IsActive: true, Sensitivity: 0.061}
		require.NoError(t, os.WriteFile(filepath.Join(dir, s+".parquet"), nil, 0o644))
	}
	require.NoError(t, repo.WriteMetadata(dir, meta))
	return dir
}

func validDataset(t *testing.T) string {
	root := t.TempDir()
	writeSession(t, root, models.LabelOK, "s1", "vel-fissa", "none", "IIS3DWB_ACC", "HTS221_TEMP")
	writeSession(t, root, models.LabelOK, "s2", "vel-variabile", "none", "IIS3DWB_ACC", "HTS221_TEMP")
	writeSession(t, root, models.LabelKO, "s3", "vel-fissa", "bearing", "IIS3DWB_ACC", "HTS221_TEMP")
	return root
}

func TestValidateDataset(t *testing.T) {
	root := validDataset(t)
	ok, reason := ValidateDataset(root)
	require.True(t, ok, reason)

	ok, reason = ValidateDataset(filepath.Join(root, "missing"))
	require.False(t, ok)
	require.Contains(t, reason, "does not exist")
}

func TestValidateDatasetFailures(t *testing.T) {
	t.Run("missing class folder", func(t *testing.T) {
		root := t.TempDir()
		writeSession(t, root, models.LabelOK, "s1", "c", "f", "A_ACC")
		ok, reason := ValidateDataset(root)
		require.False(t, ok)
		require.Contains(t, reason, "'KO'")
	})
	t.Run("file mismatch", func(t *testing.T) {
		root := validDataset(t)
		require.NoError(t, os.Remove(filepath.Join(root, "KO", "s3", "HTS221_TEMP.parquet")))
		ok, reason := ValidateDataset(root)
		require.False(t, ok)
		require.Contains(t, reason, "File mismatch in session 's3'")
	})
	t.Run("sensor key missing", func(t *testing.T) {
		root := t.TempDir()
		for _, lbl := range models.Labels {
			dir := filepath.Join(root, string(lbl), "s1")
			require.NoError(t, os.MkdirAll(dir, 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "A_ACC.parquet"), nil, 0o644))
			body := `{"session_info":{"condition":"c","fault_detail":"f","acquisition_id":"s1"},"sensors":{"A_ACC":{"file_name":"A_ACC.parquet"}}}`
			require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(body), 0o644))
		}
		ok, reason := ValidateDataset(root)
		require.False(t, ok)
		require.Contains(t, reason, "missing key: 'sensor_name'")
	})
	t.Run("no sessions", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, "OK"), 0o755))
		require.NoError(t, os.MkdirAll(filepath.Join(root, "KO"), 0o755))
		ok, reason := ValidateDataset(root)
		require.False(t, ok)
		require.Contains(t, reason, "No acquisition")
	})
}

func TestScanVocabulary(t *testing.T) {
	vocab, err := ScanVocabulary(validDataset(t))
	require.NoError(t, err)
	require.Equal(t, []string{"HTS221", "IIS3DWB"}, vocab.SensorNames)
	require.Equal(t, []string{"ACC", "TEMP"}, vocab.SensorTypes)
	require.Equal(t, []string{"vel-fissa", "vel-variabile"}, vocab.Conditions)
	require.Equal(t, []string{"bearing", "none"}, vocab.FaultDetails)
}

func TestScanVocabularyMissingRoot(t *testing.T) {
	vocab, err := ScanVocabulary(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Empty(t, vocab.SensorNames)
}

func TestSelectAcquisition(t *testing.T) {
	root := validDataset(t)
	rng := rand.New(rand.NewSource(1))

	path, ok := SelectAcquisition(root, AcquisitionFilter{ID: "s3"}, rng)
	require.True(t, ok)
	require.Equal(t, filepath.Join(root, "KO", "s3"), path)

	_, ok = SelectAcquisition(root, AcquisitionFilter{ID: "s9"}, rng)
	require.False(t, ok)

	path, ok = SelectAcquisition(root, AcquisitionFilter{Subset: models.LabelOK, Condition: "vel-variabile"}, rng)
	require.True(t, ok)
	require.Equal(t, filepath.Join(root, "OK", "s2"), path)

	for i := 0; i < 10; i++ {
		path, ok = SelectAcquisition(root, AcquisitionFilter{Condition: "vel-fissa"}, rng)
		require.True(t, ok)
		require.Contains(t, []string{filepath.Join(root, "OK", "s1"), filepath.Join(root, "KO", "s3")}, path)
	}

	_, ok = SelectAcquisition(root, AcquisitionFilter{Subset: models.LabelOK, FaultDetail: "bearing"}, rng)
	require.False(t, ok)
}

func TestAcquisitionPresenceAndSensors(t *testing.T) {
	root := validDataset(t)
	writeSession(t, root, models.LabelKO, "s1", "vel-fissa", "bearing", "IIS3DWB_ACC", "HTS221_TEMP")

	require.Equal(t, []models.Label{models.LabelOK, models.LabelKO}, AcquisitionPresence(root, "s1"))
	require.Equal(t, []models.Label{models.LabelOK}, AcquisitionPresence(root, "s2"))
	require.Empty(t, AcquisitionPresence(root, "s9"))

	acq := filepath.Join(root, "OK", "s1")
	require.True(t, HasSensor(acq, "IIS3DWB", "ACC"))
	require.False(t, HasSensor(acq, "IIS3DWB", "GYRO"))
	require.Equal(t, []string{"ACC"}, SensorTypes(acq, "IIS3DWB"))
}
