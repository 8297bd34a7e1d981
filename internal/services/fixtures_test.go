package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-pdm/internal/analysis"
	"github.com/miradorstack/mirador-pdm/internal/engine"
	"github.com/miradorstack/mirador-pdm/internal/extractors"
	"github.com/miradorstack/mirador-pdm/internal/models"
)

type stubBuilder struct {
	mu    sync.Mutex
	calls int
	write string
}

func (b *stubBuilder) Build(_ context.Context, _, outDir string) (engine.BuildResult, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	res := engine.BuildResult{Tables: map[models.SensorKey]string{}, Rows: map[models.SensorKey]int{}}
	if b.write == "" {
		return res, nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return res, err
	}
	path := filepath.Join(outDir, b.write+".csv")
	if err := os.WriteFile(path, []byte("a\n1\n"), 0o644); err != nil {
		return res, err
	}
	key, _ := models.ParseSensorKey(b.write)
	res.Acquisitions = 1
	res.Tables[key] = path
	res.Rows[key] = 1
	return res, nil
}

type stubAnalyzer struct {
	mu      sync.Mutex
	calls   int
	status  analysis.Status
	lastReq []models.SensorRequest
	lastAlg string
}

func (a *stubAnalyzer) Run(_ context.Context, _, algorithm string, reqs []models.SensorRequest) (analysis.Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.lastReq = reqs
	a.lastAlg = algorithm
	if a.status != "" && a.status != analysis.StatusOK {
		return analysis.Outcome{Status: a.status}, nil
	}
	report := &models.Report{
		Algorithm:   algorithm,
		Ranking:     []models.SensorScore{{Sensor: "IIS3DWB_ACC", Accuracy: 0.9}},
		TopFeatures: []models.ImportanceRecord{{Sensor: "IIS3DWB_ACC", Feature: "IIS3DWB_ACC_x_rms", Importance: 1, SensorAccuracy: 0.9, GlobalScore: 0.9}},
		Reliability: models.Figure{Kind: models.FigureBar, Title: "reliability"},
		Importance:  models.Figure{Kind: models.FigureBar, Title: "importance"},
	}
	return analysis.Outcome{Status: analysis.StatusOK, Report: report}, nil
}

type stubTool struct {
	name  string
	calls int
	last  [3]string
	err   error
}

func (s *stubTool) Report(_ context.Context, acqPath, name, typ string) (*extractors.Report, error) {
	s.calls++
	s.last = [3]string{acqPath, name, typ}
	if s.err != nil {
		return nil, s.err
	}
	return &extractors.Report{Text: s.name + " report", Figures: []models.Figure{{Kind: models.FigureLine, Title: s.name}}}, nil
}

type session struct {
	label     models.Label
	id        string
	condition string
	fault     string
	sensors   []string
}

// writeSessions lays out root/{label}/{id}/ with metadata.json and empty
// parquet placeholders; the stub tools never read them.
func writeSessions(t *testing.T, root string, sessions []session) {
	t.Helper()
	for _, s := range sessions {
		dir := filepath.Join(root, string(s.label), s.id)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		meta := models.Metadata{
			SessionInfo: models.SessionInfo{Condition: s.condition, FaultDetail: s.fault, AcquisitionID: s.id},
			Sensors:     map[string]models.SensorInfo{},
		}
		for _, name := range s.sensors {
			key, err := models.ParseSensorKey(name)
			require.NoError(t, err)
			meta.Sensors[name] = models.SensorInfo{FileName: name + ".parquet", SensorName: key.Name, SensorType: key.Type, IsActive: true}
			require.NoError(t, os.WriteFile(filepath.Join(dir, name+".parquet"), nil, 0o644))
		}
		writeJSON(t, filepath.Join(dir, "metadata.json"), meta)
	}
}

func defaultSessions() []session {
	return []session{
		{label: models.LabelOK, id: "sess1", condition: "vel-fissa", fault: "none", sensors: []string{"IIS3DWB_ACC", "ISM330DHCX_GYRO"}},
		{label: models.LabelKO, id: "sess1", condition: "vel-fissa", fault: "KO_HIGH_2mm", sensors: []string{"IIS3DWB_ACC", "ISM330DHCX_GYRO"}},
		{label: models.LabelKO, id: "sess2", condition: "vel-var", fault: "KO_LOW_4mm", sensors: []string{"IIS3DWB_ACC", "ISM330DHCX_GYRO"}},
	}
}

type harness struct {
	root     string
	features string
	builder  *stubBuilder
	analyzer *stubAnalyzer
	signal   *stubTool
	spectrum *stubTool
	d        *Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	writeSessions(t, root, defaultSessions())
	h := &harness{
		root:     root,
		features: filepath.Join(t.TempDir(), "features"),
		builder:  &stubBuilder{write: "IIS3DWB_ACC"},
		analyzer: &stubAnalyzer{},
		signal:   &stubTool{name: "signal"},
		spectrum: &stubTool{name: "spectrum"},
	}
	h.d = NewDispatcher(nil, DispatcherConfig{DatasetRoot: root, FeaturesDir: h.features, Seed: 7}, h.builder, h.analyzer, h.signal, h.spectrum)
	return h
}
