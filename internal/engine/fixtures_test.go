package engine

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-pdm/internal/models"
	"github.com/miradorstack/mirador-pdm/internal/repo"
)

// fakeReader synthesises streams from the acquisition folder name so tests
// can exercise the pool without DuckDB.
type fakeReader struct {
	mu    sync.Mutex
	n     int
	rate  float64
	fail  map[string]bool
	calls int
}

func (f *fakeReader) ReadStream(_ context.Context, path string, key models.SensorKey) (*models.SensorStream, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail[filepath.Base(path)] {
		return nil, fmt.Errorf("corrupt file %s", path)
	}
	seed := float64(len(filepath.Base(filepath.Dir(path))))
	if strings.Contains(path, "/KO/") {
		seed += 10
	}
	return synthStream(key, f.n, f.rate, seed), nil
}

func synthStream(key models.SensorKey, n int, rate, seed float64) *models.SensorStream {
	ts := make([]float64, n)
	x := make([]float64, n)
	for i := range ts {
		ts[i] = float64(i) / rate
		x[i] = seed*math.Sin(2*math.Pi*37*ts[i]) + 0.01*float64(i%13)
	}
	return &models.SensorStream{
		Key:     key,
		Columns: []string{"Time", "x [g]"},
		Data:    map[string][]float64{"Time": ts, "x [g]": x},
	}
}

type acqSpec struct {
	label   models.Label
	name    string
	sensors []string
	rate    *float64
	metaID  string
}

// writeDataset lays out root/{label}/{name}/ with metadata.json and empty
// stream placeholders, for use with fakeReader.
func writeDataset(t *testing.T, root string, acqs []acqSpec) {
	t.Helper()
	for _, a := range acqs {
		dir := filepath.Join(root, string(a.label), a.name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		id := a.metaID
		if id == "" {
			id = a.name
		}
		meta := &models.Metadata{
			SessionInfo: models.SessionInfo{Condition: "vel-fissa", FaultDetail: "none", AcquisitionID: id},
			Sensors:     map[string]models.SensorInfo{},
		}
		for _, s := range a.sensors {
			key, err := models.ParseSensorKey(s)
			require.NoError(t, err)
			meta.Sensors[s] = models.SensorInfo{
				FileName:       s + StreamExt,
				SensorName:     key.Name,
				SensorType:     key.Type,
				SamplingRateHz: a.rate,
				IsActive:       true,
			}
			require.NoError(t, os.WriteFile(filepath.Join(dir, s+StreamExt), nil, 0o644))
		}
		require.NoError(t, repo.WriteMetadata(dir, meta))
	}
}

func ptr(v float64) *float64 { return &v }
