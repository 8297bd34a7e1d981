// Command sample-dataset writes a small synthetic OK/KO acquisition tree for
// exercising pdm-engine locally.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/miradorstack/mirador-pdm/internal/models"
	"github.com/miradorstack/mirador-pdm/internal/repo"
	"github.com/miradorstack/mirador-pdm/internal/utils"
)

type sensorSpec struct {
	name  string
	typ   string
	rate  float64
	units string
	axes  []string
	// tone is the fundamental of the synthetic vibration.
	tone float64
}

var sensors = []sensorSpec{
	{name: "IIS3DWB", typ: "ACC", rate: 26667, units: "g", axes: []string{"A_x [g]", "A_y [g]", "A_z [g]"}, tone: 120},
	{name: "ISM330DHCX", typ: "GYRO", rate: 6667, units: "mdps", axes: []string{"G_x [mdps]", "G_y [mdps]", "G_z [mdps]"}, tone: 60},
	{name: "STTS22H", typ: "TEMP", rate: 200, units: "Celsius", axes: []string{"TEMP [Celsius]"}, tone: 0},
}

type session struct {
	label     models.Label
	id        string
	condition string
	fault     string
}

func main() {
	var (
		out      string
		sessions int
		seconds  float64
		seed     int64
	)
	flag.StringVar(&out, "out", "dataset", "output dataset root")
	flag.IntVar(&sessions, "sessions", 3, "sessions per label")
	flag.Float64Var(&seconds, "seconds", 3, "recording length per acquisition")
	flag.Int64Var(&seed, "seed", 1, "random seed")
	flag.Parse()

	logger := utils.NewLogger("info", false)
	if err := generate(context.Background(), logger, out, sessions, seconds, rand.New(rand.NewSource(seed))); err != nil {
		logger.Error("sample dataset generation failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("sample dataset written", slog.String("root", out))
}

func generate(ctx context.Context, logger *slog.Logger, root string, perLabel int, seconds float64, rng *rand.Rand) error {
	writer, err := repo.NewParquetReader()
	if err != nil {
		return err
	}
	defer writer.Close()

	conditions := []string{"vel-fissa", "vel-var"}
	faults := []string{"KO_HIGH_2mm", "KO_LOW_4mm"}
	var all []session
	for i := 0; i < perLabel; i++ {
		id := fmt.Sprintf("acq_%03d", i+1)
		all = append(all,
			session{label: models.LabelOK, id: id, condition: conditions[i%2], fault: "none"},
			session{label: models.LabelKO, id: id, condition: conditions[i%2], fault: faults[i%2]},
		)
	}

	for _, s := range all {
		dir := filepath.Join(root, string(s.label), s.id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		meta := &models.Metadata{
			SessionInfo: models.SessionInfo{Condition: s.condition, FaultDetail: s.fault, AcquisitionID: s.id},
			Sensors:     map[string]models.SensorInfo{},
		}
		for _, spec := range sensors {
			key := models.SensorKey{Name: spec.name, Type: spec.typ}
			columns, data := synthesize(spec, seconds, s.label == models.LabelKO, rng)
			path := filepath.Join(dir, key.String()+".parquet")
			if err := writer.WriteParquet(ctx, path, columns, data); err != nil {
				return err
			}
			rate := spec.rate
			meta.Sensors[key.String()] = models.SensorInfo{
				FileName:       key.String() + ".parquet",
				SensorName:     spec.name,
				SensorType:     spec.typ,
				Units:          spec.units,
				Columns:        spec.axes,
				SamplingRateHz: &rate,
				IsActive:       true,
				Sensitivity:    1,
			}
		}
		if err := repo.WriteMetadata(dir, meta); err != nil {
			return err
		}
		logger.Info("acquisition written", slog.String("path", dir))
	}
	return nil
}

// synthesize returns a Time column plus one column per axis. Faulty
// acquisitions get a louder fundamental, a bearing harmonic and impulses.
func synthesize(spec sensorSpec, seconds float64, faulty bool, rng *rand.Rand) ([]string, map[string][]float64) {
	n := int(spec.rate * seconds)
	columns := append([]string{"Time"}, spec.axes...)
	data := map[string][]float64{"Time": make([]float64, n)}
	for i := range data["Time"] {
		data["Time"][i] = float64(i) / spec.rate
	}

	amp, noise := 1.0, 0.05
	if faulty {
		amp, noise = 1.6, 0.12
	}
	for a, axis := range spec.axes {
		col := make([]float64, n)
		phase := rng.Float64() * 2 * math.Pi
		for i, t := range data["Time"] {
			v := noise * rng.NormFloat64()
			if spec.tone > 0 {
				v += amp * math.Sin(2*math.Pi*spec.tone*t+phase) / float64(a+1)
				if faulty {
					v += 0.4 * math.Sin(2*math.Pi*3.7*spec.tone*t)
					if rng.Float64() < 0.001 {
						v += 5 * rng.NormFloat64()
					}
				}
			} else {
				v += 24 + 0.2*t
				if faulty {
					v += 6
				}
			}
			col[i] = v
		}
		data[axis] = col
	}
	return columns, data
}
