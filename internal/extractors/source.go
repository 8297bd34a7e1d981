// Package extractors builds per-acquisition signal and spectrum reports for
// interactive inspection of single sensors.
package extractors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/miradorstack/mirador-pdm/internal/features"
	"github.com/miradorstack/mirador-pdm/internal/models"
	"github.com/miradorstack/mirador-pdm/internal/repo"
)

// ErrNoStreams is returned when an acquisition holds no stream for the request.
var ErrNoStreams = errors.New("no matching sensor streams")

// MaxFigurePoints bounds the samples kept per figure series.
const MaxFigurePoints = 5000

// StreamReader loads one raw sensor stream.
type StreamReader interface {
	ReadStream(ctx context.Context, path string, key models.SensorKey) (*models.SensorStream, error)
}

// Report is the text and figures returned by a tool.
type Report struct {
	Text    string          `json:"text"`
	Figures []models.Figure `json:"figures"`
}

// loadedStream is one requested stream with its metadata entry.
type loadedStream struct {
	stream *models.SensorStream
	info   models.SensorInfo
	rate   float64
}

// loadStreams reads the streams of name in acqPath. With an empty typ every
// type the metadata declares for name and that exists on disk is loaded.
func loadStreams(ctx context.Context, reader StreamReader, acqPath, name, typ, timeColumn string) ([]loadedStream, *models.Metadata, error) {
	meta, err := repo.ReadMetadata(acqPath)
	if err != nil {
		return nil, nil, err
	}

	var types []string
	if typ != "" {
		types = []string{typ}
	} else {
		for _, info := range meta.Sensors {
			if info.SensorName != name {
				continue
			}
			file := filepath.Join(acqPath, name+"_"+info.SensorType+".parquet")
			if _, err := os.Stat(file); err == nil {
				types = append(types, info.SensorType)
			}
		}
		sort.Strings(types)
	}

	var out []loadedStream
	for _, t := range types {
		key := models.SensorKey{Name: name, Type: t}
		info, ok := meta.Sensors[key.String()]
		path := filepath.Join(acqPath, key.String()+".parquet")
		if !ok {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		stream, err := reader.ReadStream(ctx, path, key)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		rate := info.DeclaredRate()
		if rate <= 0 {
			if rate, err = features.EstimateRate(stream, timeColumn); err != nil {
				rate = 1
			}
		}
		out = append(out, loadedStream{stream: stream, info: info, rate: rate})
	}
	if len(out) == 0 {
		return nil, meta, fmt.Errorf("%s in %s: %w", models.RequestFromPair(name, typ), acqPath, ErrNoStreams)
	}
	return out, meta, nil
}

// dataColumns returns every stream column except the time column.
func dataColumns(stream *models.SensorStream, timeColumn string) []string {
	var cols []string
	for _, c := range stream.Columns {
		if c != timeColumn {
			cols = append(cols, c)
		}
	}
	return cols
}

// axisLabel prefers the metadata display label for the j-th data column.
func axisLabel(info models.SensorInfo, j int, col string) string {
	if j < len(info.Columns) {
		return info.Columns[j]
	}
	return col
}

func acquisitionLabel(acqPath string) models.Label {
	if l, ok := models.ParseLabel(filepath.Base(filepath.Dir(filepath.Clean(acqPath)))); ok {
		return l
	}
	return ""
}

// decimate keeps at most limit evenly strided points.
func decimate(x, y []float64, limit int) ([]float64, []float64) {
	if len(x) <= limit {
		return x, y
	}
	stride := (len(x) + limit - 1) / limit
	xs := make([]float64, 0, limit)
	ys := make([]float64, 0, limit)
	for i := 0; i < len(x); i += stride {
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	return xs, ys
}
