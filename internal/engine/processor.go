package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/miradorstack/mirador-pdm/internal/features"
	"github.com/miradorstack/mirador-pdm/internal/metrics"
	"github.com/miradorstack/mirador-pdm/internal/models"
	"github.com/miradorstack/mirador-pdm/internal/repo"
)

// StreamExt is the extension of raw sensor stream files.
const StreamExt = ".parquet"

// StreamReader loads one raw sensor stream.
type StreamReader interface {
	ReadStream(ctx context.Context, path string, key models.SensorKey) (*models.SensorStream, error)
}

// AcquisitionProcessor turns one acquisition folder into per-sensor feature tables.
type AcquisitionProcessor struct {
	logger    *slog.Logger
	reader    StreamReader
	extractor *features.Extractor
}

// NewAcquisitionProcessor constructs a processor. A nil extractor uses defaults.
func NewAcquisitionProcessor(logger *slog.Logger, reader StreamReader, extractor *features.Extractor) *AcquisitionProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	if extractor == nil {
		extractor = features.NewExtractor(features.Options{})
	}
	return &AcquisitionProcessor{logger: logger, reader: reader, extractor: extractor}
}

// Process extracts every sensor stream of task. Unreadable or malformed files
// are logged and skipped; an unreadable metadata record yields no tables.
// Keys whose table is empty are omitted.
func (p *AcquisitionProcessor) Process(ctx context.Context, task models.AcquisitionTask) map[models.SensorKey]*models.FeatureTable {
	out := make(map[models.SensorKey]*models.FeatureTable)
	logger := p.logger.With(slog.String("acquisition", task.Name), slog.String("label", string(task.Label)))

	meta, err := repo.ReadMetadata(task.Path)
	if err != nil {
		logger.Warn("skipping acquisition: metadata unreadable", slog.String("path", task.Path), slog.Any("error", err))
		metrics.ObserveAcquisition(metrics.OutcomeError)
		return out
	}

	rowMeta := models.RowMeta{
		Condition:     meta.SessionInfo.Condition,
		FaultDetail:   meta.SessionInfo.FaultDetail,
		Label:         task.Label,
		AcquisitionID: task.Name,
	}

	files, err := streamFiles(task.Path)
	if err != nil {
		logger.Warn("skipping acquisition: folder unreadable", slog.String("path", task.Path), slog.Any("error", err))
		metrics.ObserveAcquisition(metrics.OutcomeError)
		return out
	}

	for _, f := range files {
		table, err := p.processFile(ctx, f, meta, rowMeta)
		if err != nil {
			logger.Warn("skipping sensor file", slog.String("path", f.path), slog.Any("error", err))
			metrics.ObserveSkippedFile()
			continue
		}
		if table.Empty() {
			logger.Debug("sensor file shorter than one window", slog.String("path", f.path))
			continue
		}
		out[f.key] = table
	}

	if len(out) == 0 {
		metrics.ObserveAcquisition(metrics.OutcomeEmpty)
	} else {
		metrics.ObserveAcquisition(metrics.OutcomeSuccess)
	}
	return out
}

func (p *AcquisitionProcessor) processFile(ctx context.Context, f streamFile, meta *models.Metadata, rowMeta models.RowMeta) (*models.FeatureTable, error) {
	stream, err := p.reader.ReadStream(ctx, f.path, f.key)
	if err != nil {
		return nil, err
	}
	rate := meta.Sensors[f.key.String()].DeclaredRate()
	if rate <= 0 {
		rate, err = features.EstimateRate(stream, p.extractor.TimeColumn())
		if err != nil {
			return nil, err
		}
	}
	window := p.extractor.Policy().Length(rate)
	return p.extractor.Extract(stream, window, rowMeta, rate), nil
}

type streamFile struct {
	key  models.SensorKey
	path string
}

func streamFiles(dir string) ([]streamFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []streamFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, StreamExt) {
			continue
		}
		key, err := models.ParseSensorKey(strings.TrimSuffix(name, StreamExt))
		if err != nil {
			continue
		}
		files = append(files, streamFile{key: key, path: filepath.Join(dir, name)})
	}
	return files, nil
}
