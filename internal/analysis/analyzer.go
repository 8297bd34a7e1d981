// Package analysis ranks sensors and features by how well they separate
// OK from KO acquisitions.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-pdm/internal/catalog"
	"github.com/miradorstack/mirador-pdm/internal/metrics"
	"github.com/miradorstack/mirador-pdm/internal/models"
	"github.com/miradorstack/mirador-pdm/internal/repo"
)

// Status classifies an analysis outcome for the caller.
type Status string

const (
	StatusOK                   Status = "ok"
	StatusUnsupportedAlgorithm Status = "unsupported_algorithm"
	StatusInvalidSensors       Status = "invalid_sensors"
	StatusNoData               Status = "no_data"
)

// Outcome is the result of Analyzer.Run. Report is set only when Status is
// StatusOK.
type Outcome struct {
	Status     Status
	Report     *models.Report
	Unresolved []models.SensorRequest
	// Skipped lists tables that could not be scored.
	Skipped []string
}

// Valid reports whether the analysis produced a report.
func (o Outcome) Valid() bool { return o.Status == StatusOK && o.Report != nil }

// Config tunes the analyzer.
type Config struct {
	Model           ModelConfig
	BadRowTolerance float64
	// TopFeatures caps the global feature ranking.
	TopFeatures int
}

// DefaultConfig returns the stock analyzer settings.
func DefaultConfig() Config {
	return Config{Model: DefaultModelConfig(), BadRowTolerance: DefaultBadRowTolerance, TopFeatures: 20}
}

// Analyzer scores feature tables one at a time.
type Analyzer struct {
	logger *slog.Logger
	cfg    Config
}

// NewAnalyzer constructs an Analyzer. Zero config fields take defaults.
func NewAnalyzer(logger *slog.Logger, cfg Config) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Model = cfg.Model.withDefaults()
	if cfg.BadRowTolerance <= 0 {
		cfg.BadRowTolerance = DefaultBadRowTolerance
	}
	if cfg.TopFeatures <= 0 {
		cfg.TopFeatures = 20
	}
	return &Analyzer{logger: logger, cfg: cfg}
}

// Run resolves reqs against the tables in dir and scores each match with the
// classifier named by algorithm. The algorithm is checked before any file is
// touched. Caller mistakes are reported through Outcome.Status; the error is
// reserved for failures listing dir or a cancelled context.
func (a *Analyzer) Run(ctx context.Context, dir, algorithm string, reqs []models.SensorRequest) (Outcome, error) {
	start := time.Now()
	out, err := a.run(ctx, dir, algorithm, reqs)
	status := string(out.Status)
	if err != nil {
		status = "error"
	}
	metrics.ObserveAnalysis(time.Since(start), metricAlgorithm(algorithm), status)
	return out, err
}

func metricAlgorithm(tag string) string {
	if IsSupported(tag) {
		return tag
	}
	return "unsupported"
}

func (a *Analyzer) run(ctx context.Context, dir, algorithm string, reqs []models.SensorRequest) (Outcome, error) {
	clf, err := NewClassifier(algorithm, a.cfg.Model)
	if err != nil {
		a.logger.Warn("analysis rejected", slog.String("algorithm", algorithm), slog.Any("error", err))
		return Outcome{Status: StatusUnsupportedAlgorithm}, nil
	}

	res, err := catalog.ResolveDir(dir, reqs)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve sensors: %w", err)
	}
	if !res.AllValid {
		a.logger.Warn("requested sensors not found", slog.String("dir", dir), slog.Any("unresolved", requestStrings(res.Unresolved)))
		return Outcome{Status: StatusInvalidSensors, Unresolved: res.Unresolved}, nil
	}
	if len(res.Paths) == 0 {
		return Outcome{Status: StatusNoData}, nil
	}

	var records []models.ImportanceRecord
	accuracy := map[string]float64{}
	var skipped []string
	for _, path := range res.Paths {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		sensor := strings.TrimSuffix(filepath.Base(path), repo.TableExt)
		score, features, err := a.scoreTable(clf, path)
		if err != nil {
			a.logger.Warn("skipping feature table", slog.String("path", path), slog.Any("error", err))
			skipped = append(skipped, sensor)
			continue
		}
		if prev, ok := accuracy[sensor]; !ok || score.Accuracy > prev {
			accuracy[sensor] = score.Accuracy
		}
		for i, name := range features {
			records = append(records, models.ImportanceRecord{
				Sensor:         sensor,
				Feature:        name,
				Importance:     score.Importances[i],
				SensorAccuracy: score.Accuracy,
				GlobalScore:    GlobalScore(score.Importances[i], score.Accuracy),
			})
		}
	}
	if len(accuracy) == 0 {
		return Outcome{Status: StatusNoData, Skipped: skipped}, nil
	}

	ranking := rankSensors(accuracy)
	top := topFeatures(records, a.cfg.TopFeatures)
	report := &models.Report{
		Algorithm:   clf.Name(),
		Ranking:     ranking,
		TopFeatures: top,
		Reliability: reliabilityFigure(ranking),
		Importance:  importanceFigure(top),
	}
	a.logger.Info("analysis complete",
		slog.String("algorithm", clf.Name()),
		slog.Int("sensors", len(ranking)),
		slog.Int("skipped", len(skipped)),
	)
	return Outcome{Status: StatusOK, Report: report, Skipped: skipped}, nil
}

var errTooFewRows = errors.New("too few rows for cross-validation")

func (a *Analyzer) scoreTable(clf Classifier, path string) (Score, []string, error) {
	table, err := repo.ReadTable(path)
	if err != nil {
		return Score{}, nil, err
	}
	if len(table.FeatureNames) == 0 {
		return Score{}, nil, errors.New("no feature columns")
	}
	prep := Prepare(table, a.cfg.BadRowTolerance)
	if prep.Dropped > 0 || prep.ZeroFilled {
		a.logger.Debug("cleaned non-finite rows", slog.String("path", path), slog.Int("dropped", prep.Dropped), slog.Bool("zero_filled", prep.ZeroFilled))
	}
	if len(prep.Y) < a.cfg.Model.Folds {
		return Score{}, nil, fmt.Errorf("%w: %d rows, %d folds", errTooFewRows, len(prep.Y), a.cfg.Model.Folds)
	}
	if len(prep.Classes) > 2 {
		return Score{}, nil, fmt.Errorf("expected at most two labels, got %v", prep.Classes)
	}
	score, err := clf.FitAndScore(prep.X, prep.Y)
	if err != nil {
		return Score{}, nil, err
	}
	return score, prep.Features, nil
}

// GlobalScore weights a feature's local importance by its sensor's accuracy.
func GlobalScore(importance, accuracy float64) float64 {
	return importance * accuracy
}

func rankSensors(accuracy map[string]float64) []models.SensorScore {
	ranking := make([]models.SensorScore, 0, len(accuracy))
	for sensor, acc := range accuracy {
		ranking = append(ranking, models.SensorScore{Sensor: sensor, Accuracy: acc})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].Accuracy != ranking[j].Accuracy {
			return ranking[i].Accuracy > ranking[j].Accuracy
		}
		return ranking[i].Sensor < ranking[j].Sensor
	})
	return ranking
}

func topFeatures(records []models.ImportanceRecord, n int) []models.ImportanceRecord {
	sorted := append([]models.ImportanceRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.GlobalScore != b.GlobalScore {
			return a.GlobalScore > b.GlobalScore
		}
		if a.Sensor != b.Sensor {
			return a.Sensor < b.Sensor
		}
		return a.Feature < b.Feature
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func reliabilityFigure(ranking []models.SensorScore) models.Figure {
	fig := models.Figure{
		Kind:       models.FigureBar,
		Title:      "Sensor Reliability Tournament (Accuracy)",
		XLabel:     "Classification Accuracy (1.0 = Perfect)",
		YLabel:     "Sensor",
		References: []models.ReferenceLine{{Label: "Random Guessing", Value: 0.5}},
	}
	for _, s := range ranking {
		fig.Bars = append(fig.Bars, models.Bar{Label: s.Sensor, Value: s.Accuracy, Group: s.Sensor})
	}
	return fig
}

func importanceFigure(top []models.ImportanceRecord) models.Figure {
	fig := models.Figure{
		Kind:   models.FigureBar,
		Title:  fmt.Sprintf("Top %d Most Important Features (Weighted by Accuracy)", len(top)),
		XLabel: "Global Importance Score",
		YLabel: "Feature",
	}
	for _, r := range top {
		fig.Bars = append(fig.Bars, models.Bar{Label: r.Feature, Value: r.GlobalScore, Group: r.Sensor})
	}
	return fig
}

func requestStrings(reqs []models.SensorRequest) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.String()
	}
	return out
}
