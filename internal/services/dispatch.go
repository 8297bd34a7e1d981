package services

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/miradorstack/mirador-pdm/internal/analysis"
	"github.com/miradorstack/mirador-pdm/internal/catalog"
	"github.com/miradorstack/mirador-pdm/internal/engine"
	"github.com/miradorstack/mirador-pdm/internal/extractors"
	"github.com/miradorstack/mirador-pdm/internal/models"
)

// Flag tells the responder which situation it is answering.
type Flag string

const (
	FlagMissingDataset      Flag = "MISSING_DATASET"
	FlagVague               Flag = "VAGUE"
	FlagInvalidAlgorithm    Flag = "INVALID_ALGORITHM"
	FlagInvalidSensors      Flag = "INVALID_SENSORS"
	FlagMissingSensor       Flag = "MISSING_SENSOR"
	FlagBadCondition        Flag = "BAD_CONDITION"
	FlagBadLabel            Flag = "BAD_LABEL"
	FlagBadType             Flag = "BAD_TYPE"
	FlagBadAcquisition      Flag = "BAD_ACQUISITION"
	FlagSubsetMissing       Flag = "SUBSET_MISSING"
	FlagTooManyTargets      Flag = "TOO_MANY_TARGETS"
	FlagIrrelevantRequest   Flag = "IRRELEVANT_REQUEST"
	FlagNormalConversation  Flag = "NORMAL_CONVERSATION"
	FlagDataAnalysisSuccess Flag = "DATA_ANALYSIS_SUCCESS"
)

// Outcome is the dispatcher result handed to the responder.
type Outcome struct {
	Flag       Flag
	Category   Category
	ToolOutput string
	Figures    []models.Figure
}

// FeatureBuilder writes the feature corpus of a dataset.
type FeatureBuilder interface {
	Build(ctx context.Context, root, outDir string) (engine.BuildResult, error)
}

// SensorAnalyzer runs a feature importance analysis.
type SensorAnalyzer interface {
	Run(ctx context.Context, dir, algorithm string, reqs []models.SensorRequest) (analysis.Outcome, error)
}

// SignalTool renders one sensor of one acquisition.
type SignalTool interface {
	Report(ctx context.Context, acqPath, name, typ string) (*extractors.Report, error)
}

// DispatcherConfig locates the dataset and its feature corpus.
type DispatcherConfig struct {
	DatasetRoot string
	FeaturesDir string
	SummaryRows int
	// Seed drives random acquisition selection; zero seeds from the clock.
	Seed int64
}

// Dispatcher executes router intents against the dataset.
type Dispatcher struct {
	logger   *slog.Logger
	cfg      DispatcherConfig
	builder  FeatureBuilder
	analyzer SensorAnalyzer
	signal   SignalTool
	spectrum SignalTool

	buildMu sync.Mutex
	rngMu   sync.Mutex
	rng     *rand.Rand
}

// NewDispatcher wires the tools the intents need.
func NewDispatcher(logger *slog.Logger, cfg DispatcherConfig, builder FeatureBuilder, analyzer SensorAnalyzer, signal, spectrum SignalTool) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SummaryRows <= 0 {
		cfg.SummaryRows = analysis.DefaultSummaryRows
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Dispatcher{
		logger:   logger,
		cfg:      cfg,
		builder:  builder,
		analyzer: analyzer,
		signal:   signal,
		spectrum: spectrum,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// DispatchRaw decodes router JSON and dispatches it.
func (d *Dispatcher) DispatchRaw(ctx context.Context, raw []byte) (Outcome, error) {
	return d.Dispatch(ctx, ParseIntent(raw))
}

// Dispatch runs the tool selected by in. The error is reserved for internal
// failures; every caller-side problem is reported as a Flag.
func (d *Dispatcher) Dispatch(ctx context.Context, in Intent) (Outcome, error) {
	out := Outcome{Category: in.Category}
	var err error
	switch in.Category {
	case CategoryFeatureImportance:
		err = d.featureImportance(ctx, in, &out)
	case CategoryTimeSeries, CategoryFrequencySpectrum:
		err = d.visual(ctx, in, &out)
	case CategoryIrrelevant:
		out.Flag = FlagIrrelevantRequest
	default:
		out.Category = CategoryConversation
		out.Flag = FlagNormalConversation
	}
	if err != nil {
		return Outcome{}, err
	}
	if out.Flag == "" {
		out.Flag = FlagDataAnalysisSuccess
	}
	d.logger.Debug("intent dispatched", slog.String("category", string(out.Category)), slog.String("flag", string(out.Flag)))
	return out, nil
}

func (d *Dispatcher) datasetReady() bool {
	if d.cfg.DatasetRoot == "" {
		return false
	}
	info, err := os.Stat(d.cfg.DatasetRoot)
	return err == nil && info.IsDir()
}

func (d *Dispatcher) featureImportance(ctx context.Context, in Intent, out *Outcome) error {
	params := in.Parameters.Analysis
	switch {
	case !d.datasetReady():
		out.Flag = FlagMissingDataset
		return nil
	case in.IsVague:
		out.Flag = FlagVague
		return nil
	case !analysis.IsSupported(params.Algorithm):
		out.Flag = FlagInvalidAlgorithm
		return nil
	}

	if err := d.ensureFeatures(ctx); err != nil {
		return err
	}

	reqs := make([]models.SensorRequest, 0, len(params.TargetSensors))
	for _, t := range params.TargetSensors {
		reqs = append(reqs, models.RequestFromPair(t.Name, t.Type))
	}
	res, err := d.analyzer.Run(ctx, d.cfg.FeaturesDir, params.Algorithm, reqs)
	if err != nil {
		return err
	}
	switch res.Status {
	case analysis.StatusOK:
		out.ToolOutput = analysis.Summarize(res.Report, d.cfg.SummaryRows)
		out.Figures = []models.Figure{res.Report.Reliability, res.Report.Importance}
	case analysis.StatusUnsupportedAlgorithm:
		out.Flag = FlagInvalidAlgorithm
	default:
		out.Flag = FlagInvalidSensors
	}
	return nil
}

// ensureFeatures builds the corpus when the feature directory is missing or
// holds no entries.
func (d *Dispatcher) ensureFeatures(ctx context.Context) error {
	d.buildMu.Lock()
	defer d.buildMu.Unlock()

	entries, err := os.ReadDir(d.cfg.FeaturesDir)
	if err == nil && len(entries) > 0 {
		return nil
	}
	d.logger.Info("feature corpus missing, extracting", slog.String("dataset", d.cfg.DatasetRoot), slog.String("features", d.cfg.FeaturesDir))
	res, err := d.builder.Build(ctx, d.cfg.DatasetRoot, d.cfg.FeaturesDir)
	if err != nil {
		return err
	}
	if res.Empty() {
		d.logger.Warn("feature extraction produced no tables", slog.String("dataset", d.cfg.DatasetRoot))
	}
	return nil
}

func (d *Dispatcher) visual(ctx context.Context, in Intent, out *Outcome) error {
	params := in.Parameters.Visual

	var name, typ string
	if targets := params.TargetSensors; len(targets) > 0 {
		if len(targets) > 1 && sameName(targets) {
			name = targets[0].Name
		} else {
			name, typ = targets[0].Name, targets[0].Type
			if len(targets) > 1 {
				out.Flag = FlagTooManyTargets
			}
		}
	}

	if !d.datasetReady() {
		out.Flag = FlagMissingDataset
		return nil
	}
	vocab, err := catalog.ScanVocabulary(d.cfg.DatasetRoot)
	if err != nil {
		d.logger.Warn("dataset scan failed", slog.String("dataset", d.cfg.DatasetRoot), slog.Any("error", err))
		out.Flag = FlagMissingDataset
		return nil
	}
	switch {
	case name == "" || !slices.Contains(vocab.SensorNames, name):
		out.Flag = FlagMissingSensor
		return nil
	case params.Condition != "" && !slices.Contains(vocab.Conditions, params.Condition):
		out.Flag = FlagBadCondition
		return nil
	case params.LabelDetail != "" && !slices.Contains(vocab.FaultDetails, params.LabelDetail):
		out.Flag = FlagBadLabel
		return nil
	}

	acqPath, flag := d.locateAcquisition(params)
	if flag != "" {
		out.Flag = flag
		return nil
	}
	if typ != "" && !catalog.HasSensor(acqPath, name, typ) {
		out.Flag = FlagBadType
		return nil
	}

	tool := d.signal
	if in.Category == CategoryFrequencySpectrum {
		tool = d.spectrum
	}
	report, err := tool.Report(ctx, acqPath, name, typ)
	if errors.Is(err, extractors.ErrNoStreams) {
		out.Flag = FlagMissingSensor
		return nil
	}
	if err != nil {
		return err
	}
	out.ToolOutput = report.Text
	out.Figures = report.Figures
	return nil
}

func (d *Dispatcher) locateAcquisition(params VisualConfig) (string, Flag) {
	var subset models.Label
	if params.Subset != "" {
		label, ok := models.ParseLabel(params.Subset)
		if !ok {
			return "", FlagBadAcquisition
		}
		subset = label
	}

	if id := params.AcquisitionID; id != "" {
		present := catalog.AcquisitionPresence(d.cfg.DatasetRoot, id)
		switch {
		case len(present) == 0:
			return "", FlagBadAcquisition
		case subset != "":
			for _, label := range present {
				if label == subset {
					return filepath.Join(d.cfg.DatasetRoot, string(label), id), ""
				}
			}
			return "", FlagBadAcquisition
		case len(present) > 1:
			return "", FlagSubsetMissing
		}
		return filepath.Join(d.cfg.DatasetRoot, string(present[0]), id), ""
	}

	d.rngMu.Lock()
	path, ok := catalog.SelectAcquisition(d.cfg.DatasetRoot, catalog.AcquisitionFilter{
		Subset:      subset,
		Condition:   params.Condition,
		FaultDetail: params.LabelDetail,
	}, d.rng)
	d.rngMu.Unlock()
	if !ok {
		return "", FlagBadAcquisition
	}
	return path, ""
}

func sameName(targets []TargetSensor) bool {
	for _, t := range targets[1:] {
		if t.Name != targets[0].Name {
			return false
		}
	}
	return true
}
