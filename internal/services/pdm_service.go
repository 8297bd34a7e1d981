package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/miradorstack/mirador-pdm/internal/analysis"
	"github.com/miradorstack/mirador-pdm/internal/api"
	"github.com/miradorstack/mirador-pdm/internal/catalog"
	"github.com/miradorstack/mirador-pdm/internal/utils"
)

// Defaults holds the directories used when a request leaves them empty.
type Defaults struct {
	DatasetRoot string
	FeaturesDir string
	SummaryRows int
}

// PDMService implements the gRPC PDMEngine service.
type PDMService struct {
	logger     *slog.Logger
	defaults   Defaults
	builder    FeatureBuilder
	analyzer   *CachedAnalyzer
	dispatcher *Dispatcher
	latencies  *utils.LatencyTracker
}

var _ api.PDMEngineServer = (*PDMService)(nil)

// NewPDMService constructs the service facade.
func NewPDMService(logger *slog.Logger, defaults Defaults, builder FeatureBuilder, analyzer *CachedAnalyzer, dispatcher *Dispatcher) *PDMService {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.SummaryRows <= 0 {
		defaults.SummaryRows = analysis.DefaultSummaryRows
	}
	return &PDMService{
		logger:     logger,
		defaults:   defaults,
		builder:    builder,
		analyzer:   analyzer,
		dispatcher: dispatcher,
		latencies:  utils.NewLatencyTracker(1024),
	}
}

// BuildFeatures runs the corpus builder.
func (s *PDMService) BuildFeatures(ctx context.Context, req *api.BuildFeaturesRequest) (*api.BuildFeaturesResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.builder == nil {
		return nil, status.Error(codes.FailedPrecondition, "corpus builder not configured")
	}
	root := orDefault(req.DatasetRoot, s.defaults.DatasetRoot)
	out := orDefault(req.OutputDir, s.defaults.FeaturesDir)
	if root == "" || out == "" {
		return nil, status.Error(codes.InvalidArgument, "dataset_root and output_dir are required")
	}

	res, err := s.builder.Build(ctx, root, out)
	if err != nil {
		s.logger.Error("corpus build failed", slog.String("root", root), slog.Any("error", err))
		return nil, status.Error(codes.Internal, fmt.Sprintf("build failed: %v", err))
	}
	return api.ToBuildFeaturesResponse(res), nil
}

// Analyze runs a feature importance analysis behind the report cache.
func (s *PDMService) Analyze(ctx context.Context, req *api.AnalyzeRequest) (*api.AnalyzeResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.analyzer == nil {
		return nil, status.Error(codes.FailedPrecondition, "analyzer not configured")
	}
	reqs, err := api.ToSensorRequests(req.Sensors)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	dir := orDefault(req.FeaturesDir, s.defaults.FeaturesDir)

	start := time.Now()
	out, cached, err := s.analyzer.RunCached(ctx, dir, req.Algorithm, reqs)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("analysis failed", slog.String("dir", dir), slog.Any("error", err))
		return nil, status.Error(codes.Internal, fmt.Sprintf("analysis failed: %v", err))
	}
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("analysis latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	var summary string
	if out.Valid() {
		summary = analysis.Summarize(out.Report, s.defaults.SummaryRows)
	}
	resp := api.ToAnalyzeResponse(out, summary)
	resp.Cached = cached
	return resp, nil
}

// ResolveSensors maps selectors to table paths.
func (s *PDMService) ResolveSensors(ctx context.Context, req *api.ResolveSensorsRequest) (*api.ResolveSensorsResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	reqs, err := api.ToSensorRequests(req.Sensors)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := catalog.ResolveDir(orDefault(req.FeaturesDir, s.defaults.FeaturesDir), reqs)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("resolve failed: %v", err))
	}
	return api.ToResolveSensorsResponse(res), nil
}

// Dispatch executes a router intent.
func (s *PDMService) Dispatch(ctx context.Context, req *api.DispatchRequest) (*api.DispatchResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.dispatcher == nil {
		return nil, status.Error(codes.FailedPrecondition, "dispatcher not configured")
	}
	out, err := s.dispatcher.DispatchRaw(ctx, req.Intent)
	if err != nil {
		s.logger.Error("dispatch failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, fmt.Sprintf("dispatch failed: %v", err))
	}
	return &api.DispatchResponse{
		Flag:       string(out.Flag),
		Category:   string(out.Category),
		ToolOutput: out.ToolOutput,
		Figures:    out.Figures,
	}, nil
}

// HealthCheck returns the current health state.
func (s *PDMService) HealthCheck(context.Context, *api.HealthRequest) (*api.HealthResponse, error) {
	snap := s.latencies.Snapshot()
	return &api.HealthResponse{
		Status:           "SERVING",
		Analyses:         snap.Count,
		AnalysisP95Milli: float64(snap.P95) / float64(time.Millisecond),
	}, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
