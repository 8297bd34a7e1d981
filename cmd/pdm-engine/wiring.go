package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-pdm/internal/analysis"
	"github.com/miradorstack/mirador-pdm/internal/cache"
	"github.com/miradorstack/mirador-pdm/internal/config"
	"github.com/miradorstack/mirador-pdm/internal/engine"
	"github.com/miradorstack/mirador-pdm/internal/extractors"
	"github.com/miradorstack/mirador-pdm/internal/features"
	"github.com/miradorstack/mirador-pdm/internal/repo"
	"github.com/miradorstack/mirador-pdm/internal/services"
	"github.com/miradorstack/mirador-pdm/internal/utils"
)

// app holds the components every subcommand draws from.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	reader *repo.ParquetReader
}

func loadApp(cmd *cobra.Command) (*app, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return &app{cfg: cfg, logger: utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)}, nil
}

// parquet opens the DuckDB-backed reader on first use.
func (a *app) parquet() (*repo.ParquetReader, error) {
	if a.reader != nil {
		return a.reader, nil
	}
	r, err := repo.NewParquetReader()
	if err != nil {
		return nil, fmt.Errorf("open parquet reader: %w", err)
	}
	a.reader = r
	return r, nil
}

func (a *app) close() {
	if a.reader != nil {
		if err := a.reader.Close(); err != nil {
			a.logger.Warn("close parquet reader", slog.Any("error", err))
		}
	}
}

func (a *app) extractor() *features.Extractor {
	f := a.cfg.Features
	return features.NewExtractor(features.Options{
		TimeColumn:      f.TimeColumn,
		ExcludePrefixes: f.ExcludePrefixes,
		Policy: features.WindowPolicy{
			HighRateSeconds:     f.WindowSeconds,
			LowRateSeconds:      f.LowRateSeconds,
			HighRateThresholdHz: f.HighRateThresholdHz,
		},
	})
}

// corpusBuilder returns a builder the caller must Close.
func (a *app) corpusBuilder() (*engine.CorpusBuilder, error) {
	reader, err := a.parquet()
	if err != nil {
		return nil, err
	}
	processor := engine.NewAcquisitionProcessor(a.logger, reader, a.extractor())
	return engine.NewCorpusBuilder(a.logger, processor, a.cfg.Corpus.Workers), nil
}

func (a *app) analyzer() *analysis.Analyzer {
	c := a.cfg.Analysis
	return analysis.NewAnalyzer(a.logger, analysis.Config{
		Model: analysis.ModelConfig{
			Trees:         c.Trees,
			Seed:          c.Seed,
			Folds:         c.Folds,
			MaxIterations: c.MaxIterations,
			C:             c.C,
		},
		BadRowTolerance: c.BadRowTolerance,
		TopFeatures:     c.TopFeatures,
	})
}

// reportCache builds the configured cache backend. A redis backend that cannot
// be reached degrades to no caching.
func (a *app) reportCache(ctx context.Context) cache.Provider {
	c := a.cfg.Cache
	switch c.Backend {
	case config.CacheMemory:
		return cache.NewMemoryProvider(c.ReportTTL)
	case config.CacheRedis:
		provider, err := cache.NewRedisProvider(ctx, cache.RedisConfig{
			Addr:         c.Addr,
			Username:     c.Username,
			Password:     c.Password,
			DB:           c.DB,
			DialTimeout:  c.DialTimeout,
			ReadTimeout:  c.ReadTimeout,
			WriteTimeout: c.WriteTimeout,
			MaxRetries:   c.MaxRetries,
			TLS:          c.TLS,
			KeyPrefix:    c.KeyPrefix,
		})
		if err != nil {
			a.logger.Warn("redis cache unavailable", slog.Any("error", err))
			return cache.NoopProvider{}
		}
		return provider
	default:
		return cache.NoopProvider{}
	}
}

// service wires the gRPC facade. The returned cleanup releases the pool and
// cache.
func (a *app) service(ctx context.Context) (*services.PDMService, func(), error) {
	builder, err := a.corpusBuilder()
	if err != nil {
		return nil, nil, err
	}
	reader, _ := a.parquet()
	provider := a.reportCache(ctx)
	cached := services.NewCachedAnalyzer(a.logger, a.analyzer(), provider, a.cfg.Cache.ReportTTL)
	locked := services.NewLockedBuilder(a.logger, builder, provider, a.cfg.Cache.BuildLockTTL)

	timeColumn := a.cfg.Features.TimeColumn
	dispatcher := services.NewDispatcher(a.logger, services.DispatcherConfig{
		DatasetRoot: a.cfg.Dataset.Root,
		FeaturesDir: a.cfg.Features.OutputDir,
		SummaryRows: a.cfg.Analysis.SummaryRows,
	}, locked, cached,
		extractors.NewSignalExtractor(a.logger, reader, timeColumn),
		extractors.NewSpectrumExtractor(a.logger, reader, timeColumn),
	)

	svc := services.NewPDMService(a.logger, services.Defaults{
		DatasetRoot: a.cfg.Dataset.Root,
		FeaturesDir: a.cfg.Features.OutputDir,
		SummaryRows: a.cfg.Analysis.SummaryRows,
	}, locked, cached, dispatcher)

	cleanup := func() {
		builder.Close()
		if err := provider.Close(); err != nil {
			a.logger.Warn("close cache", slog.Any("error", err))
		}
	}
	return svc, cleanup, nil
}
