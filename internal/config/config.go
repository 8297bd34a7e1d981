package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures every setting the PDM engine needs to boot.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Features FeaturesConfig `yaml:"features"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DatasetConfig points at the OK/KO acquisition tree.
type DatasetConfig struct {
	Root string `yaml:"root"`
}

// FeaturesConfig controls windowing and where feature tables are written.
type FeaturesConfig struct {
	OutputDir           string   `yaml:"outputDir"`
	WindowSeconds       float64  `yaml:"windowSeconds"`
	LowRateSeconds      float64  `yaml:"lowRateSeconds"`
	HighRateThresholdHz float64  `yaml:"highRateThresholdHz"`
	TimeColumn          string   `yaml:"timeColumn"`
	ExcludePrefixes     []string `yaml:"excludePrefixes"`
}

// CorpusConfig sizes the extraction worker pool. Zero means one worker per CPU.
type CorpusConfig struct {
	Workers int `yaml:"workers"`
}

// AnalysisConfig tunes the classifiers and report.
type AnalysisConfig struct {
	Trees           int     `yaml:"trees"`
	Seed            int64   `yaml:"seed"`
	Folds           int     `yaml:"folds"`
	MaxIterations   int     `yaml:"maxIterations"`
	C               float64 `yaml:"c"`
	BadRowTolerance float64 `yaml:"badRowTolerance"`
	TopFeatures     int     `yaml:"topFeatures"`
	SummaryRows     int     `yaml:"summaryRows"`
}

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// CacheConfig controls caching of analysis reports.
type CacheConfig struct {
	Backend      string        `yaml:"backend"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	KeyPrefix    string        `yaml:"keyPrefix"`
	ReportTTL    time.Duration `yaml:"reportTTL"`
	BuildLockTTL time.Duration `yaml:"buildLockTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_PDM_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Dataset: DatasetConfig{Root: "dataset"},
		Features: FeaturesConfig{
			OutputDir:           "features",
			WindowSeconds:       1.0,
			LowRateSeconds:      1.23,
			HighRateThresholdHz: 1000,
			TimeColumn:          "Time",
			ExcludePrefixes:     []string{"SW_TAG_", "HW_TAG_"},
		},
		Corpus: CorpusConfig{Workers: 0},
		Analysis: AnalysisConfig{
			Trees:           50,
			Seed:            42,
			Folds:           3,
			MaxIterations:   1000,
			C:               1,
			BadRowTolerance: 0.05,
			TopFeatures:     20,
			SummaryRows:     5,
		},
		Cache: CacheConfig{
			Backend:      CacheNone,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			KeyPrefix:    "pdm:",
			ReportTTL:    10 * time.Minute,
			BuildLockTTL: 30 * time.Minute,
		},
	}
}

// Validate rejects settings no component could run with.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.Addr == "" {
			return errors.New("cache.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Features.WindowSeconds <= 0 || c.Features.LowRateSeconds <= 0 {
		return errors.New("features window seconds must be positive")
	}
	if c.Analysis.Folds != 0 && c.Analysis.Folds < 2 {
		return fmt.Errorf("analysis.folds must be at least 2, got %d", c.Analysis.Folds)
	}
	if c.Analysis.BadRowTolerance < 0 || c.Analysis.BadRowTolerance > 1 {
		return fmt.Errorf("analysis.badRowTolerance must be within [0,1], got %v", c.Analysis.BadRowTolerance)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_PDM_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_PDM_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("MIRADOR_PDM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_PDM_LOG_FORMAT"); v != "" {
		cfg.Logging.JSON = strings.EqualFold(v, "json")
	}
	if v := os.Getenv("MIRADOR_PDM_DATASET_ROOT"); v != "" {
		cfg.Dataset.Root = v
	}
	if v := os.Getenv("MIRADOR_PDM_FEATURES_DIR"); v != "" {
		cfg.Features.OutputDir = v
	}
	if v := os.Getenv("MIRADOR_PDM_TIME_COLUMN"); v != "" {
		cfg.Features.TimeColumn = v
	}
	if v := os.Getenv("MIRADOR_PDM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Corpus.Workers = n
		}
	}
	if v := os.Getenv("MIRADOR_PDM_TREES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.Trees = n
		}
	}
	if v := os.Getenv("MIRADOR_PDM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Analysis.Seed = n
		}
	}
	if v := os.Getenv("MIRADOR_PDM_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("MIRADOR_PDM_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("MIRADOR_PDM_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("MIRADOR_PDM_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("MIRADOR_PDM_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("MIRADOR_PDM_CACHE_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("MIRADOR_PDM_CACHE_REPORT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ReportTTL = d
		}
	}
	if v := os.Getenv("MIRADOR_PDM_CACHE_BUILD_LOCK_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.BuildLockTTL = d
		}
	}
}
