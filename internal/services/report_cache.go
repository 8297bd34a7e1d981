package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-pdm/internal/analysis"
	"github.com/miradorstack/mirador-pdm/internal/cache"
	"github.com/miradorstack/mirador-pdm/internal/models"
	"github.com/miradorstack/mirador-pdm/internal/repo"
)

// CachedAnalyzer memoises successful analyses. Entries are keyed by the
// feature directory, algorithm, request set and the size and modification
// time of every table, so rewriting a table invalidates them. Cache failures
// are logged and the analysis runs uncached.
type CachedAnalyzer struct {
	logger *slog.Logger
	inner  SensorAnalyzer
	cache  cache.Provider
	ttl    time.Duration
}

type cachedReport struct {
	Report  *models.Report `json:"report"`
	Skipped []string       `json:"skipped,omitempty"`
}

// NewCachedAnalyzer wraps inner. A nil provider disables caching.
func NewCachedAnalyzer(logger *slog.Logger, inner SensorAnalyzer, provider cache.Provider, ttl time.Duration) *CachedAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	return &CachedAnalyzer{logger: logger, inner: inner, cache: provider, ttl: ttl}
}

// Run implements SensorAnalyzer.
func (c *CachedAnalyzer) Run(ctx context.Context, dir, algorithm string, reqs []models.SensorRequest) (analysis.Outcome, error) {
	out, _, err := c.RunCached(ctx, dir, algorithm, reqs)
	return out, err
}

// RunCached is Run that also reports whether the outcome came from cache.
func (c *CachedAnalyzer) RunCached(ctx context.Context, dir, algorithm string, reqs []models.SensorRequest) (analysis.Outcome, bool, error) {
	if !analysis.IsSupported(algorithm) {
		out, err := c.inner.Run(ctx, dir, algorithm, reqs)
		return out, false, err
	}

	key, err := reportKey(dir, algorithm, reqs)
	if err != nil {
		c.logger.Debug("report cache key unavailable", slog.String("dir", dir), slog.Any("error", err))
		out, err := c.inner.Run(ctx, dir, algorithm, reqs)
		return out, false, err
	}

	if payload, err := c.cache.Get(ctx, key); err == nil {
		var hit cachedReport
		if err := json.Unmarshal(payload, &hit); err == nil && hit.Report != nil {
			return analysis.Outcome{Status: analysis.StatusOK, Report: hit.Report, Skipped: hit.Skipped}, true, nil
		}
		c.logger.Warn("discarding undecodable cached report", slog.String("key", key))
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("report cache get failed", slog.Any("error", err))
	}

	out, err := c.inner.Run(ctx, dir, algorithm, reqs)
	if err != nil || !out.Valid() {
		return out, false, err
	}
	payload, err := json.Marshal(cachedReport{Report: out.Report, Skipped: out.Skipped})
	if err == nil {
		err = c.cache.Set(ctx, key, payload, c.ttl)
	}
	if err != nil {
		c.logger.Warn("report cache set failed", slog.Any("error", err))
	}
	return out, false, nil
}

func reportKey(dir, algorithm string, reqs []models.SensorRequest) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	files, err := repo.NewFeatureStore(abs).List()
	if err != nil {
		return "", err
	}

	norm := make([]string, 0, len(reqs))
	for _, r := range reqs {
		norm = append(norm, r.String())
	}
	sort.Strings(norm)

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00", abs, algorithm, strings.Join(norm, ","))
	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s:%d:%d\x00", filepath.Base(f.Path), info.Size(), info.ModTime().UnixNano())
	}
	return "report:" + hex.EncodeToString(h.Sum(nil)), nil
}
