package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/miradorstack/mirador-pdm/internal/cache"
	"github.com/miradorstack/mirador-pdm/internal/engine"
)

const (
	buildLockPrefix     = "build-lock:"
	defaultBuildLockTTL = 30 * time.Minute
	defaultLockRetry    = 500 * time.Millisecond
)

// LockedBuilder serialises corpus builds that write the same output directory
// across every process sharing the cache backend. The lock is a SetNX key
// released with Del once the build returns; its TTL bounds how long a crashed
// holder can block others.
type LockedBuilder struct {
	logger *slog.Logger
	inner  FeatureBuilder
	locks  cache.Provider
	ttl    time.Duration
	retry  time.Duration
	owner  string
}

// NewLockedBuilder wraps inner. A nil provider disables locking.
func NewLockedBuilder(logger *slog.Logger, inner FeatureBuilder, provider cache.Provider, ttl time.Duration) *LockedBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if ttl <= 0 {
		ttl = defaultBuildLockTTL
	}
	host, _ := os.Hostname()
	return &LockedBuilder{
		logger: logger,
		inner:  inner,
		locks:  provider,
		ttl:    ttl,
		retry:  defaultLockRetry,
		owner:  fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano()),
	}
}

// Build implements FeatureBuilder. It waits for the lock on outDir until ctx
// is done.
func (b *LockedBuilder) Build(ctx context.Context, root, outDir string) (engine.BuildResult, error) {
	key, err := buildLockKey(outDir)
	if err != nil {
		return engine.BuildResult{}, err
	}
	if err := b.acquire(ctx, key); err != nil {
		return engine.BuildResult{}, err
	}
	defer b.release(key)
	return b.inner.Build(ctx, root, outDir)
}

func (b *LockedBuilder) acquire(ctx context.Context, key string) error {
	waiting := false
	for {
		ok, err := b.locks.SetNX(ctx, key, []byte(b.owner), b.ttl)
		if err != nil {
			// Without a working backend there is nobody to coordinate with.
			b.logger.Warn("build lock unavailable, building unlocked", slog.String("key", key), slog.Any("error", err))
			return nil
		}
		if ok {
			return nil
		}
		if !waiting {
			b.logger.Info("waiting for concurrent corpus build", slog.String("key", key))
			waiting = true
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for build lock: %w", ctx.Err())
		case <-time.After(b.retry):
		}
	}
}

// release drops the lock unless it expired and another holder took it.
func (b *LockedBuilder) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	held, err := b.locks.Get(ctx, key)
	if err == nil && !bytes.Equal(held, []byte(b.owner)) {
		return
	}
	if err := b.locks.Del(ctx, key); err != nil {
		b.logger.Warn("release build lock", slog.String("key", key), slog.Any("error", err))
	}
}

func buildLockKey(outDir string) (string, error) {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	return buildLockPrefix + abs, nil
}
