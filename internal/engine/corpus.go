// Package engine runs feature extraction over acquisitions and whole corpora.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/miradorstack/mirador-pdm/internal/features"
	"github.com/miradorstack/mirador-pdm/internal/metrics"
	"github.com/miradorstack/mirador-pdm/internal/models"
	"github.com/miradorstack/mirador-pdm/internal/repo"
)

// BuildResult summarises one corpus build.
type BuildResult struct {
	Acquisitions int
	// Tables maps each persisted sensor key to its table path.
	Tables map[models.SensorKey]string
	// Rows maps each persisted sensor key to its row count.
	Rows map[models.SensorKey]int
}

// Empty reports whether the build had nothing to persist.
func (r BuildResult) Empty() bool { return len(r.Tables) == 0 }

// Paths returns the persisted table paths sorted.
func (r BuildResult) Paths() []string {
	paths := make([]string, 0, len(r.Tables))
	for _, p := range r.Tables {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// CorpusBuilder fans acquisition processing across a worker pool and merges
// the results per sensor key.
type CorpusBuilder struct {
	logger    *slog.Logger
	processor *AcquisitionProcessor
	pool      pond.ResultPool[map[models.SensorKey]*models.FeatureTable]
}

// NewCorpusBuilder constructs a builder with the given worker count; values
// below one use runtime.NumCPU().
func NewCorpusBuilder(logger *slog.Logger, processor *AcquisitionProcessor, workers int) *CorpusBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &CorpusBuilder{
		logger:    logger,
		processor: processor,
		pool:      pond.NewResultPool[map[models.SensorKey]*models.FeatureTable](workers),
	}
}

// Close stops the worker pool after in-flight tasks finish.
func (b *CorpusBuilder) Close() {
	b.pool.StopAndWait()
}

// Discover lists acquisition folders exactly two levels below root:
// root/{OK,KO}/<acquisition>. Other top-level entries are ignored and a
// missing label folder contributes nothing. Tasks are sorted by path.
func Discover(root string) ([]models.AcquisitionTask, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("dataset root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dataset root %s is not a directory", root)
	}

	var tasks []models.AcquisitionTask
	for _, label := range models.Labels {
		labelDir := filepath.Join(root, string(label))
		entries, err := os.ReadDir(labelDir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", labelDir, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			tasks = append(tasks, models.AcquisitionTask{
				Path:  filepath.Join(labelDir, e.Name()),
				Name:  e.Name(),
				Label: label,
			})
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Path < tasks[j].Path })
	return tasks, nil
}

// Run processes tasks on the pool and merges their results. It blocks until
// every task completes.
func (b *CorpusBuilder) Run(ctx context.Context, tasks []models.AcquisitionTask) (map[models.SensorKey]*models.FeatureTable, error) {
	group := b.pool.NewGroupContext(ctx)
	for _, task := range tasks {
		group.Submit(func() map[models.SensorKey]*models.FeatureTable {
			return b.processor.Process(ctx, task)
		})
	}
	results, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("wait for acquisitions: %w", err)
	}
	return MergeResults(results), nil
}

// MergeResults concatenates per-key tables across task results. Columns are
// put in canonical order so the output does not depend on task order.
func MergeResults(results []map[models.SensorKey]*models.FeatureTable) map[models.SensorKey]*models.FeatureTable {
	grouped := make(map[models.SensorKey][]*models.FeatureTable)
	for _, res := range results {
		for key, table := range res {
			if table.Empty() {
				continue
			}
			grouped[key] = append(grouped[key], table)
		}
	}
	merged := make(map[models.SensorKey]*models.FeatureTable, len(grouped))
	for key, tables := range grouped {
		table := models.ConcatTables(key, tables...)
		table.SortColumns(features.LessFeatureName)
		merged[key] = table
	}
	return merged
}

// Build discovers acquisitions under root, extracts and merges them, and
// writes one table per sensor key into outDir. Each table is replaced
// atomically, but a build interrupted midway can leave a mix of new and old
// tables in outDir. An empty corpus writes nothing and is reported through
// BuildResult.Empty rather than an error.
func (b *CorpusBuilder) Build(ctx context.Context, root, outDir string) (BuildResult, error) {
	start := time.Now()
	defer func() { metrics.ObserveCorpusBuild(time.Since(start)) }()

	tasks, err := Discover(root)
	if err != nil {
		return BuildResult{}, err
	}
	result := BuildResult{
		Acquisitions: len(tasks),
		Tables:       map[models.SensorKey]string{},
		Rows:         map[models.SensorKey]int{},
	}
	if len(tasks) == 0 {
		b.logger.Warn("no acquisitions found", slog.String("root", root))
		return result, nil
	}

	b.logger.Info("building corpus", slog.String("root", root), slog.Int("acquisitions", len(tasks)))
	merged, err := b.Run(ctx, tasks)
	if err != nil {
		return BuildResult{}, err
	}
	if len(merged) == 0 {
		b.logger.Warn("corpus produced no feature rows", slog.String("root", root))
		return result, nil
	}

	store := repo.NewFeatureStore(outDir)
	for _, key := range models.SortedKeys(merged) {
		table := merged[key]
		path, err := store.Write(table)
		if err != nil {
			return result, fmt.Errorf("persist %s: %w", key, err)
		}
		result.Tables[key] = path
		result.Rows[key] = table.Rows()
		b.logger.Info("feature table written", slog.String("sensor", key.String()), slog.Int("rows", table.Rows()), slog.String("path", path))
	}
	return result, nil
}
