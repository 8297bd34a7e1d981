package analysis

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnsupportedAlgorithm is returned for algorithm tags without a classifier.
var ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

// Algorithm tags.
const (
	AlgorithmRandomForest       = "rf"
	AlgorithmDecisionTree       = "dt"
	AlgorithmLogisticRegression = "lr"
)

// Score is the outcome of fitting one feature table.
type Score struct {
	// Importances is aligned with the feature columns.
	Importances []float64
	// Accuracy is the mean cross-validated accuracy.
	Accuracy float64
}

// Classifier fits a feature matrix against integer class labels and reports
// per-feature importance plus cross-validated accuracy. Importances come from
// a fit on the full matrix; accuracy comes from k-fold cross-validation of a
// fresh model with the same configuration.
type Classifier interface {
	Name() string
	FitAndScore(x [][]float64, y []int) (Score, error)
}

// ModelConfig carries the hyperparameters shared by all classifiers.
type ModelConfig struct {
	Trees         int
	Seed          int64
	Folds         int
	MaxIterations int
	// C is the inverse L2 regularisation strength for logistic regression.
	C float64
}

// DefaultModelConfig returns 50 trees, seed 42, 3 folds, 1000 LR iterations, C=1.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{Trees: 50, Seed: 42, Folds: 3, MaxIterations: 1000, C: 1}
}

func (c ModelConfig) withDefaults() ModelConfig {
	def := DefaultModelConfig()
	if c.Trees <= 0 {
		c.Trees = def.Trees
	}
	if c.Folds < 2 {
		c.Folds = def.Folds
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.C <= 0 {
		c.C = def.C
	}
	return c
}

var registry = map[string]func(ModelConfig) Classifier{
	AlgorithmRandomForest:       func(c ModelConfig) Classifier { return &randomForest{cfg: c} },
	AlgorithmDecisionTree:       func(c ModelConfig) Classifier { return &decisionTree{cfg: c} },
	AlgorithmLogisticRegression: func(c ModelConfig) Classifier { return &logisticRegression{cfg: c} },
}

// NewClassifier returns the classifier registered under tag.
func NewClassifier(tag string, cfg ModelConfig) (Classifier, error) {
	factory, ok := registry[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedAlgorithm, tag, SupportedAlgorithms())
	}
	return factory(cfg.withDefaults()), nil
}

// SupportedAlgorithms lists the registered tags, sorted.
func SupportedAlgorithms() []string {
	tags := make([]string, 0, len(registry))
	for t := range registry {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// IsSupported reports whether tag names a registered classifier.
func IsSupported(tag string) bool {
	_, ok := registry[tag]
	return ok
}

// model is one trainable estimator instance.
type model interface {
	fit(x [][]float64, y []int, nClasses int) error
	predict(x [][]float64) []int
	importances() []float64
}

// fitAndScore fits a model on everything for importances, then
// cross-validates a fresh model per fold for accuracy.
func fitAndScore(newModel func() model, x [][]float64, y []int, folds int) (Score, error) {
	if len(x) == 0 {
		return Score{}, errors.New("empty feature matrix")
	}
	if len(x) != len(y) {
		return Score{}, fmt.Errorf("feature rows %d != labels %d", len(x), len(y))
	}
	nClasses := countClasses(y)

	full := newModel()
	if err := full.fit(x, y, nClasses); err != nil {
		return Score{}, fmt.Errorf("fit: %w", err)
	}

	acc, err := crossValidate(newModel, x, y, nClasses, folds)
	if err != nil {
		return Score{}, err
	}
	return Score{Importances: full.importances(), Accuracy: acc}, nil
}

func countClasses(y []int) int {
	n := 0
	for _, v := range y {
		if v+1 > n {
			n = v + 1
		}
	}
	return n
}

type decisionTree struct {
	cfg ModelConfig
}

func (d *decisionTree) Name() string { return AlgorithmDecisionTree }

func (d *decisionTree) FitAndScore(x [][]float64, y []int) (Score, error) {
	return fitAndScore(func() model { return &treeModel{tree: newCARTTree(0, d.cfg.Seed)} }, x, y, d.cfg.Folds)
}

// treeModel adapts a single cartTree fit on every row.
type treeModel struct {
	tree *cartTree
}

func (m *treeModel) fit(x [][]float64, y []int, nClasses int) error {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	m.tree.fit(x, y, nClasses, idx)
	return nil
}

func (m *treeModel) predict(x [][]float64) []int {
	out := make([]int, len(x))
	for i, row := range x {
		out[i] = argmax(m.tree.proba(row))
	}
	return out
}

func (m *treeModel) importances() []float64 { return m.tree.importances }
