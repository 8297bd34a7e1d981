package analysis

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// separable returns rows whose first feature splits the classes cleanly and
// whose second feature is noise.
func separable(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		y[i] = i % 2
		signal := float64(2*y[i]-1) + 0.1*rng.NormFloat64()
		x[i] = []float64{signal, rng.NormFloat64(), rng.NormFloat64()}
	}
	return x, y
}

func TestNewClassifierRejectsUnknownTag(t *testing.T) {
	_, err := NewClassifier("svm", DefaultModelConfig())
	require.True(t, errors.Is(err, ErrUnsupportedAlgorithm))
	require.Equal(t, []string{"dt", "lr", "rf"}, SupportedAlgorithms())
	for _, tag := range SupportedAlgorithms() {
		clf, err := NewClassifier(tag, ModelConfig{})
		require.NoError(t, err)
		require.Equal(t, tag, clf.Name())
	}
}

func TestImportanceNormalization(t *testing.T) {
	x, y := separable(60, 3)
	for _, tag := range SupportedAlgorithms() {
		t.Run(tag, func(t *testing.T) {
			clf, err := NewClassifier(tag, DefaultModelConfig())
			require.NoError(t, err)
			score, err := clf.FitAndScore(x, y)
			require.NoError(t, err)
			require.Len(t, score.Importances, 3)

			sum := 0.0
			for _, v := range score.Importances {
				require.GreaterOrEqual(t, v, 0.0)
				require.LessOrEqual(t, v, 1.0)
				sum += v
			}
			if tag == AlgorithmLogisticRegression {
				require.InDelta(t, 1.0, sum, 1e-9)
			} else {
				require.LessOrEqual(t, sum, 1.0+1e-9)
			}
			require.Equal(t, 0, argmax(score.Importances), "signal feature should rank first")
			require.GreaterOrEqual(t, score.Accuracy, 0.9)
		})
	}
}


func TestForestDeterministic(t *testing.T) {
	x, y := separable(45, 11)
	clf, err := NewClassifier(AlgorithmRandomForest, DefaultModelConfig())
	require.NoError(t, err)
	a, err := clf.FitAndScore(x, y)
	require.NoError(t, err)
	b, err := clf.FitAndScore(x, y)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDecisionTreeSingleSplit(t *testing.T) {
	x, y := separable(30, 5)
	clf, err := NewClassifier(AlgorithmDecisionTree, DefaultModelConfig())
	require.NoError(t, err)
	score, err := clf.FitAndScore(x, y)
	require.NoError(t, err)
	require.InDelta(t, 1.0, score.Importances[0], 1e-12)
	require.Equal(t, 1.0, score.Accuracy)
}

func TestSingleClassPredictsConstant(t *testing.T) {
	x := [][]float64{{1, 2}, {2, 3}, {3, 4}, {4, 5}}
	y := []int{0, 0, 0, 0}
	for _, tag := range SupportedAlgorithms() {
		clf, err := NewClassifier(tag, DefaultModelConfig())
		require.NoError(t, err)
		score, err := clf.FitAndScore(x, y)
		require.NoError(t, err, tag)
		require.Equal(t, 1.0, score.Accuracy, tag)
		for _, v := range score.Importances {
			require.Equal(t, 0.0, v, tag)
		}
	}
}

func TestStratifiedFolds(t *testing.T) {
	y := []int{1, 1, 1, 0, 0, 0, 1, 1, 1}
	require.Equal(t, []int{0, 0, 1, 0, 1, 2, 1, 2, 2}, stratifiedFolds(y, 2, 3))

	balanced := []int{0, 1, 0, 1, 0, 1}
	folds := stratifiedFolds(balanced, 2, 3)
	for f := 0; f < 3; f++ {
		perClass := [2]int{}
		for i, v := range folds {
			if v == f {
				perClass[balanced[i]]++
			}
		}
		require.Equal(t, [2]int{1, 1}, perClass)
	}
}

func TestCrossValidateTooFewRows(t *testing.T) {
	factory := func() model { return &treeModel{tree: newCARTTree(0, 1)} }
	_, err := crossValidate(factory, [][]float64{{1}, {2}}, []int{0, 1}, 2, 3)
	require.Error(t, err)
}

func TestLogisticStableForLargeMargins(t *testing.T) {
	require.InDelta(t, 1000.0, logOnePlusExp(1000), 1e-9)
	require.InDelta(t, 0.0, logOnePlusExp(-1000), 1e-12)
	require.InDelta(t, math.Log(2), logOnePlusExp(0), 1e-12)
	require.InDelta(t, 1.0, sigmoid(800), 1e-12)
	require.InDelta(t, 0.0, sigmoid(-800), 1e-12)
}

func TestStandardScalerConstantColumn(t *testing.T) {
	var s standardScaler
	x := [][]float64{{1, 5}, {3, 5}}
	s.fit(x)
	require.Equal(t, []float64{2, 5}, s.mean)
	require.Equal(t, []float64{1, 1}, s.scale)
	require.Equal(t, [][]float64{{-1, 0}, {1, 0}}, s.transform(x))
}

func TestGlobalScoreMonotonic(t *testing.T) {
	require.Greater(t, GlobalScore(0.3, 0.9), GlobalScore(0.3, 0.6))
	require.Equal(t, 0.0, GlobalScore(0, 0.9))
}
