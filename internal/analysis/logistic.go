package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

type logisticRegression struct {
	cfg ModelConfig
}

func (l *logisticRegression) Name() string { return AlgorithmLogisticRegression }

func (l *logisticRegression) FitAndScore(x [][]float64, y []int) (Score, error) {
	return fitAndScore(func() model {
		return &logisticModel{c: l.cfg.C, maxIter: l.cfg.MaxIterations}
	}, x, y, l.cfg.Folds)
}

// logisticModel is binary L2-regularised logistic regression over
// standardised features, minimised with L-BFGS. The intercept is not
// penalised. A single-class training set yields a constant predictor.
type logisticModel struct {
	c       float64
	maxIter int

	scaler    standardScaler
	weights   []float64
	intercept float64
	constant  int
	isConst   bool
}

func (m *logisticModel) fit(x [][]float64, y []int, nClasses int) error {
	p := len(x[0])
	m.weights = make([]float64, p)
	if nClasses > 2 {
		return fmt.Errorf("logistic regression is binary, got %d classes", nClasses)
	}

	seen := map[int]bool{}
	for _, v := range y {
		seen[v] = true
	}
	if len(seen) < 2 {
		m.isConst = true
		m.constant = y[0]
		return nil
	}

	m.scaler.fit(x)
	xs := m.scaler.transform(x)
	// Targets in {-1, +1}; class 1 is positive.
	t := make([]float64, len(y))
	for i, v := range y {
		t[i] = float64(2*v - 1)
	}

	problem := optimize.Problem{
		Func: func(w []float64) float64 {
			loss := 0.5 * floats.Dot(w[:p], w[:p])
			for i, row := range xs {
				loss += m.c * logOnePlusExp(-t[i]*(floats.Dot(w[:p], row)+w[p]))
			}
			return loss
		},
		Grad: func(grad, w []float64) {
			copy(grad[:p], w[:p])
			grad[p] = 0
			for i, row := range xs {
				margin := t[i] * (floats.Dot(w[:p], row) + w[p])
				coef := -m.c * t[i] * sigmoid(-margin)
				floats.AddScaled(grad[:p], coef, row)
				grad[p] += coef
			}
		},
	}
	settings := &optimize.Settings{
		MajorIterations:   m.maxIter,
		GradientThreshold: 1e-4,
	}
	result, err := optimize.Minimize(problem, make([]float64, p+1), settings, &optimize.LBFGS{})
	if result == nil {
		return fmt.Errorf("minimise logistic loss: %w", err)
	}
	// Hitting the iteration cap still leaves a usable solution.
	copy(m.weights, result.X[:p])
	m.intercept = result.X[p]
	return nil
}

func (m *logisticModel) predict(x [][]float64) []int {
	out := make([]int, len(x))
	if m.isConst {
		for i := range out {
			out[i] = m.constant
		}
		return out
	}
	for i, row := range m.scaler.transform(x) {
		if floats.Dot(m.weights, row)+m.intercept > 0 {
			out[i] = 1
		}
	}
	return out
}

// importances returns |w| normalised to sum to 1.
func (m *logisticModel) importances() []float64 {
	out := make([]float64, len(m.weights))
	for i, w := range m.weights {
		out[i] = math.Abs(w)
	}
	normalize(out)
	return out
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// logOnePlusExp computes log(1+e^z) without overflow.
func logOnePlusExp(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
