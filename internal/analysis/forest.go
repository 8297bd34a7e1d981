package analysis

import (
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

type randomForest struct {
	cfg ModelConfig
}

func (f *randomForest) Name() string { return AlgorithmRandomForest }

func (f *randomForest) FitAndScore(x [][]float64, y []int) (Score, error) {
	return fitAndScore(func() model { return newForestModel(f.cfg.Trees, f.cfg.Seed) }, x, y, f.cfg.Folds)
}

// forestModel is a bagged ensemble of CART trees considering sqrt(p)
// features per split. Trees are grown concurrently; each draws from its own
// seeded source so results do not depend on scheduling.
type forestModel struct {
	nTrees int
	seed   int64
	trees  []*cartTree
	nFeat  int
}

func newForestModel(nTrees int, seed int64) *forestModel {
	return &forestModel{nTrees: nTrees, seed: seed}
}

func (m *forestModel) fit(x [][]float64, y []int, nClasses int) error {
	m.nFeat = len(x[0])
	maxFeatures := int(math.Sqrt(float64(m.nFeat)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	master := rand.New(rand.NewSource(m.seed))
	seeds := make([]int64, m.nTrees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	m.trees = make([]*cartTree, m.nTrees)
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := range m.trees {
		g.Go(func() error {
			tree := newCARTTree(maxFeatures, seeds[i])
			tree.fit(x, y, nClasses, bootstrap(tree.rng, len(x)))
			m.trees[i] = tree
			return nil
		})
	}
	return g.Wait()
}

func bootstrap(rng *rand.Rand, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return idx
}

func (m *forestModel) predict(x [][]float64) []int {
	out := make([]int, len(x))
	for i, row := range x {
		var sum []float64
		for _, t := range m.trees {
			p := t.proba(row)
			if sum == nil {
				sum = make([]float64, len(p))
			}
			for c, v := range p {
				sum[c] += v
			}
		}
		out[i] = argmax(sum)
	}
	return out
}

// importances averages the normalised importances of trees that split at
// least once.
func (m *forestModel) importances() []float64 {
	out := make([]float64, m.nFeat)
	grown := 0
	for _, t := range m.trees {
		if len(t.nodes) < 2 {
			continue
		}
		grown++
		for i, v := range t.importances {
			out[i] += v
		}
	}
	if grown == 0 {
		return out
	}
	for i := range out {
		out[i] /= float64(grown)
	}
	normalize(out)
	return out
}
